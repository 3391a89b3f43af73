// Copyright 2025 Born ML Framework. All rights reserved.
// Use of this source code is governed by an Apache 2.0
// license that can be found in the LICENSE file.

package nn

import (
	"github.com/born-ml/fedoptim/internal/nn"
	"github.com/born-ml/fedoptim/tensor"
)

// Parameter represents a trainable tensor with an optional attached gradient.
//
// Optimizers read Grad() and update Tensor() in place. A parameter whose
// gradient is nil is skipped by every optimizer step.
//
// Example:
//
//	weight := nn.NewParameter("weight", weightTensor)
//	weight.SetGrad(gradTensor)
//	_ = opt.Step(0)
//	weight.ZeroGrad()
//
// Note: Parameter is implemented as a type alias so that parameters built
// through this package are accepted by the optimizers unchanged.
type Parameter[B tensor.Backend] = nn.Parameter[B]

// NewParameter creates a named parameter wrapping t.
func NewParameter[B tensor.Backend](name string, t *tensor.Tensor[float32, B]) *Parameter[B] {
	return nn.NewParameter(name, t)
}

// AttachGradients attaches gradients keyed by parameter RawTensor, clearing
// the gradient of parameters missing from grads. Returns the number attached.
func AttachGradients[B tensor.Backend](params []*Parameter[B], grads map[*tensor.RawTensor]*tensor.RawTensor) int {
	return nn.AttachGradients(params, grads)
}
