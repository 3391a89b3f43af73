// Copyright 2025 Born ML Framework. All rights reserved.
// Use of this source code is governed by an Apache 2.0
// license that can be found in the LICENSE file.

package nn

import (
	"github.com/born-ml/fedoptim/internal/nn"
	"github.com/born-ml/fedoptim/internal/serialization"
	"github.com/born-ml/fedoptim/tensor"
)

// Module is the base interface for models trained by the optimizers.
//
// The order of Parameters defines the positional matching used by
// optimizers that take counterpart tensors (control variates, reference
// models).
type Module[B tensor.Backend] = nn.Module[B]

// Linear is a single-output linear regression model y = x·w + b with a
// mean squared error backward pass.
type Linear[B tensor.Backend] = nn.Linear[B]

// NewLinear creates a zero-initialized Linear model.
func NewLinear[B tensor.Backend](inFeatures int, backend B) *Linear[B] {
	return nn.NewLinear(inFeatures, backend)
}

// Snapshot returns deep copies of the parameters' tensors in order,
// ready to be passed as a counterpart sequence to an optimizer step.
func Snapshot[B tensor.Backend](params []*Parameter[B]) []*tensor.RawTensor {
	return nn.Snapshot(params)
}

// Restore copies snapshot values back into params positionally.
func Restore[B tensor.Backend](params []*Parameter[B], snapshot []*tensor.RawTensor) error {
	return nn.Restore(params, snapshot)
}

// Save writes a module's parameters to a SafeTensors file.
//
// Example:
//
//	backend := cpu.New()
//	model := nn.NewLinear(8, backend)
//	err := nn.Save(model, "model.safetensors", map[string]string{"round": "10"})
func Save[B tensor.Backend](module Module[B], path string, metadata map[string]string) error {
	return serialization.WriteFile(path, nn.StateDict(module.Parameters()), metadata)
}

// Load reads a SafeTensors file written by Save into module and returns the
// file's metadata.
func Load[B tensor.Backend](path string, backend B, module Module[B]) (map[string]string, error) {
	f, err := serialization.ReadFile(path, backend.Device())
	if err != nil {
		return nil, err
	}
	if err := nn.LoadStateDict(module.Parameters(), f.Tensors); err != nil {
		return nil, err
	}
	return f.Metadata, nil
}
