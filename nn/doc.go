// Copyright 2025 Born ML Framework. All rights reserved.
// Use of this source code is governed by an Apache 2.0
// license that can be found in the LICENSE file.

// Package nn provides the model-side building blocks used with the
// federated optimizers.
//
// # Overview
//
// This package contains:
//   - Parameter: trainable tensor with an optional attached gradient
//   - Module: interface for anything exposing an ordered parameter list
//   - Linear: single-output linear regression model with an MSE backward pass
//   - Snapshot and Restore: counterpart sequences for optimizer steps
//   - Save and Load: SafeTensors persistence of a module's parameters
//
// # Basic Usage
//
//	import (
//	    "github.com/born-ml/fedoptim/backend/cpu"
//	    "github.com/born-ml/fedoptim/nn"
//	)
//
//	func main() {
//	    backend := cpu.New()
//	    model := nn.NewLinear(8, backend)
//
//	    loss, grads := model.Backward(x, y)
//	    nn.AttachGradients(model.Parameters(), grads)
//	}
//
// # Counterparts
//
// Optimizers such as SCAFFOLD, PerturbedGD and PFedMe take sequences of
// tensors matched positionally to the flattened parameter list. Snapshot
// produces such a sequence from any parameter list:
//
//	global := nn.Snapshot(model.Parameters())
//	// ... local training ...
//	err := opt.Step(global, tensor.CPU)
package nn
