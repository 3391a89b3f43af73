// Copyright 2025 Born ML Framework. All rights reserved.
// Use of this source code is governed by an Apache 2.0
// license that can be found in the LICENSE file.

// Package optim provides the update rules used by personalized federated
// learning clients.
//
// # Overview
//
// This package contains:
//   - PerAvg: gradient step with an optional override rate (Per-FedAvg)
//   - SCAFFOLD: control-variate corrected step
//   - PFedMe: Adam step followed by a proximal pull toward a local model
//   - APFL: gradient step scaled by a mixing coefficient
//   - PerturbedGD: proximal step anchored to a global model (FedProx)
//   - SGD and Adam: the base optimizers
//
// Every optimizer reads the gradients attached to its parameters and
// updates the parameters in place. Parameters without a gradient are
// skipped. Steps return an error, matched with errors.Is against
// ErrMissingArgument, ErrLengthMismatch or ErrShapeMismatch, and a failed
// step leaves every parameter unchanged.
//
// # Basic Usage
//
//	import (
//	    "github.com/born-ml/fedoptim/backend/cpu"
//	    "github.com/born-ml/fedoptim/nn"
//	    "github.com/born-ml/fedoptim/optim"
//	    "github.com/born-ml/fedoptim/tensor"
//	)
//
//	func main() {
//	    backend := cpu.New()
//	    model := nn.NewLinear(8, backend)
//	    global := nn.Snapshot(model.Parameters())
//
//	    opt := optim.MustNewPerturbedGD(
//	        model.Parameters(),
//	        optim.PerturbedConfig{LR: 0.01, Mu: 0.1},
//	        backend,
//	    )
//
//	    for _, batch := range batches {
//	        _, grads := model.Backward(batch.X, batch.Y)
//	        nn.AttachGradients(model.Parameters(), grads)
//	        if err := opt.Step(global, tensor.CPU); err != nil {
//	            return err
//	        }
//	        opt.ZeroGrad()
//	    }
//	}
//
// # Parameter Groups
//
// Each optimizer starts with one group holding the constructor's
// parameters. AddParamGroup appends another, overriding selected
// hyperparameters (KeyLR, KeyMu, KeyLamda) for that group only:
//
//	err := opt.AddParamGroup(head.Parameters(), map[string]float32{optim.KeyLR: 0.001})
//
// Counterpart sequences passed to Step are matched positionally against the
// parameters of all groups, flattened in group order.
package optim
