// Copyright 2025 Born ML Framework. All rights reserved.
// Use of this source code is governed by an Apache 2.0
// license that can be found in the LICENSE file.

package optim

import (
	"github.com/born-ml/fedoptim/internal/nn"
	"github.com/born-ml/fedoptim/internal/optim"
	"github.com/born-ml/fedoptim/tensor"
)

// Optimizer is the lifecycle contract shared by all optimizers.
type Optimizer = optim.Optimizer

// Config is the base configuration for optimizers that only need a learning rate.
type Config = optim.Config

// ParamGroup is an ordered set of parameters sharing one hyperparameter configuration.
type ParamGroup[B tensor.Backend] = optim.ParamGroup[B]

// Hyperparameter keys understood by parameter groups.
const (
	KeyLR    = optim.KeyLR
	KeyMu    = optim.KeyMu
	KeyLamda = optim.KeyLamda
)

// Errors returned by optimizer steps. Match them with errors.Is.
var (
	ErrMissingArgument = optim.ErrMissingArgument
	ErrLengthMismatch  = optim.ErrLengthMismatch
	ErrShapeMismatch   = optim.ErrShapeMismatch
)

// InvalidArgumentError reports a hyperparameter outside its allowed range.
type InvalidArgumentError = optim.InvalidArgumentError

// SGD (Stochastic Gradient Descent)

// SGD represents the SGD optimizer with optional momentum.
type SGD[B tensor.Backend] = optim.SGD[B]

// SGDConfig contains configuration for SGD optimizer.
type SGDConfig = optim.SGDConfig

// NewSGD creates a new SGD optimizer.
//
// Example:
//
//	backend := cpu.New()
//	model := nn.NewLinear(8, backend)
//	optimizer, err := optim.NewSGD(
//	    model.Parameters(),
//	    optim.SGDConfig{
//	        LR:       0.01,
//	        Momentum: 0.9,
//	    },
//	    backend,
//	)
func NewSGD[B tensor.Backend](params []*nn.Parameter[B], config SGDConfig, backend B) (*SGD[B], error) {
	return optim.NewSGD(params, config, backend)
}

// Adam (Adaptive Moment Estimation)

// Adam represents the Adam optimizer.
type Adam[B tensor.Backend] = optim.Adam[B]

// AdamConfig contains configuration for Adam optimizer.
type AdamConfig = optim.AdamConfig

// NewAdam creates a new Adam optimizer with bias correction.
func NewAdam[B tensor.Backend](params []*nn.Parameter[B], config AdamConfig, backend B) (*Adam[B], error) {
	return optim.NewAdam(params, config, backend)
}

// PerAvg (Per-FedAvg)

// PerAvg is a gradient step whose rate can be overridden per call.
type PerAvg[B tensor.Backend] = optim.PerAvg[B]

// NewPerAvg creates a PerAvg optimizer.
//
// Example:
//
//	opt, err := optim.NewPerAvg(model.Parameters(), optim.Config{LR: 0.01}, backend)
//	err = opt.Step(0)     // p -= lr * grad
//	err = opt.Step(0.001) // p -= 0.001 * grad
func NewPerAvg[B tensor.Backend](params []*nn.Parameter[B], config Config, backend B) (*PerAvg[B], error) {
	return optim.NewPerAvg(params, config, backend)
}

// MustNewPerAvg is like NewPerAvg but panics on an invalid configuration.
func MustNewPerAvg[B tensor.Backend](params []*nn.Parameter[B], config Config, backend B) *PerAvg[B] {
	return optim.MustNewPerAvg(params, config, backend)
}

// SCAFFOLD

// SCAFFOLD is a gradient step corrected by server and client control variates.
type SCAFFOLD[B tensor.Backend] = optim.SCAFFOLD[B]

// NewSCAFFOLD creates a SCAFFOLD optimizer.
//
// Example:
//
//	opt, err := optim.NewSCAFFOLD(model.Parameters(), optim.Config{LR: 0.01}, backend)
//	err = opt.Step(serverControls, clientControls) // p -= lr * (grad + c - ci)
func NewSCAFFOLD[B tensor.Backend](params []*nn.Parameter[B], config Config, backend B) (*SCAFFOLD[B], error) {
	return optim.NewSCAFFOLD(params, config, backend)
}

// MustNewSCAFFOLD is like NewSCAFFOLD but panics on an invalid configuration.
func MustNewSCAFFOLD[B tensor.Backend](params []*nn.Parameter[B], config Config, backend B) *SCAFFOLD[B] {
	return optim.MustNewSCAFFOLD(params, config, backend)
}

// pFedMe

// PFedMe is an Adam step followed by a proximal pull toward a local model.
type PFedMe[B tensor.Backend] = optim.PFedMe[B]

// PFedMeConfig contains configuration for the PFedMe optimizer.
type PFedMeConfig = optim.PFedMeConfig

// DefaultPFedMeConfig returns lr 0.01, lamda 0.1, mu 0.001 and Adam defaults.
func DefaultPFedMeConfig() PFedMeConfig {
	return optim.DefaultPFedMeConfig()
}

// NewPFedMe creates a PFedMe optimizer.
//
// Example:
//
//	opt, err := optim.NewPFedMe(personal.Parameters(), optim.DefaultPFedMeConfig(), backend)
//	params, err := opt.Step(nn.Snapshot(local.Parameters()), tensor.CPU)
func NewPFedMe[B tensor.Backend](params []*nn.Parameter[B], config PFedMeConfig, backend B) (*PFedMe[B], error) {
	return optim.NewPFedMe(params, config, backend)
}

// MustNewPFedMe is like NewPFedMe but panics on an invalid configuration.
func MustNewPFedMe[B tensor.Backend](params []*nn.Parameter[B], config PFedMeConfig, backend B) *PFedMe[B] {
	return optim.MustNewPFedMe(params, config, backend)
}

// APFL

// Default APFL step arguments.
const (
	DefaultAPFLBeta = optim.DefaultAPFLBeta
	DefaultAPFLNk   = optim.DefaultAPFLNk
)

// APFL is a gradient step scaled by a mixing coefficient and a client weight.
type APFL[B tensor.Backend] = optim.APFL[B]

// NewAPFL creates an APFL optimizer.
//
// Example:
//
//	opt, err := optim.NewAPFL(model.Parameters(), optim.Config{LR: 0.01}, backend)
//	err = opt.Step(optim.DefaultAPFLBeta, optim.DefaultAPFLNk)
func NewAPFL[B tensor.Backend](params []*nn.Parameter[B], config Config, backend B) (*APFL[B], error) {
	return optim.NewAPFL(params, config, backend)
}

// MustNewAPFL is like NewAPFL but panics on an invalid configuration.
func MustNewAPFL[B tensor.Backend](params []*nn.Parameter[B], config Config, backend B) *APFL[B] {
	return optim.MustNewAPFL(params, config, backend)
}

// PerturbedGD (FedProx)

// PerturbedGD is a proximal gradient step anchored to a global model.
type PerturbedGD[B tensor.Backend] = optim.PerturbedGD[B]

// PerturbedConfig contains configuration for the PerturbedGD optimizer.
type PerturbedConfig = optim.PerturbedConfig

// NewPerturbedGD creates a PerturbedGD optimizer.
//
// Example:
//
//	opt, err := optim.NewPerturbedGD(model.Parameters(), optim.PerturbedConfig{LR: 0.01, Mu: 0.1}, backend)
//	err = opt.Step(nn.Snapshot(global.Parameters()), tensor.CPU)
func NewPerturbedGD[B tensor.Backend](params []*nn.Parameter[B], config PerturbedConfig, backend B) (*PerturbedGD[B], error) {
	return optim.NewPerturbedGD(params, config, backend)
}

// MustNewPerturbedGD is like NewPerturbedGD but panics on an invalid configuration.
func MustNewPerturbedGD[B tensor.Backend](params []*nn.Parameter[B], config PerturbedConfig, backend B) *PerturbedGD[B] {
	return optim.MustNewPerturbedGD(params, config, backend)
}

// SaveState writes an optimizer's state dict to a SafeTensors file.
func SaveState(path string, opt Optimizer, metadata map[string]string) error {
	return optim.SaveState(path, opt, metadata)
}

// LoadState restores an optimizer's state from a file written by SaveState
// and returns the file's metadata.
func LoadState(path string, opt Optimizer, device tensor.Device) (map[string]string, error) {
	return optim.LoadState(path, opt, device)
}
