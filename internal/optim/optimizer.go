// Package optim implements the update rules used by personalized federated
// learning clients.
//
// This package provides:
//   - SGD and Adam: reusable base optimizers
//   - PerAvg: gradient step with an optional override rate (Per-FedAvg)
//   - SCAFFOLD: control-variate corrected step
//   - PFedMe: Adam step followed by a proximal pull toward a local model
//   - APFL: gradient step scaled by a mixing coefficient
//   - PerturbedGD: proximal step anchored to a global model (FedProx)
//
// Every optimizer reads the gradients attached to its parameters
// (nn.Parameter.Grad) and mutates the parameters in place. Parameters with
// no attached gradient are skipped.
//
// Example usage:
//
//	opt, err := optim.NewSCAFFOLD(model.Parameters(), optim.Config{LR: 0.01}, backend)
//
//	for _, batch := range batches {
//	    _, grads := model.Backward(batch.X, batch.Y)
//	    nn.AttachGradients(model.Parameters(), grads)
//	    if err := opt.Step(serverControls, clientControls); err != nil {
//	        return err
//	    }
//	    opt.ZeroGrad()
//	}
package optim

import (
	"maps"

	"github.com/pkg/errors"

	"github.com/born-ml/fedoptim/internal/nn"
	"github.com/born-ml/fedoptim/internal/tensor"
)

// Optimizer is the lifecycle contract shared by every optimizer.
//
// Step signatures differ by variant because each update rule takes its own
// auxiliary inputs.
type Optimizer interface {
	// ZeroGrad clears all parameter gradients.
	ZeroGrad()

	// GetLR returns the learning rate of the first parameter group.
	GetLR() float32

	// SetLR sets the learning rate of every parameter group.
	SetLR(lr float32)

	// StateDict returns the optimizer's internal state for serialization.
	StateDict() map[string]*tensor.RawTensor

	// LoadStateDict restores state produced by StateDict.
	LoadStateDict(stateDict map[string]*tensor.RawTensor) error
}

// Config is the base configuration for optimizers that only need a learning rate.
type Config struct {
	LR float32 // Learning rate (default: 0.01)
}

// Hyperparameter keys understood by parameter groups.
const (
	KeyLR    = "lr"
	KeyMu    = "mu"
	KeyLamda = "lamda"
)

// ParamGroup is an ordered set of parameters sharing one hyperparameter
// configuration.
//
// Options holds per-group overrides; keys missing from Options inherit the
// optimizer's defaults when the group is added.
type ParamGroup[B tensor.Backend] struct {
	Params  []*nn.Parameter[B]
	Options map[string]float32
}

// Get returns the group's value for key, or 0 if unset.
func (g *ParamGroup[B]) Get(key string) float32 {
	return g.Options[key]
}

// LR returns the group's learning rate.
func (g *ParamGroup[B]) LR() float32 {
	return g.Options[KeyLR]
}

// base holds the parameter groups and implements the bookkeeping shared by
// all optimizers.
type base[B tensor.Backend] struct {
	groups   []*ParamGroup[B]
	defaults map[string]float32
	backend  B
}

func newBase[B tensor.Backend](params []*nn.Parameter[B], defaults map[string]float32, backend B) (base[B], error) {
	b := base[B]{
		defaults: defaults,
		backend:  backend,
	}
	for key, value := range defaults {
		if err := checkNonNegative(key, value); err != nil {
			return base[B]{}, err
		}
	}
	if err := b.AddParamGroup(params, nil); err != nil {
		return base[B]{}, err
	}
	return b, nil
}

// AddParamGroup appends a parameter group.
//
// overrides replace the optimizer defaults for this group only; unknown keys
// are rejected.
func (b *base[B]) AddParamGroup(params []*nn.Parameter[B], overrides map[string]float32) error {
	options := maps.Clone(b.defaults)
	if options == nil {
		options = make(map[string]float32)
	}
	for key, value := range overrides {
		if _, ok := b.defaults[key]; !ok {
			return invalidArgument(key, value, "not a hyperparameter of this optimizer")
		}
		if err := checkNonNegative(key, value); err != nil {
			return err
		}
		options[key] = value
	}
	b.groups = append(b.groups, &ParamGroup[B]{
		Params:  params,
		Options: options,
	})
	return nil
}

// ParamGroups returns the optimizer's parameter groups.
func (b *base[B]) ParamGroups() []*ParamGroup[B] {
	return b.groups
}

// Params returns the parameters of every group, flattened in group order.
//
// This flattened order is the positional order used to match counterpart
// sequences in Step.
func (b *base[B]) Params() []*nn.Parameter[B] {
	var out []*nn.Parameter[B]
	for _, g := range b.groups {
		out = append(out, g.Params...)
	}
	return out
}

// ZeroGrad clears gradients for all parameters.
func (b *base[B]) ZeroGrad() {
	for _, g := range b.groups {
		for _, p := range g.Params {
			p.ZeroGrad()
		}
	}
}

// GetLR returns the learning rate of the first parameter group.
func (b *base[B]) GetLR() float32 {
	if len(b.groups) == 0 {
		return b.defaults[KeyLR]
	}
	return b.groups[0].LR()
}

// SetLR updates the learning rate of every parameter group.
//
// Useful for learning rate scheduling during training.
func (b *base[B]) SetLR(lr float32) {
	b.defaults[KeyLR] = lr
	for _, g := range b.groups {
		g.Options[KeyLR] = lr
	}
}

// each calls fn for every parameter that has a gradient, passing the
// parameter's flat index and group.
func (b *base[B]) each(fn func(i int, g *ParamGroup[B], p *nn.Parameter[B], grad *tensor.Tensor[float32, B])) {
	i := 0
	for _, g := range b.groups {
		for _, p := range g.Params {
			if grad := p.Grad(); grad != nil {
				fn(i, g, p, grad)
			}
			i++
		}
	}
}

func (b *base[B]) numParams() int {
	n := 0
	for _, g := range b.groups {
		n += len(g.Params)
	}
	return n
}

// checkGrads verifies every attached gradient matches its parameter.
func (b *base[B]) checkGrads() error {
	var err error
	b.each(func(i int, _ *ParamGroup[B], p *nn.Parameter[B], grad *tensor.Tensor[float32, B]) {
		if err == nil && !grad.Raw().SameLayout(p.Tensor().Raw()) {
			err = errors.Wrapf(ErrShapeMismatch, "gradient of parameter %d (%s): %v vs %v",
				i, p.Name(), grad.Shape(), p.Tensor().Shape())
		}
	})
	return err
}

// checkCounterparts verifies that tensors has one entry per parameter, each
// matching its parameter's layout.
func (b *base[B]) checkCounterparts(name string, tensors []*tensor.RawTensor) error {
	if n := b.numParams(); len(tensors) != n {
		return errors.Wrapf(ErrLengthMismatch, "%s: got %d tensors for %d parameters", name, len(tensors), n)
	}
	i := 0
	for _, g := range b.groups {
		for _, p := range g.Params {
			t := tensors[i]
			if t == nil {
				return errors.Wrapf(ErrMissingArgument, "%s[%d] is nil", name, i)
			}
			if !t.SameLayout(p.Tensor().Raw()) {
				return errors.Wrapf(ErrShapeMismatch, "%s[%d] for parameter %s: %v vs %v",
					name, i, p.Name(), t.Shape(), p.Tensor().Shape())
			}
			i++
		}
	}
	return nil
}

// StateDict returns an empty state; stateless optimizers use it as is.
func (b *base[B]) StateDict() map[string]*tensor.RawTensor {
	return map[string]*tensor.RawTensor{}
}

// LoadStateDict ignores the state; stateless optimizers use it as is.
func (b *base[B]) LoadStateDict(map[string]*tensor.RawTensor) error {
	return nil
}
