package optim

import (
	"github.com/pkg/errors"

	"github.com/born-ml/fedoptim/internal/nn"
	"github.com/born-ml/fedoptim/internal/tensor"
)

// PerturbedGD applies a gradient step with a proximal term pulling each
// parameter toward the global model. FedProx and Ditto clients use it.
//
// Update rule:
//
//	param = param - lr * (gradient + mu * (param - global))
//
// With mu = 0 it is plain gradient descent.
type PerturbedGD[B tensor.Backend] struct {
	base[B]
}

// PerturbedConfig holds configuration for PerturbedGD.
type PerturbedConfig struct {
	LR float32 // Learning rate (default: 0.01)
	Mu float32 // Proximal coefficient (default: 0)
}

// NewPerturbedGD creates a PerturbedGD optimizer.
func NewPerturbedGD[B tensor.Backend](params []*nn.Parameter[B], config PerturbedConfig, backend B) (*PerturbedGD[B], error) {
	if config.LR == 0 {
		config.LR = 0.01
	}
	b, err := newBase(params, map[string]float32{KeyLR: config.LR, KeyMu: config.Mu}, backend)
	if err != nil {
		return nil, err
	}
	return &PerturbedGD[B]{base: b}, nil
}

// MustNewPerturbedGD is like NewPerturbedGD but panics on error.
func MustNewPerturbedGD[B tensor.Backend](params []*nn.Parameter[B], config PerturbedConfig, backend B) *PerturbedGD[B] {
	opt, err := NewPerturbedGD(params, config, backend)
	if err != nil {
		panic(err)
	}
	return opt
}

// Step applies one proximal step.
//
// globalParams holds one tensor per parameter, in the order returned by
// Params; each is moved to device before use.
func (o *PerturbedGD[B]) Step(globalParams []*tensor.RawTensor, device tensor.Device) error {
	if globalParams == nil {
		return errors.Wrap(ErrMissingArgument, "perturbed gd: global params")
	}
	if device == tensor.NoDevice {
		return errors.Wrap(ErrMissingArgument, "perturbed gd: device")
	}
	if err := o.checkCounterparts("globalParams", globalParams); err != nil {
		return err
	}
	if err := o.checkGrads(); err != nil {
		return err
	}

	o.each(func(i int, g *ParamGroup[B], p *nn.Parameter[B], grad *tensor.Tensor[float32, B]) {
		lr := float64(g.LR())
		if mu := float64(g.Get(KeyMu)); mu != 0 {
			// param = param * (1 - lr*mu) + lr*mu * global
			o.backend.Scale(p.Tensor().Raw(), 1-lr*mu)
			o.backend.AddScaled(p.Tensor().Raw(), globalParams[i].To(device), lr*mu)
		}
		o.backend.AddScaled(p.Tensor().Raw(), grad.Raw(), -lr)
	})
	return nil
}
