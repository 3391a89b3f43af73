package optim

import (
	"github.com/pkg/errors"

	"github.com/born-ml/fedoptim/internal/nn"
	"github.com/born-ml/fedoptim/internal/tensor"
)

// PFedMe is the client optimizer of pFedMe: an Adam step followed by a
// proximal pull toward the client's local model.
//
// Update rule, after the Adam update:
//
//	param = param - lr * (lamda * (param - local) + mu * param)
//
// Adam moments are created per parameter on first step and persist across
// steps.
//
// Reference: "Personalized Federated Learning with Moreau Envelopes"
// (T. Dinh et al., 2020)
type PFedMe[B tensor.Backend] struct {
	*Adam[B]
}

// PFedMeConfig holds configuration for PFedMe.
//
// Lamda and Mu are used as given; zero disables the corresponding term.
// Start from DefaultPFedMeConfig for the usual values.
type PFedMeConfig struct {
	LR    float32    // Learning rate (default: 0.01)
	Lamda float32    // Pull toward the local model
	Mu    float32    // L2 regularization
	Betas [2]float32 // Adam betas (default: [0.9, 0.999])
	Eps   float32    // Adam epsilon (default: 1e-8)
}

// DefaultPFedMeConfig returns the default pFedMe hyperparameters.
func DefaultPFedMeConfig() PFedMeConfig {
	return PFedMeConfig{
		LR:    0.01,
		Lamda: 0.1,
		Mu:    0.001,
		Betas: [2]float32{0.9, 0.999},
		Eps:   1e-8,
	}
}

// NewPFedMe creates a PFedMe optimizer.
func NewPFedMe[B tensor.Backend](params []*nn.Parameter[B], config PFedMeConfig, backend B) (*PFedMe[B], error) {
	adamConfig := AdamConfig{LR: config.LR, Betas: config.Betas, Eps: config.Eps}
	adamConfig.setDefaults(0.01)
	if err := adamConfig.validate(); err != nil {
		return nil, err
	}

	b, err := newBase(params, map[string]float32{
		KeyLR:    adamConfig.LR,
		KeyLamda: config.Lamda,
		KeyMu:    config.Mu,
	}, backend)
	if err != nil {
		return nil, err
	}
	return &PFedMe[B]{Adam: newAdamFromBase(b, adamConfig)}, nil
}

// MustNewPFedMe is like NewPFedMe but panics on error.
func MustNewPFedMe[B tensor.Backend](params []*nn.Parameter[B], config PFedMeConfig, backend B) *PFedMe[B] {
	opt, err := NewPFedMe(params, config, backend)
	if err != nil {
		panic(err)
	}
	return opt
}

// Step runs the Adam update and then the proximal update.
//
// localModel holds one tensor per parameter, in the order returned by
// Params; each is moved to device before use. A nil localModel or an
// unset device fails with ErrMissingArgument and leaves the parameters
// and Adam state untouched.
//
// Returns the parameters of every group.
func (p *PFedMe[B]) Step(localModel []*tensor.RawTensor, device tensor.Device) ([]*nn.Parameter[B], error) {
	if localModel == nil {
		return nil, errors.Wrap(ErrMissingArgument, "pfedme: local model")
	}
	if device == tensor.NoDevice {
		return nil, errors.Wrap(ErrMissingArgument, "pfedme: device")
	}
	if err := p.checkCounterparts("localModel", localModel); err != nil {
		return nil, err
	}
	if err := p.checkGrads(); err != nil {
		return nil, err
	}

	p.Adam.step()

	p.each(func(i int, g *ParamGroup[B], param *nn.Parameter[B], _ *tensor.Tensor[float32, B]) {
		lr := float64(g.LR())
		lamda := float64(g.Get(KeyLamda))
		mu := float64(g.Get(KeyMu))

		// param = param * (1 - lr*(lamda+mu)) + lr*lamda * local
		p.backend.Scale(param.Tensor().Raw(), 1-lr*(lamda+mu))
		p.backend.AddScaled(param.Tensor().Raw(), localModel[i].To(device), lr*lamda)
	})
	return p.Params(), nil
}
