package optim

import (
	"github.com/born-ml/fedoptim/internal/nn"
	"github.com/born-ml/fedoptim/internal/tensor"
)

// SCAFFOLD applies the control-variate corrected gradient step.
//
// Update rule:
//
//	param = param - lr * (gradient + c - c_i)
//
// where c is the server control variate and c_i the client's. The
// correction removes the client drift caused by heterogeneous local data.
//
// Reference: "SCAFFOLD: Stochastic Controlled Averaging for Federated
// Learning" (Karimireddy et al., 2020)
type SCAFFOLD[B tensor.Backend] struct {
	base[B]
}

// NewSCAFFOLD creates a SCAFFOLD optimizer.
func NewSCAFFOLD[B tensor.Backend](params []*nn.Parameter[B], config Config, backend B) (*SCAFFOLD[B], error) {
	if config.LR == 0 {
		config.LR = 0.01
	}
	b, err := newBase(params, map[string]float32{KeyLR: config.LR}, backend)
	if err != nil {
		return nil, err
	}
	return &SCAFFOLD[B]{base: b}, nil
}

// MustNewSCAFFOLD is like NewSCAFFOLD but panics on error.
func MustNewSCAFFOLD[B tensor.Backend](params []*nn.Parameter[B], config Config, backend B) *SCAFFOLD[B] {
	opt, err := NewSCAFFOLD(params, config, backend)
	if err != nil {
		panic(err)
	}
	return opt
}

// Step applies one corrected step.
//
// serverControls and clientControls hold one tensor per parameter, in the
// order returned by Params. Mismatched lengths or shapes are reported
// before any parameter changes.
func (s *SCAFFOLD[B]) Step(serverControls, clientControls []*tensor.RawTensor) error {
	if err := s.checkCounterparts("serverControls", serverControls); err != nil {
		return err
	}
	if err := s.checkCounterparts("clientControls", clientControls); err != nil {
		return err
	}
	if err := s.checkGrads(); err != nil {
		return err
	}

	s.each(func(i int, g *ParamGroup[B], p *nn.Parameter[B], grad *tensor.Tensor[float32, B]) {
		lr := float64(g.LR())
		// param -= lr * (grad + c - c_i)
		s.backend.AddScaled(p.Tensor().Raw(), grad.Raw(), -lr)
		s.backend.AddScaled(p.Tensor().Raw(), serverControls[i], -lr)
		s.backend.AddScaled(p.Tensor().Raw(), clientControls[i], lr)
	})
	return nil
}
