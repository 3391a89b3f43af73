package optim

import (
	"github.com/born-ml/fedoptim/internal/nn"
	"github.com/born-ml/fedoptim/internal/tensor"
)

// Default APFL step arguments.
const (
	DefaultAPFLBeta float32 = 1
	DefaultAPFLNk   float32 = 1
)

// APFL applies the gradient step of Adaptive Personalized Federated
// Learning, scaled by the mixing coefficient and the client weight.
//
// Update rule:
//
//	param = param - lr * (beta * n_k * gradient)
type APFL[B tensor.Backend] struct {
	base[B]
}

// NewAPFL creates an APFL optimizer.
func NewAPFL[B tensor.Backend](params []*nn.Parameter[B], config Config, backend B) (*APFL[B], error) {
	if config.LR == 0 {
		config.LR = 0.01
	}
	b, err := newBase(params, map[string]float32{KeyLR: config.LR}, backend)
	if err != nil {
		return nil, err
	}
	return &APFL[B]{base: b}, nil
}

// MustNewAPFL is like NewAPFL but panics on error.
func MustNewAPFL[B tensor.Backend](params []*nn.Parameter[B], config Config, backend B) *APFL[B] {
	opt, err := NewAPFL(params, config, backend)
	if err != nil {
		panic(err)
	}
	return opt
}

// Step applies one scaled gradient step. Pass DefaultAPFLBeta and
// DefaultAPFLNk for an unscaled step.
func (a *APFL[B]) Step(beta, nk float32) error {
	if err := a.checkGrads(); err != nil {
		return err
	}
	a.each(func(_ int, g *ParamGroup[B], p *nn.Parameter[B], grad *tensor.Tensor[float32, B]) {
		p.Tensor().AddScaled(grad, -g.LR()*beta*nk)
	})
	return nil
}
