package optim

import (
	"github.com/born-ml/fedoptim/internal/nn"
	"github.com/born-ml/fedoptim/internal/tensor"
)

// PerAvg is the client optimizer of Per-FedAvg.
//
// Update rule:
//
//	param = param - lr * gradient     (beta == 0)
//	param = param - beta * gradient   (beta != 0)
//
// The override rate lets the meta-update stage of Per-FedAvg take a step
// of a different size than the inner adaptation stage with the same
// optimizer.
type PerAvg[B tensor.Backend] struct {
	base[B]
}

// NewPerAvg creates a PerAvg optimizer.
func NewPerAvg[B tensor.Backend](params []*nn.Parameter[B], config Config, backend B) (*PerAvg[B], error) {
	if config.LR == 0 {
		config.LR = 0.01
	}
	b, err := newBase(params, map[string]float32{KeyLR: config.LR}, backend)
	if err != nil {
		return nil, err
	}
	return &PerAvg[B]{base: b}, nil
}

// MustNewPerAvg is like NewPerAvg but panics on error.
func MustNewPerAvg[B tensor.Backend](params []*nn.Parameter[B], config Config, backend B) *PerAvg[B] {
	opt, err := NewPerAvg(params, config, backend)
	if err != nil {
		panic(err)
	}
	return opt
}

// Step applies one gradient step. A non-zero beta replaces every group's
// learning rate for this step.
func (p *PerAvg[B]) Step(beta float32) error {
	if err := p.checkGrads(); err != nil {
		return err
	}
	p.each(func(_ int, g *ParamGroup[B], param *nn.Parameter[B], grad *tensor.Tensor[float32, B]) {
		rate := g.LR()
		if beta != 0 {
			rate = beta
		}
		param.Tensor().AddScaled(grad, -rate)
	})
	return nil
}
