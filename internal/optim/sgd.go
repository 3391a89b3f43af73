package optim

import (
	"fmt"

	"github.com/pkg/errors"

	"github.com/born-ml/fedoptim/internal/nn"
	"github.com/born-ml/fedoptim/internal/tensor"
)

// SGD implements Stochastic Gradient Descent optimizer with optional momentum.
//
// Update rule without momentum:
//
//	param = param - lr * gradient
//
// Update rule with momentum:
//
//	velocity = momentum * velocity + gradient
//	param = param - lr * velocity
//
// FedAvg clients train with plain SGD; the personalized variants in this
// package specialize the same update.
//
// Example:
//
//	optimizer, err := optim.NewSGD(model.Parameters(), optim.SGDConfig{
//	    LR:       0.01,
//	    Momentum: 0.9,
//	}, backend)
//
//	for _, batch := range batches {
//	    _, grads := model.Backward(batch.X, batch.Y)
//	    nn.AttachGradients(model.Parameters(), grads)
//	    optimizer.Step()
//	    optimizer.ZeroGrad()
//	}
type SGD[B tensor.Backend] struct {
	base[B]
	momentum   float32
	velocities map[*nn.Parameter[B]]*tensor.Tensor[float32, B]
}

// SGDConfig holds configuration for SGD optimizer.
type SGDConfig struct {
	LR       float32 // Learning rate (default: 0.01)
	Momentum float32 // Momentum factor (default: 0.0, range: [0, 1))
}

// NewSGD creates a new SGD optimizer with a single parameter group.
func NewSGD[B tensor.Backend](params []*nn.Parameter[B], config SGDConfig, backend B) (*SGD[B], error) {
	if config.LR == 0 {
		config.LR = 0.01
	}
	if config.Momentum < 0 || config.Momentum >= 1 {
		return nil, invalidArgument("momentum", config.Momentum, "outside allowed range [0, 1)")
	}

	b, err := newBase(params, map[string]float32{KeyLR: config.LR}, backend)
	if err != nil {
		return nil, err
	}
	return &SGD[B]{
		base:       b,
		momentum:   config.Momentum,
		velocities: make(map[*nn.Parameter[B]]*tensor.Tensor[float32, B]),
	}, nil
}

// Step performs a single optimization step.
//
// Parameters with no gradient are skipped.
func (s *SGD[B]) Step() error {
	if err := s.checkGrads(); err != nil {
		return err
	}
	s.each(func(_ int, g *ParamGroup[B], p *nn.Parameter[B], grad *tensor.Tensor[float32, B]) {
		if s.momentum == 0 {
			// param -= lr * grad
			p.Tensor().AddScaled(grad, -g.LR())
			return
		}
		s.updateWithMomentum(p, grad, g.LR())
	})
	return nil
}

// updateWithMomentum performs SGD update with momentum.
func (s *SGD[B]) updateWithMomentum(param *nn.Parameter[B], grad *tensor.Tensor[float32, B], lr float32) {
	velocity, exists := s.velocities[param]
	if !exists {
		velocity = tensor.Zeros[float32](param.Tensor().Shape(), s.backend)
		s.velocities[param] = velocity
	}

	// velocity = momentum * velocity + grad
	s.backend.Scale(velocity.Raw(), float64(s.momentum))
	velocity.AddScaled(grad, 1)

	// param -= lr * velocity
	param.Tensor().AddScaled(velocity, -lr)
}

// StateDict returns the optimizer state for serialization.
//
// State keys: "velocity.{param_index}" -> velocity tensor. Without momentum
// the state is empty.
func (s *SGD[B]) StateDict() map[string]*tensor.RawTensor {
	stateDict := make(map[string]*tensor.RawTensor)
	if s.momentum == 0 {
		return stateDict
	}

	for i, param := range s.Params() {
		velocity, exists := s.velocities[param]
		if !exists {
			continue // No velocity yet (hasn't been used in training)
		}
		stateDict[fmt.Sprintf("velocity.%d", i)] = velocity.Raw()
	}
	return stateDict
}

// LoadStateDict restores velocity buffers.
//
// Returns an error if velocity shapes don't match parameter shapes.
func (s *SGD[B]) LoadStateDict(stateDict map[string]*tensor.RawTensor) error {
	if s.momentum == 0 {
		return nil
	}

	velocities := make(map[*nn.Parameter[B]]*tensor.Tensor[float32, B])
	for i, param := range s.Params() {
		raw, exists := stateDict[fmt.Sprintf("velocity.%d", i)]
		if !exists {
			// Initialized on first step
			continue
		}
		if !raw.SameLayout(param.Tensor().Raw()) {
			return errors.Wrapf(ErrShapeMismatch, "velocity of parameter %d: expected %v, got %v",
				i, param.Tensor().Shape(), raw.Shape())
		}
		velocities[param] = tensor.New[float32, B](raw.Clone(), s.backend)
	}
	s.velocities = velocities
	return nil
}
