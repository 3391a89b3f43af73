package nn

import (
	"github.com/born-ml/fedoptim/internal/tensor"
)

// Parameter represents a trainable parameter updated in place by optimizers.
//
// A Parameter owns a float32 tensor and optionally carries a gradient of the
// same shape. A nil gradient means the parameter did not take part in the
// last backward pass; optimizers skip it.
//
// Example:
//
//	weight := nn.NewParameter("weight", weightTensor)
//	weight.SetGrad(gradTensor)
//	optimizer.Step(0)
type Parameter[B tensor.Backend] struct {
	name   string                     // Parameter name (e.g., "weight", "bias")
	tensor *tensor.Tensor[float32, B] // The parameter tensor
	grad   *tensor.Tensor[float32, B] // Gradient tensor, nil until attached
}

// NewParameter creates a new trainable parameter.
func NewParameter[B tensor.Backend](name string, t *tensor.Tensor[float32, B]) *Parameter[B] {
	return &Parameter[B]{
		name:   name,
		tensor: t,
	}
}

// Name returns the parameter name.
func (p *Parameter[B]) Name() string {
	return p.name
}

// Tensor returns the parameter tensor.
func (p *Parameter[B]) Tensor() *tensor.Tensor[float32, B] {
	return p.tensor
}

// Grad returns the gradient tensor, or nil if none is attached.
func (p *Parameter[B]) Grad() *tensor.Tensor[float32, B] {
	return p.grad
}

// SetGrad attaches a gradient tensor.
func (p *Parameter[B]) SetGrad(grad *tensor.Tensor[float32, B]) {
	p.grad = grad
}

// ZeroGrad clears the gradient tensor.
func (p *Parameter[B]) ZeroGrad() {
	p.grad = nil
}

// AttachGradients attaches gradients produced by a backward pass.
//
// grads maps a parameter's RawTensor to its gradient, which is the form a
// reverse-mode tape returns. Parameters missing from the map have their
// gradient cleared. Returns the number of parameters that received a gradient.
func AttachGradients[B tensor.Backend](params []*Parameter[B], grads map[*tensor.RawTensor]*tensor.RawTensor) int {
	attached := 0
	for _, p := range params {
		if p == nil {
			continue
		}
		raw, ok := grads[p.tensor.Raw()]
		if !ok || raw == nil {
			p.grad = nil
			continue
		}
		p.grad = tensor.New[float32, B](raw, p.tensor.Backend())
		attached++
	}
	return attached
}

// Clone returns a detached copy of the parameter's tensor, without gradient.
func (p *Parameter[B]) Clone() *Parameter[B] {
	return NewParameter(p.name, p.tensor.Clone())
}
