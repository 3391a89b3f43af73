// Package nn implements the model-side building blocks used with the
// federated optimizers.
//
// This package provides:
//   - Parameter: Trainable tensors with an optional attached gradient
//   - Module: Interface for anything exposing parameters
//   - Linear: Single-output linear regression model with an MSE backward pass
//   - State helpers: snapshots and state dicts keyed by parameter name
package nn

import (
	"fmt"

	"github.com/born-ml/fedoptim/internal/tensor"
)

// Module is the base interface for models trained by the optimizers.
//
// Type parameter B must satisfy the tensor.Backend interface.
type Module[B tensor.Backend] interface {
	// Parameters returns all trainable parameters in a stable order.
	//
	// The order defines the positional matching used by optimizers that
	// take counterpart tensors (control variates, reference models).
	Parameters() []*Parameter[B]
}

// Snapshot returns deep copies of the parameters' tensors in order.
//
// Snapshots are the counterpart sequences passed to optimizer steps:
// a global model, a local model, or a set of control variates.
func Snapshot[B tensor.Backend](params []*Parameter[B]) []*tensor.RawTensor {
	out := make([]*tensor.RawTensor, len(params))
	for i, p := range params {
		out[i] = p.Tensor().Raw().Clone()
	}
	return out
}

// Restore copies snapshot values back into params positionally.
func Restore[B tensor.Backend](params []*Parameter[B], snapshot []*tensor.RawTensor) error {
	if len(params) != len(snapshot) {
		return fmt.Errorf("restore: %d parameters but %d tensors", len(params), len(snapshot))
	}
	for i, p := range params {
		if err := p.Tensor().Raw().CopyFrom(snapshot[i]); err != nil {
			return fmt.Errorf("restore %q: %w", p.Name(), err)
		}
	}
	return nil
}

// StateDict returns the parameters keyed by name.
// The returned tensors alias parameter storage.
func StateDict[B tensor.Backend](params []*Parameter[B]) map[string]*tensor.RawTensor {
	state := make(map[string]*tensor.RawTensor, len(params))
	for _, p := range params {
		state[p.Name()] = p.Tensor().Raw()
	}
	return state
}

// LoadStateDict copies tensors from state into params by name.
//
// Every parameter must be present with a matching shape.
func LoadStateDict[B tensor.Backend](params []*Parameter[B], state map[string]*tensor.RawTensor) error {
	for _, p := range params {
		raw, ok := state[p.Name()]
		if !ok {
			return fmt.Errorf("missing parameter %q in state dict", p.Name())
		}
		if err := p.Tensor().Raw().CopyFrom(raw); err != nil {
			return fmt.Errorf("load %q: %w", p.Name(), err)
		}
	}
	return nil
}
