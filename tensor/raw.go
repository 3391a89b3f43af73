// Copyright 2025 Born ML Framework. All rights reserved.
// Use of this source code is governed by an Apache 2.0
// license that can be found in the LICENSE file.

package tensor

import (
	"github.com/born-ml/fedoptim/internal/tensor"
)

// RawTensor is the untyped tensor representation.
//
// Control variates, reference models and optimizer state are exchanged as
// RawTensors. RawTensor provides:
//   - Shape and type information via Shape(), DType(), Device()
//   - Typed data access via AsFloat32() and AsFloat64()
//   - Deep copies via Clone() and device transfer via To()
//
// Example:
//
//	raw, _ := tensor.FromFloat32([]float32{0.1, 0.2}, tensor.Shape{2}, tensor.CPU)
//	onGPU := raw.To(tensor.CUDA)
type RawTensor = tensor.RawTensor

// NewRaw allocates a zero-filled RawTensor.
func NewRaw(shape Shape, dtype DataType, device Device) (*RawTensor, error) {
	return tensor.NewRaw(shape, dtype, device)
}

// FromFloat32 creates a float32 RawTensor holding a copy of data.
func FromFloat32(data []float32, shape Shape, device Device) (*RawTensor, error) {
	return tensor.FromFloat32(data, shape, device)
}
