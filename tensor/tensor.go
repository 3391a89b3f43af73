// Copyright 2025 Born ML Framework. All rights reserved.
// Use of this source code is governed by an Apache 2.0
// license that can be found in the LICENSE file.

package tensor

import (
	"github.com/born-ml/fedoptim/internal/tensor"
)

// DType is a constraint for tensor element types: float32 and float64.
type DType = tensor.DType

// DataType represents the runtime element type of a tensor.
type DataType = tensor.DataType

// Data type constants.
const (
	Float32 DataType = tensor.Float32
	Float64 DataType = tensor.Float64
)

// Device represents the device where tensor data resides.
//
// The zero value NoDevice means no placement was requested.
type Device = tensor.Device

// Device constants.
const (
	NoDevice Device = tensor.NoDevice
	CPU      Device = tensor.CPU
	CUDA     Device = tensor.CUDA
	Vulkan   Device = tensor.Vulkan
	Metal    Device = tensor.Metal
	WebGPU   Device = tensor.WebGPU
)

// ParseDevice converts a device name such as "cpu" or "cuda" into a Device.
func ParseDevice(name string) (Device, error) {
	return tensor.ParseDevice(name)
}

// Shape represents the dimensions of a tensor.
type Shape = tensor.Shape

// Backend is the set of compute operations the optimizers rely on.
//
// Binary operations require identical shapes; there is no broadcasting.
type Backend = tensor.Backend

// Tensor is a generic type-safe tensor bound to a backend.
//
// Example:
//
//	backend := cpu.New()
//	w, err := tensor.FromSlice([]float32{1, 2, 3}, tensor.Shape{3}, backend)
//	w.AddScaled(grad, -0.01)
type Tensor[T DType, B Backend] = tensor.Tensor[T, B]

// New wraps a RawTensor in a typed Tensor.
func New[T DType, B Backend](raw *RawTensor, b B) *Tensor[T, B] {
	return tensor.New[T](raw, b)
}

// FromSlice creates a tensor holding a copy of data.
func FromSlice[T DType, B Backend](data []T, shape Shape, b B) (*Tensor[T, B], error) {
	return tensor.FromSlice(data, shape, b)
}

// Zeros creates a zero-filled tensor.
func Zeros[T DType, B Backend](shape Shape, b B) *Tensor[T, B] {
	return tensor.Zeros[T](shape, b)
}

// Full creates a tensor filled with value.
func Full[T DType, B Backend](shape Shape, value T, b B) *Tensor[T, B] {
	return tensor.Full(shape, value, b)
}
