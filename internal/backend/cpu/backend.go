// Package cpu implements the CPU backend on top of gonum BLAS kernels.
package cpu

import (
	"fmt"

	"github.com/born-ml/fedoptim/internal/parallel"
	"github.com/born-ml/fedoptim/internal/tensor"
)

// CPUBackend implements tensor operations on CPU.
//
// Large elementwise kernels are split into contiguous chunks and run
// concurrently; every call joins before returning.
type CPUBackend struct {
	device   tensor.Device
	parallel parallel.Config
}

// New creates a new CPU backend with default parallelism.
func New() *CPUBackend {
	return NewWithConfig(parallel.DefaultConfig())
}

// NewWithConfig creates a CPU backend using cfg to split kernels.
func NewWithConfig(cfg parallel.Config) *CPUBackend {
	return &CPUBackend{
		device:   tensor.CPU,
		parallel: cfg,
	}
}

// Name returns the backend name.
func (cpu *CPUBackend) Name() string {
	return "CPU"
}

// Device returns the compute device.
func (cpu *CPUBackend) Device() tensor.Device {
	return cpu.device
}

func (cpu *CPUBackend) checkOperands(op string, a, b *tensor.RawTensor) {
	if !a.Shape().Equal(b.Shape()) {
		panic(fmt.Sprintf("%s: shape mismatch: %v vs %v", op, a.Shape(), b.Shape()))
	}
	if a.DType() != b.DType() {
		panic(fmt.Sprintf("%s: dtype mismatch: %s vs %s", op, a.DType(), b.DType()))
	}
}

func (cpu *CPUBackend) newResult(op string, like *tensor.RawTensor) *tensor.RawTensor {
	result, err := tensor.NewRaw(like.Shape(), like.DType(), cpu.device)
	if err != nil {
		panic(fmt.Sprintf("%s: failed to create result tensor: %v", op, err))
	}
	return result
}
