package cpu

import (
	"fmt"

	"github.com/born-ml/fedoptim/internal/parallel"
	"github.com/born-ml/fedoptim/internal/tensor"
)

// Sub performs element-wise subtraction, returning a new tensor.
func (cpu *CPUBackend) Sub(a, b *tensor.RawTensor) *tensor.RawTensor {
	return cpu.binary("sub", a, b,
		func(x, y float32) float32 { return x - y },
		func(x, y float64) float64 { return x - y })
}

func (cpu *CPUBackend) binary(
	op string,
	a, b *tensor.RawTensor,
	f32 func(x, y float32) float32,
	f64 func(x, y float64) float64,
) *tensor.RawTensor {
	cpu.checkOperands(op, a, b)
	result := cpu.newResult(op, a)

	switch a.DType() {
	case tensor.Float32:
		x, y, out := a.AsFloat32(), b.AsFloat32(), result.AsFloat32()
		parallel.Range(len(out), func(start, end int) {
			for i := start; i < end; i++ {
				out[i] = f32(x[i], y[i])
			}
		}, cpu.parallel)
	case tensor.Float64:
		x, y, out := a.AsFloat64(), b.AsFloat64(), result.AsFloat64()
		parallel.Range(len(out), func(start, end int) {
			for i := start; i < end; i++ {
				out[i] = f64(x[i], y[i])
			}
		}, cpu.parallel)
	default:
		panic(fmt.Sprintf("%s: unsupported dtype %s", op, a.DType()))
	}
	return result
}
