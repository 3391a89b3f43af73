package cpu

import (
	"fmt"

	"gonum.org/v1/gonum/blas/blas32"
	"gonum.org/v1/gonum/blas/blas64"

	"github.com/born-ml/fedoptim/internal/parallel"
	"github.com/born-ml/fedoptim/internal/tensor"
)

// AddScaled performs dst += alpha * src in place (BLAS axpy).
func (cpu *CPUBackend) AddScaled(dst, src *tensor.RawTensor, alpha float64) {
	cpu.checkOperands("add_scaled", dst, src)

	switch dst.DType() {
	case tensor.Float32:
		y, x := dst.AsFloat32(), src.AsFloat32()
		parallel.Range(len(y), func(start, end int) {
			blas32.Axpy(float32(alpha), vec32(x[start:end]), vec32(y[start:end]))
		}, cpu.parallel)
	case tensor.Float64:
		y, x := dst.AsFloat64(), src.AsFloat64()
		parallel.Range(len(y), func(start, end int) {
			blas64.Axpy(alpha, vec64(x[start:end]), vec64(y[start:end]))
		}, cpu.parallel)
	default:
		panic(fmt.Sprintf("add_scaled: unsupported dtype %s", dst.DType()))
	}
}

// Scale performs dst *= alpha in place (BLAS scal).
func (cpu *CPUBackend) Scale(dst *tensor.RawTensor, alpha float64) {
	switch dst.DType() {
	case tensor.Float32:
		x := dst.AsFloat32()
		parallel.Range(len(x), func(start, end int) {
			blas32.Scal(float32(alpha), vec32(x[start:end]))
		}, cpu.parallel)
	case tensor.Float64:
		x := dst.AsFloat64()
		parallel.Range(len(x), func(start, end int) {
			blas64.Scal(alpha, vec64(x[start:end]))
		}, cpu.parallel)
	default:
		panic(fmt.Sprintf("scale: unsupported dtype %s", dst.DType()))
	}
}

func vec32(data []float32) blas32.Vector {
	return blas32.Vector{N: len(data), Inc: 1, Data: data}
}

func vec64(data []float64) blas64.Vector {
	return blas64.Vector{N: len(data), Inc: 1, Data: data}
}
