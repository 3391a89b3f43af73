package tensor

// Backend defines the compute operations the optimizers rely on.
//
// Binary operations require operands of identical shape and data type;
// there is no broadcasting. Implementations panic on mismatched operands,
// which is a caller contract violation.
//
// Implementations:
//   - CPU: pure Go on top of gonum BLAS kernels
type Backend interface {
	// Sub returns a - b as a new tensor.
	Sub(a, b *RawTensor) *RawTensor

	// AddScaled performs dst += alpha * src in place.
	AddScaled(dst, src *RawTensor, alpha float64)

	// Scale performs dst *= alpha in place.
	Scale(dst *RawTensor, alpha float64)

	// Metadata
	Name() string
	Device() Device
}
