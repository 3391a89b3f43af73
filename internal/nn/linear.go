package nn

import (
	"fmt"

	"gonum.org/v1/gonum/mat"

	"github.com/born-ml/fedoptim/internal/tensor"
)

// Linear implements single-output linear regression.
//
// Performs the transformation: y = x @ w + b
// where:
//   - x is the input matrix with shape [batch_size, in_features]
//   - w is the weight vector with shape [in_features]
//   - b is the scalar bias with shape [1]
//
// Both parameters are initialized to zeros.
//
// Example:
//
//	backend := cpu.New()
//	model := nn.NewLinear(8, backend)
//	pred := model.Forward(x)
//	loss, grads := model.Backward(x, y)
//	nn.AttachGradients(model.Parameters(), grads)
type Linear[B tensor.Backend] struct {
	inFeatures int
	weight     *Parameter[B] // [in_features]
	bias       *Parameter[B] // [1]
}

// NewLinear creates a zero-initialized Linear model.
func NewLinear[B tensor.Backend](inFeatures int, backend B) *Linear[B] {
	return &Linear[B]{
		inFeatures: inFeatures,
		weight:     NewParameter("weight", tensor.Zeros[float32](tensor.Shape{inFeatures}, backend)),
		bias:       NewParameter("bias", tensor.Zeros[float32](tensor.Shape{1}, backend)),
	}
}

// InFeatures returns the number of input features.
func (l *Linear[B]) InFeatures() int {
	return l.inFeatures
}

// Weight returns the weight parameter.
func (l *Linear[B]) Weight() *Parameter[B] {
	return l.weight
}

// Bias returns the bias parameter.
func (l *Linear[B]) Bias() *Parameter[B] {
	return l.bias
}

// Parameters returns [weight, bias].
func (l *Linear[B]) Parameters() []*Parameter[B] {
	return []*Parameter[B]{l.weight, l.bias}
}

// Forward computes predictions for every row of x.
func (l *Linear[B]) Forward(x *mat.Dense) *mat.VecDense {
	rows, cols := x.Dims()
	if cols != l.inFeatures {
		panic(fmt.Sprintf("linear: expected %d features, got %d", l.inFeatures, cols))
	}

	w := l.weight.Tensor().Data()
	wv := mat.NewVecDense(cols, nil)
	for i, v := range w {
		wv.SetVec(i, float64(v))
	}

	pred := mat.NewVecDense(rows, nil)
	pred.MulVec(x, wv)
	b := float64(l.bias.Tensor().Data()[0])
	for i := 0; i < rows; i++ {
		pred.SetVec(i, pred.AtVec(i)+b)
	}
	return pred
}

// Loss returns the mean squared error 0.5 * mean((x@w + b - y)^2).
func (l *Linear[B]) Loss(x *mat.Dense, y *mat.VecDense) float64 {
	residual := l.Forward(x)
	residual.SubVec(residual, y)
	n := float64(residual.Len())
	return 0.5 * mat.Dot(residual, residual) / n
}

// Backward computes the MSE loss and its gradients.
//
// The gradient map is keyed by each parameter's RawTensor, ready for
// AttachGradients.
func (l *Linear[B]) Backward(x *mat.Dense, y *mat.VecDense) (float64, map[*tensor.RawTensor]*tensor.RawTensor) {
	residual := l.Forward(x)
	residual.SubVec(residual, y)
	return l.gradients(x, residual, 1)
}

// BackwardResidual computes gradients for an externally supplied residual
// (prediction minus target), scaled by scale. Used by mixed-model objectives
// where the prediction does not come from this model alone.
func (l *Linear[B]) BackwardResidual(x *mat.Dense, residual *mat.VecDense, scale float64) map[*tensor.RawTensor]*tensor.RawTensor {
	_, grads := l.gradients(x, residual, scale)
	return grads
}

func (l *Linear[B]) gradients(x *mat.Dense, residual *mat.VecDense, scale float64) (float64, map[*tensor.RawTensor]*tensor.RawTensor) {
	rows, cols := x.Dims()
	n := float64(rows)
	loss := 0.5 * mat.Dot(residual, residual) / n

	// dL/dw = X^T r / n, dL/db = mean(r)
	gw := mat.NewVecDense(cols, nil)
	gw.MulVec(x.T(), residual)
	gw.ScaleVec(scale/n, gw)
	gb := scale * mat.Sum(residual) / n

	backend := l.weight.Tensor().Backend()
	weightGrad := tensor.ZerosLike(l.weight.Tensor().Raw(), backend)
	wg := weightGrad.AsFloat32()
	for i := range wg {
		wg[i] = float32(gw.AtVec(i))
	}
	biasGrad := tensor.ZerosLike(l.bias.Tensor().Raw(), backend)
	biasGrad.AsFloat32()[0] = float32(gb)

	return loss, map[*tensor.RawTensor]*tensor.RawTensor{
		l.weight.Tensor().Raw(): weightGrad,
		l.bias.Tensor().Raw():   biasGrad,
	}
}
