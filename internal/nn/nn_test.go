package nn_test

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"gonum.org/v1/gonum/mat"

	"github.com/born-ml/fedoptim/internal/backend/cpu"
	"github.com/born-ml/fedoptim/internal/nn"
	"github.com/born-ml/fedoptim/internal/tensor"
)

func TestParameter_Grad(t *testing.T) {
	backend := cpu.New()
	x, err := tensor.FromSlice([]float32{1, 2}, tensor.Shape{2}, backend)
	require.NoError(t, err)

	p := nn.NewParameter("x", x)
	assert.Equal(t, "x", p.Name())
	assert.Nil(t, p.Grad())

	g := tensor.Full[float32](tensor.Shape{2}, 0.5, backend)
	p.SetGrad(g)
	assert.Same(t, g, p.Grad())

	p.ZeroGrad()
	assert.Nil(t, p.Grad())
}

func TestAttachGradients(t *testing.T) {
	backend := cpu.New()
	a := nn.NewParameter("a", tensor.Zeros[float32](tensor.Shape{2}, backend))
	b := nn.NewParameter("b", tensor.Zeros[float32](tensor.Shape{3}, backend))
	b.SetGrad(tensor.Zeros[float32](tensor.Shape{3}, backend))

	ga, _ := tensor.FromFloat32([]float32{1, 2}, tensor.Shape{2}, tensor.CPU)
	n := nn.AttachGradients([]*nn.Parameter[*cpu.CPUBackend]{a, b}, map[*tensor.RawTensor]*tensor.RawTensor{
		a.Tensor().Raw(): ga,
	})

	assert.Equal(t, 1, n)
	require.NotNil(t, a.Grad())
	assert.Equal(t, []float32{1, 2}, a.Grad().Data())
	assert.Nil(t, b.Grad(), "parameters missing from the map lose their stale gradient")
}

func TestSnapshotRestore(t *testing.T) {
	backend := cpu.New()
	model := nn.NewLinear(2, backend)
	copy(model.Weight().Tensor().Data(), []float32{1, 2})

	snap := nn.Snapshot(model.Parameters())
	model.Weight().Tensor().Data()[0] = 9
	assert.Equal(t, float32(1), snap[0].AsFloat32()[0])

	require.NoError(t, nn.Restore(model.Parameters(), snap))
	assert.Equal(t, []float32{1, 2}, model.Weight().Tensor().Data())

	require.Error(t, nn.Restore(model.Parameters(), snap[:1]))
}

func TestStateDict(t *testing.T) {
	backend := cpu.New()
	src := nn.NewLinear(3, backend)
	copy(src.Weight().Tensor().Data(), []float32{1, 2, 3})
	src.Bias().Tensor().Data()[0] = 4

	state := nn.StateDict(src.Parameters())
	require.Len(t, state, 2)

	dst := nn.NewLinear(3, backend)
	require.NoError(t, nn.LoadStateDict(dst.Parameters(), state))
	assert.Equal(t, []float32{1, 2, 3}, dst.Weight().Tensor().Data())
	assert.Equal(t, float32(4), dst.Bias().Tensor().Data()[0])

	delete(state, "bias")
	require.Error(t, nn.LoadStateDict(dst.Parameters(), state))
}

func TestLinear_ForwardBackward(t *testing.T) {
	backend := cpu.New()
	model := nn.NewLinear(2, backend)
	copy(model.Weight().Tensor().Data(), []float32{1, -1})
	model.Bias().Tensor().Data()[0] = 0.5

	x := mat.NewDense(2, 2, []float64{
		1, 2,
		3, 4,
	})
	y := mat.NewVecDense(2, []float64{0, 0})

	pred := model.Forward(x)
	assert.InDelta(t, -0.5, pred.AtVec(0), 1e-9)
	assert.InDelta(t, -0.5, pred.AtVec(1), 1e-9)

	loss, grads := model.Backward(x, y)
	// residual = [-0.5, -0.5]; loss = 0.5 * mean(0.25) = 0.125
	assert.InDelta(t, 0.125, loss, 1e-9)
	assert.InDelta(t, loss, model.Loss(x, y), 1e-12)

	n := nn.AttachGradients(model.Parameters(), grads)
	require.Equal(t, 2, n)
	// dw = X^T r / 2 = [(-0.5-1.5)/2, (-1-2)/2] = [-1, -1.5]
	assert.InDeltaSlice(t, []float32{-1, -1.5}, model.Weight().Grad().Data(), 1e-6)
	assert.InDelta(t, -0.5, float64(model.Bias().Grad().Data()[0]), 1e-6)
}

func TestLinear_BackwardResidualScale(t *testing.T) {
	backend := cpu.New()
	model := nn.NewLinear(1, backend)
	x := mat.NewDense(2, 1, []float64{1, 3})
	residual := mat.NewVecDense(2, []float64{2, 2})

	grads := model.BackwardResidual(x, residual, 0.5)
	nn.AttachGradients(model.Parameters(), grads)

	// dw = 0.5 * (1*2 + 3*2) / 2 = 2; db = 0.5 * 2 = 1
	assert.InDelta(t, 2, float64(model.Weight().Grad().Data()[0]), 1e-6)
	assert.InDelta(t, 1, float64(model.Bias().Grad().Data()[0]), 1e-6)
}
