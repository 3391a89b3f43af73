package optim_test

import (
	"path/filepath"
	"testing"

	"github.com/pkg/errors"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/born-ml/fedoptim/internal/backend/cpu"
	"github.com/born-ml/fedoptim/internal/nn"
	"github.com/born-ml/fedoptim/internal/optim"
	"github.com/born-ml/fedoptim/internal/tensor"
)

type param = nn.Parameter[*cpu.CPUBackend]

// Helper to check float equality with tolerance.
func floatEqual(a, b, eps float32) bool {
	diff := a - b
	if diff < 0 {
		diff = -diff
	}
	return diff < eps
}

func newParam(t *testing.T, backend *cpu.CPUBackend, name string, values ...float32) *param {
	t.Helper()
	x, err := tensor.FromSlice(values, tensor.Shape{len(values)}, backend)
	require.NoError(t, err)
	return nn.NewParameter(name, x)
}

func setGrad(t *testing.T, backend *cpu.CPUBackend, p *param, values ...float32) {
	t.Helper()
	g, err := tensor.FromSlice(values, tensor.Shape{len(values)}, backend)
	require.NoError(t, err)
	p.SetGrad(g)
}

func raw(t *testing.T, values ...float32) *tensor.RawTensor {
	t.Helper()
	r, err := tensor.FromFloat32(values, tensor.Shape{len(values)}, tensor.CPU)
	require.NoError(t, err)
	return r
}

// TestSGD_SimpleUpdate tests SGD without momentum.
func TestSGD_SimpleUpdate(t *testing.T) {
	backend := cpu.New()
	x := newParam(t, backend, "x", 2.0)

	optimizer, err := optim.NewSGD([]*param{x}, optim.SGDConfig{LR: 0.1}, backend)
	require.NoError(t, err)

	setGrad(t, backend, x, 1.0)
	require.NoError(t, optimizer.Step())

	// Expected: x_new = x_old - lr * grad = 2.0 - 0.1 * 1.0 = 1.9
	if actual := x.Tensor().Data()[0]; !floatEqual(actual, 1.9, 1e-6) {
		t.Errorf("SGD update: got %f, want %f", actual, 1.9)
	}
	assert.Empty(t, optimizer.StateDict())
}

// TestSGD_WithMomentum tests SGD with momentum.
func TestSGD_WithMomentum(t *testing.T) {
	backend := cpu.New()
	x := newParam(t, backend, "x", 1.0)

	optimizer, err := optim.NewSGD([]*param{x}, optim.SGDConfig{LR: 0.1, Momentum: 0.9}, backend)
	require.NoError(t, err)

	// First step: v = 1, x = 1 - 0.1 = 0.9
	setGrad(t, backend, x, 1.0)
	require.NoError(t, optimizer.Step())
	assert.InDelta(t, 0.9, float64(x.Tensor().Data()[0]), 1e-6)

	// Second step: v = 0.9*1 + 1 = 1.9, x = 0.9 - 0.19 = 0.71
	require.NoError(t, optimizer.Step())
	assert.InDelta(t, 0.71, float64(x.Tensor().Data()[0]), 1e-6)

	state := optimizer.StateDict()
	require.Contains(t, state, "velocity.0")
	assert.InDelta(t, 1.9, float64(state["velocity.0"].AsFloat32()[0]), 1e-6)
}

func TestSGD_InvalidMomentum(t *testing.T) {
	backend := cpu.New()
	_, err := optim.NewSGD([]*param{newParam(t, backend, "x", 1)}, optim.SGDConfig{Momentum: 1}, backend)

	var argErr *optim.InvalidArgumentError
	require.True(t, errors.As(err, &argErr))
	assert.Equal(t, "momentum", argErr.Name)
}

// TestAdam_FirstStep checks the closed-form first Adam update.
func TestAdam_FirstStep(t *testing.T) {
	backend := cpu.New()
	x := newParam(t, backend, "x", 1.0)

	optimizer, err := optim.NewAdam([]*param{x}, optim.AdamConfig{LR: 0.001}, backend)
	require.NoError(t, err)

	setGrad(t, backend, x, 1.0)
	require.NoError(t, optimizer.Step())

	// m_hat = v_hat = 1 after bias correction, so x = 1 - 0.001 * 1 / (1 + eps)
	if actual := x.Tensor().Data()[0]; !floatEqual(actual, 0.999, 1e-6) {
		t.Errorf("Adam first step: got %f, want %f", actual, 0.999)
	}
	assert.Equal(t, 1, optimizer.GetTimestep())
	assert.Equal(t, [2]float32{0.9, 0.999}, optimizer.Betas())
}

func TestAdam_InvalidConfig(t *testing.T) {
	backend := cpu.New()
	params := []*param{newParam(t, backend, "x", 1)}

	_, err := optim.NewAdam(params, optim.AdamConfig{Betas: [2]float32{1.0, 0.999}}, backend)
	require.Error(t, err)

	_, err = optim.NewAdam(params, optim.AdamConfig{Eps: -1}, backend)
	require.Error(t, err)

	_, err = optim.NewAdam(params, optim.AdamConfig{LR: -0.1}, backend)
	var argErr *optim.InvalidArgumentError
	require.True(t, errors.As(err, &argErr))
	assert.Equal(t, optim.KeyLR, argErr.Name)
}

func TestAdam_StateRoundTrip(t *testing.T) {
	backend := cpu.New()
	path := filepath.Join(t.TempDir(), "adam.safetensors")

	a := newParam(t, backend, "a", 1, 2)
	b := newParam(t, backend, "b", 3)
	src, err := optim.NewAdam([]*param{a, b}, optim.AdamConfig{LR: 0.01}, backend)
	require.NoError(t, err)

	setGrad(t, backend, a, 0.5, -0.5)
	setGrad(t, backend, b, 2)
	require.NoError(t, src.Step())
	require.NoError(t, src.Step())
	require.NoError(t, optim.SaveState(path, src, map[string]string{"client": "7"}))

	// Same weights, fresh optimizer with restored moments.
	a2 := newParam(t, backend, "a", a.Tensor().Data()...)
	b2 := newParam(t, backend, "b", b.Tensor().Data()...)
	dst, err := optim.NewAdam([]*param{a2, b2}, optim.AdamConfig{LR: 0.01}, backend)
	require.NoError(t, err)

	meta, err := optim.LoadState(path, dst, tensor.CPU)
	require.NoError(t, err)
	assert.Equal(t, "7", meta["client"])
	assert.Equal(t, 2, dst.GetTimestep())

	setGrad(t, backend, a2, 0.5, -0.5)
	setGrad(t, backend, b2, 2)
	require.NoError(t, src.Step())
	require.NoError(t, dst.Step())

	assert.Equal(t, a.Tensor().Data(), a2.Tensor().Data())
	assert.Equal(t, b.Tensor().Data(), b2.Tensor().Data())
}

func TestAdam_LoadStateDictShapeMismatch(t *testing.T) {
	backend := cpu.New()
	opt, err := optim.NewAdam([]*param{newParam(t, backend, "x", 1, 2)}, optim.AdamConfig{}, backend)
	require.NoError(t, err)

	err = opt.LoadStateDict(map[string]*tensor.RawTensor{"exp_avg.0": raw(t, 1)})
	require.Error(t, err)
	assert.True(t, errors.Is(err, optim.ErrShapeMismatch), "got %v", err)

	err = opt.LoadStateDict(map[string]*tensor.RawTensor{"step": raw(t, 1, 2)})
	assert.True(t, errors.Is(err, optim.ErrShapeMismatch), "got %v", err)
	assert.Equal(t, 0, opt.GetTimestep())
}

func TestSGD_LoadStateDictShapeMismatch(t *testing.T) {
	backend := cpu.New()
	opt, err := optim.NewSGD([]*param{newParam(t, backend, "x", 1, 2)}, optim.SGDConfig{LR: 0.1, Momentum: 0.9}, backend)
	require.NoError(t, err)

	err = opt.LoadStateDict(map[string]*tensor.RawTensor{"velocity.0": raw(t, 1, 2, 3)})
	require.Error(t, err)
	assert.True(t, errors.Is(err, optim.ErrShapeMismatch), "got %v", err)
}

func TestParamGroups_Overrides(t *testing.T) {
	backend := cpu.New()
	a := newParam(t, backend, "a", 1)
	b := newParam(t, backend, "b", 1)

	optimizer, err := optim.NewSGD([]*param{a}, optim.SGDConfig{LR: 0.1}, backend)
	require.NoError(t, err)
	require.NoError(t, optimizer.AddParamGroup([]*param{b}, map[string]float32{optim.KeyLR: 0.5}))

	groups := optimizer.ParamGroups()
	require.Len(t, groups, 2)
	assert.Equal(t, float32(0.1), groups[0].LR())
	assert.Equal(t, float32(0.5), groups[1].LR())
	assert.Equal(t, []*param{a, b}, optimizer.Params())

	setGrad(t, backend, a, 1)
	setGrad(t, backend, b, 1)
	require.NoError(t, optimizer.Step())
	assert.InDelta(t, 0.9, float64(a.Tensor().Data()[0]), 1e-6)
	assert.InDelta(t, 0.5, float64(b.Tensor().Data()[0]), 1e-6)

	optimizer.SetLR(0.2)
	assert.Equal(t, float32(0.2), optimizer.GetLR())
	assert.Equal(t, float32(0.2), groups[1].LR())

	optimizer.ZeroGrad()
	assert.Nil(t, a.Grad())
	assert.Nil(t, b.Grad())
}

func TestParamGroups_RejectsUnknownOrNegative(t *testing.T) {
	backend := cpu.New()
	optimizer, err := optim.NewSGD([]*param{newParam(t, backend, "a", 1)}, optim.SGDConfig{}, backend)
	require.NoError(t, err)
	assert.Equal(t, float32(0.01), optimizer.GetLR())

	require.Error(t, optimizer.AddParamGroup(nil, map[string]float32{optim.KeyMu: 1}))
	require.Error(t, optimizer.AddParamGroup(nil, map[string]float32{optim.KeyLR: -1}))
	assert.Len(t, optimizer.ParamGroups(), 1)
}

func TestStep_GradientShapeMismatch(t *testing.T) {
	backend := cpu.New()
	x := newParam(t, backend, "x", 1, 2)
	optimizer, err := optim.NewSGD([]*param{x}, optim.SGDConfig{LR: 0.1}, backend)
	require.NoError(t, err)

	setGrad(t, backend, x, 1)
	err = optimizer.Step()
	assert.True(t, errors.Is(err, optim.ErrShapeMismatch))
	assert.Equal(t, []float32{1, 2}, x.Tensor().Data())
}
