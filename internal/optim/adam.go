package optim

import (
	"fmt"
	"math"

	"github.com/pkg/errors"

	"github.com/born-ml/fedoptim/internal/nn"
	"github.com/born-ml/fedoptim/internal/tensor"
)

// Adam implements the Adam (Adaptive Moment Estimation) optimizer.
//
// Update rule:
//
//	m_t = beta1 * m_{t-1} + (1-beta1) * gradient       // First moment
//	v_t = beta2 * v_{t-1} + (1-beta2) * gradient²      // Second moment
//	m_hat = m_t / (1 - beta1^t)                        // Bias correction
//	v_hat = v_t / (1 - beta2^t)                        // Bias correction
//	param = param - lr * m_hat / (sqrt(v_hat) + eps)  // Parameter update
//
// Moments are created lazily, one pair per parameter, on the parameter's
// first update and persist across steps. Adam is usable on its own and is
// the adaptive pass of PFedMe.
//
// Reference: "Adam: A Method for Stochastic Optimization" (Kingma & Ba, 2014)
type Adam[B tensor.Backend] struct {
	base[B]
	beta1 float32
	beta2 float32
	eps   float32
	t     int                                             // Timestep for bias correction
	m     map[*nn.Parameter[B]]*tensor.Tensor[float32, B] // First moment estimates
	v     map[*nn.Parameter[B]]*tensor.Tensor[float32, B] // Second moment estimates
}

// AdamConfig holds configuration for Adam optimizer.
type AdamConfig struct {
	LR    float32    // Learning rate (default: 0.001)
	Betas [2]float32 // Coefficients for computing running averages (default: [0.9, 0.999])
	Eps   float32    // Term for numerical stability (default: 1e-8)
}

func (c *AdamConfig) setDefaults(lr float32) {
	if c.LR == 0 {
		c.LR = lr
	}
	if c.Betas[0] == 0 {
		c.Betas[0] = 0.9
	}
	if c.Betas[1] == 0 {
		c.Betas[1] = 0.999
	}
	if c.Eps == 0 {
		c.Eps = 1e-8
	}
}

func (c AdamConfig) validate() error {
	if err := checkBetas(c.Betas); err != nil {
		return err
	}
	return checkPositive("eps", c.Eps)
}

// NewAdam creates a new Adam optimizer with a single parameter group.
//
// Default hyperparameters:
//   - LR: 0.001
//   - Beta1: 0.9
//   - Beta2: 0.999
//   - Eps: 1e-8
func NewAdam[B tensor.Backend](params []*nn.Parameter[B], config AdamConfig, backend B) (*Adam[B], error) {
	config.setDefaults(0.001)
	if err := config.validate(); err != nil {
		return nil, err
	}

	b, err := newBase(params, map[string]float32{KeyLR: config.LR}, backend)
	if err != nil {
		return nil, err
	}
	return newAdamFromBase(b, config), nil
}

func newAdamFromBase[B tensor.Backend](b base[B], config AdamConfig) *Adam[B] {
	return &Adam[B]{
		base:  b,
		beta1: config.Betas[0],
		beta2: config.Betas[1],
		eps:   config.Eps,
		m:     make(map[*nn.Parameter[B]]*tensor.Tensor[float32, B]),
		v:     make(map[*nn.Parameter[B]]*tensor.Tensor[float32, B]),
	}
}

// Step performs a single optimization step using Adam algorithm.
//
// Parameters with no gradient are skipped.
func (a *Adam[B]) Step() error {
	if err := a.checkGrads(); err != nil {
		return err
	}
	a.step()
	return nil
}

// step runs the Adam update; gradients must already be validated.
func (a *Adam[B]) step() {
	a.t++

	// bias_correction1 = 1 - beta1^t
	// bias_correction2 = 1 - beta2^t
	biasCorrection1 := float32(1.0 - math.Pow(float64(a.beta1), float64(a.t)))
	biasCorrection2 := float32(1.0 - math.Pow(float64(a.beta2), float64(a.t)))

	a.each(func(_ int, g *ParamGroup[B], p *nn.Parameter[B], grad *tensor.Tensor[float32, B]) {
		m, ok := a.m[p]
		if !ok {
			m = tensor.Zeros[float32](p.Tensor().Shape(), a.backend)
			a.m[p] = m
		}
		v, ok := a.v[p]
		if !ok {
			v = tensor.Zeros[float32](p.Tensor().Shape(), a.backend)
			a.v[p] = v
		}
		a.updateParameter(p, grad, m, v, g.LR(), biasCorrection1, biasCorrection2)
	})
}

// updateParameter performs Adam update for a single parameter.
func (a *Adam[B]) updateParameter(
	param *nn.Parameter[B],
	grad *tensor.Tensor[float32, B],
	m, v *tensor.Tensor[float32, B],
	lr, biasCorrection1, biasCorrection2 float32,
) {
	gradData := grad.Data()
	mData := m.Data()
	vData := v.Data()
	paramData := param.Tensor().Data()

	for i := range paramData {
		g := gradData[i]

		mData[i] = a.beta1*mData[i] + (1.0-a.beta1)*g
		vData[i] = a.beta2*vData[i] + (1.0-a.beta2)*g*g

		mHat := mData[i] / biasCorrection1
		vHat := vData[i] / biasCorrection2

		paramData[i] -= lr * mHat / (float32(math.Sqrt(float64(vHat))) + a.eps)
	}
}

// GetTimestep returns the current timestep.
func (a *Adam[B]) GetTimestep() int {
	return a.t
}

// Betas returns the moment decay coefficients.
func (a *Adam[B]) Betas() [2]float32 {
	return [2]float32{a.beta1, a.beta2}
}

// StateDict returns the optimizer state for serialization.
//
// State keys: "step" -> scalar timestep, "exp_avg.{i}" and "exp_avg_sq.{i}"
// -> first and second moments of the i-th parameter (flattened group order).
func (a *Adam[B]) StateDict() map[string]*tensor.RawTensor {
	stateDict := make(map[string]*tensor.RawTensor)

	step, err := tensor.FromFloat32([]float32{float32(a.t)}, tensor.Shape{1}, a.backend.Device())
	if err != nil {
		panic(err)
	}
	stateDict["step"] = step

	for i, param := range a.Params() {
		if m, ok := a.m[param]; ok {
			stateDict[fmt.Sprintf("exp_avg.%d", i)] = m.Raw()
		}
		if v, ok := a.v[param]; ok {
			stateDict[fmt.Sprintf("exp_avg_sq.%d", i)] = v.Raw()
		}
	}
	return stateDict
}

// LoadStateDict restores the timestep and moment estimates.
func (a *Adam[B]) LoadStateDict(stateDict map[string]*tensor.RawTensor) error {
	t := 0
	if step, ok := stateDict["step"]; ok {
		if step.DType() != tensor.Float32 || step.NumElements() != 1 {
			return errors.Wrapf(ErrShapeMismatch, "adam step tensor %s", step)
		}
		t = int(step.AsFloat32()[0])
	}

	m := make(map[*nn.Parameter[B]]*tensor.Tensor[float32, B])
	v := make(map[*nn.Parameter[B]]*tensor.Tensor[float32, B])
	for i, param := range a.Params() {
		for key, dst := range map[string]map[*nn.Parameter[B]]*tensor.Tensor[float32, B]{
			fmt.Sprintf("exp_avg.%d", i):    m,
			fmt.Sprintf("exp_avg_sq.%d", i): v,
		} {
			raw, ok := stateDict[key]
			if !ok {
				continue
			}
			if !raw.SameLayout(param.Tensor().Raw()) {
				return errors.Wrapf(ErrShapeMismatch, "%s: expected %v, got %v", key, param.Tensor().Shape(), raw.Shape())
			}
			dst[param] = tensor.New[float32, B](raw.Clone(), a.backend)
		}
	}

	a.t, a.m, a.v = t, m, v
	return nil
}
