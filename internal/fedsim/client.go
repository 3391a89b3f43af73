package fedsim

import (
	"context"
	"math/rand/v2"

	"github.com/pkg/errors"
	"gonum.org/v1/gonum/mat"

	"github.com/born-ml/fedoptim/internal/backend/cpu"
	"github.com/born-ml/fedoptim/internal/nn"
	"github.com/born-ml/fedoptim/internal/optim"
	"github.com/born-ml/fedoptim/internal/tensor"
)

type model = nn.Linear[*cpu.CPUBackend]

// update is what a client uploads after local training.
type update struct {
	weight   float64             // Number of local samples
	params   []*tensor.RawTensor // Trained local model
	dControl []*tensor.RawTensor // SCAFFOLD control variate change
	loss     float64             // Mean training loss over local steps
}

// client owns its data, models and optimizer state. A client is trained by
// at most one goroutine at a time.
type client struct {
	id   int
	data *Dataset
	rng  *rand.Rand

	local    *model                         // Copy of the global model trained each round
	personal *model                         // pFedMe personalized model, APFL mixed-in model
	control  []*tensor.RawTensor            // SCAFFOLD client control variate
	pfedme   *optim.PFedMe[*cpu.CPUBackend] // Persists Adam moments across rounds
}

func newClient(id int, data *Dataset, cfg Config, backend *cpu.CPUBackend) *client {
	return &client{
		id:    id,
		data:  data,
		rng:   rand.New(rand.NewPCG(cfg.Seed, 1<<32+uint64(id))),
		local: nn.NewLinear(cfg.Features, backend),
	}
}

type lossMeter struct {
	sum float64
	n   int
}

func (m *lossMeter) add(loss float64) {
	m.sum += loss
	m.n++
}

func (m *lossMeter) mean() float64 {
	if m.n == 0 {
		return 0
	}
	return m.sum / float64(m.n)
}

// backward attaches the MSE gradients of m on b and returns the loss.
func backward(m *model, b *Dataset) float64 {
	loss, grads := m.Backward(b.X, b.Y)
	nn.AttachGradients(m.Parameters(), grads)
	return loss
}

// mixed returns alpha*personal(x) + (1-alpha)*local(x).
func (c *client) mixed(x *mat.Dense, alpha float64) *mat.VecDense {
	out := c.personal.Forward(x)
	out.ScaleVec(alpha, out)
	out.AddScaledVec(out, 1-alpha, c.local.Forward(x))
	return out
}

func (c *client) mixedLoss(alpha float64) float64 {
	residual := c.mixed(c.data.X, alpha)
	residual.SubVec(residual, c.data.Y)
	return 0.5 * mat.Dot(residual, residual) / float64(residual.Len())
}

func (c *client) upload(meter lossMeter) update {
	return update{
		weight: float64(c.data.Len()),
		params: nn.Snapshot(c.local.Parameters()),
		loss:   meter.mean(),
	}
}

// forEachEpoch calls fn with a fresh shuffle of the local data once per
// local epoch, checking ctx in between.
func (s *server) forEachEpoch(ctx context.Context, c *client, fn func(batches []*Dataset) error) error {
	for range s.cfg.LocalEpochs {
		if err := ctx.Err(); err != nil {
			return errors.Wrapf(err, "client %d", c.id)
		}
		if err := fn(c.data.Batches(s.cfg.BatchSize, c.rng)); err != nil {
			return errors.Wrapf(err, "client %d", c.id)
		}
	}
	return nil
}

func (s *server) forEachBatch(ctx context.Context, c *client, fn func(b *Dataset) error) error {
	return s.forEachEpoch(ctx, c, func(batches []*Dataset) error {
		for _, b := range batches {
			if err := fn(b); err != nil {
				return err
			}
		}
		return nil
	})
}

// train receives the global model on c and runs the configured local
// training.
func (s *server) train(ctx context.Context, c *client) (update, error) {
	if err := nn.Restore(c.local.Parameters(), s.global); err != nil {
		return update{}, errors.Wrapf(err, "client %d: receive global model", c.id)
	}

	switch s.cfg.Algorithm {
	case FedProx:
		return s.trainFedProx(ctx, c)
	case Scaffold:
		return s.trainScaffold(ctx, c)
	case PerFedAvg:
		return s.trainPerFedAvg(ctx, c)
	case PFedMe:
		return s.trainPFedMe(ctx, c)
	case APFL:
		return s.trainAPFL(ctx, c)
	default:
		return s.trainFedAvg(ctx, c)
	}
}

func (s *server) trainFedAvg(ctx context.Context, c *client) (update, error) {
	opt, err := optim.NewSGD(c.local.Parameters(), optim.SGDConfig{LR: s.cfg.LR}, s.backend)
	if err != nil {
		return update{}, err
	}

	var meter lossMeter
	err = s.forEachBatch(ctx, c, func(b *Dataset) error {
		meter.add(backward(c.local, b))
		defer opt.ZeroGrad()
		return opt.Step()
	})
	return c.upload(meter), err
}

func (s *server) trainFedProx(ctx context.Context, c *client) (update, error) {
	opt, err := optim.NewPerturbedGD(c.local.Parameters(), optim.PerturbedConfig{LR: s.cfg.LR, Mu: s.cfg.Mu}, s.backend)
	if err != nil {
		return update{}, err
	}

	var meter lossMeter
	err = s.forEachBatch(ctx, c, func(b *Dataset) error {
		meter.add(backward(c.local, b))
		defer opt.ZeroGrad()
		return opt.Step(s.global, s.backend.Device())
	})
	return c.upload(meter), err
}

func (s *server) trainScaffold(ctx context.Context, c *client) (update, error) {
	if c.control == nil {
		c.control = zerosLike(s.global, s.backend)
	}
	opt, err := optim.NewSCAFFOLD(c.local.Parameters(), optim.Config{LR: s.cfg.LR}, s.backend)
	if err != nil {
		return update{}, err
	}

	var meter lossMeter
	err = s.forEachBatch(ctx, c, func(b *Dataset) error {
		meter.add(backward(c.local, b))
		defer opt.ZeroGrad()
		return opt.Step(s.control, c.control)
	})
	if err != nil {
		return update{}, err
	}

	// Option II: c_i+ = c_i - c + (x - y_i) / (K * lr)
	u := c.upload(meter)
	scale := 1 / (float64(meter.n) * float64(s.cfg.LR))
	u.dControl = make([]*tensor.RawTensor, len(u.params))
	for i, y := range u.params {
		next := c.control[i].Clone()
		s.backend.AddScaled(next, s.control[i], -1)
		s.backend.AddScaled(next, s.backend.Sub(s.global[i], y), scale)
		u.dControl[i] = s.backend.Sub(next, c.control[i])
		c.control[i] = next
	}
	return u, nil
}

// trainPerFedAvg runs first-order Per-FedAvg: an inner step on one batch,
// then the gradient at the adapted point, taken on the next batch, is
// applied to the pre-adaptation weights with rate Beta.
func (s *server) trainPerFedAvg(ctx context.Context, c *client) (update, error) {
	params := c.local.Parameters()
	opt, err := optim.NewPerAvg(params, optim.Config{LR: s.cfg.LR}, s.backend)
	if err != nil {
		return update{}, err
	}

	var meter lossMeter
	err = s.forEachEpoch(ctx, c, func(batches []*Dataset) error {
		for i := 0; i < len(batches); i += 2 {
			first, second := batches[i], batches[(i+1)%len(batches)]
			before := nn.Snapshot(params)

			meter.add(backward(c.local, first))
			if err := opt.Step(0); err != nil {
				return err
			}

			backward(c.local, second)
			if err := nn.Restore(params, before); err != nil {
				return err
			}
			if err := opt.Step(s.cfg.Beta); err != nil {
				return err
			}
			opt.ZeroGrad()
		}
		return nil
	})
	return c.upload(meter), err
}

// trainPFedMe solves the personalized problem with PersonalSteps PFedMe
// steps per batch, then pulls the local model toward the personalized one.
func (s *server) trainPFedMe(ctx context.Context, c *client) (update, error) {
	if c.pfedme == nil {
		personal := nn.NewLinear(s.cfg.Features, s.backend)
		opt, err := optim.NewPFedMe(personal.Parameters(), optim.PFedMeConfig{
			LR:    s.cfg.LR,
			Lamda: s.cfg.Lamda,
			Mu:    s.cfg.Mu,
		}, s.backend)
		if err != nil {
			return update{}, err
		}
		c.personal, c.pfedme = personal, opt
	}
	if err := nn.Restore(c.personal.Parameters(), s.global); err != nil {
		return update{}, err
	}

	local := make([]*tensor.RawTensor, 0, 2)
	for _, p := range c.local.Parameters() {
		local = append(local, p.Tensor().Raw())
	}
	rate := float64(s.cfg.Lamda) * float64(s.cfg.LR)

	var meter lossMeter
	err := s.forEachBatch(ctx, c, func(b *Dataset) error {
		var personalized []*nn.Parameter[*cpu.CPUBackend]
		for k := range s.cfg.PersonalSteps {
			loss := backward(c.personal, b)
			if k == 0 {
				meter.add(loss)
			}
			var err error
			if personalized, err = c.pfedme.Step(local, s.backend.Device()); err != nil {
				return err
			}
			c.pfedme.ZeroGrad()
		}

		// w = w - lamda*lr*(w - theta)
		for i, p := range personalized {
			s.backend.Scale(local[i], 1-rate)
			s.backend.AddScaled(local[i], p.Tensor().Raw(), rate)
		}
		return nil
	})
	return c.upload(meter), err
}

// trainAPFL trains the local copy of the global model and the personal
// model whose alpha-mixture with it is the client's prediction.
func (s *server) trainAPFL(ctx context.Context, c *client) (update, error) {
	if c.personal == nil {
		c.personal = nn.NewLinear(s.cfg.Features, s.backend)
		if err := nn.Restore(c.personal.Parameters(), s.global); err != nil {
			return update{}, err
		}
	}
	optW, err := optim.NewAPFL(c.local.Parameters(), optim.Config{LR: s.cfg.LR}, s.backend)
	if err != nil {
		return update{}, err
	}
	optV, err := optim.NewAPFL(c.personal.Parameters(), optim.Config{LR: s.cfg.LR}, s.backend)
	if err != nil {
		return update{}, err
	}
	alpha := float64(s.cfg.Alpha)

	var meter lossMeter
	err = s.forEachBatch(ctx, c, func(b *Dataset) error {
		meter.add(backward(c.local, b))
		if err := optW.Step(optim.DefaultAPFLBeta, optim.DefaultAPFLNk); err != nil {
			return err
		}
		optW.ZeroGrad()

		// d(mixed loss)/dv = alpha * X^T r / n; alpha is applied by the step.
		residual := c.mixed(b.X, alpha)
		residual.SubVec(residual, b.Y)
		nn.AttachGradients(c.personal.Parameters(), c.personal.BackwardResidual(b.X, residual, 1))
		defer optV.ZeroGrad()
		return optV.Step(s.cfg.Alpha, optim.DefaultAPFLNk)
	})
	return c.upload(meter), err
}
