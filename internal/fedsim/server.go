package fedsim

import (
	"math/rand/v2"
	"slices"

	"github.com/pkg/errors"
	"gonum.org/v1/gonum/floats"
	"gonum.org/v1/gonum/stat"

	"github.com/born-ml/fedoptim/internal/backend/cpu"
	"github.com/born-ml/fedoptim/internal/nn"
	"github.com/born-ml/fedoptim/internal/optim"
	"github.com/born-ml/fedoptim/internal/tensor"
)

// server holds the global state of a simulation.
type server struct {
	cfg     Config
	backend *cpu.CPUBackend
	clients []*client
	rng     *rand.Rand

	names   []string            // Parameter names, in model order
	global  []*tensor.RawTensor // Global model
	control []*tensor.RawTensor // SCAFFOLD server control variate
}

func newServer(cfg Config, backend *cpu.CPUBackend, data []*Dataset) *server {
	template := nn.NewLinear(cfg.Features, backend)
	s := &server{
		cfg:     cfg,
		backend: backend,
		rng:     rand.New(rand.NewPCG(cfg.Seed, 1<<33)),
		global:  nn.Snapshot(template.Parameters()),
	}
	for _, p := range template.Parameters() {
		s.names = append(s.names, p.Name())
	}
	for k, d := range data {
		s.clients = append(s.clients, newClient(k, d, cfg, backend))
	}
	if cfg.Algorithm == Scaffold {
		s.control = zerosLike(s.global, backend)
	}
	return s
}

// sample returns the sorted indices of the clients joining this round.
func (s *server) sample() []int {
	selected := s.rng.Perm(len(s.clients))[:s.cfg.joinClients()]
	slices.Sort(selected)
	return selected
}

// aggregate folds the round's uploads into the global state.
func (s *server) aggregate(updates []update) {
	switch s.cfg.Algorithm {
	case Scaffold:
		// x += server_lr * mean(y_i - x), c += sum(dc_i) / N
		next := cloneAll(s.global)
		n := float64(len(updates))
		for _, u := range updates {
			for i := range next {
				s.backend.AddScaled(next[i], s.backend.Sub(u.params[i], s.global[i]), float64(s.cfg.ServerLR)/n)
				s.backend.AddScaled(s.control[i], u.dControl[i], 1/float64(len(s.clients)))
			}
		}
		s.global = next
	case PFedMe:
		// x = (1 - beta) * x + beta * avg
		beta := float64(s.cfg.Beta)
		if beta == 0 {
			beta = 1
		}
		avg := s.average(updates)
		for i := range s.global {
			s.backend.Scale(s.global[i], 1-beta)
			s.backend.AddScaled(s.global[i], avg[i], beta)
		}
	default:
		s.global = s.average(updates)
	}
}

// average returns the sample-weighted mean of the uploaded models.
func (s *server) average(updates []update) []*tensor.RawTensor {
	weights := make([]float64, len(updates))
	for k, u := range updates {
		weights[k] = u.weight
	}
	total := floats.Sum(weights)

	out := make([]*tensor.RawTensor, len(s.global))
	for i, g := range s.global {
		acc := make([]float64, g.NumElements())
		for k, u := range updates {
			floats.AddScaled(acc, weights[k]/total, toFloat64(u.params[i]))
		}
		out[i] = fromFloat64(acc, g)
	}
	return out
}

// evaluate returns the sample-weighted mean loss of the global model and of
// the clients' personalized models over every client's data.
func (s *server) evaluate() (global, personal float64, err error) {
	m := nn.NewLinear(s.cfg.Features, s.backend)
	if err := nn.Restore(m.Parameters(), s.global); err != nil {
		return 0, 0, err
	}

	weights := make([]float64, len(s.clients))
	globalLosses := make([]float64, len(s.clients))
	personalLosses := make([]float64, len(s.clients))
	for k, c := range s.clients {
		weights[k] = float64(c.data.Len())
		globalLosses[k] = m.Loss(c.data.X, c.data.Y)
		if personalLosses[k], err = s.personalLoss(c, globalLosses[k]); err != nil {
			return 0, 0, err
		}
	}
	return stat.Mean(globalLosses, weights), stat.Mean(personalLosses, weights), nil
}

// personalLoss evaluates the model client c would actually serve.
func (s *server) personalLoss(c *client, globalLoss float64) (float64, error) {
	switch s.cfg.Algorithm {
	case PerFedAvg:
		// One adaptation step on the full local data.
		adapted := nn.NewLinear(s.cfg.Features, s.backend)
		if err := nn.Restore(adapted.Parameters(), s.global); err != nil {
			return 0, err
		}
		opt, err := optim.NewPerAvg(adapted.Parameters(), optim.Config{LR: s.cfg.LR}, s.backend)
		if err != nil {
			return 0, err
		}
		backward(adapted, c.data)
		if err := opt.Step(0); err != nil {
			return 0, errors.Wrapf(err, "client %d: adapt", c.id)
		}
		return adapted.Loss(c.data.X, c.data.Y), nil
	case PFedMe:
		if c.personal != nil {
			return c.personal.Loss(c.data.X, c.data.Y), nil
		}
	case APFL:
		if c.personal != nil {
			return c.mixedLoss(float64(s.cfg.Alpha)), nil
		}
	}
	return globalLoss, nil
}

func zerosLike(ts []*tensor.RawTensor, backend *cpu.CPUBackend) []*tensor.RawTensor {
	out := make([]*tensor.RawTensor, len(ts))
	for i, t := range ts {
		out[i] = tensor.ZerosLike(t, backend)
	}
	return out
}

func cloneAll(ts []*tensor.RawTensor) []*tensor.RawTensor {
	out := make([]*tensor.RawTensor, len(ts))
	for i, t := range ts {
		out[i] = t.Clone()
	}
	return out
}

func toFloat64(t *tensor.RawTensor) []float64 {
	src := t.AsFloat32()
	out := make([]float64, len(src))
	for i, v := range src {
		out[i] = float64(v)
	}
	return out
}

// fromFloat64 returns a float32 tensor shaped like like holding data.
func fromFloat64(data []float64, like *tensor.RawTensor) *tensor.RawTensor {
	out := like.Clone()
	dst := out.AsFloat32()
	for i, v := range data {
		dst[i] = float32(v)
	}
	return out
}
