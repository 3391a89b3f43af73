package fedsim

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/born-ml/fedoptim/internal/backend/cpu"
)

// With zero initial controls, option II gives c_i = (x - y_i) / (K * lr),
// and a single client moves the server control and model by exactly its
// deltas.
func TestScaffold_OptionIIControlUpdate(t *testing.T) {
	cfg := DefaultConfig()
	cfg.Algorithm = Scaffold
	cfg.Clients = 1
	cfg.LocalEpochs = 2

	s := newServer(cfg, cpu.New(), GenerateClients(cfg))
	c := s.clients[0]
	x := cloneAll(s.global)

	u, err := s.train(context.Background(), c)
	require.NoError(t, err)

	batches := (c.data.Len() + cfg.BatchSize - 1) / cfg.BatchSize
	steps := float64(batches * cfg.LocalEpochs)
	scale := 1 / (steps * float64(cfg.LR))

	for i := range x {
		xs, ys := x[i].AsFloat32(), u.params[i].AsFloat32()
		ci := c.control[i].AsFloat32()
		dc := u.dControl[i].AsFloat32()
		for j := range xs {
			want := float64(xs[j]-ys[j]) * scale
			assert.InDelta(t, want, float64(ci[j]), 1e-4)
			assert.InDelta(t, want, float64(dc[j]), 1e-4)
		}
	}

	s.aggregate([]update{u})
	for i := range x {
		assert.InDeltaSlice(t, u.params[i].AsFloat32(), s.global[i].AsFloat32(), 1e-6)
		assert.InDeltaSlice(t, c.control[i].AsFloat32(), s.control[i].AsFloat32(), 1e-6)
	}
}

func TestAggregate_WeightedAverage(t *testing.T) {
	cfg := DefaultConfig()
	cfg.Features = 1
	s := newServer(cfg, cpu.New(), GenerateClients(cfg))

	a := cloneAll(s.global)
	b := cloneAll(s.global)
	a[0].AsFloat32()[0], a[1].AsFloat32()[0] = 1, 2
	b[0].AsFloat32()[0], b[1].AsFloat32()[0] = 4, 8

	s.aggregate([]update{{weight: 2, params: a}, {weight: 1, params: b}})

	assert.InDelta(t, 2.0, float64(s.global[0].AsFloat32()[0]), 1e-6) // (2*1 + 4) / 3
	assert.InDelta(t, 4.0, float64(s.global[1].AsFloat32()[0]), 1e-6) // (2*2 + 8) / 3
}

func TestAggregate_PFedMeBlend(t *testing.T) {
	cfg := DefaultConfig()
	cfg.Algorithm = PFedMe
	cfg.Features = 1
	cfg.Beta = 0.25
	s := newServer(cfg, cpu.New(), GenerateClients(cfg))
	s.global[0].AsFloat32()[0] = 4

	up := cloneAll(s.global)
	up[0].AsFloat32()[0] = 8
	s.aggregate([]update{{weight: 1, params: up}})

	// 0.75*4 + 0.25*8
	assert.InDelta(t, 5.0, float64(s.global[0].AsFloat32()[0]), 1e-6)
}
