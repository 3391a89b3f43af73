package fedsim

import (
	"math/rand/v2"

	"gonum.org/v1/gonum/mat"
)

// Dataset is a regression dataset: one sample per row of X.
type Dataset struct {
	X *mat.Dense
	Y *mat.VecDense
}

// Len returns the number of samples.
func (d *Dataset) Len() int {
	return d.Y.Len()
}

// Batches splits a shuffled copy of d into mini-batches of at most size
// samples.
func (d *Dataset) Batches(size int, rng *rand.Rand) []*Dataset {
	perm := rng.Perm(d.Len())
	batches := make([]*Dataset, 0, (len(perm)+size-1)/size)
	for start := 0; start < len(perm); start += size {
		batches = append(batches, d.subset(perm[start:min(start+size, len(perm))]))
	}
	return batches
}

func (d *Dataset) subset(rows []int) *Dataset {
	_, cols := d.X.Dims()
	x := mat.NewDense(len(rows), cols, nil)
	y := mat.NewVecDense(len(rows), nil)
	for i, r := range rows {
		x.SetRow(i, d.X.RawRowView(r))
		y.SetVec(i, d.Y.AtVec(r))
	}
	return &Dataset{X: x, Y: y}
}

// GenerateClients builds one dataset per client.
//
// All clients share a ground-truth model w* and bias. Client k draws its own
// model w_k = w* + h*N(0, 1) and a feature shift m_k = h*N(0, 1), where h is
// cfg.Heterogeneity, then samples
//
//	x ~ m_k + N(0, I),  y = x·w_k + 0.5 + 0.1*N(0, 1)
//
// Sample counts vary between half and one and a half times
// cfg.SamplesPerClient. Output is fully determined by cfg.Seed.
func GenerateClients(cfg Config) []*Dataset {
	rng := rand.New(rand.NewPCG(cfg.Seed, 0))
	truth := make([]float64, cfg.Features)
	for i := range truth {
		truth[i] = rng.NormFloat64()
	}

	clients := make([]*Dataset, cfg.Clients)
	for k := range clients {
		crng := rand.New(rand.NewPCG(cfg.Seed, uint64(k)+1))

		w := mat.NewVecDense(cfg.Features, nil)
		shift := make([]float64, cfg.Features)
		for i := range truth {
			w.SetVec(i, truth[i]+cfg.Heterogeneity*crng.NormFloat64())
			shift[i] = cfg.Heterogeneity * crng.NormFloat64()
		}

		n := max(cfg.SamplesPerClient/2+crng.IntN(cfg.SamplesPerClient+1), 2)
		x := mat.NewDense(n, cfg.Features, nil)
		for r := 0; r < n; r++ {
			for c := 0; c < cfg.Features; c++ {
				x.Set(r, c, shift[c]+crng.NormFloat64())
			}
		}

		y := mat.NewVecDense(n, nil)
		y.MulVec(x, w)
		for r := 0; r < n; r++ {
			y.SetVec(r, y.AtVec(r)+0.5+0.1*crng.NormFloat64())
		}
		clients[k] = &Dataset{X: x, Y: y}
	}
	return clients
}
