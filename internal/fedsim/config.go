// Package fedsim runs single-process federated learning simulations that
// drive the optimizers in internal/optim through their client loops.
//
// Clients hold synthetic non-IID linear regression data. Each round the
// server samples clients, broadcasts the global model, trains the sampled
// clients concurrently and aggregates their uploads.
//
// Supported algorithms:
//   - fedavg: SGD clients, sample-weighted averaging
//   - fedprox: PerturbedGD clients anchored to the global model
//   - scaffold: SCAFFOLD clients with option-II control updates
//   - perfedavg: two-stage PerAvg steps (first-order Per-FedAvg)
//   - pfedme: PFedMe personalized models pulling local models
//   - apfl: APFL steps on global and mixed personalized models
package fedsim

import (
	"fmt"
	"log/slog"
	"strings"

	"github.com/pkg/errors"
)

// Algorithm names a federated training algorithm.
type Algorithm string

// Supported algorithms.
const (
	FedAvg    Algorithm = "fedavg"
	FedProx   Algorithm = "fedprox"
	Scaffold  Algorithm = "scaffold"
	PerFedAvg Algorithm = "perfedavg"
	PFedMe    Algorithm = "pfedme"
	APFL      Algorithm = "apfl"
)

// Algorithms returns every supported algorithm.
func Algorithms() []Algorithm {
	return []Algorithm{FedAvg, FedProx, Scaffold, PerFedAvg, PFedMe, APFL}
}

// ParseAlgorithm converts a name (case-insensitive) into an Algorithm.
func ParseAlgorithm(name string) (Algorithm, error) {
	a := Algorithm(strings.ToLower(strings.TrimSpace(name)))
	for _, known := range Algorithms() {
		if a == known {
			return a, nil
		}
	}
	return "", errors.Wrapf(ErrInvalidConfig, "unknown algorithm %q", name)
}

// Personalized reports whether the algorithm keeps per-client models.
func (a Algorithm) Personalized() bool {
	return a == PerFedAvg || a == PFedMe || a == APFL
}

// ErrInvalidConfig is returned by Config.Validate.
var ErrInvalidConfig = errors.New("fedsim: invalid config")

// Config configures a simulation run.
type Config struct {
	Algorithm Algorithm

	Rounds           int     // Communication rounds
	Clients          int     // Total number of clients
	JoinRatio        float64 // Fraction of clients sampled per round, in (0, 1]
	LocalEpochs      int     // Passes over local data per round
	BatchSize        int     // Mini-batch size
	Features         int     // Input features of the regression task
	SamplesPerClient int     // Mean number of training samples per client
	Heterogeneity    float64 // Spread of client models and feature shifts

	LR            float32 // Client learning rate
	Mu            float32 // FedProx proximal coefficient, pFedMe L2 coefficient
	Lamda         float32 // pFedMe pull toward the local model
	Beta          float32 // Per-FedAvg meta step rate (0 uses LR); pFedMe server blend (0 means 1)
	Alpha         float32 // APFL mixing coefficient, in [0, 1]
	PersonalSteps int     // pFedMe inner steps per batch
	ServerLR      float32 // SCAFFOLD global step size

	Seed          uint64
	CheckpointDir string       // Write a SafeTensors checkpoint per round when set
	Logger        *slog.Logger // Defaults to a discarding logger
}

// DefaultConfig returns a small configuration that trains in well under a
// second.
func DefaultConfig() Config {
	return Config{
		Algorithm:        FedAvg,
		Rounds:           20,
		Clients:          10,
		JoinRatio:        1,
		LocalEpochs:      1,
		BatchSize:        10,
		Features:         5,
		SamplesPerClient: 50,
		Heterogeneity:    0.5,
		LR:               0.05,
		Mu:               0.01,
		Lamda:            15,
		Alpha:            0.5,
		PersonalSteps:    5,
		ServerLR:         1,
		Seed:             1,
	}
}

// Validate reports the first invalid field.
func (c Config) Validate() error {
	if _, err := ParseAlgorithm(string(c.Algorithm)); err != nil {
		return err
	}

	checks := []struct {
		ok    bool
		field string
		value any
	}{
		{c.Rounds > 0, "Rounds", c.Rounds},
		{c.Clients > 0, "Clients", c.Clients},
		{c.JoinRatio > 0 && c.JoinRatio <= 1, "JoinRatio", c.JoinRatio},
		{c.LocalEpochs > 0, "LocalEpochs", c.LocalEpochs},
		{c.BatchSize > 0, "BatchSize", c.BatchSize},
		{c.Features > 0, "Features", c.Features},
		{c.SamplesPerClient > 1, "SamplesPerClient", c.SamplesPerClient},
		{c.Heterogeneity >= 0, "Heterogeneity", c.Heterogeneity},
		{c.LR > 0, "LR", c.LR},
		{c.Mu >= 0, "Mu", c.Mu},
		{c.Lamda >= 0, "Lamda", c.Lamda},
		{c.Beta >= 0, "Beta", c.Beta},
		{c.Alpha >= 0 && c.Alpha <= 1, "Alpha", c.Alpha},
		{c.PersonalSteps > 0, "PersonalSteps", c.PersonalSteps},
		{c.ServerLR > 0, "ServerLR", c.ServerLR},
	}
	for _, check := range checks {
		if !check.ok {
			return errors.Wrap(ErrInvalidConfig, fmt.Sprintf("%s=%v", check.field, check.value))
		}
	}
	return nil
}

// joinClients returns the number of clients sampled per round.
func (c Config) joinClients() int {
	return max(int(float64(c.Clients)*c.JoinRatio), 1)
}
