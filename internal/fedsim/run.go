package fedsim

import (
	"context"
	"log/slog"
	"time"

	"github.com/google/uuid"
	"github.com/pkg/errors"

	"github.com/born-ml/fedoptim/internal/backend/cpu"
	"github.com/born-ml/fedoptim/internal/parallel"
)

// RoundStats summarizes one communication round.
type RoundStats struct {
	Round        int
	Clients      int           // Clients trained this round
	TrainLoss    float64       // Mean local training loss of the trained clients
	GlobalLoss   float64       // Global model loss over all clients' data
	PersonalLoss float64       // Loss of the models clients serve; equals GlobalLoss for non-personalized algorithms
	Duration     time.Duration // Wall time of the round
	Checkpoint   string        // Checkpoint path, if written
}

// Report is the outcome of a simulation run.
type Report struct {
	RunID       string
	Algorithm   Algorithm
	InitialLoss float64 // Global loss before the first round
	Rounds      []RoundStats
}

// Final returns the stats of the last completed round.
func (r *Report) Final() RoundStats {
	if len(r.Rounds) == 0 {
		return RoundStats{GlobalLoss: r.InitialLoss, PersonalLoss: r.InitialLoss}
	}
	return r.Rounds[len(r.Rounds)-1]
}

// Run simulates cfg.Rounds rounds of federated training.
//
// The sampled clients of a round train concurrently. Run stops between
// rounds, or between a client's local epochs, when ctx is done, returning
// the report of the completed rounds together with the context error.
func Run(ctx context.Context, cfg Config) (*Report, error) {
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	logger := cfg.Logger
	if logger == nil {
		logger = slog.New(slog.DiscardHandler)
	}

	backend := cpu.New()
	s := newServer(cfg, backend, GenerateClients(cfg))

	initial, _, err := s.evaluate()
	if err != nil {
		return nil, err
	}
	report := &Report{
		RunID:       uuid.NewString(),
		Algorithm:   cfg.Algorithm,
		InitialLoss: initial,
	}
	logger = logger.With("run", report.RunID, "algorithm", string(cfg.Algorithm))
	logger.Info("simulation started",
		"clients", cfg.Clients,
		"join_clients", cfg.joinClients(),
		"rounds", cfg.Rounds,
		"initial_loss", initial)

	for round := 1; round <= cfg.Rounds; round++ {
		if err := ctx.Err(); err != nil {
			return report, errors.Wrapf(err, "round %d", round)
		}
		start := time.Now()

		selected := s.sample()
		updates := make([]update, len(selected))
		errs := make([]error, len(selected))
		parallel.For(len(selected), func(i int) {
			updates[i], errs[i] = s.train(ctx, s.clients[selected[i]])
		}, parallel.PerItem())
		for _, err := range errs {
			if err != nil {
				return report, errors.Wrapf(err, "round %d", round)
			}
		}

		s.aggregate(updates)

		stats := RoundStats{Round: round, Clients: len(selected)}
		for _, u := range updates {
			stats.TrainLoss += u.loss / float64(len(updates))
		}
		if stats.GlobalLoss, stats.PersonalLoss, err = s.evaluate(); err != nil {
			return report, errors.Wrapf(err, "round %d: evaluate", round)
		}
		if cfg.CheckpointDir != "" {
			if stats.Checkpoint, err = s.checkpoint(ctx, report.RunID, round); err != nil {
				return report, err
			}
		}
		stats.Duration = time.Since(start)
		report.Rounds = append(report.Rounds, stats)

		logger.Info("round complete",
			"round", round,
			"train_loss", stats.TrainLoss,
			"global_loss", stats.GlobalLoss,
			"personal_loss", stats.PersonalLoss,
			"duration", stats.Duration)
	}

	final := report.Final()
	logger.Info("simulation finished", "global_loss", final.GlobalLoss, "personal_loss", final.PersonalLoss)
	return report, nil
}
