package fedsim

import (
	"context"
	"fmt"
	"os"
	"path/filepath"
	"strconv"
	"strings"

	"github.com/cenkalti/backoff/v4"
	"github.com/pkg/errors"

	"github.com/born-ml/fedoptim/internal/serialization"
	"github.com/born-ml/fedoptim/internal/tensor"
)

// Checkpoint tensor name prefixes.
const (
	globalPrefix  = "global."
	controlPrefix = "control."
)

// Checkpoint is the server state written after a round.
type Checkpoint struct {
	RunID     string
	Algorithm Algorithm
	Round     int
	Global    map[string]*tensor.RawTensor // Global model by parameter name
	Control   map[string]*tensor.RawTensor // SCAFFOLD server control variate, if any
}

// checkpoint writes the global state of round to cfg.CheckpointDir,
// retrying transient write failures.
func (s *server) checkpoint(ctx context.Context, runID string, round int) (string, error) {
	if err := os.MkdirAll(s.cfg.CheckpointDir, 0o750); err != nil {
		return "", errors.Wrap(err, "create checkpoint dir")
	}

	tensors := make(map[string]*tensor.RawTensor, 2*len(s.names))
	for i, name := range s.names {
		tensors[globalPrefix+name] = s.global[i]
		if s.control != nil {
			tensors[controlPrefix+name] = s.control[i]
		}
	}
	metadata := map[string]string{
		"run_id":    runID,
		"algorithm": string(s.cfg.Algorithm),
		"round":     strconv.Itoa(round),
	}

	path := filepath.Join(s.cfg.CheckpointDir, fmt.Sprintf("round-%04d.safetensors", round))
	policy := backoff.WithContext(backoff.WithMaxRetries(backoff.NewExponentialBackOff(), 3), ctx)
	err := backoff.Retry(func() error {
		return serialization.WriteFile(path, tensors, metadata)
	}, policy)
	if err != nil {
		return "", errors.Wrapf(err, "write checkpoint %s", path)
	}
	return path, nil
}

// LoadCheckpoint reads a checkpoint written during Run.
func LoadCheckpoint(path string) (*Checkpoint, error) {
	f, err := serialization.ReadFile(path, tensor.CPU)
	if err != nil {
		return nil, errors.Wrap(err, "load checkpoint")
	}

	round, err := strconv.Atoi(f.Metadata["round"])
	if err != nil {
		return nil, errors.Wrapf(err, "checkpoint %s: invalid round", path)
	}
	ckpt := &Checkpoint{
		RunID:     f.Metadata["run_id"],
		Algorithm: Algorithm(f.Metadata["algorithm"]),
		Round:     round,
		Global:    make(map[string]*tensor.RawTensor),
		Control:   make(map[string]*tensor.RawTensor),
	}
	for name, t := range f.Tensors {
		if param, ok := strings.CutPrefix(name, globalPrefix); ok {
			ckpt.Global[param] = t
		} else if param, ok := strings.CutPrefix(name, controlPrefix); ok {
			ckpt.Control[param] = t
		}
	}
	if len(ckpt.Global) == 0 {
		return nil, errors.Errorf("checkpoint %s holds no global model", path)
	}
	return ckpt, nil
}
