package optim

import (
	"github.com/pkg/errors"

	"github.com/born-ml/fedoptim/internal/serialization"
	"github.com/born-ml/fedoptim/internal/tensor"
)

// SaveState writes the optimizer's state dict to a SafeTensors file.
func SaveState(path string, opt Optimizer, metadata map[string]string) error {
	return errors.Wrap(serialization.WriteFile(path, opt.StateDict(), metadata), "save optimizer state")
}

// LoadState restores state written by SaveState, placing tensors on device.
// It returns the file's metadata.
func LoadState(path string, opt Optimizer, device tensor.Device) (map[string]string, error) {
	f, err := serialization.ReadFile(path, device)
	if err != nil {
		return nil, errors.Wrap(err, "load optimizer state")
	}
	if err := opt.LoadStateDict(f.Tensors); err != nil {
		return nil, errors.Wrap(err, "load optimizer state")
	}
	return f.Metadata, nil
}
