package tensor

import (
	"fmt"
	"strings"
)

// Device represents the compute device a tensor is placed on.
//
// The zero value is NoDevice, which callers use to signal that no placement
// was requested.
type Device int

// Supported compute devices.
const (
	NoDevice Device = iota
	CPU
	CUDA
	Vulkan
	Metal
	WebGPU
)

// String returns a human-readable device name.
func (d Device) String() string {
	switch d {
	case NoDevice:
		return "None"
	case CPU:
		return "CPU"
	case CUDA:
		return "CUDA"
	case Vulkan:
		return "Vulkan"
	case Metal:
		return "Metal"
	case WebGPU:
		return "WebGPU"
	default:
		return "Unknown"
	}
}

// Valid reports whether d names a real device.
func (d Device) Valid() bool {
	return d >= CPU && d <= WebGPU
}

// ParseDevice converts a device name (case-insensitive) into a Device.
func ParseDevice(name string) (Device, error) {
	switch strings.ToLower(strings.TrimSpace(name)) {
	case "cpu":
		return CPU, nil
	case "cuda", "gpu":
		return CUDA, nil
	case "vulkan":
		return Vulkan, nil
	case "metal", "mps":
		return Metal, nil
	case "webgpu":
		return WebGPU, nil
	default:
		return NoDevice, fmt.Errorf("unknown device %q", name)
	}
}
