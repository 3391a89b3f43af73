package cpu

import (
	"testing"

	"github.com/born-ml/fedoptim/internal/parallel"
	"github.com/born-ml/fedoptim/internal/tensor"
)

// Helper to check float32 slices are equal within epsilon.
func float32SliceEqual(a, b []float32) bool {
	const epsilon = 1e-6
	if len(a) != len(b) {
		return false
	}
	for i := range a {
		diff := a[i] - b[i]
		if diff < 0 {
			diff = -diff
		}
		if diff > epsilon {
			return false
		}
	}
	return true
}

func mustRaw(t *testing.T, data []float32, shape tensor.Shape) *tensor.RawTensor {
	t.Helper()
	raw, err := tensor.FromFloat32(data, shape, tensor.CPU)
	if err != nil {
		t.Fatalf("FromFloat32: %v", err)
	}
	return raw
}

// TestCPUBackend_New tests backend creation.
func TestCPUBackend_New(t *testing.T) {
	backend := New()
	if backend == nil {
		t.Fatal("New() returned nil")
	}
	if backend.Name() != "CPU" {
		t.Errorf("Expected name 'CPU', got '%s'", backend.Name())
	}
	if backend.Device() != tensor.CPU {
		t.Errorf("Expected device CPU, got %v", backend.Device())
	}
}

func TestCPUBackend_Sub(t *testing.T) {
	backend := New()
	a := mustRaw(t, []float32{1, 2, 3, 4, 5, 6}, tensor.Shape{2, 3})
	b := mustRaw(t, []float32{10, 11, 12, 13, 14, 15}, tensor.Shape{2, 3})

	tests := []struct {
		name string
		got  *tensor.RawTensor
		want []float32
	}{
		{"b-a", backend.Sub(b, a), []float32{9, 9, 9, 9, 9, 9}},
		{"a-b", backend.Sub(a, b), []float32{-9, -9, -9, -9, -9, -9}},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if !tt.got.Shape().Equal(tensor.Shape{2, 3}) {
				t.Errorf("shape = %v", tt.got.Shape())
			}
			if !float32SliceEqual(tt.got.AsFloat32(), tt.want) {
				t.Errorf("got %v, want %v", tt.got.AsFloat32(), tt.want)
			}
		})
	}

	// Operands must be untouched.
	if !float32SliceEqual(a.AsFloat32(), []float32{1, 2, 3, 4, 5, 6}) {
		t.Errorf("operand a modified: %v", a.AsFloat32())
	}
}

func TestCPUBackend_AddScaled(t *testing.T) {
	backend := New()
	dst := mustRaw(t, []float32{1, 1, 1}, tensor.Shape{3})
	src := mustRaw(t, []float32{1, 2, 3}, tensor.Shape{3})

	backend.AddScaled(dst, src, -0.5)

	want := []float32{0.5, 0, -0.5}
	if !float32SliceEqual(dst.AsFloat32(), want) {
		t.Errorf("AddScaled = %v, want %v", dst.AsFloat32(), want)
	}
}

func TestCPUBackend_AddScaled_Chunked(t *testing.T) {
	backend := NewWithConfig(parallel.Config{Enabled: true, NumWorkers: 4, MinChunkSize: 3})

	n := 50
	dstData := make([]float64, n)
	srcData := make([]float64, n)
	for i := range srcData {
		dstData[i] = 1
		srcData[i] = float64(i)
	}
	dst, _ := tensor.NewRaw(tensor.Shape{n}, tensor.Float64, tensor.CPU)
	src, _ := tensor.NewRaw(tensor.Shape{n}, tensor.Float64, tensor.CPU)
	copy(dst.AsFloat64(), dstData)
	copy(src.AsFloat64(), srcData)

	backend.AddScaled(dst, src, 2)

	for i, v := range dst.AsFloat64() {
		if want := 1 + 2*float64(i); v != want {
			t.Fatalf("dst[%d] = %v, want %v", i, v, want)
		}
	}
}

func TestCPUBackend_Scale(t *testing.T) {
	backend := New()
	x := mustRaw(t, []float32{1, -2, 3}, tensor.Shape{3})

	backend.Scale(x, -2)

	if !float32SliceEqual(x.AsFloat32(), []float32{-2, 4, -6}) {
		t.Errorf("Scale = %v", x.AsFloat32())
	}
}

func TestCPUBackend_ShapeMismatchPanics(t *testing.T) {
	backend := New()
	a := mustRaw(t, []float32{1, 2}, tensor.Shape{2})
	b := mustRaw(t, []float32{1, 2, 3}, tensor.Shape{3})

	defer func() {
		if r := recover(); r == nil {
			t.Error("expected panic on shape mismatch")
		}
	}()
	backend.Sub(a, b)
}
