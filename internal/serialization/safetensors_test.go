package serialization_test

import (
	"bytes"
	"encoding/binary"
	"path/filepath"
	"testing"

	"github.com/pkg/errors"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/born-ml/fedoptim/internal/serialization"
	"github.com/born-ml/fedoptim/internal/tensor"
)

func mustRaw(t *testing.T, data []float32, shape tensor.Shape) *tensor.RawTensor {
	t.Helper()
	raw, err := tensor.FromFloat32(data, shape, tensor.CPU)
	require.NoError(t, err)
	return raw
}

func TestWriteRead_RoundTrip(t *testing.T) {
	f64, err := tensor.NewRaw(tensor.Shape{2}, tensor.Float64, tensor.CPU)
	require.NoError(t, err)
	copy(f64.AsFloat64(), []float64{0.25, -8})

	tensors := map[string]*tensor.RawTensor{
		"weight":    mustRaw(t, []float32{1, 2, 3, 4, 5, 6}, tensor.Shape{2, 3}),
		"bias":      mustRaw(t, []float32{0.5}, tensor.Shape{1}),
		"exp_avg.0": f64,
	}

	var buf bytes.Buffer
	require.NoError(t, serialization.Write(&buf, tensors, map[string]string{"round": "3"}))

	f, err := serialization.Read(&buf, tensor.CUDA)
	require.NoError(t, err)
	require.Len(t, f.Tensors, 3)
	assert.Equal(t, "3", f.Metadata["round"])
	assert.NotEmpty(t, f.Metadata[serialization.ChecksumKey])

	w := f.Tensors["weight"]
	assert.Equal(t, tensor.Shape{2, 3}, w.Shape())
	assert.Equal(t, tensor.CUDA, w.Device())
	assert.Equal(t, []float32{1, 2, 3, 4, 5, 6}, w.AsFloat32())
	assert.Equal(t, []float32{0.5}, f.Tensors["bias"].AsFloat32())
	assert.Equal(t, []float64{0.25, -8}, f.Tensors["exp_avg.0"].AsFloat64())
}

func TestWriteFile_ReadFile(t *testing.T) {
	path := filepath.Join(t.TempDir(), "state.safetensors")
	tensors := map[string]*tensor.RawTensor{
		"velocity.0": mustRaw(t, []float32{-1, 1}, tensor.Shape{2}),
	}
	require.NoError(t, serialization.WriteFile(path, tensors, nil))

	f, err := serialization.ReadFile(path, tensor.CPU)
	require.NoError(t, err)
	assert.Equal(t, []float32{-1, 1}, f.Tensors["velocity.0"].AsFloat32())

	_, err = serialization.ReadFile(filepath.Join(t.TempDir(), "missing"), tensor.CPU)
	require.Error(t, err)
}

func TestWrite_HeaderAligned(t *testing.T) {
	var buf bytes.Buffer
	require.NoError(t, serialization.Write(&buf, map[string]*tensor.RawTensor{
		"x": mustRaw(t, []float32{1}, tensor.Shape{1}),
	}, nil))

	size := binary.LittleEndian.Uint64(buf.Bytes()[:8])
	assert.Zero(t, size%8)
	assert.Equal(t, int(8+size+4), buf.Len())
}

func TestRead_ChecksumMismatch(t *testing.T) {
	var buf bytes.Buffer
	require.NoError(t, serialization.Write(&buf, map[string]*tensor.RawTensor{
		"x": mustRaw(t, []float32{1, 2}, tensor.Shape{2}),
	}, nil))

	corrupted := buf.Bytes()
	corrupted[len(corrupted)-1] ^= 0xFF

	_, err := serialization.Read(bytes.NewReader(corrupted), tensor.CPU)
	require.Error(t, err)
	assert.True(t, errors.Is(err, serialization.ErrChecksumMismatch))
}

func TestRead_Validation(t *testing.T) {
	encode := func(header string, data []byte) *bytes.Reader {
		var buf bytes.Buffer
		require.NoError(t, binary.Write(&buf, binary.LittleEndian, uint64(len(header))))
		buf.WriteString(header)
		buf.Write(data)
		return bytes.NewReader(buf.Bytes())
	}

	tests := []struct {
		name   string
		header string
		data   []byte
		want   error
	}{
		{
			name:   "out of bounds",
			header: `{"a":{"dtype":"F32","shape":[2],"data_offsets":[0,8]}}`,
			data:   make([]byte, 4),
			want:   serialization.ErrOutOfBounds,
		},
		{
			name: "overlap",
			header: `{"a":{"dtype":"F32","shape":[2],"data_offsets":[0,8]},` +
				`"b":{"dtype":"F32","shape":[1],"data_offsets":[4,8]}}`,
			data: make([]byte, 8),
			want: serialization.ErrOffsetOverlap,
		},
		{
			name:   "unsupported dtype",
			header: `{"a":{"dtype":"BF16","shape":[2],"data_offsets":[0,4]}}`,
			data:   make([]byte, 4),
			want:   serialization.ErrUnsupportedDType,
		},
		{
			name:   "dimension larger than data",
			header: `{"a":{"dtype":"F32","shape":[1125899906842624],"data_offsets":[0,4]}}`,
			data:   make([]byte, 4),
			want:   serialization.ErrSizeMismatch,
		},
		{
			name:   "element count overflows",
			header: `{"a":{"dtype":"F32","shape":[4611686018427387904,4],"data_offsets":[0,0]}}`,
			data:   nil,
			want:   serialization.ErrSizeMismatch,
		},
		{
			name:   "non-positive dimension",
			header: `{"a":{"dtype":"F32","shape":[2,-1],"data_offsets":[0,8]}}`,
			data:   make([]byte, 8),
			want:   serialization.ErrSizeMismatch,
		},
		{
			name:   "shape smaller than data",
			header: `{"a":{"dtype":"F64","shape":[1],"data_offsets":[0,16]}}`,
			data:   make([]byte, 16),
			want:   serialization.ErrSizeMismatch,
		},
		{
			name:   "empty name",
			header: `{"":{"dtype":"F32","shape":[1],"data_offsets":[0,4]}}`,
			data:   make([]byte, 4),
			want:   serialization.ErrInvalidTensorName,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			var f *serialization.File
			var err error
			require.NotPanics(t, func() {
				f, err = serialization.Read(encode(tt.header, tt.data), tensor.CPU)
			})
			require.Error(t, err)
			assert.Nil(t, f)
			assert.True(t, errors.Is(err, tt.want), "got %v", err)
		})
	}
}

func TestRead_HeaderTooLarge(t *testing.T) {
	var buf bytes.Buffer
	require.NoError(t, binary.Write(&buf, binary.LittleEndian, uint64(serialization.MaxHeaderSize+1)))

	_, err := serialization.Read(&buf, tensor.CPU)
	assert.True(t, errors.Is(err, serialization.ErrHeaderTooLarge))
}
