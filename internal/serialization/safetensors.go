package serialization

import (
	"bufio"
	"bytes"
	"crypto/sha256"
	"encoding/binary"
	"encoding/hex"
	"encoding/json"
	"fmt"
	"io"
	"maps"
	"math"
	"os"
	"slices"

	"github.com/pkg/errors"

	"github.com/born-ml/fedoptim/internal/tensor"
)

const (
	metadataKey = "__metadata__"

	// ChecksumKey is the metadata entry holding the hex SHA-256 of the data section.
	ChecksumKey = "checksum.sha256"

	headerAlignment = 8
)

// TensorHeader describes one tensor in the SafeTensors header.
type TensorHeader struct {
	DType       string   `json:"dtype"`
	Shape       []int64  `json:"shape"`
	DataOffsets [2]int64 `json:"data_offsets"`
}

// File is the decoded content of a SafeTensors file.
type File struct {
	Tensors  map[string]*tensor.RawTensor
	Metadata map[string]string
}

// Write encodes tensors in SafeTensors format.
//
// Tensors are written in alphabetical order by name. metadata is copied
// into the header together with the data checksum.
func Write(w io.Writer, tensors map[string]*tensor.RawTensor, metadata map[string]string) error {
	names := slices.Sorted(maps.Keys(tensors))

	header := make(map[string]any, len(names)+1)
	digest := sha256.New()
	var offset int64
	for _, name := range names {
		if err := validateName(name); err != nil {
			return err
		}
		raw := tensors[name]
		if raw == nil {
			return errors.Errorf("tensor %q is nil", name)
		}
		dtype, err := dtypeToSafeTensors(raw.DType())
		if err != nil {
			return errors.Wrapf(err, "tensor %q", name)
		}

		shape := make([]int64, len(raw.Shape()))
		for i, dim := range raw.Shape() {
			shape[i] = int64(dim)
		}
		size := int64(raw.ByteSize())
		header[name] = TensorHeader{
			DType:       dtype,
			Shape:       shape,
			DataOffsets: [2]int64{offset, offset + size},
		}
		offset += size
		digest.Write(raw.Data())
	}

	meta := maps.Clone(metadata)
	if meta == nil {
		meta = make(map[string]string)
	}
	meta[ChecksumKey] = hex.EncodeToString(digest.Sum(nil))
	header[metadataKey] = meta

	headerJSON, err := json.Marshal(header)
	if err != nil {
		return errors.Wrap(err, "failed to marshal header")
	}
	// Pad with spaces so the data section starts 8-byte aligned.
	if pad := len(headerJSON) % headerAlignment; pad != 0 {
		headerJSON = append(headerJSON, bytes.Repeat([]byte(" "), headerAlignment-pad)...)
	}

	bw := bufio.NewWriter(w)
	if err := binary.Write(bw, binary.LittleEndian, uint64(len(headerJSON))); err != nil {
		return errors.Wrap(err, "failed to write header size")
	}
	if _, err := bw.Write(headerJSON); err != nil {
		return errors.Wrap(err, "failed to write header")
	}
	for _, name := range names {
		if _, err := bw.Write(tensors[name].Data()); err != nil {
			return errors.Wrapf(err, "failed to write tensor %s", name)
		}
	}
	return errors.Wrap(bw.Flush(), "failed to flush")
}

// WriteFile writes tensors to a SafeTensors file at path.
func WriteFile(path string, tensors map[string]*tensor.RawTensor, metadata map[string]string) (err error) {
	//nolint:gosec // G304: File path comes from the caller, which is expected for checkpoints
	file, err := os.Create(path)
	if err != nil {
		return errors.Wrap(err, "failed to create file")
	}
	defer func() {
		if cerr := file.Close(); err == nil && cerr != nil {
			err = errors.Wrap(cerr, "failed to close file")
		}
	}()
	return Write(file, tensors, metadata)
}

// Read decodes a SafeTensors stream, placing every tensor on device.
func Read(r io.Reader, device tensor.Device) (*File, error) {
	var headerSize uint64
	if err := binary.Read(r, binary.LittleEndian, &headerSize); err != nil {
		return nil, errors.Wrap(err, "failed to read header size")
	}
	if headerSize > MaxHeaderSize {
		return nil, errors.Wrapf(ErrHeaderTooLarge, "%d bytes", headerSize)
	}

	headerJSON := make([]byte, headerSize)
	if _, err := io.ReadFull(r, headerJSON); err != nil {
		return nil, errors.Wrap(err, "failed to read header")
	}
	var entries map[string]json.RawMessage
	if err := json.Unmarshal(headerJSON, &entries); err != nil {
		return nil, errors.Wrap(err, "failed to parse header")
	}

	data, err := io.ReadAll(r)
	if err != nil {
		return nil, errors.Wrap(err, "failed to read tensor data")
	}

	f := &File{
		Tensors:  make(map[string]*tensor.RawTensor, len(entries)),
		Metadata: make(map[string]string),
	}
	headers := make(map[string]TensorHeader, len(entries))
	spans := make([]tensorSpan, 0, len(entries))
	for name, entry := range entries {
		if name == metadataKey {
			if err := json.Unmarshal(entry, &f.Metadata); err != nil {
				return nil, errors.Wrap(err, "failed to parse metadata")
			}
			continue
		}
		if err := validateName(name); err != nil {
			return nil, err
		}
		var h TensorHeader
		if err := json.Unmarshal(entry, &h); err != nil {
			return nil, errors.Wrapf(err, "failed to parse header of tensor %q", name)
		}
		headers[name] = h
		spans = append(spans, tensorSpan{name: name, begin: h.DataOffsets[0], end: h.DataOffsets[1]})
	}
	if err := validateSpans(spans, int64(len(data))); err != nil {
		return nil, err
	}

	if want, ok := f.Metadata[ChecksumKey]; ok {
		got := sha256.Sum256(data)
		if hex.EncodeToString(got[:]) != want {
			return nil, errors.WithStack(ErrChecksumMismatch)
		}
	}

	for name, h := range headers {
		raw, err := decodeTensor(name, h, data, device)
		if err != nil {
			return nil, errors.Wrapf(err, "tensor %q", name)
		}
		f.Tensors[name] = raw
	}
	return f, nil
}

// ReadFile reads a SafeTensors file at path, placing every tensor on device.
func ReadFile(path string, device tensor.Device) (*File, error) {
	//nolint:gosec // G304: File path comes from the caller, which is expected for checkpoints
	file, err := os.Open(path)
	if err != nil {
		return nil, errors.Wrap(err, "failed to open file")
	}
	defer func() {
		_ = file.Close() // Read-only, close error carries no information
	}()
	return Read(bufio.NewReader(file), device)
}

func decodeTensor(name string, h TensorHeader, data []byte, device tensor.Device) (*tensor.RawTensor, error) {
	dtype, err := dtypeFromSafeTensors(h.DType)
	if err != nil {
		return nil, err
	}
	shape := make(tensor.Shape, len(h.Shape))
	for i, dim := range h.Shape {
		if dim <= 0 || dim > math.MaxInt {
			return nil, &ValidationError{
				Err:     ErrSizeMismatch,
				Tensor:  name,
				Details: fmt.Sprintf("invalid dimension %d at index %d", dim, i),
			}
		}
		shape[i] = int(dim)
	}

	// Check the shape against the span before allocating anything.
	span := h.DataOffsets[1] - h.DataOffsets[0]
	count, ok := shape.CheckedNumElements()
	if !ok || int64(count) > span/int64(dtype.Size()) || int64(count)*int64(dtype.Size()) != span {
		return nil, &ValidationError{
			Err:     ErrSizeMismatch,
			Tensor:  name,
			Details: fmt.Sprintf("shape %v of %s does not fit %d data bytes", h.Shape, h.DType, span),
		}
	}

	raw, err := tensor.NewRaw(shape, dtype, device)
	if err != nil {
		return nil, err
	}
	copy(raw.Data(), data[h.DataOffsets[0]:h.DataOffsets[1]])
	return raw, nil
}

// dtypeToSafeTensors converts tensor.DataType to SafeTensors dtype string.
func dtypeToSafeTensors(dt tensor.DataType) (string, error) {
	switch dt {
	case tensor.Float32:
		return "F32", nil
	case tensor.Float64:
		return "F64", nil
	default:
		return "", errors.Wrap(ErrUnsupportedDType, dt.String())
	}
}

func dtypeFromSafeTensors(s string) (tensor.DataType, error) {
	switch s {
	case "F32":
		return tensor.Float32, nil
	case "F64":
		return tensor.Float64, nil
	default:
		return 0, errors.Wrap(ErrUnsupportedDType, s)
	}
}
