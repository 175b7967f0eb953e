// Package checkpoint reads safetensors checkpoint files, the format the
// training runtime persists fine-tuned weights in. It exposes the tensor
// inventory (names, dtypes, shapes) without loading data, and loads
// individual tensors as GoMLX host tensors, either fully in memory or via a
// memory-mapped reader.
//
// Safetensors layout:
//
//	[8 bytes: header size as little-endian u64]
//	[header_size bytes: JSON header]
//	[remaining bytes: tensor data]
package checkpoint

import (
	"encoding/binary"
	"encoding/json"
	"io"
	"math"
	"os"
	"sort"

	"github.com/gomlx/gomlx/pkg/core/dtypes"
	"github.com/gomlx/gomlx/pkg/core/tensors"
	"github.com/pkg/errors"
	"golang.org/x/exp/mmap"
)

// maxHeaderSize is a sanity bound on the JSON header.
const maxHeaderSize = 100 * 1024 * 1024

// TensorMeta describes a single tensor in a checkpoint file.
type TensorMeta struct {
	Name        string   `json:"-"`
	Dtype       string   `json:"dtype"`        // F32, F64, I32, I64, ...
	Shape       []int    `json:"shape"`        // tensor dimensions
	DataOffsets [2]int64 `json:"data_offsets"` // [start, end) byte offsets in the data section
}

// SizeBytes returns the size of the tensor data in bytes.
func (tm *TensorMeta) SizeBytes() int64 {
	return tm.DataOffsets[1] - tm.DataOffsets[0]
}

// NumElements returns the total number of elements based on the shape.
func (tm *TensorMeta) NumElements() int64 {
	prod := int64(1)
	for _, dim := range tm.Shape {
		prod *= int64(dim)
	}
	return prod
}

// Checkpoint is an opened safetensors file.
type Checkpoint struct {
	path       string
	dataOffset int64

	// Tensors maps tensor name to its metadata.
	Tensors map[string]*TensorMeta

	// Metadata holds the optional __metadata__ block.
	Metadata map[string]any
}

// Open parses the header of a safetensors file. Tensor data is read lazily
// by LoadTensor.
func Open(path string) (*Checkpoint, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, errors.Wrapf(err, "failed to open checkpoint %q", path)
	}
	defer func() { _ = f.Close() }()

	var headerSize uint64
	if err := binary.Read(f, binary.LittleEndian, &headerSize); err != nil {
		return nil, errors.Wrap(err, "failed to read header size")
	}
	if headerSize > maxHeaderSize {
		return nil, errors.Errorf("header size too large: %d bytes", headerSize)
	}

	headerBytes := make([]byte, headerSize)
	if _, err := io.ReadFull(f, headerBytes); err != nil {
		return nil, errors.Wrap(err, "failed to read header JSON")
	}

	var rawHeader map[string]json.RawMessage
	if err := json.Unmarshal(headerBytes, &rawHeader); err != nil {
		return nil, errors.Wrap(err, "failed to parse header JSON")
	}

	ckpt := &Checkpoint{
		path:       path,
		dataOffset: int64(8 + headerSize),
		Tensors:    make(map[string]*TensorMeta),
		Metadata:   make(map[string]any),
	}
	for key, value := range rawHeader {
		if key == "__metadata__" {
			if err := json.Unmarshal(value, &ckpt.Metadata); err != nil {
				return nil, errors.Wrap(err, "failed to parse __metadata__")
			}
			continue
		}
		var tm TensorMeta
		if err := json.Unmarshal(value, &tm); err != nil {
			return nil, errors.Wrapf(err, "failed to parse tensor metadata for %s", key)
		}
		tm.Name = key
		ckpt.Tensors[key] = &tm
	}
	return ckpt, nil
}

// ListTensors returns all tensor names, sorted.
func (c *Checkpoint) ListTensors() []string {
	names := make([]string, 0, len(c.Tensors))
	for name := range c.Tensors {
		names = append(names, name)
	}
	sort.Strings(names)
	return names
}

// LoadTensor reads one tensor fully into memory and converts it to a GoMLX
// tensor.
func (c *Checkpoint) LoadTensor(name string) (*tensors.Tensor, error) {
	meta, ok := c.Tensors[name]
	if !ok {
		return nil, errors.Errorf("tensor %s not found in %s", name, c.path)
	}

	f, err := os.Open(c.path)
	if err != nil {
		return nil, errors.Wrapf(err, "failed to open %q", c.path)
	}
	defer func() { _ = f.Close() }()

	if _, err := f.Seek(c.dataOffset+meta.DataOffsets[0], io.SeekStart); err != nil {
		return nil, errors.Wrap(err, "failed to seek to tensor data")
	}
	data := make([]byte, meta.SizeBytes())
	if _, err := io.ReadFull(f, data); err != nil {
		return nil, errors.Wrap(err, "failed to read tensor data")
	}
	return tensorFromBytes(meta, data)
}

// LoadTensorStreaming reads one tensor through a memory-mapped file, which
// avoids a second full copy for large weight matrices.
func (c *Checkpoint) LoadTensorStreaming(name string) (*tensors.Tensor, error) {
	meta, ok := c.Tensors[name]
	if !ok {
		return nil, errors.Errorf("tensor %s not found in %s", name, c.path)
	}

	reader, err := mmap.Open(c.path)
	if err != nil {
		return nil, errors.Wrapf(err, "failed to mmap %q", c.path)
	}
	defer func() { _ = reader.Close() }()

	data := make([]byte, meta.SizeBytes())
	if _, err := reader.ReadAt(data, c.dataOffset+meta.DataOffsets[0]); err != nil && err != io.EOF {
		return nil, errors.Wrap(err, "failed to read tensor data")
	}
	return tensorFromBytes(meta, data)
}

// safetensorDtypes maps safetensor dtype names to GoMLX dtype names.
// Safetensors uses naming like "I64", "F32", while GoMLX uses "Int64",
// "Float32".
var safetensorDtypes = map[string]string{
	"I8":   "Int8",
	"I16":  "Int16",
	"I32":  "Int32",
	"I64":  "Int64",
	"U8":   "Uint8",
	"U16":  "Uint16",
	"U32":  "Uint32",
	"U64":  "Uint64",
	"F16":  "Float16",
	"F32":  "Float32",
	"F64":  "Float64",
	"BF16": "BFloat16",
	"BOOL": "Bool",
}

func dtypeOf(meta *TensorMeta) (dtypes.DType, error) {
	if name, found := safetensorDtypes[meta.Dtype]; found {
		if dtype, found := dtypes.MapOfNames[name]; found {
			return dtype, nil
		}
	}
	if dtype, found := dtypes.MapOfNames[meta.Dtype]; found {
		return dtype, nil
	}
	return dtypes.InvalidDType, errors.Errorf("unsupported safetensor dtype: %s", meta.Dtype)
}

// tensorFromBytes converts the raw little-endian bytes of one tensor into a
// GoMLX tensor of the matching dtype and shape.
func tensorFromBytes(meta *TensorMeta, data []byte) (*tensors.Tensor, error) {
	dtype, err := dtypeOf(meta)
	if err != nil {
		return nil, err
	}
	n := meta.NumElements()
	dims := append([]int(nil), meta.Shape...)

	checkSize := func(elemBytes int64) error {
		if int64(len(data)) != n*elemBytes {
			return errors.Errorf("data size mismatch for %s: got %d bytes, expected %d", meta.Dtype, len(data), n*elemBytes)
		}
		return nil
	}

	switch dtype {
	case dtypes.Float32:
		if err := checkSize(4); err != nil {
			return nil, err
		}
		slice := make([]float32, n)
		for i := int64(0); i < n; i++ {
			slice[i] = math.Float32frombits(binary.LittleEndian.Uint32(data[i*4 : (i+1)*4]))
		}
		return tensors.FromFlatDataAndDimensions(slice, dims...), nil

	case dtypes.Float64:
		if err := checkSize(8); err != nil {
			return nil, err
		}
		slice := make([]float64, n)
		for i := int64(0); i < n; i++ {
			slice[i] = math.Float64frombits(binary.LittleEndian.Uint64(data[i*8 : (i+1)*8]))
		}
		return tensors.FromFlatDataAndDimensions(slice, dims...), nil

	case dtypes.Int32:
		if err := checkSize(4); err != nil {
			return nil, err
		}
		slice := make([]int32, n)
		for i := int64(0); i < n; i++ {
			slice[i] = int32(binary.LittleEndian.Uint32(data[i*4 : (i+1)*4]))
		}
		return tensors.FromFlatDataAndDimensions(slice, dims...), nil

	case dtypes.Int64:
		if err := checkSize(8); err != nil {
			return nil, err
		}
		slice := make([]int64, n)
		for i := int64(0); i < n; i++ {
			slice[i] = int64(binary.LittleEndian.Uint64(data[i*8 : (i+1)*8]))
		}
		return tensors.FromFlatDataAndDimensions(slice, dims...), nil

	case dtypes.Uint8:
		if err := checkSize(1); err != nil {
			return nil, err
		}
		slice := make([]uint8, n)
		copy(slice, data)
		return tensors.FromFlatDataAndDimensions(slice, dims...), nil

	case dtypes.Bool:
		if err := checkSize(1); err != nil {
			return nil, err
		}
		slice := make([]bool, n)
		for i := int64(0); i < n; i++ {
			slice[i] = data[i] != 0
		}
		return tensors.FromFlatDataAndDimensions(slice, dims...), nil

	case dtypes.Float16, dtypes.BFloat16:
		// F16 and BF16 are carried as their raw uint16 bit patterns.
		if err := checkSize(2); err != nil {
			return nil, err
		}
		slice := make([]uint16, n)
		for i := int64(0); i < n; i++ {
			slice[i] = binary.LittleEndian.Uint16(data[i*2 : (i+1)*2])
		}
		return tensors.FromFlatDataAndDimensions(slice, dims...), nil

	default:
		return nil, errors.Errorf("unsupported dtype: %v", dtype)
	}
}
