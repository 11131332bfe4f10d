// Copyright 2024 Marc-Antoine Ruel. All rights reserved.
// Copyright 2023 The NLP Odyssey Authors. All rights reserved.
// Use of this source code is governed by a BSD-style
// license that can be found in the LICENSE file.

// Package safetensors reads and writes the safetensors tensor container
// format.
//
// A safetensors file is a little-endian uint64 header length, a JSON header
// describing dtype, shape and data offsets of each tensor, then the
// concatenated tensor data. See
// https://github.com/huggingface/safetensors#format.
package safetensors

import (
	"encoding/binary"
	"encoding/json"
	"fmt"
	"io"
	"sort"
)

const maxHeaderSize = 100_000_000

// File is a parsed safetensors file.
type File struct {
	// Tensors is ordered by position of the tensor data in the file.
	Tensors []Tensor
	// Metadata is the free-form "__metadata__" header block, if any.
	Metadata map[string]string
}

// Parse parses a byte-buffer representing a whole safetensors file.
//
// It is zero-copy: the Data of each returned Tensor aliases data.
func Parse(data []byte) (*File, error) {
	l := uint64(len(data))
	if l < 8 {
		return nil, fmt.Errorf("invalid header: too small (%d bytes)", l)
	}
	n := binary.LittleEndian.Uint64(data)
	if n > maxHeaderSize {
		return nil, fmt.Errorf("invalid header: too large max %d, actual %d", maxHeaderSize, n)
	}
	stop := n + 8
	if stop > l {
		return nil, fmt.Errorf("invalid header: invalid length %d", stop)
	}
	return parse(data[8:stop], data[stop:], l)
}

// tensorInfo is the JSON header entry for a single tensor.
//
// Endianness is assumed to be little-endian. Ordering is assumed to be 'C'.
type tensorInfo struct {
	DType       DType     `json:"dtype"`
	Shape       []uint64  `json:"shape"`
	DataOffsets [2]uint64 `json:"data_offsets"`
}

type headerEntry struct {
	name string
	info tensorInfo
}

// parse validates the JSON header and binds the tensor data slices out of
// buf. total is the full file length, used to reject trailing or missing
// bytes.
func parse(hdr, buf []byte, total uint64) (*File, error) {
	var raw map[string]json.RawMessage
	if err := json.Unmarshal(hdr, &raw); err != nil {
		return nil, fmt.Errorf("invalid header: %w", err)
	}
	f := &File{}
	entries := make([]headerEntry, 0, len(raw))
	for name, value := range raw {
		if name == "__metadata__" {
			if err := json.Unmarshal(value, &f.Metadata); err != nil {
				return nil, fmt.Errorf(`invalid "__metadata__": %w`, err)
			}
			continue
		}
		e := headerEntry{name: name}
		if err := json.Unmarshal(value, &e.info); err != nil {
			return nil, fmt.Errorf("failed to JSON-decode tensor %q: %w", name, err)
		}
		entries = append(entries, e)
	}

	// The header is a JSON object so tensor order within it is not
	// meaningful; the data buffer layout is. Sort by offsets, with the name
	// as tie breaker so corrupt files with duplicate offsets are reported
	// deterministically.
	sort.Slice(entries, func(i, j int) bool {
		a, b := entries[i].info.DataOffsets, entries[j].info.DataOffsets
		if a != b {
			return a[0] < b[0] || (a[0] == b[0] && a[1] < b[1])
		}
		return entries[i].name < entries[j].name
	})

	start := uint64(0)
	for i := range entries {
		e := &entries[i]
		s, end := e.info.DataOffsets[0], e.info.DataOffsets[1]
		if s != start || end < s {
			return nil, fmt.Errorf("invalid metadata: tensor %q #%d: invalid offset", e.name, i)
		}
		start = end
		n, err := numElements(e.info.Shape)
		if err != nil {
			return nil, fmt.Errorf("invalid metadata: tensor %q #%d: %w", e.name, i, err)
		}
		numBytes, err := checkedMul(n, e.info.DType.WordSize())
		if err != nil {
			return nil, fmt.Errorf("invalid metadata: tensor %q #%d: failed to compute num bytes from num elements: %w", e.name, i, err)
		}
		if end-s != numBytes {
			return nil, fmt.Errorf("invalid metadata: tensor %q #%d: info data offsets mismatch", e.name, i)
		}
	}
	if got := start + uint64(len(hdr)) + 8; got != total {
		return nil, fmt.Errorf("metadata incomplete buffer: %d != %d", got, total)
	}

	f.Tensors = make([]Tensor, len(entries))
	for i, e := range entries {
		f.Tensors[i] = Tensor{
			Name:  e.name,
			DType: e.info.DType,
			Shape: e.info.Shape,
			Data:  buf[e.info.DataOffsets[0]:e.info.DataOffsets[1]],
		}
	}
	return f, nil
}

// deserialize is the buffered variant of Parse over an io.Reader. It copies
// the whole stream in memory.
func deserialize(r io.Reader) (*File, error) {
	var szBuf [8]byte
	if _, err := io.ReadFull(r, szBuf[:]); err != nil {
		return nil, fmt.Errorf("invalid header: %w", err)
	}
	n := binary.LittleEndian.Uint64(szBuf[:])
	if n > maxHeaderSize {
		return nil, fmt.Errorf("invalid header: too large max %d, actual %d", maxHeaderSize, n)
	}
	hdr := make([]byte, n)
	if _, err := io.ReadFull(r, hdr); err != nil {
		return nil, fmt.Errorf("invalid header: %w", err)
	}
	buf, err := io.ReadAll(r)
	if err != nil {
		return nil, err
	}
	return parse(hdr, buf, 8+n+uint64(len(buf)))
}

// Serialize writes the safetensors file.
//
// The tensor data layout sorts by descending dtype word size then by name,
// and the header is padded to an 8 bytes boundary, so tensor data stays
// aligned for direct casting.
func (f *File) Serialize(w io.Writer) error {
	idx := make([]int, len(f.Tensors))
	for i := range idx {
		idx[i] = i
	}
	sort.Slice(idx, func(i, j int) bool {
		l, r := &f.Tensors[idx[i]], &f.Tensors[idx[j]]
		lw, rw := l.DType.WordSize(), r.DType.WordSize()
		return lw > rw || (lw == rw && l.Name < r.Name)
	})

	obj := make(map[string]any, len(f.Tensors)+1)
	if len(f.Metadata) > 0 {
		obj["__metadata__"] = f.Metadata
	}
	offset := uint64(0)
	for _, i := range idx {
		t := &f.Tensors[i]
		if err := t.Validate(); err != nil {
			return err
		}
		shape := t.Shape
		if shape == nil {
			shape = []uint64{}
		}
		n := uint64(len(t.Data))
		obj[t.Name] = &tensorInfo{DType: t.DType, Shape: shape, DataOffsets: [2]uint64{offset, offset + n}}
		offset += n
	}
	header, err := json.Marshal(obj)
	if err != nil {
		return fmt.Errorf("failed to JSON-marshal header: %w", err)
	}
	// Force alignment to 8 bytes.
	if extra := (8 - len(header)%8) % 8; extra > 0 {
		header = append(header, "       "[:extra]...)
	}

	var nbArr [8]byte
	binary.LittleEndian.PutUint64(nbArr[:], uint64(len(header)))
	if _, err = w.Write(nbArr[:]); err != nil {
		return err
	}
	if _, err = w.Write(header); err != nil {
		return err
	}
	for _, i := range idx {
		if _, err = w.Write(f.Tensors[i].Data); err != nil {
			return err
		}
	}
	return nil
}

// checkedMul multiplies a and b and checks for overflow.
func checkedMul(a, b uint64) (uint64, error) {
	c := a * b
	if a > 1 && b > 1 && c/a != b {
		return c, fmt.Errorf("multiplication overflow: %d * %d", a, b)
	}
	return c, nil
}
