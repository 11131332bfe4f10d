// Copyright 2024 Marc-Antoine Ruel. All rights reserved.
// Use of this source code is governed under the Apache License, Version 2.0
// that can be found in the LICENSE file.

package safetensors

import (
	"fmt"
	"os"
	"sort"

	"github.com/edsrzf/mmap-go"
)

// Handle is a read-only memory mapped safetensors file.
//
// This is the fastest way to read tensors out of a file: tensor data is
// referenced in place in the mapping, no copy is made.
type Handle struct {
	file  *File
	index map[string]int
	m     mmap.MMap
	// f is nil when the descriptor is caller-owned.
	f *os.File
}

// Open opens a file and memory maps it read-only.
func Open(name string) (*Handle, error) {
	f, err := os.OpenFile(name, os.O_RDONLY, 0o600)
	if err != nil {
		return nil, err
	}
	h, err := NewHandle(f)
	if err != nil {
		_ = f.Close()
		return nil, err
	}
	h.f = f
	return h, nil
}

// NewHandle memory maps an already-open file.
//
// The caller keeps ownership of f and must keep it open for the life of the
// handle; Close only releases the mapping.
func NewHandle(f *os.File) (*Handle, error) {
	m, err := mmap.Map(f, mmap.RDONLY, 0)
	if err != nil {
		return nil, err
	}
	file, err := Parse(m)
	if err != nil {
		_ = m.Unmap()
		return nil, err
	}
	h := &Handle{file: file, index: make(map[string]int, len(file.Tensors)), m: m}
	for i, t := range file.Tensors {
		h.index[t.Name] = i
	}
	return h, nil
}

// Keys returns the tensor names, sorted.
func (h *Handle) Keys() []string {
	keys := make([]string, len(h.file.Tensors))
	for i, t := range h.file.Tensors {
		keys[i] = t.Name
	}
	sort.Strings(keys)
	return keys
}

// Tensor returns the named tensor.
//
// The returned Data aliases the mapping and is only valid until Close.
func (h *Handle) Tensor(name string) (Tensor, error) {
	i, ok := h.index[name]
	if !ok {
		return Tensor{}, fmt.Errorf("tensor %q not found", name)
	}
	return h.file.Tensors[i], nil
}

// Metadata returns the free-form "__metadata__" header block, or nil.
func (h *Handle) Metadata() map[string]string {
	return h.file.Metadata
}

// Close releases the mapping, and the file handle when owned.
func (h *Handle) Close() error {
	err := h.m.Unmap()
	if h.f != nil {
		if err2 := h.f.Close(); err == nil {
			err = err2
		}
	}
	return err
}
