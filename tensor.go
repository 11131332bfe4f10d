// Copyright 2024 Marc-Antoine Ruel. All rights reserved.
// Copyright 2023 The NLP Odyssey Authors. All rights reserved.
// Use of this source code is governed by a BSD-style
// license that can be found in the LICENSE file.

package safetensors

import "fmt"

// Tensor is a named tensor whose Data is the raw little-endian, C-ordered
// element buffer.
//
// When obtained from Parse or a Handle, Data references the underlying
// buffer and must not be retained past the life of the mapping.
type Tensor struct {
	Name  string
	DType DType
	Shape []uint64
	Data  []byte
}

// Validate checks that the data length matches the shape and dtype.
//
// An empty shape denotes a scalar holding exactly one element.
func (t *Tensor) Validate() error {
	n, err := numElements(t.Shape)
	if err != nil {
		return fmt.Errorf("invalid tensor %q: %w", t.Name, err)
	}
	numBytes, err := checkedMul(n, t.DType.WordSize())
	if err != nil {
		return fmt.Errorf("invalid tensor %q: %w", t.Name, err)
	}
	if uint64(len(t.Data)) != numBytes {
		return fmt.Errorf("invalid tensor %q: dtype=%s shape=%+v len(data)=%d", t.Name, t.DType, t.Shape, len(t.Data))
	}
	return nil
}

// numElements is the product of the shape, overflow-checked. The empty shape
// is a scalar, one element.
func numElements(shape []uint64) (uint64, error) {
	n := uint64(1)
	for _, v := range shape {
		var err error
		if n, err = checkedMul(n, v); err != nil {
			return 0, fmt.Errorf("failed to compute num elements from shape: %w", err)
		}
	}
	return n, nil
}
