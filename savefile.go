// Copyright 2024 Marc-Antoine Ruel. All rights reserved.
// Use of this source code is governed under the Apache License, Version 2.0
// that can be found in the LICENSE file.

package safetensors

import (
	"os"
	"path/filepath"
)

// SaveFile serializes tensors to a file. metadata may be nil.
//
// The write is atomic: data goes to a temporary file in the destination
// directory, is synced, then renamed over name. When SaveFile returns the
// file is durable and immediately reopenable; a crash mid-save never leaves
// a half-written file at name.
func SaveFile(tensors []Tensor, metadata map[string]string, name string) (err error) {
	f := &File{Tensors: tensors, Metadata: metadata}
	tmp, err := os.CreateTemp(filepath.Dir(name), filepath.Base(name)+".*.tmp")
	if err != nil {
		return err
	}
	defer func() {
		if err != nil {
			_ = tmp.Close()
			_ = os.Remove(tmp.Name())
		}
	}()
	if err = f.Serialize(tmp); err != nil {
		return err
	}
	if err = tmp.Sync(); err != nil {
		return err
	}
	if err = tmp.Close(); err != nil {
		return err
	}
	return os.Rename(tmp.Name(), name)
}

// LoadFile reads and parses a whole safetensors file in memory.
//
// Use Open to access large files without loading them all at once.
func LoadFile(name string) (*File, error) {
	b, err := os.ReadFile(name)
	if err != nil {
		return nil, err
	}
	return Parse(b)
}
