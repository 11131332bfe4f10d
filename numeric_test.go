// Copyright 2024 Marc-Antoine Ruel. All rights reserved.
// Use of this source code is governed under the Apache License, Version 2.0
// that can be found in the LICENSE file.

package safetensors

import (
	"math"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestTensorOf(t *testing.T) {
	t.Run("Float64", func(t *testing.T) {
		tensor, err := TensorOf("a", []uint64{2, 2}, []float64{1, -2, 3.5, 0})
		require.NoError(t, err)
		assert.Equal(t, F64, tensor.DType)
		assert.Equal(t, []uint64{2, 2}, tensor.Shape)
		require.NoError(t, tensor.Validate())
		values, err := Values[float64](tensor)
		require.NoError(t, err)
		assert.Equal(t, []float64{1, -2, 3.5, 0}, values)
	})

	t.Run("Uint8", func(t *testing.T) {
		tensor, err := TensorOf("b", []uint64{2, 3}, []uint8{0, 1, 2, 253, 254, 255})
		require.NoError(t, err)
		assert.Equal(t, U8, tensor.DType)
		assert.Equal(t, []byte{0, 1, 2, 253, 254, 255}, tensor.Data)
		values, err := Values[uint8](tensor)
		require.NoError(t, err)
		assert.Equal(t, []uint8{0, 1, 2, 253, 254, 255}, values)
	})

	t.Run("Int32", func(t *testing.T) {
		tensor, err := TensorOf("c", []uint64{3}, []int32{-1, 0, math.MaxInt32})
		require.NoError(t, err)
		assert.Equal(t, I32, tensor.DType)
		values, err := Values[int32](tensor)
		require.NoError(t, err)
		assert.Equal(t, []int32{-1, 0, math.MaxInt32}, values)
	})

	t.Run("Float32", func(t *testing.T) {
		tensor, err := TensorOf("d", []uint64{2}, []float32{float32(math.Inf(1)), -0.5})
		require.NoError(t, err)
		values, err := Values[float32](tensor)
		require.NoError(t, err)
		assert.Equal(t, []float32{float32(math.Inf(1)), -0.5}, values)
	})

	t.Run("Bool", func(t *testing.T) {
		tensor, err := TensorOf("e", []uint64{3}, []bool{true, false, true})
		require.NoError(t, err)
		assert.Equal(t, BOOL, tensor.DType)
		assert.Equal(t, []byte{1, 0, 1}, tensor.Data)
		values, err := Values[bool](tensor)
		require.NoError(t, err)
		assert.Equal(t, []bool{true, false, true}, values)
	})

	t.Run("Scalar", func(t *testing.T) {
		tensor, err := TensorOf("s", nil, []int64{42})
		require.NoError(t, err)
		values, err := Values[int64](tensor)
		require.NoError(t, err)
		assert.Equal(t, []int64{42}, values)
	})

	t.Run("ZeroSized", func(t *testing.T) {
		tensor, err := TensorOf("z", []uint64{2, 0}, []uint16{})
		require.NoError(t, err)
		values, err := Values[uint16](tensor)
		require.NoError(t, err)
		assert.Empty(t, values)
	})

	t.Run("ShapeMismatch", func(t *testing.T) {
		_, err := TensorOf("bad", []uint64{2, 2}, []float64{1, 2, 3})
		require.Error(t, err)
		assert.Contains(t, err.Error(), "wants 4 elements, got 3")
	})
}

func TestValues_DTypeMismatch(t *testing.T) {
	tensor, err := TensorOf("a", []uint64{2}, []float64{1, 2})
	require.NoError(t, err)
	_, err = Values[uint8](tensor)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "dtype F64 cannot be read as U8")
}

func TestFloat16ToFloat32(t *testing.T) {
	data := []struct {
		in   uint16
		want float32
	}{
		{0x0000, 0},
		{0x8000, float32(math.Copysign(0, -1))},
		{0x3c00, 1},
		{0xbc00, -1},
		{0xc000, -2},
		{0x3555, 0.333251953125},
		{0x7bff, 65504},
		// Smallest subnormal, 2^-24.
		{0x0001, 5.9604644775390625e-08},
		{0x7c00, float32(math.Inf(1))},
		{0xfc00, float32(math.Inf(-1))},
	}
	for _, line := range data {
		assert.Equal(t, line.want, Float16ToFloat32(line.in), "%#x", line.in)
	}
	assert.True(t, math.IsNaN(float64(Float16ToFloat32(0x7e00))))
}

func TestBFloat16ToFloat32(t *testing.T) {
	data := []struct {
		in   uint16
		want float32
	}{
		{0x0000, 0},
		{0x3f80, 1},
		{0xc040, -3},
		{0x4049, 3.140625},
	}
	for _, line := range data {
		assert.Equal(t, line.want, BFloat16ToFloat32(line.in), "%#x", line.in)
	}
	assert.True(t, math.IsNaN(float64(BFloat16ToFloat32(0x7fc0))))
}
