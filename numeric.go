// Copyright 2024 Marc-Antoine Ruel. All rights reserved.
// Use of this source code is governed under the Apache License, Version 2.0
// that can be found in the LICENSE file.

package safetensors

import (
	"encoding/binary"
	"fmt"
	"math"
)

// Element is the set of Go types with a direct safetensors DType
// counterpart.
//
// F16, BF16 and the FP8 types have no native Go representation; read their
// raw Data and convert with Float16ToFloat32 or BFloat16ToFloat32.
type Element interface {
	bool | uint8 | int8 | uint16 | int16 | uint32 | int32 | uint64 | int64 | float32 | float64
}

// TensorOf builds a named tensor from a typed slice, encoded little-endian.
//
// The number of values must match the product of the shape; an empty shape
// is a scalar holding exactly one value.
func TensorOf[T Element](name string, shape []uint64, values []T) (Tensor, error) {
	dt := dtypeOf[T]()
	n, err := numElements(shape)
	if err != nil {
		return Tensor{}, fmt.Errorf("tensor %q: %w", name, err)
	}
	if n != uint64(len(values)) {
		return Tensor{}, fmt.Errorf("tensor %q: shape %v wants %d elements, got %d", name, shape, n, len(values))
	}
	data := make([]byte, 0, n*dt.WordSize())
	for _, v := range values {
		data = appendElement(data, v)
	}
	return Tensor{Name: name, DType: dt, Shape: shape, Data: data}, nil
}

// Values decodes the tensor data back into a typed slice.
//
// The requested Go type must match the tensor's DType exactly; no widening
// or narrowing conversion is applied.
func Values[T Element](t Tensor) ([]T, error) {
	dt := dtypeOf[T]()
	if t.DType != dt {
		return nil, fmt.Errorf("tensor %q: dtype %s cannot be read as %s", t.Name, t.DType, dt)
	}
	if err := t.Validate(); err != nil {
		return nil, err
	}
	ws := int(dt.WordSize())
	out := make([]T, len(t.Data)/ws)
	for i := range out {
		out[i] = element[T](t.Data[i*ws:])
	}
	return out, nil
}

func dtypeOf[T Element]() DType {
	var z T
	switch any(z).(type) {
	case bool:
		return BOOL
	case uint8:
		return U8
	case int8:
		return I8
	case uint16:
		return U16
	case int16:
		return I16
	case uint32:
		return U32
	case int32:
		return I32
	case uint64:
		return U64
	case int64:
		return I64
	case float32:
		return F32
	case float64:
		return F64
	}
	return ""
}

func appendElement[T Element](b []byte, v T) []byte {
	switch v := any(v).(type) {
	case bool:
		if v {
			return append(b, 1)
		}
		return append(b, 0)
	case uint8:
		return append(b, v)
	case int8:
		return append(b, byte(v))
	case uint16:
		return binary.LittleEndian.AppendUint16(b, v)
	case int16:
		return binary.LittleEndian.AppendUint16(b, uint16(v))
	case uint32:
		return binary.LittleEndian.AppendUint32(b, v)
	case int32:
		return binary.LittleEndian.AppendUint32(b, uint32(v))
	case uint64:
		return binary.LittleEndian.AppendUint64(b, v)
	case int64:
		return binary.LittleEndian.AppendUint64(b, uint64(v))
	case float32:
		return binary.LittleEndian.AppendUint32(b, math.Float32bits(v))
	case float64:
		return binary.LittleEndian.AppendUint64(b, math.Float64bits(v))
	}
	return b
}

func element[T Element](b []byte) T {
	var z T
	switch p := any(&z).(type) {
	case *bool:
		*p = b[0] != 0
	case *uint8:
		*p = b[0]
	case *int8:
		*p = int8(b[0])
	case *uint16:
		*p = binary.LittleEndian.Uint16(b)
	case *int16:
		*p = int16(binary.LittleEndian.Uint16(b))
	case *uint32:
		*p = binary.LittleEndian.Uint32(b)
	case *int32:
		*p = int32(binary.LittleEndian.Uint32(b))
	case *uint64:
		*p = binary.LittleEndian.Uint64(b)
	case *int64:
		*p = int64(binary.LittleEndian.Uint64(b))
	case *float32:
		*p = math.Float32frombits(binary.LittleEndian.Uint32(b))
	case *float64:
		*p = math.Float64frombits(binary.LittleEndian.Uint64(b))
	}
	return z
}

// Float16ToFloat32 converts an IEEE 754 half-precision value, including
// subnormals, infinities and NaN.
func Float16ToFloat32(u uint16) float32 {
	s := uint32(u>>15) & 1
	e := uint32(u>>10) & 0x1f
	m := uint32(u) & 0x3ff
	var bits uint32
	switch {
	case e == 0:
		if m == 0 {
			bits = s << 31
		} else {
			// Subnormal: renormalize.
			exp := uint32(113)
			for m&0x400 == 0 {
				m <<= 1
				exp--
			}
			bits = s<<31 | exp<<23 | (m&0x3ff)<<13
		}
	case e == 0x1f:
		bits = s<<31 | 0x7f800000 | m<<13
	default:
		bits = s<<31 | (e+112)<<23 | m<<13
	}
	return math.Float32frombits(bits)
}

// BFloat16ToFloat32 converts a brain-float value. A bfloat16 is the upper
// half of the equivalent float32.
func BFloat16ToFloat32(u uint16) float32 {
	return math.Float32frombits(uint32(u) << 16)
}
