// Package array implements the numeric-array value type signals and
// stores carry: a dtype-tagged, shaped buffer that round-trips losslessly
// through the workspace wire format's {__array__,dtype,shape,data} nested
// list encoding (spec ch.6), and that the scheduler deep-copies before
// handing off to a node so no two nodes ever alias the same buffer
// (spec ch.4.4 point 2).
package array

import (
	"fmt"
)

// Dtype names the element type of an NDArray. Any string is accepted on
// decode (it round-trips opaquely); these are the names builtin nodes use.
type Dtype string

const (
	Float32 Dtype = "float32"
	Float64 Dtype = "float64"
	Int32   Dtype = "int32"
	Int64   Dtype = "int64"
	Bool    Dtype = "bool"
)

// NDArray is a dense, row-major, shaped numeric array. Exactly one of the
// Floats/Ints/Bools backing slices is populated, selected by Dtype's
// family (float32/float64 -> Floats, int32/int64 -> Ints, bool -> Bools).
type NDArray struct {
	Dtype  Dtype
	Shape  []int
	Floats []float64
	Ints   []int64
	Bools  []bool
}

func numel(shape []int) int {
	n := 1
	for _, s := range shape {
		n *= s
	}
	return n
}

// NewFloats builds a float-family NDArray from a flat row-major buffer.
func NewFloats(dtype Dtype, shape []int, data []float64) (NDArray, error) {
	if dtype != Float32 && dtype != Float64 {
		return NDArray{}, fmt.Errorf("array: dtype %q is not a float family", dtype)
	}
	if len(data) != numel(shape) {
		return NDArray{}, fmt.Errorf("array: data length %d does not match shape %v", len(data), shape)
	}
	out := make([]float64, len(data))
	copy(out, data)
	return NDArray{Dtype: dtype, Shape: append([]int(nil), shape...), Floats: out}, nil
}

// NewInts builds an int-family NDArray from a flat row-major buffer.
func NewInts(dtype Dtype, shape []int, data []int64) (NDArray, error) {
	if dtype != Int32 && dtype != Int64 {
		return NDArray{}, fmt.Errorf("array: dtype %q is not an int family", dtype)
	}
	if len(data) != numel(shape) {
		return NDArray{}, fmt.Errorf("array: data length %d does not match shape %v", len(data), shape)
	}
	out := make([]int64, len(data))
	copy(out, data)
	return NDArray{Dtype: dtype, Shape: append([]int(nil), shape...), Ints: out}, nil
}

// NewBools builds a bool NDArray from a flat row-major buffer.
func NewBools(shape []int, data []bool) (NDArray, error) {
	if len(data) != numel(shape) {
		return NDArray{}, fmt.Errorf("array: data length %d does not match shape %v", len(data), shape)
	}
	out := make([]bool, len(data))
	copy(out, data)
	return NDArray{Dtype: Bool, Shape: append([]int(nil), shape...), Bools: out}, nil
}

// Clone deep-copies the array so the caller owns a private buffer. This
// is what the scheduler calls on every feedforward/feedback handoff so
// no node observes the same mutable buffer as another (spec ch.4.4/5).
func (a NDArray) Clone() NDArray {
	out := NDArray{Dtype: a.Dtype, Shape: append([]int(nil), a.Shape...)}
	if a.Floats != nil {
		out.Floats = append([]float64(nil), a.Floats...)
	}
	if a.Ints != nil {
		out.Ints = append([]int64(nil), a.Ints...)
	}
	if a.Bools != nil {
		out.Bools = append([]bool(nil), a.Bools...)
	}
	return out
}

// Equal reports exact value equality (dtype, shape, and every element).
func (a NDArray) Equal(b NDArray) bool {
	if a.Dtype != b.Dtype || len(a.Shape) != len(b.Shape) {
		return false
	}
	for i := range a.Shape {
		if a.Shape[i] != b.Shape[i] {
			return false
		}
	}
	switch {
	case a.Floats != nil || b.Floats != nil:
		if len(a.Floats) != len(b.Floats) {
			return false
		}
		for i := range a.Floats {
			if a.Floats[i] != b.Floats[i] {
				return false
			}
		}
	case a.Ints != nil || b.Ints != nil:
		if len(a.Ints) != len(b.Ints) {
			return false
		}
		for i := range a.Ints {
			if a.Ints[i] != b.Ints[i] {
				return false
			}
		}
	case a.Bools != nil || b.Bools != nil:
		if len(a.Bools) != len(b.Bools) {
			return false
		}
		for i := range a.Bools {
			if a.Bools[i] != b.Bools[i] {
				return false
			}
		}
	}
	return true
}

// NestedList renders the array as the nested-list structure the wire
// format's "data" field carries, innermost dimension last.
func (a NDArray) NestedList() interface{} {
	switch {
	case a.Floats != nil:
		return nestFloats(a.Floats, a.Shape)
	case a.Ints != nil:
		return nestInts(a.Ints, a.Shape)
	default:
		return nestBools(a.Bools, a.Shape)
	}
}

func nestFloats(data []float64, shape []int) interface{} {
	if len(shape) == 0 {
		if len(data) == 0 {
			return []interface{}{}
		}
		return data[0]
	}
	if len(shape) == 1 {
		out := make([]interface{}, len(data))
		for i, v := range data {
			out[i] = v
		}
		return out
	}
	stride := numel(shape[1:])
	out := make([]interface{}, shape[0])
	for i := 0; i < shape[0]; i++ {
		out[i] = nestFloats(data[i*stride:(i+1)*stride], shape[1:])
	}
	return out
}

func nestInts(data []int64, shape []int) interface{} {
	if len(shape) == 0 {
		if len(data) == 0 {
			return []interface{}{}
		}
		return data[0]
	}
	if len(shape) == 1 {
		out := make([]interface{}, len(data))
		for i, v := range data {
			out[i] = v
		}
		return out
	}
	stride := numel(shape[1:])
	out := make([]interface{}, shape[0])
	for i := 0; i < shape[0]; i++ {
		out[i] = nestInts(data[i*stride:(i+1)*stride], shape[1:])
	}
	return out
}

func nestBools(data []bool, shape []int) interface{} {
	if len(shape) == 0 {
		if len(data) == 0 {
			return []interface{}{}
		}
		return data[0]
	}
	if len(shape) == 1 {
		out := make([]interface{}, len(data))
		for i, v := range data {
			out[i] = v
		}
		return out
	}
	stride := numel(shape[1:])
	out := make([]interface{}, shape[0])
	for i := 0; i < shape[0]; i++ {
		out[i] = nestBools(data[i*stride:(i+1)*stride], shape[1:])
	}
	return out
}

// FromNestedList reconstructs an NDArray of the given dtype and shape
// from a nested-list value as produced by a JSON decode of the wire
// format's "data" field (so elements arrive as float64/bool/interface{}).
func FromNestedList(dtype Dtype, shape []int, data interface{}) (NDArray, error) {
	switch dtype {
	case Float32, Float64:
		flat := make([]float64, 0, numel(shape))
		if err := flattenFloats(data, &flat); err != nil {
			return NDArray{}, err
		}
		return NewFloats(dtype, shape, flat)
	case Int32, Int64:
		flat := make([]int64, 0, numel(shape))
		if err := flattenInts(data, &flat); err != nil {
			return NDArray{}, err
		}
		return NewInts(dtype, shape, flat)
	case Bool:
		flat := make([]bool, 0, numel(shape))
		if err := flattenBools(data, &flat); err != nil {
			return NDArray{}, err
		}
		return NewBools(shape, flat)
	default:
		return NDArray{}, fmt.Errorf("array: unrecognized dtype %q", dtype)
	}
}

func flattenFloats(v interface{}, out *[]float64) error {
	switch t := v.(type) {
	case []interface{}:
		for _, e := range t {
			if err := flattenFloats(e, out); err != nil {
				return err
			}
		}
	case float64:
		*out = append(*out, t)
	case int:
		*out = append(*out, float64(t))
	default:
		return fmt.Errorf("array: unexpected element %T in float data", v)
	}
	return nil
}

func flattenInts(v interface{}, out *[]int64) error {
	switch t := v.(type) {
	case []interface{}:
		for _, e := range t {
			if err := flattenInts(e, out); err != nil {
				return err
			}
		}
	case float64:
		*out = append(*out, int64(t))
	case int64:
		*out = append(*out, t)
	case int:
		*out = append(*out, int64(t))
	default:
		return fmt.Errorf("array: unexpected element %T in int data", v)
	}
	return nil
}

func flattenBools(v interface{}, out *[]bool) error {
	switch t := v.(type) {
	case []interface{}:
		for _, e := range t {
			if err := flattenBools(e, out); err != nil {
				return err
			}
		}
	case bool:
		*out = append(*out, t)
	default:
		return fmt.Errorf("array: unexpected element %T in bool data", v)
	}
	return nil
}
