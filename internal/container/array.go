package container

import (
	"fmt"
	"strconv"
	"strings"
)

// Dtype tags the element type of an Array. The zero value is invalid.
type Dtype uint8

const (
	DtypeInvalid Dtype = iota
	Int32
	Uint32
	Float32
	Float64
)

func (d Dtype) Valid() bool {
	return d >= Int32 && d <= Float64
}

func (d Dtype) String() string {
	switch d {
	case Int32:
		return "int32"
	case Uint32:
		return "uint32"
	case Float32:
		return "float32"
	case Float64:
		return "float64"
	default:
		return fmt.Sprintf("dtype(%d)", uint8(d))
	}
}

// ParseDtype accepts the names produced by Dtype.String.
func ParseDtype(raw string) (Dtype, error) {
	switch strings.ToLower(strings.TrimSpace(raw)) {
	case "int32", "int":
		return Int32, nil
	case "uint32", "uint":
		return Uint32, nil
	case "float32", "float":
		return Float32, nil
	case "float64", "double":
		return Float64, nil
	default:
		return DtypeInvalid, fmt.Errorf("%w: %q", ErrInvalidDtype, raw)
	}
}

// Number is the set of element types an Array can store.
type Number interface {
	~int32 | ~uint32 | ~float32 | ~float64
}

// DtypeOf returns the tag matching T.
func DtypeOf[T Number]() Dtype {
	var zero T
	switch any(zero).(type) {
	case int32:
		return Int32
	case uint32:
		return Uint32
	case float32:
		return Float32
	case float64:
		return Float64
	default:
		return DtypeInvalid
	}
}

// Array is a flat numeric sequence with a dtype fixed at construction.
// Only the storage arm matching dtype is ever populated.
//
// Shape is metadata: nothing in this package or the codec checks it against
// the element count. Use ShapeConsistent when the caller cares.
type Array struct {
	dtype Dtype
	shape []uint32
	i32   []int32
	u32   []uint32
	f32   []float32
	f64   []float64
}

// NewArray returns an empty array. It panics on an invalid dtype.
func NewArray(dtype Dtype, shape ...uint32) *Array {
	if !dtype.Valid() {
		panic(fmt.Sprintf("container: NewArray with %s", dtype))
	}
	return &Array{dtype: dtype, shape: cloneShape(shape)}
}

// NewArrayOf builds an array whose dtype is derived from T.
func NewArrayOf[T Number](shape []uint32, data []T) *Array {
	a := NewArray(DtypeOf[T](), shape...)
	switch v := any(data).(type) {
	case []int32:
		a.i32 = append([]int32(nil), v...)
	case []uint32:
		a.u32 = append([]uint32(nil), v...)
	case []float32:
		a.f32 = append([]float32(nil), v...)
	case []float64:
		a.f64 = append([]float64(nil), v...)
	}
	return a
}

func (*Array) Kind() Kind { return KindArray }

func (*Array) isContainer() {}

func (a *Array) Dtype() Dtype { return a.dtype }

func (a *Array) Shape() []uint32 { return cloneShape(a.shape) }

func (a *Array) SetShape(shape ...uint32) { a.shape = cloneShape(shape) }

func (a *Array) Len() int {
	switch a.dtype {
	case Int32:
		return len(a.i32)
	case Uint32:
		return len(a.u32)
	case Float32:
		return len(a.f32)
	case Float64:
		return len(a.f64)
	default:
		return 0
	}
}

// ShapeConsistent reports whether the product of the shape equals Len.
// An empty shape is treated as a flat vector and is always consistent.
func (a *Array) ShapeConsistent() bool {
	if len(a.shape) == 0 {
		return true
	}
	n := 1
	for _, d := range a.shape {
		n *= int(d)
	}
	return n == a.Len()
}

// Append adds one element. v must match the array dtype exactly.
func (a *Array) Append(v any) error {
	switch x := v.(type) {
	case int32:
		if a.dtype != Int32 {
			return a.mismatch(Int32)
		}
		a.i32 = append(a.i32, x)
	case uint32:
		if a.dtype != Uint32 {
			return a.mismatch(Uint32)
		}
		a.u32 = append(a.u32, x)
	case float32:
		if a.dtype != Float32 {
			return a.mismatch(Float32)
		}
		a.f32 = append(a.f32, x)
	case float64:
		if a.dtype != Float64 {
			return a.mismatch(Float64)
		}
		a.f64 = append(a.f64, x)
	default:
		return fmt.Errorf("%w: unsupported element %T", ErrDtypeMismatch, v)
	}
	return nil
}

// SetData replaces the elements. data must be a slice of the array dtype.
func (a *Array) SetData(data any) error {
	switch x := data.(type) {
	case []int32:
		if a.dtype != Int32 {
			return a.mismatch(Int32)
		}
		a.i32 = append([]int32(nil), x...)
	case []uint32:
		if a.dtype != Uint32 {
			return a.mismatch(Uint32)
		}
		a.u32 = append([]uint32(nil), x...)
	case []float32:
		if a.dtype != Float32 {
			return a.mismatch(Float32)
		}
		a.f32 = append([]float32(nil), x...)
	case []float64:
		if a.dtype != Float64 {
			return a.mismatch(Float64)
		}
		a.f64 = append([]float64(nil), x...)
	default:
		return fmt.Errorf("%w: unsupported data %T", ErrDtypeMismatch, data)
	}
	return nil
}

func (a *Array) mismatch(got Dtype) error {
	return fmt.Errorf("%w: array is %s, value is %s", ErrDtypeMismatch, a.dtype, got)
}

// Int32s returns the backing slice for an Int32 array, or nil.
func (a *Array) Int32s() []int32 { return a.i32 }

// Uint32s returns the backing slice for a Uint32 array, or nil.
func (a *Array) Uint32s() []uint32 { return a.u32 }

// Float32s returns the backing slice for a Float32 array, or nil.
func (a *Array) Float32s() []float32 { return a.f32 }

// Float64s returns the backing slice for a Float64 array, or nil.
func (a *Array) Float64s() []float64 { return a.f64 }

// ValuesOf returns the elements when T matches the array dtype.
func ValuesOf[T Number](a *Array) ([]T, bool) {
	if a == nil || a.dtype != DtypeOf[T]() {
		return nil, false
	}
	var out any
	switch a.dtype {
	case Int32:
		out = a.i32
	case Uint32:
		out = a.u32
	case Float32:
		out = a.f32
	case Float64:
		out = a.f64
	}
	v, ok := out.([]T)
	return v, ok
}

// Float64At widens element i to float64 regardless of dtype.
func (a *Array) Float64At(i int) float64 {
	switch a.dtype {
	case Int32:
		return float64(a.i32[i])
	case Uint32:
		return float64(a.u32[i])
	case Float32:
		return float64(a.f32[i])
	default:
		return a.f64[i]
	}
}

func (a *Array) String() string {
	var b strings.Builder
	b.WriteByte('[')
	for i := 0; i < a.Len(); i++ {
		if i > 0 {
			b.WriteString(", ")
		}
		switch a.dtype {
		case Int32:
			b.WriteString(strconv.FormatInt(int64(a.i32[i]), 10))
		case Uint32:
			b.WriteString(strconv.FormatUint(uint64(a.u32[i]), 10))
		case Float32:
			b.WriteString(strconv.FormatFloat(float64(a.f32[i]), 'g', -1, 32))
		case Float64:
			b.WriteString(strconv.FormatFloat(a.f64[i], 'g', -1, 64))
		}
	}
	b.WriteByte(']')
	return b.String()
}

func cloneShape(shape []uint32) []uint32 {
	if len(shape) == 0 {
		return nil
	}
	return append([]uint32(nil), shape...)
}
