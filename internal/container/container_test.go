package container

import (
	"errors"
	"math"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestArrayDtypeFixedAtConstruction(t *testing.T) {
	a := NewArray(Float32, 2)
	require.NoError(t, a.Append(float32(1.5)))

	err := a.Append(int32(3))
	require.Error(t, err)
	assert.True(t, errors.Is(err, ErrDtypeMismatch))

	err = a.SetData([]float64{1, 2})
	assert.True(t, errors.Is(err, ErrDtypeMismatch))
	assert.Equal(t, Float32, a.Dtype())
	assert.Equal(t, []float32{1.5}, a.Float32s())
}

func TestNewArrayOfDerivesDtype(t *testing.T) {
	assert.Equal(t, Int32, NewArrayOf([]uint32{1}, []int32{42}).Dtype())
	assert.Equal(t, Uint32, NewArrayOf(nil, []uint32{1}).Dtype())
	assert.Equal(t, Float32, NewArrayOf(nil, []float32{1}).Dtype())
	assert.Equal(t, Float64, NewArrayOf(nil, []float64{1}).Dtype())

	a := NewArrayOf([]uint32{3}, []float64{1, 2, 3})
	vals, ok := ValuesOf[float64](a)
	require.True(t, ok)
	assert.Equal(t, []float64{1, 2, 3}, vals)

	_, ok = ValuesOf[int32](a)
	assert.False(t, ok)
}

func TestNewArrayInvalidDtypePanics(t *testing.T) {
	assert.Panics(t, func() { NewArray(DtypeInvalid) })
}

// Shape is carried as metadata only; a mismatched shape is still a valid array.
func TestShapeIsAdvisory(t *testing.T) {
	a := NewArrayOf([]uint32{2, 2}, []int32{1, 2, 3})
	assert.False(t, a.ShapeConsistent())
	assert.Equal(t, 3, a.Len())
	assert.Equal(t, []uint32{2, 2}, a.Shape())

	b := NewArrayOf([]uint32{2, 2}, []float32{1, 2, 3, 4})
	assert.True(t, b.ShapeConsistent())
	assert.True(t, NewArrayOf(nil, []uint32{9}).ShapeConsistent())
}

func TestDictOverwritesAndSortsKeys(t *testing.T) {
	d := NewDict()
	d.Set("obs2", NewScalar(2))
	d.Set("obs1", NewScalar(1))
	d.Set("obs2", NewScalar(5))

	assert.Equal(t, 2, d.Len())
	assert.Equal(t, []string{"obs1", "obs2"}, d.Keys())
	got, ok := d.Get("obs2")
	require.True(t, ok)
	assert.Equal(t, NewScalar(5), got)
}

func TestStringFormats(t *testing.T) {
	d := NewDict()
	d.Set("b", NewScalar(2))
	d.Set("a", NewArrayOf(nil, []float64{0.5, 1}))
	tree := NewTuple(NewScalar(7), NewArrayOf([]uint32{1}, []int32{42}), d)

	assert.Equal(t, "Tuple(7, [42], Dict(a=[0.5, 1], b=2))", tree.String())
}

func TestEqual(t *testing.T) {
	nan := float32(math.NaN())
	a := NewTuple(NewScalar(3), NewArrayOf([]uint32{2}, []float32{1, nan}))
	b := NewTuple(NewScalar(3), NewArrayOf([]uint32{2}, []float32{1, nan}))
	assert.True(t, Equal(a, b))

	c := NewTuple(NewArrayOf([]uint32{2}, []float32{1, nan}), NewScalar(3))
	assert.False(t, Equal(a, c), "tuple order is significant")

	assert.False(t, Equal(NewArrayOf([]uint32{1}, []int32{1}), NewArrayOf([]uint32{1}, []uint32{1})))
	assert.False(t, Equal(NewArrayOf([]uint32{1}, []int32{1}), NewArrayOf([]uint32{2}, []int32{1})))
	assert.True(t, Equal(nil, nil))
	assert.False(t, Equal(NewScalar(0), nil))
}

func TestParseDtype(t *testing.T) {
	for _, d := range []Dtype{Int32, Uint32, Float32, Float64} {
		got, err := ParseDtype(d.String())
		require.NoError(t, err)
		assert.Equal(t, d, got)
	}
	_, err := ParseDtype("complex128")
	assert.True(t, errors.Is(err, ErrInvalidDtype))
}
