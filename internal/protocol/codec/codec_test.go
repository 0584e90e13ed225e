package codec

import (
	"errors"
	"math"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/danmuck/simlink/internal/container"
	"github.com/danmuck/simlink/internal/protocol"
	"github.com/danmuck/simlink/internal/protocol/schema"
	"github.com/danmuck/simlink/internal/protocol/tlv"
	"github.com/danmuck/simlink/internal/space"
)

func roundTrip(t *testing.T, in container.Container) container.Container {
	t.Helper()
	b, err := EncodeContainer(in)
	require.NoError(t, err)
	out, err := DecodeContainer(b)
	require.NoError(t, err)
	return out
}

func TestScalarRoundTrip(t *testing.T) {
	out := roundTrip(t, container.NewScalar(7))
	s, ok := out.(container.Scalar)
	require.True(t, ok, "got %T", out)
	assert.Equal(t, uint32(7), s.Value)
}

func TestFloat32ArrayRoundTrip(t *testing.T) {
	in := container.NewArrayOf([]uint32{2, 2}, []float32{1.0, 2.0, 3.0, 4.0})
	out := roundTrip(t, in)
	a, ok := out.(*container.Array)
	require.True(t, ok)
	assert.Equal(t, container.Float32, a.Dtype())
	assert.Equal(t, []uint32{2, 2}, a.Shape())
	assert.Equal(t, []float32{1.0, 2.0, 3.0, 4.0}, a.Float32s())
	assert.Nil(t, a.Int32s())
}

func TestEveryDtypeRoundTrips(t *testing.T) {
	cases := []container.Container{
		container.NewArrayOf([]uint32{3}, []int32{-5, 0, math.MaxInt32}),
		container.NewArrayOf([]uint32{2}, []uint32{0, math.MaxUint32}),
		container.NewArrayOf(nil, []float32{float32(math.Inf(-1)), 0.5}),
		container.NewArrayOf([]uint32{1, 2}, []float64{math.NaN(), -0.0}),
		container.NewArray(container.Float64),
	}
	for _, in := range cases {
		assert.True(t, container.Equal(in, roundTrip(t, in)), "round trip of %s", in)
	}
}

func TestTupleRoundTripPreservesOrder(t *testing.T) {
	in := container.NewTuple(
		container.NewScalar(3),
		container.NewArrayOf([]uint32{1}, []int32{42}),
	)
	out := roundTrip(t, in)
	tup, ok := out.(*container.Tuple)
	require.True(t, ok)
	require.Equal(t, 2, tup.Len())
	first, _ := tup.Get(0)
	assert.Equal(t, container.NewScalar(3), first)
	second, _ := tup.Get(1)
	assert.Equal(t, []int32{42}, second.(*container.Array).Int32s())
	assert.Equal(t, "Tuple(3, [42])", out.String())
}

func TestDictRoundTripByName(t *testing.T) {
	in := container.NewDict()
	in.Set("obs1", container.NewScalar(1))
	in.Set("obs2", container.NewScalar(2))
	out := roundTrip(t, in)
	d, ok := out.(*container.Dict)
	require.True(t, ok)
	v1, ok := d.Get("obs1")
	require.True(t, ok)
	v2, ok := d.Get("obs2")
	require.True(t, ok)
	assert.Equal(t, container.NewScalar(1), v1)
	assert.Equal(t, container.NewScalar(2), v2)
}

func TestNestedRoundTrip(t *testing.T) {
	inner := container.NewDict()
	inner.Set("pos", container.NewArrayOf([]uint32{3}, []float64{0.1, 0.2, 0.3}))
	inner.Set("id", container.NewScalar(9))
	in := container.NewTuple(
		inner,
		container.NewTuple(),
		container.NewTuple(container.NewTuple(container.NewScalar(1))),
		container.NewDict(),
	)
	assert.True(t, container.Equal(in, roundTrip(t, in)))
}

func TestShapeIsNotValidatedAgainstData(t *testing.T) {
	// Shape says 4 elements, data has 3. The codec carries both unchanged.
	in := container.NewArrayOf([]uint32{2, 2}, []int32{1, 2, 3})
	require.False(t, in.ShapeConsistent())
	out := roundTrip(t, in).(*container.Array)
	assert.Equal(t, []uint32{2, 2}, out.Shape())
	assert.Equal(t, []int32{1, 2, 3}, out.Int32s())
	assert.False(t, out.ShapeConsistent())
}

func TestUnknownKindIsFatal(t *testing.T) {
	payload := tlv.EncodeFields([]tlv.Field{tlv.NewU8(schema.FieldKind, 9)})
	_, err := DecodeContainer(payload)
	require.Error(t, err)
	assert.True(t, errors.Is(err, ErrUnknownKind))
	assert.True(t, errors.Is(err, protocol.ErrProtocolMismatch))
	assert.True(t, protocol.IsFatal(err))
}

func TestUnknownDtypeIsFatal(t *testing.T) {
	payload := tlv.EncodeFields([]tlv.Field{
		tlv.NewU8(schema.FieldKind, wireArray),
		tlv.NewU8(schema.FieldDtype, 42),
	})
	_, err := DecodeContainer(payload)
	assert.True(t, errors.Is(err, ErrUnknownDtype))
	assert.True(t, protocol.IsFatal(err))
}

func TestNestedUnknownKindSurfaces(t *testing.T) {
	bad := tlv.EncodeFields([]tlv.Field{tlv.NewU8(schema.FieldKind, 0)})
	payload := tlv.EncodeFields([]tlv.Field{
		tlv.NewU8(schema.FieldKind, wireTuple),
		tlv.NewBytes(schema.FieldElement, bad),
	})
	_, err := DecodeContainer(payload)
	assert.True(t, errors.Is(err, ErrUnknownKind))
}

func TestDecodeMissingKindAndName(t *testing.T) {
	_, err := DecodeContainer(nil)
	assert.True(t, errors.Is(err, ErrMissingField))

	elem := tlv.EncodeFields([]tlv.Field{
		tlv.NewU8(schema.FieldKind, wireScalar),
		tlv.NewU32(schema.FieldScalar, 1),
	})
	payload := tlv.EncodeFields([]tlv.Field{
		tlv.NewU8(schema.FieldKind, wireDict),
		tlv.NewBytes(schema.FieldElement, elem),
	})
	_, err = DecodeContainer(payload)
	assert.True(t, errors.Is(err, ErrMissingField))
	assert.True(t, protocol.IsFatal(err))
}

func TestDecodeTruncatedPayloadIsFatal(t *testing.T) {
	b, err := EncodeContainer(container.NewArrayOf(nil, []float64{1, 2}))
	require.NoError(t, err)
	_, err = DecodeContainer(b[:len(b)-3])
	assert.True(t, protocol.IsFatal(err))
}

func TestDecodeDepthLimit(t *testing.T) {
	payload := tlv.EncodeFields([]tlv.Field{tlv.NewU8(schema.FieldKind, wireScalar), tlv.NewU32(schema.FieldScalar, 0)})
	for i := 0; i <= MaxDepth+1; i++ {
		payload = tlv.EncodeFields([]tlv.Field{
			tlv.NewU8(schema.FieldKind, wireTuple),
			tlv.NewBytes(schema.FieldElement, payload),
		})
	}
	_, err := DecodeContainer(payload)
	assert.True(t, errors.Is(err, ErrTooDeep))
}

func TestEncodeInvalidDtypePanics(t *testing.T) {
	assert.Panics(t, func() {
		_, _ = EncodeContainer(&container.Array{})
	})
}

func TestCheckReportsOrdinaryErrors(t *testing.T) {
	assert.NoError(t, Check(container.NewTuple(container.NewScalar(1))))

	err := Check(container.NewTuple(&container.Array{}))
	assert.True(t, errors.Is(err, container.ErrInvalidDtype))
	assert.False(t, protocol.IsFatal(err))

	err = Check(container.NewTuple(nil))
	assert.True(t, errors.Is(err, ErrNilContainer))
	assert.False(t, protocol.IsFatal(err))

	_, err = EncodeContainer(nil)
	assert.True(t, errors.Is(err, ErrNilContainer))
}

func TestSpaceRoundTrip(t *testing.T) {
	d := space.NewDict()
	d.Set("pos", space.Box{Low: -1, High: 1, Shape: []uint32{3}, Dtype: container.Float32})
	d.Set("mode", space.Discrete{N: 4})
	in := space.NewTuple(d, space.Discrete{N: 2}, space.NewTuple())

	b, err := EncodeSpace(in)
	require.NoError(t, err)
	out, err := DecodeSpace(b)
	require.NoError(t, err)
	assert.True(t, space.Equal(in, out), "got %s", out)
}

func TestSpaceEncodeErrors(t *testing.T) {
	_, err := EncodeSpace(nil)
	assert.True(t, errors.Is(err, ErrNilSpace))

	_, err = EncodeSpace(space.Box{Low: 0, High: 1})
	assert.True(t, errors.Is(err, container.ErrInvalidDtype))
	assert.False(t, protocol.IsFatal(err))
}

func TestSpaceUnknownKindIsFatal(t *testing.T) {
	_, err := DecodeSpace(tlv.EncodeFields([]tlv.Field{tlv.NewU8(schema.FieldKind, 77)}))
	assert.True(t, errors.Is(err, ErrUnknownKind))
	assert.True(t, protocol.IsFatal(err))
}
