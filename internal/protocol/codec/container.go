package codec

import (
	"fmt"

	"github.com/danmuck/simlink/internal/container"
	"github.com/danmuck/simlink/internal/protocol/schema"
	"github.com/danmuck/simlink/internal/protocol/tlv"
)

// Wire discriminators. They are fixed independently of the in-memory enums.
const (
	wireScalar uint8 = 1
	wireArray  uint8 = 2
	wireTuple  uint8 = 3
	wireDict   uint8 = 4

	wireInt32   uint8 = 1
	wireUint32  uint8 = 2
	wireFloat32 uint8 = 3
	wireFloat64 uint8 = 4
)

func dtypeToWire(d container.Dtype) (uint8, bool) {
	switch d {
	case container.Int32:
		return wireInt32, true
	case container.Uint32:
		return wireUint32, true
	case container.Float32:
		return wireFloat32, true
	case container.Float64:
		return wireFloat64, true
	default:
		return 0, false
	}
}

func dtypeFromWire(v uint8) (container.Dtype, error) {
	switch v {
	case wireInt32:
		return container.Int32, nil
	case wireUint32:
		return container.Uint32, nil
	case wireFloat32:
		return container.Float32, nil
	case wireFloat64:
		return container.Float64, nil
	default:
		return container.DtypeInvalid, fmt.Errorf("%w: %d", ErrUnknownDtype, v)
	}
}

// Check walks c and reports problems EncodeContainer would hit.
// Callers holding values of unknown quality check before encoding so a bad
// tree stays an ordinary error instead of a panic.
func Check(c container.Container) error {
	return check(c, 0)
}

func check(c container.Container, depth int) error {
	if depth > MaxDepth {
		return ErrDepthExceeded
	}
	switch x := c.(type) {
	case nil:
		return ErrNilContainer
	case container.Scalar:
		return nil
	case *container.Array:
		if x == nil {
			return ErrNilContainer
		}
		if !x.Dtype().Valid() {
			return fmt.Errorf("codec: array %w", container.ErrInvalidDtype)
		}
		return nil
	case *container.Tuple:
		if x == nil {
			return ErrNilContainer
		}
		for _, e := range x.Elements() {
			if err := check(e, depth+1); err != nil {
				return err
			}
		}
		return nil
	case *container.Dict:
		if x == nil {
			return ErrNilContainer
		}
		for _, k := range x.Keys() {
			e, _ := x.Get(k)
			if err := check(e, depth+1); err != nil {
				return fmt.Errorf("key %q: %w", k, err)
			}
		}
		return nil
	default:
		return ErrNilContainer
	}
}

// EncodeContainer serializes c to a TLV payload.
// It panics if an Array carries an invalid dtype.
func EncodeContainer(c container.Container) ([]byte, error) {
	fields, err := containerFields(c, 0)
	if err != nil {
		return nil, err
	}
	return tlv.EncodeFields(fields), nil
}

func containerFields(c container.Container, depth int) ([]tlv.Field, error) {
	if depth > MaxDepth {
		return nil, ErrDepthExceeded
	}
	switch x := c.(type) {
	case nil:
		return nil, ErrNilContainer
	case container.Scalar:
		return []tlv.Field{
			tlv.NewU8(schema.FieldKind, wireScalar),
			tlv.NewU32(schema.FieldScalar, x.Value),
		}, nil
	case *container.Array:
		if x == nil {
			return nil, ErrNilContainer
		}
		return arrayFields(x), nil
	case *container.Tuple:
		if x == nil {
			return nil, ErrNilContainer
		}
		fields := []tlv.Field{tlv.NewU8(schema.FieldKind, wireTuple)}
		for _, e := range x.Elements() {
			sub, err := containerFields(e, depth+1)
			if err != nil {
				return nil, err
			}
			fields = append(fields, tlv.NewBytes(schema.FieldElement, tlv.EncodeFields(sub)))
		}
		return fields, nil
	case *container.Dict:
		if x == nil {
			return nil, ErrNilContainer
		}
		fields := []tlv.Field{tlv.NewU8(schema.FieldKind, wireDict)}
		for _, k := range x.Keys() {
			e, _ := x.Get(k)
			sub, err := containerFields(e, depth+1)
			if err != nil {
				return nil, fmt.Errorf("key %q: %w", k, err)
			}
			sub = append(sub, tlv.NewString(schema.FieldName, k))
			fields = append(fields, tlv.NewBytes(schema.FieldElement, tlv.EncodeFields(sub)))
		}
		return fields, nil
	default:
		return nil, fmt.Errorf("codec: unsupported container %T", c)
	}
}

func arrayFields(a *container.Array) []tlv.Field {
	wire, ok := dtypeToWire(a.Dtype())
	if !ok {
		panic(fmt.Sprintf("codec: encode array with %s", a.Dtype()))
	}
	fields := []tlv.Field{
		tlv.NewU8(schema.FieldKind, wireArray),
		tlv.NewU8(schema.FieldDtype, wire),
		tlv.NewU32s(schema.FieldShape, a.Shape()),
	}
	switch a.Dtype() {
	case container.Int32:
		fields = append(fields, tlv.NewI32s(schema.FieldInt32Data, a.Int32s()))
	case container.Uint32:
		fields = append(fields, tlv.NewU32s(schema.FieldUint32Data, a.Uint32s()))
	case container.Float32:
		fields = append(fields, tlv.NewF32s(schema.FieldFloat32Data, a.Float32s()))
	case container.Float64:
		fields = append(fields, tlv.NewF64s(schema.FieldFloat64Data, a.Float64s()))
	}
	return fields
}

// DecodeContainer builds a fresh tree from payload. The result shares no
// memory with payload.
func DecodeContainer(payload []byte) (container.Container, error) {
	return decodeContainer(payload, 0)
}

func decodeContainer(payload []byte, depth int) (container.Container, error) {
	if depth > MaxDepth {
		return nil, ErrTooDeep
	}
	fields, err := tlv.DecodeFields(payload)
	if err != nil {
		return nil, err
	}
	return containerFromFields(fields, depth)
}

func containerFromFields(fields []tlv.Field, depth int) (container.Container, error) {
	kind, err := readKind(fields)
	if err != nil {
		return nil, err
	}
	switch kind {
	case wireScalar:
		f, err := requireField(fields, schema.FieldScalar)
		if err != nil {
			return nil, err
		}
		v, err := f.U32()
		if err != nil {
			return nil, err
		}
		return container.NewScalar(v), nil
	case wireArray:
		a, err := decodeArray(fields)
		if err != nil {
			return nil, err
		}
		return a, nil
	case wireTuple:
		t := container.NewTuple()
		for _, f := range tlv.GetFields(fields, schema.FieldElement) {
			if err := tlv.MustType(f, tlv.TypeBytes); err != nil {
				return nil, err
			}
			e, err := decodeContainer(f.Value, depth+1)
			if err != nil {
				return nil, err
			}
			t.Add(e)
		}
		return t, nil
	case wireDict:
		d := container.NewDict()
		for _, f := range tlv.GetFields(fields, schema.FieldElement) {
			if err := tlv.MustType(f, tlv.TypeBytes); err != nil {
				return nil, err
			}
			if depth+1 > MaxDepth {
				return nil, ErrTooDeep
			}
			sub, err := tlv.DecodeFields(f.Value)
			if err != nil {
				return nil, err
			}
			nf, err := requireField(sub, schema.FieldName)
			if err != nil {
				return nil, err
			}
			name, err := nf.Str()
			if err != nil {
				return nil, err
			}
			e, err := containerFromFields(sub, depth+1)
			if err != nil {
				return nil, fmt.Errorf("key %q: %w", name, err)
			}
			d.Set(name, e)
		}
		return d, nil
	default:
		return nil, fmt.Errorf("%w: %d", ErrUnknownKind, kind)
	}
}

func decodeArray(fields []tlv.Field) (*container.Array, error) {
	df, err := requireField(fields, schema.FieldDtype)
	if err != nil {
		return nil, err
	}
	raw, err := df.U8()
	if err != nil {
		return nil, err
	}
	dtype, err := dtypeFromWire(raw)
	if err != nil {
		return nil, err
	}

	var shape []uint32
	if sf, ok := tlv.GetField(fields, schema.FieldShape); ok {
		if shape, err = sf.U32s(); err != nil {
			return nil, err
		}
	}

	// Only the field matching dtype is read. A missing data field is an
	// empty array.
	switch dtype {
	case container.Int32:
		return readArray(fields, schema.FieldInt32Data, shape, tlv.Field.I32s)
	case container.Uint32:
		return readArray(fields, schema.FieldUint32Data, shape, tlv.Field.U32s)
	case container.Float32:
		return readArray(fields, schema.FieldFloat32Data, shape, tlv.Field.F32s)
	default:
		return readArray(fields, schema.FieldFloat64Data, shape, tlv.Field.F64s)
	}
}

func readArray[T container.Number](fields []tlv.Field, id uint16, shape []uint32, read func(tlv.Field) ([]T, error)) (*container.Array, error) {
	var data []T
	if f, ok := tlv.GetField(fields, id); ok {
		var err error
		if data, err = read(f); err != nil {
			return nil, err
		}
	}
	return container.NewArrayOf(shape, data), nil
}
