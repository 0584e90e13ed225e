package codec

import (
	"fmt"

	"github.com/danmuck/simlink/internal/container"
	"github.com/danmuck/simlink/internal/protocol/schema"
	"github.com/danmuck/simlink/internal/protocol/tlv"
	"github.com/danmuck/simlink/internal/space"
)

const (
	wireDiscrete  uint8 = 1
	wireBox       uint8 = 2
	wireSpaceTup  uint8 = 3
	wireSpaceDict uint8 = 4
)

// EncodeSpace serializes a space descriptor.
func EncodeSpace(s space.Space) ([]byte, error) {
	fields, err := spaceFields(s, 0)
	if err != nil {
		return nil, err
	}
	return tlv.EncodeFields(fields), nil
}

func spaceFields(s space.Space, depth int) ([]tlv.Field, error) {
	if depth > MaxDepth {
		return nil, ErrDepthExceeded
	}
	switch x := s.(type) {
	case nil:
		return nil, ErrNilSpace
	case space.Discrete:
		return []tlv.Field{
			tlv.NewU8(schema.FieldKind, wireDiscrete),
			tlv.NewU32(schema.FieldN, x.N),
		}, nil
	case space.Box:
		wire, ok := dtypeToWire(x.Dtype)
		if !ok {
			return nil, fmt.Errorf("codec: box %w", container.ErrInvalidDtype)
		}
		return []tlv.Field{
			tlv.NewU8(schema.FieldKind, wireBox),
			tlv.NewF64(schema.FieldLow, x.Low),
			tlv.NewF64(schema.FieldHigh, x.High),
			tlv.NewU32s(schema.FieldShape, x.Shape),
			tlv.NewU8(schema.FieldDtype, wire),
		}, nil
	case space.Tuple:
		fields := []tlv.Field{tlv.NewU8(schema.FieldKind, wireSpaceTup)}
		for _, e := range x.Spaces {
			sub, err := spaceFields(e, depth+1)
			if err != nil {
				return nil, err
			}
			fields = append(fields, tlv.NewBytes(schema.FieldElement, tlv.EncodeFields(sub)))
		}
		return fields, nil
	case *space.Dict:
		if x == nil {
			return nil, ErrNilSpace
		}
		fields := []tlv.Field{tlv.NewU8(schema.FieldKind, wireSpaceDict)}
		for _, k := range x.Keys() {
			e, _ := x.Get(k)
			sub, err := spaceFields(e, depth+1)
			if err != nil {
				return nil, fmt.Errorf("key %q: %w", k, err)
			}
			sub = append(sub, tlv.NewString(schema.FieldName, k))
			fields = append(fields, tlv.NewBytes(schema.FieldElement, tlv.EncodeFields(sub)))
		}
		return fields, nil
	default:
		return nil, fmt.Errorf("codec: unsupported space %T", s)
	}
}

// DecodeSpace parses a space descriptor.
func DecodeSpace(payload []byte) (space.Space, error) {
	return decodeSpace(payload, 0)
}

func decodeSpace(payload []byte, depth int) (space.Space, error) {
	if depth > MaxDepth {
		return nil, ErrTooDeep
	}
	fields, err := tlv.DecodeFields(payload)
	if err != nil {
		return nil, err
	}
	return spaceFromFields(fields, depth)
}

func spaceFromFields(fields []tlv.Field, depth int) (space.Space, error) {
	kind, err := readKind(fields)
	if err != nil {
		return nil, err
	}
	switch kind {
	case wireDiscrete:
		f, err := requireField(fields, schema.FieldN)
		if err != nil {
			return nil, err
		}
		n, err := f.U32()
		if err != nil {
			return nil, err
		}
		return space.Discrete{N: n}, nil
	case wireBox:
		b, err := decodeBox(fields)
		if err != nil {
			return nil, err
		}
		return b, nil
	case wireSpaceTup:
		t := space.NewTuple()
		for _, f := range tlv.GetFields(fields, schema.FieldElement) {
			if err := tlv.MustType(f, tlv.TypeBytes); err != nil {
				return nil, err
			}
			e, err := decodeSpace(f.Value, depth+1)
			if err != nil {
				return nil, err
			}
			t.Spaces = append(t.Spaces, e)
		}
		return t, nil
	case wireSpaceDict:
		d := space.NewDict()
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
			e, err := spaceFromFields(sub, depth+1)
			if err != nil {
				return nil, fmt.Errorf("key %q: %w", name, err)
			}
			d.Set(name, e)
		}
		return d, nil
	default:
		return nil, fmt.Errorf("%w: space %d", ErrUnknownKind, kind)
	}
}

func decodeBox(fields []tlv.Field) (space.Box, error) {
	var b space.Box
	lf, err := requireField(fields, schema.FieldLow)
	if err != nil {
		return b, err
	}
	hf, err := requireField(fields, schema.FieldHigh)
	if err != nil {
		return b, err
	}
	df, err := requireField(fields, schema.FieldDtype)
	if err != nil {
		return b, err
	}
	if b.Low, err = lf.F64(); err != nil {
		return b, err
	}
	if b.High, err = hf.F64(); err != nil {
		return b, err
	}
	raw, err := df.U8()
	if err != nil {
		return b, err
	}
	if b.Dtype, err = dtypeFromWire(raw); err != nil {
		return b, err
	}
	if sf, ok := tlv.GetField(fields, schema.FieldShape); ok {
		shape, err := sf.U32s()
		if err != nil {
			return b, err
		}
		if len(shape) > 0 {
			b.Shape = shape
		}
	}
	return b, nil
}
