// Package codec converts container and space trees to TLV payloads and back.
//
// Every node is one TLV field list led by FieldKind. Nested nodes are carried
// as FieldElement byte fields in order; Dict elements also carry FieldName.
// Decoding never trusts the peer: unknown discriminators, missing fields and
// excessive nesting all fail in the protocol mismatch category.
package codec

import (
	"errors"
	"fmt"

	"github.com/danmuck/simlink/internal/protocol"
	"github.com/danmuck/simlink/internal/protocol/schema"
	"github.com/danmuck/simlink/internal/protocol/tlv"
)

// MaxDepth bounds nesting on both encode and decode.
const MaxDepth = 64

var (
	ErrUnknownKind  = fmt.Errorf("codec: unknown kind: %w", protocol.ErrProtocolMismatch)
	ErrUnknownDtype = fmt.Errorf("codec: unknown dtype: %w", protocol.ErrProtocolMismatch)
	ErrMissingField = fmt.Errorf("codec: missing field: %w", protocol.ErrProtocolMismatch)
	ErrTooDeep      = fmt.Errorf("codec: nesting exceeds %d: %w", MaxDepth, protocol.ErrProtocolMismatch)

	// ErrNilContainer is returned for nil nodes inside a tree. It is an
	// ordinary error: the producing side built a bad value.
	ErrNilContainer = errors.New("codec: nil container")
	// ErrNilSpace is the space counterpart of ErrNilContainer.
	ErrNilSpace = errors.New("codec: nil space")
	// ErrDepthExceeded is returned when a local tree is too deep to encode.
	ErrDepthExceeded = fmt.Errorf("codec: tree deeper than %d", MaxDepth)
)

func requireField(fields []tlv.Field, id uint16) (tlv.Field, error) {
	f, ok := tlv.GetField(fields, id)
	if !ok {
		return tlv.Field{}, fmt.Errorf("%w: id=%d", ErrMissingField, id)
	}
	return f, nil
}

func readKind(fields []tlv.Field) (uint8, error) {
	f, err := requireField(fields, schema.FieldKind)
	if err != nil {
		return 0, err
	}
	return f.U8()
}
