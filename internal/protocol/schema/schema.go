package schema

import (
	"fmt"

	"github.com/danmuck/simlink/internal/logging"
	"github.com/danmuck/simlink/internal/protocol"
	"github.com/danmuck/simlink/internal/protocol/tlv"
)

// Message type IDs carried in the frame header.
const (
	MsgSimInit    uint32 = 1
	MsgSimInitAck uint32 = 2
	MsgEnvState   uint32 = 3
	MsgEnvAct     uint32 = 4
)

// Container and space field IDs.
const (
	FieldKind        uint16 = 1
	FieldScalar      uint16 = 2
	FieldDtype       uint16 = 3
	FieldShape       uint16 = 4
	FieldInt32Data   uint16 = 5
	FieldUint32Data  uint16 = 6
	FieldFloat32Data uint16 = 7
	FieldFloat64Data uint16 = 8
	FieldElement     uint16 = 9
	FieldName        uint16 = 10

	FieldN    uint16 = 20
	FieldLow  uint16 = 21
	FieldHigh uint16 = 22
)

// Envelope field IDs.
const (
	FieldObsSpace uint16 = 100
	FieldActSpace uint16 = 101

	FieldReady         uint16 = 200
	FieldStopRequested uint16 = 201

	FieldObservation uint16 = 300
	FieldReward      uint16 = 301
	FieldGameOver    uint16 = 302
	FieldReason      uint16 = 303
	FieldInfo        uint16 = 304

	FieldAction uint16 = 400
)

type Requirement struct {
	ID       uint16
	Type     uint8
	Optional bool
}

type ValidationError struct {
	MessageType uint32
	FieldID     uint16
	Reason      string
}

func (e ValidationError) Error() string {
	if e.FieldID == 0 {
		return fmt.Sprintf("schema: message_type=%d: %s", e.MessageType, e.Reason)
	}
	return fmt.Sprintf("schema: message_type=%d field=%d: %s", e.MessageType, e.FieldID, e.Reason)
}

// Unwrap places every validation failure in the protocol mismatch category.
func (e ValidationError) Unwrap() error {
	return protocol.ErrProtocolMismatch
}

var requirements = map[uint32][]Requirement{
	MsgSimInit: {
		{ID: FieldObsSpace, Type: tlv.TypeBytes, Optional: true},
		{ID: FieldActSpace, Type: tlv.TypeBytes, Optional: true},
	},
	MsgSimInitAck: {
		{ID: FieldReady, Type: tlv.TypeBool},
		{ID: FieldStopRequested, Type: tlv.TypeBool},
	},
	MsgEnvState: {
		{ID: FieldObservation, Type: tlv.TypeBytes, Optional: true},
		{ID: FieldReward, Type: tlv.TypeF32},
		{ID: FieldGameOver, Type: tlv.TypeBool},
		{ID: FieldReason, Type: tlv.TypeU8},
		{ID: FieldInfo, Type: tlv.TypeString},
	},
	MsgEnvAct: {
		{ID: FieldStopRequested, Type: tlv.TypeBool},
		{ID: FieldAction, Type: tlv.TypeBytes, Optional: true},
	},
}

// MessageName is used in logs.
func MessageName(messageType uint32) string {
	switch messageType {
	case MsgSimInit:
		return "sim.init"
	case MsgSimInitAck:
		return "sim.init.ack"
	case MsgEnvState:
		return "env.state"
	case MsgEnvAct:
		return "env.act"
	default:
		return fmt.Sprintf("unknown(%d)", messageType)
	}
}

// Validate enforces required fields and field types for a message type.
// Unknown fields are ignored.
func Validate(messageType uint32, fields []tlv.Field) error {
	logging.Tracef("schema.Validate message_type=%d fields=%d", messageType, len(fields))
	reqs, ok := requirements[messageType]
	if !ok {
		logging.Errf("schema.Validate unknown message_type=%d", messageType)
		return ValidationError{MessageType: messageType, Reason: "unknown message_type"}
	}
	for _, req := range reqs {
		f, found := tlv.GetField(fields, req.ID)
		if !found {
			if req.Optional {
				continue
			}
			logging.Errf(
				"schema.Validate missing field message_type=%d field_id=%d",
				messageType,
				req.ID,
			)
			return ValidationError{MessageType: messageType, FieldID: req.ID, Reason: "missing required field"}
		}
		if f.Type != req.Type {
			logging.Errf(
				"schema.Validate type mismatch message_type=%d field_id=%d got=%d want=%d",
				messageType,
				req.ID,
				f.Type,
				req.Type,
			)
			return ValidationError{MessageType: messageType, FieldID: req.ID, Reason: "type mismatch"}
		}
	}
	return nil
}
