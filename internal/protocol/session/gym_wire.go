package session

import (
	"errors"
	"fmt"

	"github.com/danmuck/simlink/internal/container"
	"github.com/danmuck/simlink/internal/protocol"
	"github.com/danmuck/simlink/internal/protocol/codec"
	"github.com/danmuck/simlink/internal/protocol/frame"
	"github.com/danmuck/simlink/internal/protocol/schema"
	"github.com/danmuck/simlink/internal/protocol/tlv"
	"github.com/danmuck/simlink/internal/space"
)

// ErrInvalidObservation marks an observation the simulator side could not
// encode. It is not fatal; the step proceeds without an observation.
var ErrInvalidObservation = errors.New("session: invalid observation")

// ErrUnexpectedMessage is returned when a frame carries the wrong message type.
var ErrUnexpectedMessage = fmt.Errorf("session: unexpected message type: %w", protocol.ErrProtocolMismatch)

// Reason tells the controller why a state reports game over.
type Reason uint8

const (
	ReasonNone Reason = iota
	ReasonGameOver
	ReasonSimulationEnded
)

func (r Reason) String() string {
	switch r {
	case ReasonNone:
		return "none"
	case ReasonGameOver:
		return "game_over"
	case ReasonSimulationEnded:
		return "simulation_ended"
	default:
		return fmt.Sprintf("reason(%d)", uint8(r))
	}
}

// SimInit opens a session. Either space may be nil.
type SimInit struct {
	ObservationSpace space.Space
	ActionSpace      space.Space
}

// SimInitAck answers SimInit.
type SimInitAck struct {
	Ready         bool
	StopRequested bool
}

// EnvState is sent by the simulator once per step.
type EnvState struct {
	Observation container.Container
	Reward      float32
	GameOver    bool
	Reason      Reason
	Info        string
}

// EnvAct answers EnvState. Action is nil on the first step after a reset.
type EnvAct struct {
	StopRequested bool
	Action        container.Container
}

// Session encoder for init envelope into framed protocol message bytes.
func EncodeSimInitFrame(messageID uint64, msg SimInit, limits frame.Limits) ([]byte, error) {
	var fields []tlv.Field
	if msg.ObservationSpace != nil {
		b, err := codec.EncodeSpace(msg.ObservationSpace)
		if err != nil {
			return nil, fmt.Errorf("session: observation space: %w", err)
		}
		fields = append(fields, tlv.NewBytes(schema.FieldObsSpace, b))
	}
	if msg.ActionSpace != nil {
		b, err := codec.EncodeSpace(msg.ActionSpace)
		if err != nil {
			return nil, fmt.Errorf("session: action space: %w", err)
		}
		fields = append(fields, tlv.NewBytes(schema.FieldActSpace, b))
	}
	return encodeFrame(messageID, schema.MsgSimInit, fields, limits)
}

// Session decoder for one init frame.
func DecodeSimInitFrame(f frame.Frame) (SimInit, error) {
	fields, err := decodeFrameFields(f, schema.MsgSimInit)
	if err != nil {
		return SimInit{}, err
	}
	var msg SimInit
	if sf, ok := tlv.GetField(fields, schema.FieldObsSpace); ok {
		if msg.ObservationSpace, err = codec.DecodeSpace(sf.Value); err != nil {
			return SimInit{}, fmt.Errorf("session: observation space: %w", err)
		}
	}
	if sf, ok := tlv.GetField(fields, schema.FieldActSpace); ok {
		if msg.ActionSpace, err = codec.DecodeSpace(sf.Value); err != nil {
			return SimInit{}, fmt.Errorf("session: action space: %w", err)
		}
	}
	return msg, nil
}

// Session encoder for init ack envelope.
func EncodeSimInitAckFrame(messageID uint64, msg SimInitAck, limits frame.Limits) ([]byte, error) {
	fields := []tlv.Field{
		tlv.NewBool(schema.FieldReady, msg.Ready),
		tlv.NewBool(schema.FieldStopRequested, msg.StopRequested),
	}
	return encodeFrame(messageID, schema.MsgSimInitAck, fields, limits)
}

// Session decoder for one init ack frame.
func DecodeSimInitAckFrame(f frame.Frame) (SimInitAck, error) {
	fields, err := decodeFrameFields(f, schema.MsgSimInitAck)
	if err != nil {
		return SimInitAck{}, err
	}
	var msg SimInitAck
	if msg.Ready, err = requiredBool(fields, schema.FieldReady); err != nil {
		return SimInitAck{}, err
	}
	if msg.StopRequested, err = requiredBool(fields, schema.FieldStopRequested); err != nil {
		return SimInitAck{}, err
	}
	return msg, nil
}

// EncodeObservation checks and encodes an observation. A nil observation
// yields nil bytes. Bad trees return ErrInvalidObservation.
func EncodeObservation(obs container.Container) ([]byte, error) {
	if obs == nil {
		return nil, nil
	}
	if err := codec.Check(obs); err != nil {
		return nil, fmt.Errorf("%w: %v", ErrInvalidObservation, err)
	}
	b, err := codec.EncodeContainer(obs)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrInvalidObservation, err)
	}
	return b, nil
}

// EncodeEnvStateFrame encodes a state whose observation is already encoded.
// obs may be nil.
func EncodeEnvStateFrame(messageID uint64, msg EnvState, obs []byte, limits frame.Limits) ([]byte, error) {
	var fields []tlv.Field
	if obs != nil {
		fields = append(fields, tlv.NewBytes(schema.FieldObservation, obs))
	}
	fields = append(fields,
		tlv.NewF32(schema.FieldReward, msg.Reward),
		tlv.NewBool(schema.FieldGameOver, msg.GameOver),
		tlv.NewU8(schema.FieldReason, uint8(msg.Reason)),
		tlv.NewString(schema.FieldInfo, msg.Info),
	)
	return encodeFrame(messageID, schema.MsgEnvState, fields, limits)
}

// Session decoder for one state frame.
func DecodeEnvStateFrame(f frame.Frame) (EnvState, error) {
	fields, err := decodeFrameFields(f, schema.MsgEnvState)
	if err != nil {
		return EnvState{}, err
	}
	var msg EnvState
	if of, ok := tlv.GetField(fields, schema.FieldObservation); ok {
		if msg.Observation, err = codec.DecodeContainer(of.Value); err != nil {
			return EnvState{}, fmt.Errorf("session: observation: %w", err)
		}
	}
	rf, _ := tlv.GetField(fields, schema.FieldReward)
	if msg.Reward, err = rf.F32(); err != nil {
		return EnvState{}, err
	}
	if msg.GameOver, err = requiredBool(fields, schema.FieldGameOver); err != nil {
		return EnvState{}, err
	}
	reason, _ := tlv.GetField(fields, schema.FieldReason)
	raw, err := reason.U8()
	if err != nil {
		return EnvState{}, err
	}
	if raw > uint8(ReasonSimulationEnded) {
		return EnvState{}, fmt.Errorf("session: unknown reason %d: %w", raw, protocol.ErrProtocolMismatch)
	}
	msg.Reason = Reason(raw)
	info, _ := tlv.GetField(fields, schema.FieldInfo)
	if msg.Info, err = info.Str(); err != nil {
		return EnvState{}, err
	}
	return msg, nil
}

// Session encoder for action envelope. A nil action is sent as absent.
func EncodeEnvActFrame(messageID uint64, msg EnvAct, limits frame.Limits) ([]byte, error) {
	fields := []tlv.Field{tlv.NewBool(schema.FieldStopRequested, msg.StopRequested)}
	if msg.Action != nil {
		b, err := codec.EncodeContainer(msg.Action)
		if err != nil {
			return nil, fmt.Errorf("session: action: %w", err)
		}
		fields = append(fields, tlv.NewBytes(schema.FieldAction, b))
	}
	return encodeFrame(messageID, schema.MsgEnvAct, fields, limits)
}

// Session decoder for one action frame.
func DecodeEnvActFrame(f frame.Frame) (EnvAct, error) {
	fields, err := decodeFrameFields(f, schema.MsgEnvAct)
	if err != nil {
		return EnvAct{}, err
	}
	var msg EnvAct
	if msg.StopRequested, err = requiredBool(fields, schema.FieldStopRequested); err != nil {
		return EnvAct{}, err
	}
	if af, ok := tlv.GetField(fields, schema.FieldAction); ok {
		if msg.Action, err = codec.DecodeContainer(af.Value); err != nil {
			return EnvAct{}, fmt.Errorf("session: action: %w", err)
		}
	}
	return msg, nil
}

// ExpectType fails fatally if f does not carry messageType.
func ExpectType(f frame.Frame, messageType uint32) error {
	if f.Header.MessageType != messageType {
		return fmt.Errorf("%w: got %s want %s",
			ErrUnexpectedMessage,
			schema.MessageName(f.Header.MessageType),
			schema.MessageName(messageType),
		)
	}
	return nil
}

func encodeFrame(messageID uint64, messageType uint32, fields []tlv.Field, limits frame.Limits) ([]byte, error) {
	if err := schema.Validate(messageType, fields); err != nil {
		return nil, err
	}
	return frame.Encode(frame.New(messageID, messageType, tlv.EncodeFields(fields)), limits)
}

func decodeFrameFields(f frame.Frame, messageType uint32) ([]tlv.Field, error) {
	if err := ExpectType(f, messageType); err != nil {
		return nil, err
	}
	fields, err := tlv.DecodeFields(f.Payload)
	if err != nil {
		return nil, err
	}
	if err := schema.Validate(messageType, fields); err != nil {
		return nil, err
	}
	return fields, nil
}

func requiredBool(fields []tlv.Field, id uint16) (bool, error) {
	f, _ := tlv.GetField(fields, id)
	return f.Bool()
}
