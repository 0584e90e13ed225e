package gym

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"code.hybscloud.com/atomix"

	"github.com/danmuck/simlink/internal/logging"
	"github.com/danmuck/simlink/internal/observability"
	"github.com/danmuck/simlink/internal/protocol"
	"github.com/danmuck/simlink/internal/protocol/frame"
	"github.com/danmuck/simlink/internal/protocol/session"
	"github.com/danmuck/simlink/internal/shm"
)

var (
	// ErrStopRequested is returned by Init and Step when the controller
	// asked the simulation to stop. The host decides how to exit.
	ErrStopRequested  = errors.New("gym: stop requested by controller")
	ErrNilEnvironment = errors.New("gym: nil environment")
)

// Conn is the half-duplex byte channel a session runs over. *shm.Channel
// implements it.
type Conn interface {
	Send(ctx context.Context, payload []byte) error
	Recv(ctx context.Context) ([]byte, error)
	Capacity() int
	Close() error
}

// message ids are process-wide and only used for tracing.
var messageSeq atomix.Uint32

func nextMessageID() uint64 {
	return uint64(messageSeq.Add(1))
}

type State uint8

const (
	StateUninitialized State = iota
	StateInitialized
	StateEnded
)

func (s State) String() string {
	switch s {
	case StateUninitialized:
		return "uninitialized"
	case StateInitialized:
		return "initialized"
	case StateEnded:
		return "ended"
	default:
		return fmt.Sprintf("state(%d)", uint8(s))
	}
}

// EndReason says why a session reached StateEnded.
type EndReason uint8

const (
	EndNone EndReason = iota
	EndStopped
	EndSimulationEnded
	// EndFailed follows a fatal channel or protocol error.
	EndFailed
)

func (r EndReason) String() string {
	switch r {
	case EndNone:
		return "none"
	case EndStopped:
		return "stopped"
	case EndSimulationEnded:
		return "simulation_ended"
	case EndFailed:
		return "failed"
	default:
		return fmt.Sprintf("end(%d)", uint8(r))
	}
}

// Stats counts session activity.
type Stats struct {
	Steps             uint64 `json:"steps"`
	ActionsExecuted   uint64 `json:"actions_executed"`
	ActionsRejected   uint64 `json:"actions_rejected"`
	ObservationErrors uint64 `json:"observation_errors"`
}

// Snapshot is the externally visible status of one endpoint.
type Snapshot struct {
	EnvID           uint32     `json:"env_id"`
	Side            string     `json:"side"`
	State           string     `json:"state"`
	Reason          string     `json:"reason"`
	SimulationEnded bool       `json:"simulation_ended"`
	Stats           Stats      `json:"stats"`
	Channel         *shm.Stats `json:"channel,omitempty"`
}

// Config opens a simulator-side session.
type Config struct {
	EnvID   uint32
	Channel shm.Config
	Attach  session.Config
}

// Open connects to the channel and wraps it in a session. Attachers retry
// until Attach.AttachTimeout.
func Open(ctx context.Context, cfg Config, env Environment) (*Session, error) {
	if env == nil {
		return nil, ErrNilEnvironment
	}
	ch, err := openChannel(ctx, cfg.Channel, cfg.Attach)
	if err != nil {
		return nil, err
	}
	return NewSession(ch, env, cfg.EnvID), nil
}

func openChannel(ctx context.Context, cfg shm.Config, attach session.Config) (*shm.Channel, error) {
	attach = attach.WithDefaults()
	if attach.AttachTimeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, attach.AttachTimeout)
		defer cancel()
	}
	ch, err := shm.OpenWithRetry(ctx, cfg, attach.Backoff)
	if err != nil {
		return nil, fmt.Errorf("gym: open channel %s: %w", cfg.Segment, err)
	}
	return ch, nil
}

// Session is the simulator side of one environment. It must be driven from
// a single goroutine; State, Stats and Snapshot are safe from any goroutine.
type Session struct {
	conn   Conn
	env    Environment
	envID  uint32
	limits frame.Limits

	mu       sync.Mutex
	state    State
	reason   EndReason
	simEnded bool
	stats    Stats
	// awaiting is set once a frame is on the wire and cleared when its reply
	// has been taken off the channel. A call interrupted in between leaves
	// it set and the next call collects the reply instead of sending again.
	awaiting bool
	sent     sentState
}

// sentState is what the last state frame reported.
type sentState struct {
	msg      session.EnvState
	simEnded bool
	start    time.Time
}

// NewSession wraps an open connection. The session owns conn from here on.
func NewSession(conn Conn, env Environment, envID uint32) *Session {
	if env == nil {
		env = BaseEnvironment{}
	}
	return &Session{
		conn:   conn,
		env:    env,
		envID:  envID,
		limits: frame.LimitsForCapacity(conn.Capacity()),
	}
}

func (s *Session) EnvID() uint32 { return s.envID }

func (s *Session) State() (State, EndReason) {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.state, s.reason
}

func (s *Session) Stats() Stats {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.stats
}

func (s *Session) Snapshot() Snapshot {
	s.mu.Lock()
	snap := Snapshot{
		EnvID:           s.envID,
		Side:            "sim",
		State:           s.state.String(),
		Reason:          s.reason.String(),
		SimulationEnded: s.simEnded,
		Stats:           s.stats,
	}
	s.mu.Unlock()
	if ch, ok := s.conn.(*shm.Channel); ok {
		st := ch.Stats()
		snap.Channel = &st
	}
	return snap
}

// Init sends the spaces and waits for the controller's acknowledgement.
// Calling it again is a no-op. If an earlier call was interrupted after
// sending, the next call only waits for the acknowledgement.
func (s *Session) Init(ctx context.Context) error {
	s.mu.Lock()
	st, awaiting := s.state, s.awaiting
	s.mu.Unlock()
	if st != StateUninitialized {
		return nil
	}
	if !awaiting {
		msg := session.SimInit{
			ObservationSpace: s.env.ObservationSpace(),
			ActionSpace:      s.env.ActionSpace(),
		}
		b, err := session.EncodeSimInitFrame(nextMessageID(), msg, s.limits)
		if err != nil {
			return s.fail(fmt.Errorf("gym: encode init: %w", err))
		}
		if err := s.conn.Send(ctx, b); err != nil {
			return s.fail(fmt.Errorf("gym: send init: %w", err))
		}
		s.setAwaiting(true)
		logging.Infof("gym.Session.Init env=%d obs_space=%v act_space=%v", s.envID, msg.ObservationSpace, msg.ActionSpace)
	}

	f, err := s.recvFrame(ctx)
	if err != nil {
		return s.fail(err)
	}
	ack, err := session.DecodeSimInitAckFrame(f)
	if err != nil {
		return s.fail(protocol.Fatal(fmt.Errorf("gym: init ack: %w", err)))
	}

	s.mu.Lock()
	s.state = StateInitialized
	s.mu.Unlock()
	logging.Infof("gym.Session.Init env=%d ready=%t stop=%t", s.envID, ack.Ready, ack.StopRequested)
	if !ack.Ready {
		logging.Warnf("gym.Session.Init env=%d controller acknowledged without ready", s.envID)
	}
	if ack.StopRequested {
		s.end(EndStopped)
		return ErrStopRequested
	}
	return nil
}

// Step reports the current state and applies the controller's answer. It
// initializes the session first if needed and does nothing once ended.
// If an earlier Step was interrupted after sending, this call applies the
// answer to that state and sends nothing new.
func (s *Session) Step(ctx context.Context) error {
	if st, _ := s.State(); st == StateUninitialized {
		if err := s.Init(ctx); err != nil {
			return err
		}
	}
	s.mu.Lock()
	st, simEnded, awaiting := s.state, s.simEnded, s.awaiting
	s.mu.Unlock()
	if st == StateEnded {
		return nil
	}
	if !awaiting {
		if err := s.sendState(ctx, simEnded); err != nil {
			return err
		}
	}
	return s.applyAction(ctx)
}

func (s *Session) sendState(ctx context.Context, simEnded bool) error {
	start := time.Now()
	gameOver := s.env.GameOver() || simEnded
	reason := session.ReasonNone
	switch {
	case gameOver && simEnded:
		reason = session.ReasonSimulationEnded
	case gameOver:
		reason = session.ReasonGameOver
	}

	obs, err := session.EncodeObservation(s.env.Observation())
	if err != nil {
		logging.Warnf("gym.Session.Step env=%d dropping observation: %v", s.envID, err)
		s.mu.Lock()
		s.stats.ObservationErrors++
		s.mu.Unlock()
		obs = nil
	}
	msg := session.EnvState{
		Reward:   s.env.Reward(),
		GameOver: gameOver,
		Reason:   reason,
		Info:     s.env.ExtraInfo(),
	}
	b, err := session.EncodeEnvStateFrame(nextMessageID(), msg, obs, s.limits)
	if err != nil {
		return s.fail(fmt.Errorf("gym: encode state: %w", err))
	}
	if err := s.conn.Send(ctx, b); err != nil {
		return s.fail(fmt.Errorf("gym: send state: %w", err))
	}
	s.mu.Lock()
	s.awaiting = true
	s.sent = sentState{msg: msg, simEnded: simEnded, start: start}
	s.mu.Unlock()
	return nil
}

func (s *Session) applyAction(ctx context.Context) error {
	f, err := s.recvFrame(ctx)
	if err != nil {
		return s.fail(err)
	}
	s.mu.Lock()
	sent := s.sent
	s.mu.Unlock()
	act, err := session.DecodeEnvActFrame(f)
	if err != nil {
		return s.fail(protocol.Fatal(fmt.Errorf("gym: action: %w", err)))
	}

	s.mu.Lock()
	s.stats.Steps++
	s.mu.Unlock()
	observability.RecordStep(s.envID, time.Since(sent.start))
	logging.Debugf("gym.Session.Step env=%d reward=%g game_over=%t reason=%s stop=%t",
		s.envID, sent.msg.Reward, sent.msg.GameOver, sent.msg.Reason, act.StopRequested)

	if sent.simEnded {
		// The controller still answers the terminal state; its action is moot.
		s.end(EndSimulationEnded)
		return nil
	}
	if act.StopRequested {
		s.end(EndStopped)
		return ErrStopRequested
	}

	executed := s.env.ExecuteActions(act.Action)
	s.mu.Lock()
	if executed {
		s.stats.ActionsExecuted++
	} else {
		s.stats.ActionsRejected++
	}
	s.mu.Unlock()
	observability.RecordAction(s.envID, executed)
	logging.Debugf("gym.Session.Step env=%d action=%v executed=%t", s.envID, act.Action, executed)
	return nil
}

// NotifySimulationEnd marks the simulation finished. An initialized session
// runs one last step so the controller sees the terminal state.
func (s *Session) NotifySimulationEnd(ctx context.Context) error {
	s.mu.Lock()
	s.simEnded = true
	st := s.state
	s.mu.Unlock()
	logging.Infof("gym.Session.NotifySimulationEnd env=%d state=%s", s.envID, st)
	// A step interrupted before the flag was set is finished first; the
	// terminal state follows on the next pass.
	for st == StateInitialized {
		if err := s.Step(ctx); err != nil {
			return err
		}
		st, _ = s.State()
	}
	return nil
}

// Close releases the channel. It does not notify the controller; call
// NotifySimulationEnd first for an orderly end.
func (s *Session) Close() error {
	return s.conn.Close()
}

func (s *Session) recvFrame(ctx context.Context) (frame.Frame, error) {
	b, err := s.conn.Recv(ctx)
	if err != nil {
		return frame.Frame{}, fmt.Errorf("gym: receive: %w", err)
	}
	s.setAwaiting(false)
	// The reply is off the channel; a frame that cannot be read leaves the
	// exchange unrecoverable.
	f, err := frame.Decode(b, s.limits)
	if err != nil {
		return frame.Frame{}, protocol.Fatal(fmt.Errorf("gym: decode frame: %w", err))
	}
	return f, nil
}

func (s *Session) end(reason EndReason) {
	s.mu.Lock()
	if s.state == StateEnded {
		s.mu.Unlock()
		return
	}
	s.state = StateEnded
	s.reason = reason
	steps := s.stats.Steps
	s.mu.Unlock()
	observability.RecordSessionEnded(s.envID, reason.String())
	logging.Infof("gym.Session.end env=%d reason=%s steps=%d", s.envID, reason, steps)
}

func (s *Session) setAwaiting(v bool) {
	s.mu.Lock()
	s.awaiting = v
	s.mu.Unlock()
}

// fail ends the session on fatal errors. Others, such as a cancelled
// context, are returned unchanged; the next call resumes where this one
// stopped.
func (s *Session) fail(err error) error {
	if protocol.IsFatal(err) || errors.Is(err, shm.ErrClosed) {
		logging.Errf("gym.Session env=%d: %v", s.envID, err)
		s.end(EndFailed)
	}
	return err
}
