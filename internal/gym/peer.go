package gym

import (
	"context"
	"fmt"
	"sync"

	"github.com/danmuck/simlink/internal/container"
	"github.com/danmuck/simlink/internal/logging"
	"github.com/danmuck/simlink/internal/protocol/frame"
	"github.com/danmuck/simlink/internal/protocol/session"
	"github.com/danmuck/simlink/internal/shm"
)

// Peer drives the controller side of the protocol. It is a thin wire
// driver: every call sends or receives exactly one message so the channel
// stays balanced.
type Peer struct {
	conn   Conn
	envID  uint32
	limits frame.Limits

	mu       sync.Mutex
	accepted *session.SimInit
	last     session.EnvState
	steps    uint64
	stopped  bool
}

// OpenPeer opens the controller end of the channel described by cfg.
func OpenPeer(ctx context.Context, cfg Config) (*Peer, error) {
	ch, err := openChannel(ctx, cfg.Channel, cfg.Attach)
	if err != nil {
		return nil, err
	}
	return NewPeer(ch, cfg.EnvID), nil
}

func NewPeer(conn Conn, envID uint32) *Peer {
	return &Peer{
		conn:   conn,
		envID:  envID,
		limits: frame.LimitsForCapacity(conn.Capacity()),
	}
}

// Accept waits for the simulator's init message.
func (p *Peer) Accept(ctx context.Context) (session.SimInit, error) {
	f, err := p.recvFrame(ctx)
	if err != nil {
		return session.SimInit{}, err
	}
	msg, err := session.DecodeSimInitFrame(f)
	if err != nil {
		return session.SimInit{}, fmt.Errorf("gym: init: %w", err)
	}
	p.mu.Lock()
	p.accepted = &msg
	p.mu.Unlock()
	logging.Infof("gym.Peer.Accept env=%d obs_space=%v act_space=%v", p.envID, msg.ObservationSpace, msg.ActionSpace)
	return msg, nil
}

// Init returns the accepted init message, if any.
func (p *Peer) Init() (session.SimInit, bool) {
	p.mu.Lock()
	defer p.mu.Unlock()
	if p.accepted == nil {
		return session.SimInit{}, false
	}
	return *p.accepted, true
}

// Ack answers Accept.
func (p *Peer) Ack(ctx context.Context, ready, stop bool) error {
	b, err := session.EncodeSimInitAckFrame(nextMessageID(), session.SimInitAck{Ready: ready, StopRequested: stop}, p.limits)
	if err != nil {
		return fmt.Errorf("gym: encode ack: %w", err)
	}
	if err := p.conn.Send(ctx, b); err != nil {
		return fmt.Errorf("gym: send ack: %w", err)
	}
	if stop {
		p.markStopped()
	}
	return nil
}

// ReceiveState waits for the simulator's next state.
func (p *Peer) ReceiveState(ctx context.Context) (session.EnvState, error) {
	f, err := p.recvFrame(ctx)
	if err != nil {
		return session.EnvState{}, err
	}
	st, err := session.DecodeEnvStateFrame(f)
	if err != nil {
		return session.EnvState{}, fmt.Errorf("gym: state: %w", err)
	}
	p.mu.Lock()
	p.last = st
	p.steps++
	p.mu.Unlock()
	return st, nil
}

// SendAction answers the last state. A nil action is sent as absent.
func (p *Peer) SendAction(ctx context.Context, action container.Container) error {
	return p.sendAct(ctx, session.EnvAct{Action: action})
}

// SendStop answers the last state with a stop request.
func (p *Peer) SendStop(ctx context.Context) error {
	if err := p.sendAct(ctx, session.EnvAct{StopRequested: true}); err != nil {
		return err
	}
	p.markStopped()
	return nil
}

func (p *Peer) sendAct(ctx context.Context, msg session.EnvAct) error {
	b, err := session.EncodeEnvActFrame(nextMessageID(), msg, p.limits)
	if err != nil {
		return fmt.Errorf("gym: encode action: %w", err)
	}
	if err := p.conn.Send(ctx, b); err != nil {
		return fmt.Errorf("gym: send action: %w", err)
	}
	return nil
}

// Policy picks the next action from the last observed state.
type Policy func(state session.EnvState) container.Container

// RunResult summarizes one episode driven by Run.
type RunResult struct {
	Steps       int
	TotalReward float64
	Reason      session.Reason
	// Stopped is set when Run ended the episode itself because of maxSteps.
	Stopped bool
}

// Run accepts the simulator, then answers each state with policy until the
// simulator reports game over or maxSteps states were seen. It replies to
// the final state with a stop. maxSteps <= 0 means no limit.
func (p *Peer) Run(ctx context.Context, policy Policy, maxSteps int) (RunResult, error) {
	var res RunResult
	if _, err := p.Accept(ctx); err != nil {
		return res, err
	}
	if err := p.Ack(ctx, true, false); err != nil {
		return res, err
	}
	for {
		st, err := p.ReceiveState(ctx)
		if err != nil {
			return res, err
		}
		res.Steps++
		res.TotalReward += float64(st.Reward)
		res.Reason = st.Reason
		if st.GameOver {
			logging.Infof("gym.Peer.Run env=%d game over reason=%s steps=%d reward=%g info=%q",
				p.envID, st.Reason, res.Steps, res.TotalReward, st.Info)
			return res, p.SendStop(ctx)
		}
		if maxSteps > 0 && res.Steps >= maxSteps {
			res.Stopped = true
			logging.Infof("gym.Peer.Run env=%d step limit %d reached", p.envID, maxSteps)
			return res, p.SendStop(ctx)
		}
		if err := p.SendAction(ctx, policy(st)); err != nil {
			return res, err
		}
	}
}

func (p *Peer) Snapshot() Snapshot {
	p.mu.Lock()
	state := StateUninitialized
	switch {
	case p.stopped:
		state = StateEnded
	case p.accepted != nil:
		state = StateInitialized
	}
	reason := EndNone
	if p.stopped {
		reason = EndStopped
	}
	snap := Snapshot{
		EnvID:           p.envID,
		Side:            "agent",
		State:           state.String(),
		Reason:          reason.String(),
		SimulationEnded: p.last.Reason == session.ReasonSimulationEnded,
		Stats:           Stats{Steps: p.steps},
	}
	p.mu.Unlock()
	if ch, ok := p.conn.(*shm.Channel); ok {
		st := ch.Stats()
		snap.Channel = &st
	}
	return snap
}

func (p *Peer) Close() error {
	return p.conn.Close()
}

func (p *Peer) markStopped() {
	p.mu.Lock()
	p.stopped = true
	p.mu.Unlock()
}

func (p *Peer) recvFrame(ctx context.Context) (frame.Frame, error) {
	b, err := p.conn.Recv(ctx)
	if err != nil {
		return frame.Frame{}, fmt.Errorf("gym: receive: %w", err)
	}
	f, err := frame.Decode(b, p.limits)
	if err != nil {
		return frame.Frame{}, fmt.Errorf("gym: decode frame: %w", err)
	}
	return f, nil
}
