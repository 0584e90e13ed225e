package gym

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"code.hybscloud.com/iox"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/danmuck/simlink/internal/container"
	"github.com/danmuck/simlink/internal/protocol"
	"github.com/danmuck/simlink/internal/protocol/session"
	"github.com/danmuck/simlink/internal/shm"
	"github.com/danmuck/simlink/internal/space"
	"github.com/danmuck/simlink/internal/testutil/testlog"
)

// countdownEnv ends after a fixed number of executed actions and records
// every action it was given.
type countdownEnv struct {
	BaseEnvironment
	left    int
	obs     container.Container
	actions []container.Container
}

func (e *countdownEnv) ObservationSpace() space.Space {
	return space.Box{Low: 0, High: 10, Shape: []uint32{1}, Dtype: container.Float32}
}

func (e *countdownEnv) ActionSpace() space.Space { return space.Discrete{N: 2} }

func (e *countdownEnv) Observation() container.Container {
	if e.obs != nil {
		return e.obs
	}
	return container.NewArrayOf([]uint32{1}, []float32{float32(e.left)})
}

func (e *countdownEnv) Reward() float32   { return 1 }
func (e *countdownEnv) GameOver() bool    { return e.left <= 0 }
func (e *countdownEnv) ExtraInfo() string { return "countdown" }

func (e *countdownEnv) ExecuteActions(action container.Container) bool {
	e.actions = append(e.actions, action)
	e.left--
	return action != nil
}

type link struct {
	sess     *Session
	peer     *Peer
	peerChan *shm.Channel
}

func openLink(t *testing.T, envID uint32, capacity int, env Environment) link {
	t.Helper()
	dir := t.TempDir()
	names := shm.NamesFor(envID)
	agentCfg := names.AgentConfig(shm.Creator, capacity)
	agentCfg.Dir = dir
	simCfg := names.SimConfig(shm.Attacher, 0)
	simCfg.Dir = dir

	ctx := context.Background()
	peerChan, err := shm.Open(ctx, agentCfg)
	require.NoError(t, err)
	sess, err := Open(ctx, Config{EnvID: envID, Channel: simCfg}, env)
	require.NoError(t, err)
	t.Cleanup(func() {
		_ = sess.Close()
		_ = peerChan.Close()
	})
	return link{sess: sess, peer: NewPeer(peerChan, envID), peerChan: peerChan}
}

func testContext(t *testing.T) context.Context {
	t.Helper()
	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	t.Cleanup(cancel)
	return ctx
}

// async runs the simulator side so the test body can play the controller.
func async(fn func() error) <-chan error {
	done := make(chan error, 1)
	go func() { done <- fn() }()
	return done
}

func wait(t *testing.T, done <-chan error) error {
	t.Helper()
	select {
	case err := <-done:
		return err
	case <-time.After(10 * time.Second):
		t.Fatalf("simulator side did not finish")
		return nil
	}
}

func TestDefaultAccessors(t *testing.T) {
	testlog.Start(t)
	l := openLink(t, 1, 4096, BaseEnvironment{})
	ctx := testContext(t)

	done := async(func() error { return l.sess.Step(ctx) })

	hello, err := l.peer.Accept(ctx)
	require.NoError(t, err)
	assert.Nil(t, hello.ObservationSpace)
	assert.Nil(t, hello.ActionSpace)
	require.NoError(t, l.peer.Ack(ctx, true, false))

	st, err := l.peer.ReceiveState(ctx)
	require.NoError(t, err)
	assert.Equal(t, session.EnvState{Reason: session.ReasonNone}, st)
	require.NoError(t, l.peer.SendAction(ctx, container.NewScalar(1)))
	require.NoError(t, wait(t, done))

	assert.Equal(t, Stats{Steps: 1, ActionsRejected: 1}, l.sess.Stats())
	state, reason := l.sess.State()
	assert.Equal(t, StateInitialized, state)
	assert.Equal(t, EndNone, reason)
}

func TestInitIsIdempotent(t *testing.T) {
	testlog.Start(t)
	env := &countdownEnv{left: 5}
	l := openLink(t, 2, 4096, env)
	ctx := testContext(t)

	done := async(func() error {
		for i := 0; i < 3; i++ {
			if err := l.sess.Init(ctx); err != nil {
				return err
			}
		}
		return l.sess.Step(ctx)
	})

	hello, err := l.peer.Accept(ctx)
	require.NoError(t, err)
	assert.True(t, space.Equal(env.ObservationSpace(), hello.ObservationSpace))
	assert.True(t, space.Equal(space.Discrete{N: 2}, hello.ActionSpace))
	require.NoError(t, l.peer.Ack(ctx, true, false))

	// A second SimInit on the wire would fail to decode as a state.
	st, err := l.peer.ReceiveState(ctx)
	require.NoError(t, err)
	assert.Equal(t, "countdown", st.Info)
	require.NoError(t, l.peer.SendAction(ctx, container.NewScalar(0)))
	require.NoError(t, wait(t, done))

	_, err = l.peerChan.TryRecv()
	assert.ErrorIs(t, err, iox.ErrWouldBlock)
}

func TestInitResumesAfterCancelledWait(t *testing.T) {
	testlog.Start(t)
	env := &countdownEnv{left: 5}
	l := openLink(t, 30, 4096, env)
	ctx := testContext(t)

	short, cancel := context.WithTimeout(ctx, 50*time.Millisecond)
	defer cancel()
	require.ErrorIs(t, l.sess.Init(short), context.DeadlineExceeded)
	state, _ := l.sess.State()
	require.Equal(t, StateUninitialized, state)

	// The controller acknowledges late.
	_, err := l.peer.Accept(ctx)
	require.NoError(t, err)
	require.NoError(t, l.peer.Ack(ctx, true, false))

	done := async(func() error { return l.sess.Step(ctx) })
	st, err := l.peer.ReceiveState(ctx)
	require.NoError(t, err, "only one init goes on the wire")
	assert.Equal(t, "countdown", st.Info)
	require.NoError(t, l.peer.SendAction(ctx, container.NewScalar(1)))
	require.NoError(t, wait(t, done))

	assert.Equal(t, Stats{Steps: 1, ActionsExecuted: 1}, l.sess.Stats())
	_, err = l.peerChan.TryRecv()
	assert.ErrorIs(t, err, iox.ErrWouldBlock)
	assert.True(t, l.peerChan.Stats().Balanced())
}

func TestStepResumesAfterCancelledWait(t *testing.T) {
	testlog.Start(t)
	env := &countdownEnv{left: 5}
	l := openLink(t, 31, 4096, env)
	ctx := testContext(t)

	done := async(func() error { return l.sess.Init(ctx) })
	_, err := l.peer.Accept(ctx)
	require.NoError(t, err)
	require.NoError(t, l.peer.Ack(ctx, true, false))
	require.NoError(t, wait(t, done))

	short, cancel := context.WithTimeout(ctx, 50*time.Millisecond)
	defer cancel()
	require.ErrorIs(t, l.sess.Step(short), context.DeadlineExceeded)

	first, err := l.peer.ReceiveState(ctx)
	require.NoError(t, err)
	require.NoError(t, l.peer.SendAction(ctx, container.NewScalar(1)))

	require.NoError(t, l.sess.Step(ctx), "the late action answers the state already sent")
	assert.Len(t, env.actions, 1)
	assert.Equal(t, Stats{Steps: 1, ActionsExecuted: 1}, l.sess.Stats())
	_, err = l.peerChan.TryRecv()
	assert.ErrorIs(t, err, iox.ErrWouldBlock, "no second state for the same step")

	done = async(func() error { return l.sess.Step(ctx) })
	second, err := l.peer.ReceiveState(ctx)
	require.NoError(t, err)
	assert.NotEqual(t, first.Observation, second.Observation)
	require.NoError(t, l.peer.SendAction(ctx, container.NewScalar(0)))
	require.NoError(t, wait(t, done))
	assert.Len(t, env.actions, 2)
	assert.True(t, l.peerChan.Stats().Balanced())
}

func TestNotifyFinishesInterruptedStep(t *testing.T) {
	testlog.Start(t)
	env := &countdownEnv{left: 5}
	l := openLink(t, 32, 4096, env)
	ctx := testContext(t)

	done := async(func() error { return l.sess.Init(ctx) })
	_, err := l.peer.Accept(ctx)
	require.NoError(t, err)
	require.NoError(t, l.peer.Ack(ctx, true, false))
	require.NoError(t, wait(t, done))

	short, cancel := context.WithTimeout(ctx, 50*time.Millisecond)
	defer cancel()
	require.ErrorIs(t, l.sess.Step(short), context.DeadlineExceeded)
	st, err := l.peer.ReceiveState(ctx)
	require.NoError(t, err)
	assert.Equal(t, session.ReasonNone, st.Reason)

	done = async(func() error { return l.sess.NotifySimulationEnd(ctx) })
	require.NoError(t, l.peer.SendAction(ctx, container.NewScalar(1)))
	st, err = l.peer.ReceiveState(ctx)
	require.NoError(t, err)
	assert.Equal(t, session.ReasonSimulationEnded, st.Reason)
	require.NoError(t, l.peer.SendAction(ctx, container.NewScalar(1)))
	require.NoError(t, wait(t, done))

	state, reason := l.sess.State()
	assert.Equal(t, StateEnded, state)
	assert.Equal(t, EndSimulationEnded, reason)
	assert.Len(t, env.actions, 1, "only the interrupted step's action runs")
	assert.True(t, l.peerChan.Stats().Balanced())
}

func TestStopAtAck(t *testing.T) {
	testlog.Start(t)
	l := openLink(t, 3, 4096, &countdownEnv{left: 5})
	ctx := testContext(t)

	done := async(func() error { return l.sess.Init(ctx) })
	_, err := l.peer.Accept(ctx)
	require.NoError(t, err)
	require.NoError(t, l.peer.Ack(ctx, true, true))
	require.ErrorIs(t, wait(t, done), ErrStopRequested)

	state, reason := l.sess.State()
	assert.Equal(t, StateEnded, state)
	assert.Equal(t, EndStopped, reason)

	require.NoError(t, l.sess.Step(ctx), "an ended session steps as a no-op")
	_, err = l.peerChan.TryRecv()
	assert.ErrorIs(t, err, iox.ErrWouldBlock)
}

func TestStopAtAction(t *testing.T) {
	testlog.Start(t)
	env := &countdownEnv{left: 5}
	l := openLink(t, 4, 4096, env)
	ctx := testContext(t)

	done := async(func() error {
		if err := l.sess.Step(ctx); err != nil {
			return err
		}
		return l.sess.Step(ctx)
	})
	_, err := l.peer.Accept(ctx)
	require.NoError(t, err)
	require.NoError(t, l.peer.Ack(ctx, true, false))
	_, err = l.peer.ReceiveState(ctx)
	require.NoError(t, err)
	require.NoError(t, l.peer.SendAction(ctx, container.NewScalar(1)))
	_, err = l.peer.ReceiveState(ctx)
	require.NoError(t, err)
	require.NoError(t, l.peer.SendStop(ctx))

	require.ErrorIs(t, wait(t, done), ErrStopRequested)
	assert.False(t, protocol.IsFatal(ErrStopRequested))
	assert.Len(t, env.actions, 1, "the stop reply is never executed")
	_, reason := l.sess.State()
	assert.Equal(t, EndStopped, reason)
	assert.Equal(t, "stopped", l.peer.Snapshot().Reason)
}

func TestFirstActionMayBeAbsent(t *testing.T) {
	env := &countdownEnv{left: 5}
	l := openLink(t, 5, 4096, env)
	ctx := testContext(t)

	done := async(func() error { return l.sess.Step(ctx) })
	_, err := l.peer.Accept(ctx)
	require.NoError(t, err)
	require.NoError(t, l.peer.Ack(ctx, true, false))
	_, err = l.peer.ReceiveState(ctx)
	require.NoError(t, err)
	require.NoError(t, l.peer.SendAction(ctx, nil))
	require.NoError(t, wait(t, done))

	require.Len(t, env.actions, 1)
	assert.Nil(t, env.actions[0])
	assert.Equal(t, uint64(1), l.sess.Stats().ActionsRejected)
}

func TestGameOverReason(t *testing.T) {
	env := &countdownEnv{left: 0}
	l := openLink(t, 6, 4096, env)
	ctx := testContext(t)

	done := async(func() error { return l.sess.Step(ctx) })
	_, err := l.peer.Accept(ctx)
	require.NoError(t, err)
	require.NoError(t, l.peer.Ack(ctx, true, false))
	st, err := l.peer.ReceiveState(ctx)
	require.NoError(t, err)
	assert.True(t, st.GameOver)
	assert.Equal(t, session.ReasonGameOver, st.Reason)
	require.NoError(t, l.peer.SendStop(ctx))
	assert.ErrorIs(t, wait(t, done), ErrStopRequested)
}

func TestSimulationEndDiscardsAction(t *testing.T) {
	testlog.Start(t)
	env := &countdownEnv{left: 5}
	l := openLink(t, 7, 4096, env)
	ctx := testContext(t)

	done := async(func() error {
		if err := l.sess.Step(ctx); err != nil {
			return err
		}
		return l.sess.NotifySimulationEnd(ctx)
	})
	_, err := l.peer.Accept(ctx)
	require.NoError(t, err)
	require.NoError(t, l.peer.Ack(ctx, true, false))
	st, err := l.peer.ReceiveState(ctx)
	require.NoError(t, err)
	assert.False(t, st.GameOver)
	require.NoError(t, l.peer.SendAction(ctx, container.NewScalar(1)))

	st, err = l.peer.ReceiveState(ctx)
	require.NoError(t, err)
	assert.True(t, st.GameOver, "simulation end forces game over")
	assert.Equal(t, session.ReasonSimulationEnded, st.Reason)
	// Even a stop is consumed without surfacing ErrStopRequested.
	require.NoError(t, l.peer.SendStop(ctx))
	require.NoError(t, wait(t, done))

	assert.Len(t, env.actions, 1)
	state, reason := l.sess.State()
	assert.Equal(t, StateEnded, state)
	assert.Equal(t, EndSimulationEnded, reason)
	assert.True(t, l.sess.Snapshot().SimulationEnded)
	require.NoError(t, l.sess.NotifySimulationEnd(ctx))
}

func TestNotifyBeforeInitOnlySetsFlag(t *testing.T) {
	l := openLink(t, 8, 4096, &countdownEnv{left: 5})
	ctx := testContext(t)

	require.NoError(t, l.sess.NotifySimulationEnd(ctx))
	_, err := l.peerChan.TryRecv()
	require.ErrorIs(t, err, iox.ErrWouldBlock)

	done := async(func() error { return l.sess.Step(ctx) })
	_, err = l.peer.Accept(ctx)
	require.NoError(t, err)
	require.NoError(t, l.peer.Ack(ctx, true, false))
	st, err := l.peer.ReceiveState(ctx)
	require.NoError(t, err)
	assert.Equal(t, session.ReasonSimulationEnded, st.Reason)
	require.NoError(t, l.peer.SendAction(ctx, nil))
	require.NoError(t, wait(t, done))
	_, reason := l.sess.State()
	assert.Equal(t, EndSimulationEnded, reason)
}

func TestInvalidObservationIsDropped(t *testing.T) {
	env := &countdownEnv{left: 5, obs: container.NewTuple(container.NewScalar(1), &container.Array{})}
	l := openLink(t, 9, 4096, env)
	ctx := testContext(t)

	done := async(func() error { return l.sess.Step(ctx) })
	_, err := l.peer.Accept(ctx)
	require.NoError(t, err)
	require.NoError(t, l.peer.Ack(ctx, true, false))
	st, err := l.peer.ReceiveState(ctx)
	require.NoError(t, err)
	assert.Nil(t, st.Observation)
	assert.Equal(t, float32(1), st.Reward)
	require.NoError(t, l.peer.SendAction(ctx, container.NewScalar(0)))
	require.NoError(t, wait(t, done))

	assert.Equal(t, uint64(1), l.sess.Stats().ObservationErrors)
	state, _ := l.sess.State()
	assert.Equal(t, StateInitialized, state)
}

func TestOversizedStateIsFatal(t *testing.T) {
	big := make([]float64, 64)
	env := &countdownEnv{left: 5, obs: container.NewArrayOf([]uint32{64}, big)}
	l := openLink(t, 10, 256, env)
	ctx := testContext(t)

	done := async(func() error { return l.sess.Step(ctx) })
	_, err := l.peer.Accept(ctx)
	require.NoError(t, err)
	require.NoError(t, l.peer.Ack(ctx, true, false))

	err = wait(t, done)
	require.Error(t, err)
	assert.True(t, protocol.IsFatal(err), "got %v", err)
	_, reason := l.sess.State()
	assert.Equal(t, EndFailed, reason)
}

func TestPeerRunUntilGameOver(t *testing.T) {
	testlog.Start(t)
	env := &countdownEnv{left: 3}
	l := openLink(t, 11, 4096, env)
	ctx := testContext(t)

	done := async(func() error {
		for {
			if err := l.sess.Step(ctx); err != nil {
				return err
			}
		}
	})
	res, err := l.peer.Run(ctx, func(st session.EnvState) container.Container {
		return container.NewScalar(1)
	}, 0)
	require.NoError(t, err)
	assert.Equal(t, 4, res.Steps)
	assert.Equal(t, 4.0, res.TotalReward)
	assert.Equal(t, session.ReasonGameOver, res.Reason)
	assert.False(t, res.Stopped)

	assert.ErrorIs(t, wait(t, done), ErrStopRequested)
	assert.Len(t, env.actions, 3)
	assert.Equal(t, uint64(3), l.sess.Stats().ActionsExecuted)
}

func TestPeerRunStepLimit(t *testing.T) {
	l := openLink(t, 12, 4096, &countdownEnv{left: 100})
	ctx := testContext(t)

	done := async(func() error {
		for {
			if err := l.sess.Step(ctx); err != nil {
				return err
			}
		}
	})
	res, err := l.peer.Run(ctx, func(session.EnvState) container.Container { return nil }, 5)
	require.NoError(t, err)
	assert.Equal(t, 5, res.Steps)
	assert.True(t, res.Stopped)
	assert.ErrorIs(t, wait(t, done), ErrStopRequested)
}

func TestParallelSessions(t *testing.T) {
	testlog.Start(t)
	ctx := testContext(t)
	var wg sync.WaitGroup
	for id := uint32(20); id < 23; id++ {
		env := &countdownEnv{left: 10}
		l := openLink(t, id, 4096, env)
		wg.Add(2)
		go func() {
			defer wg.Done()
			for {
				if err := l.sess.Step(ctx); err != nil {
					if !errors.Is(err, ErrStopRequested) {
						t.Errorf("env %d: %v", l.sess.EnvID(), err)
					}
					return
				}
			}
		}()
		go func() {
			defer wg.Done()
			res, err := l.peer.Run(ctx, func(session.EnvState) container.Container {
				return container.NewScalar(1)
			}, 0)
			if err != nil {
				t.Errorf("peer %d: %v", l.sess.EnvID(), err)
				return
			}
			if res.Steps != 11 {
				t.Errorf("peer %d: steps %d", l.sess.EnvID(), res.Steps)
			}
		}()
	}
	wg.Wait()
}

func TestOpenRejectsNilEnvironment(t *testing.T) {
	_, err := Open(context.Background(), Config{}, nil)
	assert.ErrorIs(t, err, ErrNilEnvironment)
}

func TestStateStrings(t *testing.T) {
	assert.Equal(t, "initialized", StateInitialized.String())
	assert.Equal(t, "simulation_ended", EndSimulationEnded.String())
	assert.Equal(t, "end(9)", EndReason(9).String())
}
