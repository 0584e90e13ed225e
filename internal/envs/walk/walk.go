// Package walk is a small demo environment: an agent on a line of cells
// walks toward a target cell.
package walk

import (
	"fmt"
	"math/rand"

	"github.com/danmuck/simlink/internal/container"
	"github.com/danmuck/simlink/internal/gym"
	"github.com/danmuck/simlink/internal/protocol/session"
	"github.com/danmuck/simlink/internal/space"
)

const (
	Left  uint32 = 0
	Right uint32 = 1

	stepReward   float32 = -1
	targetReward float32 = 10
)

// Env places the walker and the target at distinct random cells.
type Env struct {
	gym.BaseEnvironment

	size   uint32
	pos    uint32
	target uint32
	reward float32
	moves  int
}

// New returns a line of size cells. size is clamped to at least 2.
func New(size uint32, seed int64) *Env {
	if size < 2 {
		size = 2
	}
	rng := rand.New(rand.NewSource(seed))
	pos := uint32(rng.Intn(int(size)))
	target := uint32(rng.Intn(int(size - 1)))
	if target >= pos {
		target++
	}
	return &Env{size: size, pos: pos, target: target}
}

func (e *Env) ObservationSpace() space.Space {
	return space.Box{Low: 0, High: float64(e.size - 1), Shape: []uint32{2}, Dtype: container.Float32}
}

func (e *Env) ActionSpace() space.Space {
	return space.Discrete{N: 2}
}

// Observation is [position, target].
func (e *Env) Observation() container.Container {
	return container.NewArrayOf([]uint32{2}, []float32{float32(e.pos), float32(e.target)})
}

func (e *Env) Reward() float32 { return e.reward }

func (e *Env) GameOver() bool { return e.pos == e.target }

func (e *Env) ExtraInfo() string {
	return fmt.Sprintf("pos=%d target=%d moves=%d", e.pos, e.target, e.moves)
}

// ExecuteActions moves one cell. Anything but a Left or Right scalar is
// rejected and leaves the walker in place.
func (e *Env) ExecuteActions(action container.Container) bool {
	s, ok := action.(container.Scalar)
	if !ok {
		return false
	}
	switch s.Value {
	case Left:
		if e.pos > 0 {
			e.pos--
		}
	case Right:
		if e.pos < e.size-1 {
			e.pos++
		}
	default:
		return false
	}
	e.moves++
	e.reward = stepReward
	if e.pos == e.target {
		e.reward = targetReward
	}
	return true
}

func (e *Env) Position() uint32 { return e.pos }
func (e *Env) Target() uint32   { return e.target }
func (e *Env) Moves() int       { return e.moves }

// Policy heads straight for the target. States without a readable
// observation get no action.
func Policy(st session.EnvState) container.Container {
	a, ok := st.Observation.(*container.Array)
	if !ok || a.Len() < 2 {
		return nil
	}
	if a.Float64At(0) < a.Float64At(1) {
		return container.NewScalar(Right)
	}
	return container.NewScalar(Left)
}

var _ gym.Environment = (*Env)(nil)
var _ gym.Policy = Policy
