// Package gym runs the simulator side of a lock-step environment session
// over a shared channel, and the controller side used by tools and tests.
//
// Each step the simulator sends its state and blocks until the controller
// answers with an action. Exactly one message is in flight per direction.
package gym

import (
	"github.com/danmuck/simlink/internal/container"
	"github.com/danmuck/simlink/internal/space"
)

// Environment supplies everything the session reports to the controller.
// Embed BaseEnvironment to get defaults for the accessors you do not need.
type Environment interface {
	ObservationSpace() space.Space
	ActionSpace() space.Space
	Observation() container.Container
	Reward() float32
	GameOver() bool
	ExtraInfo() string
	// ExecuteActions applies the controller's action. action is nil on the
	// first step after a reset. The result is reported, never enforced.
	ExecuteActions(action container.Container) bool
}

// BaseEnvironment answers every accessor with its empty default.
type BaseEnvironment struct{}

func (BaseEnvironment) ObservationSpace() space.Space           { return nil }
func (BaseEnvironment) ActionSpace() space.Space                { return nil }
func (BaseEnvironment) Observation() container.Container        { return nil }
func (BaseEnvironment) Reward() float32                         { return 0 }
func (BaseEnvironment) GameOver() bool                          { return false }
func (BaseEnvironment) ExtraInfo() string                       { return "" }
func (BaseEnvironment) ExecuteActions(container.Container) bool { return false }

var _ Environment = BaseEnvironment{}
