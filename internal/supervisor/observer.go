package supervisor

import (
	"time"

	"github.com/nerrad567/gray-logic-node/internal/status"
)

// Transition records one state change of the supervisor.
type Transition struct {
	From   status.State
	To     status.State
	At     time.Time
	Reason string
}

// Observer receives every transition on the supervisor goroutine.
// Implementations must not block.
type Observer interface {
	ObserveTransition(t Transition)
}

// ObserverFunc adapts a function to Observer.
type ObserverFunc func(t Transition)

// ObserveTransition calls f(t).
func (f ObserverFunc) ObserveTransition(t Transition) { f(t) }
