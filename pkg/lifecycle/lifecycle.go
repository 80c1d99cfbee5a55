// Package lifecycle names the states a worker passes through and lets callers observe the transitions.
package lifecycle

import (
	"sync"
	"time"
)

// State is the position of a worker in its operation loop.
type State int

const (
	// StateCycling - working through the assigned regions
	StateCycling State = iota
	// StatePaced - pausing after a region's critical section
	StatePaced
	// StateResting - waiting out the cadence between cycles
	StateResting
	// StateStopped - lifetime elapsed or the process was terminated
	StateStopped
)

// String returns the string representation of a State
func (s State) String() string {
	switch s {
	case StateCycling:
		return "Cycling"
	case StatePaced:
		return "Paced"
	case StateResting:
		return "Resting"
	case StateStopped:
		return "Stopped"
	default:
		return "Unknown"
	}
}

// Transition is one state change of a worker.
type Transition struct {
	Worker int
	From   State
	To     State
	At     time.Time
}

// Observer receives state transitions. Implementations must be safe for concurrent use.
type Observer interface {
	Transition(t Transition)
}

// ObserverFunc adapts a function to Observer.
type ObserverFunc func(t Transition)

// Transition calls f(t).
func (f ObserverFunc) Transition(t Transition) { f(t) }

// Nop discards transitions.
var Nop Observer = ObserverFunc(func(Transition) {})

// Recorder keeps every transition it observes.
type Recorder struct {
	mu          sync.Mutex
	transitions []Transition
}

// Transition records t.
func (r *Recorder) Transition(t Transition) {
	r.mu.Lock()
	r.transitions = append(r.transitions, t)
	r.mu.Unlock()
}

// Transitions returns a copy of everything recorded so far.
func (r *Recorder) Transitions() []Transition {
	r.mu.Lock()
	defer r.mu.Unlock()
	out := make([]Transition, len(r.transitions))
	copy(out, r.transitions)
	return out
}

// States returns the sequence of target states recorded so far.
func (r *Recorder) States() []State {
	r.mu.Lock()
	defer r.mu.Unlock()
	out := make([]State, len(r.transitions))
	for i, t := range r.transitions {
		out[i] = t.To
	}
	return out
}
