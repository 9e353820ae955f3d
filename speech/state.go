package speech

import "time"

// State is the externally observable playback state, derived from engine and
// orchestrator activity.
type State int

const (
	// StateIdle indicates no segment is loading, playing, or paused.
	StateIdle State = iota
	// StateLoading indicates a fetch is in flight for the segment about to play.
	StateLoading
	// StatePlaying indicates a segment is audible right now.
	StatePlaying
	// StatePaused indicates playback is suspended but resumable.
	StatePaused
	// StateError indicates the last play request failed; terminal until the
	// next explicit play request re-enters StateLoading.
	StateError
)

// String returns the string representation of the state.
func (s State) String() string {
	switch s {
	case StateIdle:
		return "idle"
	case StateLoading:
		return "loading"
	case StatePlaying:
		return "playing"
	case StatePaused:
		return "paused"
	case StateError:
		return "error"
	default:
		return "unknown"
	}
}

// Status is the singleton playback record. Exactly one exists per Service.
// CurrentKey is empty if and only if the engine holds no live or paused
// audio source.
type Status struct {
	State       State
	IsLoading   bool
	IsPlaying   bool
	CurrentKey  string
	CurrentText string
	CurrentTime time.Duration
	Duration    time.Duration
	Rate        float64
	Err         error
}

// Active reports whether a segment is currently live or paused.
func (s Status) Active() bool {
	return s.State == StatePlaying || s.State == StatePaused
}

// Machine validates playback state transitions.
type Machine struct {
	current     State
	transitions map[State][]State
}

// NewMachine returns a state machine seeded with the valid playback
// transitions: play requests pass through Loading, chaining stays in Playing,
// and stop-and-clear returns to Idle from anywhere.
func NewMachine() *Machine {
	return &Machine{
		current: StateIdle,
		transitions: map[State][]State{
			StateIdle:    {StateLoading, StateIdle},
			StateLoading: {StatePlaying, StateError, StateIdle},
			StatePlaying: {StatePlaying, StatePaused, StateLoading, StateIdle},
			StatePaused:  {StatePlaying, StateLoading, StateIdle},
			StateError:   {StateLoading, StateIdle},
		},
	}
}

// Transition moves to the target state if the transition is valid and
// reports whether it happened.
func (m *Machine) Transition(to State) bool {
	for _, valid := range m.transitions[m.current] {
		if valid == to {
			m.current = to
			return true
		}
	}
	return false
}

// Current returns the current state.
func (m *Machine) Current() State {
	return m.current
}
