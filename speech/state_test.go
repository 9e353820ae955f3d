package speech

import "testing"

func TestStateString(t *testing.T) {
	tests := []struct {
		state State
		want  string
	}{
		{StateIdle, "idle"},
		{StateLoading, "loading"},
		{StatePlaying, "playing"},
		{StatePaused, "paused"},
		{StateError, "error"},
		{State(99), "unknown"},
	}

	for _, tt := range tests {
		if got := tt.state.String(); got != tt.want {
			t.Errorf("State(%d).String() = %q, want %q", tt.state, got, tt.want)
		}
	}
}

func TestMachineValidTransitions(t *testing.T) {
	tests := []struct {
		name string
		path []State
	}{
		{"play request", []State{StateLoading, StatePlaying}},
		{"pause and resume", []State{StateLoading, StatePlaying, StatePaused, StatePlaying}},
		{"chained segments", []State{StateLoading, StatePlaying, StatePlaying, StatePlaying}},
		{"fetch failure", []State{StateLoading, StateError}},
		{"retry after failure", []State{StateLoading, StateError, StateLoading, StatePlaying}},
		{"stop from playing", []State{StateLoading, StatePlaying, StateIdle}},
		{"stop from paused", []State{StateLoading, StatePlaying, StatePaused, StateIdle}},
		{"cancel while loading", []State{StateLoading, StateIdle}},
		{"replay from paused", []State{StateLoading, StatePlaying, StatePaused, StateLoading}},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			m := NewMachine()
			for i, next := range tt.path {
				if !m.Transition(next) {
					t.Fatalf("Transition %d to %v failed from %v", i, next, m.Current())
				}
			}
		})
	}
}

func TestMachineInvalidTransitions(t *testing.T) {
	tests := []struct {
		name string
		path []State
		to   State
	}{
		{"idle to playing skips loading", nil, StatePlaying},
		{"idle to paused", nil, StatePaused},
		{"idle to error", nil, StateError},
		{"loading to paused", []State{StateLoading}, StatePaused},
		{"error to playing without retry", []State{StateLoading, StateError}, StatePlaying},
		{"paused to error", []State{StateLoading, StatePlaying, StatePaused}, StateError},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			m := NewMachine()
			for _, next := range tt.path {
				if !m.Transition(next) {
					t.Fatalf("Setup transition to %v failed", next)
				}
			}
			before := m.Current()
			if m.Transition(tt.to) {
				t.Fatalf("Transition %v -> %v succeeded, want rejection", before, tt.to)
			}
			if m.Current() != before {
				t.Errorf("Rejected transition moved state to %v", m.Current())
			}
		})
	}
}

func TestStatusActive(t *testing.T) {
	if (Status{State: StateIdle}).Active() {
		t.Error("Idle status reported active")
	}
	if (Status{State: StateLoading}).Active() {
		t.Error("Loading status reported active")
	}
	if !(Status{State: StatePlaying}).Active() {
		t.Error("Playing status reported inactive")
	}
	if !(Status{State: StatePaused}).Active() {
		t.Error("Paused status reported inactive")
	}
}
