package robot

// FSM tracks a single robot's lifecycle state and enforces the allowed
// transition table.
type FSM struct {
	currentState State
	transitions  map[State][]State
}

// NewFSM creates an FSM seeded at initialState with the fixed transition table.
func NewFSM(initialState State) *FSM {
	return &FSM{
		currentState: initialState,
		transitions: map[State][]State{
			StateIdle:     {StateMoving, StateCharging, StateError, StateOffline},
			StateMoving:   {StateIdle, StatePaused, StateError, StateOffline},
			StatePaused:   {StateMoving, StateIdle, StateError, StateOffline},
			StateCharging: {StateIdle, StateError, StateOffline},
			StateError:    {StateIdle, StateOffline},
			StateOffline:  {StateIdle},
		},
	}
}

// CurrentState returns the current state.
func (f *FSM) CurrentState() State {
	return f.currentState
}

// CanTransitionTo reports whether target is reachable from the current state.
func (f *FSM) CanTransitionTo(target State) bool {
	for _, s := range f.transitions[f.currentState] {
		if s == target {
			return true
		}
	}
	return false
}

// TransitionTo moves to target if allowed, reporting success.
func (f *FSM) TransitionTo(target State) bool {
	if !f.CanTransitionTo(target) {
		return false
	}
	f.currentState = target
	return true
}

// ForceState unconditionally sets the state. Used for the Error safety
// override, which spec §3 always permits regardless of the current state.
func (f *FSM) ForceState(state State) {
	f.currentState = state
}
