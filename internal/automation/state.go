package automation

// State is a step of one automation run
type State int

const (
	StateIdle State = iota
	StateLoggingIn
	StateLoggedIn
	StatePerformingAction
	StateVerified
	StateFailed
)

func (s State) String() string {
	switch s {
	case StateIdle:
		return "Idle"
	case StateLoggingIn:
		return "LoggingIn"
	case StateLoggedIn:
		return "LoggedIn"
	case StatePerformingAction:
		return "PerformingAction"
	case StateVerified:
		return "Verified"
	case StateFailed:
		return "Failed"
	default:
		return "Unknown"
	}
}

// Terminal reports whether no further transition is allowed
func (s State) Terminal() bool {
	return s == StateVerified || s == StateFailed
}

var transitions = map[State][]State{
	StateIdle:             {StateLoggingIn, StateFailed},
	StateLoggingIn:        {StateLoggedIn, StateFailed},
	StateLoggedIn:         {StatePerformingAction, StateFailed},
	StatePerformingAction: {StateVerified, StateFailed},
}

// CanTransition reports whether from -> to is a legal move
func CanTransition(from, to State) bool {
	for _, next := range transitions[from] {
		if next == to {
			return true
		}
	}
	return false
}
