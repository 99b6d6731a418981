package editor

// State tracks the lifecycle of a managed editor process.
type State int

const (
	StateNotRunning State = iota
	StateLaunching
	StateRunning
	StateStopping
	StateCrashed
)

// MarshalJSON emits the state name rather than its ordinal.
func (s State) MarshalJSON() ([]byte, error) {
	return []byte(`"` + s.String() + `"`), nil
}

func (s State) String() string {
	switch s {
	case StateNotRunning:
		return "not_running"
	case StateLaunching:
		return "launching"
	case StateRunning:
		return "running"
	case StateStopping:
		return "stopping"
	case StateCrashed:
		return "crashed"
	default:
		return "unknown"
	}
}
