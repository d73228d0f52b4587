package engine

import "fmt"

// State is a step of the apply state machine.
type State int

const (
	Idle State = iota
	BackingUp
	Writing
	Reconciling
	Done
	Failed
)

func (s State) String() string {
	switch s {
	case Idle:
		return "Idle"
	case BackingUp:
		return "BackingUp"
	case Writing:
		return "Writing"
	case Reconciling:
		return "Reconciling"
	case Done:
		return "Done"
	case Failed:
		return "Failed"
	default:
		return "Unknown"
	}
}

// MarshalText renders the state name in JSON and YAML output.
func (s State) MarshalText() ([]byte, error) {
	return []byte(s.String()), nil
}

// UnmarshalText parses a state name produced by MarshalText.
func (s *State) UnmarshalText(b []byte) error {
	for c := Idle; c <= Failed; c++ {
		if c.String() == string(b) {
			*s = c
			return nil
		}
	}
	return fmt.Errorf("engine: unknown state %q", b)
}
