package shard

import "fmt"

// State is the lifecycle stage of a shard.
type State int

const (
	StateCreated State = iota
	StateRecovering
	StatePostRecovery
	StateStarted
	StateClosed
)

// String returns the string representation of the state.
func (s State) String() string {
	switch s {
	case StateCreated:
		return "created"
	case StateRecovering:
		return "recovering"
	case StatePostRecovery:
		return "post_recovery"
	case StateStarted:
		return "started"
	case StateClosed:
		return "closed"
	default:
		return fmt.Sprintf("unknown(%d)", int(s))
	}
}
