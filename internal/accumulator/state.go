package accumulator

// State is the lifecycle state of an Accumulator.
type State int32

// Accumulator lifecycle states.
const (
	// StateIdle means the buffer is empty and no timer is armed.
	StateIdle State = iota
	// StateCollecting means the buffer holds messages and a timer is armed.
	StateCollecting
	// StateStopping means shutdown was requested and the final flush is pending.
	StateStopping
	// StateStopped is terminal; the buffer is empty and no enqueue is accepted.
	StateStopped
)

func (s State) String() string {
	switch s {
	case StateIdle:
		return "idle"
	case StateCollecting:
		return "collecting"
	case StateStopping:
		return "stopping"
	case StateStopped:
		return "stopped"
	default:
		return "unknown"
	}
}
