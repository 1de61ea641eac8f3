package pipeline

// State is the orchestrator's position in a cycle.
type State int32

const (
	StateIdle State = iota
	StateFetching
	StateRetrying
	StateEscalated
	StateArchiving
	StateNormalizing
	StatePersisting
)

func (s State) String() string {
	switch s {
	case StateIdle:
		return "idle"
	case StateFetching:
		return "fetching"
	case StateRetrying:
		return "retrying"
	case StateEscalated:
		return "escalated"
	case StateArchiving:
		return "archiving"
	case StateNormalizing:
		return "normalizing"
	case StatePersisting:
		return "persisting"
	default:
		return "unknown"
	}
}
