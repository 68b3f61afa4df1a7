package lifetime

// Phase describes where a Lifetime is in its lifecycle.
type Phase uint8

const (
	PhasePending Phase = iota
	PhaseRunning
	PhaseStopping
	PhaseStopped
)

func (p Phase) String() string {
	switch p {
	case PhasePending:
		return "pending"
	case PhaseRunning:
		return "running"
	case PhaseStopping:
		return "stopping"
	case PhaseStopped:
		return "stopped"
	default:
		return "unknown"
	}
}
