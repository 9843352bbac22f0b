package supervisor

// State is the supervisor's in-memory lifecycle state. Only the PID is
// persisted; state is reconciled against the pidfile and a live health probe.
type State string

const (
	StateStopped  State = "stopped"
	StateStarting State = "starting"
	StateReady    State = "ready"
	StateStopping State = "stopping"
	StateFailed   State = "failed"
)
