package domain

// ServiceState is the lifecycle state of an inference service instance.
type ServiceState string

const (
	StateUnstarted    ServiceState = "UNSTARTED"
	StateLoading      ServiceState = "LOADING"
	StateReady        ServiceState = "READY"
	StateShuttingDown ServiceState = "SHUTTING_DOWN"
	StateStopped      ServiceState = "STOPPED"
)

var transitions = map[ServiceState][]ServiceState{
	StateUnstarted:    {StateLoading, StateStopped},
	StateLoading:      {StateReady, StateStopped},
	StateReady:        {StateShuttingDown},
	StateShuttingDown: {StateStopped},
}

// CanTransitionTo reports whether next is a legal successor of s. Stopped is
// terminal.
func (s ServiceState) CanTransitionTo(next ServiceState) bool {
	for _, allowed := range transitions[s] {
		if allowed == next {
			return true
		}
	}
	return false
}

// Serving reports whether requests are accepted in this state.
func (s ServiceState) Serving() bool { return s == StateReady }
