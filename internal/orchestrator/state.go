package orchestrator

// State is a step of the run state machine:
//
//	Init -> Validated                        (dry run, terminal)
//	Init -> Connecting -> Running
//	     -> [Extracting -> Persisting -> Success | Failed]...
//	     -> Summarizing -> Done
type State int

const (
	StateInit State = iota
	StateValidated
	StateConnecting
	StateRunning
	StateExtracting
	StatePersisting
	StateSuccess
	StateFailed
	StateSummarizing
	StateDone
)

var stateNames = [...]string{
	StateInit:        "init",
	StateValidated:   "validated",
	StateConnecting:  "connecting",
	StateRunning:     "running",
	StateExtracting:  "extracting",
	StatePersisting:  "persisting",
	StateSuccess:     "success",
	StateFailed:      "failed",
	StateSummarizing: "summarizing",
	StateDone:        "done",
}

func (s State) String() string {
	if s < 0 || int(s) >= len(stateNames) {
		return "unknown"
	}
	return stateNames[s]
}

// Terminal reports whether no transition leaves s.
func (s State) Terminal() bool {
	return s == StateValidated || s == StateDone
}

// TransitionFunc observes state changes. domain is set for the per-domain
// states.
type TransitionFunc func(from, to State, domain string)
