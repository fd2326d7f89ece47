package state

type JobState string

const (
	StateCreated   JobState = "CREATED"
	StateRunning   JobState = "RUNNING"
	StateCompleted JobState = "COMPLETED"
	StateFailed    JobState = "FAILED"
	StateFatal     JobState = "FATAL"
	StateCancelled JobState = "CANCELLED"
)

func (s JobState) String() string {
	return string(s)
}

var AllStates = []JobState{
	StateCreated,
	StateRunning,
	StateCompleted,
	StateFailed,
	StateFatal,
	StateCancelled,
}

type Transition struct {
	From JobState
	To   JobState
}

// ValidTransitions is the complete transition table. Anything not listed is rejected.
var ValidTransitions = []Transition{
	{From: StateCreated, To: StateRunning},
	{From: StateCreated, To: StateCancelled},
	{From: StateRunning, To: StateCompleted},
	{From: StateRunning, To: StateFailed},
	{From: StateRunning, To: StateCancelled},
	{From: StateFailed, To: StateRunning},
	{From: StateFailed, To: StateFatal},
	{From: StateFailed, To: StateCancelled},
}

// ClaimableStates are the states a worker may move into RUNNING through a claim.
var ClaimableStates = []JobState{StateCreated, StateFailed}

func IsValidTransition(from, to JobState) bool {
	for _, t := range ValidTransitions {
		if t.From == from && t.To == to {
			return true
		}
	}
	return false
}

// IsTerminal reports whether no transition leaves s.
func IsTerminal(s JobState) bool {
	for _, t := range ValidTransitions {
		if t.From == s {
			return false
		}
	}
	return true
}

func IsKnown(s JobState) bool {
	for _, known := range AllStates {
		if known == s {
			return true
		}
	}
	return false
}
