package install

// State is a stage of the installation state machine.
type State string

const (
	StateStart                  State = "Start"
	StateValidatingReadiness    State = "ValidatingReadiness"
	StateAwaitingPackageManager State = "AwaitingPackageManager"
	StateInstalling             State = "Installing"
	StateVerifying              State = "Verifying"
	StateSucceeded              State = "Succeeded"
	StateFailed                 State = "Failed"
)

// transitions lists the legal forward edges. Failed is reachable from every
// non-terminal state.
var transitions = map[State][]State{
	StateStart:                  {StateValidatingReadiness, StateFailed},
	StateValidatingReadiness:    {StateAwaitingPackageManager, StateFailed},
	StateAwaitingPackageManager: {StateInstalling, StateFailed},
	StateInstalling:             {StateVerifying, StateFailed},
	StateVerifying:              {StateSucceeded, StateFailed},
}

// CanTransition reports whether moving from s to next is legal.
func (s State) CanTransition(next State) bool {
	for _, allowed := range transitions[s] {
		if allowed == next {
			return true
		}
	}
	return false
}

// Terminal reports whether the state ends the run.
func (s State) Terminal() bool {
	return s == StateSucceeded || s == StateFailed
}
