package session

import "time"

// Phase is the user-visible session state.
type Phase int

const (
	// PhaseLoggedOut means there is no usable session.
	PhaseLoggedOut Phase = iota

	// PhaseLoggingIn means an authorization is waiting for the browser.
	PhaseLoggingIn

	// PhaseAuthenticated means the store holds an authorized session.
	PhaseAuthenticated
)

// String returns the string representation of the phase.
func (p Phase) String() string {
	switch p {
	case PhaseLoggedOut:
		return "LoggedOut"
	case PhaseLoggingIn:
		return "LoggingIn"
	case PhaseAuthenticated:
		return "Authenticated"
	default:
		return "Unknown"
	}
}

// PhaseChange is delivered to subscribers on every transition.
type PhaseChange struct {
	From  Phase
	To    Phase
	Cause string
	At    time.Time
}
