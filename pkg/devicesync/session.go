package devicesync

import (
	"fmt"
	"sync"
)

// SessionState is where a scanning device is in its loop. The camera poll
// runs only in StateScanning; opening the confirmation dialog pauses it so
// the same code is not scanned again behind the dialog.
type SessionState string

const (
	StateIdle       SessionState = "idle"
	StateScanning   SessionState = "scanning"
	StateResolving  SessionState = "resolving"
	StateConfirming SessionState = "confirming"
	StateApplying   SessionState = "applying"
)

var sessionTransitions = map[SessionState][]SessionState{
	StateIdle:       {StateScanning},
	StateScanning:   {StateResolving, StateIdle},
	StateResolving:  {StateConfirming, StateScanning, StateIdle},
	StateConfirming: {StateApplying, StateScanning, StateIdle},
	StateApplying:   {StateScanning, StateIdle},
}

// Session is the scan-loop state machine. Transitions outside the table
// above are bugs in the caller and are rejected.
type Session struct {
	mu    sync.Mutex
	state SessionState

	poller *Poller
}

// NewSession starts in StateIdle. poller may be nil for sessions that
// drive the camera themselves.
func NewSession(poller *Poller) *Session {
	return &Session{state: StateIdle, poller: poller}
}

func (s *Session) State() SessionState {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.state
}

// To moves the session to next, starting or pausing the poll as the state
// demands.
func (s *Session) To(next SessionState) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if !validTransition(s.state, next) {
		return fmt.Errorf("invalid session transition %s -> %s", s.state, next)
	}
	s.state = next

	if s.poller != nil {
		if next == StateScanning {
			s.poller.Resume()
		} else {
			s.poller.Pause()
		}
	}
	return nil
}

func validTransition(from, to SessionState) bool {
	for _, allowed := range sessionTransitions[from] {
		if allowed == to {
			return true
		}
	}
	return false
}
