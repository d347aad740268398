package authsphere

import "time"

// sessionTransitions is the allowed lifecycle graph. Authenticated to
// authenticated covers an idempotent profile refresh.
var sessionTransitions = map[SessionState]map[SessionState]struct{}{
	SessionAnonymous: {
		SessionAuthenticating: {},
		SessionAnonymous:      {},
	},
	SessionAuthenticating: {
		SessionAuthenticated: {},
		SessionAnonymous:     {},
	},
	SessionAuthenticated: {
		SessionAuthenticating: {},
		SessionAuthenticated:  {},
		SessionAnonymous:      {},
	},
}

// CanTransition reports whether the lifecycle allows moving to the target
// state.
func (s SessionState) CanTransition(to SessionState) bool {
	targets, ok := sessionTransitions[s]
	if !ok {
		return false
	}
	_, ok = targets[to]
	return ok
}

// StateChange describes one session lifecycle transition.
type StateChange struct {
	From       SessionState
	To         SessionState
	Identity   *Identity
	OccurredAt time.Time
}

// StateListener observes session lifecycle transitions. Listeners run on the
// goroutine performing the transition, after the session lock is released;
// they must not call back into the session manager synchronously.
type StateListener func(change StateChange)

// WithStateListener registers a lifecycle observer. UIs use this the way the
// original web client re-renders on auth context changes.
func (s *SessionManager) WithStateListener(listener StateListener) *SessionManager {
	if listener != nil {
		s.mu.Lock()
		s.listeners = append(s.listeners, listener)
		s.mu.Unlock()
	}
	return s
}

// setStateLocked records a transition while the caller holds the write lock
// and returns the pending change, nil when the state did not move. Callers
// dispatch the change after unlocking.
func (s *SessionManager) setStateLocked(to SessionState) *StateChange {
	from := s.state
	if from == to {
		return nil
	}

	if !from.CanTransition(to) {
		// The transition table is internal; a miss means a session manager
		// bug, not caller input. Log and move anyway so the session never
		// wedges.
		s.logger.Error("Unexpected session transition", "from", string(from), "to", string(to))
	}

	s.state = to
	return &StateChange{
		From:       from,
		To:         to,
		Identity:   s.identity.Clone(),
		OccurredAt: time.Now(),
	}
}

// dispatch runs the registered listeners for a pending change.
func (s *SessionManager) dispatch(change *StateChange) {
	if change == nil {
		return
	}

	s.mu.RLock()
	listeners := make([]StateListener, len(s.listeners))
	copy(listeners, s.listeners)
	s.mu.RUnlock()

	for _, listener := range listeners {
		listener(*change)
	}
}
