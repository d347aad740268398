package authsphere

import (
	"context"
	"errors"
	"sync"
	"time"

	goerrors "github.com/goliatone/go-errors"
)

// SessionState is the session lifecycle phase.
type SessionState string

const (
	// SessionAnonymous means no identity is resolved.
	SessionAnonymous SessionState = "anonymous"
	// SessionAuthenticating is the transient single-flight login phase.
	SessionAuthenticating SessionState = "authenticating"
	// SessionAuthenticated means the latest profile load succeeded.
	SessionAuthenticated SessionState = "authenticated"
)

// SessionManager is the single source of truth for "who is logged in". It
// owns the in-memory identity and the persisted token slot; guards and the
// directory read it but never mutate it.
//
// Concurrency: logins are single-flight, a second concurrent Login is
// rejected with ErrLoginInProgress. Logout and successful logins bump an
// internal generation so any login or refresh still in flight discards its
// result instead of re-populating the identity; the logged-out state always
// wins, and a stale refresh never clobbers a fresher login.
type SessionManager struct {
	profile   ProfileService
	tokens    TokenStore
	validator TokenValidator
	logger    Logger
	sink      ActivitySink

	mu         sync.RWMutex
	identity   *Identity
	state      SessionState
	generation uint64
	loginBusy  bool
	listeners  []StateListener
}

// NewSessionManager returns a session manager wired to the backend profile
// surface and the persisted token slot.
func NewSessionManager(profile ProfileService, tokens TokenStore) *SessionManager {
	return &SessionManager{
		profile: profile,
		tokens:  tokens,
		logger:  defLogger{},
		sink:    noopActivitySink{},
		state:   SessionAnonymous,
	}
}

func (s *SessionManager) WithLogger(logger Logger) *SessionManager {
	if logger != nil {
		s.logger = logger
	}
	return s
}

// WithActivitySink configures an ActivitySink for emitting session events.
func (s *SessionManager) WithActivitySink(sink ActivitySink) *SessionManager {
	s.sink = normalizeActivitySink(sink)
	return s
}

// WithTokenValidator sets a validator applied to the persisted token before
// profile loads. An invalid or expired token is treated like a rejected one:
// the session resolves to anonymous without a round trip.
func (s *SessionManager) WithTokenValidator(validator TokenValidator) *SessionManager {
	s.validator = validator
	return s
}

// Start populates the session from the persisted token, mirroring the
// profile load a fresh process performs before rendering anything. A missing
// token is not an error; anything else is reported to the caller.
func (s *SessionManager) Start(ctx context.Context) error {
	_, err := s.RefreshProfile(ctx)
	if err != nil && errors.Is(err, ErrNotAuthenticated) {
		return nil
	}
	return err
}

// CurrentIdentity returns a snapshot of the resolved identity, nil when
// anonymous. It never blocks on network activity.
func (s *SessionManager) CurrentIdentity() *Identity {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.identity.Clone()
}

// State returns the current lifecycle phase.
func (s *SessionManager) State() SessionState {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.state
}

// Login exchanges credentials for a token, persists it, then loads the
// profile. It succeeds only if both steps succeed; on any failure the
// previous identity and token are left in place and no partial identity is
// ever observable.
func (s *SessionManager) Login(ctx context.Context, creds Credentials) (*Identity, error) {
	s.mu.Lock()
	if s.loginBusy {
		s.mu.Unlock()
		return nil, ErrLoginInProgress
	}
	s.loginBusy = true
	gen := s.generation
	prevState := s.state
	change := s.setStateLocked(SessionAuthenticating)
	s.mu.Unlock()
	s.dispatch(change)

	identity, err := s.login(ctx, creds, gen)

	s.mu.Lock()
	s.loginBusy = false
	change = nil
	if err != nil && s.generation == gen && s.state == SessionAuthenticating {
		change = s.setStateLocked(prevState)
	}
	s.mu.Unlock()
	s.dispatch(change)

	return identity, err
}

func (s *SessionManager) login(ctx context.Context, creds Credentials, gen uint64) (*Identity, error) {
	prevToken, err := s.tokens.Get()
	if err != nil {
		s.logger.Error("Login could not read token store", "error", err)
		prevToken = ""
	}

	token, err := s.profile.ExchangeCredentials(ctx, creds.Username, creds.Password)
	if err != nil {
		s.logger.Error("Login token exchange error", "error", err)
		s.emit(ctx, ActivityEventLoginFailure, "", map[string]any{
			"username": creds.Username,
			"error":    err.Error(),
		})
		return nil, err
	}

	if err := s.persistToken(token, gen); err != nil {
		return nil, err
	}

	identity, err := s.profile.LoadProfile(ctx, token)
	if err != nil {
		s.logger.Error("Login profile load error", "error", err)
		s.restoreToken(prevToken, gen)
		s.emit(ctx, ActivityEventLoginFailure, "", map[string]any{
			"username": creds.Username,
			"error":    err.Error(),
		})
		return nil, err
	}

	s.mu.Lock()
	if s.generation != gen {
		s.mu.Unlock()
		return nil, ErrLoginSuperseded
	}
	// a successful login claims a new generation so a refresh still in
	// flight with the old token cannot overwrite the fresher identity
	s.generation++
	s.identity = identity.Clone()
	change := s.setStateLocked(SessionAuthenticated)
	s.mu.Unlock()
	s.dispatch(change)

	s.emit(ctx, ActivityEventLoginSuccess, identity.ID, map[string]any{
		"username": identity.Username,
	})

	return identity, nil
}

// Logout clears the persisted token and the in-memory identity
// unconditionally. It never fails; a token store error is logged and the
// in-memory session still resolves to anonymous.
func (s *SessionManager) Logout(ctx context.Context) {
	s.mu.Lock()
	actorID := ""
	if s.identity != nil {
		actorID = s.identity.ID
	}
	s.generation++
	s.identity = nil
	change := s.setStateLocked(SessionAnonymous)
	if err := s.tokens.Clear(); err != nil {
		s.logger.Error("Logout could not clear token store", "error", err)
	}
	s.mu.Unlock()
	s.dispatch(change)

	s.emit(ctx, ActivityEventLogout, actorID, nil)
}

// RefreshProfile re-resolves the identity from the persisted token. On any
// failure the in-memory identity AND the persisted token are cleared: a token
// the backend just rejected would only re-fail on the next startup, so the
// slot is not worth keeping. Idempotent for an unchanged valid token.
func (s *SessionManager) RefreshProfile(ctx context.Context) (*Identity, error) {
	s.mu.RLock()
	gen := s.generation
	s.mu.RUnlock()

	token, err := s.tokens.Get()
	if err != nil {
		return nil, goerrors.Wrap(err, goerrors.CategoryInternal, "failed to read token store")
	}
	if token == "" {
		s.resolveAnonymous(ctx, gen, nil)
		return nil, ErrNotAuthenticated
	}

	if s.validator != nil {
		if err := s.validator.Validate(token); err != nil {
			s.logger.Info("Persisted token failed validation", "error", err)
			s.resolveAnonymous(ctx, gen, err)
			return nil, ErrNotAuthenticated
		}
	}

	identity, err := s.profile.LoadProfile(ctx, token)
	if err != nil {
		s.logger.Error("Profile refresh error", "error", err)
		s.resolveAnonymous(ctx, gen, err)
		return nil, err
	}

	s.mu.Lock()
	if s.generation != gen {
		s.mu.Unlock()
		return nil, ErrLoginSuperseded
	}
	s.identity = identity.Clone()
	change := s.setStateLocked(SessionAuthenticated)
	s.mu.Unlock()
	s.dispatch(change)

	return identity, nil
}

// persistToken writes the slot unless a logout superseded the login.
func (s *SessionManager) persistToken(token string, gen uint64) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.generation != gen {
		return ErrLoginSuperseded
	}
	if err := s.tokens.Set(token); err != nil {
		return goerrors.Wrap(err, goerrors.CategoryInternal, "failed to persist access token")
	}
	return nil
}

func (s *SessionManager) restoreToken(prevToken string, gen uint64) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.generation != gen {
		return
	}
	var err error
	if prevToken == "" {
		err = s.tokens.Clear()
	} else {
		err = s.tokens.Set(prevToken)
	}
	if err != nil {
		s.logger.Error("Could not restore token store after failed login", "error", err)
	}
}

// resolveAnonymous clears identity and token after a failed refresh, unless a
// newer generation already owns the session.
func (s *SessionManager) resolveAnonymous(ctx context.Context, gen uint64, cause error) {
	s.mu.Lock()
	if s.generation != gen {
		s.mu.Unlock()
		return
	}
	actorID := ""
	if s.identity != nil {
		actorID = s.identity.ID
	}
	s.identity = nil
	change := s.setStateLocked(SessionAnonymous)
	if err := s.tokens.Clear(); err != nil {
		s.logger.Error("Could not clear token store after failed refresh", "error", err)
	}
	s.mu.Unlock()
	s.dispatch(change)

	if cause != nil {
		s.emit(ctx, ActivityEventRefreshFailure, actorID, map[string]any{
			"error": cause.Error(),
		})
	}
}

func (s *SessionManager) emit(ctx context.Context, event ActivityEventType, actorID string, meta map[string]any) {
	record := ActivityEvent{
		EventType:  event,
		ActorID:    actorID,
		Metadata:   meta,
		OccurredAt: time.Now(),
	}
	if err := s.sink.Record(ctx, record); err != nil {
		s.logger.Error("Activity sink error", "event", string(event), "error", err)
	}
}
