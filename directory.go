package authsphere

import (
	"context"
	"fmt"
	"sync"
	"time"

	goerrors "github.com/goliatone/go-errors"
	"github.com/google/uuid"
)

// Session is the view of the session manager the directory depends on.
type Session interface {
	CurrentIdentity() *Identity
	Logout(ctx context.Context)
	RefreshProfile(ctx context.Context) (*Identity, error)
}

// Directory manages the backend user collection and the read-only audit
// trail for administrators. Every operation demands the admin:access
// permission on the current session. Mutations never update the local lists
// optimistically: the directory re-fetches authoritative state after the
// backend confirmed the change, so server-computed fields (generated ids,
// default roles, permission derivations) never drift.
type Directory struct {
	api     DirectoryAPI
	session Session
	confirm Confirmer
	logger  Logger
	sink    ActivitySink

	register *RegisterUserHandler

	mu      sync.RWMutex
	users   []Identity
	entries []AuditLogEntry
}

// NewDirectory wires the directory to the backend surface and the session it
// is gated by. The Confirmer guards destructive operations; use
// ContextConfirmer for request-scoped web confirmations.
func NewDirectory(api DirectoryAPI, session Session, confirm Confirmer) *Directory {
	return &Directory{
		api:      api,
		session:  session,
		confirm:  confirm,
		logger:   defLogger{},
		sink:     noopActivitySink{},
		register: NewRegisterUserHandler(api),
	}
}

func (d *Directory) WithLogger(logger Logger) *Directory {
	if logger != nil {
		d.logger = logger
	}
	return d
}

// WithActivitySink configures an ActivitySink for directory mutations.
func (d *Directory) WithActivitySink(sink ActivitySink) *Directory {
	d.sink = normalizeActivitySink(sink)
	return d
}

// guard resolves the acting identity or the matching authorization error.
func (d *Directory) guard() (*Identity, error) {
	identity := d.session.CurrentIdentity()
	if identity == nil {
		return nil, ErrNotAuthenticated
	}
	if !Satisfies(identity, AdminRequirement) {
		return nil, ErrPermissionDenied
	}
	return identity, nil
}

// Refresh fetches the user listing and the audit trail together. On failure
// the previous lists stay untouched and the error is surfaced.
func (d *Directory) Refresh(ctx context.Context) error {
	if _, err := d.guard(); err != nil {
		return err
	}

	users, err := d.api.ListUsers(ctx)
	if err != nil {
		return err
	}

	entries, err := d.api.ListAuditLog(ctx)
	if err != nil {
		return err
	}

	d.mu.Lock()
	d.users = users
	d.entries = entries
	d.mu.Unlock()

	return nil
}

// Users returns a copy of the last fetched active user listing.
func (d *Directory) Users() []Identity {
	d.mu.RLock()
	defer d.mu.RUnlock()
	out := make([]Identity, len(d.users))
	for i := range d.users {
		out[i] = *d.users[i].Clone()
	}
	return out
}

// AuditLog returns a copy of the last fetched audit entries.
func (d *Directory) AuditLog() []AuditLogEntry {
	d.mu.RLock()
	defer d.mu.RUnlock()
	out := make([]AuditLogEntry, len(d.entries))
	copy(out, d.entries)
	return out
}

// RegisterUser creates a user through the shared sign-up contract and
// refreshes the listing on success.
func (d *Directory) RegisterUser(ctx context.Context, msg RegisterUserMessage) error {
	actor, err := d.guard()
	if err != nil {
		return err
	}

	if err := d.register.Execute(ctx, msg); err != nil {
		return err
	}

	d.emit(ctx, ActivityEventUserRegistered, actor.ID, "", map[string]any{
		"username": msg.Username,
	})
	d.refreshAfterMutation(ctx, "")

	return nil
}

// DeleteUser irreversibly removes the user record. It refuses to run without
// interactive confirmation. Audit entries that reference the id keep
// existing; only the active listing changes. Deleting the acting admin's own
// account forces a logout.
func (d *Directory) DeleteUser(ctx context.Context, id string) error {
	actor, err := d.guard()
	if err != nil {
		return err
	}
	if err := validateUserID(id); err != nil {
		return err
	}

	prompt := fmt.Sprintf("Delete user %s? This cannot be undone.", id)
	if err := d.confirmed(ctx, prompt); err != nil {
		return err
	}

	if err := d.api.DeleteUser(ctx, id); err != nil {
		return err
	}

	d.emit(ctx, ActivityEventUserDeleted, actor.ID, id, nil)

	if actor.ID == id {
		d.selfRemoved(ctx, id)
		return nil
	}

	d.refreshAfterMutation(ctx, id)
	return nil
}

// AnonymizeUser scrubs the user's identifying fields while the record and its
// id survive for audit referential integrity. Distinct from DeleteUser: audit
// entries keep resolving to the id, but the user leaves the active listing.
// Anonymizing the acting admin's own account forces a logout.
func (d *Directory) AnonymizeUser(ctx context.Context, id string) error {
	actor, err := d.guard()
	if err != nil {
		return err
	}
	if err := validateUserID(id); err != nil {
		return err
	}

	prompt := fmt.Sprintf("Anonymize user %s? Identifying data is scrubbed permanently.", id)
	if err := d.confirmed(ctx, prompt); err != nil {
		return err
	}

	if err := d.api.AnonymizeUser(ctx, id); err != nil {
		return err
	}

	d.emit(ctx, ActivityEventUserAnonymized, actor.ID, id, nil)

	if actor.ID == id {
		d.selfRemoved(ctx, id)
		return nil
	}

	d.refreshAfterMutation(ctx, id)
	return nil
}

// UpdateRoles replaces the user's role labels wholesale; there is no
// incremental merge. Labels are sanitized first: colon-carrying tokens are
// dropped so scoped-permission syntax never travels through the role field.
// Updating the acting admin's own roles refreshes the session profile so a
// self-demotion takes effect immediately.
func (d *Directory) UpdateRoles(ctx context.Context, id string, roles []Role) error {
	actor, err := d.guard()
	if err != nil {
		return err
	}
	if err := validateUserID(id); err != nil {
		return err
	}

	sanitized := SanitizeRoles(roles)
	if _, err := d.api.UpdateRoles(ctx, id, sanitized); err != nil {
		return err
	}

	d.emit(ctx, ActivityEventRolesUpdated, actor.ID, id, map[string]any{
		"roles": sanitized,
	})
	d.refreshAfterMutation(ctx, "")

	if actor.ID == id {
		if _, err := d.session.RefreshProfile(ctx); err != nil {
			d.logger.Info("Profile refresh after self role update failed", "error", err)
		}
	}

	return nil
}

func (d *Directory) confirmed(ctx context.Context, prompt string) error {
	ok, err := d.confirm.Confirm(ctx, prompt)
	if err != nil {
		return goerrors.Wrap(err, goerrors.CategoryOperation, "confirmation failed")
	}
	if !ok {
		return ErrConfirmationDeclined
	}
	return nil
}

// refreshAfterMutation re-fetches authoritative state. If the fetch itself
// fails the mutation already happened, so the stale entry is filtered locally
// and the error only logged.
func (d *Directory) refreshAfterMutation(ctx context.Context, removedID string) {
	if err := d.Refresh(ctx); err != nil {
		d.logger.Error("Directory refresh after mutation failed", "error", err)
		if removedID != "" {
			d.dropLocal(removedID)
		}
	}
}

// selfRemoved handles an admin deleting or anonymizing their own account:
// the backend no longer recognizes the session, so it is closed immediately.
func (d *Directory) selfRemoved(ctx context.Context, id string) {
	d.logger.Info("Acting administrator removed own account, logging out", "user_id", id)
	d.dropLocal(id)
	d.session.Logout(ctx)
}

func (d *Directory) dropLocal(id string) {
	d.mu.Lock()
	defer d.mu.Unlock()
	kept := d.users[:0]
	for _, u := range d.users {
		if u.ID != id {
			kept = append(kept, u)
		}
	}
	d.users = kept
}

func (d *Directory) emit(ctx context.Context, event ActivityEventType, actorID, subjectID string, meta map[string]any) {
	record := ActivityEvent{
		EventType:  event,
		ActorID:    actorID,
		SubjectID:  subjectID,
		Metadata:   meta,
		OccurredAt: time.Now(),
	}
	if err := d.sink.Record(ctx, record); err != nil {
		d.logger.Error("Activity sink error", "event", string(event), "error", err)
	}
}

func validateUserID(id string) error {
	if _, err := uuid.Parse(id); err != nil {
		return goerrors.Wrap(err, goerrors.CategoryBadInput, "invalid user id").
			WithCode(goerrors.CodeBadRequest)
	}
	return nil
}
