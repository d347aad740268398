package authsphere

import (
	"context"

	"github.com/goliatone/go-router"
)

var identityCtxKey = &contextKey{"identity"}
var confirmedCtxKey = &contextKey{"confirmed"}

type contextKey struct {
	name string
}

// WithIdentityContext sets the Identity in the given context.
func WithIdentityContext(ctx context.Context, identity *Identity) context.Context {
	return context.WithValue(ctx, identityCtxKey, identity)
}

// IdentityFromContext finds the identity in the context.
func IdentityFromContext(ctx context.Context) (*Identity, bool) {
	raw, ok := ctx.Value(identityCtxKey).(*Identity)
	if !ok || raw == nil {
		return nil, false
	}
	return raw, true
}

// IdentityFromRouter extracts the identity a guard stored in the router
// context under key (the guard's ContextKey, "current_identity" by default).
func IdentityFromRouter(ctx router.Context, key string) (*Identity, bool) {
	if key == "" {
		key = "current_identity"
	}
	raw := ctx.Locals(key)
	if raw == nil {
		return nil, false
	}
	identity, ok := raw.(*Identity)
	if !ok || identity == nil {
		return nil, false
	}
	return identity, true
}

// WithConfirmation marks the context as interactively confirmed. Web handlers
// set it after the user submitted an explicit confirmation field; CLI callers
// set it after a prompt. ContextConfirmer reads it back.
func WithConfirmation(ctx context.Context) context.Context {
	return context.WithValue(ctx, confirmedCtxKey, true)
}

// IsConfirmed reports whether the context carries interactive confirmation.
func IsConfirmed(ctx context.Context) bool {
	confirmed, ok := ctx.Value(confirmedCtxKey).(bool)
	return ok && confirmed
}

// ContextConfirmer approves destructive operations only when the request
// context was marked via WithConfirmation.
type ContextConfirmer struct{}

// Confirm implements Confirmer.
func (ContextConfirmer) Confirm(ctx context.Context, _ string) (bool, error) {
	return IsConfirmed(ctx), nil
}

// Can is a convenience permission check against the identity stored in the
// standard context.
func Can(ctx context.Context, perms ...Permission) bool {
	identity, ok := IdentityFromContext(ctx)
	if !ok {
		return false
	}
	return Satisfies(identity, RequireAll(perms...))
}
