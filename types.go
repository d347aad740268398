package authsphere

import (
	"context"
	"fmt"
)

type Logger interface {
	Debug(format string, args ...any)
	Info(format string, args ...any)
	Error(format string, args ...any)
}

// TokenStore is the single process-wide slot for the persisted access token.
// Only SessionManager writes it; every other component treats the value as
// immutable between writes. An empty string means no token is persisted.
type TokenStore interface {
	Get() (string, error)
	Set(token string) error
	Clear() error
}

// TokenSource is the read-only view of a TokenStore handed to transports.
type TokenSource interface {
	Get() (string, error)
}

// ProfileService is the backend surface the session depends on: credential
// exchange and profile resolution. Implemented by client.Client.
type ProfileService interface {
	ExchangeCredentials(ctx context.Context, username, password string) (string, error)
	LoadProfile(ctx context.Context, token string) (*Identity, error)
}

// DirectoryAPI is the backend surface the admin directory depends on.
// Implemented by client.Client.
type DirectoryAPI interface {
	ListUsers(ctx context.Context) ([]Identity, error)
	ListAuditLog(ctx context.Context) ([]AuditLogEntry, error)
	RegisterUser(ctx context.Context, req Registration) (*Identity, error)
	DeleteUser(ctx context.Context, id string) error
	AnonymizeUser(ctx context.Context, id string) error
	UpdateRoles(ctx context.Context, id string, roles []Role) (*Identity, error)
}

// Credentials is the login payload exchanged for an access token.
type Credentials struct {
	Username string `form:"username" json:"username"`
	Password string `form:"password" json:"password"`
}

// Confirmer answers whether the interactive user approved a destructive
// operation. Delete and anonymize refuse to run without approval.
type Confirmer interface {
	Confirm(ctx context.Context, prompt string) (bool, error)
}

// ConfirmerFunc adapts a function to the Confirmer interface.
type ConfirmerFunc func(ctx context.Context, prompt string) (bool, error)

func (f ConfirmerFunc) Confirm(ctx context.Context, prompt string) (bool, error) {
	if f == nil {
		return false, nil
	}
	return f(ctx, prompt)
}

// Config holds the routing and cookie options shared by the guard middleware
// and the HTTP controller.
type Config interface {
	GetLoginRoute() string
	GetUnauthorizedRoute() string
	GetAdminRoute() string
	GetContextKey() string
	GetRejectedRouteKey() string
	GetRejectedRouteDefault() string
}

// ConfigOptions is a plain struct Config for embedders and tests.
type ConfigOptions struct {
	LoginRoute           string
	UnauthorizedRoute    string
	AdminRoute           string
	ContextKey           string
	RejectedRouteKey     string
	RejectedRouteDefault string
}

func (c ConfigOptions) GetLoginRoute() string {
	if c.LoginRoute == "" {
		return "/login"
	}
	return c.LoginRoute
}

func (c ConfigOptions) GetUnauthorizedRoute() string {
	if c.UnauthorizedRoute == "" {
		return "/unauthorized"
	}
	return c.UnauthorizedRoute
}

func (c ConfigOptions) GetAdminRoute() string {
	if c.AdminRoute == "" {
		return "/admin"
	}
	return c.AdminRoute
}

func (c ConfigOptions) GetContextKey() string {
	if c.ContextKey == "" {
		return "current_identity"
	}
	return c.ContextKey
}

func (c ConfigOptions) GetRejectedRouteKey() string {
	if c.RejectedRouteKey == "" {
		return "rejected_route"
	}
	return c.RejectedRouteKey
}

func (c ConfigOptions) GetRejectedRouteDefault() string {
	if c.RejectedRouteDefault == "" {
		return "/"
	}
	return c.RejectedRouteDefault
}

type defLogger struct{}

func (d defLogger) Error(format string, args ...any) {
	fmt.Printf("[ERR] AUTHSPHERE "+newline(format), args...)
}

func (d defLogger) Info(format string, args ...any) {
	fmt.Printf("[INF] AUTHSPHERE "+newline(format), args...)
}

func (d defLogger) Debug(format string, args ...any) {
	fmt.Printf("[DBG] AUTHSPHERE "+newline(format), args...)
}

func newline(s string) string {
	if len(s) > 0 && s[len(s)-1] != '\n' {
		s += "\n"
	}
	return s
}
