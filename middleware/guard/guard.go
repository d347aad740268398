// Package guard provides route middleware for session-backed access control:
// an authenticated-only guard and a capability guard layered on top of it.
// Guards decide navigation only; the directory and the backend re-check every
// privileged operation regardless of what a guard allowed through.
package guard

import (
	"context"
	"net/http"

	"github.com/goliatone/go-router"

	authsphere "github.com/authsphere/go-authsphere"
)

// IdentitySource yields the identity of the active session, nil when
// anonymous. Satisfied by *authsphere.SessionManager.
type IdentitySource interface {
	CurrentIdentity() *authsphere.Identity
}

// RedirectWriter remembers the originally requested URL before a redirect to
// login. Satisfied by *authsphere.WebSession.
type RedirectWriter interface {
	SetRedirect(ctx router.Context)
}

// CheckListener is invoked after a guard admits a request, before the next
// handler runs.
type CheckListener func(ctx router.Context, identity *authsphere.Identity) error

type Config struct {
	// Filter skips the guard entirely when it returns true.
	Filter         func(router.Context) bool
	SuccessHandler router.HandlerFunc
	ErrorHandler   router.ErrorHandler

	// Session is required: the identity source the guard consults.
	Session IdentitySource

	// Requirement, when non empty, must be satisfied by the identity's
	// permission set. Leave empty for an authenticated-only guard.
	Requirement authsphere.Requirement

	// Redirects stores the rejected route before bouncing to login, so a
	// successful login can resume the original navigation.
	Redirects RedirectWriter

	LoginRoute        string
	UnauthorizedRoute string

	// ContextKey is where the admitted identity is stored in router locals.
	ContextKey string

	// ContextEnricher propagates the identity to the standard Go context.
	ContextEnricher func(c context.Context, identity *authsphere.Identity) context.Context

	// CheckListeners run after admission. Use them for bookkeeping before the
	// request proceeds.
	CheckListeners []CheckListener
}

// New builds a guard middleware from the given configuration.
func New(config ...Config) router.MiddlewareFunc {
	return func(hf router.HandlerFunc) router.HandlerFunc {
		cfg := GetDefaultConfig(config...)
		return func(ctx router.Context) error {
			if cfg.Filter != nil && cfg.Filter(ctx) {
				return ctx.Next()
			}

			identity := cfg.Session.CurrentIdentity()
			if identity == nil {
				return cfg.ErrorHandler(ctx, authsphere.ErrNotAuthenticated)
			}

			if !authsphere.Satisfies(identity, cfg.Requirement) {
				return cfg.ErrorHandler(ctx, authsphere.ErrPermissionDenied)
			}

			if err := cfg.runCheckListeners(ctx, identity); err != nil {
				return cfg.ErrorHandler(ctx, err)
			}

			ctx.Locals(cfg.ContextKey, identity)

			if cfg.ContextEnricher != nil {
				ctx.SetContext(cfg.ContextEnricher(ctx.Context(), identity))
			}

			return cfg.SuccessHandler(ctx)
		}
	}
}

// Authenticated admits any active session and bounces anonymous requests to
// the login route, remembering where they were headed.
func Authenticated(web *authsphere.WebSession, config ...Config) router.MiddlewareFunc {
	cfg := firstConfig(config...)
	cfg.Session = web.Session()
	cfg.Redirects = web
	return New(cfg)
}

// Capability admits sessions whose identity satisfies the requirement.
// Anonymous requests bounce to login; authenticated but unqualified requests
// bounce to the unauthorized route.
func Capability(web *authsphere.WebSession, req authsphere.Requirement, config ...Config) router.MiddlewareFunc {
	cfg := firstConfig(config...)
	cfg.Session = web.Session()
	cfg.Redirects = web
	cfg.Requirement = req
	return New(cfg)
}

// Admin guards the administrative area.
func Admin(web *authsphere.WebSession, config ...Config) router.MiddlewareFunc {
	return Capability(web, authsphere.AdminRequirement, config...)
}

func firstConfig(config ...Config) Config {
	if len(config) > 0 {
		return config[0]
	}
	return Config{}
}

func GetDefaultConfig(config ...Config) (cfg Config) {
	cfg = firstConfig(config...)

	if cfg.Session == nil {
		panic("AUTHSPHERE: guard configuration: Session is required.")
	}

	if cfg.LoginRoute == "" {
		cfg.LoginRoute = "/login"
	}

	if cfg.UnauthorizedRoute == "" {
		cfg.UnauthorizedRoute = "/unauthorized"
	}

	if cfg.ContextKey == "" {
		cfg.ContextKey = "current_identity"
	}

	if cfg.SuccessHandler == nil {
		cfg.SuccessHandler = func(ctx router.Context) error {
			return ctx.Next()
		}
	}

	if cfg.ContextEnricher == nil {
		cfg.ContextEnricher = authsphere.WithIdentityContext
	}

	if cfg.ErrorHandler == nil {
		cfg.ErrorHandler = cfg.defaultErrorHandler
	}

	return cfg
}

// defaultErrorHandler implements the redirect policy: anonymous requests go
// to login carrying the rejected route, unqualified ones go to the
// unauthorized page.
func (cfg *Config) defaultErrorHandler(ctx router.Context, err error) error {
	if authsphere.IsPermissionDenied(err) {
		return ctx.Redirect(cfg.UnauthorizedRoute, router.StatusSeeOther)
	}

	if cfg.Redirects != nil {
		cfg.Redirects.SetRedirect(ctx)
	}

	statusCode := http.StatusSeeOther
	if ctx.Method() == string(router.GET) {
		statusCode = http.StatusFound
	}
	return ctx.Redirect(cfg.LoginRoute, statusCode)
}

func (cfg *Config) runCheckListeners(ctx router.Context, identity *authsphere.Identity) error {
	for _, listener := range cfg.CheckListeners {
		if listener == nil {
			continue
		}
		if err := listener(ctx, identity); err != nil {
			return err
		}
	}
	return nil
}
