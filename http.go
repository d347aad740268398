package authsphere

import (
	"net/http"
	"time"

	"github.com/goliatone/go-errors"
	"github.com/goliatone/go-print"
	"github.com/goliatone/go-router"
)

// WebSession adapts the SessionManager to router contexts: it runs logins and
// logouts for HTTP handlers and carries the originally requested URL through
// a short-lived cookie so a guarded navigation can resume after login.
type WebSession struct {
	session          *SessionManager
	cfg              Config
	Logger           Logger
	AuthErrorHandler func(c router.Context, err error) error
	ErrorHandler     func(c router.Context, err error) error
}

// NewWebSession wraps a session manager for HTTP use.
func NewWebSession(session *SessionManager, cfg Config) *WebSession {
	w := &WebSession{
		session: session,
		cfg:     cfg,
		Logger:  defLogger{},
	}

	w.ErrorHandler = w.defaultErrHandler
	w.AuthErrorHandler = w.defaultAuthErrHandler

	return w
}

// Session exposes the wrapped manager for guards and controllers.
func (w *WebSession) Session() *SessionManager {
	return w.session
}

// Login authenticates the request's credentials through the session manager.
func (w *WebSession) Login(ctx router.Context, creds Credentials) (*Identity, error) {
	identity, err := w.session.Login(ctx.Context(), creds)
	if err != nil {
		w.Logger.Error("Login error: %s", err)
		return nil, err
	}
	return identity, nil
}

// Logout closes the session. It never fails.
func (w *WebSession) Logout(ctx router.Context) {
	w.session.Logout(ctx.Context())
}

// LandingRoute applies the post-login navigation policy: a stored rejected
// route wins, administrators land on the admin area, everyone else on the
// default route. This is consumer policy; the session manager knows nothing
// about it.
func (w *WebSession) LandingRoute(ctx router.Context, identity *Identity) string {
	if r := w.GetRedirect(ctx); r != "" {
		return r
	}
	if Satisfies(identity, AdminRequirement) {
		return w.cfg.GetAdminRoute()
	}
	return w.cfg.GetRejectedRouteDefault()
}

// SetRedirect remembers the originally requested URL so login can resume it.
func (w *WebSession) SetRedirect(ctx router.Context) {
	rejectedRoute := w.cfg.GetRejectedRouteKey()

	w.Logger.Info("Setting redirect cookie", "key", rejectedRoute, "path", ctx.OriginalURL())

	ctx.Cookie(&router.Cookie{
		Name:     rejectedRoute,
		Value:    ctx.OriginalURL(),
		Expires:  time.Now().Add(time.Minute * 5),
		HTTPOnly: true,
		Secure:   true,
		SameSite: "Lax",
	})
}

// GetRedirect consumes the stored redirect, returning def (or "") when none
// is set.
func (w *WebSession) GetRedirect(ctx router.Context, def ...string) string {
	rejectedRoute := w.cfg.GetRejectedRouteKey()
	r := ctx.Cookies(rejectedRoute)
	if r == "" {
		if len(def) > 0 {
			return def[0]
		}
		return ""
	}
	w.cookieDel(ctx, rejectedRoute)
	return r
}

func (w *WebSession) cookieDel(c router.Context, name string) {
	c.Cookie(&router.Cookie{
		Name:     name,
		Value:    "",
		Expires:  time.Now().Add(-time.Hour * (24 * 365)),
		HTTPOnly: true,
		Secure:   true,
		SameSite: "Lax",
	})
}

func (w *WebSession) defaultAuthErrHandler(c router.Context, err error) error {
	var richErr *errors.Error
	if !errors.As(err, &richErr) {
		richErr = errors.Wrap(err, errors.CategoryAuth, "An unexpected authentication error").
			WithCode(errors.CodeUnauthorized)
	}

	w.Logger.Info(
		"Authentication error, redirecting to login",
		"error", richErr.Message,
		"text_code", richErr.TextCode,
		"path", c.OriginalURL(),
	)

	w.SetRedirect(c)

	statusCode := http.StatusSeeOther
	if c.Method() == string(router.GET) {
		statusCode = http.StatusFound
	}
	return c.Redirect(w.cfg.GetLoginRoute(), statusCode)
}

func (w *WebSession) defaultErrHandler(c router.Context, err error) error {
	var richErr *errors.Error
	if !errors.As(err, &richErr) {
		richErr = errors.Wrap(err, errors.CategoryInternal, "An unexpected server error occurred").
			WithCode(errors.CodeInternal)
	}

	w.Logger.Info(
		"Error handler",
		"error", richErr.Message,
		"category", richErr.Category,
		"details", print.MaybePrettyJSON(richErr.Metadata),
	)

	switch richErr.Category {
	case errors.CategoryAuth, errors.CategoryAuthz:
		return w.AuthErrorHandler(c, richErr)
	default:
		return c.Status(richErr.Code).Render("errors/500", router.ViewContext{
			"error": richErr,
		})
	}
}
