// Package csrf protects the form-posting routes with stateless double-submit
// tokens. Tokens are HMAC signed and bound to the acting identity, so a token
// minted for one session is useless in another.
package csrf

import (
	"crypto/hmac"
	"crypto/rand"
	"crypto/sha256"
	"crypto/subtle"
	"encoding/base64"
	"encoding/hex"
	"errors"
	"fmt"
	"io"
	"slices"
	"strconv"
	"strings"
	"time"

	"github.com/goliatone/go-router"
)

var (
	ErrTokenMismatch    = errors.New("CSRF token mismatch")
	ErrTokenMissing     = errors.New("CSRF token missing")
	ErrTokenExpired     = errors.New("CSRF token expired")
	ErrSecureKeyMissing = errors.New("CSRF secure key required")
)

const (
	// DefaultContextKey is where the minted token is stored in router locals.
	DefaultContextKey = "csrf_token"

	// DefaultFormFieldName is the form field carrying the token back.
	DefaultFormFieldName = "_token"

	// DefaultHeaderName is the header carrying the token back.
	DefaultHeaderName = "X-CSRF-Token"

	// DefaultIdentityKey is the router local the guard middleware stores the
	// admitted identity under; the token is bound to it.
	DefaultIdentityKey = "current_identity"

	defaultNonceLength = 32
)

// actor is the slice of the identity the token binds to. Satisfied by
// *authsphere.Identity; a local interface keeps this package free of an
// import on the root package.
type actor interface {
	ActorID() string
}

type Config struct {
	// Skip defines a function to skip the middleware.
	Skip func(router.Context) bool

	// ContextKey defines the local key the minted token is stored under.
	ContextKey string

	// FormFieldName and HeaderName define where the token is read back from.
	FormFieldName string
	HeaderName    string

	// IdentityKey defines the local key holding the acting identity.
	IdentityKey string

	// SafeMethods don't require token validation.
	SafeMethods []string

	// Expiration bounds token age. Zero means tokens never expire.
	Expiration time.Duration

	// SecureKey signs tokens. Must be at least 32 bytes; generated when empty.
	SecureKey []byte

	ErrorHandler   router.ErrorHandler
	SuccessHandler router.HandlerFunc
}

// New creates the CSRF middleware. Every request gets a fresh signed token in
// locals for the views; unsafe methods must echo a valid token back through
// the form field or header.
func New(config ...Config) router.MiddlewareFunc {
	return func(hf router.HandlerFunc) router.HandlerFunc {
		cfg := configDefault(config...)

		return func(ctx router.Context) error {
			if cfg.Skip != nil && cfg.Skip(ctx) {
				return ctx.Next()
			}

			token, err := mintToken(ctx, cfg)
			if err != nil {
				return cfg.ErrorHandler(ctx, err)
			}

			ctx.Locals(cfg.ContextKey, token)
			ctx.Locals(cfg.ContextKey+"_field", cfg.FormFieldName)
			ctx.Locals(cfg.ContextKey+"_header", cfg.HeaderName)

			method := strings.ToUpper(ctx.Method())
			if slices.Contains(cfg.SafeMethods, method) {
				return cfg.SuccessHandler(ctx)
			}

			if err := validateToken(ctx, cfg); err != nil {
				return cfg.ErrorHandler(ctx, err)
			}

			return cfg.SuccessHandler(ctx)
		}
	}
}

// sessionKey derives the binding key for the acting identity, falling back to
// the client IP for anonymous requests. The binding is hashed to hex before it
// is embedded in the payload: raw IPv6 addresses contain colons and would
// break the token's colon delimiting.
func sessionKey(ctx router.Context, cfg Config) string {
	binding := "csrf_ip_" + ctx.IP()
	if raw := ctx.Locals(cfg.IdentityKey); raw != nil {
		if a, ok := raw.(actor); ok && a.ActorID() != "" {
			binding = "csrf_actor_" + a.ActorID()
		}
	}
	sum := sha256.Sum256([]byte(binding))
	return hex.EncodeToString(sum[:])
}

func mintToken(ctx router.Context, cfg Config) (string, error) {
	if len(cfg.SecureKey) == 0 {
		return "", ErrSecureKeyMissing
	}

	nonce := make([]byte, defaultNonceLength)
	if _, err := io.ReadFull(rand.Reader, nonce); err != nil {
		return "", err
	}

	timestamp := time.Now().UTC().Unix()
	payload := fmt.Sprintf("%d:%s:%s", timestamp, hex.EncodeToString(nonce), sessionKey(ctx, cfg))

	mac := hmac.New(sha256.New, cfg.SecureKey)
	mac.Write([]byte(payload))
	signature := mac.Sum(nil)

	token := fmt.Sprintf("%s:%s", payload, hex.EncodeToString(signature))
	return base64.RawURLEncoding.EncodeToString([]byte(token)), nil
}

func validateToken(ctx router.Context, cfg Config) error {
	received := extractToken(ctx, cfg)
	if received == "" {
		return ErrTokenMissing
	}

	decoded, err := base64.RawURLEncoding.DecodeString(received)
	if err != nil {
		return ErrTokenMismatch
	}

	parts := strings.Split(string(decoded), ":")
	if len(parts) != 4 {
		return ErrTokenMismatch
	}

	timestampStr, nonceHex, keyFromToken, signatureHex := parts[0], parts[1], parts[2], parts[3]

	timestamp, err := strconv.ParseInt(timestampStr, 10, 64)
	if err != nil {
		return ErrTokenMismatch
	}

	if _, err := hex.DecodeString(nonceHex); err != nil {
		return ErrTokenMismatch
	}

	signature, err := hex.DecodeString(signatureHex)
	if err != nil {
		return ErrTokenMismatch
	}

	payload := strings.Join(parts[:3], ":")
	mac := hmac.New(sha256.New, cfg.SecureKey)
	mac.Write([]byte(payload))
	if !hmac.Equal(signature, mac.Sum(nil)) {
		return ErrTokenMismatch
	}

	if subtle.ConstantTimeCompare([]byte(keyFromToken), []byte(sessionKey(ctx, cfg))) != 1 {
		return ErrTokenMismatch
	}

	if cfg.Expiration > 0 {
		expiresAt := time.Unix(timestamp, 0).Add(cfg.Expiration)
		if time.Now().UTC().After(expiresAt) {
			return ErrTokenExpired
		}
	}

	return nil
}

func extractToken(ctx router.Context, cfg Config) string {
	if token := ctx.FormValue(cfg.FormFieldName); token != "" {
		return token
	}
	return ctx.GetString(cfg.HeaderName, "")
}

func configDefault(config ...Config) Config {
	var cfg Config
	if len(config) > 0 {
		cfg = config[0]
	}

	if cfg.ContextKey == "" {
		cfg.ContextKey = DefaultContextKey
	}

	if cfg.FormFieldName == "" {
		cfg.FormFieldName = DefaultFormFieldName
	}

	if cfg.HeaderName == "" {
		cfg.HeaderName = DefaultHeaderName
	}

	if cfg.IdentityKey == "" {
		cfg.IdentityKey = DefaultIdentityKey
	}

	if cfg.SafeMethods == nil {
		cfg.SafeMethods = []string{"GET", "HEAD", "OPTIONS", "TRACE"}
	}

	if cfg.Expiration == 0 {
		cfg.Expiration = 24 * time.Hour
	}

	if cfg.ErrorHandler == nil {
		cfg.ErrorHandler = defaultErrorHandler
	}

	if cfg.SuccessHandler == nil {
		cfg.SuccessHandler = func(ctx router.Context) error {
			return ctx.Next()
		}
	}

	cfg.SecureKey = initializeSecureKey(cfg.SecureKey)

	return cfg
}

func defaultErrorHandler(ctx router.Context, err error) error {
	switch err {
	case ErrTokenMissing:
		return ctx.Status(router.StatusBadRequest).SendString("CSRF token missing")
	case ErrTokenMismatch:
		return ctx.Status(router.StatusForbidden).SendString("CSRF token mismatch")
	case ErrTokenExpired:
		return ctx.Status(router.StatusForbidden).SendString("CSRF token expired")
	default:
		return ctx.Status(router.StatusInternalServerError).SendString("CSRF validation error")
	}
}

func initializeSecureKey(current []byte) []byte {
	if len(current) > 0 {
		if len(current) < 32 {
			panic(fmt.Errorf("csrf: secure key must be at least 32 bytes, got %d", len(current)))
		}
		return current
	}
	key := make([]byte, 32)
	if _, err := io.ReadFull(rand.Reader, key); err != nil {
		panic(fmt.Errorf("csrf: unable to initialize secure key: %w", err))
	}
	return key
}

// TemplateHelpers returns the per-request CSRF helpers for view rendering:
// the raw token, a ready-made hidden input, a meta tag, and the header name
// for fetch-style callers.
func TemplateHelpers(ctx router.Context, tokenKey string) map[string]any {
	if tokenKey == "" {
		tokenKey = DefaultContextKey
	}

	token := localString(ctx, tokenKey, "")
	fieldName := localString(ctx, tokenKey+"_field", DefaultFormFieldName)
	headerName := localString(ctx, tokenKey+"_header", DefaultHeaderName)

	return map[string]any{
		"csrf_token":       token,
		"csrf_field":       `<input type="hidden" name="` + fieldName + `" value="` + token + `">`,
		"csrf_meta":        `<meta name="csrf-token" content="` + token + `">`,
		"csrf_header_name": headerName,
	}
}

func localString(ctx router.Context, key, def string) string {
	if raw := ctx.Locals(key); raw != nil {
		if val, ok := raw.(string); ok && val != "" {
			return val
		}
	}
	return def
}
