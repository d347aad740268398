package authsphere

import (
	"maps"

	"github.com/gofiber/template/django/v3"
	"github.com/goliatone/go-router"

	"github.com/authsphere/go-authsphere/middleware/csrf"
)

var TemplateIdentityKey = "current_identity"

// NewViewEngine builds the django view engine with the authentication
// helpers preloaded as globals.
//
// Usage:
//
//	engine := authsphere.NewViewEngine("./views")
//	app := fiber.New(fiber.Config{Views: engine})
func NewViewEngine(dir string) *django.Engine {
	engine := django.New(dir, ".html")
	engine.AddFuncMap(TemplateHelpers())
	return engine
}

// TemplateHelpers returns a map of helper functions and data for
// authentication-aware template rendering.
//
// In templates:
//
//	{% if current_identity %}
//	{% if current_identity|has_permission:"admin:access" %}
//	{% if current_identity|is_admin %}
//	{{ csrf_field }}
func TemplateHelpers() map[string]any {
	helpers := map[string]any{
		"is_authenticated": isAuthenticated,
		"has_permission":   hasPermission,
		"has_role":         hasRole,
		"is_admin":         isAdmin,
		"can_view_logs":    canViewLogs,
		"actor_label":      actorLabel,

		// Permission constants for easy template access
		"permissions": map[string]string{
			"admin_access": string(PermissionAdminAccess),
			"logs_view":    string(PermissionLogsView),
		},
	}

	return helpers
}

// TemplateHelpersWithIdentity returns template helpers with a specific
// identity set as current_identity, for apps that build the renderer after
// login.
func TemplateHelpersWithIdentity(identity *Identity) map[string]any {
	helpers := TemplateHelpers()
	helpers[TemplateIdentityKey] = identity
	return helpers
}

// TemplateHelpersWithRouter returns template helpers with the identity
// pulled from router locals, where the guard middleware stores it, plus the
// per-request CSRF helpers.
func TemplateHelpersWithRouter(ctx router.Context, identityKey string) map[string]any {
	if identityKey == "" {
		identityKey = TemplateIdentityKey
	}

	helpers := TemplateHelpers()

	if identity := ctx.Locals(identityKey); identity != nil {
		helpers[TemplateIdentityKey] = identity
	}

	maps.Copy(helpers, csrf.TemplateHelpers(ctx, csrf.DefaultContextKey))

	return helpers
}

// isAuthenticated checks if the provided identity object is a live identity
func isAuthenticated(identity any) bool {
	switch v := identity.(type) {
	case *Identity:
		return v != nil
	case Identity:
		return true
	case map[string]any:
		// Handle JSON-converted identity objects
		return len(v) > 0
	default:
		return false
	}
}

// hasPermission checks if the identity holds the named permission
func hasPermission(identity any, permission string) bool {
	return identitySatisfies(identity, RequireAll(Permission(permission)))
}

// hasRole checks if the identity carries the named role
func hasRole(identity any, role string) bool {
	target := Role(role)

	switch v := identity.(type) {
	case *Identity:
		if v == nil {
			return false
		}
		return v.Roles.Has(target)
	case Identity:
		return v.Roles.Has(target)
	case map[string]any:
		if raw, exists := v["roles"]; exists {
			if roles, ok := raw.([]any); ok {
				for _, r := range roles {
					if s, ok := r.(string); ok && Role(s) == target {
						return true
					}
				}
			}
		}
		return false
	default:
		return false
	}
}

// isAdmin checks for the administrative capability, not the role label
func isAdmin(identity any) bool {
	return identitySatisfies(identity, AdminRequirement)
}

// canViewLogs checks for the audit trail capability
func canViewLogs(identity any) bool {
	return identitySatisfies(identity, RequireAll(PermissionLogsView))
}

func identitySatisfies(identity any, req Requirement) bool {
	switch v := identity.(type) {
	case *Identity:
		return Satisfies(v, req)
	case Identity:
		return Satisfies(&v, req)
	case map[string]any:
		return Satisfies(identityFromMap(v), req)
	default:
		return false
	}
}

// identityFromMap rebuilds enough of an identity from a JSON-converted map
// for permission checks in templates.
func identityFromMap(m map[string]any) *Identity {
	identity := &Identity{
		Permissions: PermissionSet{},
		IsActive:    true,
	}

	if id, ok := m["id"].(string); ok {
		identity.ID = id
	}
	if active, ok := m["is_active"].(bool); ok {
		identity.IsActive = active
	}
	if raw, ok := m["permissions"].([]any); ok {
		for _, p := range raw {
			if s, ok := p.(string); ok {
				identity.Permissions[Permission(s)] = struct{}{}
			}
		}
	}

	return identity
}

// actorLabel renders the audit actor column, using the placeholder for
// records whose account no longer exists.
func actorLabel(entry any) string {
	switch v := entry.(type) {
	case *AuditLogEntry:
		if v == nil {
			return DeletedActorLabel
		}
		return v.ActorLabel()
	case AuditLogEntry:
		return v.ActorLabel()
	case *string:
		if v == nil || *v == "" {
			return DeletedActorLabel
		}
		return *v
	case string:
		if v == "" {
			return DeletedActorLabel
		}
		return v
	default:
		return DeletedActorLabel
	}
}
