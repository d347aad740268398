package authsphere

import "strings"

// IsValid checks if the role is one of the predefined labels. Unknown labels
// are still legal on the wire (the backend owns the role vocabulary); this is
// a convenience for UIs that want to highlight the builtin ones.
func (r Role) IsValid() bool {
	switch r {
	case RoleUser, RoleAdmin:
		return true
	default:
		return false
	}
}

// SanitizeRoles normalizes user-entered role labels before they are sent to
// the backend: tokens are trimmed, deduplicated, and any token containing a
// colon is dropped. Roles are coarse labels only; a colon marks scoped
// permission syntax ("user:delete") which must never travel through the role
// field.
func SanitizeRoles(roles []Role) []Role {
	out := make([]Role, 0, len(roles))
	seen := make(map[Role]struct{}, len(roles))
	for _, role := range roles {
		r := Role(strings.TrimSpace(string(role)))
		if r == "" {
			continue
		}
		if strings.Contains(string(r), ":") {
			continue
		}
		if _, ok := seen[r]; ok {
			continue
		}
		seen[r] = struct{}{}
		out = append(out, r)
	}
	return out
}

// ParseRoleList splits a comma separated role string the way the admin form
// submits them and sanitizes the result.
func ParseRoleList(raw string) []Role {
	parts := strings.Split(raw, ",")
	roles := make([]Role, 0, len(parts))
	for _, p := range parts {
		roles = append(roles, Role(p))
	}
	return SanitizeRoles(roles)
}
