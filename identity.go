package authsphere

import (
	"encoding/json"
	"sort"
)

// Permission is a fine-grained capability string checked by guards and
// administrative actions, e.g. "admin:access".
type Permission string

const (
	// PermissionAdminAccess gates the administrative directory.
	PermissionAdminAccess Permission = "admin:access"
	// PermissionLogsView gates the audit trail.
	PermissionLogsView Permission = "logs:view"
)

// Role is a coarse administrative label mapped server-side to permissions.
// Roles never carry scoped-permission syntax; see SanitizeRoles.
type Role string

const (
	RoleUser  Role = "user"
	RoleAdmin Role = "admin"
)

// PermissionSet is an unordered set of permissions. It marshals to and from
// the JSON string arrays the backend uses.
type PermissionSet map[Permission]struct{}

// NewPermissionSet builds a set from the given permissions.
func NewPermissionSet(perms ...Permission) PermissionSet {
	set := make(PermissionSet, len(perms))
	for _, p := range perms {
		set[p] = struct{}{}
	}
	return set
}

// Has reports whether p is in the set.
func (s PermissionSet) Has(p Permission) bool {
	_, ok := s[p]
	return ok
}

// ContainsAll reports whether every permission in req is in the set.
func (s PermissionSet) ContainsAll(req []Permission) bool {
	for _, p := range req {
		if !s.Has(p) {
			return false
		}
	}
	return true
}

// Values returns the permissions in lexical order.
func (s PermissionSet) Values() []Permission {
	out := make([]Permission, 0, len(s))
	for p := range s {
		out = append(out, p)
	}
	sort.Slice(out, func(i, j int) bool { return out[i] < out[j] })
	return out
}

func (s PermissionSet) clone() PermissionSet {
	if s == nil {
		return nil
	}
	out := make(PermissionSet, len(s))
	for p := range s {
		out[p] = struct{}{}
	}
	return out
}

func (s PermissionSet) MarshalJSON() ([]byte, error) {
	return json.Marshal(s.Values())
}

func (s *PermissionSet) UnmarshalJSON(data []byte) error {
	var perms []Permission
	if err := json.Unmarshal(data, &perms); err != nil {
		return err
	}
	*s = NewPermissionSet(perms...)
	return nil
}

// RoleSet is an unordered set of role labels with the same JSON shape as
// PermissionSet.
type RoleSet map[Role]struct{}

// NewRoleSet builds a set from the given roles.
func NewRoleSet(roles ...Role) RoleSet {
	set := make(RoleSet, len(roles))
	for _, r := range roles {
		set[r] = struct{}{}
	}
	return set
}

// Has reports whether r is in the set.
func (s RoleSet) Has(r Role) bool {
	_, ok := s[r]
	return ok
}

// Values returns the roles in lexical order.
func (s RoleSet) Values() []Role {
	out := make([]Role, 0, len(s))
	for r := range s {
		out = append(out, r)
	}
	sort.Slice(out, func(i, j int) bool { return out[i] < out[j] })
	return out
}

// Equal reports whether both sets hold exactly the same roles.
func (s RoleSet) Equal(other RoleSet) bool {
	if len(s) != len(other) {
		return false
	}
	for r := range s {
		if !other.Has(r) {
			return false
		}
	}
	return true
}

func (s RoleSet) clone() RoleSet {
	if s == nil {
		return nil
	}
	out := make(RoleSet, len(s))
	for r := range s {
		out[r] = struct{}{}
	}
	return out
}

func (s RoleSet) MarshalJSON() ([]byte, error) {
	return json.Marshal(s.Values())
}

func (s *RoleSet) UnmarshalJSON(data []byte) error {
	var roles []Role
	if err := json.Unmarshal(data, &roles); err != nil {
		return err
	}
	*s = NewRoleSet(roles...)
	return nil
}

// Identity is the resolved profile of an authenticated or directory-listed
// user. Identities are immutable snapshots: the session and the directory
// replace them wholesale on every refresh, never field by field.
type Identity struct {
	ID          string        `json:"id"`
	Username    string        `json:"username"`
	Email       string        `json:"email"`
	Roles       RoleSet       `json:"roles"`
	Permissions PermissionSet `json:"permissions"`
	IsActive    bool          `json:"is_active"`
}

// ActorID returns the stable identifier audit records and middleware bind to.
func (i *Identity) ActorID() string {
	if i == nil {
		return ""
	}
	return i.ID
}

// Clone returns an independent copy so callers can hold a snapshot without
// sharing set storage with the session.
func (i *Identity) Clone() *Identity {
	if i == nil {
		return nil
	}
	out := *i
	out.Roles = i.Roles.clone()
	out.Permissions = i.Permissions.clone()
	return &out
}

// Registration is the payload for the shared sign-up contract used by both
// self-service registration and the admin directory.
type Registration struct {
	Username    string `json:"username"`
	Email       string `json:"email"`
	Password    string `json:"password"`
	Phone       string `json:"phone,omitempty"`
	ConsentLGPD bool   `json:"consent_lgpd"`
}
