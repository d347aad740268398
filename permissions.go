package authsphere

// Requirement is the set of permissions a guard or an administrative action
// demands. Order is irrelevant; an empty requirement only demands a present,
// active identity (the plain "must be logged in" case).
type Requirement []Permission

// RequireAll builds a Requirement from the given permissions.
func RequireAll(perms ...Permission) Requirement {
	return Requirement(perms)
}

// AdminRequirement gates the administrative directory.
var AdminRequirement = RequireAll(PermissionAdminAccess)

// Satisfies reports whether the identity meets the requirement: the identity
// must be present, active, and hold every permission in req. It is pure and
// never inspects anything beyond its arguments.
func Satisfies(identity *Identity, req Requirement) bool {
	if identity == nil || !identity.IsActive {
		return false
	}
	return identity.Permissions.ContainsAll(req)
}
