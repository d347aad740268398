// Package authsphere is the client-side session and access-control layer for
// an AuthSphere user-management backend.
//
// Session lifecycle:
//   - SessionManager owns the authenticated identity and the persisted access
//     token. It moves between Anonymous, Authenticating, and Authenticated and
//     is the only component allowed to mutate the session. Logins are
//     single-flight; a logout racing an in-flight profile refresh always wins.
//   - TokenStore abstracts the persisted token slot so tests and embedders can
//     swap the storage (memory, encrypted file, sqlite).
//
// Authorization:
//   - Identities carry a permission set resolved by the backend. Satisfies is
//     the single pure predicate guards and admin actions share: an identity
//     satisfies a Requirement iff it is present, active, and the requirement
//     is a subset of its permissions.
//
// Administration:
//   - Directory manages the backend user collection (list, register, delete,
//     anonymize, role edits) and the read-only audit trail. Destructive
//     operations demand an explicit confirmation and the directory never
//     updates optimistically; it re-fetches authoritative state after every
//     successful mutation.
//
// Activity sinks:
//   - ActivitySink is a light-weight event emitter used by SessionManager and
//     Directory to describe login, logout, refresh, and directory mutations.
//     Sinks run best-effort (errors are logged) so you can forward to a
//     database or queue without blocking the session.
package authsphere
