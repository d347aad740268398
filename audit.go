package authsphere

import "time"

// DeletedActorLabel is rendered in place of a user reference that no longer
// resolves (the user was deleted or anonymized).
const DeletedActorLabel = "deleted or anonymized user"

// AuditLogEntry is one backend-owned audit record. UserID is nil when the
// referenced user no longer exists; entries are never rewritten to hide that.
type AuditLogEntry struct {
	ID        string    `json:"id"`
	Action    string    `json:"action"`
	UserID    *string   `json:"user_id"`
	Timestamp time.Time `json:"timestamp"`
	IPAddress *string   `json:"ip_address,omitempty"`
	Details   *string   `json:"details"`
}

// ActorLabel returns the display label for the entry's actor, falling back to
// the deleted-user placeholder when the reference is gone.
func (e AuditLogEntry) ActorLabel() string {
	if e.UserID == nil || *e.UserID == "" {
		return DeletedActorLabel
	}
	return *e.UserID
}

// DetailsOrEmpty returns the optional details string for rendering.
func (e AuditLogEntry) DetailsOrEmpty() string {
	if e.Details == nil {
		return ""
	}
	return *e.Details
}

// FormFieldDescriptor describes one dynamic registration form field. The
// schema is owned by the backend; the client only renders it.
type FormFieldDescriptor struct {
	Name       string `json:"name"`
	Label      string `json:"label"`
	FieldType  string `json:"field_type"`
	IsRequired bool   `json:"is_required"`
}
