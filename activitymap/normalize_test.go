package activitymap_test

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"

	authsphere "github.com/authsphere/go-authsphere"
	"github.com/authsphere/go-authsphere/activitymap"
)

func TestNormalizeDefaults(t *testing.T) {
	at := time.Date(2026, 8, 1, 12, 0, 0, 0, time.UTC)
	got := activitymap.Normalize(authsphere.ActivityEvent{
		EventType:  authsphere.ActivityEventLoginSuccess,
		ActorID:    "u-1",
		OccurredAt: at,
	})

	assert.Equal(t, "u-1", got.ActorID)
	assert.Equal(t, "session.login.success", got.Verb)
	assert.Equal(t, "user", got.ObjectType)
	assert.Equal(t, "u-1", got.ObjectID, "session events target the actor itself")
	assert.Equal(t, "authsphere", got.Channel)
	assert.Equal(t, at, got.OccurredAt)
}

func TestNormalizeDirectoryEventTargetsSubject(t *testing.T) {
	got := activitymap.Normalize(authsphere.ActivityEvent{
		EventType: authsphere.ActivityEventUserDeleted,
		ActorID:   "admin-1",
		SubjectID: "u-2",
		Metadata:  map[string]any{"reason": "gdpr"},
	})

	assert.Equal(t, "admin-1", got.ActorID)
	assert.Equal(t, "u-2", got.ObjectID)
	assert.Equal(t, map[string]any{"reason": "gdpr"}, got.Metadata)
	assert.False(t, got.OccurredAt.IsZero())
}

func TestNormalizeAnonymousActorFallback(t *testing.T) {
	got := activitymap.Normalize(authsphere.ActivityEvent{
		EventType: authsphere.ActivityEventLoginFailure,
	})
	assert.Equal(t, "anonymous", got.ActorID)

	got = activitymap.Normalize(authsphere.ActivityEvent{
		EventType: authsphere.ActivityEventLoginFailure,
	}, activitymap.WithActorFallback("unknown-client"))
	assert.Equal(t, "unknown-client", got.ActorID)
}

func TestNormalizeOptions(t *testing.T) {
	got := activitymap.Normalize(authsphere.ActivityEvent{
		EventType: authsphere.ActivityEventRolesUpdated,
		ActorID:   "admin-1",
		SubjectID: "u-2",
	},
		activitymap.WithDefaultChannel("audit-bus"),
		activitymap.WithDefaultObjectType("account"),
		activitymap.WithObjectIDResolver(func(event authsphere.ActivityEvent) string {
			return "account:" + event.SubjectID
		}),
	)

	assert.Equal(t, "audit-bus", got.Channel)
	assert.Equal(t, "account", got.ObjectType)
	assert.Equal(t, "account:u-2", got.ObjectID)
}

func TestNormalizeCopiesMetadata(t *testing.T) {
	meta := map[string]any{"roles": []string{"admin"}}
	got := activitymap.Normalize(authsphere.ActivityEvent{
		EventType: authsphere.ActivityEventRolesUpdated,
		ActorID:   "admin-1",
		Metadata:  meta,
	})

	meta["roles"] = []string{"user"}
	assert.Equal(t, []string{"admin"}, got.Metadata["roles"])
}

func TestSinkRecordsNormalizedEvents(t *testing.T) {
	var records []activitymap.Normalized
	sink := activitymap.Sink(func(n activitymap.Normalized) error {
		records = append(records, n)
		return nil
	}, activitymap.WithDefaultChannel("audit-bus"))

	err := sink.Record(context.Background(), authsphere.ActivityEvent{
		EventType: authsphere.ActivityEventLogout,
		ActorID:   "u-1",
	})

	assert.NoError(t, err)
	assert.Len(t, records, 1)
	assert.Equal(t, "session.logout", records[0].Verb)
	assert.Equal(t, "audit-bus", records[0].Channel)
}
