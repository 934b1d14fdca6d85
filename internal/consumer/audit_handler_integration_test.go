//go:build integration

package consumer

import (
	"context"
	"encoding/json"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"github.com/chwnex/project-exercisetracker/internal/testsupport/pgtest"
)

func TestAuditHandlerStoresEventsOnce(t *testing.T) {
	ctx := context.Background()
	pool := pgtest.Start(t, ctx)

	handler := NewAuditHandler(pool)
	msg := Message{
		Topic:         "exercise_events",
		Partition:     0,
		Offset:        5,
		Timestamp:     time.Now().UTC(),
		EventType:     "exercise.logged",
		SchemaSubject: "exercise_events-value",
		SchemaID:      3,
		Payload:       json.RawMessage(`{"entry_id":"e1","duration_min":45}`),
	}

	require.NoError(t, handler.Handle(ctx, msg))
	require.NoError(t, handler.Handle(ctx, msg))

	var count int
	var payload []byte
	require.NoError(t, pool.QueryRow(ctx,
		`SELECT COUNT(*), MAX(payload::text) FROM exercise_event_log WHERE topic = $1`, msg.Topic,
	).Scan(&count, &payload))
	require.Equal(t, 1, count)
	require.JSONEq(t, string(msg.Payload), string(payload))
}
