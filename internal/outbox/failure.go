package outbox

import (
	"context"
	"time"

	"github.com/jackc/pgx/v5/pgxpool"
)

// DLQWriter persists events that could not be published.
type DLQWriter struct {
	pool      *pgxpool.Pool
	baseDelay time.Duration
}

// NewDLQWriter returns a writer backed by pool. baseDelay seeds the retry backoff; non-positive means one minute.
func NewDLQWriter(pool *pgxpool.Pool, baseDelay time.Duration) *DLQWriter {
	if baseDelay <= 0 {
		baseDelay = defaultBaseDelay
	}
	return &DLQWriter{pool: pool, baseDelay: baseDelay}
}

// Write stores msg in outbox_dlq with reason. The row keeps the event's retry count and becomes due
// after the backoff for its next attempt.
func (w *DLQWriter) Write(ctx context.Context, msg Message, reason string) error {
	_, err := w.pool.Exec(ctx,
		`INSERT INTO outbox_dlq (event_id, aggregate_type, aggregate_id, event_type, topic, schema_subject, partition_key, payload, reason, retry_count, next_retry_at)
         VALUES ($1,$2,$3,$4,$5,$6,$7,$8,$9,$10, NOW() + $11::interval)`,
		msg.EventID, msg.AggregateType, msg.AggregateID, msg.EventType, msg.Topic, msg.SchemaSubject, msg.PartitionKey, msg.Payload, reason,
		msg.RetryCount, backoffDelay(w.baseDelay, msg.RetryCount+1),
	)
	return err
}
