package outbox

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/sirupsen/logrus"
)

const (
	defaultMaxRetries = 5
	defaultBaseDelay  = time.Minute
	maxBackoff        = time.Hour
)

// DLQManager replays dead-lettered events into the outbox and quarantines entries that keep failing.
type DLQManager struct {
	pool       *pgxpool.Pool
	logger     logrus.FieldLogger
	maxRetries int
	baseDelay  time.Duration
}

// NewDLQManager constructs a DLQManager. Non-positive settings fall back to 5 retries and a one minute base delay.
func NewDLQManager(pool *pgxpool.Pool, logger logrus.FieldLogger, maxRetries int, baseDelay time.Duration) *DLQManager {
	if maxRetries <= 0 {
		maxRetries = defaultMaxRetries
	}
	if baseDelay <= 0 {
		baseDelay = defaultBaseDelay
	}
	return &DLQManager{
		pool:       pool,
		logger:     logger.WithField("component", "dlq_manager"),
		maxRetries: maxRetries,
		baseDelay:  baseDelay,
	}
}

// Run calls RunOnce every interval until ctx is cancelled.
func (m *DLQManager) Run(ctx context.Context, interval time.Duration, batchSize int) {
	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	m.logger.WithFields(logrus.Fields{
		"interval":    interval,
		"max_retries": m.maxRetries,
	}).Info("dlq manager started")

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			processed, err := m.RunOnce(ctx, batchSize)
			if err != nil && !errors.Is(err, context.Canceled) {
				m.logger.WithError(err).Error("dlq pass failed")
			} else if processed > 0 {
				m.logger.WithField("processed", processed).Info("dlq pass complete")
			}
		}
	}
}

// RunOnce handles up to batchSize due entries and returns how many were handled without error.
func (m *DLQManager) RunOnce(ctx context.Context, batchSize int) (int, error) {
	const query = `SELECT dlq_id, event_id, aggregate_type, aggregate_id, event_type, topic, schema_subject, partition_key, payload, reason, retry_count
        FROM outbox_dlq
        WHERE quarantined_at IS NULL AND (next_retry_at IS NULL OR next_retry_at <= NOW())
        ORDER BY created_at
        LIMIT $1`

	rows, err := m.pool.Query(ctx, query, batchSize)
	if err != nil {
		return 0, err
	}
	entries, err := pgx.CollectRows(rows, scanDLQEntry)
	if err != nil {
		return 0, err
	}

	var errs error
	processed := 0
	for _, entry := range entries {
		if err := m.handleEntry(ctx, entry); err != nil {
			errs = errors.Join(errs, fmt.Errorf("dlq entry %d: %w", entry.ID, err))
			continue
		}
		processed++
		dlqProcessedCounter.WithLabelValues(entry.Topic, entry.EventType).Inc()
	}

	m.updateBacklog(ctx)
	return processed, errs
}

func (m *DLQManager) handleEntry(ctx context.Context, entry dlqEntry) error {
	return pgx.BeginFunc(ctx, m.pool, func(tx pgx.Tx) error {
		if entry.RetryCount >= m.maxRetries {
			if _, err := tx.Exec(ctx,
				`UPDATE outbox_dlq SET quarantined_at = NOW(), quarantine_reason = $1 WHERE dlq_id = $2`,
				"retry limit reached", entry.ID,
			); err != nil {
				return err
			}
			dlqQuarantinedCounter.WithLabelValues(entry.Topic, entry.EventType).Inc()
			m.logger.WithFields(logrus.Fields{"dlq_id": entry.ID, "event_type": entry.EventType}).Warn("dlq entry quarantined")
			return nil
		}

		// the savepoint keeps tx usable when the insert fails
		if err := pgx.BeginFunc(ctx, tx, func(sp pgx.Tx) error { return requeue(ctx, sp, entry) }); err != nil {
			delay := m.backoffDelay(entry.RetryCount + 1)
			if _, execErr := tx.Exec(ctx,
				`UPDATE outbox_dlq
                    SET retry_count = retry_count + 1,
                        last_attempt_at = NOW(),
                        next_retry_at = NOW() + $1::interval,
                        reason = $2
                  WHERE dlq_id = $3`,
				delay, err.Error(), entry.ID,
			); execErr != nil {
				return execErr
			}
			dlqRetryCounter.WithLabelValues(entry.Topic, entry.EventType).Inc()
			return nil
		}

		if _, err := tx.Exec(ctx, `DELETE FROM outbox_dlq WHERE dlq_id = $1`, entry.ID); err != nil {
			return err
		}
		dlqRequeuedCounter.WithLabelValues(entry.Topic, entry.EventType).Inc()
		return nil
	})
}

func (m *DLQManager) backoffDelay(attempt int) time.Duration {
	return backoffDelay(m.baseDelay, attempt)
}

// backoffDelay doubles base per attempt, capped at one hour.
func backoffDelay(base time.Duration, attempt int) time.Duration {
	if attempt < 1 {
		attempt = 1
	}
	if attempt > 30 {
		return maxBackoff
	}
	delay := base << uint(attempt-1)
	if delay <= 0 || delay > maxBackoff {
		return maxBackoff
	}
	return delay
}

func (m *DLQManager) updateBacklog(ctx context.Context) {
	var count int
	if err := m.pool.QueryRow(ctx, `SELECT COUNT(*) FROM outbox_dlq WHERE quarantined_at IS NULL`).Scan(&count); err != nil {
		return
	}
	dlqBacklogGauge.Set(float64(count))
}

// requeue reinserts the event into the outbox with its retry count advanced. The dedupe key is left NULL
// so replays never collide with the original row.
func requeue(ctx context.Context, tx pgx.Tx, entry dlqEntry) error {
	if entry.SchemaSubject == "" {
		return fmt.Errorf("missing schema_subject for dlq entry %d", entry.ID)
	}
	_, err := tx.Exec(ctx,
		`INSERT INTO outbox (aggregate_type, aggregate_id, event_type, topic, schema_subject, partition_key, payload, retry_count)
         VALUES ($1,$2,$3,$4,$5,$6,$7,$8)`,
		entry.AggregateType, entry.AggregateID, entry.EventType, entry.Topic, entry.SchemaSubject, entry.PartitionKey, entry.Payload,
		entry.RetryCount+1,
	)
	return err
}

type dlqEntry struct {
	ID            int64
	EventID       int64
	AggregateType string
	AggregateID   string
	EventType     string
	Topic         string
	SchemaSubject string
	PartitionKey  string
	Payload       []byte
	Reason        string
	RetryCount    int
}

func scanDLQEntry(row pgx.CollectableRow) (dlqEntry, error) {
	var e dlqEntry
	err := row.Scan(&e.ID, &e.EventID, &e.AggregateType, &e.AggregateID, &e.EventType, &e.Topic, &e.SchemaSubject, &e.PartitionKey, &e.Payload, &e.Reason, &e.RetryCount)
	return e, err
}
