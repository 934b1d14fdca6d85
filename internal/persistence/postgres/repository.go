// Package postgres implements the user and entry repositories on PostgreSQL.
package postgres

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/chwnex/project-exercisetracker/internal/domain"
	"github.com/chwnex/project-exercisetracker/internal/events"
)

// Repository provides Postgres-backed persistence for users, entries and their outbox events.
type Repository struct {
	pool         *pgxpool.Pool
	recordEvents bool
}

// Option configures the Repository.
type Option func(*Repository)

// WithEventRecording toggles writing outbox rows alongside records. Enabled by default.
func WithEventRecording(enabled bool) Option {
	return func(r *Repository) {
		r.recordEvents = enabled
	}
}

// NewRepository constructs a Repository.
func NewRepository(pool *pgxpool.Pool, opts ...Option) *Repository {
	r := &Repository{pool: pool, recordEvents: true}
	for _, opt := range opts {
		opt(r)
	}
	return r
}

// CreateUser inserts the user and its registration event in one transaction.
func (r *Repository) CreateUser(ctx context.Context, user domain.User) (domain.User, error) {
	user.ID = uuid.NewString()

	err := pgx.BeginFunc(ctx, r.pool, func(tx pgx.Tx) error {
		if _, err := tx.Exec(ctx,
			`INSERT INTO users (user_id, username, created_at) VALUES ($1, $2, $3)`,
			user.ID, user.Username, user.CreatedAt,
		); err != nil {
			return err
		}
		return r.insertOutbox(ctx, tx, events.TypeUserRegistered, user.ID, events.UserRegistered{
			UserID:       user.ID,
			Username:     user.Username,
			RegisteredAt: user.CreatedAt,
		})
	})
	if err != nil {
		return domain.User{}, err
	}
	return user, nil
}

// GetUser returns nil, nil when no user has the id. Ids that are not UUIDs cannot exist.
func (r *Repository) GetUser(ctx context.Context, id string) (*domain.User, error) {
	if _, err := uuid.Parse(id); err != nil {
		return nil, nil
	}

	const query = `SELECT user_id::text, username, created_at FROM users WHERE user_id = $1`

	var user domain.User
	err := r.pool.QueryRow(ctx, query, id).Scan(&user.ID, &user.Username, &user.CreatedAt)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, nil
		}
		return nil, err
	}
	return &user, nil
}

// ListUsers returns users in insertion order.
func (r *Repository) ListUsers(ctx context.Context) ([]domain.User, error) {
	rows, err := r.pool.Query(ctx, `SELECT user_id::text, username, created_at FROM users ORDER BY seq`)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	users := make([]domain.User, 0)
	for rows.Next() {
		var user domain.User
		if err := rows.Scan(&user.ID, &user.Username, &user.CreatedAt); err != nil {
			return nil, err
		}
		users = append(users, user)
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}
	return users, nil
}

// CreateEntry inserts the entry and its logged event in one transaction.
func (r *Repository) CreateEntry(ctx context.Context, entry domain.Entry) (domain.Entry, error) {
	entry.ID = uuid.NewString()

	err := pgx.BeginFunc(ctx, r.pool, func(tx pgx.Tx) error {
		if _, err := tx.Exec(ctx,
			`INSERT INTO exercises (entry_id, user_id, description, duration_min, entry_date, created_at)
             VALUES ($1, $2, $3, $4, $5, $6)`,
			entry.ID, entry.UserID, entry.Description, entry.DurationMin, entry.Date, entry.CreatedAt,
		); err != nil {
			return err
		}
		return r.insertOutbox(ctx, tx, events.TypeExerciseLogged, entry.UserID, events.ExerciseLogged{
			EntryID:     entry.ID,
			UserID:      entry.UserID,
			Description: entry.Description,
			DurationMin: entry.DurationMin,
			Date:        entry.Date.Format("2006-01-02"),
			LoggedAt:    entry.CreatedAt,
		})
	})
	if err != nil {
		return domain.Entry{}, err
	}
	return entry, nil
}

// ListEntries returns a user's entries in insertion order, applying inclusive date bounds and limit.
func (r *Repository) ListEntries(ctx context.Context, filter domain.EntryFilter) ([]domain.Entry, error) {
	args := []any{filter.UserID}
	query := `SELECT entry_id::text, user_id::text, description, duration_min, entry_date, created_at
        FROM exercises WHERE user_id = $1`

	if filter.From != nil {
		args = append(args, *filter.From)
		query += fmt.Sprintf(` AND entry_date >= $%d`, len(args))
	}
	if filter.To != nil {
		args = append(args, *filter.To)
		query += fmt.Sprintf(` AND entry_date <= $%d`, len(args))
	}
	query += ` ORDER BY seq`
	if filter.Limit > 0 {
		args = append(args, filter.Limit)
		query += fmt.Sprintf(` LIMIT $%d`, len(args))
	}

	rows, err := r.pool.Query(ctx, query, args...)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	entries := make([]domain.Entry, 0)
	for rows.Next() {
		var e domain.Entry
		if err := rows.Scan(&e.ID, &e.UserID, &e.Description, &e.DurationMin, &e.Date, &e.CreatedAt); err != nil {
			return nil, err
		}
		entries = append(entries, e)
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}
	return entries, nil
}

func (r *Repository) insertOutbox(ctx context.Context, tx pgx.Tx, eventType, aggregateID string, payload any) error {
	if !r.recordEvents {
		return nil
	}

	meta, ok := eventCatalog[eventType]
	if !ok {
		return fmt.Errorf("unknown event type: %s", eventType)
	}

	body, err := json.Marshal(payload)
	if err != nil {
		return err
	}

	const stmt = `INSERT INTO outbox (aggregate_type, aggregate_id, event_type, topic, schema_subject, partition_key, payload, dedupe_key)
        VALUES ($1,$2,$3,$4,$5,$6,$7,$8)`

	_, err = tx.Exec(ctx, stmt,
		meta.AggregateType,
		aggregateID,
		eventType,
		meta.Topic,
		meta.Topic+"-value",
		aggregateID,
		body,
		dedupeKey(eventType, payload),
	)
	return err
}

func dedupeKey(eventType string, payload any) string {
	switch p := payload.(type) {
	case events.ExerciseLogged:
		return fmt.Sprintf("%s:%s", p.EntryID, eventType)
	case events.UserRegistered:
		return fmt.Sprintf("%s:%s", p.UserID, eventType)
	default:
		return ""
	}
}

// EventMetadata describes how to route an outbox event.
type EventMetadata struct {
	AggregateType string
	Topic         string
}

var eventCatalog = map[string]EventMetadata{
	events.TypeUserRegistered: {AggregateType: "user", Topic: "user_events"},
	events.TypeExerciseLogged: {AggregateType: "exercise", Topic: "exercise_events"},
}
