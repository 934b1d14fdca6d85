//go:build integration

package postgres

import (
	"context"
	"encoding/json"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"github.com/chwnex/project-exercisetracker/internal/domain"
	"github.com/chwnex/project-exercisetracker/internal/events"
	"github.com/chwnex/project-exercisetracker/internal/testsupport/pgtest"
)

func TestRepositoryUsersAndOutbox(t *testing.T) {
	ctx := context.Background()
	pool := pgtest.Start(t, ctx)
	repo := NewRepository(pool)

	now := time.Now().UTC().Truncate(time.Microsecond)
	first, err := repo.CreateUser(ctx, domain.User{Username: "fcc_test", CreatedAt: now})
	require.NoError(t, err)
	second, err := repo.CreateUser(ctx, domain.User{Username: "fcc_test", CreatedAt: now})
	require.NoError(t, err)
	require.NotEqual(t, first.ID, second.ID)

	got, err := repo.GetUser(ctx, first.ID)
	require.NoError(t, err)
	require.NotNil(t, got)
	require.Equal(t, "fcc_test", got.Username)

	missing, err := repo.GetUser(ctx, "not-a-uuid")
	require.NoError(t, err)
	require.Nil(t, missing)

	users, err := repo.ListUsers(ctx)
	require.NoError(t, err)
	require.Len(t, users, 2)
	require.Equal(t, first.ID, users[0].ID)

	var eventType, topic string
	var payload []byte
	require.NoError(t, pool.QueryRow(ctx,
		`SELECT event_type, topic, payload FROM outbox WHERE aggregate_id = $1`, first.ID,
	).Scan(&eventType, &topic, &payload))
	require.Equal(t, events.TypeUserRegistered, eventType)
	require.Equal(t, "user_events", topic)

	var registered events.UserRegistered
	require.NoError(t, json.Unmarshal(payload, &registered))
	require.Equal(t, first.ID, registered.UserID)
}

func TestRepositoryEntriesFilterAndOrder(t *testing.T) {
	ctx := context.Background()
	pool := pgtest.Start(t, ctx)
	repo := NewRepository(pool)

	user, err := repo.CreateUser(ctx, domain.User{Username: "runner", CreatedAt: time.Now().UTC()})
	require.NoError(t, err)

	for _, e := range []struct {
		desc string
		date time.Time
	}{
		{"b", time.Date(2024, 1, 5, 0, 0, 0, 0, time.UTC)},
		{"a", time.Date(2024, 1, 1, 0, 0, 0, 0, time.UTC)},
		{"c", time.Date(2024, 1, 9, 0, 0, 0, 0, time.UTC)},
	} {
		_, err := repo.CreateEntry(ctx, domain.Entry{UserID: user.ID, Description: e.desc, DurationMin: 20, Date: e.date, CreatedAt: time.Now().UTC()})
		require.NoError(t, err)
	}

	from := time.Date(2024, 1, 1, 0, 0, 0, 0, time.UTC)
	to := time.Date(2024, 1, 5, 0, 0, 0, 0, time.UTC)

	entries, err := repo.ListEntries(ctx, domain.EntryFilter{UserID: user.ID, From: &from, To: &to})
	require.NoError(t, err)
	require.Len(t, entries, 2)
	require.Equal(t, "b", entries[0].Description)
	require.Equal(t, "a", entries[1].Description)
	require.True(t, to.Equal(entries[0].Date))

	limited, err := repo.ListEntries(ctx, domain.EntryFilter{UserID: user.ID, Limit: 1})
	require.NoError(t, err)
	require.Len(t, limited, 1)
	require.Equal(t, "b", limited[0].Description)

	var outboxRows int
	require.NoError(t, pool.QueryRow(ctx, `SELECT COUNT(*) FROM outbox WHERE event_type = $1`, events.TypeExerciseLogged).Scan(&outboxRows))
	require.Equal(t, 3, outboxRows)
}

func TestRepositoryWithoutEventRecording(t *testing.T) {
	ctx := context.Background()
	pool := pgtest.Start(t, ctx)
	repo := NewRepository(pool, WithEventRecording(false))

	_, err := repo.CreateUser(ctx, domain.User{Username: "quiet", CreatedAt: time.Now().UTC()})
	require.NoError(t, err)

	var count int
	require.NoError(t, pool.QueryRow(ctx, `SELECT COUNT(*) FROM outbox`).Scan(&count))
	require.Zero(t, count)
}

func TestRepositoryThroughExerciseLog(t *testing.T) {
	ctx := context.Background()
	pool := pgtest.Start(t, ctx)
	repo := NewRepository(pool)

	registry := domain.NewUserRegistry(repo)
	log := domain.NewExerciseLog(repo, repo)

	user, err := registry.Register(ctx, "fcc_test")
	require.NoError(t, err)

	logged, err := log.AddEntry(ctx, domain.AddEntryInput{UserID: user.ID, Description: "test", Duration: "60", Date: "1990-01-01"})
	require.NoError(t, err)
	require.Equal(t, "Mon Jan 01 1990", logged.Date)
	require.Equal(t, user.ID, logged.UserID)

	result, err := log.GetLog(ctx, domain.LogQuery{UserID: user.ID, From: "1990-01-01", To: "1990-01-01"})
	require.NoError(t, err)
	require.Equal(t, 1, result.Count)
}
