package domain

import (
	"context"
	"errors"
	"strconv"
	"strings"
	"time"

	"github.com/chwnex/project-exercisetracker/internal/observability"
)

// Entry is one immutable exercise record owned by a single user.
type Entry struct {
	ID          string
	UserID      string
	Description string
	DurationMin int
	Date        time.Time
	CreatedAt   time.Time
}

// EntryFilter selects a user's entries. Nil bounds are open; both bounds are inclusive.
// Limit <= 0 means no cap.
type EntryFilter struct {
	UserID string
	From   *time.Time
	To     *time.Time
	Limit  int
}

// Matches reports whether the entry satisfies ownership and date bounds. Limit is not considered.
func (f EntryFilter) Matches(e Entry) bool {
	if e.UserID != f.UserID {
		return false
	}
	if f.From != nil && e.Date.Before(*f.From) {
		return false
	}
	if f.To != nil && e.Date.After(*f.To) {
		return false
	}
	return true
}

// EntryRepository captures entry persistence. ListEntries returns matches in insertion order.
type EntryRepository interface {
	CreateEntry(ctx context.Context, entry Entry) (Entry, error)
	ListEntries(ctx context.Context, filter EntryFilter) ([]Entry, error)
}

// ExerciseLog records entries and answers log queries.
type ExerciseLog struct {
	users   UserRepository
	entries EntryRepository
	now     func() time.Time
}

// Option configures optional behaviour for the ExerciseLog.
type Option func(*ExerciseLog)

// WithClock overrides the clock used to default missing dates.
func WithClock(now func() time.Time) Option {
	return func(l *ExerciseLog) {
		l.now = now
	}
}

// NewExerciseLog constructs an ExerciseLog.
func NewExerciseLog(users UserRepository, entries EntryRepository, opts ...Option) *ExerciseLog {
	l := &ExerciseLog{users: users, entries: entries, now: time.Now}
	for _, opt := range opts {
		opt(l)
	}
	return l
}

// AddEntryInput carries raw client text for a new entry.
type AddEntryInput struct {
	UserID      string
	Description string
	Duration    string
	Date        string
}

// LoggedEntry is the result of AddEntry. UserID is the owner's id, not the entry's.
type LoggedEntry struct {
	UserID      string
	Username    string
	Description string
	Duration    int
	Date        string
}

// AddEntry validates the input and persists an entry for an existing user.
func (l *ExerciseLog) AddEntry(ctx context.Context, input AddEntryInput) (LoggedEntry, error) {
	user, err := lookupUser(ctx, l.users, input.UserID)
	if err != nil {
		return LoggedEntry{}, err
	}

	if strings.TrimSpace(input.Description) == "" {
		return LoggedEntry{}, invalid("description", "is required")
	}
	duration, err := parseDuration(input.Duration)
	if err != nil {
		return LoggedEntry{}, err
	}

	date, ok := ParseDate(input.Date)
	if !ok {
		date = Day(l.now())
	}

	entry, err := l.entries.CreateEntry(ctx, Entry{
		UserID:      user.ID,
		Description: input.Description,
		DurationMin: duration,
		Date:        date,
		CreatedAt:   l.now().UTC(),
	})
	if err != nil {
		return LoggedEntry{}, storageError("add entry", err)
	}
	observability.RecordEntryLogged(entry.CreatedAt)

	return LoggedEntry{
		UserID:      user.ID,
		Username:    user.Username,
		Description: entry.Description,
		Duration:    entry.DurationMin,
		Date:        FormatDate(entry.Date),
	}, nil
}

func parseDuration(raw string) (int, error) {
	raw = strings.TrimSpace(raw)
	if raw == "" {
		return 0, invalid("duration", "is required")
	}
	// stored as a 32-bit integer
	value, err := strconv.ParseInt(raw, 10, 32)
	if errors.Is(err, strconv.ErrRange) {
		return 0, invalid("duration", "must be a positive integer")
	}
	if err != nil {
		return 0, invalid("duration", "must be a number")
	}
	if value <= 0 {
		return 0, invalid("duration", "must be a positive integer")
	}
	return int(value), nil
}

// LogQuery carries raw client text for a log lookup. Empty fields are not applied.
type LogQuery struct {
	UserID string
	From   string
	To     string
	Limit  string
}

// LogItem is a single entry in a log response.
type LogItem struct {
	Description string
	Duration    int
	Date        string
}

// Log is the result of GetLog. Count is the number of returned items.
type Log struct {
	UserID   string
	Username string
	Count    int
	Items    []LogItem
}

// GetLog returns a user's entries filtered by inclusive date bounds and capped by limit.
func (l *ExerciseLog) GetLog(ctx context.Context, query LogQuery) (Log, error) {
	user, err := lookupUser(ctx, l.users, query.UserID)
	if err != nil {
		return Log{}, err
	}

	filter, err := buildFilter(user.ID, query)
	if err != nil {
		return Log{}, err
	}

	entries, err := l.entries.ListEntries(ctx, filter)
	if err != nil {
		return Log{}, storageError("list entries", err)
	}
	if filter.Limit > 0 && len(entries) > filter.Limit {
		entries = entries[:filter.Limit]
	}
	observability.RecordLogQuery()

	items := make([]LogItem, 0, len(entries))
	for _, e := range entries {
		items = append(items, LogItem{
			Description: e.Description,
			Duration:    e.DurationMin,
			Date:        FormatDate(e.Date),
		})
	}

	return Log{
		UserID:   user.ID,
		Username: user.Username,
		Count:    len(items),
		Items:    items,
	}, nil
}

func buildFilter(userID string, query LogQuery) (EntryFilter, error) {
	filter := EntryFilter{UserID: userID}

	if raw := strings.TrimSpace(query.From); raw != "" {
		from, ok := ParseDate(raw)
		if !ok {
			return EntryFilter{}, invalid("from", "must be a date")
		}
		filter.From = &from
	}
	if raw := strings.TrimSpace(query.To); raw != "" {
		to, ok := ParseDate(raw)
		if !ok {
			return EntryFilter{}, invalid("to", "must be a date")
		}
		filter.To = &to
	}
	if raw := strings.TrimSpace(query.Limit); raw != "" {
		limit, err := strconv.Atoi(raw)
		if err != nil {
			return EntryFilter{}, invalid("limit", "must be a number")
		}
		filter.Limit = limit
	}
	return filter, nil
}
