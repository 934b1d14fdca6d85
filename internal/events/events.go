// Package events defines the payloads published through the outbox.
package events

import "time"

// Event types recorded in the outbox.
const (
	TypeUserRegistered = "user.registered"
	TypeExerciseLogged = "exercise.logged"
)

// UserRegistered is emitted when a user is created.
type UserRegistered struct {
	UserID       string    `json:"user_id"`
	Username     string    `json:"username"`
	RegisteredAt time.Time `json:"registered_at"`
}

// ExerciseLogged is emitted when an entry is persisted. Date is the calendar day as YYYY-MM-DD.
type ExerciseLogged struct {
	EntryID     string    `json:"entry_id"`
	UserID      string    `json:"user_id"`
	Description string    `json:"description"`
	DurationMin int       `json:"duration_min"`
	Date        string    `json:"date"`
	LoggedAt    time.Time `json:"logged_at"`
}
