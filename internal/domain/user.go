// Package domain defines the business logic for the exercise tracker.
package domain

import (
	"context"
	"strings"
	"time"

	"github.com/chwnex/project-exercisetracker/internal/observability"
)

// User is a registered identity. Usernames are not unique.
type User struct {
	ID        string
	Username  string
	CreatedAt time.Time
}

// UserRepository captures user persistence. GetUser returns nil, nil when the user does not exist.
type UserRepository interface {
	CreateUser(ctx context.Context, user User) (User, error)
	GetUser(ctx context.Context, id string) (*User, error)
	ListUsers(ctx context.Context) ([]User, error)
}

// UserRegistry registers and lists users.
type UserRegistry struct {
	repo UserRepository
	now  func() time.Time
}

// NewUserRegistry constructs a UserRegistry.
func NewUserRegistry(repo UserRepository) *UserRegistry {
	return &UserRegistry{repo: repo, now: time.Now}
}

// Register persists a new user. The store assigns the identifier.
func (r *UserRegistry) Register(ctx context.Context, username string) (User, error) {
	if strings.TrimSpace(username) == "" {
		return User{}, invalid("username", "is required")
	}

	user, err := r.repo.CreateUser(ctx, User{Username: username, CreatedAt: r.now().UTC()})
	if err != nil {
		return User{}, storageError("register user", err)
	}
	observability.RecordUserRegistered()
	return user, nil
}

// ListUsers returns every user in registration order.
func (r *UserRegistry) ListUsers(ctx context.Context) ([]User, error) {
	users, err := r.repo.ListUsers(ctx)
	if err != nil {
		return nil, storageError("list users", err)
	}
	if users == nil {
		users = []User{}
	}
	return users, nil
}

// lookupUser resolves a user id, mapping absence to ErrUserNotFound.
func lookupUser(ctx context.Context, repo UserRepository, id string) (*User, error) {
	if strings.TrimSpace(id) == "" {
		return nil, ErrUserNotFound
	}
	user, err := repo.GetUser(ctx, id)
	if err != nil {
		return nil, storageError("get user", err)
	}
	if user == nil {
		return nil, ErrUserNotFound
	}
	return user, nil
}
