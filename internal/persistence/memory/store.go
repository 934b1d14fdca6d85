// Package memory provides an in-process store for tests and local development.
package memory

import (
	"context"
	"sync"

	"github.com/google/uuid"

	"github.com/chwnex/project-exercisetracker/internal/domain"
)

// Store keeps users and entries in insertion order behind a single lock.
type Store struct {
	mu      sync.RWMutex
	users   []domain.User
	byID    map[string]int
	entries []domain.Entry
}

// NewStore constructs an empty Store.
func NewStore() *Store {
	return &Store{byID: make(map[string]int)}
}

// CreateUser implements domain.UserRepository.
func (s *Store) CreateUser(ctx context.Context, user domain.User) (domain.User, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	user.ID = uuid.NewString()
	s.byID[user.ID] = len(s.users)
	s.users = append(s.users, user)
	return user, nil
}

// GetUser implements domain.UserRepository.
func (s *Store) GetUser(ctx context.Context, id string) (*domain.User, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	idx, ok := s.byID[id]
	if !ok {
		return nil, nil
	}
	user := s.users[idx]
	return &user, nil
}

// ListUsers implements domain.UserRepository.
func (s *Store) ListUsers(ctx context.Context) ([]domain.User, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	out := make([]domain.User, len(s.users))
	copy(out, s.users)
	return out, nil
}

// CreateEntry implements domain.EntryRepository.
func (s *Store) CreateEntry(ctx context.Context, entry domain.Entry) (domain.Entry, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	entry.ID = uuid.NewString()
	s.entries = append(s.entries, entry)
	return entry, nil
}

// ListEntries implements domain.EntryRepository.
func (s *Store) ListEntries(ctx context.Context, filter domain.EntryFilter) ([]domain.Entry, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	results := make([]domain.Entry, 0)
	for _, entry := range s.entries {
		if !filter.Matches(entry) {
			continue
		}
		results = append(results, entry)
		if filter.Limit > 0 && len(results) >= filter.Limit {
			break
		}
	}
	return results, nil
}
