package auth

import (
	"context"
	"errors"
	"strings"
	"sync"
)

// Store abstracts the user catalogue used by the authentication service.
// Implementations must be safe for concurrent use.
type Store interface {
	FindUserByUsername(ctx context.Context, username string) (*User, error)
	LoadSubject(ctx context.Context, userID string) (*Subject, error)
}

// MemoryStore provides an in-memory implementation of the Store interface,
// intended for development and single-node deployments.
type MemoryStore struct {
	mu    sync.RWMutex
	users map[string]*User
	byID  map[string]*Subject
}

// NewMemoryStore initialises the store with the provided seed users.
func NewMemoryStore(seeds []Seed) (*MemoryStore, error) {
	store := &MemoryStore{
		users: make(map[string]*User),
		byID:  make(map[string]*Subject),
	}
	for _, seed := range seeds {
		if err := store.ApplySeed(context.Background(), seed); err != nil {
			return nil, err
		}
	}
	return store, nil
}

// ApplySeed upserts a seed account.
func (s *MemoryStore) ApplySeed(_ context.Context, seed Seed) error {
	username := strings.TrimSpace(seed.Username)
	if username == "" {
		return errors.New("seed username cannot be empty")
	}
	hashed, err := HashPassword(seed.Password)
	if err != nil {
		return err
	}
	userID := strings.TrimSpace(seed.UserID)
	if userID == "" {
		userID = username
	}

	s.mu.Lock()
	defer s.mu.Unlock()
	s.users[username] = &User{
		ID:           userID,
		Username:     username,
		PasswordHash: hashed,
		Wallet:       strings.TrimSpace(seed.Wallet),
		Disabled:     seed.Disabled,
	}
	s.byID[userID] = &Subject{
		UserID:   userID,
		Username: username,
		Wallet:   strings.TrimSpace(seed.Wallet),
		Disabled: seed.Disabled,
	}
	return nil
}

// FindUserByUsername retrieves the user record.
func (s *MemoryStore) FindUserByUsername(_ context.Context, username string) (*User, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	if user, ok := s.users[strings.TrimSpace(username)]; ok {
		clone := *user
		return &clone, nil
	}
	return nil, errors.New("user not found")
}

// LoadSubject returns the subject for the given user id.
func (s *MemoryStore) LoadSubject(_ context.Context, userID string) (*Subject, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	if subject, ok := s.byID[strings.TrimSpace(userID)]; ok {
		return subject.Clone(), nil
	}
	return nil, errors.New("subject not found")
}
