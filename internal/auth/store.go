package auth

import (
	"context"
	"sort"
	"strings"
	"sync"
)

// Store persists admin user accounts.
type Store interface {
	CreateAdminUser(ctx context.Context, user AdminUser) error
	GetAdminUser(ctx context.Context, id string) (AdminUser, error)
	GetAdminUserByEmail(ctx context.Context, email string) (AdminUser, error)
	UpdateAdminUser(ctx context.Context, user AdminUser) error
	ListAdminUsers(ctx context.Context) ([]AdminUser, error)
}

// MemoryStore implements Store in process. Useful for tests and local runs.
type MemoryStore struct {
	mu    sync.RWMutex
	users map[string]AdminUser
}

var _ Store = (*MemoryStore)(nil)

func NewMemoryStore() *MemoryStore {
	return &MemoryStore{users: make(map[string]AdminUser)}
}

func (s *MemoryStore) CreateAdminUser(ctx context.Context, user AdminUser) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, ok := s.users[user.ID]; ok {
		return ErrAlreadyExists
	}
	for _, u := range s.users {
		if strings.EqualFold(u.Email, user.Email) {
			return ErrAlreadyExists
		}
	}
	s.users[user.ID] = user
	return nil
}

func (s *MemoryStore) GetAdminUser(ctx context.Context, id string) (AdminUser, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	u, ok := s.users[id]
	if !ok {
		return AdminUser{}, ErrNotFound
	}
	return u, nil
}

func (s *MemoryStore) GetAdminUserByEmail(ctx context.Context, email string) (AdminUser, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	for _, u := range s.users {
		if strings.EqualFold(u.Email, email) {
			return u, nil
		}
	}
	return AdminUser{}, ErrNotFound
}

func (s *MemoryStore) UpdateAdminUser(ctx context.Context, user AdminUser) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, ok := s.users[user.ID]; !ok {
		return ErrNotFound
	}
	s.users[user.ID] = user
	return nil
}

func (s *MemoryStore) ListAdminUsers(ctx context.Context) ([]AdminUser, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	out := make([]AdminUser, 0, len(s.users))
	for _, u := range s.users {
		out = append(out, u)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].CreatedAt.Before(out[j].CreatedAt) })
	return out, nil
}
