// Package memstore provides an in-process UserStore for development and tests.
package memstore

import (
	"context"
	"sync"
	"time"

	domainauth "github.com/target/tokengate/internal/domain/auth"
	"github.com/target/tokengate/internal/domain/model"
	"github.com/target/tokengate/internal/ports"
)

var _ ports.UserStore = (*UserStore)(nil)

// UserStore keeps users in memory keyed by exact email. Returned records are copies.
type UserStore struct {
	mu     sync.RWMutex
	clock  ports.TimeProvider
	nextID int64
	byMail map[string]*model.User
	byID   map[int64]string
}

// NewUserStore creates an empty store. A nil clock uses wall time.
func NewUserStore(clock ports.TimeProvider) *UserStore {
	return &UserStore{
		clock:  clock,
		byMail: make(map[string]*model.User),
		byID:   make(map[int64]string),
	}
}

func (s *UserStore) now() time.Time {
	if s.clock == nil {
		return time.Now().UTC()
	}
	return s.clock.Now()
}

// Create inserts a user, assigning the next id.
func (s *UserStore) Create(ctx context.Context, params model.CreateUserParams) (*model.User, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	s.mu.Lock()
	defer s.mu.Unlock()

	if _, exists := s.byMail[params.Email]; exists {
		return nil, domainauth.ErrDuplicateEmail
	}

	s.nextID++
	now := s.now()
	u := &model.User{
		ID:           s.nextID,
		FirstName:    params.FirstName,
		LastName:     params.LastName,
		Email:        params.Email,
		Phone:        copyString(params.Phone),
		PasswordHash: params.PasswordHash,
		Role:         params.Role,
		Active:       params.Active,
		CreatedAt:    now,
		UpdatedAt:    now,
	}
	s.byMail[u.Email] = u
	s.byID[u.ID] = u.Email
	return cloneUser(u), nil
}

// GetByEmail looks up a user by exact email.
func (s *UserStore) GetByEmail(ctx context.Context, email string) (*model.User, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	s.mu.RLock()
	defer s.mu.RUnlock()

	u, ok := s.byMail[email]
	if !ok {
		return nil, domainauth.ErrUserNotFound
	}
	return cloneUser(u), nil
}

// GetByID looks up a user by id.
func (s *UserStore) GetByID(ctx context.Context, id int64) (*model.User, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	s.mu.RLock()
	defer s.mu.RUnlock()

	email, ok := s.byID[id]
	if !ok {
		return nil, domainauth.ErrUserNotFound
	}
	return cloneUser(s.byMail[email]), nil
}

func (s *UserStore) RecordLogin(ctx context.Context, id int64, at time.Time) error {
	return s.updateByID(ctx, id, func(u *model.User) {
		t := at
		u.LastLogin = &t
		u.LoginAttempts = 0
	})
}

func (s *UserStore) RecordFailedLogin(ctx context.Context, id int64) error {
	return s.updateByID(ctx, id, func(u *model.User) {
		u.LoginAttempts++
	})
}

// MarkLoggedOut advances the logout watermark; an older at leaves it unchanged.
func (s *UserStore) MarkLoggedOut(ctx context.Context, email string, at time.Time) error {
	return s.updateByEmail(ctx, email, func(u *model.User) {
		if u.LastLogout != nil && !at.After(*u.LastLogout) {
			return
		}
		t := at
		u.LastLogout = &t
	})
}

func (s *UserStore) SetRole(ctx context.Context, email string, role domainauth.Role) error {
	return s.updateByEmail(ctx, email, func(u *model.User) { u.Role = role })
}

func (s *UserStore) SetActive(ctx context.Context, email string, active bool) error {
	return s.updateByEmail(ctx, email, func(u *model.User) { u.Active = active })
}

// Delete soft-deletes a user.
func (s *UserStore) Delete(ctx context.Context, email string) error {
	return s.updateByEmail(ctx, email, func(u *model.User) {
		u.Deleted = true
		u.Active = false
	})
}

func (s *UserStore) updateByID(ctx context.Context, id int64, fn func(*model.User)) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	s.mu.Lock()
	defer s.mu.Unlock()

	email, ok := s.byID[id]
	if !ok {
		return domainauth.ErrUserNotFound
	}
	u := s.byMail[email]
	fn(u)
	u.UpdatedAt = s.now()
	return nil
}

func (s *UserStore) updateByEmail(ctx context.Context, email string, fn func(*model.User)) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	s.mu.Lock()
	defer s.mu.Unlock()

	u, ok := s.byMail[email]
	if !ok {
		return domainauth.ErrUserNotFound
	}
	fn(u)
	u.UpdatedAt = s.now()
	return nil
}

func cloneUser(u *model.User) *model.User {
	c := *u
	c.Phone = copyString(u.Phone)
	c.LastLogin = copyTime(u.LastLogin)
	c.LastLogout = copyTime(u.LastLogout)
	return &c
}

func copyString(s *string) *string {
	if s == nil {
		return nil
	}
	v := *s
	return &v
}

func copyTime(t *time.Time) *time.Time {
	if t == nil {
		return nil
	}
	v := *t
	return &v
}
