package repo

import (
	"context"
	"sync"
	"time"

	"github.com/rs/xid"

	"github.com/ovaphlow/yatrik-auth/internal/account/entity"
)

// MemoryStore keeps accounts in a map. Used by tests and local development.
type MemoryStore struct {
	mu       sync.RWMutex
	kind     entity.StoreKind
	accounts map[string]*entity.Account
}

func NewMemoryStore(kind entity.StoreKind) *MemoryStore {
	return &MemoryStore{kind: kind, accounts: map[string]*entity.Account{}}
}

// NewMemorySet builds an empty store for every kind.
func NewMemorySet() (Set, []*MemoryStore) {
	set := Set{}
	stores := make([]*MemoryStore, 0, len(entity.AllStores))
	for _, k := range entity.AllStores {
		s := NewMemoryStore(k)
		stores = append(stores, s)
		set[k] = s
	}
	return set, stores
}

func (s *MemoryStore) Kind() entity.StoreKind { return s.kind }

func (s *MemoryStore) Create(_ context.Context, acc *entity.Account) (string, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	c := *acc
	if c.ID == "" {
		c.ID = xid.New().String()
	}
	c.Store = s.kind
	c.Email = normalizeValue(entity.FieldEmail, c.Email)
	if c.CreatedAt.IsZero() {
		c.CreatedAt = time.Now().UTC()
	}
	s.accounts[c.ID] = &c
	return c.ID, nil
}

func (s *MemoryStore) FindByIdentifier(_ context.Context, field entity.Field, value string) (*entity.Account, error) {
	if err := checkField(s.kind, field); err != nil {
		return nil, err
	}
	value = normalizeValue(field, value)
	if value == "" {
		return nil, ErrNotFound
	}

	s.mu.RLock()
	defer s.mu.RUnlock()
	for _, a := range s.accounts {
		if fieldValue(a, field) == value {
			c := *a
			return &c, nil
		}
	}
	return nil, ErrNotFound
}

// FindByID returns a copy of the record with the given id.
func (s *MemoryStore) FindByID(id string) (*entity.Account, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	a, ok := s.accounts[id]
	if !ok {
		return nil, ErrNotFound
	}
	c := *a
	return &c, nil
}

func (s *MemoryStore) UpdateByID(_ context.Context, id string, patch entity.Patch) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	a, ok := s.accounts[id]
	if !ok {
		return ErrNotFound
	}
	if patch.LastLogin != nil {
		t := *patch.LastLogin
		a.LastLogin = &t
	}
	if patch.ResetLockout {
		a.LoginAttempts = 0
		a.LockUntil = nil
	}
	return nil
}

func (s *MemoryStore) RegisterFailure(_ context.Context, id string, threshold int, lockUntil time.Time) (entity.Lockout, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	a, ok := s.accounts[id]
	if !ok {
		return entity.Lockout{}, ErrNotFound
	}
	a.LoginAttempts++
	if a.LoginAttempts >= threshold {
		t := lockUntil
		a.LockUntil = &t
	}
	out := entity.Lockout{Attempts: a.LoginAttempts}
	if a.LockUntil != nil {
		t := *a.LockUntil
		out.LockUntil = &t
	}
	return out, nil
}

func fieldValue(a *entity.Account, field entity.Field) string {
	switch field {
	case entity.FieldEmail:
		return a.Email
	case entity.FieldPhone:
		return a.Phone
	case entity.FieldUsername:
		return a.Username
	case entity.FieldAadhaar:
		return a.Aadhaar
	}
	return ""
}
