package repo

import (
	"context"
	"errors"
	"strings"
	"time"

	"github.com/ovaphlow/yatrik-auth/internal/account/entity"
)

// ErrNotFound is returned when no record matches the lookup.
var ErrNotFound = errors.New("account not found")

// ErrUnsupportedField is returned when a store does not index the requested field.
var ErrUnsupportedField = errors.New("field not indexed by store")

// Store is the query surface the resolver needs from one account store.
type Store interface {
	Kind() entity.StoreKind
	// FindByIdentifier returns the record whose field equals value, or ErrNotFound.
	// Email values are matched case-insensitively.
	FindByIdentifier(ctx context.Context, field entity.Field, value string) (*entity.Account, error)
	UpdateByID(ctx context.Context, id string, patch entity.Patch) error
	// RegisterFailure atomically increments the failure counter and, once the
	// new count reaches threshold, sets the lock expiry to lockUntil.
	RegisterFailure(ctx context.Context, id string, threshold int, lockUntil time.Time) (entity.Lockout, error)
	Create(ctx context.Context, acc *entity.Account) (string, error)
}

// Set holds one Store per kind.
type Set map[entity.StoreKind]Store

func NewSet(stores ...Store) Set {
	s := make(Set, len(stores))
	for _, st := range stores {
		s[st.Kind()] = st
	}
	return s
}

func (s Set) Get(kind entity.StoreKind) (Store, bool) {
	st, ok := s[kind]
	return st, ok
}

// normalizeValue lower-cases emails so every backend matches the same form.
func normalizeValue(field entity.Field, value string) string {
	value = strings.TrimSpace(value)
	if field == entity.FieldEmail {
		return strings.ToLower(value)
	}
	return value
}

func checkField(kind entity.StoreKind, field entity.Field) error {
	if !kind.Indexes(field) {
		return ErrUnsupportedField
	}
	return nil
}
