package auth

import (
	"context"
	"time"

	"go.uber.org/zap"
	"golang.org/x/crypto/bcrypt"

	"github.com/ovaphlow/yatrik-auth/internal/account/entity"
	"github.com/ovaphlow/yatrik-auth/internal/account/repo"
)

// Verifier checks the password and status of a structural match and keeps
// the per-store failure counters.
type Verifier struct {
	stores   repo.Set
	policies map[entity.StoreKind]entity.LockoutPolicy
	now      func() time.Time
	logger   *zap.SugaredLogger
}

func newVerifier(cfg Config, stores repo.Set, now func() time.Time, logger *zap.SugaredLogger) *Verifier {
	policies := make(map[entity.StoreKind]entity.LockoutPolicy, len(entity.AllStores))
	for _, k := range entity.AllStores {
		policies[k] = cfg.policyFor(k)
	}
	return &Verifier{stores: stores, policies: policies, now: now, logger: logger}
}

// Verify returns nil when m may log in with password.
func (v *Verifier) Verify(ctx context.Context, m *Match, password string) error {
	if m.Synthetic {
		if !m.checkSecret(password) {
			return ErrInvalidCredentials
		}
		return nil
	}

	acc := m.Account
	now := v.now()
	// An engaged lock blocks before the hash is compared.
	if acc.LockedAt(now) {
		return ErrAccountLocked
	}

	if acc.PasswordHash == "" || bcrypt.CompareHashAndPassword([]byte(acc.PasswordHash), []byte(password)) != nil {
		v.registerFailure(ctx, acc, now)
		return ErrInvalidCredentials
	}

	return checkStatus(acc)
}

func (v *Verifier) registerFailure(ctx context.Context, acc *entity.Account, now time.Time) {
	policy := v.policies[acc.Store]
	if !policy.Enabled() {
		return
	}
	st, ok := v.stores.Get(acc.Store)
	if !ok {
		return
	}
	lo, err := st.RegisterFailure(ctx, acc.ID, policy.Threshold, now.Add(policy.Window))
	if err != nil {
		v.logger.Warnw("register login failure", "store", acc.Store, "id", acc.ID, "err", err)
		return
	}
	if lo.LockUntil != nil && lo.LockUntil.After(now) && lo.Attempts == policy.Threshold {
		v.logger.Infow("account locked", "store", acc.Store, "id", acc.ID, "until", lo.LockUntil)
	}
}

// checkStatus applies the per-store status gate. Suspended always fails.
func checkStatus(acc *entity.Account) error {
	status := acc.Status
	if status == "" {
		status = entity.StatusActive
	}
	if status == entity.StatusSuspended {
		return ErrAccountSuspended
	}

	switch acc.Store {
	case entity.StoreVendors:
		if status == entity.StatusActive || status == entity.StatusApproved {
			return nil
		}
	case entity.StoreStudents:
		if status == entity.StatusActive || status == entity.StatusApproved || acc.PassStatus == string(entity.StatusApproved) {
			return nil
		}
	default:
		if status == entity.StatusActive {
			return nil
		}
	}
	return &AccountNotActiveError{Status: status}
}
