package auth

import (
	"context"
	"time"

	"go.uber.org/zap"

	"github.com/ovaphlow/yatrik-auth/internal/account/entity"
	"github.com/ovaphlow/yatrik-auth/internal/account/repo"
)

// LoginRecorder persists lastLogin and clears the failure counter after a
// successful login. A failed write never fails the login.
type LoginRecorder interface {
	Record(ctx context.Context, m *Match)
}

// BestEffortRecorder writes on a detached goroutine with its own timeout.
// The caller gets its token before the write is confirmed.
type BestEffortRecorder struct {
	stores  repo.Set
	timeout time.Duration
	now     func() time.Time
	run     func(func())
	logger  *zap.SugaredLogger
}

func (r *BestEffortRecorder) Record(_ context.Context, m *Match) {
	if m.Synthetic {
		return
	}
	r.run(func() {
		ctx, cancel := context.WithTimeout(context.Background(), r.timeout)
		defer cancel()
		writeLogin(ctx, r.stores, m, r.now(), r.logger)
	})
}

// SyncRecorder writes inside the request.
type SyncRecorder struct {
	stores repo.Set
	now    func() time.Time
	logger *zap.SugaredLogger
}

func (r *SyncRecorder) Record(ctx context.Context, m *Match) {
	if m.Synthetic {
		return
	}
	writeLogin(ctx, r.stores, m, r.now(), r.logger)
}

func writeLogin(ctx context.Context, stores repo.Set, m *Match, at time.Time, logger *zap.SugaredLogger) {
	acc := m.Account
	st, ok := stores.Get(acc.Store)
	if !ok {
		return
	}
	patch := entity.Patch{LastLogin: &at, ResetLockout: true}
	if err := st.UpdateByID(ctx, acc.ID, patch); err != nil {
		logger.Warnw("record last login", "store", acc.Store, "id", acc.ID, "err", err)
	}
}
