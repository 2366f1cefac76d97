package auth

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"go.uber.org/zap"

	"github.com/ovaphlow/yatrik-auth/internal/account/entity"
	"github.com/ovaphlow/yatrik-auth/internal/account/repo"
)

// Result is a successful login.
type Result struct {
	Account   *entity.Account
	Role      entity.Role
	Synthetic bool
	Session   *Session
}

// Resolver turns an identifier and password into a session by probing the
// account stores in precedence order.
type Resolver struct {
	chain    []Probe
	stores   repo.Set
	verifier *Verifier
	minter   *Minter
	recorder LoginRecorder
	logger   *zap.SugaredLogger

	auditShadowing bool
	auditTimeout   time.Duration

	// now and run are swapped by tests.
	now func() time.Time
	run func(func())
}

func NewResolver(cfg Config, stores repo.Set, logger *zap.SugaredLogger) *Resolver {
	r := &Resolver{
		stores:         stores,
		logger:         logger,
		auditShadowing: cfg.AuditShadowing,
		auditTimeout:   cfg.RecordTimeout,
		now:            time.Now,
		run:            func(f func()) { go f() },
	}
	clock := func() time.Time { return r.now() }
	r.chain = buildChain(cfg, stores, logger)
	r.verifier = newVerifier(cfg, stores, clock, logger)
	r.minter = NewMinter(cfg.JWTSecret, cfg.Issuer, clock)
	if cfg.LastLoginWrite == WriteSync {
		r.recorder = &SyncRecorder{stores: stores, now: clock, logger: logger}
	} else {
		r.recorder = &BestEffortRecorder{
			stores:  stores,
			timeout: cfg.RecordTimeout,
			now:     clock,
			run:     func(f func()) { r.run(f) },
			logger:  logger,
		}
	}
	return r
}

// Minter exposes the token minter for handlers that verify sessions.
func (r *Resolver) Minter() *Minter { return r.minter }

// Resolve runs the full probe chain.
func (r *Resolver) Resolve(ctx context.Context, identifier, password string) (*Result, error) {
	if strings.TrimSpace(identifier) == "" || password == "" {
		return nil, ErrMissingCredentials
	}
	id := Classify(identifier)

	idx, m, err := r.probe(ctx, id, r.chain)
	if err != nil {
		return nil, err
	}
	if m == nil {
		r.logger.Debugw("no structural match", "identifier", id.Value, "shape", id.Shape)
		return nil, ErrInvalidCredentials
	}

	res, err := r.complete(ctx, m, password)
	if err != nil {
		r.logger.Debugw("login rejected", "identifier", id.Value, "probe", r.chain[idx].Name(), "err", err)
		return nil, err
	}
	if r.auditShadowing && !m.Synthetic {
		r.run(func() { r.auditShadows(id, idx, m) })
	}
	return res, nil
}

// probe stops at the first structural match. Store errors are logged and
// treated as no match.
func (r *Resolver) probe(ctx context.Context, id Identifier, chain []Probe) (int, *Match, error) {
	for i, p := range chain {
		m, err := p.Match(ctx, id)
		if errors.Is(err, errChainHalted) {
			return i, nil, ErrInvalidCredentials
		}
		if err != nil {
			r.logger.Warnw("store probe failed", "probe", p.Name(), "err", err)
			continue
		}
		if m != nil {
			return i, m, nil
		}
	}
	return -1, nil, nil
}

// ResolveRole skips the probe chain and looks only in the store that owns role.
func (r *Resolver) ResolveRole(ctx context.Context, role, identifier, password string) (*Result, error) {
	if strings.TrimSpace(role) == "" || strings.TrimSpace(identifier) == "" || password == "" {
		return nil, ErrMissingCredentials
	}
	rl, ok := entity.ParseRole(role)
	if !ok {
		return nil, ErrUnknownRole
	}
	kind := rl.Store()
	st, ok := r.stores.Get(kind)
	if !ok {
		return nil, ErrInvalidCredentials
	}
	id := Classify(identifier)
	if !kind.Indexes(id.Field()) {
		return nil, ErrInvalidCredentials
	}

	acc, err := st.FindByIdentifier(ctx, id.Field(), id.Value)
	if errors.Is(err, repo.ErrNotFound) {
		return nil, ErrInvalidCredentials
	}
	if err != nil {
		return nil, fmt.Errorf("%s lookup: %w", kind, err)
	}
	// The users store holds several roles; the record must carry the declared one.
	if acc.ResolvedRole() != rl {
		return nil, ErrInvalidCredentials
	}
	return r.complete(ctx, &Match{Account: acc, Role: rl}, password)
}

func (r *Resolver) complete(ctx context.Context, m *Match, password string) (*Result, error) {
	if err := r.verifier.Verify(ctx, m, password); err != nil {
		return nil, err
	}
	sess, err := r.minter.Mint(m)
	if err != nil {
		return nil, err
	}
	r.recorder.Record(ctx, m)
	return &Result{Account: m.Account, Role: m.Role, Synthetic: m.Synthetic, Session: sess}, nil
}

// auditShadows re-runs the store probes after the winning one and logs any
// record the precedence order made unreachable.
func (r *Resolver) auditShadows(id Identifier, after int, winner *Match) {
	ctx, cancel := context.WithTimeout(context.Background(), r.auditTimeout)
	defer cancel()
	for _, p := range r.chain[after+1:] {
		sp, ok := p.(*storeProbe)
		if !ok {
			continue
		}
		m, err := sp.Match(ctx, id)
		if err != nil || m == nil {
			continue
		}
		if m.Account.Store == winner.Account.Store && m.Account.ID == winner.Account.ID {
			continue
		}
		r.logger.Warnw("identifier shadowed",
			"identifier", id.Value,
			"matched_store", winner.Account.Store,
			"matched_id", winner.Account.ID,
			"shadowed_store", m.Account.Store,
			"shadowed_id", m.Account.ID,
		)
	}
}
