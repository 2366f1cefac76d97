package auth

import (
	"context"
	"errors"
	"strings"

	"go.uber.org/zap"

	"github.com/ovaphlow/yatrik-auth/internal/account/entity"
	"github.com/ovaphlow/yatrik-auth/internal/account/repo"
)

// Match is a structural match: an account found by identifier, before any
// password check.
type Match struct {
	Account *entity.Account
	Role    entity.Role
	// Synthetic matches have no backing record; secret is the derived password.
	Synthetic bool
	secret    string
}

// Probe is one step of the store probe chain. A nil Match with a nil error
// means "not mine, try the next probe".
type Probe interface {
	Name() string
	Match(ctx context.Context, id Identifier) (*Match, error)
}

// storeProbe looks up one store when the identifier shape is accepted.
type storeProbe struct {
	name   string
	store  repo.Store
	shapes []Shape
	accept func(Identifier) bool
}

func (p *storeProbe) Name() string { return p.name }

func (p *storeProbe) applies(id Identifier) bool {
	for _, s := range p.shapes {
		if s == id.Shape {
			return p.accept == nil || p.accept(id)
		}
	}
	return false
}

func (p *storeProbe) Match(ctx context.Context, id Identifier) (*Match, error) {
	if !p.applies(id) || !p.store.Kind().Indexes(id.Field()) {
		return nil, nil
	}
	acc, err := p.store.FindByIdentifier(ctx, id.Field(), id.Value)
	if errors.Is(err, repo.ErrNotFound) {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	return &Match{Account: acc, Role: acc.ResolvedRole()}, nil
}

// superAdminProbe only probes the users store for the reserved admin address
// and halts the chain whether or not the record exists.
type superAdminProbe struct {
	email  string
	store  repo.Store
	logger *zap.SugaredLogger
}

func (p *superAdminProbe) Name() string { return "super_admin" }

func (p *superAdminProbe) Match(ctx context.Context, id Identifier) (*Match, error) {
	if p.email == "" || id.Shape != ShapeEmail || id.Value != p.email {
		return nil, nil
	}
	acc, err := p.store.FindByIdentifier(ctx, entity.FieldEmail, id.Value)
	if err != nil {
		if !errors.Is(err, repo.ErrNotFound) {
			p.logger.Warnw("admin lookup failed", "err", err)
		}
		return nil, errChainHalted
	}
	return &Match{Account: acc, Role: entity.RoleAdmin}, nil
}

func containsDepot(id Identifier) bool {
	return strings.Contains(id.Value, "depot")
}

// buildChain assembles the probes in precedence order, skipping stores that
// are not configured.
func buildChain(cfg Config, stores repo.Set, logger *zap.SugaredLogger) []Probe {
	var chain []Probe
	if st, ok := stores.Get(entity.StoreUsers); ok {
		chain = append(chain, &superAdminProbe{email: cfg.AdminEmail, store: st, logger: logger})
	}
	if cfg.SyntheticAccounts {
		chain = append(chain, newSyntheticProbe(cfg.StaffSharedSecret))
	}

	add := func(name string, kind entity.StoreKind, accept func(Identifier) bool, shapes ...Shape) {
		if st, ok := stores.Get(kind); ok {
			chain = append(chain, &storeProbe{name: name, store: st, shapes: shapes, accept: accept})
		}
	}
	add("depot_email", entity.StoreDepotUsers, containsDepot, ShapeEmail)
	add("driver_email", entity.StoreDrivers, nil, ShapeEmail)
	add("conductor_email", entity.StoreConductors, nil, ShapeEmail)
	add("conductor_username", entity.StoreConductors, nil, ShapeUsername)
	add("driver_username", entity.StoreDrivers, nil, ShapeUsername)
	add("depot_username", entity.StoreDepotUsers, nil, ShapeUsername)
	add("student", entity.StoreStudents, nil, ShapeEmail, ShapePhone, ShapeAadhaar)
	add("vendor", entity.StoreVendors, nil, ShapeEmail)
	add("user", entity.StoreUsers, nil, ShapeEmail, ShapePhone)
	return chain
}
