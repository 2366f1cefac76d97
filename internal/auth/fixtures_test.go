package auth

import (
	"context"
	"sync"
	"testing"
	"time"

	"go.uber.org/zap"
	"golang.org/x/crypto/bcrypt"

	"github.com/ovaphlow/yatrik-auth/internal/account/entity"
	"github.com/ovaphlow/yatrik-auth/internal/account/repo"
)

const testSecret = "test-secret"

type clock struct {
	mu sync.Mutex
	t  time.Time
}

func (c *clock) Now() time.Time {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.t
}

func (c *clock) Advance(d time.Duration) {
	c.mu.Lock()
	c.t = c.t.Add(d)
	c.mu.Unlock()
}

type fixture struct {
	resolver *Resolver
	stores   map[entity.StoreKind]*repo.MemoryStore
	clock    *clock
}

func testConfig() Config {
	return Config{
		JWTSecret:         testSecret,
		Issuer:            "yatrik-auth-test",
		AdminEmail:        "admin@yatrik.com",
		SyntheticAccounts: true,
		StaffSharedSecret: "Yatrik123",
		Lockout:           entity.LockoutPolicy{Threshold: 5, Window: 30 * time.Minute},
		LastLoginWrite:    WriteAsync,
		RecordTimeout:     time.Second,
	}
}

func newFixture(t *testing.T, cfg Config, logger *zap.SugaredLogger) *fixture {
	t.Helper()
	if logger == nil {
		logger = zap.NewNop().Sugar()
	}
	f := &fixture{
		stores: map[entity.StoreKind]*repo.MemoryStore{},
		clock:  &clock{t: time.Date(2024, 10, 11, 9, 0, 0, 0, time.UTC)},
	}
	var all []repo.Store
	for _, k := range entity.AllStores {
		s := repo.NewMemoryStore(k)
		f.stores[k] = s
		all = append(all, s)
	}
	f.resolver = NewResolver(cfg, repo.NewSet(all...), logger)
	f.resolver.now = f.clock.Now
	f.resolver.run = func(fn func()) { fn() }
	return f
}

func hash(t *testing.T, pw string) string {
	t.Helper()
	h, err := bcrypt.GenerateFromPassword([]byte(pw), bcrypt.MinCost)
	if err != nil {
		t.Fatalf("hash: %v", err)
	}
	return string(h)
}

// seed stores acc with password hashed and returns its id.
func (f *fixture) seed(t *testing.T, kind entity.StoreKind, acc entity.Account, password string) string {
	t.Helper()
	acc.PasswordHash = hash(t, password)
	if acc.Status == "" {
		acc.Status = entity.StatusActive
	}
	id, err := f.stores[kind].Create(context.Background(), &acc)
	if err != nil {
		t.Fatalf("seed: %v", err)
	}
	return id
}

func (f *fixture) get(t *testing.T, kind entity.StoreKind, id string) *entity.Account {
	t.Helper()
	a, err := f.stores[kind].FindByID(id)
	if err != nil {
		t.Fatalf("get: %v", err)
	}
	return a
}

// failingStore wraps a store and fails every lookup.
type failingStore struct {
	repo.Store
	err error
}

func (s failingStore) FindByIdentifier(context.Context, entity.Field, string) (*entity.Account, error) {
	return nil, s.err
}
