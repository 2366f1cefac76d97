package auth

import (
	"errors"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/ovaphlow/yatrik-auth/internal/account/entity"
)

const (
	WriteAsync = "async"
	WriteSync  = "sync"
)

// Config holds resolver settings.
type Config struct {
	JWTSecret string
	Issuer    string

	AdminEmail string
	// SyntheticAccounts enables the pattern-derived depot / crew logins.
	SyntheticAccounts bool
	// StaffSharedSecret is the password for driver<N>@ and conductor<N>@
	// synthetic identifiers. Empty disables those two templates.
	StaffSharedSecret string

	Lockout       entity.LockoutPolicy
	LockoutExempt []entity.StoreKind

	LastLoginWrite string
	RecordTimeout  time.Duration
	AuditShadowing bool
}

// ConfigFromEnv reads resolver settings from the environment.
func ConfigFromEnv() Config {
	cfg := Config{
		JWTSecret:         os.Getenv("JWT_SECRET"),
		Issuer:            envOr("JWT_ISSUER", "yatrik-auth"),
		AdminEmail:        strings.ToLower(strings.TrimSpace(envOr("AUTH_ADMIN_EMAIL", "admin@yatrik.com"))),
		SyntheticAccounts: envBool("AUTH_SYNTHETIC_ACCOUNTS", true),
		StaffSharedSecret: os.Getenv("AUTH_STAFF_SHARED_SECRET"),
		Lockout: entity.LockoutPolicy{
			Threshold: envInt("AUTH_LOCKOUT_THRESHOLD", 5),
			Window:    envDuration("AUTH_LOCKOUT_WINDOW", 30*time.Minute),
		},
		LastLoginWrite: WriteAsync,
		RecordTimeout:  envDuration("AUTH_RECORD_TIMEOUT", 5*time.Second),
		AuditShadowing: envBool("AUTH_AUDIT_SHADOWING", false),
	}
	if strings.EqualFold(os.Getenv("AUTH_LAST_LOGIN_WRITE"), WriteSync) {
		cfg.LastLoginWrite = WriteSync
	}
	for _, s := range strings.Split(os.Getenv("AUTH_LOCKOUT_EXEMPT"), ",") {
		if k, ok := entity.ParseStoreKind(s); ok {
			cfg.LockoutExempt = append(cfg.LockoutExempt, k)
		}
	}
	return cfg
}

// Validate reports settings the service cannot run without.
func (c Config) Validate() error {
	if c.JWTSecret == "" {
		return errors.New("JWT_SECRET is required")
	}
	return nil
}

// policyFor returns the lockout policy for a store; exempt stores get a
// zero policy.
func (c Config) policyFor(kind entity.StoreKind) entity.LockoutPolicy {
	for _, k := range c.LockoutExempt {
		if k == kind {
			return entity.LockoutPolicy{}
		}
	}
	return c.Lockout
}

func envOr(key, def string) string {
	if v := os.Getenv(key); v != "" {
		return v
	}
	return def
}

func envBool(key string, def bool) bool {
	v := os.Getenv(key)
	if v == "" {
		return def
	}
	b, err := strconv.ParseBool(v)
	if err != nil {
		return def
	}
	return b
}

func envInt(key string, def int) int {
	if n, err := strconv.Atoi(os.Getenv(key)); err == nil {
		return n
	}
	return def
}

func envDuration(key string, def time.Duration) time.Duration {
	if d, err := time.ParseDuration(os.Getenv(key)); err == nil {
		return d
	}
	return def
}
