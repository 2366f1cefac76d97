package repo

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/jmoiron/sqlx"

	"github.com/ovaphlow/yatrik-auth/internal/account/entity"
	"github.com/ovaphlow/yatrik-auth/pkg/utilities"
)

// SQLStore provides data access for one account table using sqlx.
// All six tables share the same column layout; columns a store does not
// use stay NULL.
type SQLStore struct {
	db   *sqlx.DB
	kind entity.StoreKind
}

func NewSQLStore(db *sqlx.DB, kind entity.StoreKind) *SQLStore {
	return &SQLStore{db: db, kind: kind}
}

// NewSQLSet builds a store for every kind over the same connection.
func NewSQLSet(db *sqlx.DB) (Set, []*SQLStore) {
	stores := make([]*SQLStore, 0, len(entity.AllStores))
	set := Set{}
	for _, k := range entity.AllStores {
		s := NewSQLStore(db, k)
		stores = append(stores, s)
		set[k] = s
	}
	return set, stores
}

func (r *SQLStore) Kind() entity.StoreKind { return r.kind }

// table is safe to interpolate: kind is one of the fixed StoreKind constants.
func (r *SQLStore) table() string { return string(r.kind) }

var columnByField = map[entity.Field]string{
	entity.FieldEmail:    "email",
	entity.FieldPhone:    "phone",
	entity.FieldUsername: "username",
	entity.FieldAadhaar:  "aadhaar_number",
}

// EnsureTable creates the table and its lookup indexes if they do not exist.
// This is a convenience for early development; prefer migrations in production.
func (r *SQLStore) EnsureTable(ctx context.Context) error {
	t := r.table()
	ddl := fmt.Sprintf(`
CREATE TABLE IF NOT EXISTS %[1]s (
  id TEXT PRIMARY KEY,
  name TEXT NOT NULL DEFAULT '',
  email TEXT,
  phone TEXT,
  username TEXT,
  aadhaar_number TEXT,
  password_hash TEXT NOT NULL,
  status TEXT NOT NULL DEFAULT 'active',
  role TEXT,
  role_type TEXT,
  depot_id TEXT,
  depot_code TEXT,
  depot_name TEXT,
  staff_code TEXT,
  pass_status TEXT,
  profile_completed BOOLEAN NOT NULL DEFAULT false,
  login_attempts INT NOT NULL DEFAULT 0,
  lock_until TIMESTAMPTZ,
  last_login_at TIMESTAMPTZ,
  created_at TIMESTAMPTZ NOT NULL DEFAULT NOW(),
  updated_at TIMESTAMPTZ NOT NULL DEFAULT NOW()
);
CREATE INDEX IF NOT EXISTS idx_%[1]s_email ON %[1]s (LOWER(email));
CREATE INDEX IF NOT EXISTS idx_%[1]s_phone ON %[1]s (phone);
CREATE INDEX IF NOT EXISTS idx_%[1]s_username ON %[1]s (username);
CREATE INDEX IF NOT EXISTS idx_%[1]s_aadhaar ON %[1]s (aadhaar_number);
`, t)
	_, err := r.db.ExecContext(ctx, ddl)
	return err
}

type accountRow struct {
	ID               string     `db:"id"`
	Name             string     `db:"name"`
	Email            *string    `db:"email"`
	Phone            *string    `db:"phone"`
	Username         *string    `db:"username"`
	AadhaarNumber    *string    `db:"aadhaar_number"`
	PasswordHash     string     `db:"password_hash"`
	Status           string     `db:"status"`
	Role             *string    `db:"role"`
	RoleType         *string    `db:"role_type"`
	DepotID          *string    `db:"depot_id"`
	DepotCode        *string    `db:"depot_code"`
	DepotName        *string    `db:"depot_name"`
	StaffCode        *string    `db:"staff_code"`
	PassStatus       *string    `db:"pass_status"`
	ProfileCompleted bool       `db:"profile_completed"`
	LoginAttempts    int        `db:"login_attempts"`
	LockUntil        *time.Time `db:"lock_until"`
	LastLoginAt      *time.Time `db:"last_login_at"`
	CreatedAt        time.Time  `db:"created_at"`
}

const selectColumns = `id, name, email, phone, username, aadhaar_number, password_hash, status,
	role, role_type, depot_id, depot_code, depot_name, staff_code, pass_status,
	profile_completed, login_attempts, lock_until, last_login_at, created_at`

// FindByIdentifier returns the row matched by field or ErrNotFound.
func (r *SQLStore) FindByIdentifier(ctx context.Context, field entity.Field, value string) (*entity.Account, error) {
	if err := checkField(r.kind, field); err != nil {
		return nil, err
	}
	value = normalizeValue(field, value)
	if value == "" {
		return nil, ErrNotFound
	}
	col := columnByField[field]
	where := col + "=$1"
	if field == entity.FieldEmail {
		where = "LOWER(email)=$1"
	}
	q := "SELECT " + selectColumns + " FROM " + r.table() + " WHERE " + where + " LIMIT 1"

	var row accountRow
	if err := r.db.GetContext(ctx, &row, q, value); err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, ErrNotFound
		}
		return nil, fmt.Errorf("%s lookup by %s: %w", r.kind, field, err)
	}
	return row.toAccount(r.kind), nil
}

// UpdateByID applies the patch; an empty patch is a no-op.
func (r *SQLStore) UpdateByID(ctx context.Context, id string, patch entity.Patch) error {
	sets, args := patchClauses(patch)
	if len(sets) == 0 {
		return nil
	}
	args = append(args, id)
	q := fmt.Sprintf("UPDATE %s SET %s, updated_at=NOW() WHERE id=$%d", r.table(), strings.Join(sets, ", "), len(args))
	res, err := r.db.ExecContext(ctx, q, args...)
	if err != nil {
		return fmt.Errorf("%s update: %w", r.kind, err)
	}
	if n, err := res.RowsAffected(); err == nil && n == 0 {
		return ErrNotFound
	}
	return nil
}

func patchClauses(patch entity.Patch) ([]string, []any) {
	var sets []string
	var args []any
	if patch.LastLogin != nil {
		args = append(args, *patch.LastLogin)
		sets = append(sets, fmt.Sprintf("last_login_at=$%d", len(args)))
	}
	if patch.ResetLockout {
		sets = append(sets, "login_attempts=0", "lock_until=NULL")
	}
	return sets, args
}

// RegisterFailure increments the failure counter and sets the lock in one
// statement, so concurrent failures cannot race past the threshold.
func (r *SQLStore) RegisterFailure(ctx context.Context, id string, threshold int, lockUntil time.Time) (entity.Lockout, error) {
	q := `UPDATE ` + r.table() + ` SET login_attempts = login_attempts + 1,
		lock_until = CASE WHEN login_attempts + 1 >= $2 THEN $3 ELSE lock_until END,
		updated_at = NOW()
	  WHERE id=$1 RETURNING login_attempts, lock_until`
	var out struct {
		LoginAttempts int        `db:"login_attempts"`
		LockUntil     *time.Time `db:"lock_until"`
	}
	if err := r.db.GetContext(ctx, &out, q, id, threshold, lockUntil); err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return entity.Lockout{}, ErrNotFound
		}
		return entity.Lockout{}, fmt.Errorf("%s register failure: %w", r.kind, err)
	}
	return entity.Lockout{Attempts: out.LoginAttempts, LockUntil: out.LockUntil}, nil
}

// Create inserts a new account row and returns its snowflake id.
func (r *SQLStore) Create(ctx context.Context, acc *entity.Account) (string, error) {
	if acc.ID == "" {
		acc.ID = utilities.NewSnowflakeID()
	}
	q := `INSERT INTO ` + r.table() + ` (id,name,email,phone,username,aadhaar_number,password_hash,status,role,role_type,
		depot_id,depot_code,depot_name,staff_code,pass_status,profile_completed)
	  VALUES (:id,:name,:email,:phone,:username,:aadhaar_number,:password_hash,:status,:role,:role_type,
		:depot_id,:depot_code,:depot_name,:staff_code,:pass_status,:profile_completed)`
	if _, err := r.db.NamedExecContext(ctx, q, rowFromAccount(acc)); err != nil {
		return "", fmt.Errorf("%s insert: %w", r.kind, err)
	}
	return acc.ID, nil
}

func (row accountRow) toAccount(kind entity.StoreKind) *entity.Account {
	return &entity.Account{
		ID:               row.ID,
		Store:            kind,
		Name:             row.Name,
		Email:            deref(row.Email),
		Phone:            deref(row.Phone),
		Username:         deref(row.Username),
		Aadhaar:          deref(row.AadhaarNumber),
		PasswordHash:     row.PasswordHash,
		Status:           entity.Status(row.Status),
		Role:             entity.Role(deref(row.Role)),
		RoleType:         entity.RoleType(deref(row.RoleType)),
		DepotID:          deref(row.DepotID),
		DepotCode:        deref(row.DepotCode),
		DepotName:        deref(row.DepotName),
		StaffCode:        deref(row.StaffCode),
		PassStatus:       deref(row.PassStatus),
		ProfileCompleted: row.ProfileCompleted,
		LoginAttempts:    row.LoginAttempts,
		LockUntil:        row.LockUntil,
		LastLogin:        row.LastLoginAt,
		CreatedAt:        row.CreatedAt,
	}
}

func rowFromAccount(a *entity.Account) accountRow {
	status := a.Status
	if status == "" {
		status = entity.StatusActive
	}
	return accountRow{
		ID:               a.ID,
		Name:             a.Name,
		Email:            ptr(normalizeValue(entity.FieldEmail, a.Email)),
		Phone:            ptr(a.Phone),
		Username:         ptr(a.Username),
		AadhaarNumber:    ptr(a.Aadhaar),
		PasswordHash:     a.PasswordHash,
		Status:           string(status),
		Role:             ptr(string(a.Role)),
		RoleType:         ptr(string(a.RoleType)),
		DepotID:          ptr(a.DepotID),
		DepotCode:        ptr(a.DepotCode),
		DepotName:        ptr(a.DepotName),
		StaffCode:        ptr(a.StaffCode),
		PassStatus:       ptr(a.PassStatus),
		ProfileCompleted: a.ProfileCompleted,
	}
}

func deref(s *string) string {
	if s == nil {
		return ""
	}
	return *s
}

// ptr maps "" to NULL so lookups never match empty identifiers.
func ptr(s string) *string {
	if s == "" {
		return nil
	}
	return &s
}
