package entity

import (
	"strings"
	"time"
)

// StoreKind names one of the six account stores. The value doubles as the
// table / collection name.
type StoreKind string

const (
	StoreUsers      StoreKind = "users"
	StoreDepotUsers StoreKind = "depot_users"
	StoreDrivers    StoreKind = "drivers"
	StoreConductors StoreKind = "conductors"
	StoreVendors    StoreKind = "vendors"
	StoreStudents   StoreKind = "students"
)

// AllStores lists every store in a stable order.
var AllStores = []StoreKind{StoreUsers, StoreDepotUsers, StoreDrivers, StoreConductors, StoreVendors, StoreStudents}

func ParseStoreKind(s string) (StoreKind, bool) {
	k := StoreKind(strings.ToLower(strings.TrimSpace(s)))
	for _, known := range AllStores {
		if k == known {
			return k, true
		}
	}
	return "", false
}

// Field is an identifier column a store may index.
type Field string

const (
	FieldEmail    Field = "email"
	FieldPhone    Field = "phone"
	FieldUsername Field = "username"
	FieldAadhaar  Field = "aadhaar"
)

// Fields reports which identifier fields each store indexes.
var Fields = map[StoreKind][]Field{
	StoreUsers:      {FieldEmail, FieldPhone},
	StoreDepotUsers: {FieldEmail, FieldUsername},
	StoreDrivers:    {FieldEmail, FieldPhone, FieldUsername},
	StoreConductors: {FieldEmail, FieldPhone, FieldUsername},
	StoreVendors:    {FieldEmail, FieldPhone},
	StoreStudents:   {FieldEmail, FieldPhone, FieldAadhaar},
}

// Indexes reports whether store k can be looked up by f.
func (k StoreKind) Indexes(f Field) bool {
	for _, have := range Fields[k] {
		if have == f {
			return true
		}
	}
	return false
}

type Role string

const (
	RoleAdmin         Role = "admin"
	RoleDepotManager  Role = "depot_manager"
	RoleDriver        Role = "driver"
	RoleConductor     Role = "conductor"
	RoleVendor        Role = "vendor"
	RoleStudent       Role = "student"
	RolePassenger     Role = "passenger"
	RoleSupportAgent  Role = "support_agent"
	RoleDataCollector Role = "data_collector"
)

func ParseRole(s string) (Role, bool) {
	r := Role(strings.ToLower(strings.TrimSpace(s)))
	switch r {
	case RoleAdmin, RoleDepotManager, RoleDriver, RoleConductor, RoleVendor,
		RoleStudent, RolePassenger, RoleSupportAgent, RoleDataCollector:
		return r, true
	}
	return "", false
}

type RoleType string

const (
	RoleTypeInternal RoleType = "internal"
	RoleTypeExternal RoleType = "external"
)

// Type classifies r as staff (internal) or customer-facing (external).
func (r Role) Type() RoleType {
	switch r {
	case RoleAdmin, RoleDepotManager, RoleConductor, RoleDriver, RoleSupportAgent, RoleDataCollector:
		return RoleTypeInternal
	default:
		return RoleTypeExternal
	}
}

// Store returns the store that owns accounts of role r.
func (r Role) Store() StoreKind {
	switch r {
	case RoleDepotManager:
		return StoreDepotUsers
	case RoleDriver:
		return StoreDrivers
	case RoleConductor:
		return StoreConductors
	case RoleVendor:
		return StoreVendors
	case RoleStudent:
		return StoreStudents
	default:
		return StoreUsers
	}
}

type Status string

const (
	StatusPending   Status = "pending"
	StatusActive    Status = "active"
	StatusApproved  Status = "approved"
	StatusRejected  Status = "rejected"
	StatusSuspended Status = "suspended"
)

// Account is the uniform view of a record in any of the six stores.
// PasswordHash is never serialised.
type Account struct {
	ID           string    `json:"id"`
	Store        StoreKind `json:"-"`
	Name         string    `json:"name"`
	Email        string    `json:"email,omitempty"`
	Phone        string    `json:"phone,omitempty"`
	Username     string    `json:"username,omitempty"`
	Aadhaar      string    `json:"aadhaarNumber,omitempty"`
	PasswordHash string    `json:"-"`
	Status       Status    `json:"status"`
	// Role is only persisted by the users store; the other stores imply it.
	Role             Role       `json:"role,omitempty"`
	RoleType         RoleType   `json:"roleType,omitempty"`
	DepotID          string     `json:"depotId,omitempty"`
	DepotCode        string     `json:"depotCode,omitempty"`
	DepotName        string     `json:"depotName,omitempty"`
	StaffCode        string     `json:"staffCode,omitempty"` // driverId / conductorId
	PassStatus       string     `json:"passStatus,omitempty"`
	ProfileCompleted bool       `json:"profileCompleted"`
	LoginAttempts    int        `json:"-"`
	LockUntil        *time.Time `json:"-"`
	LastLogin        *time.Time `json:"lastLogin,omitempty"`
	CreatedAt        time.Time  `json:"-"`
}

// LockedAt reports whether the account is under an active lock at now.
func (a *Account) LockedAt(now time.Time) bool {
	return a.LockUntil != nil && a.LockUntil.After(now)
}

// ResolvedRole returns the role implied by the store, falling back to the
// stored role (users store) and finally passenger.
func (a *Account) ResolvedRole() Role {
	switch a.Store {
	case StoreDepotUsers:
		return RoleDepotManager
	case StoreDrivers:
		return RoleDriver
	case StoreConductors:
		return RoleConductor
	case StoreVendors:
		return RoleVendor
	case StoreStudents:
		return RoleStudent
	}
	if r, ok := ParseRole(string(a.Role)); ok {
		return r
	}
	return RolePassenger
}

// Patch is the set of mutations the resolver may apply to an account.
type Patch struct {
	LastLogin    *time.Time
	ResetLockout bool
}

// Lockout is the counter state returned by an atomic failure registration.
type Lockout struct {
	Attempts  int
	LockUntil *time.Time
}

// LockoutPolicy parameterises the lockout tracker per store.
type LockoutPolicy struct {
	Threshold int
	Window    time.Duration
}

// Enabled reports whether failures should be counted at all.
func (p LockoutPolicy) Enabled() bool {
	return p.Threshold > 0 && p.Window > 0
}
