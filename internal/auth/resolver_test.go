package auth

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
	"go.uber.org/zap/zaptest/observer"

	"github.com/ovaphlow/yatrik-auth/internal/account/entity"
	"github.com/ovaphlow/yatrik-auth/internal/account/repo"
)

func TestResolve_MissingCredentials(t *testing.T) {
	f := newFixture(t, testConfig(), nil)
	ctx := context.Background()

	_, err := f.resolver.Resolve(ctx, "   ", "pw")
	assert.ErrorIs(t, err, ErrMissingCredentials)
	_, err = f.resolver.Resolve(ctx, "a@b.co", "")
	assert.ErrorIs(t, err, ErrMissingCredentials)
}

func TestResolve_Precedence(t *testing.T) {
	ctx := context.Background()
	const shared = "shared@yatrik.in"

	// Each pair lists the store that must win over the one after it.
	pairs := [][2]entity.StoreKind{
		{entity.StoreDrivers, entity.StoreConductors},
		{entity.StoreConductors, entity.StoreStudents},
		{entity.StoreStudents, entity.StoreVendors},
		{entity.StoreStudents, entity.StoreUsers},
		{entity.StoreVendors, entity.StoreUsers},
	}
	for _, p := range pairs {
		f := newFixture(t, testConfig(), nil)
		f.seed(t, p[1], entity.Account{Email: shared}, "pw")
		winner := f.seed(t, p[0], entity.Account{Email: shared}, "pw")

		for i := 0; i < 3; i++ {
			res, err := f.resolver.Resolve(ctx, shared, "pw")
			require.NoError(t, err)
			assert.Equal(t, p[0], res.Account.Store)
			assert.Equal(t, winner, res.Account.ID)
		}
	}
}

func TestResolve_UsernamePrecedence(t *testing.T) {
	ctx := context.Background()
	f := newFixture(t, testConfig(), nil)
	f.seed(t, entity.StoreDepotUsers, entity.Account{Username: "crew01"}, "pw")
	f.seed(t, entity.StoreDrivers, entity.Account{Username: "crew01"}, "pw")
	f.seed(t, entity.StoreConductors, entity.Account{Username: "crew01"}, "pw")

	res, err := f.resolver.Resolve(ctx, "crew01", "pw")
	require.NoError(t, err)
	assert.Equal(t, entity.RoleConductor, res.Role)
}

func TestResolve_CrewByEmail(t *testing.T) {
	ctx := context.Background()
	f := newFixture(t, testConfig(), nil)
	f.seed(t, entity.StoreDrivers, entity.Account{
		Name: "Suresh", Email: "suresh-mumbai@yatrik.com", Username: "suresh",
		DepotID: "dep-7", StaffCode: "DRV-007",
	}, "pw")
	f.seed(t, entity.StoreConductors, entity.Account{Name: "Anil", Email: "anil@yatrik.com", DepotID: "dep-2"}, "pw")

	res, err := f.resolver.Resolve(ctx, "Suresh-Mumbai@yatrik.com", "pw")
	require.NoError(t, err)
	assert.Equal(t, entity.RoleDriver, res.Role)
	assert.Equal(t, "dep-7", res.Session.Claims["depotId"])
	assert.Equal(t, "DRV-007", res.Session.Claims["driverId"])
	assert.Equal(t, "/driver", res.Session.RedirectPath)

	res, err = f.resolver.Resolve(ctx, "anil@yatrik.com", "pw")
	require.NoError(t, err)
	assert.Equal(t, entity.RoleConductor, res.Role)
	assert.Equal(t, "dep-2", res.Session.Claims["depotId"])
}

func TestResolve_NoFallthroughOnWrongPassword(t *testing.T) {
	ctx := context.Background()
	f := newFixture(t, testConfig(), nil)
	f.seed(t, entity.StoreStudents, entity.Account{Email: "dup@x.in"}, "student-pw")
	f.seed(t, entity.StoreUsers, entity.Account{Email: "dup@x.in"}, "user-pw")

	_, err := f.resolver.Resolve(ctx, "dup@x.in", "user-pw")
	assert.ErrorIs(t, err, ErrInvalidCredentials)
}

func TestResolve_DepotEmailProbe(t *testing.T) {
	ctx := context.Background()
	f := newFixture(t, testConfig(), nil)
	f.seed(t, entity.StoreDepotUsers, entity.Account{Email: "manager.depot@ksrtc.in", DepotCode: "EKM"}, "pw")
	f.seed(t, entity.StoreStudents, entity.Account{Email: "manager.depot@ksrtc.in"}, "pw")

	res, err := f.resolver.Resolve(ctx, "Manager.Depot@KSRTC.in", "pw")
	require.NoError(t, err)
	assert.Equal(t, entity.RoleDepotManager, res.Role)
	assert.Equal(t, "/depot", res.Session.RedirectPath)
}

func TestResolve_ShapeRestrictsStores(t *testing.T) {
	ctx := context.Background()
	f := newFixture(t, testConfig(), nil)
	// An aadhaar-shaped identifier only reaches the student store.
	f.seed(t, entity.StoreUsers, entity.Account{Phone: "123412341234"}, "pw")
	_, err := f.resolver.Resolve(ctx, "123412341234", "pw")
	assert.ErrorIs(t, err, ErrInvalidCredentials)

	f.seed(t, entity.StoreStudents, entity.Account{Aadhaar: "123412341234"}, "pw")
	res, err := f.resolver.Resolve(ctx, "123412341234", "pw")
	require.NoError(t, err)
	assert.Equal(t, entity.RoleStudent, res.Role)

	// Phone-shaped identifiers reach the user store as the catch-all.
	f.seed(t, entity.StoreUsers, entity.Account{Phone: "9000000001", Role: "passenger"}, "pw")
	res, err = f.resolver.Resolve(ctx, "9000000001", "pw")
	require.NoError(t, err)
	assert.Equal(t, entity.RolePassenger, res.Role)
	assert.Equal(t, "/pax", res.Session.RedirectPath)
}

func TestResolve_SuperAdminHaltsChain(t *testing.T) {
	ctx := context.Background()
	f := newFixture(t, testConfig(), nil)
	// A student with the admin address must never be reached.
	f.seed(t, entity.StoreStudents, entity.Account{Email: "admin@yatrik.com"}, "pw")
	_, err := f.resolver.Resolve(ctx, "admin@yatrik.com", "pw")
	assert.ErrorIs(t, err, ErrInvalidCredentials)

	f.seed(t, entity.StoreUsers, entity.Account{Email: "admin@yatrik.com", Role: entity.RoleAdmin}, "admin-pw")
	res, err := f.resolver.Resolve(ctx, "ADMIN@yatrik.com", "admin-pw")
	require.NoError(t, err)
	assert.Equal(t, entity.RoleAdmin, res.Role)
	assert.Equal(t, "/admin", res.Session.RedirectPath)
	assert.Equal(t, "ADMIN", res.Session.Claims["role"])
}

func TestResolve_StoreErrorIsNoMatch(t *testing.T) {
	ctx := context.Background()
	cfg := testConfig()
	students := failingStore{Store: repo.NewMemoryStore(entity.StoreStudents), err: errors.New("connection reset")}
	users := repo.NewMemoryStore(entity.StoreUsers)
	_, _ = users.Create(ctx, &entity.Account{Email: "p@x.in", PasswordHash: hash(t, "pw"), Status: entity.StatusActive})

	core, logs := observer.New(zapcore.WarnLevel)
	r := NewResolver(cfg, repo.NewSet(students, users), zap.New(core).Sugar())
	r.run = func(fn func()) { fn() }

	res, err := r.Resolve(ctx, "p@x.in", "pw")
	require.NoError(t, err)
	assert.Equal(t, entity.StoreUsers, res.Account.Store)
	assert.Equal(t, 1, logs.FilterMessage("store probe failed").Len())
}

func TestResolve_SyntheticAccounts(t *testing.T) {
	ctx := context.Background()
	f := newFixture(t, testConfig(), nil)

	res, err := f.resolver.Resolve(ctx, "tvm001-depot@yatrik.com", "TVM001@2024")
	require.NoError(t, err)
	assert.True(t, res.Synthetic)
	assert.Equal(t, entity.RoleDepotManager, res.Role)
	assert.Equal(t, "TVM001", res.Session.Claims["depotCode"])

	_, err = f.resolver.Resolve(ctx, "tvm001-depot@yatrik.com", "wrong")
	assert.ErrorIs(t, err, ErrInvalidCredentials)

	res, err = f.resolver.Resolve(ctx, "driver12@ekm-depot.com", "Yatrik123")
	require.NoError(t, err)
	assert.Equal(t, entity.RoleDriver, res.Role)
	assert.Equal(t, "DRV-EKM-12", res.Session.Claims["driverId"])
	assert.Equal(t, "/driver", res.Session.RedirectPath)

	res, err = f.resolver.Resolve(ctx, "conductor3@ekm-depot.com", "Yatrik123")
	require.NoError(t, err)
	assert.Equal(t, entity.RoleConductor, res.Role)
	assert.Equal(t, "CON-EKM-3", res.Session.Claims["conductorId"])
}

func TestResolve_SyntheticDisabled(t *testing.T) {
	ctx := context.Background()
	cfg := testConfig()
	cfg.SyntheticAccounts = false
	f := newFixture(t, cfg, nil)

	_, err := f.resolver.Resolve(ctx, "tvm001-depot@yatrik.com", "TVM001@2024")
	assert.ErrorIs(t, err, ErrInvalidCredentials)

	// The depot-email store probe takes over.
	f.seed(t, entity.StoreDepotUsers, entity.Account{Email: "tvm001-depot@yatrik.com"}, "stored-pw")
	res, err := f.resolver.Resolve(ctx, "tvm001-depot@yatrik.com", "stored-pw")
	require.NoError(t, err)
	assert.False(t, res.Synthetic)
}

func TestResolve_CrewTemplatesNeedSecret(t *testing.T) {
	cfg := testConfig()
	cfg.StaffSharedSecret = ""
	f := newFixture(t, cfg, nil)
	_, err := f.resolver.Resolve(context.Background(), "driver1@tvm-depot.com", "")
	assert.ErrorIs(t, err, ErrMissingCredentials)
	_, err = f.resolver.Resolve(context.Background(), "driver1@tvm-depot.com", "anything")
	assert.ErrorIs(t, err, ErrInvalidCredentials)
}

func TestResolve_RecordsLastLogin(t *testing.T) {
	ctx := context.Background()
	f := newFixture(t, testConfig(), nil)
	id := f.seed(t, entity.StoreVendors, entity.Account{Email: "shop@v.in", Status: entity.StatusApproved}, "pw")

	_, err := f.resolver.Resolve(ctx, "shop@v.in", "bad")
	require.ErrorIs(t, err, ErrInvalidCredentials)
	assert.Equal(t, 1, f.get(t, entity.StoreVendors, id).LoginAttempts)

	_, err = f.resolver.Resolve(ctx, "shop@v.in", "pw")
	require.NoError(t, err)
	acc := f.get(t, entity.StoreVendors, id)
	require.NotNil(t, acc.LastLogin)
	assert.Equal(t, f.clock.Now(), *acc.LastLogin)
	assert.Zero(t, acc.LoginAttempts)
}

func TestResolve_BestEffortRecorderIsDeferred(t *testing.T) {
	ctx := context.Background()
	f := newFixture(t, testConfig(), nil)
	var pending []func()
	f.resolver.run = func(fn func()) { pending = append(pending, fn) }
	id := f.seed(t, entity.StoreUsers, entity.Account{Email: "p@x.in"}, "pw")

	_, err := f.resolver.Resolve(ctx, "p@x.in", "pw")
	require.NoError(t, err)
	assert.Nil(t, f.get(t, entity.StoreUsers, id).LastLogin, "write happens after the response")

	require.Len(t, pending, 1)
	pending[0]()
	assert.NotNil(t, f.get(t, entity.StoreUsers, id).LastLogin)
}

func TestResolve_SyncRecorder(t *testing.T) {
	cfg := testConfig()
	cfg.LastLoginWrite = WriteSync
	f := newFixture(t, cfg, nil)
	f.resolver.run = func(func()) { t.Fatal("sync recorder must not defer") }
	id := f.seed(t, entity.StoreUsers, entity.Account{Email: "p@x.in"}, "pw")

	_, err := f.resolver.Resolve(context.Background(), "p@x.in", "pw")
	require.NoError(t, err)
	assert.NotNil(t, f.get(t, entity.StoreUsers, id).LastLogin)
}

func TestResolve_SyntheticNeverRecorded(t *testing.T) {
	f := newFixture(t, testConfig(), nil)
	f.resolver.run = func(func()) { t.Fatal("synthetic login must not write") }
	_, err := f.resolver.Resolve(context.Background(), "kch-depot@yatrik.com", "KCH@2024")
	require.NoError(t, err)
}

func TestResolve_AuditShadowing(t *testing.T) {
	ctx := context.Background()
	cfg := testConfig()
	cfg.AuditShadowing = true
	core, logs := observer.New(zapcore.WarnLevel)
	f := newFixture(t, cfg, zap.New(core).Sugar())

	studentID := f.seed(t, entity.StoreStudents, entity.Account{Email: "dup@x.in"}, "pw")
	userID := f.seed(t, entity.StoreUsers, entity.Account{Email: "dup@x.in"}, "pw")

	_, err := f.resolver.Resolve(ctx, "dup@x.in", "pw")
	require.NoError(t, err)

	entries := logs.FilterMessage("identifier shadowed").All()
	require.Len(t, entries, 1)
	fields := entries[0].ContextMap()
	assert.Equal(t, entity.StoreStudents, fields["matched_store"])
	assert.Equal(t, studentID, fields["matched_id"])
	assert.Equal(t, entity.StoreUsers, fields["shadowed_store"])
	assert.Equal(t, userID, fields["shadowed_id"])
}

func TestResolveRole(t *testing.T) {
	ctx := context.Background()
	f := newFixture(t, testConfig(), nil)
	f.seed(t, entity.StoreDrivers, entity.Account{Username: "drv01", DepotID: "dep-1"}, "pw")
	f.seed(t, entity.StoreUsers, entity.Account{Email: "agent@yatrik.com", Role: entity.RoleSupportAgent}, "pw")
	f.seed(t, entity.StoreConductors, entity.Account{Username: "drv01"}, "pw")

	res, err := f.resolver.ResolveRole(ctx, "DRIVER", "drv01", "pw")
	require.NoError(t, err)
	assert.Equal(t, entity.RoleDriver, res.Role)
	assert.Equal(t, "dep-1", res.Session.Claims["depotId"])

	res, err = f.resolver.ResolveRole(ctx, "support_agent", "agent@yatrik.com", "pw")
	require.NoError(t, err)
	assert.Equal(t, "/dashboard", res.Session.RedirectPath)

	_, err = f.resolver.ResolveRole(ctx, "admin", "agent@yatrik.com", "pw")
	assert.ErrorIs(t, err, ErrInvalidCredentials, "declared role must match the record")

	_, err = f.resolver.ResolveRole(ctx, "pilot", "drv01", "pw")
	assert.ErrorIs(t, err, ErrUnknownRole)

	_, err = f.resolver.ResolveRole(ctx, "vendor", "drv01", "pw")
	assert.ErrorIs(t, err, ErrInvalidCredentials, "vendors are not indexed by username")

	_, err = f.resolver.ResolveRole(ctx, "", "drv01", "pw")
	assert.ErrorIs(t, err, ErrMissingCredentials)
}

func TestResolve_LockExpires(t *testing.T) {
	ctx := context.Background()
	f := newFixture(t, testConfig(), nil)
	f.seed(t, entity.StoreDrivers, entity.Account{Username: "drv9"}, "pw")

	for i := 0; i < 5; i++ {
		_, err := f.resolver.Resolve(ctx, "drv9", "nope")
		require.ErrorIs(t, err, ErrInvalidCredentials)
	}
	_, err := f.resolver.Resolve(ctx, "drv9", "pw")
	assert.ErrorIs(t, err, ErrAccountLocked)

	f.clock.Advance(31 * time.Minute)
	_, err = f.resolver.Resolve(ctx, "drv9", "pw")
	assert.NoError(t, err)
}
