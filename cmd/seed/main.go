// Command seed inserts one account into an account store so the login flows
// can be exercised against a real database.
//
//	seed -store students -email student@test.com -password 'Student@123' -status approved
package main

import (
	"context"
	"flag"
	"fmt"
	"os"
	"strings"
	"time"

	"github.com/joho/godotenv"
	"golang.org/x/crypto/bcrypt"

	"github.com/ovaphlow/yatrik-auth/internal/account/entity"
	"github.com/ovaphlow/yatrik-auth/internal/account/repo"
	"github.com/ovaphlow/yatrik-auth/pkg/database"
	"github.com/ovaphlow/yatrik-auth/pkg/utilities"
)

// bcryptCost matches the cost the registration services use.
const bcryptCost = 10

func main() {
	_ = godotenv.Load()

	var (
		storeName = flag.String("store", "users", "account store: users, depot_users, drivers, conductors, vendors, students")
		name      = flag.String("name", "", "display name")
		email     = flag.String("email", "", "email address")
		phone     = flag.String("phone", "", "10-digit phone")
		username  = flag.String("username", "", "username (depot users, drivers, conductors)")
		aadhaar   = flag.String("aadhaar", "", "12-digit Aadhaar number (students)")
		password  = flag.String("password", "", "plain password, hashed with bcrypt")
		status    = flag.String("status", "active", "pending, active, approved, rejected, suspended")
		role      = flag.String("role", "", "role for the users store (admin, passenger, support_agent, data_collector)")
		depotID   = flag.String("depot-id", "", "linked depot id")
		depotCode = flag.String("depot-code", "", "linked depot code")
		staffCode = flag.String("staff-code", "", "driverId / conductorId")
		driver    = flag.String("driver", envOr("STORE_DRIVER", "postgres"), "postgres or mongo")
	)
	flag.Parse()

	lg, err := utilities.Init(utilities.ConfigFromEnv())
	if err != nil {
		fmt.Fprintf(os.Stderr, "failed to init logger: %v\n", err)
		os.Exit(1)
	}
	defer lg.Sync()
	sugar := lg.Sugar()

	kind, ok := entity.ParseStoreKind(*storeName)
	if !ok {
		sugar.Fatalf("unknown store %q", *storeName)
	}
	if *password == "" || (*email == "" && *phone == "" && *username == "" && *aadhaar == "") {
		sugar.Fatal("password and at least one identifier are required")
	}
	acc := &entity.Account{
		Name:      *name,
		Email:     strings.ToLower(strings.TrimSpace(*email)),
		Phone:     *phone,
		Username:  *username,
		Aadhaar:   *aadhaar,
		Status:    entity.Status(*status),
		DepotID:   *depotID,
		DepotCode: *depotCode,
		StaffCode: *staffCode,
	}
	if kind == entity.StoreUsers {
		r, ok := entity.ParseRole(*role)
		if !ok {
			r = entity.RolePassenger
		}
		acc.Role = r
		acc.RoleType = r.Type()
	}
	hash, err := bcrypt.GenerateFromPassword([]byte(*password), bcryptCost)
	if err != nil {
		sugar.Fatalf("hash password: %v", err)
	}
	acc.PasswordHash = string(hash)

	ctx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()

	var store repo.Store
	switch strings.ToLower(*driver) {
	case "postgres":
		db, err := database.Connect(database.ConfigFromEnv())
		if err != nil {
			sugar.Fatalf("db connect: %v", err)
		}
		defer db.Close()
		s := repo.NewSQLStore(db, kind)
		if err := s.EnsureTable(ctx); err != nil {
			sugar.Fatalf("ensure table: %v", err)
		}
		store = s
	case "mongo":
		client, db, err := database.ConnectMongo(database.MongoConfigFromEnv())
		if err != nil {
			sugar.Fatalf("mongo connect: %v", err)
		}
		defer client.Disconnect(context.Background())
		s := repo.NewMongoStore(db, kind)
		if err := s.EnsureIndexes(ctx); err != nil {
			sugar.Warnw("ensure indexes", "err", err)
		}
		store = s
	default:
		sugar.Fatalf("unsupported driver %q", *driver)
	}

	for _, f := range entity.Fields[kind] {
		v := identifierValue(acc, f)
		if v == "" {
			continue
		}
		if _, err := store.FindByIdentifier(ctx, f, v); err == nil {
			sugar.Fatalf("%s %s already exists in %s", f, v, kind)
		}
	}

	id, err := store.Create(ctx, acc)
	if err != nil {
		sugar.Fatalf("create: %v", err)
	}
	sugar.Infow("account created", "store", kind, "id", id, "status", acc.Status)
}

func identifierValue(a *entity.Account, f entity.Field) string {
	switch f {
	case entity.FieldEmail:
		return a.Email
	case entity.FieldPhone:
		return a.Phone
	case entity.FieldUsername:
		return a.Username
	case entity.FieldAadhaar:
		return a.Aadhaar
	}
	return ""
}

func envOr(key, def string) string {
	if v := os.Getenv(key); v != "" {
		return v
	}
	return def
}
