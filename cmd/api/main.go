package main

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"strings"
	"syscall"
	"time"

	"github.com/joho/godotenv"
	"go.uber.org/zap"

	"github.com/ovaphlow/yatrik-auth/internal/account/repo"
	"github.com/ovaphlow/yatrik-auth/internal/auth"
	"github.com/ovaphlow/yatrik-auth/internal/ratelimit"
	"github.com/ovaphlow/yatrik-auth/internal/router"
	"github.com/ovaphlow/yatrik-auth/pkg/database"
	"github.com/ovaphlow/yatrik-auth/pkg/utilities"
)

func main() {
	// best-effort: real env vars win when no .env exists
	_ = godotenv.Load()

	lg, err := utilities.Init(utilities.ConfigFromEnv())
	if err != nil {
		fmt.Fprintf(os.Stderr, "failed to init logger: %v\n", err)
		os.Exit(1)
	}
	defer lg.Sync()
	sugar := lg.Sugar()

	authCfg := auth.ConfigFromEnv()
	if err := authCfg.Validate(); err != nil {
		sugar.Fatalf("config: %v", err)
	}

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	stores, closeStores, err := openStores(ctx, sugar)
	if err != nil {
		sugar.Fatalf("account stores: %v", err)
	}
	defer closeStores()

	var limiter *ratelimit.Limiter
	if rcfg := database.RedisConfigFromEnv(); rcfg.Addr != "" {
		rdb, err := database.ConnectRedis(rcfg)
		if err != nil {
			sugar.Warnw("redis unavailable, auth routes are not rate limited", "err", err)
		} else {
			defer rdb.Close()
			limiter = ratelimit.New(rdb, ratelimit.ConfigFromEnv())
		}
	}

	if authCfg.SyntheticAccounts {
		sugar.Warnw("synthetic depot accounts enabled", "crew_templates", authCfg.StaffSharedSecret != "")
	}

	resolver := auth.NewResolver(authCfg, stores, sugar)
	srv := &http.Server{
		Addr:              envOr("HTTP_ADDR", "0.0.0.0:8431"),
		Handler:           router.RegisterRoutes(router.Deps{Logger: sugar, Resolver: resolver, Limiter: limiter}),
		ReadHeaderTimeout: 10 * time.Second,
	}

	go func() {
		sugar.Infow("yatrik-auth listening", "addr", srv.Addr)
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			sugar.Fatalf("http server failed: %v", err)
		}
	}()

	<-ctx.Done()
	sugar.Info("shutting down")

	doneCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	if err := srv.Shutdown(doneCtx); err != nil {
		sugar.Warnf("http server shutdown failed: %v", err)
	}
	sugar.Info("goodbye")
}

// openStores connects the backend named by STORE_DRIVER and prepares its
// tables or indexes.
func openStores(ctx context.Context, logger *zap.SugaredLogger) (repo.Set, func(), error) {
	switch driver := strings.ToLower(envOr("STORE_DRIVER", "postgres")); driver {
	case "postgres":
		db, err := database.Connect(database.ConfigFromEnv())
		if err != nil {
			return nil, nil, err
		}
		set, stores := repo.NewSQLSet(db)
		for _, s := range stores {
			if err := s.EnsureTable(ctx); err != nil {
				_ = db.Close()
				return nil, nil, fmt.Errorf("ensure %s: %w", s.Kind(), err)
			}
		}
		logger.Infow("account stores ready", "driver", driver, "stores", len(stores))
		return set, func() { _ = db.Close() }, nil

	case "mongo":
		client, db, err := database.ConnectMongo(database.MongoConfigFromEnv())
		if err != nil {
			return nil, nil, err
		}
		set, stores := repo.NewMongoSet(db)
		for _, s := range stores {
			if err := s.EnsureIndexes(ctx); err != nil {
				logger.Warnw("ensure indexes", "store", s.Kind(), "err", err)
			}
		}
		logger.Infow("account stores ready", "driver", driver, "database", db.Name())
		return set, func() {
			c, cancel := context.WithTimeout(context.Background(), 5*time.Second)
			defer cancel()
			_ = client.Disconnect(c)
		}, nil

	case "memory":
		logger.Warn("using in-memory account stores; data is lost on restart")
		set, _ := repo.NewMemorySet()
		return set, func() {}, nil

	default:
		return nil, nil, fmt.Errorf("unknown STORE_DRIVER %q", driver)
	}
}

func envOr(key, def string) string {
	if v := os.Getenv(key); v != "" {
		return v
	}
	return def
}
