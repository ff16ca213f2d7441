package main

import (
	"context"
	"fmt"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"strings"
	"syscall"
	"time"

	"github.com/p-n-ai/pai-admin/internal/admin"
	"github.com/p-n-ai/pai-admin/internal/curriculum"
	"github.com/p-n-ai/pai-admin/internal/hierarchy"
	"github.com/p-n-ai/pai-admin/internal/platform/cache"
	"github.com/p-n-ai/pai-admin/internal/platform/config"
	"github.com/p-n-ai/pai-admin/internal/platform/database"
	"github.com/p-n-ai/pai-admin/internal/platform/mongodb"
)

func main() {
	cfg, err := config.Load()
	if err != nil {
		slog.Error("failed to load config", "error", err)
		os.Exit(1)
	}
	slog.SetDefault(newLogger(cfg.Log))

	if err := cfg.Validate(); err != nil {
		slog.Error("invalid config", "error", err)
		os.Exit(1)
	}

	// Graceful shutdown on SIGTERM/SIGINT.
	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGTERM, syscall.SIGINT)
	defer stop()

	store, events, closeStore, err := openStore(ctx, cfg)
	if err != nil {
		slog.Error("failed to open store", "driver", cfg.Store.Driver, "error", err)
		os.Exit(1)
	}
	defer closeStore()

	lists, closeCache, err := openListCache(ctx, cfg.Cache)
	if err != nil {
		slog.Error("failed to open list cache", "mode", cfg.Cache.Mode, "error", err)
		os.Exit(1)
	}
	defer closeCache()

	deletePolicy, err := hierarchy.ParseErrorPolicy(cfg.Hierarchy.DeleteErrorPolicy)
	if err != nil {
		slog.Error("invalid delete error policy", "error", err)
		os.Exit(1)
	}
	statusPolicy, err := hierarchy.ParseErrorPolicy(cfg.Hierarchy.StatusErrorPolicy)
	if err != nil {
		slog.Error("invalid status error policy", "error", err)
		os.Exit(1)
	}
	svc := hierarchy.NewService(hierarchy.ServiceConfig{
		Store:                store,
		Events:               events,
		ReorderBaseOffset:    cfg.Hierarchy.ReorderBaseOffset,
		CascadeSubjectDelete: cfg.Hierarchy.CascadeSubjectDelete,
		DeleteErrorPolicy:    deletePolicy,
		StatusErrorPolicy:    statusPolicy,
	})

	if cfg.SeedPath != "" {
		loader, err := curriculum.NewLoader(cfg.SeedPath)
		if err != nil {
			slog.Error("failed to load seed curriculum", "path", cfg.SeedPath, "error", err)
			os.Exit(1)
		}
		if _, err := curriculum.Seed(ctx, svc, loader); err != nil {
			slog.Error("failed to seed curriculum", "error", err)
			os.Exit(1)
		}
		lists.Purge(ctx)
	}

	api, err := admin.NewHandler(svc, lists)
	if err != nil {
		slog.Error("failed to build API handler", "error", err)
		os.Exit(1)
	}
	mux := newMux(store)
	api.Register(mux)

	addr := fmt.Sprintf("%s:%d", cfg.Server.Host, cfg.Server.Port)
	srv := &http.Server{
		Addr:         addr,
		Handler:      mux,
		ReadTimeout:  10 * time.Second,
		WriteTimeout: 30 * time.Second,
		IdleTimeout:  60 * time.Second,
	}

	go func() {
		slog.Info("server starting",
			"addr", srv.Addr,
			"store", cfg.Store.Driver,
			"cache", cfg.Cache.Mode,
		)
		if err := srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			slog.Error("server error", "error", err)
			os.Exit(1)
		}
	}()

	<-ctx.Done()
	slog.Info("shutting down")

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()

	if err := srv.Shutdown(shutdownCtx); err != nil {
		slog.Error("shutdown error", "error", err)
	}
}

func newLogger(cfg config.LogConfig) *slog.Logger {
	var level slog.Level
	if err := level.UnmarshalText([]byte(cfg.Level)); err != nil {
		level = slog.LevelInfo
	}
	opts := &slog.HandlerOptions{Level: level}
	if strings.EqualFold(cfg.Format, "text") {
		return slog.New(slog.NewTextHandler(os.Stdout, opts))
	}
	return slog.New(slog.NewJSONHandler(os.Stdout, opts))
}

// openStore connects the configured backend and prepares its schema.
func openStore(ctx context.Context, cfg *config.Config) (hierarchy.Store, hierarchy.EventLogger, func(), error) {
	switch cfg.Store.Driver {
	case "postgres":
		db, err := database.New(ctx, cfg.Database.URL, cfg.Database.MaxConns, cfg.Database.MinConns)
		if err != nil {
			return nil, nil, nil, err
		}
		if err := db.Migrate(ctx, hierarchy.SchemaStatements()); err != nil {
			db.Close()
			return nil, nil, nil, err
		}
		store, err := hierarchy.NewPostgresStore(db.Pool)
		if err != nil {
			db.Close()
			return nil, nil, nil, err
		}
		return store, hierarchy.NewPostgresEventLogger(db.Pool), db.Close, nil

	case "mongo":
		db, err := mongodb.New(ctx, cfg.Mongo.URL, cfg.Mongo.Database)
		if err != nil {
			return nil, nil, nil, err
		}
		closeDB := func() {
			if err := db.Close(context.Background()); err != nil {
				slog.Warn("mongo disconnect failed", "error", err)
			}
		}
		store, err := hierarchy.NewMongoStore(db.Database)
		if err != nil {
			closeDB()
			return nil, nil, nil, err
		}
		if err := store.EnsureIndexes(ctx); err != nil {
			closeDB()
			return nil, nil, nil, err
		}
		return store, hierarchy.NopEventLogger{}, closeDB, nil

	default:
		slog.Warn("using in-memory store; data is lost on restart")
		return hierarchy.NewMemoryStore(), hierarchy.NopEventLogger{}, func() {}, nil
	}
}

// openListCache builds the listing cache for the configured mode.
func openListCache(ctx context.Context, cfg config.CacheConfig) (cache.ListCache, func(), error) {
	ttl := time.Duration(cfg.TTLSeconds) * time.Second
	switch cfg.Mode {
	case "redis":
		c, err := cache.New(ctx, cfg.URL)
		if err != nil {
			return nil, nil, err
		}
		return c.Lists("pai-admin:lists:", ttl), func() { _ = c.Close() }, nil
	case "memory":
		return cache.NewMemoryListCache(cfg.Size, ttl), func() {}, nil
	default:
		return cache.NopListCache{}, func() {}, nil
	}
}

type healthChecker interface {
	HealthCheck(ctx context.Context) error
}

// newMux creates the HTTP router with health check endpoints.
func newMux(store healthChecker) *http.ServeMux {
	mux := http.NewServeMux()
	mux.HandleFunc("GET /healthz", handleHealthz)
	mux.HandleFunc("GET /readyz", handleReadyz(store))
	return mux
}

func handleHealthz(w http.ResponseWriter, r *http.Request) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(http.StatusOK)
	w.Write([]byte(`{"status":"ok"}`))
}

func handleReadyz(store healthChecker) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		ctx, cancel := context.WithTimeout(r.Context(), 2*time.Second)
		defer cancel()

		w.Header().Set("Content-Type", "application/json")
		if err := store.HealthCheck(ctx); err != nil {
			slog.Warn("readiness check failed", "error", err)
			w.WriteHeader(http.StatusServiceUnavailable)
			w.Write([]byte(`{"status":"unavailable"}`))
			return
		}
		w.WriteHeader(http.StatusOK)
		w.Write([]byte(`{"status":"ready"}`))
	}
}
