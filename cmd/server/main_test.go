package main

import (
	"context"
	"errors"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/p-n-ai/pai-admin/internal/hierarchy"
	"github.com/p-n-ai/pai-admin/internal/platform/cache"
	"github.com/p-n-ai/pai-admin/internal/platform/config"
)

type downStore struct{}

func (downStore) HealthCheck(context.Context) error { return errors.New("connection refused") }

func TestHealthEndpoints(t *testing.T) {
	tests := []struct {
		name       string
		store      healthChecker
		path       string
		wantStatus int
		wantBody   string
	}{
		{
			name:       "healthz returns 200",
			store:      hierarchy.NewMemoryStore(),
			path:       "/healthz",
			wantStatus: http.StatusOK,
			wantBody:   `{"status":"ok"}`,
		},
		{
			name:       "readyz returns 200",
			store:      hierarchy.NewMemoryStore(),
			path:       "/readyz",
			wantStatus: http.StatusOK,
			wantBody:   `{"status":"ready"}`,
		},
		{
			name:       "readyz returns 503 when store is down",
			store:      downStore{},
			path:       "/readyz",
			wantStatus: http.StatusServiceUnavailable,
			wantBody:   `{"status":"unavailable"}`,
		},
		{
			name:       "healthz ignores store",
			store:      downStore{},
			path:       "/healthz",
			wantStatus: http.StatusOK,
			wantBody:   `{"status":"ok"}`,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			mux := newMux(tt.store)
			req := httptest.NewRequest(http.MethodGet, tt.path, nil)
			rec := httptest.NewRecorder()

			mux.ServeHTTP(rec, req)

			if rec.Code != tt.wantStatus {
				t.Errorf("status = %d, want %d", rec.Code, tt.wantStatus)
			}
			if rec.Body.String() != tt.wantBody {
				t.Errorf("body = %q, want %q", rec.Body.String(), tt.wantBody)
			}
		})
	}
}

func TestOpenStore_Memory(t *testing.T) {
	cfg := &config.Config{Store: config.StoreConfig{Driver: "memory"}}

	store, events, closeFn, err := openStore(t.Context(), cfg)
	if err != nil {
		t.Fatalf("openStore() error = %v", err)
	}
	defer closeFn()

	if _, ok := store.(*hierarchy.MemoryStore); !ok {
		t.Errorf("store = %T, want *hierarchy.MemoryStore", store)
	}
	if _, ok := events.(hierarchy.NopEventLogger); !ok {
		t.Errorf("events = %T, want NopEventLogger", events)
	}
}

func TestOpenListCache(t *testing.T) {
	tests := []struct {
		mode string
		want string
	}{
		{"memory", "*cache.MemoryListCache"},
		{"off", "cache.NopListCache"},
	}
	for _, tt := range tests {
		t.Run(tt.mode, func(t *testing.T) {
			lists, closeFn, err := openListCache(t.Context(), config.CacheConfig{Mode: tt.mode, Size: 8, TTLSeconds: 5})
			if err != nil {
				t.Fatalf("openListCache() error = %v", err)
			}
			defer closeFn()

			switch lists.(type) {
			case *cache.MemoryListCache:
				if tt.want != "*cache.MemoryListCache" {
					t.Errorf("lists = %T, want %s", lists, tt.want)
				}
			case cache.NopListCache:
				if tt.want != "cache.NopListCache" {
					t.Errorf("lists = %T, want %s", lists, tt.want)
				}
			default:
				t.Errorf("lists = %T, want %s", lists, tt.want)
			}
		})
	}
}

func TestOpenListCache_RedisUnreachable(t *testing.T) {
	if testing.Short() {
		t.Skip("skipping unreachable host test in short mode")
	}
	_, _, err := openListCache(t.Context(), config.CacheConfig{Mode: "redis", URL: "redis://localhost:59998", Size: 8, TTLSeconds: 5})
	if err == nil {
		t.Fatal("openListCache(redis) should fail for unreachable host")
	}
}

func TestNewLogger(t *testing.T) {
	tests := []struct {
		cfg       config.LogConfig
		wantDebug bool
	}{
		{config.LogConfig{Level: "debug", Format: "json"}, true},
		{config.LogConfig{Level: "warn", Format: "text"}, false},
		{config.LogConfig{Level: "nonsense", Format: "json"}, false},
	}
	for _, tt := range tests {
		logger := newLogger(tt.cfg)
		if got := logger.Enabled(t.Context(), slog.LevelDebug); got != tt.wantDebug {
			t.Errorf("newLogger(%+v) debug enabled = %v, want %v", tt.cfg, got, tt.wantDebug)
		}
	}
}
