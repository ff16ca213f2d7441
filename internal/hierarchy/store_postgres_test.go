package hierarchy_test

import (
	"errors"
	"testing"

	"github.com/testcontainers/testcontainers-go"
	"github.com/testcontainers/testcontainers-go/modules/postgres"

	"github.com/p-n-ai/pai-admin/internal/hierarchy"
	"github.com/p-n-ai/pai-admin/internal/platform/database"
)

func newPostgresStore(t *testing.T) (*hierarchy.PostgresStore, *database.DB) {
	t.Helper()
	if testing.Short() {
		t.Skip("skipping postgres integration test in short mode")
	}

	ctx := t.Context()
	ctr, err := postgres.Run(ctx, "postgres:16-alpine",
		postgres.WithDatabase("pai_admin"),
		postgres.WithUsername("pai"),
		postgres.WithPassword("pai"),
		postgres.BasicWaitStrategies(),
	)
	testcontainers.CleanupContainer(t, ctr)
	if err != nil {
		t.Fatalf("start postgres container: %v", err)
	}

	url, err := ctr.ConnectionString(ctx, "sslmode=disable")
	if err != nil {
		t.Fatalf("ConnectionString() error = %v", err)
	}
	db, err := database.New(ctx, url, 5, 1)
	if err != nil {
		t.Fatalf("database.New() error = %v", err)
	}
	t.Cleanup(db.Close)

	if err := db.Migrate(ctx, hierarchy.SchemaStatements()); err != nil {
		t.Fatalf("Migrate() error = %v", err)
	}
	// Statements are idempotent.
	if err := db.Migrate(ctx, hierarchy.SchemaStatements()); err != nil {
		t.Fatalf("second Migrate() error = %v", err)
	}

	store, err := hierarchy.NewPostgresStore(db.Pool)
	if err != nil {
		t.Fatalf("NewPostgresStore() error = %v", err)
	}
	return store, db
}

func TestNewPostgresStore_NilPool(t *testing.T) {
	if _, err := hierarchy.NewPostgresStore(nil); err == nil {
		t.Error("NewPostgresStore(nil) should fail")
	}
}

func TestPostgresStore_Contract(t *testing.T) {
	store, _ := newPostgresStore(t)
	testStoreContract(t, store)
}

func TestPostgresStore_Engine(t *testing.T) {
	store, db := newPostgresStore(t)
	events := hierarchy.NewPostgresEventLogger(db.Pool)
	svc := hierarchy.NewService(hierarchy.ServiceConfig{Store: store, Events: events})
	tr := buildBranch(t, svc, "pg")

	var ids []string
	for i, name := range []string{"Kinematics", "Dynamics", "Energy"} {
		ids = append(ids, addChild(t, svc, tr, hierarchy.KindChapter, name, i+2).ID)
	}

	res, err := svc.Reorder(t.Context(), hierarchy.KindChapter, []hierarchy.SiblingUpdate{
		{ID: ids[2], Position: 2},
		{ID: ids[1], Position: 3},
		{ID: ids[0], Position: 4},
	})
	if err != nil {
		t.Fatalf("Reorder() error = %v", err)
	}
	if res.Modified != 2 {
		t.Errorf("Modified = %d, want 2", res.Modified)
	}
	got, err := svc.Get(t.Context(), hierarchy.KindChapter, ids[2])
	if err != nil {
		t.Fatalf("Get() error = %v", err)
	}
	if got.Position != 2 {
		t.Errorf("Energy position = %d, want 2", got.Position)
	}

	if _, err := svc.SetStatus(t.Context(), hierarchy.KindExam, tr.id(hierarchy.KindExam), hierarchy.StatusInactive); err != nil {
		t.Fatalf("SetStatus() error = %v", err)
	}
	def, err := svc.Get(t.Context(), hierarchy.KindDefinition, tr.id(hierarchy.KindDefinition))
	if err != nil {
		t.Fatalf("Get(definition) error = %v", err)
	}
	if def.Status != hierarchy.StatusInactive {
		t.Errorf("definition status = %q, want inactive", def.Status)
	}

	del, err := svc.DeleteNode(t.Context(), hierarchy.KindExam, tr.id(hierarchy.KindExam))
	if err != nil {
		t.Fatalf("DeleteNode() error = %v", err)
	}
	if got := del.Cascade["chapters"]; got != 4 {
		t.Errorf("Cascade[chapters] = %d, want 4", got)
	}
	if _, err := svc.Get(t.Context(), hierarchy.KindTopic, tr.id(hierarchy.KindTopic)); !errors.Is(err, hierarchy.ErrNotFound) {
		t.Errorf("Get(topic) error = %v, want ErrNotFound", err)
	}

	var audited int
	if err := db.Pool.QueryRow(t.Context(), `SELECT COUNT(*) FROM audit_events`).Scan(&audited); err != nil {
		t.Fatalf("count audit events: %v", err)
	}
	if audited == 0 {
		t.Error("audit_events is empty, want recorded mutations")
	}
}
