package hierarchy_test

import (
	"context"
	"errors"
	"fmt"
	"testing"

	"github.com/p-n-ai/pai-admin/internal/hierarchy"
)

// tree holds one id per level of a fully populated branch.
type tree struct {
	ids  map[hierarchy.Kind]string
	path map[hierarchy.Kind]hierarchy.Path
}

func (tr tree) id(k hierarchy.Kind) string { return tr.ids[k] }

// buildBranch creates one node per level from an exam down to a definition.
// Names are suffixed so several branches can share a store.
func buildBranch(t *testing.T, svc *hierarchy.Service, suffix string) tree {
	t.Helper()
	tr := tree{ids: map[hierarchy.Kind]string{}, path: map[hierarchy.Kind]hierarchy.Path{}}
	var path hierarchy.Path
	for _, k := range hierarchy.Chain {
		n, err := svc.Create(t.Context(), hierarchy.CreateInput{
			Kind: k,
			Name: fmt.Sprintf("%s %s", k, suffix),
			Path: path,
		})
		if err != nil {
			t.Fatalf("Create(%s) error = %v", k, err)
		}
		tr.ids[k] = n.ID
		tr.path[k] = path
		path = path.Child(n.ID)
	}
	return tr
}

// addChild creates a node of kind under the given branch level.
func addChild(t *testing.T, svc *hierarchy.Service, tr tree, kind hierarchy.Kind, name string, position int) *hierarchy.Node {
	t.Helper()
	path := tr.path[kind.Parent()].Child(tr.id(kind.Parent()))
	n, err := svc.Create(t.Context(), hierarchy.CreateInput{Kind: kind, Name: name, Path: path, Position: position})
	if err != nil {
		t.Fatalf("Create(%s %q) error = %v", kind, name, err)
	}
	return n
}

func countAll(t *testing.T, store hierarchy.Store, kind hierarchy.Kind) int {
	t.Helper()
	nodes, err := store.List(t.Context(), kind, hierarchy.All())
	if err != nil {
		t.Fatalf("List(%s) error = %v", kind, err)
	}
	return len(nodes)
}

var errInjected = errors.New("injected failure")

// failingStore fails DeleteMany, SetStatus and FindIDs for the listed kinds.
type failingStore struct {
	hierarchy.Store
	failDelete map[hierarchy.Kind]bool
	failStatus map[hierarchy.Kind]bool
	failFind   map[hierarchy.Kind]bool
}

func (s *failingStore) FindIDs(ctx context.Context, kind hierarchy.Kind, f hierarchy.Filter) ([]string, error) {
	if s.failFind[kind] {
		return nil, errInjected
	}
	return s.Store.FindIDs(ctx, kind, f)
}

func (s *failingStore) DeleteMany(ctx context.Context, kind hierarchy.Kind, f hierarchy.Filter) (int64, error) {
	if s.failDelete[kind] {
		return 0, errInjected
	}
	return s.Store.DeleteMany(ctx, kind, f)
}

func (s *failingStore) SetStatus(ctx context.Context, kind hierarchy.Kind, f hierarchy.Filter, status hierarchy.Status) (int64, error) {
	if s.failStatus[kind] {
		return 0, errInjected
	}
	return s.Store.SetStatus(ctx, kind, f, status)
}
