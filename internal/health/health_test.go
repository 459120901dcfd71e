package health

import (
	"context"
	"testing"
	"time"

	"github.com/binnacle-dev/binnacle/internal/cache"
	"github.com/binnacle-dev/binnacle/internal/storage"
	"github.com/binnacle-dev/binnacle/internal/types"
)

func newTestCache(t *testing.T) (*cache.Cache, storage.Backend) {
	t.Helper()
	backend := storage.NewFileBackend(t.TempDir())
	if err := backend.Init(context.Background()); err != nil {
		t.Fatalf("init: %v", err)
	}
	c, err := cache.Open(context.Background(), backend)
	if err != nil {
		t.Fatalf("open: %v", err)
	}
	return c, backend
}

func TestCheckDetectsOrphanEdges(t *testing.T) {
	c, backend := newTestCache(t)
	if err := c.PutTask(context.Background(), &types.Task{Core: types.Core{ID: "bn-0001", Title: "a"}, Status: types.StatusPending}); err != nil {
		t.Fatalf("put task: %v", err)
	}
	if err := c.PutEdge(context.Background(), &types.Edge{ID: "bne-1", Source: "bn-0001", Target: "bn-9999", EdgeType: types.EdgeRelatedTo}); err != nil {
		t.Fatalf("put edge: %v", err)
	}

	report, err := Check(context.Background(), c, backend)
	if err != nil {
		t.Fatalf("check: %v", err)
	}
	if len(report.OrphanEdges) != 1 || report.OrphanEdges[0] != "bne-1" {
		t.Fatalf("expected orphan edge detected, got %+v", report.OrphanEdges)
	}
}

func TestMigrateLegacyIDsRewritesPrefixAndEdges(t *testing.T) {
	c, _ := newTestCache(t)
	if err := c.PutIdea(context.Background(), &types.Idea{Core: types.Core{ID: "bni-dead", Title: "legacy"}, Status: types.IdeaSeed}); err != nil {
		t.Fatalf("put idea: %v", err)
	}
	if err := c.PutTask(context.Background(), &types.Task{Core: types.Core{ID: "bn-0001", Title: "a"}, Status: types.StatusPending}); err != nil {
		t.Fatalf("put task: %v", err)
	}
	if err := c.PutEdge(context.Background(), &types.Edge{ID: "bne-1", Source: "bn-0001", Target: "bni-dead", EdgeType: types.EdgeRelatedTo}); err != nil {
		t.Fatalf("put edge: %v", err)
	}

	migrated, err := MigrateLegacyIDs(context.Background(), c)
	if err != nil {
		t.Fatalf("migrate: %v", err)
	}
	if migrated != 1 {
		t.Fatalf("expected 1 migration, got %d", migrated)
	}
	if _, ok := c.Ideas["bni-dead"]; ok {
		t.Fatalf("legacy id should be gone")
	}
	if _, ok := c.Ideas["bn-dead"]; !ok {
		t.Fatalf("expected canonical id present")
	}
	edges := c.EdgesOfType(types.EdgeRelatedTo)
	if len(edges) != 1 || edges[0].Target != "bn-dead" {
		t.Fatalf("expected edge target rewritten, got %+v", edges)
	}
}

func TestMigrateEmbeddedDependenciesCreatesEdges(t *testing.T) {
	c, _ := newTestCache(t)
	if err := c.PutTask(context.Background(), &types.Task{Core: types.Core{ID: "bn-0002", Title: "b"}, Status: types.StatusPending}); err != nil {
		t.Fatalf("put dep: %v", err)
	}
	if err := c.PutTask(context.Background(), &types.Task{
		Core: types.Core{ID: "bn-0001", Title: "a", CreatedAt: time.Now()}, Status: types.StatusPending,
		DependsOn: []string{"bn-0002"},
	}); err != nil {
		t.Fatalf("put task: %v", err)
	}

	created, err := MigrateEmbeddedDependencies(context.Background(), c)
	if err != nil {
		t.Fatalf("migrate deps: %v", err)
	}
	if created != 1 {
		t.Fatalf("expected 1 edge created, got %d", created)
	}
	found := false
	for _, e := range c.EdgesOfType(types.EdgeDependsOn) {
		if e.Source == "bn-0001" && e.Target == "bn-0002" {
			found = true
		}
	}
	if !found {
		t.Fatalf("expected depends_on edge from migrated list")
	}
}
