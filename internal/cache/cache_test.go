package cache

import (
	"context"
	"testing"
	"time"

	"github.com/binnacle-dev/binnacle/internal/storage"
	"github.com/binnacle-dev/binnacle/internal/types"
)

func newTestCache(t *testing.T) (*Cache, storage.Backend) {
	t.Helper()
	backend := storage.NewFileBackend(t.TempDir())
	if err := backend.Init(context.Background()); err != nil {
		t.Fatalf("init backend: %v", err)
	}
	c, err := Open(context.Background(), backend)
	if err != nil {
		t.Fatalf("open cache: %v", err)
	}
	return c, backend
}

func TestPutTaskThenRebuildRoundTrips(t *testing.T) {
	ctx := context.Background()
	c, backend := newTestCache(t)

	task := &types.Task{
		Core: types.Core{ID: "bn-aaaa", Title: "write docs", CreatedAt: time.Now(), UpdatedAt: time.Now()},
		Status:   types.StatusPending,
		Priority: 2,
	}
	if err := c.PutTask(ctx, task); err != nil {
		t.Fatalf("put task: %v", err)
	}

	rebuilt, err := Open(ctx, backend)
	if err != nil {
		t.Fatalf("reopen: %v", err)
	}
	got, ok := rebuilt.Tasks["bn-aaaa"]
	if !ok {
		t.Fatalf("task missing after rebuild")
	}
	if got.Title != "write docs" || got.Status != types.StatusPending {
		t.Fatalf("unexpected task after rebuild: %+v", got)
	}
}

func TestDeleteEntityTombstonesAcrossRebuild(t *testing.T) {
	ctx := context.Background()
	c, backend := newTestCache(t)

	bug := &types.Bug{Core: types.Core{ID: "bn-bbbb", Title: "crash"}, Status: types.StatusPending, Severity: types.SeverityHigh}
	if err := c.PutBug(ctx, bug); err != nil {
		t.Fatalf("put bug: %v", err)
	}
	if err := c.DeleteEntity(ctx, "bn-bbbb", types.KindBug); err != nil {
		t.Fatalf("delete: %v", err)
	}
	if _, ok := c.Bugs["bn-bbbb"]; ok {
		t.Fatalf("bug should be gone from in-memory index")
	}

	rebuilt, err := Open(ctx, backend)
	if err != nil {
		t.Fatalf("reopen: %v", err)
	}
	if _, ok := rebuilt.Bugs["bn-bbbb"]; ok {
		t.Fatalf("tombstoned bug resurrected after rebuild")
	}
}

func TestEdgeIndexesTrackSourceTargetType(t *testing.T) {
	ctx := context.Background()
	c, _ := newTestCache(t)

	edge := &types.Edge{
		ID: "bne-0001", Source: "bn-aaaa", Target: "bn-bbbb",
		EdgeType: types.EdgeDependsOn, CreatedAt: time.Now(),
	}
	if err := c.PutEdge(ctx, edge); err != nil {
		t.Fatalf("put edge: %v", err)
	}

	if got := c.EdgesFrom("bn-aaaa"); len(got) != 1 || got[0].ID != "bne-0001" {
		t.Fatalf("EdgesFrom mismatch: %+v", got)
	}
	if got := c.EdgesTo("bn-bbbb"); len(got) != 1 {
		t.Fatalf("EdgesTo mismatch: %+v", got)
	}
	if got := c.EdgesOfType(types.EdgeDependsOn); len(got) != 1 {
		t.Fatalf("EdgesOfType mismatch: %+v", got)
	}

	if err := c.RemoveEdge(ctx, "bne-0001"); err != nil {
		t.Fatalf("remove edge: %v", err)
	}
	if got := c.EdgesFrom("bn-aaaa"); len(got) != 0 {
		t.Fatalf("expected no edges after removal, got %+v", got)
	}
}

func TestGetEntityFindsAcrossKinds(t *testing.T) {
	ctx := context.Background()
	c, _ := newTestCache(t)

	idea := &types.Idea{Core: types.Core{ID: "bn-cccc", Title: "maybe someday"}, Status: types.IdeaSeed}
	if err := c.PutIdea(ctx, idea); err != nil {
		t.Fatalf("put idea: %v", err)
	}

	entity, kind, ok := c.GetEntity("bn-cccc")
	if !ok || kind != types.KindIdea {
		t.Fatalf("expected idea kind, got %v ok=%v", kind, ok)
	}
	if entity.GetCore().Title != "maybe someday" {
		t.Fatalf("unexpected entity: %+v", entity)
	}

	if _, _, ok := c.GetEntity("bn-missing"); ok {
		t.Fatalf("expected miss for unknown id")
	}
}

func TestLegacyPrefixCanonicalizedOnRebuild(t *testing.T) {
	ctx := context.Background()
	c, backend := newTestCache(t)

	idea := &types.Idea{Core: types.Core{ID: "bni-dead", Title: "legacy prefixed"}, Status: types.IdeaSeed}
	if err := c.PutIdea(ctx, idea); err != nil {
		t.Fatalf("put idea: %v", err)
	}

	rebuilt, err := Open(ctx, backend)
	if err != nil {
		t.Fatalf("reopen: %v", err)
	}
	if _, ok := rebuilt.Ideas["bn-dead"]; !ok {
		t.Fatalf("expected legacy id canonicalized to bn- prefix")
	}
}

func TestSetConfigRoundTrips(t *testing.T) {
	ctx := context.Background()
	c, backend := newTestCache(t)

	if err := c.SetConfig(ctx, "storage_backend", "git-notes"); err != nil {
		t.Fatalf("set config: %v", err)
	}
	if got, ok := c.GetConfig("storage_backend"); !ok || got != "git-notes" {
		t.Fatalf("unexpected config: %q ok=%v", got, ok)
	}

	rebuilt, err := Open(ctx, backend)
	if err != nil {
		t.Fatalf("reopen: %v", err)
	}
	if got, ok := rebuilt.GetConfig("storage_backend"); !ok || got != "git-notes" {
		t.Fatalf("config did not survive rebuild: %q ok=%v", got, ok)
	}
}
