package graph

import (
	"context"
	"testing"
	"time"

	"github.com/binnacle-dev/binnacle/internal/cache"
	"github.com/binnacle-dev/binnacle/internal/storage"
	"github.com/binnacle-dev/binnacle/internal/types"
)

func newTestCache(t *testing.T) *cache.Cache {
	t.Helper()
	backend := storage.NewFileBackend(t.TempDir())
	if err := backend.Init(context.Background()); err != nil {
		t.Fatalf("init: %v", err)
	}
	c, err := cache.Open(context.Background(), backend)
	if err != nil {
		t.Fatalf("open: %v", err)
	}
	return c
}

func seedTask(t *testing.T, c *cache.Cache, id string) {
	t.Helper()
	task := &types.Task{Core: types.Core{ID: id, Title: id, CreatedAt: time.Now(), UpdatedAt: time.Now()}, Status: types.StatusPending}
	if err := c.PutTask(context.Background(), task); err != nil {
		t.Fatalf("seed task %s: %v", id, err)
	}
}

func seedBug(t *testing.T, c *cache.Cache, id string) {
	t.Helper()
	bug := &types.Bug{Core: types.Core{ID: id, Title: id}, Status: types.StatusPending, Severity: types.SeverityLow}
	if err := c.PutBug(context.Background(), bug); err != nil {
		t.Fatalf("seed bug %s: %v", id, err)
	}
}

func TestValidateRejectsSelfLink(t *testing.T) {
	c := newTestCache(t)
	seedTask(t, c, "bn-0001")

	err := Validate(c, &types.Edge{ID: "bne-1", Source: "bn-0001", Target: "bn-0001", EdgeType: types.EdgeBlocks})
	if err == nil {
		t.Fatalf("expected self-link rejection")
	}
}

func TestValidateRequiresReasonOnDependsOn(t *testing.T) {
	c := newTestCache(t)
	seedTask(t, c, "bn-0001")
	seedTask(t, c, "bn-0002")

	err := Validate(c, &types.Edge{ID: "bne-1", Source: "bn-0001", Target: "bn-0002", EdgeType: types.EdgeDependsOn})
	if err == nil {
		t.Fatalf("expected reason requirement to fire")
	}
	err = Validate(c, &types.Edge{ID: "bne-1", Source: "bn-0001", Target: "bn-0002", EdgeType: types.EdgeDependsOn, Reason: "needs the schema first"})
	if err != nil {
		t.Fatalf("expected valid depends_on edge, got %v", err)
	}
}

func TestValidateFixesRequiresTaskToBug(t *testing.T) {
	c := newTestCache(t)
	seedTask(t, c, "bn-0001")
	seedBug(t, c, "bn-0002")

	if err := Validate(c, &types.Edge{ID: "bne-1", Source: "bn-0001", Target: "bn-0002", EdgeType: types.EdgeFixes}); err != nil {
		t.Fatalf("expected task->bug fixes edge to validate, got %v", err)
	}
	if err := Validate(c, &types.Edge{ID: "bne-2", Source: "bn-0002", Target: "bn-0001", EdgeType: types.EdgeFixes}); err == nil {
		t.Fatalf("expected bug->task fixes edge to fail")
	}
}

func TestValidateChildOfEnforcesSingleParent(t *testing.T) {
	c := newTestCache(t)
	seedTask(t, c, "bn-0001")
	seedTask(t, c, "bn-0002")
	seedTask(t, c, "bn-0003")

	first := &types.Edge{ID: "bne-1", Source: "bn-0001", Target: "bn-0002", EdgeType: types.EdgeChildOf, CreatedAt: time.Now()}
	if err := Validate(c, first); err != nil {
		t.Fatalf("first child_of should validate: %v", err)
	}
	if err := c.PutEdge(context.Background(), first); err != nil {
		t.Fatalf("put edge: %v", err)
	}

	second := &types.Edge{ID: "bne-2", Source: "bn-0001", Target: "bn-0003", EdgeType: types.EdgeChildOf}
	if err := Validate(c, second); err == nil {
		t.Fatalf("expected second parent to be rejected")
	}
}

func TestValidateSingleParentSpansParentOfAndChildOf(t *testing.T) {
	c := newTestCache(t)
	seedTask(t, c, "bn-m1")
	seedTask(t, c, "bn-m2")
	seedTask(t, c, "bn-t1")

	viaParentOf := &types.Edge{ID: "bne-1", Source: "bn-m1", Target: "bn-t1", EdgeType: types.EdgeParentOf, CreatedAt: time.Now()}
	if err := Validate(c, viaParentOf); err != nil {
		t.Fatalf("first parent_of should validate: %v", err)
	}
	if err := c.PutEdge(context.Background(), viaParentOf); err != nil {
		t.Fatalf("put edge: %v", err)
	}

	// bn-t1 already has a parent (bn-m1, via parent_of); a child_of edge
	// naming a second parent must be rejected even though it's a different
	// edge type and bn-t1 has no child_of edges of its own yet.
	viaChildOf := &types.Edge{ID: "bne-2", Source: "bn-t1", Target: "bn-m2", EdgeType: types.EdgeChildOf}
	if err := Validate(c, viaChildOf); err == nil {
		t.Fatalf("expected child_of to reject a second parent already set via parent_of")
	}
}

func TestDetectCycleCatchesDependsOnLoop(t *testing.T) {
	c := newTestCache(t)
	seedTask(t, c, "bn-0001")
	seedTask(t, c, "bn-0002")
	seedTask(t, c, "bn-0003")

	edges := []*types.Edge{
		{ID: "bne-1", Source: "bn-0001", Target: "bn-0002", EdgeType: types.EdgeDependsOn, Reason: "r"},
		{ID: "bne-2", Source: "bn-0002", Target: "bn-0003", EdgeType: types.EdgeDependsOn, Reason: "r"},
	}
	for _, e := range edges {
		if err := c.PutEdge(context.Background(), e); err != nil {
			t.Fatalf("put edge: %v", err)
		}
	}

	candidate := &types.Edge{ID: "bne-3", Source: "bn-0003", Target: "bn-0001", EdgeType: types.EdgeDependsOn, Reason: "r"}
	if err := DetectCycle(c, candidate); err == nil {
		t.Fatalf("expected cycle to be detected")
	}
}

func TestComponentsGroupsConnectedEntities(t *testing.T) {
	c := newTestCache(t)
	seedTask(t, c, "bn-0001")
	seedTask(t, c, "bn-0002")
	seedTask(t, c, "bn-0003") // isolated

	if err := c.PutEdge(context.Background(), &types.Edge{ID: "bne-1", Source: "bn-0001", Target: "bn-0002", EdgeType: types.EdgeRelatedTo}); err != nil {
		t.Fatalf("put edge: %v", err)
	}

	groups := Components(c)
	sizes := map[int]int{}
	for _, members := range groups {
		sizes[len(members)]++
	}
	if sizes[2] != 1 || sizes[1] != 1 {
		t.Fatalf("expected one pair and one singleton, got %+v", groups)
	}
}
