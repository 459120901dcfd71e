package status

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

func seedTask(t *testing.T, c *cache.Cache, id string, status types.Status) {
	t.Helper()
	task := &types.Task{Core: types.Core{ID: id, Title: id, CreatedAt: time.Now(), UpdatedAt: time.Now()}, Status: status}
	if err := c.PutTask(context.Background(), task); err != nil {
		t.Fatalf("seed task %s: %v", id, err)
	}
}

func TestStartProgressBlockedByIncompleteDependency(t *testing.T) {
	c := newTestCache(t)
	seedTask(t, c, "bn-0001", types.StatusPending)
	seedTask(t, c, "bn-0002", types.StatusPending)
	if err := c.PutEdge(context.Background(), &types.Edge{
		ID: "bne-1", Source: "bn-0001", Target: "bn-0002", EdgeType: types.EdgeDependsOn, Reason: "r",
	}); err != nil {
		t.Fatalf("put edge: %v", err)
	}

	if err := StartProgress(context.Background(), c, "bn-0001", "", false); err == nil {
		t.Fatalf("expected blocked start to fail")
	}
	if err := StartProgress(context.Background(), c, "bn-0001", "", true); err != nil {
		t.Fatalf("expected forced start to succeed: %v", err)
	}
	if c.Tasks["bn-0001"].Status != types.StatusInProgress {
		t.Fatalf("expected in_progress, got %s", c.Tasks["bn-0001"].Status)
	}
}

func TestCloseRunsPromotionSweep(t *testing.T) {
	c := newTestCache(t)
	seedTask(t, c, "bn-0001", types.StatusPending)
	seedTask(t, c, "bn-0002", types.StatusPartial)
	if err := c.PutEdge(context.Background(), &types.Edge{
		ID: "bne-1", Source: "bn-0002", Target: "bn-0001", EdgeType: types.EdgeDependsOn, Reason: "r",
	}); err != nil {
		t.Fatalf("put edge: %v", err)
	}

	if err := Close(context.Background(), c, "bn-0001", "finished", false); err != nil {
		t.Fatalf("close: %v", err)
	}
	if c.Tasks["bn-0002"].Status != types.StatusDone {
		t.Fatalf("expected dependent promoted to done, got %s", c.Tasks["bn-0002"].Status)
	}
}

func TestOnDependencyAddedDemotesClosedItem(t *testing.T) {
	c := newTestCache(t)
	seedTask(t, c, "bn-0001", types.StatusDone)
	seedTask(t, c, "bn-0002", types.StatusPending)

	if err := OnDependencyAdded(context.Background(), c, "bn-0001", "bn-0002"); err != nil {
		t.Fatalf("on dependency added: %v", err)
	}
	if c.Tasks["bn-0001"].Status != types.StatusPartial {
		t.Fatalf("expected partial, got %s", c.Tasks["bn-0001"].Status)
	}
	if c.Tasks["bn-0001"].ClosedAt != nil {
		t.Fatalf("expected closed_at cleared")
	}
}

func TestCancelledCountsAsComplete(t *testing.T) {
	c := newTestCache(t)
	seedTask(t, c, "bn-0001", types.StatusPending)
	seedTask(t, c, "bn-0002", types.StatusPending)
	if err := c.PutEdge(context.Background(), &types.Edge{
		ID: "bne-1", Source: "bn-0001", Target: "bn-0002", EdgeType: types.EdgeDependsOn, Reason: "r",
	}); err != nil {
		t.Fatalf("put edge: %v", err)
	}

	if err := Close(context.Background(), c, "bn-0002", "won't fix", true); err != nil {
		t.Fatalf("close cancelled: %v", err)
	}
	if err := StartProgress(context.Background(), c, "bn-0001", "", false); err != nil {
		t.Fatalf("expected start to succeed once dependency cancelled: %v", err)
	}
}
