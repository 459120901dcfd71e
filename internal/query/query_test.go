package query

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

func seedTask(t *testing.T, c *cache.Cache, id string, status types.Status, priority int) {
	t.Helper()
	task := &types.Task{
		Core:     types.Core{ID: id, Title: id, CreatedAt: time.Now(), UpdatedAt: time.Now()},
		Status:   status,
		Priority: priority,
	}
	if err := c.PutTask(context.Background(), task); err != nil {
		t.Fatalf("seed task %s: %v", id, err)
	}
}

func TestReadyListExcludesBlockedItems(t *testing.T) {
	c := newTestCache(t)
	seedTask(t, c, "bn-0001", types.StatusPending, 1)
	seedTask(t, c, "bn-0002", types.StatusPending, 1)
	if err := c.PutEdge(context.Background(), &types.Edge{
		ID: "bne-1", Source: "bn-0001", Target: "bn-0002", EdgeType: types.EdgeDependsOn, Reason: "r",
	}); err != nil {
		t.Fatalf("put edge: %v", err)
	}

	ready := ReadyList(c)
	if len(ready) != 1 || ready[0].ID != "bn-0002" {
		t.Fatalf("expected only bn-0002 ready, got %+v", ready)
	}
}

func TestReadyListSortsByPriorityThenAge(t *testing.T) {
	c := newTestCache(t)
	seedTask(t, c, "bn-p0", types.StatusPending, 0)
	seedTask(t, c, "bn-p4", types.StatusPending, 4)

	ready := ReadyList(c)
	if len(ready) != 2 || ready[0].ID != "bn-p0" {
		t.Fatalf("expected ascending priority (p0 first), got %+v", ready)
	}

	older := time.Now().Add(-time.Hour)
	for _, task := range []*types.Task{
		{Core: types.Core{ID: "bn-new", Title: "bn-new", CreatedAt: time.Now(), UpdatedAt: time.Now()}, Status: types.StatusPending, Priority: 2},
		{Core: types.Core{ID: "bn-old", Title: "bn-old", CreatedAt: older, UpdatedAt: older}, Status: types.StatusPending, Priority: 2},
	} {
		if err := c.PutTask(context.Background(), task); err != nil {
			t.Fatalf("seed task %s: %v", task.ID, err)
		}
	}
	ready = ReadyList(c)
	if len(ready) != 4 || ready[1].ID != "bn-old" || ready[2].ID != "bn-new" {
		t.Fatalf("expected equal priorities ordered oldest first, got %+v", ready)
	}
}

func TestBlockedListReportsBlockers(t *testing.T) {
	c := newTestCache(t)
	seedTask(t, c, "bn-0001", types.StatusPending, 1)
	seedTask(t, c, "bn-0002", types.StatusPending, 1)
	if err := c.PutEdge(context.Background(), &types.Edge{
		ID: "bne-1", Source: "bn-0001", Target: "bn-0002", EdgeType: types.EdgeDependsOn, Reason: "r",
	}); err != nil {
		t.Fatalf("put edge: %v", err)
	}

	blocked := BlockedList(c)
	if len(blocked) != 1 || blocked[0].ID != "bn-0001" || len(blocked[0].Blockers) != 1 {
		t.Fatalf("unexpected blocked list: %+v", blocked)
	}
}

func TestShowEntityReportsKindMismatchAsResult(t *testing.T) {
	c := newTestCache(t)
	seedTask(t, c, "bn-0001", types.StatusPending, 1)

	// spec §4.4: a kind mismatch is a result, not an error — the actual
	// entity comes back along with a note, never a failed lookup.
	mismatch, err := ShowEntity(c, "bn-0001", types.KindBug)
	if err != nil {
		t.Fatalf("kind mismatch must not be an error: %v", err)
	}
	if !mismatch.KindMismatch || mismatch.Kind != types.KindTask {
		t.Fatalf("expected kind mismatch result carrying the actual task, got %+v", mismatch)
	}

	show, err := ShowEntity(c, "bn-0001", types.KindTask)
	if err != nil {
		t.Fatalf("expected task show to succeed: %v", err)
	}
	if show.Kind != types.KindTask || show.KindMismatch {
		t.Fatalf("unexpected kind: %+v", show)
	}
}

func TestShowEntityHydratesNonBlockingEdges(t *testing.T) {
	c := newTestCache(t)
	seedTask(t, c, "bn-0001", types.StatusPending, 1)
	seedTask(t, c, "bn-0002", types.StatusInProgress, 1)
	if err := c.PutEdge(context.Background(), &types.Edge{
		ID: "bne-1", Source: "bn-0001", Target: "bn-0002", EdgeType: types.EdgeRelatedTo,
	}); err != nil {
		t.Fatalf("put edge: %v", err)
	}

	show, err := ShowEntity(c, "bn-0001", "")
	if err != nil {
		t.Fatalf("show: %v", err)
	}
	if len(show.Edges) != 1 {
		t.Fatalf("expected one hydrated edge, got %+v", show.Edges)
	}
	got := show.Edges[0]
	if got.Direction != DirectionOutgoing || got.RelatedID != "bn-0002" || got.RelatedTitle != "bn-0002" {
		t.Fatalf("unexpected hydrated edge: %+v", got)
	}
	if !got.HasStatus || got.RelatedStatus != types.StatusInProgress {
		t.Fatalf("expected related status to be hydrated, got %+v", got)
	}

	reverse, err := ShowEntity(c, "bn-0002", "")
	if err != nil {
		t.Fatalf("show: %v", err)
	}
	if len(reverse.Edges) != 1 || reverse.Edges[0].Direction != DirectionIncoming || reverse.Edges[0].RelatedID != "bn-0001" {
		t.Fatalf("expected incoming edge back to bn-0001, got %+v", reverse.Edges)
	}
}
