package snapshot

import (
	"bytes"
	"context"
	"errors"
	"testing"
	"time"

	"github.com/binnacle-dev/binnacle/internal/cache"
	"github.com/binnacle-dev/binnacle/internal/storage"
	"github.com/binnacle-dev/binnacle/internal/types"
)

func TestExportImportRoundTrip(t *testing.T) {
	ctx := context.Background()
	srcBackend := storage.NewFileBackend(t.TempDir())
	if err := srcBackend.Init(ctx); err != nil {
		t.Fatalf("init src: %v", err)
	}
	srcCache, err := cache.Open(ctx, srcBackend)
	if err != nil {
		t.Fatalf("open src cache: %v", err)
	}
	task := &types.Task{Core: types.Core{ID: "bn-aaaa", Title: "exported task", CreatedAt: time.Now(), UpdatedAt: time.Now()}, Status: types.StatusPending}
	if err := srcCache.PutTask(ctx, task); err != nil {
		t.Fatalf("put task: %v", err)
	}

	var archive bytes.Buffer
	if err := Export(ctx, srcBackend, "test-repo", &archive); err != nil {
		t.Fatalf("export: %v", err)
	}

	dstBackend := storage.NewFileBackend(t.TempDir())
	if err := dstBackend.Init(ctx); err != nil {
		t.Fatalf("init dst: %v", err)
	}
	dstCache, err := cache.Open(ctx, dstBackend)
	if err != nil {
		t.Fatalf("open dst cache: %v", err)
	}

	if err := Import(ctx, dstCache, dstBackend, bytes.NewReader(archive.Bytes()), ImportReplace); err != nil {
		t.Fatalf("import: %v", err)
	}
	got, ok := dstCache.Tasks["bn-aaaa"]
	if !ok || got.Title != "exported task" {
		t.Fatalf("task did not survive round trip: %+v", dstCache.Tasks)
	}
}

func TestImportReplaceRejectsAlreadyInitializedStore(t *testing.T) {
	ctx := context.Background()
	srcBackend := storage.NewFileBackend(t.TempDir())
	if err := srcBackend.Init(ctx); err != nil {
		t.Fatalf("init src: %v", err)
	}
	srcCache, err := cache.Open(ctx, srcBackend)
	if err != nil {
		t.Fatalf("open src cache: %v", err)
	}
	if err := srcCache.PutTask(ctx, &types.Task{Core: types.Core{ID: "bn-aaaa", Title: "t", CreatedAt: time.Now(), UpdatedAt: time.Now()}, Status: types.StatusPending}); err != nil {
		t.Fatalf("put task: %v", err)
	}

	var archive bytes.Buffer
	if err := Export(ctx, srcBackend, "test-repo", &archive); err != nil {
		t.Fatalf("export: %v", err)
	}

	dstBackend := storage.NewFileBackend(t.TempDir())
	if err := dstBackend.Init(ctx); err != nil {
		t.Fatalf("init dst: %v", err)
	}
	dstCache, err := cache.Open(ctx, dstBackend)
	if err != nil {
		t.Fatalf("open dst cache: %v", err)
	}
	if err := dstCache.PutTask(ctx, &types.Task{Core: types.Core{ID: "bn-bbbb", Title: "already here", CreatedAt: time.Now(), UpdatedAt: time.Now()}, Status: types.StatusPending}); err != nil {
		t.Fatalf("seed dst task: %v", err)
	}

	err = Import(ctx, dstCache, dstBackend, bytes.NewReader(archive.Bytes()), ImportReplace)
	if !errors.Is(err, ErrAlreadyInitialized) {
		t.Fatalf("expected ErrAlreadyInitialized, got %v", err)
	}
	if _, ok := dstCache.Tasks["bn-bbbb"]; !ok {
		t.Fatalf("rejected replace must not wipe the existing store")
	}
}

func TestImportMergeRemapsCollidingIDs(t *testing.T) {
	ctx := context.Background()
	srcBackend := storage.NewFileBackend(t.TempDir())
	if err := srcBackend.Init(ctx); err != nil {
		t.Fatalf("init src: %v", err)
	}
	srcCache, err := cache.Open(ctx, srcBackend)
	if err != nil {
		t.Fatalf("open src cache: %v", err)
	}
	if err := srcCache.PutTask(ctx, &types.Task{Core: types.Core{ID: "bn-aaaa", Title: "from export"}, Status: types.StatusPending}); err != nil {
		t.Fatalf("put task: %v", err)
	}
	var archive bytes.Buffer
	if err := Export(ctx, srcBackend, "test-repo", &archive); err != nil {
		t.Fatalf("export: %v", err)
	}

	dstBackend := storage.NewFileBackend(t.TempDir())
	if err := dstBackend.Init(ctx); err != nil {
		t.Fatalf("init dst: %v", err)
	}
	dstCache, err := cache.Open(ctx, dstBackend)
	if err != nil {
		t.Fatalf("open dst cache: %v", err)
	}
	if err := dstCache.PutTask(ctx, &types.Task{Core: types.Core{ID: "bn-aaaa", Title: "already present"}, Status: types.StatusPending}); err != nil {
		t.Fatalf("put existing task: %v", err)
	}

	if err := Import(ctx, dstCache, dstBackend, bytes.NewReader(archive.Bytes()), ImportMerge); err != nil {
		t.Fatalf("import merge: %v", err)
	}

	if dstCache.Tasks["bn-aaaa"].Title != "already present" {
		t.Fatalf("existing task should be untouched")
	}
	found := false
	for _, task := range dstCache.Tasks {
		if task.Title == "from export" {
			found = true
			if task.ImportedOn == nil {
				t.Fatalf("expected imported_on to be stamped")
			}
		}
	}
	if !found {
		t.Fatalf("expected remapped imported task to be present")
	}
}

func TestImportMergeRewritesLegacyDependsOnThroughRemap(t *testing.T) {
	ctx := context.Background()
	srcBackend := storage.NewFileBackend(t.TempDir())
	if err := srcBackend.Init(ctx); err != nil {
		t.Fatalf("init src: %v", err)
	}
	srcCache, err := cache.Open(ctx, srcBackend)
	if err != nil {
		t.Fatalf("open src cache: %v", err)
	}
	// bn-base will NOT collide; bn-aaaa will collide in the destination.
	if err := srcCache.PutTask(ctx, &types.Task{Core: types.Core{ID: "bn-base", Title: "base"}, Status: types.StatusDone}); err != nil {
		t.Fatalf("put base task: %v", err)
	}
	if err := srcCache.PutTask(ctx, &types.Task{
		Core:      types.Core{ID: "bn-aaaa", Title: "dependent"},
		Status:    types.StatusPending,
		DependsOn: []string{"bn-base", "bn-ghost"},
	}); err != nil {
		t.Fatalf("put dependent task: %v", err)
	}
	var archive bytes.Buffer
	if err := Export(ctx, srcBackend, "test-repo", &archive); err != nil {
		t.Fatalf("export: %v", err)
	}

	dstBackend := storage.NewFileBackend(t.TempDir())
	if err := dstBackend.Init(ctx); err != nil {
		t.Fatalf("init dst: %v", err)
	}
	dstCache, err := cache.Open(ctx, dstBackend)
	if err != nil {
		t.Fatalf("open dst cache: %v", err)
	}
	if err := dstCache.PutTask(ctx, &types.Task{Core: types.Core{ID: "bn-aaaa", Title: "already present"}, Status: types.StatusPending}); err != nil {
		t.Fatalf("put existing task: %v", err)
	}

	if err := Import(ctx, dstCache, dstBackend, bytes.NewReader(archive.Bytes()), ImportMerge); err != nil {
		t.Fatalf("import merge: %v", err)
	}

	var dependent *types.Task
	for _, task := range dstCache.Tasks {
		if task.Title == "dependent" {
			dependent = task
		}
	}
	if dependent == nil {
		t.Fatalf("expected remapped dependent task to be present")
	}
	if len(dependent.DependsOn) != 1 || dependent.DependsOn[0] != "bn-base" {
		t.Fatalf("expected depends_on to contain only the surviving bn-base reference, got %v", dependent.DependsOn)
	}
}
