package binnacle

import (
	"bytes"
	"context"
	"testing"

	"github.com/binnacle-dev/binnacle/internal/repoconfig"
	"github.com/binnacle-dev/binnacle/internal/types"
)

func newTestStore(t *testing.T) *Store {
	t.Helper()
	root := t.TempDir()
	s, err := Init(context.Background(), root, repoconfig.Default())
	if err != nil {
		t.Fatalf("init store: %v", err)
	}
	t.Cleanup(func() {
		if err := s.Close(); err != nil {
			t.Fatalf("close store: %v", err)
		}
	})
	return s
}

func TestCloseTaskRejectsIncompleteDependencies(t *testing.T) {
	ctx := context.Background()
	s := newTestStore(t)

	blocker, err := s.CreateTask(ctx, NewTask{Title: "blocker"})
	if err != nil {
		t.Fatalf("create blocker: %v", err)
	}
	blocked, err := s.CreateTask(ctx, NewTask{Title: "blocked"})
	if err != nil {
		t.Fatalf("create blocked: %v", err)
	}
	if _, err := s.AddEdge(ctx, NewEdge{Source: blocked.Data.ID, Target: blocker.Data.ID, EdgeType: types.EdgeDependsOn, Reason: "needs it first"}); err != nil {
		t.Fatalf("add edge: %v", err)
	}

	if _, err := s.CloseTask(ctx, blocked.Data.ID, CloseOptions{Reason: "done"}); err == nil {
		t.Fatalf("expected close to be rejected while a dependency is incomplete")
	}

	if _, err := s.CloseTask(ctx, blocked.Data.ID, CloseOptions{Reason: "done", Force: true}); err != nil {
		t.Fatalf("expected forced close to succeed: %v", err)
	}
	got, err := s.GetTask(blocked.Data.ID)
	if err != nil {
		t.Fatalf("get task: %v", err)
	}
	if !got.Status.IsComplete() {
		t.Fatalf("expected task to be complete after forced close, got %s", got.Status)
	}
}

func TestCloseTaskSucceedsOnceDependenciesComplete(t *testing.T) {
	ctx := context.Background()
	s := newTestStore(t)

	blocker, err := s.CreateTask(ctx, NewTask{Title: "blocker"})
	if err != nil {
		t.Fatalf("create blocker: %v", err)
	}
	blocked, err := s.CreateTask(ctx, NewTask{Title: "blocked"})
	if err != nil {
		t.Fatalf("create blocked: %v", err)
	}
	if _, err := s.AddEdge(ctx, NewEdge{Source: blocked.Data.ID, Target: blocker.Data.ID, EdgeType: types.EdgeDependsOn, Reason: "needs it first"}); err != nil {
		t.Fatalf("add edge: %v", err)
	}
	if _, err := s.CloseTask(ctx, blocker.Data.ID, CloseOptions{Reason: "done"}); err != nil {
		t.Fatalf("close blocker: %v", err)
	}

	if _, err := s.CloseTask(ctx, blocked.Data.ID, CloseOptions{Reason: "done"}); err != nil {
		t.Fatalf("expected close to succeed once the dependency is complete: %v", err)
	}
}

func TestUpdateTaskRejectsEditingClosedWithoutFlag(t *testing.T) {
	ctx := context.Background()
	s := newTestStore(t)

	created, err := s.CreateTask(ctx, NewTask{Title: "original"})
	if err != nil {
		t.Fatalf("create task: %v", err)
	}
	if _, err := s.CloseTask(ctx, created.Data.ID, CloseOptions{Reason: "done"}); err != nil {
		t.Fatalf("close task: %v", err)
	}

	newTitle := "renamed"
	if _, err := s.UpdateTask(ctx, created.Data.ID, TaskPatch{Title: &newTitle}, UpdateNormal); err == nil {
		t.Fatalf("expected update of a closed task to be rejected without keep_closed or reopen")
	}

	result, err := s.UpdateTask(ctx, created.Data.ID, TaskPatch{Title: &newTitle}, UpdateKeepClosed)
	if err != nil {
		t.Fatalf("expected keep_closed update to succeed: %v", err)
	}
	if result.Data.Title != newTitle || !result.Data.Status.IsComplete() {
		t.Fatalf("expected title updated and status left closed, got %+v", result.Data)
	}

	reopened, err := s.UpdateTask(ctx, created.Data.ID, TaskPatch{Title: &newTitle}, UpdateReopen)
	if err != nil {
		t.Fatalf("expected reopen update to succeed: %v", err)
	}
	if reopened.Data.Status != types.StatusPending {
		t.Fatalf("expected reopen to return the task to pending, got %s", reopened.Data.Status)
	}
}

func TestAddEdgeEnforcesStructuralRules(t *testing.T) {
	ctx := context.Background()
	s := newTestStore(t)

	a, err := s.CreateTask(ctx, NewTask{Title: "a"})
	if err != nil {
		t.Fatalf("create a: %v", err)
	}
	b, err := s.CreateTask(ctx, NewTask{Title: "b"})
	if err != nil {
		t.Fatalf("create b: %v", err)
	}

	if _, err := s.AddEdge(ctx, NewEdge{Source: a.Data.ID, Target: b.Data.ID, EdgeType: types.EdgeDependsOn}); err == nil {
		t.Fatalf("expected depends_on without a reason to be rejected")
	}

	edge, err := s.AddEdge(ctx, NewEdge{Source: a.Data.ID, Target: b.Data.ID, EdgeType: types.EdgeRelatedTo})
	if err != nil {
		t.Fatalf("expected related_to edge to validate: %v", err)
	}
	if edge.Data.Source != a.Data.ID || edge.Data.Target != b.Data.ID {
		t.Fatalf("unexpected edge: %+v", edge.Data)
	}
}

func TestAddEdgeRejectsCycles(t *testing.T) {
	ctx := context.Background()
	s := newTestStore(t)

	a, err := s.CreateTask(ctx, NewTask{Title: "a"})
	if err != nil {
		t.Fatalf("create a: %v", err)
	}
	b, err := s.CreateTask(ctx, NewTask{Title: "b"})
	if err != nil {
		t.Fatalf("create b: %v", err)
	}
	if _, err := s.AddEdge(ctx, NewEdge{Source: a.Data.ID, Target: b.Data.ID, EdgeType: types.EdgeDependsOn, Reason: "r"}); err != nil {
		t.Fatalf("add a->b: %v", err)
	}

	if _, err := s.AddEdge(ctx, NewEdge{Source: b.Data.ID, Target: a.Data.ID, EdgeType: types.EdgeDependsOn, Reason: "r"}); err == nil {
		t.Fatalf("expected a dependency cycle to be rejected")
	}
}

func TestCreateDocAndUpdateDocVersion(t *testing.T) {
	ctx := context.Background()
	s := newTestStore(t)

	task, err := s.CreateTask(ctx, NewTask{Title: "target task"})
	if err != nil {
		t.Fatalf("create task: %v", err)
	}

	doc, err := s.CreateDoc(ctx, NewDoc{Title: "design notes", Content: "first draft", LinkTargets: []string{task.Data.ID}})
	if err != nil {
		t.Fatalf("create doc: %v", err)
	}

	fetched, err := s.GetDoc(doc.Data.ID)
	if err != nil {
		t.Fatalf("get doc: %v", err)
	}
	if fetched.Content != "first draft" {
		t.Fatalf("expected decompressed content round trip, got %q", fetched.Content)
	}

	linked := s.EdgesBetween(doc.Data.ID, task.Data.ID)
	if len(linked) != 1 || linked[0].EdgeType != types.EdgeDocuments {
		t.Fatalf("expected one documents edge between doc and task, got %+v", linked)
	}

	next, err := s.UpdateDocVersion(ctx, doc.Data.ID, "second draft", types.Editor{Identifier: "reviewer"})
	if err != nil {
		t.Fatalf("update doc version: %v", err)
	}
	if next.Supersedes != doc.Data.ID {
		t.Fatalf("expected new version to supersede the original, got %q", next.Supersedes)
	}

	nextFetched, err := s.GetDoc(next.ID)
	if err != nil {
		t.Fatalf("get new version: %v", err)
	}
	if nextFetched.Content != "second draft" {
		t.Fatalf("expected new version content, got %q", nextFetched.Content)
	}

	if links := s.EdgesBetween(doc.Data.ID, task.Data.ID); len(links) != 0 {
		t.Fatalf("expected old version's documents edge to be retired, got %+v", links)
	}
	if links := s.EdgesBetween(next.ID, task.Data.ID); len(links) != 1 {
		t.Fatalf("expected new version to carry the documents edge, got %+v", links)
	}

	history := s.DocHistory(next.ID)
	if len(history) != 2 || history[0].ID != doc.Data.ID || history[1].ID != next.ID {
		t.Fatalf("expected history oldest-first [orig, next], got %+v", history)
	}
}

func TestCreateDocRequiresAtLeastOneLinkTarget(t *testing.T) {
	ctx := context.Background()
	s := newTestStore(t)

	if _, err := s.CreateDoc(ctx, NewDoc{Title: "orphan", Content: "body"}); err == nil {
		t.Fatalf("expected doc creation without link targets to be rejected")
	}
}

func TestImportReplaceRoundTripsExportedTask(t *testing.T) {
	ctx := context.Background()
	src := newTestStore(t)

	created, err := src.CreateTask(ctx, NewTask{Title: "exported task"})
	if err != nil {
		t.Fatalf("create task: %v", err)
	}

	var archive bytes.Buffer
	if err := src.Export(ctx, &archive); err != nil {
		t.Fatalf("export: %v", err)
	}

	dst := newTestStore(t)
	if err := dst.Import(ctx, bytes.NewReader(archive.Bytes()), ImportReplace); err != nil {
		t.Fatalf("import: %v", err)
	}

	got, err := dst.GetTask(created.Data.ID)
	if err != nil {
		t.Fatalf("expected imported task to be present: %v", err)
	}
	if got.Title != "exported task" {
		t.Fatalf("unexpected imported task: %+v", got)
	}
}

func TestImportReplaceRejectsAlreadyInitializedStore(t *testing.T) {
	ctx := context.Background()
	src := newTestStore(t)
	if _, err := src.CreateTask(ctx, NewTask{Title: "exported task"}); err != nil {
		t.Fatalf("create task: %v", err)
	}
	var archive bytes.Buffer
	if err := src.Export(ctx, &archive); err != nil {
		t.Fatalf("export: %v", err)
	}

	dst := newTestStore(t)
	if _, err := dst.CreateTask(ctx, NewTask{Title: "already here"}); err != nil {
		t.Fatalf("seed dst task: %v", err)
	}

	err := dst.Import(ctx, bytes.NewReader(archive.Bytes()), ImportReplace)
	if err == nil {
		t.Fatalf("expected replace import into an already-initialized store to be rejected")
	}
	var bnErr *Error
	if e, ok := err.(*Error); ok {
		bnErr = e
	}
	if bnErr == nil || bnErr.Kind != KindConflict {
		t.Fatalf("expected a KindConflict error, got %v", err)
	}
}

func TestSyncRequiresAnExistingSyncBranch(t *testing.T) {
	ctx := context.Background()
	s := newTestStore(t)

	// The store's root is a plain temp directory, never git-initialized, so
	// the binnacle-data branch this sync would fast-forward cannot exist.
	if _, err := s.Sync(ctx, "origin", false, false); err == nil {
		t.Fatalf("expected sync to fail without a binnacle-data branch")
	}
}
