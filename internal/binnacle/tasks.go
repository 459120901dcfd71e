package binnacle

import (
	"context"

	"github.com/binnacle-dev/binnacle/internal/ids"
	"github.com/binnacle-dev/binnacle/internal/status"
	"github.com/binnacle-dev/binnacle/internal/types"
)

// NewTask is the input to CreateTask.
type NewTask struct {
	Title       string
	ShortName   string
	Description string
	Tags        []string
	Priority    int
	Assignee    string
}

// CreateTask appends a new pending task.
func (s *Store) CreateTask(ctx context.Context, in NewTask) (Result[*types.Task], error) {
	if in.Title == "" {
		return Result[*types.Task]{}, newErr(KindInvalidInput, "title must not be empty")
	}
	if err := validatePriority(in.Priority); err != nil {
		return Result[*types.Task]{}, err
	}
	core, warnings := newCore(ids.PrefixWorkItem, types.KindTask, in.Title, in.ShortName, in.Description, normalizeTags(in.Tags), s.Cache.Exists)
	t := &types.Task{Core: core, Status: types.StatusPending, Priority: in.Priority, Assignee: in.Assignee}
	if err := s.Cache.PutTask(ctx, t); err != nil {
		return Result[*types.Task]{}, wrapIO(err, "create task")
	}
	s.logAction("task.create", t.ID, in.Assignee)
	return ok(t, warnings...), nil
}

// TaskFilter narrows ListTasks (spec §4.4).
type TaskFilter struct {
	Status   types.Status
	Priority *int
	Tag      string
	Assignee string
}

func (f TaskFilter) matches(t *types.Task) bool {
	if f.Status != "" && t.Status != f.Status {
		return false
	}
	if f.Priority != nil && t.Priority != *f.Priority {
		return false
	}
	if f.Assignee != "" && t.Assignee != f.Assignee {
		return false
	}
	if f.Tag != "" && !hasTag(t.Tags, f.Tag) {
		return false
	}
	return true
}

func hasTag(tags []string, tag string) bool {
	for _, t := range tags {
		if t == tag {
			return true
		}
	}
	return false
}

// ListTasks returns every task matching filter.
func (s *Store) ListTasks(filter TaskFilter) []*types.Task {
	var out []*types.Task
	for _, t := range s.Cache.Tasks {
		if filter.matches(t) {
			out = append(out, t)
		}
	}
	return out
}

// GetTask returns the task behind id.
func (s *Store) GetTask(id string) (*types.Task, error) {
	t, ok := s.Cache.Tasks[id]
	if !ok {
		return nil, newErr(KindNotFound, "task %s not found", id)
	}
	return t, nil
}

// TaskPatch is a partial update; nil fields are left unchanged.
type TaskPatch struct {
	Title       *string
	ShortName   *string
	Description *string
	Tags        []string
	Priority    *int
	Assignee    *string
}

// UpdateTask applies patch to id, honoring the closed-item update policy
// (spec §4.4).
func (s *Store) UpdateTask(ctx context.Context, id string, patch TaskPatch, mode UpdateMode) (Result[*types.Task], error) {
	t, ok := s.Cache.Tasks[id]
	if !ok {
		return Result[*types.Task]{}, newErr(KindNotFound, "task %s not found", id)
	}

	closed := t.Status == types.StatusDone || t.Status == types.StatusCancelled
	if closed && mode == UpdateNormal {
		return Result[*types.Task]{}, closedUpdateErr(id, types.KindTask)
	}

	var warnings []Warning
	if patch.Title != nil {
		t.Title = *patch.Title
	}
	if patch.ShortName != nil {
		truncated, didTruncate := types.TruncateShortName(*patch.ShortName)
		t.ShortName = truncated
		if didTruncate {
			warnings = append(warnings, Warning{Code: "short_name_truncated", Message: "short_name truncated to 30 scalar values"})
		}
	}
	if patch.Description != nil {
		t.Description = *patch.Description
	}
	if patch.Tags != nil {
		t.Tags = normalizeTags(patch.Tags)
	}
	if patch.Priority != nil {
		if err := validatePriority(*patch.Priority); err != nil {
			return Result[*types.Task]{}, err
		}
		t.Priority = *patch.Priority
	}
	if patch.Assignee != nil {
		t.Assignee = *patch.Assignee
	}

	if closed && mode == UpdateReopen {
		t.Status = types.StatusPending
		t.ClosedAt = nil
		t.ClosedReason = ""
	}

	if err := s.Cache.PutTask(ctx, t); err != nil {
		return Result[*types.Task]{}, wrapIO(err, "update task %s", id)
	}
	return ok(t, warnings...), nil
}

// CloseTask closes id per CloseOptions and runs the partial-promotion sweep.
func (s *Store) CloseTask(ctx context.Context, id string, opt CloseOptions) (Result[*types.Task], error) {
	warnings, err := closeStatusHolder(ctx, s.Cache, s.git, s.RequireCommitForClose(), id, opt)
	if err != nil {
		return Result[*types.Task]{}, err
	}
	s.logAction("task.close", id, opt.Reason)
	return ok(s.Cache.Tasks[id], warnings...), nil
}

// ReopenTask returns a closed task to reopened.
func (s *Store) ReopenTask(ctx context.Context, id string) (*types.Task, error) {
	if err := reopenStatusHolder(ctx, s.Cache, id); err != nil {
		return nil, err
	}
	return s.Cache.Tasks[id], nil
}

// DeleteTask tombstones id.
func (s *Store) DeleteTask(ctx context.Context, id string) error {
	if _, ok := s.Cache.Tasks[id]; !ok {
		return newErr(KindNotFound, "task %s not found", id)
	}
	return s.Cache.DeleteEntity(ctx, id, types.KindTask)
}

// StartTask transitions id to in_progress and tracks it against agentID
// (spec §4.6).
func (s *Store) StartTask(ctx context.Context, id, agentID string, force bool) error {
	if err := status.StartProgress(ctx, s.Cache, id, agentID, force); err != nil {
		switch e := err.(type) {
		case *status.ErrIncompleteDependencies:
			return remediate(KindConflict, "pass force to start anyway", "%s", e.Error())
		case *status.ErrAgentBusy:
			return remediate(KindConflict, "pass force to start anyway", "%s", e.Error())
		}
		return wrapIO(err, "start task %s", id)
	}
	return nil
}
