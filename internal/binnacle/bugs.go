package binnacle

import (
	"context"

	"github.com/binnacle-dev/binnacle/internal/ids"
	"github.com/binnacle-dev/binnacle/internal/status"
	"github.com/binnacle-dev/binnacle/internal/types"
)

// NewBug is the input to CreateBug.
type NewBug struct {
	Title             string
	ShortName         string
	Description       string
	Tags              []string
	Priority          int
	Assignee          string
	Severity          types.Severity
	ReproductionSteps string
	AffectedComponent string
}

func validSeverity(s types.Severity) bool {
	switch s {
	case types.SeverityTriage, types.SeverityLow, types.SeverityMedium, types.SeverityHigh, types.SeverityCritical:
		return true
	}
	return false
}

// CreateBug appends a new pending bug.
func (s *Store) CreateBug(ctx context.Context, in NewBug) (Result[*types.Bug], error) {
	if in.Title == "" {
		return Result[*types.Bug]{}, newErr(KindInvalidInput, "title must not be empty")
	}
	if err := validatePriority(in.Priority); err != nil {
		return Result[*types.Bug]{}, err
	}
	if in.Severity == "" {
		in.Severity = types.SeverityTriage
	}
	if !validSeverity(in.Severity) {
		return Result[*types.Bug]{}, newErr(KindInvalidInput, "unrecognized severity %q", in.Severity)
	}
	core, warnings := newCore(ids.PrefixWorkItem, types.KindBug, in.Title, in.ShortName, in.Description, normalizeTags(in.Tags), s.Cache.Exists)
	b := &types.Bug{
		Core: core, Status: types.StatusPending, Priority: in.Priority, Assignee: in.Assignee,
		Severity: in.Severity, ReproductionSteps: in.ReproductionSteps, AffectedComponent: in.AffectedComponent,
	}
	if err := s.Cache.PutBug(ctx, b); err != nil {
		return Result[*types.Bug]{}, wrapIO(err, "create bug")
	}
	s.logAction("bug.create", b.ID, in.Assignee)
	return ok(b, warnings...), nil
}

// BugFilter narrows ListBugs (spec §4.4).
type BugFilter struct {
	Status   types.Status
	Priority *int
	Severity types.Severity
	Tag      string
	Assignee string
}

func (f BugFilter) matches(b *types.Bug) bool {
	if f.Status != "" && b.Status != f.Status {
		return false
	}
	if f.Priority != nil && b.Priority != *f.Priority {
		return false
	}
	if f.Severity != "" && b.Severity != f.Severity {
		return false
	}
	if f.Assignee != "" && b.Assignee != f.Assignee {
		return false
	}
	if f.Tag != "" && !hasTag(b.Tags, f.Tag) {
		return false
	}
	return true
}

// ListBugs returns every bug matching filter.
func (s *Store) ListBugs(filter BugFilter) []*types.Bug {
	var out []*types.Bug
	for _, b := range s.Cache.Bugs {
		if filter.matches(b) {
			out = append(out, b)
		}
	}
	return out
}

// GetBug returns the bug behind id.
func (s *Store) GetBug(id string) (*types.Bug, error) {
	b, ok := s.Cache.Bugs[id]
	if !ok {
		return nil, newErr(KindNotFound, "bug %s not found", id)
	}
	return b, nil
}

// BugPatch is a partial update; nil fields are left unchanged.
type BugPatch struct {
	Title             *string
	ShortName         *string
	Description       *string
	Tags              []string
	Priority          *int
	Assignee          *string
	Severity          *types.Severity
	ReproductionSteps *string
	AffectedComponent *string
}

// UpdateBug applies patch to id, honoring the closed-item update policy
// (spec §4.4).
func (s *Store) UpdateBug(ctx context.Context, id string, patch BugPatch, mode UpdateMode) (Result[*types.Bug], error) {
	b, ok := s.Cache.Bugs[id]
	if !ok {
		return Result[*types.Bug]{}, newErr(KindNotFound, "bug %s not found", id)
	}

	closed := b.Status == types.StatusDone || b.Status == types.StatusCancelled
	if closed && mode == UpdateNormal {
		return Result[*types.Bug]{}, closedUpdateErr(id, types.KindBug)
	}

	var warnings []Warning
	if patch.Title != nil {
		b.Title = *patch.Title
	}
	if patch.ShortName != nil {
		truncated, didTruncate := types.TruncateShortName(*patch.ShortName)
		b.ShortName = truncated
		if didTruncate {
			warnings = append(warnings, Warning{Code: "short_name_truncated", Message: "short_name truncated to 30 scalar values"})
		}
	}
	if patch.Description != nil {
		b.Description = *patch.Description
	}
	if patch.Tags != nil {
		b.Tags = normalizeTags(patch.Tags)
	}
	if patch.Priority != nil {
		if err := validatePriority(*patch.Priority); err != nil {
			return Result[*types.Bug]{}, err
		}
		b.Priority = *patch.Priority
	}
	if patch.Assignee != nil {
		b.Assignee = *patch.Assignee
	}
	if patch.Severity != nil {
		if !validSeverity(*patch.Severity) {
			return Result[*types.Bug]{}, newErr(KindInvalidInput, "unrecognized severity %q", *patch.Severity)
		}
		b.Severity = *patch.Severity
	}
	if patch.ReproductionSteps != nil {
		b.ReproductionSteps = *patch.ReproductionSteps
	}
	if patch.AffectedComponent != nil {
		b.AffectedComponent = *patch.AffectedComponent
	}

	if closed && mode == UpdateReopen {
		b.Status = types.StatusPending
		b.ClosedAt = nil
		b.ClosedReason = ""
	}

	if err := s.Cache.PutBug(ctx, b); err != nil {
		return Result[*types.Bug]{}, wrapIO(err, "update bug %s", id)
	}
	return ok(b, warnings...), nil
}

// CloseBug closes id per CloseOptions and runs the partial-promotion sweep.
func (s *Store) CloseBug(ctx context.Context, id string, opt CloseOptions) (Result[*types.Bug], error) {
	warnings, err := closeStatusHolder(ctx, s.Cache, s.git, s.RequireCommitForClose(), id, opt)
	if err != nil {
		return Result[*types.Bug]{}, err
	}
	s.logAction("bug.close", id, opt.Reason)
	return ok(s.Cache.Bugs[id], warnings...), nil
}

// ReopenBug returns a closed bug to reopened.
func (s *Store) ReopenBug(ctx context.Context, id string) (*types.Bug, error) {
	if err := reopenStatusHolder(ctx, s.Cache, id); err != nil {
		return nil, err
	}
	return s.Cache.Bugs[id], nil
}

// DeleteBug tombstones id.
func (s *Store) DeleteBug(ctx context.Context, id string) error {
	if _, ok := s.Cache.Bugs[id]; !ok {
		return newErr(KindNotFound, "bug %s not found", id)
	}
	return s.Cache.DeleteEntity(ctx, id, types.KindBug)
}

// StartBug transitions id to in_progress and tracks it against agentID
// (spec §4.6).
func (s *Store) StartBug(ctx context.Context, id, agentID string, force bool) error {
	if err := status.StartProgress(ctx, s.Cache, id, agentID, force); err != nil {
		switch e := err.(type) {
		case *status.ErrIncompleteDependencies:
			return remediate(KindConflict, "pass force to start anyway", "%s", e.Error())
		case *status.ErrAgentBusy:
			return remediate(KindConflict, "pass force to start anyway", "%s", e.Error())
		}
		return wrapIO(err, "start bug %s", id)
	}
	return nil
}
