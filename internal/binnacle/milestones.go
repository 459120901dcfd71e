package binnacle

import (
	"context"
	"time"

	"github.com/binnacle-dev/binnacle/internal/ids"
	"github.com/binnacle-dev/binnacle/internal/types"
)

// NewMilestone is the input to CreateMilestone.
type NewMilestone struct {
	Title       string
	ShortName   string
	Description string
	Tags        []string
	Priority    int
	Assignee    string
	DueDate     *time.Time
}

// CreateMilestone appends a new pending milestone. Milestones never carry
// depends_on (GetDependsOn returns nil); they gate on child work via
// parent_of/child_of edges instead.
func (s *Store) CreateMilestone(ctx context.Context, in NewMilestone) (Result[*types.Milestone], error) {
	if in.Title == "" {
		return Result[*types.Milestone]{}, newErr(KindInvalidInput, "title must not be empty")
	}
	if err := validatePriority(in.Priority); err != nil {
		return Result[*types.Milestone]{}, err
	}
	core, warnings := newCore(ids.PrefixWorkItem, types.KindMilestone, in.Title, in.ShortName, in.Description, normalizeTags(in.Tags), s.Cache.Exists)
	m := &types.Milestone{Core: core, Status: types.StatusPending, Priority: in.Priority, Assignee: in.Assignee, DueDate: in.DueDate}
	if err := s.Cache.PutMilestone(ctx, m); err != nil {
		return Result[*types.Milestone]{}, wrapIO(err, "create milestone")
	}
	s.logAction("milestone.create", m.ID, in.Assignee)
	return ok(m, warnings...), nil
}

// MilestoneFilter narrows ListMilestones (spec §4.4).
type MilestoneFilter struct {
	Status   types.Status
	DueBy    *time.Time
	Tag      string
	Assignee string
}

func (f MilestoneFilter) matches(m *types.Milestone) bool {
	if f.Status != "" && m.Status != f.Status {
		return false
	}
	if f.DueBy != nil && (m.DueDate == nil || m.DueDate.After(*f.DueBy)) {
		return false
	}
	if f.Assignee != "" && m.Assignee != f.Assignee {
		return false
	}
	if f.Tag != "" && !hasTag(m.Tags, f.Tag) {
		return false
	}
	return true
}

// ListMilestones returns every milestone matching filter.
func (s *Store) ListMilestones(filter MilestoneFilter) []*types.Milestone {
	var out []*types.Milestone
	for _, m := range s.Cache.Milestones {
		if filter.matches(m) {
			out = append(out, m)
		}
	}
	return out
}

// GetMilestone returns the milestone behind id.
func (s *Store) GetMilestone(id string) (*types.Milestone, error) {
	m, ok := s.Cache.Milestones[id]
	if !ok {
		return nil, newErr(KindNotFound, "milestone %s not found", id)
	}
	return m, nil
}

// MilestonePatch is a partial update; nil fields are left unchanged.
type MilestonePatch struct {
	Title       *string
	ShortName   *string
	Description *string
	Tags        []string
	Priority    *int
	Assignee    *string
	DueDate     *time.Time
}

// UpdateMilestone applies patch to id, honoring the closed-item update
// policy (spec §4.4).
func (s *Store) UpdateMilestone(ctx context.Context, id string, patch MilestonePatch, mode UpdateMode) (Result[*types.Milestone], error) {
	m, ok := s.Cache.Milestones[id]
	if !ok {
		return Result[*types.Milestone]{}, newErr(KindNotFound, "milestone %s not found", id)
	}

	closed := m.Status == types.StatusDone || m.Status == types.StatusCancelled
	if closed && mode == UpdateNormal {
		return Result[*types.Milestone]{}, closedUpdateErr(id, types.KindMilestone)
	}

	var warnings []Warning
	if patch.Title != nil {
		m.Title = *patch.Title
	}
	if patch.ShortName != nil {
		truncated, didTruncate := types.TruncateShortName(*patch.ShortName)
		m.ShortName = truncated
		if didTruncate {
			warnings = append(warnings, Warning{Code: "short_name_truncated", Message: "short_name truncated to 30 scalar values"})
		}
	}
	if patch.Description != nil {
		m.Description = *patch.Description
	}
	if patch.Tags != nil {
		m.Tags = normalizeTags(patch.Tags)
	}
	if patch.Priority != nil {
		if err := validatePriority(*patch.Priority); err != nil {
			return Result[*types.Milestone]{}, err
		}
		m.Priority = *patch.Priority
	}
	if patch.Assignee != nil {
		m.Assignee = *patch.Assignee
	}
	if patch.DueDate != nil {
		m.DueDate = patch.DueDate
	}

	if closed && mode == UpdateReopen {
		m.Status = types.StatusPending
		m.ClosedAt = nil
		m.ClosedReason = ""
	}

	if err := s.Cache.PutMilestone(ctx, m); err != nil {
		return Result[*types.Milestone]{}, wrapIO(err, "update milestone %s", id)
	}
	return ok(m, warnings...), nil
}

// CloseMilestone closes id per CloseOptions and runs the partial-promotion
// sweep.
func (s *Store) CloseMilestone(ctx context.Context, id string, opt CloseOptions) (Result[*types.Milestone], error) {
	warnings, err := closeStatusHolder(ctx, s.Cache, s.git, s.RequireCommitForClose(), id, opt)
	if err != nil {
		return Result[*types.Milestone]{}, err
	}
	s.logAction("milestone.close", id, opt.Reason)
	return ok(s.Cache.Milestones[id], warnings...), nil
}

// ReopenMilestone returns a closed milestone to reopened.
func (s *Store) ReopenMilestone(ctx context.Context, id string) (*types.Milestone, error) {
	if err := reopenStatusHolder(ctx, s.Cache, id); err != nil {
		return nil, err
	}
	return s.Cache.Milestones[id], nil
}

// DeleteMilestone tombstones id.
func (s *Store) DeleteMilestone(ctx context.Context, id string) error {
	if _, ok := s.Cache.Milestones[id]; !ok {
		return newErr(KindNotFound, "milestone %s not found", id)
	}
	return s.Cache.DeleteEntity(ctx, id, types.KindMilestone)
}
