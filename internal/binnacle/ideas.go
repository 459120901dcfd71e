package binnacle

import (
	"context"

	"github.com/binnacle-dev/binnacle/internal/ids"
	"github.com/binnacle-dev/binnacle/internal/types"
)

// NewIdea is the input to CreateIdea.
type NewIdea struct {
	Title       string
	ShortName   string
	Description string
	Tags        []string
}

// CreateIdea appends a new seed-stage idea.
func (s *Store) CreateIdea(ctx context.Context, in NewIdea) (Result[*types.Idea], error) {
	if in.Title == "" {
		return Result[*types.Idea]{}, newErr(KindInvalidInput, "title must not be empty")
	}
	core, warnings := newCore(ids.PrefixWorkItem, types.KindIdea, in.Title, in.ShortName, in.Description, normalizeTags(in.Tags), s.Cache.Exists)
	idea := &types.Idea{Core: core, Status: types.IdeaSeed}
	if err := s.Cache.PutIdea(ctx, idea); err != nil {
		return Result[*types.Idea]{}, wrapIO(err, "create idea")
	}
	s.logAction("idea.create", idea.ID, "")
	return ok(idea, warnings...), nil
}

// IdeaFilter narrows ListIdeas.
type IdeaFilter struct {
	Status types.IdeaStatus
	Tag    string
}

func (f IdeaFilter) matches(i *types.Idea) bool {
	if f.Status != "" && i.Status != f.Status {
		return false
	}
	if f.Tag != "" && !hasTag(i.Tags, f.Tag) {
		return false
	}
	return true
}

// ListIdeas returns every idea matching filter.
func (s *Store) ListIdeas(filter IdeaFilter) []*types.Idea {
	var out []*types.Idea
	for _, i := range s.Cache.Ideas {
		if filter.matches(i) {
			out = append(out, i)
		}
	}
	return out
}

// GetIdea returns the idea behind id.
func (s *Store) GetIdea(id string) (*types.Idea, error) {
	i, ok := s.Cache.Ideas[id]
	if !ok {
		return nil, newErr(KindNotFound, "idea %s not found", id)
	}
	return i, nil
}

// IdeaPatch is a partial update; nil fields are left unchanged.
type IdeaPatch struct {
	Title       *string
	ShortName   *string
	Description *string
	Tags        []string
}

// UpdateIdea applies patch to id. Ideas have no closed-item lock: the status
// transitions below are the only state changes that matter for workflow.
func (s *Store) UpdateIdea(ctx context.Context, id string, patch IdeaPatch) (Result[*types.Idea], error) {
	i, ok := s.Cache.Ideas[id]
	if !ok {
		return Result[*types.Idea]{}, newErr(KindNotFound, "idea %s not found", id)
	}

	var warnings []Warning
	if patch.Title != nil {
		i.Title = *patch.Title
	}
	if patch.ShortName != nil {
		truncated, didTruncate := types.TruncateShortName(*patch.ShortName)
		i.ShortName = truncated
		if didTruncate {
			warnings = append(warnings, Warning{Code: "short_name_truncated", Message: "short_name truncated to 30 scalar values"})
		}
	}
	if patch.Description != nil {
		i.Description = *patch.Description
	}
	if patch.Tags != nil {
		i.Tags = normalizeTags(patch.Tags)
	}

	if err := s.Cache.PutIdea(ctx, i); err != nil {
		return Result[*types.Idea]{}, wrapIO(err, "update idea %s", id)
	}
	return ok(i, warnings...), nil
}

// AdvanceIdea moves an idea from seed to germinating. Any other starting
// status is a no-op error: germination only happens once.
func (s *Store) AdvanceIdea(ctx context.Context, id string) (*types.Idea, error) {
	i, ok := s.Cache.Ideas[id]
	if !ok {
		return nil, newErr(KindNotFound, "idea %s not found", id)
	}
	if i.Status != types.IdeaSeed {
		return nil, remediate(KindConflict, "only a seed idea can germinate", "idea %s is %s, not seed", id, i.Status)
	}
	i.Status = types.IdeaGerminating
	if err := s.Cache.PutIdea(ctx, i); err != nil {
		return nil, wrapIO(err, "advance idea %s", id)
	}
	return i, nil
}

// PromoteIdea marks an idea promoted, recording the task id or file path it
// became (spec: Idea.promoted_to). It does not itself create the task; the
// caller creates the task first and passes its id here.
func (s *Store) PromoteIdea(ctx context.Context, id, promotedTo string) (*types.Idea, error) {
	i, ok := s.Cache.Ideas[id]
	if !ok {
		return nil, newErr(KindNotFound, "idea %s not found", id)
	}
	if i.Status == types.IdeaPromoted || i.Status == types.IdeaDiscarded {
		return nil, remediate(KindConflict, "", "idea %s is already %s", id, i.Status)
	}
	if promotedTo == "" {
		return nil, newErr(KindInvalidInput, "promoted_to must not be empty")
	}
	i.Status = types.IdeaPromoted
	i.PromotedTo = promotedTo
	if err := s.Cache.PutIdea(ctx, i); err != nil {
		return nil, wrapIO(err, "promote idea %s", id)
	}
	s.logAction("idea.promote", id, promotedTo)
	return i, nil
}

// DiscardIdea marks an idea discarded.
func (s *Store) DiscardIdea(ctx context.Context, id string) (*types.Idea, error) {
	i, ok := s.Cache.Ideas[id]
	if !ok {
		return nil, newErr(KindNotFound, "idea %s not found", id)
	}
	if i.Status == types.IdeaPromoted {
		return nil, remediate(KindConflict, "", "idea %s is already promoted", id)
	}
	i.Status = types.IdeaDiscarded
	if err := s.Cache.PutIdea(ctx, i); err != nil {
		return nil, wrapIO(err, "discard idea %s", id)
	}
	return i, nil
}

// DeleteIdea tombstones id.
func (s *Store) DeleteIdea(ctx context.Context, id string) error {
	if _, ok := s.Cache.Ideas[id]; !ok {
		return newErr(KindNotFound, "idea %s not found", id)
	}
	return s.Cache.DeleteEntity(ctx, id, types.KindIdea)
}
