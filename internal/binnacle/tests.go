package binnacle

import (
	"context"

	"github.com/binnacle-dev/binnacle/internal/ids"
	"github.com/binnacle-dev/binnacle/internal/types"
)

// NewTestCase is the input to CreateTest.
type NewTestCase struct {
	Title       string
	ShortName   string
	Description string
	Tags        []string
	Command     string
	WorkingDir  string
	Pattern     string
	LinkedTasks []string
	LinkedBugs  []string
}

// CreateTest appends a new runnable test node.
func (s *Store) CreateTest(ctx context.Context, in NewTestCase) (Result[*types.Test], error) {
	if in.Title == "" {
		return Result[*types.Test]{}, newErr(KindInvalidInput, "title must not be empty")
	}
	if in.Command == "" {
		return Result[*types.Test]{}, newErr(KindInvalidInput, "command must not be empty")
	}
	core, warnings := newCore(ids.PrefixTest, types.KindTest, in.Title, in.ShortName, in.Description, normalizeTags(in.Tags), s.Cache.Exists)
	t := &types.Test{
		Core: core, Command: in.Command, WorkingDir: in.WorkingDir, Pattern: in.Pattern,
		LinkedTasks: append([]string{}, in.LinkedTasks...), LinkedBugs: append([]string{}, in.LinkedBugs...),
	}
	if err := s.Cache.PutTest(ctx, t); err != nil {
		return Result[*types.Test]{}, wrapIO(err, "create test")
	}

	for _, taskID := range in.LinkedTasks {
		if _, err := s.AddEdge(ctx, NewEdge{Source: t.ID, Target: taskID, EdgeType: types.EdgeTests}); err != nil {
			return Result[*types.Test]{}, err
		}
	}
	for _, bugID := range in.LinkedBugs {
		if _, err := s.AddEdge(ctx, NewEdge{Source: t.ID, Target: bugID, EdgeType: types.EdgeTests}); err != nil {
			return Result[*types.Test]{}, err
		}
	}

	s.logAction("test.create", t.ID, in.Command)
	return ok(t, warnings...), nil
}

// GetTest returns the test behind id.
func (s *Store) GetTest(id string) (*types.Test, error) {
	t, ok := s.Cache.Tests[id]
	if !ok {
		return nil, newErr(KindNotFound, "test %s not found", id)
	}
	return t, nil
}

// ListTests returns every test, optionally filtered by tag.
func (s *Store) ListTests(tag string) []*types.Test {
	var out []*types.Test
	for _, t := range s.Cache.Tests {
		if tag != "" && !hasTag(t.Tags, tag) {
			continue
		}
		out = append(out, t)
	}
	return out
}

// TestPatch is a partial update; nil fields are left unchanged.
type TestPatch struct {
	Title       *string
	ShortName   *string
	Description *string
	Tags        []string
	Command     *string
	WorkingDir  *string
	Pattern     *string
}

// UpdateTest applies patch to id.
func (s *Store) UpdateTest(ctx context.Context, id string, patch TestPatch) (*types.Test, error) {
	t, ok := s.Cache.Tests[id]
	if !ok {
		return nil, newErr(KindNotFound, "test %s not found", id)
	}
	if patch.Title != nil {
		t.Title = *patch.Title
	}
	if patch.ShortName != nil {
		truncated, _ := types.TruncateShortName(*patch.ShortName)
		t.ShortName = truncated
	}
	if patch.Description != nil {
		t.Description = *patch.Description
	}
	if patch.Tags != nil {
		t.Tags = normalizeTags(patch.Tags)
	}
	if patch.Command != nil {
		t.Command = *patch.Command
	}
	if patch.WorkingDir != nil {
		t.WorkingDir = *patch.WorkingDir
	}
	if patch.Pattern != nil {
		t.Pattern = *patch.Pattern
	}
	if err := s.Cache.PutTest(ctx, t); err != nil {
		return nil, wrapIO(err, "update test %s", id)
	}
	return t, nil
}

// DeleteTest tombstones id.
func (s *Store) DeleteTest(ctx context.Context, id string) error {
	if _, ok := s.Cache.Tests[id]; !ok {
		return newErr(KindNotFound, "test %s not found", id)
	}
	return s.Cache.DeleteEntity(ctx, id, types.KindTest)
}
