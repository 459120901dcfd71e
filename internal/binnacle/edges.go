package binnacle

import (
	"context"
	"fmt"
	"time"

	"github.com/binnacle-dev/binnacle/internal/graph"
	"github.com/binnacle-dev/binnacle/internal/ids"
	"github.com/binnacle-dev/binnacle/internal/status"
	"github.com/binnacle-dev/binnacle/internal/types"
)

// NewEdge is the input to AddEdge.
type NewEdge struct {
	Source    string
	Target    string
	EdgeType  types.EdgeType
	Reason    string
	Pinned    bool
	CreatedBy string
}

// AddEdge validates and appends a new edge (spec §4.5): structural rules,
// reason requirements, single-parent hierarchy, and cycle prevention on the
// blocking subgraph. Adding a depends_on edge to an already-closed source
// runs the closed -> partial demotion.
func (s *Store) AddEdge(ctx context.Context, in NewEdge) (Result[*types.Edge], error) {
	e := &types.Edge{
		ID: ids.GenerateUnique(ids.PrefixEdge, in.Source+in.Target+string(in.EdgeType), s.Cache.Exists),
		Kind: types.KindEdge, Source: in.Source, Target: in.Target, EdgeType: in.EdgeType,
		Reason: in.Reason, Pinned: in.Pinned, CreatedAt: time.Now(), CreatedBy: in.CreatedBy,
	}

	if err := graph.Validate(s.Cache, e); err != nil {
		return Result[*types.Edge]{}, remediate(KindConflict, "fix the edge endpoints or reason and retry", "%s", err.Error())
	}
	if err := graph.DetectCycle(s.Cache, e); err != nil {
		return Result[*types.Edge]{}, &Error{Kind: KindCycleDetected, Message: err.Error(),
			Remediation: "remove a conflicting edge first; a blocking cycle cannot be created"}
	}

	if err := s.Cache.PutEdge(ctx, e); err != nil {
		return Result[*types.Edge]{}, wrapIO(err, "add edge")
	}

	var warnings []Warning
	if in.EdgeType == types.EdgeDependsOn {
		if err := status.OnDependencyAdded(ctx, s.Cache, in.Source, in.Target); err != nil {
			return Result[*types.Edge]{}, wrapIO(err, "demote %s after new dependency", in.Source)
		}
	}

	s.logAction("edge.add", e.ID, string(e.EdgeType))
	return ok(e, warnings...), nil
}

// EdgesBetween lists every edge, in either direction, between a and b.
func (s *Store) EdgesBetween(a, b string) []*types.Edge {
	var out []*types.Edge
	for _, e := range s.Cache.EdgesFrom(a) {
		if e.Target == b {
			out = append(out, e)
		}
	}
	for _, e := range s.Cache.EdgesFrom(b) {
		if e.Target == a {
			out = append(out, e)
		}
	}
	return out
}

// RemoveEdgeResult is returned by RemoveEdge when called without a type
// hint: an informational listing rather than a mutation (spec §4.5).
type RemoveEdgeResult struct {
	Removed  *types.Edge
	Listing  []*types.Edge
	Guidance string
}

// RemoveEdge removes the edge of edgeType between a and b. When edgeType is
// empty, nothing is removed: the result carries every edge found between
// the endpoints and guidance to retry with a specific type.
func (s *Store) RemoveEdge(ctx context.Context, a, b string, edgeType types.EdgeType) (*RemoveEdgeResult, error) {
	candidates := s.EdgesBetween(a, b)

	if edgeType == "" {
		return &RemoveEdgeResult{
			Listing:  candidates,
			Guidance: fmt.Sprintf("%d edge(s) found between %s and %s; specify an edge type to remove one", len(candidates), a, b),
		}, nil
	}

	for _, e := range candidates {
		if e.EdgeType == edgeType {
			if err := s.Cache.RemoveEdge(ctx, e.ID); err != nil {
				return nil, wrapIO(err, "remove edge %s", e.ID)
			}
			s.logAction("edge.remove", e.ID, string(edgeType))
			return &RemoveEdgeResult{Removed: e}, nil
		}
	}
	return nil, newErr(KindNotFound, "no %s edge found between %s and %s", edgeType, a, b)
}
