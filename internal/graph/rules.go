// Package graph implements the edge engine (spec §4.5): structural
// validation for the closed set of edge types, cycle detection on the
// blocking subgraph, and connected-component analysis.
package graph

import (
	"fmt"

	"github.com/binnacle-dev/binnacle/internal/cache"
	"github.com/binnacle-dev/binnacle/internal/types"
)

// kindSet is a small set of allowed kinds for one endpoint of an edge type.
type kindSet map[types.Kind]bool

func kinds(ks ...types.Kind) kindSet {
	s := make(kindSet, len(ks))
	for _, k := range ks {
		s[k] = true
	}
	return s
}

var anyKind = kindSet(nil) // nil set means "no kind restriction"

func (s kindSet) allows(k types.Kind) bool {
	if s == nil {
		return true
	}
	return s[k]
}

// contains reports whether k is a member of s, treating a nil set as empty.
func (s kindSet) contains(k types.Kind) bool {
	return s != nil && s[k]
}

// rule describes the allowed (source kind, target kind) combination for an
// edge type, plus whether a non-empty reason is mandatory.
type rule struct {
	sourceKinds   kindSet
	targetKinds   kindSet
	sameKindOnly  bool
	excludeKinds  kindSet // kinds neither endpoint may be, when sameKindOnly
	requireReason bool
}

var rules = map[types.EdgeType]rule{
	types.EdgeDependsOn:  {requireReason: true},
	types.EdgeBlocks:     {},
	types.EdgeRelatedTo:  {},
	types.EdgeDuplicates: {sameKindOnly: true, excludeKinds: kinds(types.KindTest)},
	types.EdgeSupersedes: {sameKindOnly: true, excludeKinds: kinds(types.KindTest)},
	types.EdgeFixes:      {sourceKinds: kinds(types.KindTask), targetKinds: kinds(types.KindBug)},
	types.EdgeCausedBy:   {sourceKinds: kinds(types.KindBug), targetKinds: kinds(types.KindTask)},
	types.EdgeParentOf:   {},
	types.EdgeChildOf:    {},
	types.EdgeTests:      {sourceKinds: kinds(types.KindTest), targetKinds: kinds(types.KindTask, types.KindBug)},
	types.EdgeQueued:     {sourceKinds: kinds(types.KindTask, types.KindBug), targetKinds: kinds(types.KindQueue)},
	types.EdgeImpacts:    {sourceKinds: kinds(types.KindBug), targetKinds: kinds(types.KindTask, types.KindMilestone)},
	types.EdgeDocuments:  {sourceKinds: kinds(types.KindDoc)},
	types.EdgeWorkingOn:  {sourceKinds: kinds(types.KindAgent), targetKinds: kinds(types.KindTask, types.KindBug)},
	types.EdgeWorkedOn:   {sourceKinds: kinds(types.KindAgent), targetKinds: kinds(types.KindTask, types.KindBug)},
}

// ValidationError reports why a candidate edge fails structural validation.
type ValidationError struct {
	Reason string
}

func (e *ValidationError) Error() string { return e.Reason }

// Validate checks a candidate edge against the closed edge-type rules,
// the source≠target invariant, reason requirements, and (for parent_of /
// child_of) the single-parent hierarchy constraint. It does not check for
// cycles; call DetectCycle separately after the edge would be added.
func Validate(c *cache.Cache, e *types.Edge) error {
	if !e.EdgeType.IsValid() {
		return &ValidationError{Reason: fmt.Sprintf("unknown edge type %q", e.EdgeType)}
	}
	if e.Source == e.Target {
		return &ValidationError{Reason: "source and target must differ"}
	}
	if e.EdgeType == types.EdgeDependsOn && e.Reason == "" {
		return &ValidationError{Reason: "depends_on edges require a reason"}
	}

	_, srcKind, srcOK := c.GetEntity(e.Source)
	_, tgtKind, tgtOK := c.GetEntity(e.Target)
	if !srcOK {
		return &ValidationError{Reason: fmt.Sprintf("source %s not found", e.Source)}
	}
	if !tgtOK {
		return &ValidationError{Reason: fmt.Sprintf("target %s not found", e.Target)}
	}

	r, ok := rules[e.EdgeType]
	if !ok {
		return &ValidationError{Reason: fmt.Sprintf("no rule registered for edge type %q", e.EdgeType)}
	}

	if r.sameKindOnly {
		if srcKind != tgtKind {
			return &ValidationError{Reason: fmt.Sprintf("%s requires both endpoints to share a kind", e.EdgeType)}
		}
		if r.excludeKinds.contains(srcKind) {
			return &ValidationError{Reason: fmt.Sprintf("%s is not valid on %s", e.EdgeType, srcKind)}
		}
	}
	if !r.sourceKinds.allows(srcKind) {
		return &ValidationError{Reason: fmt.Sprintf("%s source must be one of the allowed kinds, got %s", e.EdgeType, srcKind)}
	}
	if !r.targetKinds.allows(tgtKind) {
		return &ValidationError{Reason: fmt.Sprintf("%s target must be one of the allowed kinds, got %s", e.EdgeType, tgtKind)}
	}

	// Single-parent hierarchy (spec §3: "at most one parent across both
	// relations"): child_of's source and parent_of's target are both
	// "the child", so each must be checked against both edge types, not
	// just the type being added.
	if e.EdgeType == types.EdgeChildOf {
		for _, other := range c.EdgesFrom(e.Source) {
			if other.EdgeType == types.EdgeChildOf && other.ID != e.ID && other.Target != e.Target {
				return &ValidationError{Reason: fmt.Sprintf("%s already has a parent via %s", e.Source, other.ID)}
			}
		}
		for _, other := range c.EdgesTo(e.Source) {
			if other.EdgeType == types.EdgeParentOf && other.ID != e.ID && other.Source != e.Target {
				return &ValidationError{Reason: fmt.Sprintf("%s already has a parent via %s", e.Source, other.ID)}
			}
		}
	}
	if e.EdgeType == types.EdgeParentOf {
		for _, other := range c.EdgesOfType(types.EdgeParentOf) {
			if other.Target == e.Target && other.ID != e.ID && other.Source != e.Source {
				return &ValidationError{Reason: fmt.Sprintf("%s already has a parent via %s", e.Target, other.ID)}
			}
		}
		for _, other := range c.EdgesFrom(e.Target) {
			if other.EdgeType == types.EdgeChildOf && other.ID != e.ID && other.Target != e.Source {
				return &ValidationError{Reason: fmt.Sprintf("%s already has a parent via %s", e.Target, other.ID)}
			}
		}
	}

	return nil
}
