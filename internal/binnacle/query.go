package binnacle

import (
	"sort"

	"github.com/binnacle-dev/binnacle/internal/graph"
	"github.com/binnacle-dev/binnacle/internal/query"
	"github.com/binnacle-dev/binnacle/internal/types"
)

// Ready returns the ready-work list (spec §4.7).
func (s *Store) Ready() []query.Ready { return query.ReadyList(s.Cache) }

// Blocked returns the blocked-work list (spec §4.7).
func (s *Store) Blocked() []query.Blocked { return query.BlockedList(s.Cache) }

// Show looks up id, optionally checking expectedKind, and hydrates its
// blocker chain and linked docs.
func (s *Store) Show(id string, expectedKind types.Kind) (*query.Show, error) {
	return query.ShowEntity(s.Cache, id, expectedKind)
}

// GraphComponent is one connected component of the full entity/edge graph
// (spec §4.7): every entity is unioned with every edge endpoint regardless
// of edge type, then a root is designated as a member with no outgoing
// depends_on or child_of edge and no incoming blocks edge.
type GraphComponent struct {
	Number  int
	Root    string
	Members []string
}

// hasOutgoingBlockingEdge reports whether id has an outgoing depends_on or
// child_of edge, or an incoming blocks edge (a blocks edge reversed is a
// dependency of its target; spec §4.7: a component root has none).
func (s *Store) hasOutgoingBlockingEdge(id string) bool {
	for _, e := range s.Cache.EdgesFrom(id) {
		if e.EdgeType == types.EdgeDependsOn || e.EdgeType == types.EdgeChildOf {
			return true
		}
	}
	for _, e := range s.Cache.EdgesTo(id) {
		if e.EdgeType == types.EdgeBlocks {
			return true
		}
	}
	return false
}

// Components returns every connected component, largest first and numbered,
// each annotated with a root member.
func (s *Store) Components() []GraphComponent {
	groups := graph.Components(s.Cache)

	out := make([]GraphComponent, 0, len(groups))
	for _, members := range groups {
		sort.Strings(members)
		root := members[0]
		for _, id := range members {
			if !s.hasOutgoingBlockingEdge(id) {
				root = id
				break
			}
		}
		out = append(out, GraphComponent{Root: root, Members: members})
	}

	sort.Slice(out, func(i, j int) bool {
		if len(out[i].Members) != len(out[j].Members) {
			return len(out[i].Members) > len(out[j].Members)
		}
		return out[i].Root < out[j].Root
	})
	for i := range out {
		out[i].Number = i + 1
	}
	return out
}
