package graph

import (
	"fmt"

	"github.com/binnacle-dev/binnacle/internal/cache"
	"github.com/binnacle-dev/binnacle/internal/types"
)

// CycleError reports a detected cycle in the blocking subgraph, as the
// ordered list of ids walked to find it.
type CycleError struct {
	Path []string
}

func (e *CycleError) Error() string {
	return fmt.Sprintf("cycle detected: %v", e.Path)
}

// blockingEdge returns (from, to) in "must happen before" order for e, or
// ok=false if e does not participate in the blocking subgraph (spec §4.5:
// depends_on, blocks, child_of).
func blockingEdge(e *types.Edge) (from, to string, ok bool) {
	switch e.EdgeType {
	case types.EdgeDependsOn:
		// source depends on target: target must complete before source.
		return e.Target, e.Source, true
	case types.EdgeBlocks:
		// source blocks target: source must complete before target.
		return e.Source, e.Target, true
	case types.EdgeChildOf:
		// child_of doesn't order completion, but a parent cannot depend on
		// its own descendant without forming a reporting-structure cycle.
		return e.Source, e.Target, true
	}
	return "", "", false
}

// DetectCycle checks whether adding candidate to the existing blocking
// subgraph in c would introduce a cycle. It runs a DFS from candidate's
// "to" node looking for a path back to its "from" node.
func DetectCycle(c *cache.Cache, candidate *types.Edge) error {
	from, to, ok := blockingEdge(candidate)
	if !ok {
		return nil
	}

	adj := map[string][]string{}
	for _, t := range types.AllEdgeTypes {
		if !types.BlockingEdgeTypes[t] {
			continue
		}
		for _, e := range c.EdgesOfType(t) {
			ef, et, ok := blockingEdge(e)
			if !ok {
				continue
			}
			adj[ef] = append(adj[ef], et)
		}
	}
	adj[from] = append(adj[from], to)

	visited := map[string]bool{}
	var path []string
	var dfs func(node string) bool
	dfs = func(node string) bool {
		if node == from && len(path) > 0 {
			return true
		}
		if visited[node] {
			return false
		}
		visited[node] = true
		path = append(path, node)
		for _, next := range adj[node] {
			if dfs(next) {
				return true
			}
		}
		path = path[:len(path)-1]
		return false
	}

	if dfs(to) {
		return &CycleError{Path: append([]string{from}, path...)}
	}
	return nil
}
