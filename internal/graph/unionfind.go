package graph

import "github.com/binnacle-dev/binnacle/internal/cache"

// unionFind is a standard disjoint-set structure with path compression and
// union by rank; there is no library in the reference stack for this, it's
// a small, well-known algorithm not worth pulling a dependency in for.
type unionFind struct {
	parent map[string]string
	rank   map[string]int
}

func newUnionFind() *unionFind {
	return &unionFind{parent: map[string]string{}, rank: map[string]int{}}
}

func (u *unionFind) find(x string) string {
	if _, ok := u.parent[x]; !ok {
		u.parent[x] = x
		u.rank[x] = 0
		return x
	}
	if u.parent[x] != x {
		u.parent[x] = u.find(u.parent[x])
	}
	return u.parent[x]
}

func (u *unionFind) union(a, b string) {
	ra, rb := u.find(a), u.find(b)
	if ra == rb {
		return
	}
	if u.rank[ra] < u.rank[rb] {
		ra, rb = rb, ra
	}
	u.parent[rb] = ra
	if u.rank[ra] == u.rank[rb] {
		u.rank[ra]++
	}
}

// Components groups every entity and edge endpoint in c into connected
// components, treating all edges as undirected; the graph-components query
// (spec §4.7) builds on it.
func Components(c *cache.Cache) map[string][]string {
	uf := newUnionFind()
	seen := map[string]bool{}

	touch := func(id string) {
		if !seen[id] {
			seen[id] = true
			uf.find(id)
		}
	}

	for id := range c.Tasks {
		touch(id)
	}
	for id := range c.Bugs {
		touch(id)
	}
	for id := range c.Ideas {
		touch(id)
	}
	for id := range c.Milestones {
		touch(id)
	}
	for id := range c.Docs {
		touch(id)
	}
	for id := range c.Tests {
		touch(id)
	}
	for id := range c.Queues {
		touch(id)
	}
	for id := range c.Agents {
		touch(id)
	}

	for _, e := range c.Edges {
		touch(e.Source)
		touch(e.Target)
		uf.union(e.Source, e.Target)
	}

	groups := map[string][]string{}
	for id := range seen {
		root := uf.find(id)
		groups[root] = append(groups[root], id)
	}
	return groups
}
