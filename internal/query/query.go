// Package query implements the read-side engine (spec §4.7): the ready
// and blocked work lists, and show with blocker-chain hydration.
package query

import (
	"fmt"
	"sort"

	"github.com/binnacle-dev/binnacle/internal/cache"
	"github.com/binnacle-dev/binnacle/internal/status"
	"github.com/binnacle-dev/binnacle/internal/types"
)

// Ready is one entry in the ready-work list.
type Ready struct {
	ID       string
	Title    string
	Kind     types.Kind
	Priority int
	Queued   bool
}

// ReadyList returns every pending/reopened task or bug whose dependencies
// are all complete, sorted queued-first, then by priority ascending, then
// by creation time ascending (spec §4.7).
func ReadyList(c *cache.Cache) []Ready {
	var out []Ready

	consider := func(id string, holder types.StatusHolder, kind types.Kind, priority int) {
		st := holder.GetStatus()
		if st != types.StatusPending && st != types.StatusReopened {
			return
		}
		if len(blockers(c, id)) > 0 {
			return
		}
		out = append(out, Ready{
			ID: id, Title: holder.GetCore().Title, Kind: kind, Priority: priority,
			Queued: len(c.EdgesFrom(id)) > 0 && hasQueueEdge(c, id),
		})
	}

	for id, t := range c.Tasks {
		consider(id, t, types.KindTask, t.Priority)
	}
	for id, b := range c.Bugs {
		consider(id, b, types.KindBug, b.Priority)
	}

	createdAt := map[string]int64{}
	for id, t := range c.Tasks {
		createdAt[id] = t.CreatedAt.UnixNano()
	}
	for id, b := range c.Bugs {
		createdAt[id] = b.CreatedAt.UnixNano()
	}

	sort.Slice(out, func(i, j int) bool {
		if out[i].Queued != out[j].Queued {
			return out[i].Queued // queued entries sort first
		}
		if out[i].Priority != out[j].Priority {
			return out[i].Priority < out[j].Priority
		}
		return createdAt[out[i].ID] < createdAt[out[j].ID]
	})
	return out
}

func hasQueueEdge(c *cache.Cache, id string) bool {
	for _, e := range c.EdgesFrom(id) {
		if e.EdgeType == types.EdgeQueued {
			return true
		}
	}
	return false
}

func blockers(c *cache.Cache, id string) []string {
	var blocked []string
	for _, dep := range status.Dependencies(c, id) {
		holder, ok := c.StatusHolder(dep)
		if !ok {
			continue
		}
		if !holder.GetStatus().IsComplete() {
			blocked = append(blocked, dep)
		}
	}
	return blocked
}

// Blocked is one entry in the blocked-work list.
type Blocked struct {
	ID       string
	Title    string
	Kind     types.Kind
	Blockers []string
}

// BlockedList returns every item in status blocked, or pending/reopened
// with incomplete dependencies, along with the ids blocking it.
func BlockedList(c *cache.Cache) []Blocked {
	var out []Blocked

	consider := func(id string, holder types.StatusHolder, kind types.Kind) {
		st := holder.GetStatus()
		ids := blockers(c, id)
		if st == types.StatusBlocked || ((st == types.StatusPending || st == types.StatusReopened) && len(ids) > 0) {
			out = append(out, Blocked{ID: id, Title: holder.GetCore().Title, Kind: kind, Blockers: ids})
		}
	}

	for id, t := range c.Tasks {
		consider(id, t, types.KindTask)
	}
	for id, b := range c.Bugs {
		consider(id, b, types.KindBug)
	}

	sort.Slice(out, func(i, j int) bool { return out[i].ID < out[j].ID })
	return out
}

// BlockerContext names a blocker along with its own blockers, one level
// deep, for show's transitive-context hydration.
type BlockerContext struct {
	ID            string
	Title         string
	Status        types.Status
	Assignee      string
	ItsOwnBlocker []string
}

// EdgeDirection is which side of an edge the hydrated entity sits on.
type EdgeDirection string

const (
	DirectionOutgoing EdgeDirection = "outgoing"
	DirectionIncoming EdgeDirection = "incoming"
)

// HydratedEdge is one edge touching the shown entity, resolved to the
// related entity's title and (when it participates in the status engine)
// its status (spec §4.4: "each edge shows direction, related id, related
// title if available, related status if applicable").
type HydratedEdge struct {
	EdgeType      types.EdgeType
	Direction     EdgeDirection
	RelatedID     string
	RelatedTitle  string
	RelatedKind   types.Kind
	RelatedStatus types.Status
	HasStatus     bool
	Reason        string
}

// Show is the hydrated result of looking up a single entity: the entity
// itself, its immediate blockers (with one level of their own context),
// every edge touching it, and any docs that reference it via a documents
// edge. KindMismatch is set when the caller asked for one kind but id
// resolves to another; the entity is still returned (spec §4.4: this is a
// result, not an error).
type Show struct {
	Entity       types.Entity
	Kind         types.Kind
	Blockers     []BlockerContext
	Edges        []HydratedEdge
	LinkedDocs   []*types.Doc
	KindMismatch bool
	MismatchNote string
}

// hydrateEdge resolves the entity on the other end of e (relative to id)
// into a HydratedEdge, skipping edges whose related entity no longer
// resolves (dangling references are a health-check concern, not show's).
func hydrateEdge(c *cache.Cache, id string, e *types.Edge, direction EdgeDirection) (HydratedEdge, bool) {
	relatedID := e.Target
	if direction == DirectionIncoming {
		relatedID = e.Source
	}
	entity, kind, ok := c.GetEntity(relatedID)
	if !ok {
		return HydratedEdge{}, false
	}
	h := HydratedEdge{
		EdgeType: e.EdgeType, Direction: direction, RelatedID: relatedID,
		RelatedTitle: entity.GetCore().Title, RelatedKind: kind, Reason: e.Reason,
	}
	if holder, ok := c.StatusHolder(relatedID); ok {
		h.RelatedStatus = holder.GetStatus()
		h.HasStatus = true
	}
	return h, true
}

// ShowEntity looks up id. When expectedKind is non-empty and id resolves to
// a different kind, the result still carries the actual entity, with
// KindMismatch set and MismatchNote explaining the discrepancy.
func ShowEntity(c *cache.Cache, id string, expectedKind types.Kind) (*Show, error) {
	entity, kind, ok := c.GetEntity(id)
	if !ok {
		return nil, fmt.Errorf("query: %s not found", id)
	}

	result := &Show{Entity: entity, Kind: kind}
	if expectedKind != "" && kind != expectedKind {
		result.KindMismatch = true
		result.MismatchNote = fmt.Sprintf("%s is a %s, not a %s", id, kind, expectedKind)
	}

	for _, depID := range status.Dependencies(c, id) {
		holder, ok := c.StatusHolder(depID)
		if !ok {
			continue
		}
		if holder.GetStatus().IsComplete() {
			continue
		}
		bc := BlockerContext{ID: depID, Title: holder.GetCore().Title, Status: holder.GetStatus(), Assignee: holder.GetAssignee()}
		for _, grand := range blockers(c, depID) {
			bc.ItsOwnBlocker = append(bc.ItsOwnBlocker, grand)
		}
		result.Blockers = append(result.Blockers, bc)
	}

	for _, e := range c.EdgesFrom(id) {
		if h, ok := hydrateEdge(c, id, e, DirectionOutgoing); ok {
			result.Edges = append(result.Edges, h)
		}
	}
	for _, e := range c.EdgesTo(id) {
		if h, ok := hydrateEdge(c, id, e, DirectionIncoming); ok {
			result.Edges = append(result.Edges, h)
		}
	}

	for _, e := range c.EdgesOfType(types.EdgeDocuments) {
		if e.Target == id {
			if doc, ok := c.Docs[e.Source]; ok {
				result.LinkedDocs = append(result.LinkedDocs, doc)
			}
		}
	}

	return result, nil
}
