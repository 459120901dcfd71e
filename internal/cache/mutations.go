package cache

import (
	"context"
	"fmt"
	"time"

	"github.com/binnacle-dev/binnacle/internal/jsonl"
	"github.com/binnacle-dev/binnacle/internal/storage"
	"github.com/binnacle-dev/binnacle/internal/types"
)

// Exists reports whether id is already taken by any entity or edge, for use
// as an ids.Exists closure during id generation.
func (c *Cache) Exists(id string) bool {
	c.mu.RLock()
	defer c.mu.RUnlock()
	_, _, ok := c.getEntityLocked(id)
	if ok {
		return true
	}
	_, ok = c.Edges[id]
	return ok
}

// IsEmpty reports whether the cache holds no work items or edges, used by
// import to decide whether a replace is safe (spec §4.9 step 3).
func (c *Cache) IsEmpty() bool {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return len(c.Tasks) == 0 && len(c.Bugs) == 0 && len(c.Ideas) == 0 &&
		len(c.Milestones) == 0 && len(c.Docs) == 0 && len(c.Tests) == 0 &&
		len(c.Queues) == 0 && len(c.Agents) == 0 && len(c.Edges) == 0
}

// GetEntity returns the entity with the given id, regardless of kind.
func (c *Cache) GetEntity(id string) (types.Entity, types.Kind, bool) {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return c.getEntityLocked(id)
}

func (c *Cache) getEntityLocked(id string) (types.Entity, types.Kind, bool) {
	if v, ok := c.Tasks[id]; ok {
		return v, types.KindTask, true
	}
	if v, ok := c.Bugs[id]; ok {
		return v, types.KindBug, true
	}
	if v, ok := c.Ideas[id]; ok {
		return v, types.KindIdea, true
	}
	if v, ok := c.Milestones[id]; ok {
		return v, types.KindMilestone, true
	}
	if v, ok := c.Docs[id]; ok {
		return v, types.KindDoc, true
	}
	if v, ok := c.Tests[id]; ok {
		return v, types.KindTest, true
	}
	if v, ok := c.Queues[id]; ok {
		return v, types.KindQueue, true
	}
	if v, ok := c.Agents[id]; ok {
		return v, types.KindAgent, true
	}
	return nil, "", false
}

// StatusHolder returns the Task/Bug/Milestone behind id, if any.
func (c *Cache) StatusHolder(id string) (types.StatusHolder, bool) {
	c.mu.RLock()
	defer c.mu.RUnlock()
	if v, ok := c.Tasks[id]; ok {
		return v, true
	}
	if v, ok := c.Bugs[id]; ok {
		return v, true
	}
	if v, ok := c.Milestones[id]; ok {
		return v, true
	}
	return nil, false
}

// EdgesFrom, EdgesTo, and EdgesOfType expose the secondary indexes built
// during Rebuild. Callers must not mutate the returned slices.
func (c *Cache) EdgesFrom(id string) []*types.Edge  { return c.lookupEdges(c.edgesBySource[id]) }
func (c *Cache) EdgesTo(id string) []*types.Edge    { return c.lookupEdges(c.edgesByTarget[id]) }
func (c *Cache) EdgesOfType(t types.EdgeType) []*types.Edge {
	return c.lookupEdges(c.edgesByType[t])
}

func (c *Cache) lookupEdges(ids []string) []*types.Edge {
	c.mu.RLock()
	defer c.mu.RUnlock()
	out := make([]*types.Edge, 0, len(ids))
	for _, id := range ids {
		if e, ok := c.Edges[id]; ok {
			out = append(out, e)
		}
	}
	return out
}

// appendAndPut marshals v, writes it through the backend's append-only stream,
// and folds it into the in-memory index in the same call so callers never
// observe a gap between log and cache.
func appendAndPut[T any](ctx context.Context, backend storage.Backend, stream string, into map[string]*T, id string, v *T) error {
	line, err := jsonl.Encode(v)
	if err != nil {
		return fmt.Errorf("cache: encode for %s: %w", stream, err)
	}
	if err := backend.AppendJSONL(ctx, stream, line); err != nil {
		return fmt.Errorf("cache: append %s: %w", stream, err)
	}
	into[id] = v
	return nil
}

func (c *Cache) PutTask(ctx context.Context, t *types.Task) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	t.Kind = types.KindTask
	return appendAndPut(ctx, c.backend, streamNames[types.KindTask], c.Tasks, t.ID, t)
}

func (c *Cache) PutBug(ctx context.Context, b *types.Bug) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	b.Kind = types.KindBug
	return appendAndPut(ctx, c.backend, streamNames[types.KindBug], c.Bugs, b.ID, b)
}

func (c *Cache) PutIdea(ctx context.Context, i *types.Idea) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	i.Kind = types.KindIdea
	return appendAndPut(ctx, c.backend, streamNames[types.KindIdea], c.Ideas, i.ID, i)
}

func (c *Cache) PutMilestone(ctx context.Context, m *types.Milestone) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	m.Kind = types.KindMilestone
	return appendAndPut(ctx, c.backend, streamNames[types.KindMilestone], c.Milestones, m.ID, m)
}

func (c *Cache) PutDoc(ctx context.Context, d *types.Doc) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	d.Kind = types.KindDoc
	return appendAndPut(ctx, c.backend, streamNames[types.KindDoc], c.Docs, d.ID, d)
}

func (c *Cache) PutTest(ctx context.Context, t *types.Test) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	t.Kind = types.KindTest
	return appendAndPut(ctx, c.backend, streamNames[types.KindTest], c.Tests, t.ID, t)
}

func (c *Cache) PutQueue(ctx context.Context, q *types.Queue) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	q.Kind = types.KindQueue
	return appendAndPut(ctx, c.backend, streamNames[types.KindQueue], c.Queues, q.ID, q)
}

func (c *Cache) PutAgent(ctx context.Context, a *types.Agent) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	a.Kind = types.KindAgent
	return appendAndPut(ctx, c.backend, streamNames[types.KindAgent], c.Agents, a.ID, a)
}

// PutEdge appends a new (or updated) edge record and refreshes the
// secondary indexes.
func (c *Cache) PutEdge(ctx context.Context, e *types.Edge) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	e.Kind = types.KindEdge
	if err := appendAndPut(ctx, c.backend, edgeStream, c.Edges, e.ID, e); err != nil {
		return err
	}
	c.indexEdgeLocked(e)
	return nil
}

func (c *Cache) indexEdgeLocked(e *types.Edge) {
	c.edgesBySource[e.Source] = appendUnique(c.edgesBySource[e.Source], e.ID)
	c.edgesByTarget[e.Target] = appendUnique(c.edgesByTarget[e.Target], e.ID)
	c.edgesByType[e.EdgeType] = appendUnique(c.edgesByType[e.EdgeType], e.ID)
}

func appendUnique(ids []string, id string) []string {
	for _, existing := range ids {
		if existing == id {
			return ids
		}
	}
	return append(ids, id)
}

// DeleteEntity appends a tombstone record for id under kind's stream and
// removes it from the index.
func (c *Cache) DeleteEntity(ctx context.Context, id string, kind types.Kind) error {
	c.mu.Lock()
	defer c.mu.Unlock()

	now := time.Now()
	switch kind {
	case types.KindTask:
		if v, ok := c.Tasks[id]; ok {
			v.Deleted = true
			v.UpdatedAt = now
			if err := appendAndPut(ctx, c.backend, streamNames[kind], c.Tasks, id, v); err != nil {
				return err
			}
			delete(c.Tasks, id)
		}
	case types.KindBug:
		if v, ok := c.Bugs[id]; ok {
			v.Deleted = true
			v.UpdatedAt = now
			if err := appendAndPut(ctx, c.backend, streamNames[kind], c.Bugs, id, v); err != nil {
				return err
			}
			delete(c.Bugs, id)
		}
	case types.KindIdea:
		if v, ok := c.Ideas[id]; ok {
			v.Deleted = true
			v.UpdatedAt = now
			if err := appendAndPut(ctx, c.backend, streamNames[kind], c.Ideas, id, v); err != nil {
				return err
			}
			delete(c.Ideas, id)
		}
	case types.KindMilestone:
		if v, ok := c.Milestones[id]; ok {
			v.Deleted = true
			v.UpdatedAt = now
			if err := appendAndPut(ctx, c.backend, streamNames[kind], c.Milestones, id, v); err != nil {
				return err
			}
			delete(c.Milestones, id)
		}
	case types.KindDoc:
		if v, ok := c.Docs[id]; ok {
			v.Deleted = true
			v.UpdatedAt = now
			if err := appendAndPut(ctx, c.backend, streamNames[kind], c.Docs, id, v); err != nil {
				return err
			}
			delete(c.Docs, id)
		}
	case types.KindTest:
		if v, ok := c.Tests[id]; ok {
			v.Deleted = true
			v.UpdatedAt = now
			if err := appendAndPut(ctx, c.backend, streamNames[kind], c.Tests, id, v); err != nil {
				return err
			}
			delete(c.Tests, id)
		}
	case types.KindQueue:
		if v, ok := c.Queues[id]; ok {
			v.Deleted = true
			v.UpdatedAt = now
			if err := appendAndPut(ctx, c.backend, streamNames[kind], c.Queues, id, v); err != nil {
				return err
			}
			delete(c.Queues, id)
		}
	case types.KindAgent:
		if v, ok := c.Agents[id]; ok {
			v.Deleted = true
			v.UpdatedAt = now
			if err := appendAndPut(ctx, c.backend, streamNames[kind], c.Agents, id, v); err != nil {
				return err
			}
			delete(c.Agents, id)
		}
	default:
		return fmt.Errorf("cache: unknown kind %q for delete", kind)
	}
	return nil
}

// RemoveEdge tombstones an edge and drops it from the secondary indexes.
func (c *Cache) RemoveEdge(ctx context.Context, edgeID string) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	e, ok := c.Edges[edgeID]
	if !ok {
		return fmt.Errorf("cache: edge %s not found", edgeID)
	}
	e.Deleted = true
	if err := appendAndPut(ctx, c.backend, edgeStream, c.Edges, edgeID, e); err != nil {
		return err
	}
	delete(c.Edges, edgeID)
	c.edgesBySource[e.Source] = removeID(c.edgesBySource[e.Source], edgeID)
	c.edgesByTarget[e.Target] = removeID(c.edgesByTarget[e.Target], edgeID)
	c.edgesByType[e.EdgeType] = removeID(c.edgesByType[e.EdgeType], edgeID)
	return nil
}

func removeID(ids []string, id string) []string {
	out := ids[:0]
	for _, v := range ids {
		if v != id {
			out = append(out, v)
		}
	}
	return out
}

// SetConfig appends a config record and updates the in-memory map.
func (c *Cache) SetConfig(ctx context.Context, key, value string) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	entry := ConfigEntry{Key: key, Value: value, UpdatedAt: time.Now()}
	line, err := jsonl.Encode(entry)
	if err != nil {
		return fmt.Errorf("cache: encode config %s: %w", key, err)
	}
	if err := c.backend.AppendJSONL(ctx, storage.ConfigStream, line); err != nil {
		return fmt.Errorf("cache: append config %s: %w", key, err)
	}
	c.Config[key] = value
	return nil
}

// GetConfig returns the current value for key, if set.
func (c *Cache) GetConfig(key string) (string, bool) {
	c.mu.RLock()
	defer c.mu.RUnlock()
	v, ok := c.Config[key]
	return v, ok
}

// TouchAgent appends an updated agent record reflecting new activity.
func (c *Cache) TouchAgent(ctx context.Context, a *types.Agent) error {
	a.LastActivityAt = time.Now()
	a.CommandCount++
	return c.PutAgent(ctx, a)
}
