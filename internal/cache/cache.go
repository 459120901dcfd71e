// Package cache implements the log/cache engine (spec §4.3): it replays
// every JSONL stream into an in-memory index keyed by id with
// per-entity latest-record semantics, and exposes the mutation API that
// appends records through the storage backend while keeping the index in
// sync.
package cache

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/binnacle-dev/binnacle/internal/ids"
	"github.com/binnacle-dev/binnacle/internal/jsonl"
	"github.com/binnacle-dev/binnacle/internal/storage"
	"github.com/binnacle-dev/binnacle/internal/types"
)

// streamNames maps each entity kind to its JSONL stream.
var streamNames = map[types.Kind]string{
	types.KindTask:      "tasks.jsonl",
	types.KindBug:       "bugs.jsonl",
	types.KindIdea:      "ideas.jsonl",
	types.KindMilestone: "milestones.jsonl",
	types.KindDoc:       "docs.jsonl",
	types.KindTest:      "tests.jsonl",
	types.KindQueue:     "queues.jsonl",
	types.KindAgent:     "agents.jsonl",
}

const edgeStream = "edges.jsonl"

// ConfigEntry is a single key/value config record, LWW-folded by key.
type ConfigEntry struct {
	Key       string    `json:"key"`
	Value     string    `json:"value"`
	UpdatedAt time.Time `json:"updated_at"`
	Deleted   bool      `json:"deleted,omitempty"`
}

// Cache is the in-memory index derived from the JSONL logs, plus the
// backend handle mutations are appended through.
type Cache struct {
	backend storage.Backend

	mu         sync.RWMutex
	Tasks      map[string]*types.Task
	Bugs       map[string]*types.Bug
	Ideas      map[string]*types.Idea
	Milestones map[string]*types.Milestone
	Docs       map[string]*types.Doc
	Tests      map[string]*types.Test
	Queues     map[string]*types.Queue
	Agents     map[string]*types.Agent
	Edges      map[string]*types.Edge
	Config     map[string]string
	Commits    map[string]*CommitLink

	edgesBySource map[string][]string
	edgesByTarget map[string][]string
	edgesByType   map[types.EdgeType][]string
}

// New constructs an empty cache bound to backend. Call Rebuild to populate it.
func New(backend storage.Backend) *Cache {
	c := &Cache{backend: backend}
	c.reset()
	return c
}

// Open constructs a cache and immediately rebuilds it from the backend.
func Open(ctx context.Context, backend storage.Backend) (*Cache, error) {
	c := New(backend)
	if err := c.Rebuild(ctx); err != nil {
		return nil, err
	}
	return c, nil
}

func (c *Cache) reset() {
	c.Tasks = map[string]*types.Task{}
	c.Bugs = map[string]*types.Bug{}
	c.Ideas = map[string]*types.Idea{}
	c.Milestones = map[string]*types.Milestone{}
	c.Docs = map[string]*types.Doc{}
	c.Tests = map[string]*types.Test{}
	c.Queues = map[string]*types.Queue{}
	c.Agents = map[string]*types.Agent{}
	c.Edges = map[string]*types.Edge{}
	c.Config = map[string]string{}
	c.Commits = map[string]*CommitLink{}
	c.edgesBySource = map[string][]string{}
	c.edgesByTarget = map[string][]string{}
	c.edgesByType = map[types.EdgeType][]string{}
}

// Rebuild re-derives the entire cache from the backend's JSONL streams
// only. It is idempotent: Rebuild(Rebuild(log)) == Rebuild(log) (spec §8).
func (c *Cache) Rebuild(ctx context.Context) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.reset()

	for kind, stream := range streamNames {
		lines, err := c.backend.ReadJSONL(ctx, stream)
		if err != nil {
			return fmt.Errorf("cache: read %s: %w", stream, err)
		}
		if err := c.foldStream(kind, lines); err != nil {
			return fmt.Errorf("cache: fold %s: %w", stream, err)
		}
	}

	edgeLines, err := c.backend.ReadJSONL(ctx, edgeStream)
	if err != nil {
		return fmt.Errorf("cache: read %s: %w", edgeStream, err)
	}
	if err := c.foldEdges(edgeLines); err != nil {
		return fmt.Errorf("cache: fold edges: %w", err)
	}

	configLines, err := c.backend.ReadJSONL(ctx, storage.ConfigStream)
	if err != nil {
		return fmt.Errorf("cache: read %s: %w", storage.ConfigStream, err)
	}
	c.foldConfig(configLines)

	commitLines, err := c.backend.ReadJSONL(ctx, commitStream)
	if err != nil {
		return fmt.Errorf("cache: read %s: %w", commitStream, err)
	}
	if err := c.foldCommits(commitLines); err != nil {
		return fmt.Errorf("cache: fold commits: %w", err)
	}

	c.rebuildEdgeIndexes()
	return nil
}

func (c *Cache) foldStream(kind types.Kind, lines []string) error {
	switch kind {
	case types.KindTask:
		return foldInto(lines, c.Tasks, func(t *types.Task) (*types.Core, bool) { return &t.Core, true })
	case types.KindBug:
		return foldInto(lines, c.Bugs, func(b *types.Bug) (*types.Core, bool) { return &b.Core, true })
	case types.KindIdea:
		return foldInto(lines, c.Ideas, func(i *types.Idea) (*types.Core, bool) { return &i.Core, true })
	case types.KindMilestone:
		return foldInto(lines, c.Milestones, func(m *types.Milestone) (*types.Core, bool) { return &m.Core, true })
	case types.KindDoc:
		return foldInto(lines, c.Docs, func(d *types.Doc) (*types.Core, bool) { return &d.Core, true })
	case types.KindTest:
		return foldInto(lines, c.Tests, func(t *types.Test) (*types.Core, bool) { return &t.Core, true })
	case types.KindQueue:
		return foldInto(lines, c.Queues, func(q *types.Queue) (*types.Core, bool) { return &q.Core, true })
	case types.KindAgent:
		return foldInto(lines, c.Agents, func(a *types.Agent) (*types.Core, bool) { return &a.Core, true })
	}
	return nil
}

// foldInto decodes each JSONL line as T, keeps only the latest record per
// id (later lines in append order win), and drops ids whose latest record
// is a tombstone.
func foldInto[T any](lines []string, into map[string]*T, core func(*T) (*types.Core, bool)) error {
	for _, line := range lines {
		var v T
		if err := jsonl.Decode(line, &v); err != nil {
			return err
		}
		c, _ := core(&v)
		// Legacy prefixes are canonicalized on read (spec §4.1); migration
		// on write happens in the health package.
		c.ID = ids.Canonicalize(c.ID)
		if c.Deleted {
			delete(into, c.ID)
			continue
		}
		into[c.ID] = &v
	}
	return nil
}

func (c *Cache) foldEdges(lines []string) error {
	for _, line := range lines {
		var e types.Edge
		if err := jsonl.Decode(line, &e); err != nil {
			return err
		}
		if e.Deleted {
			delete(c.Edges, e.ID)
			continue
		}
		c.Edges[e.ID] = &e
	}
	return nil
}

func (c *Cache) foldConfig(lines []string) {
	for _, line := range lines {
		var e ConfigEntry
		if err := jsonl.Decode(line, &e); err != nil {
			continue
		}
		if e.Deleted {
			delete(c.Config, e.Key)
			continue
		}
		c.Config[e.Key] = e.Value
	}
}

func (c *Cache) rebuildEdgeIndexes() {
	c.edgesBySource = map[string][]string{}
	c.edgesByTarget = map[string][]string{}
	c.edgesByType = map[types.EdgeType][]string{}
	for id, e := range c.Edges {
		c.edgesBySource[e.Source] = append(c.edgesBySource[e.Source], id)
		c.edgesByTarget[e.Target] = append(c.edgesByTarget[e.Target], id)
		c.edgesByType[e.EdgeType] = append(c.edgesByType[e.EdgeType], id)
	}
}
