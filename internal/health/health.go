// Package health implements the consistency-check and migration sweep
// (spec §8): orphaned edges, blank-line diagnostics, legacy-ID
// canonicalization, and promoting embedded depends_on lists to explicit
// edge records.
package health

import (
	"context"
	"fmt"
	"time"

	"github.com/binnacle-dev/binnacle/internal/cache"
	"github.com/binnacle-dev/binnacle/internal/ids"
	"github.com/binnacle-dev/binnacle/internal/storage"
	"github.com/binnacle-dev/binnacle/internal/types"
)

// Warning is a single non-fatal finding from a health check pass.
type Warning struct {
	Stream  string
	Message string
}

// Report is the result of a full health check.
type Report struct {
	Warnings     []Warning
	OrphanEdges  []string // edge ids whose source or target no longer resolves
	LegacyIDs    []string // ids still using a pre-migration prefix
}

// Check runs every read-only diagnostic against c and backend.
func Check(ctx context.Context, c *cache.Cache, backend storage.Backend) (*Report, error) {
	r := &Report{}

	for _, name := range append(append([]string{}, storage.Streams...), storage.ConfigStream) {
		lines, err := backend.ReadJSONL(ctx, name)
		if err != nil {
			return nil, fmt.Errorf("health: read %s: %w", name, err)
		}
		raw, err := backend.RawLineCount(ctx, name)
		if err != nil {
			return nil, fmt.Errorf("health: raw count %s: %w", name, err)
		}
		if raw > len(lines) {
			r.Warnings = append(r.Warnings, Warning{
				Stream:  name,
				Message: fmt.Sprintf("%d blank or whitespace-only line(s) present", raw-len(lines)),
			})
		}
	}

	for id, e := range c.Edges {
		_, _, srcOK := c.GetEntity(e.Source)
		_, _, tgtOK := c.GetEntity(e.Target)
		if !srcOK || !tgtOK {
			r.OrphanEdges = append(r.OrphanEdges, id)
		}
	}

	for id := range c.Ideas {
		if ids.IsLegacy(id) {
			r.LegacyIDs = append(r.LegacyIDs, id)
		}
	}
	for id := range c.Docs {
		if ids.IsLegacy(id) {
			r.LegacyIDs = append(r.LegacyIDs, id)
		}
	}

	return r, nil
}

// MigrateLegacyIDs rewrites every bni-/bnd- id (and every edge endpoint
// referencing one) to its canonical bn- form, preserving the suffix.
// Rewritten entities are re-appended under their new id and tombstoned
// under the old one, so the log remains append-only.
func MigrateLegacyIDs(ctx context.Context, c *cache.Cache) (int, error) {
	migrated := 0

	rename := map[string]string{}
	for id, idea := range c.Ideas {
		if !ids.IsLegacy(id) {
			continue
		}
		newID := ids.Canonicalize(id)
		rename[id] = newID
		clone := *idea
		clone.ID = newID
		clone.UpdatedAt = time.Now()
		if err := c.PutIdea(ctx, &clone); err != nil {
			return migrated, err
		}
		if err := c.DeleteEntity(ctx, id, types.KindIdea); err != nil {
			return migrated, err
		}
		migrated++
	}
	for id, doc := range c.Docs {
		if !ids.IsLegacy(id) {
			continue
		}
		newID := ids.Canonicalize(id)
		rename[id] = newID
		clone := *doc
		clone.ID = newID
		clone.UpdatedAt = time.Now()
		if err := c.PutDoc(ctx, &clone); err != nil {
			return migrated, err
		}
		if err := c.DeleteEntity(ctx, id, types.KindDoc); err != nil {
			return migrated, err
		}
		migrated++
	}

	for _, e := range c.Edges {
		changed := false
		clone := *e
		if newID, ok := rename[e.Source]; ok {
			clone.Source = newID
			changed = true
		}
		if newID, ok := rename[e.Target]; ok {
			clone.Target = newID
			changed = true
		}
		if changed {
			if err := c.PutEdge(ctx, &clone); err != nil {
				return migrated, err
			}
		}
	}

	return migrated, nil
}

// MigrateEmbeddedDependencies converts each task/bug's legacy embedded
// depends_on list into explicit depends_on edges, for stores written by
// versions that predate the edge engine.
func MigrateEmbeddedDependencies(ctx context.Context, c *cache.Cache) (int, error) {
	created := 0
	migrate := func(id string, deps []string) error {
		existing := map[string]bool{}
		for _, e := range c.EdgesOfType(types.EdgeDependsOn) {
			if e.Source == id {
				existing[e.Target] = true
			}
		}
		for _, dep := range deps {
			if existing[dep] {
				continue
			}
			edgeID := ids.GenerateUnique(ids.PrefixEdge, id+dep, c.Exists)
			edge := &types.Edge{
				ID: edgeID, Source: id, Target: dep, EdgeType: types.EdgeDependsOn,
				Reason: "migrated from embedded depends_on", CreatedAt: time.Now(),
			}
			if err := c.PutEdge(ctx, edge); err != nil {
				return err
			}
			created++
		}
		return nil
	}

	for id, t := range c.Tasks {
		if len(t.DependsOn) == 0 {
			continue
		}
		if err := migrate(id, t.DependsOn); err != nil {
			return created, err
		}
	}
	for id, b := range c.Bugs {
		if len(b.DependsOn) == 0 {
			continue
		}
		if err := migrate(id, b.DependsOn); err != nil {
			return created, err
		}
	}
	return created, nil
}
