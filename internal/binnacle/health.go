package binnacle

import (
	"context"

	"github.com/binnacle-dev/binnacle/internal/health"
)

// Health runs every read-only diagnostic against the open store (spec §4
// health & migration): orphaned edges, blank-line streams, and legacy IDs
// still present.
func (s *Store) Health(ctx context.Context) (*health.Report, error) {
	r, err := health.Check(ctx, s.Cache, s.backend)
	if err != nil {
		return nil, wrapIO(err, "health check")
	}
	return r, nil
}

// MigrateLegacyIDs rewrites any remaining bni-/bnd- prefixed ids to the
// canonical bn- prefix, returning the number of records migrated.
func (s *Store) MigrateLegacyIDs(ctx context.Context) (int, error) {
	n, err := health.MigrateLegacyIDs(ctx, s.Cache)
	if err != nil {
		return n, wrapIO(err, "migrate legacy ids")
	}
	s.logAction("health.migrate_ids", "", "")
	return n, nil
}

// MigrateEmbeddedDependencies promotes every task/bug's legacy embedded
// depends_on list into explicit depends_on edges, returning the number of
// edges created.
func (s *Store) MigrateEmbeddedDependencies(ctx context.Context) (int, error) {
	n, err := health.MigrateEmbeddedDependencies(ctx, s.Cache)
	if err != nil {
		return n, wrapIO(err, "migrate embedded dependencies")
	}
	s.logAction("health.migrate_edges", "", "")
	return n, nil
}
