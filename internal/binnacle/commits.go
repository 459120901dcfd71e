package binnacle

import (
	"context"

	"github.com/binnacle-dev/binnacle/internal/cache"
)

// LinkCommit records sha as linked to entityID, consulted by the
// require_commit_for_close gate and close's non-fatal warnings
// (spec §4.4).
func (s *Store) LinkCommit(ctx context.Context, entityID, sha, message string) (*cache.CommitLink, error) {
	cl, err := s.Cache.AppendCommitLink(ctx, entityID, sha, message)
	if err != nil {
		return nil, wrapIO(err, "link commit %s to %s", sha, entityID)
	}
	s.logAction("commit.link", entityID, sha)
	return cl, nil
}

// CommitsForEntity returns every commit link recorded against entityID.
func (s *Store) CommitsForEntity(entityID string) []*cache.CommitLink {
	return s.Cache.CommitsForEntity(entityID)
}
