package binnacle

import "context"

const syncBranch = "binnacle-data"

// SyncResult reports how many commits moved in each direction (spec §6).
type SyncResult struct {
	Pulled int
	Pushed int
}

// Sync verifies the binnacle-data branch and remote exist, then fetches and
// fast-forwards (via ref update, never touching the working tree) and/or
// pushes, per pushOnly/pullOnly. Non-fast-forward pulls are never
// attempted: a diverged remote tip is left for the caller to resolve.
func (s *Store) Sync(ctx context.Context, remote string, pushOnly, pullOnly bool) (*SyncResult, error) {
	if s.git == nil {
		return nil, newErr(KindIoError, "sync requires a git-backed repository")
	}
	if _, ok := s.git.RevParse(ctx, syncBranch); !ok {
		return nil, remediate(KindNotInitialized, "switch storage.backend to orphan-branch or git-notes first",
			"local %s branch does not exist", syncBranch)
	}
	if !s.git.RemoteExists(ctx, remote) {
		return nil, newErr(KindInvalidInput, "remote %q is not configured", remote)
	}

	res := &SyncResult{}

	if !pushOnly {
		before, _ := s.git.RevParse(ctx, syncBranch)
		if err := s.git.Fetch(ctx, remote, syncBranch); err != nil {
			return nil, wrapIO(err, "fetch %s from %s", syncBranch, remote)
		}
		remoteRef := "refs/remotes/" + remote + "/" + syncBranch
		after, ok := s.git.RevParse(ctx, remoteRef)
		if ok && after != before {
			n, err := s.git.CommitsBetween(ctx, before, after)
			if err != nil {
				return nil, wrapIO(err, "count incoming commits")
			}
			if err := s.git.UpdateRef(ctx, "refs/heads/"+syncBranch, after); err != nil {
				return nil, wrapIO(err, "fast-forward %s", syncBranch)
			}
			res.Pulled = n
		}
	}

	if !pullOnly {
		localBefore := "refs/remotes/" + remote + "/" + syncBranch
		before, hadRemote := s.git.RevParse(ctx, localBefore)
		after, _ := s.git.RevParse(ctx, syncBranch)
		if err := s.git.Push(ctx, remote, syncBranch); err != nil {
			return nil, wrapIO(err, "push %s to %s", syncBranch, remote)
		}
		if hadRemote {
			n, err := s.git.CommitsBetween(ctx, before, after)
			if err == nil {
				res.Pushed = n
			}
		}
	}

	s.logAction("sync", "", remote)
	return res, nil
}
