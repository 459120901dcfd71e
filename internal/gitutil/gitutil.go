// Package gitutil is the thin git collaborator interface the core depends
// on for branch sync (spec §6): existence checks, fetch/push, and ref
// plumbing, shelled out to the system git binary the way the reference's
// git worktree helper does.
package gitutil

import (
	"bytes"
	"context"
	"fmt"
	"os/exec"
	"strings"
)

// Git wraps a repository working directory for the handful of plumbing
// operations the sync engine needs.
type Git struct {
	Dir string
}

func New(dir string) *Git { return &Git{Dir: dir} }

func (g *Git) run(ctx context.Context, args ...string) (string, error) {
	cmd := exec.CommandContext(ctx, "git", args...) // #nosec G204 -- args are fixed plumbing subcommands
	cmd.Dir = g.Dir
	var stdout, stderr bytes.Buffer
	cmd.Stdout = &stdout
	cmd.Stderr = &stderr
	if err := cmd.Run(); err != nil {
		return "", fmt.Errorf("gitutil: git %s: %w: %s", strings.Join(args, " "), err, stderr.String())
	}
	return strings.TrimSpace(stdout.String()), nil
}

// CommitExists reports whether sha resolves to an object in this repo.
func (g *Git) CommitExists(ctx context.Context, sha string) bool {
	_, err := g.run(ctx, "cat-file", "-e", sha+"^{commit}")
	return err == nil
}

// HasUncommittedChanges reports whether the working tree has any
// modifications relative to HEAD.
func (g *Git) HasUncommittedChanges(ctx context.Context) (bool, error) {
	out, err := g.run(ctx, "status", "--porcelain")
	if err != nil {
		return false, err
	}
	return out != "", nil
}

// RemoteExists reports whether the given remote name is configured.
func (g *Git) RemoteExists(ctx context.Context, remote string) bool {
	out, err := g.run(ctx, "remote")
	if err != nil {
		return false
	}
	for _, line := range strings.Split(out, "\n") {
		if strings.TrimSpace(line) == remote {
			return true
		}
	}
	return false
}

// Fetch fetches branch from remote.
func (g *Git) Fetch(ctx context.Context, remote, branch string) error {
	_, err := g.run(ctx, "fetch", remote, branch)
	return err
}

// Push pushes branch to remote.
func (g *Git) Push(ctx context.Context, remote, branch string) error {
	_, err := g.run(ctx, "push", remote, branch)
	return err
}

// UpdateRef sets ref to point at value.
func (g *Git) UpdateRef(ctx context.Context, ref, value string) error {
	_, err := g.run(ctx, "update-ref", ref, value)
	return err
}

// RevParse resolves ref to a commit sha, returning ok=false if it doesn't
// exist (e.g. the branch was never created).
func (g *Git) RevParse(ctx context.Context, ref string) (string, bool) {
	out, err := g.run(ctx, "rev-parse", ref)
	if err != nil {
		return "", false
	}
	return out, true
}

// CommitsBetween counts the commits on `to` not reachable from `from`,
// used to report how many commits a sync moved in one direction.
func (g *Git) CommitsBetween(ctx context.Context, from, to string) (int, error) {
	out, err := g.run(ctx, "rev-list", "--count", from+".."+to)
	if err != nil {
		return 0, err
	}
	var n int
	if _, err := fmt.Sscanf(out, "%d", &n); err != nil {
		return 0, fmt.Errorf("gitutil: parse rev-list count %q: %w", out, err)
	}
	return n, nil
}
