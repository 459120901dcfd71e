package binnacle

import (
	"context"
	"strings"
	"time"

	"github.com/binnacle-dev/binnacle/internal/cache"
	"github.com/binnacle-dev/binnacle/internal/gitutil"
	"github.com/binnacle-dev/binnacle/internal/ids"
	"github.com/binnacle-dev/binnacle/internal/status"
	"github.com/binnacle-dev/binnacle/internal/types"
)

// UpdateMode selects how Update treats an already-closed task/bug (spec
// §4.4): by default, updating a closed item is rejected.
type UpdateMode int

const (
	UpdateNormal UpdateMode = iota
	// UpdateKeepClosed applies field changes without touching status.
	UpdateKeepClosed
	// UpdateReopen applies the patch, then moves status to pending and
	// clears closed_at/reason.
	UpdateReopen
)

// CloseOptions governs Close's dependency and commit-link gating (spec
// §4.4).
type CloseOptions struct {
	Reason    string
	Force     bool
	Cancelled bool
}

// newCore builds Core with a generated id, stamped timestamps, a truncated
// short_name, and the size_class hint (SPEC_FULL supplemented feature).
func newCore(prefix string, kind types.Kind, title, shortName, description string, tags []string, exists ids.Exists) (types.Core, []Warning) {
	var warnings []Warning
	now := time.Now()
	id := ids.GenerateUnique(prefix, title+now.String(), exists)

	truncated, didTruncate := types.TruncateShortName(shortName)
	if didTruncate {
		warnings = append(warnings, Warning{Code: "short_name_truncated", Message: "short_name truncated to 30 scalar values"})
	}

	tagSet := append([]string{}, tags...)
	tagSet = append(tagSet, "size:"+sizeClass(description, tags))

	return types.Core{
		ID: id, Kind: kind, Title: title, ShortName: truncated, Description: description,
		Tags: tagSet, CreatedAt: now, UpdatedAt: now,
	}, warnings
}

// sizeClass derives a lightweight, non-authoritative complexity hint from
// description length and tag count (SPEC_FULL supplemented feature,
// grounded in the original Rust implementation's complexity::analyze_complexity).
func sizeClass(description string, tags []string) string {
	n := len(description)
	switch {
	case n == 0 && len(tags) == 0:
		return "trivial"
	case n < 140:
		return "small"
	case n < 600:
		return "medium"
	default:
		return "large"
	}
}

func validatePriority(p int) error {
	if p < 0 || p > 4 {
		return newErr(KindInvalidInput, "priority must be in 0..4, got %d", p)
	}
	return nil
}

// ErrClosedNeedsFlag describes a closed item whose patch specified neither
// keep_closed nor reopen (spec §4.4). The Update operations in this package
// report that case with the KindConflict *Error from closedUpdateErr, not
// with this type.
type ErrClosedNeedsFlag struct {
	ID   string
	Kind types.Kind
}

func (e *ErrClosedNeedsFlag) Error() string {
	return "binnacle: " + string(e.Kind) + " " + e.ID + " is closed; pass keep_closed or reopen"
}

func closedUpdateErr(id string, kind types.Kind) *Error {
	return remediate(KindConflict, "pass keep_closed to edit without reopening, or reopen to reopen it",
		"cannot update closed %s %s", kind, id)
}

// applyCloseSideEffects removes itemID from its owning agent's in-progress
// list and drops every queued edge touching it (spec §4.4).
func applyCloseSideEffects(ctx context.Context, c *cache.Cache, itemID string) error {
	for agentID, a := range c.Agents {
		idx := -1
		for i, t := range a.Tasks {
			if t == itemID {
				idx = i
				break
			}
		}
		if idx < 0 {
			continue
		}
		a.Tasks = append(a.Tasks[:idx], a.Tasks[idx+1:]...)
		if err := c.PutAgent(ctx, a); err != nil {
			return wrapIO(err, "remove %s from agent %s", itemID, agentID)
		}
	}

	for _, e := range c.EdgesFrom(itemID) {
		if e.EdgeType == types.EdgeQueued {
			if err := c.RemoveEdge(ctx, e.ID); err != nil {
				return wrapIO(err, "remove queued edge %s", e.ID)
			}
		}
	}
	return nil
}

// closeWarnings implements the non-fatal warnings spec §4.4 requires on a
// successful close: missing linked commits, no linked commits at all, and
// uncommitted working-tree changes. When git is nil, the git-backed checks
// are skipped.
func closeWarnings(ctx context.Context, c *cache.Cache, git *gitutil.Git, itemID string) []Warning {
	var warnings []Warning
	links := c.CommitsForEntity(itemID)

	if len(links) == 0 {
		warnings = append(warnings, Warning{Code: "no_linked_commits", Message: "no commits are linked to this item"})
	} else if git != nil {
		for _, cl := range links {
			if !git.CommitExists(ctx, cl.SHA) {
				warnings = append(warnings, Warning{Code: "missing_commit", Message: "linked commit " + cl.SHA + " not found in git history"})
			}
		}
	}
	if git != nil {
		if dirty, err := git.HasUncommittedChanges(ctx); err == nil && dirty {
			warnings = append(warnings, Warning{Code: "uncommitted_changes", Message: "working tree has uncommitted changes"})
		}
	}
	return warnings
}

// hasAnyLinkedCommit reports whether require_commit_for_close's gate is
// satisfied.
func hasAnyLinkedCommit(c *cache.Cache, itemID string) bool {
	return len(c.CommitsForEntity(itemID)) > 0
}

// holderKind identifies which Kind a StatusHolder backs, for error
// messages and close-policy dispatch.
func holderKind(h types.StatusHolder) types.Kind {
	return h.GetCore().Kind
}

func closeStatusHolder(ctx context.Context, c *cache.Cache, git *gitutil.Git, requireCommit bool, itemID string, opt CloseOptions) ([]Warning, error) {
	holder, ok := c.StatusHolder(itemID)
	if !ok {
		return nil, newErr(KindNotFound, "%s not found", itemID)
	}

	if !opt.Force {
		blocked := status.Dependencies(c, itemID)
		var incomplete []string
		for _, dep := range blocked {
			dh, ok := c.StatusHolder(dep)
			if ok && !dh.GetStatus().IsComplete() {
				incomplete = append(incomplete, dep)
			}
		}
		if len(incomplete) > 0 {
			return nil, remediate(KindOther, "pass force to close anyway",
				"cannot close %s %s — %d incomplete dependencies", holderKind(holder), itemID, len(incomplete))
		}
		if requireCommit && !hasAnyLinkedCommit(c, itemID) {
			return nil, remediate(KindOther, "link a commit first, or pass force",
				"cannot close %s %s — require_commit_for_close is set and no commit is linked", holderKind(holder), itemID)
		}
	}

	if err := status.Close(ctx, c, itemID, opt.Reason, opt.Cancelled); err != nil {
		return nil, wrapIO(err, "close %s", itemID)
	}
	if err := applyCloseSideEffects(ctx, c, itemID); err != nil {
		return nil, err
	}

	return closeWarnings(ctx, c, git, itemID), nil
}

func reopenStatusHolder(ctx context.Context, c *cache.Cache, itemID string) error {
	if _, ok := c.StatusHolder(itemID); !ok {
		return newErr(KindNotFound, "%s not found", itemID)
	}
	if err := status.Reopen(ctx, c, itemID); err != nil {
		return wrapIO(err, "reopen %s", itemID)
	}
	return nil
}

func normalizeTags(tags []string) []string {
	seen := map[string]bool{}
	var out []string
	for _, t := range tags {
		t = strings.TrimSpace(t)
		if t == "" || seen[t] {
			continue
		}
		seen[t] = true
		out = append(out, t)
	}
	return out
}
