package cache

import (
	"context"
	"fmt"
	"time"

	"github.com/binnacle-dev/binnacle/internal/ids"
	"github.com/binnacle-dev/binnacle/internal/jsonl"
)

// commitStream is the JSONL stream commit links are appended to (spec §6).
// Commits aren't one of the polymorphic work-item kinds; they're a flat,
// append-only log of (entity, sha) associations used purely for the
// require_commit_for_close gate and the close warnings spec §4.4 names.
const commitStream = "commits.jsonl"

// CommitLink associates a git commit with the entity it closes or
// progresses, recorded via `bn commit-link <id> <sha>` in the CLI
// consumer.
type CommitLink struct {
	ID        string    `json:"id"`
	EntityID  string    `json:"entity_id"`
	SHA       string    `json:"sha"`
	Message   string    `json:"message,omitempty"`
	CreatedAt time.Time `json:"created_at"`
	Deleted   bool      `json:"deleted,omitempty"`
}

func (c *Cache) foldCommits(lines []string) error {
	for _, line := range lines {
		var cl CommitLink
		if err := jsonl.Decode(line, &cl); err != nil {
			return err
		}
		if cl.Deleted {
			delete(c.Commits, cl.ID)
			continue
		}
		c.Commits[cl.ID] = &cl
	}
	return nil
}

// AppendCommitLink records a new commit-entity association.
func (c *Cache) AppendCommitLink(ctx context.Context, entityID, sha, message string) (*CommitLink, error) {
	c.mu.Lock()
	defer c.mu.Unlock()
	id := ids.GenerateUnique("bnc-", entityID+sha, func(candidate string) bool {
		_, ok := c.Commits[candidate]
		return ok
	})
	cl := &CommitLink{ID: id, EntityID: entityID, SHA: sha, Message: message, CreatedAt: time.Now()}
	line, err := jsonl.Encode(cl)
	if err != nil {
		return nil, fmt.Errorf("cache: encode commit link: %w", err)
	}
	if err := c.backend.AppendJSONL(ctx, commitStream, line); err != nil {
		return nil, fmt.Errorf("cache: append commit link: %w", err)
	}
	c.Commits[id] = cl
	return cl, nil
}

// CommitsForEntity returns every commit link recorded against entityID.
func (c *Cache) CommitsForEntity(entityID string) []*CommitLink {
	c.mu.RLock()
	defer c.mu.RUnlock()
	var out []*CommitLink
	for _, cl := range c.Commits {
		if cl.EntityID == entityID {
			out = append(out, cl)
		}
	}
	return out
}
