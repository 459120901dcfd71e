// Package status implements the lifecycle engine (spec §4.6): starting and
// closing work, the partial-promotion sweep, and the closed-item ->
// partial demotion that fires when a new dependency is attached to
// already-finished work.
package status

import (
	"context"
	"fmt"
	"time"

	"github.com/binnacle-dev/binnacle/internal/cache"
	"github.com/binnacle-dev/binnacle/internal/types"
)

// ErrIncompleteDependencies is returned by StartProgress when the
// item has unmet blocking dependencies and force was not set.
type ErrIncompleteDependencies struct {
	ItemID  string
	Blocked []string
}

func (e *ErrIncompleteDependencies) Error() string {
	return fmt.Sprintf("%s has %d incomplete dependencies", e.ItemID, len(e.Blocked))
}

// ErrAgentBusy is returned by StartProgress when the owning agent already
// has one or more items in progress and force was not set.
type ErrAgentBusy struct {
	AgentID    string
	InProgress []string
}

func (e *ErrAgentBusy) Error() string {
	return fmt.Sprintf("agent %s already has %d item(s) in progress: %v", e.AgentID, len(e.InProgress), e.InProgress)
}

// Dependencies returns the union of an item's embedded legacy depends_on
// list and its depends_on edges, deduplicated.
func Dependencies(c *cache.Cache, id string) []string {
	seen := map[string]bool{}
	var out []string
	add := func(target string) {
		if !seen[target] {
			seen[target] = true
			out = append(out, target)
		}
	}

	if holder, ok := c.StatusHolder(id); ok {
		for _, dep := range holder.GetDependsOn() {
			add(dep)
		}
	}
	for _, e := range c.EdgesOfType(types.EdgeDependsOn) {
		if e.Source == id {
			add(e.Target)
		}
	}
	return out
}

// incompleteDependencies returns the subset of id's dependencies that are
// not yet complete (done or cancelled).
func incompleteDependencies(c *cache.Cache, id string) []string {
	var blocked []string
	for _, dep := range Dependencies(c, id) {
		holder, ok := c.StatusHolder(dep)
		if !ok {
			// Dependency on a non-status-bearing entity (e.g. a doc) never
			// blocks; only task/bug/milestone dependencies count.
			continue
		}
		if !holder.GetStatus().IsComplete() {
			blocked = append(blocked, dep)
		}
	}
	return blocked
}

func putHolder(ctx context.Context, c *cache.Cache, holder types.StatusHolder) error {
	switch v := holder.(type) {
	case *types.Task:
		return c.PutTask(ctx, v)
	case *types.Bug:
		return c.PutBug(ctx, v)
	case *types.Milestone:
		return c.PutMilestone(ctx, v)
	}
	return fmt.Errorf("status: unsupported status holder type %T", holder)
}

// StartProgress transitions itemID to in_progress and records it on the
// given agent's in-progress list, unless blocking dependencies are
// incomplete and force is false.
func StartProgress(ctx context.Context, c *cache.Cache, itemID, agentID string, force bool) error {
	holder, ok := c.StatusHolder(itemID)
	if !ok {
		return fmt.Errorf("status: %s is not a status-bearing entity", itemID)
	}
	if blocked := incompleteDependencies(c, itemID); len(blocked) > 0 && !force {
		return &ErrIncompleteDependencies{ItemID: itemID, Blocked: blocked}
	}

	var agent *types.Agent
	if agentID != "" {
		agent = c.Agents[agentID]
	}
	if agent != nil && len(agent.Tasks) > 0 && !force {
		alreadyTracked := false
		for _, t := range agent.Tasks {
			if t == itemID {
				alreadyTracked = true
			}
		}
		if !alreadyTracked {
			return &ErrAgentBusy{AgentID: agentID, InProgress: agent.Tasks}
		}
	}

	holder.SetStatus(types.StatusInProgress)
	if err := putHolder(ctx, c, holder); err != nil {
		return err
	}

	if agent == nil {
		return nil
	}
	for _, t := range agent.Tasks {
		if t == itemID {
			return nil
		}
	}
	agent.Tasks = append(agent.Tasks, itemID)
	return c.PutAgent(ctx, agent)
}

// Close transitions itemID to done (or cancelled) and then runs the
// partial-promotion sweep, since closing one item can complete another's
// dependencies.
func Close(ctx context.Context, c *cache.Cache, itemID, reason string, cancelled bool) error {
	holder, ok := c.StatusHolder(itemID)
	if !ok {
		return fmt.Errorf("status: %s is not a status-bearing entity", itemID)
	}

	final := types.StatusDone
	if cancelled {
		final = types.StatusCancelled
	}
	now := time.Now()
	holder.SetStatus(final)
	holder.SetClosedAt(&now)
	holder.SetClosedReason(reason)
	if err := putHolder(ctx, c, holder); err != nil {
		return err
	}

	return Sweep(ctx, c)
}

// Reopen clears an item's closed state and returns it to reopened,
// un-blocking nothing by itself: dependents get re-evaluated the next time
// Sweep runs, and OnDependencyAdded handles the closed -> partial case.
func Reopen(ctx context.Context, c *cache.Cache, itemID string) error {
	holder, ok := c.StatusHolder(itemID)
	if !ok {
		return fmt.Errorf("status: %s is not a status-bearing entity", itemID)
	}
	holder.SetStatus(types.StatusReopened)
	holder.SetClosedAt(nil)
	holder.SetClosedReason("")
	return putHolder(ctx, c, holder)
}

// OnDependencyAdded implements spec §4.6's closed-item demotion: if itemID
// is currently done/cancelled and newDep is not complete, itemID moves to
// partial and its closed_at/closed_reason are cleared.
func OnDependencyAdded(ctx context.Context, c *cache.Cache, itemID, newDep string) error {
	holder, ok := c.StatusHolder(itemID)
	if !ok {
		return nil
	}
	if !holder.GetStatus().IsComplete() {
		return nil
	}
	depHolder, ok := c.StatusHolder(newDep)
	if !ok || depHolder.GetStatus().IsComplete() {
		return nil
	}

	holder.SetStatus(types.StatusPartial)
	holder.SetClosedAt(nil)
	holder.SetClosedReason("")
	return putHolder(ctx, c, holder)
}

// Sweep promotes every partial item whose dependencies have all become
// complete back to done, repeating until a fixed point is reached (spec
// §4.6: a promotion can itself complete another item's dependencies).
func Sweep(ctx context.Context, c *cache.Cache) error {
	for {
		promoted := false
		for _, candidates := range [][]partialCandidate{
			taskCandidates(c), bugCandidates(c), milestoneCandidates(c),
		} {
			for _, cand := range candidates {
				if cand.holder.GetStatus() != types.StatusPartial {
					continue
				}
				if len(incompleteDependencies(c, cand.id)) > 0 {
					continue
				}
				now := time.Now()
				cand.holder.SetStatus(types.StatusDone)
				cand.holder.SetClosedAt(&now)
				cand.holder.SetClosedReason("promoted: dependencies satisfied")
				if err := putHolder(ctx, c, cand.holder); err != nil {
					return err
				}
				promoted = true
			}
		}
		if !promoted {
			return nil
		}
	}
}

type partialCandidate struct {
	id     string
	holder types.StatusHolder
}

func taskCandidates(c *cache.Cache) []partialCandidate {
	out := make([]partialCandidate, 0, len(c.Tasks))
	for id, t := range c.Tasks {
		out = append(out, partialCandidate{id: id, holder: t})
	}
	return out
}

func bugCandidates(c *cache.Cache) []partialCandidate {
	out := make([]partialCandidate, 0, len(c.Bugs))
	for id, b := range c.Bugs {
		out = append(out, partialCandidate{id: id, holder: b})
	}
	return out
}

func milestoneCandidates(c *cache.Cache) []partialCandidate {
	out := make([]partialCandidate, 0, len(c.Milestones))
	for id, m := range c.Milestones {
		out = append(out, partialCandidate{id: id, holder: m})
	}
	return out
}
