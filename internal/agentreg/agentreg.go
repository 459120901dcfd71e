// Package agentreg implements the agent registry (spec §4.10): process-keyed
// registration, activity tracking, liveness-derived status, and goodbye
// retention, grounded on the reference's daemon registry bookkeeping.
package agentreg

import (
	"context"
	"fmt"
	"time"

	"github.com/binnacle-dev/binnacle/internal/cache"
	"github.com/binnacle-dev/binnacle/internal/ids"
	"github.com/binnacle-dev/binnacle/internal/procutil"
	"github.com/binnacle-dev/binnacle/internal/types"
)

// Thresholds for liveness-derived status (spec §4.10).
const (
	IdleAfter  = 5 * time.Minute
	StaleAfter = 30 * time.Minute
	// GoodbyeRetention is how long a gracefully-exited agent stays visible
	// before Prune removes it entirely.
	GoodbyeRetention = 10 * time.Minute
)

// Register creates (or reuses, for the same PID/session) an agent record.
// sessionID overrides PID-based identity when set, for MCP-hosted agents
// whose PID is a shared server process.
func Register(ctx context.Context, c *cache.Cache, name, purpose string, agentType types.AgentType, pid int, sessionID string) (*types.Agent, error) {
	if existing := findByProcess(c, pid, sessionID); existing != nil {
		existing.LastActivityAt = time.Now()
		existing.CommandCount++
		if err := c.PutAgent(ctx, existing); err != nil {
			return nil, err
		}
		return existing, nil
	}

	now := time.Now()
	seed := fmt.Sprintf("%d:%s:%s", pid, sessionID, now)
	id := ids.GenerateUnique(ids.PrefixAgent, seed, c.Exists)
	agent := &types.Agent{
		Core:           types.Core{ID: id, Title: name, CreatedAt: now, UpdatedAt: now},
		PID:            pid,
		ParentPID:      procutil.ParentPID(),
		Name:           name,
		Purpose:        purpose,
		AgentType:      agentType,
		StartedAt:      now,
		LastActivityAt: now,
		MCPSessionID:   sessionID,
	}
	if err := c.PutAgent(ctx, agent); err != nil {
		return nil, err
	}
	return agent, nil
}

func findByProcess(c *cache.Cache, pid int, sessionID string) *types.Agent {
	for _, a := range c.Agents {
		if a.GoodbyeAt != nil {
			continue
		}
		if sessionID != "" && a.MCPSessionID == sessionID {
			return a
		}
		if sessionID == "" && a.PID == pid {
			return a
		}
	}
	return nil
}

// Touch records activity against an agent: bumps last_activity_at and
// command_count, and optionally records the action currently underway.
func Touch(ctx context.Context, c *cache.Cache, agentID, currentAction string) error {
	a, ok := c.Agents[agentID]
	if !ok {
		return fmt.Errorf("agentreg: %s not registered", agentID)
	}
	a.LastActivityAt = time.Now()
	a.CommandCount++
	if currentAction != "" {
		a.CurrentAction = currentAction
	}
	return c.PutAgent(ctx, a)
}

// DerivedStatus computes an agent's liveness status from process
// liveness plus activity recency; it is never stored as authoritative.
func DerivedStatus(a *types.Agent) types.AgentStatus {
	if a.GoodbyeAt != nil {
		return types.AgentStale
	}
	if !ancestryAlive(a) {
		return types.AgentStale
	}
	since := time.Since(a.LastActivityAt)
	switch {
	case since < IdleAfter:
		return types.AgentActive
	case since < StaleAfter:
		return types.AgentIdle
	default:
		return types.AgentStale
	}
}

// ancestryAlive reports whether the agent's own PID, or any of its
// recorded ancestors, is still a running process. A zero PID (MCP session
// with no reliable OS handle) is treated as alive, deferring entirely to
// activity recency.
func ancestryAlive(a *types.Agent) bool {
	if a.PID <= 0 {
		return true
	}
	if procutil.IsAlive(a.PID) {
		return true
	}
	pid := a.ParentPID
	for depth := 0; depth < 8 && pid > 0; depth++ {
		if procutil.IsAlive(pid) {
			return true
		}
		next, ok := procutil.PPIDOf(pid)
		if !ok {
			break
		}
		pid = next
	}
	return false
}

// Goodbye marks an agent as gracefully exited without deleting its record,
// so recent history remains visible for GoodbyeRetention.
func Goodbye(ctx context.Context, c *cache.Cache, agentID string) error {
	a, ok := c.Agents[agentID]
	if !ok {
		return fmt.Errorf("agentreg: %s not registered", agentID)
	}
	now := time.Now()
	a.GoodbyeAt = &now
	return c.PutAgent(ctx, a)
}

// ErrPlannerRequiresForce guards planner-type agents from accidental kill.
type ErrPlannerRequiresForce struct{ AgentID string }

func (e *ErrPlannerRequiresForce) Error() string {
	return fmt.Sprintf("%s is a planner agent; pass force to terminate it", e.AgentID)
}

// Kill terminates the agent's process (graceful then forced) and
// deregisters it, refusing planner-type agents unless force is set.
func Kill(ctx context.Context, c *cache.Cache, agentID string, force bool) error {
	a, ok := c.Agents[agentID]
	if !ok {
		return fmt.Errorf("agentreg: %s not registered", agentID)
	}
	if a.AgentType == types.AgentPlanner && !force {
		return &ErrPlannerRequiresForce{AgentID: agentID}
	}
	if a.PID > 0 {
		procutil.Terminate(a.PID, 5*time.Second)
	}
	return c.DeleteEntity(ctx, agentID, types.KindAgent)
}

// Prune removes agent records that said goodbye more than GoodbyeRetention
// ago, keeping the registry from accumulating history forever.
func Prune(ctx context.Context, c *cache.Cache) error {
	cutoff := time.Now().Add(-GoodbyeRetention)
	for id, a := range c.Agents {
		if a.GoodbyeAt != nil && a.GoodbyeAt.Before(cutoff) {
			if err := c.DeleteEntity(ctx, id, types.KindAgent); err != nil {
				return err
			}
		}
	}
	return nil
}
