package binnacle

import (
	"context"
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"

	"github.com/binnacle-dev/binnacle/internal/agentreg"
	"github.com/binnacle-dev/binnacle/internal/procutil"
	"github.com/binnacle-dev/binnacle/internal/types"
)

// sessionState is the on-disk record an orient writes, so that sibling
// processes sharing neither a parent nor child relationship (two commands
// spawned by the same shell) can still resolve the owning agent (spec §9:
// ancestor-agent lookup).
type sessionState struct {
	AgentID string `json:"agent_id"`
	PID     int    `json:"pid"`
}

func sessionStatePath(root string) string {
	return filepath.Join(root, ".binnacle", "session.json")
}

func writeSessionState(root, agentID string, pid int) error {
	path := sessionStatePath(root)
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return err
	}
	data, err := json.Marshal(sessionState{AgentID: agentID, PID: pid})
	if err != nil {
		return err
	}
	return os.WriteFile(path, data, 0o644)
}

func readSessionState(root string) (*sessionState, bool) {
	data, err := os.ReadFile(sessionStatePath(root))
	if err != nil {
		return nil, false
	}
	var st sessionState
	if err := json.Unmarshal(data, &st); err != nil {
		return nil, false
	}
	return &st, true
}

// Orient registers (or refreshes) the calling agent and records a
// session-state file for ancestor-agent lookup (spec §4.10).
func (s *Store) Orient(ctx context.Context, name, purpose string, agentType types.AgentType, mcpSessionID string) (*types.Agent, error) {
	a, err := agentreg.Register(ctx, s.Cache, name, purpose, agentType, procutil.ParentPID(), mcpSessionID)
	if err != nil {
		return nil, wrapIO(err, "orient agent")
	}
	if a.AgentType != agentType || a.Purpose != purpose {
		a.AgentType = agentType
		a.Purpose = purpose
		if err := s.Cache.PutAgent(ctx, a); err != nil {
			return nil, wrapIO(err, "refresh agent %s", a.ID)
		}
	}
	if err := writeSessionState(s.Root, a.ID, a.PID); err != nil {
		return nil, wrapIO(err, "write session state")
	}
	s.logAction("agent.orient", a.ID, string(agentType))
	return a, nil
}

const maxAncestorDepth = 8

// ResolveAgent walks the process ancestry from the calling parent PID
// looking for a registered, non-goodbye agent; if none match, it falls
// back to the session-state file written at Orient (spec §4.10, §9).
func (s *Store) ResolveAgent() (*types.Agent, bool) {
	pid := procutil.ParentPID()
	for depth := 0; depth < maxAncestorDepth && pid > 0; depth++ {
		for _, a := range s.Cache.Agents {
			if a.PID == pid && a.GoodbyeAt == nil {
				return a, true
			}
		}
		next, ok := procutil.PPIDOf(pid)
		if !ok {
			break
		}
		pid = next
	}

	if st, ok := readSessionState(s.Root); ok {
		if a, ok := s.Cache.Agents[st.AgentID]; ok && a.GoodbyeAt == nil {
			return a, true
		}
	}
	return nil, false
}

// TouchAgent records activity against agentID: bumps last_activity_at and
// command_count (spec §4.10).
func (s *Store) TouchAgent(ctx context.Context, agentID, currentAction string) error {
	if err := agentreg.Touch(ctx, s.Cache, agentID, currentAction); err != nil {
		return wrapIO(err, "touch agent %s", agentID)
	}
	return nil
}

// AgentStatus reports agentID's derived liveness status.
func (s *Store) AgentStatus(agentID string) (types.AgentStatus, error) {
	a, ok := s.Cache.Agents[agentID]
	if !ok {
		return "", newErr(KindNotFound, "agent %s not found", agentID)
	}
	return agentreg.DerivedStatus(a), nil
}

// GoodbyeResult carries the ancestor process identifiers the consumer may
// signal after a graceful agent exit (spec §4.10).
type GoodbyeResult struct {
	AgentID   string
	Reason    string
	ParentPID int
	GrandPID  int
}

// Goodbye records agentID's intent to terminate and returns the ancestor
// PIDs (parent, grandparent) the consumer may choose to signal. Planner
// agents refuse unless force is set.
func (s *Store) Goodbye(ctx context.Context, agentID, reason string, force bool) (*GoodbyeResult, error) {
	a, ok := s.Cache.Agents[agentID]
	if !ok {
		return nil, newErr(KindNotFound, "agent %s not found", agentID)
	}
	if a.AgentType == types.AgentPlanner && !force {
		return nil, remediate(KindConflict, "pass force to terminate a planner agent",
			"%s is a planner agent; refusing goodbye without force", agentID)
	}
	if err := agentreg.Goodbye(ctx, s.Cache, agentID); err != nil {
		return nil, wrapIO(err, "goodbye agent %s", agentID)
	}

	res := &GoodbyeResult{AgentID: agentID, Reason: reason, ParentPID: a.ParentPID}
	if grand, ok := procutil.PPIDOf(a.ParentPID); ok {
		res.GrandPID = grand
	}
	s.logAction("agent.goodbye", agentID, reason)
	return res, nil
}

// Kill terminates the agent behind pidOrName's process and deregisters it.
// Planner agents refuse unless force is set.
func (s *Store) Kill(ctx context.Context, pidOrName string, force bool) error {
	a := s.findAgentByPIDOrName(pidOrName)
	if a == nil {
		return newErr(KindNotFound, "no agent matches %q", pidOrName)
	}
	if err := agentreg.Kill(ctx, s.Cache, a.ID, force); err != nil {
		if _, isPlanner := err.(*agentreg.ErrPlannerRequiresForce); isPlanner {
			return remediate(KindConflict, "pass force to terminate a planner agent", "%s", err.Error())
		}
		return wrapIO(err, "kill agent %s", a.ID)
	}
	s.logAction("agent.kill", a.ID, pidOrName)
	return nil
}

func (s *Store) findAgentByPIDOrName(pidOrName string) *types.Agent {
	for _, a := range s.Cache.Agents {
		if a.Name == pidOrName || fmt.Sprint(a.PID) == pidOrName {
			return a
		}
	}
	return nil
}

// PruneAgents removes stale goodbye agents past the retention window.
func (s *Store) PruneAgents(ctx context.Context) error {
	if err := agentreg.Prune(ctx, s.Cache); err != nil {
		return wrapIO(err, "prune agents")
	}
	return nil
}

// ListAgents returns every registered agent.
func (s *Store) ListAgents() []*types.Agent {
	out := make([]*types.Agent, 0, len(s.Cache.Agents))
	for _, a := range s.Cache.Agents {
		out = append(out, a)
	}
	return out
}
