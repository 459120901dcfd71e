package agentreg

import (
	"context"
	"os"
	"testing"
	"time"

	"github.com/binnacle-dev/binnacle/internal/cache"
	"github.com/binnacle-dev/binnacle/internal/storage"
	"github.com/binnacle-dev/binnacle/internal/types"
)

func newTestCache(t *testing.T) *cache.Cache {
	t.Helper()
	backend := storage.NewFileBackend(t.TempDir())
	if err := backend.Init(context.Background()); err != nil {
		t.Fatalf("init: %v", err)
	}
	c, err := cache.Open(context.Background(), backend)
	if err != nil {
		t.Fatalf("open: %v", err)
	}
	return c
}

func TestRegisterIsIdempotentForSamePID(t *testing.T) {
	c := newTestCache(t)
	pid := os.Getpid()

	first, err := Register(context.Background(), c, "worker-1", "build", types.AgentWorker, pid, "")
	if err != nil {
		t.Fatalf("register: %v", err)
	}
	second, err := Register(context.Background(), c, "worker-1", "build", types.AgentWorker, pid, "")
	if err != nil {
		t.Fatalf("re-register: %v", err)
	}
	if first.ID != second.ID {
		t.Fatalf("expected same agent id, got %s vs %s", first.ID, second.ID)
	}
	if second.CommandCount != 1 {
		t.Fatalf("expected command count bumped on re-register, got %d", second.CommandCount)
	}
}

func TestDerivedStatusReflectsActivityRecency(t *testing.T) {
	agent := &types.Agent{PID: os.Getpid(), LastActivityAt: time.Now()}
	if got := DerivedStatus(agent); got != types.AgentActive {
		t.Fatalf("expected active, got %s", got)
	}

	agent.LastActivityAt = time.Now().Add(-10 * time.Minute)
	if got := DerivedStatus(agent); got != types.AgentIdle {
		t.Fatalf("expected idle, got %s", got)
	}

	agent.LastActivityAt = time.Now().Add(-time.Hour)
	if got := DerivedStatus(agent); got != types.AgentStale {
		t.Fatalf("expected stale, got %s", got)
	}
}

func TestKillRefusesPlannerWithoutForce(t *testing.T) {
	c := newTestCache(t)
	agent, err := Register(context.Background(), c, "planner-1", "plan", types.AgentPlanner, 0, "session-1")
	if err != nil {
		t.Fatalf("register: %v", err)
	}

	if err := Kill(context.Background(), c, agent.ID, false); err == nil {
		t.Fatalf("expected planner kill to require force")
	}
	if err := Kill(context.Background(), c, agent.ID, true); err != nil {
		t.Fatalf("expected forced kill to succeed: %v", err)
	}
}

func TestGoodbyeThenPrune(t *testing.T) {
	c := newTestCache(t)
	agent, err := Register(context.Background(), c, "worker-2", "", types.AgentWorker, 0, "session-2")
	if err != nil {
		t.Fatalf("register: %v", err)
	}
	if err := Goodbye(context.Background(), c, agent.ID); err != nil {
		t.Fatalf("goodbye: %v", err)
	}
	old := time.Now().Add(-GoodbyeRetention * 2)
	c.Agents[agent.ID].GoodbyeAt = &old

	if err := Prune(context.Background(), c); err != nil {
		t.Fatalf("prune: %v", err)
	}
	if _, ok := c.Agents[agent.ID]; ok {
		t.Fatalf("expected pruned agent to be removed")
	}
}
