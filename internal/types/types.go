// Package types defines the polymorphic entity model shared by every
// Binnacle work item, plus edges and the closed enumerations used across
// the engine.
package types

import "time"

// Kind tags which variant an entity record carries. It is the
// discriminator written to every JSONL line (entity_type).
type Kind string

const (
	KindTask      Kind = "task"
	KindBug       Kind = "bug"
	KindIdea      Kind = "idea"
	KindMilestone Kind = "milestone"
	KindDoc       Kind = "doc"
	KindTest      Kind = "test"
	KindQueue     Kind = "queue"
	KindAgent     Kind = "agent"
)

// Status is the lifecycle state shared by task-like entities.
type Status string

const (
	StatusPending     Status = "pending"
	StatusInProgress  Status = "in_progress"
	StatusBlocked     Status = "blocked"
	StatusDone        Status = "done"
	StatusCancelled   Status = "cancelled"
	StatusReopened    Status = "reopened"
	StatusPartial     Status = "partial"
)

// IsComplete reports whether a status satisfies a dependency: spec §4.6
// treats cancelled as complete for all blocking/promotion logic.
func (s Status) IsComplete() bool {
	return s == StatusDone || s == StatusCancelled
}

// Severity is the bug-specific urgency scale.
type Severity string

const (
	SeverityTriage   Severity = "triage"
	SeverityLow      Severity = "low"
	SeverityMedium   Severity = "medium"
	SeverityHigh     Severity = "high"
	SeverityCritical Severity = "critical"
)

// IdeaStatus is the idea-specific lifecycle.
type IdeaStatus string

const (
	IdeaSeed        IdeaStatus = "seed"
	IdeaGerminating IdeaStatus = "germinating"
	IdeaPromoted    IdeaStatus = "promoted"
	IdeaDiscarded   IdeaStatus = "discarded"
)

// Core is embedded by every entity kind.
type Core struct {
	ID          string    `json:"id"`
	Kind        Kind      `json:"entity_type"`
	Title       string    `json:"title"`
	ShortName   string    `json:"short_name,omitempty"`
	Description string    `json:"description,omitempty"`
	Tags        []string  `json:"tags,omitempty"`
	CreatedAt   time.Time `json:"created_at"`
	UpdatedAt   time.Time `json:"updated_at"`

	// Deleted marks a tombstone record. Cache rebuild drops any entity
	// whose latest record has Deleted set.
	Deleted bool `json:"deleted,omitempty"`
}

// MaxShortNameRunes is the truncation boundary from spec §8: short_name
// longer than this many Unicode scalar values is truncated, with a warning.
const MaxShortNameRunes = 30

// TruncateShortName truncates s to MaxShortNameRunes scalar values,
// reporting whether truncation occurred.
func TruncateShortName(s string) (string, bool) {
	runes := []rune(s)
	if len(runes) <= MaxShortNameRunes {
		return s, false
	}
	return string(runes[:MaxShortNameRunes]), true
}

// Task is a trackable unit of work.
type Task struct {
	Core
	Status       Status   `json:"status"`
	Priority     int      `json:"priority"`
	Assignee     string   `json:"assignee,omitempty"`
	DependsOn    []string `json:"depends_on,omitempty"` // legacy embedded deps
	ClosedAt     *time.Time `json:"closed_at,omitempty"`
	ClosedReason string   `json:"closed_reason,omitempty"`
	ImportedOn   *time.Time `json:"imported_on,omitempty"`
}

// Bug extends Task with severity and reproduction metadata.
type Bug struct {
	Core
	Status            Status     `json:"status"`
	Priority          int        `json:"priority"`
	Assignee          string     `json:"assignee,omitempty"`
	DependsOn         []string   `json:"depends_on,omitempty"`
	ClosedAt          *time.Time `json:"closed_at,omitempty"`
	ClosedReason      string     `json:"closed_reason,omitempty"`
	ImportedOn        *time.Time `json:"imported_on,omitempty"`
	Severity          Severity   `json:"severity"`
	ReproductionSteps string     `json:"reproduction_steps,omitempty"`
	AffectedComponent string     `json:"affected_component,omitempty"`
}

// Idea is a pre-task proposal.
type Idea struct {
	Core
	Status     IdeaStatus `json:"status"`
	PromotedTo string     `json:"promoted_to,omitempty"` // task id or file path
}

// Milestone groups tasks toward a shared deadline.
type Milestone struct {
	Core
	Status       Status     `json:"status"`
	Priority     int        `json:"priority"`
	Assignee     string     `json:"assignee,omitempty"`
	DueDate      *time.Time `json:"due_date,omitempty"`
	ClosedAt     *time.Time `json:"closed_at,omitempty"`
	ClosedReason string     `json:"closed_reason,omitempty"`
}

// DocType categorizes a doc.
type DocType string

const (
	DocNote     DocType = "note"
	DocPRD      DocType = "prd"
	DocHandoff  DocType = "handoff"
)

// Editor records who touched a doc version.
type Editor struct {
	Kind       string `json:"kind"` // "agent" | "user"
	Identifier string `json:"identifier"`
}

// Doc is a versioned piece of documentation.
type Doc struct {
	Core
	DocType      DocType  `json:"doc_type"`
	Content      string   `json:"content"` // compressed at rest, see internal/binnacle
	SummaryDirty bool     `json:"summary_dirty"`
	Editors      []Editor `json:"editors,omitempty"`
	Supersedes   string   `json:"supersedes,omitempty"`
}

// Test is a runnable test node linked to tasks/bugs.
type Test struct {
	Core
	Command     string   `json:"command"`
	WorkingDir  string   `json:"working_dir"`
	Pattern     string   `json:"pattern,omitempty"`
	LinkedTasks []string `json:"linked_tasks,omitempty"`
	LinkedBugs  []string `json:"linked_bugs,omitempty"`
}

// Queue is a FIFO work queue. At most one primary queue may exist per
// repository (spec §3 invariant).
type Queue struct {
	Core
	Description string `json:"description,omitempty"`
	Primary     bool   `json:"primary,omitempty"`
}

// AgentType distinguishes automation roles.
type AgentType string

const (
	AgentWorker  AgentType = "worker"
	AgentPlanner AgentType = "planner"
	AgentBuddy   AgentType = "buddy"
)

// AgentStatus is the derived liveness state, never persisted as authoritative
// (it's recomputed from PID liveness + activity recency on every read).
type AgentStatus string

const (
	AgentActive AgentStatus = "active"
	AgentIdle   AgentStatus = "idle"
	AgentStale  AgentStatus = "stale"
)

// Agent records a registered human/agent process.
type Agent struct {
	Core
	PID             int        `json:"pid"`
	ParentPID       int        `json:"parent_pid"`
	Name            string     `json:"name"`
	Purpose         string     `json:"purpose,omitempty"`
	AgentType       AgentType  `json:"agent_type"`
	StartedAt       time.Time  `json:"started_at"`
	LastActivityAt  time.Time  `json:"last_activity_at"`
	Tasks           []string   `json:"tasks,omitempty"` // currently in-progress ids
	CommandCount    int        `json:"command_count"`
	CurrentAction   string     `json:"current_action,omitempty"`
	GoodbyeAt       *time.Time `json:"goodbye_at,omitempty"`
	MCPSessionID    string     `json:"mcp_session_id,omitempty"`
}

// EdgeType is the closed set of relationship kinds.
type EdgeType string

const (
	EdgeDependsOn  EdgeType = "depends_on"
	EdgeBlocks     EdgeType = "blocks"
	EdgeRelatedTo  EdgeType = "related_to"
	EdgeDuplicates EdgeType = "duplicates"
	EdgeFixes      EdgeType = "fixes"
	EdgeCausedBy   EdgeType = "caused_by"
	EdgeSupersedes EdgeType = "supersedes"
	EdgeParentOf   EdgeType = "parent_of"
	EdgeChildOf    EdgeType = "child_of"
	EdgeTests      EdgeType = "tests"
	EdgeQueued     EdgeType = "queued"
	EdgeImpacts    EdgeType = "impacts"
	EdgeDocuments  EdgeType = "documents"
	EdgeWorkingOn  EdgeType = "working_on"
	EdgeWorkedOn   EdgeType = "worked_on"
)

// AllEdgeTypes lists the closed set, for validation error messages.
var AllEdgeTypes = []EdgeType{
	EdgeDependsOn, EdgeBlocks, EdgeRelatedTo, EdgeDuplicates, EdgeFixes,
	EdgeCausedBy, EdgeSupersedes, EdgeParentOf, EdgeChildOf, EdgeTests,
	EdgeQueued, EdgeImpacts, EdgeDocuments, EdgeWorkingOn, EdgeWorkedOn,
}

// IsValid reports whether t is one of the closed edge types.
func (t EdgeType) IsValid() bool {
	for _, v := range AllEdgeTypes {
		if v == t {
			return true
		}
	}
	return false
}

// BlockingEdgeTypes are the edges that define the ordering subgraph on which
// cycle detection runs (spec §3, §4.5).
var BlockingEdgeTypes = map[EdgeType]bool{
	EdgeDependsOn: true,
	EdgeBlocks:    true,
	EdgeChildOf:   true,
}

// Edge is a typed, directed relationship between two entities.
type Edge struct {
	ID        string    `json:"id"`
	Kind      Kind      `json:"entity_type"` // always KindEdge-equivalent marker; see cache
	Source    string    `json:"source"`
	Target    string    `json:"target"`
	EdgeType  EdgeType  `json:"edge_type"`
	Reason    string    `json:"reason,omitempty"`
	Pinned    bool      `json:"pinned,omitempty"`
	CreatedAt time.Time `json:"created_at"`
	CreatedBy string    `json:"created_by,omitempty"`
	Deleted   bool      `json:"deleted,omitempty"`
}

// KindEdge is used as the Edge.Kind discriminator value when edges are
// folded into a single entity_type-tagged stream alongside work items.
const KindEdge Kind = "edge"
