package binnacle

import (
	"context"
	"sort"

	"github.com/binnacle-dev/binnacle/internal/ids"
	"github.com/binnacle-dev/binnacle/internal/types"
)

// NewQueue is the input to CreateQueue.
type NewQueue struct {
	Title       string
	ShortName   string
	Description string
	Tags        []string
	Primary     bool
}

// CreateQueue appends a new work queue. At most one primary queue may exist
// per repository (spec §3 invariant).
func (s *Store) CreateQueue(ctx context.Context, in NewQueue) (Result[*types.Queue], error) {
	if in.Title == "" {
		return Result[*types.Queue]{}, newErr(KindInvalidInput, "title must not be empty")
	}
	if in.Primary {
		for _, q := range s.Cache.Queues {
			if q.Primary {
				return Result[*types.Queue]{}, remediate(KindConflict, "unset the existing primary queue first",
					"%s is already the primary queue", q.ID)
			}
		}
	}
	core, warnings := newCore(ids.PrefixQueue, types.KindQueue, in.Title, in.ShortName, in.Description, normalizeTags(in.Tags), s.Cache.Exists)
	q := &types.Queue{Core: core, Description: in.Description, Primary: in.Primary}
	if err := s.Cache.PutQueue(ctx, q); err != nil {
		return Result[*types.Queue]{}, wrapIO(err, "create queue")
	}
	s.logAction("queue.create", q.ID, "")
	return ok(q, warnings...), nil
}

// GetQueue returns the queue behind id.
func (s *Store) GetQueue(id string) (*types.Queue, error) {
	q, ok := s.Cache.Queues[id]
	if !ok {
		return nil, newErr(KindNotFound, "queue %s not found", id)
	}
	return q, nil
}

// ListQueues returns every queue.
func (s *Store) ListQueues() []*types.Queue {
	out := make([]*types.Queue, 0, len(s.Cache.Queues))
	for _, q := range s.Cache.Queues {
		out = append(out, q)
	}
	return out
}

// PrimaryQueue returns the repository's primary queue, if one exists.
func (s *Store) PrimaryQueue() (*types.Queue, bool) {
	for _, q := range s.Cache.Queues {
		if q.Primary {
			return q, true
		}
	}
	return nil, false
}

// Enqueue adds itemID (a task or bug) to queueID via a queued edge.
func (s *Store) Enqueue(ctx context.Context, itemID, queueID string) (*types.Edge, error) {
	res, err := s.AddEdge(ctx, NewEdge{Source: itemID, Target: queueID, EdgeType: types.EdgeQueued})
	if err != nil {
		return nil, err
	}
	s.logAction("queue.enqueue", itemID, queueID)
	return res.Data, nil
}

// Dequeue removes itemID's queued edge to queueID.
func (s *Store) Dequeue(ctx context.Context, itemID, queueID string) error {
	res, err := s.RemoveEdge(ctx, itemID, queueID, types.EdgeQueued)
	if err != nil {
		return err
	}
	if res.Removed == nil {
		return newErr(KindNotFound, "%s is not queued on %s", itemID, queueID)
	}
	s.logAction("queue.dequeue", itemID, queueID)
	return nil
}

// QueueMembers returns every task/bug id with a queued edge into queueID,
// in append order (FIFO), ordered by each queued edge's creation time.
func (s *Store) QueueMembers(queueID string) []string {
	var queued []*types.Edge
	for _, e := range s.Cache.EdgesTo(queueID) {
		if e.EdgeType == types.EdgeQueued {
			queued = append(queued, e)
		}
	}
	sort.SliceStable(queued, func(i, j int) bool { return queued[i].CreatedAt.Before(queued[j].CreatedAt) })
	var out []string
	for _, e := range queued {
		out = append(out, e.Source)
	}
	return out
}

// DeleteQueue tombstones id.
func (s *Store) DeleteQueue(ctx context.Context, id string) error {
	if _, ok := s.Cache.Queues[id]; !ok {
		return newErr(KindNotFound, "queue %s not found", id)
	}
	return s.Cache.DeleteEntity(ctx, id, types.KindQueue)
}
