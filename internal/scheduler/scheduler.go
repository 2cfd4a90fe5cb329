// Package scheduler fires automatic integration nodes. Manual integrations
// wait for a user commit; Automatic ones are committed by this poller as
// soon as they become reachable.
package scheduler

import (
	"context"
	"log/slog"
	"sync"

	"github.com/robfig/cron/v3"

	"github.com/rvergara/docflow/internal/engine"
	"github.com/rvergara/docflow/internal/graph"
	"github.com/rvergara/docflow/internal/store"
	"github.com/rvergara/docflow/pkg/schema"
)

// Committer is the slice of the orchestrator the scheduler needs.
type Committer interface {
	Commit(ctx context.Context, documentID, nodeID string) (*engine.RunView, error)
	CanCommit(ctx context.Context, documentID, nodeID string) (bool, error)
}

// Scheduler polls open runs on a cron schedule and commits any pending
// integration node with callType Automatic.
type Scheduler struct {
	store     store.Store
	committer Committer
	schedule  string
	logger    *slog.Logger

	mu   sync.Mutex
	cron *cron.Cron

	inflightMu sync.Mutex
	inflight   map[string]struct{} // "documentID/nodeID" commits in progress
}

// New creates a Scheduler. schedule is a cron expression; empty means
// every minute.
func New(s store.Store, committer Committer, schedule string, logger *slog.Logger) *Scheduler {
	if schedule == "" {
		schedule = "@every 1m"
	}
	if logger == nil {
		logger = slog.Default()
	}
	return &Scheduler{
		store:     s,
		committer: committer,
		schedule:  schedule,
		logger:    logger,
		inflight:  make(map[string]struct{}),
	}
}

// Start launches the cron loop. The first poll runs immediately.
func (s *Scheduler) Start(ctx context.Context) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.cron != nil {
		return schema.NewError(schema.ErrCodeConflict, "scheduler already started")
	}

	c := cron.New()
	if _, err := c.AddFunc(s.schedule, func() { s.Poll(ctx) }); err != nil {
		return schema.NewErrorf(schema.ErrCodeValidation, "invalid schedule %q", s.schedule).WithCause(err)
	}
	s.cron = c
	c.Start()

	go s.Poll(ctx)
	s.logger.Info("scheduler started", "schedule", s.schedule)
	return nil
}

// Stop halts the cron loop and waits for running polls to finish.
func (s *Scheduler) Stop() {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.cron == nil {
		return
	}
	<-s.cron.Stop().Done()
	s.cron = nil
	s.logger.Info("scheduler stopped")
}

// Poll scans open runs once and commits every automatic integration node
// that is currently reachable. Exported so tests and operators can trigger
// a pass directly.
func (s *Scheduler) Poll(ctx context.Context) {
	execs, err := s.store.ListOpenExecutions(ctx)
	if err != nil {
		s.logger.Error("list open runs failed", "error", err)
		return
	}

	for _, exec := range execs {
		r := graph.Compute(&exec.FlowTasks, nil)
		for _, node := range exec.FlowTasks.Nodes {
			if node.Kind != schema.NodeKindIntegration || node.Data.CallType != schema.CallAutomatic {
				continue
			}
			if node.Data.Executed || !r.Pending[node.ID] {
				continue
			}
			s.commitNode(ctx, exec.DocumentID, node.ID)
		}
	}
}

func (s *Scheduler) commitNode(ctx context.Context, documentID, nodeID string) {
	key := documentID + "/" + nodeID
	if !s.tryAcquire(key) {
		return
	}
	defer s.release(key)

	ok, err := s.committer.CanCommit(ctx, documentID, nodeID)
	if err != nil || !ok {
		return
	}
	if _, err := s.committer.Commit(ctx, documentID, nodeID); err != nil {
		s.logger.Warn("automatic integration failed",
			"document_id", documentID, "node_id", nodeID, "error", err)
		return
	}
	s.logger.Info("automatic integration committed",
		"document_id", documentID, "node_id", nodeID)
}

func (s *Scheduler) tryAcquire(key string) bool {
	s.inflightMu.Lock()
	defer s.inflightMu.Unlock()
	if _, running := s.inflight[key]; running {
		return false
	}
	s.inflight[key] = struct{}{}
	return true
}

func (s *Scheduler) release(key string) {
	s.inflightMu.Lock()
	defer s.inflightMu.Unlock()
	delete(s.inflight, key)
}
