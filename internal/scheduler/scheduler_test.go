package scheduler

import (
	"context"
	"encoding/json"
	"sync"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/rvergara/docflow/internal/engine"
	"github.com/rvergara/docflow/internal/store"
	"github.com/rvergara/docflow/pkg/schema"
)

// listStore stubs the single store call the poller makes.
type listStore struct {
	store.Store
	execs []*store.Execution
}

func (l *listStore) ListOpenExecutions(_ context.Context) ([]*store.Execution, error) {
	return l.execs, nil
}

// recordingCommitter tracks which nodes the poller tried to commit.
type recordingCommitter struct {
	mu        sync.Mutex
	committed []string
}

func (r *recordingCommitter) CanCommit(_ context.Context, _, _ string) (bool, error) {
	return true, nil
}

func (r *recordingCommitter) Commit(_ context.Context, documentID, nodeID string) (*engine.RunView, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.committed = append(r.committed, documentID+"/"+nodeID)
	return &engine.RunView{}, nil
}

func autoIntegrationExec(documentID string, startExecuted bool) *store.Execution {
	return &store.Execution{
		DocumentID: documentID,
		Status:     schema.FlowStatusInitiated,
		FlowTasks: schema.Graph{
			Nodes: []schema.Node{
				{ID: "start", Kind: schema.NodeKindStart, Data: schema.NodeData{Executed: startExecuted}},
				{ID: "auto", Kind: schema.NodeKindIntegration, Data: schema.NodeData{
					Service:         "erp",
					IntegrationType: "simulate",
					CallType:        schema.CallAutomatic,
					JobDescriptor:   json.RawMessage(`{}`),
				}},
				{ID: "manual", Kind: schema.NodeKindIntegration, Data: schema.NodeData{
					Service:  "crm",
					CallType: schema.CallManual,
				}},
			},
			Edges: []schema.Edge{
				{ID: "e1", Source: "start", Target: "auto"},
				{ID: "e2", Source: "start", Target: "manual"},
			},
		},
	}
}

func TestPollCommitsReachableAutomaticNodes(t *testing.T) {
	ls := &listStore{execs: []*store.Execution{autoIntegrationExec("doc-1", true)}}
	rc := &recordingCommitter{}
	s := New(ls, rc, "", nil)

	s.Poll(context.Background())

	// Only the automatic node fires; the manual one waits for a user.
	assert.Equal(t, []string{"doc-1/auto"}, rc.committed)
}

func TestPollSkipsUnreachableNodes(t *testing.T) {
	ls := &listStore{execs: []*store.Execution{autoIntegrationExec("doc-1", false)}}
	rc := &recordingCommitter{}
	s := New(ls, rc, "", nil)

	s.Poll(context.Background())
	assert.Empty(t, rc.committed)
}

func TestStartRejectsBadSchedule(t *testing.T) {
	s := New(&listStore{}, &recordingCommitter{}, "not a schedule", nil)
	err := s.Start(context.Background())
	require.Error(t, err)
}

func TestStartTwice(t *testing.T) {
	s := New(&listStore{}, &recordingCommitter{}, "@every 1h", nil)
	require.NoError(t, s.Start(context.Background()))
	defer s.Stop()

	err := s.Start(context.Background())
	require.Error(t, err)
}
