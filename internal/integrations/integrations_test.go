package integrations

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/rvergara/docflow/pkg/schema"
)

func TestRegistryRegisterAndGet(t *testing.T) {
	r := NewRegistry()
	require.NoError(t, r.Register(&SimulateIntegration{}))

	a, err := r.Get("simulate")
	require.NoError(t, err)
	assert.Equal(t, "simulate", a.Name())

	assert.True(t, r.Has("simulate"))
	assert.False(t, r.Has("http"))
}

func TestRegistryDuplicate(t *testing.T) {
	r := NewRegistry()
	require.NoError(t, r.Register(&SimulateIntegration{}))

	err := r.Register(&SimulateIntegration{})
	var fe *schema.FlowError
	require.True(t, errors.As(err, &fe))
	assert.Equal(t, schema.ErrCodeConflict, fe.Code)
}

func TestRegistryUnknownType(t *testing.T) {
	r := NewRegistry()
	_, err := r.Get("sap")
	var fe *schema.FlowError
	require.True(t, errors.As(err, &fe))
	assert.Equal(t, schema.ErrCodeIntegration, fe.Code)
}

func TestExtractParamsLiteralAndQuery(t *testing.T) {
	raw := json.RawMessage(`{
		"params": {"url": "https://erp.local/jobs", "method": "POST"},
		"extract": {"invoice": ".job.payload.invoiceNumber"},
		"job": {"payload": {"invoiceNumber": "NF-1234"}}
	}`)

	params, err := ExtractParams(context.Background(), raw)
	require.NoError(t, err)
	assert.Equal(t, "https://erp.local/jobs", params["url"])
	assert.Equal(t, "NF-1234", params["invoice"])
}

func TestExtractParamsEmpty(t *testing.T) {
	params, err := ExtractParams(context.Background(), nil)
	require.NoError(t, err)
	assert.Empty(t, params)
}

func TestExtractParamsBadQuery(t *testing.T) {
	raw := json.RawMessage(`{"extract": {"x": ".[unclosed"}}`)
	_, err := ExtractParams(context.Background(), raw)
	var fe *schema.FlowError
	require.True(t, errors.As(err, &fe))
	assert.Equal(t, schema.ErrCodeValidation, fe.Code)
}

func TestRetryPolicyBackoff(t *testing.T) {
	p := RetryPolicy{Delay: 100 * time.Millisecond, Backoff: "exponential", MaxDelay: 300 * time.Millisecond}
	assert.Equal(t, 100*time.Millisecond, p.BackoffFor(0))
	assert.Equal(t, 200*time.Millisecond, p.BackoffFor(1))
	assert.Equal(t, 300*time.Millisecond, p.BackoffFor(2)) // capped

	linear := RetryPolicy{Delay: 50 * time.Millisecond, Backoff: "linear"}
	assert.Equal(t, 150*time.Millisecond, linear.BackoffFor(2))
}

func TestIsRetryable(t *testing.T) {
	assert.False(t, IsRetryable(nil))
	assert.False(t, IsRetryable(context.Canceled))
	assert.True(t, IsRetryable(context.DeadlineExceeded))
	assert.False(t, IsRetryable(schema.NewError(schema.ErrCodeValidation, "bad input")))
	assert.True(t, IsRetryable(errors.New("connection refused")))
	assert.True(t, IsRetryable(schema.NewError(schema.ErrCodeIntegration, "boom")))
}

func TestBreakerOpensAfterThreshold(t *testing.T) {
	r := NewBreakerRegistry(BreakerConfig{FailureThreshold: 2, Cooldown: time.Hour, HalfOpenMax: 1})

	require.NoError(t, r.Allow("erp"))
	assert.Equal(t, CircuitClosed, r.RecordFailure("erp"))
	assert.Equal(t, CircuitOpen, r.RecordFailure("erp"))

	err := r.Allow("erp")
	var fe *schema.FlowError
	require.True(t, errors.As(err, &fe))
	assert.Equal(t, schema.ErrCodeIntegration, fe.Code)

	// Other services are unaffected.
	require.NoError(t, r.Allow("crm"))
}

func TestBreakerZeroConfigFallsBackToDefaults(t *testing.T) {
	r := NewBreakerRegistry(BreakerConfig{})

	// One failure must not open the circuit under the default threshold.
	assert.Equal(t, CircuitClosed, r.RecordFailure("erp"))
	require.NoError(t, r.Allow("erp"))

	for i := 0; i < DefaultBreakerConfig().FailureThreshold-1; i++ {
		r.RecordFailure("erp")
	}
	assert.Equal(t, CircuitOpen, r.State("erp"))
}

func TestBreakerHalfOpenRecovery(t *testing.T) {
	r := NewBreakerRegistry(BreakerConfig{FailureThreshold: 1, Cooldown: time.Millisecond, HalfOpenMax: 1})

	r.RecordFailure("erp")
	assert.Equal(t, CircuitOpen, r.State("erp"))

	time.Sleep(5 * time.Millisecond)
	require.NoError(t, r.Allow("erp")) // half-open test request
	r.RecordSuccess("erp")
	assert.Equal(t, CircuitClosed, r.State("erp"))
}

func TestHTTPIntegrationSuccess(t *testing.T) {
	var gotAuth string
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		gotAuth = r.Header.Get("Authorization")
		_ = json.NewEncoder(w).Encode(map[string]string{"jobId": "j-1"})
	}))
	defer srv.Close()

	a := NewHTTPIntegration(HTTPConfig{})
	result, err := a.Execute(context.Background(), Call{
		Service:    "erp",
		Credential: "tok-x",
		Params:     map[string]any{"url": srv.URL, "method": "POST", "body": map[string]any{"doc": "d1"}},
	})
	require.NoError(t, err)
	assert.True(t, result.Success)
	assert.Equal(t, "Bearer tok-x", gotAuth)
	assert.Contains(t, string(result.Data), "j-1")
}

func TestHTTPIntegrationErrorStatus(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		http.Error(w, "down", http.StatusServiceUnavailable)
	}))
	defer srv.Close()

	a := NewHTTPIntegration(HTTPConfig{})
	_, err := a.Execute(context.Background(), Call{Service: "erp", Params: map[string]any{"url": srv.URL}})
	var fe *schema.FlowError
	require.True(t, errors.As(err, &fe))
	assert.Equal(t, schema.ErrCodeIntegration, fe.Code)
}

func TestHTTPIntegrationRejectsBadURL(t *testing.T) {
	a := NewHTTPIntegration(HTTPConfig{})
	err := a.Validate(map[string]any{"url": "ftp://nope"})
	var fe *schema.FlowError
	require.True(t, errors.As(err, &fe))
	assert.Equal(t, schema.ErrCodeValidation, fe.Code)
}

// flakyAction fails a fixed number of times before succeeding.
type flakyAction struct {
	failures int32
	calls    int32
}

func (f *flakyAction) Name() string { return "flaky" }
func (f *flakyAction) Validate(map[string]any) error { return nil }
func (f *flakyAction) Execute(_ context.Context, _ Call) (*Result, error) {
	n := atomic.AddInt32(&f.calls, 1)
	if n <= f.failures {
		return nil, schema.NewErrorf(schema.ErrCodeIntegration, "transient failure %d", n)
	}
	return &Result{Success: true, Message: "ok"}, nil
}

func integrationNode(integrationType string) schema.Node {
	return schema.Node{
		ID:   "n-int",
		Kind: schema.NodeKindIntegration,
		Data: schema.NodeData{
			Service:         "erp",
			IntegrationType: integrationType,
			JobDescriptor:   json.RawMessage(`{"params":{"url":"https://erp.local"}}`),
		},
	}
}

func TestCallerRetriesUntilSuccess(t *testing.T) {
	registry := NewRegistry()
	flaky := &flakyAction{failures: 2}
	require.NoError(t, registry.Register(flaky))

	caller := NewCaller(registry, NewBreakerRegistry(DefaultBreakerConfig()), nil,
		RetryPolicy{MaxAttempts: 3, Delay: time.Millisecond}, nil)

	result, err := caller.Call(context.Background(), "doc-1", integrationNode("flaky"))
	require.NoError(t, err)
	assert.True(t, result.Success)
	assert.Equal(t, int32(3), atomic.LoadInt32(&flaky.calls))
}

func TestCallerExhaustsRetries(t *testing.T) {
	registry := NewRegistry()
	flaky := &flakyAction{failures: 10}
	require.NoError(t, registry.Register(flaky))

	caller := NewCaller(registry, NewBreakerRegistry(DefaultBreakerConfig()), nil,
		RetryPolicy{MaxAttempts: 2, Delay: time.Millisecond}, nil)

	result, err := caller.Call(context.Background(), "doc-1", integrationNode("flaky"))
	require.Error(t, err)
	assert.Nil(t, result)
	var fe *schema.FlowError
	require.True(t, errors.As(err, &fe))
	assert.Equal(t, schema.ErrCodeIntegration, fe.Code)
	assert.Equal(t, "n-int", fe.NodeID)
}

func TestCallerUnconfirmedSuccessIsFailure(t *testing.T) {
	registry := NewRegistry()
	require.NoError(t, registry.Register(&unconfirmedAction{}))

	caller := NewCaller(registry, NewBreakerRegistry(DefaultBreakerConfig()), nil,
		RetryPolicy{MaxAttempts: 1}, nil)

	_, err := caller.Call(context.Background(), "doc-1", integrationNode("unconfirmed"))
	require.Error(t, err)
}

type unconfirmedAction struct{}

func (u *unconfirmedAction) Name() string { return "unconfirmed" }
func (u *unconfirmedAction) Validate(map[string]any) error { return nil }
func (u *unconfirmedAction) Execute(_ context.Context, _ Call) (*Result, error) {
	return &Result{Success: false}, nil
}

func TestCallerMissingService(t *testing.T) {
	caller := NewCaller(NewRegistry(), NewBreakerRegistry(DefaultBreakerConfig()), nil, DefaultRetryPolicy(), nil)
	node := schema.Node{ID: "n1", Kind: schema.NodeKindIntegration}
	_, err := caller.Call(context.Background(), "doc-1", node)
	var fe *schema.FlowError
	require.True(t, errors.As(err, &fe))
	assert.Equal(t, schema.ErrCodeValidation, fe.Code)
}

func TestSimulateIntegration(t *testing.T) {
	a := &SimulateIntegration{}
	result, err := a.Execute(context.Background(), Call{
		Service: "erp", DocumentID: "d1", NodeID: "n1",
		Params: map[string]any{},
	})
	require.NoError(t, err)
	assert.True(t, result.Success)

	_, err = a.Execute(context.Background(), Call{
		Service: "erp",
		Params:  map[string]any{"outcome": "failure"},
	})
	require.Error(t, err)
}
