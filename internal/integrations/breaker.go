package integrations

import (
	"sync"
	"time"

	"github.com/rvergara/docflow/pkg/schema"
)

// CircuitState is the state of one service's circuit.
type CircuitState int

const (
	CircuitClosed CircuitState = iota
	CircuitOpen
	CircuitHalfOpen
)

func (s CircuitState) String() string {
	switch s {
	case CircuitClosed:
		return "closed"
	case CircuitOpen:
		return "open"
	case CircuitHalfOpen:
		return "half_open"
	default:
		return "unknown"
	}
}

// BreakerConfig tunes the per-service circuit breaker.
type BreakerConfig struct {
	FailureThreshold int
	Cooldown         time.Duration
	HalfOpenMax      int
}

func DefaultBreakerConfig() BreakerConfig {
	return BreakerConfig{
		FailureThreshold: 5,
		Cooldown:         30 * time.Second,
		HalfOpenMax:      1,
	}
}

type circuit struct {
	mu                  sync.Mutex
	state               CircuitState
	consecutiveFailures int
	lastFailure         time.Time
	halfOpenAttempts    int
	config              BreakerConfig
}

// BreakerRegistry keeps one circuit per external service so a flapping
// ERP cannot burn attempts on every document in the flow.
type BreakerRegistry struct {
	mu       sync.Mutex
	circuits map[string]*circuit
	config   BreakerConfig
}

func NewBreakerRegistry(config BreakerConfig) *BreakerRegistry {
	def := DefaultBreakerConfig()
	if config.FailureThreshold <= 0 {
		config.FailureThreshold = def.FailureThreshold
	}
	if config.Cooldown <= 0 {
		config.Cooldown = def.Cooldown
	}
	if config.HalfOpenMax <= 0 {
		config.HalfOpenMax = def.HalfOpenMax
	}
	return &BreakerRegistry{
		circuits: make(map[string]*circuit),
		config:   config,
	}
}

// Allow checks whether a call to the service may proceed.
func (r *BreakerRegistry) Allow(service string) error {
	c := r.getOrCreate(service)
	c.mu.Lock()
	defer c.mu.Unlock()

	switch c.state {
	case CircuitClosed:
		return nil

	case CircuitOpen:
		if time.Since(c.lastFailure) >= c.config.Cooldown {
			c.state = CircuitHalfOpen
			c.halfOpenAttempts = 1
			return nil
		}
		return schema.NewErrorf(schema.ErrCodeIntegration,
			"circuit open for service %q after %d consecutive failures", service, c.consecutiveFailures).
			WithDetails(map[string]any{
				"service":              service,
				"consecutive_failures": c.consecutiveFailures,
				"state":                c.state.String(),
			})

	case CircuitHalfOpen:
		if c.halfOpenAttempts >= c.config.HalfOpenMax {
			return schema.NewErrorf(schema.ErrCodeIntegration,
				"circuit half-open for service %q: test request already in flight", service)
		}
		c.halfOpenAttempts++
		return nil
	}
	return nil
}

// RecordSuccess closes the circuit for the service.
func (r *BreakerRegistry) RecordSuccess(service string) {
	c := r.getOrCreate(service)
	c.mu.Lock()
	defer c.mu.Unlock()

	c.consecutiveFailures = 0
	c.halfOpenAttempts = 0
	c.state = CircuitClosed
}

// RecordFailure counts a failure and returns the resulting state.
func (r *BreakerRegistry) RecordFailure(service string) CircuitState {
	c := r.getOrCreate(service)
	c.mu.Lock()
	defer c.mu.Unlock()

	c.consecutiveFailures++
	c.lastFailure = time.Now()

	if c.state == CircuitHalfOpen {
		c.state = CircuitOpen
		return CircuitOpen
	}
	if c.consecutiveFailures >= c.config.FailureThreshold {
		c.state = CircuitOpen
		return CircuitOpen
	}
	return c.state
}

// State reports the current state, applying the cooldown transition.
func (r *BreakerRegistry) State(service string) CircuitState {
	c := r.getOrCreate(service)
	c.mu.Lock()
	defer c.mu.Unlock()

	if c.state == CircuitOpen && time.Since(c.lastFailure) >= c.config.Cooldown {
		c.state = CircuitHalfOpen
		c.halfOpenAttempts = 0
	}
	return c.state
}

func (r *BreakerRegistry) getOrCreate(service string) *circuit {
	r.mu.Lock()
	defer r.mu.Unlock()
	c, ok := r.circuits[service]
	if !ok {
		c = &circuit{state: CircuitClosed, config: r.config}
		r.circuits[service] = c
	}
	return c
}
