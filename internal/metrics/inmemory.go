package metrics

import "sync"

// InMemory is a Recorder that keeps counters in process memory.
// Useful for tests and for exposing a snapshot on an admin endpoint.
type InMemory struct {
	mu sync.Mutex

	tokensIssued      int64
	authSuccess       int64
	authFailures      map[string]int64
	rateLimitAllowed  int64
	rateLimitRejected int64
}

// Snapshot is a point-in-time copy of all counters.
type Snapshot struct {
	TokensIssued      int64            `json:"tokens_issued"`
	AuthSuccess       int64            `json:"auth_success"`
	AuthFailures      map[string]int64 `json:"auth_failures"`
	RateLimitAllowed  int64            `json:"rate_limit_allowed"`
	RateLimitRejected int64            `json:"rate_limit_rejected"`
}

// NewInMemory creates an in-memory Recorder.
func NewInMemory() *InMemory {
	return &InMemory{
		authFailures: make(map[string]int64),
	}
}

func (m *InMemory) IncTokenIssued() {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.tokensIssued++
}

func (m *InMemory) IncAuthSuccess() {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.authSuccess++
}

func (m *InMemory) IncAuthFailure(reason string) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.authFailures[reason]++
}

func (m *InMemory) IncRateLimitAllowed() {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.rateLimitAllowed++
}

func (m *InMemory) IncRateLimitRejected() {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.rateLimitRejected++
}

// Snapshot returns a copy of the current counters.
func (m *InMemory) Snapshot() Snapshot {
	m.mu.Lock()
	defer m.mu.Unlock()

	failures := make(map[string]int64, len(m.authFailures))
	for k, v := range m.authFailures {
		failures[k] = v
	}

	return Snapshot{
		TokensIssued:      m.tokensIssued,
		AuthSuccess:       m.authSuccess,
		AuthFailures:      failures,
		RateLimitAllowed:  m.rateLimitAllowed,
		RateLimitRejected: m.rateLimitRejected,
	}
}
