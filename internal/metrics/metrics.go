// Package metrics provides lightweight hooks for instrumentation.
package metrics

// Recorder captures metric events for the application.
// Implementations can expose these to Prometheus, StatsD, etc.
type Recorder interface {
	// Token lifecycle
	IncTokenIssued()

	// Request authentication outcomes
	IncAuthSuccess()
	IncAuthFailure(reason string) // reason: "missing_token", "malformed", "bad_signature", "expired"

	// Rate limiter verdicts
	IncRateLimitAllowed()
	IncRateLimitRejected()
}
