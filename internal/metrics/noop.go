package metrics

// Noop is a Recorder that discards all events.
type Noop struct{}

// NewNoop creates a no-op Recorder.
func NewNoop() *Noop {
	return &Noop{}
}

func (n *Noop) IncTokenIssued()       {}
func (n *Noop) IncAuthSuccess()       {}
func (n *Noop) IncAuthFailure(string) {}
func (n *Noop) IncRateLimitAllowed()  {}
func (n *Noop) IncRateLimitRejected() {}
