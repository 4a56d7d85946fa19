package status

import (
	"sync"
	"time"
)

// ReconnectPolicy bounds automatic reconnection after a transient close.
// The backoff is owned here rather than delegated to the provider's
// internal retry, so the cutoff is explicit.
type ReconnectPolicy struct {
	MaxAttempts int
	BaseDelay   time.Duration
	MaxDelay    time.Duration
}

// DefaultReconnectPolicy caps at 8 attempts with 1s..30s exponential backoff.
var DefaultReconnectPolicy = ReconnectPolicy{
	MaxAttempts: 8,
	BaseDelay:   time.Second,
	MaxDelay:    30 * time.Second,
}

// Delay returns the backoff before the given attempt (1-based).
func (p ReconnectPolicy) Delay(attempt int) time.Duration {
	if attempt <= 1 {
		return p.BaseDelay
	}
	d := p.BaseDelay << (attempt - 1)
	if d > p.MaxDelay || d <= 0 {
		return p.MaxDelay
	}
	return d
}

// Reconnector schedules bounded reconnect attempts.
type Reconnector struct {
	mu      sync.Mutex
	policy  ReconnectPolicy
	attempt int
	timer   *time.Timer
}

// NewReconnector creates a reconnector with the given policy.
func NewReconnector(policy ReconnectPolicy) *Reconnector {
	return &Reconnector{policy: policy}
}

// Schedule arms one reconnect attempt after the policy backoff.
// Returns false when the attempt budget is exhausted.
func (r *Reconnector) Schedule(connect func()) bool {
	r.mu.Lock()
	defer r.mu.Unlock()

	if r.attempt >= r.policy.MaxAttempts {
		return false
	}
	r.attempt++
	delay := r.policy.Delay(r.attempt)
	r.timer = time.AfterFunc(delay, connect)
	return true
}

// Reset clears the attempt counter. Called when the session reaches Open.
func (r *Reconnector) Reset() {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.attempt = 0
}

// Stop cancels any pending attempt.
func (r *Reconnector) Stop() {
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.timer != nil {
		r.timer.Stop()
		r.timer = nil
	}
}

// Attempt returns the number of attempts consumed so far.
func (r *Reconnector) Attempt() int {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.attempt
}
