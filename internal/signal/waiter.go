package signal

import (
	"context"
	"fmt"
	"sync"
	"time"
)

// consumedRetention is how long a consumed token is remembered so late
// signals are rejected rather than treated as unknown. Matches the token
// store's default TTL; after both have lapsed nothing can reference the
// token anymore.
const consumedRetention = time.Hour

// Outcome is what a suspended execution receives when its token fires.
type Outcome struct {
	Success bool
	Result  Success
	Code    string
	Cause   string
}

// Waiter is the in-process Callback implementation: pipeline executions
// register a token and block on the returned channel; signaling resumes
// them. Tokens are strictly single-use, which also covers the redelivery
// race where a second completion attempt reuses a consumed token.
// Consumed tokens are remembered for a bounded retention window so a
// long-lived process does not accumulate them forever.
type Waiter struct {
	mu        sync.Mutex
	waiting   map[string]chan Outcome
	consumed  map[string]time.Time
	retention time.Duration

	// now is swappable for retention tests.
	now func() time.Time
}

// NewWaiter creates an empty waiter.
func NewWaiter() *Waiter {
	return &Waiter{
		waiting:   make(map[string]chan Outcome),
		consumed:  make(map[string]time.Time),
		retention: consumedRetention,
		now:       time.Now,
	}
}

// Register reserves token and returns the channel its outcome will arrive
// on. The channel is buffered: signaling never blocks on a slow waiter.
func (w *Waiter) Register(token string) (<-chan Outcome, error) {
	w.mu.Lock()
	defer w.mu.Unlock()
	w.evictExpired()
	if _, ok := w.consumed[token]; ok {
		return nil, fmt.Errorf("token %s: %w", token, ErrTokenConsumed)
	}
	if _, ok := w.waiting[token]; ok {
		return nil, fmt.Errorf("token %s already registered", token)
	}
	ch := make(chan Outcome, 1)
	w.waiting[token] = ch
	return ch, nil
}

// Cancel abandons a registered token, e.g. when the wait times out. The
// token is marked consumed so a late signal is rejected rather than
// resuming a dead execution.
func (w *Waiter) Cancel(token string) {
	w.mu.Lock()
	defer w.mu.Unlock()
	if _, ok := w.waiting[token]; ok {
		delete(w.waiting, token)
		w.consumed[token] = w.now()
	}
}

// SignalSuccess resumes the execution waiting on token.
func (w *Waiter) SignalSuccess(_ context.Context, token string, payload Success) error {
	return w.deliver(token, Outcome{Success: true, Result: payload})
}

// SignalFailure resumes the execution waiting on token with a failure.
func (w *Waiter) SignalFailure(_ context.Context, token, code, cause string) error {
	return w.deliver(token, Outcome{Code: code, Cause: cause})
}

func (w *Waiter) deliver(token string, out Outcome) error {
	w.mu.Lock()
	defer w.mu.Unlock()
	w.evictExpired()
	if _, ok := w.consumed[token]; ok {
		return fmt.Errorf("token %s: %w", token, ErrTokenConsumed)
	}
	ch, ok := w.waiting[token]
	if !ok {
		return fmt.Errorf("token %s: %w", token, ErrUnknownToken)
	}
	delete(w.waiting, token)
	w.consumed[token] = w.now()
	ch <- out
	return nil
}

// evictExpired drops consumed entries older than the retention window.
// Caller holds w.mu.
func (w *Waiter) evictExpired() {
	cutoff := w.now().Add(-w.retention)
	for token, at := range w.consumed {
		if at.Before(cutoff) {
			delete(w.consumed, token)
		}
	}
}
