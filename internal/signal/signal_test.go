package signal

import (
	"context"
	"errors"
	"net/http"
	"net/http/httptest"
	"path/filepath"
	"testing"
	"time"

	"github.com/jackzampolin/collate/internal/tokens"
)

func TestWaiter_SingleUse(t *testing.T) {
	w := NewWaiter()

	ch, err := w.Register("tok-1")
	if err != nil {
		t.Fatalf("Register() error = %v", err)
	}

	if err := w.SignalSuccess(context.Background(), "tok-1", Success{JobID: "job-1"}); err != nil {
		t.Fatalf("SignalSuccess() error = %v", err)
	}

	out := <-ch
	if !out.Success || out.Result.JobID != "job-1" {
		t.Errorf("outcome = %+v", out)
	}

	// Second use of the same token must be rejected.
	err = w.SignalSuccess(context.Background(), "tok-1", Success{})
	if !errors.Is(err, ErrTokenConsumed) {
		t.Errorf("second SignalSuccess() error = %v, want ErrTokenConsumed", err)
	}
	err = w.SignalFailure(context.Background(), "tok-1", "X", "y")
	if !errors.Is(err, ErrTokenConsumed) {
		t.Errorf("SignalFailure() after consume error = %v, want ErrTokenConsumed", err)
	}
}

func TestWaiter_UnknownToken(t *testing.T) {
	w := NewWaiter()
	err := w.SignalFailure(context.Background(), "nope", "X", "y")
	if !errors.Is(err, ErrUnknownToken) {
		t.Errorf("SignalFailure() error = %v, want ErrUnknownToken", err)
	}
}

func TestWaiter_CancelConsumesToken(t *testing.T) {
	w := NewWaiter()
	if _, err := w.Register("tok-1"); err != nil {
		t.Fatalf("Register() error = %v", err)
	}
	w.Cancel("tok-1")

	err := w.SignalSuccess(context.Background(), "tok-1", Success{})
	if !errors.Is(err, ErrTokenConsumed) {
		t.Errorf("SignalSuccess() after Cancel error = %v, want ErrTokenConsumed", err)
	}
}

func TestWaiter_ConsumedTokensEvicted(t *testing.T) {
	w := NewWaiter()
	clock := time.Now()
	w.now = func() time.Time { return clock }
	w.retention = time.Minute

	for _, token := range []string{"tok-1", "tok-2"} {
		if _, err := w.Register(token); err != nil {
			t.Fatalf("Register(%s) error = %v", token, err)
		}
		w.Cancel(token)
	}
	if len(w.consumed) != 2 {
		t.Fatalf("consumed entries = %d, want 2", len(w.consumed))
	}

	// Within the retention window the tokens are still rejected.
	if err := w.SignalSuccess(context.Background(), "tok-1", Success{}); !errors.Is(err, ErrTokenConsumed) {
		t.Errorf("error = %v, want ErrTokenConsumed", err)
	}

	// Past the window they are forgotten; the memory does not grow with
	// process lifetime.
	clock = clock.Add(2 * time.Minute)
	if _, err := w.Register("tok-3"); err != nil {
		t.Fatalf("Register() error = %v", err)
	}
	if len(w.consumed) != 0 {
		t.Errorf("consumed entries = %d after retention, want 0", len(w.consumed))
	}
}

// fakeCallback records calls and fails on demand.
type fakeCallback struct {
	successErr error
	failureErr error
	successes  []Success
	failures   []string
}

func (f *fakeCallback) SignalSuccess(_ context.Context, _ string, payload Success) error {
	if f.successErr != nil {
		return f.successErr
	}
	f.successes = append(f.successes, payload)
	return nil
}

func (f *fakeCallback) SignalFailure(_ context.Context, _ string, code, _ string) error {
	if f.failureErr != nil {
		return f.failureErr
	}
	f.failures = append(f.failures, code)
	return nil
}

func testTokenStore(t *testing.T) *tokens.Store {
	t.Helper()
	s, err := tokens.Open(filepath.Join(t.TempDir(), "tokens.db"), nil)
	if err != nil {
		t.Fatalf("tokens.Open() error = %v", err)
	}
	t.Cleanup(func() { s.Close() })
	return s
}

func storedToken(t *testing.T, ts *tokens.Store, jobID string) tokens.JobToken {
	t.Helper()
	tok := tokens.JobToken{
		JobID:         jobID,
		CallbackToken: "cb-" + jobID,
		ExpiresAt:     time.Now().Add(time.Hour),
	}
	if err := ts.Put(context.Background(), tok); err != nil {
		t.Fatalf("Put() error = %v", err)
	}
	return tok
}

func TestSignaler_Success(t *testing.T) {
	ts := testTokenStore(t)
	cb := &fakeCallback{}
	s := NewSignaler(ts, cb, nil)
	ctx := context.Background()

	tok := storedToken(t, ts, "job-1")
	if err := s.Success(ctx, tok, "results/job-1/r.json"); err != nil {
		t.Fatalf("Success() error = %v", err)
	}

	if len(cb.successes) != 1 || cb.successes[0].ResultLocation != "results/job-1/r.json" {
		t.Errorf("successes = %+v", cb.successes)
	}
	if _, err := ts.Get(ctx, "job-1"); !errors.Is(err, tokens.ErrNotFound) {
		t.Errorf("token still present after signal: %v", err)
	}
}

func TestSignaler_FallbackFailureSignal(t *testing.T) {
	ts := testTokenStore(t)
	cb := &fakeCallback{successErr: errors.New("token consumed")}
	s := NewSignaler(ts, cb, nil)
	ctx := context.Background()

	tok := storedToken(t, ts, "job-1")
	if err := s.Success(ctx, tok, "results/job-1/r.json"); err != nil {
		t.Fatalf("Success() error = %v", err)
	}

	if len(cb.successes) != 0 {
		t.Errorf("successes = %+v, want none", cb.successes)
	}
	if len(cb.failures) != 1 {
		t.Fatalf("failures = %+v, want one fallback", cb.failures)
	}
	if _, err := ts.Get(ctx, "job-1"); !errors.Is(err, tokens.ErrNotFound) {
		t.Errorf("token still present after fallback: %v", err)
	}
}

func TestSignaler_BothSignalsFailStillDeletes(t *testing.T) {
	ts := testTokenStore(t)
	cb := &fakeCallback{
		successErr: errors.New("down"),
		failureErr: errors.New("still down"),
	}
	s := NewSignaler(ts, cb, nil)
	ctx := context.Background()

	tok := storedToken(t, ts, "job-1")
	if err := s.Success(ctx, tok, "loc"); err != nil {
		t.Fatalf("Success() error = %v", err)
	}
	// The claim removes the token up front: signal failures never leave it
	// behind to be signaled again.
	if _, err := ts.Get(ctx, "job-1"); !errors.Is(err, tokens.ErrNotFound) {
		t.Errorf("token still present: %v", err)
	}
}

func TestSignaler_SecondCompletionIsNoOp(t *testing.T) {
	ts := testTokenStore(t)
	cb := &fakeCallback{}
	s := NewSignaler(ts, cb, nil)
	ctx := context.Background()

	tok := storedToken(t, ts, "job-1")
	if err := s.Success(ctx, tok, "results/job-1/r.json"); err != nil {
		t.Fatalf("first Success() error = %v", err)
	}

	// A second completion attempt for the same job (two last-shard events
	// racing past the token lookup) loses the claim and signals nothing.
	if err := s.Success(ctx, tok, "results/job-1/other.json"); err != nil {
		t.Fatalf("second Success() error = %v", err)
	}
	if len(cb.successes) != 1 {
		t.Errorf("successes = %d, want exactly 1", len(cb.successes))
	}

	if err := s.Failure(ctx, tok, "Late", errors.New("late")); err != nil {
		t.Fatalf("Failure() after claim error = %v", err)
	}
	if len(cb.failures) != 0 {
		t.Errorf("failures = %+v, want none", cb.failures)
	}
}

func TestSignaler_Failure(t *testing.T) {
	ts := testTokenStore(t)
	cb := &fakeCallback{}
	s := NewSignaler(ts, cb, nil)
	ctx := context.Background()

	tok := storedToken(t, ts, "job-1")
	if err := s.Failure(ctx, tok, "AnalysisFailed", errors.New("boom")); err != nil {
		t.Fatalf("Failure() error = %v", err)
	}
	if len(cb.failures) != 1 || cb.failures[0] != "AnalysisFailed" {
		t.Errorf("failures = %+v", cb.failures)
	}
	if _, err := ts.Get(ctx, "job-1"); !errors.Is(err, tokens.ErrNotFound) {
		t.Errorf("token still present: %v", err)
	}
}

func TestHTTPCallback(t *testing.T) {
	t.Run("success delivered", func(t *testing.T) {
		var gotPath string
		server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			gotPath = r.URL.Path
			w.WriteHeader(http.StatusOK)
		}))
		defer server.Close()

		c := NewHTTPCallback(HTTPCallbackConfig{BaseURL: server.URL})
		if err := c.SignalSuccess(context.Background(), "tok", Success{JobID: "j"}); err != nil {
			t.Fatalf("SignalSuccess() error = %v", err)
		}
		if gotPath != "/signal/success" {
			t.Errorf("path = %q", gotPath)
		}
	})

	t.Run("consumed token not retried", func(t *testing.T) {
		calls := 0
		server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			calls++
			w.WriteHeader(http.StatusConflict)
		}))
		defer server.Close()

		c := NewHTTPCallback(HTTPCallbackConfig{BaseURL: server.URL, RetryDelay: time.Millisecond})
		err := c.SignalSuccess(context.Background(), "tok", Success{})
		if !errors.Is(err, ErrTokenConsumed) {
			t.Errorf("error = %v, want ErrTokenConsumed", err)
		}
		if calls != 1 {
			t.Errorf("calls = %d, want 1", calls)
		}
	})

	t.Run("server errors retried", func(t *testing.T) {
		calls := 0
		server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			calls++
			if calls < 3 {
				w.WriteHeader(http.StatusBadGateway)
				return
			}
			w.WriteHeader(http.StatusOK)
		}))
		defer server.Close()

		c := NewHTTPCallback(HTTPCallbackConfig{BaseURL: server.URL, RetryDelay: time.Millisecond})
		if err := c.SignalFailure(context.Background(), "tok", "X", "y"); err != nil {
			t.Fatalf("SignalFailure() error = %v", err)
		}
		if calls != 3 {
			t.Errorf("calls = %d, want 3", calls)
		}
	})
}
