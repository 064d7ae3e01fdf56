package tokens

import (
	"context"
	"errors"
	"path/filepath"
	"testing"
	"time"
)

func testStore(t *testing.T) *Store {
	t.Helper()
	s, err := Open(filepath.Join(t.TempDir(), "tokens.db"), nil)
	if err != nil {
		t.Fatalf("Open() error = %v", err)
	}
	t.Cleanup(func() { s.Close() })
	return s
}

func testToken(jobID string) JobToken {
	return JobToken{
		JobID:          jobID,
		CallbackToken:  "cb-" + jobID,
		FileType:       "pdf",
		WorkflowID:     "wf-1",
		UserID:         "user-1",
		SourceLocation: "uploads/doc.pdf",
		ExpiresAt:      time.Now().Add(time.Hour),
	}
}

func TestStore_PutGet(t *testing.T) {
	s := testStore(t)
	ctx := context.Background()

	tok := testToken("job-1")
	if err := s.Put(ctx, tok); err != nil {
		t.Fatalf("Put() error = %v", err)
	}

	got, err := s.Get(ctx, "job-1")
	if err != nil {
		t.Fatalf("Get() error = %v", err)
	}
	if got.CallbackToken != "cb-job-1" {
		t.Errorf("CallbackToken = %q", got.CallbackToken)
	}
	if got.SourceLocation != "uploads/doc.pdf" {
		t.Errorf("SourceLocation = %q", got.SourceLocation)
	}
}

func TestStore_PutDuplicate(t *testing.T) {
	s := testStore(t)
	ctx := context.Background()

	if err := s.Put(ctx, testToken("job-1")); err != nil {
		t.Fatalf("Put() error = %v", err)
	}
	err := s.Put(ctx, testToken("job-1"))
	if !errors.Is(err, ErrDuplicate) {
		t.Errorf("second Put() error = %v, want ErrDuplicate", err)
	}
}

func TestStore_PutReplacesExpired(t *testing.T) {
	s := testStore(t)
	ctx := context.Background()

	expired := testToken("job-1")
	expired.ExpiresAt = time.Now().Add(-time.Minute)
	if err := s.Put(ctx, expired); err != nil {
		t.Fatalf("Put(expired) error = %v", err)
	}

	// The expired leftover must not block a fresh insert.
	if err := s.Put(ctx, testToken("job-1")); err != nil {
		t.Fatalf("Put() over expired row error = %v", err)
	}
}

func TestStore_GetMissing(t *testing.T) {
	s := testStore(t)

	_, err := s.Get(context.Background(), "nope")
	if !errors.Is(err, ErrNotFound) {
		t.Errorf("Get() error = %v, want ErrNotFound", err)
	}
}

func TestStore_GetExpired(t *testing.T) {
	s := testStore(t)
	ctx := context.Background()

	tok := testToken("job-1")
	if err := s.Put(ctx, tok); err != nil {
		t.Fatalf("Put() error = %v", err)
	}
	s.now = func() time.Time { return time.Now().Add(2 * time.Hour) }

	_, err := s.Get(ctx, "job-1")
	if !errors.Is(err, ErrNotFound) {
		t.Errorf("Get() after expiry error = %v, want ErrNotFound", err)
	}
}

func TestStore_DeleteIdempotent(t *testing.T) {
	s := testStore(t)
	ctx := context.Background()

	if err := s.Put(ctx, testToken("job-1")); err != nil {
		t.Fatalf("Put() error = %v", err)
	}
	if err := s.Delete(ctx, "job-1"); err != nil {
		t.Fatalf("Delete() error = %v", err)
	}
	// Deleting an absent key is not an error.
	if err := s.Delete(ctx, "job-1"); err != nil {
		t.Errorf("second Delete() error = %v", err)
	}
	if err := s.Delete(ctx, "never-existed"); err != nil {
		t.Errorf("Delete(absent) error = %v", err)
	}
}

func TestStore_Claim(t *testing.T) {
	s := testStore(t)
	ctx := context.Background()

	if err := s.Put(ctx, testToken("job-1")); err != nil {
		t.Fatalf("Put() error = %v", err)
	}

	claimed, err := s.Claim(ctx, "job-1")
	if err != nil {
		t.Fatalf("Claim() error = %v", err)
	}
	if !claimed {
		t.Error("first Claim() = false, want true")
	}

	claimed, err = s.Claim(ctx, "job-1")
	if err != nil {
		t.Fatalf("second Claim() error = %v", err)
	}
	if claimed {
		t.Error("second Claim() = true, want false")
	}
}

func TestStore_PurgeExpired(t *testing.T) {
	s := testStore(t)
	ctx := context.Background()

	live := testToken("live")
	dead := testToken("dead")
	dead.ExpiresAt = time.Now().Add(-time.Minute)
	if err := s.Put(ctx, live); err != nil {
		t.Fatalf("Put(live) error = %v", err)
	}
	if err := s.Put(ctx, dead); err != nil {
		t.Fatalf("Put(dead) error = %v", err)
	}

	n, err := s.PurgeExpired(ctx)
	if err != nil {
		t.Fatalf("PurgeExpired() error = %v", err)
	}
	if n != 1 {
		t.Errorf("PurgeExpired() = %d, want 1", n)
	}
	if _, err := s.Get(ctx, "live"); err != nil {
		t.Errorf("Get(live) after purge error = %v", err)
	}
}
