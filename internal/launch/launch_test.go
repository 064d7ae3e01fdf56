package launch

import (
	"context"
	"errors"
	"path/filepath"
	"testing"
	"time"

	"github.com/jackzampolin/collate/internal/fault"
	"github.com/jackzampolin/collate/internal/storage"
	"github.com/jackzampolin/collate/internal/tokens"
)

type fakeAnalyzer struct {
	requests []Request
	err      error
}

func (f *fakeAnalyzer) StartAnalysis(_ context.Context, req Request) error {
	f.requests = append(f.requests, req)
	return f.err
}

type env struct {
	launcher *Launcher
	tokens   *tokens.Store
	store    *storage.FSStore
	analyzer *fakeAnalyzer
}

func newEnv(t *testing.T) *env {
	t.Helper()
	ts, err := tokens.Open(filepath.Join(t.TempDir(), "tokens.db"), nil)
	if err != nil {
		t.Fatalf("tokens.Open() error = %v", err)
	}
	t.Cleanup(func() { ts.Close() })
	fs, err := storage.NewFSStore(t.TempDir())
	if err != nil {
		t.Fatalf("NewFSStore() error = %v", err)
	}
	analyzer := &fakeAnalyzer{}
	return &env{
		launcher: NewLauncher(LauncherConfig{
			Tokens:   ts,
			Store:    fs,
			Analyzer: analyzer,
			TokenTTL: time.Hour,
		}),
		tokens:   ts,
		store:    fs,
		analyzer: analyzer,
	}
}

func TestLauncher_Launch(t *testing.T) {
	e := newEnv(t)
	jobID, err := e.launcher.Launch(context.Background(), "cb-token", "sources/doc.txt",
		Options{FileType: "text", WorkflowID: "wf-1", UserID: "user-1"})
	if err != nil {
		t.Fatalf("Launch() error = %v", err)
	}
	if jobID == "" {
		t.Fatal("Launch() returned empty job id")
	}

	tok, err := e.tokens.Get(context.Background(), jobID)
	if err != nil {
		t.Fatalf("token not stored: %v", err)
	}
	if tok.CallbackToken != "cb-token" || tok.SourceLocation != "sources/doc.txt" {
		t.Errorf("stored token = %+v", tok)
	}
	if tok.WorkflowID != "wf-1" || tok.UserID != "user-1" {
		t.Errorf("stored token metadata = %+v", tok)
	}

	if len(e.analyzer.requests) != 1 {
		t.Fatalf("analyzer calls = %d, want 1", len(e.analyzer.requests))
	}
	req := e.analyzer.requests[0]
	if req.JobID != jobID || req.CallbackToken != "cb-token" || req.FileType != "text" {
		t.Errorf("analyzer request = %+v", req)
	}
}

func TestLauncher_MissingInputs(t *testing.T) {
	e := newEnv(t)

	if _, err := e.launcher.Launch(context.Background(), "", "sources/doc.txt", Options{FileType: "text"}); fault.KindOf(err) != fault.Validation {
		t.Errorf("missing token: kind = %q, want Validation", fault.KindOf(err))
	}
	if _, err := e.launcher.Launch(context.Background(), "cb", "  ", Options{FileType: "text"}); fault.KindOf(err) != fault.Validation {
		t.Errorf("missing source: kind = %q, want Validation", fault.KindOf(err))
	}
}

func TestLauncher_InvalidPDF(t *testing.T) {
	e := newEnv(t)
	if err := e.store.Put(context.Background(), "sources/bad.pdf", []byte("not a pdf"), "application/pdf"); err != nil {
		t.Fatalf("Put() error = %v", err)
	}

	_, err := e.launcher.Launch(context.Background(), "cb", "sources/bad.pdf", Options{})
	if fault.KindOf(err) != fault.Validation {
		t.Fatalf("error kind = %q, want Validation", fault.KindOf(err))
	}
	if fault.CodeOf(err, "") != "SourceInvalid" {
		t.Errorf("error code = %q, want SourceInvalid", fault.CodeOf(err, ""))
	}
}

func TestLauncher_MissingSourceObject(t *testing.T) {
	e := newEnv(t)
	_, err := e.launcher.Launch(context.Background(), "cb", "sources/absent.pdf", Options{})
	if fault.CodeOf(err, "") != "SourceUnreadable" {
		t.Errorf("error code = %q, want SourceUnreadable", fault.CodeOf(err, ""))
	}
}

func TestLauncher_DispatchFailureRemovesToken(t *testing.T) {
	e := newEnv(t)
	e.analyzer.err = errors.New("analyzer unreachable")

	_, err := e.launcher.Launch(context.Background(), "cb", "sources/doc.txt", Options{FileType: "text"})
	if fault.KindOf(err) != fault.ExternalService {
		t.Fatalf("error kind = %q, want ExternalService", fault.KindOf(err))
	}

	// No orphan token may survive a failed dispatch.
	if len(e.analyzer.requests) != 1 {
		t.Fatalf("analyzer calls = %d, want 1", len(e.analyzer.requests))
	}
	jobID := e.analyzer.requests[0].JobID
	if _, getErr := e.tokens.Get(context.Background(), jobID); !errors.Is(getErr, tokens.ErrNotFound) {
		t.Errorf("Get() error = %v, want ErrNotFound", getErr)
	}
}
