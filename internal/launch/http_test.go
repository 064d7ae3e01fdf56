package launch

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"sync/atomic"
	"testing"
	"time"

	"github.com/jackzampolin/collate/internal/fault"
)

func TestHTTPAnalyzer_StartAnalysis(t *testing.T) {
	var got analyzeBody
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path != "/analyze" {
			t.Errorf("unexpected path: %s", r.URL.Path)
		}
		if auth := r.Header.Get("Authorization"); auth != "Bearer key-1" {
			t.Errorf("Authorization = %q", auth)
		}
		if err := json.NewDecoder(r.Body).Decode(&got); err != nil {
			t.Errorf("decode body: %v", err)
		}
		w.WriteHeader(http.StatusAccepted)
	}))
	defer server.Close()

	a := NewHTTPAnalyzer(HTTPAnalyzerConfig{BaseURL: server.URL, APIKey: "key-1"})
	err := a.StartAnalysis(context.Background(), Request{
		JobID:          "job-1",
		CallbackToken:  "cb-1",
		SourceLocation: "sources/doc.pdf",
		FileType:       "pdf",
	})
	if err != nil {
		t.Fatalf("StartAnalysis() error = %v", err)
	}
	if got.JobID != "job-1" || got.CallbackToken != "cb-1" || got.SourceLocation != "sources/doc.pdf" {
		t.Errorf("request body = %+v", got)
	}
}

func TestHTTPAnalyzer_RejectionNotRetried(t *testing.T) {
	var calls atomic.Int32
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		calls.Add(1)
		w.WriteHeader(http.StatusUnprocessableEntity)
	}))
	defer server.Close()

	a := NewHTTPAnalyzer(HTTPAnalyzerConfig{BaseURL: server.URL, RetryDelay: time.Millisecond})
	err := a.StartAnalysis(context.Background(), Request{JobID: "job-1"})
	if fault.CodeOf(err, "") != "AnalyzerRejected" {
		t.Fatalf("error code = %q, want AnalyzerRejected", fault.CodeOf(err, ""))
	}
	if calls.Load() != 1 {
		t.Errorf("calls = %d, want 1", calls.Load())
	}
}

func TestHTTPAnalyzer_RetriesServerErrors(t *testing.T) {
	var calls atomic.Int32
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if calls.Add(1) < 3 {
			w.WriteHeader(http.StatusBadGateway)
			return
		}
		w.WriteHeader(http.StatusAccepted)
	}))
	defer server.Close()

	a := NewHTTPAnalyzer(HTTPAnalyzerConfig{BaseURL: server.URL, RetryDelay: time.Millisecond})
	if err := a.StartAnalysis(context.Background(), Request{JobID: "job-1"}); err != nil {
		t.Fatalf("StartAnalysis() error = %v", err)
	}
	if calls.Load() != 3 {
		t.Errorf("calls = %d, want 3", calls.Load())
	}
}
