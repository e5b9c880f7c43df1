package api

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"
)

func TestNewClient_ValidatesBaseURL(t *testing.T) {
	cases := []struct {
		name    string
		baseURL string
		wantErr bool
	}{
		{name: "absolute http", baseURL: "http://localhost:8080", wantErr: false},
		{name: "absolute https", baseURL: "https://api.example.com", wantErr: false},
		{name: "empty", baseURL: "", wantErr: true},
		{name: "relative", baseURL: "/analysis", wantErr: true},
		{name: "missing scheme", baseURL: "api.example.com", wantErr: true},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			_, err := NewClient(tc.baseURL, "")
			if tc.wantErr && err == nil {
				t.Fatalf("expected error for %q", tc.baseURL)
			}
			if !tc.wantErr && err != nil {
				t.Fatalf("unexpected error for %q: %v", tc.baseURL, err)
			}
		})
	}
}

func TestClient_StartAnalysis(t *testing.T) {
	var gotPath, gotAuth string
	var gotReq AnalysisRequest
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		gotPath = r.Method + " " + r.URL.Path
		gotAuth = r.Header.Get("Authorization")
		if err := json.NewDecoder(r.Body).Decode(&gotReq); err != nil {
			t.Errorf("decode request: %v", err)
		}
		w.Header().Set("Content-Type", "application/json")
		_, _ = w.Write([]byte(`{"job_id":"job-1","total_repos":42,"to_evaluate":12}`))
	}))
	t.Cleanup(server.Close)

	c, err := NewClient(server.URL, "test-token")
	if err != nil {
		t.Fatalf("NewClient: %v", err)
	}
	accepted, err := c.StartAnalysis(context.Background(), AnalysisRequest{Login: "octocat", MaxEvaluate: 12})
	if err != nil {
		t.Fatalf("StartAnalysis: %v", err)
	}

	if gotPath != "POST /analysis" {
		t.Errorf("unexpected request: %q", gotPath)
	}
	if !strings.Contains(gotAuth, "test-token") {
		t.Errorf("expected bearer token in Authorization header, got %q", gotAuth)
	}
	if gotReq.Login != "octocat" || gotReq.MaxEvaluate != 12 {
		t.Errorf("unexpected request body: %+v", gotReq)
	}
	if accepted.JobID != "job-1" || accepted.TotalRepos != 42 || accepted.ToEvaluate != 12 {
		t.Errorf("unexpected response: %+v", accepted)
	}
}

func TestClient_StartAnalysis_EmptyLogin(t *testing.T) {
	c, err := NewClient("http://localhost:1", "")
	if err != nil {
		t.Fatalf("NewClient: %v", err)
	}
	_, err = c.StartAnalysis(context.Background(), AnalysisRequest{})
	if !IsKind(err, KindClient) {
		t.Fatalf("expected client error, got %v", err)
	}
}

func TestClient_JobStatus(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path != "/analysis/job-1/status" {
			t.Errorf("unexpected path %q", r.URL.Path)
		}
		w.Header().Set("Content-Type", "application/json")
		_, _ = w.Write([]byte(`{
			"status": "evaluating",
			"progress": {"total_repos": 42, "scored": 42, "categorized": 42, "evaluated": 6, "to_evaluate": 12, "percentage": 60}
		}`))
	}))
	t.Cleanup(server.Close)

	c, err := NewClient(server.URL, "")
	if err != nil {
		t.Fatalf("NewClient: %v", err)
	}
	status, err := c.JobStatus(context.Background(), "job-1")
	if err != nil {
		t.Fatalf("JobStatus: %v", err)
	}
	if status.Status != StatusEvaluating {
		t.Errorf("status = %q, want %q", status.Status, StatusEvaluating)
	}
	if status.Progress.Evaluated != 6 || status.Progress.ToEvaluate != 12 {
		t.Errorf("unexpected progress: %+v", status.Progress)
	}
}

func TestClient_JobResults_NotFoundClassified(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		w.WriteHeader(http.StatusNotFound)
		_, _ = w.Write([]byte(`{"error":"results not ready"}`))
	}))
	t.Cleanup(server.Close)

	c, err := NewClient(server.URL, "")
	if err != nil {
		t.Fatalf("NewClient: %v", err)
	}
	_, err = c.JobResults(context.Background(), "job-1")
	apiErr, ok := AsError(err)
	if !ok {
		t.Fatalf("expected *Error, got %T: %v", err, err)
	}
	if apiErr.Kind != KindNotFound {
		t.Errorf("Kind = %q, want %q", apiErr.Kind, KindNotFound)
	}
	if apiErr.StatusCode != http.StatusNotFound {
		t.Errorf("StatusCode = %d, want 404", apiErr.StatusCode)
	}
	if !strings.Contains(apiErr.Message, "results not ready") {
		t.Errorf("expected backend message to survive, got %q", apiErr.Message)
	}
}

func TestClient_RateLimitCarriesRetryAfter(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Retry-After", "7")
		w.WriteHeader(http.StatusTooManyRequests)
	}))
	t.Cleanup(server.Close)

	c, err := NewClient(server.URL, "")
	if err != nil {
		t.Fatalf("NewClient: %v", err)
	}
	_, err = c.JobStatus(context.Background(), "job-1")
	apiErr, ok := AsError(err)
	if !ok {
		t.Fatalf("expected *Error, got %v", err)
	}
	if apiErr.Kind != KindRateLimited {
		t.Errorf("Kind = %q, want %q", apiErr.Kind, KindRateLimited)
	}
	if apiErr.RetryAfter != 7*time.Second {
		t.Errorf("RetryAfter = %s, want 7s", apiErr.RetryAfter)
	}
	if !apiErr.Retryable() {
		t.Error("rate limited errors must be retryable")
	}
}

func TestClient_InvalidateCache_NoContent(t *testing.T) {
	var gotPath string
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		gotPath = r.Method + " " + r.URL.Path
		w.WriteHeader(http.StatusNoContent)
	}))
	t.Cleanup(server.Close)

	c, err := NewClient(server.URL, "")
	if err != nil {
		t.Fatalf("NewClient: %v", err)
	}
	if err := c.InvalidateCache(context.Background(), "user:octocat"); err != nil {
		t.Fatalf("InvalidateCache: %v", err)
	}
	if gotPath != "POST /cache/invalidate/user:octocat" {
		t.Errorf("unexpected request: %q", gotPath)
	}
}

func TestClient_Sync(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.Method != http.MethodPost || r.URL.Path != "/sync" {
			t.Errorf("unexpected request: %s %s", r.Method, r.URL.Path)
		}
		w.Header().Set("Content-Type", "application/json")
		_, _ = w.Write([]byte(`{"synced":true,"synced_at":"2026-08-25T10:00:00Z"}`))
	}))
	t.Cleanup(server.Close)

	c, err := NewClient(server.URL, "")
	if err != nil {
		t.Fatalf("NewClient: %v", err)
	}
	resp, err := c.Sync(context.Background())
	if err != nil {
		t.Fatalf("Sync: %v", err)
	}
	if !resp.Synced {
		t.Error("expected synced=true")
	}
}

func TestClient_NetworkErrorClassified(t *testing.T) {
	// Closed server: the dial fails, which must come back as a network error.
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {}))
	server.Close()

	c, err := NewClient(server.URL, "")
	if err != nil {
		t.Fatalf("NewClient: %v", err)
	}
	_, err = c.JobStatus(context.Background(), "job-1")
	apiErr, ok := AsError(err)
	if !ok {
		t.Fatalf("expected *Error, got %T: %v", err, err)
	}
	if apiErr.Kind != KindNetwork {
		t.Errorf("Kind = %q, want %q", apiErr.Kind, KindNetwork)
	}
	if !apiErr.Retryable() {
		t.Error("network errors must be retryable")
	}
}

func TestClient_ContextCancelled(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		<-r.Context().Done()
	}))
	t.Cleanup(server.Close)

	c, err := NewClient(server.URL, "")
	if err != nil {
		t.Fatalf("NewClient: %v", err)
	}
	ctx, cancel := context.WithTimeout(context.Background(), 20*time.Millisecond)
	defer cancel()
	_, err = c.JobStatus(ctx, "job-1")
	if err == nil {
		t.Fatal("expected error")
	}
	apiErr, ok := AsError(err)
	if !ok {
		t.Fatalf("expected *Error, got %T: %v", err, err)
	}
	if apiErr.Kind != KindTimeout {
		t.Errorf("Kind = %q, want %q", apiErr.Kind, KindTimeout)
	}
}

func TestClient_VerboseLogging(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		_, _ = w.Write([]byte(`{"synced":true,"synced_at":"2026-08-25T10:00:00Z"}`))
	}))
	t.Cleanup(server.Close)

	var buf bytes.Buffer
	c, err := NewClient(server.URL, "", WithVerbose(true, &buf))
	if err != nil {
		t.Fatalf("NewClient: %v", err)
	}
	if _, err := c.Sync(context.Background()); err != nil {
		t.Fatalf("Sync: %v", err)
	}
	if !strings.Contains(buf.String(), "[verbose] backend: POST") {
		t.Fatalf("expected verbose log, got: %q", buf.String())
	}
}

func TestClassify_PassThrough(t *testing.T) {
	orig := &Error{Kind: KindNotFound, StatusCode: 404}
	if got := Classify(orig); got != orig {
		t.Errorf("Classify rewrapped an already classified error")
	}
	if got := Classify(context.DeadlineExceeded); got.Kind != KindTimeout {
		t.Errorf("deadline exceeded classified as %q, want %q", got.Kind, KindTimeout)
	}
	if got := Classify(errors.New("connection refused")); got.Kind != KindNetwork {
		t.Errorf("generic transport error classified as %q, want %q", got.Kind, KindNetwork)
	}
}
