package api

import "time"

// Wire types for the analysis backend. Field names match the backend's
// JSON contract; nothing here is persisted directly (see internal/scorecard
// for the merged local model).

// JobStatus is the backend's name for a job phase.
type JobStatus string

const (
	StatusStarted      JobStatus = "started"
	StatusScoring      JobStatus = "scoring"
	StatusCategorizing JobStatus = "categorizing"
	StatusEvaluating   JobStatus = "evaluating"
	StatusCalculating  JobStatus = "calculating"
	StatusComplete     JobStatus = "complete"
	StatusFailed       JobStatus = "failed"
)

// Terminal reports whether the status is one the backend never leaves.
func (s JobStatus) Terminal() bool {
	return s == StatusComplete || s == StatusFailed
}

// AnalysisRequest starts an analysis run for one account.
type AnalysisRequest struct {
	Login       string `json:"login"`
	MaxEvaluate int    `json:"max_evaluate,omitempty"`
}

// AnalysisAccepted is the backend's acknowledgement of a new job.
type AnalysisAccepted struct {
	JobID      string `json:"job_id"`
	TotalRepos int    `json:"total_repos"`
	ToEvaluate int    `json:"to_evaluate"`
}

// Progress carries the per-phase counters reported while a job runs.
// Percentage is the backend's own figure; the tracker recomputes and
// clamps its displayed value locally and only uses these counts.
type Progress struct {
	TotalRepos  int     `json:"total_repos"`
	Scored      int     `json:"scored"`
	Categorized int     `json:"categorized"`
	Evaluated   int     `json:"evaluated"`
	ToEvaluate  int     `json:"to_evaluate"`
	Percentage  float64 `json:"percentage"`
}

// StatusResponse is one poll of GET /analysis/{id}/status.
type StatusResponse struct {
	Status   JobStatus `json:"status"`
	Progress Progress  `json:"progress"`
	Message  string    `json:"message,omitempty"`
	Error    string    `json:"error,omitempty"`
}

// RepoScore is one repository in a results payload. Languages maps
// language name to bytes of code, as reported by GitHub.
type RepoScore struct {
	Name        string         `json:"name"`
	FullName    string         `json:"full_name"`
	Description string         `json:"description,omitempty"`
	Language    string         `json:"language,omitempty"`
	Languages   map[string]int `json:"languages,omitempty"`
	Stars       int            `json:"stars"`
	Forks       int            `json:"forks"`
	Category    string         `json:"category,omitempty"`
	Score       float64        `json:"score"`
	HTMLURL     string         `json:"html_url,omitempty"`
	PushedAt    time.Time      `json:"pushed_at,omitempty"`
}

// ResultsResponse is the full payload of GET /analysis/{id}/results.
// For partially failed jobs the backend serves whatever it finished.
type ResultsResponse struct {
	JobID       string      `json:"job_id"`
	Login       string      `json:"login"`
	Score       float64     `json:"score"`
	Repos       []RepoScore `json:"repos"`
	GeneratedAt time.Time   `json:"generated_at"`
}

// SyncResponse acknowledges a POST /sync push.
type SyncResponse struct {
	Synced   bool      `json:"synced"`
	SyncedAt time.Time `json:"synced_at"`
}

// errorBody is the backend's error envelope on non-2xx responses.
type errorBody struct {
	Error   string `json:"error"`
	Message string `json:"message"`
}

func (b errorBody) text() string {
	if b.Message != "" {
		return b.Message
	}
	return b.Error
}
