package output

import (
	"fmt"

	"github.com/raseen2305/broskies-1-sub002/internal/api"
	"github.com/raseen2305/broskies-1-sub002/internal/scorecard"
)

// Event is a lifecycle record for an analysis run.
//
// In NDJSON mode, sinks emit Events (one JSON object per line), including:
// - run.started
// - job.progress
// - job.completed
// - job.failed
// - sync.result
//
// JSON mode remains an aggregate of the final scorecard.
type Event struct {
	Type       string        `json:"type"`
	Login      string        `json:"login,omitempty"`
	JobID      string        `json:"job_id,omitempty"`
	Phase      string        `json:"phase,omitempty"`
	Percentage float64       `json:"percentage,omitempty"`
	Progress   *api.Progress `json:"progress,omitempty"`
	Message    string        `json:"message,omitempty"`
	Partial    bool          `json:"partial,omitempty"`
	Missing    int           `json:"missing,omitempty"`
	Score      float64       `json:"score,omitempty"`

	Card *scorecard.Scorecard `json:"card,omitempty"`
}

func eventFromCard(c *scorecard.Scorecard) Event {
	e := Event{Type: "scorecard.updated", Card: c}
	if c != nil {
		e.Login = c.Login
		e.JobID = c.JobID
		e.Score = c.Score
	}
	return e
}

// progressDetail phrases the counts behind a progress event for humans.
func progressDetail(phase string, p *api.Progress) string {
	if p == nil {
		return ""
	}
	switch phase {
	case "started":
		if p.TotalRepos > 0 {
			return fmt.Sprintf("%d repositories discovered", p.TotalRepos)
		}
		return ""
	case "scoring":
		return fmt.Sprintf("%d/%d repositories scored", p.Scored, p.TotalRepos)
	case "categorizing":
		return fmt.Sprintf("%d/%d repositories categorized", p.Categorized, p.TotalRepos)
	case "evaluating":
		return fmt.Sprintf("%d/%d repositories evaluated", p.Evaluated, p.ToEvaluate)
	case "calculating":
		return "computing final score"
	default:
		return ""
	}
}
