package tracker

import (
	"errors"
	"fmt"

	"github.com/raseen2305/broskies-1-sub002/internal/api"
)

// ErrStalled marks a polling-level failure: the job itself may still be
// running, but consecutive status fetches kept failing past the ceiling.
var ErrStalled = errors.New("status polling stalled")

// JobError is a job-level terminal failure reported by the backend. It is
// not a transport error: the status endpoint answered, and said the job
// died. Progress holds the last observed counts so callers can show how
// far the job got.
type JobError struct {
	JobID    string
	Message  string
	Detail   string
	Progress api.Progress
}

func (e *JobError) Error() string {
	msg := e.Message
	if msg == "" {
		msg = "analysis job failed"
	}
	if e.Detail != "" && e.Detail != msg {
		msg = fmt.Sprintf("%s: %s", msg, e.Detail)
	}
	return fmt.Sprintf("job %s: %s", e.JobID, msg)
}

// AsJobError extracts a job-level failure from err's chain.
func AsJobError(err error) (*JobError, bool) {
	var e *JobError
	if errors.As(err, &e) {
		return e, true
	}
	return nil, false
}
