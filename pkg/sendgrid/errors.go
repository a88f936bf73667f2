package sendgrid

import (
	"fmt"
	"time"
)

// ExportCreateError is returned when SendGrid rejects an export request or
// answers without a job id.
type ExportCreateError struct {
	StatusCode int
	Body       string
}

func (e *ExportCreateError) Error() string {
	return fmt.Sprintf("sendgrid: export create failed: %d %s", e.StatusCode, e.Body)
}

// HTTPStatus returns the response status code.
func (e *ExportCreateError) HTTPStatus() int { return e.StatusCode }

// ExportFailedError is returned when the export job reaches a failure state.
type ExportFailedError struct {
	JobID string
}

func (e *ExportFailedError) Error() string {
	return fmt.Sprintf("sendgrid: export %s failed", e.JobID)
}

// ExportTimeoutError is returned when the job is still not ready after the
// maximum number of polls.
type ExportTimeoutError struct {
	JobID   string
	Polls   int
	Elapsed time.Duration
}

func (e *ExportTimeoutError) Error() string {
	return fmt.Sprintf("sendgrid: export %s not ready after %d polls (%s)", e.JobID, e.Polls, e.Elapsed.Round(time.Second))
}

// StatusError is returned for unexpected responses from read endpoints.
type StatusError struct {
	Op         string
	StatusCode int
	Body       string
}

func (e *StatusError) Error() string {
	return fmt.Sprintf("sendgrid: %s: unexpected status %d: %s", e.Op, e.StatusCode, e.Body)
}

// HTTPStatus returns the response status code.
func (e *StatusError) HTTPStatus() int { return e.StatusCode }
