package twenty

import "fmt"

// WriteError is returned when a create or update call gets a non-2xx answer.
type WriteError struct {
	Op         string
	StatusCode int
	Body       string
}

func (e *WriteError) Error() string {
	return fmt.Sprintf("twenty: %s failed: %d %s", e.Op, e.StatusCode, truncate(e.Body, 500))
}

// HTTPStatus returns the response status code.
func (e *WriteError) HTTPStatus() int { return e.StatusCode }

// RequestError is returned for non-2xx answers from read endpoints.
type RequestError struct {
	Op         string
	StatusCode int
	Body       string
}

func (e *RequestError) Error() string {
	return fmt.Sprintf("twenty: %s failed: %d %s", e.Op, e.StatusCode, truncate(e.Body, 500))
}

// HTTPStatus returns the response status code.
func (e *RequestError) HTTPStatus() int { return e.StatusCode }
