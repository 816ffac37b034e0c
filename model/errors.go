package model

import (
	"errors"
	"fmt"
)

// ErrUnauthorized is returned for HTTP 401, meaning the auth token expired.
var ErrUnauthorized = errors.New("unauthorized")

// FetchError is a non-200, non-401 response from a catalog endpoint.
type FetchError struct {
	Op         string
	StatusCode int
	Body       string
}

func (e *FetchError) Error() string {
	if e.Body == "" {
		return fmt.Sprintf("%s: unexpected status %d", e.Op, e.StatusCode)
	}
	return fmt.Sprintf("%s: unexpected status %d: %s", e.Op, e.StatusCode, e.Body)
}

// SetupError is fatal: the run cannot start.
type SetupError struct {
	Op  string
	Err error
}

func (e *SetupError) Error() string {
	return fmt.Sprintf("%s: %v", e.Op, e.Err)
}

func (e *SetupError) Unwrap() error {
	return e.Err
}
