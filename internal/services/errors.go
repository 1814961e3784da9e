package services

import (
	"errors"
	"fmt"
)

var (
	ErrNoVideoID       = errors.New("no video id could be extracted from the link")
	ErrSessionFinished = errors.New("cooking session is already finished")
	ErrNoSession       = errors.New("no cooking session has been started")
	ErrNoResult        = errors.New("no completed analysis result")
)

type ValidationError struct {
	Fields map[string]string
}

func (e *ValidationError) Error() string { return "Validation error" }

type ConflictError struct{ Message string }

func (e *ConflictError) Error() string { return e.Message }

type NotFoundError struct{ Message string }

func (e *NotFoundError) Error() string { return e.Message }

// UnauthorizedError asks the user to log in. ReturnTo, when set, is where
// the login page should send them back to.
type UnauthorizedError struct {
	Message  string
	ReturnTo string
}

func (e *UnauthorizedError) Error() string { return e.Message }

// UpstreamError is a non-2xx answer from the backend API.
type UpstreamError struct {
	Op     string
	Status int
	Body   string
}

func (e *UpstreamError) Error() string {
	if e.Body == "" {
		return fmt.Sprintf("%s: backend returned status %d", e.Op, e.Status)
	}
	return fmt.Sprintf("%s: backend returned status %d: %s", e.Op, e.Status, e.Body)
}
