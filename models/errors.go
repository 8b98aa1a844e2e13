package models

import (
	"errors"
	"fmt"
)

// ErrorKindOf returns the ingestion failure kind recorded for err, or empty.
func ErrorKindOf(err error) string {
	var pe *PipelineError
	if errors.As(err, &pe) {
		return pe.Kind
	}
	return ""
}

// PipelineError is an ingestion sub-failure (fetch, parse or provider) tied
// to the document that triggered it.
type PipelineError struct {
	Kind       string // ErrorKindFetch | ErrorKindParse | ErrorKindProvider
	DocumentID string
	Err        error
}

func (e *PipelineError) Error() string {
	return fmt.Sprintf("%s failure for document %s: %v", e.Kind, e.DocumentID, e.Err)
}

func (e *PipelineError) Unwrap() error { return e.Err }

// ValidationError reports missing or malformed caller input.
type ValidationError struct {
	Message string
}

func (e *ValidationError) Error() string { return e.Message }

// NotFoundError reports an unknown document or session.
type NotFoundError struct {
	Resource string
	ID       string
}

func (e *NotFoundError) Error() string {
	return fmt.Sprintf("%s %s not found", e.Resource, e.ID)
}

// ConflictError reports an operation that lost to a concurrent holder: a
// second ingestion run for a document already in progress, or a second
// in-flight answer for a session.
type ConflictError struct {
	Message string
}

func (e *ConflictError) Error() string { return e.Message }

// StreamError is a mid-generation upstream failure, surfaced in-band after
// any partial content already streamed.
type StreamError struct {
	Err error
}

func (e *StreamError) Error() string { return fmt.Sprintf("generation stream failed: %v", e.Err) }

func (e *StreamError) Unwrap() error { return e.Err }

// Convenience constructors keep call sites short.

func NewValidationError(format string, args ...any) *ValidationError {
	return &ValidationError{Message: fmt.Sprintf(format, args...)}
}

func NewConflictError(format string, args ...any) *ConflictError {
	return &ConflictError{Message: fmt.Sprintf(format, args...)}
}

func IsValidation(err error) bool {
	var ve *ValidationError
	return errors.As(err, &ve)
}

func IsNotFound(err error) bool {
	var nf *NotFoundError
	return errors.As(err, &nf)
}

func IsConflict(err error) bool {
	var ce *ConflictError
	return errors.As(err, &ce)
}
