package domain

import (
	"errors"
	"fmt"
)

var (
	ErrNotFound     = errors.New("not found")
	ErrInvalidInput = errors.New("invalid input")
	ErrTooLarge     = errors.New("payload too large")
)

// ErrorKind classifies failures for the request boundary.
type ErrorKind string

const (
	KindInput        ErrorKind = "input"
	KindNotFound     ErrorKind = "not_found"
	KindCollaborator ErrorKind = "collaborator"
	KindCompiler     ErrorKind = "compiler"
	KindInternal     ErrorKind = "internal"
)

// StageError tags a failure with the pipeline stage it happened in.
type StageError struct {
	Stage Stage
	Kind  ErrorKind
	Err   error
}

func (e *StageError) Error() string {
	if e.Err == nil {
		return string(e.Stage)
	}
	if e.Stage == "" {
		return e.Err.Error()
	}
	return fmt.Sprintf("%s: %v", e.Stage, e.Err)
}

func (e *StageError) Unwrap() error {
	return e.Err
}

// NewStageError wraps err unless it is already a StageError.
func NewStageError(stage Stage, kind ErrorKind, err error) error {
	var se *StageError
	if errors.As(err, &se) {
		return err
	}
	return &StageError{Stage: stage, Kind: kind, Err: err}
}

// KindOf extracts the error kind, defaulting to internal.
func KindOf(err error) ErrorKind {
	var se *StageError
	if errors.As(err, &se) {
		return se.Kind
	}
	switch {
	case errors.Is(err, ErrNotFound):
		return KindNotFound
	case errors.Is(err, ErrInvalidInput), errors.Is(err, ErrTooLarge):
		return KindInput
	}
	return KindInternal
}

// StageOf returns the stage label carried by err, if any.
func StageOf(err error) Stage {
	var se *StageError
	if errors.As(err, &se) {
		return se.Stage
	}
	return ""
}
