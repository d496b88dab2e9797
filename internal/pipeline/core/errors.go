package core

import (
	"errors"
	"fmt"

	"github.com/aura-studio/aura/internal/models"
)

// ErrPipelineAlreadyRunning is returned when a job's pipeline is already
// executing.
var ErrPipelineAlreadyRunning = errors.New("pipeline already running for this job")

// StageError wraps a stage failure with the stage identity.
type StageError struct {
	Stage models.Stage
	Name  string
	Err   error
}

// Error implements the error interface.
func (e *StageError) Error() string {
	return fmt.Sprintf("stage %s (%s): %v", e.Stage, e.Name, e.Err)
}

// Unwrap returns the underlying error.
func (e *StageError) Unwrap() error { return e.Err }

// NewStageError wraps err with stage identity.
func NewStageError(stage models.Stage, name string, err error) *StageError {
	return &StageError{Stage: stage, Name: name, Err: err}
}

// StageOf returns the failing stage from an error chain, if present.
func StageOf(err error) (models.Stage, bool) {
	var serr *StageError
	if errors.As(err, &serr) {
		return serr.Stage, true
	}
	return "", false
}
