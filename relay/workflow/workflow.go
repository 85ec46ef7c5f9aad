// Package workflow defines the boundary to the workflow engine whose
// suspended tasks await statement outcomes.
package workflow

import (
	"context"
	"errors"
)

// ErrTaskAlreadyResolved is returned by Engine implementations when the
// task behind a resume token has already timed out or been completed.
//
// With at-least-once notification delivery a duplicate outcome delivery for
// an already-resolved task is expected; callers treat this error as benign
// and must not re-raise it.
var ErrTaskAlreadyResolved = errors.New("task already timed out or completed")

// Engine delivers statement outcomes to suspended workflow tasks.
//
// A resume token is the opaque handle the engine issued when it suspended
// the task; delivering success or failure through it resumes the workflow.
// Success and failure are distinct operations with distinct payload
// conventions: success carries the full outcome as output, failure carries
// a fixed error code plus the outcome serialized as cause.
type Engine interface {
	// SendTaskSuccess resumes the task with a successful outcome.
	// output must be valid JSON.
	SendTaskSuccess(ctx context.Context, taskToken string, output []byte) error

	// SendTaskFailure resumes the task with a failed outcome.
	SendTaskFailure(ctx context.Context, taskToken string, errorCode string, cause []byte) error
}
