package tile

import (
	"errors"
	"fmt"
)

// Sentinel errors shared by the planner, capturer and stitcher.
var (
	// ErrInvalidDimensions is returned for zero, negative or non-finite sizes.
	ErrInvalidDimensions = errors.New("invalid dimensions")

	// ErrCaptureFailed is returned when a tile could not be rasterized.
	ErrCaptureFailed = errors.New("capture failed")

	// ErrEmptyInput is returned when there is nothing to stitch.
	ErrEmptyInput = errors.New("empty input")

	// ErrCaptureInProgress is returned when the viewport is already being captured.
	ErrCaptureInProgress = errors.New("capture in progress")

	// ErrTileMismatch is returned when captured tiles do not cover the content exactly.
	ErrTileMismatch = errors.New("tiles do not cover content")
)

// CaptureError reports the tile that could not be captured.
type CaptureError struct {
	Row      int
	Col      int
	Attempts int
	Err      error
}

func (e *CaptureError) Error() string {
	if e.Err == nil {
		return fmt.Sprintf("capture failed at tile (%d,%d) after %d attempt(s)", e.Row, e.Col, e.Attempts)
	}
	return fmt.Sprintf("capture failed at tile (%d,%d) after %d attempt(s): %v", e.Row, e.Col, e.Attempts, e.Err)
}

// Unwrap returns the underlying cause.
func (e *CaptureError) Unwrap() error {
	return e.Err
}

// Is makes every CaptureError match ErrCaptureFailed.
func (e *CaptureError) Is(target error) bool {
	return target == ErrCaptureFailed
}
