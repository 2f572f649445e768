// Package ocr isolates the text-extraction collaborator behind a single
// interface so the verification scoring logic can be tested against synthetic
// text fixtures.
package ocr

import (
	"context"
	"fmt"
)

type TextExtractor interface {
	ExtractText(ctx context.Context, imageRef string) (string, error)
}

// ExtractionError is the typed failure surface of the extraction collaborator.
// Timeout distinguishes deadline expiry from upstream rejections.
type ExtractionError struct {
	ImageRef string
	Timeout  bool
	Cause    error
}

func (e *ExtractionError) Error() string {
	if e.Timeout {
		return fmt.Sprintf("text extraction timed out for %s", e.ImageRef)
	}
	return fmt.Sprintf("text extraction failed for %s: %v", e.ImageRef, e.Cause)
}

func (e *ExtractionError) Unwrap() error { return e.Cause }

// NoOpExtractor returns empty text; used when no extraction engine is wired.
type NoOpExtractor struct{}

func (NoOpExtractor) ExtractText(ctx context.Context, imageRef string) (string, error) {
	return "", &ExtractionError{ImageRef: imageRef, Cause: ErrNotConfigured}
}
