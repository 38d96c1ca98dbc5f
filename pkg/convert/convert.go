// Package convert turns uploaded documents into printable PDFs by
// wrapping an external office suite. The Converter interface exists so
// the dispatcher can be tested against a fake instead of the real tool.
package convert

import (
	"context"
	"errors"
)

// Sentinel errors surfaced to the command router.
var (
	// ErrUnsupportedFormat indicates the input format is not one the
	// conversion tool recognizes.
	ErrUnsupportedFormat = errors.New("unsupported document format")

	// ErrConversion indicates the conversion tool exited non-zero.
	ErrConversion = errors.New("document conversion failed")

	// ErrTimeout indicates conversion exceeded the bounded wait.
	ErrTimeout = errors.New("document conversion timed out")
)

// Converter produces a printable PDF from an uploaded file.
type Converter interface {
	// Convert returns the path of a printable PDF for inputPath. Inputs
	// that are already PDFs are returned unchanged. On failure the
	// returned error wraps one of the package sentinels, and any
	// partial output is cleaned up.
	Convert(ctx context.Context, inputPath string) (string, error)
}
