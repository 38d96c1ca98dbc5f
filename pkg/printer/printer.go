// Package printer wraps the OS print spooler. The Printer interface
// exists so the dispatcher and router can be tested against a fake
// instead of a live CUPS installation.
package printer

import (
	"context"
	"errors"
)

// ErrPrint indicates the print command exited non-zero. The wrapped
// message carries the captured stderr for diagnostic listing.
var ErrPrint = errors.New("print submission failed")

// Printer submits documents to the system print spooler and reports on
// its state.
type Printer interface {
	// Print submits the document at path for printing.
	Print(ctx context.Context, path string) error

	// Status returns a human-readable description of the printer state
	// and its current queue.
	Status(ctx context.Context) (string, error)

	// Queue returns the spooler's view of completed or not-completed
	// jobs as human-readable text.
	Queue(ctx context.Context, completed bool) (string, error)
}
