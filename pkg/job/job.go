// Package job provides print job tracking for printerbot.
// It defines the Store interface for job persistence and the PrintJob
// type that represents a tracked unit of work from upload to print outcome.
package job

import (
	"context"
	"errors"
	"time"
)

// State is the lifecycle state of a print job.
type State string

// Print job states. Transitions are monotonic: a job never re-enters
// pending after leaving it, and terminal states accept no transition.
const (
	StatePending   State = "pending"
	StatePrinting  State = "printing"
	StateCompleted State = "completed"
	StateFailed    State = "failed"
	StateCancelled State = "cancelled"
)

// Terminal reports whether s accepts no further transitions.
func (s State) Terminal() bool {
	switch s {
	case StateCompleted, StateFailed, StateCancelled:
		return true
	default:
		return false
	}
}

// Valid reports whether s is a known state.
func (s State) Valid() bool {
	switch s {
	case StatePending, StatePrinting, StateCompleted, StateFailed, StateCancelled:
		return true
	default:
		return false
	}
}

// CanTransition reports whether a job in state s may move to next.
// Conversion failures move a job from pending straight to failed, so
// pending admits failed in addition to printing and cancelled.
func (s State) CanTransition(next State) bool {
	switch s {
	case StatePending:
		return next == StatePrinting || next == StateCancelled || next == StateFailed
	case StatePrinting:
		return next == StateCompleted || next == StateFailed
	default:
		return false
	}
}

// PrintJob is a tracked unit of work from upload to print outcome.
type PrintJob struct {
	// ID is unique and strictly increasing across the process lifetime.
	ID int64 `json:"id"`

	// ChatID identifies the owning session.
	ChatID int64 `json:"chat_id"`

	// FileName is the original uploaded file name.
	FileName string `json:"file_name"`

	// State is the current lifecycle state.
	State State `json:"state"`

	// Pages is the page count of the printable artifact, 0 when unknown.
	Pages int `json:"pages,omitempty"`

	// Error holds captured diagnostic output for failed jobs.
	Error string `json:"error,omitempty"`

	// SubmittedAt is when the job was accepted.
	SubmittedAt time.Time `json:"submitted_at"`

	// CompletedAt is set when the job enters a terminal state.
	CompletedAt *time.Time `json:"completed_at,omitempty"`
}

// Result carries the outcome recorded alongside a terminal transition.
type Result struct {
	// Pages is the page count of the printed artifact.
	Pages int

	// Error is the captured failure output, empty on success.
	Error string
}

// Sentinel errors returned by Store implementations.
var (
	// ErrNotFound indicates no job exists with the given id.
	ErrNotFound = errors.New("job not found")

	// ErrForbidden indicates the session does not own the job.
	ErrForbidden = errors.New("job not owned by session")

	// ErrInvalidState indicates the job is not in a state that permits
	// the requested operation (e.g. cancelling a job already printing).
	ErrInvalidState = errors.New("job state does not permit operation")

	// ErrInvalidTransition indicates a state transition that violates
	// the job lifecycle.
	ErrInvalidTransition = errors.New("invalid job state transition")
)

// CompletedListLimit caps the number of jobs returned when listing
// terminal states, most-recent first.
const CompletedListLimit = 10

// Store defines the interface for print job persistence.
// Implementations must serialize access so job ids are never duplicated
// and state transitions are never lost.
type Store interface {
	// Submit creates a job in pending state with a fresh id.
	Submit(ctx context.Context, chatID int64, fileName string) (*PrintJob, error)

	// Get retrieves a job by id. Returns nil, nil if not found.
	Get(ctx context.Context, id int64) (*PrintJob, error)

	// List returns jobs in the given state. Pending jobs are ordered by
	// submission time ascending; terminal states are most-recent first,
	// capped at CompletedListLimit.
	List(ctx context.Context, state State) ([]*PrintJob, error)

	// Cancel transitions a pending job to cancelled. It returns
	// ErrNotFound if no such job exists, ErrForbidden if chatID does not
	// own it, and ErrInvalidState if the job is no longer pending.
	Cancel(ctx context.Context, id, chatID int64) error

	// UpdateState transitions a job, enforcing the lifecycle rules, and
	// records the result on terminal transitions. Called only by the
	// dispatcher.
	UpdateState(ctx context.Context, id int64, state State, res *Result) error

	// Close releases resources held by the store.
	Close() error
}
