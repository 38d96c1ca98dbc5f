// Package postgres provides PostgreSQL storage for print jobs.
package postgres

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	sq "github.com/Masterminds/squirrel"

	"github.com/txn2/printerbot/pkg/job"
)

// psq is the PostgreSQL statement builder with dollar placeholders.
var psq = sq.StatementBuilder.PlaceholderFormat(sq.Dollar)

// jobColumns lists columns returned by print job SELECT queries.
var jobColumns = []string{
	"id", "chat_id", "file_name", "state", "pages", "error_message",
	"submitted_at", "completed_at",
}

// Store implements job.Store using PostgreSQL. Job ids come from a
// BIGSERIAL column, so they are unique and strictly increasing even
// across process restarts.
type Store struct {
	db *sql.DB
}

// New creates a new PostgreSQL job store.
func New(db *sql.DB) *Store {
	return &Store{db: db}
}

// Submit creates a job in pending state with a fresh id.
func (s *Store) Submit(ctx context.Context, chatID int64, fileName string) (*job.PrintJob, error) {
	now := time.Now()

	query, args, err := psq.Insert("print_jobs").
		Columns("chat_id", "file_name", "state", "submitted_at").
		Values(chatID, fileName, string(job.StatePending), now).
		Suffix("RETURNING id").
		ToSql()
	if err != nil {
		return nil, fmt.Errorf("building insert: %w", err)
	}

	var id int64
	if err := s.db.QueryRowContext(ctx, query, args...).Scan(&id); err != nil {
		return nil, fmt.Errorf("inserting print job: %w", err)
	}

	return &job.PrintJob{
		ID:          id,
		ChatID:      chatID,
		FileName:    fileName,
		State:       job.StatePending,
		SubmittedAt: now,
	}, nil
}

// Get retrieves a job by id. Returns nil, nil if not found.
func (s *Store) Get(ctx context.Context, id int64) (*job.PrintJob, error) {
	query, args, err := psq.Select(jobColumns...).
		From("print_jobs").
		Where(sq.Eq{"id": id}).
		ToSql()
	if err != nil {
		return nil, fmt.Errorf("building select: %w", err)
	}

	j, err := scanJob(s.db.QueryRowContext(ctx, query, args...))
	if errors.Is(err, sql.ErrNoRows) {
		return nil, nil //nolint:nilnil // Store interface specifies nil,nil for not-found
	}
	return j, err
}

// List returns jobs in the given state. Pending jobs are ordered by
// submission time ascending; terminal states are most-recent first,
// capped at job.CompletedListLimit.
func (s *Store) List(ctx context.Context, state job.State) ([]*job.PrintJob, error) {
	qb := psq.Select(jobColumns...).
		From("print_jobs").
		Where(sq.Eq{"state": string(state)})

	if state == job.StatePending {
		qb = qb.OrderBy("submitted_at ASC", "id ASC")
	} else {
		qb = qb.OrderBy("submitted_at DESC", "id DESC").
			Limit(job.CompletedListLimit)
	}

	query, args, err := qb.ToSql()
	if err != nil {
		return nil, fmt.Errorf("building select: %w", err)
	}

	rows, err := s.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("listing print jobs: %w", err)
	}
	defer func() { _ = rows.Close() }()

	var jobs []*job.PrintJob
	for rows.Next() {
		j, err := scanJob(rows)
		if err != nil {
			return nil, err
		}
		jobs = append(jobs, j)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterating print job rows: %w", err)
	}
	return jobs, nil
}

// Cancel transitions a pending job to cancelled. The row is locked for
// the duration of the transaction so a concurrent dispatcher cannot
// race the ownership and state checks.
func (s *Store) Cancel(ctx context.Context, id, chatID int64) error {
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("beginning cancel transaction: %w", err)
	}
	defer func() { _ = tx.Rollback() }()

	query, args, err := psq.Select("chat_id", "state").
		From("print_jobs").
		Where(sq.Eq{"id": id}).
		Suffix("FOR UPDATE").
		ToSql()
	if err != nil {
		return fmt.Errorf("building select: %w", err)
	}

	var ownerID int64
	var state string
	err = tx.QueryRowContext(ctx, query, args...).Scan(&ownerID, &state)
	if errors.Is(err, sql.ErrNoRows) {
		return job.ErrNotFound
	}
	if err != nil {
		return fmt.Errorf("loading print job: %w", err)
	}
	if ownerID != chatID {
		return job.ErrForbidden
	}
	if job.State(state) != job.StatePending {
		return job.ErrInvalidState
	}

	query, args, err = psq.Update("print_jobs").
		Set("state", string(job.StateCancelled)).
		Set("completed_at", time.Now()).
		Where(sq.Eq{"id": id}).
		ToSql()
	if err != nil {
		return fmt.Errorf("building update: %w", err)
	}
	if _, err := tx.ExecContext(ctx, query, args...); err != nil {
		return fmt.Errorf("cancelling print job: %w", err)
	}

	if err := tx.Commit(); err != nil {
		return fmt.Errorf("committing cancel: %w", err)
	}
	return nil
}

// UpdateState transitions a job, enforcing the lifecycle rules, and
// records the result on terminal transitions.
func (s *Store) UpdateState(ctx context.Context, id int64, state job.State, res *job.Result) error {
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("beginning update transaction: %w", err)
	}
	defer func() { _ = tx.Rollback() }()

	query, args, err := psq.Select("state").
		From("print_jobs").
		Where(sq.Eq{"id": id}).
		Suffix("FOR UPDATE").
		ToSql()
	if err != nil {
		return fmt.Errorf("building select: %w", err)
	}

	var current string
	err = tx.QueryRowContext(ctx, query, args...).Scan(&current)
	if errors.Is(err, sql.ErrNoRows) {
		return job.ErrNotFound
	}
	if err != nil {
		return fmt.Errorf("loading print job: %w", err)
	}
	if !job.State(current).CanTransition(state) {
		return job.ErrInvalidTransition
	}

	qb := psq.Update("print_jobs").
		Set("state", string(state)).
		Where(sq.Eq{"id": id})
	if res != nil {
		if res.Pages > 0 {
			qb = qb.Set("pages", res.Pages)
		}
		qb = qb.Set("error_message", res.Error)
	}
	if state.Terminal() {
		qb = qb.Set("completed_at", time.Now())
	}

	query, args, err = qb.ToSql()
	if err != nil {
		return fmt.Errorf("building update: %w", err)
	}
	if _, err := tx.ExecContext(ctx, query, args...); err != nil {
		return fmt.Errorf("updating print job: %w", err)
	}

	if err := tx.Commit(); err != nil {
		return fmt.Errorf("committing update: %w", err)
	}
	return nil
}

// Close releases resources held by the store. The *sql.DB is owned by
// the caller and is not closed here.
func (s *Store) Close() error {
	return nil
}

// rowScanner abstracts *sql.Row and *sql.Rows for scanning.
type rowScanner interface {
	Scan(dest ...any) error
}

func scanJob(row rowScanner) (*job.PrintJob, error) {
	var j job.PrintJob
	var state string
	var errMsg sql.NullString
	var completedAt sql.NullTime

	err := row.Scan(&j.ID, &j.ChatID, &j.FileName, &state, &j.Pages,
		&errMsg, &j.SubmittedAt, &completedAt)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, err
		}
		return nil, fmt.Errorf("scanning print job: %w", err)
	}

	j.State = job.State(state)
	if errMsg.Valid {
		j.Error = errMsg.String
	}
	if completedAt.Valid {
		t := completedAt.Time
		j.CompletedAt = &t
	}
	return &j, nil
}

// Verify interface compliance.
var _ job.Store = (*Store)(nil)
