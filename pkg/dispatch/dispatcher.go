// Package dispatch executes accepted print jobs. A bounded worker pool
// takes each pending job through conversion and print submission,
// recording the outcome in the job store. There is no retry: a failed
// job must be resubmitted as a new upload.
package dispatch

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sync"

	"github.com/txn2/printerbot/pkg/convert"
	"github.com/txn2/printerbot/pkg/job"
	"github.com/txn2/printerbot/pkg/printer"
	"github.com/txn2/printerbot/pkg/spool"
)

// ErrQueueFull indicates the dispatch queue is at capacity and the job
// cannot be accepted right now.
var ErrQueueFull = errors.New("dispatch queue full")

// DefaultWorkers is the worker pool size when none is configured.
// Conversion and printing block on subprocesses, so a small pool keeps
// the machine responsive without starving other updates.
const DefaultWorkers = 2

// DefaultQueueSize is the dispatch queue capacity when none is configured.
const DefaultQueueSize = 32

// Work is one accepted job plus the spool path of its uploaded file.
type Work struct {
	JobID int64
	Path  string
}

// PageCounter reads the page count of a printable artifact. Page
// counts are informational; a counting failure never fails the job.
type PageCounter interface {
	PageCount(ctx context.Context, path string) (int, error)
}

// Config configures a Dispatcher.
type Config struct {
	Jobs      job.Store
	Converter convert.Converter
	Printer   printer.Printer
	Spool     *spool.Spool

	// Pages is optional; nil disables page counting.
	Pages PageCounter

	// Workers is the pool size. Defaults to DefaultWorkers.
	Workers int

	// QueueSize is the dispatch queue capacity. Defaults to DefaultQueueSize.
	QueueSize int

	// OnFinished, when set, is called after a job reaches a terminal
	// state, with the job's final record.
	OnFinished func(j *job.PrintJob)

	Logger *slog.Logger
}

// Dispatcher runs the print pipeline for accepted jobs.
type Dispatcher struct {
	jobs       job.Store
	converter  convert.Converter
	printer    printer.Printer
	spool      *spool.Spool
	pages      PageCounter
	onFinished func(j *job.PrintJob)
	log        *slog.Logger

	queue     chan Work
	workers   int
	wg        sync.WaitGroup
	closeOnce sync.Once
}

// New creates a Dispatcher. Call Start to launch the worker pool.
func New(cfg Config) *Dispatcher {
	if cfg.Workers <= 0 {
		cfg.Workers = DefaultWorkers
	}
	if cfg.QueueSize <= 0 {
		cfg.QueueSize = DefaultQueueSize
	}
	if cfg.Logger == nil {
		cfg.Logger = slog.Default()
	}
	return &Dispatcher{
		jobs:       cfg.Jobs,
		converter:  cfg.Converter,
		printer:    cfg.Printer,
		spool:      cfg.Spool,
		pages:      cfg.Pages,
		onFinished: cfg.OnFinished,
		log:        cfg.Logger,
		queue:      make(chan Work, cfg.QueueSize),
		workers:    cfg.Workers,
	}
}

// Start launches the worker pool. Workers run until Close is called and
// the queue drains; ctx cancels subprocesses of in-flight work.
func (d *Dispatcher) Start(ctx context.Context) {
	for i := 0; i < d.workers; i++ {
		d.wg.Add(1)
		go func() {
			defer d.wg.Done()
			for w := range d.queue {
				d.process(ctx, w)
			}
		}()
	}
}

// Enqueue hands an accepted job to the pool. It never blocks; when the
// queue is full ErrQueueFull is returned and the caller fails the job.
func (d *Dispatcher) Enqueue(w Work) error {
	select {
	case d.queue <- w:
		return nil
	default:
		return ErrQueueFull
	}
}

// Recover reconciles persisted jobs after a restart. A job caught in
// printing lost its worker and is failed with a diagnostic. Pending
// jobs whose upload survived in the spool are re-enqueued; the rest
// are failed. Call after Start so requeued work drains.
func (d *Dispatcher) Recover(ctx context.Context) error {
	printing, err := d.jobs.List(ctx, job.StatePrinting)
	if err != nil {
		return fmt.Errorf("listing interrupted jobs: %w", err)
	}
	for _, j := range printing {
		d.log.Warn("failing job interrupted by restart", "job_id", j.ID)
		d.fail(ctx, j.ID, errors.New("interrupted by restart"))
	}

	pending, err := d.jobs.List(ctx, job.StatePending)
	if err != nil {
		return fmt.Errorf("listing pending jobs: %w", err)
	}
	if len(pending) == 0 {
		return nil
	}
	files, err := d.spool.Files()
	if err != nil {
		return err
	}

	// Each spool file serves at most one job, so two pending uploads of
	// the same document keep distinct files.
	claimed := make(map[string]bool)
	for _, j := range pending {
		var path string
		for _, f := range files {
			if !claimed[f] && d.spool.MatchesName(f, j.FileName) {
				path = f
				break
			}
		}
		if path == "" {
			d.log.Warn("pending job upload lost across restart", "job_id", j.ID)
			d.fail(ctx, j.ID, errors.New("upload lost across restart"))
			continue
		}
		claimed[path] = true
		if err := d.Enqueue(Work{JobID: j.ID, Path: path}); err != nil {
			d.fail(ctx, j.ID, err)
			continue
		}
		d.log.Info("requeued pending job after restart", "job_id", j.ID, "path", path)
	}
	return nil
}

// Close stops accepting work and waits for in-flight jobs to finish.
// It is safe to call Close more than once.
func (d *Dispatcher) Close() error {
	d.closeOnce.Do(func() {
		close(d.queue)
		d.wg.Wait()
	})
	return nil
}

// process runs one job through conversion and printing.
func (d *Dispatcher) process(ctx context.Context, w Work) {
	log := d.log.With("job_id", w.JobID)
	defer func() {
		if err := d.spool.Remove(w.Path); err != nil {
			log.Warn("spool cleanup failed", "error", err)
		}
	}()

	// The job may have been cancelled between acceptance and pickup; a
	// cancelled job never reaches the printer.
	if err := d.jobs.UpdateState(ctx, w.JobID, job.StatePrinting, nil); err != nil {
		log.Info("skipping job no longer pending", "error", err)
		return
	}

	pdfPath, err := d.converter.Convert(ctx, w.Path)
	if err != nil {
		log.Warn("conversion failed", "error", err)
		d.fail(ctx, w.JobID, err)
		return
	}
	if pdfPath != w.Path {
		defer func() {
			if err := d.spool.Remove(pdfPath); err != nil {
				log.Warn("spool cleanup failed", "error", err)
			}
		}()
	}

	pages := 0
	if d.pages != nil {
		if n, err := d.pages.PageCount(ctx, pdfPath); err == nil {
			pages = n
		} else {
			log.Debug("page count unavailable", "error", err)
		}
	}

	if err := d.printer.Print(ctx, pdfPath); err != nil {
		log.Warn("print submission failed", "error", err)
		d.fail(ctx, w.JobID, err)
		return
	}

	res := &job.Result{Pages: pages}
	if err := d.jobs.UpdateState(ctx, w.JobID, job.StateCompleted, res); err != nil {
		log.Error("recording completion failed", "error", err)
	}
	log.Info("job printed", "pages", pages)
	d.notify(ctx, w.JobID)
}

// fail records a terminal failure. A job that never started printing
// moves pending straight to failed.
func (d *Dispatcher) fail(ctx context.Context, jobID int64, cause error) {
	res := &job.Result{Error: cause.Error()}
	if err := d.jobs.UpdateState(ctx, jobID, job.StateFailed, res); err != nil {
		d.log.Error("recording failure failed", "job_id", jobID, "error", err)
	}
	d.notify(ctx, jobID)
}

func (d *Dispatcher) notify(ctx context.Context, jobID int64) {
	if d.onFinished == nil {
		return
	}
	j, err := d.jobs.Get(ctx, jobID)
	if err != nil || j == nil {
		d.log.Warn("loading finished job failed", "job_id", jobID, "error", err)
		return
	}
	if !j.State.Terminal() {
		return
	}
	d.onFinished(j)
}
