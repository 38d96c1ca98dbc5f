package printer

import (
	"bytes"
	"context"
	"fmt"
	"os/exec"
	"strings"
	"time"
)

// Default CUPS client commands.
const (
	DefaultPrintBinary  = "lpr"
	DefaultStatusBinary = "lpstat"
	DefaultQueueBinary  = "lpq"

	// DefaultTimeout bounds any single spooler command. Submission to
	// the local spooler is fast; a hang means CUPS is wedged.
	DefaultTimeout = 15 * time.Second
)

// CUPS implements Printer by shelling out to the CUPS client tools.
type CUPS struct {
	printBin  string
	statusBin string
	queueBin  string
	timeout   time.Duration
}

// Config configures the CUPS printer.
type Config struct {
	// PrintBinary submits documents. Defaults to DefaultPrintBinary.
	PrintBinary string

	// StatusBinary reports spooler state. Defaults to DefaultStatusBinary.
	StatusBinary string

	// QueueBinary lists the local queue. Defaults to DefaultQueueBinary.
	QueueBinary string

	// Timeout bounds each spooler command. Defaults to DefaultTimeout.
	Timeout time.Duration
}

// NewCUPS creates a CUPS printer.
func NewCUPS(cfg Config) *CUPS {
	if cfg.PrintBinary == "" {
		cfg.PrintBinary = DefaultPrintBinary
	}
	if cfg.StatusBinary == "" {
		cfg.StatusBinary = DefaultStatusBinary
	}
	if cfg.QueueBinary == "" {
		cfg.QueueBinary = DefaultQueueBinary
	}
	if cfg.Timeout <= 0 {
		cfg.Timeout = DefaultTimeout
	}
	return &CUPS{
		printBin:  cfg.PrintBinary,
		statusBin: cfg.StatusBinary,
		queueBin:  cfg.QueueBinary,
		timeout:   cfg.Timeout,
	}
}

// Print submits the document at path via lpr. Exit code and captured
// stderr are the whole contract with the spooler.
func (c *CUPS) Print(ctx context.Context, path string) error {
	ctx, cancel := context.WithTimeout(ctx, c.timeout)
	defer cancel()

	var stderr bytes.Buffer
	// #nosec G204 -- binary is from config, path is a spool-local file
	cmd := exec.CommandContext(ctx, c.printBin, path)
	cmd.Stderr = &stderr

	if err := cmd.Run(); err != nil {
		msg := strings.TrimSpace(stderr.String())
		if msg == "" {
			msg = err.Error()
		}
		return fmt.Errorf("%w: %s", ErrPrint, msg)
	}
	return nil
}

// Status returns `lpstat -p` and `lpq` output joined into one report.
func (c *CUPS) Status(ctx context.Context) (string, error) {
	state, err := c.run(ctx, c.statusBin, "-p")
	if err != nil {
		return "", fmt.Errorf("querying printer state: %w", err)
	}
	queue, err := c.run(ctx, c.queueBin)
	if err != nil {
		return "", fmt.Errorf("querying printer queue: %w", err)
	}
	return "Current state:\n" + state + "\nPrinter queue:\n" + queue, nil
}

// Queue returns the spooler's completed or not-completed job listing.
func (c *CUPS) Queue(ctx context.Context, completed bool) (string, error) {
	which := "not-completed"
	if completed {
		which = "completed"
	}
	out, err := c.run(ctx, c.statusBin, "-W", which)
	if err != nil {
		return "", fmt.Errorf("querying %s spooler jobs: %w", which, err)
	}
	return out, nil
}

func (c *CUPS) run(ctx context.Context, bin string, args ...string) (string, error) {
	ctx, cancel := context.WithTimeout(ctx, c.timeout)
	defer cancel()

	var stdout, stderr bytes.Buffer
	// #nosec G204 -- binaries are from config, controlled by the operator
	cmd := exec.CommandContext(ctx, bin, args...)
	cmd.Stdout = &stdout
	cmd.Stderr = &stderr

	if err := cmd.Run(); err != nil {
		msg := strings.TrimSpace(stderr.String())
		if msg == "" {
			msg = err.Error()
		}
		return "", fmt.Errorf("%s: %s", bin, msg)
	}
	return strings.TrimSpace(stdout.String()), nil
}

// Verify interface compliance.
var _ Printer = (*CUPS)(nil)
