// Package agent exposes printerbot operations as MCP tools, so an
// operator's assistant can inspect the printer and manage jobs next to
// the chat interface. The tool surface is read-mostly; cancel_job is
// the only mutation and it bypasses chat ownership on purpose.
package agent

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"

	"github.com/modelcontextprotocol/go-sdk/mcp"

	"github.com/txn2/printerbot/pkg/job"
	"github.com/txn2/printerbot/pkg/printer"
)

// Config configures a Toolkit.
type Config struct {
	// Name and Version identify the MCP server implementation.
	Name    string
	Version string

	Jobs    job.Store
	Printer printer.Printer
}

// Toolkit owns the MCP server and its registered tools.
type Toolkit struct {
	server  *mcp.Server
	jobs    job.Store
	printer printer.Printer
}

// New creates a Toolkit with all tools registered.
func New(cfg Config) *Toolkit {
	t := &Toolkit{
		server: mcp.NewServer(&mcp.Implementation{
			Name:    cfg.Name,
			Version: cfg.Version,
		}, nil),
		jobs:    cfg.Jobs,
		printer: cfg.Printer,
	}
	t.registerTools()
	return t
}

// Server returns the underlying MCP server, mainly for in-memory test
// sessions.
func (t *Toolkit) Server() *mcp.Server {
	return t.server
}

// Handler returns an HTTP handler serving the MCP streamable transport.
func (t *Toolkit) Handler() http.Handler {
	return mcp.NewStreamableHTTPHandler(func(*http.Request) *mcp.Server { return t.server }, nil)
}

// printerStatusInput is empty since this tool has no parameters.
type printerStatusInput struct{}

type listJobsInput struct {
	// State filters the listing; defaults to pending.
	State string `json:"state,omitempty"`
}

type cancelJobInput struct {
	JobID int64 `json:"job_id"`
}

func (t *Toolkit) registerTools() {
	mcp.AddTool(t.server, &mcp.Tool{
		Name: "printer_status",
		Description: "Get the physical printer's current state and queue, " +
			"as reported by the print spooler.",
	}, func(ctx context.Context, _ *mcp.CallToolRequest, _ printerStatusInput) (*mcp.CallToolResult, any, error) {
		return t.handlePrinterStatus(ctx)
	})

	mcp.AddTool(t.server, &mcp.Tool{
		Name: "list_jobs",
		Description: "List print jobs by state. Pending jobs are listed oldest " +
			"first; completed jobs are the 10 most recent.",
	}, func(ctx context.Context, _ *mcp.CallToolRequest, in listJobsInput) (*mcp.CallToolResult, any, error) {
		return t.handleListJobs(ctx, in)
	})

	mcp.AddTool(t.server, &mcp.Tool{
		Name: "cancel_job",
		Description: "Cancel a pending print job by id. Unlike the chat " +
			"command this works on any chat's jobs.",
	}, func(ctx context.Context, _ *mcp.CallToolRequest, in cancelJobInput) (*mcp.CallToolResult, any, error) {
		return t.handleCancelJob(ctx, in)
	})
}

func (t *Toolkit) handlePrinterStatus(ctx context.Context) (*mcp.CallToolResult, any, error) {
	status, err := t.printer.Status(ctx)
	if err != nil {
		return errorResult(fmt.Sprintf("printer status: %v", err)), nil, nil
	}
	return textResult(status), nil, nil
}

func (t *Toolkit) handleListJobs(ctx context.Context, in listJobsInput) (*mcp.CallToolResult, any, error) {
	state := job.State(in.State)
	if in.State == "" {
		state = job.StatePending
	}
	if !state.Valid() {
		return errorResult(fmt.Sprintf("unknown job state %q", in.State)), nil, nil
	}

	jobs, err := t.jobs.List(ctx, state)
	if err != nil {
		return errorResult(fmt.Sprintf("listing jobs: %v", err)), nil, nil
	}

	data, err := json.MarshalIndent(jobs, "", "  ")
	if err != nil {
		return errorResult(fmt.Sprintf("encoding jobs: %v", err)), nil, nil
	}
	return textResult(string(data)), nil, nil
}

func (t *Toolkit) handleCancelJob(ctx context.Context, in cancelJobInput) (*mcp.CallToolResult, any, error) {
	// Resolve the owning chat first; Cancel enforces ownership and the
	// operator surface cancels on the owner's behalf.
	j, err := t.jobs.Get(ctx, in.JobID)
	if err != nil {
		return errorResult(fmt.Sprintf("loading job %d: %v", in.JobID, err)), nil, nil
	}
	if j == nil {
		return errorResult(fmt.Sprintf("job %d not found", in.JobID)), nil, nil
	}

	err = t.jobs.Cancel(ctx, in.JobID, j.ChatID)
	switch {
	case errors.Is(err, job.ErrInvalidState):
		return errorResult(fmt.Sprintf("job %d is %s and cannot be cancelled", in.JobID, j.State)), nil, nil
	case err != nil:
		return errorResult(fmt.Sprintf("cancelling job %d: %v", in.JobID, err)), nil, nil
	}
	return textResult(fmt.Sprintf("job %d cancelled", in.JobID)), nil, nil
}

func textResult(text string) *mcp.CallToolResult {
	return &mcp.CallToolResult{
		Content: []mcp.Content{&mcp.TextContent{Text: text}},
	}
}

func errorResult(text string) *mcp.CallToolResult {
	return &mcp.CallToolResult{
		Content: []mcp.Content{&mcp.TextContent{Text: "Error: " + text}},
		IsError: true,
	}
}
