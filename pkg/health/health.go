// Package health provides readiness state tracking and HTTP health
// check handlers for the bot process.
package health

import (
	"encoding/json"
	"net/http"
	"sync/atomic"

	"github.com/txn2/printerbot/pkg/job"
	"github.com/txn2/printerbot/pkg/printer"
)

// State constants for the readiness state machine.
const (
	stateStarting int32 = iota
	stateReady
	stateDraining
)

// Checker tracks readiness and reports on the print pipeline.
// It is safe for concurrent use.
type Checker struct {
	state   atomic.Int32
	jobs    job.Store
	printer printer.Printer
}

// NewChecker creates a Checker in the Starting state. jobs and prn are
// optional; when set they feed the status endpoint.
func NewChecker(jobs job.Store, prn printer.Printer) *Checker {
	return &Checker{jobs: jobs, printer: prn}
}

// SetReady transitions to the Ready state.
func (c *Checker) SetReady() {
	c.state.Store(stateReady)
}

// SetDraining transitions to the Draining state.
func (c *Checker) SetDraining() {
	c.state.Store(stateDraining)
}

// IsReady returns true when the state is Ready.
func (c *Checker) IsReady() bool {
	return c.state.Load() == stateReady
}

// State returns the current state as a human-readable string.
func (c *Checker) State() string {
	switch c.state.Load() {
	case stateReady:
		return "ready"
	case stateDraining:
		return "draining"
	default:
		return "starting"
	}
}

// healthResponse is the JSON body returned by liveness and readiness
// endpoints.
type healthResponse struct {
	Status string `json:"status"`
}

// statusResponse is the JSON body returned by the status endpoint.
type statusResponse struct {
	Status      string `json:"status"`
	PendingJobs int    `json:"pending_jobs"`
	Printer     string `json:"printer"`
}

// LivenessHandler returns an http.HandlerFunc that always responds 200 OK.
// Use this for K8s livenessProbe (/healthz).
func (*Checker) LivenessHandler() http.HandlerFunc {
	return func(w http.ResponseWriter, _ *http.Request) {
		writeJSON(w, http.StatusOK, healthResponse{Status: "ok"})
	}
}

// ReadinessHandler returns an http.HandlerFunc that responds 200 when ready
// and 503 when starting or draining.
// Use this for K8s readinessProbe (/readyz).
func (c *Checker) ReadinessHandler() http.HandlerFunc {
	return func(w http.ResponseWriter, _ *http.Request) {
		if c.IsReady() {
			writeJSON(w, http.StatusOK, healthResponse{Status: c.State()})
			return
		}
		writeJSON(w, http.StatusServiceUnavailable, healthResponse{Status: c.State()})
	}
}

// StatusHandler returns an http.HandlerFunc reporting pipeline state:
// the pending queue depth and whether the print spooler answers.
func (c *Checker) StatusHandler() http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		resp := statusResponse{Status: c.State(), Printer: "unknown"}

		if c.jobs != nil {
			if pending, err := c.jobs.List(r.Context(), job.StatePending); err == nil {
				resp.PendingJobs = len(pending)
			}
		}
		if c.printer != nil {
			if _, err := c.printer.Status(r.Context()); err == nil {
				resp.Printer = "available"
			} else {
				resp.Printer = "unavailable"
			}
		}

		w.Header().Set("Content-Type", "application/json")
		w.WriteHeader(http.StatusOK)
		_ = json.NewEncoder(w).Encode(resp)
	}
}

func writeJSON(w http.ResponseWriter, code int, v healthResponse) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(code)
	_ = json.NewEncoder(w).Encode(v)
}
