package health

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"sync"
	"testing"

	"github.com/txn2/printerbot/pkg/job"
)

const (
	stateNameStarting = "starting"
	stateNameReady    = "ready"
	stateNameDraining = "draining"
	goroutineCount    = 100
)

// fakePrinter answers status queries with canned text.
type fakePrinter struct {
	err error
}

func (f *fakePrinter) Print(context.Context, string) error { return nil }

func (f *fakePrinter) Status(context.Context) (string, error) {
	return "printer is idle", f.err
}

func (f *fakePrinter) Queue(context.Context, bool) (string, error) { return "", nil }

func TestNewChecker_StartsInStartingState(t *testing.T) {
	hc := NewChecker(nil, nil)
	if hc.State() != stateNameStarting {
		t.Errorf("State() = %q, want %q", hc.State(), stateNameStarting)
	}
	if hc.IsReady() {
		t.Error("IsReady() = true, want false in starting state")
	}
}

func TestSetReady(t *testing.T) {
	hc := NewChecker(nil, nil)
	hc.SetReady()
	if hc.State() != stateNameReady {
		t.Errorf("State() = %q, want %q", hc.State(), stateNameReady)
	}
	if !hc.IsReady() {
		t.Error("IsReady() = false, want true after SetReady()")
	}
}

func TestSetDraining(t *testing.T) {
	hc := NewChecker(nil, nil)
	hc.SetReady()
	hc.SetDraining()
	if hc.State() != stateNameDraining {
		t.Errorf("State() = %q, want %q", hc.State(), stateNameDraining)
	}
	if hc.IsReady() {
		t.Error("IsReady() = true, want false in draining state")
	}
}

func TestLivenessHandler_AlwaysReturns200(t *testing.T) {
	hc := NewChecker(nil, nil)

	tests := []struct {
		name  string
		setup func()
	}{
		{stateNameStarting, func() {}},
		{stateNameReady, func() { hc.SetReady() }},
		{stateNameDraining, func() { hc.SetDraining() }},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			// Reset to starting for each test
			hc.state.Store(stateStarting)
			tt.setup()

			w := httptest.NewRecorder()
			req := httptest.NewRequest(http.MethodGet, "/healthz", http.NoBody)
			hc.LivenessHandler().ServeHTTP(w, req)

			if w.Code != http.StatusOK {
				t.Errorf("status = %d, want %d", w.Code, http.StatusOK)
			}

			var resp healthResponse
			if err := json.NewDecoder(w.Body).Decode(&resp); err != nil {
				t.Fatalf("decode response: %v", err)
			}
			if resp.Status != "ok" {
				t.Errorf("status = %q, want %q", resp.Status, "ok")
			}

			if ct := w.Header().Get("Content-Type"); ct != "application/json" {
				t.Errorf("Content-Type = %q, want application/json", ct)
			}
		})
	}
}

func TestReadinessHandler_StatusCodes(t *testing.T) {
	hc := NewChecker(nil, nil)

	tests := []struct {
		name       string
		setup      func()
		wantCode   int
		wantStatus string
	}{
		{stateNameStarting, func() { hc.state.Store(stateStarting) }, http.StatusServiceUnavailable, stateNameStarting},
		{stateNameReady, func() { hc.SetReady() }, http.StatusOK, stateNameReady},
		{stateNameDraining, func() { hc.SetDraining() }, http.StatusServiceUnavailable, stateNameDraining},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			tt.setup()

			w := httptest.NewRecorder()
			req := httptest.NewRequest(http.MethodGet, "/readyz", http.NoBody)
			hc.ReadinessHandler().ServeHTTP(w, req)

			if w.Code != tt.wantCode {
				t.Errorf("status = %d, want %d", w.Code, tt.wantCode)
			}

			var resp healthResponse
			if err := json.NewDecoder(w.Body).Decode(&resp); err != nil {
				t.Fatalf("decode response: %v", err)
			}
			if resp.Status != tt.wantStatus {
				t.Errorf("body status = %q, want %q", resp.Status, tt.wantStatus)
			}
		})
	}
}

func TestStatusHandler_ReportsPipeline(t *testing.T) {
	jobs := job.NewMemoryStore()
	if _, err := jobs.Submit(context.Background(), 1, "a.pdf"); err != nil {
		t.Fatalf("submit: %v", err)
	}
	if _, err := jobs.Submit(context.Background(), 1, "b.pdf"); err != nil {
		t.Fatalf("submit: %v", err)
	}

	hc := NewChecker(jobs, &fakePrinter{})
	hc.SetReady()

	w := httptest.NewRecorder()
	req := httptest.NewRequest(http.MethodGet, "/statusz", http.NoBody)
	hc.StatusHandler().ServeHTTP(w, req)

	if w.Code != http.StatusOK {
		t.Fatalf("status = %d, want %d", w.Code, http.StatusOK)
	}

	var resp statusResponse
	if err := json.NewDecoder(w.Body).Decode(&resp); err != nil {
		t.Fatalf("decode response: %v", err)
	}
	if resp.Status != stateNameReady {
		t.Errorf("status = %q, want %q", resp.Status, stateNameReady)
	}
	if resp.PendingJobs != 2 {
		t.Errorf("pending_jobs = %d, want 2", resp.PendingJobs)
	}
	if resp.Printer != "available" {
		t.Errorf("printer = %q, want available", resp.Printer)
	}
}

func TestStatusHandler_PrinterUnavailable(t *testing.T) {
	hc := NewChecker(job.NewMemoryStore(), &fakePrinter{err: errors.New("lpstat: not found")})

	w := httptest.NewRecorder()
	req := httptest.NewRequest(http.MethodGet, "/statusz", http.NoBody)
	hc.StatusHandler().ServeHTTP(w, req)

	var resp statusResponse
	if err := json.NewDecoder(w.Body).Decode(&resp); err != nil {
		t.Fatalf("decode response: %v", err)
	}
	if resp.Printer != "unavailable" {
		t.Errorf("printer = %q, want unavailable", resp.Printer)
	}
}

func TestConcurrentAccess(t *testing.T) {
	hc := NewChecker(nil, nil)

	var wg sync.WaitGroup
	wg.Add(goroutineCount * 3)

	for range goroutineCount {
		go func() {
			defer wg.Done()
			hc.SetReady()
		}()
		go func() {
			defer wg.Done()
			hc.SetDraining()
		}()
		go func() {
			defer wg.Done()
			_ = hc.IsReady()
			_ = hc.State()
		}()
	}

	wg.Wait()

	// Final state should be one of the valid states
	s := hc.State()
	if s != stateNameStarting && s != stateNameReady && s != stateNameDraining {
		t.Errorf("State() = %q, not a valid state", s)
	}
}
