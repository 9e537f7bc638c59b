// Package metrics is the backend-agnostic metrics facade used by the pipeline.
//
// Pipeline code calls the package-level helpers (RecordHTTP, RecordStep,
// RecordRows). They forward to the process-wide Backend, which is a no-op
// until a command installs a real one with SetBackend.
package metrics

import (
	"strconv"
	"sync"
	"time"
)

// Labels are metric dimensions, e.g. {"step": "load", "status": "ok"}.
type Labels map[string]string

// Backend receives metric observations.
//
// Implementations must be safe for concurrent use: per-bucket download
// workers record HTTP metrics in parallel.
type Backend interface {
	IncCounter(name string, delta float64, labels Labels)
	ObserveHistogram(name string, value float64, labels Labels)
	Flush() error
}

// Metric names understood by backends.
const (
	StepTotal           = "tlc_step_total"
	StepDuration        = "tlc_step_duration_seconds"
	RowsTotal           = "tlc_rows_total"
	HTTPRequestsTotal   = "tlc_http_requests_total"
	HTTPErrorsTotal     = "tlc_http_errors_total"
	HTTPRequestDuration = "tlc_http_request_duration_seconds"
	HTTPDownloadBytes   = "tlc_http_download_bytes"
)

type nopBackend struct{}

func (nopBackend) IncCounter(string, float64, Labels)       {}
func (nopBackend) ObserveHistogram(string, float64, Labels) {}
func (nopBackend) Flush() error                             { return nil }

var (
	mu      sync.RWMutex
	backend Backend = nopBackend{}
)

// SetBackend installs b as the process-wide backend. A nil b restores the no-op backend.
func SetBackend(b Backend) {
	mu.Lock()
	defer mu.Unlock()
	if b == nil {
		b = nopBackend{}
	}
	backend = b
}

func current() Backend {
	mu.RLock()
	defer mu.RUnlock()
	return backend
}

// Flush flushes the installed backend.
func Flush() error { return current().Flush() }

// RecordStep records one completed pipeline stage and its duration.
func RecordStep(step string, err error, d time.Duration) {
	status := "ok"
	if err != nil {
		status = "error"
	}
	l := Labels{"step": step, "status": status}
	b := current()
	b.IncCounter(StepTotal, 1, l)
	b.ObserveHistogram(StepDuration, d.Seconds(), l)
}

// RecordRows counts rows of a given kind ("loaded", "written", "stored").
func RecordRows(kind string, n int) {
	if n <= 0 {
		return
	}
	current().IncCounter(RowsTotal, float64(n), Labels{"kind": kind})
}

// RecordHTTP records one HTTP attempt. status is 0 when no response arrived.
func RecordHTTP(status int, err error, d time.Duration, bytes int64) {
	l := Labels{"status": statusLabel(status)}
	b := current()
	b.IncCounter(HTTPRequestsTotal, 1, l)
	if err != nil || status < 200 || status >= 300 {
		b.IncCounter(HTTPErrorsTotal, 1, l)
	}
	b.ObserveHistogram(HTTPRequestDuration, d.Seconds(), l)
	if bytes > 0 {
		b.ObserveHistogram(HTTPDownloadBytes, float64(bytes), l)
	}
}

func statusLabel(status int) string {
	if status <= 0 {
		return "none"
	}
	return strconv.Itoa(status)
}
