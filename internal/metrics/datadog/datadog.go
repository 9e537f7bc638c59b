// Package datadog implements a Datadog backend for the internal/metrics package.
//
// A fetch run over several years of monthly files can take hours, so metrics
// are not only submitted at exit. The backend:
//   - buffers observations in memory under a mutex
//   - flushes on a ticker (default once per minute)
//   - flushes one final time on Close
//
// Flush snapshots and resets the buffers under the lock and submits outside
// of it, so download workers are never blocked on the network.
//
// If the process is killed with SIGKILL/OOM, Close won't run and the last
// window is lost.
package datadog

import (
	"context"
	"fmt"
	"net/http"
	"os"
	"sort"
	"strings"
	"sync"
	"time"

	"tlcetl/internal/metrics"

	dd "github.com/DataDog/datadog-api-client-go/v2/api/datadog"
	"github.com/DataDog/datadog-api-client-go/v2/api/datadogV2"
)

// Options controls Datadog backend configuration.
type Options struct {
	// JobName becomes tag "job:<name>" on every metric.
	// If empty, defaults to "tlc-fetch".
	JobName string

	// Tags are extra Datadog tags (e.g. []string{"env:prod", "run:<uuid>"}).
	Tags []string

	// FlushEvery controls how often buffered metrics are submitted.
	// If <= 0, defaults to 60 seconds.
	FlushEvery time.Duration

	// Unexported test seams. Production code never sets them.
	now       func() time.Time
	newTicker func(d time.Duration) *time.Ticker
	submitter metricsSubmitter
}

// metricsSubmitter is the subset of *datadogV2.MetricsApi the backend uses.
// Tests substitute a fake to avoid real HTTP.
type metricsSubmitter interface {
	SubmitMetrics(ctx context.Context, body datadogV2.MetricPayload, params ...datadogV2.SubmitMetricsOptionalParameters) (datadogV2.IntakePayloadAccepted, *http.Response, error)
}

// Backend implements metrics.Backend for Datadog.
type Backend struct {
	api metricsSubmitter
	ctx context.Context

	flushEvery time.Duration
	stopCh     chan struct{}
	doneCh     chan struct{}

	baseTags []string

	now       func() time.Time
	newTicker func(d time.Duration) *time.Ticker

	mu sync.Mutex

	stepCounts    map[string]float64 // step\x00status -> count
	stepDurations map[string][]float64
	rowCounts     map[string]float64 // kind -> rows
	httpReqCounts map[string]float64 // status -> count
	httpErrCounts map[string]float64
	httpReqDur    map[string][]float64
	httpDownloadB map[string][]float64
}

func resolveEnvTag() string {
	if v := strings.TrimSpace(os.Getenv("ENV")); v != "" {
		return "env:" + v
	}
	if v := strings.TrimSpace(os.Getenv("DD_ENV")); v != "" {
		return "env:" + v
	}
	return "env:unknown"
}

func (b *Backend) loop() {
	defer close(b.doneCh)

	t := b.newTicker(b.flushEvery)
	defer t.Stop()

	for {
		select {
		case <-t.C:
			_ = b.Flush()
		case <-b.stopCh:
			return
		}
	}
}

// Close stops the background flush loop and performs one final Flush.
// Close must be called once.
func (b *Backend) Close() error {
	close(b.stopCh)
	<-b.doneCh
	return b.Flush()
}

// NewBackend constructs a Datadog backend using the official client.
//
// The client reads DD_API_KEY / DD_SITE from the environment through
// dd.NewDefaultContext; network errors surface from Flush, not here.
func NewBackend(parent context.Context, opts Options) (*Backend, error) {
	if parent == nil {
		return nil, wrapInitErr(fmt.Errorf("nil context"))
	}

	job := opts.JobName
	if job == "" {
		job = "tlc-fetch"
	}

	flushEvery := opts.FlushEvery
	if flushEvery <= 0 {
		flushEvery = 60 * time.Second
	}

	baseTags := make([]string, 0, 2+len(opts.Tags))
	baseTags = append(baseTags, resolveEnvTag(), "job:"+job)
	baseTags = append(baseTags, opts.Tags...)

	nowFn := opts.now
	if nowFn == nil {
		nowFn = time.Now
	}
	newTicker := opts.newTicker
	if newTicker == nil {
		newTicker = time.NewTicker
	}

	submitter := opts.submitter
	if submitter == nil {
		client := dd.NewAPIClient(dd.NewConfiguration())
		submitter = datadogV2.NewMetricsApi(client)
	}

	b := &Backend{
		api:        submitter,
		ctx:        dd.NewDefaultContext(parent),
		flushEvery: flushEvery,
		stopCh:     make(chan struct{}),
		doneCh:     make(chan struct{}),
		baseTags:   baseTags,
		now:        nowFn,
		newTicker:  newTicker,
	}
	b.resetLocked()

	go b.loop()
	return b, nil
}

func (b *Backend) resetLocked() {
	b.stepCounts = make(map[string]float64)
	b.stepDurations = make(map[string][]float64)
	b.rowCounts = make(map[string]float64)
	b.httpReqCounts = make(map[string]float64)
	b.httpErrCounts = make(map[string]float64)
	b.httpReqDur = make(map[string][]float64)
	b.httpDownloadB = make(map[string][]float64)
}

// IncCounter implements metrics.Backend. Unknown names are ignored.
func (b *Backend) IncCounter(name string, delta float64, labels metrics.Labels) {
	if delta <= 0 {
		return
	}

	b.mu.Lock()
	defer b.mu.Unlock()

	switch name {
	case metrics.StepTotal:
		b.stepCounts[stepStatusKey(labels["step"], labels["status"])] += delta

	case metrics.RowsTotal:
		kind := labels["kind"]
		if kind == "" {
			return
		}
		b.rowCounts[kind] += delta

	case metrics.HTTPRequestsTotal:
		b.httpReqCounts[statusOrUnknown(labels)] += delta

	case metrics.HTTPErrorsTotal:
		b.httpErrCounts[statusOrUnknown(labels)] += delta
	}
}

// ObserveHistogram implements metrics.Backend. Unknown names and negative
// values are ignored.
func (b *Backend) ObserveHistogram(name string, value float64, labels metrics.Labels) {
	if value < 0 {
		return
	}

	b.mu.Lock()
	defer b.mu.Unlock()

	switch name {
	case metrics.StepDuration:
		k := stepStatusKey(labels["step"], labels["status"])
		b.stepDurations[k] = append(b.stepDurations[k], value)

	case metrics.HTTPRequestDuration:
		s := statusOrUnknown(labels)
		b.httpReqDur[s] = append(b.httpReqDur[s], value)

	case metrics.HTTPDownloadBytes:
		s := statusOrUnknown(labels)
		b.httpDownloadB[s] = append(b.httpDownloadB[s], value)
	}
}

func statusOrUnknown(l metrics.Labels) string {
	if s := l["status"]; s != "" {
		return s
	}
	return "unknown"
}

// snapshot is the detached buffer state of one flush window.
type snapshot struct {
	stepCounts    map[string]float64
	stepDurations map[string][]float64
	rowCounts     map[string]float64
	httpReqCounts map[string]float64
	httpErrCounts map[string]float64
	httpReqDur    map[string][]float64
	httpDownloadB map[string][]float64
}

func (b *Backend) snapshotAndReset() snapshot {
	b.mu.Lock()
	defer b.mu.Unlock()

	s := snapshot{
		stepCounts:    b.stepCounts,
		stepDurations: b.stepDurations,
		rowCounts:     b.rowCounts,
		httpReqCounts: b.httpReqCounts,
		httpErrCounts: b.httpErrCounts,
		httpReqDur:    b.httpReqDur,
		httpDownloadB: b.httpDownloadB,
	}
	b.resetLocked()
	return s
}

func (s snapshot) isEmpty() bool {
	return len(s.stepCounts) == 0 &&
		len(s.stepDurations) == 0 &&
		len(s.rowCounts) == 0 &&
		len(s.httpReqCounts) == 0 &&
		len(s.httpErrCounts) == 0 &&
		len(s.httpReqDur) == 0 &&
		len(s.httpDownloadB) == 0
}

// Flush submits buffered metrics and resets local buffers.
//
// Buffers are reset even if submission fails; delivery is best-effort.
// Flush is safe to call concurrently with IncCounter/ObserveHistogram.
func (b *Backend) Flush() error {
	snap := b.snapshotAndReset()
	if snap.isEmpty() {
		return nil
	}

	payload := datadogV2.MetricPayload{Series: b.buildSeries(snap, b.now().Unix())}
	_, _, err := b.api.SubmitMetrics(b.ctx, payload, *datadogV2.NewSubmitMetricsOptionalParameters())
	return err
}

// buildSeries converts a snapshot into Datadog series at a fixed timestamp.
// It is pure, which keeps the naming/tagging contract unit-testable.
func (b *Backend) buildSeries(s snapshot, nowUnix int64) []datadogV2.MetricSeries {
	series := make([]datadogV2.MetricSeries, 0, len(s.stepCounts)+len(s.rowCounts)+32)

	for k, v := range s.stepCounts {
		step, status := splitStepStatusKey(k)
		series = append(series, countSeries("tlc.step.total", v, withTags(b.baseTags, "step:"+step, "status:"+status), nowUnix))
	}
	for k, samples := range s.stepDurations {
		step, status := splitStepStatusKey(k)
		addPercentiles(&series, "tlc.step.duration_seconds", samples, withTags(b.baseTags, "step:"+step, "status:"+status), nowUnix)
	}

	for kind, v := range s.rowCounts {
		series = append(series, countSeries("tlc.rows.total", v, withTags(b.baseTags, "kind:"+kind), nowUnix))
	}

	for status, v := range s.httpReqCounts {
		series = append(series, countSeries("tlc.http.requests.total", v, withTags(b.baseTags, "status:"+status), nowUnix))
	}
	for status, v := range s.httpErrCounts {
		series = append(series, countSeries("tlc.http.errors.total", v, withTags(b.baseTags, "status:"+status), nowUnix))
	}
	for status, samples := range s.httpReqDur {
		addPercentiles(&series, "tlc.http.request_duration_seconds", samples, withTags(b.baseTags, "status:"+status), nowUnix)
	}
	for status, samples := range s.httpDownloadB {
		addPercentiles(&series, "tlc.http.download_bytes", samples, withTags(b.baseTags, "status:"+status), nowUnix)
	}

	return series
}

// addPercentiles appends p50/p90/p95/p99/max/samples gauges for samples.
// It sorts a copy; samples is not modified. Empty samples add nothing.
func addPercentiles(series *[]datadogV2.MetricSeries, metricPrefix string, samples []float64, tags []string, nowUnix int64) {
	if len(samples) == 0 {
		return
	}
	cp := append([]float64(nil), samples...)
	sort.Float64s(cp)

	*series = append(*series,
		gaugeSeries(metricPrefix+".p50", percentileNearestRank(cp, 0.50), tags, nowUnix),
		gaugeSeries(metricPrefix+".p90", percentileNearestRank(cp, 0.90), tags, nowUnix),
		gaugeSeries(metricPrefix+".p95", percentileNearestRank(cp, 0.95), tags, nowUnix),
		gaugeSeries(metricPrefix+".p99", percentileNearestRank(cp, 0.99), tags, nowUnix),
		gaugeSeries(metricPrefix+".max", cp[len(cp)-1], tags, nowUnix),
		gaugeSeries(metricPrefix+".samples", float64(len(cp)), tags, nowUnix),
	)
}

func countSeries(metric string, value float64, tags []string, nowUnix int64) datadogV2.MetricSeries {
	return datadogV2.MetricSeries{
		Metric: metric,
		Type:   datadogV2.METRICINTAKETYPE_COUNT.Ptr(),
		Points: []datadogV2.MetricPoint{
			{Timestamp: dd.PtrInt64(nowUnix), Value: dd.PtrFloat64(value)},
		},
		Tags: tags,
	}
}

func gaugeSeries(metric string, value float64, tags []string, nowUnix int64) datadogV2.MetricSeries {
	return datadogV2.MetricSeries{
		Metric: metric,
		Type:   datadogV2.METRICINTAKETYPE_GAUGE.Ptr(),
		Points: []datadogV2.MetricPoint{
			{Timestamp: dd.PtrInt64(nowUnix), Value: dd.PtrFloat64(value)},
		},
		Tags: tags,
	}
}

func stepStatusKey(step, status string) string {
	return step + "\x00" + status
}

func splitStepStatusKey(k string) (step, status string) {
	parts := strings.SplitN(k, "\x00", 2)
	if len(parts) == 2 {
		return parts[0], parts[1]
	}
	return k, "unknown"
}

func withTags(base []string, extras ...string) []string {
	out := make([]string, 0, len(base)+len(extras))
	out = append(out, base...)
	out = append(out, extras...)
	return out
}

func percentileNearestRank(s []float64, p float64) float64 {
	n := len(s)
	if n == 0 {
		return 0
	}
	if p <= 0 {
		return s[0]
	}
	if p >= 1 {
		return s[n-1]
	}
	idx := int(p*float64(n-1) + 0.5)
	if idx >= n {
		idx = n - 1
	}
	return s[idx]
}

var _ metrics.Backend = (*Backend)(nil)

// ParseTagsCSV parses comma-separated tags like "env:prod,service:tlc".
func ParseTagsCSV(s string) []string {
	if s == "" {
		return nil
	}
	parts := strings.Split(s, ",")
	out := make([]string, 0, len(parts))
	for _, p := range parts {
		p = strings.TrimSpace(p)
		if p != "" {
			out = append(out, p)
		}
	}
	return out
}

func wrapInitErr(err error) error {
	if err == nil {
		return nil
	}
	return fmt.Errorf("datadog metrics init: %w", err)
}
