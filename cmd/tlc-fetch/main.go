// Command tlc-fetch downloads the TLC trip-record files of one category and
// time window, normalizes them and writes one output file per month and
// format.
//
// Usage:
//
//	tlc-fetch -category yellow_green -start 1609459200 -end 1612051200 -output-dir out -formats parquet,csv
//	tlc-fetch -config request.yaml -verbose
//
// Flags override values loaded from -config.
package main

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"io"
	"os"
	"os/signal"
	"strings"
	"time"

	"tlcetl/internal/config"
	"tlcetl/internal/loader"
	"tlcetl/internal/metrics"
	"tlcetl/internal/metrics/datadog"
	"tlcetl/internal/pipeline"
	"tlcetl/internal/tlc"

	// register every storage backend; the request picks one by kind.
	_ "tlcetl/internal/storage/all"

	"github.com/fatih/color"
	"github.com/google/uuid"
)

// backendCloser is a metrics backend the command must close on exit.
type backendCloser interface {
	metrics.Backend
	Close() error
}

// deps are the seams tests replace.
type deps struct {
	Stdout io.Writer
	Stderr io.Writer

	// BackendFactory builds the Datadog backend when -metrics-backend=datadog.
	BackendFactory func(ctx context.Context, jobName string, tags []string, flushEvery time.Duration) (backendCloser, error)
	// Getter overrides the HTTP source client.
	Getter loader.Getter
	// NewRunID defaults to uuid.NewString.
	NewRunID func() string
}

func main() {
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt)
	code := run(ctx, os.Args[1:], deps{
		Stdout: os.Stdout,
		Stderr: os.Stderr,
		BackendFactory: func(ctx context.Context, jobName string, tags []string, flushEvery time.Duration) (backendCloser, error) {
			return datadog.NewBackend(ctx, datadog.Options{
				JobName:    jobName,
				Tags:       tags,
				FlushEvery: flushEvery,
			})
		},
	})
	stop()
	os.Exit(code)
}

// run executes one fetch request and returns the exit code.
//
// Exit codes:
//   - 0: succeeded.
//   - 1: failed.
//   - 2: usage error or invalid request.
//   - 3: no files matched the request.
func run(ctx context.Context, args []string, d deps) int {
	if d.Stdout == nil {
		d.Stdout = io.Discard
	}
	if d.Stderr == nil {
		d.Stderr = io.Discard
	}
	if d.NewRunID == nil {
		d.NewRunID = uuid.NewString
	}

	cfg, err := parseFlags(args)
	if err != nil {
		fmt.Fprintln(d.Stderr, err.Error())
		return 2
	}
	req, err := cfg.request()
	if err != nil {
		fmt.Fprintln(d.Stderr, err.Error())
		return 2
	}

	runID := d.NewRunID()

	switch cfg.MetricsBackend {
	case "datadog":
		if d.BackendFactory == nil {
			fmt.Fprintln(d.Stderr, "internal error: BackendFactory is nil")
			return 2
		}
		tags := append(datadog.ParseTagsCSV(cfg.DDTagsCSV), "run:"+runID, "category:"+string(req.Category))
		b, err := d.BackendFactory(ctx, "tlc-fetch", tags, cfg.FlushEvery)
		if err != nil {
			fmt.Fprintf(d.Stderr, "datadog backend init failed: %v\n", err)
			return 2
		}
		metrics.SetBackend(b)
		defer func() {
			if err := b.Close(); err != nil {
				fmt.Fprintf(d.Stderr, "metrics: datadog close/flush error: %v\n", err)
			}
			metrics.SetBackend(nil)
		}()
	case "", "none":
	default:
		fmt.Fprintf(d.Stderr, "unknown -metrics-backend %q (want none or datadog)\n", cfg.MetricsBackend)
		return 2
	}

	r := &pipeline.Runner{
		Getter:   d.Getter,
		Reporter: pipeline.NewLogReporter(d.Stderr, req.Verbose, runID),
		RunID:    runID,
	}
	st := r.Run(ctx, req)
	printStatus(d.Stdout, st)

	switch {
	case st.State == pipeline.Succeeded:
		return 0
	case st.State == pipeline.NoMatches:
		return 3
	case st.FailedWith(tlc.ErrInvalidRequest):
		return 2
	default:
		return 1
	}
}

func printStatus(w io.Writer, st pipeline.Status) {
	c := color.New(color.FgGreen)
	switch st.State {
	case pipeline.NoMatches:
		c = color.New(color.FgYellow)
	case pipeline.Failed:
		c = color.New(color.FgRed)
	}
	c.Fprintf(w, "status=%s", st.State)
	fmt.Fprintf(w, " run=%s buckets=%d files=%d message=%q\n", st.RunID, st.Buckets, st.Files, st.Message)
	for _, p := range st.Outputs {
		fmt.Fprintf(w, "wrote %s\n", p)
	}
}

// runConfig holds the parsed flags. set records which flags were given so
// only those override the config file.
type runConfig struct {
	ConfigPath string

	Category     string
	Start        int64
	End          int64
	OutputDir    string
	Formats      string
	Verbose      bool
	Workers      int
	Timeout      int
	RPS          float64
	ColumnPolicy string
	ListingURL   string
	LookupURL    string

	StorageKind   string
	StorageDSN    string
	StorageSchema string

	PublishURL       string
	PublishRegion    string
	PublishEndpoint  string
	PublishPathStyle bool

	MetricsBackend string
	DDTagsCSV      string
	FlushEvery     time.Duration

	set map[string]bool
}

func parseFlags(args []string) (runConfig, error) {
	fs := flag.NewFlagSet("tlc-fetch", flag.ContinueOnError)

	var usageBuf strings.Builder
	fs.SetOutput(&usageBuf)
	fs.Usage = func() {
		fmt.Fprintf(&usageBuf, "Usage of %s:\n", fs.Name())
		fs.PrintDefaults()
	}

	var cfg runConfig
	fs.StringVar(&cfg.ConfigPath, "config", "", "request file (.yaml, .yml or .json)")
	fs.StringVar(&cfg.Category, "category", "", "one of yellow, green, yellow_green, fhv, fhvhv, zone-ids")
	fs.Int64Var(&cfg.Start, "start", 0, "window start, unix seconds (inclusive)")
	fs.Int64Var(&cfg.End, "end", 0, "window end, unix seconds (inclusive)")
	fs.StringVar(&cfg.OutputDir, "output-dir", "", "directory output files are written to")
	fs.StringVar(&cfg.Formats, "formats", "", "comma-separated output formats: parquet, csv, xlsx, avro")
	fs.BoolVar(&cfg.Verbose, "verbose", false, "print progress and stage lines")
	fs.IntVar(&cfg.Workers, "workers", 1, "concurrent downloads per month")
	fs.IntVar(&cfg.Timeout, "timeout", 0, "per-request HTTP timeout in seconds (0 disables)")
	fs.Float64Var(&cfg.RPS, "rps", 0, "max requests per second to the source (0 is unlimited)")
	fs.StringVar(&cfg.ColumnPolicy, "column-policy", "", "strict or union")
	fs.StringVar(&cfg.ListingURL, "listing-url", "", "override the listing page URL")
	fs.StringVar(&cfg.LookupURL, "lookup-url", "", "override the zone lookup CSV URL")
	fs.StringVar(&cfg.StorageKind, "storage-kind", "", "also load each month into a database: sqlite, postgres or mssql")
	fs.StringVar(&cfg.StorageDSN, "storage-dsn", "", "database DSN for -storage-kind")
	fs.StringVar(&cfg.StorageSchema, "storage-schema", "", "schema for loaded tables (postgres and mssql)")
	fs.StringVar(&cfg.PublishURL, "publish-url", "", "upload written files to s3://bucket/prefix")
	fs.StringVar(&cfg.PublishRegion, "publish-region", "", "S3 region")
	fs.StringVar(&cfg.PublishEndpoint, "publish-endpoint", "", "S3-compatible endpoint URL")
	fs.BoolVar(&cfg.PublishPathStyle, "publish-path-style", false, "use path-style S3 addressing")
	fs.StringVar(&cfg.MetricsBackend, "metrics-backend", "none", "metrics backend: none or datadog")
	fs.StringVar(&cfg.DDTagsCSV, "dd-tags", "", "extra Datadog tags CSV (e.g. env:prod,team:data)")
	fs.DurationVar(&cfg.FlushEvery, "metrics-flush", time.Minute, "Datadog flush interval")

	if err := fs.Parse(args); err != nil {
		if errors.Is(err, flag.ErrHelp) {
			return runConfig{}, errors.New(usageBuf.String())
		}
		return runConfig{}, fmt.Errorf("%v\n\n%s", err, usageBuf.String())
	}
	if fs.NArg() > 0 {
		return runConfig{}, fmt.Errorf("unexpected arguments: %v", fs.Args())
	}

	cfg.set = map[string]bool{}
	fs.Visit(func(f *flag.Flag) { cfg.set[f.Name] = true })

	if cfg.ConfigPath == "" && !cfg.set["category"] {
		return runConfig{}, errors.New("missing required -category (or -config)")
	}
	if cfg.set["storage-kind"] != cfg.set["storage-dsn"] {
		return runConfig{}, errors.New("-storage-kind and -storage-dsn must be given together")
	}
	return cfg, nil
}

// request builds the Request: the config file if any, then flag overrides.
// It is validated later by the pipeline.
func (c runConfig) request() (config.Request, error) {
	var req config.Request
	if c.ConfigPath != "" {
		var err error
		if req, err = config.Load(c.ConfigPath); err != nil {
			return req, err
		}
	}

	if c.set["category"] {
		req.Category = tlc.Category(strings.TrimSpace(c.Category))
	}
	if c.set["start"] {
		req.StartTimestamp = &c.Start
	}
	if c.set["end"] {
		req.EndTimestamp = &c.End
	}
	if c.set["output-dir"] {
		req.OutputDir = c.OutputDir
	}
	if req.OutputDir == "" {
		req.OutputDir = "."
	}
	if c.set["formats"] {
		formats, err := tlc.ParseFormats(c.Formats)
		if err != nil {
			return req, err
		}
		req.OutputFormats = formats
	}
	if c.set["verbose"] {
		req.Verbose = c.Verbose
	}
	if c.set["workers"] {
		req.Runtime.Workers = c.Workers
	}
	if c.set["timeout"] {
		req.Runtime.TimeoutSeconds = c.Timeout
	}
	if c.set["rps"] {
		req.Runtime.RequestsPerSecond = c.RPS
	}
	if c.set["column-policy"] {
		req.Runtime.ColumnPolicy = c.ColumnPolicy
	}
	if c.set["listing-url"] {
		req.Source.ListingURL = c.ListingURL
	}
	if c.set["lookup-url"] {
		req.Source.LookupURL = c.LookupURL
	}
	if c.set["storage-kind"] {
		req.Storage = &config.Storage{Kind: c.StorageKind, DSN: c.StorageDSN}
	}
	if c.set["storage-schema"] {
		if req.Storage == nil {
			return config.Request{}, errors.New("-storage-schema requires a storage sink")
		}
		req.Storage.Schema = c.StorageSchema
	}
	if c.set["publish-url"] {
		if req.Publish == nil {
			req.Publish = &config.Publish{}
		}
		req.Publish.URL = c.PublishURL
	}
	if req.Publish != nil {
		if c.set["publish-region"] {
			req.Publish.Region = c.PublishRegion
		}
		if c.set["publish-endpoint"] {
			req.Publish.Endpoint = c.PublishEndpoint
		}
		if c.set["publish-path-style"] {
			req.Publish.PathStyle = c.PublishPathStyle
		}
	}
	return req, nil
}
