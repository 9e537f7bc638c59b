// Package pipeline runs one fetch request end to end: catalog, resolve, and
// for every time bucket load, normalize, concatenate and write.
package pipeline

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"tlcetl/internal/catalog"
	"tlcetl/internal/config"
	"tlcetl/internal/loader"
	"tlcetl/internal/metrics"
	"tlcetl/internal/normalize"
	"tlcetl/internal/publish"
	"tlcetl/internal/source"
	"tlcetl/internal/storage"
	"tlcetl/internal/table"
	"tlcetl/internal/tlc"
	"tlcetl/internal/writer"

	"github.com/google/uuid"
	"golang.org/x/sync/errgroup"
)

// State is the terminal outcome of a run.
type State string

const (
	Succeeded State = "succeeded"
	NoMatches State = "no_matches"
	Failed    State = "failed"
)

// Status is what Run returns instead of an error. Err keeps the underlying
// failure for errors.Is classification; it is nil unless State is Failed.
type Status struct {
	State   State    `json:"state"`
	Message string   `json:"message"`
	RunID   string   `json:"run_id"`
	Buckets int      `json:"buckets"`
	Files   int      `json:"files"`
	Outputs []string `json:"outputs,omitempty"`
	Err     error    `json:"-"`
}

// Publisher uploads one written file.
type Publisher interface {
	Upload(ctx context.Context, path string) (string, error)
}

// Runner holds the seams a run is built from. The zero value is usable:
// nil fields fall back to the production implementations.
type Runner struct {
	// Getter retrieves the listing page and data files. Nil builds a
	// source.Client from the request's runtime and source settings.
	Getter   loader.Getter
	Reporter Reporter
	Writer   *writer.Writer

	NewSink      func(ctx context.Context, cfg storage.Config) (storage.Sink, error)
	NewPublisher func(cfg config.Publish) (Publisher, error)

	// RunID is generated when empty.
	RunID string
}

// Run validates req and executes it. Every failure is caught here and
// returned as a Failed status; buckets written before the failure stay on disk.
func (r *Runner) Run(ctx context.Context, req config.Request) (st Status) {
	st.RunID = r.RunID
	if st.RunID == "" {
		st.RunID = uuid.NewString()
	}
	rep := r.Reporter
	if rep == nil {
		rep = discardReporter{}
	}

	defer func() {
		if p := recover(); p != nil {
			st.State, st.Err = Failed, fmt.Errorf("panic: %v", p)
		}
		if st.State == Failed {
			st.Message = st.Err.Error()
			rep.Errorf("An error occurred: %s", st.Message)
		}
	}()

	req.ApplyDefaults()
	if err := req.Validate(); err != nil {
		st.State, st.Err = Failed, err
		return st
	}

	if err := r.run(ctx, req, rep, &st); err != nil {
		st.State, st.Err = Failed, err
	}
	return st
}

func (r *Runner) run(ctx context.Context, req config.Request, rep Reporter, st *Status) error {
	getter := r.Getter
	if getter == nil {
		getter = source.New(source.Options{
			Timeout:           req.Timeout(),
			UserAgent:         req.Source.UserAgent,
			RequestsPerSecond: req.Runtime.RequestsPerSecond,
		})
	}

	var cat tlc.Catalog
	err := step(rep, "catalog", func() (err error) {
		f := catalog.NewFetcher(getter, req.Source.ListingURL, req.Source.LookupURL)
		f.OnSkip = func(href, reason string) { rep.Infof("skip link=%s reason=%q", href, reason) }
		cat, err = f.Fetch(ctx)
		return err
	})
	if err != nil {
		return err
	}

	var res catalog.Resolved
	err = step(rep, "resolve", func() (err error) {
		res, err = catalog.Resolve(cat, req.Category, req.StartTimestamp, req.EndTimestamp)
		return err
	})
	if err != nil {
		return err
	}
	if res.Empty() {
		st.State = NoMatches
		st.Message = fmt.Sprintf("No files found for category '%s' within the desired time frame.", req.Category)
		rep.Errorf("%s", st.Message)
		return nil
	}
	rep.Infof("resolved category=%s buckets=%d files=%d", req.Category, len(res.Groups), res.Total())

	var sink storage.Sink
	if req.Storage != nil {
		newSink := r.NewSink
		if newSink == nil {
			newSink = storage.New
		}
		if sink, err = newSink(ctx, storage.Config{Kind: req.Storage.Kind, DSN: req.Storage.DSN, Schema: req.Storage.Schema}); err != nil {
			return fmt.Errorf("open storage %s: %w", req.Storage.Kind, err)
		}
		defer sink.Close()
	}

	var pub Publisher
	if req.Publish != nil {
		newPub := r.NewPublisher
		if newPub == nil {
			newPub = defaultPublisher
		}
		if pub, err = newPub(*req.Publish); err != nil {
			return fmt.Errorf("publisher: %w", err)
		}
	}

	w := r.Writer
	if w == nil {
		w = writer.New(writer.Options{})
	}

	b := &bucketRun{
		req:    req,
		rep:    rep,
		loader: loader.New(getter),
		total:  res.Total(),
	}
	for _, g := range res.Groups {
		if err := ctx.Err(); err != nil {
			return err
		}
		t, err := b.accumulate(ctx, g)
		if err != nil {
			return err
		}

		name := g.DerivedName(req.Category)
		var paths []string
		err = step(rep, "write", func() (err error) {
			paths, err = w.Write(t, name, req.OutputDir, req.OutputFormats)
			return err
		})
		st.Outputs = append(st.Outputs, paths...)
		if err != nil {
			return err
		}

		if sink != nil {
			err = step(rep, "store", func() error {
				n, err := sink.ReplaceTable(ctx, storage.TableName(name), t)
				metrics.RecordRows("stored", int(n))
				return err
			})
			if err != nil {
				return fmt.Errorf("store %s: %w", name, err)
			}
		}
		if pub != nil {
			err = step(rep, "publish", func() error {
				for _, p := range paths {
					dst, err := pub.Upload(ctx, p)
					if err != nil {
						return err
					}
					rep.Infof("published %s", dst)
				}
				return nil
			})
			if err != nil {
				return err
			}
		}

		st.Buckets++
		st.Files += len(g.Files)
	}

	st.State = Succeeded
	st.Message = "Data processing and saving completed."
	rep.Infof("%s", st.Message)
	return nil
}

// bucketRun carries the per-run state shared by every bucket.
type bucketRun struct {
	req    config.Request
	rep    Reporter
	loader *loader.Loader
	total  int

	mu        sync.Mutex
	processed int
}

// accumulate loads and normalizes every file of g, at most
// req.Runtime.Workers at a time, and concatenates them in discovery order.
func (b *bucketRun) accumulate(ctx context.Context, g catalog.Group) (*table.Table, error) {
	tables := make([]*table.Table, len(g.Files))

	eg, ctx := errgroup.WithContext(ctx)
	eg.SetLimit(max(1, b.req.Runtime.Workers))
	for i, d := range g.Files {
		eg.Go(func() error {
			var raw *table.Table
			err := step(b.rep, "load", func() (err error) {
				raw, err = b.loader.Load(ctx, d)
				return err
			})
			if err != nil {
				return err
			}
			return step(b.rep, "normalize", func() (err error) {
				tables[i], err = normalize.Normalize(raw, d, b.req.Category)
				if err == nil {
					b.done()
				}
				return err
			})
		})
	}
	if err := eg.Wait(); err != nil {
		return nil, err
	}

	policy := table.Strict
	if b.req.Runtime.ColumnPolicy == config.PolicyUnion {
		policy = table.Union
	}
	t, err := table.Concat(tables, policy)
	if err != nil {
		return nil, fmt.Errorf("bucket %s: %w", bucketLabel(g), err)
	}
	return t, nil
}

func (b *bucketRun) done() {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.processed++
	b.rep.Progress(string(b.req.Category), b.processed, b.total)
}

func bucketLabel(g catalog.Group) string {
	if !g.Bucket.Valid {
		return tlc.LookupName
	}
	return g.Bucket.String()
}

// step times fn and records it under name.
func step(rep Reporter, name string, fn func() error) error {
	start := time.Now()
	err := fn()
	d := time.Since(start)
	metrics.RecordStep(name, err, d)
	if err == nil {
		rep.Infof("stage=%s ok duration=%s", name, d.Truncate(time.Millisecond))
	}
	return err
}

func defaultPublisher(cfg config.Publish) (Publisher, error) {
	return publish.NewS3(publish.Options{
		URL:       cfg.URL,
		Region:    cfg.Region,
		Endpoint:  cfg.Endpoint,
		PathStyle: cfg.PathStyle,
	})
}

// FailedWith reports whether the run failed with target in its error chain.
func (s Status) FailedWith(target error) bool { return s.Err != nil && errors.Is(s.Err, target) }
