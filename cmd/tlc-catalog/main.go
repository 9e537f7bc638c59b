// Command tlc-catalog prints what the listing page offers.
//
// Without -category it prints every catalog entry as JSON. With -category
// (and -start/-end for time-partitioned categories) it prints the resolved
// month groups a tlc-fetch run would process. With -selector it prints the
// raw matches of a CSS selector on the listing page instead.
package main

import (
	"context"
	"encoding/json"
	"errors"
	"flag"
	"fmt"
	"io"
	"os"
	"strings"
	"time"

	"tlcetl/internal/catalog"
	"tlcetl/internal/config"
	"tlcetl/internal/source"
	"tlcetl/internal/tlc"
)

type deps struct {
	Stdout io.Writer
	Stderr io.Writer
	// Getter defaults to a source.Client with the -timeout flag applied.
	Getter catalog.Getter
}

func main() {
	os.Exit(run(context.Background(), os.Args[1:], deps{Stdout: os.Stdout, Stderr: os.Stderr}))
}

type entry struct {
	tlc.FileDescriptor
	Month string `json:"month,omitempty"`
}

type group struct {
	Month       string  `json:"month,omitempty"`
	DerivedName string  `json:"derived_name"`
	Files       []entry `json:"files"`
}

// run returns 0 on success, 1 on fetch or parse failures and 2 on usage
// errors or an invalid category/window.
func run(ctx context.Context, args []string, d deps) int {
	if d.Stdout == nil {
		d.Stdout = io.Discard
	}
	if d.Stderr == nil {
		d.Stderr = io.Discard
	}

	cfg, err := parseFlags(args)
	if err != nil {
		fmt.Fprintln(d.Stderr, err.Error())
		return 2
	}

	g := d.Getter
	if g == nil {
		g = source.New(source.Options{Timeout: cfg.Timeout, UserAgent: config.DefaultUserAgent})
	}

	html, err := g.Get(ctx, cfg.ListingURL)
	if err != nil {
		fmt.Fprintf(d.Stderr, "fetch listing: %v\n", err)
		return 1
	}

	if cfg.Selector != "" {
		if err := catalog.DebugSelector(d.Stdout, html, cfg.Selector, cfg.TextOnly); err != nil {
			fmt.Fprintf(d.Stderr, "selector: %v\n", err)
			return 1
		}
		return 0
	}

	f := catalog.NewFetcher(g, cfg.ListingURL, cfg.LookupURL)
	if cfg.Verbose {
		f.OnSkip = func(href, reason string) { fmt.Fprintf(d.Stderr, "skip link=%s reason=%q\n", href, reason) }
	}
	cat, err := f.Parse(html)
	if err != nil {
		fmt.Fprintf(d.Stderr, "parse listing: %v\n", err)
		return 1
	}

	enc := json.NewEncoder(d.Stdout)
	enc.SetIndent("", "  ")

	if cfg.Category == "" {
		out := make([]entry, len(cat))
		for i, fd := range cat {
			out[i] = entry{FileDescriptor: fd, Month: fd.BucketLabel()}
		}
		return encode(enc, out, d.Stderr)
	}

	var start, end *int64
	if cfg.set["start"] {
		start = &cfg.Start
	}
	if cfg.set["end"] {
		end = &cfg.End
	}
	res, err := catalog.Resolve(cat, tlc.Category(cfg.Category), start, end)
	if err != nil {
		fmt.Fprintln(d.Stderr, err.Error())
		return 2
	}

	out := make([]group, 0, len(res.Groups))
	for _, rg := range res.Groups {
		og := group{Month: rg.Bucket.String(), DerivedName: rg.DerivedName(res.Category)}
		for _, fd := range rg.Files {
			og.Files = append(og.Files, entry{FileDescriptor: fd, Month: fd.BucketLabel()})
		}
		out = append(out, og)
	}
	return encode(enc, out, d.Stderr)
}

func encode(enc *json.Encoder, v any, stderr io.Writer) int {
	if err := enc.Encode(v); err != nil {
		fmt.Fprintf(stderr, "write json: %v\n", err)
		return 1
	}
	return 0
}

type runConfig struct {
	ListingURL string
	LookupURL  string
	Category   string
	Start      int64
	End        int64
	Selector   string
	TextOnly   bool
	Timeout    time.Duration
	Verbose    bool

	set map[string]bool
}

func parseFlags(args []string) (runConfig, error) {
	fs := flag.NewFlagSet("tlc-catalog", flag.ContinueOnError)

	var usageBuf strings.Builder
	fs.SetOutput(&usageBuf)
	fs.Usage = func() {
		fmt.Fprintf(&usageBuf, "Usage of %s:\n", fs.Name())
		fs.PrintDefaults()
	}

	var cfg runConfig
	fs.StringVar(&cfg.ListingURL, "listing-url", config.DefaultListingURL, "listing page URL")
	fs.StringVar(&cfg.LookupURL, "lookup-url", tlc.DefaultLookupURL, "zone lookup CSV URL")
	fs.StringVar(&cfg.Category, "category", "", "resolve this category instead of printing the whole catalog")
	fs.Int64Var(&cfg.Start, "start", 0, "window start, unix seconds (inclusive)")
	fs.Int64Var(&cfg.End, "end", 0, "window end, unix seconds (inclusive)")
	fs.StringVar(&cfg.Selector, "selector", "", "print matches of this CSS selector instead of the catalog")
	fs.BoolVar(&cfg.TextOnly, "text", false, "with -selector, print trimmed text instead of outer HTML")
	fs.DurationVar(&cfg.Timeout, "timeout", 30*time.Second, "HTTP timeout (0 disables)")
	fs.BoolVar(&cfg.Verbose, "verbose", false, "report skipped links on stderr")

	if err := fs.Parse(args); err != nil {
		if errors.Is(err, flag.ErrHelp) {
			return runConfig{}, errors.New(usageBuf.String())
		}
		return runConfig{}, fmt.Errorf("%v\n\n%s", err, usageBuf.String())
	}

	cfg.set = map[string]bool{}
	fs.Visit(func(f *flag.Flag) { cfg.set[f.Name] = true })

	if strings.TrimSpace(cfg.ListingURL) == "" {
		return runConfig{}, errors.New("-listing-url must not be empty")
	}
	if cfg.Selector != "" && cfg.Category != "" {
		return runConfig{}, errors.New("-selector and -category are mutually exclusive")
	}
	return cfg, nil
}
