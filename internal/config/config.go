// Package config is the typed request a fetch run is built from.
//
// A Request is loaded from a YAML or JSON file (or assembled from flags),
// has defaults applied, and is validated once before any network access.
// Every validation failure wraps tlc.ErrInvalidRequest.
package config

import (
	"bytes"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"strings"
	"sync"
	"time"

	"tlcetl/internal/tlc"

	"github.com/go-playground/validator/v10"
	"gopkg.in/yaml.v3"
)

const (
	DefaultListingURL = "https://www.nyc.gov/site/tlc/about/tlc-trip-record-data.page"
	DefaultUserAgent  = "tlc-fetch/1.0"
)

// Column policies for concatenating tables inside one bucket.
const (
	PolicyStrict = "strict"
	PolicyUnion  = "union"
)

// Request is everything one pipeline invocation needs.
type Request struct {
	Category       tlc.Category `yaml:"category" json:"category" validate:"required,tlc_category"`
	OutputDir      string       `yaml:"output_dir" json:"output_dir" validate:"required"`
	OutputFormats  []tlc.Format `yaml:"output_formats" json:"output_formats" validate:"min=1,dive,tlc_format"`
	StartTimestamp *int64       `yaml:"start_timestamp" json:"start_timestamp,omitempty"`
	EndTimestamp   *int64       `yaml:"end_timestamp" json:"end_timestamp,omitempty"`
	Verbose        bool         `yaml:"verbose" json:"verbose"`

	Runtime Runtime  `yaml:"runtime" json:"runtime"`
	Source  Source   `yaml:"source" json:"source"`
	Storage *Storage `yaml:"storage,omitempty" json:"storage,omitempty" validate:"omitempty"`
	Publish *Publish `yaml:"publish,omitempty" json:"publish,omitempty" validate:"omitempty"`
}

type Runtime struct {
	// Workers bounds concurrent downloads inside one bucket. 0 and 1 both mean sequential.
	Workers int `yaml:"workers" json:"workers" validate:"gte=0,lte=64"`
	// TimeoutSeconds applies per HTTP request. 0 disables the timeout.
	TimeoutSeconds    int     `yaml:"timeout_seconds" json:"timeout_seconds" validate:"gte=0"`
	RequestsPerSecond float64 `yaml:"requests_per_second" json:"requests_per_second" validate:"gte=0"`
	ColumnPolicy      string  `yaml:"column_policy" json:"column_policy" validate:"omitempty,oneof=strict union"`
}

type Source struct {
	ListingURL string `yaml:"listing_url" json:"listing_url" validate:"omitempty,url"`
	LookupURL  string `yaml:"lookup_url" json:"lookup_url" validate:"omitempty,url"`
	UserAgent  string `yaml:"user_agent" json:"user_agent"`
}

// Storage is the optional database sink each bucket is also loaded into.
type Storage struct {
	Kind string `yaml:"kind" json:"kind" validate:"required,oneof=sqlite postgres mssql"`
	DSN  string `yaml:"dsn" json:"dsn" validate:"required"`
	// Schema qualifies every loaded table. sqlite rejects it.
	Schema string `yaml:"schema,omitempty" json:"schema,omitempty"`
}

// Publish is the optional object-store destination for written files.
type Publish struct {
	URL       string `yaml:"url" json:"url" validate:"required,startswith=s3://"`
	Region    string `yaml:"region" json:"region"`
	Endpoint  string `yaml:"endpoint" json:"endpoint" validate:"omitempty,url"`
	PathStyle bool   `yaml:"path_style" json:"path_style"`
}

// Load reads a request file. The decoder is picked by extension
// (.yaml/.yml or .json); unknown keys are rejected. Defaults are applied
// but the result is not validated, so callers can still overlay flags.
func Load(path string) (Request, error) {
	var r Request

	b, err := os.ReadFile(path)
	if err != nil {
		return r, fmt.Errorf("read config: %w", err)
	}

	switch strings.ToLower(filepath.Ext(path)) {
	case ".yaml", ".yml":
		dec := yaml.NewDecoder(bytes.NewReader(b))
		dec.KnownFields(true)
		if err := dec.Decode(&r); err != nil && !errors.Is(err, io.EOF) {
			return r, fmt.Errorf("%w: decode %s: %v", tlc.ErrInvalidRequest, path, err)
		}
	case ".json":
		dec := json.NewDecoder(bytes.NewReader(b))
		dec.DisallowUnknownFields()
		if err := dec.Decode(&r); err != nil {
			return r, fmt.Errorf("%w: decode %s: %v", tlc.ErrInvalidRequest, path, err)
		}
	default:
		return r, fmt.Errorf("%w: config %s: unsupported extension (want .yaml, .yml or .json)", tlc.ErrInvalidRequest, path)
	}

	r.ApplyDefaults()
	return r, nil
}

// ApplyDefaults fills unset optional fields and dedupes output formats.
func (r *Request) ApplyDefaults() {
	if len(r.OutputFormats) == 0 {
		r.OutputFormats = append([]tlc.Format(nil), tlc.DefaultFormats...)
	} else {
		seen := make(map[tlc.Format]bool, len(r.OutputFormats))
		out := r.OutputFormats[:0]
		for _, f := range r.OutputFormats {
			f = tlc.Format(strings.ToLower(strings.TrimSpace(string(f))))
			if seen[f] {
				continue
			}
			seen[f] = true
			out = append(out, f)
		}
		r.OutputFormats = out
	}
	if r.Runtime.Workers <= 0 {
		r.Runtime.Workers = 1
	}
	if r.Runtime.ColumnPolicy == "" {
		r.Runtime.ColumnPolicy = PolicyStrict
	}
	if r.Source.ListingURL == "" {
		r.Source.ListingURL = DefaultListingURL
	}
	if r.Source.LookupURL == "" {
		r.Source.LookupURL = tlc.DefaultLookupURL
	}
	if r.Source.UserAgent == "" {
		r.Source.UserAgent = DefaultUserAgent
	}
}

// Validate checks struct constraints and then the category/time-window rule.
func (r Request) Validate() error {
	if err := validate().Struct(r); err != nil {
		var verrs validator.ValidationErrors
		if errors.As(err, &verrs) {
			return fmt.Errorf("%w: %s", tlc.ErrInvalidRequest, describe(verrs))
		}
		return fmt.Errorf("%w: %v", tlc.ErrInvalidRequest, err)
	}
	return tlc.CheckWindow(r.Category, r.StartTimestamp, r.EndTimestamp)
}

// Timeout is the per-request HTTP timeout; 0 means none.
func (r Request) Timeout() time.Duration {
	return time.Duration(r.Runtime.TimeoutSeconds) * time.Second
}

var (
	validateOnce sync.Once
	v            *validator.Validate
)

func validate() *validator.Validate {
	validateOnce.Do(func() {
		v = validator.New()
		_ = v.RegisterValidation("tlc_category", func(fl validator.FieldLevel) bool {
			return tlc.Category(fl.Field().String()).Valid()
		})
		_ = v.RegisterValidation("tlc_format", func(fl validator.FieldLevel) bool {
			return tlc.Format(fl.Field().String()).Valid()
		})
	})
	return v
}

func describe(verrs validator.ValidationErrors) string {
	parts := make([]string, 0, len(verrs))
	for _, fe := range verrs {
		switch fe.Tag() {
		case "tlc_category":
			parts = append(parts, fmt.Sprintf("%s %q is not one of the known categories", fe.Namespace(), fe.Value()))
		case "tlc_format":
			parts = append(parts, fmt.Sprintf("%s %q must be one of {parquet, avro, xlsx, csv}", fe.Namespace(), fe.Value()))
		default:
			if fe.Param() != "" {
				parts = append(parts, fmt.Sprintf("%s failed %s=%s", fe.Namespace(), fe.Tag(), fe.Param()))
			} else {
				parts = append(parts, fmt.Sprintf("%s failed %s", fe.Namespace(), fe.Tag()))
			}
		}
	}
	return strings.Join(parts, "; ")
}
