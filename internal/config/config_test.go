package config

import (
	"errors"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"tlcetl/internal/tlc"

	"github.com/google/go-cmp/cmp"
)

func writeFile(t *testing.T, name, body string) string {
	t.Helper()
	p := filepath.Join(t.TempDir(), name)
	if err := os.WriteFile(p, []byte(body), 0o644); err != nil {
		t.Fatalf("write %s: %v", p, err)
	}
	return p
}

func i64(v int64) *int64 { return &v }

// TestLoad_YAML verifies a full YAML request decodes and picks up defaults.
func TestLoad_YAML(t *testing.T) {
	t.Parallel()

	p := writeFile(t, "req.yaml", `
category: yellow_green
output_dir: /tmp/out
output_formats: [parquet, AVRO, parquet]
start_timestamp: 1609459200
end_timestamp: 1612137599
runtime:
  workers: 4
  column_policy: union
storage:
  kind: postgres
  dsn: postgres://localhost/tlc
  schema: tlc
`)
	r, err := Load(p)
	if err != nil {
		t.Fatalf("Load: %v", err)
	}
	if err := r.Validate(); err != nil {
		t.Fatalf("Validate: %v", err)
	}

	if diff := cmp.Diff([]tlc.Format{tlc.Parquet, tlc.Avro}, r.OutputFormats); diff != "" {
		t.Fatalf("formats (-want +got):\n%s", diff)
	}
	if r.StartTimestamp == nil || *r.StartTimestamp != 1609459200 || r.EndTimestamp == nil || *r.EndTimestamp != 1612137599 {
		t.Fatalf("window = [%v, %v]", r.StartTimestamp, r.EndTimestamp)
	}
	if r.Runtime.Workers != 4 || r.Runtime.ColumnPolicy != PolicyUnion {
		t.Fatalf("runtime = %+v", r.Runtime)
	}
	if r.Source.ListingURL != DefaultListingURL || r.Source.LookupURL != tlc.DefaultLookupURL {
		t.Fatalf("source defaults not applied: %+v", r.Source)
	}
	if r.Storage == nil || r.Storage.Kind != "postgres" || r.Storage.Schema != "tlc" {
		t.Fatalf("storage = %+v", r.Storage)
	}
}

func TestLoad_JSONDefaults(t *testing.T) {
	t.Parallel()

	p := writeFile(t, "req.json", `{"category":"zone-ids","output_dir":"out"}`)
	r, err := Load(p)
	if err != nil {
		t.Fatalf("Load: %v", err)
	}
	if err := r.Validate(); err != nil {
		t.Fatalf("Validate: %v", err)
	}
	if diff := cmp.Diff(tlc.DefaultFormats, r.OutputFormats); diff != "" {
		t.Fatalf("formats (-want +got):\n%s", diff)
	}
	if r.Runtime.Workers != 1 || r.Runtime.ColumnPolicy != PolicyStrict || r.Timeout() != 0 {
		t.Fatalf("runtime defaults = %+v", r.Runtime)
	}
}

func TestLoad_Rejects(t *testing.T) {
	t.Parallel()

	tests := []struct {
		name, file, body string
	}{
		{"unknown_yaml_key", "r.yaml", "category: fhv\nbogus: 1\n"},
		{"unknown_json_key", "r.json", `{"category":"fhv","bogus":1}`},
		{"bad_extension", "r.toml", "category = 'fhv'"},
	}
	for _, tc := range tests {
		t.Run(tc.name, func(t *testing.T) {
			t.Parallel()
			_, err := Load(writeFile(t, tc.file, tc.body))
			if !errors.Is(err, tlc.ErrInvalidRequest) {
				t.Fatalf("expected ErrInvalidRequest, got %v", err)
			}
		})
	}
}

func TestLoad_MissingFile(t *testing.T) {
	t.Parallel()

	if _, err := Load(filepath.Join(t.TempDir(), "nope.yaml")); err == nil {
		t.Fatalf("expected error for missing file")
	}
}

// TestValidate covers field constraints and the category/window rule.
func TestValidate(t *testing.T) {
	t.Parallel()

	base := func() Request {
		r := Request{
			Category:       tlc.FHV,
			OutputDir:      "out",
			StartTimestamp: i64(0),
			EndTimestamp:   i64(10),
		}
		r.ApplyDefaults()
		return r
	}

	tests := []struct {
		name    string
		mutate  func(*Request)
		wantErr string
	}{
		{"ok", func(*Request) {}, ""},
		{"unknown_category", func(r *Request) { r.Category = "limo" }, "known categories"},
		{"missing_category", func(r *Request) { r.Category = "" }, "required"},
		{"missing_output_dir", func(r *Request) { r.OutputDir = "" }, "OutputDir"},
		{"bad_format", func(r *Request) { r.OutputFormats = []tlc.Format{tlc.Parquet, "orc"} }, "orc"},
		{"bad_policy", func(r *Request) { r.Runtime.ColumnPolicy = "loose" }, "ColumnPolicy"},
		{"negative_timeout", func(r *Request) { r.Runtime.TimeoutSeconds = -1 }, "TimeoutSeconds"},
		{"bad_listing_url", func(r *Request) { r.Source.ListingURL = "not a url" }, "ListingURL"},
		{"storage_kind", func(r *Request) { r.Storage = &Storage{Kind: "oracle", DSN: "x"} }, "Kind"},
		{"publish_scheme", func(r *Request) { r.Publish = &Publish{URL: "gs://bucket"} }, "URL"},
		{"reversed_window", func(r *Request) { r.StartTimestamp = i64(11) }, "after"},
		{"missing_end", func(r *Request) { r.EndTimestamp = nil }, "requires both"},
		{"lookup_with_window", func(r *Request) { r.Category = tlc.ZoneIDs }, "must be absent"},
	}
	for _, tc := range tests {
		t.Run(tc.name, func(t *testing.T) {
			t.Parallel()
			r := base()
			tc.mutate(&r)
			err := r.Validate()
			if tc.wantErr == "" {
				if err != nil {
					t.Fatalf("unexpected error: %v", err)
				}
				return
			}
			if !errors.Is(err, tlc.ErrInvalidRequest) {
				t.Fatalf("expected ErrInvalidRequest, got %v", err)
			}
			if !strings.Contains(err.Error(), tc.wantErr) {
				t.Fatalf("error %q does not mention %q", err, tc.wantErr)
			}
		})
	}
}
