package main

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/google/go-cmp/cmp"
)

const listing = `<html><body>
<table>
<tr><td><a href="/trip-data/yellow_tripdata_2021-01.parquet">Yellow</a></td>
    <td><a href="/trip-data/green_tripdata_2021-01.parquet">Green</a></td></tr>
<tr><td><a href="/trip-data/yellow_tripdata_2021-02.parquet">Yellow</a></td></tr>
<tr><td><a href="/docs/data_dictionary_trip_records_yellow.pdf">Dictionary</a></td></tr>
</table>
</body></html>`

func newServer(t *testing.T) *httptest.Server {
	t.Helper()
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path != "/listing" {
			http.NotFound(w, r)
			return
		}
		fmt.Fprint(w, listing)
	}))
	t.Cleanup(srv.Close)
	return srv
}

func TestRun_Catalog(t *testing.T) {
	t.Parallel()

	srv := newServer(t)
	var out, errOut bytes.Buffer
	code := run(context.Background(), []string{"-listing-url", srv.URL + "/listing", "-lookup-url", "http://zones.test/z.csv", "-verbose"},
		deps{Stdout: &out, Stderr: &errOut})
	if code != 0 {
		t.Fatalf("run()=%d stderr=%s", code, errOut.String())
	}

	var got []struct {
		Name           string `json:"name"`
		Category       string `json:"category"`
		SourceCategory string `json:"source_category"`
		Month          string `json:"month"`
	}
	if err := json.Unmarshal(out.Bytes(), &got); err != nil {
		t.Fatalf("decode: %v\n%s", err, out.String())
	}
	names := make([]string, len(got))
	for i, e := range got {
		names[i] = e.Category + "/" + e.SourceCategory + "/" + e.Month + "/" + e.Name
	}
	want := []string{
		"yellow_green/yellow/2021-01/yellow_tripdata_2021-01",
		"yellow_green/green/2021-01/green_tripdata_2021-01",
		"yellow_green/yellow/2021-02/yellow_tripdata_2021-02",
		"zone-ids/zone-ids//taxi-zones",
	}
	if diff := cmp.Diff(want, names); diff != "" {
		t.Fatalf("catalog mismatch (-want +got):\n%s", diff)
	}
	if !strings.Contains(errOut.String(), "skip link=/docs/data_dictionary_trip_records_yellow.pdf") {
		t.Fatalf("stderr=%q, want skip report", errOut.String())
	}
}

func TestRun_Resolve(t *testing.T) {
	t.Parallel()

	srv := newServer(t)
	var out, errOut bytes.Buffer
	code := run(context.Background(), []string{
		"-listing-url", srv.URL + "/listing",
		"-category", "yellow_green", "-start", "1609459200", "-end", "1612051200",
	}, deps{Stdout: &out, Stderr: &errOut})
	if code != 0 {
		t.Fatalf("run()=%d stderr=%s", code, errOut.String())
	}

	var got []struct {
		Month       string `json:"month"`
		DerivedName string `json:"derived_name"`
		Files       []struct {
			Name string `json:"name"`
		} `json:"files"`
	}
	if err := json.Unmarshal(out.Bytes(), &got); err != nil {
		t.Fatalf("decode: %v\n%s", err, out.String())
	}
	if len(got) != 1 || got[0].Month != "2021-01" || got[0].DerivedName != "yellow_green_tripdata_2021-01" || len(got[0].Files) != 2 {
		t.Fatalf("resolved = %+v", got)
	}
}

func TestRun_Selector(t *testing.T) {
	t.Parallel()

	srv := newServer(t)
	var out bytes.Buffer
	code := run(context.Background(), []string{"-listing-url", srv.URL + "/listing", "-selector", "td a", "-text"}, deps{Stdout: &out})
	if code != 0 {
		t.Fatalf("run()=%d", code)
	}
	if got, want := out.String(), "Yellow\n\nGreen\n\nYellow\n\nDictionary\n\n"; got != want {
		t.Fatalf("stdout=%q, want %q", got, want)
	}
}

func TestRun_Errors(t *testing.T) {
	t.Parallel()

	srv := newServer(t)
	tests := []struct {
		name     string
		args     []string
		wantCode int
		wantErr  string
	}{
		{"exclusive_flags", []string{"-selector", "a", "-category", "fhv"}, 2, "mutually exclusive"},
		{"missing_window", []string{"-listing-url", srv.URL + "/listing", "-category", "fhv"}, 2, "requires both start and end"},
		{"listing_404", []string{"-listing-url", srv.URL + "/nope"}, 1, "fetch listing"},
	}
	for _, tc := range tests {
		t.Run(tc.name, func(t *testing.T) {
			t.Parallel()

			var errOut bytes.Buffer
			code := run(context.Background(), tc.args, deps{Stderr: &errOut})
			if code != tc.wantCode || !strings.Contains(errOut.String(), tc.wantErr) {
				t.Fatalf("run()=%d stderr=%q, want %d and %q", code, errOut.String(), tc.wantCode, tc.wantErr)
			}
		})
	}
}
