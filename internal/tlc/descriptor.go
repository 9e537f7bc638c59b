package tlc

import (
	"fmt"
	"strings"
	"time"
)

// TimeBucket is the month a file belongs to, as epoch seconds of the first
// instant of that month (UTC). The zero value (Valid=false) is the empty
// bucket used by the lookup category.
type TimeBucket struct {
	Epoch int64
	Valid bool
}

// MonthBucket returns the bucket for the month containing t.
func MonthBucket(t time.Time) TimeBucket {
	t = t.UTC()
	m := time.Date(t.Year(), t.Month(), 1, 0, 0, 0, 0, time.UTC)
	return TimeBucket{Epoch: m.Unix(), Valid: true}
}

// ParseMonthBucket parses a "YYYY-MM" token into a bucket.
func ParseMonthBucket(s string) (TimeBucket, error) {
	t, err := time.Parse("2006-01", strings.TrimSpace(s))
	if err != nil {
		return TimeBucket{}, fmt.Errorf("%w: month %q: %v", ErrParse, s, err)
	}
	return TimeBucket{Epoch: t.Unix(), Valid: true}, nil
}

// Within reports whether b lies in the inclusive window [start, end].
// The empty bucket is never within a window.
func (b TimeBucket) Within(start, end int64) bool {
	return b.Valid && start <= b.Epoch && b.Epoch <= end
}

func (b TimeBucket) String() string {
	if !b.Valid {
		return ""
	}
	return time.Unix(b.Epoch, 0).UTC().Format("2006-01")
}

// FileDescriptor is one downloadable file discovered in the catalog.
// Descriptors are built once by the catalog fetcher and never modified.
type FileDescriptor struct {
	// Name is the link basename without extension, e.g. "yellow_tripdata_2021-01".
	Name string `json:"name"`
	// Extension includes the leading dot, e.g. ".parquet".
	Extension string `json:"extension"`
	// Category is the catalog category after merged categories were collapsed.
	Category Category `json:"category"`
	// SourceCategory is the raw token before the first "_" in Name.
	SourceCategory Category   `json:"source_category"`
	Bucket         TimeBucket `json:"-"`
	Link           string     `json:"link"`
}

// BucketLabel is the bucket as "YYYY-MM", or "" for the lookup entry.
func (d FileDescriptor) BucketLabel() string { return d.Bucket.String() }

// Catalog is the ordered set of descriptors discovered in one run.
type Catalog []FileDescriptor

// Lookup table entry injected into every catalog.
const (
	LookupName       = "taxi-zones"
	LookupExtension  = ".csv"
	DefaultLookupURL = "https://s3.amazonaws.com/nyc-tlc/misc/taxi+_zone_lookup.csv"
)

// LookupDescriptor returns the synthetic lookup-table entry.
func LookupDescriptor(link string) FileDescriptor {
	if link == "" {
		link = DefaultLookupURL
	}
	return FileDescriptor{
		Name:           LookupName,
		Extension:      LookupExtension,
		Category:       ZoneIDs,
		SourceCategory: ZoneIDs,
		Link:           link,
	}
}
