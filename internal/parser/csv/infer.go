package csv

import (
	"fmt"
	"strings"
	"time"
	"unicode"

	"golang.org/x/text/runes"
	"golang.org/x/text/transform"
	"golang.org/x/text/unicode/norm"
)

// Only literal true/false count as booleans; 0/1 and Y/N stay int and string.
func parseBool(s string) (bool, bool) {
	switch strings.ToLower(strings.TrimSpace(s)) {
	case "true":
		return true, true
	case "false":
		return false, true
	default:
		return false, false
	}
}

var tsLayouts = []string{
	"2006-01-02 15:04:05",
	"2006-01-02T15:04:05",
	time.RFC3339Nano,
	"2006-01-02 15:04:05.999999999",
	"01/02/2006 03:04:05 PM",
	"01/02/2006 15:04",
	"2006-01-02",
}

// parseTimestamp parses s as a UTC timestamp or date.
func parseTimestamp(s string) (time.Time, bool) {
	s = strings.TrimSpace(s)
	for _, lay := range tsLayouts {
		if t, err := time.ParseInLocation(lay, s, time.UTC); err == nil {
			return t.UTC(), true
		}
	}
	return time.Time{}, false
}

// HeaderNames cleans raw header cells into column names: edge space and a
// stray BOM are trimmed, diacritics are folded to ASCII letters, blank names
// become column_<n>, and repeats get a .<k> suffix.
func HeaderNames(hdr []string) []string {
	out := make([]string, len(hdr))
	seen := make(map[string]int, len(hdr))
	for i, h := range hdr {
		h = strings.TrimSpace(strings.TrimPrefix(h, "\uFEFF"))
		h = foldDiacritics(h)
		if h == "" {
			h = fmt.Sprintf("column_%d", i)
		}
		if n := seen[h]; n > 0 {
			seen[h] = n + 1
			h = fmt.Sprintf("%s.%d", h, n)
		} else {
			seen[h] = 1
		}
		out[i] = h
	}
	return out
}

func foldDiacritics(s string) string {
	t := transform.Chain(norm.NFD, runes.Remove(runes.In(unicode.Mn)), norm.NFC)
	folded, _, err := transform.String(t, s)
	if err != nil {
		return s
	}
	return folded
}
