// Package tlc holds the data model shared by every pipeline stage: the
// enumerated categories and output formats, file descriptors discovered on
// the listing page, and the error kinds stages wrap their failures in.
//
// The types live here (and not in catalog or writer) so that config, loader,
// normalize and writer can all import them without circular dependencies.
package tlc

import (
	"fmt"
	"sort"
	"strings"
)

// Category is a trip-record dataset family as it appears in listing file names
// (the token before the first underscore), plus the synthetic merged and
// lookup categories.
type Category string

const (
	Yellow      Category = "yellow"
	Green       Category = "green"
	YellowGreen Category = "yellow_green"
	FHV         Category = "fhv"
	FHVHV       Category = "fhvhv"
	ZoneIDs     Category = "zone-ids"
)

var allCategories = []Category{Yellow, Green, YellowGreen, FHV, FHVHV, ZoneIDs}

// mergedInto maps raw source categories onto the merged label they are
// collapsed into when the catalog is built.
var mergedInto = map[Category]Category{
	Yellow: YellowGreen,
	Green:  YellowGreen,
}

// Categories returns every accepted category in a stable order.
func Categories() []Category {
	return append([]Category(nil), allCategories...)
}

// ParseCategory converts s into a Category, rejecting anything outside the
// enumerated set.
func ParseCategory(s string) (Category, error) {
	c := Category(strings.TrimSpace(s))
	if !c.Valid() {
		return "", fmt.Errorf("%w: category %q must be one of %s", ErrInvalidRequest, s, joinCategories())
	}
	return c, nil
}

func (c Category) Valid() bool {
	for _, k := range allCategories {
		if c == k {
			return true
		}
	}
	return false
}

// IsLookup reports whether c is the non-time-partitioned lookup category.
func (c Category) IsLookup() bool { return c == ZoneIDs }

// IsMerged reports whether c unifies more than one raw source category.
func (c Category) IsMerged() bool {
	for _, m := range mergedInto {
		if m == c {
			return true
		}
	}
	return false
}

// Collapse returns the merged label for a raw source category, or c itself
// when c is not a member of any merged category.
func (c Category) Collapse() Category {
	if m, ok := mergedInto[c]; ok {
		return m
	}
	return c
}

// Members returns the raw source categories collapsed into c, sorted.
// For a non-merged category it returns nil.
func (c Category) Members() []Category {
	var out []Category
	for raw, m := range mergedInto {
		if m == c {
			out = append(out, raw)
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i] < out[j] })
	return out
}

func (c Category) String() string { return string(c) }

func joinCategories() string {
	parts := make([]string, len(allCategories))
	for i, c := range allCategories {
		parts[i] = string(c)
	}
	return "{" + strings.Join(parts, ", ") + "}"
}
