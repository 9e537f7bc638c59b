package catalog

import (
	"fmt"
	"strings"

	"tlcetl/internal/tlc"
)

// Group is the files of one time bucket, in discovery order.
type Group struct {
	Bucket tlc.TimeBucket
	Files  []tlc.FileDescriptor
}

// Resolved is the file set a request covers, grouped by bucket. Groups keep
// the order in which their bucket was first seen in the catalog.
type Resolved struct {
	Category tlc.Category
	Groups   []Group
}

// Total is the number of files across all groups.
func (r Resolved) Total() int {
	n := 0
	for _, g := range r.Groups {
		n += len(g.Files)
	}
	return n
}

func (r Resolved) Empty() bool { return r.Total() == 0 }

// Resolve selects the catalog entries matching category within the
// inclusive [start, end] window. The window rule is checked before anything
// else; an empty result is not an error.
//
// A merged category matches its collapsed entries. A raw member category
// (yellow, green) matches entries by their source category.
func Resolve(cat tlc.Catalog, category tlc.Category, start, end *int64) (Resolved, error) {
	if !category.Valid() {
		return Resolved{}, fmt.Errorf("%w: unknown category %q", tlc.ErrInvalidRequest, category)
	}
	if err := tlc.CheckWindow(category, start, end); err != nil {
		return Resolved{}, err
	}

	res := Resolved{Category: category}
	index := map[tlc.TimeBucket]int{}
	for _, d := range cat {
		if d.Category != category && d.SourceCategory != category {
			continue
		}
		if !category.IsLookup() && !d.Bucket.Within(*start, *end) {
			continue
		}
		i, ok := index[d.Bucket]
		if !ok {
			i = len(res.Groups)
			index[d.Bucket] = i
			res.Groups = append(res.Groups, Group{Bucket: d.Bucket})
		}
		res.Groups[i].Files = append(res.Groups[i].Files, d)
	}
	return res, nil
}

// DerivedName is the base name of a group's output files: the first file's
// name, with its source category token replaced by the requested merged
// category. The lookup group is always tlc.LookupName.
func (g Group) DerivedName(requested tlc.Category) string {
	if len(g.Files) == 0 {
		return ""
	}
	first := g.Files[0]
	if requested.IsLookup() {
		return tlc.LookupName
	}
	if !requested.IsMerged() {
		return first.Name
	}
	prefix := string(first.SourceCategory)
	if !strings.HasPrefix(first.Name, prefix) {
		return first.Name
	}
	return string(requested) + strings.TrimPrefix(first.Name, prefix)
}
