// Package catalog discovers the trip-record files published on the listing
// page and resolves which of them a request covers.
package catalog

import (
	"bytes"
	"context"
	"fmt"
	"net/url"
	"path"
	"strings"

	"tlcetl/internal/tlc"

	"github.com/PuerkitoBio/goquery"
)

// Getter is the retrieval the fetcher needs; *source.Client implements it.
type Getter interface {
	Get(ctx context.Context, url string) ([]byte, error)
}

// Fetcher builds a Catalog from the listing page.
type Fetcher struct {
	getter     Getter
	listingURL string
	lookupURL  string

	// OnSkip, if set, is told about every table link that does not name a
	// categorized monthly file.
	OnSkip func(href, reason string)
}

// NewFetcher creates a Fetcher. An empty lookupURL selects tlc.DefaultLookupURL.
func NewFetcher(g Getter, listingURL, lookupURL string) *Fetcher {
	return &Fetcher{getter: g, listingURL: listingURL, lookupURL: lookupURL}
}

// Fetch retrieves and parses the listing page once. Retrieval failures are
// tlc.ErrRetrieval, markup without any table is tlc.ErrParse.
func (f *Fetcher) Fetch(ctx context.Context) (tlc.Catalog, error) {
	body, err := f.getter.Get(ctx, f.listingURL)
	if err != nil {
		return nil, fmt.Errorf("fetch catalog: %w", err)
	}
	return f.Parse(body)
}

// Parse turns listing markup into a Catalog. Relative links are resolved
// against the listing URL. The lookup entry is always appended last.
func (f *Fetcher) Parse(html []byte) (tlc.Catalog, error) {
	doc, err := goquery.NewDocumentFromReader(bytes.NewReader(html))
	if err != nil {
		return nil, fmt.Errorf("%w: parse listing html: %v", tlc.ErrParse, err)
	}

	tables := doc.Find("table")
	if tables.Length() == 0 {
		return nil, fmt.Errorf("%w: no tables found on listing page", tlc.ErrParse)
	}

	base, _ := url.Parse(f.listingURL)

	var out tlc.Catalog
	seen := map[string]bool{}
	tables.Find("a[href]").Each(func(_ int, a *goquery.Selection) {
		href, _ := a.Attr("href")
		href = strings.TrimSpace(href)
		if href == "" {
			return
		}
		d, reason := describe(href, base)
		if reason != "" {
			f.skip(href, reason)
			return
		}
		if seen[d.Link] {
			return
		}
		seen[d.Link] = true
		out = append(out, d)
	})

	out = append(out, tlc.LookupDescriptor(f.lookupURL))
	return out, nil
}

func (f *Fetcher) skip(href, reason string) {
	if f.OnSkip != nil {
		f.OnSkip(href, reason)
	}
}

// describe derives a descriptor from one link. A non-empty reason means the
// link is not a monthly trip-record file.
func describe(href string, base *url.URL) (tlc.FileDescriptor, string) {
	u, err := url.Parse(href)
	if err != nil {
		return tlc.FileDescriptor{}, "malformed link"
	}
	if base != nil {
		u = base.ResolveReference(u)
	}

	file := path.Base(u.Path)
	if unescaped, err := url.PathUnescape(file); err == nil {
		file = unescaped
	}
	ext := path.Ext(file)
	name := strings.TrimSuffix(file, ext)

	first := strings.Index(name, "_")
	last := strings.LastIndex(name, "_")
	if first <= 0 || last == len(name)-1 {
		return tlc.FileDescriptor{}, "name has no category_..._month shape"
	}

	raw := tlc.Category(name[:first])
	if !raw.Valid() || raw.IsLookup() || raw.IsMerged() {
		return tlc.FileDescriptor{}, fmt.Sprintf("unknown category %q", raw)
	}
	bucket, err := tlc.ParseMonthBucket(name[last+1:])
	if err != nil {
		return tlc.FileDescriptor{}, fmt.Sprintf("month %q is not YYYY-MM", name[last+1:])
	}

	return tlc.FileDescriptor{
		Name:           name,
		Extension:      ext,
		Category:       raw.Collapse(),
		SourceCategory: raw,
		Bucket:         bucket,
		Link:           u.String(),
	}, ""
}
