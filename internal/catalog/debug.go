package catalog

import (
	"bytes"
	"fmt"
	"io"
	"strings"

	"github.com/PuerkitoBio/goquery"
)

// DebugSelector prints the outer HTML (or trimmed text) of every match of
// selector in html, each followed by a blank line. tlc-catalog uses it to
// look at the listing page when the parse comes back empty.
func DebugSelector(w io.Writer, html []byte, selector string, textOnly bool) error {
	doc, err := goquery.NewDocumentFromReader(bytes.NewReader(html))
	if err != nil {
		return fmt.Errorf("parse html: %w", err)
	}

	var werr error
	doc.Find(selector).EachWithBreak(func(_ int, s *goquery.Selection) bool {
		var out string
		if textOnly {
			out = strings.TrimSpace(s.Text())
		} else if out, err = goquery.OuterHtml(s); err != nil {
			out, _ = s.Html()
		}
		_, werr = fmt.Fprintf(w, "%s\n\n", out)
		return werr == nil
	})
	return werr
}
