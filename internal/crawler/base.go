package crawler

import (
	"io"
	"net/url"
	"strconv"
	"strings"

	"github.com/PuerkitoBio/goquery"

	scrapeerrors "sjsage522/jobworker/pkg/errors"
)

// trackingParams are query parameters that never change which posting a URL points at
var trackingParams = map[string]bool{
	"utm_source":   true,
	"utm_medium":   true,
	"utm_campaign": true,
	"utm_term":     true,
	"utm_content":  true,
	"gclid":        true,
	"fbclid":       true,
	"ref":          true,
}

// BaseAdapter provides common functionality for all adapters
type BaseAdapter struct {
	Source SourceConfig
}

// Name returns the source name
func (b *BaseAdapter) Name() string {
	return b.Source.Name
}

// Config returns the source configuration
func (b *BaseAdapter) Config() SourceConfig {
	return b.Source
}

// ResolveURL makes href absolute against the source base URL
func (b *BaseAdapter) ResolveURL(href string) string {
	return ResolveURL(b.Source.BaseURL, href)
}

// ListingURL builds the listing URL for keyword at the given page offset
func (sc SourceConfig) ListingURL(keyword string, page int) string {
	u, err := url.Parse(sc.SearchURL)
	if err != nil {
		return sc.SearchURL
	}

	q := u.Query()
	if sc.KeywordParam != "" {
		q.Set(sc.KeywordParam, keyword)
	}
	for k, v := range sc.ExtraParams {
		q.Set(k, v)
	}
	if sc.PageParam != "" {
		q.Set(sc.PageParam, strconv.Itoa(page))
	}
	u.RawQuery = q.Encode()
	return u.String()
}

// ResolveURL makes href absolute against base. Absolute hrefs are returned
// unchanged and unparsable input is returned as given.
func ResolveURL(base, href string) string {
	href = strings.TrimSpace(href)
	if href == "" {
		return ""
	}

	ref, err := url.Parse(href)
	if err != nil {
		return href
	}
	if ref.IsAbs() {
		return href
	}

	b, err := url.Parse(base)
	if err != nil || b.Host == "" {
		return href
	}
	return b.ResolveReference(ref).String()
}

// CanonicalURL normalizes an absolute URL so that the same posting reached by
// different links maps to the same key: scheme and host are lowercased, the
// fragment and tracking parameters (plus any listed in drop) are removed and
// the query is sorted.
func CanonicalURL(raw string, drop ...string) string {
	u, err := url.Parse(strings.TrimSpace(raw))
	if err != nil || !u.IsAbs() {
		return raw
	}

	u.Scheme = strings.ToLower(u.Scheme)
	u.Host = strings.ToLower(u.Host)
	u.Fragment = ""
	u.RawFragment = ""

	q := u.Query()
	for k := range q {
		if trackingParams[strings.ToLower(k)] {
			q.Del(k)
		}
	}
	for _, k := range drop {
		q.Del(k)
	}
	// Encode sorts by key
	u.RawQuery = q.Encode()

	if u.Path == "/" && u.RawQuery == "" {
		u.Path = ""
	}
	return u.String()
}

// parseDocument turns a fetched body into a goquery document
func parseDocument(source string, r io.Reader) (*goquery.Document, error) {
	doc, err := goquery.NewDocumentFromReader(r)
	if err != nil {
		return nil, scrapeerrors.NewParsing(source, "failed to parse listing", err)
	}
	return doc, nil
}

// toSlice splits a selection into single node selections
func toSlice(sel *goquery.Selection) []*goquery.Selection {
	out := make([]*goquery.Selection, 0, sel.Length())
	sel.Each(func(_ int, s *goquery.Selection) {
		out = append(out, s)
	})
	return out
}
