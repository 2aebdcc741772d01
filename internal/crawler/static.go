package crawler

import (
	"bytes"
	"context"
	"io"
	"strings"

	"github.com/PuerkitoBio/goquery"

	"sjsage522/jobworker/logger"
	scrapeerrors "sjsage522/jobworker/pkg/errors"
)

// StaticAdapter paginates a server-rendered listing by incrementing an offset
// query parameter, one HTTP request per page
type StaticAdapter struct {
	BaseAdapter
	fetcher Fetcher
	log     *logger.Logger

	keyword string
	page    int
	last    *goquery.Document
}

// NewStaticAdapter creates an adapter for a static source
func NewStaticAdapter(source SourceConfig, fetcher Fetcher) *StaticAdapter {
	return &StaticAdapter{
		BaseAdapter: BaseAdapter{Source: source},
		fetcher:     fetcher,
		log:         logger.ForSource(source.Name),
	}
}

// Open resets the adapter to the first listing page for keyword
func (a *StaticAdapter) Open(ctx context.Context, keyword string) error {
	if strings.TrimSpace(keyword) == "" {
		return scrapeerrors.NewValidation(a.Name(), "empty search keyword")
	}
	a.keyword = keyword
	a.page = a.Source.FirstPage
	a.last = nil
	return ctx.Err()
}

// Fragments fetches the current page. A 404 or the source's no-results
// marker is an empty batch, which ends pagination.
func (a *StaticAdapter) Fragments(ctx context.Context) ([]*goquery.Selection, error) {
	pageURL := a.Source.ListingURL(a.keyword, a.page)
	a.log.Debug().Str("url", pageURL).Msg("Fetching listing page")

	reader, err := a.fetcher.Fetch(ctx, pageURL)
	if err != nil {
		if scrapeerrors.IsType(err, scrapeerrors.ErrorTypeNotFound) {
			a.last = nil
			return nil, nil
		}
		return nil, err
	}

	body, err := io.ReadAll(reader)
	if err != nil {
		return nil, scrapeerrors.NewNetwork(a.Name(), "failed to read listing", err)
	}
	if a.Source.NotFoundMarker != "" && bytes.Contains(body, []byte(a.Source.NotFoundMarker)) {
		a.last = nil
		return nil, nil
	}

	doc, err := parseDocument(a.Name(), bytes.NewReader(body))
	if err != nil {
		return nil, err
	}
	a.last = doc
	return toSlice(doc.Find(a.Source.Selectors.Fragment)), nil
}

// Next moves to the following offset. When the source declares a next control
// and the last page lacks it, there is nothing more to load.
func (a *StaticAdapter) Next(ctx context.Context) (bool, error) {
	if err := ctx.Err(); err != nil {
		return false, err
	}
	if a.last == nil {
		return false, nil
	}
	if sel := a.Source.Selectors.NextControl; sel != "" {
		next := a.last.Find(sel).First()
		if next.Length() == 0 || next.Is("[disabled], .disabled, [aria-disabled='true']") {
			return false, nil
		}
	}

	step := a.Source.PageStep
	if step == 0 {
		step = 1
	}
	a.page += step
	return true, nil
}

// Close releases the last parsed page
func (a *StaticAdapter) Close() error {
	a.last = nil
	return nil
}
