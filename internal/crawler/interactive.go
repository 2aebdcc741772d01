package crawler

import (
	"context"
	"strings"
	"time"

	"github.com/PuerkitoBio/goquery"

	"sjsage522/jobworker/logger"
	scrapeerrors "sjsage522/jobworker/pkg/errors"
)

// InteractiveAdapter drives a rendered listing that appends results when a
// "load more" control is clicked. Every card stays in the DOM, so each batch is
// the cards beyond those already returned.
type InteractiveAdapter struct {
	BaseAdapter
	pages   PageProvider
	timeout time.Duration
	log     *logger.Logger

	page     Page
	consumed int
}

// NewInteractiveAdapter creates an adapter for an interactive source
func NewInteractiveAdapter(source SourceConfig, pages PageProvider, timeout time.Duration) *InteractiveAdapter {
	if timeout <= 0 {
		timeout = 10 * time.Second
	}
	return &InteractiveAdapter{
		BaseAdapter: BaseAdapter{Source: source},
		pages:       pages,
		timeout:     timeout,
		log:         logger.ForSource(source.Name),
	}
}

// Open loads the listing for keyword and waits for the first cards. A listing
// that shows its no-results block instead opens successfully and yields nothing.
func (a *InteractiveAdapter) Open(ctx context.Context, keyword string) error {
	if strings.TrimSpace(keyword) == "" {
		return scrapeerrors.NewValidation(a.Name(), "empty search keyword")
	}

	page, err := a.pages.NewPage(ctx)
	if err != nil {
		return scrapeerrors.NewNetwork(a.Name(), "failed to open page", err)
	}
	a.page = page
	a.consumed = 0

	listingURL := a.Source.ListingURL(keyword, a.Source.FirstPage)
	a.log.Debug().Str("url", listingURL).Msg("Opening listing")
	if err := page.Goto(ctx, listingURL); err != nil {
		return err
	}

	err = page.WaitForCount(ctx, a.Source.Selectors.Fragment, 0, a.timeout)
	if err == nil {
		return nil
	}
	if scrapeerrors.IsType(err, scrapeerrors.ErrorTypeTimeout) && a.Source.Selectors.NoResults != "" {
		if n, cerr := page.Count(ctx, a.Source.Selectors.NoResults); cerr == nil && n > 0 {
			a.log.Info().Str("keyword", keyword).Msg("Source reports no results")
			return nil
		}
	}
	return err
}

// Fragments returns the cards added since the previous call
func (a *InteractiveAdapter) Fragments(ctx context.Context) ([]*goquery.Selection, error) {
	if a.page == nil {
		return nil, scrapeerrors.NewValidation(a.Name(), "adapter not opened")
	}

	html, err := a.page.Content(ctx)
	if err != nil {
		return nil, err
	}
	doc, err := parseDocument(a.Name(), strings.NewReader(html))
	if err != nil {
		return nil, err
	}

	all := toSlice(doc.Find(a.Source.Selectors.Fragment))
	if len(all) <= a.consumed {
		return nil, nil
	}
	batch := all[a.consumed:]
	a.consumed = len(all)
	return batch, nil
}

// Next clicks the load-more control and waits until cards beyond the consumed
// ones appear. A missing or disabled control means the listing is exhausted.
func (a *InteractiveAdapter) Next(ctx context.Context) (bool, error) {
	if a.page == nil {
		return false, nil
	}
	control := a.Source.Selectors.NextControl
	if control == "" {
		return false, nil
	}

	ok, err := a.page.Actionable(ctx, control)
	if err != nil {
		return false, err
	}
	if !ok {
		return false, nil
	}

	if err := a.page.Click(ctx, control); err != nil {
		return false, err
	}
	if err := a.page.WaitForCount(ctx, a.Source.Selectors.Fragment, a.consumed, a.timeout); err != nil {
		return false, err
	}
	return true, nil
}

// Close releases the page
func (a *InteractiveAdapter) Close() error {
	if a.page == nil {
		return nil
	}
	err := a.page.Close()
	a.page = nil
	return err
}
