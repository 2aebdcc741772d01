package crawler

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/PuerkitoBio/goquery"

	scrapeerrors "sjsage522/jobworker/pkg/errors"
)

// fakeAdapter serves prepared batches. fetchErrs and nextErrs are consumed in
// order per page, one error per attempt.
type fakeAdapter struct {
	BaseAdapter
	batches   [][]*goquery.Selection
	fetchErrs map[int][]error
	nextErrs  map[int][]error
	stuck     bool

	page       int
	fetchCalls int
	nextCalls  int
	closed     bool
	opened     bool
	openErr    error
}

func newFakeAdapter(batches ...[]*goquery.Selection) *fakeAdapter {
	return &fakeAdapter{
		BaseAdapter: BaseAdapter{Source: SourceConfig{
			Name:      "Fake",
			BaseURL:   "https://jobs.example.com",
			Selectors: Selectors{Title: "h2", Link: "a"},
		}},
		batches:   batches,
		fetchErrs: map[int][]error{},
		nextErrs:  map[int][]error{},
	}
}

func (f *fakeAdapter) Open(ctx context.Context, keyword string) error {
	f.opened = true
	return f.openErr
}

func (f *fakeAdapter) Fragments(ctx context.Context) ([]*goquery.Selection, error) {
	f.fetchCalls++
	if errs := f.fetchErrs[f.page]; len(errs) > 0 {
		f.fetchErrs[f.page] = errs[1:]
		return nil, errs[0]
	}
	if f.page >= len(f.batches) {
		return nil, nil
	}
	return f.batches[f.page], nil
}

func (f *fakeAdapter) Next(ctx context.Context) (bool, error) {
	f.nextCalls++
	if errs := f.nextErrs[f.page]; len(errs) > 0 {
		f.nextErrs[f.page] = errs[1:]
		return false, errs[0]
	}
	if f.stuck {
		// the control is clicked but the listing never changes
		return true, nil
	}
	if f.page+1 >= len(f.batches) {
		return false, nil
	}
	f.page++
	return true, nil
}

func (f *fakeAdapter) Close() error {
	f.closed = true
	return nil
}

// jobBatch builds n job cards numbered from start
func jobBatch(start, n int) []*goquery.Selection {
	var b strings.Builder
	b.WriteString("<html><body>")
	for i := start; i < start+n; i++ {
		fmt.Fprintf(&b, `<div class="job"><h2>Security Analyst %d</h2><a href="/jobs/%d">view</a><span class="date">today</span></div>`, i, i)
	}
	b.WriteString("</body></html>")

	doc, err := goquery.NewDocumentFromReader(strings.NewReader(b.String()))
	if err != nil {
		panic(err)
	}
	return toSlice(doc.Find("div.job"))
}

// fakePage is an in-memory Page whose next control appends a prepared batch
type fakePage struct {
	batches  []string
	shown    int
	timeouts map[int]int // clicks on page index that time out
	noResult bool

	gotoURL string
	clicks  int
	closed  bool
}

func (p *fakePage) Goto(ctx context.Context, url string) error {
	p.gotoURL = url
	if len(p.batches) > 0 {
		p.shown = 1
	}
	return nil
}

func (p *fakePage) Content(ctx context.Context) (string, error) {
	var b strings.Builder
	b.WriteString("<html><body><ul>")
	for i := 0; i < p.shown; i++ {
		b.WriteString(p.batches[i])
	}
	b.WriteString("</ul>")
	if p.noResult {
		b.WriteString(`<div class="no-result">Aucune offre</div>`)
	}
	b.WriteString("</body></html>")
	return b.String(), nil
}

func (p *fakePage) Count(ctx context.Context, selector string) (int, error) {
	html, _ := p.Content(ctx)
	doc, err := goquery.NewDocumentFromReader(strings.NewReader(html))
	if err != nil {
		return 0, err
	}
	return doc.Find(selector).Length(), nil
}

func (p *fakePage) Actionable(ctx context.Context, selector string) (bool, error) {
	return p.shown > 0 && p.shown < len(p.batches), nil
}

func (p *fakePage) Click(ctx context.Context, selector string) error {
	p.clicks++
	if n := p.timeouts[p.shown]; n > 0 {
		p.timeouts[p.shown] = n - 1
		return nil
	}
	p.shown++
	return nil
}

func (p *fakePage) WaitForCount(ctx context.Context, selector string, above int, timeout time.Duration) error {
	n, err := p.Count(ctx, selector)
	if err != nil {
		return err
	}
	if n > above {
		return nil
	}
	return errTimeout(selector)
}

func (p *fakePage) Close() error {
	p.closed = true
	return nil
}

type fakePages struct {
	page *fakePage
	err  error
}

func (f *fakePages) NewPage(ctx context.Context) (Page, error) {
	if f.err != nil {
		return nil, f.err
	}
	return f.page, nil
}

// cardBatch renders n France Travail style cards numbered from start
func cardBatch(start, n int) string {
	var b strings.Builder
	for i := start; i < start+n; i++ {
		fmt.Fprintf(&b, `<li class="result"><a class="media with-fav" href="/offres/recherche/detail/%03dABC"><span class="media-heading-title">Offre %d</span><p class="subtext">Company %d - <span>75 - Paris</span></p><p class="date">hier</p></a></li>`, i, i, i)
	}
	return b.String()
}

func errTimeout(selector string) error {
	return scrapeerrors.NewTimeout("browser", "waiting for "+selector+" timed out", nil)
}
