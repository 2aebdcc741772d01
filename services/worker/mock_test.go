package worker

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"sync"

	"github.com/PuerkitoBio/goquery"

	"sjsage522/jobworker/internal/crawler"
	scrapeerrors "sjsage522/jobworker/pkg/errors"
	"sjsage522/jobworker/services/publisher"
)

var testSource = crawler.SourceConfig{
	Key:     "board",
	Name:    "Board",
	BaseURL: "https://jobs.example.com",
	Selectors: crawler.Selectors{
		Fragment:        "div.job",
		Title:           "h2",
		Link:            "h2 a",
		CompanyLocation: "p.meta",
		Delimiter:       " - ",
		Date:            "span.date",
	},
}

// MockAdapter serves pages of job cards. failAdvance makes every advance from
// that page index time out.
type MockAdapter struct {
	crawler.BaseAdapter
	pages       []string
	failAdvance int
	openErr     error

	page     int
	closed   bool
	resolved int
}

// Ensure MockAdapter implements crawler.Adapter
var _ crawler.Adapter = (*MockAdapter)(nil)

func NewMockAdapter(pages ...string) *MockAdapter {
	return &MockAdapter{
		BaseAdapter: crawler.BaseAdapter{Source: testSource},
		pages:       pages,
		failAdvance: -1,
	}
}

func (m *MockAdapter) Open(ctx context.Context, keyword string) error {
	return m.openErr
}

func (m *MockAdapter) Fragments(ctx context.Context) ([]*goquery.Selection, error) {
	if m.page >= len(m.pages) {
		return nil, nil
	}
	doc, err := goquery.NewDocumentFromReader(strings.NewReader(m.pages[m.page]))
	if err != nil {
		return nil, err
	}
	var out []*goquery.Selection
	doc.Find(testSource.Selectors.Fragment).Each(func(_ int, s *goquery.Selection) {
		out = append(out, s)
	})
	return out, nil
}

func (m *MockAdapter) Next(ctx context.Context) (bool, error) {
	if m.page == m.failAdvance {
		return false, scrapeerrors.NewTimeout(m.Name(), "waiting for div.job timed out", nil)
	}
	if m.page+1 >= len(m.pages) {
		return false, nil
	}
	m.page++
	return true, nil
}

func (m *MockAdapter) ResolveURL(href string) string {
	m.resolved++
	return m.BaseAdapter.ResolveURL(href)
}

func (m *MockAdapter) Close() error {
	m.closed = true
	return nil
}

// page renders n cards numbered from start
func page(start, n int) string {
	var b strings.Builder
	b.WriteString("<html><body>")
	for i := start; i < start+n; i++ {
		fmt.Fprintf(&b, `<div class="job"><h2><a href="/offer/%d?utm_source=feed">Security Analyst %d</a></h2><p class="meta">Company %d - Algiers</p><span class="date">il y a %d</span></div>`, i, i, i%4, i%3)
	}
	b.WriteString("</body></html>")
	return b.String()
}

// MockPublisher records published jobs
type MockPublisher struct {
	mu        sync.Mutex
	published []crawler.JobRecord
	trims     int
	fail      bool
}

// Ensure MockPublisher implements publisher.Publisher
var _ publisher.Publisher = (*MockPublisher)(nil)

func (m *MockPublisher) Publish(ctx context.Context, rec crawler.JobRecord) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.fail {
		return errors.New("redis unavailable")
	}
	m.published = append(m.published, rec)
	return nil
}

func (m *MockPublisher) TrimStreams(ctx context.Context) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.trims++
	return nil
}

func (m *MockPublisher) Close() error {
	return nil
}

// failingStore fails every insert
type failingStore struct{}

func (failingStore) EnsureSchema(ctx context.Context) error { return nil }

func (failingStore) Insert(ctx context.Context, rec *crawler.JobRecord) (bool, error) {
	return false, scrapeerrors.NewStorage("insert job", errors.New("disk full"))
}
