package crawler

import (
	"context"
	"io"
	"time"

	"github.com/PuerkitoBio/goquery"
)

// Sentinel values for fields present on the page but not extractable
const (
	Sentinel    = "—"
	SentinelURL = "#"
)

// JobRecord represents one scraped job posting
type JobRecord struct {
	ID         int64      `json:"id,omitempty"`
	Source     string     `json:"source"`
	Title      string     `json:"title"`
	Company    string     `json:"company"`
	Location   string     `json:"location"`
	DatePosted *time.Time `json:"date_posted,omitempty"`
	URL        string     `json:"url"`
	ScrapedAt  time.Time  `json:"scraped_at,omitempty"`
}

// Strategy selects how a source is paginated
type Strategy string

const (
	// StrategyStatic issues one HTTP request per page with an offset parameter
	StrategyStatic Strategy = "static"
	// StrategyInteractive drives a rendered page through a "load more" control
	StrategyInteractive Strategy = "interactive"
)

// Selectors contains CSS selectors for the elements of one listing fragment
type Selectors struct {
	Fragment        string `yaml:"fragment"`
	Title           string `yaml:"title"`
	Link            string `yaml:"link"`
	Company         string `yaml:"company"`
	Location        string `yaml:"location"`
	CompanyLocation string `yaml:"company_location"`
	Delimiter       string `yaml:"delimiter"`
	LocationStrip   string `yaml:"location_strip"`
	Date            string `yaml:"date"`
	NextControl     string `yaml:"next_control"`
	NoResults       string `yaml:"no_results"`
}

// CompanyLocationFunc extracts company and location from a fragment when a source
// needs more than a selector. Empty strings become sentinels.
type CompanyLocationFunc func(s *goquery.Selection, sel Selectors) (company, location string)

// SourceConfig describes one job board. DropParams lists per-listing query
// parameters that do not identify a posting; CompanyLocation, when set, replaces
// the selector based company/location extraction.
type SourceConfig struct {
	Key             string
	Name            string
	Strategy        Strategy
	BaseURL         string
	SearchURL       string
	KeywordParam    string
	PageParam       string
	FirstPage       int
	PageStep        int
	ExtraParams     map[string]string
	NotFoundMarker  string
	DropParams      []string
	Selectors       Selectors
	CompanyLocation CompanyLocationFunc
}

// Adapter is one job board's view of a run: it opens the listing, enumerates the
// fragments currently visible and advances to the next batch. An adapter serves a
// single run and is released with Close.
type Adapter interface {
	// Name returns the source name stored with every record
	Name() string

	// Config returns the source configuration, selectors included
	Config() SourceConfig

	// Open prepares the first listing view for keyword
	Open(ctx context.Context, keyword string) error

	// Fragments returns the fragments of the current batch not yet returned
	Fragments(ctx context.Context) ([]*goquery.Selection, error)

	// Next advances to the next batch; false means there is nothing more to load
	Next(ctx context.Context) (bool, error)

	// ResolveURL makes a source-relative href absolute
	ResolveURL(href string) string

	// Close releases the listing view
	Close() error
}

// Fetcher retrieves a listing page over HTTP
type Fetcher interface {
	Fetch(ctx context.Context, url string) (io.Reader, error)
}

// Page is a live rendered view driven by the interactive strategy
type Page interface {
	Goto(ctx context.Context, url string) error
	Content(ctx context.Context) (string, error)
	Count(ctx context.Context, selector string) (int, error)
	// Actionable reports whether the first match is visible and enabled
	Actionable(ctx context.Context, selector string) (bool, error)
	Click(ctx context.Context, selector string) error
	// WaitForCount blocks until more than above elements match selector
	WaitForCount(ctx context.Context, selector string, above int, timeout time.Duration) error
	Close() error
}

// PageProvider opens fresh pages for interactive runs
type PageProvider interface {
	NewPage(ctx context.Context) (Page, error)
}
