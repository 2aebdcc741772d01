package crawler

import (
	"net/url"
	"regexp"
	"strings"
	"time"

	"github.com/PuerkitoBio/goquery"

	"sjsage522/jobworker/helpers"
	"sjsage522/jobworker/logger"
)

// Extractor turns listing fragments of one source into JobRecords
type Extractor struct {
	source        SourceConfig
	dates         DateNormalizer
	locationStrip *regexp.Regexp
	resolve       func(href string) string
	now           func() time.Time
	log           *logger.Logger
}

// NewExtractor creates an extractor for the given source
func NewExtractor(source SourceConfig, dates DateNormalizer) *Extractor {
	e := &Extractor{
		source: source,
		dates:  dates,
		now:    time.Now,
		log:    logger.ForSource(source.Name),
	}
	e.resolve = func(href string) string {
		return ResolveURL(source.BaseURL, href)
	}
	if source.Selectors.LocationStrip != "" {
		re, err := regexp.Compile(source.Selectors.LocationStrip)
		if err != nil {
			e.log.Warn().Err(err).Str("pattern", source.Selectors.LocationStrip).Msg("Ignoring invalid location pattern")
		} else {
			e.locationStrip = re
		}
	}
	return e
}

// WithClock overrides the reference time used for relative dates
func (e *Extractor) WithClock(now func() time.Time) *Extractor {
	e.now = now
	return e
}

// WithResolver sets how relative hrefs are made absolute, usually the
// adapter's ResolveURL
func (e *Extractor) WithResolver(resolve func(href string) string) *Extractor {
	if resolve != nil {
		e.resolve = resolve
	}
	return e
}

// Extract builds a record from one fragment. Fields that cannot be read
// become sentinels; Extract itself never fails.
func (e *Extractor) Extract(s *goquery.Selection) JobRecord {
	sel := e.source.Selectors

	rec := JobRecord{Source: e.source.Name}

	rec.Title = orSentinel(guard(func() string {
		return e.title(s)
	}))

	var company, location string
	guard(func() string {
		company, location = e.companyLocation(s)
		return ""
	})
	rec.Company = orSentinel(company)
	rec.Location = orSentinel(e.cleanLocation(location))

	rec.URL = guard(func() string {
		return e.link(s)
	})
	if rec.URL == "" {
		rec.URL = SentinelURL
	}

	if sel.Date != "" {
		raw := guard(func() string {
			return helpers.CleanText(s.Find(sel.Date).First().Text())
		})
		if raw != "" {
			rec.DatePosted = e.dates.Normalize(raw, e.now())
		}
	}

	return rec
}

func (e *Extractor) title(s *goquery.Selection) string {
	if e.source.Selectors.Title == "" {
		return ""
	}
	titleSel := s.Find(e.source.Selectors.Title).First()
	if titleSel.Length() == 0 {
		return ""
	}
	if title := helpers.CleanText(titleSel.Text()); title != "" {
		return title
	}
	if attr, ok := titleSel.Attr("title"); ok {
		return helpers.CleanText(attr)
	}
	return ""
}

func (e *Extractor) companyLocation(s *goquery.Selection) (string, string) {
	sel := e.source.Selectors
	if e.source.CompanyLocation != nil {
		return e.source.CompanyLocation(s, sel)
	}

	var company, location string
	if sel.CompanyLocation != "" {
		composite := helpers.CleanText(s.Find(sel.CompanyLocation).First().Text())
		company, location = SplitCompanyLocation(composite, sel.Delimiter)
	}
	if sel.Company != "" {
		if c := helpers.TrimDecorations(s.Find(sel.Company).First().Text()); c != "" {
			company = c
		}
	}
	if sel.Location != "" {
		if l := helpers.TrimDecorations(s.Find(sel.Location).First().Text()); l != "" {
			location = l
		}
	}
	return company, location
}

func (e *Extractor) cleanLocation(location string) string {
	if e.locationStrip == nil || location == "" {
		return location
	}
	return helpers.TrimDecorations(e.locationStrip.ReplaceAllString(location, ""))
}

func (e *Extractor) link(s *goquery.Selection) string {
	selector := e.source.Selectors.Link
	if selector == "" {
		selector = e.source.Selectors.Title
	}

	linkSel := s.Find(selector).First()
	if linkSel.Length() > 0 && !linkSel.Is("a") {
		linkSel = linkSel.Find("a[href]").First()
	}
	href, ok := linkSel.Attr("href")
	if !ok || strings.TrimSpace(href) == "" {
		return ""
	}
	abs := e.resolve(href)
	if !isWebURL(abs) {
		// javascript:, mailto: and unresolved paths do not identify a posting
		return ""
	}
	return CanonicalURL(abs, e.source.DropParams...)
}

func isWebURL(raw string) bool {
	u, err := url.Parse(strings.TrimSpace(raw))
	if err != nil || u.Host == "" {
		return false
	}
	scheme := strings.ToLower(u.Scheme)
	return scheme == "http" || scheme == "https"
}

// SplitCompanyLocation splits "Company - City" on the first delimiter. The
// remainder after the first delimiter is the location, so "A - B - C" gives
// company "A" and location "B - C". Text without the delimiter is all company.
func SplitCompanyLocation(text, delimiter string) (company, location string) {
	text = helpers.CleanText(text)
	if delimiter == "" {
		delimiter = " - "
	}

	before, after, found := strings.Cut(text, delimiter)
	if !found {
		return helpers.TrimDecorations(text), ""
	}
	return helpers.TrimDecorations(before), helpers.TrimDecorations(after)
}

// guard runs fn and converts a panic inside selector handling into an empty value
func guard(fn func() string) (out string) {
	defer func() {
		if r := recover(); r != nil {
			out = ""
		}
	}()
	return fn()
}

func orSentinel(s string) string {
	if strings.TrimSpace(s) == "" {
		return Sentinel
	}
	return s
}
