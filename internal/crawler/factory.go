package crawler

import (
	"fmt"
	"net/url"
	"os"
	"strings"
	"time"

	"github.com/PuerkitoBio/goquery"
	"gopkg.in/yaml.v3"

	"sjsage522/jobworker/config"
	"sjsage522/jobworker/helpers"
)

// DefaultSources returns the configuration of every supported job board,
// keyed by source identifier
func DefaultSources(cfg *config.Config) map[string]SourceConfig {
	return map[string]SourceConfig{
		config.SourceWuzzuf: {
			// Wuzzuf serves full pages with a zero based "start" page index
			Key:            config.SourceWuzzuf,
			Name:           "Wuzzuf",
			Strategy:       StrategyStatic,
			BaseURL:        origin(cfg.WuzzufURL),
			SearchURL:      cfg.WuzzufURL,
			KeywordParam:   "q",
			PageParam:      "start",
			FirstPage:      0,
			PageStep:       1,
			NotFoundMarker: "Search results not found",
			DropParams:     []string{"o", "l", "t", "a"},
			Selectors: Selectors{
				Fragment: "div.css-1gatmva, div.css-pkv5jc",
				Title:    "h2.css-193uk2c",
				Link:     "h2.css-193uk2c a",
				Company:  "a.css-ipsyv7",
				Location: "span.css-16x61xq",
				Date:     "div.css-eg55jf, div.css-1jldrig, div.css-4c4ojb, div.css-do6t5g",
			},
		},
		config.SourceFranceTravail: {
			// France Travail renders 20 offers and appends 20 more per click
			Key:          config.SourceFranceTravail,
			Name:         "FranceTravail",
			Strategy:     StrategyInteractive,
			BaseURL:      origin(cfg.FranceTravailURL),
			SearchURL:    cfg.FranceTravailURL,
			KeywordParam: "motsCles",
			ExtraParams: map[string]string{
				"offresPartenaires": "true",
				"tri":               "0",
			},
			Selectors: Selectors{
				Fragment:        "li.result",
				Title:           "span.media-heading-title",
				Link:            "a.media.with-fav",
				CompanyLocation: "p.subtext",
				Delimiter:       " - ",
				LocationStrip:   `^\d+\s*-*\s*`,
				Date:            "p.date",
				NextControl:     `a:has-text("Afficher les 20 offres suivantes")`,
				NoResults:       "#zoneAfficherListeOffres .no-result, div.no-result",
			},
			CompanyLocation: subtextCompanyLocation,
		},
	}
}

// subtextCompanyLocation reads "<p>ACME - <span>95 - Éragny</span></p>": the
// last span holds the location and the text before it the company. Without a
// span the text is split on the delimiter.
func subtextCompanyLocation(s *goquery.Selection, sel Selectors) (string, string) {
	subtext := s.Find(sel.CompanyLocation).First()
	if subtext.Length() == 0 {
		return "", ""
	}

	full := helpers.CleanText(subtext.Text())
	spans := subtext.Find("span")
	if spans.Length() == 0 {
		return SplitCompanyLocation(full, sel.Delimiter)
	}

	location := helpers.CleanText(spans.Last().Text())
	company := helpers.TrimDecorations(strings.Replace(full, location, "", 1))
	return company, location
}

// Dependencies are the shared services adapters are built on
type Dependencies struct {
	Fetcher     Fetcher
	Pages       PageProvider
	PageTimeout time.Duration
}

// NewAdapter creates a fresh adapter for one run of source
func NewAdapter(source SourceConfig, deps Dependencies) (Adapter, error) {
	switch source.Strategy {
	case StrategyStatic:
		if deps.Fetcher == nil {
			return nil, fmt.Errorf("source %s needs an HTTP fetcher", source.Key)
		}
		return NewStaticAdapter(source, deps.Fetcher), nil
	case StrategyInteractive:
		if deps.Pages == nil {
			return nil, fmt.Errorf("source %s needs a browser", source.Key)
		}
		return NewInteractiveAdapter(source, deps.Pages, deps.PageTimeout), nil
	default:
		return nil, fmt.Errorf("source %s has unknown strategy %q", source.Key, source.Strategy)
	}
}

// LoadSelectorOverrides reads a YAML document keyed by source identifier and
// replaces the non-empty selectors it sets:
//
//	wuzzuf:
//	  fragment: div.new-card
//	  title: h2 a
func LoadSelectorOverrides(path string, sources map[string]SourceConfig) error {
	data, err := os.ReadFile(path)
	if err != nil {
		return fmt.Errorf("failed to read selectors file: %w", err)
	}

	var overrides map[string]Selectors
	if err := yaml.Unmarshal(data, &overrides); err != nil {
		return fmt.Errorf("failed to parse selectors file: %w", err)
	}

	for key, o := range overrides {
		sc, ok := sources[key]
		if !ok {
			return fmt.Errorf("selectors file names unknown source %q", key)
		}
		sc.Selectors = mergeSelectors(sc.Selectors, o)
		sources[key] = sc
	}
	return nil
}

func mergeSelectors(base, o Selectors) Selectors {
	pick := func(dst *string, v string) {
		if v != "" {
			*dst = v
		}
	}
	pick(&base.Fragment, o.Fragment)
	pick(&base.Title, o.Title)
	pick(&base.Link, o.Link)
	pick(&base.Company, o.Company)
	pick(&base.Location, o.Location)
	pick(&base.CompanyLocation, o.CompanyLocation)
	pick(&base.Delimiter, o.Delimiter)
	pick(&base.LocationStrip, o.LocationStrip)
	pick(&base.Date, o.Date)
	pick(&base.NextControl, o.NextControl)
	pick(&base.NoResults, o.NoResults)
	return base
}

// origin returns scheme://host of raw
func origin(raw string) string {
	u, err := url.Parse(raw)
	if err != nil || u.Host == "" {
		return raw
	}
	return u.Scheme + "://" + u.Host
}
