package helpers

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"io"
	mathrand "math/rand"
	"net"
	"net/http"
	"net/url"
	"slices"
	"time"

	scrapeerrors "sjsage522/jobworker/pkg/errors"
	"sjsage522/jobworker/services/cache"

	"golang.org/x/net/html/charset"
)

// HTTP client and header configurations
var (
	userAgents = []string{
		"Mozilla/5.0 (Windows NT 10.0; Win64; x64) AppleWebKit/537.36 (KHTML, like Gecko) Chrome/124.0.0.0 Safari/537.36",
		"Mozilla/5.0 (Macintosh; Intel Mac OS X 10_15_7) AppleWebKit/605.1.15 (KHTML, like Gecko) Version/17.4 Safari/605.1.15",
		"Mozilla/5.0 (X11; Linux x86_64; rv:125.0) Gecko/20100101 Firefox/125.0",
	}

	referers = []string{
		"https://www.google.com/",
		"https://www.bing.com/",
		"https://duckduckgo.com/",
	}
)

// FetcherOptions configures a Fetcher
type FetcherOptions struct {
	Timeout   time.Duration
	Limiter   *HostLimiter
	Cache     cache.CacheService
	BlockTime time.Duration
}

// Fetcher performs listing page requests with browser-like headers. A host that
// answered 429 is blocked in the cache for BlockTime.
type Fetcher struct {
	client    *http.Client
	limiter   *HostLimiter
	cache     cache.CacheService
	blockTime time.Duration
}

// NewFetcher creates a new fetcher
func NewFetcher(opts FetcherOptions) *Fetcher {
	if opts.Timeout <= 0 {
		opts.Timeout = 10 * time.Second
	}
	return &Fetcher{
		client:    &http.Client{Timeout: opts.Timeout},
		limiter:   opts.Limiter,
		cache:     opts.Cache,
		blockTime: opts.BlockTime,
	}
}

func blockKey(host string) string {
	return host + "_rate_limited"
}

// Fetch sends a GET request with randomized headers, converts the response body
// to UTF-8 (if needed), and returns it as an io.Reader. Failures are always
// *errors.ScrapeError values.
func (f *Fetcher) Fetch(ctx context.Context, rawURL string) (io.Reader, error) {
	host := rawURL
	if u, err := url.Parse(rawURL); err == nil && u.Host != "" {
		host = u.Host
	}

	// Check if the host is rate limited
	if f.cache != nil {
		if _, err := f.cache.Get(blockKey(host)); err == nil {
			return nil, scrapeerrors.NewRateLimit(host, f.blockTime)
		}
	}

	if f.limiter != nil {
		if err := f.limiter.WaitURL(ctx, rawURL); err != nil {
			return nil, scrapeerrors.NewNetwork(host, "rate limiter wait", err)
		}
	}

	rnd := mathrand.New(mathrand.NewSource(time.Now().UnixNano()))

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, rawURL, nil)
	if err != nil {
		return nil, scrapeerrors.NewNetwork(host, "failed to create request", err)
	}

	// Set browser-like headers
	req.Header.Set("User-Agent", userAgents[rnd.Intn(len(userAgents))])
	req.Header.Set("Accept", "text/html,application/xhtml+xml,application/xml;q=0.9,image/avif,image/webp,*/*;q=0.8")
	req.Header.Set("Accept-Language", "en-US,en;q=0.9,fr-FR;q=0.8,fr;q=0.7,ar;q=0.6")
	req.Header.Set("Cache-Control", "no-cache")
	req.Header.Set("Referer", referers[rnd.Intn(len(referers))])
	req.Header.Set("Pragma", "no-cache")
	req.Header.Set("Upgrade-Insecure-Requests", "1")

	resp, err := f.client.Do(req)
	if err != nil {
		if isTimeout(err) {
			return nil, scrapeerrors.NewTimeout(host, "request timed out", err)
		}
		return nil, scrapeerrors.NewNetwork(host, "failed to fetch URL", err)
	}
	defer resp.Body.Close()

	// Check for rate limiting
	if slices.Contains([]int{http.StatusTooManyRequests, 430}, resp.StatusCode) {
		if f.cache != nil && f.blockTime > 0 {
			_ = f.cache.Set(blockKey(host), []byte(resp.Header.Get("Retry-After")), f.blockTime)
		}
		return nil, scrapeerrors.NewRateLimit(host, f.blockTime)
	}

	if resp.StatusCode == http.StatusNotFound {
		return nil, scrapeerrors.NewNotFound(host, fmt.Sprintf("%s returned 404", rawURL))
	}

	if resp.StatusCode != http.StatusOK {
		return nil, scrapeerrors.NewNetwork(host, fmt.Sprintf("fetch %s unexpected status code: %d", rawURL, resp.StatusCode), nil)
	}

	bodyBytes, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, scrapeerrors.NewNetwork(host, "failed to read response body", err)
	}

	// Determine the encoding from Content-Type header and body content
	encoding, name, _ := charset.DetermineEncoding(bodyBytes, resp.Header.Get("Content-Type"))
	if name == "utf-8" || name == "UTF-8" {
		return bytes.NewReader(bodyBytes), nil
	}

	utf8Reader := encoding.NewDecoder().Reader(bytes.NewReader(bodyBytes))
	var buf bytes.Buffer
	if _, err := io.Copy(&buf, utf8Reader); err != nil {
		return nil, scrapeerrors.NewParsing(host, "failed to read converted UTF-8 body", err)
	}

	return &buf, nil
}

func isTimeout(err error) bool {
	if errors.Is(err, context.DeadlineExceeded) {
		return true
	}
	var netErr net.Error
	return errors.As(err, &netErr) && netErr.Timeout()
}
