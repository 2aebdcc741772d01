package config

import (
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"

	scrapeerrors "sjsage522/jobworker/pkg/errors"
)

// Known source identifiers
const (
	SourceWuzzuf        = "wuzzuf"
	SourceFranceTravail = "francetravail"
)

// Date fallback policies for unparseable posting dates
const (
	DateFallbackToday = "today"
	DateFallbackNull  = "null"
)

// Config represents the application configuration
type Config struct {
	// Store configuration
	StorePath string

	// Run configuration
	Keyword       string
	Sources       []string
	CrawlInterval time.Duration
	MaxPages      int
	PageTimeout   time.Duration
	RetryBackoff  time.Duration
	DateFallback  string
	SelectorsFile string

	// HTTP politeness
	RequestsPerSecond float64
	RateLimitBlock    time.Duration

	// Browser configuration
	BrowserHeadless bool

	// Memcache configuration
	MemcacheAddr string

	// Redis configuration
	RedisAddr            string
	RedisDB              int
	RedisStream          string
	RedisStreamCount     int
	RedisStreamMaxLength int

	// URLs for the job boards
	WuzzufURL        string
	FranceTravailURL string

	// Environment
	Environment string
}

// LoadConfig loads the configuration from environment variables with defaults
func LoadConfig() *Config {
	redisDB, _ := strconv.Atoi(getEnv("REDIS_DB", "0"))
	redisStreamCount, _ := strconv.Atoi(getEnv("REDIS_STREAM_COUNT", "1"))
	redisStreamMaxLength, _ := strconv.Atoi(getEnv("REDIS_STREAM_MAX_LENGTH", "1000"))
	crawlInterval, _ := strconv.Atoi(getEnv("CRAWL_INTERVAL_SECONDS", "0"))
	maxPages, _ := strconv.Atoi(getEnv("MAX_PAGES", "0"))
	pageTimeout, _ := strconv.Atoi(getEnv("PAGE_TIMEOUT_SECONDS", "10"))
	retryBackoff, _ := strconv.Atoi(getEnv("RETRY_BACKOFF_MS", "2000"))
	rateLimitBlock, _ := strconv.Atoi(getEnv("RATE_LIMIT_BLOCK_SECONDS", "300"))
	rps, _ := strconv.ParseFloat(getEnv("REQUESTS_PER_SECOND", "1"), 64)
	headless, _ := strconv.ParseBool(getEnv("BROWSER_HEADLESS", "true"))

	return &Config{
		StorePath:            getEnv("STORE_PATH", "jobs.db"),
		Keyword:              getEnv("SEARCH_KEYWORD", "cyber security"),
		Sources:              splitList(getEnv("SOURCES", SourceWuzzuf+","+SourceFranceTravail)),
		CrawlInterval:        time.Duration(crawlInterval) * time.Second,
		MaxPages:             maxPages,
		PageTimeout:          time.Duration(pageTimeout) * time.Second,
		RetryBackoff:         time.Duration(retryBackoff) * time.Millisecond,
		DateFallback:         strings.ToLower(getEnv("DATE_FALLBACK", DateFallbackToday)),
		SelectorsFile:        getEnv("SELECTORS_FILE", ""),
		RequestsPerSecond:    rps,
		RateLimitBlock:       time.Duration(rateLimitBlock) * time.Second,
		BrowserHeadless:      headless,
		MemcacheAddr:         getEnv("MEMCACHE_ADDR", ""),
		RedisAddr:            getEnv("REDIS_ADDR", ""),
		RedisDB:              redisDB,
		RedisStream:          getEnv("REDIS_STREAM", "jobs"),
		RedisStreamCount:     redisStreamCount,
		RedisStreamMaxLength: redisStreamMaxLength,
		WuzzufURL:            getEnv("WUZZUF_URL", "https://wuzzuf.net/search/jobs"),
		FranceTravailURL:     getEnv("FRANCETRAVAIL_URL", "https://candidat.francetravail.fr/offres/recherche"),
		Environment:          getEnv("JOBS_ENVIRONMENT", "development"),
	}
}

// Validate checks the configuration for values a run cannot work with
func (c *Config) Validate() error {
	if strings.TrimSpace(c.StorePath) == "" {
		return invalid("STORE_PATH must not be empty")
	}
	if strings.TrimSpace(c.Keyword) == "" {
		return invalid("SEARCH_KEYWORD must not be empty")
	}
	if len(c.Sources) == 0 {
		return invalid("SOURCES must name at least one source")
	}
	for _, s := range c.Sources {
		if s != SourceWuzzuf && s != SourceFranceTravail {
			return invalid("unknown source %q", s)
		}
	}
	if c.PageTimeout <= 0 {
		return invalid("PAGE_TIMEOUT_SECONDS must be > 0")
	}
	if c.RetryBackoff < 0 {
		return invalid("RETRY_BACKOFF_MS must be >= 0")
	}
	if c.MaxPages < 0 {
		return invalid("MAX_PAGES must be >= 0")
	}
	if c.RequestsPerSecond <= 0 {
		return invalid("REQUESTS_PER_SECOND must be > 0")
	}
	if c.DateFallback != DateFallbackToday && c.DateFallback != DateFallbackNull {
		return invalid("DATE_FALLBACK must be %q or %q", DateFallbackToday, DateFallbackNull)
	}
	if c.RedisAddr != "" && c.RedisStreamCount <= 0 {
		return invalid("REDIS_STREAM_COUNT must be > 0")
	}
	return nil
}

func invalid(format string, args ...interface{}) error {
	return scrapeerrors.NewConfiguration(fmt.Sprintf(format, args...), nil)
}

// getEnv retrieves an environment variable or returns a default value
func getEnv(key, defaultValue string) string {
	value := os.Getenv(key)
	if value == "" {
		return defaultValue
	}
	return value
}

func splitList(s string) []string {
	var out []string
	for _, part := range strings.Split(s, ",") {
		part = strings.ToLower(strings.TrimSpace(part))
		if part != "" {
			out = append(out, part)
		}
	}
	return out
}
