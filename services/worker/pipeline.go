package worker

import (
	"context"
	"time"

	"github.com/google/uuid"

	"sjsage522/jobworker/internal/crawler"
	"sjsage522/jobworker/logger"
	scrapeerrors "sjsage522/jobworker/pkg/errors"
	"sjsage522/jobworker/services/publisher"
)

// JobStore is the storage the pipeline writes to
type JobStore interface {
	EnsureSchema(ctx context.Context) error
	Insert(ctx context.Context, rec *crawler.JobRecord) (bool, error)
}

// Summary reports one scraping run
type Summary struct {
	RunID     string
	Source    string
	Scraped   int
	Inserted  int
	Skipped   int
	Pages     int
	State     crawler.State
	Err       error
	StartedAt time.Time
	Duration  time.Duration
}

// PipelineOptions configure a Pipeline
type PipelineOptions struct {
	Dates  crawler.DateNormalizer
	Driver crawler.DriverOptions
	// Now is the clock for relative dates; time.Now when nil
	Now func() time.Time
}

// Pipeline runs one adapter end to end: paginate, extract, store, publish.
// Every record is stored as soon as it is extracted, so a run that fails on a
// later page keeps everything committed before the failure.
type Pipeline struct {
	store     JobStore
	publisher publisher.Publisher
	opts      PipelineOptions
}

// NewPipeline creates a pipeline. pub may be nil.
func NewPipeline(store JobStore, pub publisher.Publisher, opts PipelineOptions) *Pipeline {
	if opts.Now == nil {
		opts.Now = time.Now
	}
	return &Pipeline{
		store:     store,
		publisher: pub,
		opts:      opts,
	}
}

// Run performs one scraping run of adapter for keyword and always closes the
// adapter. Source-side failures end the run gracefully and are reported in the
// summary; only storage failures are returned as errors.
func (p *Pipeline) Run(ctx context.Context, adapter crawler.Adapter, keyword string) (sum Summary, err error) {
	sum = Summary{
		RunID:     uuid.NewString(),
		Source:    adapter.Name(),
		State:     crawler.StateStart,
		StartedAt: time.Now(),
	}
	log := logger.ForSource(adapter.Name()).WithField("run_id", sum.RunID)

	defer func() {
		if err := adapter.Close(); err != nil {
			log.Warn().Err(err).Msg("Failed to close adapter")
		}
		sum.Duration = time.Since(sum.StartedAt)
	}()

	if err := ctx.Err(); err != nil {
		sum.State = crawler.StateFailed
		sum.Err = err
		return sum, nil
	}

	if err := p.store.EnsureSchema(ctx); err != nil {
		sum.State = crawler.StateFailed
		if ctxErr := ctx.Err(); ctxErr != nil {
			sum.Err = ctxErr
			return sum, nil
		}
		sum.Err = err
		return sum, err
	}

	if err := adapter.Open(ctx, keyword); err != nil {
		log.Error().Err(err).Str("keyword", keyword).Msg("Failed to open listing")
		sum.State = crawler.StateFailed
		sum.Err = err
		return sum, nil
	}

	extractor := crawler.NewExtractor(adapter.Config(), p.opts.Dates).
		WithClock(p.opts.Now).
		WithResolver(adapter.ResolveURL)
	driver := crawler.NewDriver(adapter, p.opts.Driver)

	for frag := range driver.All(ctx) {
		rec := extractor.Extract(frag)
		sum.Scraped++

		if rec.URL == crawler.SentinelURL {
			sum.Skipped++
			log.Warn().Str("title", rec.Title).Msg("Skipping posting without a link")
			continue
		}

		inserted, insertErr := p.store.Insert(ctx, &rec)
		if insertErr != nil {
			if ctxErr := ctx.Err(); ctxErr != nil {
				// cancelled mid-insert; what was committed stays
				sum.State = crawler.StateFailed
				sum.Err = ctxErr
				sum.Pages = driver.Pages()
				return sum, nil
			}
			log.Error().Err(insertErr).Str("url", rec.URL).Msg("Failed to store job")
			sum.State = crawler.StateFailed
			sum.Err = insertErr
			sum.Pages = driver.Pages()
			return sum, insertErr
		}
		if !inserted {
			continue
		}
		sum.Inserted++
		p.publish(ctx, log, rec)
	}

	sum.State = driver.State()
	sum.Err = driver.Err()
	sum.Pages = driver.Pages()

	event := log.Info()
	if sum.State == crawler.StateFailed {
		event = log.Warn().Err(sum.Err)
	}
	event.
		Int("scraped", sum.Scraped).
		Int("inserted", sum.Inserted).
		Int("pages", sum.Pages).
		Str("state", string(sum.State)).
		Msg("Run finished")

	return sum, nil
}

// publish announces a new record. Failures only get logged; the record is
// already stored.
func (p *Pipeline) publish(ctx context.Context, log *logger.Logger, rec crawler.JobRecord) {
	if p.publisher == nil {
		return
	}
	if err := p.publisher.Publish(ctx, rec); err != nil {
		log.Warn().Err(scrapeerrors.NewNetwork(rec.Source, "publish job", err)).Str("url", rec.URL).Msg("Failed to publish job")
	}
}
