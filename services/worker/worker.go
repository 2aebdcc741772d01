package worker

import (
	"context"
	"time"

	"golang.org/x/sync/errgroup"

	"sjsage522/jobworker/internal/crawler"
	"sjsage522/jobworker/logger"
	"sjsage522/jobworker/services/publisher"
)

// AdapterFactory builds a fresh adapter for every run
type AdapterFactory func() (crawler.Adapter, error)

// Source is one job board the worker scrapes
type Source struct {
	Name string
	New  AdapterFactory
}

// Worker runs every configured source, once or on an interval
type Worker struct {
	ctx           context.Context
	pipeline      *Pipeline
	sources       []Source
	publisher     publisher.Publisher
	keyword       string
	crawlInterval time.Duration
	log           *logger.Logger
}

// NewWorker creates a new worker. pub may be nil.
func NewWorker(
	ctx context.Context,
	pipeline *Pipeline,
	sources []Source,
	pub publisher.Publisher,
	keyword string,
	crawlInterval time.Duration,
) *Worker {
	return &Worker{
		ctx:           ctx,
		pipeline:      pipeline,
		sources:       sources,
		publisher:     pub,
		keyword:       keyword,
		crawlInterval: crawlInterval,
		log:           logger.ForWorker(),
	}
}

// Start runs all sources. With a zero interval it runs once and returns;
// otherwise it repeats until the worker's context is cancelled. The returned
// error is the first storage failure or the context error.
func (w *Worker) Start() error {
	for {
		start := time.Now()
		_, err := w.RunOnce()
		w.log.Info().Dur("elapsed", time.Since(start)).Msg("Crawl cycle finished")
		if err != nil {
			return err
		}
		if w.crawlInterval <= 0 {
			return nil
		}

		timer := time.NewTimer(w.crawlInterval)
		select {
		case <-w.ctx.Done():
			timer.Stop()
			return w.ctx.Err()
		case <-timer.C:
		}
	}
}

// RunOnce runs every source concurrently and waits for all of them. One
// source failing does not stop the others.
func (w *Worker) RunOnce() ([]Summary, error) {
	summaries := make([]Summary, len(w.sources))

	var g errgroup.Group
	for i, src := range w.sources {
		g.Go(func() error {
			adapter, err := src.New()
			if err != nil {
				w.log.Error().Err(err).Str("source", src.Name).Msg("Failed to create adapter")
				summaries[i] = Summary{Source: src.Name, State: crawler.StateFailed, Err: err}
				return nil
			}

			sum, err := w.pipeline.Run(w.ctx, adapter, w.keyword)
			summaries[i] = sum
			return err
		})
	}
	err := g.Wait()

	// Trim all streams after crawling
	if w.publisher != nil {
		if trimErr := w.publisher.TrimStreams(w.ctx); trimErr != nil {
			logger.LogError("StreamTrimming", trimErr, "failed to trim streams")
		}
	}

	return summaries, err
}
