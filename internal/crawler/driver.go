package crawler

import (
	"context"
	"hash/fnv"
	"iter"
	"time"

	"github.com/PuerkitoBio/goquery"

	"sjsage522/jobworker/logger"
	scrapeerrors "sjsage522/jobworker/pkg/errors"
)

// State is the position of a Driver in its pagination lifecycle
type State string

const (
	StateStart         State = "start"
	StateFetching      State = "fetching"
	StateMoreAvailable State = "more_available"
	StateDone          State = "done"
	StateFailed        State = "failed"
)

// DriverOptions tune a Driver
type DriverOptions struct {
	// MaxPages stops after this many batches; zero means no limit
	MaxPages int
	// Backoff is the wait before the single retry of a failed fetch or advance
	Backoff time.Duration
}

// Driver pulls batches of fragments out of an adapter until the source reports
// the end of results or fails. Fragments are yielded one by one so a failure on
// a later page never discards what earlier pages produced.
type Driver struct {
	adapter Adapter
	opts    DriverOptions
	log     *logger.Logger

	state State
	err   error
	pages int
}

// NewDriver creates a driver over an opened adapter
func NewDriver(adapter Adapter, opts DriverOptions) *Driver {
	return &Driver{
		adapter: adapter,
		opts:    opts,
		log:     logger.ForSource(adapter.Name()),
		state:   StateStart,
	}
}

// State returns the current state
func (d *Driver) State() State {
	return d.state
}

// Err returns the error that moved the driver to StateFailed
func (d *Driver) Err() error {
	return d.err
}

// Pages returns the number of batches fetched so far
func (d *Driver) Pages() int {
	return d.pages
}

// All returns the lazy sequence of fragments. It can be ranged over once; a
// second call yields nothing. Breaking out of the loop stops pagination.
func (d *Driver) All(ctx context.Context) iter.Seq[*goquery.Selection] {
	return func(yield func(*goquery.Selection) bool) {
		if d.state != StateStart {
			return
		}

		var prev uint64
		for {
			if err := ctx.Err(); err != nil {
				d.fail(err)
				return
			}

			d.state = StateFetching
			batch, sig, err := d.fetch(ctx, prev)
			if err != nil {
				d.fail(err)
				return
			}
			if len(batch) == 0 {
				d.finish("no more fragments")
				return
			}
			d.pages++
			prev = sig

			d.log.Debug().Int("page", d.pages).Int("fragments", len(batch)).Msg("Fetched batch")
			for _, frag := range batch {
				if !yield(frag) {
					if err := ctx.Err(); err != nil {
						d.fail(err)
					} else {
						d.finish("consumer stopped")
					}
					return
				}
			}

			if d.opts.MaxPages > 0 && d.pages >= d.opts.MaxPages {
				d.finish("page limit reached")
				return
			}

			more, err := d.advance(ctx)
			if err != nil {
				d.fail(err)
				return
			}
			if !more {
				d.finish("no next page")
				return
			}
			d.state = StateMoreAvailable
		}
	}
}

// fetch reads the current batch. A retryable error or a batch identical to
// the previous one gets exactly one more attempt after the backoff.
func (d *Driver) fetch(ctx context.Context, prev uint64) ([]*goquery.Selection, uint64, error) {
	for attempt := 0; ; attempt++ {
		batch, err := d.adapter.Fragments(ctx)
		if err == nil {
			if len(batch) == 0 {
				return nil, 0, nil
			}
			sig := signature(batch)
			if d.pages == 0 || sig != prev {
				return batch, sig, nil
			}
			err = scrapeerrors.NewStalePage(d.adapter.Name(), d.pages+1)
		}

		if attempt >= 1 || !scrapeerrors.IsRetryable(err) {
			return nil, 0, err
		}
		d.log.Warn().Err(err).Int("page", d.pages+1).Msg("Retrying batch")
		if err := d.wait(ctx); err != nil {
			return nil, 0, err
		}
	}
}

// advance moves the adapter to the next batch with the same single retry
func (d *Driver) advance(ctx context.Context) (bool, error) {
	for attempt := 0; ; attempt++ {
		more, err := d.adapter.Next(ctx)
		if err == nil {
			return more, nil
		}
		if attempt >= 1 || !scrapeerrors.IsRetryable(err) {
			return false, err
		}
		d.log.Warn().Err(err).Int("page", d.pages+1).Msg("Retrying advance")
		if err := d.wait(ctx); err != nil {
			return false, err
		}
	}
}

func (d *Driver) wait(ctx context.Context) error {
	if d.opts.Backoff <= 0 {
		return ctx.Err()
	}
	timer := time.NewTimer(d.opts.Backoff)
	defer timer.Stop()
	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-timer.C:
		return nil
	}
}

func (d *Driver) finish(reason string) {
	d.state = StateDone
	d.log.Debug().Int("pages", d.pages).Str("reason", reason).Msg("Pagination finished")
}

func (d *Driver) fail(err error) {
	d.state = StateFailed
	d.err = err
	d.log.Warn().Err(err).Int("pages", d.pages).Msg("Pagination failed")
}

// signature identifies a batch by the markup of its fragments
func signature(batch []*goquery.Selection) uint64 {
	h := fnv.New64a()
	for _, s := range batch {
		html, err := goquery.OuterHtml(s)
		if err != nil {
			continue
		}
		h.Write([]byte(html))
		h.Write([]byte{0})
	}
	return h.Sum64()
}
