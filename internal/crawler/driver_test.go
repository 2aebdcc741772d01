package crawler

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/PuerkitoBio/goquery"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	scrapeerrors "sjsage522/jobworker/pkg/errors"
)

func collect(ctx context.Context, d *Driver) []*goquery.Selection {
	var out []*goquery.Selection
	for frag := range d.All(ctx) {
		out = append(out, frag)
	}
	return out
}

func TestDriverWalksAllPages(t *testing.T) {
	adapter := newFakeAdapter(jobBatch(0, 5), jobBatch(5, 5), jobBatch(10, 5))
	d := NewDriver(adapter, DriverOptions{Backoff: time.Millisecond})

	assert.Equal(t, StateStart, d.State())
	frags := collect(context.Background(), d)

	assert.Len(t, frags, 15)
	assert.Equal(t, StateDone, d.State())
	assert.NoError(t, d.Err())
	assert.Equal(t, 3, d.Pages())
	assert.Equal(t, "Security Analyst 14", frags[14].Find("h2").Text())
}

func TestDriverEmptyFirstPage(t *testing.T) {
	d := NewDriver(newFakeAdapter(), DriverOptions{})

	assert.Empty(t, collect(context.Background(), d))
	assert.Equal(t, StateDone, d.State())
	assert.Equal(t, 0, d.Pages())
}

func TestDriverIsSinglePass(t *testing.T) {
	d := NewDriver(newFakeAdapter(jobBatch(0, 2)), DriverOptions{})

	assert.Len(t, collect(context.Background(), d), 2)
	assert.Empty(t, collect(context.Background(), d))
}

func TestDriverMaxPages(t *testing.T) {
	adapter := newFakeAdapter(jobBatch(0, 5), jobBatch(5, 5), jobBatch(10, 5))
	d := NewDriver(adapter, DriverOptions{MaxPages: 2})

	assert.Len(t, collect(context.Background(), d), 10)
	assert.Equal(t, StateDone, d.State())
	assert.Equal(t, 2, d.Pages())
	assert.Equal(t, 1, adapter.nextCalls)
}

func TestDriverRetriesOnce(t *testing.T) {
	adapter := newFakeAdapter(jobBatch(0, 5), jobBatch(5, 5))
	adapter.fetchErrs[1] = []error{scrapeerrors.NewNetwork("Fake", "connection reset", nil)}

	d := NewDriver(adapter, DriverOptions{Backoff: time.Millisecond})

	assert.Len(t, collect(context.Background(), d), 10)
	assert.Equal(t, StateDone, d.State())
	assert.Equal(t, 3, adapter.fetchCalls)
}

func TestDriverFailsAfterSecondTimeout(t *testing.T) {
	adapter := newFakeAdapter(jobBatch(0, 5), jobBatch(5, 5))
	adapter.nextErrs[0] = []error{errTimeout("li.result"), errTimeout("li.result")}

	d := NewDriver(adapter, DriverOptions{Backoff: time.Millisecond})
	frags := collect(context.Background(), d)

	// page 1 was delivered before the failure
	assert.Len(t, frags, 5)
	assert.Equal(t, StateFailed, d.State())
	assert.True(t, scrapeerrors.IsType(d.Err(), scrapeerrors.ErrorTypeTimeout))
	assert.Equal(t, 2, adapter.nextCalls)
}

func TestDriverDoesNotRetryRateLimit(t *testing.T) {
	adapter := newFakeAdapter(jobBatch(0, 5))
	adapter.fetchErrs[0] = []error{scrapeerrors.NewRateLimit("Fake", time.Minute)}

	d := NewDriver(adapter, DriverOptions{Backoff: time.Millisecond})

	assert.Empty(t, collect(context.Background(), d))
	assert.Equal(t, StateFailed, d.State())
	assert.True(t, scrapeerrors.IsType(d.Err(), scrapeerrors.ErrorTypeRateLimit))
	assert.Equal(t, 1, adapter.fetchCalls)
}

func TestDriverDetectsStalePage(t *testing.T) {
	adapter := newFakeAdapter(jobBatch(0, 5), jobBatch(5, 5))
	adapter.stuck = true

	d := NewDriver(adapter, DriverOptions{Backoff: time.Millisecond})
	frags := collect(context.Background(), d)

	assert.Len(t, frags, 5)
	assert.Equal(t, StateFailed, d.State())
	assert.True(t, scrapeerrors.IsType(d.Err(), scrapeerrors.ErrorTypeStalePage))
	// one read of page 1, then the stale read and its single retry
	assert.Equal(t, 3, adapter.fetchCalls)
}

func TestDriverStopsOnCancel(t *testing.T) {
	adapter := newFakeAdapter(jobBatch(0, 5), jobBatch(5, 5))
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	d := NewDriver(adapter, DriverOptions{})
	count := 0
	for range d.All(ctx) {
		count++
		if count == 3 {
			cancel()
			break
		}
	}

	assert.Equal(t, 3, count)
	assert.Equal(t, StateFailed, d.State())
	assert.True(t, errors.Is(d.Err(), context.Canceled))
}

func TestDriverConsumerBreak(t *testing.T) {
	d := NewDriver(newFakeAdapter(jobBatch(0, 5), jobBatch(5, 5)), DriverOptions{})
	for range d.All(context.Background()) {
		break
	}
	assert.Equal(t, StateDone, d.State())
	require.NoError(t, d.Err())
}
