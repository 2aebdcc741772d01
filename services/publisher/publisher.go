package publisher

import (
	"context"

	"sjsage522/jobworker/internal/crawler"
)

// Publisher announces newly stored job records to downstream consumers
type Publisher interface {
	// Publish sends one record to its stream
	Publish(ctx context.Context, rec crawler.JobRecord) error

	// TrimStreams trims all streams to the configured maximum length
	TrimStreams(ctx context.Context) error

	// Close closes the publisher connection
	Close() error
}
