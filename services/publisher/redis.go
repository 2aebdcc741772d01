package publisher

import (
	"context"
	"encoding/json"
	"hash/fnv"
	"strconv"

	"github.com/redis/go-redis/v9"

	"sjsage522/jobworker/internal/crawler"
	"sjsage522/jobworker/logger"
)

// RedisPublisher implements Publisher on Redis streams. Records are spread over
// streamCount streams named <prefix>:0 .. <prefix>:<streamCount-1> by URL, so
// a consumer group per stream sees every posting of its partition.
type RedisPublisher struct {
	client          *redis.Client
	streamPrefix    string
	streamCount     int
	streamMaxLength int
	log             *logger.Logger
}

// NewRedisPublisher creates a new Redis publisher
func NewRedisPublisher(addr string, db int, streamPrefix string, streamCount int, streamMaxLength int) *RedisPublisher {
	client := redis.NewClient(&redis.Options{
		Addr: addr,
		DB:   db,
	})
	if streamCount < 1 {
		streamCount = 1
	}

	return &RedisPublisher{
		client:          client,
		streamPrefix:    streamPrefix,
		streamCount:     streamCount,
		streamMaxLength: streamMaxLength,
		log:             logger.ForPublisher(),
	}
}

// Ping checks the connection
func (p *RedisPublisher) Ping(ctx context.Context) error {
	return p.client.Ping(ctx).Err()
}

// StreamFor returns the stream a URL is published to
func (p *RedisPublisher) StreamFor(url string) string {
	h := fnv.New32a()
	h.Write([]byte(url))
	return p.streamPrefix + ":" + strconv.Itoa(int(h.Sum32()%uint32(p.streamCount)))
}

// Publish adds rec as JSON to its stream
func (p *RedisPublisher) Publish(ctx context.Context, rec crawler.JobRecord) error {
	payload, err := json.Marshal(rec)
	if err != nil {
		return err
	}

	return p.client.XAdd(ctx, &redis.XAddArgs{
		Stream: p.StreamFor(rec.URL),
		Values: map[string]interface{}{
			"source": rec.Source,
			"job":    string(payload),
		},
	}).Err()
}

// TrimStreams trims all streams to the configured maximum length
func (p *RedisPublisher) TrimStreams(ctx context.Context) error {
	if p.streamMaxLength <= 0 {
		return nil
	}
	for i := 0; i < p.streamCount; i++ {
		stream := p.streamPrefix + ":" + strconv.Itoa(i)
		trimmed, err := p.client.XTrimMaxLen(ctx, stream, int64(p.streamMaxLength)).Result()
		if err != nil {
			return err
		}
		p.log.Debug().
			Str("stream", stream).
			Int64("trimmed", trimmed).
			Int("max_length", p.streamMaxLength).
			Msg("Trimmed stream")
	}
	return nil
}

// Close closes the Redis connection
func (p *RedisPublisher) Close() error {
	return p.client.Close()
}
