package cache

import (
	"time"
)

// CacheService stores short-lived markers such as per-host rate-limit blocks.
// Get returns a non-nil error on a miss.
type CacheService interface {
	// Get retrieves a value from the cache
	Get(key string) ([]byte, error)

	// Set stores a value in the cache with an expiration time
	Set(key string, value []byte, expiration time.Duration) error

	// Delete removes a value from the cache
	Delete(key string) error
}
