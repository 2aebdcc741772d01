package cache

import (
	"bytes"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"

	"sjsage522/jobworker/logger"
)

func TestSanitizeKey(t *testing.T) {
	assert.Equal(t, "wuzzuf.net_rate_limited", sanitizeKey("wuzzuf.net_rate_limited"))
	assert.Equal(t, "a_b_c", sanitizeKey("a b\nc"))
}

// This test requires a running memcached instance
// If memcached is not available, the test will be skipped
func TestMemcacheService(t *testing.T) {
	mc := NewMemcacheService("localhost:11211")
	if err := mc.Ping(); err != nil {
		t.Skip("Memcached is not available, skipping test")
	}

	err := mc.Set("wuzzuf.net_rate_limited", []byte("60"), 2*time.Second)
	assert.NoError(t, err)

	value, err := mc.Get("wuzzuf.net_rate_limited")
	assert.NoError(t, err)
	assert.Equal(t, "60", string(value))

	assert.NoError(t, mc.Delete("wuzzuf.net_rate_limited"))
	// deleting a missing key is not an error
	assert.NoError(t, mc.Delete("wuzzuf.net_rate_limited"))

	_, err = mc.Get("wuzzuf.net_rate_limited")
	assert.ErrorIs(t, err, ErrMiss)
}

func TestMemcacheServiceLogsFailures(t *testing.T) {
	t.Setenv("LOG_LEVEL", "debug")
	var buf bytes.Buffer
	logger.InitWithWriter(&buf)
	defer func() { logger.Default = nil }()

	// nothing listens on port 1
	mc := NewMemcacheService("127.0.0.1:1")

	assert.Error(t, mc.Set("wuzzuf.net_rate_limited", []byte("60"), time.Minute))
	assert.Contains(t, buf.String(), `"component":"cache"`)
	assert.Contains(t, buf.String(), "Failed to set cache key")
	assert.Contains(t, buf.String(), `"key":"wuzzuf.net_rate_limited"`)

	buf.Reset()
	assert.Error(t, mc.Delete("wuzzuf.net_rate_limited"))
	assert.Contains(t, buf.String(), "Failed to delete cache key")
}
