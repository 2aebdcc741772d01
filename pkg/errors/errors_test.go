package errors

import (
	stderrors "errors"
	"fmt"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
)

func TestScrapeErrorMessage(t *testing.T) {
	cause := stderrors.New("connection refused")
	err := NewNetwork("Wuzzuf", "fetch page 2", cause)

	assert.Equal(t, "[network] Wuzzuf: fetch page 2 - connection refused", err.Error())
	assert.ErrorIs(t, err, cause)

	err = NewValidation("Wuzzuf", "empty keyword")
	assert.Equal(t, "[validation] Wuzzuf: empty keyword", err.Error())

	err = NewConfiguration("MAX_PAGES must be >= 0", nil)
	assert.Equal(t, "[configuration] MAX_PAGES must be >= 0", err.Error())
}

func TestIsRetryable(t *testing.T) {
	testCases := []struct {
		err       error
		retryable bool
	}{
		{NewNetwork("s", "m", nil), true},
		{NewTimeout("s", "m", nil), true},
		{NewStalePage("s", 2), true},
		{NewRateLimit("s", time.Minute), false},
		{NewNotFound("s", "m"), false},
		{NewParsing("s", "m", nil), false},
		{stderrors.New("plain"), false},
		{fmt.Errorf("wrapped: %w", NewTimeout("s", "m", nil)), true},
	}

	for _, tc := range testCases {
		assert.Equal(t, tc.retryable, IsRetryable(tc.err), tc.err.Error())
	}
}

func TestIsType(t *testing.T) {
	inner := NewTimeout("France Travail", "wait for cards", nil)
	outer := NewNetwork("France Travail", "advance", inner)

	assert.True(t, IsType(outer, ErrorTypeNetwork))
	assert.True(t, IsType(outer, ErrorTypeTimeout))
	assert.False(t, IsType(outer, ErrorTypeStorage))
	assert.True(t, IsType(fmt.Errorf("run: %w", inner), ErrorTypeTimeout))
	assert.False(t, IsType(stderrors.New("plain"), ErrorTypeTimeout))
	assert.False(t, IsType(nil, ErrorTypeTimeout))
}
