package ratelimit

import (
	"net/http"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestHandle429RespectsRetryAfterSeconds(t *testing.T) {
	l := NewLimiter("example.com")
	resp := &http.Response{Header: http.Header{"Retry-After": []string{"2"}}}

	wait := l.Handle429(resp)

	assert.True(t, wait >= 1800*time.Millisecond && wait <= 2200*time.Millisecond, "expected ~2s with jitter, got %v", wait)
	assert.True(t, l.IsBlocked())
}

func TestHandle429ExponentialBackoffWithoutHeader(t *testing.T) {
	l := NewLimiter("example.com")
	resp := &http.Response{Header: http.Header{}}

	first := l.Handle429(resp)
	second := l.Handle429(resp)

	assert.True(t, second > first, "second backoff (%v) should exceed first (%v)", second, first)
}

func TestReportSuccessResetsHits(t *testing.T) {
	l := NewLimiter("example.com")
	resp := &http.Response{Header: http.Header{}}
	l.Handle429(resp)
	require.Equal(t, int32(1), l.consecutiveHits.Load())

	l.ReportSuccess()

	assert.Equal(t, int32(0), l.consecutiveHits.Load())
}

func TestManagerSharesLimiterPerHost(t *testing.T) {
	Reset()
	defer Reset()

	a := GetLimiter("host.test")
	b := GetLimiter("host.test")
	c := GetLimiter("other.test")

	assert.Same(t, a, b)
	assert.NotSame(t, a, c)
	assert.Equal(t, 2, ActiveHosts())
}
