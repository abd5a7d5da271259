package ratelimiter

import (
	"bytes"
	"context"
	"io"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// TestNew verifies rate limiter creation with different parameters.
func TestNew(t *testing.T) {
	tests := []struct {
		name           string
		bytesPerSecond int
		wantNil        bool
	}{
		{name: "standard rate", bytesPerSecond: 1024},
		{name: "low rate", bytesPerSecond: 1},
		{name: "unlimited (zero rate)", bytesPerSecond: 0, wantNil: true},
		{name: "negative treated as unlimited", bytesPerSecond: -5, wantNil: true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			limiter := New(tt.bytesPerSecond)
			if tt.wantNil {
				assert.Nil(t, limiter)
				assert.Equal(t, 0, limiter.Limit())
				return
			}
			require.NotNil(t, limiter)
			assert.Equal(t, tt.bytesPerSecond, limiter.Limit())
		})
	}
}

func TestWaitNNilLimiter(t *testing.T) {
	var limiter *RateLimiter
	assert.NoError(t, limiter.WaitN(context.Background(), 1<<20))
}

func TestWaitNSplitsLargeRequests(t *testing.T) {
	limiter := New(100)

	// 150 bytes exceeds the burst of 100; the first 100 are free, the rest
	// must wait roughly half a second.
	start := time.Now()
	require.NoError(t, limiter.WaitN(context.Background(), 150))
	elapsed := time.Since(start)

	assert.GreaterOrEqual(t, elapsed, 400*time.Millisecond)
}

func TestWaitNContextCancelled(t *testing.T) {
	limiter := New(10)
	require.NoError(t, limiter.WaitN(context.Background(), 10))

	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	assert.Error(t, limiter.WaitN(ctx, 10))
}

func TestReaderPassThrough(t *testing.T) {
	src := strings.Repeat("x", 4096)
	r := NewReader(context.Background(), strings.NewReader(src), 0)

	data, err := io.ReadAll(r)
	require.NoError(t, err)
	assert.Equal(t, src, string(data))
}

func TestReaderThrottles(t *testing.T) {
	src := strings.Repeat("y", 300)
	r := NewReader(context.Background(), strings.NewReader(src), 200)

	start := time.Now()
	data, err := io.ReadAll(r)
	require.NoError(t, err)

	assert.Equal(t, src, string(data))
	assert.GreaterOrEqual(t, time.Since(start), 400*time.Millisecond)
}

func TestWriterThrottles(t *testing.T) {
	var buf bytes.Buffer
	w := NewWriter(context.Background(), &buf, 100)

	start := time.Now()
	n, err := w.Write(bytes.Repeat([]byte("z"), 150))
	require.NoError(t, err)

	assert.Equal(t, 150, n)
	assert.Equal(t, 150, buf.Len())
	assert.GreaterOrEqual(t, time.Since(start), 400*time.Millisecond)
}

func TestWriterCancelled(t *testing.T) {
	var buf bytes.Buffer
	ctx, cancel := context.WithCancel(context.Background())
	w := NewWriter(ctx, &buf, 10)

	_, err := w.Write(make([]byte, 10))
	require.NoError(t, err)

	cancel()
	_, err = w.Write(make([]byte, 10))
	assert.Error(t, err)
	assert.Equal(t, 10, buf.Len())
}
