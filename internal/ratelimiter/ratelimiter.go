package ratelimiter

import (
	"context"
	"io"

	"golang.org/x/time/rate"
)

// RateLimiter throttles a byte stream using the token bucket algorithm.
//
// One token is one byte. The bucket holds at most one second worth of
// tokens, so a transfer never runs more than a second ahead of its
// configured rate.
//
// Special cases:
//   - bytesPerSecond = 0: No rate limiting (unlimited)
//
// Thread safety:
// All methods are safe for concurrent use.
type RateLimiter struct {
	limiter *rate.Limiter
}

// New creates a RateLimiter allowing bytesPerSecond bytes per second.
//
// Returns nil when bytesPerSecond is 0; a nil *RateLimiter never blocks.
func New(bytesPerSecond int) *RateLimiter {
	if bytesPerSecond <= 0 {
		return nil
	}

	return &RateLimiter{
		limiter: rate.NewLimiter(rate.Limit(bytesPerSecond), bytesPerSecond),
	}
}

// Limit returns the configured rate in bytes per second, or 0 when unlimited.
func (r *RateLimiter) Limit() int {
	if r == nil {
		return 0
	}
	return int(r.limiter.Limit())
}

// WaitN blocks until n bytes may be transferred or the context is cancelled.
//
// Requests larger than the burst are split so that WaitN never fails with
// rate.ErrExceedsBurst.
func (r *RateLimiter) WaitN(ctx context.Context, n int) error {
	if r == nil || n <= 0 {
		return nil
	}

	burst := r.limiter.Burst()
	for n > 0 {
		chunk := min(n, burst)
		if err := r.limiter.WaitN(ctx, chunk); err != nil {
			return err
		}
		n -= chunk
	}
	return nil
}

// Reader wraps an io.Reader and throttles bytes read from it.
type Reader struct {
	ctx     context.Context
	r       io.Reader
	limiter *RateLimiter
}

// NewReader returns r throttled to bytesPerSecond. With bytesPerSecond = 0
// the returned reader passes through without waiting.
func NewReader(ctx context.Context, r io.Reader, bytesPerSecond int) *Reader {
	return &Reader{ctx: ctx, r: r, limiter: New(bytesPerSecond)}
}

func (tr *Reader) Read(p []byte) (int, error) {
	if tr.limiter != nil && len(p) > tr.limiter.limiter.Burst() {
		p = p[:tr.limiter.limiter.Burst()]
	}

	n, err := tr.r.Read(p)
	if n > 0 {
		if werr := tr.limiter.WaitN(tr.ctx, n); werr != nil {
			return n, werr
		}
	}
	return n, err
}

// Writer wraps an io.Writer and throttles bytes written to it.
type Writer struct {
	ctx     context.Context
	w       io.Writer
	limiter *RateLimiter
}

// NewWriter returns w throttled to bytesPerSecond. With bytesPerSecond = 0
// the returned writer passes through without waiting.
func NewWriter(ctx context.Context, w io.Writer, bytesPerSecond int) *Writer {
	return &Writer{ctx: ctx, w: w, limiter: New(bytesPerSecond)}
}

func (tw *Writer) Write(p []byte) (int, error) {
	if err := tw.limiter.WaitN(tw.ctx, len(p)); err != nil {
		return 0, err
	}
	return tw.w.Write(p)
}
