package handler

import (
	"context"
	"io"
	"time"

	"golang.org/x/time/rate"
)

const maxThrottleBurst = 64 << 10

// throttledReader paces reads to a byte rate. Only the goroutine draining the
// response body waits on the limiter.
type throttledReader struct {
	ctx context.Context
	r   io.Reader
	c   io.Closer
	lim *rate.Limiter
}

// newThrottledReader wraps r so it yields at most bps bits per second.
// A non-positive bps returns rc unchanged.
func newThrottledReader(ctx context.Context, rc io.ReadCloser, bps int64) io.ReadCloser {
	if bps <= 0 {
		return rc
	}
	bytesPerSec := bps / 8
	if bytesPerSec < 1 {
		bytesPerSec = 1
	}
	burst := bytesPerSec
	if burst > maxThrottleBurst {
		burst = maxThrottleBurst
	}
	lim := rate.NewLimiter(rate.Limit(bytesPerSec), int(burst))
	// drain the initial bucket so the first burst is paced as well
	lim.AllowN(time.Now(), int(burst))
	return &throttledReader{ctx: ctx, r: rc, c: rc, lim: lim}
}

func (t *throttledReader) Read(p []byte) (int, error) {
	if len(p) > t.lim.Burst() {
		p = p[:t.lim.Burst()]
	}
	n, err := t.r.Read(p)
	if n > 0 {
		if werr := t.lim.WaitN(t.ctx, n); werr != nil {
			return n, werr
		}
	}
	return n, err
}

func (t *throttledReader) Close() error { return t.c.Close() }

// readCloser pairs a limited view of a file with the file's Close.
type readCloser struct {
	io.Reader
	io.Closer
}
