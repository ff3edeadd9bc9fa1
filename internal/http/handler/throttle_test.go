package handler

import (
	"context"
	"io"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type closeRecorder struct {
	io.Reader
	closed bool
}

func (c *closeRecorder) Close() error {
	c.closed = true
	return nil
}

func TestThrottledReader_Disabled(t *testing.T) {
	src := &closeRecorder{Reader: strings.NewReader("abc")}
	assert.Same(t, src, newThrottledReader(context.Background(), src, 0))
}

func TestThrottledReader_Paces(t *testing.T) {
	// 800 bits/s = 100 bytes/s; 150 bytes need at least ~1.5s once the bucket is drained
	src := &closeRecorder{Reader: strings.NewReader(strings.Repeat("x", 150))}
	r := newThrottledReader(context.Background(), src, 800)

	start := time.Now()
	data, err := io.ReadAll(r)
	require.NoError(t, err)
	elapsed := time.Since(start)

	assert.Len(t, data, 150)
	assert.GreaterOrEqual(t, elapsed, 1200*time.Millisecond)
	require.NoError(t, r.Close())
	assert.True(t, src.closed)
}

func TestThrottledReader_ContextCanceled(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	src := &closeRecorder{Reader: strings.NewReader(strings.Repeat("x", 64))}
	r := newThrottledReader(ctx, src, 8)

	_, err := io.ReadAll(r)
	assert.ErrorIs(t, err, context.Canceled)
}
