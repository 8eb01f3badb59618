package profiler

import (
	"bytes"
	"log/slog"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
)

func TestTickReportsOncePerInterval(t *testing.T) {
	var buf bytes.Buffer
	clock := time.Unix(0, 0)
	p := NewProfiler(
		WithInterval(time.Second),
		WithLogger(slog.New(slog.NewTextHandler(&buf, nil))),
		withClock(func() time.Time { return clock }),
	)

	for i := 0; i < 29; i++ {
		clock = clock.Add(10 * time.Millisecond)
		assert.False(t, p.Tick())
	}
	clock = clock.Add(710 * time.Millisecond)
	assert.True(t, p.Tick())
	assert.InDelta(t, 30.0, p.Last().FPS, 0.001)
	assert.Contains(t, buf.String(), "[Profiler]")
	assert.Contains(t, buf.String(), "component=profiler")

	clock = clock.Add(100 * time.Millisecond)
	assert.False(t, p.Tick())
}
