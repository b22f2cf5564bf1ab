package k6ext

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	k6stats "go.k6.io/k6/stats"
)

func TestPushDuration(t *testing.T) {
	t.Parallel()

	m := NewCustomMetrics()
	samples := make(chan k6stats.SampleContainer, 1)

	ok := PushDuration(context.Background(), samples, m.PageLoad, 1500*time.Millisecond, map[string]string{"command": "open"})
	require.True(t, ok)

	sample, isSample := (<-samples).(k6stats.Sample)
	require.True(t, isSample)
	assert.Equal(t, "headless_page_load", sample.Metric.Name)
	assert.InDelta(t, 1500, sample.Value, 0.001)
	v, _ := sample.Tags.Get("command")
	assert.Equal(t, "open", v)

	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	// the channel is full
	samples <- sample
	assert.False(t, PushValue(ctx, samples, m.PageErrors, 1, nil))
}
