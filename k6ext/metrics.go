// Package k6ext holds the k6 specific helpers of the headless module.
package k6ext

import (
	"context"
	"time"

	k6stats "go.k6.io/k6/stats"
)

// CustomMetrics are the custom k6 metrics used by xk6-headless.
type CustomMetrics struct {
	// PageLoad is the duration of the commands loading a document.
	PageLoad *k6stats.Metric
	// PageCommand is the duration of every page command.
	PageCommand *k6stats.Metric
	// PageErrors counts the failed page commands.
	PageErrors *k6stats.Metric
}

// NewCustomMetrics creates our custom metrics.
func NewCustomMetrics() *CustomMetrics {
	return &CustomMetrics{
		PageLoad:    k6stats.New("headless_page_load", k6stats.Trend, k6stats.Time),
		PageCommand: k6stats.New("headless_page_command", k6stats.Trend, k6stats.Time),
		PageErrors:  k6stats.New("headless_page_errors", k6stats.Counter),
	}
}

// PushDuration pushes a sample of d to output if ctx is not done. It
// returns false if the context was done.
func PushDuration(
	ctx context.Context, output chan<- k6stats.SampleContainer,
	metric *k6stats.Metric, d time.Duration, tags map[string]string,
) bool {
	return PushValue(ctx, output, metric, k6stats.D(d), tags)
}

// PushValue pushes a sample of v to output if ctx is not done. It returns
// false if the context was done.
func PushValue(
	ctx context.Context, output chan<- k6stats.SampleContainer,
	metric *k6stats.Metric, v float64, tags map[string]string,
) bool {
	sample := k6stats.Sample{
		Metric: metric,
		Tags:   k6stats.IntoSampleTags(&tags),
		Time:   time.Now(),
		Value:  v,
	}
	return k6stats.PushIfNotDone(ctx, output, sample)
}
