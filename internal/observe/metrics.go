// Package observe holds the recorder's OpenTelemetry instruments and the
// Prometheus bridge that exposes them on /metrics.
package observe

import (
	"context"
	"sync"
	"time"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/metric"
)

const meterName = "github.com/omnicapture/agent"

// Recording outcomes used with RecordRecording.
const (
	OutcomeSuccess     = "success"
	OutcomeGIFFallback = "gif_fallback"
	OutcomeFailed      = "failed"
)

// Metrics holds every instrument. Safe for concurrent use.
type Metrics struct {
	FramesWritten      metric.Int64Counter
	AudioBlocksWritten metric.Int64Counter
	AudioBlocksDropped metric.Int64Counter

	// Recordings counts finished recordings by attribute "outcome".
	Recordings metric.Int64Counter

	// Uploads counts archive uploads by "provider" and "status".
	Uploads metric.Int64Counter

	FrameWriteDuration metric.Float64Histogram
	FinalizeDuration   metric.Float64Histogram

	AudioQueueDepth metric.Int64Gauge
}

var (
	frameBuckets    = []float64{0.001, 0.0025, 0.005, 0.01, 0.02, 0.033, 0.05, 0.1, 0.25, 1}
	finalizeBuckets = []float64{0.1, 0.25, 0.5, 1, 2.5, 5, 10, 30, 60, 300}
)

// NewMetrics creates the instruments on mp.
func NewMetrics(mp metric.MeterProvider) (*Metrics, error) {
	m := mp.Meter(meterName)
	var err error
	met := &Metrics{}

	if met.FramesWritten, err = m.Int64Counter("omnicapture.frames.written",
		metric.WithDescription("Video frames handed to the encoder."),
	); err != nil {
		return nil, err
	}
	if met.AudioBlocksWritten, err = m.Int64Counter("omnicapture.audio.blocks_written",
		metric.WithDescription("Audio blocks written to the intermediate WAV."),
	); err != nil {
		return nil, err
	}
	if met.AudioBlocksDropped, err = m.Int64Counter("omnicapture.audio.blocks_dropped",
		metric.WithDescription("Audio blocks discarded because the queue was full."),
	); err != nil {
		return nil, err
	}
	if met.Recordings, err = m.Int64Counter("omnicapture.recordings",
		metric.WithDescription("Finished recordings by outcome."),
	); err != nil {
		return nil, err
	}
	if met.Uploads, err = m.Int64Counter("omnicapture.archive.uploads",
		metric.WithDescription("Archive uploads by provider and status."),
	); err != nil {
		return nil, err
	}
	if met.FrameWriteDuration, err = m.Float64Histogram("omnicapture.frame.write.duration",
		metric.WithDescription("Time to write one raw frame to the encoder pipe."),
		metric.WithUnit("s"),
		metric.WithExplicitBucketBoundaries(frameBuckets...),
	); err != nil {
		return nil, err
	}
	if met.FinalizeDuration, err = m.Float64Histogram("omnicapture.finalize.duration",
		metric.WithDescription("Time spent muxing and converting after stop."),
		metric.WithUnit("s"),
		metric.WithExplicitBucketBoundaries(finalizeBuckets...),
	); err != nil {
		return nil, err
	}
	if met.AudioQueueDepth, err = m.Int64Gauge("omnicapture.audio.queue_depth",
		metric.WithDescription("Audio blocks waiting when the queue was last drained."),
	); err != nil {
		return nil, err
	}
	return met, nil
}

var (
	defaultMetrics     *Metrics
	defaultMetricsOnce sync.Once
)

// DefaultMetrics returns instruments on the global meter provider. Call
// InitProvider first to have them exported.
func DefaultMetrics() *Metrics {
	defaultMetricsOnce.Do(func() {
		var err error
		defaultMetrics, err = NewMetrics(otel.GetMeterProvider())
		if err != nil {
			panic("observe: failed to create default metrics: " + err.Error())
		}
	})
	return defaultMetrics
}

func (m *Metrics) RecordFrameWrite(ctx context.Context, d time.Duration) {
	m.FramesWritten.Add(ctx, 1)
	m.FrameWriteDuration.Record(ctx, d.Seconds())
}

func (m *Metrics) RecordRecording(ctx context.Context, outcome string, finalize time.Duration) {
	m.Recordings.Add(ctx, 1, metric.WithAttributes(attribute.String("outcome", outcome)))
	if finalize > 0 {
		m.FinalizeDuration.Record(ctx, finalize.Seconds())
	}
}

func (m *Metrics) RecordUpload(ctx context.Context, provider, status string) {
	m.Uploads.Add(ctx, 1, metric.WithAttributes(
		attribute.String("provider", provider),
		attribute.String("status", status),
	))
}
