package kafka_middleware

import (
	"context"
	"sync/atomic"
	"time"

	"keyring/pkg/kafka"
)

// Metrics holds publish counters for the event producer.
type Metrics struct {
	MessagesPublished       int64
	MessagesPublishedFailed int64
	PublishDurationTotal    int64 // nanoseconds
}

var globalMetrics = &Metrics{}

func GetMetrics() *Metrics {
	return globalMetrics
}

// Reset resets all counters, for tests.
func (m *Metrics) Reset() {
	atomic.StoreInt64(&m.MessagesPublished, 0)
	atomic.StoreInt64(&m.MessagesPublishedFailed, 0)
	atomic.StoreInt64(&m.PublishDurationTotal, 0)
}

func (m *Metrics) Published() int64 {
	return atomic.LoadInt64(&m.MessagesPublished)
}

func (m *Metrics) Failed() int64 {
	return atomic.LoadInt64(&m.MessagesPublishedFailed)
}

// AvgPublishDuration returns the mean publish latency.
func (m *Metrics) AvgPublishDuration() time.Duration {
	published := atomic.LoadInt64(&m.MessagesPublished)
	if published == 0 {
		return 0
	}
	total := atomic.LoadInt64(&m.PublishDurationTotal)
	return time.Duration(total / published)
}

// MetricsProducerMiddleware records publish counts and latency.
func MetricsProducerMiddleware() kafka.ProducerMiddleware {
	return func(ctx context.Context, msg kafka.Message, next func(ctx context.Context, msg kafka.Message) error) error {
		start := time.Now()

		err := next(ctx, msg)

		if err != nil {
			atomic.AddInt64(&globalMetrics.MessagesPublishedFailed, 1)
			return err
		}

		atomic.AddInt64(&globalMetrics.MessagesPublished, 1)
		atomic.AddInt64(&globalMetrics.PublishDurationTotal, int64(time.Since(start)))
		return nil
	}
}
