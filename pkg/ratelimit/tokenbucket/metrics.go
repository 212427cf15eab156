package tokenbucket

import (
	"sync/atomic"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/vnykmshr/sloq/pkg/metrics"
)

// MetricsBucket wraps a Bucket with Prometheus metrics collection.
type MetricsBucket struct {
	bucket   Bucket
	name     string
	registry atomic.Pointer[metrics.Registry]
	enabled  atomic.Bool
}

var (
	_ Bucket                 = (*MetricsBucket)(nil)
	_ metrics.Instrumentable = (*MetricsBucket)(nil)
)

// NewWithMetrics wraps bucket so that every call is recorded under name.
// When config is disabled the bucket is returned unwrapped.
func NewWithMetrics(bucket Bucket, name string, config metrics.Config) Bucket {
	if !config.Enabled {
		return bucket
	}
	mb := &MetricsBucket{bucket: bucket, name: name}
	mb.registry.Store(metrics.ForConfig(config))
	mb.enabled.Store(true)
	return mb
}

// NewIsolatedWithMetrics creates a started bucket with its own Prometheus
// registry, returned so callers can gather from it.
func NewIsolatedWithMetrics(tick time.Duration, name string) (Bucket, *prometheus.Registry, error) {
	tb, err := New(tick)
	if err != nil {
		return nil, nil, err
	}
	reg := prometheus.NewRegistry()
	return NewWithMetrics(tb, name, metrics.Config{Enabled: true, Registry: reg}), reg, nil
}

// Count returns the balance and records it in the tokens gauge.
func (mb *MetricsBucket) Count() (float64, error) {
	tokens, err := mb.bucket.Count()
	if reg := mb.active(); err == nil && reg != nil {
		reg.Tokens.WithLabelValues(mb.name).Set(tokens)
	}
	return tokens, err
}

// TryTake removes n tokens if they are available now.
func (mb *MetricsBucket) TryTake(n float64) (bool, error) {
	start := time.Now()
	ok, err := mb.bucket.TryTake(n)
	mb.observe(n, ok, err, start)
	return ok, err
}

// Take blocks until n tokens have been removed.
func (mb *MetricsBucket) Take(n float64) error {
	start := time.Now()
	err := mb.bucket.Take(n)
	mb.observe(n, err == nil, err, start)
	return err
}

// TakeTimeout blocks for at most roughly timeout.
func (mb *MetricsBucket) TakeTimeout(n float64, timeout time.Duration) (bool, error) {
	start := time.Now()
	ok, err := mb.bucket.TakeTimeout(n, timeout)
	mb.observe(n, ok, err, start)
	return ok, err
}

// Reset sets the balance and counts the reset.
func (mb *MetricsBucket) Reset(tokens float64) {
	mb.bucket.Reset(tokens)

	if reg := mb.active(); reg != nil {
		reg.BucketResets.WithLabelValues(mb.name).Inc()
		reg.Tokens.WithLabelValues(mb.name).Set(tokens)
	}
}

// Unwrap returns the instrumented bucket.
func (mb *MetricsBucket) Unwrap() Bucket {
	return mb.bucket
}

// EnableMetrics enables metrics collection. It is safe to call while
// other goroutines use the bucket.
func (mb *MetricsBucket) EnableMetrics(config metrics.Config) error {
	if config.Registry != nil {
		mb.registry.Store(metrics.ForConfig(config))
	}
	mb.enabled.Store(config.Enabled)
	return nil
}

// DisableMetrics disables metrics collection.
func (mb *MetricsBucket) DisableMetrics() {
	mb.enabled.Store(false)
}

// MetricsEnabled returns true if metrics are currently enabled.
func (mb *MetricsBucket) MetricsEnabled() bool {
	return mb.enabled.Load()
}

// active returns the registry to record into, or nil when disabled.
func (mb *MetricsBucket) active() *metrics.Registry {
	if !mb.enabled.Load() {
		return nil
	}
	return mb.registry.Load()
}

func (mb *MetricsBucket) observe(n float64, ok bool, err error, start time.Time) {
	reg := mb.active()
	if reg == nil {
		return
	}

	reg.TakeRequests.WithLabelValues(mb.name).Add(n)
	reg.TakeWaitTime.WithLabelValues(mb.name).Observe(time.Since(start).Seconds())
	if ok {
		reg.TakeAllowed.WithLabelValues(mb.name).Add(n)
	} else if err == nil {
		reg.TakeDenied.WithLabelValues(mb.name).Add(n)
	}
}
