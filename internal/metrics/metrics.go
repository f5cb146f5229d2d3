// Package metrics exports media cache and transcoder metrics to Prometheus.
package metrics

import (
	"errors"
	"fmt"
	"time"

	"github.com/prometheus/client_golang/prometheus"
)

// Lookup results.
const (
	ResultHit         = "hit"
	ResultMiss        = "miss"
	ResultPlaceholder = "placeholder"
)

// Collector records media cache activity. A nil *Collector is a no-op.
type Collector struct {
	lookups        *prometheus.CounterVec
	fetchErrors    *prometheus.CounterVec
	placeholders   prometheus.Counter
	transcodeTimes *prometheus.HistogramVec
}

// NewCollector registers the collectors with reg, reusing ones already
// registered under the same name.
func NewCollector(reg prometheus.Registerer) (*Collector, error) {
	if reg == nil {
		reg = prometheus.DefaultRegisterer
	}
	c := &Collector{
		lookups: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: "wagate",
			Subsystem: "media",
			Name:      "lookups_total",
			Help:      "Media cache lookups by namespace and result.",
		}, []string{"namespace", "result"}),
		fetchErrors: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: "wagate",
			Subsystem: "media",
			Name:      "fetch_errors_total",
			Help:      "Remote media fetch failures by namespace.",
		}, []string{"namespace"}),
		placeholders: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: "wagate",
			Subsystem: "media",
			Name:      "placeholder_total",
			Help:      "Profile picture requests answered with the default placeholder.",
		}),
		transcodeTimes: prometheus.NewHistogramVec(prometheus.HistogramOpts{
			Namespace: "wagate",
			Name:      "transcode_duration_seconds",
			Help:      "Voice note transcoding latency.",
			Buckets:   prometheus.DefBuckets,
		}, []string{"result"}),
	}
	var err error
	if c.lookups, err = registerOrReuse(reg, c.lookups); err != nil {
		return nil, err
	}
	if c.fetchErrors, err = registerOrReuse(reg, c.fetchErrors); err != nil {
		return nil, err
	}
	if c.placeholders, err = registerOrReuse(reg, c.placeholders); err != nil {
		return nil, err
	}
	if c.transcodeTimes, err = registerOrReuse(reg, c.transcodeTimes); err != nil {
		return nil, err
	}
	return c, nil
}

func registerOrReuse[T prometheus.Collector](reg prometheus.Registerer, collector T) (T, error) {
	if err := reg.Register(collector); err != nil {
		var are prometheus.AlreadyRegisteredError
		if errors.As(err, &are) {
			if existing, ok := are.ExistingCollector.(T); ok {
				return existing, nil
			}
		}
		return collector, fmt.Errorf("register metric: %w", err)
	}
	return collector, nil
}

// Lookup counts one cache lookup.
func (c *Collector) Lookup(namespace, result string) {
	if c == nil {
		return
	}
	c.lookups.WithLabelValues(namespace, result).Inc()
}

// FetchError counts one failed remote fetch.
func (c *Collector) FetchError(namespace string) {
	if c == nil {
		return
	}
	c.fetchErrors.WithLabelValues(namespace).Inc()
}

// Placeholder counts one placeholder response.
func (c *Collector) Placeholder() {
	if c == nil {
		return
	}
	c.placeholders.Inc()
}

// Transcode observes one transcoding run.
func (c *Collector) Transcode(d time.Duration, err error) {
	if c == nil {
		return
	}
	result := "ok"
	if err != nil {
		result = "error"
	}
	c.transcodeTimes.WithLabelValues(result).Observe(d.Seconds())
}
