package buffer

import (
	"fmt"

	"github.com/prometheus/client_golang/prometheus"
)

// ringMetrics holds the Prometheus collectors of one RingBuffer.
type ringMetrics struct {
	appends   prometheus.Counter
	absorbs   *prometheus.CounterVec
	grows     prometheus.Counter
	occupancy prometheus.Gauge
	capacity  prometheus.Gauge
}

func newRingMetrics(reg prometheus.Registerer, name string) (*ringMetrics, error) {
	labels := prometheus.Labels{"buffer": name}
	m := &ringMetrics{
		appends: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace:   "trajectory",
			Subsystem:   "ring_buffer",
			Name:        "appends_total",
			ConstLabels: labels,
			Help:        "Total number of timesteps appended",
		}),
		absorbs: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace:   "trajectory",
			Subsystem:   "ring_buffer",
			Name:        "absorbs_total",
			ConstLabels: labels,
			Help:        "Total number of buffers absorbed, by regime",
		}, []string{"regime"}),
		grows: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace:   "trajectory",
			Subsystem:   "ring_buffer",
			Name:        "grows_total",
			ConstLabels: labels,
			Help:        "Total number of field reallocations",
		}),
		occupancy: prometheus.NewGauge(prometheus.GaugeOpts{
			Namespace:   "trajectory",
			Subsystem:   "ring_buffer",
			Name:        "occupancy",
			ConstLabels: labels,
			Help:        "Number of valid timesteps held",
		}),
		capacity: prometheus.NewGauge(prometheus.GaugeOpts{
			Namespace:   "trajectory",
			Subsystem:   "ring_buffer",
			Name:        "allocated_steps",
			ConstLabels: labels,
			Help:        "Largest allocated length across fields",
		}),
	}

	for _, c := range []prometheus.Collector{m.appends, m.absorbs, m.grows, m.occupancy, m.capacity} {
		if err := reg.Register(c); err != nil {
			return nil, fmt.Errorf("register ring buffer metrics for %q: %w", name, err)
		}
	}
	return m, nil
}

func (m *ringMetrics) recordAppend(occupancy int) {
	if m == nil {
		return
	}
	m.appends.Inc()
	m.occupancy.Set(float64(occupancy))
}

func (m *ringMetrics) recordAbsorb(r regime, occupancy int) {
	if m == nil {
		return
	}
	m.absorbs.WithLabelValues(r.String()).Inc()
	m.occupancy.Set(float64(occupancy))
}

func (m *ringMetrics) recordGrow(allocated int) {
	if m == nil {
		return
	}
	m.grows.Inc()
	m.capacity.Set(float64(allocated))
}

func (m *ringMetrics) recordAllocated(allocated int) {
	if m == nil {
		return
	}
	m.capacity.Set(float64(allocated))
}
