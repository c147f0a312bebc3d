package events

import (
	"errors"

	"github.com/prometheus/client_golang/prometheus"
)

// Metrics holds the bus collectors. A nil *Metrics records nothing.
type Metrics struct {
	published   *prometheus.CounterVec
	delivered   *prometheus.CounterVec
	dropped     *prometheus.CounterVec
	faults      *prometheus.CounterVec
	subscribers *prometheus.GaugeVec
}

// NewMetrics creates the bus collectors and registers them with reg. When
// reg already holds them the existing collectors are reused.
func NewMetrics(reg prometheus.Registerer) *Metrics {
	m := &Metrics{
		published: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "dealerchat_bus_published_total",
			Help: "Events published per topic.",
		}, []string{"topic"}),
		delivered: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "dealerchat_bus_delivered_total",
			Help: "Events queued to subscribers per topic.",
		}, []string{"topic"}),
		dropped: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "dealerchat_bus_dropped_total",
			Help: "Events evicted from full subscriber buffers per topic.",
		}, []string{"topic"}),
		faults: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "dealerchat_bus_faults_total",
			Help: "Recovered predicate or consumer panics per topic.",
		}, []string{"topic"}),
		subscribers: prometheus.NewGaugeVec(prometheus.GaugeOpts{
			Name: "dealerchat_bus_subscribers",
			Help: "Live subscriptions per topic.",
		}, []string{"topic"}),
	}
	if reg == nil {
		return m
	}
	m.published = register(reg, m.published)
	m.delivered = register(reg, m.delivered)
	m.dropped = register(reg, m.dropped)
	m.faults = register(reg, m.faults)
	m.subscribers = register(reg, m.subscribers)
	return m
}

func register[C prometheus.Collector](reg prometheus.Registerer, c C) C {
	if err := reg.Register(c); err != nil {
		var are prometheus.AlreadyRegisteredError
		if errors.As(err, &are) {
			if existing, ok := are.ExistingCollector.(C); ok {
				return existing
			}
		}
	}
	return c
}

func (m *Metrics) incPublished(topic string) {
	if m != nil {
		m.published.WithLabelValues(topic).Inc()
	}
}

func (m *Metrics) addDelivered(topic string, n int) {
	if m != nil && n > 0 {
		m.delivered.WithLabelValues(topic).Add(float64(n))
	}
}

func (m *Metrics) incDropped(topic string) {
	if m != nil {
		m.dropped.WithLabelValues(topic).Inc()
	}
}

func (m *Metrics) incFault(topic string) {
	if m != nil {
		m.faults.WithLabelValues(topic).Inc()
	}
}

func (m *Metrics) setSubscribers(topic string, n int) {
	if m != nil {
		m.subscribers.WithLabelValues(topic).Set(float64(n))
	}
}
