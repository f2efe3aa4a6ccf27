package stream

import (
	"github.com/prometheus/client_golang/prometheus"

	"github.com/c360/marketfeed/metric"
)

// clientMetrics holds Prometheus metrics for the stream client. All
// methods are nil-safe so the client works without a registry.
type clientMetrics struct {
	messagesReceived prometheus.Counter
	reconnects       prometheus.Counter
	requestsSent     prometheus.Counter
	rollbacks        prometheus.Counter
	parseErrors      prometheus.Counter

	desiredTopics prometheus.Gauge
	activeTopics  prometheus.Gauge
	connected     prometheus.Gauge
}

// newClientMetrics creates and registers stream client metrics
func newClientMetrics(registry *metric.MetricsRegistry) (*clientMetrics, error) {
	m := &clientMetrics{
		messagesReceived: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: "marketfeed",
			Subsystem: "stream",
			Name:      "messages_received_total",
			Help:      "Total number of inbound text frames",
		}),
		reconnects: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: "marketfeed",
			Subsystem: "stream",
			Name:      "reconnects_total",
			Help:      "Total number of connection attempts after the first",
		}),
		requestsSent: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: "marketfeed",
			Subsystem: "stream",
			Name:      "requests_sent_total",
			Help:      "Total number of outbound control requests",
		}),
		rollbacks: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: "marketfeed",
			Subsystem: "stream",
			Name:      "rollbacks_total",
			Help:      "Total number of optimistic mutations rolled back on rejection",
		}),
		parseErrors: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: "marketfeed",
			Subsystem: "stream",
			Name:      "parse_errors_total",
			Help:      "Total number of inbound frames that failed to parse",
		}),
		desiredTopics: prometheus.NewGauge(prometheus.GaugeOpts{
			Namespace: "marketfeed",
			Subsystem: "stream",
			Name:      "desired_topics",
			Help:      "Current size of the desired subscription set",
		}),
		activeTopics: prometheus.NewGauge(prometheus.GaugeOpts{
			Namespace: "marketfeed",
			Subsystem: "stream",
			Name:      "active_topics",
			Help:      "Current size of the confirmed active subscription set",
		}),
		connected: prometheus.NewGauge(prometheus.GaugeOpts{
			Namespace: "marketfeed",
			Subsystem: "stream",
			Name:      "connected",
			Help:      "1 while the websocket connection is established",
		}),
	}

	const component = "stream"
	registrations := []struct {
		name      string
		collector prometheus.Collector
	}{
		{"messages_received", m.messagesReceived},
		{"reconnects", m.reconnects},
		{"requests_sent", m.requestsSent},
		{"rollbacks", m.rollbacks},
		{"parse_errors", m.parseErrors},
		{"desired_topics", m.desiredTopics},
		{"active_topics", m.activeTopics},
		{"connected", m.connected},
	}
	for _, reg := range registrations {
		var err error
		// Gauge first: every Gauge also satisfies the Counter interface
		switch c := reg.collector.(type) {
		case prometheus.Gauge:
			err = registry.RegisterGauge(component, reg.name, c)
		case prometheus.Counter:
			err = registry.RegisterCounter(component, reg.name, c)
		}
		if err != nil {
			return nil, err
		}
	}

	return m, nil
}

func (m *clientMetrics) incMessages() {
	if m != nil {
		m.messagesReceived.Inc()
	}
}

func (m *clientMetrics) incReconnects() {
	if m != nil {
		m.reconnects.Inc()
	}
}

func (m *clientMetrics) incRequests() {
	if m != nil {
		m.requestsSent.Inc()
	}
}

func (m *clientMetrics) incRollbacks() {
	if m != nil {
		m.rollbacks.Inc()
	}
}

func (m *clientMetrics) incParseErrors() {
	if m != nil {
		m.parseErrors.Inc()
	}
}

func (m *clientMetrics) setSets(desired, active int) {
	if m != nil {
		m.desiredTopics.Set(float64(desired))
		m.activeTopics.Set(float64(active))
	}
}

func (m *clientMetrics) setConnected(up bool) {
	if m == nil {
		return
	}
	if up {
		m.connected.Set(1)
	} else {
		m.connected.Set(0)
	}
}
