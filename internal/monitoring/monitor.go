package monitoring

import (
	"sync"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

// Prometheus collectors for the ordering pipeline.
var (
	TurnsTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "comanda_turns_total",
		Help: "Inbound conversational turns by gatekeeper decision.",
	}, []string{"decision"})

	ModelErrorsTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "comanda_model_errors_total",
		Help: "Failed model invocations by kind.",
	}, []string{"kind"})

	ModelLatency = promauto.NewHistogram(prometheus.HistogramOpts{
		Name:    "comanda_model_latency_seconds",
		Help:    "Latency of model turns.",
		Buckets: prometheus.ExponentialBuckets(0.25, 2, 10),
	})

	OrdersTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "comanda_orders_total",
		Help: "Committed orders by origin.",
	}, []string{"origin"})

	ClosedNoticesTotal = promauto.NewCounter(prometheus.CounterOpts{
		Name: "comanda_closed_notices_total",
		Help: "Closed notices sent to customers.",
	})
)

// Monitor collects and provides a metrics snapshot for the staff dashboard
type Monitor struct {
	metrics      map[string]interface{}
	metricsMutex sync.RWMutex
	startTime    time.Time
}

// NewMonitor creates a new monitoring instance
func NewMonitor() *Monitor {
	return &Monitor{
		metrics:   make(map[string]interface{}),
		startTime: time.Now(),
	}
}

// RecordMetric records a metric value
func (m *Monitor) RecordMetric(name string, value interface{}) {
	m.metricsMutex.Lock()
	defer m.metricsMutex.Unlock()
	m.metrics[name] = value
}

// IncrMetric increments an integer metric.
func (m *Monitor) IncrMetric(name string) {
	m.metricsMutex.Lock()
	defer m.metricsMutex.Unlock()
	if current, ok := m.metrics[name].(int); ok {
		m.metrics[name] = current + 1
		return
	}
	m.metrics[name] = 1
}

// GetMetric returns a specific metric value
func (m *Monitor) GetMetric(name string) (interface{}, bool) {
	m.metricsMutex.RLock()
	defer m.metricsMutex.RUnlock()
	value, exists := m.metrics[name]
	return value, exists
}

// GetMetrics returns all current metrics
func (m *Monitor) GetMetrics() map[string]interface{} {
	m.metricsMutex.RLock()
	defer m.metricsMutex.RUnlock()

	// Create a copy to avoid concurrent map access
	metrics := make(map[string]interface{}, len(m.metrics))
	for k, v := range m.metrics {
		metrics[k] = v
	}

	// Add system metrics
	metrics["uptime_seconds"] = time.Since(m.startTime).Seconds()

	return metrics
}

// Reset clears all metrics
func (m *Monitor) Reset() {
	m.metricsMutex.Lock()
	defer m.metricsMutex.Unlock()
	m.metrics = make(map[string]interface{})
}
