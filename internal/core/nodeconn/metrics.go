package nodeconn

import (
	"reflect"

	"github.com/prometheus/client_golang/prometheus"
)

const metricsNamespace = "secretmesh"
const metricsSubsystem = "nodeconn"

type metrics struct {
	// 所有字段必须导出，Metrics() 通过反射收集
	Lookups               *prometheus.CounterVec
	LookupDurationSeconds prometheus.Histogram
	LookupQueries         prometheus.Counter
	ConnectionsCreated    prometheus.Counter
	ConnectionsFailed     prometheus.Counter
	ConnectionsDestroyed  prometheus.Counter
	ActiveConnections     prometheus.Gauge
	HolePunchSent         prometheus.Counter
	HolePunchRelayed      *prometheus.CounterVec
	HolePunchReceived     *prometheus.CounterVec
}

func newMetrics() metrics {
	return metrics{
		Lookups: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: metricsNamespace,
			Subsystem: metricsSubsystem,
			Name:      "lookups_total",
			Help:      "Number of iterative lookups by result.",
		}, []string{"result"}),
		LookupDurationSeconds: prometheus.NewHistogram(prometheus.HistogramOpts{
			Namespace: metricsNamespace,
			Subsystem: metricsSubsystem,
			Name:      "lookup_duration_seconds",
			Help:      "Duration of iterative lookups.",
			Buckets:   []float64{.05, .1, .25, .5, 1, 2.5, 5, 10, 30, 60},
		}),
		LookupQueries: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: metricsNamespace,
			Subsystem: metricsSubsystem,
			Name:      "lookup_queries_total",
			Help:      "Number of closest nodes queries sent to peers.",
		}),
		ConnectionsCreated: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: metricsNamespace,
			Subsystem: metricsSubsystem,
			Name:      "connections_created_total",
			Help:      "Number of node sessions created.",
		}),
		ConnectionsFailed: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: metricsNamespace,
			Subsystem: metricsSubsystem,
			Name:      "connections_failed_total",
			Help:      "Number of node sessions that failed to open.",
		}),
		ConnectionsDestroyed: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: metricsNamespace,
			Subsystem: metricsSubsystem,
			Name:      "connections_destroyed_total",
			Help:      "Number of node sessions destroyed.",
		}),
		ActiveConnections: prometheus.NewGauge(prometheus.GaugeOpts{
			Namespace: metricsNamespace,
			Subsystem: metricsSubsystem,
			Name:      "active_connections",
			Help:      "Number of cached node sessions.",
		}),
		HolePunchSent: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: metricsNamespace,
			Subsystem: metricsSubsystem,
			Name:      "hole_punch_sent_total",
			Help:      "Number of hole punch messages sent to relays.",
		}),
		HolePunchRelayed: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: metricsNamespace,
			Subsystem: metricsSubsystem,
			Name:      "hole_punch_relayed_total",
			Help:      "Number of hole punch relay requests by result.",
		}, []string{"result"}),
		HolePunchReceived: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: metricsNamespace,
			Subsystem: metricsSubsystem,
			Name:      "hole_punch_received_total",
			Help:      "Number of hole punch messages addressed to this node by result.",
		}, []string{"result"}),
	}
}

// Metrics 返回管理器的 Prometheus 采集器
func (m *Manager) Metrics() (cs []prometheus.Collector) {
	v := reflect.Indirect(reflect.ValueOf(m.metrics))
	for i := 0; i < v.NumField(); i++ {
		if !v.Field(i).CanInterface() {
			continue
		}
		if u, ok := v.Field(i).Interface().(prometheus.Collector); ok {
			cs = append(cs, u)
		}
	}
	return cs
}
