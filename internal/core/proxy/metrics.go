package proxy

import (
	"reflect"

	"github.com/prometheus/client_golang/prometheus"
)

const metricsNamespace = "secretmesh"
const metricsSubsystem = "proxy"

type metrics struct {
	// 所有字段必须导出，Metrics() 通过反射收集
	ConnectionsOpened     *prometheus.CounterVec
	ConnectionsFailed     *prometheus.CounterVec
	ConnectionsClosed     *prometheus.CounterVec
	ActiveConnections     *prometheus.GaugeVec
	KeepAliveTimeouts     prometheus.Counter
	PingsSent             prometheus.Counter
	PongsSent             prometheus.Counter
	InvalidPackets        prometheus.Counter
	IngressRequests       *prometheus.CounterVec
	StreamsSpliced        prometheus.Counter
	ComposeDurationSecond prometheus.Histogram
}

func newMetrics() metrics {
	return metrics{
		ConnectionsOpened: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: metricsNamespace,
			Subsystem: metricsSubsystem,
			Name:      "connections_opened_total",
			Help:      "Number of connections that reached established.",
		}, []string{"direction"}),
		ConnectionsFailed: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: metricsNamespace,
			Subsystem: metricsSubsystem,
			Name:      "connections_failed_total",
			Help:      "Number of connections that failed while composing.",
		}, []string{"direction", "reason"}),
		ConnectionsClosed: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: metricsNamespace,
			Subsystem: metricsSubsystem,
			Name:      "connections_closed_total",
			Help:      "Number of established connections that were closed.",
		}, []string{"direction"}),
		ActiveConnections: prometheus.NewGaugeVec(prometheus.GaugeOpts{
			Namespace: metricsNamespace,
			Subsystem: metricsSubsystem,
			Name:      "active_connections",
			Help:      "Number of established connections.",
		}, []string{"direction"}),
		KeepAliveTimeouts: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: metricsNamespace,
			Subsystem: metricsSubsystem,
			Name:      "keepalive_timeouts_total",
			Help:      "Number of connections closed by keep alive timeout.",
		}),
		PingsSent: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: metricsNamespace,
			Subsystem: metricsSubsystem,
			Name:      "pings_sent_total",
			Help:      "Number of ping packets sent.",
		}),
		PongsSent: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: metricsNamespace,
			Subsystem: metricsSubsystem,
			Name:      "pongs_sent_total",
			Help:      "Number of pong packets sent.",
		}),
		InvalidPackets: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: metricsNamespace,
			Subsystem: metricsSubsystem,
			Name:      "invalid_packets_total",
			Help:      "Number of non-QUIC packets that failed to decode.",
		}),
		IngressRequests: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: metricsNamespace,
			Subsystem: metricsSubsystem,
			Name:      "ingress_requests_total",
			Help:      "Number of CONNECT requests by response code.",
		}, []string{"code"}),
		StreamsSpliced: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: metricsNamespace,
			Subsystem: metricsSubsystem,
			Name:      "streams_spliced_total",
			Help:      "Number of streams spliced to TCP sockets.",
		}),
		ComposeDurationSecond: prometheus.NewHistogram(prometheus.HistogramOpts{
			Namespace: metricsNamespace,
			Subsystem: metricsSubsystem,
			Name:      "compose_duration_seconds",
			Help:      "Time from open request to established.",
			Buckets:   []float64{0.01, 0.05, 0.1, 0.25, 0.5, 1, 2.5, 5, 10, 20},
		}),
	}
}

// Metrics 返回代理的 Prometheus 采集器
func (p *Proxy) Metrics() (cs []prometheus.Collector) {
	v := reflect.Indirect(reflect.ValueOf(p.metrics))
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
