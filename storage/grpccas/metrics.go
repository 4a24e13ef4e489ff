package grpccas

import (
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"google.golang.org/grpc/status"
)

// Metrics records per-method request counts and latencies for a Server.
// A nil *Metrics records nothing.
type Metrics struct {
	requests *prometheus.CounterVec
	latency  *prometheus.HistogramVec
	bytes    *prometheus.CounterVec
}

// NewMetrics creates the server collectors and registers them with reg
// when reg is non-nil.
func NewMetrics(reg prometheus.Registerer) *Metrics {
	m := &Metrics{
		requests: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: "docloader",
			Subsystem: "grpccas",
			Name:      "requests_total",
			Help:      "CAS gRPC requests by method and status code.",
		}, []string{"method", "code"}),
		latency: prometheus.NewHistogramVec(prometheus.HistogramOpts{
			Namespace: "docloader",
			Subsystem: "grpccas",
			Name:      "request_duration_seconds",
			Help:      "CAS gRPC request latency by method.",
			Buckets:   prometheus.DefBuckets,
		}, []string{"method"}),
		bytes: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: "docloader",
			Subsystem: "grpccas",
			Name:      "block_bytes_total",
			Help:      "Block bytes moved by method.",
		}, []string{"method"}),
	}
	if reg != nil {
		reg.MustRegister(m.requests, m.latency, m.bytes)
	}
	return m
}

func (m *Metrics) observe(method string, start time.Time, n int, err error) {
	if m == nil {
		return
	}
	m.requests.WithLabelValues(method, status.Code(err).String()).Inc()
	m.latency.WithLabelValues(method).Observe(time.Since(start).Seconds())
	if err == nil && n > 0 {
		m.bytes.WithLabelValues(method).Add(float64(n))
	}
}
