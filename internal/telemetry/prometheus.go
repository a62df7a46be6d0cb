package telemetry

import (
	"io"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/common/expfmt"
)

// Registry holds the process metrics exposed on /metrics
var Registry = prometheus.NewRegistry()

func init() {
	Registry.MustRegister(
		DispatchTotal, DispatchDuration, ActiveSessions,
		HTTPRequestsTotal,
	)
}

// DispatchTotal counts dispatches by outcome
var DispatchTotal = prometheus.NewCounterVec(
	prometheus.CounterOpts{
		Name: "tutorchat_dispatch_total",
		Help: "Chat dispatches by outcome",
	},
	[]string{"outcome"}, // ok | cached | empty_input | inference_error
)

// DispatchDuration observes provider round-trip time in seconds
var DispatchDuration = prometheus.NewHistogramVec(
	prometheus.HistogramOpts{
		Name:    "tutorchat_dispatch_duration_seconds",
		Help:    "Provider round-trip time in seconds",
		Buckets: prometheus.DefBuckets,
	},
	[]string{"backend"},
)

// ActiveSessions tracks live browser sessions
var ActiveSessions = prometheus.NewGauge(
	prometheus.GaugeOpts{
		Name: "tutorchat_active_sessions",
		Help: "Live chat sessions",
	},
)

// HTTPRequestsTotal counts HTTP requests by route and status
var HTTPRequestsTotal = prometheus.NewCounterVec(
	prometheus.CounterOpts{
		Name: "tutorchat_http_requests_total",
		Help: "HTTP requests by route and status code",
	},
	[]string{"route", "code"},
)

// WritePrometheus writes the registry in Prometheus text format
func WritePrometheus(w io.Writer) error {
	families, err := Registry.Gather()
	if err != nil {
		return err
	}
	enc := expfmt.NewEncoder(w, expfmt.NewFormat(expfmt.TypeTextPlain))
	for _, mf := range families {
		if err := enc.Encode(mf); err != nil {
			return err
		}
	}
	return nil
}
