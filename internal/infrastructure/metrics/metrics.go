// Package metrics exposes the service's Prometheus metrics.
//
// Metrics live on a private registry rather than the global default so
// tests can build as many instances as they like. Every method is safe on
// a nil *Metrics, which records nothing.
package metrics

import (
	"bufio"
	"net"
	"net/http"
	"strconv"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

const namespace = "graylogic_adapters"

// Metrics holds every collector the service records.
type Metrics struct {
	registry *prometheus.Registry

	queueDepth      prometheus.Gauge
	commands        *prometheus.CounterVec
	dispatchSeconds *prometheus.HistogramVec
	waitSeconds     prometheus.Histogram
	decisions       *prometheus.CounterVec
	connected       *prometheus.GaugeVec
	events          *prometheus.CounterVec
	requests        *prometheus.CounterVec
}

// New creates and registers the collectors, plus the Go runtime and process
// collectors.
func New() *Metrics {
	m := &Metrics{
		registry: prometheus.NewRegistry(),
		queueDepth: prometheus.NewGauge(prometheus.GaugeOpts{
			Namespace: namespace,
			Name:      "queue_depth",
			Help:      "Commands waiting in the dispatch queue.",
		}),
		commands: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "commands_total",
			Help:      "Dispatched commands by adapter, kind and result.",
		}, []string{"adapter", "kind", "result"}),
		dispatchSeconds: prometheus.NewHistogramVec(prometheus.HistogramOpts{
			Namespace: namespace,
			Name:      "command_dispatch_seconds",
			Help:      "Time spent executing a command in its adapter.",
			Buckets:   prometheus.DefBuckets,
		}, []string{"adapter"}),
		waitSeconds: prometheus.NewHistogram(prometheus.HistogramOpts{
			Namespace: namespace,
			Name:      "command_queue_wait_seconds",
			Help:      "Time a command spent queued before dispatch.",
			Buckets:   []float64{.001, .01, .05, .1, .25, .5, 1, 2.5, 5, 10},
		}),
		decisions: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "policy_decisions_total",
			Help:      "Policy verdicts by decision and risk level.",
		}, []string{"decision", "risk"}),
		connected: prometheus.NewGaugeVec(prometheus.GaugeOpts{
			Namespace: namespace,
			Name:      "adapter_connected",
			Help:      "1 when the adapter reports a live connection.",
		}, []string{"adapter"}),
		events: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "adapter_events_total",
			Help:      "Adapter events by adapter and type.",
		}, []string{"adapter", "type"}),
		requests: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "http_requests_total",
			Help:      "API requests by route, method and status.",
		}, []string{"route", "method", "status"}),
	}
	m.registry.MustRegister(
		m.queueDepth, m.commands, m.dispatchSeconds, m.waitSeconds,
		m.decisions, m.connected, m.events, m.requests,
		collectors.NewGoCollector(),
		collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}),
	)
	return m
}

// Registry returns the underlying registry.
func (m *Metrics) Registry() *prometheus.Registry {
	if m == nil {
		return nil
	}
	return m.registry
}

// Handler serves the registry in the Prometheus exposition format.
func (m *Metrics) Handler() http.Handler {
	if m == nil {
		return http.NotFoundHandler()
	}
	return promhttp.HandlerFor(m.registry, promhttp.HandlerOpts{Registry: m.registry})
}

// SetQueueDepth records the current queue length.
func (m *Metrics) SetQueueDepth(n int) {
	if m == nil {
		return
	}
	m.queueDepth.Set(float64(n))
}

// ObserveCommand records one dispatched command.
func (m *Metrics) ObserveCommand(adapterID, kind string, waited, took time.Duration, err error) {
	if m == nil {
		return
	}
	result := "success"
	if err != nil {
		result = "error"
	}
	m.commands.WithLabelValues(adapterID, kind, result).Inc()
	m.dispatchSeconds.WithLabelValues(adapterID).Observe(took.Seconds())
	m.waitSeconds.Observe(waited.Seconds())
}

// AddCleared records commands rejected by a queue clear.
func (m *Metrics) AddCleared(adapterID, kind string) {
	if m == nil {
		return
	}
	m.commands.WithLabelValues(adapterID, kind, "cleared").Inc()
}

// ObserveDecision records a policy verdict.
func (m *Metrics) ObserveDecision(decision, risk string) {
	if m == nil {
		return
	}
	m.decisions.WithLabelValues(decision, risk).Inc()
}

// SetConnected records an adapter's connected flag.
func (m *Metrics) SetConnected(adapterID string, connected bool) {
	if m == nil {
		return
	}
	v := 0.0
	if connected {
		v = 1
	}
	m.connected.WithLabelValues(adapterID).Set(v)
}

// ObserveEvent counts an adapter event.
func (m *Metrics) ObserveEvent(adapterID, eventType string) {
	if m == nil {
		return
	}
	m.events.WithLabelValues(adapterID, eventType).Inc()
}

// Middleware counts API requests. route names the request for the label,
// keeping cardinality bounded when paths carry IDs.
func (m *Metrics) Middleware(route func(*http.Request) string) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		if m == nil {
			return next
		}
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			rec := &statusRecorder{ResponseWriter: w, status: http.StatusOK}
			next.ServeHTTP(rec, r)
			m.requests.WithLabelValues(route(r), r.Method, strconv.Itoa(rec.status)).Inc()
		})
	}
}

type statusRecorder struct {
	http.ResponseWriter
	status int
}

func (r *statusRecorder) WriteHeader(code int) {
	r.status = code
	r.ResponseWriter.WriteHeader(code)
}

// Unwrap exposes the wrapped writer to http.ResponseController.
func (r *statusRecorder) Unwrap() http.ResponseWriter { return r.ResponseWriter }

// Hijack lets WebSocket upgrades pass through the recorder.
func (r *statusRecorder) Hijack() (net.Conn, *bufio.ReadWriter, error) {
	return http.NewResponseController(r.ResponseWriter).Hijack()
}
