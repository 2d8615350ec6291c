package observability

import (
	"errors"
	"net/http"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/prometheus/client_golang/prometheus/promauto"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/hashdriveorg/hashdrive-go/ledger"
)

const namespace = "hashdrive"

// Metrics holds the Prometheus collectors of a node. It satisfies the
// Observer interfaces of the ledger, auth and drive packages.
type Metrics struct {
	reg *prometheus.Registry

	UploadsTotal    *prometheus.CounterVec
	UploadBytes     prometheus.Counter
	DownloadsTotal  *prometheus.CounterVec
	OrphansTotal    *prometheus.CounterVec
	ChallengesTotal *prometheus.CounterVec

	LedgerCalls       *prometheus.CounterVec
	LedgerCallSeconds *prometheus.HistogramVec
	LedgerWrites      *prometheus.CounterVec

	HTTPRequests *prometheus.CounterVec
	HTTPSeconds  *prometheus.HistogramVec
}

// NewMetrics creates all collectors on a private registry, together with
// the Go runtime and process collectors.
func NewMetrics() *Metrics {
	reg := prometheus.NewRegistry()
	reg.MustRegister(
		collectors.NewGoCollector(),
		collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}),
	)
	f := promauto.With(reg)

	return &Metrics{
		reg: reg,

		UploadsTotal: f.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "uploads_total",
			Help:      "Uploads by outcome",
		}, []string{"outcome"}),

		UploadBytes: f.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "upload_bytes_total",
			Help:      "Bytes of successfully recorded uploads",
		}),

		DownloadsTotal: f.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "downloads_total",
			Help:      "Download requests by outcome",
		}, []string{"outcome"}),

		OrphansTotal: f.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "orphans_total",
			Help:      "Stored files whose ledger record could not be confirmed",
		}, []string{"reason"}),

		ChallengesTotal: f.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "auth_challenges_total",
			Help:      "Wallet challenge operations by outcome",
		}, []string{"op", "outcome"}),

		LedgerCalls: f.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "ledger",
			Name:      "calls_total",
			Help:      "Ledger RPC calls by method and result",
		}, []string{"method", "result"}),

		LedgerCallSeconds: f.NewHistogramVec(prometheus.HistogramOpts{
			Namespace: namespace,
			Subsystem: "ledger",
			Name:      "call_duration_seconds",
			Help:      "Ledger RPC call latency",
			Buckets:   []float64{.01, .05, .1, .25, .5, 1, 2.5, 5, 10, 30, 120},
		}, []string{"method"}),

		LedgerWrites: f.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "ledger",
			Name:      "writes_total",
			Help:      "Ledger state-changing transactions by outcome",
		}, []string{"op", "outcome"}),

		HTTPRequests: f.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "http",
			Name:      "requests_total",
			Help:      "HTTP requests by route and status code",
		}, []string{"route", "code"}),

		HTTPSeconds: f.NewHistogramVec(prometheus.HistogramOpts{
			Namespace: namespace,
			Subsystem: "http",
			Name:      "request_duration_seconds",
			Help:      "HTTP request latency",
			Buckets:   prometheus.DefBuckets,
		}, []string{"route"}),
	}
}

// Registry returns the private registry.
func (m *Metrics) Registry() *prometheus.Registry { return m.reg }

// Handler exposes the Prometheus metrics endpoint.
func (m *Metrics) Handler() http.Handler {
	return promhttp.HandlerFor(m.reg, promhttp.HandlerOpts{Registry: m.reg})
}

// ObserveUpload implements drive.Observer.
func (m *Metrics) ObserveUpload(outcome string, size int64) {
	m.UploadsTotal.WithLabelValues(outcome).Inc()
	if outcome == "recorded" && size > 0 {
		m.UploadBytes.Add(float64(size))
	}
}

// ObserveDownload implements drive.Observer.
func (m *Metrics) ObserveDownload(outcome string) {
	m.DownloadsTotal.WithLabelValues(outcome).Inc()
}

// ObserveOrphan implements drive.Observer.
func (m *Metrics) ObserveOrphan(reason string) {
	m.OrphansTotal.WithLabelValues(reason).Inc()
}

// ObserveChallenge implements auth.Observer.
func (m *Metrics) ObserveChallenge(op, outcome string) {
	m.ChallengesTotal.WithLabelValues(op, outcome).Inc()
}

// ObserveCall implements ledger.Observer.
func (m *Metrics) ObserveCall(method string, elapsed time.Duration, err error) {
	m.LedgerCalls.WithLabelValues(method, callResult(err)).Inc()
	m.LedgerCallSeconds.WithLabelValues(method).Observe(elapsed.Seconds())
}

// ObserveWrite implements ledger.Observer.
func (m *Metrics) ObserveWrite(op, outcome string) {
	m.LedgerWrites.WithLabelValues(op, outcome).Inc()
}

// ObserveHTTP records one served request.
func (m *Metrics) ObserveHTTP(route string, code int, elapsed time.Duration) {
	m.HTTPRequests.WithLabelValues(route, statusLabel(code)).Inc()
	m.HTTPSeconds.WithLabelValues(route).Observe(elapsed.Seconds())
}

func callResult(err error) string {
	switch {
	case err == nil:
		return "ok"
	case errors.Is(err, ledger.ErrConnectionFailed):
		return "unavailable"
	case errors.Is(err, ledger.ErrRPC):
		return "rpc_error"
	default:
		return "error"
	}
}

func statusLabel(code int) string {
	switch {
	case code >= 500:
		return "5xx"
	case code >= 400:
		return "4xx"
	case code >= 300:
		return "3xx"
	default:
		return "2xx"
	}
}
