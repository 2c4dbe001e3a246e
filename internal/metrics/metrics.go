package metrics

import (
	"errors"
	"time"

	"github.com/prometheus/client_golang/prometheus"

	herrors "github.com/frankli0324/go-httpssl/internal/errors"
	"github.com/frankli0324/go-httpssl/utils/netpool"
)

const metricNamespace = "httpssl"

// handshake results
const (
	ResultOK               = "ok"
	ResultVerifyFailed     = "verify_failed"
	ResultHostnameMismatch = "hostname_mismatch"
	ResultNoCipher         = "cipher"
	ResultTimeout          = "timeout"
	ResultTransport        = "transport"
)

// Metrics collects handshake and session cache statistics of one client.
// A nil *Metrics records nothing.
type Metrics struct {
	handshakes        *prometheus.CounterVec
	handshakeDuration prometheus.Histogram
	cacheHits         prometheus.Counter
	cacheMisses       prometheus.Counter
	cacheEvictions    *prometheus.CounterVec
}

var _ netpool.Observer = (*Metrics)(nil)

// New creates the collectors. A nil registerer leaves them unregistered,
// they can still be read through [Metrics.Collectors].
func New(registerer prometheus.Registerer) (*Metrics, error) {
	m := &Metrics{
		handshakes: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: metricNamespace,
				Name:      "handshakes_total",
				Help:      "TLS handshakes by result",
			},
			[]string{"result"},
		),
		handshakeDuration: prometheus.NewHistogram(
			prometheus.HistogramOpts{
				Namespace: metricNamespace,
				Name:      "handshake_duration_seconds",
				Help:      "Duration of the TLS handshake",
				Buckets:   prometheus.ExponentialBuckets(0.001, 1.5, 20),
			},
		),
		cacheHits: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: metricNamespace,
			Name:      "session_cache_hits_total",
			Help:      "Requests served on a cached session",
		}),
		cacheMisses: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: metricNamespace,
			Name:      "session_cache_misses_total",
			Help:      "Requests that needed a new session",
		}),
		cacheEvictions: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: metricNamespace,
				Name:      "session_cache_evictions_total",
				Help:      "Sessions dropped from the cache by reason",
			},
			[]string{"reason"},
		),
	}
	if registerer != nil {
		for _, c := range m.Collectors() {
			if err := registerer.Register(c); err != nil {
				return nil, err
			}
		}
	}
	return m, nil
}

// MustNew is like New but panics when registration fails.
func MustNew(registerer prometheus.Registerer) *Metrics {
	m, err := New(registerer)
	if err != nil {
		panic(err)
	}
	return m
}

func (m *Metrics) Collectors() []prometheus.Collector {
	return []prometheus.Collector{m.handshakes, m.handshakeDuration, m.cacheHits, m.cacheMisses, m.cacheEvictions}
}

// Handshake records a finished handshake attempt.
func (m *Metrics) Handshake(err error, took time.Duration) {
	if m == nil {
		return
	}
	m.handshakes.WithLabelValues(Result(err)).Inc()
	m.handshakeDuration.Observe(took.Seconds())
}

func (m *Metrics) Hit(netpool.Key) {
	if m != nil {
		m.cacheHits.Inc()
	}
}

func (m *Metrics) Miss(netpool.Key) {
	if m != nil {
		m.cacheMisses.Inc()
	}
}

func (m *Metrics) Evict(_ netpool.Key, reason string) {
	if m != nil {
		m.cacheEvictions.WithLabelValues(reason).Inc()
	}
}

// Handshakes returns the counter for result, for tests and diagnostics.
func (m *Metrics) Handshakes(result string) prometheus.Counter {
	return m.handshakes.WithLabelValues(result)
}

func (m *Metrics) Evictions(reason string) prometheus.Counter {
	return m.cacheEvictions.WithLabelValues(reason)
}

func (m *Metrics) CacheHits() prometheus.Counter   { return m.cacheHits }
func (m *Metrics) CacheMisses() prometheus.Counter { return m.cacheMisses }

// Result maps a handshake error to its label.
func Result(err error) string {
	var (
		cve *herrors.CertificateVerifyError
		hme *herrors.HostnameMismatchError
		cne *herrors.CipherNegotiationError
	)
	switch {
	case err == nil:
		return ResultOK
	case herrors.IsTimeout(err):
		return ResultTimeout
	case errors.As(err, &cve):
		return ResultVerifyFailed
	case errors.As(err, &hme):
		return ResultHostnameMismatch
	case errors.As(err, &cne):
		return ResultNoCipher
	}
	return ResultTransport
}
