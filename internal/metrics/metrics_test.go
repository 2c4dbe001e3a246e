package metrics

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	herrors "github.com/frankli0324/go-httpssl/internal/errors"
	"github.com/frankli0324/go-httpssl/utils/netpool"
)

func TestResult(t *testing.T) {
	for err, want := range map[error]string{
		nil: ResultOK,
		herrors.NewConnectTimeout("handshake", time.Second, context.DeadlineExceeded): ResultTimeout,
		&herrors.CertificateVerifyError{Reason: herrors.ReasonExpired}:                ResultVerifyFailed,
		&herrors.HostnameMismatchError{Host: "a.com"}:                                 ResultHostnameMismatch,
		&herrors.CipherNegotiationError{Reason: herrors.ReasonNoCipherMatch}:          ResultNoCipher,
		errors.New("reset"): ResultTransport,
	} {
		assert.Equal(t, want, Result(err), "%v", err)
	}
}

func TestCounters(t *testing.T) {
	reg := prometheus.NewRegistry()
	m, err := New(reg)
	require.NoError(t, err)

	m.Handshake(nil, 10*time.Millisecond)
	m.Handshake(nil, 20*time.Millisecond)
	m.Handshake(&herrors.CertificateVerifyError{}, time.Millisecond)
	assert.Equal(t, 2.0, testutil.ToFloat64(m.Handshakes(ResultOK)))
	assert.Equal(t, 1.0, testutil.ToFloat64(m.Handshakes(ResultVerifyFailed)))

	var o netpool.Observer = m
	o.Hit(netpool.Key{})
	o.Miss(netpool.Key{})
	o.Miss(netpool.Key{})
	o.Evict(netpool.Key{}, netpool.EvictStale)
	assert.Equal(t, 1.0, testutil.ToFloat64(m.CacheHits()))
	assert.Equal(t, 2.0, testutil.ToFloat64(m.CacheMisses()))
	assert.Equal(t, 1.0, testutil.ToFloat64(m.Evictions(netpool.EvictStale)))

	n, err := testutil.GatherAndCount(reg, "httpssl_handshake_duration_seconds")
	require.NoError(t, err)
	assert.Equal(t, 1, n)

	_, err = New(reg)
	assert.Error(t, err, "registering twice fails")
}

func TestNilMetrics(t *testing.T) {
	var m *Metrics
	assert.NotPanics(t, func() {
		m.Handshake(nil, time.Second)
		m.Hit(netpool.Key{})
		m.Miss(netpool.Key{})
		m.Evict(netpool.Key{}, netpool.EvictClear)
	})

	m = MustNew(nil)
	m.Hit(netpool.Key{})
	assert.Equal(t, 1.0, testutil.ToFloat64(m.CacheHits()))
}
