package metrics

import (
	"io"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestMetrics_Record(t *testing.T) {
	reg := prometheus.NewRegistry()
	m, err := New(reg)
	require.NoError(t, err)

	m.SignableStored(true)
	m.SignableStored(false)
	m.SignatureStored("ok")
	m.Verification("RSA-SHA256", true, time.Millisecond)
	m.Verification("RSA-SHA256", false, time.Millisecond)
	m.CertificateValidation(false)
	m.CleanupRemoved(3)
	m.HTTPRequest("GET", "/v1/health", 200, time.Millisecond)

	assert.Equal(t, 1.0, testutil.ToFloat64(m.signableStored.WithLabelValues("ok")))
	assert.Equal(t, 1.0, testutil.ToFloat64(m.signableStored.WithLabelValues("error")))
	assert.Equal(t, 1.0, testutil.ToFloat64(m.verifications.WithLabelValues("RSA-SHA256", "false")))
	assert.Equal(t, 3.0, testutil.ToFloat64(m.cleanupRemoved))

	rr := httptest.NewRecorder()
	m.Handler().ServeHTTP(rr, httptest.NewRequest("GET", "/metrics", nil))
	body, _ := io.ReadAll(rr.Body)
	assert.Contains(t, string(body), "signature_verifications_total")
}

func TestNew_ReusesRegisteredCollectors(t *testing.T) {
	reg := prometheus.NewRegistry()
	a, err := New(reg)
	require.NoError(t, err)
	b, err := New(reg)
	require.NoError(t, err)

	a.CleanupRemoved(1)
	b.CleanupRemoved(1)
	assert.Equal(t, 2.0, testutil.ToFloat64(b.cleanupRemoved))
}

func TestNop(t *testing.T) {
	var r Recorder = Nop{}
	r.SignableStored(true)
	r.Verification("x", true, 0)
}
