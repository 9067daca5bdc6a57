// Package metrics exposes prometheus collectors for the signature protocol.
package metrics

import (
	"errors"
	"net/http"
	"strconv"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

// Recorder receives protocol events. The zero value of *Metrics is not
// usable; use Nop when metrics are disabled.
type Recorder interface {
	SignableStored(ok bool)
	SignatureStored(result string)
	Verification(algorithm string, valid bool, d time.Duration)
	CertificateValidation(valid bool)
	CleanupRemoved(n int)
	HTTPRequest(method, route string, status int, d time.Duration)
}

type Metrics struct {
	reg prometheus.Gatherer

	signableStored   *prometheus.CounterVec
	signaturesStored *prometheus.CounterVec
	verifications    *prometheus.CounterVec
	verifyDuration   *prometheus.HistogramVec
	certValidations  *prometheus.CounterVec
	cleanupRemoved   prometheus.Counter
	httpRequests     *prometheus.CounterVec
	httpDuration     *prometheus.HistogramVec
}

// New registers all collectors on reg. Collectors already registered (for
// example by a previous New on the same registry) are reused.
func New(reg *prometheus.Registry) (*Metrics, error) {
	if reg == nil {
		reg = prometheus.NewRegistry()
	}
	m := &Metrics{reg: reg}

	var err error
	if m.signableStored, err = registerVec(reg, prometheus.NewCounterVec(prometheus.CounterOpts{
		Name: "signature_signable_stored_total",
		Help: "Signable payloads issued, by result.",
	}, []string{"result"})); err != nil {
		return nil, err
	}
	if m.signaturesStored, err = registerVec(reg, prometheus.NewCounterVec(prometheus.CounterOpts{
		Name: "signature_envelopes_stored_total",
		Help: "Signature submissions, by result.",
	}, []string{"result"})); err != nil {
		return nil, err
	}
	if m.verifications, err = registerVec(reg, prometheus.NewCounterVec(prometheus.CounterOpts{
		Name: "signature_verifications_total",
		Help: "Signature verifications, by algorithm and outcome.",
	}, []string{"algorithm", "valid"})); err != nil {
		return nil, err
	}
	if m.verifyDuration, err = registerVec(reg, prometheus.NewHistogramVec(prometheus.HistogramOpts{
		Name:    "signature_verification_duration_seconds",
		Help:    "Time spent verifying one signature.",
		Buckets: []float64{0.0001, 0.0005, 0.001, 0.0025, 0.005, 0.01, 0.05, 0.1},
	}, []string{"algorithm"})); err != nil {
		return nil, err
	}
	if m.certValidations, err = registerVec(reg, prometheus.NewCounterVec(prometheus.CounterOpts{
		Name: "signature_certificate_validations_total",
		Help: "Certificate signing-suitability checks, by outcome.",
	}, []string{"valid"})); err != nil {
		return nil, err
	}
	if m.cleanupRemoved, err = registerVec(reg, prometheus.NewCounter(prometheus.CounterOpts{
		Name: "signature_cleanup_removed_total",
		Help: "Expired pending records removed by maintenance sweeps.",
	})); err != nil {
		return nil, err
	}
	if m.httpRequests, err = registerVec(reg, prometheus.NewCounterVec(prometheus.CounterOpts{
		Name: "http_requests_total",
		Help: "HTTP requests processed.",
	}, []string{"method", "route", "status"})); err != nil {
		return nil, err
	}
	if m.httpDuration, err = registerVec(reg, prometheus.NewHistogramVec(prometheus.HistogramOpts{
		Name:    "http_request_duration_seconds",
		Help:    "HTTP request latency.",
		Buckets: prometheus.DefBuckets,
	}, []string{"method", "route"})); err != nil {
		return nil, err
	}
	return m, nil
}

func registerVec[C prometheus.Collector](reg prometheus.Registerer, c C) (C, error) {
	if err := reg.Register(c); err != nil {
		var are prometheus.AlreadyRegisteredError
		if errors.As(err, &are) {
			if existing, ok := are.ExistingCollector.(C); ok {
				return existing, nil
			}
		}
		return c, err
	}
	return c, nil
}

// Handler serves the registry in the prometheus text format.
func (m *Metrics) Handler() http.Handler {
	return promhttp.HandlerFor(m.reg, promhttp.HandlerOpts{})
}

func (m *Metrics) SignableStored(ok bool) {
	m.signableStored.WithLabelValues(result(ok)).Inc()
}

func (m *Metrics) SignatureStored(r string) {
	m.signaturesStored.WithLabelValues(r).Inc()
}

func (m *Metrics) Verification(algorithm string, valid bool, d time.Duration) {
	m.verifications.WithLabelValues(algorithm, strconv.FormatBool(valid)).Inc()
	m.verifyDuration.WithLabelValues(algorithm).Observe(d.Seconds())
}

func (m *Metrics) CertificateValidation(valid bool) {
	m.certValidations.WithLabelValues(strconv.FormatBool(valid)).Inc()
}

func (m *Metrics) CleanupRemoved(n int) {
	m.cleanupRemoved.Add(float64(n))
}

func (m *Metrics) HTTPRequest(method, route string, status int, d time.Duration) {
	m.httpRequests.WithLabelValues(method, route, strconv.Itoa(status)).Inc()
	m.httpDuration.WithLabelValues(method, route).Observe(d.Seconds())
}

func result(ok bool) string {
	if ok {
		return "ok"
	}
	return "error"
}

// Nop discards every event.
type Nop struct{}

func (Nop) SignableStored(bool)                            {}
func (Nop) SignatureStored(string)                         {}
func (Nop) Verification(string, bool, time.Duration)       {}
func (Nop) CertificateValidation(bool)                     {}
func (Nop) CleanupRemoved(int)                             {}
func (Nop) HTTPRequest(string, string, int, time.Duration) {}

var (
	_ Recorder = (*Metrics)(nil)
	_ Recorder = Nop{}
)
