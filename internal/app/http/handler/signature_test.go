package handler_test

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"mime/multipart"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"github.com/munistream/signature/internal/app/http/handler"
	"github.com/munistream/signature/internal/certificate"
	"github.com/munistream/signature/internal/crypto"
	"github.com/munistream/signature/internal/domain"
	"github.com/munistream/signature/internal/service"
	"github.com/munistream/signature/internal/storage"
	"github.com/munistream/signature/internal/verifier"
)

var now = time.Date(2025, 6, 1, 12, 0, 0, 0, time.UTC)

type env struct {
	svc   *service.SignableService
	h     *handler.Signature
	clock *time.Time
}

func newEnv(t *testing.T) env {
	t.Helper()
	clock := now
	nowFn := func() time.Time { return clock }
	certs := certificate.New(certificate.Options{Now: nowFn, Logger: zap.NewNop()})
	v := verifier.New(certs, verifier.Options{Logger: zap.NewNop()})
	svc := service.New(storage.NewMemory(), certs, v, service.Options{Now: nowFn, Logger: zap.NewNop()})
	return env{svc: svc, h: handler.NewSignature(svc), clock: &clock}
}

// call routes a single request through a chi router so URL params resolve.
func call(h http.HandlerFunc, method, pattern, path string, body []byte, contentType string) *httptest.ResponseRecorder {
	r := chi.NewRouter()
	r.MethodFunc(method, pattern, h)
	req := httptest.NewRequest(method, path, bytes.NewReader(body))
	if contentType != "" {
		req.Header.Set("content-type", contentType)
	}
	rr := httptest.NewRecorder()
	r.ServeHTTP(rr, req)
	return rr
}

func decode(t *testing.T, rr *httptest.ResponseRecorder) map[string]any {
	t.Helper()
	var out map[string]any
	dec := json.NewDecoder(rr.Body)
	dec.UseNumber()
	require.NoError(t, dec.Decode(&out))
	return out
}

const issuePattern = "/v1/instances/{instanceID}/signable-data/{field}"

func TestHealth(t *testing.T) {
	e := newEnv(t)
	rr := call(e.h.Health, http.MethodGet, "/v1/health", "/v1/health", nil, "")
	assert.Equal(t, http.StatusOK, rr.Code)
	assert.Equal(t, "ok", decode(t, rr)["status"])
}

func TestIssue_FromContext(t *testing.T) {
	e := newEnv(t)
	body := []byte(`{"context": {"applicant": "Jane", "password": "x", "_meta": 1}, "signature_purpose": "permit"}`)
	rr := call(e.h.Issue, http.MethodPost, issuePattern, "/v1/instances/wf1/signable-data/sig", body, "application/json")
	require.Equal(t, http.StatusCreated, rr.Code, rr.Body.String())

	out := decode(t, rr)
	data := out["signable_data"].(map[string]any)
	assert.Equal(t, "Jane", data["applicant"])
	assert.Equal(t, "permit", data["signature_purpose"])
	assert.NotContains(t, data, "password")
	assert.NotContains(t, data, "_meta")
	assert.NotEmpty(t, data["data_hash"])
	assert.Equal(t, "wf1", out["instance_id"])
}

func TestIssue_BadRequests(t *testing.T) {
	e := newEnv(t)
	for name, body := range map[string]string{
		"invalid json": `{`,
		"both":         `{"signable_data": {"a": 1}, "context": {"a": 1}}`,
		"neither":      `{"timeout_minutes": 3}`,
	} {
		t.Run(name, func(t *testing.T) {
			rr := call(e.h.Issue, http.MethodPost, issuePattern, "/v1/instances/wf1/signable-data/sig", []byte(body), "application/json")
			assert.Equal(t, http.StatusBadRequest, rr.Code)
		})
	}
}

func TestOversizedBodiesAreRejected(t *testing.T) {
	e := newEnv(t)
	big := strings.Repeat("x", 1<<20)

	rr := call(e.h.Issue, http.MethodPost, issuePattern, "/v1/instances/wf1/signable-data/sig",
		[]byte(`{"signable_data": {"blob": "`+big+`"}}`), "application/json")
	assert.Equal(t, http.StatusRequestEntityTooLarge, rr.Code, rr.Body.String())
	_, err := e.svc.GetSignableData(context.Background(), "wf1", "sig")
	assert.ErrorIs(t, err, domain.ErrNotFound)

	rr = call(e.h.ValidateCertificate, http.MethodPost, "/v", "/v", []byte(big+big), "application/x-pem-file")
	assert.Equal(t, http.StatusRequestEntityTooLarge, rr.Code)
}

func TestSignableData_ExpiredIsGone(t *testing.T) {
	e := newEnv(t)
	require.NoError(t, e.svc.StoreSignableData(context.Background(), "wf1", "sig", domain.Payload{"n": json.Number("2.0")}, time.Minute))

	rr := call(e.h.SignableData, http.MethodGet, issuePattern, "/v1/instances/wf1/signable-data/sig", nil, "")
	require.Equal(t, http.StatusOK, rr.Code)
	data := decode(t, rr)["signable_data"].(map[string]any)
	assert.Equal(t, json.Number("2.0"), data["n"])

	*e.clock = now.Add(2 * time.Minute)
	rr = call(e.h.SignableData, http.MethodGet, issuePattern, "/v1/instances/wf1/signable-data/sig", nil, "")
	assert.Equal(t, http.StatusGone, rr.Code)
}

func TestValidateCertificate(t *testing.T) {
	e := newEnv(t)
	s, err := crypto.NewSigner(domain.AlgECDSASHA256)
	require.NoError(t, err)
	certPEM, err := crypto.IssueCertificate(s, crypto.SigningCertOptions("Jane Citizen", now))
	require.NoError(t, err)

	t.Run("raw body", func(t *testing.T) {
		rr := call(e.h.ValidateCertificate, http.MethodPost, "/v", "/v", []byte(certPEM), "application/x-pem-file")
		require.Equal(t, http.StatusOK, rr.Code, rr.Body.String())
		assert.Equal(t, true, decode(t, rr)["valid"])
	})

	t.Run("multipart", func(t *testing.T) {
		var buf bytes.Buffer
		mw := multipart.NewWriter(&buf)
		fw, err := mw.CreateFormFile("certificate", "cert.pem")
		require.NoError(t, err)
		_, _ = fw.Write([]byte(certPEM))
		require.NoError(t, mw.Close())

		rr := call(e.h.ValidateCertificate, http.MethodPost, "/v", "/v", buf.Bytes(), mw.FormDataContentType())
		require.Equal(t, http.StatusOK, rr.Code, rr.Body.String())
	})

	t.Run("multipart without file", func(t *testing.T) {
		var buf bytes.Buffer
		mw := multipart.NewWriter(&buf)
		require.NoError(t, mw.WriteField("other", "x"))
		require.NoError(t, mw.Close())

		rr := call(e.h.ValidateCertificate, http.MethodPost, "/v", "/v", buf.Bytes(), mw.FormDataContentType())
		assert.Equal(t, http.StatusBadRequest, rr.Code)
	})

	t.Run("empty body", func(t *testing.T) {
		rr := call(e.h.ValidateCertificate, http.MethodPost, "/v", "/v", nil, "")
		assert.Equal(t, http.StatusBadRequest, rr.Code)
	})

	t.Run("garbage", func(t *testing.T) {
		rr := call(e.h.ValidateCertificate, http.MethodPost, "/v", "/v", []byte("not a certificate!"), "")
		assert.Equal(t, http.StatusBadRequest, rr.Code)
	})
}

func TestCleanup(t *testing.T) {
	e := newEnv(t)
	require.NoError(t, e.svc.StoreSignableData(context.Background(), "wf1", "sig", domain.Payload{}, time.Minute))
	*e.clock = now.Add(48 * time.Hour)

	rr := call(e.h.Cleanup, http.MethodPost, "/c", "/c", nil, "")
	require.Equal(t, http.StatusOK, rr.Code)
	assert.Equal(t, json.Number("1"), decode(t, rr)["removed"])
}

func TestStatusFor(t *testing.T) {
	cases := []struct {
		err  error
		want int
	}{
		{domain.ErrNotFound, http.StatusNotFound},
		{fmt.Errorf("wrapped: %w", domain.ErrNotFound), http.StatusNotFound},
		{domain.ErrExpired, http.StatusGone},
		{domain.ErrAlreadySigned, http.StatusConflict},
		{domain.ErrInvalidEnvelope, http.StatusBadRequest},
		{domain.ErrInvalidInput, http.StatusBadRequest},
		{domain.ErrParse, http.StatusBadRequest},
		{domain.ErrUnsupportedFormat, http.StatusBadRequest},
		{domain.ErrInvalidCertificate, http.StatusBadRequest},
		{domain.ErrStorage, http.StatusInternalServerError},
		{fmt.Errorf("%w: %w", domain.ErrInvalidInput, &http.MaxBytesError{Limit: 1}), http.StatusRequestEntityTooLarge},
		{errors.New("other"), http.StatusInternalServerError},
	}
	for _, tc := range cases {
		assert.Equal(t, tc.want, handler.StatusFor(tc.err), tc.err.Error())
	}
}
