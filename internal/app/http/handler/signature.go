// Package handler holds the HTTP handlers of the signature protocol.
// Handlers decode requests, call the service and map its errors; they hold
// no protocol logic themselves.
package handler

import (
	"bytes"
	"fmt"
	"io"
	"net/http"
	"strings"

	"github.com/go-chi/chi/v5"

	"github.com/munistream/signature/internal/canonical"
	"github.com/munistream/signature/internal/domain"
	"github.com/munistream/signature/internal/service"
)

const (
	maxBodyBytes         = 1 << 20
	certificateFormField = "certificate"
)

type Signature struct{ svc *service.SignableService }

func NewSignature(svc *service.SignableService) *Signature { return &Signature{svc: svc} }

func (h *Signature) Health(w http.ResponseWriter, _ *http.Request) {
	writeJSON(w, http.StatusOK, map[string]string{"status": "ok"})
}

type issueRequest struct {
	// Either SignableData is stored as is, or Context is turned into a
	// payload with PrepareSignableData.
	SignableData   domain.Payload `json:"signable_data"`
	Context        map[string]any `json:"context"`
	Purpose        string         `json:"signature_purpose"`
	TimeoutMinutes int            `json:"timeout_minutes"`
}

// Issue handles POST /v1/instances/{instanceID}/signable-data/{field}.
func (h *Signature) Issue(w http.ResponseWriter, r *http.Request) {
	instanceID, field := chi.URLParam(r, "instanceID"), chi.URLParam(r, "field")

	var req issueRequest
	if err := decodeBody(w, r, &req); err != nil {
		fail(w, r, err)
		return
	}
	if req.SignableData != nil && req.Context != nil {
		writeErr(w, http.StatusBadRequest, "send either signable_data or context, not both")
		return
	}

	payload := req.SignableData
	if req.Context != nil {
		p, err := h.svc.PrepareSignableData(req.Context, req.Purpose)
		if err != nil {
			fail(w, r, err)
			return
		}
		payload = p
	}
	if payload == nil {
		writeErr(w, http.StatusBadRequest, "signable_data or context is required")
		return
	}

	if err := h.svc.StoreSignableData(r.Context(), instanceID, field, payload, service.TimeoutMinutes(req.TimeoutMinutes)); err != nil {
		fail(w, r, err)
		return
	}
	st, err := h.svc.GetSignatureStatus(r.Context(), instanceID, field)
	if err != nil {
		fail(w, r, err)
		return
	}
	writeJSON(w, http.StatusCreated, map[string]any{
		"instance_id":     instanceID,
		"signature_field": field,
		"signable_data":   payload,
		"expires_at":      st.ExpiresAt,
	})
}

// SignableData handles GET /v1/instances/{instanceID}/signable-data/{field}.
func (h *Signature) SignableData(w http.ResponseWriter, r *http.Request) {
	instanceID, field := chi.URLParam(r, "instanceID"), chi.URLParam(r, "field")
	p, err := h.svc.GetSignableData(r.Context(), instanceID, field)
	if err != nil {
		fail(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{
		"instance_id":     instanceID,
		"signature_field": field,
		"signable_data":   p,
	})
}

// Submit handles POST /v1/instances/{instanceID}/signatures/{field}.
func (h *Signature) Submit(w http.ResponseWriter, r *http.Request) {
	instanceID, field := chi.URLParam(r, "instanceID"), chi.URLParam(r, "field")

	var env domain.SignatureEnvelope
	if err := decodeBody(w, r, &env); err != nil {
		fail(w, r, err)
		return
	}
	res, err := h.svc.SubmitSignature(r.Context(), instanceID, field, &env)
	if err != nil {
		fail(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, res)
}

// Status handles GET /v1/instances/{instanceID}/signature-status/{field}.
func (h *Signature) Status(w http.ResponseWriter, r *http.Request) {
	st, err := h.svc.GetSignatureStatus(r.Context(), chi.URLParam(r, "instanceID"), chi.URLParam(r, "field"))
	if err != nil {
		fail(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, st)
}

// Verify handles GET /v1/instances/{instanceID}/verification/{field}.
func (h *Signature) Verify(w http.ResponseWriter, r *http.Request) {
	rep, err := h.svc.VerifyRecord(r.Context(), chi.URLParam(r, "instanceID"), chi.URLParam(r, "field"))
	if err != nil {
		fail(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, rep)
}

// ValidateCertificate handles POST /v1/validate-certificate. The certificate
// is either the "certificate" file of a multipart form or the raw body.
func (h *Signature) ValidateCertificate(w http.ResponseWriter, r *http.Request) {
	content, err := readCertificate(w, r)
	if err != nil {
		fail(w, r, err)
		return
	}
	res, err := h.svc.ValidateCertificateFile(r.Context(), content)
	if err != nil {
		fail(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, res)
}

// Cleanup handles POST /v1/maintenance/cleanup.
func (h *Signature) Cleanup(w http.ResponseWriter, r *http.Request) {
	n, err := h.svc.CleanupExpiredSignatures(r.Context())
	if err != nil {
		fail(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]int{"removed": n})
}

// decodeBody keeps numbers as json.Number so payloads re-canonicalize to
// the bytes the client signed.
func decodeBody(w http.ResponseWriter, r *http.Request, v any) error {
	defer r.Body.Close()
	raw, err := io.ReadAll(http.MaxBytesReader(w, r.Body, maxBodyBytes))
	if err != nil {
		return fmt.Errorf("%w: %w", domain.ErrInvalidInput, err)
	}
	return canonical.Unmarshal(raw, v)
}

func readCertificate(w http.ResponseWriter, r *http.Request) ([]byte, error) {
	defer r.Body.Close()
	r.Body = http.MaxBytesReader(w, r.Body, maxBodyBytes)
	if isMultipart(r) {
		if err := r.ParseMultipartForm(maxBodyBytes); err != nil {
			return nil, fmt.Errorf("%w: %w", domain.ErrInvalidInput, err)
		}
		f, _, err := r.FormFile(certificateFormField)
		if err != nil {
			return nil, fmt.Errorf("%w: %w", domain.ErrInvalidInput, err)
		}
		defer f.Close()
		return io.ReadAll(f)
	}
	b, err := io.ReadAll(r.Body)
	if err != nil {
		return nil, fmt.Errorf("%w: %w", domain.ErrInvalidInput, err)
	}
	if len(bytes.TrimSpace(b)) == 0 {
		return nil, fmt.Errorf("%w: empty certificate", domain.ErrInvalidInput)
	}
	return b, nil
}

func isMultipart(r *http.Request) bool {
	return strings.HasPrefix(r.Header.Get("content-type"), "multipart/form-data")
}
