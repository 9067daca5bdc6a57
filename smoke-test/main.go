//go:build smokebin

package main

import (
	"bytes"
	goCrypto "crypto"
	"crypto/ecdsa"
	"crypto/rsa"
	"crypto/sha256"
	"crypto/x509"
	"encoding/base64"
	"encoding/json"
	"encoding/pem"
	"fmt"
	"io"
	"log"
	"net/http"
	"net/http/httptest"
	"strings"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"go.uber.org/zap"

	httpApp "github.com/munistream/signature/internal/app/http"
	"github.com/munistream/signature/internal/canonical"
	"github.com/munistream/signature/internal/certificate"
	"github.com/munistream/signature/internal/crypto"
	"github.com/munistream/signature/internal/domain"
	"github.com/munistream/signature/internal/metrics"
	"github.com/munistream/signature/internal/service"
	"github.com/munistream/signature/internal/storage"
	"github.com/munistream/signature/internal/verifier"
	"github.com/munistream/signature/pkg/id"
)

const apiPrefix = "/v1"

// must fails the smoke test immediately with a helpful message.
func must(ok bool, msg string, args ...any) {
	if !ok {
		log.Fatalf("SMOKE FAIL: "+msg, args...)
	}
}

func main() {
	// Wire the app with an in-process server (no real port binding).
	nop := zap.NewNop()
	certs := certificate.New(certificate.Options{Logger: nop})
	v := verifier.New(certs, verifier.Options{Logger: nop})
	m, err := metrics.New(prometheus.NewRegistry())
	must(err == nil, "metrics: %v", err)
	svc := service.New(storage.NewMemory(), certs, v, service.Options{Logger: nop, Metrics: m})

	ts := httptest.NewServer(httpApp.NewHandler(httpApp.Deps{Service: svc, Metrics: m, IDs: id.UUID{}, Logger: nop}))
	defer ts.Close()

	do := func(method, path string, body any) (int, []byte) {
		var rdr io.Reader
		if body != nil {
			b, _ := json.Marshal(body)
			rdr = bytes.NewReader(b)
		}
		req, _ := http.NewRequest(method, ts.URL+path, rdr)
		req.Header.Set("content-type", "application/json")
		resp, err := http.DefaultClient.Do(req)
		if err != nil {
			log.Fatal(err)
		}
		defer resp.Body.Close()
		b, _ := io.ReadAll(resp.Body)
		fmt.Printf("%s %s -> %d %s\n\n", method, path, resp.StatusCode, string(b))
		return resp.StatusCode, b
	}
	decode := func(b []byte, v any) {
		must(canonical.Unmarshal(b, v) == nil, "unmarshal %s", string(b))
	}

	// 1) Health
	code, body := do("GET", apiPrefix+"/health", nil)
	must(code == 200, "health status=%d", code)

	// 2) Issue from a workflow context
	inst := apiPrefix + "/instances/wf-smoke"
	code, body = do("POST", inst+"/signable-data/approval_sig", map[string]any{
		"context": map[string]any{
			"applicant": "Jane Citizen",
			"amount":    120.5,
			"password":  "must not leak",
			"_internal": true,
		},
		"signature_purpose": "permit_approval",
		"timeout_minutes":   5,
	})
	must(code == 201, "issue status=%d body=%s", code, string(body))
	must(!strings.Contains(string(body), "must not leak"), "sensitive field leaked")

	// 3) Fetch what the client signs
	code, body = do("GET", inst+"/signable-data/approval_sig", nil)
	must(code == 200, "fetch status=%d", code)
	var fetched struct {
		SignableData domain.Payload `json:"signable_data"`
	}
	decode(body, &fetched)
	must(fetched.SignableData["data_hash"] != nil, "data_hash missing")

	// 4) Client side: sign with an RSA identity, checked independently below
	signer, err := crypto.NewSigner(domain.AlgRSASHA256)
	must(err == nil, "new signer: %v", err)
	certPEM, err := crypto.IssueCertificate(signer, crypto.SigningCertOptions("Jane Citizen", time.Now()))
	must(err == nil, "issue certificate: %v", err)
	env, err := crypto.SignPayload(signer, fetched.SignableData, certPEM)
	must(err == nil, "sign: %v", err)
	signed, err := canonical.SigningBytes(fetched.SignableData)
	must(err == nil, "canonical: %v", err)
	verify(env.Signature, signed, certPEM)

	// 5) Submit
	code, body = do("POST", inst+"/signatures/approval_sig", env)
	must(code == 200, "submit status=%d body=%s", code, string(body))
	var sub domain.SubmissionResult
	decode(body, &sub)
	must(sub.Received && sub.Verification != nil && sub.Verification.Valid, "submission not valid: %s", string(body))

	// 6) Re-signing is rejected
	code, _ = do("POST", inst+"/signatures/approval_sig", env)
	must(code == 409, "resubmit status=%d", code)

	// 7) Status and report
	code, body = do("GET", inst+"/signature-status/approval_sig", nil)
	must(code == 200, "status=%d", code)
	var st domain.SignatureStatus
	decode(body, &st)
	must(st.Exists && st.Status == domain.StatusSigned && !st.Expired, "status=%s", string(body))

	code, body = do("GET", inst+"/verification/approval_sig", nil)
	must(code == 200, "verification status=%d", code)
	var rep domain.VerificationReport
	decode(body, &rep)
	must(rep.OverallValid, "report not valid: %s", string(body))
	must(rep.SignatureInfo.SignerSubject == "CN=Jane Citizen", "subject=%q", rep.SignatureInfo.SignerSubject)

	// 8) ECDSA signature over a modified payload is stored but does not verify
	code, body = do("POST", inst+"/signable-data/second_sig", map[string]any{"signable_data": map[string]any{"a": 1, "b": 2}})
	must(code == 201, "issue second status=%d", code)
	ec, err := crypto.NewSigner(domain.AlgECDSASHA384)
	must(err == nil, "new ec signer: %v", err)
	ecCert, err := crypto.IssueCertificate(ec, crypto.SigningCertOptions("Max Muster", time.Now()))
	must(err == nil, "issue ec certificate: %v", err)
	ecEnv, err := crypto.SignPayload(ec, domain.Payload{"a": 1, "b": 3}, ecCert)
	must(err == nil, "ec sign: %v", err)
	code, body = do("POST", inst+"/signatures/second_sig", ecEnv)
	must(code == 200, "submit second status=%d", code)
	decode(body, &sub)
	must(sub.Verification != nil && !sub.Verification.Valid, "tampered payload verified: %s", string(body))

	// 9) Certificate upload check
	req, _ := http.NewRequest("POST", ts.URL+apiPrefix+"/validate-certificate", strings.NewReader(certPEM))
	resp, err := http.DefaultClient.Do(req)
	must(err == nil, "validate certificate: %v", err)
	resp.Body.Close()
	must(resp.StatusCode == 200, "validate certificate status=%d", resp.StatusCode)

	fmt.Println("SMOKE OK")
}

// verify checks an RSA-PSS or ECDSA signature over data against the
// certificate key with the standard library only.
func verify(sigB64 string, data []byte, certPEM string) {
	sig, err := base64.StdEncoding.DecodeString(sigB64)
	must(err == nil, "decode signature: %v", err)

	block, _ := pem.Decode([]byte(certPEM))
	must(block != nil && block.Type == "CERTIFICATE", "pem decode failed")
	cert, err := x509.ParseCertificate(block.Bytes)
	must(err == nil, "parse certificate: %v", err)

	digest := sha256.Sum256(data)

	switch k := cert.PublicKey.(type) {
	case *rsa.PublicKey:
		err = rsa.VerifyPSS(k, goCrypto.SHA256, digest[:], sig, &rsa.PSSOptions{SaltLength: rsa.PSSSaltLengthAuto})
		must(err == nil, "rsa verify failed: %v", err)
	case *ecdsa.PublicKey:
		must(ecdsa.VerifyASN1(k, digest[:], sig), "ecdsa verify failed")
	default:
		must(false, "unexpected public key type %T", cert.PublicKey)
	}
}
