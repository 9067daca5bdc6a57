package service

import (
	"strings"
	"time"

	"github.com/munistream/signature/internal/canonical"
	"github.com/munistream/signature/internal/domain"
)

const (
	DefaultSignaturePurpose = "workflow_approval"
	signatureTypeContext    = "complete_context_signature"
	// timestamps inside payloads are naive UTC with microseconds
	payloadTimeLayout = "2006-01-02T15:04:05.000000"
)

var sensitiveKeys = map[string]struct{}{
	"kc_token":    {},
	"password":    {},
	"private_key": {},
}

// PrepareSignableData turns a workflow context into the payload handed to
// the signer: internal ("_" prefixed) and sensitive keys are dropped,
// signature metadata is added, and data_hash is set to the SHA-256 of the
// canonical form of everything else.
func (s *SignableService) PrepareSignableData(wfContext map[string]any, purpose string) (domain.Payload, error) {
	if purpose == "" {
		purpose = DefaultSignaturePurpose
	}
	p := make(domain.Payload, len(wfContext)+4)
	for k, v := range wfContext {
		if strings.HasPrefix(k, "_") {
			continue
		}
		if _, ok := sensitiveKeys[k]; ok {
			continue
		}
		p[k] = v
	}
	p["timestamp"] = s.clock().Format(payloadTimeLayout)
	p["signature_purpose"] = purpose
	p["signature_type"] = signatureTypeContext

	hash, err := canonical.Hash(canonical.StripTransient(p), "SHA256")
	if err != nil {
		return nil, err
	}
	p["data_hash"] = hash
	return p, nil
}

// TimeoutMinutes converts whole minutes, the unit clients use, to a duration.
func TimeoutMinutes(m int) time.Duration { return time.Duration(m) * time.Minute }
