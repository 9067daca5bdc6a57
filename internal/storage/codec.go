package storage

import (
	"bytes"
	"encoding/json"
	"fmt"
	"strings"
	"time"

	"github.com/munistream/signature/internal/canonical"
	"github.com/munistream/signature/internal/domain"
)

// document is the stored form of a record. The payload is kept in its
// canonical encoding so that integer and float values survive every backend
// byte for byte.
type document struct {
	InstanceID string                    `json:"instance_id"`
	Field      string                    `json:"signature_field"`
	Payload    json.RawMessage           `json:"signable_data"`
	CreatedAt  time.Time                 `json:"created_at"`
	ExpiresAt  time.Time                 `json:"expires_at"`
	Status     domain.Status             `json:"status"`
	SignedAt   *time.Time                `json:"signed_at,omitempty"`
	Signature  *domain.SignatureEnvelope `json:"signature,omitempty"`
}

func encodeRecord(rec *domain.SignableRecord) ([]byte, error) {
	payload, err := canonical.Marshal(rec.Payload)
	if err != nil {
		return nil, err
	}
	return json.Marshal(document{
		InstanceID: rec.InstanceID,
		Field:      rec.Field,
		Payload:    payload,
		CreatedAt:  rec.CreatedAt,
		ExpiresAt:  rec.ExpiresAt,
		Status:     rec.Status,
		SignedAt:   rec.SignedAt,
		Signature:  rec.Signature,
	})
}

func decodeRecord(b []byte) (*domain.SignableRecord, error) {
	var doc document
	if err := canonical.Unmarshal(b, &doc); err != nil {
		return nil, fmt.Errorf("%w: corrupt record: %v", domain.ErrStorage, err)
	}
	payload, err := canonical.Decode(bytes.NewReader(doc.Payload))
	if err != nil {
		return nil, fmt.Errorf("%w: corrupt payload: %v", domain.ErrStorage, err)
	}
	return &domain.SignableRecord{
		InstanceID: doc.InstanceID,
		Field:      doc.Field,
		Payload:    payload,
		CreatedAt:  doc.CreatedAt,
		ExpiresAt:  doc.ExpiresAt,
		Status:     doc.Status,
		SignedAt:   doc.SignedAt,
		Signature:  doc.Signature,
	}, nil
}

// recordKey joins the key parts with a separator that cannot occur in
// either part after validation.
func recordKey(instanceID, field string) string {
	return instanceID + "\x1f" + field
}

func validKey(instanceID, field string) error {
	if instanceID == "" || field == "" {
		return fmt.Errorf("%w: instance id and field are required", domain.ErrInvalidInput)
	}
	if strings.ContainsRune(instanceID, 0x1f) || strings.ContainsRune(field, 0x1f) {
		return fmt.Errorf("%w: key contains a control character", domain.ErrInvalidInput)
	}
	return nil
}

func storageErr(op string, err error) error {
	return fmt.Errorf("%w: %s: %v", domain.ErrStorage, op, err)
}
