package domain

import (
	"crypto"
	"testing"
	"time"
)

func TestSchemeFor(t *testing.T) {
	cases := map[Algorithm]Scheme{
		AlgRSASHA256:   {FamilyRSA, crypto.SHA256},
		AlgRSASHA512:   {FamilyRSA, crypto.SHA512},
		AlgECDSASHA256: {FamilyECDSA, crypto.SHA256},
		AlgECDSASHA384: {FamilyECDSA, crypto.SHA384},
	}
	for alg, want := range cases {
		got, ok := SchemeFor(alg)
		if !ok || got != want {
			t.Fatalf("%s: got %v ok=%v", alg, got, ok)
		}
	}
	if _, ok := SchemeFor("RSA-MD5"); ok {
		t.Fatal("RSA-MD5 must be unsupported")
	}
}

func TestAlgorithmFamily(t *testing.T) {
	if Algorithm("RSA-MD5").Family() != FamilyRSA {
		t.Fatal("RSA prefix")
	}
	if Algorithm("ECDSA-SHA1").Family() != FamilyECDSA {
		t.Fatal("ECDSA prefix")
	}
	if Algorithm("Ed25519").Family() != "" {
		t.Fatal("unknown family")
	}
	if Algorithm("ECDSA-SHA1").Supported() {
		t.Fatal("ECDSA-SHA1 must be unsupported")
	}
}

func TestAlgorithms_Sorted(t *testing.T) {
	got := Algorithms()
	want := []Algorithm{AlgECDSASHA256, AlgECDSASHA384, AlgRSASHA256, AlgRSASHA512}
	if len(got) != len(want) {
		t.Fatalf("got %v", got)
	}
	for i := range want {
		if got[i] != want[i] {
			t.Fatalf("got %v want %v", got, want)
		}
	}
}

func TestRecordExpired(t *testing.T) {
	t0 := time.Date(2025, 1, 1, 0, 0, 0, 0, time.UTC)
	r := &SignableRecord{ExpiresAt: t0}
	if r.Expired(t0) {
		t.Fatal("boundary instant is still valid")
	}
	if !r.Expired(t0.Add(time.Nanosecond)) {
		t.Fatal("expected expired")
	}
	if (&SignableRecord{}).Expired(t0) {
		t.Fatal("zero expiry never expires")
	}
}

func TestEnvelopeMissing(t *testing.T) {
	if m := (&SignatureEnvelope{Signature: "s", Certificate: "c", Algorithm: AlgRSASHA256}).Missing(); len(m) != 0 {
		t.Fatalf("complete envelope reported %v", m)
	}
	m := (&SignatureEnvelope{Certificate: "c"}).Missing()
	if len(m) != 2 || m[0] != "signature" || m[1] != "algorithm" {
		t.Fatalf("got %v", m)
	}
}

func TestPayloadClone(t *testing.T) {
	if Payload(nil).Clone() != nil {
		t.Fatal("nil clone")
	}
	p := Payload{"a": 1}
	c := p.Clone()
	c["b"] = 2
	if _, ok := p["b"]; ok {
		t.Fatal("clone shares top-level map")
	}
}
