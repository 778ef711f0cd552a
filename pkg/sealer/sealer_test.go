package sealer

import (
	"encoding/base64"
	"strings"
	"testing"
)

const testKey = "lfQVRuulcL2iOhOJ2r8BYTweoSKwVAJnIF9U+AL+M60="

func TestSealAndOpenRoundTrip(t *testing.T) {
	s, err := New(testKey)
	if err != nil {
		t.Fatalf("New: %v", err)
	}

	token, err := s.SealCredentials("lab-admin", "p4ss:with:colons")
	if err != nil {
		t.Fatalf("SealCredentials: %v", err)
	}
	if strings.Contains(token, "lab-admin") {
		t.Error("token leaks plaintext username")
	}

	user, pass, err := s.OpenCredentials(token)
	if err != nil {
		t.Fatalf("OpenCredentials: %v", err)
	}
	if user != "lab-admin" {
		t.Errorf("username = %q, want %q", user, "lab-admin")
	}
	if pass != "p4ss:with:colons" {
		t.Errorf("password = %q, want %q", pass, "p4ss:with:colons")
	}
}

func TestSealProducesDistinctTokens(t *testing.T) {
	s, err := New(testKey)
	if err != nil {
		t.Fatalf("New: %v", err)
	}

	t1, err := s.SealCredentials("u", "p")
	if err != nil {
		t.Fatalf("SealCredentials: %v", err)
	}
	t2, err := s.SealCredentials("u", "p")
	if err != nil {
		t.Fatalf("SealCredentials: %v", err)
	}
	if t1 == t2 {
		t.Error("expected random nonces to produce distinct tokens")
	}
}

func TestNewRejectsBadKeys(t *testing.T) {
	if _, err := New("not-base64!!!"); err == nil {
		t.Error("expected error for malformed key encoding")
	}

	short := base64.StdEncoding.EncodeToString([]byte("too-short"))
	if _, err := New(short); err == nil {
		t.Error("expected error for short key")
	}
}

func TestOpenRejectsTampering(t *testing.T) {
	s, err := New(testKey)
	if err != nil {
		t.Fatalf("New: %v", err)
	}

	token, err := s.SealCredentials("u", "p")
	if err != nil {
		t.Fatalf("SealCredentials: %v", err)
	}

	raw, _ := base64.RawURLEncoding.DecodeString(token)
	raw[len(raw)-1] ^= 0xff
	tampered := base64.RawURLEncoding.EncodeToString(raw)

	if _, _, err := s.OpenCredentials(tampered); err == nil {
		t.Error("expected authentication failure for tampered token")
	}

	if _, _, err := s.OpenCredentials("ab"); err == nil {
		t.Error("expected error for truncated token")
	}
}
