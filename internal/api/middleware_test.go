package api

import (
	"crypto/rsa"
	"encoding/base64"
	"testing"
)

func TestParseRSAPublicKey_StandardExponent(t *testing.T) {
	modulus := base64.RawURLEncoding.EncodeToString([]byte{0xC1, 0x55, 0x9A, 0x2F, 0x8E, 0x11, 0x42, 0x70})

	key, err := parseRSAPublicKey(modulus, "AQAB")
	if err != nil {
		t.Fatalf("parseRSAPublicKey returned error: %v", err)
	}
	pub, ok := key.(*rsa.PublicKey)
	if !ok {
		t.Fatalf("expected *rsa.PublicKey, got %T", key)
	}
	if pub.E != 65537 {
		t.Fatalf("expected exponent 65537, got %d", pub.E)
	}
}

func TestParseRSAPublicKey_PaddedExponent(t *testing.T) {
	modulus := base64.RawURLEncoding.EncodeToString([]byte{0xC1, 0x55, 0x9A, 0x2F})
	exponent := base64.RawURLEncoding.EncodeToString([]byte{0x00, 0x01, 0x00, 0x01})

	key, err := parseRSAPublicKey(modulus, exponent)
	if err != nil {
		t.Fatalf("parseRSAPublicKey returned error: %v", err)
	}
	if key.(*rsa.PublicKey).E != 65537 {
		t.Fatalf("expected exponent 65537, got %d", key.(*rsa.PublicKey).E)
	}
}

func TestParseRSAPublicKey_RejectsOversizedExponent(t *testing.T) {
	modulus := base64.RawURLEncoding.EncodeToString([]byte{0xC1, 0x55, 0x9A, 0x2F})
	exponent := base64.RawURLEncoding.EncodeToString(make([]byte, 9))

	if _, err := parseRSAPublicKey(modulus, exponent); err == nil {
		t.Fatal("expected an error for a 9-byte exponent")
	}
}

func TestParseRSAPublicKey_RejectsEmptyExponent(t *testing.T) {
	modulus := base64.RawURLEncoding.EncodeToString([]byte{0xC1, 0x55, 0x9A, 0x2F})

	if _, err := parseRSAPublicKey(modulus, ""); err == nil {
		t.Fatal("expected an error for an empty exponent")
	}
}
