package util

import (
	"net/http/httptest"
	"testing"
)

func TestClientIPIgnoresForwardedHeaderFromUntrustedPeer(t *testing.T) {
	req := httptest.NewRequest("GET", "/", nil)
	req.RemoteAddr = "203.0.113.7:4411"
	req.Header.Set("X-Forwarded-For", "198.51.100.9")

	if got := ClientIP(req, nil); got != "203.0.113.7" {
		t.Fatalf("client ip = %q, want direct peer", got)
	}
}

func TestClientIPUsesForwardedChainBehindTrustedProxy(t *testing.T) {
	trusted, err := NewTrustedProxies([]string{"10.0.0.0/8"})
	if err != nil {
		t.Fatalf("parse trusted proxies: %v", err)
	}

	req := httptest.NewRequest("GET", "/", nil)
	req.RemoteAddr = "10.0.0.2:9000"
	req.Header.Set("X-Forwarded-For", "198.51.100.9, 10.0.0.3")

	if got := ClientIP(req, trusted); got != "198.51.100.9" {
		t.Fatalf("client ip = %q, want rightmost untrusted hop", got)
	}
}

func TestNewTrustedProxiesRejectsGarbage(t *testing.T) {
	if _, err := NewTrustedProxies([]string{"not-an-ip"}); err == nil {
		t.Fatal("expected error for invalid entry")
	}
}

func TestNewTrustedProxiesEmptyMeansTrustNone(t *testing.T) {
	trusted, err := NewTrustedProxies(nil)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if trusted != nil {
		t.Fatal("expected nil allowlist for empty input")
	}
}
