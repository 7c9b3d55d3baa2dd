package store

import (
	"testing"
	"time"
)

func TestJWTSessionRoundTrip(t *testing.T) {
	sessions, err := NewJWTSessionStore("test-secret", time.Hour)
	if err != nil {
		t.Fatalf("new jwt session store: %v", err)
	}
	token, err := sessions.NewSession("user-1")
	if err != nil {
		t.Fatalf("new session: %v", err)
	}
	uid, ok, err := sessions.GetUserIDByToken(token)
	if err != nil {
		t.Fatalf("resolve token: %v", err)
	}
	if !ok || uid != "user-1" {
		t.Fatalf("resolved (%q, %v), want (user-1, true)", uid, ok)
	}
}

func TestJWTSessionRejectsForeignSignature(t *testing.T) {
	issuer, err := NewJWTSessionStore("secret-a", time.Hour)
	if err != nil {
		t.Fatalf("new issuer: %v", err)
	}
	verifier, err := NewJWTSessionStore("secret-b", time.Hour)
	if err != nil {
		t.Fatalf("new verifier: %v", err)
	}
	token, err := issuer.NewSession("user-1")
	if err != nil {
		t.Fatalf("new session: %v", err)
	}
	if _, ok, _ := verifier.GetUserIDByToken(token); ok {
		t.Fatal("token signed with another secret must not resolve")
	}
}

func TestJWTSessionExpires(t *testing.T) {
	sessions, err := NewJWTSessionStore("test-secret", -time.Minute)
	if err != nil {
		t.Fatalf("new jwt session store: %v", err)
	}
	token, err := sessions.NewSession("user-1")
	if err != nil {
		t.Fatalf("new session: %v", err)
	}
	if _, ok, _ := sessions.GetUserIDByToken(token); ok {
		t.Fatal("expired token must not resolve")
	}
}

func TestJWTSessionRequiresSecret(t *testing.T) {
	if _, err := NewJWTSessionStore("", time.Hour); err == nil {
		t.Fatal("expected error for empty secret")
	}
}
