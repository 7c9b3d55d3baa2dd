package store

import (
	"testing"
	"time"

	"github.com/alicebob/miniredis/v2"
)

func TestRedisSessionRoundTrip(t *testing.T) {
	mr := miniredis.RunT(t)
	sessions := NewRedisSessionStore(mr.Addr(), "", time.Hour)

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

	if err := sessions.DeleteSession(token); err != nil {
		t.Fatalf("delete session: %v", err)
	}
	if _, ok, _ := sessions.GetUserIDByToken(token); ok {
		t.Fatal("deleted session must not resolve")
	}
}

func TestRedisSessionHonorsTTL(t *testing.T) {
	mr := miniredis.RunT(t)
	sessions := NewRedisSessionStore(mr.Addr(), "", time.Minute)

	token, err := sessions.NewSession("user-1")
	if err != nil {
		t.Fatalf("new session: %v", err)
	}
	mr.FastForward(2 * time.Minute)

	if _, ok, _ := sessions.GetUserIDByToken(token); ok {
		t.Fatal("session past TTL must not resolve")
	}
}

func TestRedisSessionUnknownToken(t *testing.T) {
	mr := miniredis.RunT(t)
	sessions := NewRedisSessionStore(mr.Addr(), "", time.Hour)

	uid, ok, err := sessions.GetUserIDByToken("no-such-token")
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if ok || uid != "" {
		t.Fatalf("unknown token resolved to (%q, %v)", uid, ok)
	}
}
