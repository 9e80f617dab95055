package store

import (
	"testing"
	"time"

	"github.com/alicebob/miniredis/v2"
)

func TestRedisSessionStoreLifecycle(t *testing.T) {
	mr := miniredis.RunT(t)
	s := NewRedisSessionStore(mr.Addr(), "", "", time.Hour)

	token, err := s.NewSession("user-1")
	if err != nil {
		t.Fatalf("NewSession: %v", err)
	}
	userID, ok, err := s.GetUserIDByToken(token)
	if err != nil || !ok || userID != "user-1" {
		t.Fatalf("GetUserIDByToken = %q %v %v", userID, ok, err)
	}

	if err := s.DeleteSession(token); err != nil {
		t.Fatalf("DeleteSession: %v", err)
	}
	if _, ok, _ := s.GetUserIDByToken(token); ok {
		t.Fatal("token still resolves after delete")
	}
}

func TestRedisSessionStoreExpiry(t *testing.T) {
	mr := miniredis.RunT(t)
	s := NewRedisSessionStore(mr.Addr(), "", "", time.Minute)

	token, err := s.NewSession("user-1")
	if err != nil {
		t.Fatalf("NewSession: %v", err)
	}
	mr.FastForward(2 * time.Minute)
	if _, ok, _ := s.GetUserIDByToken(token); ok {
		t.Fatal("expired token must not resolve")
	}
}

const testJWTSecret = "0123456789abcdef0123456789abcdef"

func TestJWTSessionStoreRoundTrip(t *testing.T) {
	s, err := NewJWTSessionStore(testJWTSecret, JWTSessionOptions{TTL: time.Hour}, nil)
	if err != nil {
		t.Fatalf("NewJWTSessionStore: %v", err)
	}

	token, err := s.NewSession("user-7")
	if err != nil {
		t.Fatalf("NewSession: %v", err)
	}
	userID, ok, err := s.GetUserIDByToken(token)
	if err != nil || !ok || userID != "user-7" {
		t.Fatalf("GetUserIDByToken = %q %v %v", userID, ok, err)
	}
}

func TestJWTSessionStoreRejectsShortSecret(t *testing.T) {
	if _, err := NewJWTSessionStore("short", JWTSessionOptions{}, nil); err == nil {
		t.Fatal("expected error for short secret")
	}
}

func TestJWTSessionStoreRejectsForeignToken(t *testing.T) {
	issuing, _ := NewJWTSessionStore(testJWTSecret, JWTSessionOptions{}, nil)
	verifying, _ := NewJWTSessionStore("ffffffffffffffffffffffffffffffff", JWTSessionOptions{}, nil)

	token, err := issuing.NewSession("user-7")
	if err != nil {
		t.Fatalf("NewSession: %v", err)
	}
	if _, ok, _ := verifying.GetUserIDByToken(token); ok {
		t.Fatal("token signed with a different secret must not verify")
	}
	if _, ok, _ := issuing.GetUserIDByToken("garbage"); ok {
		t.Fatal("garbage token must not verify")
	}
}

func TestJWTSessionStoreRevocation(t *testing.T) {
	mr := miniredis.RunT(t)
	revoker := NewRedisTokenRevoker(mr.Addr(), "")
	s, err := NewJWTSessionStore(testJWTSecret, JWTSessionOptions{TTL: time.Hour}, revoker)
	if err != nil {
		t.Fatalf("NewJWTSessionStore: %v", err)
	}

	token, err := s.NewSession("user-7")
	if err != nil {
		t.Fatalf("NewSession: %v", err)
	}
	if _, ok, _ := s.GetUserIDByToken(token); !ok {
		t.Fatal("fresh token must verify")
	}

	if err := s.DeleteSession(token); err != nil {
		t.Fatalf("DeleteSession: %v", err)
	}
	if _, ok, _ := s.GetUserIDByToken(token); ok {
		t.Fatal("revoked token must not verify")
	}

	// Other sessions are untouched.
	other, _ := s.NewSession("user-8")
	if _, ok, _ := s.GetUserIDByToken(other); !ok {
		t.Fatal("unrevoked token must still verify")
	}
}
