package session

import (
	"context"
	"errors"
	"testing"
	"time"

	"answerdesk/api/internal/store"
	"github.com/alicebob/miniredis/v2"
)

func setupTestRedis(t *testing.T) (*RedisStore, *miniredis.Miniredis) {
	t.Helper()
	s := miniredis.RunT(t)
	sessions, err := NewRedisStore("redis://" + s.Addr())
	if err != nil {
		t.Fatalf("failed to create redis store: %v", err)
	}
	t.Cleanup(func() { _ = sessions.Close() })
	return sessions, s
}

func TestNewRedisStore(t *testing.T) {
	sessions, _ := setupTestRedis(t)
	if err := sessions.Ping(context.Background()); err != nil {
		t.Errorf("Ping failed: %v", err)
	}
}

func TestNewRedisStoreRejectsBadURL(t *testing.T) {
	if _, err := NewRedisStore("not a url"); err == nil {
		t.Fatal("expected parse error")
	}
}

func TestSaveAndLookupRefreshSession(t *testing.T) {
	sessions, _ := setupTestRedis(t)
	ctx := context.Background()

	if err := sessions.SaveRefreshSession(ctx, "hash-1", "usr_1", time.Now().Add(24*time.Hour)); err != nil {
		t.Fatalf("SaveRefreshSession failed: %v", err)
	}

	userID, err := sessions.LookupRefreshSession(ctx, "hash-1")
	if err != nil {
		t.Fatalf("LookupRefreshSession failed: %v", err)
	}
	if userID != "usr_1" {
		t.Errorf("expected usr_1, got %s", userID)
	}
}

func TestLookupExpiredSession(t *testing.T) {
	sessions, s := setupTestRedis(t)
	ctx := context.Background()

	if err := sessions.SaveRefreshSession(ctx, "hash-exp", "usr_1", time.Now().Add(time.Minute)); err != nil {
		t.Fatalf("SaveRefreshSession failed: %v", err)
	}
	s.FastForward(2 * time.Minute)

	if _, err := sessions.LookupRefreshSession(ctx, "hash-exp"); !errors.Is(err, store.ErrNotFound) {
		t.Fatalf("expected ErrNotFound for expired token, got %v", err)
	}
}

func TestSaveRejectsPastExpiry(t *testing.T) {
	sessions, _ := setupTestRedis(t)
	if err := sessions.SaveRefreshSession(context.Background(), "hash", "usr_1", time.Now().Add(-time.Second)); err == nil {
		t.Fatal("expected error for past expiry")
	}
}

func TestRevokeRefreshSession(t *testing.T) {
	sessions, s := setupTestRedis(t)
	ctx := context.Background()

	if err := sessions.SaveRefreshSession(ctx, "hash-r", "usr_1", time.Now().Add(time.Hour)); err != nil {
		t.Fatalf("SaveRefreshSession failed: %v", err)
	}
	if err := sessions.RevokeRefreshSession(ctx, "hash-r"); err != nil {
		t.Fatalf("RevokeRefreshSession failed: %v", err)
	}
	if _, err := sessions.LookupRefreshSession(ctx, "hash-r"); !errors.Is(err, store.ErrNotFound) {
		t.Fatalf("expected ErrNotFound after revoke, got %v", err)
	}
	if members, _ := s.Members(defaultPrefix + "user-sessions:usr_1"); len(members) != 0 {
		t.Fatalf("expected index to be cleaned, got %v", members)
	}

	if err := sessions.RevokeRefreshSession(ctx, "never-issued"); err != nil {
		t.Errorf("revoking unknown token should not error: %v", err)
	}
}

func TestRevokeUserSessions(t *testing.T) {
	sessions, _ := setupTestRedis(t)
	ctx := context.Background()
	expiresAt := time.Now().Add(time.Hour)

	for _, hash := range []string{"a", "b"} {
		if err := sessions.SaveRefreshSession(ctx, hash, "usr_1", expiresAt); err != nil {
			t.Fatalf("SaveRefreshSession failed: %v", err)
		}
	}
	if err := sessions.SaveRefreshSession(ctx, "c", "usr_2", expiresAt); err != nil {
		t.Fatalf("SaveRefreshSession failed: %v", err)
	}

	if err := sessions.RevokeUserSessions(ctx, "usr_1"); err != nil {
		t.Fatalf("RevokeUserSessions failed: %v", err)
	}
	for _, hash := range []string{"a", "b"} {
		if _, err := sessions.LookupRefreshSession(ctx, hash); !errors.Is(err, store.ErrNotFound) {
			t.Fatalf("expected %s revoked, got %v", hash, err)
		}
	}
	if userID, err := sessions.LookupRefreshSession(ctx, "c"); err != nil || userID != "usr_2" {
		t.Fatalf("expected usr_2 session to survive, got %q %v", userID, err)
	}
}

func TestRevokeAccessToken(t *testing.T) {
	sessions, s := setupTestRedis(t)
	ctx := context.Background()

	revoked, err := sessions.IsAccessTokenRevoked(ctx, "jti-1")
	if err != nil || revoked {
		t.Fatalf("expected fresh jti to be live, got %v %v", revoked, err)
	}

	if err := sessions.RevokeAccessToken(ctx, "jti-1", time.Now().Add(10*time.Minute)); err != nil {
		t.Fatalf("RevokeAccessToken failed: %v", err)
	}
	revoked, err = sessions.IsAccessTokenRevoked(ctx, "jti-1")
	if err != nil || !revoked {
		t.Fatalf("expected jti to be revoked, got %v %v", revoked, err)
	}

	s.FastForward(11 * time.Minute)
	revoked, err = sessions.IsAccessTokenRevoked(ctx, "jti-1")
	if err != nil || revoked {
		t.Fatalf("expected denylist entry to expire, got %v %v", revoked, err)
	}
}
