package redis

import (
	"context"
	"testing"
	"time"

	"github.com/alicebob/miniredis/v2"
	"github.com/redis/go-redis/v9"
)

func setupTestRedis(t *testing.T) (*redis.Client, *miniredis.Miniredis) {
	t.Helper()
	mr, err := miniredis.Run()
	if err != nil {
		t.Fatalf("failed to start miniredis: %v", err)
	}

	client := redis.NewClient(&redis.Options{Addr: mr.Addr()})
	t.Cleanup(func() {
		client.Close()
		mr.Close()
	})
	return client, mr
}

func TestLock_OwnerIDsAreUnique(t *testing.T) {
	client, _ := setupTestRedis(t)

	a, b := NewLock(client), NewLock(client)
	if a.OwnerID() == "" || a.OwnerID() == b.OwnerID() {
		t.Errorf("expected distinct owner ids, got %q and %q", a.OwnerID(), b.OwnerID())
	}
}

func TestLock_AcquireExclusive(t *testing.T) {
	client, _ := setupTestRedis(t)
	ctx := context.Background()
	a, b := NewLock(client), NewLock(client)

	ok, err := a.Acquire(ctx, "token-refresh", 10*time.Second)
	if err != nil || !ok {
		t.Fatalf("expected first acquire to succeed, got %v %v", ok, err)
	}

	ok, err = b.Acquire(ctx, "token-refresh", 10*time.Second)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if ok {
		t.Error("expected second instance to be refused")
	}

	ok, _ = b.Acquire(ctx, "other-lock", 10*time.Second)
	if !ok {
		t.Error("expected independent lock names to not conflict")
	}
}

func TestLock_ExpiresAfterTTL(t *testing.T) {
	client, mr := setupTestRedis(t)
	ctx := context.Background()
	a, b := NewLock(client), NewLock(client)

	a.Acquire(ctx, "token-refresh", time.Second)
	mr.FastForward(2 * time.Second)

	ok, _ := b.Acquire(ctx, "token-refresh", time.Second)
	if !ok {
		t.Error("expected lock to be free after TTL")
	}
}

func TestLock_ReleaseOnlyByOwner(t *testing.T) {
	client, mr := setupTestRedis(t)
	ctx := context.Background()
	a, b := NewLock(client), NewLock(client)

	a.Acquire(ctx, "token-refresh", 10*time.Second)

	if err := b.Release(ctx, "token-refresh"); err != nil {
		t.Fatalf("Release: %v", err)
	}
	if !mr.Exists(lockPrefix + "token-refresh") {
		t.Fatal("foreign release must not drop the lock")
	}

	if err := a.Release(ctx, "token-refresh"); err != nil {
		t.Fatalf("Release: %v", err)
	}
	if mr.Exists(lockPrefix + "token-refresh") {
		t.Error("expected owner release to drop the lock")
	}

	if err := a.Release(ctx, "never-held"); err != nil {
		t.Errorf("expected releasing a free lock to succeed, got %v", err)
	}
}

func TestLock_Extend(t *testing.T) {
	client, mr := setupTestRedis(t)
	ctx := context.Background()
	a, b := NewLock(client), NewLock(client)

	a.Acquire(ctx, "token-refresh", time.Second)
	if err := a.Extend(ctx, "token-refresh", time.Minute); err != nil {
		t.Fatalf("Extend: %v", err)
	}
	if ttl := mr.TTL(lockPrefix + "token-refresh"); ttl < 30*time.Second {
		t.Errorf("expected extended ttl, got %v", ttl)
	}

	if err := b.Extend(ctx, "token-refresh", time.Minute); err == nil {
		t.Error("expected extend by non-owner to fail")
	}
}

func TestLock_Ping(t *testing.T) {
	client, _ := setupTestRedis(t)
	if err := NewLock(client).Ping(context.Background()); err != nil {
		t.Errorf("Ping: %v", err)
	}
}
