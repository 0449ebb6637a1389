package redis

import (
	"context"
	"testing"
	"time"

	"github.com/alicebob/miniredis/v2"
	"github.com/redis/go-redis/v9"
	"go.uber.org/zap"
)

func setupTestRedis(t *testing.T) (*Client, *miniredis.Miniredis, func()) {
	t.Helper()
	mr, err := miniredis.Run()
	if err != nil {
		t.Fatalf("failed to start miniredis: %v", err)
	}

	rdb := redis.NewClient(&redis.Options{Addr: mr.Addr()})
	client := &Client{rdb: rdb, logger: zap.NewNop()}

	return client, mr, func() {
		rdb.Close()
		mr.Close()
	}
}

func TestRunLock_AcquireAndRelease(t *testing.T) {
	client, _, cleanup := setupTestRedis(t)
	defer cleanup()

	lock := NewRunLock(client, zap.NewNop())
	ctx := context.Background()

	acquired, err := lock.Acquire(ctx)
	if err != nil {
		t.Fatalf("acquire failed: %v", err)
	}
	if !acquired {
		t.Fatal("expected first acquire to succeed")
	}

	if err := lock.Release(ctx); err != nil {
		t.Fatalf("release failed: %v", err)
	}

	// Released lock can be taken again.
	acquired, err = lock.Acquire(ctx)
	if err != nil {
		t.Fatalf("re-acquire failed: %v", err)
	}
	if !acquired {
		t.Error("expected acquire to succeed after release")
	}
}

func TestRunLock_SecondAcquireBlocked(t *testing.T) {
	client, _, cleanup := setupTestRedis(t)
	defer cleanup()

	lock := NewRunLock(client, zap.NewNop())
	ctx := context.Background()

	if acquired, _ := lock.Acquire(ctx); !acquired {
		t.Fatal("expected first acquire to succeed")
	}

	acquired, err := lock.Acquire(ctx)
	if err != nil {
		t.Fatalf("second acquire errored: %v", err)
	}
	if acquired {
		t.Error("expected second acquire to be blocked while held")
	}
}

func TestRunLock_TTLExpiry(t *testing.T) {
	client, mr, cleanup := setupTestRedis(t)
	defer cleanup()

	lock := NewRunLock(client, zap.NewNop())
	ctx := context.Background()

	if acquired, _ := lock.Acquire(ctx); !acquired {
		t.Fatal("expected first acquire to succeed")
	}

	// A crashed run never releases; the TTL frees the lock.
	mr.FastForward(runLockTTL + time.Second)

	acquired, err := lock.Acquire(ctx)
	if err != nil {
		t.Fatalf("acquire after expiry errored: %v", err)
	}
	if !acquired {
		t.Error("expected acquire to succeed after TTL expiry")
	}
}
