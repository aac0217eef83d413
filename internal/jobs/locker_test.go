package jobs

import (
	"context"
	"testing"
	"time"
)

func TestLocalLocker_MutualExclusionAndExpiry(t *testing.T) {
	l := NewLocalLocker()
	now := time.Date(2025, 6, 16, 10, 0, 0, 0, time.UTC)
	l.clock = func() time.Time { return now }
	ctx := context.Background()

	ok, err := l.TryLock(ctx, "generate_tasks", time.Minute)
	if err != nil || !ok {
		t.Fatalf("first acquisition should succeed: ok=%v err=%v", ok, err)
	}

	ok, _ = l.TryLock(ctx, "generate_tasks", time.Minute)
	if ok {
		t.Error("held lock must not be re-acquired")
	}

	// A different name is an independent lock.
	ok, _ = l.TryLock(ctx, "send_reminders", time.Minute)
	if !ok {
		t.Error("unrelated lock should be free")
	}

	// Past the TTL the lock self-expires.
	now = now.Add(2 * time.Minute)
	ok, _ = l.TryLock(ctx, "generate_tasks", time.Minute)
	if !ok {
		t.Error("expired lock should be reclaimable")
	}

	if err := l.Unlock(ctx, "generate_tasks"); err != nil {
		t.Fatalf("unlock failed: %v", err)
	}
	ok, _ = l.TryLock(ctx, "generate_tasks", time.Minute)
	if !ok {
		t.Error("released lock should be free")
	}
}
