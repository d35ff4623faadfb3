package safety

import (
	"testing"
	"time"

	"go.uber.org/zap"
)

func TestOperationLockAcquireRelease(t *testing.T) {
	lock := NewOperationLock(300*time.Second, zap.NewNop())

	info, err := lock.Acquire("robot-1", "user-1")
	if err != nil {
		t.Fatalf("failed to acquire lock: %v", err)
	}
	if info.UserID != "user-1" {
		t.Errorf("expected user_id=user-1, got %s", info.UserID)
	}

	if !lock.CheckLock("robot-1", "user-1") {
		t.Error("expected lock to be held by user-1")
	}
	if lock.CheckLock("robot-1", "user-2") {
		t.Error("expected lock NOT to be held by user-2")
	}

	if _, err := lock.Acquire("robot-1", "user-2"); err == nil {
		t.Error("expected error when another user tries to acquire")
	}

	if err := lock.Release("robot-1", "user-1"); err != nil {
		t.Fatalf("failed to release lock: %v", err)
	}

	if _, err := lock.Acquire("robot-1", "user-2"); err != nil {
		t.Fatalf("user-2 should be able to acquire after release: %v", err)
	}
}

func TestOperationLockForceReleaseDropsAnyHolder(t *testing.T) {
	lock := NewOperationLock(300*time.Second, zap.NewNop())

	if _, err := lock.Acquire("robot-1", "user-1"); err != nil {
		t.Fatalf("failed to acquire lock: %v", err)
	}

	lock.ForceRelease("robot-1")

	if lock.CheckLock("robot-1", "user-1") {
		t.Error("expected force release to drop the lock regardless of holder")
	}
	if _, err := lock.Acquire("robot-1", "user-2"); err != nil {
		t.Fatalf("user-2 should be able to acquire after force release: %v", err)
	}
}

func TestOperationLockForceReleaseOnUnheldLockIsNoop(t *testing.T) {
	lock := NewOperationLock(300*time.Second, zap.NewNop())
	lock.ForceRelease("robot-1")
}

func TestOperationLockExtendsOnReacquireBySameUser(t *testing.T) {
	lock := NewOperationLock(300*time.Second, zap.NewNop())

	first, err := lock.Acquire("robot-1", "user-1")
	if err != nil {
		t.Fatalf("failed to acquire lock: %v", err)
	}
	firstExpiry := first.ExpiresAt

	second, err := lock.Acquire("robot-1", "user-1")
	if err != nil {
		t.Fatalf("same user should be able to re-acquire: %v", err)
	}
	if second.ExpiresAt.Before(firstExpiry) {
		t.Error("expected lease to extend, not shorten")
	}
}
