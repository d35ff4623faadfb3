package safety

import (
	"fmt"
	"sync"
	"time"

	"go.uber.org/zap"
)

// LockInfo is a per-robot exclusive operation grant, per spec §4.3's lease
// pattern.
type LockInfo struct {
	RobotID    string
	UserID     string
	AcquiredAt time.Time
	ExpiresAt  time.Time
}

// OperationLock grants one user at a time exclusive control of a robot. A
// lock auto-expires after timeout unless the holder keeps extending it.
type OperationLock struct {
	mu      sync.RWMutex
	locks   map[string]*LockInfo // robot_id -> lock info
	timeout time.Duration
	logger  *zap.Logger
}

// NewOperationLock creates a lock manager with the given lease duration.
func NewOperationLock(timeout time.Duration, logger *zap.Logger) *OperationLock {
	return &OperationLock{
		locks:   make(map[string]*LockInfo),
		timeout: timeout,
		logger:  logger,
	}
}

// StartCleanup sweeps expired locks every 10s until done is closed.
func (o *OperationLock) StartCleanup(done <-chan struct{}) {
	go func() {
		ticker := time.NewTicker(10 * time.Second)
		defer ticker.Stop()
		for {
			select {
			case <-done:
				return
			case <-ticker.C:
				o.cleanupExpired()
			}
		}
	}()
}

// Acquire grants robotID's lock to userID. If the robot is already locked by
// the same user, the lease is extended rather than reissued. A lock held by
// a different user is refused unless it has expired.
func (o *OperationLock) Acquire(robotID, userID string) (*LockInfo, error) {
	o.mu.Lock()
	defer o.mu.Unlock()

	now := time.Now()
	if existing, ok := o.locks[robotID]; ok {
		if existing.ExpiresAt.After(now) {
			if existing.UserID == userID {
				existing.ExpiresAt = now.Add(o.timeout)
				o.logger.Debug("operation lock extended",
					zap.String("robot_id", robotID), zap.String("user_id", userID))
				return existing, nil
			}
			return existing, fmt.Errorf("robot %s is locked by user %s until %s",
				robotID, existing.UserID, existing.ExpiresAt.Format(time.RFC3339))
		}
		delete(o.locks, robotID) // expired
	}

	lock := &LockInfo{
		RobotID:    robotID,
		UserID:     userID,
		AcquiredAt: now,
		ExpiresAt:  now.Add(o.timeout),
	}
	o.locks[robotID] = lock
	o.logger.Info("operation lock acquired",
		zap.String("robot_id", robotID), zap.String("user_id", userID), zap.Time("expires_at", lock.ExpiresAt))
	return lock, nil
}

// Release drops robotID's lock if userID holds it. Releasing an unheld lock
// is a no-op, per spec §4.3's idempotence requirement.
func (o *OperationLock) Release(robotID, userID string) error {
	o.mu.Lock()
	defer o.mu.Unlock()

	lock, ok := o.locks[robotID]
	if !ok {
		return nil
	}
	if lock.UserID != userID {
		return fmt.Errorf("cannot release lock: owned by %s, requested by %s", lock.UserID, userID)
	}
	delete(o.locks, robotID)
	o.logger.Info("operation lock released", zap.String("robot_id", robotID), zap.String("user_id", userID))
	return nil
}

// ForceRelease drops robotID's lock regardless of who holds it, for use when
// the robot itself is the reason the lock must go away (e.g. it went
// offline), not the holder relinquishing it. Releasing an unheld lock is a
// no-op.
func (o *OperationLock) ForceRelease(robotID string) {
	o.mu.Lock()
	defer o.mu.Unlock()

	lock, ok := o.locks[robotID]
	if !ok {
		return
	}
	delete(o.locks, robotID)
	o.logger.Info("operation lock force-released", zap.String("robot_id", robotID), zap.String("user_id", lock.UserID))
}

// CheckLock reports whether userID currently holds an unexpired lock on robotID.
func (o *OperationLock) CheckLock(robotID, userID string) bool {
	o.mu.RLock()
	defer o.mu.RUnlock()
	lock, ok := o.locks[robotID]
	if !ok {
		return false
	}
	return lock.UserID == userID && lock.ExpiresAt.After(time.Now())
}

// GetLockInfo returns the current unexpired lock for robotID, or nil.
func (o *OperationLock) GetLockInfo(robotID string) *LockInfo {
	o.mu.RLock()
	defer o.mu.RUnlock()
	lock, ok := o.locks[robotID]
	if !ok || lock.ExpiresAt.Before(time.Now()) {
		return nil
	}
	return lock
}

func (o *OperationLock) cleanupExpired() {
	o.mu.Lock()
	defer o.mu.Unlock()
	now := time.Now()
	for robotID, lock := range o.locks {
		if lock.ExpiresAt.Before(now) {
			delete(o.locks, robotID)
			o.logger.Info("expired operation lock cleaned up",
				zap.String("robot_id", robotID), zap.String("user_id", lock.UserID))
		}
	}
}
