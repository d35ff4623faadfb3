package safety

import (
	"context"
	"sync"

	"github.com/robot-ai-webapp/gateway/internal/adapter"
	"go.uber.org/zap"
)

// EStopManager tracks a process-wide global E-Stop flag plus a per-robot
// E-Stop flag, and drives the adapter's EmergencyStop on activation.
type EStopManager struct {
	mu       sync.RWMutex
	global   bool
	active   map[string]bool // robot_id -> per-robot estop active
	registry *adapter.Registry
	logger   *zap.Logger
}

// NewEStopManager creates an EStopManager with no active stops.
func NewEStopManager(registry *adapter.Registry, logger *zap.Logger) *EStopManager {
	return &EStopManager{
		active:   make(map[string]bool),
		registry: registry,
		logger:   logger,
	}
}

// Activate sets the per-robot E-Stop flag and invokes the adapter's
// EmergencyStop.
func (e *EStopManager) Activate(ctx context.Context, robotID, userID, reason string) error {
	e.mu.Lock()
	e.active[robotID] = true
	e.mu.Unlock()

	e.logger.Warn("e-stop activated",
		zap.String("robot_id", robotID),
		zap.String("user_id", userID),
		zap.String("reason", reason),
	)

	if adp, ok := e.registry.GetAdapter(robotID); ok {
		return adp.EmergencyStop(ctx)
	}
	return nil
}

// ActivateGlobal sets the global E-Stop flag and emergency-stops every
// active adapter. Returns the count stopped and the ids that failed.
func (e *EStopManager) ActivateGlobal(ctx context.Context, userID, reason string) (int, []string) {
	e.mu.Lock()
	e.global = true
	e.mu.Unlock()

	adapters := e.registry.GetAllActive()
	stopped := 0
	var failed []string
	for robotID, adp := range adapters {
		if err := adp.EmergencyStop(ctx); err != nil {
			e.logger.Error("failed to e-stop robot", zap.String("robot_id", robotID), zap.Error(err))
			failed = append(failed, robotID)
			continue
		}
		stopped++
	}

	e.logger.Warn("global e-stop activated",
		zap.String("user_id", userID),
		zap.String("reason", reason),
		zap.Int("stopped", stopped),
		zap.Int("failed", len(failed)),
	)
	return stopped, failed
}

// Release clears the per-robot E-Stop flag.
func (e *EStopManager) Release(robotID, userID string) {
	e.mu.Lock()
	delete(e.active, robotID)
	e.mu.Unlock()
	e.logger.Info("e-stop released", zap.String("robot_id", robotID), zap.String("user_id", userID))
}

// ReleaseGlobal clears the global E-Stop flag. Per-robot flags are untouched.
func (e *EStopManager) ReleaseGlobal(userID string) {
	e.mu.Lock()
	e.global = false
	e.mu.Unlock()
	e.logger.Info("global e-stop released", zap.String("user_id", userID))
}

// IsActive reports whether global or per-robot E-Stop is active for robotID.
func (e *EStopManager) IsActive(robotID string) bool {
	e.mu.RLock()
	defer e.mu.RUnlock()
	return e.global || e.active[robotID]
}

// IsGlobalActive reports whether the global E-Stop flag is set.
func (e *EStopManager) IsGlobalActive() bool {
	e.mu.RLock()
	defer e.mu.RUnlock()
	return e.global
}
