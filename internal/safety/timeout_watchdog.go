package safety

import (
	"context"
	"sync"
	"time"

	"github.com/robot-ai-webapp/gateway/internal/adapter"
	"go.uber.org/zap"
)

// watchdogPeriod is the fixed scan interval, per spec §4.4 stage 4.
const watchdogPeriod = 500 * time.Millisecond

// lastVelocity remembers when a robot's last velocity command was recorded
// and whether it was already zero, so the watchdog injects at most one
// synthetic stop per staleness episode.
type lastVelocity struct {
	at       time.Time
	nonZero  bool
}

// TimeoutWatchdog injects a synthetic zero-velocity command for any robot
// whose last velocity command has gone stale, unless E-Stop already halts it.
type TimeoutWatchdog struct {
	mu          sync.RWMutex
	lastCommand map[string]lastVelocity
	timeout     time.Duration
	registry    *adapter.Registry
	estop       *EStopManager
	logger      *zap.Logger
	cancelFunc  context.CancelFunc
	onTimeout   func(robotID string)
}

// NewTimeoutWatchdog creates a watchdog that stops any robot whose last
// velocity command is older than timeout.
func NewTimeoutWatchdog(timeout time.Duration, registry *adapter.Registry, estop *EStopManager, logger *zap.Logger) *TimeoutWatchdog {
	return &TimeoutWatchdog{
		lastCommand: make(map[string]lastVelocity),
		timeout:     timeout,
		registry:    registry,
		estop:       estop,
		logger:      logger,
	}
}

// SetTimeoutCallback installs a hook invoked after a synthetic stop is injected.
func (t *TimeoutWatchdog) SetTimeoutCallback(fn func(robotID string)) {
	t.onTimeout = fn
}

// RecordCommand notes that robotID received a velocity command just now.
// nonZero reports whether any component of the velocity was non-zero.
func (t *TimeoutWatchdog) RecordCommand(robotID string, nonZero bool) {
	t.mu.Lock()
	defer t.mu.Unlock()
	t.lastCommand[robotID] = lastVelocity{at: time.Now(), nonZero: nonZero}
}

// RemoveRobot drops tracking for a disconnected robot.
func (t *TimeoutWatchdog) RemoveRobot(robotID string) {
	t.mu.Lock()
	defer t.mu.Unlock()
	delete(t.lastCommand, robotID)
}

// Start begins the background scan loop; Stop cancels it.
func (t *TimeoutWatchdog) Start(ctx context.Context) {
	watchCtx, cancel := context.WithCancel(ctx)
	t.cancelFunc = cancel
	go t.run(watchCtx)
	t.logger.Info("timeout watchdog started", zap.Duration("timeout", t.timeout))
}

func (t *TimeoutWatchdog) Stop() {
	if t.cancelFunc != nil {
		t.cancelFunc()
	}
}

func (t *TimeoutWatchdog) run(ctx context.Context) {
	ticker := time.NewTicker(watchdogPeriod)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case now := <-ticker.C:
			t.checkTimeouts(ctx, now)
		}
	}
}

func (t *TimeoutWatchdog) checkTimeouts(ctx context.Context, now time.Time) {
	t.mu.RLock()
	var stale []string
	for robotID, lv := range t.lastCommand {
		if lv.nonZero && now.Sub(lv.at) > t.timeout {
			stale = append(stale, robotID)
		}
	}
	t.mu.RUnlock()

	for _, robotID := range stale {
		if t.estop.IsActive(robotID) {
			// E-Stop already halts the robot; no synthetic stop needed.
			t.mu.Lock()
			delete(t.lastCommand, robotID)
			t.mu.Unlock()
			continue
		}
		t.logger.Warn("velocity command stale, injecting synthetic stop",
			zap.String("robot_id", robotID), zap.Duration("timeout", t.timeout))

		if adp, ok := t.registry.GetAdapter(robotID); ok {
			_ = adp.SendCommand(ctx, adapter.Command{
				RobotID: robotID,
				Type:    "velocity",
				Payload: map[string]any{
					"linear_x":  0.0,
					"linear_y":  0.0,
					"angular_z": 0.0,
				},
				Timestamp: now.UnixMilli(),
			})
		}

		t.mu.Lock()
		t.lastCommand[robotID] = lastVelocity{at: now, nonZero: false}
		t.mu.Unlock()

		if t.onTimeout != nil {
			t.onTimeout(robotID)
		}
	}
}
