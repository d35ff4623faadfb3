// Package safety implements the four-stage command pipeline that every
// actuation command passes through before reaching an adapter: E-Stop check,
// operation lock, velocity limiter, and the timeout watchdog.
package safety

import (
	"go.uber.org/zap"
)

// Reason codes returned on a rejected verdict.
const (
	ReasonEStopActive   = "ESTOP_ACTIVE"
	ReasonLockedByOther = "LOCKED_BY_OTHER"
)

// Command is one actuation request entering the pipeline.
type Command struct {
	RobotID string
	UserID  string
	Role    string
	Type    string // "velocity", "nav_goal", "nav_cancel", "estop"
	Payload map[string]any
}

// Verdict is the pipeline's synchronous outcome for one command.
type Verdict struct {
	Approved     bool
	Code         string
	Message      string
	Command      Command // possibly modified (velocity clamped)
	Clamped      bool
	LockOverride bool
}

// AlertFunc is invoked when the velocity limiter clamps a command, so the
// session/hub layer can emit a safety-alert to robot subscribers.
type AlertFunc func(robotID string, original, clamped VelocityInput)

// Pipeline chains the four safety stages, per spec §4.4.
type Pipeline struct {
	EStop    *EStopManager
	Lock     *OperationLock
	Limiter  *VelocityLimiter
	Watchdog *TimeoutWatchdog
	OnAlert  AlertFunc
	logger   *zap.Logger
}

// NewPipeline wires the four stages into a single evaluator.
func NewPipeline(estop *EStopManager, lock *OperationLock, limiter *VelocityLimiter, watchdog *TimeoutWatchdog, logger *zap.Logger) *Pipeline {
	return &Pipeline{EStop: estop, Lock: lock, Limiter: limiter, Watchdog: watchdog, logger: logger}
}

// Evaluate runs cmd through stages 1-3 synchronously and records it with the
// watchdog (stage 4 runs on its own background timer).
func (p *Pipeline) Evaluate(cmd Command) Verdict {
	// Stage 1: E-Stop check. Estop commands themselves always pass.
	if cmd.Type != "estop" && p.EStop.IsActive(cmd.RobotID) {
		return Verdict{
			Approved: false,
			Code:     ReasonEStopActive,
			Message:  "robot is under E-Stop",
			Command:  cmd,
		}
	}

	// Stage 2: operation lock.
	lockOverride := false
	if lock := p.Lock.GetLockInfo(cmd.RobotID); lock != nil && lock.UserID != cmd.UserID {
		if cmd.Role != "admin" {
			return Verdict{
				Approved: false,
				Code:     ReasonLockedByOther,
				Message:  "robot is locked by another user",
				Command:  cmd,
			}
		}
		lockOverride = true
		p.logger.Warn("admin lock override",
			zap.String("robot_id", cmd.RobotID), zap.String("user_id", cmd.UserID), zap.String("locked_by", lock.UserID))
	}

	// Stage 3: velocity limiter. Never rejects; only velocity commands pass through.
	clamped := false
	if cmd.Type == "velocity" {
		input := VelocityInput{
			LinearX:  toFloat(cmd.Payload["linear_x"]),
			LinearY:  toFloat(cmd.Payload["linear_y"]),
			AngularZ: toFloat(cmd.Payload["angular_z"]),
		}
		result := p.Limiter.Limit(input)
		if result.Clamped {
			clamped = true
			cmd.Payload = map[string]any{
				"linear_x":  result.LinearX,
				"linear_y":  result.LinearY,
				"angular_z": result.AngularZ,
				"clamped":   true,
			}
			if p.OnAlert != nil {
				p.OnAlert(cmd.RobotID, input, VelocityInput{LinearX: result.LinearX, LinearY: result.LinearY, AngularZ: result.AngularZ})
			}
		}

		nonZero := result.LinearX != 0 || result.LinearY != 0 || result.AngularZ != 0
		p.Watchdog.RecordCommand(cmd.RobotID, nonZero)
	}

	return Verdict{
		Approved:     true,
		Command:      cmd,
		Clamped:      clamped,
		LockOverride: lockOverride,
	}
}

func toFloat(v any) float64 {
	switch val := v.(type) {
	case float64:
		return val
	case float32:
		return float64(val)
	case int:
		return float64(val)
	case int64:
		return float64(val)
	default:
		return 0.0
	}
}
