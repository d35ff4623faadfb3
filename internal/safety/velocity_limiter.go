package safety

import (
	"go.uber.org/zap"
)

// VelocityLimiter clamps every velocity command component independently to
// the configured maximum envelope, per spec §4.4 stage 3.
type VelocityLimiter struct {
	maxLinearVel  float64
	maxAngularVel float64
	logger        *zap.Logger
}

// NewVelocityLimiter creates a new velocity limiter
func NewVelocityLimiter(maxLinear, maxAngular float64, logger *zap.Logger) *VelocityLimiter {
	return &VelocityLimiter{
		maxLinearVel:  maxLinear,
		maxAngularVel: maxAngular,
		logger:        logger,
	}
}

// VelocityInput represents a velocity command
type VelocityInput struct {
	LinearX  float64
	LinearY  float64
	AngularZ float64
}

// LimitResult contains the clamped velocity and whether clamping occurred
type LimitResult struct {
	LinearX  float64
	LinearY  float64
	AngularZ float64
	Clamped  bool
}

// Limit clamps velocity values to the configured maximum
func (v *VelocityLimiter) Limit(input VelocityInput) LimitResult {
	result := LimitResult{
		LinearX:  input.LinearX,
		LinearY:  input.LinearY,
		AngularZ: input.AngularZ,
	}

	if clamped, v2 := clampComponent(input.LinearX, v.maxLinearVel); clamped {
		result.LinearX = v2
		result.Clamped = true
	}
	if clamped, v2 := clampComponent(input.LinearY, v.maxLinearVel); clamped {
		result.LinearY = v2
		result.Clamped = true
	}
	if clamped, v2 := clampComponent(input.AngularZ, v.maxAngularVel); clamped {
		result.AngularZ = v2
		result.Clamped = true
	}

	if result.Clamped {
		v.logger.Debug("Velocity clamped",
			zap.Float64("req_lx", input.LinearX),
			zap.Float64("req_ly", input.LinearY),
			zap.Float64("req_az", input.AngularZ),
			zap.Float64("out_lx", result.LinearX),
			zap.Float64("out_ly", result.LinearY),
			zap.Float64("out_az", result.AngularZ),
		)
	}

	return result
}

// clampComponent clamps v to [-max, max], reporting whether it changed.
func clampComponent(v, max float64) (bool, float64) {
	if v > max {
		return true, max
	}
	if v < -max {
		return true, -max
	}
	return false, v
}
