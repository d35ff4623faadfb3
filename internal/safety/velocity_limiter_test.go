package safety

import (
	"testing"

	"go.uber.org/zap"
)

func TestVelocityLimiterNoClamp(t *testing.T) {
	limiter := NewVelocityLimiter(1.0, 2.0, zap.NewNop())

	result := limiter.Limit(VelocityInput{LinearX: 0.5, AngularZ: 1.0})

	if result.Clamped {
		t.Error("expected no clamping")
	}
	if result.LinearX != 0.5 {
		t.Errorf("expected linear_x=0.5, got %f", result.LinearX)
	}
	if result.AngularZ != 1.0 {
		t.Errorf("expected angular_z=1.0, got %f", result.AngularZ)
	}
}

func TestVelocityLimiterClampLinear(t *testing.T) {
	limiter := NewVelocityLimiter(1.0, 2.0, zap.NewNop())

	result := limiter.Limit(VelocityInput{LinearX: 2.0})

	if !result.Clamped {
		t.Error("expected clamping")
	}
	if result.LinearX != 1.0 {
		t.Errorf("expected linear_x=1.0, got %f", result.LinearX)
	}
}

func TestVelocityLimiterClampAngular(t *testing.T) {
	limiter := NewVelocityLimiter(1.0, 2.0, zap.NewNop())

	result := limiter.Limit(VelocityInput{LinearX: 0.5, AngularZ: 5.0})

	if !result.Clamped {
		t.Error("expected clamping")
	}
	if result.AngularZ != 2.0 {
		t.Errorf("expected angular_z=2.0, got %f", result.AngularZ)
	}
}

func TestVelocityLimiterClampsNegativeIndependently(t *testing.T) {
	limiter := NewVelocityLimiter(1.0, 2.0, zap.NewNop())

	result := limiter.Limit(VelocityInput{LinearX: -2.0, LinearY: 0.3, AngularZ: -5.0})

	if !result.Clamped {
		t.Error("expected clamping")
	}
	if result.LinearX != -1.0 {
		t.Errorf("expected linear_x=-1.0, got %f", result.LinearX)
	}
	if result.LinearY != 0.3 {
		t.Errorf("expected linear_y untouched at 0.3, got %f", result.LinearY)
	}
	if result.AngularZ != -2.0 {
		t.Errorf("expected angular_z=-2.0, got %f", result.AngularZ)
	}
}
