package robot

import (
	"errors"
	"testing"
	"time"

	"go.uber.org/zap"
)

func newTestManager() *Manager {
	return NewManager(zap.NewNop().Sugar())
}

func TestManagerRegisterIsIdempotent(t *testing.T) {
	m := newTestManager()
	m.Register("r1", "Unit", "acme", "v1", Capabilities{})
	m.Register("r1", "Renamed", "other", "v2", Capabilities{})

	r, err := m.Get("r1")
	if err != nil {
		t.Fatalf("expected robot to exist: %v", err)
	}
	if r.Name != "Unit" {
		t.Errorf("expected re-register to be a no-op, got name %q", r.Name)
	}
	if r.State != StateIdle || r.Battery != 100.0 || !r.IsOnline {
		t.Errorf("unexpected initial state: %+v", r)
	}
}

func TestManagerGetUnknownReturnsErrRobotNotFound(t *testing.T) {
	m := newTestManager()
	if _, err := m.Get("missing"); err != ErrRobotNotFound {
		t.Errorf("expected ErrRobotNotFound, got %v", err)
	}
}

func TestManagerUpdateStatusValidatesTransitions(t *testing.T) {
	m := newTestManager()
	m.Register("r1", "Unit", "acme", "v1", Capabilities{})

	if err := m.UpdateStatus("r1", StateMoving, 90, 1, 2, 0.5); err != nil {
		t.Fatalf("idle -> moving should be legal: %v", err)
	}

	err := m.UpdateStatus("r1", StateCharging, 90, 1, 2, 0.5)
	var illegal *ErrIllegalTransition
	if err == nil {
		t.Fatal("expected moving -> charging to be rejected")
	}
	if !errors.As(err, &illegal) {
		t.Fatalf("expected ErrIllegalTransition, got %v", err)
	}
}

func TestManagerUpdateStatusAllowsErrorOverrideFromAnyState(t *testing.T) {
	m := newTestManager()
	m.Register("r1", "Unit", "acme", "v1", Capabilities{})
	if err := m.UpdateStatus("r1", StateMoving, 90, 0, 0, 0); err != nil {
		t.Fatalf("idle -> moving should be legal: %v", err)
	}
	if err := m.UpdateStatus("r1", StateError, 90, 0, 0, 0); err != nil {
		t.Fatalf("error override should always be legal: %v", err)
	}
}

func TestManagerCheckTimeoutsMarksStaleRobotsOffline(t *testing.T) {
	m := newTestManager()
	m.Register("r1", "Unit", "acme", "v1", Capabilities{})

	timedOut := m.CheckTimeouts(-1 * time.Second)
	if len(timedOut) != 1 || timedOut[0] != "r1" {
		t.Fatalf("expected r1 to time out, got %v", timedOut)
	}

	r, _ := m.Get("r1")
	if r.IsOnline {
		t.Error("expected robot to be marked offline")
	}
	if r.State != StateOffline {
		t.Errorf("expected state offline, got %s", r.State)
	}
}

func TestManagerOnlineCount(t *testing.T) {
	m := newTestManager()
	m.Register("r1", "Unit", "acme", "v1", Capabilities{})
	m.Register("r2", "Unit", "acme", "v1", Capabilities{})
	m.SetOnline("r2", false)

	if got := m.OnlineCount(); got != 1 {
		t.Errorf("expected 1 online robot, got %d", got)
	}
}
