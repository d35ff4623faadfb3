package robot

import (
	"errors"
	"fmt"
	"sync"
	"time"

	"go.uber.org/zap"
)

// State is a robot's lifecycle state, per the FSM in spec §3.
type State string

const (
	StateIdle     State = "IDLE"
	StateMoving   State = "MOVING"
	StatePaused   State = "PAUSED"
	StateCharging State = "CHARGING"
	StateError    State = "ERROR"
	StateOffline  State = "OFFLINE"
)

// ErrRobotNotFound is returned when an operation names an unregistered id.
var ErrRobotNotFound = errors.New("robot not found")

// ErrIllegalTransition is returned by UpdateStatus when the requested state
// is not reachable from the robot's current state.
type ErrIllegalTransition struct {
	RobotID string
	From    State
	To      State
}

func (e *ErrIllegalTransition) Error() string {
	return fmt.Sprintf("robot %s: illegal transition %s -> %s", e.RobotID, e.From, e.To)
}

// Position is a robot's planar pose.
type Position struct {
	X     float64 `json:"x"`
	Y     float64 `json:"y"`
	Theta float64 `json:"theta"`
}

// Capabilities describes what a robot (and its adapter) can do, per spec §3.
type Capabilities struct {
	SupportsVelocity   bool     `json:"supports_velocity"`
	SupportsNavigation bool     `json:"supports_navigation"`
	SupportsEStop      bool     `json:"supports_estop"`
	SupportsPause      bool     `json:"supports_pause"`
	MaxLinearVelocity  float64  `json:"max_linear_velocity"`
	MaxAngularVelocity float64  `json:"max_angular_velocity"`
	SensorTopics       []string `json:"sensor_topics"`
}

// Robot is the catalog entry for one AMR, per spec §3's data model.
type Robot struct {
	ID               string            `json:"id"`
	Name             string            `json:"name"`
	Vendor           string            `json:"vendor"`
	Model            string            `json:"model"`
	State            State             `json:"state"`
	Battery          float64           `json:"battery"`
	X                float64           `json:"x"`
	Y                float64           `json:"y"`
	Theta            float64           `json:"theta"`
	Capabilities     Capabilities      `json:"capabilities"`
	IsOnline         bool              `json:"is_online"`
	LastSeen         time.Time         `json:"last_seen"`
	CurrentMissionID string            `json:"current_mission_id"`
	Metadata         map[string]string `json:"metadata"`

	fsm *FSM
}

// Status is the compact robot view returned by status queries.
type Status struct {
	RobotID  string  `json:"robot_id"`
	State    State   `json:"state"`
	Battery  float64 `json:"battery"`
	X        float64 `json:"x"`
	Y        float64 `json:"y"`
	Theta    float64 `json:"theta"`
	IsOnline bool    `json:"is_online"`
}

// Manager owns the robot catalog, the per-robot FSMs, and the latest
// sensor/control sample stores used to snapshot state at command-ack time.
// All mutations run under a single sync.RWMutex (readers share it; a waiting
// writer blocks new readers); reads return detached copies so callers never
// observe a partial write.
type Manager struct {
	mu               sync.RWMutex
	robots           map[string]*Robot
	sensorDataStore  map[string]map[string]float64
	controlDataStore map[string]map[string]float64
	logger           *zap.SugaredLogger
}

// NewManager creates an empty robot catalog.
func NewManager(logger *zap.SugaredLogger) *Manager {
	return &Manager{
		robots:           make(map[string]*Robot),
		sensorDataStore:  make(map[string]map[string]float64),
		controlDataStore: make(map[string]map[string]float64),
		logger:           logger,
	}
}

// Register inserts a robot if absent (state=Idle, battery=100, online=true).
// Re-registering an already-known id is a no-op, per spec §4.3's idempotence
// requirement.
func (m *Manager) Register(id, name, vendor, model string, capabilities Capabilities) {
	m.mu.Lock()
	defer m.mu.Unlock()

	if _, exists := m.robots[id]; exists {
		return
	}
	m.robots[id] = &Robot{
		ID:           id,
		Name:         name,
		Vendor:       vendor,
		Model:        model,
		State:        StateIdle,
		Battery:      100.0,
		Capabilities: capabilities,
		IsOnline:     true,
		LastSeen:     time.Now(),
		Metadata:     make(map[string]string),
		fsm:          NewFSM(StateIdle),
	}
	m.logger.Infow("robot registered", "robot_id", id, "vendor", vendor, "model", model)
}

// UpdateStatus applies a heartbeat: validates the FSM transition, refreshes
// the pose/battery/last-seen, and marks the robot online. A state equal to
// the current state is always accepted (no-op transition).
func (m *Manager) UpdateStatus(id string, state State, battery, x, y, theta float64) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	r, ok := m.robots[id]
	if !ok {
		return ErrRobotNotFound
	}

	if state != r.State {
		if state == StateError {
			r.fsm.ForceState(StateError) // safety override, always permitted
		} else if !r.fsm.TransitionTo(state) {
			return &ErrIllegalTransition{RobotID: id, From: r.State, To: state}
		}
	}

	r.State = state
	r.Battery = battery
	r.X, r.Y, r.Theta = x, y, theta
	r.IsOnline = true
	r.LastSeen = time.Now()
	m.logger.Debugw("robot status updated", "robot_id", id, "state", state, "battery", battery)
	return nil
}

// SetOnline marks a robot's connectivity flag and refreshes last-seen.
func (m *Manager) SetOnline(id string, online bool) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if r, ok := m.robots[id]; ok {
		r.IsOnline = online
		r.LastSeen = time.Now()
	}
}

func copyRobot(r *Robot) *Robot {
	cp := *r
	cp.fsm = nil
	meta := make(map[string]string, len(r.Metadata))
	for k, v := range r.Metadata {
		meta[k] = v
	}
	cp.Metadata = meta
	topics := make([]string, len(r.Capabilities.SensorTopics))
	copy(topics, r.Capabilities.SensorTopics)
	cp.Capabilities.SensorTopics = topics
	return &cp
}

// Get returns a detached copy of a robot's catalog entry.
func (m *Manager) Get(id string) (*Robot, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	r, ok := m.robots[id]
	if !ok {
		return nil, ErrRobotNotFound
	}
	return copyRobot(r), nil
}

// GetStatus returns the compact status view, or false if unknown.
func (m *Manager) GetStatus(id string) (*Status, bool) {
	r, err := m.Get(id)
	if err != nil {
		return nil, false
	}
	return &Status{
		RobotID:  r.ID,
		State:    r.State,
		Battery:  r.Battery,
		X:        r.X,
		Y:        r.Y,
		Theta:    r.Theta,
		IsOnline: r.IsOnline,
	}, true
}

// All returns detached copies of every known robot.
func (m *Manager) All() []*Robot {
	m.mu.RLock()
	defer m.mu.RUnlock()
	out := make([]*Robot, 0, len(m.robots))
	for _, r := range m.robots {
		out = append(out, copyRobot(r))
	}
	return out
}

// OnlineCount returns the number of robots currently marked online.
func (m *Manager) OnlineCount() int {
	m.mu.RLock()
	defer m.mu.RUnlock()
	n := 0
	for _, r := range m.robots {
		if r.IsOnline {
			n++
		}
	}
	return n
}

// CheckTimeouts marks any online robot whose last-seen predates the deadline
// as Offline. Returns the ids that transitioned, so callers (the heartbeat
// sweep in cmd/gateway) can release their operation locks while preserving
// E-Stop state.
func (m *Manager) CheckTimeouts(deadline time.Duration) []string {
	m.mu.Lock()
	defer m.mu.Unlock()

	now := time.Now()
	var timedOut []string
	for id, r := range m.robots {
		if r.IsOnline && now.Sub(r.LastSeen) > deadline {
			r.IsOnline = false
			r.State = StateOffline
			r.fsm.ForceState(StateOffline)
			timedOut = append(timedOut, id)
			m.logger.Warnw("robot marked offline", "robot_id", id, "last_seen", r.LastSeen)
		}
	}
	return timedOut
}

// Move transitions a robot into Moving.
func (m *Manager) Move(id string) error { return m.transition(id, StateMoving, false) }

// Stop transitions a robot into Idle.
func (m *Manager) Stop(id string) error { return m.transition(id, StateIdle, false) }

// Pause transitions a robot into Paused; requires capabilities.supports_pause.
func (m *Manager) Pause(id string) error { return m.transition(id, StatePaused, true) }

// Resume transitions a paused robot back into Moving.
func (m *Manager) Resume(id string) error { return m.transition(id, StateMoving, false) }

func (m *Manager) transition(id string, target State, requiresPause bool) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	r, ok := m.robots[id]
	if !ok {
		return ErrRobotNotFound
	}
	if !r.IsOnline {
		return fmt.Errorf("robot %s is offline", id)
	}
	if requiresPause && !r.Capabilities.SupportsPause {
		return fmt.Errorf("robot %s does not support pause", id)
	}
	if !r.fsm.TransitionTo(target) {
		return &ErrIllegalTransition{RobotID: id, From: r.State, To: target}
	}
	r.State = target
	return nil
}

// SetMission records the robot's current mission id (empty clears it).
func (m *Manager) SetMission(id, missionID string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	r, ok := m.robots[id]
	if !ok {
		return ErrRobotNotFound
	}
	r.CurrentMissionID = missionID
	return nil
}

// UpdateSensorData overwrites the latest-sample snapshot used for ack-time status.
func (m *Manager) UpdateSensorData(robotID string, data map[string]float64) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.sensorDataStore[robotID] = data
}

// UpdateControlData overwrites the latest-control snapshot used for ack-time status.
func (m *Manager) UpdateControlData(robotID string, data map[string]float64) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.controlDataStore[robotID] = data
}

// GetSensorData returns a copy of the latest sensor snapshot, or nil.
func (m *Manager) GetSensorData(robotID string) map[string]float64 {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return copyFloatMap(m.sensorDataStore[robotID])
}

// GetControlData returns a copy of the latest control snapshot, or nil.
func (m *Manager) GetControlData(robotID string) map[string]float64 {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return copyFloatMap(m.controlDataStore[robotID])
}

func copyFloatMap(src map[string]float64) map[string]float64 {
	if src == nil {
		return nil
	}
	dst := make(map[string]float64, len(src))
	for k, v := range src {
		dst[k] = v
	}
	return dst
}
