// Package mock implements a simulated RobotAdapter for development and
// testing without physical hardware.
package mock

import (
	"context"
	"math"
	"math/rand"
	"sync"
	"time"

	"github.com/robot-ai-webapp/gateway/internal/adapter"
	"go.uber.org/zap"
)

// Factory builds a MockAdapter; registered under adapter kind "mock".
func Factory(logger *zap.Logger) adapter.RobotAdapter {
	return NewMockAdapter(logger)
}

// MockAdapter simulates a differential-drive robot: it integrates velocity
// commands into a pose and emits synthetic odometry/lidar/imu/battery data.
type MockAdapter struct {
	mu        sync.RWMutex
	connected bool
	dataCh    chan adapter.SensorData
	cancel    context.CancelFunc
	logger    *zap.Logger

	posX, posY, theta        float64
	linearX, linearY, angularZ float64
	battery                  float64
}

// NewMockAdapter creates a disconnected mock adapter at the origin with a
// full battery.
func NewMockAdapter(logger *zap.Logger) *MockAdapter {
	return &MockAdapter{
		dataCh:  make(chan adapter.SensorData, 100),
		logger:  logger,
		battery: 100.0,
	}
}

func (m *MockAdapter) Name() string { return "mock" }

func (m *MockAdapter) Connect(ctx context.Context, config map[string]any) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.connected {
		return nil
	}
	sensorCtx, cancel := context.WithCancel(ctx)
	m.cancel = cancel
	m.connected = true
	go m.generateOdometry(sensorCtx)
	go m.generateLiDAR(sensorCtx)
	go m.generateIMU(sensorCtx)
	go m.generateBattery(sensorCtx)
	m.logger.Info("mock adapter connected")
	return nil
}

func (m *MockAdapter) Disconnect(ctx context.Context) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.cancel != nil {
		m.cancel()
	}
	m.connected = false
	m.logger.Info("mock adapter disconnected")
	return nil
}

func (m *MockAdapter) IsConnected() bool {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return m.connected
}

func (m *MockAdapter) SendCommand(ctx context.Context, cmd adapter.Command) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if cmd.Type == "velocity" {
		m.linearX = toFloat64(cmd.Payload["linear_x"])
		m.linearY = toFloat64(cmd.Payload["linear_y"])
		m.angularZ = toFloat64(cmd.Payload["angular_z"])
	}
	return nil
}

func (m *MockAdapter) SensorDataChannel() <-chan adapter.SensorData {
	return m.dataCh
}

func (m *MockAdapter) GetCapabilities() adapter.Capabilities {
	return adapter.Capabilities{
		SupportsVelocityControl: true,
		SupportsNavigation:      true,
		SupportsEStop:           true,
		SensorTopics:            []string{"odom", "scan", "imu", "battery"},
		MaxLinearVelocity:       1.0,
		MaxAngularVelocity:      2.0,
	}
}

func (m *MockAdapter) EmergencyStop(ctx context.Context) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.linearX = 0
	m.linearY = 0
	m.angularZ = 0
	m.logger.Warn("emergency stop triggered on mock adapter")
	return nil
}

func (m *MockAdapter) generateOdometry(ctx context.Context) {
	ticker := time.NewTicker(50 * time.Millisecond) // 20Hz
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			m.mu.Lock()
			const dt = 0.05
			m.theta += m.angularZ * dt
			m.posX += m.linearX * math.Cos(m.theta) * dt
			m.posY += m.linearX * math.Sin(m.theta) * dt
			data := adapter.SensorData{
				Topic:     "odom",
				DataType:  "odometry",
				FrameID:   "odom",
				Timestamp: time.Now().UnixMilli(),
				Data: map[string]any{
					"position_x":    m.posX,
					"position_y":    m.posY,
					"orientation_z": m.theta,
					"velocity_x":    m.linearX,
					"velocity_y":    m.linearY,
					"angular_z":     m.angularZ,
				},
			}
			m.mu.Unlock()
			select {
			case m.dataCh <- data:
			default: // drop if subscriber isn't keeping up
			}
		}
	}
}

func (m *MockAdapter) generateLiDAR(ctx context.Context) {
	ticker := time.NewTicker(100 * time.Millisecond) // 10Hz
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			ranges := make([]float64, 360)
			for i := range ranges {
				angle := float64(i) * math.Pi / 180.0
				base := 3.0 + math.Sin(angle*2.0)*1.0
				ranges[i] = base + rand.Float64()*0.1
			}
			data := adapter.SensorData{
				Topic:     "scan",
				DataType:  "lidar",
				FrameID:   "lidar_link",
				Timestamp: time.Now().UnixMilli(),
				Data: map[string]any{
					"angle_min":       0.0,
					"angle_max":       2 * math.Pi,
					"angle_increment": math.Pi / 180.0,
					"range_min":       0.1,
					"range_max":       12.0,
					"ranges":          ranges,
				},
			}
			select {
			case m.dataCh <- data:
			default:
			}
		}
	}
}

func (m *MockAdapter) generateIMU(ctx context.Context) {
	ticker := time.NewTicker(20 * time.Millisecond) // 50Hz
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			m.mu.RLock()
			theta := m.theta
			angularZ := m.angularZ
			m.mu.RUnlock()
			data := adapter.SensorData{
				Topic:     "imu",
				DataType:  "imu",
				FrameID:   "imu_link",
				Timestamp: time.Now().UnixMilli(),
				Data: map[string]any{
					"orientation_x": 0.0,
					"orientation_y": 0.0,
					"orientation_z": math.Sin(theta / 2.0),
					"orientation_w": math.Cos(theta / 2.0),
					"angular_vel_z": angularZ,
					"linear_acc_x":  rand.Float64()*0.1 - 0.05,
					"linear_acc_y":  rand.Float64()*0.1 - 0.05,
					"linear_acc_z":  9.81 + rand.Float64()*0.02 - 0.01,
				},
			}
			select {
			case m.dataCh <- data:
			default:
			}
		}
	}
}

func (m *MockAdapter) generateBattery(ctx context.Context) {
	ticker := time.NewTicker(5 * time.Second) // 0.2Hz
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			m.mu.Lock()
			m.battery -= 0.01
			if m.battery < 0 {
				m.battery = 0
			}
			bat := m.battery
			m.mu.Unlock()
			data := adapter.SensorData{
				Topic:     "battery",
				DataType:  "battery",
				FrameID:   "base_link",
				Timestamp: time.Now().UnixMilli(),
				Data: map[string]any{
					"percentage": bat,
					"voltage":    12.0 * (bat / 100.0),
					"current":    -0.5,
					"charging":   false,
				},
			}
			select {
			case m.dataCh <- data:
			default:
			}
		}
	}
}

func toFloat64(v any) float64 {
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
