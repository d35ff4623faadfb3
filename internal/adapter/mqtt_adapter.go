package adapter

import (
	"context"
	"encoding/json"
	"fmt"
	"sync"
	"time"

	mqtt "github.com/eclipse/paho.mqtt.golang"
	"go.uber.org/zap"
)

// NewMQTTFactory returns an AdapterFactory that builds MQTTAdapters sharing
// one broker connection and topic prefix, per spec §4.10's MQTT vendor
// adapter commitment.
func NewMQTTFactory(client mqtt.Client, topicPrefix string) AdapterFactory {
	return func(logger *zap.Logger) RobotAdapter {
		return NewMQTTAdapter(client, topicPrefix, logger)
	}
}

// MQTTAdapter talks to one robot over MQTT: commands are published to
// <prefix><robot_id>/command and status/heartbeat/sensor topics are
// subscribed into the adapter's sensor channel.
type MQTTAdapter struct {
	mu          sync.RWMutex
	client      mqtt.Client
	topicPrefix string
	robotID     string
	connected   bool
	dataCh      chan SensorData
	logger      *zap.Logger
}

// NewMQTTAdapter creates an adapter bound to an already-configured MQTT client.
func NewMQTTAdapter(client mqtt.Client, topicPrefix string, logger *zap.Logger) *MQTTAdapter {
	return &MQTTAdapter{
		client:      client,
		topicPrefix: topicPrefix,
		dataCh:      make(chan SensorData, 100),
		logger:      logger,
	}
}

func (a *MQTTAdapter) Name() string { return "mqtt" }

// robotTopic returns the per-robot topic base, e.g. "fleet/robot-1".
func (a *MQTTAdapter) robotTopic() string {
	return a.topicPrefix + a.robotID
}

func (a *MQTTAdapter) Connect(ctx context.Context, config map[string]any) error {
	a.mu.Lock()
	defer a.mu.Unlock()
	if a.connected {
		return nil
	}
	robotID, _ := config["robot_id"].(string)
	if robotID == "" {
		return fmt.Errorf("mqtt adapter: missing robot_id in config")
	}
	a.robotID = robotID

	subscriptions := []string{
		a.robotTopic() + "/status",
		a.robotTopic() + "/heartbeat",
		a.robotTopic() + "/sensor/+",
	}
	for _, topic := range subscriptions {
		token := a.client.Subscribe(topic, 1, a.handleMessage)
		if !token.WaitTimeout(5 * time.Second) {
			return fmt.Errorf("mqtt adapter: subscribe to %s timed out", topic)
		}
		if err := token.Error(); err != nil {
			return fmt.Errorf("mqtt adapter: subscribe to %s: %w", topic, err)
		}
	}
	a.connected = true
	a.logger.Info("mqtt adapter connected", zap.String("robot_id", robotID))
	return nil
}

func (a *MQTTAdapter) handleMessage(client mqtt.Client, msg mqtt.Message) {
	var payload map[string]any
	if err := json.Unmarshal(msg.Payload(), &payload); err != nil {
		a.logger.Warn("mqtt adapter: malformed payload", zap.String("topic", msg.Topic()), zap.Error(err))
		return
	}
	data := SensorData{
		Topic:     msg.Topic(),
		DataType:  dataTypeFromTopic(msg.Topic()),
		FrameID:   a.robotID,
		Timestamp: time.Now().UnixMilli(),
		Data:      payload,
	}
	select {
	case a.dataCh <- data:
	default: // subscriber not keeping up, drop
	}
}

func dataTypeFromTopic(topic string) string {
	switch {
	case hasSuffix(topic, "/status"):
		return "status"
	case hasSuffix(topic, "/heartbeat"):
		return "heartbeat"
	default:
		return "sensor"
	}
}

func hasSuffix(s, suffix string) bool {
	return len(s) >= len(suffix) && s[len(s)-len(suffix):] == suffix
}

func (a *MQTTAdapter) Disconnect(ctx context.Context) error {
	a.mu.Lock()
	defer a.mu.Unlock()
	if !a.connected {
		return nil
	}
	token := a.client.Unsubscribe(a.robotTopic()+"/status", a.robotTopic()+"/heartbeat", a.robotTopic()+"/sensor/+")
	token.WaitTimeout(5 * time.Second)
	a.connected = false
	a.logger.Info("mqtt adapter disconnected", zap.String("robot_id", a.robotID))
	return nil
}

func (a *MQTTAdapter) IsConnected() bool {
	a.mu.RLock()
	defer a.mu.RUnlock()
	return a.connected
}

func (a *MQTTAdapter) publish(payload map[string]any, subtopic string) error {
	data, err := json.Marshal(payload)
	if err != nil {
		return fmt.Errorf("mqtt adapter: marshal payload: %w", err)
	}
	topic := a.robotTopic() + "/" + subtopic
	token := a.client.Publish(topic, 1, false, data)
	if !token.WaitTimeout(5 * time.Second) {
		return fmt.Errorf("mqtt adapter: publish to %s timed out", topic)
	}
	return token.Error()
}

func (a *MQTTAdapter) SendCommand(ctx context.Context, cmd Command) error {
	payload := map[string]any{
		"type":      cmd.Type,
		"payload":   cmd.Payload,
		"timestamp": cmd.Timestamp,
	}
	return a.publish(payload, "command")
}

func (a *MQTTAdapter) SensorDataChannel() <-chan SensorData {
	return a.dataCh
}

func (a *MQTTAdapter) GetCapabilities() Capabilities {
	return Capabilities{
		SupportsVelocityControl: true,
		SupportsNavigation:      true,
		SupportsEStop:           true,
		SensorTopics:            []string{"status", "heartbeat", "sensor"},
		MaxLinearVelocity:       1.0,
		MaxAngularVelocity:      2.0,
	}
}

func (a *MQTTAdapter) EmergencyStop(ctx context.Context) error {
	return a.publish(map[string]any{"type": "estop", "activate": true}, "command")
}
