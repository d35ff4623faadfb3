// Package protocol defines the wire envelope shared by the WebSocket session
// layer and the control-plane RPC surface.
package protocol

import "time"

// MessageType identifies the kind of payload an envelope carries.
type MessageType string

const (
	// Client -> gateway
	MsgTypeAuth             MessageType = "auth"
	MsgTypePing             MessageType = "ping"
	MsgTypeVelocityCommand  MessageType = "velocity_cmd"
	MsgTypeNavigationGoal   MessageType = "nav_goal"
	MsgTypeNavigationCancel MessageType = "nav_cancel"
	MsgTypeEStop            MessageType = "estop"
	MsgTypeOperationLock    MessageType = "op_lock"
	MsgTypeOperationUnlock  MessageType = "op_unlock"
	MsgTypeSubscribe        MessageType = "subscribe"
	MsgTypeUnsubscribe      MessageType = "unsubscribe"

	// Gateway -> client
	MsgTypePong             MessageType = "pong"
	MsgTypeSensorData       MessageType = "sensor_data"
	MsgTypeRobotStatus      MessageType = "robot_status"
	MsgTypeCommandAck       MessageType = "cmd_ack"
	MsgTypeLockStatus       MessageType = "lock_status"
	MsgTypeConnectionStatus MessageType = "conn_status"
	MsgTypeSafetyAlert      MessageType = "safety_alert"
	MsgTypeError            MessageType = "error"
)

// Message is the single envelope every WebSocket frame is carried in.
// Field absence and explicit null are equivalent on decode: omitempty tags
// on the Go side already collapse zero values, and a nil Payload/absent key
// reads back the same as a key mapped to nil.
type Message struct {
	Type    MessageType    `msgpack:"type" json:"type"`
	Topic   string         `msgpack:"topic,omitempty" json:"topic,omitempty"`
	RobotID string         `msgpack:"robot_id,omitempty" json:"robot_id,omitempty"`
	UserID  string         `msgpack:"user_id,omitempty" json:"user_id,omitempty"`
	Ts      int64          `msgpack:"ts" json:"ts"`
	Payload map[string]any `msgpack:"payload,omitempty" json:"payload,omitempty"`
	Error   string         `msgpack:"error,omitempty" json:"error,omitempty"`
}

// NewMessage builds an envelope stamped with the current time and an empty payload.
func NewMessage(msgType MessageType, robotID string) *Message {
	return &Message{
		Type:    msgType,
		RobotID: robotID,
		Ts:      time.Now().UnixMilli(),
		Payload: make(map[string]any),
	}
}

// VelocityPayload is the payload of a velocity_cmd message.
type VelocityPayload struct {
	LinearX  float64 `msgpack:"linear_x" json:"linear_x"`
	LinearY  float64 `msgpack:"linear_y" json:"linear_y"`
	AngularZ float64 `msgpack:"angular_z" json:"angular_z"`
}

// NavigationGoalPayload is the payload of a nav_goal message.
type NavigationGoalPayload struct {
	X                    float64 `msgpack:"x" json:"x"`
	Y                    float64 `msgpack:"y" json:"y"`
	Z                    float64 `msgpack:"z" json:"z"`
	OrientationW         float64 `msgpack:"ow" json:"ow"`
	FrameID              string  `msgpack:"frame_id" json:"frame_id"`
	TolerancePosition    float64 `msgpack:"tol_pos" json:"tol_pos"`
	ToleranceOrientation float64 `msgpack:"tol_ori" json:"tol_ori"`
}

// EStopPayload is the payload of an estop message.
type EStopPayload struct {
	Activate bool   `msgpack:"activate" json:"activate"`
	Reason   string `msgpack:"reason" json:"reason"`
}

// SensorDataPayload is the payload of a sensor_data message.
type SensorDataPayload struct {
	DataType string         `msgpack:"data_type" json:"data_type"`
	FrameID  string         `msgpack:"frame_id" json:"frame_id"`
	Dropped  int            `msgpack:"dropped,omitempty" json:"dropped,omitempty"`
	Data     map[string]any `msgpack:"data" json:"data"`
}

// AuthPayload is the payload of an auth message.
type AuthPayload struct {
	Token string `msgpack:"token" json:"token"`
}

// ConnectionStatusPayload reports an adapter's connect/disconnect transition.
type ConnectionStatusPayload struct {
	RobotID   string `msgpack:"robot_id" json:"robot_id"`
	Connected bool   `msgpack:"connected" json:"connected"`
	Adapter   string `msgpack:"adapter" json:"adapter"`
}

// SubscribePayload names the (robot, topic) pairs a session wants delivered.
type SubscribePayload struct {
	RobotID string `msgpack:"robot_id" json:"robot_id"`
	Topic   string `msgpack:"topic,omitempty" json:"topic,omitempty"`
}
