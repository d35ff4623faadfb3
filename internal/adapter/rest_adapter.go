package adapter

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"sync"
	"time"

	"go.uber.org/zap"
)

// restPollInterval is how often the adapter polls the vendor's status
// endpoint while connected, since plain REST has no push channel.
const restPollInterval = 2 * time.Second

// NewRESTFactory returns an AdapterFactory that builds RESTAdapters pointed
// at one vendor's HTTP base URL, per spec §4.10's REST vendor adapter
// commitment.
func NewRESTFactory(baseURL string) AdapterFactory {
	return func(logger *zap.Logger) RobotAdapter {
		return NewRESTAdapter(baseURL, logger)
	}
}

// RESTAdapter talks to one robot over a vendor's HTTP API: commands are
// POSTed and status is recovered by polling since REST has no push channel.
type RESTAdapter struct {
	mu        sync.RWMutex
	baseURL   string
	robotID   string
	client    *http.Client
	connected bool
	cancel    context.CancelFunc
	dataCh    chan SensorData
	logger    *zap.Logger
}

// NewRESTAdapter creates an adapter targeting baseURL.
func NewRESTAdapter(baseURL string, logger *zap.Logger) *RESTAdapter {
	return &RESTAdapter{
		baseURL: baseURL,
		client:  &http.Client{Timeout: 10 * time.Second},
		dataCh:  make(chan SensorData, 100),
		logger:  logger,
	}
}

func (a *RESTAdapter) Name() string { return "rest" }

func (a *RESTAdapter) Connect(ctx context.Context, config map[string]any) error {
	a.mu.Lock()
	defer a.mu.Unlock()
	if a.connected {
		return nil
	}
	robotID, _ := config["robot_id"].(string)
	if robotID == "" {
		return fmt.Errorf("rest adapter: missing robot_id in config")
	}
	resp, err := a.client.Get(fmt.Sprintf("%s/robots/%s/ping", a.baseURL, robotID))
	if err != nil {
		return fmt.Errorf("rest adapter: connect to robot %s: %w", robotID, err)
	}
	resp.Body.Close()
	if resp.StatusCode != http.StatusOK {
		return fmt.Errorf("rest adapter: robot %s not reachable: status %d", robotID, resp.StatusCode)
	}

	a.robotID = robotID
	pollCtx, cancel := context.WithCancel(context.Background())
	a.cancel = cancel
	a.connected = true
	go a.pollStatus(pollCtx)
	a.logger.Info("rest adapter connected", zap.String("robot_id", robotID))
	return nil
}

func (a *RESTAdapter) pollStatus(ctx context.Context) {
	ticker := time.NewTicker(restPollInterval)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			a.fetchStatus()
		}
	}
}

func (a *RESTAdapter) fetchStatus() {
	url := fmt.Sprintf("%s/robots/%s/status", a.baseURL, a.robotID)
	resp, err := a.client.Get(url)
	if err != nil {
		a.logger.Warn("rest adapter: status poll failed", zap.String("robot_id", a.robotID), zap.Error(err))
		return
	}
	defer resp.Body.Close()
	if resp.StatusCode != http.StatusOK {
		a.logger.Warn("rest adapter: status poll non-200", zap.Int("status", resp.StatusCode))
		return
	}
	var payload map[string]any
	if err := json.NewDecoder(resp.Body).Decode(&payload); err != nil {
		a.logger.Warn("rest adapter: malformed status body", zap.Error(err))
		return
	}
	data := SensorData{
		Topic:     "status",
		DataType:  "status",
		FrameID:   a.robotID,
		Timestamp: time.Now().UnixMilli(),
		Data:      payload,
	}
	select {
	case a.dataCh <- data:
	default:
	}
}

func (a *RESTAdapter) Disconnect(ctx context.Context) error {
	a.mu.Lock()
	defer a.mu.Unlock()
	if a.cancel != nil {
		a.cancel()
	}
	a.connected = false
	a.logger.Info("rest adapter disconnected", zap.String("robot_id", a.robotID))
	return nil
}

func (a *RESTAdapter) IsConnected() bool {
	a.mu.RLock()
	defer a.mu.RUnlock()
	return a.connected
}

func (a *RESTAdapter) SendCommand(ctx context.Context, cmd Command) error {
	url := fmt.Sprintf("%s/robots/%s/command", a.baseURL, cmd.RobotID)
	payload := map[string]any{
		"type":      cmd.Type,
		"payload":   cmd.Payload,
		"timestamp": cmd.Timestamp,
	}
	body, err := json.Marshal(payload)
	if err != nil {
		return fmt.Errorf("rest adapter: marshal command: %w", err)
	}
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, url, bytes.NewReader(body))
	if err != nil {
		return fmt.Errorf("rest adapter: build request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")
	resp, err := a.client.Do(req)
	if err != nil {
		return fmt.Errorf("rest adapter: send command: %w", err)
	}
	defer resp.Body.Close()
	if resp.StatusCode != http.StatusOK && resp.StatusCode != http.StatusAccepted {
		return fmt.Errorf("rest adapter: command rejected with status %d", resp.StatusCode)
	}
	return nil
}

func (a *RESTAdapter) SensorDataChannel() <-chan SensorData {
	return a.dataCh
}

func (a *RESTAdapter) GetCapabilities() Capabilities {
	return Capabilities{
		SupportsVelocityControl: true,
		SupportsNavigation:      true,
		SupportsEStop:           true,
		SensorTopics:            []string{"status"},
		MaxLinearVelocity:       1.0,
		MaxAngularVelocity:      2.0,
	}
}

func (a *RESTAdapter) EmergencyStop(ctx context.Context) error {
	return a.SendCommand(ctx, Command{RobotID: a.robotID, Type: "estop", Payload: map[string]any{"activate": true}, Timestamp: time.Now().UnixMilli()})
}
