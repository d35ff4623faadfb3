// Package mqtt dials the shared broker connection handed to the MQTT
// adapter factory. Per-robot subscriptions live in
// internal/adapter.MQTTAdapter; this package only owns the connection and
// the gateway-wide last-will/online announcement.
package mqtt

import (
	paho "github.com/eclipse/paho.mqtt.golang"
	"github.com/robot-ai-webapp/gateway/internal/config"
	"go.uber.org/zap"
)

// Connect dials the configured broker, announcing online/offline via a
// retained status topic and last will.
func Connect(cfg *config.MQTTConfig, logger *zap.Logger) (paho.Client, error) {
	statusTopic := cfg.TopicPrefix + "gateway/status"

	opts := paho.NewClientOptions()
	opts.AddBroker(cfg.BrokerAddr)
	opts.SetClientID("fleet-gateway")
	opts.SetAutoReconnect(true)
	opts.SetConnectRetry(true)
	opts.SetWill(statusTopic, `{"status":"offline"}`, 1, true)
	opts.SetOnConnectHandler(func(c paho.Client) {
		logger.Info("connected to mqtt broker", zap.String("broker", cfg.BrokerAddr))
		token := c.Publish(statusTopic, 1, true, `{"status":"online"}`)
		token.Wait()
	})
	opts.SetConnectionLostHandler(func(c paho.Client, err error) {
		logger.Warn("mqtt broker connection lost", zap.Error(err))
	})

	client := paho.NewClient(opts)
	token := client.Connect()
	token.Wait()
	if err := token.Error(); err != nil {
		return nil, err
	}
	return client, nil
}

// Disconnect announces offline status and closes the connection.
func Disconnect(client paho.Client, cfg *config.MQTTConfig) {
	statusTopic := cfg.TopicPrefix + "gateway/status"
	token := client.Publish(statusTopic, 1, true, `{"status":"offline"}`)
	token.Wait()
	client.Disconnect(250)
}
