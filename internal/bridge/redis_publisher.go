// Package bridge mirrors forwarded records into Redis Streams for local
// inspection and replay, alongside the mandatory recorder RPC path.
package bridge

import (
	"context"
	"encoding/json"
	"fmt"

	"github.com/redis/go-redis/v9"
	"github.com/robot-ai-webapp/gateway/internal/rpcapi"
	"go.uber.org/zap"
)

const (
	sensorDataStream = "robot:sensor_data"
	commandStream    = "robot:commands"

	sensorStreamMaxLen  = 100000
	commandStreamMaxLen = 50000
)

// RedisSink implements forwarder.Sink by writing each batch into a capped
// Redis stream. It is an optional mirror, not a substitute for the recorder
// RPC sink: the count it returns is only the batch size written, used for
// debug logging by the Forwarder.
type RedisSink struct {
	client *redis.Client
	logger *zap.Logger
}

// NewRedisSink parses redisURL, dials, and verifies connectivity with a PING.
func NewRedisSink(redisURL string, logger *zap.Logger) (*RedisSink, error) {
	opts, err := redis.ParseURL(redisURL)
	if err != nil {
		return nil, fmt.Errorf("invalid redis URL: %w", err)
	}
	client := redis.NewClient(opts)
	if err := client.Ping(context.Background()).Err(); err != nil {
		return nil, fmt.Errorf("redis connection failed: %w", err)
	}
	logger.Info("connected to redis")
	return &RedisSink{client: client, logger: logger}, nil
}

// RecordSensor appends each sensor record to the sensor stream.
func (s *RedisSink) RecordSensor(ctx context.Context, records []rpcapi.SensorRecord) (int, error) {
	for _, rec := range records {
		payload, err := json.Marshal(rec.Data)
		if err != nil {
			return 0, err
		}
		err = s.client.XAdd(ctx, &redis.XAddArgs{
			Stream: sensorDataStream,
			MaxLen: sensorStreamMaxLen,
			Approx: true,
			Values: map[string]interface{}{
				"robot_id":  rec.RobotID,
				"topic":     rec.Topic,
				"data_type": rec.DataType,
				"timestamp": rec.Timestamp,
				"payload":   string(payload),
			},
		}).Err()
		if err != nil {
			return 0, err
		}
	}
	return len(records), nil
}

// RecordCommand appends each command record to the command stream.
func (s *RedisSink) RecordCommand(ctx context.Context, records []rpcapi.CommandRecord) (int, error) {
	for _, rec := range records {
		payload, err := json.Marshal(rec.Payload)
		if err != nil {
			return 0, err
		}
		err = s.client.XAdd(ctx, &redis.XAddArgs{
			Stream: commandStream,
			MaxLen: commandStreamMaxLen,
			Approx: true,
			Values: map[string]interface{}{
				"robot_id":  rec.RobotID,
				"type":      rec.Type,
				"approved":  rec.Approved,
				"reason":    rec.Reason,
				"timestamp": rec.Timestamp,
				"payload":   string(payload),
			},
		}).Err()
		if err != nil {
			return 0, err
		}
	}
	return len(records), nil
}

// Close closes the underlying Redis client.
func (s *RedisSink) Close() error {
	return s.client.Close()
}
