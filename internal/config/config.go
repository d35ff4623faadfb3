// Package config loads gateway settings from the environment via viper.
package config

import (
	"time"

	"github.com/spf13/viper"
)

// Config is the root settings struct for the gateway process.
type Config struct {
	Server    ServerConfig
	Safety    SafetyConfig
	Auth      AuthConfig
	Recorder  RecorderConfig
	Redis     RedisConfig
	MQTT      MQTTConfig
	RateLimit RateLimitConfig
	Logging   LoggingConfig
}

// ServerConfig holds the gateway's listen addresses.
type ServerConfig struct {
	Host     string `mapstructure:"host"`
	WSPort   int    `mapstructure:"ws_port"`
	RPCPort  int    `mapstructure:"rpc_port"`
	HTTPPort int    `mapstructure:"http_port"`
}

// SafetyConfig holds the safety pipeline's tunables.
type SafetyConfig struct {
	MaxLinearVelocity   float64 `mapstructure:"max_linear_vel"`
	MaxAngularVelocity  float64 `mapstructure:"max_angular_vel"`
	LockTTLSec          int     `mapstructure:"lock_ttl_sec"`
	WatchdogIntervalMs  int     `mapstructure:"watchdog_interval_ms"`
	HeartbeatTimeoutMs  int     `mapstructure:"heartbeat_timeout_ms"`
	ReleaseLockOnClose  bool    `mapstructure:"release_lock_on_close"`
	EStopReleaseByOperator bool `mapstructure:"estop_release_by_operator"`
}

// LockTimeout returns the lock TTL as a duration.
func (s *SafetyConfig) LockTimeout() time.Duration {
	return time.Duration(s.LockTTLSec) * time.Second
}

// WatchdogInterval returns the watchdog staleness window as a duration. The
// watchdog's scan period is fixed (watchdogPeriod) and not set from here.
func (s *SafetyConfig) WatchdogInterval() time.Duration {
	return time.Duration(s.WatchdogIntervalMs) * time.Millisecond
}

// HeartbeatTimeout returns the offline threshold as a duration.
func (s *SafetyConfig) HeartbeatTimeout() time.Duration {
	return time.Duration(s.HeartbeatTimeoutMs) * time.Millisecond
}

// AuthConfig holds token verification settings.
type AuthConfig struct {
	PublicKeyPEM string `mapstructure:"public_key"`
	HMACSecret   string `mapstructure:"hmac_secret"`
}

// RecorderConfig holds the Forwarder's RPC target and batching tunables.
type RecorderConfig struct {
	Addr           string `mapstructure:"addr"`
	BufferHighWater int   `mapstructure:"buffer"`
}

// RedisConfig holds the optional telemetry mirror's settings.
type RedisConfig struct {
	URL string `mapstructure:"url"` // empty disables the mirror
}

// MQTTConfig holds settings consulted only when an adapter of kind "mqtt" is created.
type MQTTConfig struct {
	BrokerAddr   string `mapstructure:"broker_addr"`
	TopicPrefix  string `mapstructure:"topic_prefix"`
}

// RateLimitConfig holds the ingress token bucket's tunables.
type RateLimitConfig struct {
	PerMinute int `mapstructure:"per_minute"`
}

// LoggingConfig holds logger verbosity.
type LoggingConfig struct {
	Debug bool `mapstructure:"debug"`
}

// Load reads settings from the environment, falling back to the defaults in spec §6.
func Load() (*Config, error) {
	v := viper.New()
	v.AutomaticEnv()

	v.SetDefault("WS_PORT", 8082)
	v.SetDefault("RPC_PORT", 50051)
	v.SetDefault("HTTP_PORT", 8081)
	v.SetDefault("GATEWAY_HOST", "0.0.0.0")

	v.SetDefault("AUTH_PUBLIC_KEY", "")
	v.SetDefault("AUTH_HMAC_SECRET", "")

	v.SetDefault("RECORDER_ADDR", "recorder:50052")
	v.SetDefault("FORWARDER_BUFFER", 500)

	v.SetDefault("WATCHDOG_INTERVAL_MS", 500)
	v.SetDefault("HEARTBEAT_TIMEOUT_MS", 15000)
	v.SetDefault("MAX_LINEAR_VEL", 1.0)
	v.SetDefault("MAX_ANGULAR_VEL", 2.0)
	v.SetDefault("LOCK_TTL_SEC", 300)
	v.SetDefault("RELEASE_LOCK_ON_CLOSE", false)
	v.SetDefault("ESTOP_RELEASE_BY_OPERATOR", true)

	v.SetDefault("RATE_LIMIT_PER_MIN", 120)

	v.SetDefault("REDIS_URL", "")
	v.SetDefault("MQTT_BROKER_ADDR", "tcp://localhost:1883")
	v.SetDefault("MQTT_TOPIC_PREFIX", "fleet/")

	v.SetDefault("DEBUG", false)

	cfg := &Config{
		Server: ServerConfig{
			Host:     v.GetString("GATEWAY_HOST"),
			WSPort:   v.GetInt("WS_PORT"),
			RPCPort:  v.GetInt("RPC_PORT"),
			HTTPPort: v.GetInt("HTTP_PORT"),
		},
		Safety: SafetyConfig{
			MaxLinearVelocity:      v.GetFloat64("MAX_LINEAR_VEL"),
			MaxAngularVelocity:     v.GetFloat64("MAX_ANGULAR_VEL"),
			LockTTLSec:             v.GetInt("LOCK_TTL_SEC"),
			WatchdogIntervalMs:     v.GetInt("WATCHDOG_INTERVAL_MS"),
			HeartbeatTimeoutMs:     v.GetInt("HEARTBEAT_TIMEOUT_MS"),
			ReleaseLockOnClose:     v.GetBool("RELEASE_LOCK_ON_CLOSE"),
			EStopReleaseByOperator: v.GetBool("ESTOP_RELEASE_BY_OPERATOR"),
		},
		Auth: AuthConfig{
			PublicKeyPEM: v.GetString("AUTH_PUBLIC_KEY"),
			HMACSecret:   v.GetString("AUTH_HMAC_SECRET"),
		},
		Recorder: RecorderConfig{
			Addr:            v.GetString("RECORDER_ADDR"),
			BufferHighWater: v.GetInt("FORWARDER_BUFFER"),
		},
		Redis: RedisConfig{
			URL: v.GetString("REDIS_URL"),
		},
		MQTT: MQTTConfig{
			BrokerAddr:  v.GetString("MQTT_BROKER_ADDR"),
			TopicPrefix: v.GetString("MQTT_TOPIC_PREFIX"),
		},
		RateLimit: RateLimitConfig{
			PerMinute: v.GetInt("RATE_LIMIT_PER_MIN"),
		},
		Logging: LoggingConfig{
			Debug: v.GetBool("DEBUG"),
		},
	}

	return cfg, nil
}
