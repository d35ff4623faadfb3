// Command gateway starts the fleet gateway: the WebSocket session layer,
// the gRPC control plane, and the REST ingress surface, all sharing one
// robot catalog, adapter registry, and safety pipeline.
package main

import (
	"context"
	"fmt"
	"net"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/robot-ai-webapp/gateway/internal/adapter"
	"github.com/robot-ai-webapp/gateway/internal/adapter/mock"
	"github.com/robot-ai-webapp/gateway/internal/api"
	"github.com/robot-ai-webapp/gateway/internal/auth"
	"github.com/robot-ai-webapp/gateway/internal/bridge"
	"github.com/robot-ai-webapp/gateway/internal/config"
	"github.com/robot-ai-webapp/gateway/internal/forwarder"
	mw "github.com/robot-ai-webapp/gateway/internal/middleware"
	gatewaymqtt "github.com/robot-ai-webapp/gateway/internal/mqtt"
	"github.com/robot-ai-webapp/gateway/internal/robot"
	"github.com/robot-ai-webapp/gateway/internal/rpcapi"
	"github.com/robot-ai-webapp/gateway/internal/safety"
	"github.com/robot-ai-webapp/gateway/internal/server"
	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
	"google.golang.org/grpc"
)

func main() {
	cfg, err := config.Load()
	if err != nil {
		fmt.Fprintf(os.Stderr, "failed to load config: %v\n", err)
		os.Exit(1)
	}

	logger := initLogger(cfg.Logging.Debug)
	defer logger.Sync()
	sugar := logger.Sugar()

	logger.Info("starting fleet gateway",
		zap.Int("ws_port", cfg.Server.WSPort),
		zap.Int("rpc_port", cfg.Server.RPCPort),
		zap.Int("http_port", cfg.Server.HTTPPort),
	)

	manager := robot.NewManager(sugar)
	registry := adapter.NewRegistry(logger)
	registry.RegisterFactory("mock", mock.Factory)

	if mqttClient, err := gatewaymqtt.Connect(&cfg.MQTT, logger); err != nil {
		logger.Warn("mqtt broker unavailable, \"mqtt\" adapter kind disabled", zap.Error(err))
	} else {
		registry.RegisterFactory("mqtt", adapter.NewMQTTFactory(mqttClient, cfg.MQTT.TopicPrefix))
		defer gatewaymqtt.Disconnect(mqttClient, &cfg.MQTT)
	}
	registry.RegisterFactory("rest", adapter.NewRESTFactory(""))

	estopMgr := safety.NewEStopManager(registry, logger)
	velLimiter := safety.NewVelocityLimiter(cfg.Safety.MaxLinearVelocity, cfg.Safety.MaxAngularVelocity, logger)
	opLock := safety.NewOperationLock(cfg.Safety.LockTimeout(), logger)
	watchdog := safety.NewTimeoutWatchdog(cfg.Safety.WatchdogInterval(), registry, estopMgr, logger)
	pipeline := safety.NewPipeline(estopMgr, opLock, velLimiter, watchdog, logger)

	verifier, err := auth.NewVerifier(cfg.Auth.PublicKeyPEM, cfg.Auth.HMACSecret)
	if err != nil {
		logger.Fatal("failed to build token verifier", zap.Error(err))
	}

	var mirror forwarder.Sink
	if cfg.Redis.URL != "" {
		if redisSink, err := bridge.NewRedisSink(cfg.Redis.URL, logger); err != nil {
			logger.Warn("redis mirror unavailable, continuing without it", zap.Error(err))
		} else {
			mirror = redisSink
		}
	}

	recorderSink, err := forwarder.NewRecorderSink(cfg.Recorder.Addr)
	if err != nil {
		logger.Fatal("failed to dial recorder service", zap.Error(err))
	}
	fwd := forwarder.New(forwarder.NewMultiSink(recorderSink, mirror, sugar), cfg.Recorder.BufferHighWater, sugar)

	hub := server.NewHub(logger)
	handler := server.NewHandler(hub, registry, manager, pipeline, verifier, fwd, cfg.Safety.ReleaseLockOnClose, logger)
	wsServer := server.NewWebSocketServer(hub, handler, logger)

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	watchdog.Start(ctx)
	opLock.StartCleanup(ctx.Done())
	go runHeartbeatSweep(ctx, manager, opLock, cfg.Safety.HeartbeatTimeout(), logger)
	go handler.BroadcastStatusLoop(ctx, 2*time.Second)

	mockAdapter, err := registry.CreateAdapter("mock-robot-1", "mock")
	if err != nil {
		logger.Fatal("failed to create mock adapter", zap.Error(err))
	}
	if err := mockAdapter.Connect(ctx, nil); err != nil {
		logger.Fatal("failed to connect mock adapter", zap.Error(err))
	}
	manager.Register("mock-robot-1", "Mock AMR", "simulated", "mock-v1", robot.Capabilities{
		SupportsVelocity:   true,
		SupportsNavigation: true,
		SupportsEStop:      true,
		SupportsPause:      true,
		MaxLinearVelocity:  cfg.Safety.MaxLinearVelocity,
		MaxAngularVelocity: cfg.Safety.MaxAngularVelocity,
		SensorTopics:       []string{"odom", "scan", "imu", "battery"},
	})
	go handler.RunSensorReader(ctx, "mock-robot-1", mockAdapter)

	// --- WebSocket + ingress HTTP server ---
	rateLimiter := mw.NewRateLimiter(cfg.RateLimit.PerMinute, logger)
	mux := http.NewServeMux()
	mux.HandleFunc("/ws", wsServer.HandleWebSocket)
	mux.HandleFunc("/health", wsServer.HealthHandler)
	mux.HandleFunc("/ready", wsServer.HealthHandler)

	wsHTTPServer := &http.Server{
		Addr:         fmt.Sprintf("%s:%d", cfg.Server.Host, cfg.Server.WSPort),
		Handler:      rateLimiter.Middleware(mw.LoggingMiddleware(logger)(mux)),
		ReadTimeout:  15 * time.Second,
		WriteTimeout: 15 * time.Second,
		IdleTimeout:  60 * time.Second,
	}
	go func() {
		logger.Info("websocket server starting", zap.String("addr", wsHTTPServer.Addr))
		if err := wsHTTPServer.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			logger.Fatal("websocket server failed", zap.Error(err))
		}
	}()

	// --- REST ingress (gin) ---
	restEngine := api.SetupRouter(manager, registry, pipeline, verifier, sugar)
	restServer := &http.Server{
		Addr:         fmt.Sprintf("%s:%d", cfg.Server.Host, cfg.Server.HTTPPort),
		Handler:      restEngine,
		ReadTimeout:  15 * time.Second,
		WriteTimeout: 15 * time.Second,
	}
	go func() {
		logger.Info("rest server starting", zap.String("addr", restServer.Addr))
		if err := restServer.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			logger.Fatal("rest server failed", zap.Error(err))
		}
	}()

	// --- gRPC control plane ---
	grpcServer := grpc.NewServer()
	rpcapi.RegisterGatewayServer(grpcServer, rpcapi.NewGatewayServer(manager, registry, pipeline, logger))
	rpcListener, err := net.Listen("tcp", fmt.Sprintf("%s:%d", cfg.Server.Host, cfg.Server.RPCPort))
	if err != nil {
		logger.Fatal("failed to bind rpc listener", zap.Error(err))
	}
	go func() {
		logger.Info("grpc control plane starting", zap.String("addr", rpcListener.Addr().String()))
		if err := grpcServer.Serve(rpcListener); err != nil {
			logger.Error("grpc server stopped", zap.Error(err))
		}
	}()

	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, syscall.SIGINT, syscall.SIGTERM)
	<-sigCh

	logger.Info("shutting down gracefully")
	cancel()
	grpcServer.GracefulStop()
	_ = mockAdapter.Disconnect(context.Background())
	if err := fwd.Close(); err != nil {
		logger.Warn("forwarder close error", zap.Error(err))
	}

	shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer shutdownCancel()
	if err := wsHTTPServer.Shutdown(shutdownCtx); err != nil {
		logger.Error("websocket server shutdown error", zap.Error(err))
	}
	if err := restServer.Shutdown(shutdownCtx); err != nil {
		logger.Error("rest server shutdown error", zap.Error(err))
	}

	logger.Info("gateway stopped")
}

// runHeartbeatSweep periodically marks robots Offline once their last-seen
// timestamp exceeds deadline, and drops their operation lock so a silent
// robot can't keep a stale exclusive hold on itself, per spec §3/§5.
func runHeartbeatSweep(ctx context.Context, manager *robot.Manager, opLock *safety.OperationLock, deadline time.Duration, logger *zap.Logger) {
	ticker := time.NewTicker(1 * time.Second)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			for _, robotID := range manager.CheckTimeouts(deadline) {
				opLock.ForceRelease(robotID)
				logger.Warn("released operation lock after heartbeat timeout", zap.String("robot_id", robotID))
			}
		}
	}
}

func initLogger(debug bool) *zap.Logger {
	level := zapcore.InfoLevel
	if debug {
		level = zapcore.DebugLevel
	}

	cfg := zap.Config{
		Level:            zap.NewAtomicLevelAt(level),
		Development:      debug,
		Encoding:         "json",
		EncoderConfig:    zap.NewProductionEncoderConfig(),
		OutputPaths:      []string{"stdout"},
		ErrorOutputPaths: []string{"stderr"},
	}
	cfg.EncoderConfig.TimeKey = "timestamp"
	cfg.EncoderConfig.EncodeTime = zapcore.ISO8601TimeEncoder

	logger, err := cfg.Build()
	if err != nil {
		panic(err)
	}
	return logger
}
