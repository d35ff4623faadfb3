// Package api exposes a REST ingress surface alongside the WebSocket and
// gRPC ones: robot catalog reads, and two convenience command endpoints
// that run through the same safety pipeline as every other ingress path.
package api

import (
	"context"
	"errors"
	"net/http"
	"strings"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/google/uuid"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/robot-ai-webapp/gateway/internal/adapter"
	"github.com/robot-ai-webapp/gateway/internal/auth"
	"github.com/robot-ai-webapp/gateway/internal/robot"
	"github.com/robot-ai-webapp/gateway/internal/safety"
	"go.uber.org/zap"
)

var errNoAdapter = errors.New("no adapter connected for robot")

// Handler holds the dependencies the REST surface dispatches commands and
// reads through.
type Handler struct {
	manager  *robot.Manager
	registry *adapter.Registry
	pipeline *safety.Pipeline
	verifier *auth.Verifier
	logger   *zap.SugaredLogger
}

// NewHandler wires a REST handler over the shared catalog, adapter
// registry, safety pipeline, and token verifier.
func NewHandler(manager *robot.Manager, registry *adapter.Registry, pipeline *safety.Pipeline, verifier *auth.Verifier, logger *zap.SugaredLogger) *Handler {
	return &Handler{manager: manager, registry: registry, pipeline: pipeline, verifier: verifier, logger: logger}
}

// SetupRouter builds the gin engine: health, metrics, robot reads, and the
// command endpoints, wrapped in the logging middleware.
func SetupRouter(manager *robot.Manager, registry *adapter.Registry, pipeline *safety.Pipeline, verifier *auth.Verifier, logger *zap.SugaredLogger) *gin.Engine {
	router := gin.New()
	router.Use(gin.Recovery())
	router.Use(LoggerMiddleware(logger))

	h := NewHandler(manager, registry, pipeline, verifier, logger)

	router.GET("/health", h.HealthCheck)
	router.GET("/metrics", gin.WrapH(promhttp.Handler()))

	v1 := router.Group("/api/v1")
	{
		robots := v1.Group("/robots")
		{
			robots.GET("", h.ListRobots)
			robots.GET("/:robot_id/status", h.GetRobotStatus)
		}
		commands := v1.Group("/commands")
		{
			commands.POST("/move", h.MoveCommand)
			commands.POST("/stop", h.StopCommand)
		}
	}

	return router
}

// LoggerMiddleware is gin's request-completion logger, matching the
// WebSocket and gRPC surfaces' structured access logs.
func LoggerMiddleware(logger *zap.SugaredLogger) gin.HandlerFunc {
	return func(c *gin.Context) {
		start := time.Now()
		path := c.Request.URL.Path

		c.Next()

		logger.Infow("http request",
			"method", c.Request.Method,
			"path", path,
			"status", c.Writer.Status(),
			"latency", time.Since(start).String(),
			"client_ip", c.ClientIP(),
		)
	}
}

// HealthCheck reports gateway liveness and fleet size.
func (h *Handler) HealthCheck(c *gin.Context) {
	c.JSON(http.StatusOK, gin.H{
		"status":        "healthy",
		"robots_online": h.manager.OnlineCount(),
		"timestamp":     time.Now().Unix(),
	})
}

// ListRobots returns the full catalog.
func (h *Handler) ListRobots(c *gin.Context) {
	robots := h.manager.All()
	c.JSON(http.StatusOK, gin.H{"total": len(robots), "robots": robots})
}

// GetRobotStatus returns the compact status view for one robot.
func (h *Handler) GetRobotStatus(c *gin.Context) {
	status, ok := h.manager.GetStatus(c.Param("robot_id"))
	if !ok {
		c.JSON(http.StatusNotFound, gin.H{"error": "robot not found"})
		return
	}
	c.JSON(http.StatusOK, status)
}

// authClaims verifies the bearer token and returns its claims. On a missing
// or invalid token it writes a 401 response and reports false.
func (h *Handler) authClaims(c *gin.Context) (*auth.Claims, bool) {
	header := c.GetHeader("Authorization")
	token, ok := strings.CutPrefix(header, "Bearer ")
	if !ok || token == "" {
		c.JSON(http.StatusUnauthorized, gin.H{"error": "missing bearer token"})
		return nil, false
	}
	claims, err := h.verifier.Verify(token)
	if err != nil {
		c.JSON(http.StatusUnauthorized, gin.H{"error": "invalid token"})
		return nil, false
	}
	return claims, true
}

// MoveCommandRequest is a navigation-goal request.
type MoveCommandRequest struct {
	RobotID string `json:"robot_id" binding:"required"`
	Goal    struct {
		X     float64 `json:"x"`
		Y     float64 `json:"y"`
		Theta float64 `json:"theta"`
	} `json:"goal" binding:"required"`
}

// MoveCommand dispatches a navigation goal through the safety pipeline.
func (h *Handler) MoveCommand(c *gin.Context) {
	claims, ok := h.authClaims(c)
	if !ok {
		return
	}

	var req MoveCommandRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}

	r, err := h.manager.Get(req.RobotID)
	if err != nil {
		c.JSON(http.StatusNotFound, gin.H{"error": "robot not found"})
		return
	}
	if !r.IsOnline {
		c.JSON(http.StatusBadRequest, gin.H{"error": "robot is offline"})
		return
	}

	commandID := uuid.New().String()
	verdict := h.pipeline.Evaluate(safety.Command{
		RobotID: req.RobotID,
		UserID:  claims.UserID,
		Role:    claims.Role,
		Type:    "nav_goal",
		Payload: map[string]any{"x": req.Goal.X, "y": req.Goal.Y, "theta": req.Goal.Theta},
	})
	if !verdict.Approved {
		c.JSON(http.StatusForbidden, gin.H{"success": false, "reason": verdict.Code})
		return
	}

	if err := h.dispatch(req.RobotID, verdict); err != nil {
		h.logger.Errorw("failed to deliver move command", "error", err, "robot_id", req.RobotID)
		c.JSON(http.StatusInternalServerError, gin.H{"success": false, "message": "failed to send command"})
		return
	}

	c.JSON(http.StatusOK, gin.H{"success": true, "command_id": commandID})
}

// StopCommandRequest names the robot to emergency-stop.
type StopCommandRequest struct {
	RobotID string `json:"robot_id" binding:"required"`
}

// StopCommand dispatches a per-robot emergency stop.
func (h *Handler) StopCommand(c *gin.Context) {
	claims, ok := h.authClaims(c)
	if !ok {
		return
	}

	var req StopCommandRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}
	if _, err := h.manager.Get(req.RobotID); err != nil {
		c.JSON(http.StatusNotFound, gin.H{"error": "robot not found"})
		return
	}

	commandID := uuid.New().String()
	ctx, cancel := context.WithTimeout(c.Request.Context(), 5*time.Second)
	defer cancel()
	if err := h.pipeline.EStop.Activate(ctx, req.RobotID, claims.UserID, "rest_stop_command"); err != nil {
		h.logger.Errorw("failed to deliver stop command", "error", err, "robot_id", req.RobotID)
		c.JSON(http.StatusInternalServerError, gin.H{"success": false, "message": "failed to send command"})
		return
	}

	c.JSON(http.StatusOK, gin.H{"success": true, "command_id": commandID})
}

func (h *Handler) dispatch(robotID string, verdict safety.Verdict) error {
	adp, ok := h.registry.GetAdapter(robotID)
	if !ok {
		return errNoAdapter
	}
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	return adp.SendCommand(ctx, adapter.Command{
		RobotID:   robotID,
		Type:      verdict.Command.Type,
		Payload:   verdict.Command.Payload,
		Timestamp: time.Now().UnixMilli(),
	})
}
