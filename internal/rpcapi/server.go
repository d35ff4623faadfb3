package rpcapi

import (
	"context"
	"time"

	"github.com/robot-ai-webapp/gateway/internal/adapter"
	"github.com/robot-ai-webapp/gateway/internal/robot"
	"github.com/robot-ai-webapp/gateway/internal/safety"
	"go.uber.org/zap"
	"google.golang.org/grpc"
	"google.golang.org/grpc/codes"
	"google.golang.org/grpc/status"
)

// minStreamInterval floors StreamStatus's tick rate, per spec §4.8.
const minStreamInterval = 100 * time.Millisecond

// Version is the gateway build version reported by HealthCheck.
const Version = "1.0.0"

// GatewayServer implements the FleetGateway control-plane service: robot
// queries, command dispatch through the safety pipeline, mission
// start/cancel, status streaming, and health checks.
type GatewayServer struct {
	manager   *robot.Manager
	registry  *adapter.Registry
	pipeline  *safety.Pipeline
	logger    *zap.Logger
	startTime time.Time
}

// NewGatewayServer wires a control-plane server over the shared robot
// catalog, adapter registry, and safety pipeline.
func NewGatewayServer(manager *robot.Manager, registry *adapter.Registry, pipeline *safety.Pipeline, logger *zap.Logger) *GatewayServer {
	return &GatewayServer{
		manager:   manager,
		registry:  registry,
		pipeline:  pipeline,
		logger:    logger,
		startTime: time.Now(),
	}
}

func toSummary(r *robot.Robot) RobotSummary {
	return RobotSummary{
		ID:       r.ID,
		Name:     r.Name,
		Vendor:   r.Vendor,
		Model:    r.Model,
		State:    string(r.State),
		Battery:  r.Battery,
		X:        r.X,
		Y:        r.Y,
		Theta:    r.Theta,
		IsOnline: r.IsOnline,
	}
}

// ListRobots returns the full catalog.
func (s *GatewayServer) ListRobots(ctx context.Context, req *ListRobotsRequest) (*ListRobotsResponse, error) {
	robots := s.manager.All()
	out := make([]RobotSummary, 0, len(robots))
	for _, r := range robots {
		out = append(out, toSummary(r))
	}
	return &ListRobotsResponse{Robots: out}, nil
}

// GetRobot looks up a single robot by id.
func (s *GatewayServer) GetRobot(ctx context.Context, req *GetRobotRequest) (*GetRobotResponse, error) {
	r, err := s.manager.Get(req.RobotID)
	if err != nil {
		return nil, status.Errorf(codes.NotFound, "robot not found: %s", req.RobotID)
	}
	return &GetRobotResponse{Robot: toSummary(r)}, nil
}

// SendCommand runs a command through the same safety pipeline the WebSocket
// path uses, per spec §4.8.
func (s *GatewayServer) SendCommand(ctx context.Context, req *SendCommandRequest) (*SendCommandResponse, error) {
	if _, err := s.manager.Get(req.RobotID); err != nil {
		return nil, status.Errorf(codes.NotFound, "robot not found: %s", req.RobotID)
	}

	verdict := s.pipeline.Evaluate(safety.Command{
		RobotID: req.RobotID,
		UserID:  req.UserID,
		Role:    req.Role,
		Type:    req.Type,
		Payload: req.Payload,
	})
	if !verdict.Approved {
		return &SendCommandResponse{Success: false, Reason: verdict.Code}, nil
	}

	adp, ok := s.registry.GetAdapter(req.RobotID)
	if !ok {
		return nil, status.Errorf(codes.Unavailable, "no adapter connected for robot: %s", req.RobotID)
	}

	sendCtx, cancel := context.WithTimeout(ctx, 5*time.Second)
	defer cancel()
	if err := adp.SendCommand(sendCtx, adapter.Command{Type: verdict.Command.Type, Payload: verdict.Command.Payload}); err != nil {
		return nil, status.Errorf(codes.Internal, "command delivery failed: %v", err)
	}

	return &SendCommandResponse{Success: true, Clamped: verdict.Clamped}, nil
}

// StartMission delegates mission start to the robot's adapter.
func (s *GatewayServer) StartMission(ctx context.Context, req *StartMissionRequest) (*StartMissionResponse, error) {
	adp, ok := s.registry.GetAdapter(req.RobotID)
	if !ok {
		return nil, status.Errorf(codes.Unavailable, "no adapter connected for robot: %s", req.RobotID)
	}
	payload := map[string]any{"mission_id": req.MissionID}
	for k, v := range req.Params {
		payload[k] = v
	}
	sendCtx, cancel := context.WithTimeout(ctx, 5*time.Second)
	defer cancel()
	if err := adp.SendCommand(sendCtx, adapter.Command{Type: "mission_start", Payload: payload}); err != nil {
		return nil, status.Errorf(codes.Internal, "mission start failed: %v", err)
	}
	return &StartMissionResponse{Accepted: true, MissionID: req.MissionID}, nil
}

// CancelMission delegates mission cancellation to the robot's adapter.
func (s *GatewayServer) CancelMission(ctx context.Context, req *CancelMissionRequest) (*CancelMissionResponse, error) {
	adp, ok := s.registry.GetAdapter(req.RobotID)
	if !ok {
		return nil, status.Errorf(codes.Unavailable, "no adapter connected for robot: %s", req.RobotID)
	}
	sendCtx, cancel := context.WithTimeout(ctx, 5*time.Second)
	defer cancel()
	if err := adp.SendCommand(sendCtx, adapter.Command{Type: "mission_cancel"}); err != nil {
		return nil, status.Errorf(codes.Internal, "mission cancel failed: %v", err)
	}
	return &CancelMissionResponse{Cancelled: true}, nil
}

// HealthCheck reports gateway liveness, build version, the size of the
// online fleet, and process uptime, per spec §4.8.
func (s *GatewayServer) HealthCheck(ctx context.Context, req *HealthCheckRequest) (*HealthCheckResponse, error) {
	return &HealthCheckResponse{
		Healthy:             true,
		Version:             Version,
		ConnectedRobotCount: s.manager.OnlineCount(),
		UptimeSeconds:       time.Since(s.startTime).Seconds(),
	}, nil
}

// statusStream is the minimal server-streaming surface StreamStatus needs;
// grpc.ServerStream satisfies it directly, and streamStatusHandler passes
// the stream through unwrapped.
type statusStream interface {
	Context() context.Context
	SendMsg(m interface{}) error
}

// StreamStatus ticks status updates for the requested robots (or the whole
// fleet, if none named) until the client disconnects. Interval is floored
// at minStreamInterval, per spec §4.8.
func (s *GatewayServer) StreamStatus(req *StreamStatusRequest, stream statusStream) error {
	interval := time.Duration(req.IntervalMs) * time.Millisecond
	if interval < minStreamInterval {
		interval = minStreamInterval
	}

	var want map[string]struct{}
	if len(req.RobotIDs) > 0 {
		want = make(map[string]struct{}, len(req.RobotIDs))
		for _, id := range req.RobotIDs {
			want[id] = struct{}{}
		}
	}

	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	for {
		select {
		case <-stream.Context().Done():
			return nil
		case <-ticker.C:
			for _, r := range s.manager.All() {
				if want != nil {
					if _, ok := want[r.ID]; !ok {
						continue
					}
				}
				if err := stream.SendMsg(&StatusUpdate{Robot: toSummary(r)}); err != nil {
					return err
				}
			}
		}
	}
}

// serviceDesc is hand-built in place of the protoc-generated one: each
// method is wired directly against GatewayServer rather than through a
// generated interface, since there is no .proto source to compile.
var serviceDesc = grpc.ServiceDesc{
	ServiceName: "fleet.gateway.v1.FleetGateway",
	HandlerType: (*interface{})(nil),
	Methods: []grpc.MethodDesc{
		{MethodName: "ListRobots", Handler: listRobotsHandler},
		{MethodName: "GetRobot", Handler: getRobotHandler},
		{MethodName: "SendCommand", Handler: sendCommandHandler},
		{MethodName: "StartMission", Handler: startMissionHandler},
		{MethodName: "CancelMission", Handler: cancelMissionHandler},
		{MethodName: "HealthCheck", Handler: healthCheckHandler},
	},
	Streams: []grpc.StreamDesc{
		{
			StreamName:    "StreamStatus",
			Handler:       streamStatusHandler,
			ServerStreams: true,
		},
	},
}

// RegisterGatewayServer attaches srv's methods to s under the FleetGateway
// service name.
func RegisterGatewayServer(s *grpc.Server, srv *GatewayServer) {
	s.RegisterService(&serviceDesc, srv)
}

func listRobotsHandler(srv interface{}, ctx context.Context, dec func(interface{}) error, interceptor grpc.UnaryServerInterceptor) (interface{}, error) {
	in := new(ListRobotsRequest)
	if err := dec(in); err != nil {
		return nil, err
	}
	if interceptor == nil {
		return srv.(*GatewayServer).ListRobots(ctx, in)
	}
	info := &grpc.UnaryServerInfo{Server: srv, FullMethod: MethodListRobots}
	handler := func(ctx context.Context, req interface{}) (interface{}, error) {
		return srv.(*GatewayServer).ListRobots(ctx, req.(*ListRobotsRequest))
	}
	return interceptor(ctx, in, info, handler)
}

func getRobotHandler(srv interface{}, ctx context.Context, dec func(interface{}) error, interceptor grpc.UnaryServerInterceptor) (interface{}, error) {
	in := new(GetRobotRequest)
	if err := dec(in); err != nil {
		return nil, err
	}
	if interceptor == nil {
		return srv.(*GatewayServer).GetRobot(ctx, in)
	}
	info := &grpc.UnaryServerInfo{Server: srv, FullMethod: MethodGetRobot}
	handler := func(ctx context.Context, req interface{}) (interface{}, error) {
		return srv.(*GatewayServer).GetRobot(ctx, req.(*GetRobotRequest))
	}
	return interceptor(ctx, in, info, handler)
}

func sendCommandHandler(srv interface{}, ctx context.Context, dec func(interface{}) error, interceptor grpc.UnaryServerInterceptor) (interface{}, error) {
	in := new(SendCommandRequest)
	if err := dec(in); err != nil {
		return nil, err
	}
	if interceptor == nil {
		return srv.(*GatewayServer).SendCommand(ctx, in)
	}
	info := &grpc.UnaryServerInfo{Server: srv, FullMethod: MethodSendCommand}
	handler := func(ctx context.Context, req interface{}) (interface{}, error) {
		return srv.(*GatewayServer).SendCommand(ctx, req.(*SendCommandRequest))
	}
	return interceptor(ctx, in, info, handler)
}

func startMissionHandler(srv interface{}, ctx context.Context, dec func(interface{}) error, interceptor grpc.UnaryServerInterceptor) (interface{}, error) {
	in := new(StartMissionRequest)
	if err := dec(in); err != nil {
		return nil, err
	}
	if interceptor == nil {
		return srv.(*GatewayServer).StartMission(ctx, in)
	}
	info := &grpc.UnaryServerInfo{Server: srv, FullMethod: MethodStartMission}
	handler := func(ctx context.Context, req interface{}) (interface{}, error) {
		return srv.(*GatewayServer).StartMission(ctx, req.(*StartMissionRequest))
	}
	return interceptor(ctx, in, info, handler)
}

func cancelMissionHandler(srv interface{}, ctx context.Context, dec func(interface{}) error, interceptor grpc.UnaryServerInterceptor) (interface{}, error) {
	in := new(CancelMissionRequest)
	if err := dec(in); err != nil {
		return nil, err
	}
	if interceptor == nil {
		return srv.(*GatewayServer).CancelMission(ctx, in)
	}
	info := &grpc.UnaryServerInfo{Server: srv, FullMethod: MethodCancelMission}
	handler := func(ctx context.Context, req interface{}) (interface{}, error) {
		return srv.(*GatewayServer).CancelMission(ctx, req.(*CancelMissionRequest))
	}
	return interceptor(ctx, in, info, handler)
}

func healthCheckHandler(srv interface{}, ctx context.Context, dec func(interface{}) error, interceptor grpc.UnaryServerInterceptor) (interface{}, error) {
	in := new(HealthCheckRequest)
	if err := dec(in); err != nil {
		return nil, err
	}
	if interceptor == nil {
		return srv.(*GatewayServer).HealthCheck(ctx, in)
	}
	info := &grpc.UnaryServerInfo{Server: srv, FullMethod: MethodHealthCheck}
	handler := func(ctx context.Context, req interface{}) (interface{}, error) {
		return srv.(*GatewayServer).HealthCheck(ctx, req.(*HealthCheckRequest))
	}
	return interceptor(ctx, in, info, handler)
}

func streamStatusHandler(srv interface{}, stream grpc.ServerStream) error {
	in := new(StreamStatusRequest)
	if err := stream.RecvMsg(in); err != nil {
		return err
	}
	return srv.(*GatewayServer).StreamStatus(in, stream)
}
