package forwarder

import (
	"context"

	"github.com/robot-ai-webapp/gateway/internal/rpcapi"
	"google.golang.org/grpc"
	"google.golang.org/grpc/credentials/insecure"
)

// RecorderSink is the mandatory Sink: it dials the recording service over
// gRPC and issues the batch RPCs through rpcapi's hand-written JSON codec,
// since this repository has no protoc-generated client stub.
type RecorderSink struct {
	conn   *grpc.ClientConn
	client *rpcapi.RecorderClient
}

// NewRecorderSink dials backendAddr and wraps it as a Sink.
func NewRecorderSink(backendAddr string) (*RecorderSink, error) {
	conn, err := grpc.NewClient(backendAddr,
		grpc.WithTransportCredentials(insecure.NewCredentials()),
		grpc.WithDefaultCallOptions(grpc.CallContentSubtype(rpcapi.CodecName)),
	)
	if err != nil {
		return nil, err
	}
	return &RecorderSink{
		conn:   conn,
		client: rpcapi.NewRecorderClient(conn),
	}, nil
}

func (r *RecorderSink) RecordSensor(ctx context.Context, records []rpcapi.SensorRecord) (int, error) {
	resp, err := r.client.RecordSensorData(ctx, &rpcapi.BatchSensorDataRequest{Records: records})
	if err != nil {
		return 0, err
	}
	return resp.RecordedCount, nil
}

func (r *RecorderSink) RecordCommand(ctx context.Context, records []rpcapi.CommandRecord) (int, error) {
	resp, err := r.client.RecordCommandData(ctx, &rpcapi.BatchCommandDataRequest{Records: records})
	if err != nil {
		return 0, err
	}
	return resp.RecordedCount, nil
}

func (r *RecorderSink) Close() error {
	return r.conn.Close()
}
