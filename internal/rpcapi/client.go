package rpcapi

import (
	"context"

	"google.golang.org/grpc"
)

// RecorderClient is a hand-invoked client for the DataRecording service.
// There is no protoc-generated stub, so each RPC is dispatched directly
// through grpc.ClientConn.Invoke against the method's full name.
type RecorderClient struct {
	conn *grpc.ClientConn
}

// NewRecorderClient wraps an established connection to the recording
// service. Callers are expected to have dialed with
// grpc.WithDefaultCallOptions(grpc.CallContentSubtype(CodecName)) so the
// JSON codec registered by this package is used for every call.
func NewRecorderClient(conn *grpc.ClientConn) *RecorderClient {
	return &RecorderClient{conn: conn}
}

// RecordSensorData batches sensor samples to the recording service.
func (c *RecorderClient) RecordSensorData(ctx context.Context, req *BatchSensorDataRequest) (*BatchSensorDataResponse, error) {
	resp := new(BatchSensorDataResponse)
	if err := c.conn.Invoke(ctx, MethodRecordSensorData, req, resp); err != nil {
		return nil, err
	}
	return resp, nil
}

// RecordCommandData batches command outcomes to the recording service.
func (c *RecorderClient) RecordCommandData(ctx context.Context, req *BatchCommandDataRequest) (*BatchCommandDataResponse, error) {
	resp := new(BatchCommandDataResponse)
	if err := c.conn.Invoke(ctx, MethodRecordCommandData, req, resp); err != nil {
		return nil, err
	}
	return resp, nil
}
