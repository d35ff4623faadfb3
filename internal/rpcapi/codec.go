// Package rpcapi defines the control-plane gRPC surface (FleetGateway) and
// the recorder client (DataRecording). This repository ships no protoc
// toolchain, so generated protobuf messages are not available; instead this
// package registers a small JSON grpc.Codec so plain Go structs travel as
// gRPC request/response messages. grpc-go's transport, service descriptors,
// streaming, and deadline handling all run unmodified — only the usual
// protoc-generated marshal/unmarshal glue is replaced.
package rpcapi

import (
	"encoding/json"

	"google.golang.org/grpc/encoding"
)

// CodecName is passed to grpc.CallContentSubtype and used as the subtype in
// the wire content-type header ("application/grpc+json").
const CodecName = "json"

func init() {
	encoding.RegisterCodec(jsonCodec{})
}

// jsonCodec implements encoding.Codec by marshaling request/response
// structs as JSON instead of protobuf wire format.
type jsonCodec struct{}

func (jsonCodec) Marshal(v interface{}) ([]byte, error) {
	return json.Marshal(v)
}

func (jsonCodec) Unmarshal(data []byte, v interface{}) error {
	return json.Unmarshal(data, v)
}

func (jsonCodec) Name() string {
	return CodecName
}
