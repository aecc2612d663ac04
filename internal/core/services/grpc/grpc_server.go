// Package grpc exposes telemetry ingestion over gRPC. Envelopes travel as
// google.protobuf.Struct so producers need no generated stubs.
package grpc

import (
	"context"
	"errors"
	"io"
	"log/slog"

	"github.com/lcalzada-xor/mids/internal/core/domain"
	"google.golang.org/grpc"
	"google.golang.org/grpc/codes"
	"google.golang.org/grpc/status"
	"google.golang.org/protobuf/types/known/structpb"
)

const ServiceName = "mids.v1.TelemetryIngest"

// DocumentHandler validates and ingests one decoded telemetry envelope.
type DocumentHandler interface {
	HandleDocument(ctx context.Context, transport string, doc map[string]any) (domain.ChannelSnapshot, error)
}

// TelemetryServer implements the TelemetryIngest service.
type TelemetryServer struct {
	handler DocumentHandler
	logger  *slog.Logger
}

// TelemetryIngestServer is the service contract registered with grpc.
type TelemetryIngestServer interface {
	Ingest(ctx context.Context, in *structpb.Struct) (*structpb.Struct, error)
	Stream(stream grpc.ServerStream) error
}

// ServiceDesc describes TelemetryIngest for grpc registration and clients.
var ServiceDesc = grpc.ServiceDesc{
	ServiceName: ServiceName,
	HandlerType: (*TelemetryIngestServer)(nil),
	Methods: []grpc.MethodDesc{
		{MethodName: "Ingest", Handler: ingestHandler},
	},
	Streams: []grpc.StreamDesc{
		{StreamName: "Stream", Handler: streamHandler, ClientStreams: true},
	},
	Metadata: "mids/v1/telemetry.proto",
}

func NewTelemetryServer(handler DocumentHandler, logger *slog.Logger) *TelemetryServer {
	return &TelemetryServer{handler: handler, logger: logger}
}

// NewGrpcServer builds a grpc.Server with the telemetry service registered.
func NewGrpcServer(handler DocumentHandler, logger *slog.Logger, opts ...grpc.ServerOption) *grpc.Server {
	s := grpc.NewServer(opts...)
	s.RegisterService(&ServiceDesc, NewTelemetryServer(handler, logger))
	return s
}

// Ingest accepts one envelope and acknowledges it.
func (s *TelemetryServer) Ingest(ctx context.Context, in *structpb.Struct) (*structpb.Struct, error) {
	snap, err := s.handler.HandleDocument(ctx, "grpc", in.AsMap())
	if err != nil {
		return nil, toStatus(err)
	}
	return structpb.NewStruct(map[string]any{
		"accepted":  true,
		"device_id": snap.DeviceID,
		"channel":   string(snap.Channel),
	})
}

// Stream accepts envelopes until the client closes its side, then reports
// how many were accepted and rejected. A bad envelope does not end the stream.
func (s *TelemetryServer) Stream(stream grpc.ServerStream) error {
	var accepted, rejected int
	for {
		in := new(structpb.Struct)
		err := stream.RecvMsg(in)
		if errors.Is(err, io.EOF) {
			summary, _ := structpb.NewStruct(map[string]any{
				"accepted": accepted,
				"rejected": rejected,
			})
			return stream.SendMsg(summary)
		}
		if err != nil {
			return err
		}

		if _, err := s.handler.HandleDocument(stream.Context(), "grpc", in.AsMap()); err != nil {
			rejected++
			s.logger.Debug("grpc telemetry rejected", "error", err)
			continue
		}
		accepted++
	}
}

func toStatus(err error) error {
	switch {
	case errors.Is(err, domain.ErrInvalidSnapshot), errors.Is(err, domain.ErrInvalidDeviceID):
		return status.Error(codes.InvalidArgument, err.Error())
	case errors.Is(err, domain.ErrDuplicateSnapshot):
		return status.Error(codes.AlreadyExists, err.Error())
	case errors.Is(err, context.Canceled):
		return status.Error(codes.Canceled, err.Error())
	}
	return status.Error(codes.Internal, err.Error())
}

func ingestHandler(srv any, ctx context.Context, dec func(any) error, interceptor grpc.UnaryServerInterceptor) (any, error) {
	in := new(structpb.Struct)
	if err := dec(in); err != nil {
		return nil, err
	}
	if interceptor == nil {
		return srv.(TelemetryIngestServer).Ingest(ctx, in)
	}
	info := &grpc.UnaryServerInfo{
		Server:     srv,
		FullMethod: "/" + ServiceName + "/Ingest",
	}
	handler := func(ctx context.Context, req any) (any, error) {
		return srv.(TelemetryIngestServer).Ingest(ctx, req.(*structpb.Struct))
	}
	return interceptor(ctx, in, info, handler)
}

func streamHandler(srv any, stream grpc.ServerStream) error {
	return srv.(TelemetryIngestServer).Stream(stream)
}
