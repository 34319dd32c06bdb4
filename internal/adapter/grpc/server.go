package grpc

import (
	"context"
	"errors"

	"github.com/sirupsen/logrus"
	"google.golang.org/grpc"
	"google.golang.org/grpc/codes"
	"google.golang.org/grpc/status"
	"google.golang.org/protobuf/types/known/structpb"

	"github.com/simaogato/pricesnap/internal/domain"
	"github.com/simaogato/pricesnap/internal/usecase/query"
)

const (
	ServiceName           = "pricesnap.v1.ReportService"
	GetReportMethod       = "/" + ServiceName + "/GetReport"
	ListSnapshotsMethod   = "/" + ServiceName + "/ListSnapshots"
	GetSeriesMethod       = "/" + ServiceName + "/GetSeries"
	reportServiceMetadata = "pricesnap/v1/report.proto"
)

// ReportServiceServer is the read-only query service of downstream consumers.
// Requests and responses are protobuf Struct messages.
type ReportServiceServer interface {
	GetReport(context.Context, *structpb.Struct) (*structpb.Struct, error)
	ListSnapshots(context.Context, *structpb.Struct) (*structpb.Struct, error)
	GetSeries(context.Context, *structpb.Struct) (*structpb.Struct, error)
}

// ReportServiceDesc describes pricesnap.v1.ReportService to grpc.Server
var ReportServiceDesc = grpc.ServiceDesc{
	ServiceName: ServiceName,
	HandlerType: (*ReportServiceServer)(nil),
	Methods: []grpc.MethodDesc{
		{MethodName: "GetReport", Handler: getReportHandler},
		{MethodName: "ListSnapshots", Handler: listSnapshotsHandler},
		{MethodName: "GetSeries", Handler: getSeriesHandler},
	},
	Streams:  []grpc.StreamDesc{},
	Metadata: reportServiceMetadata,
}

func getReportHandler(srv interface{}, ctx context.Context, dec func(interface{}) error, interceptor grpc.UnaryServerInterceptor) (interface{}, error) {
	in := new(structpb.Struct)
	if err := dec(in); err != nil {
		return nil, err
	}
	if interceptor == nil {
		return srv.(ReportServiceServer).GetReport(ctx, in)
	}
	info := &grpc.UnaryServerInfo{Server: srv, FullMethod: GetReportMethod}
	handler := func(ctx context.Context, req interface{}) (interface{}, error) {
		return srv.(ReportServiceServer).GetReport(ctx, req.(*structpb.Struct))
	}
	return interceptor(ctx, in, info, handler)
}

func listSnapshotsHandler(srv interface{}, ctx context.Context, dec func(interface{}) error, interceptor grpc.UnaryServerInterceptor) (interface{}, error) {
	in := new(structpb.Struct)
	if err := dec(in); err != nil {
		return nil, err
	}
	if interceptor == nil {
		return srv.(ReportServiceServer).ListSnapshots(ctx, in)
	}
	info := &grpc.UnaryServerInfo{Server: srv, FullMethod: ListSnapshotsMethod}
	handler := func(ctx context.Context, req interface{}) (interface{}, error) {
		return srv.(ReportServiceServer).ListSnapshots(ctx, req.(*structpb.Struct))
	}
	return interceptor(ctx, in, info, handler)
}

func getSeriesHandler(srv interface{}, ctx context.Context, dec func(interface{}) error, interceptor grpc.UnaryServerInterceptor) (interface{}, error) {
	in := new(structpb.Struct)
	if err := dec(in); err != nil {
		return nil, err
	}
	if interceptor == nil {
		return srv.(ReportServiceServer).GetSeries(ctx, in)
	}
	info := &grpc.UnaryServerInfo{Server: srv, FullMethod: GetSeriesMethod}
	handler := func(ctx context.Context, req interface{}) (interface{}, error) {
		return srv.(ReportServiceServer).GetSeries(ctx, req.(*structpb.Struct))
	}
	return interceptor(ctx, in, info, handler)
}

// Server implements ReportServiceServer on top of the query use case
type Server struct {
	Queries *query.QueryService
}

var _ ReportServiceServer = (*Server)(nil)

// NewServer creates a new gRPC server instance
func NewServer(queries *query.QueryService) *Server {
	return &Server{Queries: queries}
}

// NewGRPCServer builds a grpc.Server with request logging, token authentication when token is set, and registers srv on it
func NewGRPCServer(srv ReportServiceServer, token string, logger logrus.FieldLogger) *grpc.Server {
	interceptors := []grpc.UnaryServerInterceptor{LoggingInterceptor(logger)}
	if token != "" {
		interceptors = append(interceptors, AuthInterceptor(token))
	}
	server := grpc.NewServer(grpc.ChainUnaryInterceptor(interceptors...))
	server.RegisterService(&ReportServiceDesc, srv)
	return server
}

// GetReport handles the GetReport RPC.
// Request fields: date (YYYY-MM-DD), account (optional).
func (s *Server) GetReport(ctx context.Context, req *structpb.Struct) (*structpb.Struct, error) {
	view, err := s.Queries.GetReport(ctx, stringField(req, "date"), stringField(req, "account"))
	if err != nil {
		return nil, mapError(err)
	}
	return toStruct(query.ReportDocument(view))
}

// ListSnapshots handles the ListSnapshots RPC.
// Request fields: provider_id, from and to (optional days).
func (s *Server) ListSnapshots(ctx context.Context, req *structpb.Struct) (*structpb.Struct, error) {
	providerID := stringField(req, "provider_id")
	snapshots, err := s.Queries.ListSnapshots(ctx, providerID, stringField(req, "from"), stringField(req, "to"))
	if err != nil {
		return nil, mapError(err)
	}
	return toStruct(query.SnapshotsDocument(providerID, snapshots))
}

// GetSeries handles the GetSeries RPC.
// Request fields: from and to (optional days), account (optional).
func (s *Server) GetSeries(ctx context.Context, req *structpb.Struct) (*structpb.Struct, error) {
	series, err := s.Queries.GetSeries(ctx, stringField(req, "from"), stringField(req, "to"), stringField(req, "account"))
	if err != nil {
		return nil, mapError(err)
	}
	return toStruct(query.SeriesDocument(series))
}

func stringField(req *structpb.Struct, name string) string {
	if req == nil {
		return ""
	}
	return req.GetFields()[name].GetStringValue()
}

func toStruct(doc map[string]interface{}) (*structpb.Struct, error) {
	out, err := structpb.NewStruct(doc)
	if err != nil {
		return nil, status.Errorf(codes.Internal, "encode response: %v", err)
	}
	return out, nil
}

// mapError converts domain errors to gRPC status errors
func mapError(err error) error {
	if err == nil {
		return nil
	}

	switch {
	case errors.Is(err, query.ErrInvalidQuery):
		return status.Errorf(codes.InvalidArgument, "%s", err.Error())
	case errors.Is(err, domain.ErrNotFound):
		return status.Errorf(codes.NotFound, "%s", err.Error())
	case errors.Is(err, query.ErrSeriesUnavailable):
		return status.Errorf(codes.Unimplemented, "%s", err.Error())
	case errors.Is(err, context.DeadlineExceeded):
		return status.Errorf(codes.DeadlineExceeded, "%s", err.Error())
	case errors.Is(err, context.Canceled):
		return status.Errorf(codes.Canceled, "%s", err.Error())
	}

	// Default to Internal error for unknown errors
	return status.Errorf(codes.Internal, "%s", err.Error())
}
