package rpc

import (
	"context"
	"errors"
	"log/slog"
	"time"

	"google.golang.org/grpc"
	"google.golang.org/grpc/codes"
	"google.golang.org/grpc/health"
	"google.golang.org/grpc/health/grpc_health_v1"
	"google.golang.org/grpc/reflection"
	"google.golang.org/grpc/status"
	"google.golang.org/protobuf/encoding/protojson"
	"google.golang.org/protobuf/types/known/structpb"

	"github.com/HatiCode/irisserve/pkg/inference"
)

// Server implements InferenceServer on top of an inference.Service.
type Server struct {
	svc     *inference.Service
	timeout time.Duration
	logger  *slog.Logger
}

// NewServer wraps svc. A positive timeout bounds each Predict call.
func NewServer(svc *inference.Service, timeout time.Duration, logger *slog.Logger) *Server {
	if logger == nil {
		logger = slog.Default()
	}
	return &Server{svc: svc, timeout: timeout, logger: logger}
}

// Predict classifies the feature vector carried in req.
func (s *Server) Predict(ctx context.Context, req *structpb.Struct) (*structpb.Struct, error) {
	body, err := protojson.Marshal(req)
	if err != nil {
		return nil, status.Errorf(codes.InvalidArgument, "encode request: %v", err)
	}

	features, err := inference.ParseFeatures(body, s.svc.NumFeatures())
	if err != nil {
		return nil, toStatus(err)
	}

	if s.timeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, s.timeout)
		defer cancel()
	}

	res, err := s.svc.Predict(ctx, features)
	if err != nil {
		return nil, toStatus(err)
	}

	return resultToStruct(res)
}

func resultToStruct(res inference.PredictionResult) (*structpb.Struct, error) {
	proba := make([]any, len(res.Probabilities))
	for i, p := range res.Probabilities {
		proba[i] = p
	}

	out, err := structpb.NewStruct(map[string]any{
		"prediction":    res.Prediction,
		"class_name":    res.ClassName,
		"probabilities": proba,
	})
	if err != nil {
		return nil, status.Errorf(codes.Internal, "encode response: %v", err)
	}
	return out, nil
}

func toStatus(err error) error {
	var verr *inference.ValidationError
	if errors.As(err, &verr) {
		return status.Errorf(codes.InvalidArgument, "%s: %s", verr.Kind, verr.Error())
	}
	if errors.Is(err, context.DeadlineExceeded) || errors.Is(err, context.Canceled) {
		return status.FromContextError(err).Err()
	}
	var ierr *inference.InferenceError
	if errors.As(err, &ierr) {
		return status.Error(codes.Internal, ierr.Error())
	}
	return status.Error(codes.Internal, "internal server error")
}

// NewGRPCServer builds a grpc.Server with the inference, health and
// reflection services registered. The health server reports SERVING for the
// empty service name and for ServiceName.
func NewGRPCServer(srv InferenceServer, logger *slog.Logger, opts ...grpc.ServerOption) (*grpc.Server, *health.Server) {
	if logger == nil {
		logger = slog.Default()
	}

	opts = append(opts, grpc.ChainUnaryInterceptor(LoggingInterceptor(logger)))
	grpcServer := grpc.NewServer(opts...)

	RegisterInferenceServer(grpcServer, srv)

	healthServer := health.NewServer()
	grpc_health_v1.RegisterHealthServer(grpcServer, healthServer)
	healthServer.SetServingStatus("", grpc_health_v1.HealthCheckResponse_SERVING)
	healthServer.SetServingStatus(ServiceName, grpc_health_v1.HealthCheckResponse_SERVING)

	reflection.Register(grpcServer)

	return grpcServer, healthServer
}

// LoggingInterceptor logs each unary call with its status code and duration.
func LoggingInterceptor(logger *slog.Logger) grpc.UnaryServerInterceptor {
	return func(ctx context.Context, req any, info *grpc.UnaryServerInfo, handler grpc.UnaryHandler) (any, error) {
		start := time.Now()
		resp, err := handler(ctx, req)

		code := status.Code(err)
		level := slog.LevelInfo
		if code == codes.Internal || code == codes.Unknown {
			level = slog.LevelError
		}
		logger.Log(ctx, level, "gRPC request",
			"method", info.FullMethod,
			"code", code.String(),
			"duration_ms", time.Since(start).Milliseconds(),
		)
		return resp, err
	}
}
