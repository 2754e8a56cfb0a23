// Package rpc exposes the inference service over gRPC.
//
// The service is declared by hand rather than generated from a .proto file:
//
//	service iris.v1.Inference {
//	  rpc Predict(google.protobuf.Struct) returns (google.protobuf.Struct);
//	}
//
// The request struct has the same shape as the HTTP body,
// {"features": [5.1, 3.5, 1.4, 0.2]}, and goes through the same validation.
// The response struct carries prediction, class_name and probabilities.
// The matching file descriptor is built at init and registered for server
// reflection.
package rpc

import (
	"context"

	"google.golang.org/grpc"
	"google.golang.org/protobuf/types/known/structpb"
)

const (
	// ServiceName is the fully-qualified gRPC service name.
	ServiceName = "iris.v1.Inference"

	// PredictMethod is the full method path of Predict.
	PredictMethod = "/" + ServiceName + "/Predict"
)

// InferenceServer is the server API for the iris.v1.Inference service.
type InferenceServer interface {
	Predict(ctx context.Context, req *structpb.Struct) (*structpb.Struct, error)
}

// ServiceDesc describes iris.v1.Inference for grpc.Server.RegisterService.
var ServiceDesc = grpc.ServiceDesc{
	ServiceName: ServiceName,
	HandlerType: (*InferenceServer)(nil),
	Methods: []grpc.MethodDesc{
		{
			MethodName: "Predict",
			Handler:    predictHandler,
		},
	},
	Streams:  []grpc.StreamDesc{},
	Metadata: DescriptorPath,
}

// RegisterInferenceServer registers srv with s.
func RegisterInferenceServer(s grpc.ServiceRegistrar, srv InferenceServer) {
	s.RegisterService(&ServiceDesc, srv)
}

func predictHandler(srv any, ctx context.Context, dec func(any) error, interceptor grpc.UnaryServerInterceptor) (any, error) {
	in := new(structpb.Struct)
	if err := dec(in); err != nil {
		return nil, err
	}
	if interceptor == nil {
		return srv.(InferenceServer).Predict(ctx, in)
	}
	info := &grpc.UnaryServerInfo{
		Server:     srv,
		FullMethod: PredictMethod,
	}
	handler := func(ctx context.Context, req any) (any, error) {
		return srv.(InferenceServer).Predict(ctx, req.(*structpb.Struct))
	}
	return interceptor(ctx, in, info, handler)
}
