package rpc

import (
	"fmt"

	"google.golang.org/protobuf/proto"
	"google.golang.org/protobuf/reflect/protodesc"
	"google.golang.org/protobuf/reflect/protoreflect"
	"google.golang.org/protobuf/reflect/protoregistry"
	"google.golang.org/protobuf/types/descriptorpb"
	"google.golang.org/protobuf/types/known/structpb"
)

// DescriptorPath is the file name the Inference service descriptor is
// registered under. It matches ServiceDesc.Metadata.
const DescriptorPath = "iris/v1/inference.proto"

// File describes iris/v1/inference.proto. It is registered in
// protoregistry.GlobalFiles so server reflection can resolve ServiceName.
var File protoreflect.FileDescriptor

func init() {
	fd, err := buildFile(protoregistry.GlobalFiles)
	if err != nil {
		panic(err)
	}
	if err := protoregistry.GlobalFiles.RegisterFile(fd); err != nil {
		panic(fmt.Sprintf("rpc: register %s: %v", DescriptorPath, err))
	}
	File = fd
}

func buildFile(resolver protodesc.Resolver) (protoreflect.FileDescriptor, error) {
	structFile := structpb.File_google_protobuf_struct_proto.Path()
	structType := "." + string((&structpb.Struct{}).ProtoReflect().Descriptor().FullName())

	fdp := &descriptorpb.FileDescriptorProto{
		Name:       proto.String(DescriptorPath),
		Package:    proto.String("iris.v1"),
		Dependency: []string{structFile},
		Syntax:     proto.String("proto3"),
		Service: []*descriptorpb.ServiceDescriptorProto{{
			Name: proto.String("Inference"),
			Method: []*descriptorpb.MethodDescriptorProto{{
				Name:       proto.String("Predict"),
				InputType:  proto.String(structType),
				OutputType: proto.String(structType),
			}},
		}},
		Options: &descriptorpb.FileOptions{
			GoPackage: proto.String("github.com/HatiCode/irisserve/pkg/rpc"),
		},
	}

	fd, err := protodesc.NewFile(fdp, resolver)
	if err != nil {
		return nil, fmt.Errorf("rpc: build %s: %w", DescriptorPath, err)
	}
	return fd, nil
}
