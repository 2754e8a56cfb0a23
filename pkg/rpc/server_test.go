package rpc

import (
	"context"
	"io"
	"log/slog"
	"net"
	"strings"
	"testing"
	"time"

	"google.golang.org/grpc"
	"google.golang.org/grpc/codes"
	"google.golang.org/grpc/credentials/insecure"
	"google.golang.org/grpc/health/grpc_health_v1"
	"google.golang.org/grpc/reflection/grpc_reflection_v1"
	"google.golang.org/grpc/status"
	"google.golang.org/grpc/test/bufconn"
	"google.golang.org/protobuf/proto"
	"google.golang.org/protobuf/reflect/protoreflect"
	"google.golang.org/protobuf/types/descriptorpb"
	"google.golang.org/protobuf/types/known/structpb"

	"github.com/HatiCode/irisserve/pkg/inference"
	"github.com/HatiCode/irisserve/pkg/models"
)

func startServer(t *testing.T) *grpc.ClientConn {
	t.Helper()
	return startServerWith(t, 0)
}

func startServerWith(t *testing.T, timeout time.Duration) *grpc.ClientConn {
	t.Helper()

	logger := slog.New(slog.NewTextHandler(io.Discard, nil))
	art, err := models.Load("../models/testdata/iris_forest.json", models.LoadOptions{})
	if err != nil {
		t.Fatalf("load model: %v", err)
	}
	svc, err := inference.NewFromArtifact(art, inference.Config{Logger: logger})
	if err != nil {
		t.Fatalf("new service: %v", err)
	}

	lis := bufconn.Listen(1 << 20)
	grpcServer, _ := NewGRPCServer(NewServer(svc, timeout, logger), logger)
	go func() {
		_ = grpcServer.Serve(lis)
	}()
	t.Cleanup(grpcServer.Stop)

	conn, err := grpc.NewClient("passthrough:///bufnet",
		grpc.WithContextDialer(func(ctx context.Context, _ string) (net.Conn, error) {
			return lis.DialContext(ctx)
		}),
		grpc.WithTransportCredentials(insecure.NewCredentials()),
	)
	if err != nil {
		t.Fatalf("dial: %v", err)
	}
	t.Cleanup(func() { conn.Close() })

	return conn
}

func TestPredict_Scenarios(t *testing.T) {
	client := NewClient(startServer(t))

	tests := []struct {
		features  []float64
		wantIndex int
		wantName  string
	}{
		{features: []float64{5.1, 3.5, 1.4, 0.2}, wantIndex: 0, wantName: "setosa"},
		{features: []float64{6.7, 3.0, 5.2, 2.3}, wantIndex: 2, wantName: "virginica"},
	}

	for _, tt := range tests {
		t.Run(tt.wantName, func(t *testing.T) {
			res, err := client.Predict(context.Background(), tt.features)
			if err != nil {
				t.Fatalf("Predict failed: %v", err)
			}
			if res.Prediction != tt.wantIndex || res.ClassName != tt.wantName {
				t.Errorf("got %d/%s, want %d/%s", res.Prediction, res.ClassName, tt.wantIndex, tt.wantName)
			}
			if len(res.Probabilities) != 3 {
				t.Errorf("expected 3 probabilities, got %d", len(res.Probabilities))
			}
		})
	}
}

func TestPredict_InvalidArgument(t *testing.T) {
	client := NewClient(startServer(t))

	t.Run("arity", func(t *testing.T) {
		_, err := client.Predict(context.Background(), []float64{1, 2, 3})
		if status.Code(err) != codes.InvalidArgument {
			t.Fatalf("code = %v, want InvalidArgument (%v)", status.Code(err), err)
		}
		if !strings.Contains(status.Convert(err).Message(), "arity") {
			t.Errorf("message %q does not name the violation", status.Convert(err).Message())
		}
	})

	t.Run("string element", func(t *testing.T) {
		req, err := structpb.NewStruct(map[string]any{"features": []any{5.1, "x", 1.4, 0.2}})
		if err != nil {
			t.Fatal(err)
		}
		_, err = client.PredictStruct(context.Background(), req)
		if status.Code(err) != codes.InvalidArgument {
			t.Fatalf("code = %v, want InvalidArgument", status.Code(err))
		}
	})

	t.Run("missing features", func(t *testing.T) {
		_, err := client.PredictStruct(context.Background(), &structpb.Struct{})
		if status.Code(err) != codes.InvalidArgument {
			t.Fatalf("code = %v, want InvalidArgument", status.Code(err))
		}
	})
}

func TestHealth(t *testing.T) {
	hc := grpc_health_v1.NewHealthClient(startServer(t))

	for _, svc := range []string{"", ServiceName} {
		resp, err := hc.Check(context.Background(), &grpc_health_v1.HealthCheckRequest{Service: svc})
		if err != nil {
			t.Fatalf("health check %q failed: %v", svc, err)
		}
		if resp.Status != grpc_health_v1.HealthCheckResponse_SERVING {
			t.Errorf("health %q = %v, want SERVING", svc, resp.Status)
		}
	}
}

func TestPredict_DeadlineExceeded(t *testing.T) {
	client := NewClient(startServerWith(t, time.Nanosecond))

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	_, err := client.Predict(ctx, []float64{5.1, 3.5, 1.4, 0.2})
	if status.Code(err) != codes.DeadlineExceeded {
		t.Fatalf("code = %v, want DeadlineExceeded (err=%v)", status.Code(err), err)
	}
	if ctx.Err() != nil {
		t.Fatal("client deadline fired; the server timeout was not the cause")
	}
}

func TestReflection(t *testing.T) {
	rc := grpc_reflection_v1.NewServerReflectionClient(startServer(t))

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	stream, err := rc.ServerReflectionInfo(ctx)
	if err != nil {
		t.Fatalf("open reflection stream: %v", err)
	}
	err = stream.Send(&grpc_reflection_v1.ServerReflectionRequest{
		MessageRequest: &grpc_reflection_v1.ServerReflectionRequest_FileContainingSymbol{
			FileContainingSymbol: ServiceName,
		},
	})
	if err != nil {
		t.Fatalf("send: %v", err)
	}
	resp, err := stream.Recv()
	if err != nil {
		t.Fatalf("recv: %v", err)
	}

	fdr := resp.GetFileDescriptorResponse()
	if fdr == nil || len(fdr.FileDescriptorProto) == 0 {
		t.Fatalf("no descriptor for %s: %v", ServiceName, resp.GetErrorResponse())
	}

	var found bool
	for _, raw := range fdr.FileDescriptorProto {
		fdp := new(descriptorpb.FileDescriptorProto)
		if err := proto.Unmarshal(raw, fdp); err != nil {
			t.Fatalf("unmarshal descriptor: %v", err)
		}
		if fdp.GetName() != DescriptorPath {
			continue
		}
		found = true
		svc := fdp.GetService()
		if len(svc) != 1 || svc[0].GetName() != "Inference" || svc[0].GetMethod()[0].GetName() != "Predict" {
			t.Errorf("unexpected services %v", svc)
		}
	}
	if !found {
		t.Errorf("reflection did not return %s", DescriptorPath)
	}
}

func TestFileDescriptor(t *testing.T) {
	sd := File.Services().ByName("Inference")
	if sd == nil || string(sd.FullName()) != ServiceName {
		t.Fatalf("service %s not described", ServiceName)
	}
	md := sd.Methods().ByName("Predict")
	if md == nil {
		t.Fatal("Predict method not described")
	}
	want := protoreflect.FullName("google.protobuf.Struct")
	if md.Input().FullName() != want || md.Output().FullName() != want {
		t.Errorf("Predict(%s) returns %s, want Struct both ways", md.Input().FullName(), md.Output().FullName())
	}
}

func TestToStatus(t *testing.T) {
	if code := status.Code(toStatus(&inference.InferenceError{})); code != codes.Internal {
		t.Errorf("InferenceError -> %v, want Internal", code)
	}
	if code := status.Code(toStatus(context.DeadlineExceeded)); code != codes.DeadlineExceeded {
		t.Errorf("DeadlineExceeded -> %v", code)
	}
}
