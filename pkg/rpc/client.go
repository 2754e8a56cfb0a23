package rpc

import (
	"context"
	"fmt"

	"google.golang.org/grpc"
	"google.golang.org/protobuf/types/known/structpb"

	"github.com/HatiCode/irisserve/pkg/inference"
)

// Client calls iris.v1.Inference over an existing connection.
type Client struct {
	cc grpc.ClientConnInterface
}

// NewClient returns a client using cc.
func NewClient(cc grpc.ClientConnInterface) *Client {
	return &Client{cc: cc}
}

// PredictStruct sends a raw request struct.
func (c *Client) PredictStruct(ctx context.Context, req *structpb.Struct, opts ...grpc.CallOption) (*structpb.Struct, error) {
	out := new(structpb.Struct)
	if err := c.cc.Invoke(ctx, PredictMethod, req, out, opts...); err != nil {
		return nil, err
	}
	return out, nil
}

// Predict classifies features and decodes the response.
func (c *Client) Predict(ctx context.Context, features []float64, opts ...grpc.CallOption) (inference.PredictionResult, error) {
	values := make([]any, len(features))
	for i, f := range features {
		values[i] = f
	}
	req, err := structpb.NewStruct(map[string]any{"features": values})
	if err != nil {
		return inference.PredictionResult{}, fmt.Errorf("encode request: %w", err)
	}

	out, err := c.PredictStruct(ctx, req, opts...)
	if err != nil {
		return inference.PredictionResult{}, err
	}

	fields := out.GetFields()
	res := inference.PredictionResult{
		Prediction: int(fields["prediction"].GetNumberValue()),
		ClassName:  fields["class_name"].GetStringValue(),
	}
	for _, v := range fields["probabilities"].GetListValue().GetValues() {
		res.Probabilities = append(res.Probabilities, v.GetNumberValue())
	}
	return res, nil
}
