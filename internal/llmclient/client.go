// Package llmclient is the synchronous language-model client adapter. The
// scheduler treats it as an external collaborator consumed only through
// this interface.
package llmclient

import (
	"context"
	"fmt"
	"os"
	"strconv"
	"time"

	"google.golang.org/grpc"
	"google.golang.org/grpc/credentials/insecure"
	"google.golang.org/protobuf/types/known/structpb"
)

// EvaluateRequest is one evaluation call against the model.
type EvaluateRequest struct {
	SubmissionID  string
	Prompt        string
	RubricVersion string
	Seed          int64
	Temperature   float64
}

// EvaluateResponse is the model's structured answer plus the audit fields
// the evaluate stage records into llm_runs.
type EvaluateResponse struct {
	Content          string
	ModelVersion     string
	PromptTokens     int
	CompletionTokens int
	LatencyMs        int
}

// Client is implemented by GRPCClient and by any fake used in stage
// handler tests.
type Client interface {
	Evaluate(ctx context.Context, req EvaluateRequest) (EvaluateResponse, error)
	Model() string
}

// GRPCClient talks to the evaluation model service over gRPC. It invokes
// the service generically via structpb payloads rather than a
// protoc-generated stub, so it carries no build-time codegen dependency —
// see DESIGN.md.
type GRPCClient struct {
	conn        *grpc.ClientConn
	method      string
	model       string
	temperature float64
}

// NewGRPCClient dials the evaluation service, mirroring the connection
// setup of the source system's LLM client (insecure transport to an
// in-cluster sidecar, model/temperature from environment).
func NewGRPCClient(addr string) (*GRPCClient, error) {
	conn, err := grpc.NewClient(addr, grpc.WithTransportCredentials(insecure.NewCredentials()))
	if err != nil {
		return nil, fmt.Errorf("connecting to LLM service: %w", err)
	}

	model := os.Getenv("LLM_MODEL")
	if model == "" {
		model = "gemini-2.0-flash"
	}

	temperature := 0.2
	if raw := os.Getenv("LLM_TEMPERATURE"); raw != "" {
		if parsed, err := strconv.ParseFloat(raw, 64); err == nil {
			temperature = parsed
		}
	}

	return &GRPCClient{
		conn:        conn,
		method:      "/ai.assignmentchecker.llm.v1.EvaluationService/Evaluate",
		model:       model,
		temperature: temperature,
	}, nil
}

// Close releases the gRPC connection.
func (c *GRPCClient) Close() error {
	return c.conn.Close()
}

// Model returns the configured model identifier, recorded on every
// llm_runs row.
func (c *GRPCClient) Model() string {
	return c.model
}

// Evaluate sends one evaluation request and returns the model's answer.
func (c *GRPCClient) Evaluate(ctx context.Context, req EvaluateRequest) (EvaluateResponse, error) {
	reqStruct, err := structpb.NewStruct(map[string]any{
		"submission_id":  req.SubmissionID,
		"prompt":         req.Prompt,
		"rubric_version": req.RubricVersion,
		"model":          c.model,
		"temperature":    c.temperature,
		"seed":           req.Seed,
	})
	if err != nil {
		return EvaluateResponse{}, fmt.Errorf("building evaluate request: %w", err)
	}

	respStruct := &structpb.Struct{}
	start := time.Now()
	if err := c.conn.Invoke(ctx, c.method, reqStruct, respStruct); err != nil {
		return EvaluateResponse{}, fmt.Errorf("calling evaluation service: %w", err)
	}
	latency := time.Since(start)

	fields := respStruct.GetFields()
	return EvaluateResponse{
		Content:          fields["content"].GetStringValue(),
		ModelVersion:     fields["model_version"].GetStringValue(),
		PromptTokens:     int(fields["prompt_tokens"].GetNumberValue()),
		CompletionTokens: int(fields["completion_tokens"].GetNumberValue()),
		LatencyMs:        int(latency.Milliseconds()),
	}, nil
}
