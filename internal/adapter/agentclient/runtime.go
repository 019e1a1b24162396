package agentclient

import (
	"bytes"
	"context"
	"fmt"
	"net/http"
	"strings"
	"time"

	"github.com/aws/aws-sdk-go-v2/aws"
	awsconfig "github.com/aws/aws-sdk-go-v2/config"
	"github.com/aws/aws-sdk-go-v2/service/bedrockagentcore"
	"go.opentelemetry.io/contrib/instrumentation/net/http/otelhttp"

	"github.com/aws-samples/sample-ai-agent-accelerator/internal/domain"
	"github.com/aws-samples/sample-ai-agent-accelerator/internal/telemetry"
)

// Runtime delivers one invocation envelope to an agent runtime.
type Runtime interface {
	InvokeAgentRuntime(ctx context.Context, req *domain.RuntimeRequest) (*domain.RuntimeResponse, error)
}

// AgentCoreAPI is the subset of the Bedrock AgentCore client used for invocations.
type AgentCoreAPI interface {
	InvokeAgentRuntime(ctx context.Context, params *bedrockagentcore.InvokeAgentRuntimeInput, optFns ...func(*bedrockagentcore.Options)) (*bedrockagentcore.InvokeAgentRuntimeOutput, error)
}

// AgentCoreRuntime invokes a hosted agent runtime through Bedrock AgentCore.
type AgentCoreRuntime struct {
	api AgentCoreAPI
}

// NewAgentCoreRuntime wraps an AgentCore client.
func NewAgentCoreRuntime(api AgentCoreAPI) *AgentCoreRuntime {
	return &AgentCoreRuntime{api: api}
}

// NewAgentCoreRuntimeFromConfig builds the AgentCore client from the default
// credential chain. The SDK retryer is disabled: a turn is dispatched once.
func NewAgentCoreRuntimeFromConfig(ctx context.Context, region string) (*AgentCoreRuntime, error) {
	opts := []func(*awsconfig.LoadOptions) error{
		awsconfig.WithRetryMaxAttempts(1),
	}
	if region != "" {
		opts = append(opts, awsconfig.WithRegion(region))
	}
	awsCfg, err := awsconfig.LoadDefaultConfig(ctx, opts...)
	if err != nil {
		return nil, fmt.Errorf("failed to load AWS config: %w", err)
	}
	telemetry.InstrumentAWS(&awsCfg)
	return NewAgentCoreRuntime(bedrockagentcore.NewFromConfig(awsCfg)), nil
}

func (r *AgentCoreRuntime) InvokeAgentRuntime(ctx context.Context, req *domain.RuntimeRequest) (*domain.RuntimeResponse, error) {
	out, err := r.api.InvokeAgentRuntime(ctx, &bedrockagentcore.InvokeAgentRuntimeInput{
		AgentRuntimeArn:  aws.String(req.AgentRuntimeArn),
		Payload:          req.Payload,
		ContentType:      aws.String(req.ContentType),
		Accept:           aws.String(domain.ContentType),
		RuntimeUserId:    aws.String(req.RuntimeUserID),
		RuntimeSessionId: aws.String(req.RuntimeSessionID),
	})
	if err != nil {
		return nil, fmt.Errorf("invoke agent runtime: %w", err)
	}

	if out.StatusCode == nil {
		if out.Response != nil {
			out.Response.Close()
		}
		return nil, fmt.Errorf("%w: response carries no status code", domain.ErrRuntimeInvocation)
	}
	return &domain.RuntimeResponse{StatusCode: int(*out.StatusCode), Body: out.Response}, nil
}

// HTTPRuntime posts invocations straight to an agent container, the way the
// AgentCore data plane forwards them. Used for local development.
type HTTPRuntime struct {
	endpoint   string
	httpClient *http.Client
}

// NewHTTPRuntime creates a runtime for the container listening at endpoint.
func NewHTTPRuntime(endpoint string, timeout time.Duration) *HTTPRuntime {
	return &HTTPRuntime{
		endpoint: strings.TrimSuffix(endpoint, "/"),
		httpClient: &http.Client{
			Timeout:   timeout,
			Transport: otelhttp.NewTransport(http.DefaultTransport),
		},
	}
}

func (r *HTTPRuntime) InvokeAgentRuntime(ctx context.Context, req *domain.RuntimeRequest) (*domain.RuntimeResponse, error) {
	url := r.endpoint + "/invocations"
	httpReq, err := http.NewRequestWithContext(ctx, http.MethodPost, url, bytes.NewReader(req.Payload))
	if err != nil {
		return nil, fmt.Errorf("failed to create request: %w", err)
	}

	httpReq.Header.Set("Content-Type", req.ContentType)
	httpReq.Header.Set("Accept", domain.ContentType)
	httpReq.Header.Set(domain.SessionIDHeader, req.RuntimeSessionID)
	httpReq.Header.Set(domain.UserIDHeader, req.RuntimeUserID)

	resp, err := r.httpClient.Do(httpReq)
	if err != nil {
		return nil, fmt.Errorf("failed to invoke agent: %w", err)
	}
	return &domain.RuntimeResponse{StatusCode: resp.StatusCode, Body: resp.Body}, nil
}
