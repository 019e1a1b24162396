package agent

import (
	"context"
	"encoding/json"
	"fmt"
	"strings"

	"github.com/aws/aws-sdk-go-v2/aws"
	awsconfig "github.com/aws/aws-sdk-go-v2/config"
	"github.com/aws/aws-sdk-go-v2/service/bedrockagentruntime"
	"github.com/aws/aws-sdk-go-v2/service/bedrockagentruntime/types"

	"github.com/aws-samples/sample-ai-agent-accelerator/internal/domain"
	"github.com/aws-samples/sample-ai-agent-accelerator/internal/telemetry"
)

const (
	retrieveToolName       = "retrieve"
	defaultNumberOfResults = 10
	defaultMinScore        = 0.4
)

// RetrieveAPI is the subset of the Bedrock agent runtime client used by the retrieve tool.
type RetrieveAPI interface {
	Retrieve(ctx context.Context, params *bedrockagentruntime.RetrieveInput, optFns ...func(*bedrockagentruntime.Options)) (*bedrockagentruntime.RetrieveOutput, error)
}

// RetrieveTool searches a Bedrock knowledge base.
type RetrieveTool struct {
	api             RetrieveAPI
	knowledgeBaseID string
}

// NewRetrieveTool creates the retrieve tool for knowledgeBaseID.
func NewRetrieveTool(api RetrieveAPI, knowledgeBaseID string) *RetrieveTool {
	return &RetrieveTool{api: api, knowledgeBaseID: knowledgeBaseID}
}

// NewRetrieveToolFromConfig builds the knowledge base client from the default
// credential chain with adaptive retries.
func NewRetrieveToolFromConfig(ctx context.Context, region, knowledgeBaseID string) (*RetrieveTool, error) {
	opts := []func(*awsconfig.LoadOptions) error{
		awsconfig.WithRetryMode(aws.RetryModeAdaptive),
		awsconfig.WithRetryMaxAttempts(10),
	}
	if region != "" {
		opts = append(opts, awsconfig.WithRegion(region))
	}
	awsCfg, err := awsconfig.LoadDefaultConfig(ctx, opts...)
	if err != nil {
		return nil, fmt.Errorf("failed to load AWS config: %w", err)
	}
	telemetry.InstrumentAWS(&awsCfg)
	return NewRetrieveTool(bedrockagentruntime.NewFromConfig(awsCfg), knowledgeBaseID), nil
}

type retrieveInput struct {
	Text            string   `json:"text"`
	NumberOfResults *int32   `json:"numberOfResults,omitempty"`
	Score           *float64 `json:"score,omitempty"`
}

func (t *RetrieveTool) Spec() ToolSpec {
	return ToolSpec{
		Name:        retrieveToolName,
		Description: "Retrieves passages from the company knowledge base that are relevant to a query.",
		InputSchema: map[string]any{
			"type": "object",
			"properties": map[string]any{
				"text": map[string]any{
					"type":        "string",
					"description": "The query to search the knowledge base with.",
				},
				"numberOfResults": map[string]any{
					"type":        "integer",
					"description": "Maximum number of results to return (default 10).",
				},
				"score": map[string]any{
					"type":        "number",
					"description": "Minimum relevance score between 0 and 1 (default 0.4).",
				},
			},
			"required": []string{"text"},
		},
	}
}

func (t *RetrieveTool) Call(ctx context.Context, raw json.RawMessage) ([]domain.ToolResultContent, error) {
	var in retrieveInput
	if err := json.Unmarshal(raw, &in); err != nil {
		return nil, fmt.Errorf("invalid retrieve input: %w", err)
	}
	in.Text = strings.TrimSpace(in.Text)
	if in.Text == "" {
		return nil, fmt.Errorf("text is required")
	}

	n := int32(defaultNumberOfResults)
	if in.NumberOfResults != nil && *in.NumberOfResults > 0 {
		n = *in.NumberOfResults
	}
	minScore := defaultMinScore
	if in.Score != nil {
		minScore = *in.Score
	}

	out, err := t.api.Retrieve(ctx, &bedrockagentruntime.RetrieveInput{
		KnowledgeBaseId: aws.String(t.knowledgeBaseID),
		RetrievalQuery:  &types.KnowledgeBaseQuery{Text: aws.String(in.Text)},
		RetrievalConfiguration: &types.KnowledgeBaseRetrievalConfiguration{
			VectorSearchConfiguration: &types.KnowledgeBaseVectorSearchConfiguration{
				NumberOfResults: aws.Int32(n),
			},
		},
	})
	if err != nil {
		return nil, fmt.Errorf("knowledge base retrieve: %w", err)
	}

	var kept []types.KnowledgeBaseRetrievalResult
	for _, r := range out.RetrievalResults {
		if aws.ToFloat64(r.Score) >= minScore {
			kept = append(kept, r)
		}
	}

	return []domain.ToolResultContent{{Text: formatRetrievalResults(kept, minScore)}}, nil
}

func formatRetrievalResults(results []types.KnowledgeBaseRetrievalResult, minScore float64) string {
	if len(results) == 0 {
		return fmt.Sprintf("No results found above score threshold of %.2f.", minScore)
	}

	var b strings.Builder
	fmt.Fprintf(&b, "Retrieved %d results with score >= %.2f:\n", len(results), minScore)
	for _, r := range results {
		fmt.Fprintf(&b, "\nScore: %.4f\n", aws.ToFloat64(r.Score))
		if loc := sourceLocation(r.Location); loc != "" {
			fmt.Fprintf(&b, "Source: %s\n", loc)
		}
		if r.Content != nil {
			fmt.Fprintf(&b, "Content: %s\n", aws.ToString(r.Content.Text))
		}
	}
	return b.String()
}

func sourceLocation(loc *types.RetrievalResultLocation) string {
	if loc == nil {
		return ""
	}
	switch {
	case loc.S3Location != nil:
		return aws.ToString(loc.S3Location.Uri)
	case loc.WebLocation != nil:
		return aws.ToString(loc.WebLocation.Url)
	}
	return ""
}
