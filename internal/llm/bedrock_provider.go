package llm

import (
	"context"
	"encoding/json"
	"fmt"

	awsconfig "github.com/aws/aws-sdk-go-v2/config"
	"github.com/aws/aws-sdk-go-v2/service/bedrockruntime"

	"github.com/ignite/prospectai/internal/config"
)

// BedrockProvider invokes Anthropic Claude models through AWS Bedrock's
// InvokeModel API using the native Anthropic message body format.
type BedrockProvider struct {
	client    *bedrockruntime.Client
	model     string
	maxTokens int
}

type bedrockAnthropicBody struct {
	AnthropicVersion string                `json:"anthropic_version"`
	MaxTokens        int                   `json:"max_tokens"`
	System           string                `json:"system,omitempty"`
	Messages         []bedrockAnthropicMsg `json:"messages"`
	Temperature      float64               `json:"temperature,omitempty"`
}

type bedrockAnthropicMsg struct {
	Role    string `json:"role"`
	Content string `json:"content"`
}

type bedrockAnthropicResponse struct {
	Content []struct {
		Type string `json:"type"`
		Text string `json:"text"`
	} `json:"content"`
	StopReason string `json:"stop_reason"`
	Usage      struct {
		InputTokens  int `json:"input_tokens"`
		OutputTokens int `json:"output_tokens"`
	} `json:"usage"`
}

// NewBedrockProvider is a llm.Factory for the "bedrock" backend.
func NewBedrockProvider(cfg *config.Config) (Provider, error) {
	region := cfg.LLM.BedrockRegion
	if region == "" {
		region = "us-east-1"
	}
	awsCfg, err := awsconfig.LoadDefaultConfig(context.Background(), awsconfig.WithRegion(region))
	if err != nil {
		return nil, fmt.Errorf("llm: load aws config for bedrock: %w", err)
	}
	model := cfg.LLM.Model
	if model == "" {
		model = "anthropic.claude-3-5-sonnet-20241022-v2:0"
	}
	return &BedrockProvider{
		client:    bedrockruntime.NewFromConfig(awsCfg),
		model:     model,
		maxTokens: cfg.LLM.MaxTokens,
	}, nil
}

func (p *BedrockProvider) Name() string { return "bedrock" }

func (p *BedrockProvider) ValidateConfig() ValidationResult {
	if p.client == nil {
		return ValidationResult{OK: false, Errors: []string{"bedrock client not initialized"}}
	}
	return ValidationResult{OK: true}
}

func (p *BedrockProvider) SafeConfig() map[string]string {
	return map[string]string{"backend": "bedrock", "model": p.model}
}

func (p *BedrockProvider) ModelInfo() ModelInfo {
	return ModelInfo{
		Models:       []string{"anthropic.claude-3-5-sonnet-20241022-v2:0", "anthropic.claude-3-haiku-20240307-v1:0"},
		Capabilities: []string{"chat"},
		MaxTokens:    p.maxTokens,
	}
}

func (p *BedrockProvider) TestConnection(ctx context.Context) ConnectionTest {
	resp, err := p.Complete(ctx, CompletionRequest{
		Messages:  []Message{{Role: RoleUser, Content: "ping"}},
		MaxTokens: 8,
	})
	if err != nil || !resp.Success {
		return ConnectionTest{OK: false, Detail: fmt.Sprintf("bedrock test_connection failed: %v", err)}
	}
	return ConnectionTest{OK: true, Detail: "bedrock reachable"}
}

func (p *BedrockProvider) Complete(ctx context.Context, req CompletionRequest) (CompletionResponse, error) {
	model := req.Model
	if model == "" {
		model = p.model
	}
	maxTokens := req.MaxTokens
	if maxTokens == 0 {
		maxTokens = p.maxTokens
	}
	if maxTokens == 0 {
		maxTokens = 4096
	}

	var system string
	var msgs []bedrockAnthropicMsg
	for _, m := range req.Messages {
		if m.Role == RoleSystem {
			system = m.Content
			continue
		}
		msgs = append(msgs, bedrockAnthropicMsg{Role: string(m.Role), Content: m.Content})
	}
	if req.ResponseFormat == FormatJSON {
		system += "\nRespond with valid JSON only, no surrounding prose."
	}

	body, err := json.Marshal(bedrockAnthropicBody{
		AnthropicVersion: "bedrock-2023-05-31",
		MaxTokens:        maxTokens,
		System:           system,
		Messages:         msgs,
		Temperature:      req.Temperature,
	})
	if err != nil {
		return CompletionResponse{Success: false, ErrorMessage: err.Error()}, err
	}

	out, err := p.client.InvokeModel(ctx, &bedrockruntime.InvokeModelInput{
		ModelId:     &model,
		Body:        body,
		ContentType: strPtr("application/json"),
	})
	if err != nil {
		return CompletionResponse{Success: false, ErrorMessage: err.Error()}, err
	}

	var parsed bedrockAnthropicResponse
	if err := json.Unmarshal(out.Body, &parsed); err != nil {
		return CompletionResponse{Success: false, ErrorMessage: err.Error()}, fmt.Errorf("llm: bedrock response decode: %w", err)
	}

	var content string
	for _, block := range parsed.Content {
		if block.Type == "text" {
			content += block.Text
		}
	}

	return CompletionResponse{
		Success:      true,
		Content:      content,
		Model:        model,
		FinishReason: parsed.StopReason,
		Usage: Usage{
			PromptTokens:     parsed.Usage.InputTokens,
			CompletionTokens: parsed.Usage.OutputTokens,
		},
	}, nil
}

func strPtr(s string) *string { return &s }
