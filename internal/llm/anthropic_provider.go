package llm

import (
	"context"
	"fmt"

	"github.com/anthropics/anthropic-sdk-go"
	"github.com/anthropics/anthropic-sdk-go/option"

	"github.com/ignite/prospectai/internal/config"
)

// AnthropicProvider adapts github.com/anthropics/anthropic-sdk-go's
// Messages API to the Provider interface, the third selectable backend
// alongside OpenAI and Bedrock.
type AnthropicProvider struct {
	client    *anthropic.Client
	model     string
	maxTokens int64
}

// NewAnthropicProvider is a llm.Factory for the "anthropic" backend.
func NewAnthropicProvider(cfg *config.Config) (Provider, error) {
	if cfg.LLM.AnthropicAPIKey == "" {
		return nil, fmt.Errorf("llm: anthropic backend requires llm.anthropic_api_key")
	}
	model := cfg.LLM.Model
	if model == "" {
		model = string(anthropic.ModelClaude3_5SonnetLatest)
	}
	maxTokens := int64(cfg.LLM.MaxTokens)
	if maxTokens == 0 {
		maxTokens = 4096
	}
	client := anthropic.NewClient(option.WithAPIKey(cfg.LLM.AnthropicAPIKey))
	return &AnthropicProvider{client: &client, model: model, maxTokens: maxTokens}, nil
}

func (p *AnthropicProvider) Name() string { return "anthropic" }

func (p *AnthropicProvider) ValidateConfig() ValidationResult {
	if p.client == nil {
		return ValidationResult{OK: false, Errors: []string{"anthropic client not initialized"}}
	}
	return ValidationResult{OK: true}
}

func (p *AnthropicProvider) SafeConfig() map[string]string {
	return map[string]string{"backend": "anthropic", "model": p.model, "api_key": "***redacted***"}
}

func (p *AnthropicProvider) ModelInfo() ModelInfo {
	return ModelInfo{
		Models:       []string{string(anthropic.ModelClaude3_5SonnetLatest), string(anthropic.ModelClaude3_5HaikuLatest)},
		Capabilities: []string{"chat"},
		MaxTokens:    int(p.maxTokens),
	}
}

func (p *AnthropicProvider) TestConnection(ctx context.Context) ConnectionTest {
	resp, err := p.Complete(ctx, CompletionRequest{
		Messages:  []Message{{Role: RoleUser, Content: "ping"}},
		MaxTokens: 8,
	})
	if err != nil || !resp.Success {
		return ConnectionTest{OK: false, Detail: fmt.Sprintf("anthropic test_connection failed: %v", err)}
	}
	return ConnectionTest{OK: true, Detail: "anthropic reachable"}
}

// Complete translates the shared envelope to Anthropic's Messages API.
// Anthropic has no dedicated JSON response_format; ResponseFormat=json is
// carried as an instruction appended to the system prompt instead, and
// the caller's JSON-repair policy covers the rest.
func (p *AnthropicProvider) Complete(ctx context.Context, req CompletionRequest) (CompletionResponse, error) {
	model := req.Model
	if model == "" {
		model = p.model
	}
	maxTokens := int64(req.MaxTokens)
	if maxTokens == 0 {
		maxTokens = p.maxTokens
	}

	var system string
	var msgs []anthropic.MessageParam
	for _, m := range req.Messages {
		switch m.Role {
		case RoleSystem:
			system = m.Content
		case RoleAssistant:
			msgs = append(msgs, anthropic.NewAssistantMessage(anthropic.NewTextBlock(m.Content)))
		default:
			msgs = append(msgs, anthropic.NewUserMessage(anthropic.NewTextBlock(m.Content)))
		}
	}
	if req.ResponseFormat == FormatJSON {
		system += "\nRespond with valid JSON only, no surrounding prose."
	}

	params := anthropic.MessageNewParams{
		Model:     anthropic.Model(model),
		MaxTokens: maxTokens,
		Messages:  msgs,
	}
	if system != "" {
		params.System = []anthropic.TextBlockParam{{Text: system}}
	}

	msg, err := p.client.Messages.New(ctx, params)
	if err != nil {
		return CompletionResponse{Success: false, ErrorMessage: err.Error()}, err
	}
	var content string
	for _, block := range msg.Content {
		if block.Type == "text" {
			content += block.Text
		}
	}

	return CompletionResponse{
		Success:      true,
		Content:      content,
		Model:        string(msg.Model),
		FinishReason: string(msg.StopReason),
		Usage: Usage{
			PromptTokens:     int(msg.Usage.InputTokens),
			CompletionTokens: int(msg.Usage.OutputTokens),
		},
	}, nil
}
