package llm

import (
	"context"
	"fmt"

	openai "github.com/sashabaranov/go-openai"

	"github.com/ignite/prospectai/internal/config"
)

// OpenAIProvider adapts github.com/sashabaranov/go-openai's chat
// completion client to the Provider interface.
type OpenAIProvider struct {
	client    *openai.Client
	model     string
	maxTokens int
}

// NewOpenAIProvider is a llm.Factory for the "openai" backend.
func NewOpenAIProvider(cfg *config.Config) (Provider, error) {
	if cfg.LLM.OpenAIAPIKey == "" {
		return nil, fmt.Errorf("llm: openai backend requires llm.openai_api_key")
	}
	model := cfg.LLM.Model
	if model == "" {
		model = openai.GPT4oMini
	}
	return &OpenAIProvider{
		client:    openai.NewClient(cfg.LLM.OpenAIAPIKey),
		model:     model,
		maxTokens: cfg.LLM.MaxTokens,
	}, nil
}

func (p *OpenAIProvider) Name() string { return "openai" }

func (p *OpenAIProvider) ValidateConfig() ValidationResult {
	if p.client == nil {
		return ValidationResult{OK: false, Errors: []string{"openai client not initialized"}}
	}
	return ValidationResult{OK: true}
}

func (p *OpenAIProvider) SafeConfig() map[string]string {
	return map[string]string{"backend": "openai", "model": p.model, "api_key": "***redacted***"}
}

func (p *OpenAIProvider) ModelInfo() ModelInfo {
	return ModelInfo{
		Models:       []string{openai.GPT4o, openai.GPT4oMini, openai.GPT4Turbo},
		Capabilities: []string{"chat", "json_mode"},
		MaxTokens:    p.maxTokens,
	}
}

func (p *OpenAIProvider) TestConnection(ctx context.Context) ConnectionTest {
	resp, err := p.Complete(ctx, CompletionRequest{
		Messages:  []Message{{Role: RoleUser, Content: "ping"}},
		MaxTokens: 8,
	})
	if err != nil || !resp.Success {
		return ConnectionTest{OK: false, Detail: fmt.Sprintf("openai test_connection failed: %v", err)}
	}
	return ConnectionTest{OK: true, Detail: "openai reachable"}
}

func (p *OpenAIProvider) Complete(ctx context.Context, req CompletionRequest) (CompletionResponse, error) {
	model := req.Model
	if model == "" {
		model = p.model
	}
	maxTokens := req.MaxTokens
	if maxTokens == 0 {
		maxTokens = p.maxTokens
	}

	msgs := make([]openai.ChatCompletionMessage, 0, len(req.Messages))
	for _, m := range req.Messages {
		msgs = append(msgs, openai.ChatCompletionMessage{Role: string(m.Role), Content: m.Content})
	}

	oreq := openai.ChatCompletionRequest{
		Model:       model,
		Messages:    msgs,
		Temperature: float32(req.Temperature),
		MaxTokens:   maxTokens,
	}
	if req.ResponseFormat == FormatJSON {
		oreq.ResponseFormat = &openai.ChatCompletionResponseFormat{Type: openai.ChatCompletionResponseFormatTypeJSONObject}
	}

	resp, err := p.client.CreateChatCompletion(ctx, oreq)
	if err != nil {
		return CompletionResponse{Success: false, ErrorMessage: err.Error()}, err
	}
	if len(resp.Choices) == 0 {
		return CompletionResponse{Success: false, ErrorMessage: "openai: empty choices"}, fmt.Errorf("llm: openai returned no choices")
	}

	choice := resp.Choices[0]
	return CompletionResponse{
		Success:      true,
		Content:      choice.Message.Content,
		Model:        resp.Model,
		FinishReason: string(choice.FinishReason),
		Usage: Usage{
			PromptTokens:     resp.Usage.PromptTokens,
			CompletionTokens: resp.Usage.CompletionTokens,
		},
	}, nil
}
