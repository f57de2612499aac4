// Package llm implements the single interface every chat-completion
// backend satisfies (C6), plus a process-wide Registry that holds
// configured providers keyed by name, the currently active provider, and
// lazy instantiation on first use.
package llm

import (
	"context"
	"fmt"
	"sync"

	"github.com/ignite/prospectai/internal/config"
)

// Role is one of the three message roles a CompletionRequest may carry.
type Role string

const (
	RoleSystem    Role = "system"
	RoleUser      Role = "user"
	RoleAssistant Role = "assistant"
)

// ResponseFormat hints the backend to constrain its output.
type ResponseFormat string

const (
	FormatText ResponseFormat = "text"
	FormatJSON ResponseFormat = "json"
)

// Message is one turn of a CompletionRequest's conversation.
type Message struct {
	Role    Role
	Content string
}

// CompletionRequest is the backend-agnostic request envelope.
type CompletionRequest struct {
	Messages       []Message
	Model          string
	Temperature    float64
	MaxTokens      int
	ResponseFormat ResponseFormat
}

// Usage reports token accounting for a completion.
type Usage struct {
	PromptTokens     int
	CompletionTokens int
}

// CompletionResponse is the backend-agnostic response envelope.
type CompletionResponse struct {
	Success      bool
	Content      string
	Model        string
	Usage        Usage
	FinishReason string
	ErrorKind    string
	ErrorMessage string
}

// ModelInfo summarizes what a provider exposes, for CLI validate-config
// and operator diagnostics.
type ModelInfo struct {
	Models       []string
	Capabilities []string
	MaxTokens    int
}

// ValidationResult is returned by Provider.ValidateConfig.
type ValidationResult struct {
	OK     bool
	Errors []string
}

// ConnectionTest is returned by Provider.TestConnection.
type ConnectionTest struct {
	OK     bool
	Detail string
}

// Provider is the single interface every chat-completion backend
// implements (C6).
type Provider interface {
	Name() string
	ValidateConfig() ValidationResult
	SafeConfig() map[string]string
	ModelInfo() ModelInfo
	TestConnection(ctx context.Context) ConnectionTest
	Complete(ctx context.Context, req CompletionRequest) (CompletionResponse, error)
}

// Factory lazily constructs a Provider from config, returning an error if
// the backend's credentials are missing or malformed.
type Factory func(cfg *config.Config) (Provider, error)

// Registry holds configured provider factories keyed by name, the
// currently active provider name, and the lazily-instantiated providers
// themselves. Safe for concurrent use; switching the active provider is
// atomic and does not interrupt in-flight completions against the
// provider they were issued to, because Active() returns a snapshot
// Provider value, not a live pointer into the registry.
type Registry struct {
	cfg *config.Config

	mu         sync.RWMutex
	factories  map[string]Factory
	instances  map[string]Provider
	unavail    map[string]error
	activeName string
}

// NewRegistry builds a Registry with the three built-in backends
// registered and the configured backend selected as active.
func NewRegistry(cfg *config.Config) *Registry {
	r := &Registry{
		cfg:       cfg,
		factories: make(map[string]Factory),
		instances: make(map[string]Provider),
		unavail:   make(map[string]error),
	}
	r.Register("openai", NewOpenAIProvider)
	r.Register("anthropic", NewAnthropicProvider)
	r.Register("bedrock", NewBedrockProvider)
	r.activeName = cfg.LLM.Backend
	return r
}

// Register adds or replaces a named backend's factory. Registering does
// not instantiate it; that happens lazily on first use.
func (r *Registry) Register(name string, factory Factory) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.factories[name] = factory
	delete(r.unavail, name)
}

// SetActive atomically switches the active provider name. In-flight
// completions already holding a Provider value from Active() are
// unaffected.
func (r *Registry) SetActive(name string) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	if _, ok := r.factories[name]; !ok {
		return fmt.Errorf("llm: unknown provider %q", name)
	}
	r.activeName = name
	return nil
}

// Active returns the currently active provider, instantiating it on
// first use.
func (r *Registry) Active() (Provider, error) {
	r.mu.RLock()
	name := r.activeName
	r.mu.RUnlock()
	return r.Get(name)
}

// Get returns the named provider, instantiating it on first use.
// Instantiation failure marks the provider unavailable and the error is
// returned to every subsequent Get until Register replaces its factory.
func (r *Registry) Get(name string) (Provider, error) {
	r.mu.RLock()
	if p, ok := r.instances[name]; ok {
		r.mu.RUnlock()
		return p, nil
	}
	if err, ok := r.unavail[name]; ok {
		r.mu.RUnlock()
		return nil, err
	}
	factory, ok := r.factories[name]
	r.mu.RUnlock()
	if !ok {
		return nil, fmt.Errorf("llm: unknown provider %q", name)
	}

	p, err := factory(r.cfg)
	r.mu.Lock()
	defer r.mu.Unlock()
	if err != nil {
		r.unavail[name] = err
		return nil, err
	}
	r.instances[name] = p
	return p, nil
}

// ValidateAll instantiates (if needed) and validates every registered
// backend, returning a map of name to result. Used by the CLI's
// validate-config command.
func (r *Registry) ValidateAll() map[string]ValidationResult {
	r.mu.RLock()
	names := make([]string, 0, len(r.factories))
	for name := range r.factories {
		names = append(names, name)
	}
	r.mu.RUnlock()

	out := make(map[string]ValidationResult, len(names))
	for _, name := range names {
		p, err := r.Get(name)
		if err != nil {
			out[name] = ValidationResult{OK: false, Errors: []string{err.Error()}}
			continue
		}
		out[name] = p.ValidateConfig()
	}
	return out
}
