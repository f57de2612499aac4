package llm

import (
	"context"
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/ignite/prospectai/internal/config"
)

type stubProvider struct{ name string }

func (s *stubProvider) Name() string                     { return s.name }
func (s *stubProvider) ValidateConfig() ValidationResult { return ValidationResult{OK: true} }
func (s *stubProvider) SafeConfig() map[string]string    { return map[string]string{"backend": s.name} }
func (s *stubProvider) ModelInfo() ModelInfo             { return ModelInfo{Models: []string{"stub-model"}} }
func (s *stubProvider) TestConnection(context.Context) ConnectionTest {
	return ConnectionTest{OK: true}
}
func (s *stubProvider) Complete(context.Context, CompletionRequest) (CompletionResponse, error) {
	return CompletionResponse{Success: true, Content: "{}"}, nil
}

func TestRegistry_ActiveSelectsConfiguredBackend(t *testing.T) {
	cfg := &config.Config{}
	cfg.LLM.Backend = "stub"
	r := NewRegistry(cfg)
	r.Register("stub", func(*config.Config) (Provider, error) { return &stubProvider{name: "stub"}, nil })

	p, err := r.Active()
	require.NoError(t, err)
	assert.Equal(t, "stub", p.Name())
}

func TestRegistry_GetInstantiatesOnce(t *testing.T) {
	cfg := &config.Config{}
	calls := 0
	r := NewRegistry(cfg)
	r.Register("counted", func(*config.Config) (Provider, error) {
		calls++
		return &stubProvider{name: "counted"}, nil
	})

	_, err := r.Get("counted")
	require.NoError(t, err)
	_, err = r.Get("counted")
	require.NoError(t, err)
	assert.Equal(t, 1, calls, "provider must be instantiated lazily and only once")
}

func TestRegistry_InstantiationFailureMarksUnavailable(t *testing.T) {
	cfg := &config.Config{}
	wantErr := errors.New("missing credentials")
	r := NewRegistry(cfg)
	r.Register("broken", func(*config.Config) (Provider, error) { return nil, wantErr })

	_, err := r.Get("broken")
	require.ErrorIs(t, err, wantErr)

	// Subsequent Get calls surface the same unavailability without
	// re-invoking the factory.
	_, err2 := r.Get("broken")
	require.ErrorIs(t, err2, wantErr)
}

func TestRegistry_SetActiveSwitchesSubsequentRequests(t *testing.T) {
	cfg := &config.Config{}
	cfg.LLM.Backend = "a"
	r := NewRegistry(cfg)
	r.Register("a", func(*config.Config) (Provider, error) { return &stubProvider{name: "a"}, nil })
	r.Register("b", func(*config.Config) (Provider, error) { return &stubProvider{name: "b"}, nil })

	p1, err := r.Active()
	require.NoError(t, err)
	assert.Equal(t, "a", p1.Name())

	require.NoError(t, r.SetActive("b"))
	p2, err := r.Active()
	require.NoError(t, err)
	assert.Equal(t, "b", p2.Name())

	// The provider value p1 already obtained is unaffected by the switch.
	assert.Equal(t, "a", p1.Name())
}

func TestRegistry_SetActiveUnknownNameErrors(t *testing.T) {
	cfg := &config.Config{}
	r := NewRegistry(cfg)
	err := r.SetActive("does-not-exist")
	assert.Error(t, err)
}

func TestRegistry_ValidateAllCoversBuiltinBackends(t *testing.T) {
	cfg := &config.Config{}
	r := NewRegistry(cfg)
	results := r.ValidateAll()

	for _, name := range []string{"openai", "anthropic", "bedrock"} {
		_, ok := results[name]
		require.True(t, ok, "expected a validation result for %q", name)
	}
	// openai and anthropic require an explicit API key in config; bedrock
	// falls back to the ambient AWS credential chain, so only the former
	// two are guaranteed unavailable here.
	assert.False(t, results["openai"].OK)
	assert.False(t, results["anthropic"].OK)
}

func TestNewOpenAIProvider_RequiresAPIKey(t *testing.T) {
	cfg := &config.Config{}
	_, err := NewOpenAIProvider(cfg)
	assert.Error(t, err)
}

func TestNewAnthropicProvider_RequiresAPIKey(t *testing.T) {
	cfg := &config.Config{}
	_, err := NewAnthropicProvider(cfg)
	assert.Error(t, err)
}

func TestNewOpenAIProvider_SafeConfigRedactsKey(t *testing.T) {
	cfg := &config.Config{}
	cfg.LLM.OpenAIAPIKey = "sk-super-secret"
	p, err := NewOpenAIProvider(cfg)
	require.NoError(t, err)
	safe := p.SafeConfig()
	assert.NotContains(t, safe["api_key"], "super-secret")
}
