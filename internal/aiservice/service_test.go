package aiservice

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/ignite/prospectai/internal/cache"
	"github.com/ignite/prospectai/internal/config"
	"github.com/ignite/prospectai/internal/domain"
	"github.com/ignite/prospectai/internal/llm"
)

// fakeProvider is a scriptable llm.Provider for tests: each call to
// Complete pops the next response off responses, so a test can simulate
// "malformed JSON then valid JSON" and exercise the repair policy.
type fakeProvider struct {
	responses []llm.CompletionResponse
	calls     int
}

func (f *fakeProvider) Name() string                         { return "fake" }
func (f *fakeProvider) ValidateConfig() llm.ValidationResult { return llm.ValidationResult{OK: true} }
func (f *fakeProvider) SafeConfig() map[string]string        { return nil }
func (f *fakeProvider) ModelInfo() llm.ModelInfo             { return llm.ModelInfo{} }
func (f *fakeProvider) TestConnection(ctx context.Context) llm.ConnectionTest {
	return llm.ConnectionTest{OK: true}
}

func (f *fakeProvider) Complete(ctx context.Context, req llm.CompletionRequest) (llm.CompletionResponse, error) {
	if f.calls >= len(f.responses) {
		return llm.CompletionResponse{Success: true, Content: "{}"}, nil
	}
	resp := f.responses[f.calls]
	f.calls++
	return resp, nil
}

func newTestService(t *testing.T, provider llm.Provider) (*Service, *fakeProvider) {
	t.Helper()
	cfg := &config.Config{}
	cfg.Cache.DefaultTTLSeconds = 3600
	cfg.Email.MaxBodyWords = 250
	cfg.Email.PersonalizationFloor = 0.35
	cfg.LLM.Backend = "fake"

	registry := llm.NewRegistry(cfg)
	fp, ok := provider.(*fakeProvider)
	require.True(t, ok)
	registry.Register("fake", func(*config.Config) (llm.Provider, error) { return fp, nil })

	backend, err := cache.NewLocalBackend(t.TempDir())
	require.NoError(t, err)
	c, err := cache.New(100, backend)
	require.NoError(t, err)

	return New(registry, c, cfg), fp
}

func TestParseProfile_Success(t *testing.T) {
	fp := &fakeProvider{responses: []llm.CompletionResponse{
		{Success: true, Content: `{"name":"Jane Doe","current_role":"VP Eng","skills":["go","rust"],"summary":"builds things"}`},
	}}
	svc, _ := newTestService(t, fp)

	env := svc.ParseProfile(context.Background(), "<html>profile</html>", nil)
	require.True(t, env.Success)
	assert.Equal(t, "Jane Doe", env.Data.Name)
	assert.Equal(t, "VP Eng", env.Data.CurrentRole)
	assert.False(t, env.Cached)
	assert.Greater(t, env.ConfidenceScore, 0.0)
}

func TestParseProfile_FallbackOnMissingFields(t *testing.T) {
	fp := &fakeProvider{responses: []llm.CompletionResponse{
		{Success: true, Content: `{"summary":"no name or role here"}`},
	}}
	svc, _ := newTestService(t, fp)

	env := svc.ParseProfile(context.Background(), "<html>x</html>", &ProfileFallback{Name: "Fallback Name"})
	require.True(t, env.Success)
	assert.Equal(t, "Fallback Name", env.Data.Name)
	assert.Equal(t, "Unknown Role", env.Data.CurrentRole)
}

func TestParseProfile_RepairsMalformedJSONThenCaches(t *testing.T) {
	fp := &fakeProvider{responses: []llm.CompletionResponse{
		{Success: true, Content: "not json at all"},
		{Success: true, Content: `{"name":"Repaired","current_role":"Engineer"}`},
	}}
	svc, _ := newTestService(t, fp)

	first := svc.ParseProfile(context.Background(), "<html>repair-me</html>", nil)
	require.True(t, first.Success)
	assert.Equal(t, "Repaired", first.Data.Name)
	assert.False(t, first.Cached)
	assert.Equal(t, 2, fp.calls)
	assert.Equal(t, int64(1), svc.Metrics()[parseProfileOp].ParseErrors, "a repaired parse still counts one ParseError")

	second := svc.ParseProfile(context.Background(), "<html>repair-me</html>", nil)
	require.True(t, second.Success)
	assert.True(t, second.Cached)
	assert.Equal(t, 2, fp.calls, "cached result must not re-invoke the provider")
	assert.Equal(t, int64(1), svc.Metrics()[parseProfileOp].ParseErrors, "a cached hit must not re-count the repair")
}

func TestParseProfile_RepairFailsTwiceIsParseError(t *testing.T) {
	fp := &fakeProvider{responses: []llm.CompletionResponse{
		{Success: true, Content: "still not json"},
		{Success: true, Content: "also not json"},
	}}
	svc, _ := newTestService(t, fp)

	env := svc.ParseProfile(context.Background(), "<html>double-bad</html>", nil)
	assert.False(t, env.Success)
}

func TestAnalyzeProduct_CapsFeaturesAtFive(t *testing.T) {
	fp := &fakeProvider{responses: []llm.CompletionResponse{
		{Success: true, Content: `{"name":"Acme","category":"SaaS","features":["a","b","c","d","e","f","g"]}`},
	}}
	svc, _ := newTestService(t, fp)

	env := svc.AnalyzeProduct(context.Background(), "some product text")
	require.True(t, env.Success)
	assert.Len(t, env.Data.Features, maxFeatures)
}

func TestGenerateEmail_LowPersonalizationSoftFailure(t *testing.T) {
	fp := &fakeProvider{responses: []llm.CompletionResponse{
		{Success: true, Content: `{"opening":"Hello there friend.","closing":"Hope to connect soon."}`},
	}}
	svc, _ := newTestService(t, fp)

	prospect := domain.Prospect{Name: "Jane", Role: "Founder", Company: "Zzyzx Widgets"}
	env := svc.GenerateEmail(context.Background(), prospect, TemplateColdOutreach, nil, nil, nil, nil)

	require.NotNil(t, env.Data)
	assert.Equal(t, "LowPersonalization", string(env.ErrorKind))
	assert.NotEmpty(t, env.Data.Body)
}

func TestGenerateEmail_PersonalizedMentionsCompanyOrRole(t *testing.T) {
	fp := &fakeProvider{responses: []llm.CompletionResponse{
		{Success: true, Content: `{"opening":"I saw what Zzyzx Widgets is building.","closing":"Would love to chat."}`},
	}}
	svc, _ := newTestService(t, fp)

	prospect := domain.Prospect{Name: "Jane", Role: "Founder", Company: "Zzyzx Widgets"}
	env := svc.GenerateEmail(context.Background(), prospect, TemplateColdOutreach, nil, nil, nil, nil)

	require.True(t, env.Success)
	assert.Empty(t, env.ErrorKind)
	assert.Contains(t, env.Data.Body, "Zzyzx")
}

func TestMetrics_TracksCountsAcrossOperations(t *testing.T) {
	fp := &fakeProvider{responses: []llm.CompletionResponse{
		{Success: true, Content: `{"name":"N","current_role":"R"}`},
	}}
	svc, _ := newTestService(t, fp)

	svc.ParseProfile(context.Background(), "<html>metrics</html>", nil)
	snap := svc.Metrics()[parseProfileOp]
	assert.Equal(t, int64(1), snap.Count)
	assert.Equal(t, 1.0, snap.SuccessRate)
}
