package aiservice

import (
	"context"
	"encoding/json"
	"time"

	"github.com/ignite/prospectai/internal/errkind"
	"github.com/ignite/prospectai/internal/llm"
)

// ProfileData is the structured result of parse_profile.
type ProfileData struct {
	Name        string   `json:"name"`
	CurrentRole string   `json:"current_role"`
	Experience  []string `json:"experience"`
	Skills      []string `json:"skills"`
	Summary     string   `json:"summary"`
}

// ProfileFallback overlays missing fields when the LLM omits them.
type ProfileFallback struct {
	Name        string
	CurrentRole string
}

// ProfileEnvelope is the uniform envelope returned by ParseProfile.
type ProfileEnvelope struct {
	Success         bool
	Data            *ProfileData
	ConfidenceScore float64
	Cached          bool
	ErrorKind       errkind.Kind
	ErrorMessage    string
}

const parseProfileOp = "parse_profile"

// ParseProfile produces a structured profile from raw profile-page
// HTML. The cache key is a hash of the HTML, so concurrent identical
// calls coalesce via Cache.GetOrCompute.
func (s *Service) ParseProfile(ctx context.Context, rawHTML string, fallback *ProfileFallback) ProfileEnvelope {
	start := time.Now()
	metrics := s.metricsFor(parseProfileOp)

	key := opKey(parseProfileOp, []byte(rawHTML))
	_, cached := s.cache.Get(ctx, key)
	var repaired bool
	raw, err := s.cache.GetOrCompute(ctx, key, func(ctx context.Context) ([]byte, error) {
		data, r, computeErr := s.computeProfile(ctx, rawHTML)
		repaired = r
		if computeErr != nil {
			return nil, computeErr
		}
		return json.Marshal(data)
	}, s.cfg.Cache.DefaultTTL())
	if repaired {
		metrics.parseErrors.Add(1)
	}

	if err != nil {
		metrics.record(time.Since(start), false, false)
		return ProfileEnvelope{Success: false, ErrorKind: errkind.As(err), ErrorMessage: err.Error()}
	}

	var data ProfileData
	if jsonErr := json.Unmarshal(raw, &data); jsonErr != nil {
		metrics.record(time.Since(start), false, cached)
		return ProfileEnvelope{Success: false, ErrorKind: errkind.ParseError, ErrorMessage: jsonErr.Error()}
	}

	data = applyProfileFallback(data, fallback)
	confidence := profileConfidence(data)

	metrics.record(time.Since(start), true, cached)
	return ProfileEnvelope{Success: true, Data: &data, ConfidenceScore: confidence, Cached: cached}
}

// computeProfile is the Cache.Factory: it runs the LLM call and JSON
// repair policy and returns the parsed data as the model produced it.
// Fallback/substitution is not applied here; ParseProfile applies it to
// each result after the cache read, so the cached value is the raw
// parsed profile.
func (s *Service) computeProfile(ctx context.Context, rawHTML string) (ProfileData, bool, error) {
	messages := []llm.Message{
		{Role: llm.RoleSystem, Content: "Extract a professional profile as JSON with fields: name, current_role, experience (array of strings), skills (array of strings), summary."},
		{Role: llm.RoleUser, Content: rawHTML},
	}

	var data ProfileData
	repaired, err := s.completeJSON(ctx, messages, &data)
	if err != nil {
		return ProfileData{}, repaired, err
	}
	return data, repaired, nil
}

// applyProfileFallback fills missing required fields (name, current_role)
// from fallback, then from hardcoded "Unknown" substitutes.
func applyProfileFallback(data ProfileData, fallback *ProfileFallback) ProfileData {
	if data.Name == "" && fallback != nil && fallback.Name != "" {
		data.Name = fallback.Name
	}
	if data.CurrentRole == "" && fallback != nil && fallback.CurrentRole != "" {
		data.CurrentRole = fallback.CurrentRole
	}
	if data.Name == "" {
		data.Name = "Unknown Profile"
	}
	if data.CurrentRole == "" {
		data.CurrentRole = "Unknown Role"
	}
	return data
}

func profileConfidence(data ProfileData) float64 {
	score := 0.4
	if data.Name != "Unknown Profile" {
		score += 0.2
	}
	if data.CurrentRole != "Unknown Role" {
		score += 0.2
	}
	if len(data.Skills) > 0 {
		score += 0.1
	}
	if data.Summary != "" {
		score += 0.1
	}
	if score > 1 {
		score = 1
	}
	return score
}
