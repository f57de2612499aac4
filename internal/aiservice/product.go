package aiservice

import (
	"context"
	"encoding/json"
	"time"

	"github.com/ignite/prospectai/internal/errkind"
	"github.com/ignite/prospectai/internal/llm"
)

// PricingTier is one tier of a product's pricing model.
type PricingTier struct {
	Name  string  `json:"name"`
	Price float64 `json:"price"`
	Unit  string  `json:"unit"`
}

// ProductPricing is the product's pricing shape.
type ProductPricing struct {
	Model string        `json:"model"`
	Tiers []PricingTier `json:"tiers"`
}

// MarketAnalysis situates the product relative to its market.
type MarketAnalysis struct {
	TargetMarket string   `json:"target_market"`
	Competitors  []string `json:"competitors"`
}

// BusinessMetrics is best-effort company-level context inferred from the
// product page.
type BusinessMetrics struct {
	FundingStage string `json:"funding_stage,omitempty"`
	TeamSize     string `json:"team_size,omitempty"`
	FoundedYear  string `json:"founded_year,omitempty"`
}

// ProductAnalysis is the structured result of analyze_product.
type ProductAnalysis struct {
	Name            string          `json:"name"`
	Category        string          `json:"category"`
	Description     string          `json:"description"`
	Features        []string        `json:"features"`
	Pricing         ProductPricing  `json:"pricing"`
	MarketAnalysis  MarketAnalysis  `json:"market_analysis"`
	BusinessMetrics BusinessMetrics `json:"business_metrics"`
}

// ProductEnvelope is the uniform envelope returned by AnalyzeProduct.
type ProductEnvelope struct {
	Success         bool
	Data            *ProductAnalysis
	ConfidenceScore float64
	Cached          bool
	ErrorKind       errkind.Kind
	ErrorMessage    string
}

const analyzeProductOp = "analyze_product"

// maxFeatures caps the features list regardless of how many the model
// returns.
const maxFeatures = 5

// AnalyzeProduct produces a structured product/business analysis from a
// company's product-page text in a single combined LLM call, with the
// same JSON-repair policy as ParseProfile.
func (s *Service) AnalyzeProduct(ctx context.Context, text string) ProductEnvelope {
	start := time.Now()
	metrics := s.metricsFor(analyzeProductOp)

	key := opKey(analyzeProductOp, []byte(text))
	_, cached := s.cache.Get(ctx, key)

	var repaired bool
	raw, err := s.cache.GetOrCompute(ctx, key, func(ctx context.Context) ([]byte, error) {
		messages := []llm.Message{
			{Role: llm.RoleSystem, Content: "Analyze this product/company page and return JSON with fields: name, category, description, features (array, at most 5 items), pricing{model, tiers[]}, market_analysis{target_market, competitors[]}, business_metrics{funding_stage, team_size, founded_year}."},
			{Role: llm.RoleUser, Content: text},
		}
		var data ProductAnalysis
		r, jsonErr := s.completeJSON(ctx, messages, &data)
		repaired = r
		if jsonErr != nil {
			return nil, jsonErr
		}
		if len(data.Features) > maxFeatures {
			data.Features = data.Features[:maxFeatures]
		}
		return json.Marshal(data)
	}, s.cfg.Cache.DefaultTTL())
	if repaired {
		metrics.parseErrors.Add(1)
	}

	if err != nil {
		metrics.record(time.Since(start), false, false)
		return ProductEnvelope{Success: false, ErrorKind: errkind.As(err), ErrorMessage: err.Error()}
	}

	var data ProductAnalysis
	if jsonErr := json.Unmarshal(raw, &data); jsonErr != nil {
		metrics.record(time.Since(start), false, cached)
		return ProductEnvelope{Success: false, ErrorKind: errkind.ParseError, ErrorMessage: jsonErr.Error()}
	}

	confidence := 0.5
	if data.Name != "" && data.Category != "" {
		confidence = 0.8
	}

	metrics.record(time.Since(start), true, cached)
	return ProductEnvelope{Success: true, Data: &data, ConfidenceScore: confidence, Cached: cached}
}
