package rag

import (
	"context"
	"fmt"
	"strings"

	"go.uber.org/zap"

	"github.com/BaSui01/memflow/llm"
	"github.com/BaSui01/memflow/types"
)

// Tier caps for the keyword hierarchy.
const (
	maxPrimaryKeywords   = 4
	maxSecondaryKeywords = 8
	maxContextKeywords   = 5
	maxNegativeKeywords  = 3
	maxFlatKeywords      = 20
	maxSearchQueries     = 15
)

// KeywordGenerator produces the keyword hierarchy and the expanded search
// query list for a query. Unlike analysis, keyword generation is load
// bearing: without keywords there is nothing to search, so failure here is
// fatal to the pipeline run.
type KeywordGenerator struct {
	provider  llm.Provider
	recoverer *llm.Recoverer
	logger    *zap.Logger
}

// NewKeywordGenerator creates a KeywordGenerator.
func NewKeywordGenerator(provider llm.Provider, logger *zap.Logger) *KeywordGenerator {
	if logger == nil {
		logger = zap.NewNop()
	}
	logger = logger.With(zap.String("component", "keyword_generator"))
	return &KeywordGenerator{
		provider:  provider,
		recoverer: llm.NewRecoverer(logger),
		logger:    logger,
	}
}

type keywordResponse struct {
	Primary    []string `json:"primary_keywords"`
	Secondary  []string `json:"secondary_keywords"`
	Context    []string `json:"context_keywords"`
	Negative   []string `json:"negative_keywords"`
	Confidence float64  `json:"confidence"`
}

// Generate builds the keyword hierarchy for a query. The returned error
// carries the KEYWORD_GENERATION_FAILED code when neither the model call
// nor output recovery produced usable keywords.
func (g *KeywordGenerator) Generate(ctx context.Context, query string, analysis types.QueryAnalysis) (types.KeywordHierarchy, error) {
	prompt := fmt.Sprintf(keywordsPrompt, query, analysis.Intent, strings.Join(analysis.KeyConcepts, ", "))
	raw, err := g.provider.Complete(ctx, prompt)
	if err != nil {
		return types.KeywordHierarchy{}, types.NewError(types.ErrKeywordGeneration,
			"keyword generation call failed").WithCause(err)
	}

	var resp keywordResponse
	strategy, err := g.recoverer.Unmarshal(raw, &resp,
		"primary_keywords", "secondary_keywords", "context_keywords", "negative_keywords", "confidence")
	if err != nil {
		return types.KeywordHierarchy{}, types.NewError(types.ErrKeywordGeneration,
			"keyword generation output unparseable").WithCause(err)
	}

	h := normalizeHierarchy(resp)
	if len(h.Primary) == 0 {
		return types.KeywordHierarchy{}, types.NewError(types.ErrKeywordGeneration,
			"keyword generation produced no primary keywords")
	}
	g.logger.Info("keywords generated",
		zap.String("recovery", string(strategy)),
		zap.Int("primary", len(h.Primary)),
		zap.Int("secondary", len(h.Secondary)),
		zap.Float64("confidence", h.Confidence))
	return h, nil
}

// normalizeHierarchy enforces tier caps, strips blanks, keeps tiers
// disjoint (earlier tiers win), and clamps confidence to [0, 1].
func normalizeHierarchy(resp keywordResponse) types.KeywordHierarchy {
	seen := make(map[string]struct{})
	clean := func(tier []string, limit int) []string {
		out := make([]string, 0, limit)
		for _, kw := range tier {
			kw = strings.TrimSpace(kw)
			if kw == "" || len(out) >= limit {
				continue
			}
			key := strings.ToLower(kw)
			if _, ok := seen[key]; ok {
				continue
			}
			seen[key] = struct{}{}
			out = append(out, kw)
		}
		return out
	}

	h := types.KeywordHierarchy{
		Primary:    clean(resp.Primary, maxPrimaryKeywords),
		Secondary:  clean(resp.Secondary, maxSecondaryKeywords),
		Context:    clean(resp.Context, maxContextKeywords),
		Negative:   clean(resp.Negative, maxNegativeKeywords),
		Confidence: resp.Confidence,
	}
	if h.Confidence < 0 {
		h.Confidence = 0
	}
	if h.Confidence > 1 {
		h.Confidence = 1
	}
	return h
}

// GenerateQueries expands the original query into multiple search queries
// approaching it from different angles. This stage never fails: when the
// model call or parsing fails it falls back to rule-based variations.
func (g *KeywordGenerator) GenerateQueries(ctx context.Context, query string, h types.KeywordHierarchy) []string {
	prompt := fmt.Sprintf(perspectivesPrompt, query, strings.Join(h.Flatten(maxFlatKeywords), ", "))
	raw, err := g.provider.Complete(ctx, prompt)
	if err == nil {
		var queries []string
		if _, rerr := g.recoverer.Unmarshal(raw, &queries); rerr == nil {
			if out := dedupeQueries(query, queries); len(out) > 0 {
				return out
			}
		}
	}
	g.logger.Warn("query expansion failed, using rule-based variations",
		zap.String("query", truncate(query, 80)))
	return fallbackQueries(query, h)
}

func dedupeQueries(original string, queries []string) []string {
	seen := map[string]struct{}{strings.ToLower(strings.TrimSpace(original)): {}}
	out := []string{original}
	for _, q := range queries {
		q = strings.TrimSpace(q)
		if q == "" || len(out) >= maxSearchQueries {
			continue
		}
		key := strings.ToLower(q)
		if _, ok := seen[key]; ok {
			continue
		}
		seen[key] = struct{}{}
		out = append(out, q)
	}
	return out
}

// fallbackQueries builds deterministic variations from the query and its
// primary keywords.
func fallbackQueries(query string, h types.KeywordHierarchy) []string {
	variations := []string{
		query,
		fmt.Sprintf("What is %s?", query),
		fmt.Sprintf("How does %s work?", query),
		fmt.Sprintf("%s overview", query),
		fmt.Sprintf("%s examples", query),
	}
	if len(h.Primary) > 0 {
		variations = append(variations, strings.Join(h.Primary, " "))
	}
	return dedupeQueries(query, variations)
}
