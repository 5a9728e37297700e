package rag

import (
	"context"
	"fmt"
	"strings"

	"go.uber.org/zap"

	"github.com/BaSui01/memflow/llm"
	"github.com/BaSui01/memflow/types"
)

// Analyzer classifies queries so downstream stages can tune themselves.
// Classification is advisory: any failure degrades to the default analysis
// and the search continues.
type Analyzer struct {
	provider  llm.Provider
	recoverer *llm.Recoverer
	logger    *zap.Logger
}

// NewAnalyzer creates an Analyzer.
func NewAnalyzer(provider llm.Provider, logger *zap.Logger) *Analyzer {
	if logger == nil {
		logger = zap.NewNop()
	}
	logger = logger.With(zap.String("component", "query_analyzer"))
	return &Analyzer{
		provider:  provider,
		recoverer: llm.NewRecoverer(logger),
		logger:    logger,
	}
}

type analysisResponse struct {
	Intent      string   `json:"intent"`
	Complexity  string   `json:"complexity"`
	Scope       string   `json:"scope"`
	Domain      string   `json:"domain"`
	Strategy    string   `json:"strategy"`
	KeyConcepts []string `json:"key_concepts"`
}

// Analyze classifies a query. It never returns an error: model failures
// and malformed output both fall back to the default analysis.
func (a *Analyzer) Analyze(ctx context.Context, query string) types.QueryAnalysis {
	raw, err := a.provider.Complete(ctx, fmt.Sprintf(analyzePrompt, query))
	if err != nil {
		a.logger.Warn("query analysis call failed, using default",
			zap.String("query", truncate(query, 80)),
			zap.Error(err))
		return types.DefaultQueryAnalysis(query)
	}

	var resp analysisResponse
	strategy, err := a.recoverer.Unmarshal(raw, &resp,
		"intent", "complexity", "scope", "domain", "strategy", "key_concepts")
	if err != nil {
		a.logger.Warn("query analysis output unparseable, using default",
			zap.String("query", truncate(query, 80)))
		return types.DefaultQueryAnalysis(query)
	}
	a.logger.Debug("query analyzed",
		zap.String("recovery", string(strategy)),
		zap.String("intent", resp.Intent),
		zap.String("complexity", resp.Complexity))

	return a.normalize(query, resp)
}

// normalize maps free-text labels onto the known enums, falling back per
// field so one bad label does not discard the rest of the analysis.
func (a *Analyzer) normalize(query string, resp analysisResponse) types.QueryAnalysis {
	out := types.DefaultQueryAnalysis(query)

	switch types.QueryIntent(strings.ToLower(resp.Intent)) {
	case types.IntentInformational, types.IntentFactCheck, types.IntentExploratory,
		types.IntentComparative, types.IntentProcedural:
		out.Intent = types.QueryIntent(strings.ToLower(resp.Intent))
	}
	switch types.QueryComplexity(strings.ToLower(resp.Complexity)) {
	case types.ComplexitySimple, types.ComplexityMedium, types.ComplexityComplex:
		out.Complexity = types.QueryComplexity(strings.ToLower(resp.Complexity))
	}
	switch types.QueryScope(strings.ToLower(resp.Scope)) {
	case types.ScopeNarrow, types.ScopeMedium, types.ScopeBroad:
		out.Scope = types.QueryScope(strings.ToLower(resp.Scope))
	}
	switch types.QueryDomain(strings.ToLower(resp.Domain)) {
	case types.DomainGeneral, types.DomainTechnical, types.DomainAcademic, types.DomainNews:
		out.Domain = types.QueryDomain(strings.ToLower(resp.Domain))
	}
	switch types.SearchStrategy(strings.ToLower(resp.Strategy)) {
	case types.StrategyPrecision, types.StrategyComprehensive, types.StrategyExploratory:
		out.Strategy = types.SearchStrategy(strings.ToLower(resp.Strategy))
	}
	concepts := make([]string, 0, len(resp.KeyConcepts))
	for _, c := range resp.KeyConcepts {
		if c = strings.TrimSpace(c); c != "" {
			concepts = append(concepts, c)
		}
	}
	if len(concepts) > 0 {
		out.KeyConcepts = concepts
	}
	return out
}

func truncate(s string, max int) string {
	if len(s) <= max {
		return s
	}
	runes := []rune(s)
	if len(runes) <= max {
		return s
	}
	return string(runes[:max]) + "..."
}
