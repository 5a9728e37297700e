package rag

import (
	"go.uber.org/zap"

	"github.com/BaSui01/memflow/types"
)

// Planner derives chunking and retrieval parameters from the query
// analysis and the corpus size. It is pure computation: no collaborators,
// no failure modes.
type Planner struct {
	logger *zap.Logger
}

// NewPlanner creates a Planner.
func NewPlanner(logger *zap.Logger) *Planner {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Planner{logger: logger.With(zap.String("component", "param_planner"))}
}

// PlanChunking picks the chunking configuration for a query.
func (p *Planner) PlanChunking(analysis types.QueryAnalysis) types.ChunkConfig {
	cfg := types.ChunkConfig{
		Size:       1000,
		Overlap:    200,
		Separators: append([]string(nil), DefaultSeparators...),
	}

	switch analysis.Intent {
	case types.IntentFactCheck:
		// Small precise chunks for verification.
		cfg.Size = 500
		cfg.Overlap = 100
	case types.IntentExploratory:
		// Large chunks keep surrounding context together.
		cfg.Size = 1500
		cfg.Overlap = 300
	}

	if analysis.Complexity == types.ComplexityComplex {
		cfg.Overlap = cfg.Overlap * 3 / 2
		if cfg.Overlap > cfg.Size/2 {
			cfg.Overlap = cfg.Size / 2
		}
	}

	switch analysis.Domain {
	case types.DomainTechnical:
		// Split on code fences before anything else so code blocks stay whole.
		cfg.Separators = append([]string{"```"}, cfg.Separators...)
	case types.DomainAcademic:
		cfg.Separators = insertBeforeLast(cfg.Separators, "．")
	}

	p.logger.Debug("chunking planned",
		zap.Int("size", cfg.Size),
		zap.Int("overlap", cfg.Overlap),
		zap.String("intent", string(analysis.Intent)))
	return cfg
}

// PlanRetrieval picks k, fetch_k, and the MMR diversity factor for a
// query. corpusSize is the number of indexed chunks; small corpora clamp
// the parameters so retrieval never asks for more than exists.
func (p *Planner) PlanRetrieval(analysis types.QueryAnalysis, corpusSize int) types.RetrievalConfig {
	cfg := types.RetrievalConfig{K: 6, FetchK: 20, LambdaMult: 0.5}

	switch analysis.Intent {
	case types.IntentFactCheck:
		cfg = types.RetrievalConfig{K: 3, FetchK: 10, LambdaMult: 0.8}
	case types.IntentExploratory:
		cfg = types.RetrievalConfig{K: 10, FetchK: 50, LambdaMult: 0.2}
	case types.IntentComparative:
		cfg = types.RetrievalConfig{K: 8, FetchK: 30, LambdaMult: 0.4}
	}

	switch analysis.Complexity {
	case types.ComplexityComplex:
		cfg.FetchK *= 2
		if cfg.FetchK > 100 {
			cfg.FetchK = 100
		}
		cfg.K += 2
		if cfg.K > 15 {
			cfg.K = 15
		}
	case types.ComplexitySimple:
		cfg.FetchK /= 2
		if cfg.FetchK < 5 {
			cfg.FetchK = 5
		}
		cfg.K--
		if cfg.K < 3 {
			cfg.K = 3
		}
	}

	switch analysis.Strategy {
	case types.StrategyPrecision:
		cfg.LambdaMult += 0.2
		if cfg.LambdaMult > 0.9 {
			cfg.LambdaMult = 0.9
		}
	case types.StrategyExploratory:
		cfg.LambdaMult -= 0.2
		if cfg.LambdaMult < 0.1 {
			cfg.LambdaMult = 0.1
		}
	}

	if corpusSize > 0 && corpusSize < 50 {
		if max := corpusSize/2 + 1; cfg.K > max {
			cfg.K = max
		}
		if cfg.FetchK > corpusSize {
			cfg.FetchK = corpusSize
		}
		if cfg.FetchK < cfg.K {
			cfg.FetchK = cfg.K
		}
	}

	p.logger.Debug("retrieval planned",
		zap.Int("k", cfg.K),
		zap.Int("fetch_k", cfg.FetchK),
		zap.Float64("lambda_mult", cfg.LambdaMult),
		zap.Int("corpus_size", corpusSize))
	return cfg
}

// insertBeforeLast inserts sep just before the final catch-all separator.
func insertBeforeLast(seps []string, sep string) []string {
	if len(seps) == 0 {
		return []string{sep}
	}
	out := make([]string, 0, len(seps)+1)
	out = append(out, seps[:len(seps)-1]...)
	out = append(out, sep, seps[len(seps)-1])
	return out
}
