package rag

import (
	"context"
	"sort"
	"sync"

	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"

	"github.com/BaSui01/memflow/types"
)

// RetrieverConfig tunes result fusion across the expanded query set.
type RetrieverConfig struct {
	SimilarityFloor float64 `json:"similarity_floor" yaml:"similarity_floor"`
	MaxResults      int     `json:"max_results" yaml:"max_results"`
	MaxConcurrency  int     `json:"max_concurrency" yaml:"max_concurrency"`
}

// DefaultRetrieverConfig returns the production retriever settings.
func DefaultRetrieverConfig() RetrieverConfig {
	return RetrieverConfig{
		SimilarityFloor: 0.3,
		MaxResults:      20,
		MaxConcurrency:  4,
	}
}

// Retriever runs every expanded query against the index concurrently and
// fuses the per-query hits into one ranked, deduplicated result set.
type Retriever struct {
	cfg    RetrieverConfig
	logger *zap.Logger
}

// NewRetriever creates a Retriever.
func NewRetriever(cfg RetrieverConfig, logger *zap.Logger) *Retriever {
	def := DefaultRetrieverConfig()
	if cfg.SimilarityFloor <= 0 {
		cfg.SimilarityFloor = def.SimilarityFloor
	}
	if cfg.MaxResults <= 0 {
		cfg.MaxResults = def.MaxResults
	}
	if cfg.MaxConcurrency <= 0 {
		cfg.MaxConcurrency = def.MaxConcurrency
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Retriever{cfg: cfg, logger: logger.With(zap.String("component", "retriever"))}
}

// Retrieve fans the queries out over the index with bounded concurrency
// and fuses the hits: sort by similarity descending, drop content
// fingerprint duplicates, drop scored hits below the similarity floor,
// cap the total. Unscored hits bypass the floor since their scores carry
// only ordering information. Individual query failures are tolerated as
// long as at least one query succeeds.
func (r *Retriever) Retrieve(ctx context.Context, index *Index, queries []string, cfg types.RetrievalConfig) ([]types.ScoredChunk, error) {
	if index.Size() == 0 || len(queries) == 0 {
		return nil, nil
	}

	var (
		mu      sync.Mutex
		hits    []types.ScoredChunk
		lastErr error
		failed  int
	)
	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(r.cfg.MaxConcurrency)
	for _, query := range queries {
		g.Go(func() error {
			found, err := index.Search(gctx, query, cfg)
			mu.Lock()
			defer mu.Unlock()
			if err != nil {
				failed++
				lastErr = err
				r.logger.Warn("query retrieval failed",
					zap.String("query", truncate(query, 80)),
					zap.Error(err))
				return nil
			}
			hits = append(hits, found...)
			return nil
		})
	}
	_ = g.Wait()

	if failed == len(queries) {
		return nil, lastErr
	}

	fused := r.fuse(hits)
	r.logger.Info("retrieval fused",
		zap.Int("queries", len(queries)),
		zap.Int("raw_hits", len(hits)),
		zap.Int("fused", len(fused)),
		zap.Int("failed_queries", failed))
	return fused, nil
}

func (r *Retriever) fuse(hits []types.ScoredChunk) []types.ScoredChunk {
	sort.SliceStable(hits, func(a, b int) bool {
		return hits[a].Similarity > hits[b].Similarity
	})
	seen := make(map[string]struct{}, len(hits))
	out := make([]types.ScoredChunk, 0, r.cfg.MaxResults)
	for _, hit := range hits {
		if len(out) >= r.cfg.MaxResults {
			break
		}
		if !hit.Unscored && hit.Similarity < r.cfg.SimilarityFloor {
			continue
		}
		fp := Fingerprint(hit.Content)
		if _, dup := seen[fp]; dup {
			continue
		}
		seen[fp] = struct{}{}
		out = append(out, hit)
	}
	return out
}
