package rag

import (
	"context"
	"fmt"
	"regexp"
	"strconv"
	"strings"

	"go.uber.org/zap"

	"github.com/BaSui01/memflow/llm"
	"github.com/BaSui01/memflow/types"
)

// RefinerConfig tunes the final relevance pass.
type RefinerConfig struct {
	Enabled bool `json:"enabled" yaml:"enabled"`
	// TriggerThreshold is the candidate count above which refinement runs.
	TriggerThreshold int `json:"trigger_threshold" yaml:"trigger_threshold"`
	// MaxCandidates caps how many candidates go into the digest.
	MaxCandidates int `json:"max_candidates" yaml:"max_candidates"`
	// SnippetTokens caps each candidate's share of the digest.
	SnippetTokens int `json:"snippet_tokens" yaml:"snippet_tokens"`
}

// DefaultRefinerConfig returns the production refiner settings.
func DefaultRefinerConfig() RefinerConfig {
	return RefinerConfig{
		Enabled:          true,
		TriggerThreshold: 10,
		MaxCandidates:    20,
		SnippetTokens:    120,
	}
}

// Fallback sizes when refinement cannot produce a usable ranking.
const (
	refineUnusableTop    = 5
	refineUnavailableTop = 10
)

// Refiner asks the language model to pick the candidates that actually
// answer the question. It only runs on large candidate sets; small sets
// pass through untouched. Refinement can shrink and reorder the set but
// never invents documents.
type Refiner struct {
	cfg      RefinerConfig
	provider llm.Provider
	counter  llm.TokenCounter
	logger   *zap.Logger
}

// NewRefiner creates a Refiner.
func NewRefiner(cfg RefinerConfig, provider llm.Provider, counter llm.TokenCounter, logger *zap.Logger) *Refiner {
	def := DefaultRefinerConfig()
	if cfg.TriggerThreshold <= 0 {
		cfg.TriggerThreshold = def.TriggerThreshold
	}
	if cfg.MaxCandidates <= 0 {
		cfg.MaxCandidates = def.MaxCandidates
	}
	if cfg.SnippetTokens <= 0 {
		cfg.SnippetTokens = def.SnippetTokens
	}
	if counter == nil {
		counter = llm.NewTiktokenCounter("")
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Refiner{
		cfg:      cfg,
		provider: provider,
		counter:  counter,
		logger:   logger.With(zap.String("component", "relevance_refiner")),
	}
}

// Refine returns the candidates the model judged relevant, in the model's
// preference order. Degraded behavior: an unreachable model keeps the top
// ten by score; a ranking with no usable indices keeps the top five.
func (r *Refiner) Refine(ctx context.Context, query string, candidates []types.ScoredChunk) []types.ScoredChunk {
	if !r.cfg.Enabled || len(candidates) <= r.cfg.TriggerThreshold {
		return candidates
	}
	digestSet := candidates
	if len(digestSet) > r.cfg.MaxCandidates {
		digestSet = digestSet[:r.cfg.MaxCandidates]
	}

	raw, err := r.provider.Complete(ctx, fmt.Sprintf(refinePrompt, query, r.digest(digestSet)))
	if err != nil {
		r.logger.Warn("refinement call failed, keeping top candidates by score",
			zap.Error(err))
		return head(candidates, refineUnavailableTop)
	}

	order := parseRankedIndices(raw, len(digestSet))
	if len(order) == 0 {
		r.logger.Warn("refinement produced no usable ranking",
			zap.String("output", truncate(raw, 120)))
		return head(candidates, refineUnusableTop)
	}

	out := make([]types.ScoredChunk, 0, len(order))
	for _, idx := range order {
		out = append(out, digestSet[idx])
	}
	r.logger.Info("candidates refined",
		zap.Int("in", len(candidates)),
		zap.Int("out", len(out)))
	return out
}

// digest renders the candidates as a numbered list with token-bounded
// snippets.
func (r *Refiner) digest(candidates []types.ScoredChunk) string {
	var sb strings.Builder
	for i, c := range candidates {
		snippet := r.clipToTokens(c.Content)
		label := c.Source
		if c.Title != "" {
			label += ": " + c.Title
		}
		fmt.Fprintf(&sb, "%d. [%s] %s\n", i+1, label, snippet)
	}
	return sb.String()
}

// clipToTokens trims text to the configured snippet token budget.
func (r *Refiner) clipToTokens(text string) string {
	text = strings.Join(strings.Fields(text), " ")
	if r.counter.CountTokens(text) <= r.cfg.SnippetTokens {
		return text
	}
	runes := []rune(text)
	lo, hi := 0, len(runes)
	for lo < hi {
		mid := (lo + hi + 1) / 2
		if r.counter.CountTokens(string(runes[:mid])) <= r.cfg.SnippetTokens {
			lo = mid
		} else {
			hi = mid - 1
		}
	}
	return string(runes[:lo]) + "..."
}

var indexListRe = regexp.MustCompile(`\d+`)

// parseRankedIndices extracts 1-based indices from a comma-separated
// ranking, returning deduplicated 0-based indices in ranking order.
// Out-of-range numbers are ignored.
func parseRankedIndices(raw string, n int) []int {
	matches := indexListRe.FindAllString(raw, -1)
	seen := make(map[int]struct{}, len(matches))
	out := make([]int, 0, len(matches))
	for _, m := range matches {
		v, err := strconv.Atoi(m)
		if err != nil || v < 1 || v > n {
			continue
		}
		idx := v - 1
		if _, dup := seen[idx]; dup {
			continue
		}
		seen[idx] = struct{}{}
		out = append(out, idx)
	}
	return out
}

func head(chunks []types.ScoredChunk, n int) []types.ScoredChunk {
	if len(chunks) <= n {
		return chunks
	}
	return chunks[:n]
}
