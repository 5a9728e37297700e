package rag

import (
	"context"
	"errors"
	"math"
	"sort"
	"strings"

	"go.uber.org/zap"

	"github.com/BaSui01/memflow/llm"
	"github.com/BaSui01/memflow/types"
)

// Embedder vectorizes a batch of texts. llm.Provider satisfies it.
type Embedder interface {
	Embed(ctx context.Context, texts []string) ([][]float64, error)
}

const embedBatchSize = 64

type indexEntry struct {
	content  string
	source   string
	title    string
	url      string
	metadata map[string]string
	vector   []float64
	terms    map[string]struct{}
}

// Index is an in-memory vector index built fresh for each search. When the
// embedder is unavailable at build time the index degrades to lexical
// term-overlap scoring and marks every hit as unscored.
type Index struct {
	entries  []indexEntry
	unscored bool
	embedder Embedder
	logger   *zap.Logger
}

// BuildIndex splits the documents and embeds the chunks. An unavailable
// embedder is not fatal: the index falls back to lexical scoring. Any
// other embedding failure aborts the build.
func BuildIndex(ctx context.Context, docs []types.RawDocument, splitter *Splitter, embedder Embedder, logger *zap.Logger) (*Index, error) {
	if logger == nil {
		logger = zap.NewNop()
	}
	logger = logger.With(zap.String("component", "vector_index"))

	ix := &Index{embedder: embedder, logger: logger}
	for _, doc := range docs {
		for _, chunk := range splitter.Split(doc.Content) {
			ix.entries = append(ix.entries, indexEntry{
				content:  chunk,
				source:   doc.Source,
				title:    doc.Title,
				url:      doc.URL,
				metadata: doc.Metadata,
				terms:    termSet(chunk),
			})
		}
	}
	if len(ix.entries) == 0 {
		return ix, nil
	}

	for start := 0; start < len(ix.entries); start += embedBatchSize {
		end := start + embedBatchSize
		if end > len(ix.entries) {
			end = len(ix.entries)
		}
		texts := make([]string, 0, end-start)
		for _, e := range ix.entries[start:end] {
			texts = append(texts, e.content)
		}
		vecs, err := embedder.Embed(ctx, texts)
		if err != nil {
			if errors.Is(err, llm.ErrUnavailable) || types.GetErrorCode(err) == types.ErrCollaboratorUnavailable {
				logger.Warn("embedder unavailable, falling back to lexical scoring",
					zap.Int("chunks", len(ix.entries)))
				ix.unscored = true
				return ix, nil
			}
			return nil, err
		}
		for i, v := range vecs {
			ix.entries[start+i].vector = v
		}
	}
	logger.Info("index built",
		zap.Int("documents", len(docs)),
		zap.Int("chunks", len(ix.entries)))
	return ix, nil
}

// Size returns the number of indexed chunks.
func (ix *Index) Size() int { return len(ix.entries) }

// Unscored reports whether the index is in lexical fallback mode.
func (ix *Index) Unscored() bool { return ix.unscored }

// Search returns up to cfg.K chunks for the query. In scored mode it runs
// maximal marginal relevance over the cfg.FetchK nearest chunks; the
// reported similarity is 1/(1+distance) so it always lands in (0, 1]. In
// unscored mode it ranks by term overlap and marks hits accordingly.
func (ix *Index) Search(ctx context.Context, query string, cfg types.RetrievalConfig) ([]types.ScoredChunk, error) {
	if len(ix.entries) == 0 {
		return nil, nil
	}
	if ix.unscored {
		return ix.lexicalSearch(query, cfg.K), nil
	}

	vecs, err := ix.embedder.Embed(ctx, []string{query})
	if err != nil {
		if errors.Is(err, llm.ErrUnavailable) || types.GetErrorCode(err) == types.ErrCollaboratorUnavailable {
			ix.logger.Warn("embedder unavailable for query, lexical fallback")
			return ix.lexicalSearch(query, cfg.K), nil
		}
		return nil, err
	}
	queryVec := vecs[0]

	type scored struct {
		idx        int
		distance   float64
		similarity float64
	}
	candidates := make([]scored, 0, len(ix.entries))
	for i, e := range ix.entries {
		d := distance(queryVec, e.vector)
		candidates = append(candidates, scored{idx: i, distance: d, similarity: similarityFromDistance(d)})
	}
	sort.SliceStable(candidates, func(a, b int) bool {
		return candidates[a].similarity > candidates[b].similarity
	})
	if len(candidates) > cfg.FetchK {
		candidates = candidates[:cfg.FetchK]
	}

	// Maximal marginal relevance: trade off query relevance against
	// redundancy with already selected chunks.
	selected := make([]scored, 0, cfg.K)
	remaining := append([]scored(nil), candidates...)
	for len(selected) < cfg.K && len(remaining) > 0 {
		bestIdx, bestScore := 0, math.Inf(-1)
		for i, cand := range remaining {
			redundancy := 0.0
			for _, sel := range selected {
				if sim := cosine(ix.entries[cand.idx].vector, ix.entries[sel.idx].vector); sim > redundancy {
					redundancy = sim
				}
			}
			score := cfg.LambdaMult*cand.similarity - (1-cfg.LambdaMult)*redundancy
			if score > bestScore {
				bestIdx, bestScore = i, score
			}
		}
		selected = append(selected, remaining[bestIdx])
		remaining = append(remaining[:bestIdx], remaining[bestIdx+1:]...)
	}

	out := make([]types.ScoredChunk, 0, len(selected))
	for _, s := range selected {
		e := ix.entries[s.idx]
		out = append(out, types.ScoredChunk{
			Content:      e.content,
			Similarity:   s.similarity,
			RawDistance:  s.distance,
			MatchedQuery: query,
			Source:       e.source,
			Title:        e.title,
			URL:          e.url,
			Metadata:     e.metadata,
		})
	}
	return out, nil
}

// lexicalSearch ranks chunks by the share of query terms they contain.
func (ix *Index) lexicalSearch(query string, k int) []types.ScoredChunk {
	queryTerms := termSet(query)
	if len(queryTerms) == 0 {
		return nil
	}
	type scored struct {
		idx     int
		overlap float64
	}
	candidates := make([]scored, 0, len(ix.entries))
	for i, e := range ix.entries {
		hits := 0
		for t := range queryTerms {
			if _, ok := e.terms[t]; ok {
				hits++
			}
		}
		if hits == 0 {
			continue
		}
		candidates = append(candidates, scored{idx: i, overlap: float64(hits) / float64(len(queryTerms))})
	}
	sort.SliceStable(candidates, func(a, b int) bool {
		return candidates[a].overlap > candidates[b].overlap
	})
	if len(candidates) > k {
		candidates = candidates[:k]
	}
	out := make([]types.ScoredChunk, 0, len(candidates))
	for _, s := range candidates {
		e := ix.entries[s.idx]
		out = append(out, types.ScoredChunk{
			Content:      e.content,
			Similarity:   s.overlap,
			MatchedQuery: query,
			Unscored:     true,
			Source:       e.source,
			Title:        e.title,
			URL:          e.url,
			Metadata:     e.metadata,
		})
	}
	return out
}

// distance is an L2-like distance derived from cosine similarity, clamped
// non-negative so 1/(1+distance) stays in (0, 1].
func distance(a, b []float64) float64 {
	d := 1 - cosine(a, b)
	if d < 0 {
		return 0
	}
	return d
}

func similarityFromDistance(d float64) float64 {
	return 1 / (1 + d)
}

func cosine(a, b []float64) float64 {
	if len(a) == 0 || len(a) != len(b) {
		return 0
	}
	var dot, na, nb float64
	for i := range a {
		dot += a[i] * b[i]
		na += a[i] * a[i]
		nb += b[i] * b[i]
	}
	if na == 0 || nb == 0 {
		return 0
	}
	return dot / (math.Sqrt(na) * math.Sqrt(nb))
}

func termSet(text string) map[string]struct{} {
	fields := strings.Fields(strings.ToLower(text))
	set := make(map[string]struct{}, len(fields))
	for _, f := range fields {
		f = strings.Trim(f, ".,!?;:\"'()[]{}")
		if len(f) >= 2 {
			set[f] = struct{}{}
		}
	}
	return set
}
