package rag

import (
	"math"
	"sync"
	"time"

	"go.uber.org/zap"

	"github.com/BaSui01/memflow/types"
)

// History bounds: the tracker keeps at most maxHistory records and trims
// to keepHistory when the cap is hit.
const (
	maxHistory  = 100
	keepHistory = 50
)

// Scoring weights. The feedback weight redistributes proportionally over
// the other two when a search has no user feedback.
const (
	weightResultCount  = 0.4
	weightDiversity    = 0.3
	weightUserFeedback = 0.3
)

// Recommendation thresholds over the recent window.
const (
	recommendMinRecords   = 3
	recommendWindow       = 10
	lowQualityThreshold   = 0.4
	highQualityThreshold  = 0.8
	lowDiversityThreshold = 0.3
	lowCountThreshold     = 3
	highCountThreshold    = 20
)

// FeedbackTracker evaluates each search, keeps a bounded history, and
// derives tuning recommendations from recent trends. All methods are safe
// for concurrent use.
type FeedbackTracker struct {
	mu      sync.Mutex
	history []types.SearchQualityMetrics
	logger  *zap.Logger
}

// NewFeedbackTracker creates a FeedbackTracker.
func NewFeedbackTracker(logger *zap.Logger) *FeedbackTracker {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &FeedbackTracker{logger: logger.With(zap.String("component", "feedback_tracker"))}
}

// Evaluate scores one completed search. userFeedback is an optional
// explicit rating in [0, 1]; pass hasFeedback=false when none was given
// and the remaining weights renormalize over result count and diversity.
func (t *FeedbackTracker) Evaluate(query string, results []types.ScoredChunk, chunking types.ChunkConfig, retrieval types.RetrievalConfig, userFeedback float64, hasFeedback bool) types.SearchQualityMetrics {
	countScore := resultCountScore(len(results))
	diversity := diversityScore(results)

	var quality float64
	if hasFeedback {
		quality = weightResultCount*countScore + weightDiversity*diversity + weightUserFeedback*clamp01(userFeedback)
	} else {
		total := weightResultCount + weightDiversity
		quality = (weightResultCount*countScore + weightDiversity*diversity) / total
	}

	m := types.SearchQualityMetrics{
		Query:        query,
		QualityScore: clamp01(quality),
		ResultCount:  len(results),
		Diversity:    diversity,
		UserFeedback: userFeedback,
		HasFeedback:  hasFeedback,
		Chunking:     chunking,
		Retrieval:    retrieval,
		Timestamp:    time.Now(),
	}
	t.logger.Debug("search evaluated",
		zap.Float64("quality", m.QualityScore),
		zap.Int("results", m.ResultCount),
		zap.Float64("diversity", m.Diversity))
	return m
}

// Record appends a metric to the history, trimming to the most recent
// half when the cap is reached.
func (t *FeedbackTracker) Record(m types.SearchQualityMetrics) {
	t.mu.Lock()
	defer t.mu.Unlock()
	t.history = append(t.history, m)
	if len(t.history) > maxHistory {
		t.history = append([]types.SearchQualityMetrics(nil), t.history[len(t.history)-keepHistory:]...)
	}
}

// History returns a copy of the recorded metrics, oldest first.
func (t *FeedbackTracker) History() []types.SearchQualityMetrics {
	t.mu.Lock()
	defer t.mu.Unlock()
	return append([]types.SearchQualityMetrics(nil), t.history...)
}

// AttachFeedback sets the user rating on the most recent record for the
// query and rescores it with the full weight set. It reports whether a
// matching record was found.
func (t *FeedbackTracker) AttachFeedback(query string, rating float64) bool {
	t.mu.Lock()
	defer t.mu.Unlock()
	for i := len(t.history) - 1; i >= 0; i-- {
		if t.history[i].Query != query {
			continue
		}
		m := &t.history[i]
		m.UserFeedback = clamp01(rating)
		m.HasFeedback = true
		countScore := resultCountScore(m.ResultCount)
		m.QualityScore = clamp01(weightResultCount*countScore +
			weightDiversity*m.Diversity +
			weightUserFeedback*m.UserFeedback)
		return true
	}
	return false
}

// Recommend derives parameter tuning suggestions from the recent window.
// It stays silent until enough searches have been recorded.
func (t *FeedbackTracker) Recommend() []string {
	t.mu.Lock()
	defer t.mu.Unlock()

	if len(t.history) < recommendMinRecords {
		return nil
	}
	window := t.history
	if len(window) > recommendWindow {
		window = window[len(window)-recommendWindow:]
	}

	var quality, diversity, count float64
	for _, m := range window {
		quality += m.QualityScore
		diversity += m.Diversity
		count += float64(m.ResultCount)
	}
	n := float64(len(window))
	quality /= n
	diversity /= n
	count /= n

	var recs []string
	switch {
	case quality < lowQualityThreshold:
		recs = append(recs,
			"Consider increasing fetch_k for broader candidate coverage",
			"Use more specific primary keywords")
	case quality > highQualityThreshold:
		recs = append(recs, "Current parameters perform well")
	}
	if diversity < lowDiversityThreshold {
		recs = append(recs, "Increase lambda_mult to improve result diversity")
	}
	if count < lowCountThreshold {
		recs = append(recs, "Broaden secondary keywords to capture more results")
	} else if count > highCountThreshold {
		recs = append(recs, "Results exceed the useful range, tighten primary keywords")
	}
	return recs
}

// resultCountScore is 1.0 inside the sweet spot of 3 to 10 results and
// decays linearly with distance from the midpoint outside it.
func resultCountScore(n int) float64 {
	if n >= 3 && n <= 10 {
		return 1.0
	}
	score := 1.0 - math.Abs(float64(n)-6.5)/10.0
	if score < 0 {
		return 0
	}
	return score
}

// diversityScore averages source uniqueness and length-bucket uniqueness.
func diversityScore(results []types.ScoredChunk) float64 {
	if len(results) == 0 {
		return 0
	}
	sources := make(map[string]struct{}, len(results))
	lengths := make(map[int]struct{}, len(results))
	for _, r := range results {
		sources[r.Source] = struct{}{}
		lengths[len(r.Content)/100] = struct{}{}
	}
	n := float64(len(results))
	return (float64(len(sources))/n + float64(len(lengths))/n) / 2
}

func clamp01(v float64) float64 {
	if v < 0 {
		return 0
	}
	if v > 1 {
		return 1
	}
	return v
}
