package types

import (
	"strings"
	"time"
)

// normalizeTerm folds a keyword for case-insensitive deduplication.
func normalizeTerm(s string) string {
	return strings.ToLower(strings.TrimSpace(s))
}

// QueryIntent classifies what the user is trying to accomplish.
type QueryIntent string

const (
	IntentInformational QueryIntent = "informational"
	IntentFactCheck     QueryIntent = "fact_check"
	IntentExploratory   QueryIntent = "exploratory"
	IntentComparative   QueryIntent = "comparative"
	IntentProcedural    QueryIntent = "procedural"
)

// QueryComplexity grades how involved a query is.
type QueryComplexity string

const (
	ComplexitySimple  QueryComplexity = "simple"
	ComplexityMedium  QueryComplexity = "medium"
	ComplexityComplex QueryComplexity = "complex"
)

// QueryScope grades how broad the expected answer space is.
type QueryScope string

const (
	ScopeNarrow QueryScope = "narrow"
	ScopeMedium QueryScope = "medium"
	ScopeBroad  QueryScope = "broad"
)

// SearchStrategy selects the retrieval posture for a query.
type SearchStrategy string

const (
	StrategyPrecision     SearchStrategy = "precision"
	StrategyComprehensive SearchStrategy = "comprehensive"
	StrategyExploratory   SearchStrategy = "exploratory"
)

// QueryDomain is a coarse subject-matter label used to tune chunking.
type QueryDomain string

const (
	DomainGeneral   QueryDomain = "general"
	DomainTechnical QueryDomain = "technical"
	DomainAcademic  QueryDomain = "academic"
	DomainNews      QueryDomain = "news"
)

// QueryAnalysis is the analyzer's structured view of a user query.
type QueryAnalysis struct {
	Intent      QueryIntent     `json:"intent"`
	Complexity  QueryComplexity `json:"complexity"`
	Scope       QueryScope      `json:"scope"`
	Domain      QueryDomain     `json:"domain"`
	Strategy    SearchStrategy  `json:"strategy"`
	KeyConcepts []string        `json:"key_concepts"`
}

// DefaultQueryAnalysis returns the analysis used when classification fails.
// The pipeline must always be able to proceed, so the default assumes a
// medium informational query whose only known concept is the query itself.
func DefaultQueryAnalysis(query string) QueryAnalysis {
	return QueryAnalysis{
		Intent:      IntentInformational,
		Complexity:  ComplexityMedium,
		Scope:       ScopeMedium,
		Domain:      DomainGeneral,
		Strategy:    StrategyComprehensive,
		KeyConcepts: []string{query},
	}
}

// KeywordHierarchy holds the four keyword tiers produced for a query.
// Primary terms are combined with AND, secondary terms widen the net with
// OR, context terms disambiguate, and negative terms mark content to avoid.
type KeywordHierarchy struct {
	Primary    []string `json:"primary"`
	Secondary  []string `json:"secondary"`
	Context    []string `json:"context"`
	Negative   []string `json:"negative"`
	Confidence float64  `json:"confidence"`
}

// Flatten returns the primary, secondary, and context tiers as one list,
// case-insensitively deduplicated in tier order and capped at max entries.
// Negative terms are excluded; they describe what not to search for.
func (h KeywordHierarchy) Flatten(max int) []string {
	seen := make(map[string]struct{})
	out := make([]string, 0, max)
	for _, tier := range [][]string{h.Primary, h.Secondary, h.Context} {
		for _, kw := range tier {
			if len(out) >= max {
				return out
			}
			key := normalizeTerm(kw)
			if key == "" {
				continue
			}
			if _, ok := seen[key]; ok {
				continue
			}
			seen[key] = struct{}{}
			out = append(out, kw)
		}
	}
	return out
}

// RawDocument is an unfiltered candidate fetched from a source connector.
type RawDocument struct {
	ID       string            `json:"id"`
	Title    string            `json:"title,omitempty"`
	Content  string            `json:"content"`
	Source   string            `json:"source"`
	URL      string            `json:"url,omitempty"`
	Metadata map[string]string `json:"metadata,omitempty"`
}

// ChunkConfig controls how documents are split before indexing.
type ChunkConfig struct {
	Size       int      `json:"chunk_size"`
	Overlap    int      `json:"chunk_overlap"`
	Separators []string `json:"separators"`
}

// RetrievalConfig holds the per-query retrieval parameters chosen by the
// parameter planner.
type RetrievalConfig struct {
	K          int     `json:"k"`
	FetchK     int     `json:"fetch_k"`
	LambdaMult float64 `json:"lambda_mult"`
}

// ScoredChunk is an indexed chunk paired with its retrieval score.
// Similarity is 1/(1+RawDistance); MatchedQuery names the expanded query
// that surfaced the chunk. Unscored marks chunks returned by the lexical
// fallback path; their Similarity carries only ordering information, not
// a calibrated value, and RawDistance is meaningless for them.
type ScoredChunk struct {
	Content      string            `json:"content"`
	Similarity   float64           `json:"similarity"`
	RawDistance  float64           `json:"raw_distance"`
	MatchedQuery string            `json:"matched_query,omitempty"`
	Unscored     bool              `json:"unscored,omitempty"`
	Source       string            `json:"source"`
	Title        string            `json:"title,omitempty"`
	URL          string            `json:"url,omitempty"`
	Metadata     map[string]string `json:"metadata,omitempty"`
}

// SearchQualityMetrics is one evaluation record kept by the feedback
// tracker.
type SearchQualityMetrics struct {
	Query        string          `json:"query"`
	QualityScore float64         `json:"quality_score"`
	ResultCount  int             `json:"result_count"`
	Diversity    float64         `json:"diversity"`
	UserFeedback float64         `json:"user_feedback,omitempty"`
	HasFeedback  bool            `json:"has_feedback"`
	Chunking     ChunkConfig     `json:"chunking"`
	Retrieval    RetrievalConfig `json:"retrieval"`
	Timestamp    time.Time       `json:"timestamp"`
}

// SearchResult is the final product of one pipeline run.
type SearchResult struct {
	SearchID          string        `json:"search_id"`
	Report            string        `json:"report,omitempty"`
	Sources           []ScoredChunk `json:"sources"`
	KeywordsUsed      []string      `json:"keywords_used"`
	QueriesUsed       []string      `json:"rag_queries"`
	TotalDocuments    int           `json:"total_documents"`
	RelevantDocuments int           `json:"relevant_documents"`
	Reason            string        `json:"reason,omitempty"`
}

// ProgressStage identifies a pipeline stage in progress events.
type ProgressStage string

const (
	StageKeywordGeneration ProgressStage = "keyword_generation"
	StageSourceSearch      ProgressStage = "source_search"
	StageVectorization     ProgressStage = "vectorization"
	StageRetrieval         ProgressStage = "rag_search"
	StageReportGeneration  ProgressStage = "report_generation"
)

// ProgressEvent is emitted as the pipeline advances through its stages.
type ProgressEvent struct {
	SearchID string        `json:"search_id"`
	Stage    ProgressStage `json:"stage"`
	Step     int           `json:"step"`
	Total    int           `json:"total_steps"`
	Message  string        `json:"message,omitempty"`
	Detail   string        `json:"detail,omitempty"`
}
