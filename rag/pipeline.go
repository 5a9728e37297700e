package rag

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/BaSui01/memflow/llm"
	"github.com/BaSui01/memflow/rag/sources"
	"github.com/BaSui01/memflow/types"
)

// PipelineConfig assembles the per-stage settings.
type PipelineConfig struct {
	Filter         FilterConfig    `json:"filter" yaml:"filter"`
	Retriever      RetrieverConfig `json:"retriever" yaml:"retriever"`
	Refiner        RefinerConfig   `json:"refiner" yaml:"refiner"`
	SourceLimit    int             `json:"source_limit" yaml:"source_limit"`
	GenerateReport bool            `json:"generate_report" yaml:"generate_report"`
}

// DefaultPipelineConfig returns the production pipeline settings.
func DefaultPipelineConfig() PipelineConfig {
	return PipelineConfig{
		Filter:         DefaultFilterConfig(),
		Retriever:      DefaultRetrieverConfig(),
		Refiner:        DefaultRefinerConfig(),
		SourceLimit:    50,
		GenerateReport: true,
	}
}

// ProgressFunc receives stage events as a search advances. A nil
// ProgressFunc disables progress reporting.
type ProgressFunc func(types.ProgressEvent)

// Observer receives pipeline measurements. metrics.Collector satisfies
// it; a nil Observer disables instrumentation.
type Observer interface {
	RecordStage(stage string, duration time.Duration)
	RecordFilterDiscards(searchPages, lowQuality, blockedDomains, duplicates int)
	RecordSourceResult(source string, documents int, failed bool)
	RecordLLMRequest(provider, operation, status string, duration time.Duration)
}

type nopObserver struct{}

func (nopObserver) RecordStage(string, time.Duration)                      {}
func (nopObserver) RecordFilterDiscards(int, int, int, int)                {}
func (nopObserver) RecordSourceResult(string, int, bool)                   {}
func (nopObserver) RecordLLMRequest(string, string, string, time.Duration) {}

// observedProvider counts and times every LLM call without changing its
// behavior. Errors pass through untouched so callers keep their
// unavailable-detection semantics.
type observedProvider struct {
	inner llm.Provider
	obs   Observer
}

func (o observedProvider) Name() string { return o.inner.Name() }

func (o observedProvider) Complete(ctx context.Context, prompt string) (string, error) {
	start := time.Now()
	out, err := o.inner.Complete(ctx, prompt)
	o.obs.RecordLLMRequest(o.inner.Name(), "complete", llmCallStatus(err), time.Since(start))
	return out, err
}

func (o observedProvider) Embed(ctx context.Context, texts []string) ([][]float64, error) {
	start := time.Now()
	out, err := o.inner.Embed(ctx, texts)
	o.obs.RecordLLMRequest(o.inner.Name(), "embed", llmCallStatus(err), time.Since(start))
	return out, err
}

func llmCallStatus(err error) string {
	switch {
	case err == nil:
		return "ok"
	case errors.Is(err, llm.ErrUnavailable), types.GetErrorCode(err) == types.ErrCollaboratorUnavailable:
		return "unavailable"
	default:
		return "error"
	}
}

const totalStages = 5

// Pipeline orchestrates one search end to end: analyze, generate
// keywords, gather documents, filter, index, retrieve, refine, report,
// and record quality. A Pipeline is safe for concurrent searches; each
// run builds its own index.
type Pipeline struct {
	cfg      PipelineConfig
	provider llm.Provider
	analyzer *Analyzer
	keywords *KeywordGenerator
	filter   *Filter
	planner  *Planner
	retrieve *Retriever
	refiner  *Refiner
	tracker  *FeedbackTracker
	registry *sources.Registry
	fetcher  *sources.WebFetcher
	obs      Observer
	logger   *zap.Logger
}

// NewPipeline wires the pipeline stages together. fetcher may be nil to
// disable web page fetching; obs may be nil to disable instrumentation.
func NewPipeline(cfg PipelineConfig, provider llm.Provider, registry *sources.Registry, fetcher *sources.WebFetcher, counter llm.TokenCounter, obs Observer, logger *zap.Logger) *Pipeline {
	if cfg.SourceLimit <= 0 {
		cfg.SourceLimit = DefaultPipelineConfig().SourceLimit
	}
	if provider == nil {
		provider = llm.UnavailableProvider{}
	}
	if obs == nil {
		obs = nopObserver{}
	}
	provider = observedProvider{inner: provider, obs: obs}
	if logger == nil {
		logger = zap.NewNop()
	}
	plog := logger.With(zap.String("component", "pipeline"))
	return &Pipeline{
		cfg:      cfg,
		provider: provider,
		analyzer: NewAnalyzer(provider, logger),
		keywords: NewKeywordGenerator(provider, logger),
		filter:   NewFilter(cfg.Filter, logger),
		planner:  NewPlanner(logger),
		retrieve: NewRetriever(cfg.Retriever, logger),
		refiner:  NewRefiner(cfg.Refiner, provider, counter, logger),
		tracker:  NewFeedbackTracker(logger),
		registry: registry,
		fetcher:  fetcher,
		obs:      obs,
		logger:   plog,
	}
}

// Tracker exposes the quality feedback tracker for the serving layer.
func (p *Pipeline) Tracker() *FeedbackTracker { return p.tracker }

// Search runs one query through the whole pipeline. Keyword generation
// failure is the only fatal stage; everything else degrades. An empty
// post-filter corpus yields a result with the NO_CANDIDATES reason rather
// than an error.
func (p *Pipeline) Search(ctx context.Context, query string, progress ProgressFunc) (*types.SearchResult, error) {
	searchID := uuid.NewString()
	log := p.logger.With(zap.String("search_id", searchID))
	emit := func(stage types.ProgressStage, step int, message string) {
		if progress != nil {
			progress(types.ProgressEvent{
				SearchID: searchID,
				Stage:    stage,
				Step:     step,
				Total:    totalStages,
				Message:  message,
			})
		}
	}

	emit(types.StageKeywordGeneration, 1, "analyzing query and generating keywords")
	stageStart := time.Now()
	analysis := p.analyzer.Analyze(ctx, query)
	hierarchy, err := p.keywords.Generate(ctx, query, analysis)
	if err != nil {
		return nil, err
	}
	flat := hierarchy.Flatten(maxFlatKeywords)
	queries := p.keywords.GenerateQueries(ctx, query, hierarchy)
	p.obs.RecordStage(string(types.StageKeywordGeneration), time.Since(stageStart))

	emit(types.StageSourceSearch, 2, "searching data sources")
	stageStart = time.Now()
	raw, outcomes := p.registry.SearchAll(ctx, flat, p.cfg.SourceLimit)
	for _, o := range outcomes {
		p.obs.RecordSourceResult(o.Source, o.Documents, o.Failed)
	}
	if fetched := p.fetchHistoryPages(ctx, raw); len(fetched) > 0 {
		p.obs.RecordSourceResult("web", len(fetched), false)
		raw = append(raw, fetched...)
	}
	p.obs.RecordStage(string(types.StageSourceSearch), time.Since(stageStart))

	filtered, stats := p.filter.Apply(raw)
	p.obs.RecordFilterDiscards(stats.SearchPages, stats.LowQuality, stats.BlockedDomains, stats.Duplicates)
	log.Info("documents gathered",
		zap.Int("raw", len(raw)),
		zap.Int("filtered", stats.Kept))
	if len(filtered) == 0 {
		return &types.SearchResult{
			SearchID:       searchID,
			KeywordsUsed:   flat,
			QueriesUsed:    queries,
			TotalDocuments: len(raw),
			Reason:         string(types.ErrNoCandidates),
		}, nil
	}

	emit(types.StageVectorization, 3, "building vector index")
	stageStart = time.Now()
	chunkCfg := p.planner.PlanChunking(analysis)
	splitter := NewSplitter(chunkCfg, log)
	index, err := BuildIndex(ctx, filtered, splitter, p.provider, log)
	if err != nil {
		return nil, fmt.Errorf("build index: %w", err)
	}
	retCfg := p.planner.PlanRetrieval(analysis, index.Size())
	p.obs.RecordStage(string(types.StageVectorization), time.Since(stageStart))

	emit(types.StageRetrieval, 4, "retrieving relevant chunks")
	stageStart = time.Now()
	hits, err := p.retrieve.Retrieve(ctx, index, queries, retCfg)
	if err != nil {
		return nil, fmt.Errorf("retrieve: %w", err)
	}
	hits = p.refiner.Refine(ctx, query, hits)
	p.obs.RecordStage(string(types.StageRetrieval), time.Since(stageStart))

	result := &types.SearchResult{
		SearchID:          searchID,
		Sources:           hits,
		KeywordsUsed:      flat,
		QueriesUsed:       queries,
		TotalDocuments:    len(raw),
		RelevantDocuments: len(hits),
	}
	if len(hits) == 0 {
		result.Reason = string(types.ErrNoCandidates)
	}

	emit(types.StageReportGeneration, 5, "generating report")
	if p.cfg.GenerateReport && len(hits) > 0 {
		stageStart = time.Now()
		report, err := p.generateReport(ctx, query, hits)
		if err != nil {
			log.Warn("report generation failed", zap.Error(err))
		} else {
			result.Report = report
		}
		p.obs.RecordStage(string(types.StageReportGeneration), time.Since(stageStart))
	}

	metrics := p.tracker.Evaluate(query, hits, chunkCfg, retCfg, 0, false)
	p.tracker.Record(metrics)
	log.Info("search completed",
		zap.Int("results", len(hits)),
		zap.Float64("quality", metrics.QualityScore),
		zap.Bool("unscored", index.Unscored()))
	return result, nil
}

// fetchHistoryPages turns browsing history hits into full page documents.
func (p *Pipeline) fetchHistoryPages(ctx context.Context, docs []types.RawDocument) []types.RawDocument {
	if p.fetcher == nil {
		return nil
	}
	var urls []string
	for _, d := range docs {
		if d.Source == "browser_history" && d.URL != "" {
			urls = append(urls, d.URL)
		}
	}
	if len(urls) == 0 {
		return nil
	}
	return p.fetcher.FetchAll(ctx, urls)
}

func (p *Pipeline) generateReport(ctx context.Context, query string, hits []types.ScoredChunk) (string, error) {
	var sb strings.Builder
	for i, h := range hits {
		label := h.Source
		if h.Title != "" {
			label += ": " + h.Title
		}
		if h.URL != "" {
			label += " (" + h.URL + ")"
		}
		fmt.Fprintf(&sb, "[%d] %s\n%s\n\n", i+1, label, h.Content)
	}
	report, err := p.provider.Complete(ctx, fmt.Sprintf(reportPrompt, query, sb.String()))
	if err != nil {
		return "", types.NewError(types.ErrReportGeneration, "report generation failed").WithCause(err)
	}
	return strings.TrimSpace(report), nil
}
