package main

import (
	"context"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/prometheus/client_golang/prometheus/promhttp"
	"go.uber.org/zap"

	"github.com/BaSui01/memflow/api/handlers"
	"github.com/BaSui01/memflow/config"
	"github.com/BaSui01/memflow/internal/metrics"
	"github.com/BaSui01/memflow/llm"
	"github.com/BaSui01/memflow/rag"
	"github.com/BaSui01/memflow/rag/sources"
)

var _ rag.Observer = (*metrics.Collector)(nil)

// Server wires the pipeline, connectors, and HTTP surface together.
type Server struct {
	cfg    *config.Config
	logger *zap.Logger

	pipeline         *rag.Pipeline
	metricsCollector *metrics.Collector

	httpServer    *http.Server
	metricsServer *http.Server
}

// NewServer creates a Server.
func NewServer(cfg *config.Config, logger *zap.Logger) *Server {
	return &Server{cfg: cfg, logger: logger}
}

// Start builds the pipeline and starts the HTTP and metrics listeners.
func (s *Server) Start() error {
	s.metricsCollector = metrics.NewCollector("memflow", s.logger)
	s.pipeline = s.buildPipeline()

	mux := http.NewServeMux()
	searchHandler := handlers.NewSearchHandler(s.pipeline, s.metricsCollector, s.logger)
	healthHandler := handlers.NewHealthHandler(Version, s.logger)
	wsHandler := handlers.NewWSHandler(s.pipeline, s.logger)

	mux.HandleFunc("/search", searchHandler.Search)
	mux.HandleFunc("/feedback", searchHandler.Feedback)
	mux.HandleFunc("/recommendations", searchHandler.Recommendations)
	mux.HandleFunc("/quality", searchHandler.QualityHistory)
	mux.Handle("/ws/search", wsHandler)
	mux.Handle("/health", healthHandler)

	s.httpServer = &http.Server{
		Addr:         fmt.Sprintf(":%d", s.cfg.Server.HTTPPort),
		Handler:      s.instrument(mux),
		ReadTimeout:  s.cfg.Server.ReadTimeout,
		WriteTimeout: s.cfg.Server.WriteTimeout,
	}
	go func() {
		if err := s.httpServer.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			s.logger.Error("HTTP server failed", zap.Error(err))
		}
	}()

	if s.cfg.Server.MetricsPort > 0 {
		metricsMux := http.NewServeMux()
		metricsMux.Handle("/metrics", promhttp.Handler())
		s.metricsServer = &http.Server{
			Addr:    fmt.Sprintf(":%d", s.cfg.Server.MetricsPort),
			Handler: metricsMux,
		}
		go func() {
			if err := s.metricsServer.ListenAndServe(); err != nil && err != http.ErrServerClosed {
				s.logger.Error("metrics server failed", zap.Error(err))
			}
		}()
	}

	s.logger.Info("All servers started",
		zap.Int("http_port", s.cfg.Server.HTTPPort),
		zap.Int("metrics_port", s.cfg.Server.MetricsPort),
	)
	return nil
}

// buildPipeline assembles the provider, connectors, and pipeline from
// config. A missing API key wires the unavailable provider so every stage
// exercises its degraded path instead of crashing.
func (s *Server) buildPipeline() *rag.Pipeline {
	var provider llm.Provider
	if s.cfg.LLM.APIKey != "" {
		provider = llm.NewGeminiProvider(llm.GeminiConfig{
			APIKey:     s.cfg.LLM.APIKey,
			BaseURL:    s.cfg.LLM.BaseURL,
			Model:      s.cfg.LLM.Model,
			EmbedModel: s.cfg.LLM.EmbedModel,
			Timeout:    s.cfg.LLM.Timeout,
		}, s.logger)
	} else {
		s.logger.Warn("no LLM API key configured, searches will run degraded")
		provider = llm.UnavailableProvider{}
	}

	var srcs []sources.Source
	if s.cfg.Sources.DocStore.Enabled {
		srcs = append(srcs, sources.NewDocStore(sources.DocStoreConfig{
			BaseURL:         s.cfg.Sources.DocStore.BaseURL,
			APIKey:          s.cfg.Sources.DocStore.APIKey,
			Timeout:         s.cfg.Sources.DocStore.Timeout,
			ExcludedFolders: s.cfg.Sources.DocStore.ExcludedFolders,
		}, s.logger))
	}
	if s.cfg.Sources.History.Enabled {
		srcs = append(srcs, sources.NewHistory(sources.HistoryConfig{
			DBPath:      s.cfg.Sources.History.DBPath,
			RecencyDays: s.cfg.Sources.History.RecencyDays,
			MaxResults:  s.cfg.Sources.History.MaxResults,
		}, s.logger))
	}
	if s.cfg.Sources.OCR.Enabled {
		srcs = append(srcs, sources.NewOCR(sources.OCRConfig{
			BaseURL: s.cfg.Sources.OCR.BaseURL,
			APIKey:  s.cfg.Sources.OCR.APIKey,
			Timeout: s.cfg.Sources.OCR.Timeout,
		}, s.logger))
	}
	registry := sources.NewRegistry(s.logger, srcs...)

	var fetcher *sources.WebFetcher
	if s.cfg.Sources.WebFetch.Enabled {
		fetcher = sources.NewWebFetcher(sources.WebFetchConfig{
			Timeout:        s.cfg.Sources.WebFetch.Timeout,
			MaxConcurrent:  s.cfg.Sources.WebFetch.MaxConcurrent,
			RequestsPerSec: s.cfg.Sources.WebFetch.RequestsPerSec,
			MaxContentLen:  s.cfg.Sources.WebFetch.MaxContentLen,
		}, s.logger)
	}

	pipelineCfg := rag.PipelineConfig{
		Filter: rag.FilterConfig{
			MinContentLength: s.cfg.Pipeline.Filter.MinContentLength,
			ShortPageLength:  s.cfg.Pipeline.Filter.ShortPageLength,
		},
		Retriever: rag.RetrieverConfig{
			SimilarityFloor: s.cfg.Pipeline.Retriever.SimilarityFloor,
			MaxResults:      s.cfg.Pipeline.Retriever.MaxResults,
			MaxConcurrency:  s.cfg.Pipeline.Retriever.MaxConcurrency,
		},
		Refiner: rag.RefinerConfig{
			Enabled:          s.cfg.Pipeline.Refiner.Enabled,
			TriggerThreshold: s.cfg.Pipeline.Refiner.TriggerThreshold,
			MaxCandidates:    s.cfg.Pipeline.Refiner.MaxCandidates,
			SnippetTokens:    s.cfg.Pipeline.Refiner.SnippetTokens,
		},
		SourceLimit:    s.cfg.Pipeline.SourceLimit,
		GenerateReport: s.cfg.Pipeline.GenerateReport,
	}
	counter := llm.NewTiktokenCounter(s.cfg.LLM.Encoding)
	return rag.NewPipeline(pipelineCfg, provider, registry, fetcher, counter, s.metricsCollector, s.logger)
}

// instrument wraps the mux with request metrics.
func (s *Server) instrument(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		start := time.Now()
		sw := &statusWriter{ResponseWriter: w, status: http.StatusOK}
		next.ServeHTTP(sw, r)
		s.metricsCollector.RecordHTTPRequest(r.Method, r.URL.Path, sw.status, time.Since(start))
	})
}

type statusWriter struct {
	http.ResponseWriter
	status int
}

func (w *statusWriter) WriteHeader(status int) {
	w.status = status
	w.ResponseWriter.WriteHeader(status)
}

// WaitForShutdown blocks until SIGINT or SIGTERM, then drains the
// listeners within the shutdown timeout.
func (s *Server) WaitForShutdown() {
	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	<-quit

	s.logger.Info("Shutting down")
	ctx, cancel := context.WithTimeout(context.Background(), s.cfg.Server.ShutdownTimeout)
	defer cancel()

	if err := s.httpServer.Shutdown(ctx); err != nil {
		s.logger.Warn("HTTP server shutdown failed", zap.Error(err))
	}
	if s.metricsServer != nil {
		if err := s.metricsServer.Shutdown(ctx); err != nil {
			s.logger.Warn("metrics server shutdown failed", zap.Error(err))
		}
	}
}
