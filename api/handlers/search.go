package handlers

import (
	"net/http"
	"strings"
	"time"

	"go.uber.org/zap"

	"github.com/BaSui01/memflow/internal/metrics"
	"github.com/BaSui01/memflow/rag"
	"github.com/BaSui01/memflow/types"
)

// SearchHandler serves the REST search surface.
type SearchHandler struct {
	pipeline *rag.Pipeline
	metrics  *metrics.Collector
	logger   *zap.Logger
}

// NewSearchHandler creates a SearchHandler. metrics may be nil.
func NewSearchHandler(pipeline *rag.Pipeline, collector *metrics.Collector, logger *zap.Logger) *SearchHandler {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &SearchHandler{
		pipeline: pipeline,
		metrics:  collector,
		logger:   logger.With(zap.String("component", "search_handler")),
	}
}

// SearchRequest is the POST /search body.
type SearchRequest struct {
	Query string `json:"query"`
}

// Search handles POST /search. An empty post-filter corpus is not an
// error: the response carries the NO_CANDIDATES reason with status 200.
func (h *SearchHandler) Search(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPost {
		WriteErrorMessage(w, http.StatusMethodNotAllowed, types.ErrInvalidRequest, "method not allowed", nil)
		return
	}
	var req SearchRequest
	if err := DecodeJSONBody(w, r, &req, h.logger); err != nil {
		return
	}
	req.Query = strings.TrimSpace(req.Query)
	if req.Query == "" {
		WriteErrorMessage(w, http.StatusBadRequest, types.ErrInvalidRequest, "query is required", nil)
		return
	}

	start := time.Now()
	result, err := h.pipeline.Search(r.Context(), req.Query, nil)
	if err != nil {
		h.recordSearch("error", start, nil)
		if te, ok := err.(*types.Error); ok {
			WriteError(w, te, h.logger)
			return
		}
		WriteErrorMessage(w, http.StatusInternalServerError, types.ErrInternalError, err.Error(), h.logger)
		return
	}
	if result.Reason != "" {
		h.recordSearch("no_candidates", start, result)
	} else {
		h.recordSearch("ok", start, result)
	}
	WriteSuccess(w, result)
}

func (h *SearchHandler) recordSearch(status string, start time.Time, result *types.SearchResult) {
	if h.metrics == nil {
		return
	}
	kept := 0
	if result != nil {
		kept = result.RelevantDocuments
	}
	quality := 0.0
	if hist := h.pipeline.Tracker().History(); len(hist) > 0 {
		quality = hist[len(hist)-1].QualityScore
	}
	h.metrics.RecordSearch(status, time.Since(start), quality, kept)
}

// FeedbackRequest is the POST /feedback body.
type FeedbackRequest struct {
	Query  string  `json:"query"`
	Rating float64 `json:"rating"`
}

// Feedback handles POST /feedback: attaches an explicit user rating to
// the most recent search for the query.
func (h *SearchHandler) Feedback(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPost {
		WriteErrorMessage(w, http.StatusMethodNotAllowed, types.ErrInvalidRequest, "method not allowed", nil)
		return
	}
	var req FeedbackRequest
	if err := DecodeJSONBody(w, r, &req, h.logger); err != nil {
		return
	}
	if strings.TrimSpace(req.Query) == "" {
		WriteErrorMessage(w, http.StatusBadRequest, types.ErrInvalidRequest, "query is required", nil)
		return
	}
	if req.Rating < 0 || req.Rating > 1 {
		WriteErrorMessage(w, http.StatusBadRequest, types.ErrInvalidRequest, "rating must be in [0, 1]", nil)
		return
	}
	if !h.pipeline.Tracker().AttachFeedback(req.Query, req.Rating) {
		WriteErrorMessage(w, http.StatusNotFound, types.ErrInvalidRequest, "no recorded search for query", nil)
		return
	}
	WriteSuccess(w, map[string]bool{"recorded": true})
}

// Recommendations handles GET /recommendations: parameter tuning
// suggestions derived from recent search quality.
func (h *SearchHandler) Recommendations(w http.ResponseWriter, r *http.Request) {
	recs := h.pipeline.Tracker().Recommend()
	if recs == nil {
		recs = []string{}
	}
	WriteSuccess(w, map[string]interface{}{"recommendations": recs})
}

// QualityHistory handles GET /quality: the recorded search quality
// metrics, oldest first.
func (h *SearchHandler) QualityHistory(w http.ResponseWriter, r *http.Request) {
	WriteSuccess(w, h.pipeline.Tracker().History())
}
