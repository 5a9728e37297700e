package sources

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"

	"go.uber.org/zap"

	"github.com/BaSui01/memflow/types"
)

// OCRConfig configures the OCR document connector.
type OCRConfig struct {
	BaseURL string        `json:"base_url" yaml:"base_url"`
	APIKey  string        `json:"api_key" yaml:"api_key"`
	Timeout time.Duration `json:"timeout" yaml:"timeout"`
}

// OCR searches an OCR service that converts scanned PDFs and images to
// markdown and indexes the extracted text. Conversion is slow, so the
// service owns the conversion cache; this connector only queries it.
type OCR struct {
	cfg    OCRConfig
	client *http.Client
	logger *zap.Logger
}

var _ Source = (*OCR)(nil)

// NewOCR creates an OCR connector.
func NewOCR(cfg OCRConfig, logger *zap.Logger) *OCR {
	if cfg.Timeout == 0 {
		cfg.Timeout = 60 * time.Second
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	return &OCR{
		cfg:    cfg,
		client: &http.Client{Timeout: cfg.Timeout},
		logger: logger.With(zap.String("component", "ocr_source")),
	}
}

func (s *OCR) Name() string { return "ocr" }

type ocrRequest struct {
	Keywords []string `json:"keywords"`
	Limit    int      `json:"limit"`
}

type ocrResponse struct {
	Results []struct {
		FileName string `json:"file_name"`
		Markdown string `json:"markdown"`
		URL      string `json:"url"`
		Pages    int    `json:"pages"`
	} `json:"results"`
}

// Search posts the keywords to the OCR service's search endpoint and
// returns the matching converted documents.
func (s *OCR) Search(ctx context.Context, keywords []string, limit int) ([]types.RawDocument, error) {
	payload, err := json.Marshal(ocrRequest{Keywords: keywords, Limit: limit})
	if err != nil {
		return nil, fmt.Errorf("marshal ocr request: %w", err)
	}
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, s.cfg.BaseURL+"/ocr/search", bytes.NewReader(payload))
	if err != nil {
		return nil, fmt.Errorf("build ocr request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")
	if s.cfg.APIKey != "" {
		req.Header.Set("Authorization", "Bearer "+s.cfg.APIKey)
	}

	resp, err := s.client.Do(req)
	if err != nil {
		return nil, fmt.Errorf("ocr request: %w", err)
	}
	defer resp.Body.Close()
	if resp.StatusCode != http.StatusOK {
		body, _ := io.ReadAll(io.LimitReader(resp.Body, 512))
		return nil, fmt.Errorf("ocr status %d: %s", resp.StatusCode, string(body))
	}

	var or ocrResponse
	if err := json.NewDecoder(resp.Body).Decode(&or); err != nil {
		return nil, fmt.Errorf("decode ocr response: %w", err)
	}

	docs := make([]types.RawDocument, 0, len(or.Results))
	for _, r := range or.Results {
		content := strings.TrimSpace(r.Markdown)
		if content == "" {
			continue
		}
		docs = append(docs, types.RawDocument{
			ID:      r.FileName,
			Title:   r.FileName,
			Content: content,
			Source:  s.Name(),
			URL:     r.URL,
		})
	}
	s.logger.Debug("ocr searched",
		zap.Int("keywords", len(keywords)),
		zap.Int("documents", len(docs)))
	return docs, nil
}
