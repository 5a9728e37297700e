package sources

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"time"

	"go.uber.org/zap"

	"github.com/BaSui01/memflow/types"
)

// DocStoreConfig configures the document store connector.
type DocStoreConfig struct {
	BaseURL         string        `json:"base_url" yaml:"base_url"`
	APIKey          string        `json:"api_key" yaml:"api_key"`
	Timeout         time.Duration `json:"timeout" yaml:"timeout"`
	ExcludedFolders []string      `json:"excluded_folders" yaml:"excluded_folders"`
}

// DocStore searches an external document store over its HTTP JSON API.
type DocStore struct {
	cfg    DocStoreConfig
	client *http.Client
	logger *zap.Logger
}

var _ Source = (*DocStore)(nil)

// NewDocStore creates a document store connector.
func NewDocStore(cfg DocStoreConfig, logger *zap.Logger) *DocStore {
	if cfg.Timeout == 0 {
		cfg.Timeout = 30 * time.Second
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	return &DocStore{
		cfg:    cfg,
		client: &http.Client{Timeout: cfg.Timeout},
		logger: logger.With(zap.String("component", "docstore_source")),
	}
}

func (s *DocStore) Name() string { return "document_store" }

type docStoreRequest struct {
	Keywords        []string `json:"keywords"`
	Limit           int      `json:"limit"`
	ExcludedFolders []string `json:"excluded_folders,omitempty"`
}

type docStoreResponse struct {
	Documents []struct {
		ID      string `json:"id"`
		Title   string `json:"title"`
		Content string `json:"content"`
		Path    string `json:"path"`
		URL     string `json:"url"`
	} `json:"documents"`
}

// Search posts the keywords to the store's search endpoint.
func (s *DocStore) Search(ctx context.Context, keywords []string, limit int) ([]types.RawDocument, error) {
	payload, err := json.Marshal(docStoreRequest{
		Keywords:        keywords,
		Limit:           limit,
		ExcludedFolders: s.cfg.ExcludedFolders,
	})
	if err != nil {
		return nil, fmt.Errorf("marshal docstore request: %w", err)
	}
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, s.cfg.BaseURL+"/search", bytes.NewReader(payload))
	if err != nil {
		return nil, fmt.Errorf("build docstore request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")
	if s.cfg.APIKey != "" {
		req.Header.Set("Authorization", "Bearer "+s.cfg.APIKey)
	}

	resp, err := s.client.Do(req)
	if err != nil {
		return nil, fmt.Errorf("docstore request: %w", err)
	}
	defer resp.Body.Close()
	if resp.StatusCode != http.StatusOK {
		body, _ := io.ReadAll(io.LimitReader(resp.Body, 512))
		return nil, fmt.Errorf("docstore status %d: %s", resp.StatusCode, string(body))
	}

	var dr docStoreResponse
	if err := json.NewDecoder(resp.Body).Decode(&dr); err != nil {
		return nil, fmt.Errorf("decode docstore response: %w", err)
	}

	docs := make([]types.RawDocument, 0, len(dr.Documents))
	for _, d := range dr.Documents {
		url := d.URL
		if url == "" {
			url = d.Path
		}
		docs = append(docs, types.RawDocument{
			ID:      d.ID,
			Title:   d.Title,
			Content: d.Content,
			Source:  s.Name(),
			URL:     url,
		})
	}
	s.logger.Debug("docstore searched",
		zap.Int("keywords", len(keywords)),
		zap.Int("documents", len(docs)))
	return docs, nil
}
