package sources

import (
	"context"
	"database/sql"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"strings"
	"time"

	"go.uber.org/zap"
	_ "modernc.org/sqlite"

	"github.com/BaSui01/memflow/types"
)

// HistoryConfig configures the browsing history connector.
type HistoryConfig struct {
	DBPath      string `json:"db_path" yaml:"db_path"`
	RecencyDays int    `json:"recency_days" yaml:"recency_days"`
	MaxResults  int    `json:"max_results" yaml:"max_results"`
}

// DefaultHistoryConfig returns the production history settings.
func DefaultHistoryConfig() HistoryConfig {
	return HistoryConfig{RecencyDays: 30, MaxResults: 50}
}

// History searches a Chromium History SQLite database for visited pages
// matching the keywords. The running browser holds a lock on the live
// file, so each search works on a temp copy.
type History struct {
	cfg    HistoryConfig
	logger *zap.Logger
}

var _ Source = (*History)(nil)

// NewHistory creates a browsing history connector.
func NewHistory(cfg HistoryConfig, logger *zap.Logger) *History {
	def := DefaultHistoryConfig()
	if cfg.RecencyDays <= 0 {
		cfg.RecencyDays = def.RecencyDays
	}
	if cfg.MaxResults <= 0 {
		cfg.MaxResults = def.MaxResults
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	return &History{cfg: cfg, logger: logger.With(zap.String("component", "history_source"))}
}

func (h *History) Name() string { return "browser_history" }

// Chromium stores timestamps as microseconds since 1601-01-01.
const chromeEpochOffsetSeconds = 11644473600

func toChromeTime(t time.Time) int64 {
	return (t.Unix() + chromeEpochOffsetSeconds) * 1_000_000
}

// Search returns recently visited pages whose title or URL matches any
// keyword. The document content is just the page title; the web fetcher
// turns promising URLs into full documents afterwards.
func (h *History) Search(ctx context.Context, keywords []string, limit int) ([]types.RawDocument, error) {
	if limit <= 0 || limit > h.cfg.MaxResults {
		limit = h.cfg.MaxResults
	}
	tmpPath, cleanup, err := h.copyDB()
	if err != nil {
		return nil, err
	}
	defer cleanup()

	db, err := sql.Open("sqlite", tmpPath+"?mode=ro")
	if err != nil {
		return nil, fmt.Errorf("open history copy: %w", err)
	}
	defer db.Close()

	var (
		conds []string
		args  []any
	)
	for _, kw := range keywords {
		kw = strings.TrimSpace(kw)
		if kw == "" {
			continue
		}
		conds = append(conds, "(title LIKE ? OR url LIKE ?)")
		pattern := "%" + kw + "%"
		args = append(args, pattern, pattern)
	}
	if len(conds) == 0 {
		return nil, nil
	}
	cutoff := toChromeTime(time.Now().AddDate(0, 0, -h.cfg.RecencyDays))
	query := fmt.Sprintf(
		`SELECT url, title, last_visit_time FROM urls
		 WHERE last_visit_time >= ? AND (%s)
		 ORDER BY last_visit_time DESC LIMIT ?`,
		strings.Join(conds, " OR "))
	args = append([]any{cutoff}, append(args, limit)...)

	rows, err := db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("query history: %w", err)
	}
	defer rows.Close()

	var docs []types.RawDocument
	for rows.Next() {
		var (
			url, title string
			visited    int64
		)
		if err := rows.Scan(&url, &title, &visited); err != nil {
			return nil, fmt.Errorf("scan history row: %w", err)
		}
		docs = append(docs, types.RawDocument{
			ID:      url,
			Title:   title,
			Content: title,
			Source:  h.Name(),
			URL:     url,
		})
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate history rows: %w", err)
	}
	h.logger.Debug("history searched",
		zap.Int("keywords", len(keywords)),
		zap.Int("matches", len(docs)))
	return docs, nil
}

// copyDB snapshots the locked history file into the temp dir.
func (h *History) copyDB() (string, func(), error) {
	src, err := os.Open(h.cfg.DBPath)
	if err != nil {
		return "", nil, fmt.Errorf("open history db: %w", err)
	}
	defer src.Close()

	tmp, err := os.CreateTemp("", "memflow-history-*.db")
	if err != nil {
		return "", nil, fmt.Errorf("create history copy: %w", err)
	}
	if _, err := io.Copy(tmp, src); err != nil {
		tmp.Close()
		os.Remove(tmp.Name())
		return "", nil, fmt.Errorf("copy history db: %w", err)
	}
	if err := tmp.Close(); err != nil {
		os.Remove(tmp.Name())
		return "", nil, fmt.Errorf("close history copy: %w", err)
	}
	path := filepath.Clean(tmp.Name())
	return path, func() { os.Remove(path) }, nil
}
