package sources

import (
	"context"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"path"
	"strings"
	"sync"
	"time"
	"unicode/utf8"

	"go.uber.org/zap"
	"golang.org/x/net/html"
	"golang.org/x/sync/errgroup"
	"golang.org/x/time/rate"

	"github.com/BaSui01/memflow/types"
)

// WebFetchConfig configures the web page fetcher.
type WebFetchConfig struct {
	Timeout        time.Duration `json:"timeout" yaml:"timeout"`
	MaxConcurrent  int           `json:"max_concurrent" yaml:"max_concurrent"`
	RequestsPerSec float64       `json:"requests_per_sec" yaml:"requests_per_sec"`
	MaxContentLen  int           `json:"max_content_len" yaml:"max_content_len"`
	UserAgent      string        `json:"user_agent" yaml:"user_agent"`
}

// DefaultWebFetchConfig returns the production fetch settings.
func DefaultWebFetchConfig() WebFetchConfig {
	return WebFetchConfig{
		Timeout:        15 * time.Second,
		MaxConcurrent:  3,
		RequestsPerSec: 2,
		MaxContentLen:  50_000,
		UserAgent:      "memflow/1.0",
	}
}

// WebFetcher turns URLs from the browsing history into full text
// documents. Fetches are rate limited and bounded in concurrency so a
// search never hammers the network.
type WebFetcher struct {
	cfg     WebFetchConfig
	client  *http.Client
	limiter *rate.Limiter
	logger  *zap.Logger
}

// NewWebFetcher creates a WebFetcher.
func NewWebFetcher(cfg WebFetchConfig, logger *zap.Logger) *WebFetcher {
	def := DefaultWebFetchConfig()
	if cfg.Timeout == 0 {
		cfg.Timeout = def.Timeout
	}
	if cfg.MaxConcurrent <= 0 {
		cfg.MaxConcurrent = def.MaxConcurrent
	}
	if cfg.RequestsPerSec <= 0 {
		cfg.RequestsPerSec = def.RequestsPerSec
	}
	if cfg.MaxContentLen <= 0 {
		cfg.MaxContentLen = def.MaxContentLen
	}
	if cfg.UserAgent == "" {
		cfg.UserAgent = def.UserAgent
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	return &WebFetcher{
		cfg:     cfg,
		client:  &http.Client{Timeout: cfg.Timeout},
		limiter: rate.NewLimiter(rate.Limit(cfg.RequestsPerSec), 1),
		logger:  logger.With(zap.String("component", "web_fetcher")),
	}
}

var skipURLMarkers = []string{
	"google.com/search",
	"bing.com/search",
	"youtube.com/watch",
	"twitter.com",
	"x.com/",
	"facebook.com",
	"instagram.com",
	"localhost",
	"127.0.0.1",
}

var skipExtensions = map[string]struct{}{
	".pdf": {}, ".zip": {}, ".tar": {}, ".gz": {}, ".exe": {}, ".dmg": {},
	".png": {}, ".jpg": {}, ".jpeg": {}, ".gif": {}, ".svg": {}, ".webp": {},
	".mp3": {}, ".mp4": {}, ".avi": {}, ".mov": {},
}

// Fetchable reports whether a URL is worth fetching as page content.
// Search result pages, social feeds, local addresses, and binary assets
// are skipped.
func Fetchable(raw string) bool {
	u, err := url.Parse(raw)
	if err != nil || (u.Scheme != "http" && u.Scheme != "https") {
		return false
	}
	lowered := strings.ToLower(raw)
	for _, m := range skipURLMarkers {
		if strings.Contains(lowered, m) {
			return false
		}
	}
	if ext := strings.ToLower(path.Ext(u.Path)); ext != "" {
		if _, skip := skipExtensions[ext]; skip {
			return false
		}
	}
	return true
}

// FetchAll retrieves the fetchable URLs and returns one document per page
// that yielded usable text. Individual fetch failures are logged and
// skipped.
func (f *WebFetcher) FetchAll(ctx context.Context, urls []string) []types.RawDocument {
	var (
		mu   sync.Mutex
		docs []types.RawDocument
	)
	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(f.cfg.MaxConcurrent)
	for _, u := range urls {
		if !Fetchable(u) {
			continue
		}
		g.Go(func() error {
			doc, err := f.fetch(gctx, u)
			if err != nil {
				f.logger.Debug("page fetch failed",
					zap.String("url", u),
					zap.Error(err))
				return nil
			}
			mu.Lock()
			docs = append(docs, doc)
			mu.Unlock()
			return nil
		})
	}
	_ = g.Wait()
	f.logger.Info("pages fetched",
		zap.Int("requested", len(urls)),
		zap.Int("fetched", len(docs)))
	return docs
}

func (f *WebFetcher) fetch(ctx context.Context, pageURL string) (types.RawDocument, error) {
	if err := f.limiter.Wait(ctx); err != nil {
		return types.RawDocument{}, err
	}
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, pageURL, nil)
	if err != nil {
		return types.RawDocument{}, err
	}
	req.Header.Set("User-Agent", f.cfg.UserAgent)

	resp, err := f.client.Do(req)
	if err != nil {
		return types.RawDocument{}, err
	}
	defer resp.Body.Close()
	if resp.StatusCode != http.StatusOK {
		return types.RawDocument{}, fmt.Errorf("status %d", resp.StatusCode)
	}
	ct := resp.Header.Get("Content-Type")
	if ct != "" && !strings.Contains(ct, "text/html") && !strings.Contains(ct, "text/plain") {
		return types.RawDocument{}, fmt.Errorf("unsupported content type %q", ct)
	}

	body, err := io.ReadAll(io.LimitReader(resp.Body, int64(f.cfg.MaxContentLen)*4))
	if err != nil {
		return types.RawDocument{}, err
	}

	title, text := extractText(string(body))
	text = strings.TrimSpace(text)
	if text == "" {
		return types.RawDocument{}, fmt.Errorf("no extractable text")
	}
	text = truncateOnRune(text, f.cfg.MaxContentLen)
	return types.RawDocument{
		ID:      pageURL,
		Title:   title,
		Content: text,
		Source:  "web",
		URL:     pageURL,
	}, nil
}

// extractText walks the HTML tree collecting visible text, skipping
// script, style, and navigation chrome.
func extractText(content string) (title, text string) {
	doc, err := html.Parse(strings.NewReader(content))
	if err != nil {
		return "", content
	}
	var sb strings.Builder
	var walk func(*html.Node)
	walk = func(n *html.Node) {
		if n.Type == html.ElementNode {
			switch n.Data {
			case "script", "style", "noscript", "nav", "header", "footer", "aside":
				return
			case "title":
				if n.FirstChild != nil && title == "" {
					title = strings.TrimSpace(n.FirstChild.Data)
				}
				return
			}
		}
		if n.Type == html.TextNode {
			if t := strings.TrimSpace(n.Data); t != "" {
				sb.WriteString(t)
				sb.WriteString(" ")
			}
		}
		for c := n.FirstChild; c != nil; c = c.NextSibling {
			walk(c)
		}
	}
	walk(doc)
	return title, sb.String()
}

// truncateOnRune cuts s to at most max bytes without splitting a UTF-8
// sequence, so CJK pages never end on an invalid byte.
func truncateOnRune(s string, max int) string {
	if len(s) <= max {
		return s
	}
	cut := max
	for cut > 0 && !utf8.RuneStart(s[cut]) {
		cut--
	}
	return s[:cut]
}
