package rag

import (
	"crypto/sha256"
	"encoding/hex"
	"strings"
	"unicode/utf8"

	"go.uber.org/zap"

	"github.com/BaSui01/memflow/types"
)

// FilterConfig tunes the document quality filter.
type FilterConfig struct {
	MinContentLength int `json:"min_content_length" yaml:"min_content_length"`
	// ShortPageLength is the length under which a page with a no-results
	// marker is treated as an empty search result page.
	ShortPageLength int `json:"short_page_length" yaml:"short_page_length"`
}

// DefaultFilterConfig returns the production filter settings.
func DefaultFilterConfig() FilterConfig {
	return FilterConfig{
		MinContentLength: 100,
		ShortPageLength:  1000,
	}
}

// FilterStats summarizes one filtering pass.
type FilterStats struct {
	Input             int `json:"input"`
	Kept              int `json:"kept"`
	SearchPages       int `json:"search_pages"`
	LowQuality        int `json:"low_quality"`
	BlockedDomains    int `json:"blocked_domains"`
	Duplicates        int `json:"duplicates"`
	PredicateFailures int `json:"predicate_failures"`
}

// Filter discards documents that would pollute the vector index: search
// engine result pages, low quality content, pages from blocked domains,
// and duplicates. Every predicate fails open: a predicate that panics
// keeps the document, since losing good material is worse than indexing
// a bad page.
type Filter struct {
	cfg    FilterConfig
	logger *zap.Logger
}

// NewFilter creates a Filter.
func NewFilter(cfg FilterConfig, logger *zap.Logger) *Filter {
	if cfg.MinContentLength <= 0 {
		cfg.MinContentLength = DefaultFilterConfig().MinContentLength
	}
	if cfg.ShortPageLength <= 0 {
		cfg.ShortPageLength = DefaultFilterConfig().ShortPageLength
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Filter{cfg: cfg, logger: logger.With(zap.String("component", "quality_filter"))}
}

// Apply returns the documents worth indexing, preserving input order.
func (f *Filter) Apply(docs []types.RawDocument) ([]types.RawDocument, FilterStats) {
	stats := FilterStats{Input: len(docs)}
	seen := make(map[string]struct{}, len(docs))
	kept := make([]types.RawDocument, 0, len(docs))

	for _, doc := range docs {
		if f.safePredicate(&stats, func() bool { return f.isSearchResultPage(doc) }) {
			stats.SearchPages++
			continue
		}
		if f.safePredicate(&stats, func() bool { return f.isLowQuality(doc) }) {
			stats.LowQuality++
			continue
		}
		if f.safePredicate(&stats, func() bool { return f.isBlockedDomain(doc) }) {
			stats.BlockedDomains++
			continue
		}
		fp := Fingerprint(doc.Content)
		if _, dup := seen[fp]; dup {
			stats.Duplicates++
			continue
		}
		seen[fp] = struct{}{}
		kept = append(kept, doc)
	}
	stats.Kept = len(kept)
	f.logger.Info("documents filtered",
		zap.Int("input", stats.Input),
		zap.Int("kept", stats.Kept),
		zap.Int("search_pages", stats.SearchPages),
		zap.Int("low_quality", stats.LowQuality),
		zap.Int("blocked_domains", stats.BlockedDomains),
		zap.Int("duplicates", stats.Duplicates))
	return kept, stats
}

// safePredicate runs a discard predicate and converts a panic into "keep".
func (f *Filter) safePredicate(stats *FilterStats, pred func() bool) (discard bool) {
	defer func() {
		if r := recover(); r != nil {
			stats.PredicateFailures++
			f.logger.Warn("filter predicate panicked, keeping document",
				zap.Any("panic", r))
			discard = false
		}
	}()
	return pred()
}

var searchURLMarkers = []string{
	"google.com/search",
	"bing.com/search",
	"duckduckgo.com/?q=",
	"search.yahoo.com",
	"/search?q=",
}

var searchTitleMarkers = []string{
	"search results",
	"検索結果",
	"- google search",
	"- bing",
}

var noResultsMarkers = []string{
	"did not match any documents",
	"no results found",
	"did you mean",
	"に一致する情報は見つかりませんでした",
}

// isSearchResultPage reports whether a document is a search engine result
// page rather than content. A page counts when its URL or title matches a
// known pattern, or when it is both short and carries a no-results marker.
func (f *Filter) isSearchResultPage(doc types.RawDocument) bool {
	url := strings.ToLower(doc.URL)
	for _, m := range searchURLMarkers {
		if strings.Contains(url, m) {
			return true
		}
	}
	title := strings.ToLower(doc.Title)
	for _, m := range searchTitleMarkers {
		if strings.Contains(title, m) {
			return true
		}
	}
	if utf8.RuneCountInString(doc.Content) < f.cfg.ShortPageLength {
		content := strings.ToLower(doc.Content)
		for _, m := range noResultsMarkers {
			if strings.Contains(content, m) {
				return true
			}
		}
	}
	return false
}

var errorPageMarkers = []string{
	"404 not found",
	"403 forbidden",
	"access denied",
	"please enable javascript",
	"page not found",
}

var navigationMarkers = []string{
	"skip to content",
	"main menu",
	"navigation",
	"privacy policy",
	"terms of service",
	"all rights reserved",
	"cookie settings",
}

const (
	navigationWordLimit   = 50
	sentenceUniquenessMin = 0.5
	sentenceCountTrigger  = 5
)

// isLowQuality reports whether a document carries too little substance to
// index: near-empty content, a bare error page, navigation chrome with no
// body, or boilerplate that repeats the same few sentences.
func (f *Filter) isLowQuality(doc types.RawDocument) bool {
	content := strings.TrimSpace(doc.Content)
	if utf8.RuneCountInString(content) < f.cfg.MinContentLength {
		return true
	}
	lowered := strings.ToLower(content)
	if utf8.RuneCountInString(content) < f.cfg.ShortPageLength {
		for _, m := range errorPageMarkers {
			if strings.Contains(lowered, m) {
				return true
			}
		}
	}
	if len(strings.Fields(content)) <= navigationWordLimit {
		for _, m := range navigationMarkers {
			if strings.Contains(lowered, m) {
				return true
			}
		}
	}
	return repeatsSentences(lowered)
}

// repeatsSentences reports whether fewer than half of the document's
// sentences are unique, which marks scraped boilerplate. Documents with
// five or fewer sentences are exempt.
func repeatsSentences(lowered string) bool {
	sentences := strings.FieldsFunc(lowered, func(r rune) bool {
		switch r {
		case '.', '!', '?', '。', '．':
			return true
		}
		return false
	})
	total := 0
	unique := make(map[string]struct{})
	for _, s := range sentences {
		s = strings.TrimSpace(s)
		if s == "" {
			continue
		}
		total++
		unique[s] = struct{}{}
	}
	if total <= sentenceCountTrigger {
		return false
	}
	return float64(len(unique))/float64(total) < sentenceUniquenessMin
}

var blockedDomainMarkers = []string{
	"youtube.com/watch",
	"twitter.com",
	"facebook.com",
	"instagram.com",
	"tiktok.com",
	"localhost",
	"127.0.0.1",
}

// isBlockedDomain reports whether a document comes from a host that never
// yields indexable content: social networks, video watch pages, and
// loopback addresses.
func (f *Filter) isBlockedDomain(doc types.RawDocument) bool {
	if doc.URL == "" {
		return false
	}
	url := strings.ToLower(doc.URL)
	for _, m := range blockedDomainMarkers {
		if strings.Contains(url, m) {
			return true
		}
	}
	return false
}

// Fingerprint returns the dedup key for document content: a hash of the
// first 100 characters after whitespace normalization. Near-identical
// fetches of the same page collide here even when trailing boilerplate
// differs.
func Fingerprint(content string) string {
	normalized := strings.Join(strings.Fields(content), " ")
	runes := []rune(normalized)
	if len(runes) > 100 {
		runes = runes[:100]
	}
	sum := sha256.Sum256([]byte(string(runes)))
	return hex.EncodeToString(sum[:8])
}
