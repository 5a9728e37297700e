package rag

import (
	"strings"
	"unicode/utf8"

	"go.uber.org/zap"

	"github.com/BaSui01/memflow/types"
)

// DefaultSeparators is the separator hierarchy for recursive splitting:
// paragraph, line, CJK sentence end, sentence end, word, character.
var DefaultSeparators = []string{"\n\n", "\n", "。", ".", " ", ""}

// Splitter cuts document text into chunks by recursively descending a
// separator hierarchy. Sizes are measured in runes.
type Splitter struct {
	cfg    types.ChunkConfig
	logger *zap.Logger
}

// NewSplitter creates a Splitter. Zero config fields get safe defaults.
func NewSplitter(cfg types.ChunkConfig, logger *zap.Logger) *Splitter {
	if cfg.Size <= 0 {
		cfg.Size = 1000
	}
	if cfg.Overlap < 0 {
		cfg.Overlap = 0
	}
	if cfg.Overlap > cfg.Size/2 {
		cfg.Overlap = cfg.Size / 2
	}
	if len(cfg.Separators) == 0 {
		cfg.Separators = DefaultSeparators
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Splitter{cfg: cfg, logger: logger.With(zap.String("component", "splitter"))}
}

// Split divides text into chunks of at most the configured size, each
// chunk after the first prefixed with the tail of its predecessor.
func (s *Splitter) Split(text string) []string {
	text = strings.TrimSpace(text)
	if text == "" {
		return nil
	}
	chunks := s.split(text, s.cfg.Separators)
	chunks = s.applyOverlap(chunks)
	s.logger.Debug("document split",
		zap.Int("chunks", len(chunks)),
		zap.Int("chunk_size", s.cfg.Size),
		zap.Int("overlap", s.cfg.Overlap))
	return chunks
}

func (s *Splitter) split(text string, separators []string) []string {
	if utf8.RuneCountInString(text) <= s.cfg.Size {
		if strings.TrimSpace(text) == "" {
			return nil
		}
		return []string{text}
	}

	sep, rest := pickSeparator(text, separators)

	var parts []string
	if sep == "" {
		return splitRunes(text, s.cfg.Size)
	}
	parts = strings.SplitAfter(text, sep)

	// Split oversized parts with the remaining separators, then merge
	// adjacent small parts back up to the chunk size.
	fitted := make([]string, 0, len(parts))
	for _, part := range parts {
		if utf8.RuneCountInString(part) <= s.cfg.Size {
			fitted = append(fitted, part)
			continue
		}
		fitted = append(fitted, s.split(part, rest)...)
	}
	return s.merge(fitted)
}

func (s *Splitter) merge(parts []string) []string {
	var (
		chunks  []string
		current strings.Builder
		count   int
	)
	flush := func() {
		c := strings.TrimSpace(current.String())
		if c != "" {
			chunks = append(chunks, c)
		}
		current.Reset()
		count = 0
	}
	for _, part := range parts {
		n := utf8.RuneCountInString(part)
		if count+n > s.cfg.Size && count > 0 {
			flush()
		}
		current.WriteString(part)
		count += n
	}
	flush()
	return chunks
}

// applyOverlap prefixes each chunk after the first with the tail of the
// previous chunk so boundary context is not lost.
func (s *Splitter) applyOverlap(chunks []string) []string {
	if s.cfg.Overlap == 0 || len(chunks) <= 1 {
		return chunks
	}
	out := make([]string, len(chunks))
	out[0] = chunks[0]
	for i := 1; i < len(chunks); i++ {
		prev := []rune(chunks[i-1])
		start := len(prev) - s.cfg.Overlap
		if start < 0 {
			start = 0
		}
		out[i] = strings.TrimSpace(string(prev[start:]) + " " + chunks[i])
	}
	return out
}

// pickSeparator returns the first separator present in text and the
// remainder of the hierarchy after it.
func pickSeparator(text string, separators []string) (string, []string) {
	for i, sep := range separators {
		if sep == "" {
			return "", nil
		}
		if strings.Contains(text, sep) {
			return sep, separators[i+1:]
		}
	}
	return "", nil
}

func splitRunes(text string, size int) []string {
	runes := []rune(text)
	var chunks []string
	for i := 0; i < len(runes); i += size {
		end := i + size
		if end > len(runes) {
			end = len(runes)
		}
		c := strings.TrimSpace(string(runes[i:end]))
		if c != "" {
			chunks = append(chunks, c)
		}
	}
	return chunks
}
