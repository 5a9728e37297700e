package rag

import (
	"strings"
	"testing"
	"unicode/utf8"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"pgregory.net/rapid"

	"github.com/BaSui01/memflow/types"
)

func TestSplitter_SplitShortText(t *testing.T) {
	t.Parallel()

	s := NewSplitter(types.ChunkConfig{Size: 100}, nil)
	got := s.Split("a short paragraph")
	assert.Equal(t, []string{"a short paragraph"}, got)
}

func TestSplitter_SplitEmpty(t *testing.T) {
	t.Parallel()

	s := NewSplitter(types.ChunkConfig{Size: 100}, nil)
	assert.Nil(t, s.Split(""))
	assert.Nil(t, s.Split("   \n\t  "))
}

func TestSplitter_SplitOnParagraphs(t *testing.T) {
	t.Parallel()

	s := NewSplitter(types.ChunkConfig{Size: 30}, nil)
	text := strings.Repeat("alpha ", 4) + "\n\n" + strings.Repeat("beta ", 4) + "\n\n" + strings.Repeat("gamma ", 4)
	chunks := s.Split(text)
	require.Greater(t, len(chunks), 1)
	for _, c := range chunks {
		assert.LessOrEqual(t, utf8.RuneCountInString(c), 30)
	}
}

func TestSplitter_SplitNoSeparator(t *testing.T) {
	t.Parallel()

	s := NewSplitter(types.ChunkConfig{Size: 10, Separators: []string{""}}, nil)
	chunks := s.Split(strings.Repeat("x", 25))
	assert.Equal(t, []string{strings.Repeat("x", 10), strings.Repeat("x", 10), "xxxxx"}, chunks)
}

func TestSplitter_SplitCJKSentences(t *testing.T) {
	t.Parallel()

	s := NewSplitter(types.ChunkConfig{Size: 12}, nil)
	chunks := s.Split("これは最初の文です。これは二番目の文です。")
	require.Len(t, chunks, 2)
	assert.Equal(t, "これは最初の文です。", chunks[0])
	assert.Equal(t, "これは二番目の文です。", chunks[1])
}

func TestSplitter_Overlap(t *testing.T) {
	t.Parallel()

	s := NewSplitter(types.ChunkConfig{Size: 20, Overlap: 5}, nil)
	chunks := s.Split("first sentence here\n\nsecond sentence here")
	require.Len(t, chunks, 2)
	assert.Equal(t, "first sentence here", chunks[0])
	// The second chunk carries the tail of the first.
	assert.Equal(t, "here second sentence here", chunks[1])
}

func TestNewSplitter_ClampsOverlap(t *testing.T) {
	t.Parallel()

	s := NewSplitter(types.ChunkConfig{Size: 100, Overlap: 90}, nil)
	assert.Equal(t, 50, s.cfg.Overlap)
}

func TestSplitter_ChunkSizeProperty(t *testing.T) {
	t.Parallel()

	rapid.Check(t, func(t *rapid.T) {
		size := rapid.IntRange(10, 200).Draw(t, "size")
		text := rapid.StringN(-1, 2000, -1).Draw(t, "text")

		s := NewSplitter(types.ChunkConfig{Size: size}, nil)
		for i, c := range s.Split(text) {
			if n := utf8.RuneCountInString(c); n > size {
				t.Fatalf("chunk %d has %d runes, limit %d", i, n, size)
			}
			if strings.TrimSpace(c) == "" {
				t.Fatalf("chunk %d is blank", i)
			}
		}
	})
}
