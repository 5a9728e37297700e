package sources

import (
	"context"
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/BaSui01/memflow/types"
)

type staticSource struct {
	name string
	docs []types.RawDocument
	err  error
}

func (s *staticSource) Name() string { return s.name }

func (s *staticSource) Search(_ context.Context, _ []string, _ int) ([]types.RawDocument, error) {
	return s.docs, s.err
}

func TestRegistry_SearchAllKeepsRegistrationOrder(t *testing.T) {
	t.Parallel()

	r := NewRegistry(nil,
		&staticSource{name: "first", docs: []types.RawDocument{{ID: "f1"}, {ID: "f2"}}},
		&staticSource{name: "second", docs: []types.RawDocument{{ID: "s1"}}},
	)

	docs, outcomes := r.SearchAll(context.Background(), []string{"kw"}, 10)
	require.Len(t, docs, 3)
	assert.Equal(t, "f1", docs[0].ID)
	assert.Equal(t, "f2", docs[1].ID)
	assert.Equal(t, "s1", docs[2].ID)

	require.Len(t, outcomes, 2)
	assert.Equal(t, SearchOutcome{Source: "first", Documents: 2}, outcomes[0])
	assert.Equal(t, SearchOutcome{Source: "second", Documents: 1}, outcomes[1])
}

func TestRegistry_SearchAllToleratesFailures(t *testing.T) {
	t.Parallel()

	r := NewRegistry(nil,
		&staticSource{name: "broken", err: errors.New("db locked")},
		&staticSource{name: "healthy", docs: []types.RawDocument{{ID: "ok"}}},
	)

	docs, outcomes := r.SearchAll(context.Background(), []string{"kw"}, 10)
	require.Len(t, docs, 1)
	assert.Equal(t, "ok", docs[0].ID)

	require.Len(t, outcomes, 2)
	assert.True(t, outcomes[0].Failed)
	assert.Equal(t, SearchOutcome{Source: "healthy", Documents: 1}, outcomes[1])
}

func TestRegistry_Names(t *testing.T) {
	t.Parallel()

	r := NewRegistry(nil, &staticSource{name: "a"}, &staticSource{name: "b"})
	assert.Equal(t, []string{"a", "b"}, r.Names())
}

func TestRegistry_Empty(t *testing.T) {
	t.Parallel()

	r := NewRegistry(nil)
	docs, outcomes := r.SearchAll(context.Background(), []string{"kw"}, 10)
	assert.Empty(t, docs)
	assert.Empty(t, outcomes)
	assert.Empty(t, r.Names())
}
