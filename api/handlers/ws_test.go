package handlers

import (
	"context"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/coder/websocket"
	"github.com/coder/websocket/wsjson"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/BaSui01/memflow/llm"
	"github.com/BaSui01/memflow/rag"
	"github.com/BaSui01/memflow/rag/sources"
	"github.com/BaSui01/memflow/types"
)

func newWSTestServer(t *testing.T, provider llm.Provider, docs []types.RawDocument) *httptest.Server {
	t.Helper()
	registry := sources.NewRegistry(nil, memorySource{docs: docs})
	pipeline := rag.NewPipeline(rag.DefaultPipelineConfig(), provider, registry, nil, nil, nil, nil)
	srv := httptest.NewServer(NewWSHandler(pipeline, nil))
	t.Cleanup(srv.Close)
	return srv
}

func TestWSHandler_SearchStream(t *testing.T) {
	t.Parallel()

	srv := newWSTestServer(t, scriptedProvider{}, searchCorpus())

	ctx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()
	conn, _, err := websocket.Dial(ctx, "ws"+srv.URL[len("http"):], nil)
	require.NoError(t, err)
	defer conn.Close(websocket.StatusNormalClosure, "")

	require.NoError(t, wsjson.Write(ctx, conn, SearchRequest{Query: "how does raft work"}))

	var (
		progress int
		result   *types.SearchResult
	)
	for result == nil {
		var msg WSMessage
		require.NoError(t, wsjson.Read(ctx, conn, &msg))
		switch msg.Type {
		case "progress":
			progress++
			require.NotNil(t, msg.Progress)
			assert.Equal(t, 5, msg.Progress.Total)
		case "result":
			result = msg.Result
		default:
			t.Fatalf("unexpected frame type %q", msg.Type)
		}
	}

	assert.Equal(t, 5, progress, "one progress frame per stage")
	assert.NotEmpty(t, result.Sources)
	assert.Empty(t, result.Reason)
}

func TestWSHandler_SearchError(t *testing.T) {
	t.Parallel()

	srv := newWSTestServer(t, llm.UnavailableProvider{}, searchCorpus())

	ctx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()
	conn, _, err := websocket.Dial(ctx, "ws"+srv.URL[len("http"):], nil)
	require.NoError(t, err)
	defer conn.Close(websocket.StatusNormalClosure, "")

	require.NoError(t, wsjson.Write(ctx, conn, SearchRequest{Query: "anything"}))

	for {
		var msg WSMessage
		require.NoError(t, wsjson.Read(ctx, conn, &msg))
		if msg.Type == "progress" {
			continue
		}
		require.Equal(t, "error", msg.Type)
		assert.Equal(t, "KEYWORD_GENERATION_FAILED", msg.Error.Code)
		break
	}
}

func TestWSHandler_EmptyQuery(t *testing.T) {
	t.Parallel()

	srv := newWSTestServer(t, scriptedProvider{}, nil)

	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	conn, _, err := websocket.Dial(ctx, "ws"+srv.URL[len("http"):], nil)
	require.NoError(t, err)
	defer conn.Close(websocket.StatusNormalClosure, "")

	require.NoError(t, wsjson.Write(ctx, conn, SearchRequest{Query: "  "}))

	var msg WSMessage
	require.NoError(t, wsjson.Read(ctx, conn, &msg))
	assert.Equal(t, "error", msg.Type)
	assert.Equal(t, "INVALID_REQUEST", msg.Error.Code)
}
