package handlers

import (
	"context"
	"net/http"
	"strings"
	"sync"
	"time"

	"github.com/coder/websocket"
	"github.com/coder/websocket/wsjson"
	"go.uber.org/zap"

	"github.com/BaSui01/memflow/rag"
	"github.com/BaSui01/memflow/types"
)

// wsSearchTimeout bounds one WebSocket-driven search.
const wsSearchTimeout = 5 * time.Minute

// WSMessage is the envelope for every server-to-client frame.
type WSMessage struct {
	Type     string               `json:"type"` // progress, result, error
	Progress *types.ProgressEvent `json:"progress,omitempty"`
	Result   *types.SearchResult  `json:"result,omitempty"`
	Error    *ErrorInfo           `json:"error,omitempty"`
}

// WSHandler serves GET /ws/search: the client sends one search request
// and receives stage progress frames followed by the final result.
type WSHandler struct {
	pipeline *rag.Pipeline
	logger   *zap.Logger
}

// NewWSHandler creates a WSHandler.
func NewWSHandler(pipeline *rag.Pipeline, logger *zap.Logger) *WSHandler {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &WSHandler{
		pipeline: pipeline,
		logger:   logger.With(zap.String("component", "ws_handler")),
	}
}

func (h *WSHandler) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	conn, err := websocket.Accept(w, r, nil)
	if err != nil {
		h.logger.Warn("websocket accept failed", zap.Error(err))
		return
	}
	defer conn.Close(websocket.StatusInternalError, "unexpected close")

	ctx, cancel := context.WithTimeout(r.Context(), wsSearchTimeout)
	defer cancel()

	var req SearchRequest
	if err := wsjson.Read(ctx, conn, &req); err != nil {
		conn.Close(websocket.StatusInvalidFramePayloadData, "invalid request")
		return
	}
	req.Query = strings.TrimSpace(req.Query)
	if req.Query == "" {
		h.writeError(ctx, conn, types.NewError(types.ErrInvalidRequest, "query is required"))
		conn.Close(websocket.StatusNormalClosure, "")
		return
	}

	// Progress events arrive from pipeline goroutines; serialize writes.
	var writeMu sync.Mutex
	write := func(msg WSMessage) {
		writeMu.Lock()
		defer writeMu.Unlock()
		if err := wsjson.Write(ctx, conn, msg); err != nil {
			h.logger.Debug("websocket write failed", zap.Error(err))
		}
	}

	result, err := h.pipeline.Search(ctx, req.Query, func(ev types.ProgressEvent) {
		write(WSMessage{Type: "progress", Progress: &ev})
	})
	if err != nil {
		te, ok := err.(*types.Error)
		if !ok {
			te = types.NewError(types.ErrInternalError, err.Error())
		}
		h.writeError(ctx, conn, te)
		conn.Close(websocket.StatusNormalClosure, "")
		return
	}

	write(WSMessage{Type: "result", Result: result})
	conn.Close(websocket.StatusNormalClosure, "")
}

func (h *WSHandler) writeError(ctx context.Context, conn *websocket.Conn, te *types.Error) {
	msg := WSMessage{Type: "error", Error: &ErrorInfo{
		Code:      string(te.Code),
		Message:   te.Message,
		Retryable: te.Retryable,
	}}
	if err := wsjson.Write(ctx, conn, msg); err != nil {
		h.logger.Debug("websocket error write failed", zap.Error(err))
	}
}
