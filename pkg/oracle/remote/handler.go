package remote

import (
	"context"
	"log/slog"
	"net/http"
	"slices"

	"github.com/gorilla/websocket"
	"github.com/vmihailenco/msgpack/v5"

	"github.com/haivivi/voiceshield/pkg/perturb"
)

// DefaultPendingWindow is the number of embed_grad results a connection
// keeps waiting for their backward call. Older ones are dropped.
const DefaultPendingWindow = 8

// Handler serves an oracle to remote clients. Each connection is handled
// sequentially in its own goroutine; the oracle must therefore be safe
// for concurrent use across connections.
type Handler struct {
	oracle   perturb.Oracle
	logger   *slog.Logger
	upgrader websocket.Upgrader
	maxBytes int64
	window   int
}

// HandlerOption configures a Handler.
type HandlerOption func(*Handler)

// WithHandlerLogger sets the logger (default slog.Default()).
func WithHandlerLogger(l *slog.Logger) HandlerOption {
	return func(h *Handler) {
		if l != nil {
			h.logger = l
		}
	}
}

// WithMaxMessageBytes limits the size of incoming frames (default 64 MiB,
// about 8M float64 samples).
func WithMaxMessageBytes(n int64) HandlerOption {
	return func(h *Handler) {
		if n > 0 {
			h.maxBytes = n
		}
	}
}

// WithPendingWindow sets how many embed_grad results one connection keeps
// for a later backward call (default DefaultPendingWindow).
func WithPendingWindow(n int) HandlerOption {
	return func(h *Handler) {
		if n > 0 {
			h.window = n
		}
	}
}

// NewHandler returns an http.Handler serving oracle over WebSocket.
func NewHandler(oracle perturb.Oracle, opts ...HandlerOption) *Handler {
	h := &Handler{
		oracle:   oracle,
		logger:   slog.Default(),
		maxBytes: 64 << 20,
		window:   DefaultPendingWindow,
		upgrader: websocket.Upgrader{
			ReadBufferSize:  64 << 10,
			WriteBufferSize: 64 << 10,
		},
	}
	for _, opt := range opts {
		opt(h)
	}
	return h
}

type pendingGrad struct {
	id       uint64
	backward perturb.Backward
}

// ServeHTTP implements http.Handler.
func (h *Handler) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	conn, err := h.upgrader.Upgrade(w, r, nil)
	if err != nil {
		h.logger.Warn("remote: upgrade failed", "remote_addr", r.RemoteAddr, "error", err)
		return
	}
	defer conn.Close()
	conn.SetReadLimit(h.maxBytes)

	ctx := r.Context()
	var pending []pendingGrad

	for {
		_, msg, err := conn.ReadMessage()
		if err != nil {
			if websocket.IsUnexpectedCloseError(err, websocket.CloseNormalClosure, websocket.CloseGoingAway) {
				h.logger.Warn("remote: read failed", "remote_addr", r.RemoteAddr, "error", err)
			}
			return
		}

		var req request
		var resp response
		if err := msgpack.Unmarshal(msg, &req); err != nil {
			resp.Error = "malformed request: " + err.Error()
		} else {
			resp = h.dispatch(ctx, &req, &pending)
		}

		data, err := msgpack.Marshal(&resp)
		if err != nil {
			h.logger.Error("remote: encode response", "error", err)
			return
		}
		if err := conn.WriteMessage(websocket.BinaryMessage, data); err != nil {
			h.logger.Warn("remote: write failed", "remote_addr", r.RemoteAddr, "error", err)
			return
		}
	}
}

func (h *Handler) dispatch(ctx context.Context, req *request, pending *[]pendingGrad) response {
	resp := response{ID: req.ID}
	switch req.Op {
	case opEmbed:
		emb, err := h.oracle.Embed(ctx, req.Samples)
		if err != nil {
			resp.Error = err.Error()
			break
		}
		resp.Embedding = emb

	case opEmbedGrad:
		emb, backward, err := h.oracle.EmbedGrad(ctx, req.Samples)
		if err != nil {
			resp.Error = err.Error()
			break
		}
		if len(*pending) == h.window {
			*pending = (*pending)[1:]
		}
		*pending = append(*pending, pendingGrad{id: req.ID, backward: backward})
		resp.Embedding = emb

	case opBackward:
		i := slices.IndexFunc(*pending, func(p pendingGrad) bool { return p.id == req.Ref })
		if i < 0 {
			resp.Error = "unknown or expired embed_grad reference"
			break
		}
		backward := (*pending)[i].backward
		*pending = slices.Delete(*pending, i, i+1)
		grad, err := backward(req.Upstream)
		if err != nil {
			resp.Error = err.Error()
			break
		}
		resp.Gradient = grad

	default:
		resp.Error = "unknown op " + req.Op
	}
	return resp
}
