// Package admin exposes the introspection surface over HTTP:
// casStatsFetch as JSON, casr(level) as text, a health probe, and a
// WebSocket that pushes a stats snapshot once a second plus lifecycle
// events as they happen.
package admin

import (
	"context"
	"encoding/json"
	"log/slog"
	"net/http"
	"strconv"
	"time"

	"github.com/ThreeDotsLabs/watermill/message"
	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/gorilla/websocket"
	"github.com/webitel/ca-rsrvd/internal/adapter/eventbus"
	"github.com/webitel/ca-rsrvd/internal/domain/circuit"
	"github.com/webitel/ca-rsrvd/internal/domain/runstate"
	"github.com/webitel/ca-rsrvd/internal/introspect"
)

// StatsResponse is the JSON body of GET /stats and of every WebSocket
// stats frame.
type StatsResponse struct {
	Circuits int              `json:"circuits"`
	Channels int              `json:"channels"`
	TCPState string           `json:"tcp_state"`
	Pools    circuit.Snapshot `json:"pools"`
}

// Handler serves the admin routes against a running core.
type Handler struct {
	Reporter *introspect.Reporter
	Pools    *circuit.Pools
	RunState *runstate.Controller
	Bus      *eventbus.Bus
	Log      *slog.Logger

	upgrader websocket.Upgrader
}

// NewHandler wires the admin routes. bus may be nil; the WebSocket
// then pushes stats frames only.
func NewHandler(rep *introspect.Reporter, pools *circuit.Pools, rs *runstate.Controller, bus *eventbus.Bus, log *slog.Logger) *Handler {
	if log == nil {
		log = slog.Default()
	}
	return &Handler{
		Reporter: rep,
		Pools:    pools,
		RunState: rs,
		Bus:      bus,
		Log:      log,
		upgrader: websocket.Upgrader{
			// The admin surface binds loopback by default; a deployment
			// exposing it further fronts it with its own auth proxy.
			CheckOrigin: func(r *http.Request) bool { return true },
		},
	}
}

// Router builds the chi mux for the admin surface.
func (h *Handler) Router() http.Handler {
	r := chi.NewRouter()
	r.Use(middleware.Recoverer)
	r.Get("/healthz", h.healthz)
	r.Get("/stats", h.stats)
	r.Get("/casr", h.casr)
	r.Get("/ws/stats", h.wsStats)
	return r
}

func (h *Handler) snapshot() StatsResponse {
	s := h.Reporter.Fetch()
	return StatsResponse{
		Circuits: s.CircuitCount,
		Channels: s.ChannelCount,
		TCPState: h.RunState.TCP.Get().String(),
		Pools:    h.Pools.Snapshot(),
	}
}

func (h *Handler) healthz(w http.ResponseWriter, r *http.Request) {
	if h.RunState.TCP.IsShutdown() {
		http.Error(w, "shutting down", http.StatusServiceUnavailable)
		return
	}
	w.WriteHeader(http.StatusOK)
	_, _ = w.Write([]byte("ok"))
}

func (h *Handler) stats(w http.ResponseWriter, r *http.Request) {
	w.Header().Set("Content-Type", "application/json")
	if err := json.NewEncoder(w).Encode(h.snapshot()); err != nil {
		h.Log.Warn("CAS: stats encode failed", "error", err)
	}
}

func (h *Handler) casr(w http.ResponseWriter, r *http.Request) {
	level := 0
	if raw := r.URL.Query().Get("level"); raw != "" {
		n, err := strconv.Atoi(raw)
		if err != nil {
			http.Error(w, "bad level", http.StatusBadRequest)
			return
		}
		level = n
	}
	w.Header().Set("Content-Type", "text/plain; charset=utf-8")
	h.Reporter.Dump(w, level)
}

// wsStats upgrades and runs the push pump: one stats frame a second,
// interleaved with lifecycle events from the bus as they arrive.
func (h *Handler) wsStats(w http.ResponseWriter, r *http.Request) {
	ws, err := h.upgrader.Upgrade(w, r, nil)
	if err != nil {
		h.Log.Error("CAS: ws upgrade failed", "error", err)
		return
	}
	defer ws.Close()

	ctx, cancel := context.WithCancel(r.Context())
	defer cancel()

	var events <-chan *message.Message
	if h.Bus != nil {
		msgs, err := h.Bus.Subscribe(ctx, eventbus.TopicAll)
		if err != nil {
			h.Log.Warn("CAS: ws event subscribe failed", "error", err)
		} else {
			events = msgs
		}
	}

	ticker := time.NewTicker(time.Second)
	defer ticker.Stop()

	// Send one frame immediately so a dashboard paints without
	// waiting out the first tick.
	if !h.writeStats(ws) {
		return
	}

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			if !h.writeStats(ws) {
				return
			}
		case msg, ok := <-events:
			if !ok {
				events = nil
				continue
			}
			if err := ws.WriteMessage(websocket.TextMessage, msg.Payload); err != nil {
				h.Log.Warn("CAS: ws send failed", "error", err)
				return
			}
			msg.Ack()
		}
	}
}

func (h *Handler) writeStats(ws *websocket.Conn) bool {
	data, err := json.Marshal(h.snapshot())
	if err != nil {
		return false
	}
	if err := ws.WriteMessage(websocket.TextMessage, data); err != nil {
		h.Log.Warn("CAS: ws send failed", "error", err)
		return false
	}
	return true
}
