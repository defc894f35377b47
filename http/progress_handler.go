package http

import (
	"net/http"
	"time"

	"github.com/gorilla/mux"
	"github.com/gorilla/websocket"
	"github.com/rs/zerolog/log"

	"auction-agent/stream"
)

const (
	relayWriteTimeout = 10 * time.Second
	relayPingInterval = 30 * time.Second
)

type ProgressHandler struct {
	hub      *stream.Hub
	upgrader websocket.Upgrader
}

func NewProgressHandler(hub *stream.Hub) *ProgressHandler {
	return &ProgressHandler{
		hub: hub,
		upgrader: websocket.Upgrader{
			ReadBufferSize:  1024,
			WriteBufferSize: 1024,
			CheckOrigin: func(r *http.Request) bool {
				return true
			},
		},
	}
}

// Get returns the latest view for an analysis, starting to track it on
// first request.
func (h *ProgressHandler) Get(w http.ResponseWriter, r *http.Request) {
	id := mux.Vars(r)["id"]
	if id == "" {
		writeError(w, http.StatusBadRequest, "analysis id is required")
		return
	}

	if _, ok := h.hub.View(id); !ok {
		h.hub.Watch(id)
	}
	v, ok := h.hub.View(id)
	if !ok {
		writeError(w, http.StatusNotFound, "analysis not tracked")
		return
	}
	writeJSON(w, http.StatusOK, v)
}

// Delete stops tracking an analysis. The last view stays in the cache.
func (h *ProgressHandler) Delete(w http.ResponseWriter, r *http.Request) {
	id := mux.Vars(r)["id"]
	if !h.hub.Forget(id) {
		writeError(w, http.StatusNotFound, "analysis not tracked")
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

// Relay pushes every published view to the client until the analysis
// completes or the client goes away.
func (h *ProgressHandler) Relay(w http.ResponseWriter, r *http.Request) {
	id := mux.Vars(r)["id"]

	conn, err := h.upgrader.Upgrade(w, r, nil)
	if err != nil {
		log.Warn().Err(err).Str("subject", id).Msg("websocket upgrade failed")
		return
	}
	defer conn.Close()

	views, stop := h.hub.Watch(id).Listen()
	defer stop()

	// drain client frames so close and pong control messages are handled
	gone := make(chan struct{})
	go func() {
		defer close(gone)
		for {
			if _, _, err := conn.ReadMessage(); err != nil {
				return
			}
		}
	}()

	ping := time.NewTicker(relayPingInterval)
	defer ping.Stop()

	for {
		select {
		case <-gone:
			return
		case <-r.Context().Done():
			return
		case <-ping.C:
			if err := conn.WriteControl(websocket.PingMessage, nil, time.Now().Add(relayWriteTimeout)); err != nil {
				return
			}
		case v := <-views:
			conn.SetWriteDeadline(time.Now().Add(relayWriteTimeout))
			if err := conn.WriteJSON(v); err != nil {
				log.Debug().Err(err).Str("subject", id).Msg("progress relay write failed")
				return
			}
			if v.Complete {
				conn.WriteControl(websocket.CloseMessage,
					websocket.FormatCloseMessage(websocket.CloseNormalClosure, "complete"),
					time.Now().Add(relayWriteTimeout))
				return
			}
		}
	}
}
