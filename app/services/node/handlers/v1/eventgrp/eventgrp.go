// Package eventgrp streams consensus events to websocket subscribers.
package eventgrp

import (
	"net/http"

	"github.com/google/uuid"
	"github.com/gorilla/websocket"
	"go.uber.org/zap"

	"github.com/slimcoin-project/slimcoin/foundation/events"
)

// Handlers manages the event streaming endpoint.
type Handlers struct {
	Log  *zap.SugaredLogger
	Evts *events.Events
}

var upgrader = websocket.Upgrader{
	CheckOrigin: func(r *http.Request) bool { return true },
}

// Events upgrades the connection and forwards consensus events until the
// client goes away.
func (h Handlers) Events(w http.ResponseWriter, r *http.Request) {
	conn, err := upgrader.Upgrade(w, r, nil)
	if err != nil {
		h.Log.Infow("events", "status", "upgrade failed", "ERROR", err)
		return
	}
	defer conn.Close()

	id := uuid.NewString()
	ch := h.Evts.Acquire(id)
	defer h.Evts.Release(id)

	h.Log.Infow("events", "status", "subscriber connected", "id", id)
	defer h.Log.Infow("events", "status", "subscriber disconnected", "id", id)

	for e := range ch {
		if err := conn.WriteJSON(struct {
			Kind   string `json:"kind"`
			Hash   string `json:"hash"`
			Height int32  `json:"height"`
			Detail string `json:"detail,omitempty"`
		}{
			Kind:   e.Kind.String(),
			Hash:   e.Hash.String(),
			Height: e.Height,
			Detail: e.Detail,
		}); err != nil {
			return
		}
	}
}
