// Package ws is the websocket event-stream transport: each connected
// observer receives a "state" frame per supervisor broadcast tick, and
// an "error" frame the instant a tick failure first appears (spec
// ch.6, "Event stream (to subscribers)").
package ws

import (
	"net/http"

	"github.com/gorilla/websocket"
	"github.com/minicortex/minicortex"
	"github.com/minicortex/minicortex/log"
)

var upgrader = websocket.Upgrader{
	ReadBufferSize:  1024,
	WriteBufferSize: 1024,
	CheckOrigin:     func(r *http.Request) bool { return true },
}

// stateFrame is the wire shape of a "state" event.
type stateFrame struct {
	Type    string                          `json:"type"`
	Running bool                            `json:"running"`
	Speed   float64                         `json:"speed"`
	ActualH float64                         `json:"actual_hz"`
	Step    uint64                          `json:"step"`
	Nodes   map[string]minicortex.NodeFrame `json:"nodes"`
}

// errorFrame is the wire shape of an "error" event.
type errorFrame struct {
	Type    string `json:"type"`
	NodeID  string `json:"node_id"`
	Message string `json:"message"`
}

// Handler upgrades incoming requests to websockets and streams frames
// from a Supervisor until the client disconnects.
type Handler struct {
	Supervisor *minicortex.Supervisor
	Logger     log.Logger
}

// ServeHTTP implements http.Handler, usable directly or wrapped by an
// httprouter.Handle adapter.
func (h *Handler) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	conn, err := upgrader.Upgrade(w, r, nil)
	if err != nil {
		if h.Logger != nil {
			h.Logger.Errorw("websocket upgrade failed", "error", err)
		}
		return
	}
	defer conn.Close()

	frames, unsubscribe := h.Supervisor.Subscribe()
	defer unsubscribe()

	lastFailed := ""
	for frame := range frames {
		if frame.Network.FailedNode != "" && frame.Network.FailedNode != lastFailed {
			ef := errorFrame{Type: "error", NodeID: frame.Network.FailedNode}
			if frame.Network.Error != nil {
				ef.Message = frame.Network.Error.Message
			}
			if err := conn.WriteJSON(ef); err != nil {
				return
			}
		}
		lastFailed = frame.Network.FailedNode

		sf := stateFrame{
			Type: "state", Running: frame.Network.Running, Speed: frame.Network.TargetHz,
			ActualH: frame.Network.ActualHz, Step: frame.Network.TickCount, Nodes: frame.Nodes,
		}
		if err := conn.WriteJSON(sf); err != nil {
			return
		}
	}
}
