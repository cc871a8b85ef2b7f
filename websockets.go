package main

import (
	"net/http"
	"time"

	"github.com/gorilla/websocket"
)

const (
	writeWait  = 10 * time.Second
	pongWait   = 60 * time.Second
	pingPeriod = (pongWait * 9) / 10
	maxMsgSize = 1 << 12
)

type wsEnvelope struct {
	Type  string `json:"type"`
	Data  any    `json:"data,omitempty"`
	Error string `json:"error,omitempty"`
}

var upgrader = websocket.Upgrader{
	CheckOrigin: func(r *http.Request) bool { return true },
}

// StateStream pushes the view state to the client: once on connect and then
// after every change, until either side goes away or the screen is torn down.
func (api *ApiRouter) StateStream(w http.ResponseWriter, r *http.Request) {
	conn, err := upgrader.Upgrade(w, r, nil)
	if err != nil {
		api.log.Errorw("websocket upgrade failed", "err", err)
		return
	}
	defer func() { _ = conn.Close() }()

	updates, unsubscribe := api.controller.Subscribe()
	defer unsubscribe()

	conn.SetReadLimit(maxMsgSize)
	_ = conn.SetReadDeadline(time.Now().Add(pongWait))
	conn.SetPongHandler(func(string) error {
		return conn.SetReadDeadline(time.Now().Add(pongWait))
	})

	done := make(chan struct{})
	go api.startReader(conn, done)

	ping := time.NewTicker(pingPeriod)
	defer ping.Stop()

	if err := writeEnvelope(conn, wsEnvelope{Type: "state", Data: api.controller.State()}); err != nil {
		api.log.Infow("websocket initial write failed", "err", err)
		return
	}

	for {
		select {
		case <-done:
			return
		case <-r.Context().Done():
			return
		case <-ping.C:
			_ = conn.SetWriteDeadline(time.Now().Add(writeWait))
			if err := conn.WriteMessage(websocket.PingMessage, nil); err != nil {
				api.log.Infow("websocket ping failed", "err", err)
				return
			}
		case state, ok := <-updates:
			if !ok {
				_ = writeEnvelope(conn, wsEnvelope{Type: "closed"})
				return
			}
			if err := writeEnvelope(conn, wsEnvelope{Type: "state", Data: state}); err != nil {
				api.log.Infow("websocket write failed", "err", err)
				return
			}
		}
	}
}

// startReader drains incoming messages so control frames are handled and a
// disconnect is noticed.
func (api *ApiRouter) startReader(conn *websocket.Conn, done chan<- struct{}) {
	defer close(done)
	for {
		if _, _, err := conn.ReadMessage(); err != nil {
			api.log.Debugw("websocket read closed", "err", err)
			return
		}
	}
}

func writeEnvelope(conn *websocket.Conn, env wsEnvelope) error {
	_ = conn.SetWriteDeadline(time.Now().Add(writeWait))
	return conn.WriteJSON(env)
}
