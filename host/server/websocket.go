package server

import (
	"net/http"
	"time"

	"github.com/gorilla/websocket"

	"ssrpwm/host/events"
)

// Message is one event pushed to websocket clients
type Message struct {
	Type  string       `json:"type"`
	Event events.Event `json:"event"`
}

var upgrader = websocket.Upgrader{
	CheckOrigin: func(r *http.Request) bool {
		return true
	},
}

const writeWait = time.Second

// WebsocketHandler streams bus events until the client goes away
func (s *Server) WebsocketHandler(w http.ResponseWriter, r *http.Request) {
	conn, err := upgrader.Upgrade(w, r, nil)
	if err != nil {
		return
	}
	defer conn.Close()

	ch := make(chan events.Event, 64)
	unsubscribe := s.bus.SubscribeChannel(ch)
	defer unsubscribe()

	// Reads only detect the close
	closed := make(chan struct{})
	go func() {
		defer close(closed)
		for {
			if _, _, err := conn.ReadMessage(); err != nil {
				return
			}
		}
	}()

	for {
		select {
		case <-closed:
			return
		case <-r.Context().Done():
			return
		case ev := <-ch:
			_ = conn.SetWriteDeadline(time.Now().Add(writeWait))
			if err := conn.WriteJSON(Message{Type: events.Name(ev), Event: ev}); err != nil {
				return // Connection closed
			}
		}
	}
}
