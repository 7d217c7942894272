package ws

import (
	"context"
	"encoding/json"
	"net/http"

	"github.com/coder/websocket"
	"github.com/google/uuid"

	"github.com/filmdraft/filmdraft-backend/internal/hub"
	"github.com/filmdraft/filmdraft-backend/internal/room"
	"github.com/filmdraft/filmdraft-backend/internal/types"
)

// BrowserHandler streams the open-room list to the join browser. Consumers
// get the full list on connect and again on every change; a slow consumer is
// dropped and can simply reconnect.
func BrowserHandler(h *hub.Hub) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		conn, err := websocket.Accept(w, r, nil)
		if err != nil {
			return
		}
		defer conn.Close(websocket.StatusNormalClosure, "bye")

		id := uuid.NewString()
		out := make(chan []room.Info, 4)
		if !h.Post(hub.Subscribe{ID: id, Outbox: out}) {
			return
		}
		defer h.Post(hub.Unsubscribe{ID: id})

		// discard inbound frames; a read error is how we learn the browser
		// went away
		readCtx, readCancel := context.WithCancel(r.Context())
		defer readCancel()
		go func() {
			defer readCancel()
			for {
				if _, _, err := conn.Read(readCtx); err != nil {
					return
				}
			}
		}()

		for {
			select {
			case <-readCtx.Done():
				return
			case infos, ok := <-out:
				if !ok {
					return
				}
				payload, _ := json.Marshal(types.ServerMessage{Type: "rooms", Rooms: infos})
				wctx, cancel := context.WithTimeout(readCtx, writeTimeout)
				err := conn.Write(wctx, websocket.MessageText, payload)
				cancel()
				if err != nil {
					return
				}
			}
		}
	}
}
