package ws

import (
	"context"
	"encoding/json"
	"net/http"
	"time"

	"github.com/coder/websocket"
	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/filmdraft/filmdraft-backend/internal/catalog"
	"github.com/filmdraft/filmdraft-backend/internal/engine"
	"github.com/filmdraft/filmdraft-backend/internal/hub"
	"github.com/filmdraft/filmdraft-backend/internal/room"
	"github.com/filmdraft/filmdraft-backend/internal/types"
)

const writeTimeout = 3 * time.Second

// Handler terminates one player's real-time connection: it joins them to
// the requested room, pumps snapshots out, and translates inbound frames
// into room commands. One room per connection.
func Handler(h *hub.Hub, cat catalog.Provider, logger *zap.Logger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		roomName := r.URL.Query().Get("room")
		username := r.URL.Query().Get("username")
		if roomName == "" || username == "" {
			http.Error(w, "missing room or username", http.StatusBadRequest)
			return
		}

		reply := make(chan *room.Room, 1)
		if !h.Post(hub.GetRoom{Name: roomName, Reply: reply}) {
			http.Error(w, "server shutting down", http.StatusServiceUnavailable)
			return
		}
		rm := <-reply
		if rm == nil {
			http.Error(w, "room not found", http.StatusNotFound)
			return
		}

		conn, err := websocket.Accept(w, r, nil)
		if err != nil {
			return
		}
		defer conn.Close(websocket.StatusNormalClosure, "bye")

		clientID := uuid.NewString()
		out := make(chan room.Snapshot, 8)

		if !rm.Post(room.Attach{ClientID: clientID, Username: username, Outbox: out}) {
			return
		}
		defer rm.Post(room.Detach{ClientID: clientID, Username: username})

		// The room creator and players reconnecting to a restored room are
		// already in the roster; for them the attach above is the whole
		// handshake. Everyone else joins.
		stateReply := make(chan room.View, 1)
		if !rm.Post(room.GetState{Reply: stateReply}) {
			return
		}
		view := <-stateReply
		if !view.State.HasPlayer(username) {
			if err := sendCommand(r.Context(), rm, engine.Command{
				Type:     engine.CmdJoin,
				Username: username,
			}); err != nil {
				writeError(r.Context(), conn, err.Error())
				return
			}
		}

		writeCtx, writeCancel := context.WithCancel(r.Context())
		defer writeCancel()
		go writeLoop(writeCtx, conn, rm, clientID, username, out)

		readLoop(r, conn, rm, cat, username, logger)
	}
}

// writeLoop pushes snapshots to the client. A closed outbox means the room
// dropped this consumer for falling behind (or shut down); re-attaching
// yields a fresh full snapshot, the resync the protocol promises instead of
// replay.
func writeLoop(ctx context.Context, conn *websocket.Conn, rm *room.Room, clientID, username string, out chan room.Snapshot) {
	for {
		select {
		case <-ctx.Done():
			return
		case snap, ok := <-out:
			if !ok {
				out = make(chan room.Snapshot, 8)
				if !rm.Post(room.Attach{ClientID: clientID, Username: username, Outbox: out}) {
					conn.Close(websocket.StatusGoingAway, "room closed")
					return
				}
				continue
			}
			msg := types.ServerMessage{
				Type:    "snapshot",
				Version: snap.Version,
				Events:  snap.Events,
				State:   &snap.State,
			}
			payload, _ := json.Marshal(msg)
			wctx, cancel := context.WithTimeout(ctx, writeTimeout)
			_ = conn.Write(wctx, websocket.MessageText, payload)
			cancel()
		}
	}
}

func readLoop(r *http.Request, conn *websocket.Conn, rm *room.Room, cat catalog.Provider, username string, logger *zap.Logger) {
	ctx := r.Context()
	for {
		_, data, err := conn.Read(ctx)
		if err != nil {
			switch websocket.CloseStatus(err) {
			case websocket.StatusNormalClosure, websocket.StatusGoingAway:
				return
			}
			// connection gone; Detach in the handler's defer withdraws the
			// player
			return
		}

		var cm types.ClientMessage
		if err := json.Unmarshal(data, &cm); err != nil {
			writeError(ctx, conn, "bad json")
			continue
		}

		switch cm.Type {
		case "leave":
			return

		case "catalogQuery":
			serveCatalogQuery(ctx, conn, cat, cm, logger)
			continue
		}

		cmd, ok := toCommand(cm, username)
		if !ok {
			writeError(ctx, conn, "unknown message type")
			continue
		}
		if cmd.Type == engine.CmdStartGame {
			cmd.Items = fetchUniverse(ctx, cat, logger)
		}

		if err := sendCommand(ctx, rm, cmd); err != nil {
			writeError(ctx, conn, err.Error())
		}
	}
}

// sendCommand runs one command through the room's inbox and waits for the
// verdict. Room actors never suspend mid-command, so the reply is prompt.
func sendCommand(ctx context.Context, rm *room.Room, cmd engine.Command) error {
	errs := make(chan error, 1)
	if !rm.Post(room.FromClient{Cmd: cmd, Reply: errs}) {
		return context.Canceled
	}
	select {
	case err := <-errs:
		return err
	case <-ctx.Done():
		return ctx.Err()
	}
}

func toCommand(m types.ClientMessage, username string) (engine.Command, bool) {
	switch m.Type {
	case "ready":
		return engine.Command{Type: engine.CmdSetReady, Username: username, Ready: m.Ready}, true
	case "startGame":
		return engine.Command{Type: engine.CmdStartGame, Username: username}, true
	case "draftSelect":
		return engine.Command{Type: engine.CmdDraftSelect, Username: username, ItemID: m.ItemID, Selected: m.Selected}, true
	case "draftSubmit":
		return engine.Command{Type: engine.CmdDraftSubmit, Username: username}, true
	case "vote":
		return engine.Command{Type: engine.CmdVote, Username: username, ItemID: m.ItemID}, true
	case "voteSubmit":
		return engine.Command{Type: engine.CmdVoteSubmit, Username: username}, true
	case "rematch":
		return engine.Command{Type: engine.CmdRematch, Username: username}, true
	default:
		return engine.Command{}, false
	}
}

// fetchUniverse pulls the draftable items for a new game. A catalog failure
// surfaces as an empty universe rather than blocking the start.
func fetchUniverse(ctx context.Context, cat catalog.Provider, logger *zap.Logger) []engine.Item {
	fctx, cancel := context.WithTimeout(ctx, 10*time.Second)
	defer cancel()

	items, err := cat.Items(fctx, catalog.Query{})
	if err != nil {
		logger.Warn("catalog lookup failed, starting with empty universe", zap.Error(err))
		return nil
	}
	universe := make([]engine.Item, 0, len(items))
	for _, it := range items {
		universe = append(universe, engine.Item{ID: it.ID, Name: it.Name, Year: it.Year})
	}
	return universe
}

func serveCatalogQuery(ctx context.Context, conn *websocket.Conn, cat catalog.Provider, cm types.ClientMessage, logger *zap.Logger) {
	fctx, cancel := context.WithTimeout(ctx, 10*time.Second)
	defer cancel()

	q := catalog.Query{Search: cm.Search, Genre: cm.Genre}
	switch cm.Sort {
	case "name-asc":
		q.SortBy = catalog.SortByName
	case "name-desc":
		q.SortBy, q.Descending = catalog.SortByName, true
	case "year-asc":
		q.SortBy = catalog.SortByYear
	case "year-desc":
		q.SortBy, q.Descending = catalog.SortByYear, true
	case "rating-asc":
		q.SortBy = catalog.SortByRating
	case "rating-desc":
		q.SortBy, q.Descending = catalog.SortByRating, true
	}

	items, err := cat.Items(fctx, q)
	if err != nil {
		logger.Warn("catalog query failed", zap.Error(err))
		writeError(ctx, conn, "catalog unavailable")
		return
	}
	writeMessage(ctx, conn, types.ServerMessage{Type: "catalog", Items: items})
}

func writeError(ctx context.Context, conn *websocket.Conn, text string) {
	writeMessage(ctx, conn, types.ServerMessage{Type: "error", Error: text})
}

func writeMessage(ctx context.Context, conn *websocket.Conn, msg types.ServerMessage) {
	payload, _ := json.Marshal(msg)
	wctx, cancel := context.WithTimeout(ctx, writeTimeout)
	defer cancel()
	_ = conn.Write(wctx, websocket.MessageText, payload)
}
