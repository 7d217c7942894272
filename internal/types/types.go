package types

import (
	"github.com/filmdraft/filmdraft-backend/internal/catalog"
	"github.com/filmdraft/filmdraft-backend/internal/engine"
	"github.com/filmdraft/filmdraft-backend/internal/room"
)

// ClientMessage is every inbound websocket frame. Type selects which other
// fields matter.
type ClientMessage struct {
	Type     string `json:"type"` // "ready" | "startGame" | "draftSelect" | "draftSubmit" | "vote" | "voteSubmit" | "rematch" | "leave" | "catalogQuery"
	Ready    bool   `json:"ready,omitempty"`
	ItemID   string `json:"item_id,omitempty"`
	Selected bool   `json:"selected,omitempty"`
	Search   string `json:"search,omitempty"`
	Genre    string `json:"genre,omitempty"`
	Sort     string `json:"sort,omitempty"`
}

// ServerMessage is every outbound frame. Snapshots go to the whole room;
// errors and catalog results go only to the connection that asked.
type ServerMessage struct {
	Type    string         `json:"type"` // "snapshot" | "error" | "catalog" | "rooms"
	Version int            `json:"version,omitempty"`
	Events  []engine.Event `json:"events,omitempty"`
	State   *engine.State  `json:"state,omitempty"`
	Items   []catalog.Item `json:"items,omitempty"`
	Rooms   []room.Info    `json:"rooms,omitempty"`
	Error   string         `json:"error,omitempty"`
}
