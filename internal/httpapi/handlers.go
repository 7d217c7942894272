package httpapi

import (
	"encoding/json"
	"errors"
	"net/http"

	"go.uber.org/zap"

	"github.com/filmdraft/filmdraft-backend/internal/engine"
	"github.com/filmdraft/filmdraft-backend/internal/hub"
	"github.com/filmdraft/filmdraft-backend/internal/room"
)

const (
	maxNameLen      = 32
	defaultCapacity = 8
	maxCapacity     = 16
	defaultPicks    = 3
	maxPicks        = 10
)

type createRoomRequest struct {
	Name       string `json:"name"`
	Host       string `json:"host"`
	Capacity   int    `json:"capacity"`
	DraftPicks int    `json:"draft_picks"`
	ForceStart bool   `json:"force_start"`
}

type errorResponse struct {
	Error string `json:"error"`
}

// CreateRoom handles POST /rooms. Name collisions come back as 409; the
// hub's single owner goroutine guarantees one winner even for simultaneous
// requests.
func CreateRoom(h *hub.Hub, logger *zap.Logger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		var req createRoomRequest
		if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
			writeJSON(w, http.StatusBadRequest, errorResponse{Error: "bad json"})
			return
		}
		if req.Name == "" || len(req.Name) > maxNameLen {
			writeJSON(w, http.StatusBadRequest, errorResponse{Error: "invalid room name"})
			return
		}
		if req.Host == "" {
			writeJSON(w, http.StatusBadRequest, errorResponse{Error: "missing host"})
			return
		}
		if req.Capacity == 0 {
			req.Capacity = defaultCapacity
		}
		if req.Capacity < 1 || req.Capacity > maxCapacity {
			writeJSON(w, http.StatusBadRequest, errorResponse{Error: "invalid capacity"})
			return
		}
		if req.DraftPicks == 0 {
			req.DraftPicks = defaultPicks
		}
		if req.DraftPicks < 1 || req.DraftPicks > maxPicks {
			writeJSON(w, http.StatusBadRequest, errorResponse{Error: "invalid draft pick count"})
			return
		}

		reply := make(chan hub.CreateReply, 1)
		ok := h.Post(hub.CreateRoom{
			Name: req.Name,
			Host: req.Host,
			Cfg: engine.Config{
				Capacity:        req.Capacity,
				DraftPicks:      req.DraftPicks,
				AllowForceStart: req.ForceStart,
			},
			Reply: reply,
		})
		if !ok {
			writeJSON(w, http.StatusServiceUnavailable, errorResponse{Error: "server shutting down"})
			return
		}

		res := <-reply
		if errors.Is(res.Err, hub.ErrNameTaken) {
			writeJSON(w, http.StatusConflict, errorResponse{Error: "name taken"})
			return
		}
		if res.Err != nil || res.Room == nil {
			logger.Error("room creation failed", zap.String("room", req.Name), zap.Error(res.Err))
			writeJSON(w, http.StatusInternalServerError, errorResponse{Error: "failed to create room"})
			return
		}

		writeJSON(w, http.StatusCreated, struct {
			Name string `json:"name"`
		}{Name: req.Name})
	}
}

// ListRooms handles GET /rooms for the join browser.
func ListRooms(h *hub.Hub) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		reply := make(chan []room.Info, 1)
		if !h.Post(hub.ListRooms{Reply: reply}) {
			writeJSON(w, http.StatusServiceUnavailable, errorResponse{Error: "server shutting down"})
			return
		}
		writeJSON(w, http.StatusOK, <-reply)
	}
}

func Healthz(w http.ResponseWriter, r *http.Request) {
	w.WriteHeader(http.StatusOK)
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(v)
}
