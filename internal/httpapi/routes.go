package httpapi

import (
	"net/http"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"go.uber.org/zap"

	"github.com/filmdraft/filmdraft-backend/internal/catalog"
	"github.com/filmdraft/filmdraft-backend/internal/hub"
	"github.com/filmdraft/filmdraft-backend/internal/ws"
)

func SetupRoutes(h *hub.Hub, cat catalog.Provider, logger *zap.Logger) http.Handler {
	r := chi.NewRouter()
	r.Use(middleware.Recoverer)

	r.Post("/rooms", CreateRoom(h, logger))
	r.Get("/rooms", ListRooms(h))
	r.Get("/ws", ws.Handler(h, cat, logger))
	r.Get("/ws/rooms", ws.BrowserHandler(h))
	r.Get("/healthz", Healthz)
	return r
}
