package main

import (
	"context"
	"errors"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"

	"github.com/filmdraft/filmdraft-backend/internal/announcer"
	"github.com/filmdraft/filmdraft-backend/internal/catalog"
	"github.com/filmdraft/filmdraft-backend/internal/config"
	"github.com/filmdraft/filmdraft-backend/internal/hub"
	"github.com/filmdraft/filmdraft-backend/internal/httpapi"
	"github.com/filmdraft/filmdraft-backend/internal/room"
	"github.com/filmdraft/filmdraft-backend/internal/store"
)

func main() {
	cfg, err := config.Load()
	if err != nil {
		zap.Must(zap.NewProduction()).Fatal("failed to load config", zap.Error(err))
	}

	logger := zap.Must(zap.NewProduction())
	if cfg.Development {
		logger = zap.Must(zap.NewDevelopment())
	}
	defer func() { _ = logger.Sync() }()

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	deps := hub.Deps{
		Logger:          logger,
		AnnounceDwell:   cfg.AnnounceDwell,
		AnnounceTimeout: cfg.AnnounceTimeout,
	}

	var st *store.Store
	if cfg.DatabaseURL != "" {
		st, err = store.Open(cfg.DatabaseURL, logger)
		if err != nil {
			logger.Fatal("failed to open store", zap.Error(err))
		}
		deps.Store = st
	}

	var cat catalog.Provider = catalog.NewStatic(catalog.SampleItems)
	if cfg.CatalogURL != "" {
		cat = catalog.NewHTTPProvider(cfg.CatalogURL, cfg.CatalogAPIKey, logger)
	}

	if cfg.OpenAIKey != "" {
		deps.Announcer = announcer.NewOpenAI(cfg.OpenAIKey, logger)
	}

	h := hub.NewHub(ctx, deps)

	if st != nil {
		restoreRooms(ctx, st, h, logger)
	}

	srv := &http.Server{
		Addr:    cfg.ListenAddr,
		Handler: httpapi.SetupRoutes(h, cat, logger),
	}

	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() error {
		logger.Info("listening", zap.String("addr", cfg.ListenAddr))
		if err := srv.ListenAndServe(); !errors.Is(err, http.ErrServerClosed) {
			return err
		}
		return nil
	})
	g.Go(func() error {
		<-gctx.Done()
		logger.Info("shutting down")
		sctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		return srv.Shutdown(sctx)
	})

	if err := g.Wait(); err != nil {
		logger.Error("server exited with error", zap.Error(err))
		os.Exit(1)
	}
	logger.Info("server exited")
}

// restoreRooms rebuilds persisted rooms so participants can reconnect after
// a restart.
func restoreRooms(ctx context.Context, st *store.Store, h *hub.Hub, logger *zap.Logger) {
	lctx, cancel := context.WithTimeout(ctx, 10*time.Second)
	defer cancel()

	states, err := st.LoadRooms(lctx)
	if err != nil {
		logger.Error("failed to load persisted rooms", zap.Error(err))
		return
	}
	for name, state := range states {
		reply := make(chan *room.Room, 1)
		if !h.Post(hub.RestoreRoom{Name: name, State: state, Reply: reply}) {
			return
		}
		<-reply
	}
	if len(states) > 0 {
		logger.Info("restored rooms", zap.Int("count", len(states)))
	}
}
