package main

import (
	"context"
	"errors"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/xelth-com/colocacion/internal/app"
	"github.com/xelth-com/colocacion/internal/buildinfo"
	"github.com/xelth-com/colocacion/internal/config"
	"github.com/xelth-com/colocacion/internal/handlers"
	"github.com/xelth-com/colocacion/internal/logger"
	"github.com/xelth-com/colocacion/internal/printqueue"
	"github.com/xelth-com/colocacion/internal/services/printer"
	"github.com/xelth-com/colocacion/internal/websocket"
)

func main() {
	// 1. Load configuration
	cfg, err := config.Load()
	if err != nil {
		logger.Logger.Fatal().Err(err).Msg("Failed to load configuration")
	}

	logger.Init("colocacion", cfg.IsDevelopment())
	logger.SetLevel(cfg.Log.Level)
	log := logger.Component("main")
	log.Info().Str("version", buildinfo.Version()).Str("built", buildinfo.BuildTime).Msg("starting colocacion")

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	// 2. Database, redis and services
	a, err := app.New(ctx, cfg)
	if err != nil {
		log.Fatal().Err(err).Msg("Failed to initialize services")
	}

	// 3. Device notifications
	hub := websocket.NewHub()
	go hub.Run(ctx)

	// 4. Print worker
	if cfg.Queue.WorkerEnabled {
		sink, err := printer.NewSink(cfg.Printer)
		if err != nil {
			log.Fatal().Err(err).Msg("Failed to initialize printer")
		}
		worker := printqueue.NewWorker(a.Queue, a.Stores.Labels, printer.NewRenderer(), sink, hub)
		go worker.Run(ctx)
	} else {
		log.Info().Msg("print worker disabled on this node")
	}

	// 5. Background jobs
	reaper := a.Reaper()
	reaper.Start(ctx)
	a.Sync.Start(ctx)

	// 6. HTTP server
	router := handlers.NewRouter(handlers.Deps{
		Placement: a.Placement,
		Sync:      a.Sync,
		Queue:     a.Queue,
		Cache:     a.Cache,
		Hub:       hub,
		Metrics:   a.Metrics,
		JWTSecret: cfg.JWT.Secret,
		Version:   buildinfo.Version(),
	})

	srv := &http.Server{
		Addr:              ":" + cfg.Server.Port,
		Handler:           router,
		ReadHeaderTimeout: 10 * time.Second,
	}

	go func() {
		log.Info().Str("port", cfg.Server.Port).Msg("✅ Server listening")
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			log.Fatal().Err(err).Msg("Server failed")
		}
	}()

	// Graceful shutdown
	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	<-quit

	log.Info().Msg("🛑 Shutting down server...")

	shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), cfg.Server.ShutdownTimeout)
	defer shutdownCancel()
	if err := srv.Shutdown(shutdownCtx); err != nil {
		log.Error().Err(err).Msg("Server forced to shutdown")
	}

	a.Sync.Stop()
	reaper.Stop()
	cancel()
	a.Close()

	log.Info().Msg("Server exited")
}
