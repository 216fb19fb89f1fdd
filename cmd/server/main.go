package main

import (
	"context"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/dgallion1/notegest/internal/api"
	"github.com/dgallion1/notegest/internal/config"
	"github.com/dgallion1/notegest/internal/imagesvc"
	"github.com/dgallion1/notegest/internal/manifest"
	"github.com/dgallion1/notegest/internal/pipeline"
)

func main() {
	log := slog.New(slog.NewJSONHandler(os.Stdout, nil))

	cfg := config.Load()
	if err := cfg.Validate(); err != nil {
		log.Error("invalid configuration", "error", err)
		os.Exit(1)
	}

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	// Optional collaborators.
	var images *imagesvc.Client
	if cfg.ImageServiceURL != "" {
		images = imagesvc.NewClient(cfg.ImageServiceURL, cfg.ImageServiceAPIKey)
	}
	var store *manifest.Store
	if cfg.ManifestPath != "" {
		var err error
		store, err = manifest.Open(cfg.ManifestPath)
		if err != nil {
			log.Error("open manifest", "path", cfg.ManifestPath, "error", err)
			os.Exit(1)
		}
	}

	// Initialize pipeline.
	orch := pipeline.NewOrchestrator(cfg, images, store, log)
	orch.Start(ctx)

	// Initialize HTTP server.
	srv := api.NewServer(orch, store, log, cfg)

	httpServer := &http.Server{
		Addr:         ":" + cfg.Port,
		Handler:      srv,
		ReadTimeout:  60 * time.Second,
		WriteTimeout: 120 * time.Second,
		IdleTimeout:  60 * time.Second,
	}

	// Graceful shutdown.
	go func() {
		sigCh := make(chan os.Signal, 1)
		signal.Notify(sigCh, syscall.SIGINT, syscall.SIGTERM)
		<-sigCh
		log.Info("shutting down...")

		shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), 10*time.Second)
		defer shutdownCancel()
		httpServer.Shutdown(shutdownCtx)

		orch.Stop()
		if images != nil {
			images.Close()
		}
		if store != nil {
			store.Close()
		}
	}()

	log.Info("starting notegest",
		"port", cfg.Port,
		"workers", cfg.WorkerCount,
		"default_dialect", cfg.DefaultDialect,
		"image_service", cfg.ImageServiceURL != "",
		"manifest", cfg.ManifestPath != "",
	)
	if err := httpServer.ListenAndServe(); err != nil && err != http.ErrServerClosed {
		log.Error("server error", "error", err)
		os.Exit(1)
	}
}
