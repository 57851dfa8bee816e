package main

import (
	"context"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/urfave/cli/v2"

	"github.com/trigg3rX/labelmarket-backend/internal/api"
	"github.com/trigg3rX/labelmarket-backend/internal/cache"
	"github.com/trigg3rX/labelmarket-backend/internal/live"
	"github.com/trigg3rX/labelmarket-backend/internal/metrics"
	"github.com/trigg3rX/labelmarket-backend/pkg/logging"
)

const shutdownTimeout = 10 * time.Second

func ServeCommand() *cli.Command {
	return &cli.Command{
		Name:   "serve",
		Usage:  "Run the dashboard API, metrics and cache refresher",
		Action: serve,
	}
}

func serve(c *cli.Context) error {
	rt, err := setup(c, logging.ServerProcess)
	if err != nil {
		return err
	}
	defer rt.close()
	logger := rt.logger

	if !rt.cfg.DevMode {
		gin.SetMode(gin.ReleaseMode)
	}
	logger.Info("Starting labelmarket server ...", "dev_mode", rt.cfg.DevMode, "wallet", rt.service.Address())

	metrics.StartMetricsCollection()

	refresher := cache.NewRefresher(rt.layer, rt.cfg.CacheRefreshInterval, logger)
	if err := refresher.Start(); err != nil {
		return err
	}
	logger.Info("[1/3] Cache refresher started", "interval", rt.cfg.CacheRefreshInterval)

	hub := live.NewHub(logger)
	hub.Attach(rt.layer)
	logger.Info("[2/3] Live invalidation hub attached")

	server := api.NewServer(api.Config{
		Port:           rt.cfg.APIPort,
		AllowedOrigins: rt.cfg.AllowedOrigins,
		MaxUploadBytes: rt.cfg.BlobMaxBytes,
		Live:           hub,
	}, rt.service, logger)

	serverErr := make(chan error, 1)
	go func() {
		serverErr <- server.Start()
	}()
	logger.Info("[3/3] API server started", "port", rt.cfg.APIPort)

	shutdown := make(chan os.Signal, 1)
	signal.Notify(shutdown, os.Interrupt, syscall.SIGTERM)

	select {
	case <-shutdown:
	case err := <-serverErr:
		if err != nil {
			logger.Error("API server stopped", "error", err)
		}
	}

	performGracefulShutdown(server, hub, refresher, logger)
	return nil
}

func performGracefulShutdown(server *api.Server, hub *live.Hub, refresher *cache.Refresher, logger logging.Logger) {
	logger.Info("Initiating graceful shutdown...")

	ctx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
	defer cancel()

	hub.Shutdown()
	if err := server.Shutdown(ctx); err != nil {
		logger.Warn("Non-critical error during API server shutdown", "error", err)
	}
	refresher.Stop()

	logger.Info("Labelmarket server shutdown complete")
}
