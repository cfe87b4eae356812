package main

import (
	"context"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/ddevcap/seatgrid/api"
	"github.com/ddevcap/seatgrid/api/handler"
	"github.com/ddevcap/seatgrid/booking"
	"github.com/ddevcap/seatgrid/config"
	"github.com/ddevcap/seatgrid/service"
	"github.com/ddevcap/seatgrid/upstream"
)

func main() {
	cfg, err := config.Load()
	if err != nil {
		slog.Error("failed to load configuration", "error", err)
		os.Exit(1)
	}

	logger := slog.New(slog.NewTextHandler(os.Stdout, &slog.HandlerOptions{Level: cfg.SlogLevel()}))
	slog.SetDefault(logger)

	loc, err := cfg.Location()
	if err != nil {
		slog.Error("invalid timezone", "timezone", cfg.Timezone, "error", err)
		os.Exit(1)
	}

	client := upstream.NewClient(cfg, loc)

	// Background pings clear a degraded status even while no traffic flows.
	hc := upstream.NewHealthChecker(client, cfg.UpstreamHealthInterval)
	client.SetHealthChecker(hc)
	hc.Start(context.Background())

	svc := service.New(client, cfg, loc)

	var prewarmer *service.Prewarmer
	if cfg.PrewarmSchedule != "" {
		libraries := make([]booking.LibraryID, 0, len(cfg.PrewarmLibraries))
		for _, id := range cfg.PrewarmLibraries {
			libraries = append(libraries, booking.LibraryID(id))
		}
		prewarmer, err = service.NewPrewarmer(svc, cfg.PrewarmSchedule, libraries)
		if err != nil {
			slog.Error("invalid prewarm schedule", "schedule", cfg.PrewarmSchedule, "error", err)
			os.Exit(1)
		}
		prewarmer.Start(context.Background())
	}

	wsHub := handler.NewWSHub()
	h, stopLimiter := api.NewRouter(svc, cfg, hc, wsHub)

	srv := &http.Server{
		Addr:              cfg.ListenAddr,
		Handler:           h,
		ReadHeaderTimeout: 10 * time.Second,
		IdleTimeout:       120 * time.Second,
		MaxHeaderBytes:    1 << 20, // 1 MiB
	}

	go func() {
		slog.Info("seatgrid listening", "addr", cfg.ListenAddr, "upstream", cfg.UpstreamURL, "timezone", loc.String())
		if err := srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			slog.Error("server error", "error", err)
			os.Exit(1)
		}
	}()

	quit := make(chan os.Signal, 1)
	signal.Notify(quit, os.Interrupt, syscall.SIGTERM)
	<-quit
	slog.Info("shutting down server...")

	wsHub.Shutdown()
	if prewarmer != nil {
		prewarmer.Stop()
	}
	hc.Stop()
	stopLimiter()

	ctx, cancel := context.WithTimeout(context.Background(), cfg.ShutdownTimeout)
	defer cancel()
	if err := srv.Shutdown(ctx); err != nil {
		slog.Error("server forced to shutdown", "error", err)
	}
	svc.Close()
	slog.Info("server stopped")
}
