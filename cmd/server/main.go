// Package main is the entry point for the studio back office server.
package main

import (
	"context"
	"encoding/json"
	"errors"
	"flag"
	"fmt"
	"net"
	"net/http"
	"os"
	"os/signal"
	"path/filepath"
	"syscall"
	"time"

	"go.uber.org/zap"

	"github.com/lash-studio/backoffice/internal/api"
	"github.com/lash-studio/backoffice/internal/appointment"
	"github.com/lash-studio/backoffice/internal/calendar"
	"github.com/lash-studio/backoffice/internal/config"
	"github.com/lash-studio/backoffice/internal/logging"
	"github.com/lash-studio/backoffice/internal/storage"
	"github.com/lash-studio/backoffice/internal/websocket"
)

// version is set at build time via -ldflags "-X main.version=x.y.z".
var version = "dev"

func main() {
	configPath := flag.String("config", "", "Path to config.yaml (default <data>/config.yaml)")
	dataDir := flag.String("data", "", "Data directory for config and SQLite database")
	addr := flag.String("addr", "", "HTTP listen address, overrides the config file")
	healthCheck := flag.Bool("health-check", false, "Run health check and exit")
	syncOnce := flag.Bool("sync-once", false, "Run one calendar sync, print the result and exit")
	flag.Parse()

	if err := config.LoadDotEnv(".env"); err != nil {
		fmt.Fprintf(os.Stderr, "loading .env: %v\n", err)
		os.Exit(1)
	}

	// Health check mode for Docker HEALTHCHECK
	if *healthCheck {
		listen := *addr
		if listen == "" {
			listen = envOr("STUDIO_LISTEN", config.DefaultConfig().Listen)
		}
		if err := runHealthCheck(listen); err != nil {
			fmt.Fprintf(os.Stderr, "health check failed: %v\n", err)
			os.Exit(1)
		}
		os.Exit(0)
	}

	if envVer := os.Getenv("VERSION"); envVer != "" {
		version = envVer
	}

	if *dataDir == "" {
		*dataDir = envOr("STUDIO_DATA_DIR", config.DefaultConfig().DataDir)
	}
	if *configPath == "" {
		*configPath = filepath.Join(*dataDir, "config.yaml")
	}

	cfg, err := config.Load(*configPath)
	if err != nil {
		fmt.Fprintf(os.Stderr, "loading config: %v\n", err)
		os.Exit(1)
	}
	cfg.DataDir = *dataDir
	if *addr != "" {
		cfg.Listen = *addr
	}
	if err := cfg.Validate(); err != nil {
		fmt.Fprintf(os.Stderr, "invalid config: %v\n", err)
		os.Exit(1)
	}

	if err := logging.Init(cfg.LogLevel, cfg.LogDevelopment); err != nil {
		fmt.Fprintf(os.Stderr, "initializing logger: %v\n", err)
		os.Exit(1)
	}
	defer logging.Sync()

	if err := run(cfg, *syncOnce); err != nil {
		logging.Log.Error("server exited with error", zap.Error(err))
		logging.Sync()
		os.Exit(1)
	}
}

func run(cfg *config.Config, syncOnce bool) error {
	log := logging.Log
	log.Info("starting studio back office",
		zap.String("version", version),
		zap.String("provider", cfg.Calendar.Provider),
		zap.String("dataDir", cfg.DataDir),
	)

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	db, err := storage.NewDB(cfg.DBPath())
	if err != nil {
		return fmt.Errorf("opening database: %w", err)
	}
	defer db.Close()

	applied, err := storage.RunMigrations(ctx, db)
	if err != nil {
		return fmt.Errorf("running migrations: %w", err)
	}
	log.Info("database ready", zap.String("path", db.Path()), zap.Int("migrationsApplied", applied))

	hub := websocket.NewHub()
	go hub.Run(ctx)
	broadcaster := websocket.NewEventBroadcaster(hub)

	source, err := calendar.NewSource(cfg)
	if err != nil {
		return err
	}
	windowStart, windowEnd, err := cfg.SyncWindow()
	if err != nil {
		return err
	}

	syncService := calendar.NewSyncService(
		source,
		storage.NewAppointmentRepository(db),
		storage.NewSyncLogRepository(db),
		storage.NewAuditRepository(db),
		windowStart, windowEnd,
	)
	syncService.SetBroadcaster(broadcaster)

	if syncOnce {
		return runSyncOnce(ctx, syncService)
	}

	appointments := appointment.NewService(db)
	appointments.SetBroadcaster(broadcaster)

	scheduler := calendar.NewScheduler(syncService, cfg.Calendar.SyncCron)
	if err := scheduler.Start(); err != nil {
		return fmt.Errorf("starting scheduler: %w", err)
	}
	defer scheduler.Stop()
	if cfg.Calendar.SyncCron != "" && syncService.IsConfigured() {
		scheduler.TriggerSync()
	}

	router := api.NewRouter(api.Services{
		DB:           db,
		Hub:          hub,
		Appointments: appointments,
		Sync:         syncService,
		NextSyncRun:  scheduler.NextRun,
		Location:     cfg.Location(),
		Version:      version,
	})

	server := &http.Server{
		Addr:         cfg.Listen,
		Handler:      router,
		ReadTimeout:  15 * time.Second,
		WriteTimeout: 15 * time.Second,
		IdleTimeout:  60 * time.Second,
		ErrorLog:     zap.NewStdLog(log.Named("http")),
	}

	serverErr := make(chan error, 1)
	go func() {
		log.Info("server listening", zap.String("addr", cfg.Listen))
		if err := server.ListenAndServe(); !errors.Is(err, http.ErrServerClosed) {
			serverErr <- err
		}
		close(serverErr)
	}()

	select {
	case err := <-serverErr:
		if err != nil {
			return fmt.Errorf("http server: %w", err)
		}
	case <-ctx.Done():
		log.Info("shutting down server")
	}

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()
	if err := server.Shutdown(shutdownCtx); err != nil {
		return fmt.Errorf("server shutdown: %w", err)
	}

	log.Info("server stopped")
	return nil
}

func runSyncOnce(ctx context.Context, syncService *calendar.SyncService) error {
	result, err := syncService.SyncFromOutlook(ctx)
	if err != nil {
		return err
	}
	enc := json.NewEncoder(os.Stdout)
	enc.SetIndent("", "  ")
	return enc.Encode(result)
}

// runHealthCheck performs a health check against the running server.
func runHealthCheck(addr string) error {
	target, err := healthURL(addr)
	if err != nil {
		return err
	}
	client := &http.Client{Timeout: 5 * time.Second}
	resp, err := client.Get(target)
	if err != nil {
		return err
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return fmt.Errorf("status %d", resp.StatusCode)
	}
	return nil
}

// healthURL maps a listen address to the local health endpoint. Wildcard
// hosts are reached through localhost.
func healthURL(addr string) (string, error) {
	host, port, err := net.SplitHostPort(addr)
	if err != nil {
		return "", fmt.Errorf("invalid listen address %q: %w", addr, err)
	}
	switch host {
	case "", "0.0.0.0", "::":
		host = "localhost"
	}
	return "http://" + net.JoinHostPort(host, port) + "/api/health", nil
}

func envOr(key, def string) string {
	if v := os.Getenv(key); v != "" {
		return v
	}
	return def
}
