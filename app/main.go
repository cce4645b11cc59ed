package main

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/hashicorp/go-multierror"
	"github.com/lysyi3m/clubfeed/app/api"
	"github.com/lysyi3m/clubfeed/app/cfg"
	"github.com/lysyi3m/clubfeed/app/database"
	"github.com/lysyi3m/clubfeed/app/feed"
	"github.com/lysyi3m/clubfeed/app/remote"
	"github.com/lysyi3m/clubfeed/app/session"
	"github.com/lysyi3m/clubfeed/app/tasks"
)

func main() {
	appCfg, err := cfg.Load()
	if err != nil {
		slog.Error("Failed to load configuration", "error", err)
		os.Exit(1)
	}
	if appCfg == nil {
		// Help was shown
		return
	}

	setupLogging(appCfg.Debug)

	if err := run(appCfg); err != nil {
		slog.Error("Server stopped with error", "error", err)
		os.Exit(1)
	}
}

func setupLogging(debug bool) {
	level := slog.LevelInfo
	if debug {
		level = slog.LevelDebug
	}
	slog.SetDefault(slog.New(slog.NewTextHandler(os.Stdout, &slog.HandlerOptions{Level: level})))
}

func run(appCfg *cfg.Cfg) error {
	slog.Info("Starting ClubFeed server", "version", appCfg.Version)

	db, err := database.Open(appCfg.DBPath)
	if err != nil {
		return fmt.Errorf("failed to open database: %w", err)
	}

	version, dirty, err := database.RunMigrations(db)
	if err != nil {
		db.Close()
		return err
	}
	slog.Info("Database ready", "path", appCfg.DBPath, "migration_version", version, "dirty", dirty)

	configCache := feed.NewConfigCache(appCfg.StreamsDir)
	if err := configCache.Run(); err != nil {
		db.Close()
		return fmt.Errorf("failed to load stream configurations: %w", err)
	}
	slog.Info("Stream configurations loaded", "dir", appCfg.StreamsDir, "count", configCache.GetConfigCount(), "enabled", len(configCache.GetEnabledConfigs()))

	httpClient := &http.Client{}

	client, err := remote.NewClient(remote.Config{
		BaseURL:           appCfg.BackendURL,
		UserID:            appCfg.UserID,
		UserAgent:         appCfg.UserAgent,
		Timeout:           appCfg.RequestTimeout,
		RequestsPerSecond: appCfg.RequestsPerSecond,
		Burst:             appCfg.RequestBurst,
		HTTPClient:        httpClient,
	})
	if err != nil {
		db.Close()
		return fmt.Errorf("failed to create backend client: %w", err)
	}

	savedRepo := database.NewSavedRepository(db)
	sources := session.NewSources(client, savedRepo, httpClient, feed.NewParser(), appCfg.UserAgent)
	manager := session.NewManager(configCache, sources)

	scheduler := tasks.NewScheduler(manager,
		time.Duration(appCfg.SchedulerInterval)*time.Second,
		appCfg.WorkerCount,
		appCfg.SessionIdleTimeout)
	scheduler.Start()
	slog.Info("Background scheduler started", "workers", appCfg.WorkerCount, "interval", appCfg.SchedulerInterval)

	handler := api.NewHandler(manager, configCache, savedRepo, scheduler, appCfg.Version)
	httpServer := &http.Server{
		Addr:         ":" + appCfg.Port,
		Handler:      api.NewServer(handler, appCfg.APIAccessKey),
		ReadTimeout:  30 * time.Second,
		WriteTimeout: 3 * time.Minute,
		IdleTimeout:  120 * time.Second,
	}

	serverErrChan := make(chan error, 1)
	go func() {
		slog.Info("HTTP server listening", "port", appCfg.Port)
		if err := httpServer.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			serverErrChan <- fmt.Errorf("HTTP server error: %w", err)
		}
	}()

	sigChan := make(chan os.Signal, 1)
	signal.Notify(sigChan, os.Interrupt, syscall.SIGTERM)

	var result *multierror.Error

	select {
	case sig := <-sigChan:
		slog.Info("Received signal", "signal", sig.String())
	case err := <-serverErrChan:
		result = multierror.Append(result, err)
	}

	slog.Info("Shutting down server gracefully")

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()

	if err := httpServer.Shutdown(shutdownCtx); err != nil {
		result = multierror.Append(result, fmt.Errorf("HTTP server shutdown: %w", err))
	}

	scheduler.Stop()
	manager.CloseAll()

	if err := db.Close(); err != nil {
		result = multierror.Append(result, fmt.Errorf("database close: %w", err))
	}

	slog.Info("ClubFeed server shutdown complete")

	return result.ErrorOrNil()
}
