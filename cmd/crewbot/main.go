package main

import (
	"context"
	"errors"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	_ "golang.org/x/crypto/x509roots/fallback" // Embed CA certs for scratch container

	githubadapter "github.com/crewbot-dev/crewbot/internal/adapter/driven/github"
	sqliteadapter "github.com/crewbot-dev/crewbot/internal/adapter/driven/sqlite"
	httphandler "github.com/crewbot-dev/crewbot/internal/adapter/driving/http"
	"github.com/crewbot-dev/crewbot/internal/application"
	"github.com/crewbot-dev/crewbot/internal/config"
)

func main() {
	if err := run(); err != nil {
		slog.Error("fatal error", "error", err)
		os.Exit(1)
	}
}

func run() error {
	// 1. Load configuration (fail fast on malformed env vars).
	cfg, err := config.Load()
	if err != nil {
		return err
	}
	slog.Info("config loaded",
		"listen_addr", cfg.ListenAddr,
		"db_path", cfg.DBPath,
		"poll_interval", cfg.PollInterval,
		"lease_ttl", cfg.LeaseTTL,
	)

	// 2. Setup signal-based context (SIGINT, SIGTERM).
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	// 3. Open database (dual reader/writer with WAL mode).
	db, err := sqliteadapter.NewDB(cfg.DBPath)
	if err != nil {
		return err
	}
	defer func() {
		if closeErr := db.Close(); closeErr != nil {
			slog.Error("error closing database", "error", closeErr)
		}
	}()
	slog.Info("database opened", "path", cfg.DBPath)

	// 4. Run migrations on writer connection.
	if err := sqliteadapter.RunMigrations(db.Writer); err != nil {
		return err
	}
	slog.Info("migrations complete")

	// 5. Wire adapters.
	repoStore := sqliteadapter.NewRepoRepo(db)
	taskStore := sqliteadapter.NewTaskRepo(db)
	leaseStore := sqliteadapter.NewLeaseRepo(db)
	deliveryStore := sqliteadapter.NewDeliveryRepo(db)
	cursorStore := sqliteadapter.NewCursorRepo(db)

	ghClient := githubadapter.NewClient(cfg.GitHubToken)

	// 6. Build the agents and the dispatch engine.
	agents := []application.Agent{
		application.NewTaskmaster(taskStore),
		application.NewDeveloper(taskStore, ghClient),
		application.NewReviewer(ghClient),
		application.NewIntegrator(taskStore, ghClient),
	}
	engine := application.NewEngine(
		repoStore,
		leaseStore,
		deliveryStore,
		agents,
		cfg.LeaseTTL,
		cfg.CollaboratorTimeout,
	)

	scanSvc := application.NewScanService(repoStore, taskStore, leaseStore, ghClient, cfg.LeaseTTL)

	// 7. Create the poll service; start the loop only when a token is
	// configured, since unauthenticated polling burns through the shared
	// rate budget immediately.
	pollSvc := application.NewPollService(repoStore, cursorStore, ghClient, engine, application.BackoffPolicy{
		Active: cfg.PollInterval,
		Max:    cfg.PollMaxInterval,
		Floor:  cfg.RateFloor,
	})
	if cfg.HasGitHubCredentials() {
		go pollSvc.Start(ctx)
	} else {
		slog.Warn("no github token configured, polling disabled")
	}

	// 8. HTTP surface.
	apiHandler := httphandler.NewHandler(repoStore, engine, scanSvc, pollSvc, slog.Default())
	handler := httphandler.NewServeMux(apiHandler, slog.Default())

	srv := &http.Server{
		Addr:              cfg.ListenAddr,
		Handler:           handler,
		ReadHeaderTimeout: 5 * time.Second,
		ReadTimeout:       10 * time.Second,
		WriteTimeout:      30 * time.Second,
		IdleTimeout:       120 * time.Second,
	}

	go func() {
		slog.Info("http server starting", "addr", cfg.ListenAddr)
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			slog.Error("http server error", "error", err)
		}
	}()

	slog.Info("crewbot started", "listen_addr", cfg.ListenAddr, "poll_interval", cfg.PollInterval)

	// 9. Wait for shutdown signal.
	<-ctx.Done()
	slog.Info("shutting down")

	// 10. Graceful shutdown with 10s timeout for HTTP server drain.
	shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()

	if err := srv.Shutdown(shutdownCtx); err != nil {
		slog.Error("http server shutdown error", "error", err)
	}

	slog.Info("shutdown complete")
	return nil
}
