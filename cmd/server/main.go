package main

import (
	"context"
	"errors"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"

	"github.com/joho/godotenv"
	"golang.org/x/sync/errgroup"

	"github.com/JonMunkholm/markview/internal/config"
	"github.com/JonMunkholm/markview/internal/core"
	"github.com/JonMunkholm/markview/internal/logging"
	"github.com/JonMunkholm/markview/internal/store"
	_ "github.com/JonMunkholm/markview/internal/store/postgres" // Register drivers
	_ "github.com/JonMunkholm/markview/internal/store/sqlite"
	"github.com/JonMunkholm/markview/internal/web"
)

func main() {
	// Load .env file if it exists (Overload overwrites existing env vars)
	if err := godotenv.Overload(); err != nil {
		slog.Info("no .env file found, using environment variables")
	} else {
		slog.Info("loaded .env file (overwriting existing env vars)")
	}

	cfg, err := config.Load()
	if err != nil {
		slog.Error("failed to load configuration", "error", err)
		os.Exit(1)
	}

	logging.Setup(cfg.Logging.Level, cfg.Logging.Format)
	slog.Info("configuration loaded", "config", cfg.String())

	if err := run(cfg); err != nil {
		slog.Error("server exited", "error", err)
		os.Exit(1)
	}
}

func run(cfg *config.Config) error {
	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	st, err := store.Open(ctx, store.Config{
		Driver:          cfg.Store.Driver,
		DSN:             cfg.Store.DSN(),
		MaxConns:        int32(cfg.Store.MaxConns),
		MinConns:        int32(cfg.Store.MinConns),
		MaxConnLifetime: cfg.Store.MaxConnLifetime,
		MaxConnIdleTime: cfg.Store.MaxConnIdleTime,
	})
	if err != nil {
		return err
	}
	defer st.Close()
	slog.Info("activity store opened", "driver", cfg.Store.Driver)

	limiter := core.NewImportLimiter(cfg.Ingest.MaxConcurrent, cfg.Ingest.MaxWaitTime)
	reg := core.NewRegistry(core.RegistryOptions{
		MaxSessions: cfg.Session.MaxSessions,
		IdleTTL:     cfg.Session.IdleTTL,
		Session: core.SessionOptions{
			Importer: core.NewImporter(cfg.Ingest.MaxFileSize),
			Limiter:  limiter,
			Activity: st,
			Settings: st,
		},
	})

	server := web.NewServer(web.Deps{
		Registry: reg,
		Limiter:  limiter,
		Activity: st,
		Events:   st,
	}, cfg)

	g, gctx := errgroup.WithContext(ctx)

	g.Go(func() error {
		if err := server.Start(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			return err
		}
		return nil
	})

	g.Go(func() error {
		core.RunMaintenance(gctx, st, reg, core.MaintenanceConfig{
			RetentionDays: cfg.Activity.RetentionDays,
			Interval:      cfg.Activity.PurgeInterval,
		})
		return nil
	})

	g.Go(func() error {
		<-gctx.Done()
		slog.Info("shutting down...")

		shutdownCtx, cancel := context.WithTimeout(context.Background(), cfg.Server.ShutdownTimeout)
		defer cancel()

		// Stop taking requests first, then let running imports finish.
		if err := server.Shutdown(shutdownCtx); err != nil {
			slog.Error("shutdown error", "error", err)
		}
		if status := limiter.Status(); status.Active > 0 {
			slog.Info("waiting for imports to complete", "active", status.Active)
			if err := limiter.WaitForDrain(shutdownCtx); err != nil {
				slog.Warn("imports did not complete in time", "error", err)
			} else {
				slog.Info("all imports completed")
			}
		}
		return nil
	})

	return g.Wait()
}
