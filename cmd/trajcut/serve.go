package main

import (
	"context"
	"fmt"
	"log/slog"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/gofrs/flock"
	"github.com/spf13/cobra"

	"github.com/trajcut/trajcut-agent/internal/api"
	"github.com/trajcut/trajcut-agent/internal/config"
	"github.com/trajcut/trajcut-agent/internal/db"
	"github.com/trajcut/trajcut-agent/internal/logging"
	"github.com/trajcut/trajcut-agent/internal/media"
	"github.com/trajcut/trajcut-agent/internal/project"
	"github.com/trajcut/trajcut-agent/internal/store"
	"github.com/trajcut/trajcut-agent/internal/ui"
)

func newServeCommand(ctx *commandContext) *cobra.Command {
	var headless bool
	var reopen bool

	cmd := &cobra.Command{
		Use:   "serve",
		Short: "Run the local agent serving the editing API",
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := ctx.ensureConfig()
			if err != nil {
				return err
			}
			return runServe(cfg, serveOptions{
				headless: headless || cfg.Headless(),
				reopen:   reopen,
			})
		},
	}

	cmd.Flags().BoolVar(&headless, "headless", false, "Run without the system tray")
	cmd.Flags().BoolVar(&reopen, "reopen", false, "Reopen the last project on startup")
	return cmd
}

type serveOptions struct {
	headless bool
	reopen   bool
}

func runServe(cfg config.Config, opts serveOptions) error {
	startTime := time.Now()

	if err := os.MkdirAll(cfg.DataDir(), 0755); err != nil {
		return fmt.Errorf("failed to create data dir: %w", err)
	}

	lock := flock.New(cfg.LockPath())
	locked, err := lock.TryLock()
	if err != nil {
		return fmt.Errorf("acquire lock: %w", err)
	}
	if !locked {
		return fmt.Errorf("another trajcut agent is already running for %s", cfg.DataDir())
	}
	defer lock.Unlock()

	logger := logging.New(logging.Options{Level: cfg.LogLevel(), Format: cfg.LogFormat()})
	logger.Info("starting trajcut agent", "version", Version, "data_dir", cfg.DataDir(), "media_root", cfg.MediaRoot())

	database, err := db.New(cfg.DBPath(), logger)
	if err != nil {
		return fmt.Errorf("failed to initialize database: %w", err)
	}
	defer database.Close()

	repo := store.NewRepository(database.Conn())

	authToken, err := store.EnsureAuthToken(context.Background(), repo)
	if err != nil {
		return fmt.Errorf("failed to ensure auth token: %w", err)
	}

	fmt.Println()
	fmt.Printf("  Trajcut agent %s\n", Version)
	fmt.Printf("  API URL:     http://127.0.0.1:%d\n", cfg.Port())
	fmt.Printf("  Auth token:  %s\n", authToken)
	fmt.Printf("  Service:     %s\n", serviceLabel(cfg.ServiceURL()))
	fmt.Println()

	client := newServiceClient(cfg, logger)
	resolver := media.NewResolver(cfg.MediaRoot())
	session := project.New(project.Config{
		Client:     client,
		Repository: repo,
		Media:      resolver,
		Logger:     logger,
	})

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	if opts.reopen {
		go reopenLastProject(ctx, session, repo, logger)
	}

	apiServer := api.NewServer(api.ServerConfig{
		Port:        cfg.Port(),
		Session:     session,
		Repository:  repo,
		Resolver:    resolver,
		MediaServer: media.NewServer(logger),
		Logger:      logger,
		StartTime:   startTime,
		Version:     Version,
	})

	go func() {
		if err := apiServer.Start(); err != nil {
			logger.Error("HTTP server error", "error", err)
		}
	}()

	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, syscall.SIGINT, syscall.SIGTERM)

	quitCh := make(chan struct{})

	var tray *ui.Tray
	if opts.headless {
		logger.Info("running in headless mode (no system tray)")
	} else {
		tray = ui.NewTray(ui.TrayConfig{
			Session: session,
			Jobs:    repo,
			Logger:  logger,
			APIURL:  fmt.Sprintf("http://127.0.0.1:%d", cfg.Port()),
			OnQuit: func() {
				close(quitCh)
			},
		})
		go tray.Run()
	}

	select {
	case sig := <-sigCh:
		logger.Info("received shutdown signal", "signal", sig)
		if tray != nil {
			tray.Quit()
		}
	case <-quitCh:
	}

	logger.Info("initiating graceful shutdown")
	cancel()

	shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer shutdownCancel()

	if err := apiServer.Shutdown(shutdownCtx); err != nil {
		logger.Error("failed to shutdown HTTP server", "error", err)
	}

	logger.Info("shutdown complete")
	return nil
}

func reopenLastProject(ctx context.Context, session *project.Session, repo store.Repository, logger *slog.Logger) {
	name, err := repo.GetConfig(ctx, store.ConfigKeyLastProject)
	if err != nil || name == "" {
		logger.Info("no project to reopen")
		return
	}
	if err := session.Open(ctx, name); err != nil {
		logger.Warn("failed to reopen last project", "project", name, "error", err)
	}
}

func serviceLabel(url string) string {
	if url == "" {
		return "not configured"
	}
	return url
}
