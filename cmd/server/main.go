package main

import (
	"context"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/spf13/cobra"

	"github.com/posixpascal/discourse-piratenlogin/internal/app"
	"github.com/posixpascal/discourse-piratenlogin/internal/config"
	"github.com/posixpascal/discourse-piratenlogin/internal/logger"
)

func main() {
	var cfg config.Config

	root := &cobra.Command{
		Use:          "piratenlogin",
		Short:        "Piratenlogin OIDC login service",
		SilenceUsage: true,
		PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
			loaded, err := config.Load()
			if err != nil {
				return err
			}
			cfg = loaded
			logger.Init(logger.Config{Env: cfg.AppEnv, Level: cfg.LogLevel})
			return nil
		},
		PersistentPostRun: func(cmd *cobra.Command, args []string) {
			logger.Sync()
		},
	}

	serveCmd := &cobra.Command{
		Use:   "serve",
		Short: "Run the HTTP server",
		RunE: func(cmd *cobra.Command, args []string) error {
			return serve(cfg)
		},
	}

	migrateCmd := &cobra.Command{
		Use:   "migrate",
		Short: "Apply the database schema and define the authorization group",
		RunE: func(cmd *cobra.Command, args []string) error {
			ctx, cancel := context.WithTimeout(cmd.Context(), time.Minute)
			defer cancel()

			database, err := app.Migrate(ctx, cfg)
			if err != nil {
				return err
			}
			return database.Close()
		},
	}

	root.AddCommand(serveCmd, migrateCmd)

	// Running without a subcommand serves, like before the CLI existed.
	root.RunE = serveCmd.RunE

	if err := root.Execute(); err != nil {
		logger.Fatal("command failed", map[string]any{
			"error": err.Error(),
		})
	}
}

func serve(cfg config.Config) error {
	ctx, stop := signal.NotifyContext(
		context.Background(),
		os.Interrupt,
		syscall.SIGTERM,
	)
	defer stop()

	application, err := app.New(ctx, cfg)
	if err != nil {
		return err
	}

	errCh := make(chan error, 1)
	go func() {
		errCh <- application.Run()
	}()

	logger.Info("piratenlogin started", map[string]any{
		"port": cfg.AppPort,
	})

	select {
	case <-ctx.Done():
		logger.Info("shutdown signal received", nil)
	case err := <-errCh:
		if err != nil {
			return err
		}
	}

	shutdownCtx, cancel := context.WithTimeout(
		context.Background(),
		10*time.Second,
	)
	defer cancel()

	if err := application.Shutdown(shutdownCtx); err != nil {
		return err
	}

	logger.Info("piratenlogin stopped cleanly", nil)
	return nil
}
