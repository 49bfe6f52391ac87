package main

import (
	"context"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/joho/godotenv"
	"github.com/spf13/cobra"

	"github.com/orionlabs/orion-go/internal/auth"
	"github.com/orionlabs/orion-go/internal/chat"
	"github.com/orionlabs/orion-go/internal/config"
	"github.com/orionlabs/orion-go/internal/llm"
	"github.com/orionlabs/orion-go/internal/logger"
	"github.com/orionlabs/orion-go/internal/server"
	"github.com/orionlabs/orion-go/internal/store"
)

func main() {
	rootCmd := &cobra.Command{
		Use:   "orion",
		Short: "Orion conversational chat service",
	}
	rootCmd.AddCommand(serveCmd())

	if err := rootCmd.Execute(); err != nil {
		logger.L.Error("command failed", "error", err)
		os.Exit(1)
	}
}

func serveCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "serve",
		Short: "Run the chat HTTP server",
		RunE: func(cmd *cobra.Command, args []string) error {
			// Secrets (OPENROUTER_API_KEY, SECRET_KEY) conventionally live in .env.
			_ = godotenv.Load()

			cfg, err := config.Load()
			if err != nil {
				return fmt.Errorf("load configuration: %w", err)
			}
			logger.SetLevel(cfg.Log.Level)

			if cfg.Provider.APIKey == "" {
				return fmt.Errorf("provider API key not configured (set OPENROUTER_API_KEY)")
			}
			if cfg.Auth.Enabled && cfg.Auth.Secret == "" {
				return fmt.Errorf("auth secret not configured (set SECRET_KEY)")
			}

			st, err := store.Open(cfg.Database.Path)
			if err != nil {
				return fmt.Errorf("open store: %w", err)
			}
			defer st.Close()

			authSvc, err := auth.NewService(cmd.Context(), st, cfg.Auth)
			if err != nil {
				return fmt.Errorf("init auth: %w", err)
			}

			completer := llm.NewClient(cfg.Provider)
			orchestrator := chat.NewOrchestrator(st, completer, cfg)
			srv := server.New(cfg, st, orchestrator, authSvc)

			ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
			defer stop()

			errCh := make(chan error, 1)
			go func() {
				addr := fmt.Sprintf("%s:%s", cfg.Server.Host, cfg.Server.Port)
				if err := srv.Start(addr); err != nil && err != http.ErrServerClosed {
					errCh <- err
				}
			}()

			select {
			case err := <-errCh:
				return fmt.Errorf("server: %w", err)
			case <-ctx.Done():
				logger.L.Info("shutting down")
				shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
				defer cancel()
				return srv.Shutdown(shutdownCtx)
			}
		},
	}
}
