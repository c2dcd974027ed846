package cmd

import (
	"context"
	"os"
	"os/signal"
	"syscall"

	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"prop-challenge-go/internal/api"
	"prop-challenge-go/internal/challenge"
	"prop-challenge-go/internal/market"
)

var serveCmd = &cobra.Command{
	Use:   "serve",
	Short: "Run the HTTP API",
	RunE:  runServe,
}

func init() {
	rootCmd.AddCommand(serveCmd)
}

func runServe(cmd *cobra.Command, args []string) error {
	a, err := bootstrap()
	if err != nil {
		return err
	}
	store, db, err := a.openStore()
	if err != nil {
		a.log.Error("Startup failed", zap.Error(err))
		return err
	}
	defer a.close(db)

	if a.cfg.Auth.Secret == "" {
		a.log.Warn("auth.secret is empty, tokens are signed with an empty key")
	}

	prices := market.NewDefaultResolver(&a.cfg.Market, a.log)
	engine := challenge.NewEngine(a.log, &a.cfg, store, prices)
	verifier := a.verifier()
	server := api.NewServer(&a.cfg.Server, engine, store, prices, verifier, a.log)

	ctx, stop := signal.NotifyContext(cmd.Context(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	server.Start()
	<-ctx.Done()
	a.log.Info("Shutdown signal received, gracefully shutting down...")

	shutdownCtx, cancel := context.WithTimeout(context.Background(), a.cfg.Server.ShutdownTimeout)
	defer cancel()
	if err := server.Stop(shutdownCtx); err != nil {
		a.log.Error("API server shutdown failed", zap.Error(err))
		return err
	}

	a.log.Info("Server has been shut down.")
	return nil
}
