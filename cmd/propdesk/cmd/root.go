package cmd

import (
	"fmt"

	"github.com/spf13/cobra"
	"go.uber.org/zap"
	"gorm.io/gorm"

	"prop-challenge-go/internal/auth"
	"prop-challenge-go/internal/config"
	"prop-challenge-go/internal/database"
	"prop-challenge-go/internal/logger"
)

var configPath string

var rootCmd = &cobra.Command{
	Use:   "propdesk",
	Short: "Prop-firm challenge desk: simulated trading with enforced risk rules",
	Long: `Propdesk runs funded-trader challenges. Traders buy a plan, trade
against live or simulated quotes, and the risk engine passes or fails
the challenge on every trade.

Example:
  propdesk serve --config ./configs
  propdesk quote IAM`,
	SilenceUsage: true,
}

// Execute adds all child commands to the root command and sets flags appropriately.
func Execute() error {
	return rootCmd.Execute()
}

func init() {
	rootCmd.PersistentFlags().StringVarP(&configPath, "config", "c", "./configs", "directory holding config.yml")
}

// app is the shared bootstrap of every command.
type app struct {
	cfg config.Config
	log *zap.Logger
}

func bootstrap() (*app, error) {
	cfg, err := config.LoadConfig(configPath)
	if err != nil {
		return nil, fmt.Errorf("could not load config: %w", err)
	}

	log, err := logger.NewLogger(cfg.Logger.Level, cfg.Logger.Format)
	if err != nil {
		return nil, fmt.Errorf("could not initialize logger: %w", err)
	}
	log.Info("Configuration loaded", zap.String("path", configPath))

	return &app{cfg: cfg, log: log}, nil
}

func (a *app) openStore() (*database.Store, *gorm.DB, error) {
	db, err := database.NewDatabase(&a.cfg)
	if err != nil {
		return nil, nil, fmt.Errorf("failed to connect to database: %w", err)
	}
	a.log.Info("Database connection successful and schema migrated.")
	return database.NewStore(db), db, nil
}

func (a *app) verifier() *auth.HMACVerifier {
	return auth.NewHMACVerifier(a.cfg.Auth.Secret, auth.WithTokenTTL(a.cfg.Auth.TokenTTL))
}

func (a *app) close(db *gorm.DB) {
	if db != nil {
		if sqlDB, err := db.DB(); err == nil {
			_ = sqlDB.Close()
		}
	}
	_ = a.log.Sync()
}
