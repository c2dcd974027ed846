package database

import (
	"encoding/json"
	"fmt"
	"time"

	"github.com/shopspring/decimal"
	"gorm.io/driver/sqlite"
	"gorm.io/gorm"
	"gorm.io/gorm/logger"

	"prop-challenge-go/internal/config"
	"prop-challenge-go/internal/models"
)

// NewDatabase creates a new database connection and performs auto-migration.
func NewDatabase(cfg *config.Config) (*gorm.DB, error) {
	db, err := Open(cfg.Database.DSN)
	if err != nil {
		return nil, err
	}

	if err := AutoMigrate(db, cfg); err != nil {
		return nil, err
	}
	return db, nil
}

// Open connects to the sqlite database at dsn with foreign keys enforced.
// sqlite allows one writer, so the pool is capped at a single connection.
func Open(dsn string) (*gorm.DB, error) {
	db, err := gorm.Open(sqlite.Open(dsn), &gorm.Config{
		Logger:  logger.Default.LogMode(logger.Silent),
		NowFunc: func() time.Time { return time.Now().UTC() },
	})
	if err != nil {
		return nil, fmt.Errorf("failed to connect to database: %w", err)
	}

	sqlDB, err := db.DB()
	if err != nil {
		return nil, fmt.Errorf("failed to get sql handle: %w", err)
	}
	sqlDB.SetMaxOpenConns(1)

	if err := db.Exec("PRAGMA foreign_keys = ON").Error; err != nil {
		return nil, fmt.Errorf("failed to enable foreign keys: %w", err)
	}
	return db, nil
}

// AutoMigrate creates or updates the schema and seeds the plan catalog.
// Existing rows are kept.
func AutoMigrate(db *gorm.DB, cfg *config.Config) error {
	if err := db.AutoMigrate(
		&models.User{},
		&models.Plan{},
		&models.Challenge{},
		&models.Trade{},
		&models.DailyMetric{},
	); err != nil {
		return fmt.Errorf("failed to auto-migrate database: %w", err)
	}

	return SeedPlans(db, cfg.Plans)
}

// SeedPlans inserts catalog entries that are not in the database yet.
// Plans already present are left as they are.
func SeedPlans(db *gorm.DB, plans []config.Plan) error {
	for _, p := range plans {
		features, err := json.Marshal(p.Features)
		if err != nil {
			return fmt.Errorf("failed to encode features of plan '%s': %w", p.Slug, err)
		}
		plan := models.Plan{
			Slug:         p.Slug,
			Name:         p.Name,
			Fee:          decimal.NewFromFloat(p.Fee),
			StartBalance: decimal.NewFromFloat(p.StartBalance),
			FeaturesJSON: string(features),
		}
		if err := db.Where(models.Plan{Slug: p.Slug}).FirstOrCreate(&plan).Error; err != nil {
			return fmt.Errorf("failed to populate plan '%s': %w", p.Slug, err)
		}
	}
	return nil
}
