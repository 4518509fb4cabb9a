package main

import (
	"fmt"
	"os"

	"github.com/rs/zerolog/log"
	"gorm.io/driver/postgres"
	"gorm.io/gorm"
	"gorm.io/gorm/logger"

	"homeledger/models"
	"homeledger/pkg/account"
	"homeledger/pkg/config"
)

var db *gorm.DB

// migrationOrder lists tables parents first so foreign keys can be applied.
var migrationOrder = []any{
	&models.Household{},
	&models.User{},
	&models.RefreshToken{},
	&models.Category{},
	&models.Budget{},
	&models.Transaction{},
	&models.Receipt{},
	&models.ReceiptItem{},
}

func initDB(cfg *config.Config) error {
	if err := cfg.RequireDB(); err != nil {
		return fmt.Errorf("%w: this project requires a Postgres DSN in DB_DSN", err)
	}
	var err error
	db, err = gorm.Open(postgres.Open(cfg.DBDSN), &gorm.Config{Logger: logger.Default.LogMode(logger.Warn)})
	if err != nil {
		return fmt.Errorf("failed to connect postgres database: %w", err)
	}
	if cfg.DBAutoMigrate {
		migrate()
	}
	seedDB(cfg)
	return nil
}

// migrate runs AutoMigrate per model so a failure on one (e.g. missing
// privileges) does not block the others.
func migrate() {
	for _, m := range migrationOrder {
		if err := db.AutoMigrate(m); err != nil {
			log.Warn().Err(err).Str("model", fmt.Sprintf("%T", m)).Msg("migration warning")
		}
	}
}

func seedDB(cfg *config.Config) {
	// households created before categories existed get the defaults
	var ids []uint
	if err := db.Model(&models.Household{}).Pluck("id", &ids).Error; err != nil {
		log.Warn().Err(err).Msg("list households for seeding")
	}
	for _, id := range ids {
		var n int64
		db.Model(&models.Category{}).Where("household_id = ?", id).Count(&n)
		if n > 0 {
			continue
		}
		if err := account.SeedCategories(db, id); err != nil {
			log.Warn().Err(err).Uint("household_id", id).Msg("seed categories")
			continue
		}
		log.Info().Uint("household_id", id).Msg("seeded default categories")
	}
	ensureUploadBase(cfg.UploadBase)
}

// ensureUploadBase creates the base uploads directory.
func ensureUploadBase(base string) {
	if err := os.MkdirAll(base, 0o755); err != nil {
		log.Error().Err(err).Str("dir", base).Msg("failed to create upload base dir")
	}
}
