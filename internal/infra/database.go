package infra

import (
	"fmt"

	"farmacaixa/internal/config"
	"farmacaixa/internal/model"

	"gorm.io/driver/postgres"
	"gorm.io/gorm"
	"gorm.io/gorm/logger"
)

// NewDatabase establishes a GORM connection backed by pgx. Schema changes are
// NOT applied here: production schema is owned by the SQL migrations under
// migrations/ (see Migrator), which also install the ledger freeze triggers.
func NewDatabase(cfg *config.Config) (*gorm.DB, error) {
	db, err := gorm.Open(postgres.Open(cfg.DatabaseURL), &gorm.Config{
		Logger: logger.Default.LogMode(logger.Silent),
		// unique violations surface as gorm.ErrDuplicatedKey
		TranslateError: true,
	})
	if err != nil {
		return nil, err
	}

	sqlDB, err := db.DB()
	if err != nil {
		return nil, err
	}
	sqlDB.SetMaxOpenConns(cfg.DBMaxOpenConns)
	sqlDB.SetMaxIdleConns(cfg.DBMaxIdleConns)

	return db, nil
}

// RunMigrations builds the schema with AutoMigrate for tests and throwaway
// dev databases (sqlite or postgres), then applies the patches AutoMigrate
// cannot express. Production uses Migrator instead.
func RunMigrations(db *gorm.DB) error {
	if err := db.AutoMigrate(
		&model.CashSession{},
		&model.Movement{},
		&model.AuditEntry{},
		&model.Actor{},
	); err != nil {
		return fmt.Errorf("AutoMigrate: %w", err)
	}
	return applySchemaPatches(db)
}

// applySchemaPatches runs idempotent DDL that GORM struct tags cannot carry.
// Both statements are valid on postgres and sqlite.
func applySchemaPatches(db *gorm.DB) error {
	patches := []string{
		// at most one OPEN session per location
		`CREATE UNIQUE INDEX IF NOT EXISTS uniq_cash_sessions_open_location
		    ON cash_sessions (location_id) WHERE status = 'OPEN'`,
		`CREATE INDEX IF NOT EXISTS idx_cash_sessions_location_opened
		    ON cash_sessions (location_id, opened_at)`,
	}
	for _, sql := range patches {
		if err := db.Exec(sql).Error; err != nil {
			return fmt.Errorf("patch %q: %w", sql[:min(len(sql), 60)], err)
		}
	}
	return nil
}
