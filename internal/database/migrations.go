package database

import (
	"errors"
	"time"

	"go.uber.org/zap"
	"gorm.io/gorm"
)

const (
	migrationNormalizeEthAddresses = "2026-08-12_normalize_eth_addresses"
	migrationPurgeStaleNonces      = "2026-08-12_purge_stale_wallet_nonces"
)

type migrationRecord struct {
	Name             string `gorm:"column:name;primaryKey;size:190;not null"`
	AppliedAtSeconds int64  `gorm:"column:applied_at_s;not null"`
}

func (migrationRecord) TableName() string {
	return "db_migrations"
}

type migrationDefinition struct {
	name  string
	apply func(*gorm.DB) error
}

func applyMigrations(db *gorm.DB, logger *zap.Logger) error {
	migrations := []migrationDefinition{
		{name: migrationNormalizeEthAddresses, apply: normalizeEthAddresses},
		{name: migrationPurgeStaleNonces, apply: purgeStaleNonces},
	}

	for _, migration := range migrations {
		var record migrationRecord
		err := db.Where("name = ?", migration.name).Take(&record).Error
		if err == nil {
			continue
		}
		if !errors.Is(err, gorm.ErrRecordNotFound) {
			return err
		}
		if err := migration.apply(db); err != nil {
			return err
		}
		appliedAt := time.Now().UTC().Unix()
		if err := db.Create(&migrationRecord{Name: migration.name, AppliedAtSeconds: appliedAt}).Error; err != nil {
			return err
		}
		if logger != nil {
			logger.Info("database migration applied", zap.String("migration", migration.name))
		}
	}
	return nil
}

// normalizeEthAddresses rewrites bound addresses imported before address
// comparison was made case-insensitive at the storage boundary.
func normalizeEthAddresses(db *gorm.DB) error {
	return db.Exec("UPDATE users SET eth_address = lower(eth_address) WHERE eth_address IS NOT NULL AND eth_address <> lower(eth_address);").Error
}

// purgeStaleNonces drops challenge rows that can never be consumed again.
func purgeStaleNonces(db *gorm.DB) error {
	now := time.Now().UTC()
	return db.Exec("DELETE FROM wallet_nonces WHERE used = true OR expires_at < ?;", now).Error
}
