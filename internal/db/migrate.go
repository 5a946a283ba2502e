package db

import (
	"hypertoken/internal/models"
)

func AutoMigrate(db *DB) error {
	if db == nil || db.Gorm == nil || db.SQL == nil {
		return nil
	}

	return db.Gorm.AutoMigrate(
		&models.TokenRecord{},
		&models.StartPx{},
		&models.SyncState{},
	)
}
