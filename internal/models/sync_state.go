package models

import (
	"time"

	"gorm.io/datatypes"
)

type SyncState struct {
	Scope         string         `gorm:"primaryKey;type:text;comment:sync scope" json:"scope"`
	LastSuccessAt *time.Time     `gorm:"type:timestamptz;comment:last successful cycle" json:"lastSuccessAt"`
	LastAttemptAt *time.Time     `gorm:"type:timestamptz;comment:last attempted cycle" json:"lastAttemptAt"`
	LastError     *string        `gorm:"type:text;comment:last cycle error" json:"lastError"`
	StatsJSON     datatypes.JSON `gorm:"type:jsonb;comment:cycle counters" json:"stats"`
}

func (SyncState) TableName() string {
	return "sync_state"
}
