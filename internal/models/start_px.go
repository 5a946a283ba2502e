package models

import "time"

// StartPx is the reference launch price of a spot token. Rows are written once
// and never updated.
type StartPx struct {
	Index     int       `gorm:"primaryKey;autoIncrement:false;comment:spot token index" json:"index"`
	StartPx   string    `gorm:"type:text;not null;comment:reference start price" json:"startPx"`
	CreatedAt time.Time `gorm:"type:timestamptz;autoCreateTime" json:"-"`
}

func (StartPx) TableName() string {
	return "start_px"
}
