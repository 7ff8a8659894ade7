package models

import (
	"time"
)

// ScanCursor 每个事件源一行，记录已完整扫描到的区块高度
type ScanCursor struct {
	ID               uint64    `gorm:"primaryKey;autoIncrement" json:"id"`
	Source           string    `gorm:"size:32;not null;uniqueIndex:uk_source" json:"source"`
	LastScannedBlock int64     `gorm:"not null" json:"last_scanned_block"`
	UpdatedAt        time.Time `gorm:"autoUpdateTime" json:"updated_at"`
}

func (ScanCursor) TableName() string {
	return "scan_cursors"
}
