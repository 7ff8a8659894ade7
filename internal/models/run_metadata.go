package models

import (
	"time"
)

// RunMetadata 全局单行记录，ID固定为1
type RunMetadata struct {
	ID                  uint64    `gorm:"primaryKey" json:"id"`
	LastRun             time.Time `gorm:"not null" json:"last_run"`
	NextRun             time.Time `gorm:"not null" json:"next_run"`
	TotalSwapsProcessed int64     `gorm:"not null;default:0" json:"total_swaps_processed"`
	TotalJXPAwarded     int64     `gorm:"not null;default:0" json:"total_jxp_awarded"`
	UpdatedAt           time.Time `gorm:"autoUpdateTime" json:"updated_at"`
}

func (RunMetadata) TableName() string {
	return "run_metadata"
}

const RunMetadataID = 1
