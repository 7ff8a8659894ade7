package models

import (
	"time"
)

type PendingBalance struct {
	ID          uint64    `gorm:"primaryKey;autoIncrement" json:"id"`
	UserAddress string    `gorm:"size:42;not null;uniqueIndex:uk_user" json:"user_address"`
	PendingJXP  int64     `gorm:"not null;default:0" json:"pending_jxp"`
	UpdatedAt   time.Time `gorm:"autoUpdateTime" json:"updated_at"`
}

func (PendingBalance) TableName() string {
	return "pending_balances"
}
