package models

import (
	"time"
)

type SwapSource string

const (
	SourceAMM    SwapSource = "amm"
	SourceNative SwapSource = "native"
)

type SwapEvent struct {
	ID          uint64     `gorm:"primaryKey;autoIncrement" json:"id"`
	TxHash      string     `gorm:"size:66;not null;uniqueIndex:uk_tx" json:"tx_hash"`
	UserAddress string     `gorm:"size:42;not null;index:idx_user" json:"user_address"`
	Source      SwapSource `gorm:"type:enum('amm','native');not null" json:"source"`
	TokenIn     string     `gorm:"size:42;not null" json:"token_in"`
	TokenOut    string     `gorm:"size:42;not null" json:"token_out"`
	AmountIn    string     `gorm:"type:decimal(65,0);not null" json:"amount_in"`
	AmountOut   string     `gorm:"type:decimal(65,0);not null" json:"amount_out"`
	VolumeWMON  float64    `gorm:"not null;default:0" json:"volume_wmon"`
	JXPEarned   int64      `gorm:"not null;default:0" json:"jxp_earned"`
	BlockNumber int64      `gorm:"not null;index" json:"block_number"`
	Timestamp   time.Time  `gorm:"not null;index" json:"timestamp"`
	Processed   bool       `gorm:"not null;default:false;index" json:"processed"`
	ProcessedAt *time.Time `json:"processed_at"`
	NeedsReview bool       `gorm:"not null;default:false;index" json:"needs_review"`
	CreatedAt   time.Time  `gorm:"autoCreateTime" json:"created_at"`
}

func (SwapEvent) TableName() string {
	return "swap_events"
}
