package models

import (
	"time"
)

// SettlementHold 链上结算已确认但本地余额清零失败时落库的对账记录
// 存在未解决的记录期间禁止再次批量上链，防止重复发放
type SettlementHold struct {
	ID            uint64     `gorm:"primaryKey;autoIncrement" json:"id"`
	TxHash        string     `gorm:"size:66;not null;uniqueIndex:uk_hold_tx" json:"tx_hash"`
	UserAddresses string     `gorm:"type:text;not null" json:"user_addresses"`
	TotalJXP      int64      `gorm:"not null" json:"total_jxp"`
	Resolved      bool       `gorm:"default:false;index" json:"resolved"`
	CreatedAt     time.Time  `gorm:"autoCreateTime" json:"created_at"`
	ResolvedAt    *time.Time `json:"resolved_at"`
}

func (SettlementHold) TableName() string {
	return "settlement_holds"
}
