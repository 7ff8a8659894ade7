package repository

import (
	"context"
	"errors"
	"strings"
	"time"

	"github.com/Jikuna-xyz/jiku-swap-sub000/internal/models"

	"gorm.io/gorm"
)

type BalanceRepository struct {
	db *gorm.DB
}

func NewBalanceRepository(db *gorm.DB) *BalanceRepository {
	return &BalanceRepository{db: db}
}

func (r *BalanceRepository) GetByUser(ctx context.Context, userAddress string) (*models.PendingBalance, error) {
	var balance models.PendingBalance
	err := r.db.WithContext(ctx).
		Where("user_address = ?", userAddress).
		First(&balance).Error

	if errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, nil
	}
	return &balance, err
}

// AddPending 原子性增加用户待结算积分
// 使用INSERT ... ON DUPLICATE KEY UPDATE实现upsert
func (r *BalanceRepository) AddPending(ctx context.Context, userAddress string, jxp int64) error {
	return r.db.WithContext(ctx).Exec(`
		INSERT INTO pending_balances (user_address, pending_jxp, updated_at)
		VALUES (?, ?, NOW())
		ON DUPLICATE KEY UPDATE
			pending_jxp = pending_jxp + ?,
			updated_at = NOW()
	`, userAddress, jxp, jxp).Error
}

// GetPositive 获取所有待结算积分大于0的用户，按地址排序保证结算顺序稳定
func (r *BalanceRepository) GetPositive(ctx context.Context) ([]models.PendingBalance, error) {
	var balances []models.PendingBalance
	err := r.db.WithContext(ctx).
		Where("pending_jxp > 0").
		Order("user_address ASC").
		Find(&balances).Error
	return balances, err
}

// ZeroBalances 结算确认成功后清零，记录保留不删除
func (r *BalanceRepository) ZeroBalances(ctx context.Context, users []string, at time.Time) error {
	if len(users) == 0 {
		return nil
	}
	return r.db.WithContext(ctx).
		Model(&models.PendingBalance{}).
		Where("user_address IN ?", users).
		Updates(map[string]interface{}{
			"pending_jxp": 0,
			"updated_at":  at,
		}).Error
}

// HasOpenHold 是否存在尚未对账的结算记录
func (r *BalanceRepository) HasOpenHold(ctx context.Context) (bool, error) {
	var count int64
	err := r.db.WithContext(ctx).
		Model(&models.SettlementHold{}).
		Where("resolved = ?", false).
		Count(&count).Error
	return count > 0, err
}

// RecordHold 链上已记账但清零失败时落库，阻止后续批量结算直到人工对账
func (r *BalanceRepository) RecordHold(ctx context.Context, txHash string, users []string, totalJXP int64) error {
	hold := models.SettlementHold{
		TxHash:        txHash,
		UserAddresses: strings.Join(users, ","),
		TotalJXP:      totalJXP,
	}
	return r.db.WithContext(ctx).Create(&hold).Error
}

// ResolveHold 对账完成：同一事务内补清涉及用户的余额并关闭记录
func (r *BalanceRepository) ResolveHold(ctx context.Context, txHash string) error {
	return r.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		var hold models.SettlementHold
		if err := tx.Where("tx_hash = ? AND resolved = ?", txHash, false).
			First(&hold).Error; err != nil {
			return err
		}

		now := time.Now()
		users := strings.Split(hold.UserAddresses, ",")
		if err := tx.Model(&models.PendingBalance{}).
			Where("user_address IN ?", users).
			Updates(map[string]interface{}{
				"pending_jxp": 0,
				"updated_at":  now,
			}).Error; err != nil {
			return err
		}

		return tx.Model(&models.SettlementHold{}).
			Where("id = ?", hold.ID).
			Updates(map[string]interface{}{
				"resolved":    true,
				"resolved_at": now,
			}).Error
	})
}

func (r *BalanceRepository) List(ctx context.Context, offset, limit int) ([]models.PendingBalance, error) {
	var balances []models.PendingBalance
	err := r.db.WithContext(ctx).
		Order("pending_jxp DESC").
		Offset(offset).
		Limit(limit).
		Find(&balances).Error
	return balances, err
}

func (r *BalanceRepository) Count(ctx context.Context) (int64, error) {
	var count int64
	err := r.db.WithContext(ctx).
		Model(&models.PendingBalance{}).
		Count(&count).Error
	return count, err
}
