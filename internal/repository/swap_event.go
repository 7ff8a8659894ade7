package repository

import (
	"context"
	"errors"

	"github.com/Jikuna-xyz/jiku-swap-sub000/internal/models"

	"gorm.io/gorm"
)

type SwapEventRepository struct {
	db *gorm.DB
}

func NewSwapEventRepository(db *gorm.DB) *SwapEventRepository {
	return &SwapEventRepository{db: db}
}

// ExistsByTxHash 交易哈希是唯一幂等键，插入前必须先检查
func (r *SwapEventRepository) ExistsByTxHash(ctx context.Context, txHash string) (bool, error) {
	var count int64
	err := r.db.WithContext(ctx).
		Model(&models.SwapEvent{}).
		Where("tx_hash = ?", txHash).
		Count(&count).Error
	return count > 0, err
}

// SaveScanResults 批量写入新事件并推进游标，两者在同一事务内提交
func (r *SwapEventRepository) SaveScanResults(ctx context.Context, events []*models.SwapEvent, cursors map[string]int64) error {
	return r.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		if len(events) > 0 {
			if err := tx.CreateInBatches(events, 100).Error; err != nil {
				return err
			}
		}

		for source, block := range cursors {
			err := tx.Exec(`
				INSERT INTO scan_cursors (source, last_scanned_block, updated_at)
				VALUES (?, ?, NOW())
				ON DUPLICATE KEY UPDATE
					last_scanned_block = ?,
					updated_at = NOW()
			`, source, block, block).Error
			if err != nil {
				return err
			}
		}

		return nil
	})
}

// GetUnprocessed 获取未处理且无需人工审核的事件
func (r *SwapEventRepository) GetUnprocessed(ctx context.Context) ([]models.SwapEvent, error) {
	var events []models.SwapEvent
	err := r.db.WithContext(ctx).
		Where("processed = ? AND needs_review = ?", false, false).
		Order("timestamp ASC").
		Find(&events).Error
	return events, err
}

func (r *SwapEventRepository) GetByTxHash(ctx context.Context, txHash string) (*models.SwapEvent, error) {
	var event models.SwapEvent
	err := r.db.WithContext(ctx).
		Where("tx_hash = ?", txHash).
		First(&event).Error

	if errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, nil
	}
	return &event, err
}

func (r *SwapEventRepository) GetRecent(ctx context.Context, limit int) ([]models.SwapEvent, error) {
	var events []models.SwapEvent
	if limit <= 0 {
		limit = 10
	}
	err := r.db.WithContext(ctx).
		Order("timestamp DESC").
		Limit(limit).
		Find(&events).Error
	return events, err
}

func (r *SwapEventRepository) CountAll(ctx context.Context) (int64, error) {
	var count int64
	err := r.db.WithContext(ctx).
		Model(&models.SwapEvent{}).
		Count(&count).Error
	return count, err
}

func (r *SwapEventRepository) CountNeedsReview(ctx context.Context) (int64, error) {
	var count int64
	err := r.db.WithContext(ctx).
		Model(&models.SwapEvent{}).
		Where("needs_review = ?", true).
		Count(&count).Error
	return count, err
}

// ResolveReview 人工审核后写入修正的金额，清除审核标记
// 事件之后会被下一次积分计算正常处理
func (r *SwapEventRepository) ResolveReview(ctx context.Context, id uint64, amountIn, amountOut string, volumeWMON float64, jxpEarned int64) error {
	return r.db.WithContext(ctx).
		Model(&models.SwapEvent{}).
		Where("id = ? AND needs_review = ?", id, true).
		Updates(map[string]interface{}{
			"amount_in":    amountIn,
			"amount_out":   amountOut,
			"volume_wmon":  volumeWMON,
			"jxp_earned":   jxpEarned,
			"needs_review": false,
		}).Error
}
