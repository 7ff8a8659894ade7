package repository

import (
	"context"
	"time"

	"github.com/Jikuna-xyz/jiku-swap-sub000/internal/models"

	"gorm.io/gorm"
)

// LedgerRepository 负责积分计算的跨表提交
type LedgerRepository struct {
	db *gorm.DB
}

func NewLedgerRepository(db *gorm.DB) *LedgerRepository {
	return &LedgerRepository{db: db}
}

// CommitAwards 在单个事务内完成：累加待结算积分、标记事件已处理、更新运行元数据
// 三步要么全部生效要么全部回滚，避免部分失败导致重复发放或丢失发放
func (r *LedgerRepository) CommitAwards(ctx context.Context, awards map[string]int64, eventIDs []uint64, totalJXP int64, lastRun, nextRun time.Time) error {
	processedAt := lastRun

	return r.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		for user, jxp := range awards {
			err := tx.Exec(`
				INSERT INTO pending_balances (user_address, pending_jxp, updated_at)
				VALUES (?, ?, NOW())
				ON DUPLICATE KEY UPDATE
					pending_jxp = pending_jxp + ?,
					updated_at = NOW()
			`, user, jxp, jxp).Error
			if err != nil {
				return err
			}
		}

		if len(eventIDs) > 0 {
			err := tx.Model(&models.SwapEvent{}).
				Where("id IN ?", eventIDs).
				Updates(map[string]interface{}{
					"processed":    true,
					"processed_at": processedAt,
				}).Error
			if err != nil {
				return err
			}
		}

		return recordRun(tx, int64(len(eventIDs)), totalJXP, lastRun, nextRun)
	})
}
