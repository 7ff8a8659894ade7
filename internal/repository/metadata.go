package repository

import (
	"context"
	"errors"
	"time"

	"github.com/Jikuna-xyz/jiku-swap-sub000/internal/models"

	"gorm.io/gorm"
)

type MetadataRepository struct {
	db *gorm.DB
}

func NewMetadataRepository(db *gorm.DB) *MetadataRepository {
	return &MetadataRepository{db: db}
}

func (r *MetadataRepository) Get(ctx context.Context) (*models.RunMetadata, error) {
	var meta models.RunMetadata
	err := r.db.WithContext(ctx).
		Where("id = ?", models.RunMetadataID).
		First(&meta).Error

	if errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, nil
	}
	return &meta, err
}

// RecordRun 每次编排器运行结束调用一次，空跑也要记录
// 累计值只增不减
func (r *MetadataRepository) RecordRun(ctx context.Context, deltaSwaps, deltaJXP int64, lastRun, nextRun time.Time) error {
	return recordRun(r.db.WithContext(ctx), deltaSwaps, deltaJXP, lastRun, nextRun)
}

func recordRun(tx *gorm.DB, deltaSwaps, deltaJXP int64, lastRun, nextRun time.Time) error {
	return tx.Exec(`
		INSERT INTO run_metadata (id, last_run, next_run, total_swaps_processed, total_jxp_awarded, updated_at)
		VALUES (?, ?, ?, ?, ?, NOW())
		ON DUPLICATE KEY UPDATE
			last_run = ?,
			next_run = ?,
			total_swaps_processed = total_swaps_processed + ?,
			total_jxp_awarded = total_jxp_awarded + ?,
			updated_at = NOW()
	`, models.RunMetadataID, lastRun, nextRun, deltaSwaps, deltaJXP,
		lastRun, nextRun, deltaSwaps, deltaJXP).Error
}
