package repository

import (
	"context"
	"errors"

	"github.com/Jikuna-xyz/jiku-swap-sub000/internal/models"

	"gorm.io/gorm"
)

type CursorRepository struct {
	db *gorm.DB
}

func NewCursorRepository(db *gorm.DB) *CursorRepository {
	return &CursorRepository{db: db}
}

// Get 返回nil表示该事件源还没有游标记录
func (r *CursorRepository) Get(ctx context.Context, source string) (*models.ScanCursor, error) {
	var cursor models.ScanCursor
	err := r.db.WithContext(ctx).
		Where("source = ?", source).
		First(&cursor).Error

	if errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, nil
	}
	return &cursor, err
}

func (r *CursorRepository) GetAll(ctx context.Context) ([]models.ScanCursor, error) {
	var cursors []models.ScanCursor
	err := r.db.WithContext(ctx).
		Order("source ASC").
		Find(&cursors).Error
	return cursors, err
}

// Reset 运维接口：把游标重置到指定高度
func (r *CursorRepository) Reset(ctx context.Context, source string, block int64) error {
	return r.db.WithContext(ctx).Exec(`
		INSERT INTO scan_cursors (source, last_scanned_block, updated_at)
		VALUES (?, ?, NOW())
		ON DUPLICATE KEY UPDATE
			last_scanned_block = ?,
			updated_at = NOW()
	`, source, block, block).Error
}
