package gormpersistence

import (
	"context"
	"fmt"

	"gorm.io/gorm"

	"github.com/MatiRivarola/impostor-backend/internal/domain"
)

// GormArchiveRepository 是 ArchiveRepository 接口的 GORM 实现。
type GormArchiveRepository struct {
	db *gorm.DB
}

// NewGormArchiveRepository 创建 GormArchiveRepository 实例。
func NewGormArchiveRepository(db *gorm.DB) *GormArchiveRepository {
	if db == nil {
		panic("database connection cannot be nil for GormArchiveRepository")
	}
	return &GormArchiveRepository{db: db}
}

// Save 写入一条终局归档记录。
func (r *GormArchiveRepository) Save(ctx context.Context, record *domain.GameRecord) error {
	if err := r.db.WithContext(ctx).Create(record).Error; err != nil {
		return fmt.Errorf("gorm: save game record (room: %s): %w", record.RoomCode, err)
	}
	return nil
}

// Recent 返回最近 limit 条归档记录，按结束时间倒序。
func (r *GormArchiveRepository) Recent(ctx context.Context, limit int) ([]domain.GameRecord, error) {
	if limit <= 0 {
		limit = 20
	}
	var records []domain.GameRecord
	err := r.db.WithContext(ctx).Order("finished_at DESC").Limit(limit).Find(&records).Error
	if err != nil {
		return nil, fmt.Errorf("gorm: find recent game records: %w", err)
	}
	return records, nil
}
