package accesslog

import (
	"context"

	"gorm.io/gorm"
)

type Store interface {
	Create(ctx context.Context, l *AccessLog) error
	ListByShortCode(ctx context.Context, code string, limit, offset int) ([]*AccessLog, error)
}

type Repository struct {
	db *gorm.DB
}

func NewRepository(db *gorm.DB) *Repository {
	return &Repository{db: db}
}

func (r *Repository) Create(ctx context.Context, l *AccessLog) error {
	return r.db.WithContext(ctx).Create(l).Error
}

// ListByShortCode returns events for one link, newest first.
func (r *Repository) ListByShortCode(ctx context.Context, code string, limit, offset int) ([]*AccessLog, error) {
	var logs []*AccessLog
	err := r.db.WithContext(ctx).
		Where("short_code = ?", code).
		Order("occurred_at DESC").
		Limit(limit).
		Offset(offset).
		Find(&logs).Error
	return logs, err
}
