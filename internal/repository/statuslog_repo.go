package repository

import (
	"context"

	"payrecon/internal/model"

	"gorm.io/gorm"
)

type StatusLogRepository struct {
	db *gorm.DB
}

func NewStatusLogRepository(db *gorm.DB) *StatusLogRepository {
	return &StatusLogRepository{db: db}
}

// Append 追加一条迁移流水，流水只增不改
func (r *StatusLogRepository) Append(ctx context.Context, tx *gorm.DB, entry *model.StatusLog) error {
	if tx == nil {
		tx = r.db
	}
	return tx.WithContext(ctx).Create(entry).Error
}

// ListByPayment 按支付记录查流水，升序
func (r *StatusLogRepository) ListByPayment(ctx context.Context, paymentID int64) ([]*model.StatusLog, error) {
	var entries []*model.StatusLog
	err := r.db.WithContext(ctx).
		Where("payment_id = ?", paymentID).
		Order("created_at ASC").
		Find(&entries).Error
	return entries, err
}
