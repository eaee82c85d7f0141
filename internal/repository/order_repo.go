package repository

import (
	"context"
	"errors"
	"time"

	"payrecon/internal/model"

	"gorm.io/gorm"
)

var ErrOrderNotFound = errors.New("本地订单不存在")

type OrderRepository struct {
	db *gorm.DB
}

func NewOrderRepository(db *gorm.DB) *OrderRepository {
	return &OrderRepository{db: db}
}

func (r *OrderRepository) Create(ctx context.Context, tx *gorm.DB, order *model.LocalOrder) error {
	if tx == nil {
		tx = r.db
	}
	return tx.WithContext(ctx).Create(order).Error
}

func (r *OrderRepository) GetByID(ctx context.Context, id int64) (*model.LocalOrder, error) {
	var order model.LocalOrder
	err := r.db.WithContext(ctx).Where("id = ?", id).First(&order).Error
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, ErrOrderNotFound
		}
		return nil, err
	}
	return &order, nil
}

// MarkPaid 标记订单已付款并记录支付凭证号
// 对已付款订单重复调用是空操作（效果处理方必须幂等）
func (r *OrderRepository) MarkPaid(ctx context.Context, tx *gorm.DB, orderID int64, payRef string, paidAt time.Time) error {
	if tx == nil {
		tx = r.db
	}
	return tx.WithContext(ctx).
		Model(&model.LocalOrder{}).
		Where("id = ? AND status NOT IN ?", orderID,
			[]string{model.OrderStatusProcessing, model.OrderStatusCompleted}).
		Updates(map[string]interface{}{
			"status":      model.OrderStatusProcessing,
			"payment_ref": payRef,
			"paid_at":     paidAt,
		}).Error
}

// UpdateStatus 更新订单商务状态，目标状态相同则空转
func (r *OrderRepository) UpdateStatus(ctx context.Context, tx *gorm.DB, orderID int64, toStatus string) error {
	if tx == nil {
		tx = r.db
	}
	return tx.WithContext(ctx).
		Model(&model.LocalOrder{}).
		Where("id = ? AND status <> ?", orderID, toStatus).
		Update("status", toStatus).Error
}

// RestoreStock 取消/过期时回补库存标记
func (r *OrderRepository) RestoreStock(ctx context.Context, tx *gorm.DB, orderID int64) error {
	if tx == nil {
		tx = r.db
	}
	return tx.WithContext(ctx).
		Model(&model.LocalOrder{}).
		Where("id = ? AND stock_reduced = ?", orderID, true).
		Update("stock_reduced", false).Error
}
