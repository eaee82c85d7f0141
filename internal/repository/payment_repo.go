package repository

import (
	"context"
	"errors"
	"time"

	"payrecon/internal/model"

	"gorm.io/gorm"
)

var (
	ErrPaymentNotFound = errors.New("支付记录不存在")
	// ErrStaleRecord 条件更新没有命中：并发写入方已经抢先改过状态
	ErrStaleRecord = errors.New("支付记录状态已被并发修改")
)

type PaymentRepository struct {
	db *gorm.DB
}

func NewPaymentRepository(db *gorm.DB) *PaymentRepository {
	return &PaymentRepository{db: db}
}

func (r *PaymentRepository) Create(ctx context.Context, tx *gorm.DB, record *model.PaymentRecord) error {
	if tx == nil {
		tx = r.db
	}
	return tx.WithContext(ctx).Create(record).Error
}

func (r *PaymentRepository) GetByID(ctx context.Context, id int64) (*model.PaymentRecord, error) {
	var record model.PaymentRecord
	err := r.db.WithContext(ctx).Where("id = ?", id).First(&record).Error
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, ErrPaymentNotFound
		}
		return nil, err
	}
	return &record, nil
}

// GetByRemoteOrderID 按网关订单号查找，未找到返回 nil 而不是错误
// webhook 驱动靠这个区分「建单路径」和「主路径」
func (r *PaymentRepository) GetByRemoteOrderID(ctx context.Context, remoteOrderID int64) (*model.PaymentRecord, error) {
	var record model.PaymentRecord
	err := r.db.WithContext(ctx).Where("remote_order_id = ?", remoteOrderID).First(&record).Error
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, nil
		}
		return nil, err
	}
	return &record, nil
}

// inFlightStatuses 轮询关心的非终态集合
// Approved / Integrated 也在列：已收款的记录仍可能被网关侧退款
var inFlightStatuses = []model.PaymentStatus{
	model.StatusCreated,
	model.StatusPending,
	model.StatusInAnalysis,
	model.StatusPendingIntegration,
	model.StatusApproved,
	model.StatusIntegrated,
}

// ListInFlight 按支付方式分页取在途记录
//
// 只取 updated_at 早于水位线 before 的行，避免重复处理 webhook 刚碰过的记录；
// (afterTime, afterID) 是升序复合游标（上一页最后一行）：没对上的记录本轮
// 不会变更 updated_at，靠游标前移保证翻页不会原地打转，id 兜住同秒的行。
func (r *PaymentRepository) ListInFlight(ctx context.Context, env, method string, afterTime time.Time, afterID int64, before time.Time, limit int) ([]*model.PaymentRecord, error) {
	var records []*model.PaymentRecord
	err := r.db.WithContext(ctx).
		Where("env = ? AND payment_method = ? AND status IN ? AND updated_at < ?",
			env, method, inFlightStatuses, before).
		Where("updated_at > ? OR (updated_at = ? AND id > ?)", afterTime, afterTime, afterID).
		Order("updated_at ASC, id ASC").
		Limit(limit).
		Find(&records).Error
	return records, err
}

// expirableStatuses 迁移表里带 Expired 出边的状态
// 审核中/等待清算/拒付处理中没有这条边，捞出来也只会被表拒绝
var expirableStatuses = []model.PaymentStatus{
	model.StatusCreated,
	model.StatusPending,
}

// ListWaitingWithExpiry 本地过期清扫的候选集：可过期且写过 expires_at 的记录
// 只取未关联订单的：已关联订单的过期由轮询主路径判定
func (r *PaymentRepository) ListWaitingWithExpiry(ctx context.Context, env string, limit int) ([]*model.PaymentRecord, error) {
	var records []*model.PaymentRecord
	err := r.db.WithContext(ctx).
		Where("env = ? AND status IN ? AND expires_at IS NOT NULL AND payment_method <> ? AND order_id IS NULL",
			env, expirableStatuses, model.MethodCreditCard).
		Order("updated_at ASC").
		Limit(limit).
		Find(&records).Error
	return records, err
}

// ApplyTransition 按「当前状态必须等于 fromStatus」的条件落库一次状态迁移
//
// 【关键点】两个驱动可能在同一条记录上竞争，靠这条 WHERE 保证
// 先到者生效、后到者空转：RowsAffected 为 0 时返回 ErrStaleRecord，
// 调用方放弃本次效果执行即可，下一轮对账会重新收敛。
func (r *PaymentRepository) ApplyTransition(ctx context.Context, tx *gorm.DB, record *model.PaymentRecord, fromStatus model.PaymentStatus) error {
	if tx == nil {
		tx = r.db
	}

	updates := map[string]interface{}{
		"status": record.Status,
	}
	if record.AmountPaid != nil {
		updates["amount_paid"] = record.AmountPaid
	}
	if record.PaidAt != nil {
		updates["paid_at"] = record.PaidAt
	}
	if record.IntegratedAt != nil {
		updates["integrated_at"] = record.IntegratedAt
	}
	if record.RefundedAt != nil {
		updates["refunded_at"] = record.RefundedAt
	}

	result := tx.WithContext(ctx).
		Model(&model.PaymentRecord{}).
		Where("id = ? AND status = ?", record.ID, fromStatus).
		Updates(updates)

	if result.Error != nil {
		return result.Error
	}

	if result.RowsAffected == 0 {
		return ErrStaleRecord
	}

	return nil
}

// LinkOrder 关联本地订单
func (r *PaymentRepository) LinkOrder(ctx context.Context, tx *gorm.DB, paymentID, orderID int64) error {
	if tx == nil {
		tx = r.db
	}
	return tx.WithContext(ctx).
		Model(&model.PaymentRecord{}).
		Where("id = ?", paymentID).
		Update("order_id", orderID).Error
}

// UnlinkOrder 本地订单被删除时清空关联，记录保留用于审计
func (r *PaymentRepository) UnlinkOrder(ctx context.Context, orderID int64) error {
	return r.db.WithContext(ctx).
		Model(&model.PaymentRecord{}).
		Where("order_id = ?", orderID).
		Update("order_id", nil).Error
}

// ListByCustomer 按网关客户号分页查询
func (r *PaymentRepository) ListByCustomer(ctx context.Context, customerID int64, page, pageSize int) ([]*model.PaymentRecord, int64, error) {
	var records []*model.PaymentRecord
	var total int64

	query := r.db.WithContext(ctx).Model(&model.PaymentRecord{}).Where("remote_customer_id = ?", customerID)

	err := query.Count(&total).Error
	if err != nil {
		return nil, 0, err
	}

	err = query.
		Order("created_at DESC").
		Offset((page - 1) * pageSize).
		Limit(pageSize).
		Find(&records).Error

	return records, total, err
}
