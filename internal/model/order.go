package model

import (
	"time"
)

// 本地订单（履约单）状态
// 这是商城侧的商务状态，和 PaymentRecord 的支付状态是两套词汇
const (
	OrderStatusPending    = "PENDING"    // 待支付
	OrderStatusOnHold     = "ON_HOLD"    // 反欺诈审核挂起
	OrderStatusProcessing = "PROCESSING" // 已付款，履约中
	OrderStatusCompleted  = "COMPLETED"  // 已完成
	OrderStatusCancelled  = "CANCELLED"  // 已取消
	OrderStatusRefunded   = "REFUNDED"   // 已退款
)

// IsOrderTerminal 订单侧终态
// 对账时本地终态（取消/退款）优先于网关状态，见引擎 Case C 第 1 步
func IsOrderTerminal(status string) bool {
	return status == OrderStatusCancelled || status == OrderStatusRefunded
}

// LocalOrder 本地订单表
//
// 交易可能先发生在网关侧（话务中心下单），此时本地订单尚不存在，
// 由对账引擎的 OrderShouldBeCreated 效果触发补建。
type LocalOrder struct {
	ID           int64      `gorm:"primaryKey;autoIncrement" json:"id"`
	OrderNo      string     `gorm:"type:varchar(64);uniqueIndex;not null" json:"order_no"`
	CustomerID   int64      `gorm:"index;not null" json:"customer_id"`
	Status       string     `gorm:"type:varchar(20);index;not null" json:"status"`
	Total        int64      `gorm:"not null" json:"total"` // 订单总额（分）
	PaymentRef   string     `gorm:"type:varchar(64)" json:"payment_ref"` // 支付完成时记录的凭证号
	StockReduced bool       `gorm:"not null;default:0" json:"stock_reduced"` // 库存是否已扣减
	PaidAt       *time.Time `json:"paid_at"`
	CreatedAt    time.Time  `gorm:"autoCreateTime" json:"created_at"`
	UpdatedAt    time.Time  `gorm:"autoUpdateTime" json:"updated_at"`
}

func (LocalOrder) TableName() string {
	return "local_order"
}
