package model

import (
	"fmt"
	"time"
)

// ============================================================================
// 支付状态机
// ============================================================================
//
// 状态值持久化为整数编码，和网关侧的状态词汇表（小写葡语单词）严格分离，
// 两边的映射只在 recon 包的快照归一化里做一次。
//
// 状态迁移必须走 ValidStatusTransitions 表，非法迁移是可恢复的领域错误，
// 绝不 panic。终态（已取消/已过期/已退款/拒付胜诉/拒付败诉）没有出边。
// ============================================================================

// PaymentStatus 本地支付状态编码
type PaymentStatus int

const (
	StatusCreated            PaymentStatus = 0  // 已创建，尚未提交网关
	StatusPending            PaymentStatus = 1  // 网关已受理，等待支付
	StatusApproved           PaymentStatus = 2  // 已支付
	StatusCancelled          PaymentStatus = 3  // 已取消
	StatusInAnalysis         PaymentStatus = 4  // 反欺诈审核中
	StatusIntegrated         PaymentStatus = 5  // 已支付且网关侧已清算入账
	StatusPendingIntegration PaymentStatus = 6  // 已授权，等待清算
	StatusRefunded           PaymentStatus = 7  // 已退款
	StatusChargebackLost     PaymentStatus = 8  // 拒付败诉
	StatusChargebackWaiting  PaymentStatus = 9  // 拒付处理中
	StatusChargebackWon      PaymentStatus = 10 // 拒付胜诉
	StatusExpired            PaymentStatus = 11 // 已过期
)

func (s PaymentStatus) String() string {
	switch s {
	case StatusCreated:
		return "CREATED"
	case StatusPending:
		return "PENDING"
	case StatusApproved:
		return "APPROVED"
	case StatusCancelled:
		return "CANCELLED"
	case StatusInAnalysis:
		return "IN_ANALYSIS"
	case StatusIntegrated:
		return "INTEGRATED"
	case StatusPendingIntegration:
		return "PENDING_INTEGRATION"
	case StatusRefunded:
		return "REFUNDED"
	case StatusChargebackLost:
		return "CHARGEBACK_LOST"
	case StatusChargebackWaiting:
		return "CHARGEBACK_WAITING"
	case StatusChargebackWon:
		return "CHARGEBACK_WON"
	case StatusExpired:
		return "EXPIRED"
	}
	return fmt.Sprintf("UNKNOWN(%d)", int(s))
}

// ValidStatusTransitions 合法状态迁移表
// 不在表中的源状态（终态）没有任何出边
var ValidStatusTransitions = map[PaymentStatus][]PaymentStatus{
	StatusCreated: {StatusPending, StatusCancelled, StatusExpired},
	StatusPending: {StatusApproved, StatusIntegrated, StatusCancelled,
		StatusExpired, StatusInAnalysis, StatusChargebackWaiting},
	StatusInAnalysis:         {StatusApproved},
	StatusPendingIntegration: {StatusIntegrated},
	StatusApproved:           {StatusRefunded, StatusChargebackWaiting},
	StatusIntegrated:         {StatusRefunded, StatusChargebackWaiting},
	StatusChargebackWaiting:  {StatusChargebackLost, StatusChargebackWon},
}

// CanTransitionTo 判断状态迁移是否合法
func CanTransitionTo(currentStatus, targetStatus PaymentStatus) bool {
	allowedStatuses, exists := ValidStatusTransitions[currentStatus]
	if !exists {
		return false
	}
	for _, s := range allowedStatuses {
		if s == targetStatus {
			return true
		}
	}
	return false
}

// IsTerminal 终态没有出边
func (s PaymentStatus) IsTerminal() bool {
	return len(ValidStatusTransitions[s]) == 0
}

// IsWaiting 等待态：款项尚未落定，过期策略只对等待态生效
func (s PaymentStatus) IsWaiting() bool {
	switch s {
	case StatusCreated, StatusPending, StatusInAnalysis,
		StatusPendingIntegration, StatusChargebackWaiting:
		return true
	}
	return false
}

// IsPaid 已收到款项
func (s PaymentStatus) IsPaid() bool {
	return s == StatusApproved || s == StatusIntegrated
}

// IllegalTransitionError 非法状态迁移
type IllegalTransitionError struct {
	From PaymentStatus
	To   PaymentStatus
}

func (e *IllegalTransitionError) Error() string {
	return fmt.Sprintf("非法状态迁移: %s -> %s", e.From, e.To)
}

// ============================================================================
// 支付方式 / 环境
// ============================================================================

const (
	MethodBankSlip        = "BANK_SLIP"        // 银行票据，异步，可过期
	MethodCreditCard      = "CREDIT_CARD"      // 信用卡，同步结算，永不过期
	MethodInstantTransfer = "INSTANT_TRANSFER" // 即时转账，异步，秒级过期
)

func IsValidMethod(method string) bool {
	return method == MethodBankSlip || method == MethodCreditCard || method == MethodInstantTransfer
}

const (
	EnvTest       = "test"
	EnvStaging    = "staging"
	EnvProduction = "production"
)

// ============================================================================
// 支付记录实体
// ============================================================================

// PaymentRecord 支付记录表，每次支付尝试一行
//
// 记录只增不删：取消/过期/退款是终态而不是删除；
// 本地订单被删除时只清空 order_id 关联，记录本身保留用于审计。
type PaymentRecord struct {
	ID               int64          `gorm:"primaryKey;autoIncrement" json:"id"`
	RemoteOrderID    int64          `gorm:"uniqueIndex;not null" json:"remote_order_id"`    // 网关订单ID
	RemoteCustomerID int64          `gorm:"not null" json:"remote_customer_id"`             // 网关客户ID
	RemoteSiteID     *int64         `json:"remote_site_id"`                                 // 网关站点ID，受理前为空
	OrderID          *int64         `gorm:"index" json:"order_id"`                          // 本地订单ID，可为空
	PaymentMethod    string         `gorm:"type:varchar(32);index;not null" json:"payment_method"`
	Env              string         `gorm:"type:varchar(16);index;not null" json:"env"`
	Status           PaymentStatus  `gorm:"index;not null" json:"status"`
	Amount           int64          `gorm:"not null" json:"amount"`       // 请求金额（分），创建后不变
	AmountPaid       *int64         `json:"amount_paid"`                  // 实付金额（分），可能含分期利息
	PayReference     string         `gorm:"type:varchar(64)" json:"pay_reference"` // 支付凭证号，订单完成时的确认令牌
	PaidAt           *time.Time     `json:"paid_at"`
	IntegratedAt     *time.Time     `json:"integrated_at"`
	RefundedAt       *time.Time     `json:"refunded_at"`
	ExpiresAt        *time.Time     `json:"expires_at"` // 含义随支付方式而变：票据到期日 / 转账作废时刻
	CreatedAt        time.Time      `gorm:"autoCreateTime;index" json:"created_at"`
	UpdatedAt        time.Time      `gorm:"autoUpdateTime;index" json:"updated_at"`
}

func (PaymentRecord) TableName() string {
	return "payment_record"
}

func (p *PaymentRecord) HasOrder() bool {
	return p.OrderID != nil
}

// LinkOrder 关联本地订单
func (p *PaymentRecord) LinkOrder(orderID int64) {
	p.OrderID = &orderID
}

// UnlinkOrder 解除本地订单关联，记录保留
func (p *PaymentRecord) UnlinkOrder() {
	p.OrderID = nil
}

// ChangeStatus 显式状态变更，非引擎调用方（如人工操作）使用
// 非法迁移返回 IllegalTransitionError，记录不动
func (p *PaymentRecord) ChangeStatus(target PaymentStatus) error {
	if !CanTransitionTo(p.Status, target) {
		return &IllegalTransitionError{From: p.Status, To: target}
	}
	p.Status = target
	return nil
}

// MarkAsPaid 标记为已支付
// paid_at 一旦写入便不再被前向迁移清掉
func (p *PaymentRecord) MarkAsPaid(amountPaid int64, paidAt time.Time) error {
	if err := p.ChangeStatus(StatusApproved); err != nil {
		return err
	}
	p.AmountPaid = &amountPaid
	if p.PaidAt == nil {
		p.PaidAt = &paidAt
	}
	return nil
}

// MarkAsIntegrated 标记为已清算入账，paid_at 若未写入则补齐
func (p *PaymentRecord) MarkAsIntegrated(amountPaid int64, integratedAt time.Time, paidAt time.Time) error {
	if err := p.ChangeStatus(StatusIntegrated); err != nil {
		return err
	}
	p.AmountPaid = &amountPaid
	p.IntegratedAt = &integratedAt
	if p.PaidAt == nil {
		p.PaidAt = &paidAt
	}
	return nil
}

// MarkAsCancelled 标记为已取消
func (p *PaymentRecord) MarkAsCancelled() error {
	return p.ChangeStatus(StatusCancelled)
}

// MarkAsRefunded 标记为已退款
func (p *PaymentRecord) MarkAsRefunded(refundedAt time.Time) error {
	if err := p.ChangeStatus(StatusRefunded); err != nil {
		return err
	}
	p.RefundedAt = &refundedAt
	return nil
}

// MarkAsExpired 标记为已过期
func (p *PaymentRecord) MarkAsExpired() error {
	return p.ChangeStatus(StatusExpired)
}
