package recon

import (
	"time"
)

// ============================================================================
// 对账效果
// ============================================================================
//
// 引擎不直接调用任何协作方，只返回一组描述「接下来该做什么」的值对象，
// 由履约服务在事务里逐个执行。替代了原来散落各处的全局事件广播。
//
// 效果处理方自身必须幂等：对已付款订单再标记一次付款应当是空操作。
// ============================================================================

// Effect 对账效果，封闭集合
type Effect interface {
	// EffectName 效果名，用作 Kafka 消息的事件标识
	EffectName() string
}

// EffectOrderPaid 本地订单应标记为已付款
// PayReference 是订单完成时的确认令牌
type EffectOrderPaid struct {
	PayReference string
	AmountPaid   int64
	PaidAt       time.Time
	Integrated   bool // 是否已清算入账（区分 Approved / Integrated）
}

func (EffectOrderPaid) EffectName() string { return "order_paid" }

// EffectOrderHeldForReview 订单进入反欺诈审核，本地订单挂起
type EffectOrderHeldForReview struct{}

func (EffectOrderHeldForReview) EffectName() string { return "order_held_for_review" }

// EffectOrderCancelled 网关侧已取消，本地订单随之取消
type EffectOrderCancelled struct{}

func (EffectOrderCancelled) EffectName() string { return "order_cancelled" }

// EffectOrderRefunded 网关侧已退款，本地订单随之退款
type EffectOrderRefunded struct {
	RefundedAt time.Time
}

func (EffectOrderRefunded) EffectName() string { return "order_refunded" }

// EffectOrderExpired 等待支付超时过期，取消本地订单
type EffectOrderExpired struct{}

func (EffectOrderExpired) EffectName() string { return "order_expired" }

// EffectOrderLocalExpired 纯本地判定的过期（无快照路径），没有本地订单可取消
type EffectOrderLocalExpired struct{}

func (EffectOrderLocalExpired) EffectName() string { return "order_local_expired" }

// EffectOrderShouldBeCreated 网关侧交易已付款但本地没有订单，应当补建
// 携带完整快照，建单方据此物化本地订单；本次对账不做状态变更，
// 新订单自己的第一轮对账会把状态带上来
type EffectOrderShouldBeCreated struct {
	Snapshot *Snapshot
}

func (EffectOrderShouldBeCreated) EffectName() string { return "order_should_be_created" }
