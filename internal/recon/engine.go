package recon

import (
	"errors"
	"time"

	"payrecon/internal/config"
	"payrecon/internal/model"
)

// ============================================================================
// 对账引擎
// ============================================================================
//
// 单一入口 Reconcile：给定本地支付记录和（可选的）远端快照，
// 决定下一个合法的本地状态，就地修改记录，并返回一组待执行的效果。
//
// 引擎本身不做任何 I/O，不碰数据库，不发请求 —— 快照由驱动提前取好，
// 效果由履约服务事后执行。这让引擎可以被两个驱动（webhook / 轮询）复用，
// 也让它可以被纯内存地单测。
//
// 【幂等是正确性要求，不是边界情况】
// 两个通道都是至少一次投递，重复和乱序是常态流量。
// 迁移表拒绝目标状态时（比如重复 webhook 想把已入账的记录再标一次已支付），
// 引擎静默空操作，不报错；Outcome.Rejected 会置位，供驱动打日志排查。
// ============================================================================

// Engine 对账引擎
type Engine struct {
	cfg *config.ReconcileConfig
}

func NewEngine(cfg *config.ReconcileConfig) *Engine {
	return &Engine{cfg: cfg}
}

// Outcome 一次对账的结果
type Outcome struct {
	Changed bool                // 记录状态是否发生了变更
	From    model.PaymentStatus // 变更前状态（Changed 时有效）
	To      model.PaymentStatus // 变更后状态（Changed 时有效）
	// Rejected 远端状态建议了一个迁移，但被迁移表拒绝。
	// 多数情况是重复投递的无害噪音；已入账记录收到取消这类冲突值得告警排查。
	Rejected bool
	Effects  []Effect
}

// methodPolicy 取该记录支付方式的对账策略
func (e *Engine) methodPolicy(record *model.PaymentRecord) config.MethodPolicy {
	switch record.PaymentMethod {
	case model.MethodBankSlip:
		return e.cfg.BankSlip
	case model.MethodCreditCard:
		return e.cfg.CreditCard
	case model.MethodInstantTransfer:
		return e.cfg.InstantTransfer
	}
	return config.MethodPolicy{}
}

// Reconcile 对一条支付记录做一次对账
//
// record 是本地支付记录，webhook 查无记录走建单路径时传 nil；
// order 是记录关联的本地订单，未关联时传 nil；
// snap 是远端快照，没有快照的纯本地评估（过期清扫）传 nil。
//
// 三种情形：
//
//	Case A  snap == nil：只评估本地过期；
//	Case B  snap != nil 且未关联本地订单：已付款且来源符合建单策略时
//	        返回 OrderShouldBeCreated，否则退回本地过期评估；
//	Case C  snap != nil 且已关联本地订单：主路径，严格按优先级走判定链。
func (e *Engine) Reconcile(record *model.PaymentRecord, order *model.LocalOrder, snap *Snapshot, now time.Time) Outcome {
	if snap == nil {
		return e.reconcileLocal(record, now)
	}

	if order == nil {
		return e.reconcileUnlinked(record, snap, now)
	}

	return e.reconcileLinked(record, order, snap, now)
}

// reconcileLocal Case A：无快照，只看本地状态
// webhook 查无记录时 record 可能为 nil，此时无事可做
func (e *Engine) reconcileLocal(record *model.PaymentRecord, now time.Time) Outcome {
	if record == nil {
		return Outcome{}
	}
	if !IsExpired(record, e.methodPolicy(record), now) {
		return Outcome{}
	}
	return e.apply(record, record.MarkAsExpired, EffectOrderLocalExpired{})
}

// reconcileUnlinked Case B：有快照，没有本地订单
func (e *Engine) reconcileUnlinked(record *model.PaymentRecord, snap *Snapshot, now time.Time) Outcome {
	if e.shouldCreateOrder(snap) {
		// 只发建单效果，不动状态：新订单自己的第一轮对账会把状态带上来
		return Outcome{Effects: []Effect{EffectOrderShouldBeCreated{Snapshot: snap}}}
	}
	return e.reconcileLocal(record, now)
}

// shouldCreateOrder 判断是否应该为纯远端交易补建本地订单
//
// 话务中心类来源按 call_center 时机开关建单：
// on_paid 在已支付/已入账时建，on_integrated 只在已入账时建；
// API 来源有独立开关，已支付即建。
func (e *Engine) shouldCreateOrder(snap *Snapshot) bool {
	paid := snap.Status == RemoteApproved || snap.Status == RemoteIntegrated
	if !paid {
		return false
	}

	if snap.Origin.IsCallCenterClass() {
		switch e.cfg.CallCenter {
		case config.CallCenterOnPaid:
			return true
		case config.CallCenterOnIntegrated:
			return snap.Status == RemoteIntegrated
		}
		return false
	}

	if snap.Origin == OriginAPI {
		return e.cfg.CreateFromAPI
	}

	return false
}

// reconcileLinked Case C：主路径，首个命中即终止的判定链
func (e *Engine) reconcileLinked(record *model.PaymentRecord, order *model.LocalOrder, snap *Snapshot, now time.Time) Outcome {
	// 1. 本地订单已是商务终态（取消/退款）时本地优先：
	//    把支付记录对齐到订单状态后直接终止，不看远端
	if model.IsOrderTerminal(order.Status) {
		return e.alignToOrder(record, order, now)
	}

	expired := IsExpired(record, e.methodPolicy(record), now)

	// 2. 远端还在等待支付，但本地判定已过期
	if snap.Status == RemotePending {
		if expired {
			return e.apply(record, record.MarkAsExpired, EffectOrderExpired{})
		}
		return Outcome{}
	}

	// 3. 远端已支付 / 已入账
	if snap.Status == RemoteApproved {
		paidAt := valueOrNow(snap.PaidAt, now)
		return e.apply(record, func() error {
			return record.MarkAsPaid(snap.Total, paidAt)
		}, EffectOrderPaid{
			PayReference: record.PayReference,
			AmountPaid:   snap.Total,
			PaidAt:       paidAt,
		})
	}
	if snap.Status == RemoteIntegrated {
		integratedAt := valueOrNow(snap.IntegratedAt, now)
		paidAt := valueOrNow(snap.PaidAt, now)
		return e.apply(record, func() error {
			return record.MarkAsIntegrated(snap.Total, integratedAt, paidAt)
		}, EffectOrderPaid{
			PayReference: record.PayReference,
			AmountPaid:   snap.Total,
			PaidAt:       paidAt,
			Integrated:   true,
		})
	}

	// 4. 远端已授权（反欺诈预留），进入审核
	if snap.Status == RemoteAuthorized {
		return e.apply(record, func() error {
			return record.ChangeStatus(model.StatusInAnalysis)
		}, EffectOrderHeldForReview{})
	}

	// 5. 远端已取消
	if snap.Status == RemoteCancelled {
		return e.apply(record, record.MarkAsCancelled, EffectOrderCancelled{})
	}

	// 6. 远端已退款
	if snap.Status == RemoteRefunded {
		return e.apply(record, func() error {
			return record.MarkAsRefunded(now)
		}, EffectOrderRefunded{RefundedAt: now})
	}

	// 7. 远端状态不可操作，但本地判定已过期
	if expired {
		return e.apply(record, record.MarkAsExpired, EffectOrderExpired{})
	}

	// 8. 远端无变化或尚不可操作
	return Outcome{}
}

// alignToOrder Case C 第 1 步：支付记录对齐到本地订单的终态
func (e *Engine) alignToOrder(record *model.PaymentRecord, order *model.LocalOrder, now time.Time) Outcome {
	switch order.Status {
	case model.OrderStatusCancelled:
		if record.Status != model.StatusCancelled {
			return e.apply(record, record.MarkAsCancelled, nil)
		}
	case model.OrderStatusRefunded:
		if record.Status != model.StatusRefunded {
			return e.apply(record, func() error {
				return record.MarkAsRefunded(now)
			}, nil)
		}
	}
	return Outcome{}
}

// apply 执行一次表控迁移：成功带上效果，被表拒绝则静默空操作
func (e *Engine) apply(record *model.PaymentRecord, mutate func() error, effect Effect) Outcome {
	from := record.Status

	if err := mutate(); err != nil {
		var illegal *model.IllegalTransitionError
		if errors.As(err, &illegal) {
			return Outcome{Rejected: true}
		}
		// 迁移表之外的错误属于编程缺陷，这里不应出现
		return Outcome{Rejected: true}
	}

	out := Outcome{Changed: true, From: from, To: record.Status}
	if effect != nil {
		out.Effects = []Effect{effect}
	}
	return out
}

func valueOrNow(t *time.Time, now time.Time) time.Time {
	if t != nil {
		return *t
	}
	return now
}
