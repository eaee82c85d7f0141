package service

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log"
	"time"

	"payrecon/internal/config"
	"payrecon/internal/model"
	"payrecon/internal/recon"
	"payrecon/internal/repository"
	"payrecon/pkg/idgen"

	"gorm.io/gorm"
)

// ============================================================================
// 履约服务
// ============================================================================
//
// 引擎只产出「接下来该做什么」的效果列表，真正落库和动订单的是这里。
//
// 【关键点】一次对账结果的执行必须原子：
// 1. 支付记录的状态迁移走「当前状态 = From」的条件更新
// 2. 迁移流水、订单变更、outbox 消息和状态更新落在同一个事务
// 3. 条件更新空转（ErrStaleRecord）说明另一个驱动抢先了，
//    整个事务回滚，效果一个都不执行 —— 下一轮对账会重新收敛
// ============================================================================

type FulfillmentService struct {
	db            *gorm.DB
	cfg           *config.Config
	paymentRepo   *repository.PaymentRepository
	orderRepo     *repository.OrderRepository
	statusLogRepo *repository.StatusLogRepository
	outboxRepo    *repository.OutboxRepository
}

func NewFulfillmentService(db *gorm.DB, cfg *config.Config) *FulfillmentService {
	return &FulfillmentService{
		db:            db,
		cfg:           cfg,
		paymentRepo:   repository.NewPaymentRepository(db),
		orderRepo:     repository.NewOrderRepository(db),
		statusLogRepo: repository.NewStatusLogRepository(db),
		outboxRepo:    repository.NewOutboxRepository(db),
	}
}

// ApplyOutcome 在一个事务里执行一次对账结果
//
// record 在建单路径（webhook 查无记录）下可能为 nil。
// 返回 repository.ErrStaleRecord 表示并发写入方抢先，调用方打日志跳过即可。
func (s *FulfillmentService) ApplyOutcome(ctx context.Context, record *model.PaymentRecord, outcome recon.Outcome, source string) error {
	if !outcome.Changed && len(outcome.Effects) == 0 {
		return nil
	}

	return s.db.Transaction(func(tx *gorm.DB) error {
		if outcome.Changed {
			if err := s.paymentRepo.ApplyTransition(ctx, tx, record, outcome.From); err != nil {
				return err
			}

			entry := &model.StatusLog{
				PaymentID:     record.ID,
				RemoteOrderID: record.RemoteOrderID,
				FromStatus:    outcome.From,
				ToStatus:      outcome.To,
				Source:        source,
			}
			if err := s.statusLogRepo.Append(ctx, tx, entry); err != nil {
				return err
			}
		}

		for _, effect := range outcome.Effects {
			if err := s.applyEffect(ctx, tx, record, effect); err != nil {
				return err
			}
		}

		return nil
	})
}

func (s *FulfillmentService) applyEffect(ctx context.Context, tx *gorm.DB, record *model.PaymentRecord, effect recon.Effect) error {
	switch e := effect.(type) {
	case recon.EffectOrderPaid:
		if record.HasOrder() {
			if err := s.orderRepo.MarkPaid(ctx, tx, *record.OrderID, e.PayReference, e.PaidAt); err != nil {
				return err
			}
		}
		return s.enqueue(ctx, tx, record, s.cfg.Kafka.Topic.PaymentResult, effect.EffectName())

	case recon.EffectOrderHeldForReview:
		if record.HasOrder() {
			if err := s.orderRepo.UpdateStatus(ctx, tx, *record.OrderID, model.OrderStatusOnHold); err != nil {
				return err
			}
		}
		return s.enqueue(ctx, tx, record, s.cfg.Kafka.Topic.PaymentResult, effect.EffectName())

	case recon.EffectOrderCancelled:
		if err := s.cancelOrder(ctx, tx, record); err != nil {
			return err
		}
		return s.enqueue(ctx, tx, record, s.cfg.Kafka.Topic.PaymentResult, effect.EffectName())

	case recon.EffectOrderExpired:
		if err := s.cancelOrder(ctx, tx, record); err != nil {
			return err
		}
		return s.enqueue(ctx, tx, record, s.cfg.Kafka.Topic.PaymentExpired, effect.EffectName())

	case recon.EffectOrderRefunded:
		if record.HasOrder() {
			if err := s.orderRepo.UpdateStatus(ctx, tx, *record.OrderID, model.OrderStatusRefunded); err != nil {
				return err
			}
			if err := s.orderRepo.RestoreStock(ctx, tx, *record.OrderID); err != nil {
				return err
			}
		}
		return s.enqueue(ctx, tx, record, s.cfg.Kafka.Topic.PaymentResult, effect.EffectName())

	case recon.EffectOrderLocalExpired:
		// 没有本地订单可取消，只广播过期事件
		return s.enqueue(ctx, tx, record, s.cfg.Kafka.Topic.PaymentExpired, effect.EffectName())

	case recon.EffectOrderShouldBeCreated:
		return s.materializeOrder(ctx, tx, record, e.Snapshot)
	}

	log.Printf("[Fulfillment] 未识别的效果类型: %s", effect.EffectName())
	return nil
}

// cancelOrder 取消关联的本地订单并回补库存
func (s *FulfillmentService) cancelOrder(ctx context.Context, tx *gorm.DB, record *model.PaymentRecord) error {
	if !record.HasOrder() {
		return nil
	}
	if err := s.orderRepo.UpdateStatus(ctx, tx, *record.OrderID, model.OrderStatusCancelled); err != nil {
		return err
	}
	return s.orderRepo.RestoreStock(ctx, tx, *record.OrderID)
}

// materializeOrder 为网关侧先行发生的交易补建本地订单
//
// 快照已是已支付状态，订单直接落履约中；支付记录不存在时（webhook 建单路径）
// 同时补建一条 Pending 记录 —— 不在这里把状态推到已支付，
// 新记录自己的下一轮对账会把状态带上来。
func (s *FulfillmentService) materializeOrder(ctx context.Context, tx *gorm.DB, record *model.PaymentRecord, snap *recon.Snapshot) error {
	if record != nil && record.HasOrder() {
		return nil
	}

	payRef := idgen.GeneratePayReference()
	if record != nil && record.PayReference != "" {
		payRef = record.PayReference
	}

	order := &model.LocalOrder{
		OrderNo:    idgen.GenerateOrderNo(),
		CustomerID: snap.RemoteCustomerID,
		Status:     model.OrderStatusProcessing,
		Total:      snap.Total,
		PaymentRef: payRef,
		PaidAt:     snap.PaidAt,
	}
	if err := s.orderRepo.Create(ctx, tx, order); err != nil {
		return err
	}

	if record != nil {
		log.Printf("[Fulfillment] 为支付记录补建本地订单: paymentID=%d, orderID=%d, remoteOrderID=%d",
			record.ID, order.ID, snap.RemoteOrderID)
		return s.paymentRepo.LinkOrder(ctx, tx, record.ID, order.ID)
	}

	method := snap.Method
	if method == "" {
		// 报文未带支付方式时按票据兜底：话务中心下单绝大多数走票据
		method = model.MethodBankSlip
	}

	newRecord := &model.PaymentRecord{
		RemoteOrderID:    snap.RemoteOrderID,
		RemoteCustomerID: snap.RemoteCustomerID,
		PaymentMethod:    method,
		Env:              s.cfg.Gateway.Environment,
		Status:           model.StatusPending,
		Amount:           snap.Total,
		PayReference:     payRef,
	}
	newRecord.LinkOrder(order.ID)

	if err := s.paymentRepo.Create(ctx, tx, newRecord); err != nil {
		return err
	}

	log.Printf("[Fulfillment] 网关侧先行交易已补建订单和支付记录: orderID=%d, remoteOrderID=%d",
		order.ID, snap.RemoteOrderID)
	return nil
}

// resultPayload Kafka 消息体
type resultPayload struct {
	PaymentID     int64  `json:"payment_id"`
	RemoteOrderID int64  `json:"remote_order_id"`
	Event         string `json:"event"`
	AmountPaid    int64  `json:"amount_paid,omitempty"`
	PayReference  string `json:"pay_reference,omitempty"`
	OccurredAt    string `json:"occurred_at"`
}

// enqueue 把效果写进 outbox，和状态变更同事务，由 OutboxSender 异步投递
func (s *FulfillmentService) enqueue(ctx context.Context, tx *gorm.DB, record *model.PaymentRecord, topic, event string) error {
	payload := resultPayload{
		PaymentID:     record.ID,
		RemoteOrderID: record.RemoteOrderID,
		Event:         event,
		PayReference:  record.PayReference,
		OccurredAt:    time.Now().Format(time.RFC3339),
	}
	if record.AmountPaid != nil {
		payload.AmountPaid = *record.AmountPaid
	}

	data, err := json.Marshal(payload)
	if err != nil {
		return fmt.Errorf("序列化 outbox 消息失败: %w", err)
	}

	msg := &model.OutboxMessage{
		MessageKey: fmt.Sprintf("%d", record.RemoteOrderID),
		Topic:      topic,
		Payload:    string(data),
		Status:     model.OutboxStatusPending,
	}
	return s.outboxRepo.Create(ctx, tx, msg)
}

// IsBenignConflict 并发冲突是常态流量，不作为错误上抛
func IsBenignConflict(err error) bool {
	return errors.Is(err, repository.ErrStaleRecord)
}
