package service

import (
	"context"
	"log"
	"strings"
	"time"

	"payrecon/internal/config"
	"payrecon/internal/infrastructure/lock"
	"payrecon/internal/model"
	"payrecon/internal/recon"
	"payrecon/internal/repository"

	"github.com/go-redis/redis/v8"
	"gorm.io/gorm"
)

// ============================================================================
// Webhook 驱动
// ============================================================================
//
// 网关按「至少一次」推送事件，重复和乱序是常态。处理流程：
// 1. 事件名查表：不认识的事件确认收到但不处理，绝不报错
// 2. 报文归一化成快照，个别事件强制改写快照状态（见事件表）
// 3. 按网关订单号抢对账锁，抢不到直接放弃 —— 另一个驱动正在对账同一条记录
// 4. 引擎评估，履约服务落库
// ============================================================================

// eventRule 单个 webhook 事件的处理规则
type eventRule struct {
	// ignore 确认收到但不做任何处理（如票据生成通知）
	ignore bool
	// forceStatus 非零时无条件覆盖快照状态：
	// 拒绝授权类事件的报文 status 还停留在受理态，必须强制按已取消处理
	forceStatus recon.RemoteStatus
	// paidImplying 事件本身意味着已支付，可以走建单路径
	paidImplying bool
}

// webhookEvents 事件表，封闭集合
// 不在表里的事件一律确认收到并忽略
var webhookEvents = map[string]eventRule{
	"OrderApproved":           {paidImplying: true},
	"OrderPaid":               {paidImplying: true},
	"OrderIntegrated":         {paidImplying: true},
	"OrderPendingIntegration": {},
	"OrderRefund":             {},
	"OrderAuthorized":         {},
	"OrderAuthorizedWithDelay": {},
	// 拒绝授权类事件的报文 status 还停留在受理态，强制按已取消处理
	"PaymentNotAuthorized":          {forceStatus: recon.RemoteCancelled},
	"PaymentNotAuthorizedWithDelay": {forceStatus: recon.RemoteCancelled},
	// 票据逾期通知报文状态仍是 pendente，正常走判定链即可触发本地过期评估
	"OrderBilletOverdue": {},
	"OrderBilletCreated": {ignore: true},
	"OrderPixCreated":    {ignore: true},
}

// resolveEventRule 事件名查表
// 事件名可能带竖线分隔的修饰后缀，取第一段
func resolveEventRule(event string) (string, eventRule, bool) {
	name := strings.SplitN(strings.TrimSpace(event), "|", 2)[0]
	rule, known := webhookEvents[name]
	return name, rule, known
}

type WebhookService struct {
	db          *gorm.DB
	rdb         *redis.Client
	cfg         *config.Config
	engine      *recon.Engine
	paymentRepo *repository.PaymentRepository
	orderRepo   *repository.OrderRepository
	fulfillment *FulfillmentService
}

func NewWebhookService(db *gorm.DB, rdb *redis.Client, cfg *config.Config) *WebhookService {
	return &WebhookService{
		db:          db,
		rdb:         rdb,
		cfg:         cfg,
		engine:      recon.NewEngine(&cfg.Reconcile),
		paymentRepo: repository.NewPaymentRepository(db),
		orderRepo:   repository.NewOrderRepository(db),
		fulfillment: NewFulfillmentService(db, cfg),
	}
}

// HandleEvent 处理一条 webhook 事件
//
// 返回错误只有两种情形：报文非法（recon.ErrMalformedPayload）和落库失败。
// 未识别的事件、抢不到锁、并发空转都静默成功 —— 网关重推或下一轮轮询会补上。
func (s *WebhookService) HandleEvent(ctx context.Context, event string, data map[string]interface{}) error {
	name, rule, known := resolveEventRule(event)
	if !known {
		log.Printf("[Webhook] 未识别的事件，确认收到并忽略: event=%s", name)
		return nil
	}
	if rule.ignore {
		return nil
	}

	snap, err := recon.ParseSnapshot(data)
	if err != nil {
		log.Printf("[Webhook] 报文非法，丢弃: event=%s, err=%v", name, err)
		return err
	}

	if rule.forceStatus != recon.RemoteUnknown {
		snap.Status = rule.forceStatus
	}

	reconcileLock := lock.NewReconcileLock(s.rdb, snap.RemoteOrderID, "webhook:"+name)
	locked, err := reconcileLock.TryLock(ctx)
	if err != nil {
		return err
	}
	if !locked {
		log.Printf("[Webhook] 对账锁被占用，放弃本次事件: remoteOrderID=%d, event=%s", snap.RemoteOrderID, name)
		return nil
	}
	defer reconcileLock.Unlock(ctx)

	record, err := s.paymentRepo.GetByRemoteOrderID(ctx, snap.RemoteOrderID)
	if err != nil {
		return err
	}

	// 查无记录且事件不意味着已支付：和网关无关的噪音，丢弃
	if record == nil && !rule.paidImplying {
		log.Printf("[Webhook] 本地无记录且事件非支付类，忽略: remoteOrderID=%d, event=%s", snap.RemoteOrderID, name)
		return nil
	}

	var order *model.LocalOrder
	if record != nil && record.HasOrder() {
		order, err = s.orderRepo.GetByID(ctx, *record.OrderID)
		if err != nil {
			return err
		}
	}

	outcome := s.engine.Reconcile(record, order, snap, time.Now())

	if outcome.Rejected {
		// 多数是重复投递的无害噪音；已入账记录收到取消这类冲突值得排查
		log.Printf("[Webhook] 状态迁移被拒绝: remoteOrderID=%d, event=%s, status=%s",
			snap.RemoteOrderID, name, record.Status)
		return nil
	}

	if err := s.fulfillment.ApplyOutcome(ctx, record, outcome, model.SourceWebhook); err != nil {
		if IsBenignConflict(err) {
			log.Printf("[Webhook] 并发写入方已抢先，本次空转: remoteOrderID=%d, event=%s", snap.RemoteOrderID, name)
			return nil
		}
		return err
	}

	if outcome.Changed {
		log.Printf("[Webhook] 对账完成: remoteOrderID=%d, event=%s, %s -> %s",
			snap.RemoteOrderID, name, outcome.From, outcome.To)
	}
	return nil
}
