package job

import (
	"context"
	"log"
	"time"

	"payrecon/internal/config"
	"payrecon/internal/infrastructure/gateway"
	"payrecon/internal/infrastructure/lock"
	"payrecon/internal/model"
	"payrecon/internal/recon"
	"payrecon/internal/repository"
	"payrecon/internal/service"

	"github.com/go-redis/redis/v8"
	"gorm.io/gorm"
)

// ============================================================================
// 轮询驱动
// ============================================================================
//
// webhook 可能丢、可能迟到，轮询是兜底通道：按支付方式起一个任务，
// 周期性把在途记录逐条拉快照重新对账。
//
// 水位线：updated_at 在水位线以内的记录跳过 —— webhook 刚碰过的行
// 没必要马上再查一遍，也避免两个通道正面相撞。
// 单条记录失败只记日志不中断批次，下一轮自然重试。
// ============================================================================

type ReconcileJob struct {
	db          *gorm.DB
	rdb         *redis.Client
	cfg         *config.Config
	method      string
	gateway     *gateway.Client
	engine      *recon.Engine
	paymentRepo *repository.PaymentRepository
	orderRepo   *repository.OrderRepository
	fulfillment *service.FulfillmentService
	stopCh      chan struct{}
	interval    time.Duration
	pageSize    int
	maxPages    int
}

func NewReconcileJob(db *gorm.DB, rdb *redis.Client, cfg *config.Config, gw *gateway.Client, method string) *ReconcileJob {
	policy := methodPolicy(cfg, method)

	pageSize := cfg.Reconcile.PageSize
	if pageSize <= 0 {
		pageSize = 50
	}

	return &ReconcileJob{
		db:          db,
		rdb:         rdb,
		cfg:         cfg,
		method:      method,
		gateway:     gw,
		engine:      recon.NewEngine(&cfg.Reconcile),
		paymentRepo: repository.NewPaymentRepository(db),
		orderRepo:   repository.NewOrderRepository(db),
		fulfillment: service.NewFulfillmentService(db, cfg),
		stopCh:      make(chan struct{}),
		interval:    policy.PollInterval(),
		pageSize:    pageSize,
		maxPages:    10,
	}
}

func methodPolicy(cfg *config.Config, method string) config.MethodPolicy {
	switch method {
	case model.MethodBankSlip:
		return cfg.Reconcile.BankSlip
	case model.MethodCreditCard:
		return cfg.Reconcile.CreditCard
	case model.MethodInstantTransfer:
		return cfg.Reconcile.InstantTransfer
	}
	return config.MethodPolicy{}
}

func (j *ReconcileJob) Start(ctx context.Context) {
	log.Printf("[ReconcileJob] 对账轮询启动: method=%s, interval=%v", j.method, j.interval)

	ticker := time.NewTicker(j.interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			log.Printf("[ReconcileJob] 收到停止信号，任务退出: method=%s", j.method)
			return
		case <-j.stopCh:
			log.Printf("[ReconcileJob] 任务停止: method=%s", j.method)
			return
		case <-ticker.C:
			j.reconcileBatch(ctx)
		}
	}
}

func (j *ReconcileJob) Stop() {
	close(j.stopCh)
}

// pageCursor 翻页用的复合游标
// 只用 updated_at 会漏掉跨页边界上同秒的行，带上 id 兜底
type pageCursor struct {
	updatedAt time.Time
	id        int64
}

func (c *pageCursor) advance(records []*model.PaymentRecord) {
	last := records[len(records)-1]
	c.updatedAt = last.UpdatedAt
	c.id = last.ID
}

// reconcileBatch 单轮批处理：按 (updated_at, id) 升序翻页，页数有上界
func (j *ReconcileJob) reconcileBatch(ctx context.Context) {
	env := j.cfg.Gateway.Environment
	before := time.Now().Add(-j.cfg.Reconcile.Watermark())
	var cursor pageCursor

	total := 0
	for page := 0; page < j.maxPages; page++ {
		records, err := j.paymentRepo.ListInFlight(ctx, env, j.method, cursor.updatedAt, cursor.id, before, j.pageSize)
		if err != nil {
			log.Printf("[ReconcileJob] 查询在途记录失败: method=%s, err=%v", j.method, err)
			return
		}
		if len(records) == 0 {
			break
		}

		for _, record := range records {
			j.reconcileRecord(ctx, record)
		}

		total += len(records)
		cursor.advance(records)

		if len(records) < j.pageSize {
			break
		}
	}

	if total > 0 {
		log.Printf("[ReconcileJob] 本轮对账 %d 条记录: method=%s", total, j.method)
	}
}

// reconcileRecord 单条记录的对账，任何失败只影响自己
func (j *ReconcileJob) reconcileRecord(ctx context.Context, record *model.PaymentRecord) {
	reconcileLock := lock.NewReconcileLock(j.rdb, record.RemoteOrderID, "job:"+j.method)
	locked, err := reconcileLock.TryLock(ctx)
	if err != nil {
		log.Printf("[ReconcileJob] 获取对账锁失败: remoteOrderID=%d, err=%v", record.RemoteOrderID, err)
		return
	}
	if !locked {
		// webhook 正在处理这条记录，本轮跳过
		return
	}
	defer reconcileLock.Unlock(ctx)

	data, err := j.gateway.GetOrder(ctx, record.RemoteOrderID)
	if err != nil {
		log.Printf("[ReconcileJob] 拉取网关订单失败: remoteOrderID=%d, err=%v", record.RemoteOrderID, err)
		return
	}

	snap, err := recon.ParseSnapshot(data)
	if err != nil {
		log.Printf("[ReconcileJob] 网关报文非法: remoteOrderID=%d, err=%v", record.RemoteOrderID, err)
		return
	}

	var order *model.LocalOrder
	if record.HasOrder() {
		order, err = j.orderRepo.GetByID(ctx, *record.OrderID)
		if err != nil {
			log.Printf("[ReconcileJob] 查询本地订单失败: orderID=%d, err=%v", *record.OrderID, err)
			return
		}
	}

	outcome := j.engine.Reconcile(record, order, snap, time.Now())

	if outcome.Rejected {
		log.Printf("[ReconcileJob] 状态迁移被拒绝: remoteOrderID=%d, status=%s, remote=%s",
			record.RemoteOrderID, record.Status, snap.Status)
		return
	}

	if err := j.fulfillment.ApplyOutcome(ctx, record, outcome, model.SourcePolling); err != nil {
		if service.IsBenignConflict(err) {
			return
		}
		log.Printf("[ReconcileJob] 落库失败: remoteOrderID=%d, err=%v", record.RemoteOrderID, err)
		return
	}

	if outcome.Changed {
		log.Printf("[ReconcileJob] 对账完成: remoteOrderID=%d, %s -> %s",
			record.RemoteOrderID, outcome.From, outcome.To)
	}
}
