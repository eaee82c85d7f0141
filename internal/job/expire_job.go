package job

import (
	"context"
	"log"
	"time"

	"payrecon/internal/config"
	"payrecon/internal/model"
	"payrecon/internal/recon"
	"payrecon/internal/repository"
	"payrecon/internal/service"

	"gorm.io/gorm"
)

// ExpireSweepJob 本地过期清扫
//
// 未关联订单的等待态记录没人替它们兜底：webhook 不会推（网关侧没动静），
// 轮询走的是主路径。这个任务按 expires_at 纯本地判定过期，
// 不拉快照、不访问网关。已关联订单的过期由轮询主路径顺带处理。
type ExpireSweepJob struct {
	db          *gorm.DB
	cfg         *config.Config
	engine      *recon.Engine
	paymentRepo *repository.PaymentRepository
	fulfillment *service.FulfillmentService
	stopCh      chan struct{}
	interval    time.Duration
	batchSize   int
}

func NewExpireSweepJob(db *gorm.DB, cfg *config.Config) *ExpireSweepJob {
	return &ExpireSweepJob{
		db:          db,
		cfg:         cfg,
		engine:      recon.NewEngine(&cfg.Reconcile),
		paymentRepo: repository.NewPaymentRepository(db),
		fulfillment: service.NewFulfillmentService(db, cfg),
		stopCh:      make(chan struct{}),
		interval:    time.Minute,
		batchSize:   100,
	}
}

func (j *ExpireSweepJob) Start(ctx context.Context) {
	log.Println("[ExpireSweepJob] 过期清扫任务启动")

	ticker := time.NewTicker(j.interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			log.Println("[ExpireSweepJob] 收到停止信号，任务退出")
			return
		case <-j.stopCh:
			log.Println("[ExpireSweepJob] 任务停止")
			return
		case <-ticker.C:
			j.sweep(ctx)
		}
	}
}

func (j *ExpireSweepJob) Stop() {
	close(j.stopCh)
}

func (j *ExpireSweepJob) sweep(ctx context.Context) {
	records, err := j.paymentRepo.ListWaitingWithExpiry(ctx, j.cfg.Gateway.Environment, j.batchSize)
	if err != nil {
		log.Printf("[ExpireSweepJob] 查询候选记录失败: %v", err)
		return
	}

	if len(records) == 0 {
		return
	}

	now := time.Now()
	expiredCount := 0
	for _, record := range records {
		// 无快照路径：引擎只评估本地过期
		outcome := j.engine.Reconcile(record, nil, nil, now)
		if !outcome.Changed {
			continue
		}

		if err := j.fulfillment.ApplyOutcome(ctx, record, outcome, model.SourceSweep); err != nil {
			if service.IsBenignConflict(err) {
				continue
			}
			log.Printf("[ExpireSweepJob] 落库失败: remoteOrderID=%d, err=%v", record.RemoteOrderID, err)
			continue
		}

		expiredCount++
		log.Printf("[ExpireSweepJob] 记录已过期: id=%d, remoteOrderID=%d, method=%s",
			record.ID, record.RemoteOrderID, record.PaymentMethod)
	}

	if expiredCount > 0 {
		log.Printf("[ExpireSweepJob] 本轮过期 %d 条记录", expiredCount)
	}
}
