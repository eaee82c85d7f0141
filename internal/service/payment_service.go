package service

import (
	"context"
	"errors"
	"fmt"
	"log"
	"time"

	"payrecon/internal/config"
	"payrecon/internal/infrastructure/gateway"
	"payrecon/internal/model"
	"payrecon/internal/recon"
	"payrecon/internal/repository"
	"payrecon/pkg/idgen"

	"gorm.io/gorm"
)

var (
	ErrMethodDisabled = errors.New("支付方式未启用")
	ErrNotRefundable  = errors.New("当前状态不可退款")
)

// PaymentService 支付记录的发起和人工操作
//
// 发起支付走网关受理；人工取消/退款/拒付登记复用履约服务的事务执行，
// 和两个对账驱动共享同一套迁移表与落库约束。
type PaymentService struct {
	db            *gorm.DB
	cfg           *config.Config
	gateway       *gateway.Client
	paymentRepo   *repository.PaymentRepository
	statusLogRepo *repository.StatusLogRepository
	fulfillment   *FulfillmentService
}

func NewPaymentService(db *gorm.DB, cfg *config.Config, gw *gateway.Client) *PaymentService {
	return &PaymentService{
		db:            db,
		cfg:           cfg,
		gateway:       gw,
		paymentRepo:   repository.NewPaymentRepository(db),
		statusLogRepo: repository.NewStatusLogRepository(db),
		fulfillment:   NewFulfillmentService(db, cfg),
	}
}

// CreatePaymentRequest 发起支付请求
type CreatePaymentRequest struct {
	OrderID    *int64 // 本地订单ID，话务中心场景下可为空
	CustomerID int64
	Amount     int64 // 金额（分）
	Method     string
}

// CreatePayment 向网关提交订单并落一条 Pending 支付记录
func (s *PaymentService) CreatePayment(ctx context.Context, req *CreatePaymentRequest) (*model.PaymentRecord, error) {
	if !model.IsValidMethod(req.Method) {
		return nil, fmt.Errorf("不支持的支付方式: %s", req.Method)
	}

	policy := s.methodPolicy(req.Method)
	if !policy.Enabled {
		return nil, ErrMethodDisabled
	}

	payRef := idgen.GeneratePayReference()

	result, err := s.gateway.CreateOrder(ctx, &gateway.CreateOrderRequest{
		PayReference: payRef,
		CustomerID:   req.CustomerID,
		Total:        req.Amount,
		Method:       req.Method,
	})
	if err != nil {
		return nil, err
	}

	record := &model.PaymentRecord{
		RemoteOrderID:    result.RemoteOrderID,
		RemoteCustomerID: result.RemoteCustomerID,
		RemoteSiteID:     &result.RemoteSiteID,
		OrderID:          req.OrderID,
		PaymentMethod:    req.Method,
		Env:              s.cfg.Gateway.Environment,
		Status:           model.StatusPending,
		Amount:           req.Amount,
		PayReference:     payRef,
		ExpiresAt:        s.expiresAt(req.Method, policy, time.Now()),
	}

	if err := s.paymentRepo.Create(ctx, nil, record); err != nil {
		return nil, err
	}

	log.Printf("[Payment] 支付记录已创建: id=%d, remoteOrderID=%d, method=%s, amount=%d",
		record.ID, record.RemoteOrderID, record.PaymentMethod, record.Amount)
	return record, nil
}

func (s *PaymentService) methodPolicy(method string) config.MethodPolicy {
	switch method {
	case model.MethodBankSlip:
		return s.cfg.Reconcile.BankSlip
	case model.MethodCreditCard:
		return s.cfg.Reconcile.CreditCard
	case model.MethodInstantTransfer:
		return s.cfg.Reconcile.InstantTransfer
	}
	return config.MethodPolicy{}
}

// expiresAt 按支付方式写入过期锚点
// 票据记到期日，即时转账记作废时刻，信用卡同步结算不记
func (s *PaymentService) expiresAt(method string, policy config.MethodPolicy, now time.Time) *time.Time {
	switch method {
	case model.MethodBankSlip:
		if policy.ExpiresAfterDays > 0 {
			t := now.AddDate(0, 0, policy.ExpiresAfterDays)
			return &t
		}
	case model.MethodInstantTransfer:
		if policy.ExpiresInSeconds > 0 {
			t := now.Add(time.Duration(policy.ExpiresInSeconds) * time.Second)
			return &t
		}
	}
	return nil
}

func (s *PaymentService) GetPayment(ctx context.Context, id int64) (*model.PaymentRecord, error) {
	return s.paymentRepo.GetByID(ctx, id)
}

func (s *PaymentService) ListByCustomer(ctx context.Context, customerID int64, page, pageSize int) ([]*model.PaymentRecord, int64, error) {
	return s.paymentRepo.ListByCustomer(ctx, customerID, page, pageSize)
}

func (s *PaymentService) GetStatusLogs(ctx context.Context, paymentID int64) ([]*model.StatusLog, error) {
	return s.statusLogRepo.ListByPayment(ctx, paymentID)
}

// ManualCancel 人工取消支付
// 非法迁移（如已入账的记录）原样返回 IllegalTransitionError，由接口层提示
func (s *PaymentService) ManualCancel(ctx context.Context, paymentID int64) error {
	record, err := s.paymentRepo.GetByID(ctx, paymentID)
	if err != nil {
		return err
	}

	from := record.Status
	if err := record.MarkAsCancelled(); err != nil {
		return err
	}

	outcome := recon.Outcome{
		Changed: true,
		From:    from,
		To:      record.Status,
		Effects: []recon.Effect{recon.EffectOrderCancelled{}},
	}
	return s.fulfillment.ApplyOutcome(ctx, record, outcome, model.SourceManual)
}

// ManualRefund 人工发起全额退款
// 先请求网关退款，网关受理后才落本地状态 —— 网关失败时本地纹丝不动
func (s *PaymentService) ManualRefund(ctx context.Context, paymentID int64) error {
	record, err := s.paymentRepo.GetByID(ctx, paymentID)
	if err != nil {
		return err
	}

	if !record.Status.IsPaid() {
		return ErrNotRefundable
	}

	amount := record.Amount
	if record.AmountPaid != nil {
		amount = *record.AmountPaid
	}

	if err := s.gateway.Refund(ctx, record.RemoteOrderID, amount); err != nil {
		return err
	}

	now := time.Now()
	from := record.Status
	if err := record.MarkAsRefunded(now); err != nil {
		return err
	}

	outcome := recon.Outcome{
		Changed: true,
		From:    from,
		To:      record.Status,
		Effects: []recon.Effect{recon.EffectOrderRefunded{RefundedAt: now}},
	}
	return s.fulfillment.ApplyOutcome(ctx, record, outcome, model.SourceManual)
}

// 拒付登记结果
const (
	ChargebackOpen = "open"
	ChargebackWon  = "won"
	ChargebackLost = "lost"
)

// RegisterChargeback 人工登记拒付进展
// 网关不推送拒付事件，这条链路只能由运营在后台驱动
func (s *PaymentService) RegisterChargeback(ctx context.Context, paymentID int64, result string) error {
	var target model.PaymentStatus
	switch result {
	case ChargebackOpen:
		target = model.StatusChargebackWaiting
	case ChargebackWon:
		target = model.StatusChargebackWon
	case ChargebackLost:
		target = model.StatusChargebackLost
	default:
		return fmt.Errorf("不支持的拒付结果: %s", result)
	}

	record, err := s.paymentRepo.GetByID(ctx, paymentID)
	if err != nil {
		return err
	}

	from := record.Status
	if err := record.ChangeStatus(target); err != nil {
		return err
	}

	outcome := recon.Outcome{Changed: true, From: from, To: record.Status}
	return s.fulfillment.ApplyOutcome(ctx, record, outcome, model.SourceManual)
}

// HandleOrderDeleted 本地订单被删除时解除关联
// 支付记录保留用于审计，之后由过期清扫或轮询继续收口
func (s *PaymentService) HandleOrderDeleted(ctx context.Context, orderID int64) error {
	return s.paymentRepo.UnlinkOrder(ctx, orderID)
}
