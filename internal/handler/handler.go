package handler

import (
	"errors"
	"strconv"

	"payrecon/internal/config"
	"payrecon/internal/infrastructure/gateway"
	"payrecon/internal/model"
	"payrecon/internal/recon"
	"payrecon/internal/repository"
	"payrecon/internal/service"
	"payrecon/pkg/response"

	"github.com/gin-gonic/gin"
	"github.com/go-redis/redis/v8"
	"gorm.io/gorm"
)

// Handler 统一处理器，包含所有服务依赖
type Handler struct {
	paymentService *service.PaymentService
	webhookService *service.WebhookService
}

// NewHandler 创建处理器实例
func NewHandler(db *gorm.DB, rdb *redis.Client, cfg *config.Config, gw *gateway.Client) *Handler {
	return &Handler{
		paymentService: service.NewPaymentService(db, cfg, gw),
		webhookService: service.NewWebhookService(db, rdb, cfg),
	}
}

// ============================================================
// Webhook 入口
// ============================================================

// WebhookRequest 网关推送报文
type WebhookRequest struct {
	Event string                 `json:"event" binding:"required"`
	Data  map[string]interface{} `json:"data" binding:"required"`
}

// HandleWebhook 接收网关事件
// POST /api/v1/webhook
//
// 【关键点】网关按至少一次投递并在失败时重推：
// 1. 未识别的事件必须确认收到，否则网关会无限重推垃圾事件
// 2. 报文非法同样确认收到（重推同一个坏报文毫无意义），只记日志
// 3. 只有落库失败才报错，让网关重推
func (h *Handler) HandleWebhook(c *gin.Context) {
	var req WebhookRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		response.ParamError(c, "参数错误: "+err.Error())
		return
	}

	err := h.webhookService.HandleEvent(c.Request.Context(), req.Event, req.Data)
	if err != nil {
		if errors.Is(err, recon.ErrMalformedPayload) {
			// HTTP 层确认收到，网关不应重推同一个坏报文
			response.BusinessError(c, response.CodeMalformedPayload, err.Error())
			return
		}
		response.ServerError(c, err.Error())
		return
	}

	response.Success(c, gin.H{"message": "ok"})
}

// ============================================================
// 支付相关接口
// ============================================================

// CreatePaymentRequest 发起支付请求
type CreatePaymentRequest struct {
	OrderID    *int64 `json:"order_id"`
	CustomerID int64  `json:"customer_id" binding:"required"`
	Amount     int64  `json:"amount" binding:"required,gt=0"`
	Method     string `json:"method" binding:"required"`
}

// CreatePayment 发起支付
// POST /api/v1/payment/create
func (h *Handler) CreatePayment(c *gin.Context) {
	var req CreatePaymentRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		response.ParamError(c, "参数错误: "+err.Error())
		return
	}

	record, err := h.paymentService.CreatePayment(c.Request.Context(), &service.CreatePaymentRequest{
		OrderID:    req.OrderID,
		CustomerID: req.CustomerID,
		Amount:     req.Amount,
		Method:     req.Method,
	})
	if err != nil {
		if errors.Is(err, service.ErrMethodDisabled) {
			response.BusinessError(c, response.CodeMethodDisabled, err.Error())
			return
		}
		if errors.Is(err, gateway.ErrUpstreamFetch) {
			response.BusinessError(c, response.CodeGatewayError, err.Error())
			return
		}
		response.ServerError(c, err.Error())
		return
	}

	response.Success(c, gin.H{
		"payment_id":      record.ID,
		"remote_order_id": record.RemoteOrderID,
		"pay_reference":   record.PayReference,
		"status":          record.Status.String(),
		"expires_at":      record.ExpiresAt,
	})
}

// GetPayment 查询支付记录详情
// GET /api/v1/payment/detail?id=xxx
func (h *Handler) GetPayment(c *gin.Context) {
	id, err := strconv.ParseInt(c.Query("id"), 10, 64)
	if err != nil {
		response.ParamError(c, "id 参数错误")
		return
	}

	record, err := h.paymentService.GetPayment(c.Request.Context(), id)
	if err != nil {
		if errors.Is(err, repository.ErrPaymentNotFound) {
			response.BusinessError(c, response.CodePaymentNotFound, err.Error())
			return
		}
		response.ServerError(c, err.Error())
		return
	}

	response.Success(c, record)
}

// ListPayments 按网关客户号查询支付记录列表
// GET /api/v1/payment/list?customer_id=xxx&page=1&page_size=10
func (h *Handler) ListPayments(c *gin.Context) {
	customerID, err := strconv.ParseInt(c.Query("customer_id"), 10, 64)
	if err != nil {
		response.ParamError(c, "customer_id 参数错误")
		return
	}

	page, _ := strconv.Atoi(c.DefaultQuery("page", "1"))
	pageSize, _ := strconv.Atoi(c.DefaultQuery("page_size", "10"))

	records, total, err := h.paymentService.ListByCustomer(c.Request.Context(), customerID, page, pageSize)
	if err != nil {
		response.ServerError(c, err.Error())
		return
	}

	response.Success(c, gin.H{
		"list":      records,
		"total":     total,
		"page":      page,
		"page_size": pageSize,
	})
}

// GetStatusLogs 查询支付记录的迁移流水
// GET /api/v1/payment/logs?id=xxx
func (h *Handler) GetStatusLogs(c *gin.Context) {
	id, err := strconv.ParseInt(c.Query("id"), 10, 64)
	if err != nil {
		response.ParamError(c, "id 参数错误")
		return
	}

	logs, err := h.paymentService.GetStatusLogs(c.Request.Context(), id)
	if err != nil {
		response.ServerError(c, err.Error())
		return
	}

	response.Success(c, gin.H{"list": logs})
}

// CancelPayment 人工取消支付
// POST /api/v1/payment/cancel
func (h *Handler) CancelPayment(c *gin.Context) {
	var req struct {
		PaymentID int64 `json:"payment_id" binding:"required"`
	}
	if err := c.ShouldBindJSON(&req); err != nil {
		response.ParamError(c, "参数错误: "+err.Error())
		return
	}

	if err := h.paymentService.ManualCancel(c.Request.Context(), req.PaymentID); err != nil {
		h.writeOperationError(c, err)
		return
	}

	response.Success(c, gin.H{"message": "支付已取消"})
}

// RefundPayment 人工发起全额退款
// POST /api/v1/payment/refund
func (h *Handler) RefundPayment(c *gin.Context) {
	var req struct {
		PaymentID int64 `json:"payment_id" binding:"required"`
	}
	if err := c.ShouldBindJSON(&req); err != nil {
		response.ParamError(c, "参数错误: "+err.Error())
		return
	}

	if err := h.paymentService.ManualRefund(c.Request.Context(), req.PaymentID); err != nil {
		if errors.Is(err, service.ErrNotRefundable) {
			response.BusinessError(c, response.CodeNotRefundable, err.Error())
			return
		}
		if errors.Is(err, gateway.ErrUpstreamFetch) {
			response.BusinessError(c, response.CodeGatewayError, err.Error())
			return
		}
		h.writeOperationError(c, err)
		return
	}

	response.Success(c, gin.H{"message": "退款已受理"})
}

// RegisterChargeback 人工登记拒付进展
// POST /api/v1/payment/chargeback
func (h *Handler) RegisterChargeback(c *gin.Context) {
	var req struct {
		PaymentID int64  `json:"payment_id" binding:"required"`
		Result    string `json:"result" binding:"required"`
	}
	if err := c.ShouldBindJSON(&req); err != nil {
		response.ParamError(c, "参数错误: "+err.Error())
		return
	}

	if err := h.paymentService.RegisterChargeback(c.Request.Context(), req.PaymentID, req.Result); err != nil {
		h.writeOperationError(c, err)
		return
	}

	response.Success(c, gin.H{"message": "拒付进展已登记"})
}

// writeOperationError 人工操作的公共错误映射
func (h *Handler) writeOperationError(c *gin.Context, err error) {
	var illegal *model.IllegalTransitionError
	if errors.As(err, &illegal) {
		response.BusinessError(c, response.CodeIllegalTransition, err.Error())
		return
	}
	if errors.Is(err, repository.ErrPaymentNotFound) {
		response.BusinessError(c, response.CodePaymentNotFound, err.Error())
		return
	}
	response.ServerError(c, err.Error())
}

// ============================================================
// 订单相关接口
// ============================================================

// DeleteOrder 本地订单删除通知，解除支付记录关联
// POST /api/v1/order/delete
func (h *Handler) DeleteOrder(c *gin.Context) {
	var req struct {
		OrderID int64 `json:"order_id" binding:"required"`
	}
	if err := c.ShouldBindJSON(&req); err != nil {
		response.ParamError(c, "参数错误: "+err.Error())
		return
	}

	if err := h.paymentService.HandleOrderDeleted(c.Request.Context(), req.OrderID); err != nil {
		response.ServerError(c, err.Error())
		return
	}

	response.Success(c, gin.H{"message": "关联已解除"})
}
