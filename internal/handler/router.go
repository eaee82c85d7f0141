package handler

import (
	"payrecon/internal/config"
	"payrecon/internal/infrastructure/gateway"

	"github.com/gin-gonic/gin"
	"github.com/go-redis/redis/v8"
	"gorm.io/gorm"
)

// SetupRouter 配置路由
func SetupRouter(db *gorm.DB, rdb *redis.Client, cfg *config.Config, gw *gateway.Client) *gin.Engine {
	// 设置 gin 为发布模式（减少日志输出）
	gin.SetMode(gin.ReleaseMode)

	r := gin.New()

	// 注册中间件
	r.Use(RecoveryMiddleware())
	r.Use(LoggerMiddleware())

	// 创建处理器
	h := NewHandler(db, rdb, cfg, gw)

	// API 路由组
	api := r.Group("/api/v1")
	{
		// 网关事件入口
		api.POST("/webhook", h.HandleWebhook)

		// 支付相关
		payment := api.Group("/payment")
		{
			payment.POST("/create", h.CreatePayment)
			payment.GET("/detail", h.GetPayment)
			payment.GET("/list", h.ListPayments)
			payment.GET("/logs", h.GetStatusLogs)
			payment.POST("/cancel", h.CancelPayment)
			payment.POST("/refund", h.RefundPayment)
			payment.POST("/chargeback", h.RegisterChargeback)
		}

		// 订单相关
		order := api.Group("/order")
		{
			order.POST("/delete", h.DeleteOrder)
		}
	}

	// 健康检查
	r.GET("/health", func(c *gin.Context) {
		c.JSON(200, gin.H{"status": "ok"})
	})

	return r
}
