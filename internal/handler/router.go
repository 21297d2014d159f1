package handler

import (
	"creditpay/internal/config"
	"creditpay/internal/gateway"
	"creditpay/internal/infrastructure/lock"

	"github.com/gin-gonic/gin"
	"gorm.io/gorm"
)

// SetupRouter 配置路由
func SetupRouter(db *gorm.DB, locks lock.Factory, gw gateway.Client, cfg *config.Config) *gin.Engine {
	// 设置 gin 为发布模式（减少日志输出）
	gin.SetMode(gin.ReleaseMode)

	r := gin.New()

	// 注册中间件
	r.Use(RecoveryMiddleware())
	r.Use(LoggerMiddleware())
	r.Use(CORSMiddleware())

	// 创建处理器
	h := NewHandler(db, locks, gw, cfg)

	// API 路由组
	api := r.Group("/api/v1")
	{
		// 支付相关
		payment := api.Group("/payment")
		{
			payment.POST("/prepare", h.PreparePayment)
			payment.POST("/confirm", h.ConfirmPayment)
			payment.POST("/refund", h.RefundPayment)
			payment.GET("/history", h.ListPayments)
		}

		// 额度相关
		credit := api.Group("/credit")
		{
			credit.POST("/grant", h.GrantCredit)
			credit.GET("/balance", h.GetCreditBalance)
			credit.GET("/history", h.ListCreditHistory)
		}

		// 购买相关
		purchase := api.Group("/purchase")
		{
			purchase.POST("/execute", h.ExecutePurchase)
			purchase.GET("/detail", h.GetOrder)
			purchase.GET("/list", h.ListOrders)
		}

		// 创作者相关
		creator := api.Group("/creator")
		{
			creator.GET("/balance", h.GetCreatorBalance)
			creator.GET("/settlements", h.ListSettlements)
		}

		// 提现相关
		withdrawal := api.Group("/withdrawal")
		{
			withdrawal.POST("/request", h.RequestWithdrawal)
			withdrawal.GET("/list", h.ListWithdrawals)
		}

		// 管理接口
		admin := api.Group("/admin")
		{
			admin.POST("/job/settlement", h.TriggerSettlement)
			admin.POST("/job/expiry", h.TriggerExpiry)
			admin.POST("/job/statistics", h.TriggerStatistics)
			admin.GET("/statistics", h.GetStatistics)
		}
	}

	// 健康检查
	r.GET("/health", func(c *gin.Context) {
		c.JSON(200, gin.H{"status": "ok"})
	})

	return r
}
