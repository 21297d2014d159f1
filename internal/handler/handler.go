package handler

import (
	"errors"
	"strconv"
	"time"

	"creditpay/internal/config"
	"creditpay/internal/gateway"
	"creditpay/internal/infrastructure/lock"
	"creditpay/internal/job"
	"creditpay/internal/model"
	"creditpay/internal/repository"
	"creditpay/internal/service"
	"creditpay/pkg/response"

	"github.com/gin-gonic/gin"
	"gorm.io/gorm"
)

// Handler 统一处理器，包含所有服务依赖
type Handler struct {
	cfg               *config.Config
	creditService     *service.CreditService
	paymentService    *service.PaymentService
	purchaseService   *service.PurchaseService
	settlementService *service.SettlementService
	withdrawalService *service.WithdrawalService
	statisticsService *service.StatisticsService
	settlementJob     *job.SettlementJob
	expiryJob         *job.ExpiryJob
	statisticsJob     *job.StatisticsJob
}

// NewHandler 创建处理器实例
func NewHandler(db *gorm.DB, locks lock.Factory, gw gateway.Client, cfg *config.Config) *Handler {
	creditService := service.NewCreditService(db)
	settlementService := service.NewSettlementService(db, cfg)
	statisticsService := service.NewStatisticsService(db)

	return &Handler{
		cfg:               cfg,
		creditService:     creditService,
		paymentService:    service.NewPaymentService(db, gw, cfg),
		purchaseService:   service.NewPurchaseService(db, locks),
		settlementService: settlementService,
		withdrawalService: service.NewWithdrawalService(db, locks, cfg),
		statisticsService: statisticsService,
		settlementJob:     job.NewSettlementJob(settlementService, locks),
		expiryJob:         job.NewExpiryJob(creditService, locks),
		statisticsJob:     job.NewStatisticsJob(statisticsService, locks),
	}
}

// handleError 业务错误到响应码的映射，未识别的错误按服务器错误处理
func handleError(c *gin.Context, err error) {
	switch {
	case errors.Is(err, service.ErrInvalidAmount),
		errors.Is(err, service.ErrInvalidCreditKind),
		errors.Is(err, service.ErrInvalidExpiry):
		response.ParamError(c, err.Error())
	case errors.Is(err, service.ErrInsufficientCredit):
		response.BusinessError(c, response.CodeCreditNotEnough, err.Error())
	case errors.Is(err, service.ErrDuplicatePurchase):
		response.BusinessError(c, response.CodeDuplicatePurchase, err.Error())
	case errors.Is(err, service.ErrAmountMismatch),
		errors.Is(err, service.ErrGatewayAmountDiff),
		errors.Is(err, service.ErrPaymentStateInvalid):
		response.BusinessError(c, response.CodePaymentStateInvalid, err.Error())
	case errors.Is(err, service.ErrRefundNotAllowed),
		errors.Is(err, service.ErrCreditAlreadyUsed),
		errors.Is(err, service.ErrRefundWindowClosed):
		response.BusinessError(c, response.CodeRefundNotAllowed, err.Error())
	case errors.Is(err, service.ErrGatewayFailed):
		response.BusinessError(c, response.CodeGatewayError, err.Error())
	case errors.Is(err, service.ErrNotCreatorOwner):
		response.BusinessError(c, response.CodeCreatorNotFound, err.Error())
	case errors.Is(err, repository.ErrPaymentNotFound):
		response.BusinessError(c, response.CodePaymentNotFound, err.Error())
	case errors.Is(err, repository.ErrContentNotFound):
		response.BusinessError(c, response.CodeContentNotFound, err.Error())
	case errors.Is(err, repository.ErrCreatorNotFound):
		response.BusinessError(c, response.CodeCreatorNotFound, err.Error())
	case errors.Is(err, repository.ErrOrderNotFound):
		response.BusinessError(c, response.CodeOrderNotFound, err.Error())
	default:
		response.ServerError(c, err.Error())
	}
}

func parseUserID(c *gin.Context) (int64, bool) {
	userID, err := strconv.ParseInt(c.Query("user_id"), 10, 64)
	if err != nil {
		response.ParamError(c, "user_id 参数错误")
		return 0, false
	}
	return userID, true
}

func parsePage(c *gin.Context) (int, int) {
	page, _ := strconv.Atoi(c.DefaultQuery("page", "1"))
	pageSize, _ := strconv.Atoi(c.DefaultQuery("page_size", "10"))
	return page, pageSize
}

// ============================================================
// 支付相关接口
// ============================================================

// PreparePaymentRequest 预下单请求
type PreparePaymentRequest struct {
	UserID       int64  `json:"user_id" binding:"required"`
	CreditAmount int64  `json:"credit_amount" binding:"required,gt=0"` // 购买的额度数
	Provider     string `json:"provider"`                              // 支付渠道标识
}

// PreparePayment 额度充值预下单
// POST /api/v1/payment/prepare
func (h *Handler) PreparePayment(c *gin.Context) {
	var req PreparePaymentRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		response.ParamError(c, "参数错误: "+err.Error())
		return
	}

	result, err := h.paymentService.Prepare(c.Request.Context(), req.UserID, req.CreditAmount, req.Provider)
	if err != nil {
		handleError(c, err)
		return
	}

	response.Success(c, result)
}

// ConfirmPaymentRequest 支付确认请求，参数来自网关支付完成后的回跳
type ConfirmPaymentRequest struct {
	ExternalOrderID    string `json:"external_order_id" binding:"required"`
	ExternalPaymentKey string `json:"external_payment_key" binding:"required"`
	Amount             int64  `json:"amount" binding:"required,gt=0"`
}

// ConfirmPayment 确认支付并发放额度
// POST /api/v1/payment/confirm
//
// 【关键点】确认是支付链路最核心的一步，需要保证：
// 1. 幂等性：同一笔支付重复确认只会发放一次额度
// 2. 金额三方一致：请求金额、订单金额、网关实扣金额必须相同
// 3. 原子性：状态推进和额度发放在同一事务内完成
func (h *Handler) ConfirmPayment(c *gin.Context) {
	var req ConfirmPaymentRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		response.ParamError(c, "参数错误: "+err.Error())
		return
	}

	result, err := h.paymentService.Confirm(c.Request.Context(), &service.ConfirmRequest{
		ExternalOrderID:    req.ExternalOrderID,
		ExternalPaymentKey: req.ExternalPaymentKey,
		Amount:             req.Amount,
	})
	if err != nil {
		handleError(c, err)
		return
	}

	response.Success(c, result)
}

// RefundPaymentRequest 退款请求
type RefundPaymentRequest struct {
	PaymentID int64  `json:"payment_id" binding:"required"`
	Reason    string `json:"reason"`
}

// RefundPayment 全额退款
// POST /api/v1/payment/refund
func (h *Handler) RefundPayment(c *gin.Context) {
	var req RefundPaymentRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		response.ParamError(c, "参数错误: "+err.Error())
		return
	}

	result, err := h.paymentService.Refund(c.Request.Context(), req.PaymentID, req.Reason)
	if err != nil {
		handleError(c, err)
		return
	}

	response.Success(c, result)
}

// ListPayments 查询用户支付记录
// GET /api/v1/payment/history?user_id=xxx&page=1&page_size=10
func (h *Handler) ListPayments(c *gin.Context) {
	userID, ok := parseUserID(c)
	if !ok {
		return
	}
	page, pageSize := parsePage(c)

	payments, total, err := h.paymentService.ListByUser(c.Request.Context(), userID, page, pageSize)
	if err != nil {
		handleError(c, err)
		return
	}

	response.Success(c, gin.H{
		"list":      payments,
		"total":     total,
		"page":      page,
		"page_size": pageSize,
	})
}

// ============================================================
// 额度相关接口
// ============================================================

// GrantCreditRequest 发放额度请求（运营/活动入口，简化版，未做管理端鉴权）
type GrantCreditRequest struct {
	UserID     int64  `json:"user_id" binding:"required"`
	Kind       string `json:"kind" binding:"required"`       // FREE 或 PAID
	Amount     int64  `json:"amount" binding:"required,gt=0"`
	ExpiryDays int    `json:"expiry_days"` // 仅 FREE 有效，0 表示用默认有效期
}

// GrantCredit 发放额度
// POST /api/v1/credit/grant
func (h *Handler) GrantCredit(c *gin.Context) {
	var req GrantCreditRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		response.ParamError(c, "参数错误: "+err.Error())
		return
	}

	var expiresAt *time.Time
	if req.Kind == model.CreditKindFree {
		days := req.ExpiryDays
		if days <= 0 {
			days = h.cfg.Business.FreeCreditExpiryDays
		}
		t := time.Now().AddDate(0, 0, days)
		expiresAt = &t
	} else if req.ExpiryDays > 0 {
		response.ParamError(c, service.ErrInvalidExpiry.Error())
		return
	}

	credit, err := h.creditService.Grant(c.Request.Context(), req.UserID, req.Kind, req.Amount, expiresAt, nil)
	if err != nil {
		handleError(c, err)
		return
	}

	response.Success(c, gin.H{
		"credit_id":  credit.ID,
		"kind":       credit.Kind,
		"amount":     credit.Amount,
		"expires_at": credit.ExpiresAt,
	})
}

// GetCreditBalance 查询用户额度余额
// GET /api/v1/credit/balance?user_id=xxx
func (h *Handler) GetCreditBalance(c *gin.Context) {
	userID, ok := parseUserID(c)
	if !ok {
		return
	}

	balance, err := h.creditService.GetBalance(c.Request.Context(), userID)
	if err != nil {
		handleError(c, err)
		return
	}

	response.Success(c, gin.H{
		"user_id":      userID,
		"free_credit":  balance.FreeCredit,
		"paid_credit":  balance.PaidCredit,
		"total_credit": balance.FreeCredit + balance.PaidCredit,
	})
}

// ListCreditHistory 查询用户额度变动流水
// GET /api/v1/credit/history?user_id=xxx&page=1&page_size=10
func (h *Handler) ListCreditHistory(c *gin.Context) {
	userID, ok := parseUserID(c)
	if !ok {
		return
	}
	page, pageSize := parsePage(c)

	histories, total, err := h.creditService.ListHistory(c.Request.Context(), userID, page, pageSize)
	if err != nil {
		handleError(c, err)
		return
	}

	response.Success(c, gin.H{
		"list":      histories,
		"total":     total,
		"page":      page,
		"page_size": pageSize,
	})
}

// ============================================================
// 购买相关接口
// ============================================================

// PurchaseRequest 购买请求
type PurchaseRequest struct {
	UserID    int64 `json:"user_id" binding:"required"`
	ContentID int64 `json:"content_id" binding:"required"`
}

// ExecutePurchase 用额度购买内容
// POST /api/v1/purchase/execute
func (h *Handler) ExecutePurchase(c *gin.Context) {
	var req PurchaseRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		response.ParamError(c, "参数错误: "+err.Error())
		return
	}

	result, err := h.purchaseService.Purchase(c.Request.Context(), req.UserID, req.ContentID)
	if err != nil {
		handleError(c, err)
		return
	}

	response.Success(c, result)
}

// GetOrder 查询购买订单详情
// GET /api/v1/purchase/detail?order_id=xxx
func (h *Handler) GetOrder(c *gin.Context) {
	orderID, err := strconv.ParseInt(c.Query("order_id"), 10, 64)
	if err != nil {
		response.ParamError(c, "order_id 参数错误")
		return
	}

	order, err := h.purchaseService.GetOrder(c.Request.Context(), orderID)
	if err != nil {
		handleError(c, err)
		return
	}

	response.Success(c, order)
}

// ListOrders 查询用户购买记录
// GET /api/v1/purchase/list?user_id=xxx&page=1&page_size=10
func (h *Handler) ListOrders(c *gin.Context) {
	userID, ok := parseUserID(c)
	if !ok {
		return
	}
	page, pageSize := parsePage(c)

	orders, total, err := h.purchaseService.ListUserOrders(c.Request.Context(), userID, page, pageSize)
	if err != nil {
		handleError(c, err)
		return
	}

	response.Success(c, gin.H{
		"list":      orders,
		"total":     total,
		"page":      page,
		"page_size": pageSize,
	})
}

// ============================================================
// 创作者相关接口
// ============================================================

// GetCreatorBalance 查询创作者可提现余额
// GET /api/v1/creator/balance?creator_id=xxx
func (h *Handler) GetCreatorBalance(c *gin.Context) {
	creatorID, err := strconv.ParseInt(c.Query("creator_id"), 10, 64)
	if err != nil {
		response.ParamError(c, "creator_id 参数错误")
		return
	}

	available, err := h.withdrawalService.GetAvailableBalance(c.Request.Context(), creatorID)
	if err != nil {
		handleError(c, err)
		return
	}

	response.Success(c, gin.H{
		"creator_id": creatorID,
		"available":  available,
	})
}

// ListSettlements 查询创作者结算记录
// GET /api/v1/creator/settlements?creator_id=xxx&page=1&page_size=10
func (h *Handler) ListSettlements(c *gin.Context) {
	creatorID, err := strconv.ParseInt(c.Query("creator_id"), 10, 64)
	if err != nil {
		response.ParamError(c, "creator_id 参数错误")
		return
	}
	page, pageSize := parsePage(c)

	settlements, total, err := h.settlementService.ListByCreator(c.Request.Context(), creatorID, page, pageSize)
	if err != nil {
		handleError(c, err)
		return
	}

	response.Success(c, gin.H{
		"list":      settlements,
		"total":     total,
		"page":      page,
		"page_size": pageSize,
	})
}

// ============================================================
// 提现相关接口
// ============================================================

// WithdrawalRequest 提现请求
type WithdrawalRequest struct {
	UserID    int64 `json:"user_id" binding:"required"`    // 登录用户，须为创作者本人
	CreatorID int64 `json:"creator_id" binding:"required"`
	Amount    int64 `json:"amount" binding:"required,gt=0"`
}

// RequestWithdrawal 申请提现
// POST /api/v1/withdrawal/request
//
// 同步决策，响应里就是终态（SUC 或 REJ）
func (h *Handler) RequestWithdrawal(c *gin.Context) {
	var req WithdrawalRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		response.ParamError(c, "参数错误: "+err.Error())
		return
	}

	withdrawal, err := h.withdrawalService.RequestAndProcess(c.Request.Context(), req.UserID, req.CreatorID, req.Amount)
	if err != nil {
		handleError(c, err)
		return
	}

	response.Success(c, gin.H{
		"withdrawal_id":  withdrawal.ID,
		"status":         withdrawal.Status,
		"amount":         withdrawal.Amount,
		"failure_reason": withdrawal.FailureReason,
		"processed_at":   withdrawal.ProcessedAt,
	})
}

// ListWithdrawals 查询创作者提现记录
// GET /api/v1/withdrawal/list?creator_id=xxx&month=2026-08&page=1&page_size=10
func (h *Handler) ListWithdrawals(c *gin.Context) {
	creatorID, err := strconv.ParseInt(c.Query("creator_id"), 10, 64)
	if err != nil {
		response.ParamError(c, "creator_id 参数错误")
		return
	}
	month := c.Query("month")
	page, pageSize := parsePage(c)

	withdrawals, total, err := h.withdrawalService.ListByCreator(c.Request.Context(), creatorID, month, page, pageSize)
	if err != nil {
		handleError(c, err)
		return
	}

	response.Success(c, gin.H{
		"list":      withdrawals,
		"total":     total,
		"page":      page,
		"page_size": pageSize,
	})
}

// ============================================================
// 管理接口：手动触发定时任务
// ============================================================

// TriggerSettlement 手动触发结算批次
// POST /api/v1/admin/job/settlement
func (h *Handler) TriggerSettlement(c *gin.Context) {
	if err := h.settlementJob.Run(c.Request.Context()); err != nil {
		handleError(c, err)
		return
	}
	response.Success(c, gin.H{"message": "结算任务已执行"})
}

// TriggerExpiry 手动触发额度过期清扫
// POST /api/v1/admin/job/expiry
func (h *Handler) TriggerExpiry(c *gin.Context) {
	if err := h.expiryJob.Run(c.Request.Context()); err != nil {
		handleError(c, err)
		return
	}
	response.Success(c, gin.H{"message": "过期清扫任务已执行"})
}

// GetStatistics 查询指定日期的订单统计
// GET /api/v1/admin/statistics?date=2026-08-31
func (h *Handler) GetStatistics(c *gin.Context) {
	statDate := c.Query("date")
	if statDate == "" {
		statDate = time.Now().AddDate(0, 0, -1).Format("2006-01-02")
	}

	record, err := h.statisticsService.GetByDate(c.Request.Context(), statDate)
	if err != nil {
		handleError(c, err)
		return
	}

	response.Success(c, record)
}

// TriggerStatistics 手动触发日统计
// POST /api/v1/admin/job/statistics
func (h *Handler) TriggerStatistics(c *gin.Context) {
	if err := h.statisticsJob.Run(c.Request.Context()); err != nil {
		handleError(c, err)
		return
	}
	response.Success(c, gin.H{"message": "日统计任务已执行"})
}
