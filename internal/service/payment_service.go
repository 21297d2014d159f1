package service

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log"
	"time"

	"creditpay/internal/config"
	"creditpay/internal/gateway"
	"creditpay/internal/model"
	"creditpay/internal/repository"
	"creditpay/pkg/idgen"

	"gorm.io/gorm"
)

// PaymentService 支付单生命周期
//
// 状态机：CREATED -> DONE -> CANCELED / CREATED -> ABORTED
// 本地状态永远跟随网关状态：confirm 和 refund 都是先调网关、
// 成功后才落本地变更，网关失败时本地不做任何资金侧改动
type PaymentService struct {
	db            *gorm.DB
	gw            gateway.Client
	cfg           *config.Config
	paymentRepo   *repository.PaymentRepository
	creditRepo    *repository.CreditRepository
	balanceRepo   *repository.BalanceRepository
	outboxRepo    *repository.OutboxRepository
	creditService *CreditService
}

func NewPaymentService(db *gorm.DB, gw gateway.Client, cfg *config.Config) *PaymentService {
	return &PaymentService{
		db:            db,
		gw:            gw,
		cfg:           cfg,
		paymentRepo:   repository.NewPaymentRepository(db),
		creditRepo:    repository.NewCreditRepository(db),
		balanceRepo:   repository.NewBalanceRepository(db),
		outboxRepo:    repository.NewOutboxRepository(db),
		creditService: NewCreditService(db),
	}
}

// PrepareResult 预下单结果
type PrepareResult struct {
	PaymentID       int64  `json:"payment_id"`
	ExternalOrderID string `json:"external_order_id"`
	Amount          int64  `json:"amount"`
}

// Prepare 预下单：按固定兑换比例折算货币金额，生成全局唯一外部订单号
func (s *PaymentService) Prepare(ctx context.Context, userID int64, creditAmount int64, provider string) (*PrepareResult, error) {
	if creditAmount <= 0 {
		return nil, ErrInvalidAmount
	}

	payment := &model.Payment{
		UserID:          userID,
		Amount:          creditAmount * s.cfg.Business.CreditExchangeRate,
		CreditAmount:    creditAmount,
		Provider:        provider,
		ExternalOrderID: idgen.GeneratePaymentOrderNo(),
		Status:          model.PaymentStatusCreated,
	}
	if err := s.paymentRepo.Create(ctx, nil, payment); err != nil {
		return nil, fmt.Errorf("创建支付单失败: %w", err)
	}

	return &PrepareResult{
		PaymentID:       payment.ID,
		ExternalOrderID: payment.ExternalOrderID,
		Amount:          payment.Amount,
	}, nil
}

// ConfirmRequest 确认请求，参数来自支付网关回跳
type ConfirmRequest struct {
	ExternalOrderID    string
	ExternalPaymentKey string
	Amount             int64
}

// ConfirmResult 确认结果
type ConfirmResult struct {
	PaymentID    int64  `json:"payment_id"`
	Status       string `json:"status"`
	CreditAmount int64  `json:"credit_amount"`
	ReceiptURL   string `json:"receipt_url"`
	Message      string `json:"message,omitempty"`
}

// Confirm 确认支付
//
// 幂等：支付单已是 DONE、或额度已发放时，直接返回成功。
// 校验链依次是本地金额比对 -> 网关确认 -> 网关金额比对，
// 任何一环失败都把支付单置为 ABORTED 并记录原因
func (s *PaymentService) Confirm(ctx context.Context, req *ConfirmRequest) (*ConfirmResult, error) {
	payment, err := s.paymentRepo.GetByExternalOrderID(ctx, req.ExternalOrderID)
	if err != nil {
		return nil, err
	}

	// 幂等校验：重复确认直接返回首次结果
	if payment.Status == model.PaymentStatusDone {
		return &ConfirmResult{
			PaymentID:    payment.ID,
			Status:       payment.Status,
			CreditAmount: payment.CreditAmount,
			ReceiptURL:   payment.ReceiptURL,
			Message:      "支付已确认，请勿重复操作",
		}, nil
	}
	existingCredit, err := s.creditRepo.GetByPaymentID(ctx, payment.ID)
	if err != nil {
		return nil, fmt.Errorf("查询额度失败: %w", err)
	}
	if existingCredit != nil {
		return &ConfirmResult{
			PaymentID:    payment.ID,
			Status:       model.PaymentStatusDone,
			CreditAmount: payment.CreditAmount,
			ReceiptURL:   payment.ReceiptURL,
			Message:      "额度已发放，请勿重复操作",
		}, nil
	}

	if payment.Status != model.PaymentStatusCreated {
		return nil, ErrPaymentStateInvalid
	}

	// 本地金额比对
	if payment.Amount != req.Amount {
		s.abortQuietly(ctx, payment.ID, "AMOUNT_MISMATCH")
		return nil, ErrAmountMismatch
	}

	// 请求网关确认，失败时中止支付单并保留网关错误原文
	gwResult, err := s.gw.Confirm(ctx, req.ExternalPaymentKey, req.ExternalOrderID, req.Amount)
	if err != nil {
		s.abortQuietly(ctx, payment.ID, err.Error())
		return nil, fmt.Errorf("%w: %v", ErrGatewayFailed, err)
	}

	// 网关金额比对
	if gwResult.TotalAmount != req.Amount {
		s.abortQuietly(ctx, payment.ID, "GATEWAY_AMOUNT_MISMATCH")
		return nil, ErrGatewayAmountDiff
	}

	approvedAt := gwResult.ApprovedAt
	if approvedAt.IsZero() {
		approvedAt = time.Now()
	}

	// 状态迁移和额度发放同事务：要么都成功，要么都没发生
	err = s.db.Transaction(func(tx *gorm.DB) error {
		extra := map[string]interface{}{
			"external_payment_key": req.ExternalPaymentKey,
			"receipt_url":          gwResult.ReceiptURL,
			"approved_at":          approvedAt,
		}
		if err := s.paymentRepo.UpdateStatus(ctx, tx, payment.ID, model.PaymentStatusCreated, model.PaymentStatusDone, extra); err != nil {
			return fmt.Errorf("更新支付单状态失败: %w", err)
		}

		paymentID := payment.ID
		if _, err := s.creditService.GrantInTx(ctx, tx, payment.UserID, model.CreditKindPaid, payment.CreditAmount, nil, &paymentID); err != nil {
			return fmt.Errorf("发放额度失败: %w", err)
		}

		msgPayload := map[string]interface{}{
			"payment_id":        payment.ID,
			"external_order_id": payment.ExternalOrderID,
			"user_id":           payment.UserID,
			"amount":            payment.Amount,
			"credit_amount":     payment.CreditAmount,
			"status":            model.PaymentStatusDone,
			"approved_at":       approvedAt.Format(time.RFC3339),
		}
		payloadBytes, _ := json.Marshal(msgPayload)

		outboxMsg := &model.OutboxMessage{
			MessageKey: payment.ExternalOrderID,
			Topic:      s.cfg.Kafka.Topic.PaymentResult,
			Payload:    string(payloadBytes),
			Status:     model.OutboxStatusPending,
		}
		if err := s.outboxRepo.Create(ctx, tx, outboxMsg); err != nil {
			return fmt.Errorf("写入消息失败: %w", err)
		}

		return nil
	})
	if err != nil {
		return nil, err
	}

	log.Printf("支付确认成功: paymentID=%d, externalOrderID=%s, creditAmount=%d",
		payment.ID, payment.ExternalOrderID, payment.CreditAmount)

	return &ConfirmResult{
		PaymentID:    payment.ID,
		Status:       model.PaymentStatusDone,
		CreditAmount: payment.CreditAmount,
		ReceiptURL:   gwResult.ReceiptURL,
	}, nil
}

// Abort 中止处于 CREATED 状态的支付单
// 已进入终态的支付单直接返回成功，不做任何改动
func (s *PaymentService) Abort(ctx context.Context, paymentID int64, reason string) error {
	payment, err := s.paymentRepo.GetByID(ctx, paymentID)
	if err != nil {
		return err
	}
	if payment.Status != model.PaymentStatusCreated {
		return nil
	}

	extra := map[string]interface{}{
		"fail_reason": reason,
	}
	err = s.paymentRepo.UpdateStatus(ctx, nil, paymentID, model.PaymentStatusCreated, model.PaymentStatusAborted, extra)
	if errors.Is(err, repository.ErrPaymentStatusInvalid) {
		// 并发下已被别人迁移走，视为已终态
		return nil
	}
	return err
}

// abortQuietly 确认失败路径上的中止，失败只打日志不影响主错误
func (s *PaymentService) abortQuietly(ctx context.Context, paymentID int64, reason string) {
	if err := s.Abort(ctx, paymentID, reason); err != nil {
		log.Printf("[PaymentService] 中止支付单失败: paymentID=%d, err=%v", paymentID, err)
	}
}

// RefundResult 退款结果
type RefundResult struct {
	PaymentID int64  `json:"payment_id"`
	Status    string `json:"status"`
	Amount    int64  `json:"amount"`
	Message   string `json:"message,omitempty"`
}

// Refund 退款
//
// 前置校验全部在调网关之前完成：
//  1. 支付单必须是 DONE
//  2. 该笔发放的额度必须分文未动，动过就只能走人工
//  3. 必须在退款期限内
//
// 网关撤销成功后才清零额度并把支付单迁到 CANCELED；
// 网关失败时只记录原因，支付单保持 DONE，可以重试
func (s *PaymentService) Refund(ctx context.Context, paymentID int64, reason string) (*RefundResult, error) {
	payment, err := s.paymentRepo.GetByID(ctx, paymentID)
	if err != nil {
		return nil, err
	}

	// 幂等：已退款直接返回
	if payment.Status == model.PaymentStatusCanceled {
		return &RefundResult{
			PaymentID: payment.ID,
			Status:    payment.Status,
			Amount:    payment.Amount,
			Message:   "已退款，请勿重复操作",
		}, nil
	}
	if payment.Status != model.PaymentStatusDone {
		return nil, ErrRefundNotAllowed
	}

	credit, err := s.creditRepo.GetByPaymentID(ctx, payment.ID)
	if err != nil {
		return nil, fmt.Errorf("查询额度失败: %w", err)
	}
	if credit == nil {
		return nil, repository.ErrCreditNotFound
	}
	if credit.Amount != payment.CreditAmount {
		return nil, ErrCreditAlreadyUsed
	}

	if payment.ApprovedAt == nil {
		return nil, ErrRefundNotAllowed
	}
	deadline := payment.ApprovedAt.AddDate(0, 0, s.cfg.Business.RefundWindowDays)
	if time.Now().After(deadline) {
		return nil, ErrRefundWindowClosed
	}

	// 先撤网关，成功后才动本地，两边状态不允许分叉
	if _, err := s.gw.Cancel(ctx, payment.ExternalPaymentKey, reason); err != nil {
		if updateErr := s.db.WithContext(ctx).
			Model(&model.Payment{}).
			Where("id = ?", payment.ID).
			Update("fail_reason", err.Error()).Error; updateErr != nil {
			log.Printf("[PaymentService] 记录退款失败原因失败: paymentID=%d, err=%v", payment.ID, updateErr)
		}
		return nil, fmt.Errorf("%w: %v", ErrGatewayFailed, err)
	}

	now := time.Now()
	err = s.db.Transaction(func(tx *gorm.DB) error {
		if err := s.creditRepo.ZeroOut(ctx, tx, credit.ID, credit.Amount); err != nil {
			return fmt.Errorf("清零额度失败: %w", err)
		}
		if err := s.balanceRepo.Add(ctx, tx, payment.UserID, 0, -credit.Amount); err != nil {
			return fmt.Errorf("更新余额快照失败: %w", err)
		}

		extra := map[string]interface{}{
			"canceled_at": now,
			"fail_reason": reason,
		}
		if err := s.paymentRepo.UpdateStatus(ctx, tx, payment.ID, model.PaymentStatusDone, model.PaymentStatusCanceled, extra); err != nil {
			return fmt.Errorf("更新支付单状态失败: %w", err)
		}

		msgPayload := map[string]interface{}{
			"payment_id":        payment.ID,
			"external_order_id": payment.ExternalOrderID,
			"user_id":           payment.UserID,
			"amount":            payment.Amount,
			"status":            model.PaymentStatusCanceled,
			"reason":            reason,
			"refunded_at":       now.Format(time.RFC3339),
		}
		payloadBytes, _ := json.Marshal(msgPayload)

		outboxMsg := &model.OutboxMessage{
			MessageKey: payment.ExternalOrderID,
			Topic:      s.cfg.Kafka.Topic.PaymentResult,
			Payload:    string(payloadBytes),
			Status:     model.OutboxStatusPending,
		}
		return s.outboxRepo.Create(ctx, tx, outboxMsg)
	})
	if err != nil {
		return nil, err
	}

	log.Printf("退款成功: paymentID=%d, externalOrderID=%s, amount=%d",
		payment.ID, payment.ExternalOrderID, payment.Amount)

	return &RefundResult{
		PaymentID: payment.ID,
		Status:    model.PaymentStatusCanceled,
		Amount:    payment.Amount,
	}, nil
}

// ListByUser 分页查询用户支付历史，新的在前
func (s *PaymentService) ListByUser(ctx context.Context, userID int64, page, pageSize int) ([]*model.Payment, int64, error) {
	return s.paymentRepo.ListByUserID(ctx, userID, page, pageSize)
}
