package gateway

import (
	"context"
	"fmt"
	"time"
)

// 外部支付网关适配层
// confirm/cancel 都可能失败，且从本系统视角看不保证幂等，
// 幂等性由调用方通过支付单状态机保证

// ConfirmResult 网关确认结果
type ConfirmResult struct {
	Status      string    `json:"status"`
	TotalAmount int64     `json:"totalAmount"` // 网关侧实际扣款金额，必须与本地金额比对
	ApprovedAt  time.Time `json:"approvedAt"`
	ReceiptURL  string    `json:"receiptUrl"`
}

// CancelResult 网关撤销结果
type CancelResult struct {
	Status string `json:"status"`
}

// Client 支付网关客户端
type Client interface {
	// Confirm 向网关确认一笔支付
	Confirm(ctx context.Context, paymentKey, externalOrderID string, amount int64) (*ConfirmResult, error)
	// Cancel 向网关撤销一笔已确认的支付
	Cancel(ctx context.Context, paymentKey, reason string) (*CancelResult, error)
}

// Error 网关返回的业务错误
type Error struct {
	Code    string `json:"code"`
	Message string `json:"message"`
}

func (e *Error) Error() string {
	return fmt.Sprintf("网关返回错误: code=%s, message=%s", e.Code, e.Message)
}
