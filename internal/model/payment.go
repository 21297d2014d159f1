package model

import (
	"time"
)

const (
	PaymentStatusCreated  = "CREATED"  // 已创建，等待确认
	PaymentStatusDone     = "DONE"     // 支付网关确认成功，额度已发放
	PaymentStatusAborted  = "ABORTED"  // 确认失败，终态
	PaymentStatusCanceled = "CANCELED" // 已退款，终态
)

// ValidPaymentTransitions 支付单状态机
// CREATED -> DONE -> CANCELED（确认成功后退款）
// CREATED -> ABORTED（确认失败）
// 除此之外不存在任何迁移
var ValidPaymentTransitions = map[string][]string{
	PaymentStatusCreated: {PaymentStatusDone, PaymentStatusAborted},
	PaymentStatusDone:    {PaymentStatusCanceled},
}

func CanTransitPayment(currentStatus, targetStatus string) bool {
	allowed, exists := ValidPaymentTransitions[currentStatus]
	if !exists {
		return false
	}
	for _, s := range allowed {
		if s == targetStatus {
			return true
		}
	}
	return false
}

// Payment 支付单表
// 一行代表一次向外部支付网关发起的扣款
type Payment struct {
	ID                 int64      `gorm:"primaryKey;autoIncrement" json:"id"`
	UserID             int64      `gorm:"index;not null" json:"user_id"`
	Amount             int64      `gorm:"not null" json:"amount"`        // 货币金额 = 额度数 x 兑换比例
	CreditAmount       int64      `gorm:"not null" json:"credit_amount"` // 购买的额度数
	Provider           string     `gorm:"type:varchar(32);not null" json:"provider"`
	ExternalOrderID    string     `gorm:"type:varchar(64);uniqueIndex;not null" json:"external_order_id"` // 传给网关的订单号，全局唯一
	ExternalPaymentKey string     `gorm:"type:varchar(128)" json:"external_payment_key"`                  // 网关回传的支付凭证
	Status             string     `gorm:"type:varchar(20);index;not null" json:"status"`
	ReceiptURL         string     `gorm:"type:varchar(256)" json:"receipt_url"`
	FailReason         string     `gorm:"type:varchar(256)" json:"fail_reason"`
	ApprovedAt         *time.Time `json:"approved_at"`
	CanceledAt         *time.Time `json:"canceled_at"`
	CreatedAt          time.Time  `gorm:"autoCreateTime;index" json:"created_at"`
	UpdatedAt          time.Time  `gorm:"autoUpdateTime" json:"updated_at"`
}

func (Payment) TableName() string {
	return "payment"
}
