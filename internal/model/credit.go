package model

import (
	"time"
)

const (
	CreditKindFree = "FREE" // 免费额度，有过期时间，优先消耗
	CreditKindPaid = "PAID" // 付费额度，来自已确认的支付，不过期
)

const (
	CreditReasonCharge   = "CHARGE"   // 充值发放
	CreditReasonPurchase = "PURCHASE" // 购买扣减
	CreditReasonExpire   = "EXPIRE"   // 过期清零
)

// Credit 额度表
// 一行代表一次发放，amount 只减不增，减到 0 为止，永不物理删除
type Credit struct {
	ID        int64      `gorm:"primaryKey;autoIncrement" json:"id"`
	UserID    int64      `gorm:"index;not null" json:"user_id"`
	Kind      string     `gorm:"type:varchar(10);not null" json:"kind"`
	Amount    int64      `gorm:"not null" json:"amount"`         // 剩余可用额度
	PaymentID *int64     `gorm:"uniqueIndex" json:"payment_id"`  // 关联支付单，PAID 额度与支付单一对一
	ExpiresAt *time.Time `json:"expires_at"`                     // 过期时间，仅 FREE 额度有值
	GrantedAt time.Time  `gorm:"autoCreateTime;index" json:"granted_at"`
	UpdatedAt time.Time  `gorm:"autoUpdateTime" json:"updated_at"`
}

func (Credit) TableName() string {
	return "credit"
}

// Usable 判断额度当前是否可用
// 已过期但尚未被清理任务扫到的 FREE 额度也必须判定为不可用
func (c *Credit) Usable(now time.Time) bool {
	if c.Amount <= 0 {
		return false
	}
	if c.ExpiresAt != nil && !c.ExpiresAt.After(now) {
		return false
	}
	return true
}

// CreditHistory 额度流水表
// 只追加，不修改，不删除，是审计和对账的依据
type CreditHistory struct {
	ID        int64     `gorm:"primaryKey;autoIncrement" json:"id"`
	UserID    int64     `gorm:"index;not null" json:"user_id"`
	Kind      string    `gorm:"type:varchar(10);not null" json:"kind"`
	Delta     int64     `gorm:"not null" json:"delta"`                  // 变动数额（发放为正，消耗为负）
	Reason    string    `gorm:"type:varchar(20);not null" json:"reason"`
	OrderID   *int64    `gorm:"index" json:"order_id"`
	PaymentID *int64    `gorm:"index" json:"payment_id"`
	ChangedAt time.Time `gorm:"autoCreateTime;index" json:"changed_at"`
}

func (CreditHistory) TableName() string {
	return "credit_history"
}
