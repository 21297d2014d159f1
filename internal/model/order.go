package model

import (
	"time"
)

const (
	OrderStatusSuccess  = "SUCCESS"  // 购买成功，额度已扣减
	OrderStatusCanceled = "CANCELED" // 已取消（预留，当前流程不产生）
)

// Order 购买订单表
// 一行代表一次内容购买，同一用户对同一内容最多一单
type Order struct {
	ID              int64     `gorm:"primaryKey;autoIncrement" json:"id"`
	UserID          int64     `gorm:"not null;uniqueIndex:uk_user_content" json:"user_id"`
	ContentID       int64     `gorm:"not null;uniqueIndex:uk_user_content" json:"content_id"`
	Status          string    `gorm:"type:varchar(20);index;not null" json:"status"`
	UsedFreeCredit  int64     `gorm:"not null;default:0" json:"used_free_credit"`
	UsedPaidCredit  int64     `gorm:"not null;default:0" json:"used_paid_credit"`
	TotalCreditUsed int64     `gorm:"not null;default:0" json:"total_credit_used"` // 恒等于 used_free + used_paid
	Settled         bool      `gorm:"index;not null;default:false" json:"settled"` // 是否已被结算批次处理
	CreatedAt       time.Time `gorm:"autoCreateTime;index" json:"created_at"`
	UpdatedAt       time.Time `gorm:"autoUpdateTime" json:"updated_at"`
}

func (Order) TableName() string {
	return "purchase_order"
}
