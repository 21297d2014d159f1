package model

import (
	"time"
)

// UserBalance 用户余额快照表
// 冗余的聚合计数，查询余额时不用扫 credit 表
// credit 表才是事实来源，快照和额度变动在同一事务内更新，
// 出现不一致时以 credit 表重算为准
type UserBalance struct {
	ID         int64     `gorm:"primaryKey;autoIncrement" json:"id"`
	UserID     int64     `gorm:"uniqueIndex;not null" json:"user_id"`
	FreeCredit int64     `gorm:"not null;default:0" json:"free_credit"`
	PaidCredit int64     `gorm:"not null;default:0" json:"paid_credit"`
	UpdatedAt  time.Time `gorm:"autoUpdateTime" json:"updated_at"`
}

func (UserBalance) TableName() string {
	return "user_balance"
}

// DailyStatistics 日统计表
// 每日统计任务产出，按统计日幂等覆盖
type DailyStatistics struct {
	ID              int64     `gorm:"primaryKey;autoIncrement" json:"id"`
	StatDate        string    `gorm:"type:varchar(10);uniqueIndex;not null" json:"stat_date"` // yyyy-MM-dd
	OrderCount      int64     `gorm:"not null;default:0" json:"order_count"`
	GrossCreditUsed int64     `gorm:"not null;default:0" json:"gross_credit_used"`
	FreeCreditUsed  int64     `gorm:"not null;default:0" json:"free_credit_used"`
	PaidCreditUsed  int64     `gorm:"not null;default:0" json:"paid_credit_used"`
	CreatedAt       time.Time `gorm:"autoCreateTime" json:"created_at"`
	UpdatedAt       time.Time `gorm:"autoUpdateTime" json:"updated_at"`
}

func (DailyStatistics) TableName() string {
	return "daily_statistics"
}
