package model

import (
	"time"
)

const (
	SettlementRunStatusRunning   = "RUNNING"
	SettlementRunStatusCompleted = "COMPLETED"
)

// SettlementRun 结算批次表
// run_date 唯一，是批次的幂等键：同一个统计窗口只会有一个批次，
// 重跑只会续接未完成的批次，不会重复产生结算单
type SettlementRun struct {
	ID             int64      `gorm:"primaryKey;autoIncrement" json:"id"`
	RunDate        string     `gorm:"type:varchar(10);uniqueIndex;not null" json:"run_date"` // 统计窗口起始日 yyyy-MM-dd
	Status         string     `gorm:"type:varchar(20);not null" json:"status"`
	FeeRate        int        `gorm:"not null" json:"fee_rate"` // 平台抽成百分比，落库留档
	AggregateCount int        `gorm:"not null;default:0" json:"aggregate_count"`
	SettledCount   int        `gorm:"not null;default:0" json:"settled_count"`
	SkippedCount   int        `gorm:"not null;default:0" json:"skipped_count"`
	StartedAt      time.Time  `gorm:"autoCreateTime" json:"started_at"`
	FinishedAt     *time.Time `json:"finished_at"`
}

func (SettlementRun) TableName() string {
	return "settlement_run"
}

// Settlement 结算单表
// 一行代表一个 (创作者, 内容) 聚合的应结金额，创建后不可变
type Settlement struct {
	ID        int64     `gorm:"primaryKey;autoIncrement" json:"id"`
	RunID     int64     `gorm:"not null;uniqueIndex:uk_run_target" json:"run_id"`
	CreatorID int64     `gorm:"not null;uniqueIndex:uk_run_target;index" json:"creator_id"`
	ContentID int64     `gorm:"not null;uniqueIndex:uk_run_target" json:"content_id"`
	NetAmount int64     `gorm:"not null" json:"net_amount"` // 扣除平台抽成后的应结金额
	FeeRate   int       `gorm:"not null" json:"fee_rate"`   // 结算时的抽成百分比
	SettledAt time.Time `gorm:"autoCreateTime;index" json:"settled_at"`
}

func (Settlement) TableName() string {
	return "settlement"
}

const (
	WithdrawalStatusRequested = "REQ" // 已受理，决策中
	WithdrawalStatusSucceeded = "SUC" // 提现成功，终态
	WithdrawalStatusRejected  = "REJ" // 余额不足被拒，终态
)

// Withdrawal 提现单表
// 同步决策：请求落库后在同一事务内出结果，REQ 状态对外不可见
type Withdrawal struct {
	ID            int64      `gorm:"primaryKey;autoIncrement" json:"id"`
	CreatorID     int64      `gorm:"index;not null" json:"creator_id"`
	Amount        int64      `gorm:"not null" json:"amount"`
	Status        string     `gorm:"type:varchar(10);index;not null" json:"status"`
	FailureReason string     `gorm:"type:varchar(256)" json:"failure_reason"`
	RequestedAt   time.Time  `gorm:"autoCreateTime;index" json:"requested_at"`
	ProcessedAt   *time.Time `json:"processed_at"`
}

func (Withdrawal) TableName() string {
	return "withdrawal"
}
