package model

import (
	"time"
)

// Creator 创作者表
// 用户开通创作者身份后产生，是结算和提现的归属主体
type Creator struct {
	ID        int64     `gorm:"primaryKey;autoIncrement" json:"id"`
	UserID    int64     `gorm:"uniqueIndex;not null" json:"user_id"`
	Name      string    `gorm:"type:varchar(64);not null" json:"name"`
	CreatedAt time.Time `gorm:"autoCreateTime" json:"created_at"`
	UpdatedAt time.Time `gorm:"autoUpdateTime" json:"updated_at"`
}

func (Creator) TableName() string {
	return "creator"
}

// Content 内容表
// 内容管理本身由上游系统负责，这里只保留购买和结算需要的字段
type Content struct {
	ID        int64     `gorm:"primaryKey;autoIncrement" json:"id"`
	CreatorID int64     `gorm:"index;not null" json:"creator_id"`
	Title     string    `gorm:"type:varchar(128);not null" json:"title"`
	Price     int64     `gorm:"not null;default:0" json:"price"` // 售价（额度数），0 为免费内容
	CreatedAt time.Time `gorm:"autoCreateTime" json:"created_at"`
	UpdatedAt time.Time `gorm:"autoUpdateTime" json:"updated_at"`
}

func (Content) TableName() string {
	return "content"
}
