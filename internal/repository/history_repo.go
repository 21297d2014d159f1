package repository

import (
	"context"

	"creditpay/internal/model"

	"gorm.io/gorm"
)

type HistoryRepository struct {
	db *gorm.DB
}

func NewHistoryRepository(db *gorm.DB) *HistoryRepository {
	return &HistoryRepository{db: db}
}

// Create 追加一条流水，流水只增不改
func (r *HistoryRepository) Create(ctx context.Context, tx *gorm.DB, history *model.CreditHistory) error {
	if tx == nil {
		tx = r.db
	}
	return tx.WithContext(ctx).Create(history).Error
}

func (r *HistoryRepository) ListByUserID(ctx context.Context, userID int64, page, pageSize int) ([]*model.CreditHistory, int64, error) {
	var histories []*model.CreditHistory
	var total int64

	query := r.db.WithContext(ctx).Model(&model.CreditHistory{}).Where("user_id = ?", userID)

	err := query.Count(&total).Error
	if err != nil {
		return nil, 0, err
	}

	err = query.
		Order("changed_at DESC, id DESC").
		Offset((page - 1) * pageSize).
		Limit(pageSize).
		Find(&histories).Error

	return histories, total, err
}

// ListByOrderID 查询某订单产生的流水
func (r *HistoryRepository) ListByOrderID(ctx context.Context, orderID int64) ([]*model.CreditHistory, error) {
	var histories []*model.CreditHistory
	err := r.db.WithContext(ctx).
		Where("order_id = ?", orderID).
		Order("id ASC").
		Find(&histories).Error
	return histories, err
}
