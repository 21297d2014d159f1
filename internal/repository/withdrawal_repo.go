package repository

import (
	"context"
	"errors"
	"time"

	"creditpay/internal/model"

	"gorm.io/gorm"
)

var (
	ErrWithdrawalNotFound  = errors.New("提现单不存在")
	ErrWithdrawalProcessed = errors.New("提现单已处理")
)

type WithdrawalRepository struct {
	db *gorm.DB
}

func NewWithdrawalRepository(db *gorm.DB) *WithdrawalRepository {
	return &WithdrawalRepository{db: db}
}

func (r *WithdrawalRepository) Create(ctx context.Context, tx *gorm.DB, withdrawal *model.Withdrawal) error {
	if tx == nil {
		tx = r.db
	}
	return tx.WithContext(ctx).Create(withdrawal).Error
}

func (r *WithdrawalRepository) GetByID(ctx context.Context, withdrawalID int64) (*model.Withdrawal, error) {
	var withdrawal model.Withdrawal
	err := r.db.WithContext(ctx).Where("id = ?", withdrawalID).First(&withdrawal).Error
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, ErrWithdrawalNotFound
		}
		return nil, err
	}
	return &withdrawal, nil
}

// Resolve 把 REQ 状态的提现单迁移到终态
// WHERE 带上 REQ 做比较交换，同一张单只会被决策一次，终态不再变化
func (r *WithdrawalRepository) Resolve(ctx context.Context, tx *gorm.DB, withdrawalID int64, toStatus, failureReason string, processedAt time.Time) error {
	if tx == nil {
		tx = r.db
	}
	result := tx.WithContext(ctx).
		Model(&model.Withdrawal{}).
		Where("id = ? AND status = ?", withdrawalID, model.WithdrawalStatusRequested).
		Updates(map[string]interface{}{
			"status":         toStatus,
			"failure_reason": failureReason,
			"processed_at":   processedAt,
		})

	if result.Error != nil {
		return result.Error
	}
	if result.RowsAffected == 0 {
		return ErrWithdrawalProcessed
	}
	return nil
}

// SumSucceededByCreator 创作者历史成功提现总额
func (r *WithdrawalRepository) SumSucceededByCreator(ctx context.Context, tx *gorm.DB, creatorID int64) (int64, error) {
	if tx == nil {
		tx = r.db
	}
	var total int64
	err := tx.WithContext(ctx).
		Model(&model.Withdrawal{}).
		Select("COALESCE(SUM(amount), 0)").
		Where("creator_id = ? AND status = ?", creatorID, model.WithdrawalStatusSucceeded).
		Scan(&total).Error
	return total, err
}

// ListByCreator 创作者提现列表，month 为 yyyy-MM 格式的可选过滤
func (r *WithdrawalRepository) ListByCreator(ctx context.Context, creatorID int64, month string, page, pageSize int) ([]*model.Withdrawal, int64, error) {
	var withdrawals []*model.Withdrawal
	var total int64

	query := r.db.WithContext(ctx).Model(&model.Withdrawal{}).Where("creator_id = ?", creatorID)
	if month != "" {
		monthStart, err := time.ParseInLocation("2006-01", month, time.Local)
		if err != nil {
			return nil, 0, err
		}
		query = query.Where("requested_at >= ? AND requested_at < ?", monthStart, monthStart.AddDate(0, 1, 0))
	}

	err := query.Count(&total).Error
	if err != nil {
		return nil, 0, err
	}

	err = query.
		Order("requested_at DESC, id DESC").
		Offset((page - 1) * pageSize).
		Limit(pageSize).
		Find(&withdrawals).Error

	return withdrawals, total, err
}
