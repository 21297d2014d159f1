package repository

import (
	"context"
	"errors"
	"time"

	"creditpay/internal/model"

	"gorm.io/gorm"
	"gorm.io/gorm/clause"
)

var (
	ErrBalanceNotFound = errors.New("余额记录不存在")
)

type BalanceRepository struct {
	db         *gorm.DB
	creditRepo *CreditRepository
}

func NewBalanceRepository(db *gorm.DB) *BalanceRepository {
	return &BalanceRepository{
		db:         db,
		creditRepo: NewCreditRepository(db),
	}
}

func (r *BalanceRepository) GetByUserID(ctx context.Context, userID int64) (*model.UserBalance, error) {
	var balance model.UserBalance
	err := r.db.WithContext(ctx).Where("user_id = ?", userID).First(&balance).Error
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, ErrBalanceNotFound
		}
		return nil, err
	}
	return &balance, nil
}

func (r *BalanceRepository) GetOrCreate(ctx context.Context, tx *gorm.DB, userID int64) (*model.UserBalance, error) {
	if tx == nil {
		tx = r.db
	}
	balance, err := r.getByUserID(ctx, tx, userID)
	if err == nil {
		return balance, nil
	}
	if !errors.Is(err, ErrBalanceNotFound) {
		return nil, err
	}

	newBalance := &model.UserBalance{UserID: userID}
	err = tx.WithContext(ctx).
		Clauses(clause.OnConflict{
			Columns:   []clause.Column{{Name: "user_id"}},
			DoNothing: true,
		}).
		Create(newBalance).Error
	if err != nil {
		return nil, err
	}

	return r.getByUserID(ctx, tx, userID)
}

func (r *BalanceRepository) getByUserID(ctx context.Context, tx *gorm.DB, userID int64) (*model.UserBalance, error) {
	var balance model.UserBalance
	err := tx.WithContext(ctx).Where("user_id = ?", userID).First(&balance).Error
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, ErrBalanceNotFound
		}
		return nil, err
	}
	return &balance, nil
}

// Add 增量更新余额快照，发放为正、消耗为负
func (r *BalanceRepository) Add(ctx context.Context, tx *gorm.DB, userID int64, freeDelta, paidDelta int64) error {
	if tx == nil {
		tx = r.db
	}
	result := tx.WithContext(ctx).
		Model(&model.UserBalance{}).
		Where("user_id = ?", userID).
		Updates(map[string]interface{}{
			"free_credit": gorm.Expr("free_credit + ?", freeDelta),
			"paid_credit": gorm.Expr("paid_credit + ?", paidDelta),
		})

	if result.Error != nil {
		return result.Error
	}
	if result.RowsAffected == 0 {
		return ErrBalanceNotFound
	}
	return nil
}

// Recalculate 从 credit 表重算快照，快照与事实来源不一致时的修复入口
func (r *BalanceRepository) Recalculate(ctx context.Context, userID int64, now time.Time) (*model.UserBalance, error) {
	free, err := r.creditRepo.SumUsableByKind(ctx, nil, userID, model.CreditKindFree, now)
	if err != nil {
		return nil, err
	}
	paid, err := r.creditRepo.SumUsableByKind(ctx, nil, userID, model.CreditKindPaid, now)
	if err != nil {
		return nil, err
	}

	balance, err := r.GetOrCreate(ctx, nil, userID)
	if err != nil {
		return nil, err
	}

	err = r.db.WithContext(ctx).
		Model(&model.UserBalance{}).
		Where("user_id = ?", userID).
		Updates(map[string]interface{}{
			"free_credit": free,
			"paid_credit": paid,
		}).Error
	if err != nil {
		return nil, err
	}

	balance.FreeCredit = free
	balance.PaidCredit = paid
	return balance, nil
}
