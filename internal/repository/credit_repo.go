package repository

import (
	"context"
	"errors"
	"time"

	"creditpay/internal/model"

	"gorm.io/gorm"
)

var (
	ErrCreditNotFound = errors.New("额度不存在")
	ErrCreditChanged  = errors.New("额度已被并发修改")
)

type CreditRepository struct {
	db *gorm.DB
}

func NewCreditRepository(db *gorm.DB) *CreditRepository {
	return &CreditRepository{db: db}
}

func (r *CreditRepository) Create(ctx context.Context, tx *gorm.DB, credit *model.Credit) error {
	if tx == nil {
		tx = r.db
	}
	return tx.WithContext(ctx).Create(credit).Error
}

// GetUsable 查询用户当前全部可用额度行
// 已过期、已耗尽的行在查询侧就被过滤，排序由调用方按消耗顺序决定
func (r *CreditRepository) GetUsable(ctx context.Context, tx *gorm.DB, userID int64, now time.Time) ([]*model.Credit, error) {
	if tx == nil {
		tx = r.db
	}
	var credits []*model.Credit
	err := tx.WithContext(ctx).
		Where("user_id = ? AND amount > 0 AND (expires_at IS NULL OR expires_at > ?)", userID, now).
		Find(&credits).Error
	return credits, err
}

// Deduct 从单行额度中扣减
// 条件更新保证单行永远不会被扣成负数，即使上层锁失效
func (r *CreditRepository) Deduct(ctx context.Context, tx *gorm.DB, creditID int64, amount int64) error {
	if tx == nil {
		tx = r.db
	}
	result := tx.WithContext(ctx).
		Model(&model.Credit{}).
		Where("id = ? AND amount >= ?", creditID, amount).
		Update("amount", gorm.Expr("amount - ?", amount))

	if result.Error != nil {
		return result.Error
	}
	if result.RowsAffected == 0 {
		return ErrCreditChanged
	}
	return nil
}

// ZeroOut 将额度清零，expect 是调用方读到的余额，余额变了就放弃
func (r *CreditRepository) ZeroOut(ctx context.Context, tx *gorm.DB, creditID int64, expect int64) error {
	if tx == nil {
		tx = r.db
	}
	result := tx.WithContext(ctx).
		Model(&model.Credit{}).
		Where("id = ? AND amount = ?", creditID, expect).
		Update("amount", 0)

	if result.Error != nil {
		return result.Error
	}
	if result.RowsAffected == 0 {
		return ErrCreditChanged
	}
	return nil
}

// GetExpired 查询已到期但还未清零的 FREE 额度
func (r *CreditRepository) GetExpired(ctx context.Context, now time.Time) ([]*model.Credit, error) {
	var credits []*model.Credit
	err := r.db.WithContext(ctx).
		Where("kind = ? AND amount > 0 AND expires_at IS NOT NULL AND expires_at <= ?", model.CreditKindFree, now).
		Find(&credits).Error
	return credits, err
}

// GetByPaymentID 查询某笔支付发放的额度，不存在时返回 nil
func (r *CreditRepository) GetByPaymentID(ctx context.Context, paymentID int64) (*model.Credit, error) {
	var credit model.Credit
	err := r.db.WithContext(ctx).Where("payment_id = ?", paymentID).First(&credit).Error
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, nil
		}
		return nil, err
	}
	return &credit, nil
}

func (r *CreditRepository) GetByID(ctx context.Context, creditID int64) (*model.Credit, error) {
	var credit model.Credit
	err := r.db.WithContext(ctx).Where("id = ?", creditID).First(&credit).Error
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, ErrCreditNotFound
		}
		return nil, err
	}
	return &credit, nil
}

// SumUsableByKind 按类型汇总用户可用额度，余额重算时使用
func (r *CreditRepository) SumUsableByKind(ctx context.Context, tx *gorm.DB, userID int64, kind string, now time.Time) (int64, error) {
	if tx == nil {
		tx = r.db
	}
	var total int64
	err := tx.WithContext(ctx).
		Model(&model.Credit{}).
		Select("COALESCE(SUM(amount), 0)").
		Where("user_id = ? AND kind = ? AND amount > 0 AND (expires_at IS NULL OR expires_at > ?)", userID, kind, now).
		Scan(&total).Error
	return total, err
}
