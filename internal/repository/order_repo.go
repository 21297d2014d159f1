package repository

import (
	"context"
	"errors"
	"time"

	"creditpay/internal/model"

	"gorm.io/gorm"
)

var (
	ErrOrderNotFound = errors.New("订单不存在")
)

type OrderRepository struct {
	db *gorm.DB
}

func NewOrderRepository(db *gorm.DB) *OrderRepository {
	return &OrderRepository{db: db}
}

func (r *OrderRepository) Create(ctx context.Context, tx *gorm.DB, order *model.Order) error {
	if tx == nil {
		tx = r.db
	}
	return tx.WithContext(ctx).Create(order).Error
}

func (r *OrderRepository) GetByID(ctx context.Context, orderID int64) (*model.Order, error) {
	var order model.Order
	err := r.db.WithContext(ctx).Where("id = ?", orderID).First(&order).Error
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, ErrOrderNotFound
		}
		return nil, err
	}
	return &order, nil
}

// GetByUserAndContent 查询用户对某内容的订单，不存在时返回 nil
func (r *OrderRepository) GetByUserAndContent(ctx context.Context, userID, contentID int64) (*model.Order, error) {
	var order model.Order
	err := r.db.WithContext(ctx).Where("user_id = ? AND content_id = ?", userID, contentID).First(&order).Error
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, nil
		}
		return nil, err
	}
	return &order, nil
}

func (r *OrderRepository) ListByUserID(ctx context.Context, userID int64, page, pageSize int) ([]*model.Order, int64, error) {
	var orders []*model.Order
	var total int64

	query := r.db.WithContext(ctx).Model(&model.Order{}).Where("user_id = ?", userID)

	err := query.Count(&total).Error
	if err != nil {
		return nil, 0, err
	}

	err = query.
		Order("created_at DESC").
		Offset((page - 1) * pageSize).
		Limit(pageSize).
		Find(&orders).Error

	return orders, total, err
}

// OrderAggregate 结算聚合行：一个 (创作者, 内容) 在统计窗口内的总消耗
type OrderAggregate struct {
	CreatorID   int64 `gorm:"column:creator_id"`
	ContentID   int64 `gorm:"column:content_id"`
	GrossAmount int64 `gorm:"column:gross_amount"`
}

// AggregateUnsettled 聚合统计窗口内全部未结算订单
// 按 (创作者, 内容) 分组求和，一次查询全量物化
// 已知的规模上限：窗口内聚合行过多时应改为分页读取，分片写入的契约不变
func (r *OrderRepository) AggregateUnsettled(ctx context.Context, from, to time.Time) ([]*OrderAggregate, error) {
	var rows []*OrderAggregate
	err := r.db.WithContext(ctx).
		Table("purchase_order o").
		Select("c.creator_id AS creator_id, o.content_id AS content_id, SUM(o.total_credit_used) AS gross_amount").
		Joins("JOIN content c ON c.id = o.content_id").
		Where("o.status = ? AND o.settled = ? AND o.created_at >= ? AND o.created_at < ?",
			model.OrderStatusSuccess, false, from, to).
		Group("c.creator_id, o.content_id").
		Scan(&rows).Error
	return rows, err
}

// MarkSettled 批量把窗口内的成功订单标记为已结算
func (r *OrderRepository) MarkSettled(ctx context.Context, tx *gorm.DB, from, to time.Time) (int64, error) {
	if tx == nil {
		tx = r.db
	}
	result := tx.WithContext(ctx).
		Model(&model.Order{}).
		Where("status = ? AND settled = ? AND created_at >= ? AND created_at < ?",
			model.OrderStatusSuccess, false, from, to).
		Update("settled", true)
	return result.RowsAffected, result.Error
}

// WindowStats 统计窗口内订单量和额度消耗
type WindowStats struct {
	OrderCount      int64 `gorm:"column:order_count"`
	GrossCreditUsed int64 `gorm:"column:gross_credit_used"`
	FreeCreditUsed  int64 `gorm:"column:free_credit_used"`
	PaidCreditUsed  int64 `gorm:"column:paid_credit_used"`
}

func (r *OrderRepository) StatsForWindow(ctx context.Context, from, to time.Time) (*WindowStats, error) {
	var stats WindowStats
	err := r.db.WithContext(ctx).
		Model(&model.Order{}).
		Select("COUNT(*) AS order_count, "+
			"COALESCE(SUM(total_credit_used), 0) AS gross_credit_used, "+
			"COALESCE(SUM(used_free_credit), 0) AS free_credit_used, "+
			"COALESCE(SUM(used_paid_credit), 0) AS paid_credit_used").
		Where("status = ? AND created_at >= ? AND created_at < ?", model.OrderStatusSuccess, from, to).
		Scan(&stats).Error
	return &stats, err
}
