package service

import (
	"context"
	"testing"
	"time"

	"creditpay/internal/infrastructure/lock"
	"creditpay/internal/model"
	"creditpay/internal/repository"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestPurchaseSplitsCredit(t *testing.T) {
	db := newTestDB(t)
	creditSvc := NewCreditService(db)
	svc := NewPurchaseService(db, lock.NewLocalFactory())
	ctx := context.Background()

	require.NoError(t, db.Create(&model.Creator{UserID: 100, Name: "작가"}).Error)
	content := &model.Content{CreatorID: 1, Title: "연재 1화", Price: 600}
	require.NoError(t, db.Create(content).Error)

	expiry := time.Now().AddDate(0, 0, 7)
	_, err := creditSvc.Grant(ctx, 1, model.CreditKindFree, 500, &expiry, nil)
	require.NoError(t, err)
	_, err = creditSvc.Grant(ctx, 1, model.CreditKindPaid, 300, nil, nil)
	require.NoError(t, err)

	result, err := svc.Purchase(ctx, 1, content.ID)
	require.NoError(t, err)
	assert.Equal(t, int64(600), result.TotalCreditUsed)
	assert.Equal(t, int64(500), result.UsedFreeCredit)
	assert.Equal(t, int64(100), result.UsedPaidCredit)

	order, err := svc.GetOrder(ctx, result.OrderID)
	require.NoError(t, err)
	assert.Equal(t, model.OrderStatusSuccess, order.Status)
	assert.False(t, order.Settled)

	// 用到的每种额度各一条 PURCHASE 流水
	var histories []model.CreditHistory
	require.NoError(t, db.Where("reason = ? AND order_id = ?", model.CreditReasonPurchase, result.OrderID).
		Find(&histories).Error)
	require.Len(t, histories, 2)
	for _, h := range histories {
		assert.Less(t, h.Delta, int64(0))
	}
}

func TestPurchaseDuplicateRejected(t *testing.T) {
	db := newTestDB(t)
	creditSvc := NewCreditService(db)
	svc := NewPurchaseService(db, lock.NewLocalFactory())
	ctx := context.Background()

	content := &model.Content{CreatorID: 1, Title: "연재 2화", Price: 100}
	require.NoError(t, db.Create(content).Error)

	expiry := time.Now().AddDate(0, 0, 7)
	_, err := creditSvc.Grant(ctx, 1, model.CreditKindFree, 500, &expiry, nil)
	require.NoError(t, err)

	_, err = svc.Purchase(ctx, 1, content.ID)
	require.NoError(t, err)

	_, err = svc.Purchase(ctx, 1, content.ID)
	assert.ErrorIs(t, err, ErrDuplicatePurchase)

	// 重复购买不再扣额度
	balance, err := creditSvc.GetBalance(ctx, 1)
	require.NoError(t, err)
	assert.Equal(t, int64(400), balance.FreeCredit)
}

func TestPurchaseInsufficientCredit(t *testing.T) {
	db := newTestDB(t)
	creditSvc := NewCreditService(db)
	svc := NewPurchaseService(db, lock.NewLocalFactory())
	ctx := context.Background()

	content := &model.Content{CreatorID: 1, Title: "연재 3화", Price: 1000}
	require.NoError(t, db.Create(content).Error)

	expiry := time.Now().AddDate(0, 0, 7)
	_, err := creditSvc.Grant(ctx, 1, model.CreditKindFree, 500, &expiry, nil)
	require.NoError(t, err)

	_, err = svc.Purchase(ctx, 1, content.ID)
	assert.ErrorIs(t, err, ErrInsufficientCredit)

	// 失败的购买不产生订单
	var orderCount int64
	require.NoError(t, db.Model(&model.Order{}).Count(&orderCount).Error)
	assert.Equal(t, int64(0), orderCount)

	balance, err := creditSvc.GetBalance(ctx, 1)
	require.NoError(t, err)
	assert.Equal(t, int64(500), balance.FreeCredit)
}

func TestPurchaseFreeContent(t *testing.T) {
	db := newTestDB(t)
	svc := NewPurchaseService(db, lock.NewLocalFactory())
	ctx := context.Background()

	content := &model.Content{CreatorID: 1, Title: "무료 공개분", Price: 0}
	require.NoError(t, db.Create(content).Error)

	// 免费内容零余额也能成单
	result, err := svc.Purchase(ctx, 1, content.ID)
	require.NoError(t, err)
	assert.Equal(t, int64(0), result.TotalCreditUsed)

	order, err := svc.GetOrder(ctx, result.OrderID)
	require.NoError(t, err)
	assert.Equal(t, model.OrderStatusSuccess, order.Status)

	// 不产生流水
	var historyCount int64
	require.NoError(t, db.Model(&model.CreditHistory{}).
		Where("reason = ?", model.CreditReasonPurchase).
		Count(&historyCount).Error)
	assert.Equal(t, int64(0), historyCount)

	// 免费内容同样受一人一单约束
	_, err = svc.Purchase(ctx, 1, content.ID)
	assert.ErrorIs(t, err, ErrDuplicatePurchase)
}

func TestPurchaseFreeContentInsertConflict(t *testing.T) {
	db := newTestDB(t)
	svc := NewPurchaseService(db, lock.NewLocalFactory())
	ctx := context.Background()

	content := &model.Content{CreatorID: 1, Title: "무료 공개분 2", Price: 0}
	require.NoError(t, db.Create(content).Error)

	// 免费单不加锁，另一笔请求抢先落库时唯一索引冲突也要按重复购买返回
	rival := &model.Order{UserID: 1, ContentID: content.ID, Status: model.OrderStatusSuccess}
	require.NoError(t, db.Create(rival).Error)

	_, err := svc.Purchase(ctx, 1, content.ID)
	assert.ErrorIs(t, err, ErrDuplicatePurchase)

	var orderCount int64
	require.NoError(t, db.Model(&model.Order{}).Count(&orderCount).Error)
	assert.Equal(t, int64(1), orderCount)
}

func TestPurchaseUnknownContent(t *testing.T) {
	db := newTestDB(t)
	svc := NewPurchaseService(db, lock.NewLocalFactory())

	_, err := svc.Purchase(context.Background(), 1, 999)
	assert.ErrorIs(t, err, repository.ErrContentNotFound)
}
