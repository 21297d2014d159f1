package service

import (
	"context"
	"testing"
	"time"

	"creditpay/internal/model"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestStatisticsRun(t *testing.T) {
	db := newTestDB(t)
	svc := NewStatisticsService(db)
	ctx := context.Background()

	from := time.Date(2026, 8, 31, 0, 0, 0, 0, time.Local)
	to := from.AddDate(0, 0, 1)

	require.NoError(t, db.Create(&model.Order{
		UserID: 1, ContentID: 1, Status: model.OrderStatusSuccess,
		UsedFreeCredit: 300, UsedPaidCredit: 200, TotalCreditUsed: 500,
		CreatedAt: from.Add(time.Hour),
	}).Error)
	require.NoError(t, db.Create(&model.Order{
		UserID: 2, ContentID: 1, Status: model.OrderStatusSuccess,
		UsedFreeCredit: 100, TotalCreditUsed: 100,
		CreatedAt: from.Add(2 * time.Hour),
	}).Error)
	// 窗口外的订单不计入
	require.NoError(t, db.Create(&model.Order{
		UserID: 3, ContentID: 1, Status: model.OrderStatusSuccess,
		TotalCreditUsed: 999, CreatedAt: to.Add(time.Hour),
	}).Error)

	record, err := svc.Run(ctx, from, to)
	require.NoError(t, err)
	assert.Equal(t, "2026-08-31", record.StatDate)
	assert.Equal(t, int64(2), record.OrderCount)
	assert.Equal(t, int64(600), record.GrossCreditUsed)
	assert.Equal(t, int64(400), record.FreeCreditUsed)
	assert.Equal(t, int64(200), record.PaidCreditUsed)
}

func TestStatisticsRerunOverwrites(t *testing.T) {
	db := newTestDB(t)
	svc := NewStatisticsService(db)
	ctx := context.Background()

	from := time.Date(2026, 8, 31, 0, 0, 0, 0, time.Local)
	to := from.AddDate(0, 0, 1)

	_, err := svc.Run(ctx, from, to)
	require.NoError(t, err)

	require.NoError(t, db.Create(&model.Order{
		UserID: 1, ContentID: 1, Status: model.OrderStatusSuccess,
		TotalCreditUsed: 500, UsedPaidCredit: 500,
		CreatedAt: from.Add(time.Hour),
	}).Error)

	// 重跑同一天覆盖而不是追加
	record, err := svc.Run(ctx, from, to)
	require.NoError(t, err)
	assert.Equal(t, int64(1), record.OrderCount)

	var count int64
	require.NoError(t, db.Model(&model.DailyStatistics{}).Count(&count).Error)
	assert.Equal(t, int64(1), count)

	stored, err := svc.GetByDate(ctx, "2026-08-31")
	require.NoError(t, err)
	assert.Equal(t, int64(500), stored.GrossCreditUsed)
}

func TestStatisticsGetByDateEmpty(t *testing.T) {
	db := newTestDB(t)
	svc := NewStatisticsService(db)

	record, err := svc.GetByDate(context.Background(), "2026-01-01")
	require.NoError(t, err)
	assert.Equal(t, int64(0), record.OrderCount)
}
