package service

import (
	"context"
	"testing"
	"time"

	"creditpay/internal/model"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"gorm.io/gorm"
)

// seedOrder 造一笔指定时间的成功订单
func seedOrder(t *testing.T, db *gorm.DB, userID, contentID, used int64, createdAt time.Time) {
	t.Helper()
	order := &model.Order{
		UserID:          userID,
		ContentID:       contentID,
		Status:          model.OrderStatusSuccess,
		UsedFreeCredit:  used,
		TotalCreditUsed: used,
		CreatedAt:       createdAt,
	}
	require.NoError(t, db.Create(order).Error)
}

func TestSettlementRun(t *testing.T) {
	db := newTestDB(t)
	cfg := newTestConfig()
	svc := NewSettlementService(db, cfg)
	ctx := context.Background()

	creator := &model.Creator{UserID: 100, Name: "웹툰 작가"}
	require.NoError(t, db.Create(creator).Error)
	content := &model.Content{CreatorID: creator.ID, Title: "연재 1화", Price: 500}
	require.NoError(t, db.Create(content).Error)

	from := time.Date(2026, 8, 31, 0, 0, 0, 0, time.Local)
	to := from.AddDate(0, 0, 1)
	seedOrder(t, db, 1, content.ID, 500, from.Add(2*time.Hour))
	seedOrder(t, db, 2, content.ID, 1500, from.Add(20*time.Hour))
	// 窗口之外的订单不参与
	seedOrder(t, db, 3, content.ID, 999, to.Add(time.Hour))

	summary, err := svc.Run(ctx, from, to)
	require.NoError(t, err)
	assert.Equal(t, 1, summary.AggregateCount)
	assert.Equal(t, 1, summary.SettledCount)
	assert.Equal(t, 0, summary.SkippedCount)
	assert.Equal(t, int64(2), summary.MarkedOrders)

	// 抽成 10%：gross 2000 -> net 1800
	var settlement model.Settlement
	require.NoError(t, db.Where("creator_id = ?", creator.ID).First(&settlement).Error)
	assert.Equal(t, int64(1800), settlement.NetAmount)
	assert.Equal(t, 10, settlement.FeeRate)

	var run model.SettlementRun
	require.NoError(t, db.Where("run_date = ?", "2026-08-31").First(&run).Error)
	assert.Equal(t, model.SettlementRunStatusCompleted, run.Status)

	// 窗口内订单被标记，窗口外的不动
	var settledCount int64
	require.NoError(t, db.Model(&model.Order{}).Where("settled = ?", true).Count(&settledCount).Error)
	assert.Equal(t, int64(2), settledCount)
}

func TestSettlementZeroFeeRate(t *testing.T) {
	db := newTestDB(t)
	cfg := newTestConfig()
	cfg.Business.SettlementFeeRate = 0
	svc := NewSettlementService(db, cfg)
	ctx := context.Background()

	creator := &model.Creator{UserID: 100, Name: "작가"}
	require.NoError(t, db.Create(creator).Error)
	content := &model.Content{CreatorID: creator.ID, Title: "연재", Price: 300}
	require.NoError(t, db.Create(content).Error)

	from := time.Date(2026, 8, 31, 0, 0, 0, 0, time.Local)
	seedOrder(t, db, 1, content.ID, 300, from.Add(time.Hour))

	_, err := svc.Run(ctx, from, from.AddDate(0, 0, 1))
	require.NoError(t, err)

	var settlement model.Settlement
	require.NoError(t, db.First(&settlement).Error)
	assert.Equal(t, int64(300), settlement.NetAmount)
	assert.Equal(t, 0, settlement.FeeRate)
}

func TestSettlementRerunNoop(t *testing.T) {
	db := newTestDB(t)
	svc := NewSettlementService(db, newTestConfig())
	ctx := context.Background()

	creator := &model.Creator{UserID: 100, Name: "작가"}
	require.NoError(t, db.Create(creator).Error)
	content := &model.Content{CreatorID: creator.ID, Title: "연재", Price: 500}
	require.NoError(t, db.Create(content).Error)

	from := time.Date(2026, 8, 31, 0, 0, 0, 0, time.Local)
	to := from.AddDate(0, 0, 1)
	seedOrder(t, db, 1, content.ID, 500, from.Add(time.Hour))

	first, err := svc.Run(ctx, from, to)
	require.NoError(t, err)
	assert.False(t, first.AlreadyDone)

	// 同一窗口重跑直接返回，不产生新结算单
	second, err := svc.Run(ctx, from, to)
	require.NoError(t, err)
	assert.True(t, second.AlreadyDone)
	assert.Equal(t, first.RunID, second.RunID)

	var count int64
	require.NoError(t, db.Model(&model.Settlement{}).Count(&count).Error)
	assert.Equal(t, int64(1), count)
}

func TestSettlementResumeSkipsWritten(t *testing.T) {
	db := newTestDB(t)
	svc := NewSettlementService(db, newTestConfig())
	ctx := context.Background()

	creator := &model.Creator{UserID: 100, Name: "작가"}
	require.NoError(t, db.Create(creator).Error)
	content := &model.Content{CreatorID: creator.ID, Title: "연재", Price: 500}
	require.NoError(t, db.Create(content).Error)

	from := time.Date(2026, 8, 31, 0, 0, 0, 0, time.Local)
	to := from.AddDate(0, 0, 1)
	seedOrder(t, db, 1, content.ID, 1000, from.Add(time.Hour))

	// 模拟中断的批次：run 还是 RUNNING，该聚合行的结算单已经写入
	run := &model.SettlementRun{
		RunDate: "2026-08-31",
		Status:  model.SettlementRunStatusRunning,
		FeeRate: 10,
	}
	require.NoError(t, db.Create(run).Error)
	require.NoError(t, db.Create(&model.Settlement{
		RunID:     run.ID,
		CreatorID: creator.ID,
		ContentID: content.ID,
		NetAmount: 900,
		FeeRate:   10,
		SettledAt: time.Now(),
	}).Error)

	summary, err := svc.Run(ctx, from, to)
	require.NoError(t, err)
	assert.Equal(t, run.ID, summary.RunID)
	assert.Equal(t, 0, summary.SettledCount)

	// 续跑不产生重复结算单
	var count int64
	require.NoError(t, db.Model(&model.Settlement{}).Count(&count).Error)
	assert.Equal(t, int64(1), count)

	var reloaded model.SettlementRun
	require.NoError(t, db.First(&reloaded, run.ID).Error)
	assert.Equal(t, model.SettlementRunStatusCompleted, reloaded.Status)
}

func TestSettlementSkipsMissingCreator(t *testing.T) {
	db := newTestDB(t)
	svc := NewSettlementService(db, newTestConfig())
	ctx := context.Background()

	// 内容指向一个不存在的创作者
	content := &model.Content{CreatorID: 999, Title: "고아 콘텐츠", Price: 500}
	require.NoError(t, db.Create(content).Error)

	from := time.Date(2026, 8, 31, 0, 0, 0, 0, time.Local)
	seedOrder(t, db, 1, content.ID, 500, from.Add(time.Hour))

	summary, err := svc.Run(ctx, from, from.AddDate(0, 0, 1))
	require.NoError(t, err)
	assert.Equal(t, 1, summary.AggregateCount)
	assert.Equal(t, 0, summary.SettledCount)
	assert.Equal(t, 1, summary.SkippedCount)

	var count int64
	require.NoError(t, db.Model(&model.Settlement{}).Count(&count).Error)
	assert.Equal(t, int64(0), count)
}

func TestSettlementChunking(t *testing.T) {
	db := newTestDB(t)
	cfg := newTestConfig()
	cfg.Business.SettlementChunkSize = 2
	svc := NewSettlementService(db, cfg)
	ctx := context.Background()

	creator := &model.Creator{UserID: 100, Name: "작가"}
	require.NoError(t, db.Create(creator).Error)

	from := time.Date(2026, 8, 31, 0, 0, 0, 0, time.Local)
	for i := 0; i < 5; i++ {
		content := &model.Content{CreatorID: creator.ID, Title: "연재", Price: 100}
		require.NoError(t, db.Create(content).Error)
		seedOrder(t, db, int64(i+1), content.ID, 100, from.Add(time.Hour))
	}

	summary, err := svc.Run(ctx, from, from.AddDate(0, 0, 1))
	require.NoError(t, err)
	assert.Equal(t, 5, summary.AggregateCount)
	assert.Equal(t, 5, summary.SettledCount)

	var count int64
	require.NoError(t, db.Model(&model.Settlement{}).Count(&count).Error)
	assert.Equal(t, int64(5), count)
}
