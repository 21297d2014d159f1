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
	"gorm.io/gorm"
)

// seedCreatorEarnings 造一个创作者和指定净额的结算单
func seedCreatorEarnings(t *testing.T, db *gorm.DB, userID int64, netAmounts ...int64) *model.Creator {
	t.Helper()

	creator := &model.Creator{UserID: userID, Name: "웹툰 작가"}
	require.NoError(t, db.Create(creator).Error)

	run := &model.SettlementRun{
		RunDate: "2026-08-31",
		Status:  model.SettlementRunStatusCompleted,
		FeeRate: 10,
	}
	require.NoError(t, db.Create(run).Error)

	for i, net := range netAmounts {
		require.NoError(t, db.Create(&model.Settlement{
			RunID:     run.ID,
			CreatorID: creator.ID,
			ContentID: int64(i + 1),
			NetAmount: net,
			FeeRate:   10,
			SettledAt: time.Now(),
		}).Error)
	}
	return creator
}

func TestWithdrawalSucceeds(t *testing.T) {
	db := newTestDB(t)
	svc := NewWithdrawalService(db, lock.NewLocalFactory(), newTestConfig())
	ctx := context.Background()

	creator := seedCreatorEarnings(t, db, 100, 3000, 2000)

	// 已成功提现 2000，可用 = 5000 - 2000 = 3000
	require.NoError(t, db.Create(&model.Withdrawal{
		CreatorID: creator.ID,
		Amount:    2000,
		Status:    model.WithdrawalStatusSucceeded,
	}).Error)

	withdrawal, err := svc.RequestAndProcess(ctx, 100, creator.ID, 2500)
	require.NoError(t, err)
	assert.Equal(t, model.WithdrawalStatusSucceeded, withdrawal.Status)
	require.NotNil(t, withdrawal.ProcessedAt)

	available, err := svc.GetAvailableBalance(ctx, creator.ID)
	require.NoError(t, err)
	assert.Equal(t, int64(500), available)
}

func TestWithdrawalRejectedInsufficient(t *testing.T) {
	db := newTestDB(t)
	svc := NewWithdrawalService(db, lock.NewLocalFactory(), newTestConfig())
	ctx := context.Background()

	creator := seedCreatorEarnings(t, db, 100, 3000)

	withdrawal, err := svc.RequestAndProcess(ctx, 100, creator.ID, 4000)
	require.NoError(t, err)
	assert.Equal(t, model.WithdrawalStatusRejected, withdrawal.Status)
	assert.Contains(t, withdrawal.FailureReason, "3000")
	assert.Contains(t, withdrawal.FailureReason, "4000")

	// 被拒的申请不影响可用余额
	available, err := svc.GetAvailableBalance(ctx, creator.ID)
	require.NoError(t, err)
	assert.Equal(t, int64(3000), available)

	// 被拒的单也留档
	var count int64
	require.NoError(t, db.Model(&model.Withdrawal{}).
		Where("status = ?", model.WithdrawalStatusRejected).
		Count(&count).Error)
	assert.Equal(t, int64(1), count)
}

func TestWithdrawalExactBalance(t *testing.T) {
	db := newTestDB(t)
	svc := NewWithdrawalService(db, lock.NewLocalFactory(), newTestConfig())
	ctx := context.Background()

	creator := seedCreatorEarnings(t, db, 100, 3000)

	// 申请金额恰好等于可用余额，允许
	withdrawal, err := svc.RequestAndProcess(ctx, 100, creator.ID, 3000)
	require.NoError(t, err)
	assert.Equal(t, model.WithdrawalStatusSucceeded, withdrawal.Status)

	available, err := svc.GetAvailableBalance(ctx, creator.ID)
	require.NoError(t, err)
	assert.Equal(t, int64(0), available)

	// 余额归零后再申请被拒
	again, err := svc.RequestAndProcess(ctx, 100, creator.ID, 1)
	require.NoError(t, err)
	assert.Equal(t, model.WithdrawalStatusRejected, again.Status)
}

func TestWithdrawalValidation(t *testing.T) {
	db := newTestDB(t)
	svc := NewWithdrawalService(db, lock.NewLocalFactory(), newTestConfig())
	ctx := context.Background()

	creator := seedCreatorEarnings(t, db, 100, 3000)

	_, err := svc.RequestAndProcess(ctx, 100, creator.ID, 0)
	assert.ErrorIs(t, err, ErrInvalidAmount)

	_, err = svc.RequestAndProcess(ctx, 100, 999, 100)
	assert.ErrorIs(t, err, repository.ErrCreatorNotFound)

	// 非本人不得提现
	_, err = svc.RequestAndProcess(ctx, 200, creator.ID, 100)
	assert.ErrorIs(t, err, ErrNotCreatorOwner)
}

func TestWithdrawalWritesOutbox(t *testing.T) {
	db := newTestDB(t)
	svc := NewWithdrawalService(db, lock.NewLocalFactory(), newTestConfig())
	ctx := context.Background()

	creator := seedCreatorEarnings(t, db, 100, 3000)

	_, err := svc.RequestAndProcess(ctx, 100, creator.ID, 1000)
	require.NoError(t, err)

	var msg model.OutboxMessage
	require.NoError(t, db.First(&msg).Error)
	assert.Equal(t, "withdrawal-result", msg.Topic)
	assert.Equal(t, model.OutboxStatusPending, msg.Status)
	assert.Contains(t, msg.Payload, model.WithdrawalStatusSucceeded)
}

func TestWithdrawalListByMonth(t *testing.T) {
	db := newTestDB(t)
	svc := NewWithdrawalService(db, lock.NewLocalFactory(), newTestConfig())
	ctx := context.Background()

	creator := seedCreatorEarnings(t, db, 100, 3000)

	aug := time.Date(2026, 8, 15, 10, 0, 0, 0, time.Local)
	sep := time.Date(2026, 9, 1, 10, 0, 0, 0, time.Local)
	require.NoError(t, db.Create(&model.Withdrawal{
		CreatorID:   creator.ID,
		Amount:      100,
		Status:      model.WithdrawalStatusSucceeded,
		RequestedAt: aug,
	}).Error)
	require.NoError(t, db.Create(&model.Withdrawal{
		CreatorID:   creator.ID,
		Amount:      200,
		Status:      model.WithdrawalStatusSucceeded,
		RequestedAt: sep,
	}).Error)

	list, total, err := svc.ListByCreator(ctx, creator.ID, "2026-08", 1, 10)
	require.NoError(t, err)
	assert.Equal(t, int64(1), total)
	require.Len(t, list, 1)
	assert.Equal(t, int64(100), list[0].Amount)

	// 不带月份返回全部
	_, total, err = svc.ListByCreator(ctx, creator.ID, "", 1, 10)
	require.NoError(t, err)
	assert.Equal(t, int64(2), total)
}
