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

func TestGrantValidation(t *testing.T) {
	db := newTestDB(t)
	svc := NewCreditService(db)
	ctx := context.Background()

	_, err := svc.Grant(ctx, 1, model.CreditKindFree, 0, nil, nil)
	assert.ErrorIs(t, err, ErrInvalidAmount)

	_, err = svc.Grant(ctx, 1, model.CreditKindFree, -100, nil, nil)
	assert.ErrorIs(t, err, ErrInvalidAmount)

	_, err = svc.Grant(ctx, 1, "BONUS", 100, nil, nil)
	assert.ErrorIs(t, err, ErrInvalidCreditKind)

	// PAID 额度不允许带过期时间
	expiry := time.Now().AddDate(0, 0, 30)
	_, err = svc.Grant(ctx, 1, model.CreditKindPaid, 100, &expiry, nil)
	assert.ErrorIs(t, err, ErrInvalidExpiry)
}

func TestGrantWritesLedgerAndSnapshot(t *testing.T) {
	db := newTestDB(t)
	svc := NewCreditService(db)
	ctx := context.Background()

	expiry := time.Now().AddDate(0, 0, 30)
	credit, err := svc.Grant(ctx, 1, model.CreditKindFree, 500, &expiry, nil)
	require.NoError(t, err)
	assert.Equal(t, int64(500), credit.Amount)

	_, err = svc.Grant(ctx, 1, model.CreditKindPaid, 300, nil, nil)
	require.NoError(t, err)

	balance, err := svc.GetBalance(ctx, 1)
	require.NoError(t, err)
	assert.Equal(t, int64(500), balance.FreeCredit)
	assert.Equal(t, int64(300), balance.PaidCredit)

	histories, total, err := svc.ListHistory(ctx, 1, 1, 10)
	require.NoError(t, err)
	assert.Equal(t, int64(2), total)
	for _, h := range histories {
		assert.Equal(t, model.CreditReasonCharge, h.Reason)
		assert.Greater(t, h.Delta, int64(0))
	}
}

func TestConsumeOrder(t *testing.T) {
	db := newTestDB(t)
	svc := NewCreditService(db)
	ctx := context.Background()

	// 先发 PAID 再发 FREE，消耗时 FREE 必须先被用掉
	_, err := svc.Grant(ctx, 1, model.CreditKindPaid, 300, nil, nil)
	require.NoError(t, err)
	expiry := time.Now().AddDate(0, 0, 7)
	_, err = svc.Grant(ctx, 1, model.CreditKindFree, 500, &expiry, nil)
	require.NoError(t, err)

	var result *ConsumeResult
	err = db.Transaction(func(tx *gorm.DB) error {
		var err error
		result, err = svc.ConsumeInTx(ctx, tx, 1, 600)
		return err
	})
	require.NoError(t, err)

	assert.Equal(t, int64(500), result.UsedFree)
	assert.Equal(t, int64(100), result.UsedPaid)
	assert.Equal(t, int64(600), result.Total())

	balance, err := svc.GetBalance(ctx, 1)
	require.NoError(t, err)
	assert.Equal(t, int64(0), balance.FreeCredit)
	assert.Equal(t, int64(200), balance.PaidCredit)
}

func TestConsumeFreeExpiryOrder(t *testing.T) {
	db := newTestDB(t)
	svc := NewCreditService(db)
	ctx := context.Background()

	// 两笔 FREE，临近过期的先消耗
	farExpiry := time.Now().AddDate(0, 0, 30)
	nearExpiry := time.Now().AddDate(0, 0, 3)
	far, err := svc.Grant(ctx, 1, model.CreditKindFree, 100, &farExpiry, nil)
	require.NoError(t, err)
	near, err := svc.Grant(ctx, 1, model.CreditKindFree, 100, &nearExpiry, nil)
	require.NoError(t, err)

	err = db.Transaction(func(tx *gorm.DB) error {
		_, err := svc.ConsumeInTx(ctx, tx, 1, 150)
		return err
	})
	require.NoError(t, err)

	var nearRow, farRow model.Credit
	require.NoError(t, db.First(&nearRow, near.ID).Error)
	require.NoError(t, db.First(&farRow, far.ID).Error)
	assert.Equal(t, int64(0), nearRow.Amount)
	assert.Equal(t, int64(50), farRow.Amount)
}

func TestConsumePaidOldestFirst(t *testing.T) {
	db := newTestDB(t)
	svc := NewCreditService(db)
	ctx := context.Background()

	// 两笔 PAID，发放早的先消耗
	older := &model.Credit{
		UserID:    1,
		Kind:      model.CreditKindPaid,
		Amount:    100,
		GrantedAt: time.Now().Add(-48 * time.Hour),
	}
	require.NoError(t, db.Create(older).Error)
	newer := &model.Credit{
		UserID:    1,
		Kind:      model.CreditKindPaid,
		Amount:    100,
		GrantedAt: time.Now().Add(-time.Hour),
	}
	require.NoError(t, db.Create(newer).Error)

	err := db.Transaction(func(tx *gorm.DB) error {
		_, err := svc.ConsumeInTx(ctx, tx, 1, 150)
		return err
	})
	require.NoError(t, err)

	var olderRow, newerRow model.Credit
	require.NoError(t, db.First(&olderRow, older.ID).Error)
	require.NoError(t, db.First(&newerRow, newer.ID).Error)
	assert.Equal(t, int64(0), olderRow.Amount)
	assert.Equal(t, int64(50), newerRow.Amount)
}

func TestConsumeInsufficientNoSideEffect(t *testing.T) {
	db := newTestDB(t)
	svc := NewCreditService(db)
	ctx := context.Background()

	expiry := time.Now().AddDate(0, 0, 30)
	credit, err := svc.Grant(ctx, 1, model.CreditKindFree, 100, &expiry, nil)
	require.NoError(t, err)

	err = db.Transaction(func(tx *gorm.DB) error {
		_, err := svc.ConsumeInTx(ctx, tx, 1, 200)
		return err
	})
	assert.ErrorIs(t, err, ErrInsufficientCredit)

	// 失败的消耗不得留下任何扣减
	var row model.Credit
	require.NoError(t, db.First(&row, credit.ID).Error)
	assert.Equal(t, int64(100), row.Amount)

	balance, err := svc.GetBalance(ctx, 1)
	require.NoError(t, err)
	assert.Equal(t, int64(100), balance.FreeCredit)
}

func TestConsumeSkipsExpiredCredit(t *testing.T) {
	db := newTestDB(t)
	svc := NewCreditService(db)
	ctx := context.Background()

	// 已过期但尚未被清扫的 FREE 额度不参与消耗
	expired := &model.Credit{
		UserID:    1,
		Kind:      model.CreditKindFree,
		Amount:    500,
		ExpiresAt: timePtr(time.Now().Add(-time.Hour)),
	}
	require.NoError(t, db.Create(expired).Error)

	_, err := svc.Grant(ctx, 1, model.CreditKindPaid, 100, nil, nil)
	require.NoError(t, err)

	err = db.Transaction(func(tx *gorm.DB) error {
		_, err := svc.ConsumeInTx(ctx, tx, 1, 200)
		return err
	})
	assert.ErrorIs(t, err, ErrInsufficientCredit)
}

func TestExpireSweep(t *testing.T) {
	db := newTestDB(t)
	svc := NewCreditService(db)
	ctx := context.Background()

	expiry := time.Now().Add(time.Hour)
	credit, err := svc.Grant(ctx, 1, model.CreditKindFree, 500, &expiry, nil)
	require.NoError(t, err)
	_, err = svc.Grant(ctx, 1, model.CreditKindPaid, 300, nil, nil)
	require.NoError(t, err)

	// 过期时间之后清扫
	swept, err := svc.Expire(ctx, expiry.Add(time.Minute))
	require.NoError(t, err)
	assert.Equal(t, 1, swept)

	var row model.Credit
	require.NoError(t, db.First(&row, credit.ID).Error)
	assert.Equal(t, int64(0), row.Amount)

	balance, err := svc.GetBalance(ctx, 1)
	require.NoError(t, err)
	assert.Equal(t, int64(0), balance.FreeCredit)
	assert.Equal(t, int64(300), balance.PaidCredit)

	var history model.CreditHistory
	require.NoError(t, db.Where("reason = ?", model.CreditReasonExpire).First(&history).Error)
	assert.Equal(t, int64(-500), history.Delta)

	// 再次清扫没有新到期额度，返回 0
	swept, err = svc.Expire(ctx, expiry.Add(time.Minute))
	require.NoError(t, err)
	assert.Equal(t, 0, swept)
}

func TestGetBalanceUnknownUser(t *testing.T) {
	db := newTestDB(t)
	svc := NewCreditService(db)

	balance, err := svc.GetBalance(context.Background(), 999)
	require.NoError(t, err)
	assert.Equal(t, int64(0), balance.FreeCredit)
	assert.Equal(t, int64(0), balance.PaidCredit)
}

func TestRecalculateBalance(t *testing.T) {
	db := newTestDB(t)
	svc := NewCreditService(db)
	ctx := context.Background()

	expiry := time.Now().AddDate(0, 0, 30)
	_, err := svc.Grant(ctx, 1, model.CreditKindFree, 400, &expiry, nil)
	require.NoError(t, err)

	// 人为把快照改坏，重算后必须回到 credit 表的事实
	require.NoError(t, db.Model(&model.UserBalance{}).
		Where("user_id = ?", 1).
		Update("free_credit", 9999).Error)

	balance, err := svc.RecalculateBalance(ctx, 1)
	require.NoError(t, err)
	assert.Equal(t, int64(400), balance.FreeCredit)
	assert.Equal(t, int64(0), balance.PaidCredit)
}
