package service

import (
	"context"
	"fmt"
	"testing"
	"time"

	"creditpay/internal/config"
	"creditpay/internal/gateway"
	"creditpay/internal/model"

	"gorm.io/driver/sqlite"
	"gorm.io/gorm"
	"gorm.io/gorm/logger"
)

// newTestDB 每个测试一个独立的内存库，结构与生产迁移完全一致
func newTestDB(t *testing.T) *gorm.DB {
	t.Helper()

	dsn := fmt.Sprintf("file:%s?mode=memory&cache=shared", t.Name())
	db, err := gorm.Open(sqlite.Open(dsn), &gorm.Config{
		Logger:         logger.Default.LogMode(logger.Silent),
		TranslateError: true,
	})
	if err != nil {
		t.Fatalf("打开测试数据库失败: %v", err)
	}

	err = db.AutoMigrate(
		&model.Credit{},
		&model.CreditHistory{},
		&model.UserBalance{},
		&model.Payment{},
		&model.Order{},
		&model.Creator{},
		&model.Content{},
		&model.SettlementRun{},
		&model.Settlement{},
		&model.Withdrawal{},
		&model.DailyStatistics{},
		&model.OutboxMessage{},
	)
	if err != nil {
		t.Fatalf("迁移表结构失败: %v", err)
	}

	return db
}

func newTestConfig() *config.Config {
	return &config.Config{
		Kafka: config.KafkaConfig{
			Topic: config.KafkaTopicConfig{
				PaymentResult:    "payment-result",
				WithdrawalResult: "withdrawal-result",
				SettlementResult: "settlement-result",
			},
		},
		Business: config.BusinessConfig{
			CreditExchangeRate:   10,
			SettlementFeeRate:    0.10,
			SettlementChunkSize:  100,
			RefundWindowDays:     7,
			FreeCreditExpiryDays: 30,
			MaxRetryCount:        3,
		},
	}
}

// fakeGateway 可编程的网关替身
type fakeGateway struct {
	confirmFn func(ctx context.Context, paymentKey, externalOrderID string, amount int64) (*gateway.ConfirmResult, error)
	cancelFn  func(ctx context.Context, paymentKey, reason string) (*gateway.CancelResult, error)
}

func (g *fakeGateway) Confirm(ctx context.Context, paymentKey, externalOrderID string, amount int64) (*gateway.ConfirmResult, error) {
	if g.confirmFn != nil {
		return g.confirmFn(ctx, paymentKey, externalOrderID, amount)
	}
	return &gateway.ConfirmResult{Status: "DONE", TotalAmount: amount, ApprovedAt: time.Now()}, nil
}

func (g *fakeGateway) Cancel(ctx context.Context, paymentKey, reason string) (*gateway.CancelResult, error) {
	if g.cancelFn != nil {
		return g.cancelFn(ctx, paymentKey, reason)
	}
	return &gateway.CancelResult{Status: "CANCELED"}, nil
}

func timePtr(t time.Time) *time.Time {
	return &t
}
