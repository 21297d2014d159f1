package service

import (
	"context"
	"encoding/json"
	"fmt"
	"log"
	"time"

	"creditpay/internal/config"
	"creditpay/internal/infrastructure/lock"
	"creditpay/internal/model"
	"creditpay/internal/repository"

	"github.com/google/uuid"
	"gorm.io/gorm"
)

// WithdrawalService 创作者提现
//
// 同步决策模型：请求先以 REQ 落库，同一事务内重算可提现余额并
// 比较交换到 SUC 或 REJ，对外只暴露终态。
// 可提现余额是创作者维度的共享量，决策期间按创作者加锁，
// 防止两笔并发提现都通过余额校验
type WithdrawalService struct {
	db             *gorm.DB
	locks          lock.Factory
	cfg            *config.Config
	withdrawalRepo *repository.WithdrawalRepository
	settlementRepo *repository.SettlementRepository
	creatorRepo    *repository.CreatorRepository
	outboxRepo     *repository.OutboxRepository
}

func NewWithdrawalService(db *gorm.DB, locks lock.Factory, cfg *config.Config) *WithdrawalService {
	return &WithdrawalService{
		db:             db,
		locks:          locks,
		cfg:            cfg,
		withdrawalRepo: repository.NewWithdrawalRepository(db),
		settlementRepo: repository.NewSettlementRepository(db),
		creatorRepo:    repository.NewCreatorRepository(db),
		outboxRepo:     repository.NewOutboxRepository(db),
	}
}

// RequestAndProcess 受理并同步决策一笔提现
func (s *WithdrawalService) RequestAndProcess(ctx context.Context, loginUserID, creatorID, amount int64) (*model.Withdrawal, error) {
	if amount < 1 {
		return nil, ErrInvalidAmount
	}

	creator, err := s.creatorRepo.GetByID(ctx, creatorID)
	if err != nil {
		return nil, err
	}
	if creator.UserID != loginUserID {
		return nil, ErrNotCreatorOwner
	}

	withdrawLock := s.locks.WithdrawLock(creatorID, uuid.NewString())
	if err := withdrawLock.Lock(ctx, 100*time.Millisecond, 30); err != nil {
		return nil, fmt.Errorf("系统繁忙，请稍后重试: %w", err)
	}
	defer withdrawLock.Unlock(ctx)

	withdrawal := &model.Withdrawal{
		CreatorID: creatorID,
		Amount:    amount,
		Status:    model.WithdrawalStatusRequested,
	}

	err = s.db.Transaction(func(tx *gorm.DB) error {
		if err := s.withdrawalRepo.Create(ctx, tx, withdrawal); err != nil {
			return fmt.Errorf("创建提现单失败: %w", err)
		}

		// 决策用的余额必须在事务内重算，不能用展示接口的估算值
		available, err := s.availableInTx(ctx, tx, creatorID)
		if err != nil {
			return err
		}

		now := time.Now()
		if amount <= available {
			if err := s.withdrawalRepo.Resolve(ctx, tx, withdrawal.ID, model.WithdrawalStatusSucceeded, "", now); err != nil {
				return fmt.Errorf("提现单决策失败: %w", err)
			}
			withdrawal.Status = model.WithdrawalStatusSucceeded
		} else {
			reason := fmt.Sprintf("可提现余额不足: 可用=%d, 申请=%d", available, amount)
			if err := s.withdrawalRepo.Resolve(ctx, tx, withdrawal.ID, model.WithdrawalStatusRejected, reason, now); err != nil {
				return fmt.Errorf("提现单决策失败: %w", err)
			}
			withdrawal.Status = model.WithdrawalStatusRejected
			withdrawal.FailureReason = reason
		}
		withdrawal.ProcessedAt = &now

		msgPayload := map[string]interface{}{
			"withdrawal_id": withdrawal.ID,
			"creator_id":    creatorID,
			"amount":        amount,
			"status":        withdrawal.Status,
			"processed_at":  now.Format(time.RFC3339),
		}
		payloadBytes, _ := json.Marshal(msgPayload)

		outboxMsg := &model.OutboxMessage{
			MessageKey: fmt.Sprintf("withdrawal-%d", withdrawal.ID),
			Topic:      s.cfg.Kafka.Topic.WithdrawalResult,
			Payload:    string(payloadBytes),
			Status:     model.OutboxStatusPending,
		}
		return s.outboxRepo.Create(ctx, tx, outboxMsg)
	})
	if err != nil {
		return nil, err
	}

	log.Printf("提现决策完成: withdrawalID=%d, creatorID=%d, amount=%d, status=%s",
		withdrawal.ID, creatorID, amount, withdrawal.Status)

	return withdrawal, nil
}

// GetAvailableBalance 查询可提现余额
// 展示用的瞬时值，不加锁，可能与并发的结算/提现有出入；
// 决策永远走事务内的重算，不信这个值
func (s *WithdrawalService) GetAvailableBalance(ctx context.Context, creatorID int64) (int64, error) {
	if _, err := s.creatorRepo.GetByID(ctx, creatorID); err != nil {
		return 0, err
	}
	return s.availableInTx(ctx, nil, creatorID)
}

// availableInTx 可提现余额 = 结算净额合计 - 历史成功提现合计
func (s *WithdrawalService) availableInTx(ctx context.Context, tx *gorm.DB, creatorID int64) (int64, error) {
	settled, err := s.settlementRepo.SumNetByCreator(ctx, tx, creatorID)
	if err != nil {
		return 0, fmt.Errorf("汇总结算净额失败: %w", err)
	}
	withdrawn, err := s.withdrawalRepo.SumSucceededByCreator(ctx, tx, creatorID)
	if err != nil {
		return 0, fmt.Errorf("汇总已提现金额失败: %w", err)
	}
	return settled - withdrawn, nil
}

// ListByCreator 分页查询创作者提现记录，month 格式 yyyy-MM，可为空
func (s *WithdrawalService) ListByCreator(ctx context.Context, creatorID int64, month string, page, pageSize int) ([]*model.Withdrawal, int64, error) {
	if _, err := s.creatorRepo.GetByID(ctx, creatorID); err != nil {
		return nil, 0, err
	}
	return s.withdrawalRepo.ListByCreator(ctx, creatorID, month, page, pageSize)
}
