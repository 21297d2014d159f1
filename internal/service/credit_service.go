package service

import (
	"context"
	"fmt"
	"log"
	"sort"
	"time"

	"creditpay/internal/model"
	"creditpay/internal/repository"

	"gorm.io/gorm"
)

// CreditService 额度账本
// 发放、消耗、过期三个入口都以 credit 表为事实来源，
// user_balance 快照在同一事务内同步更新
type CreditService struct {
	db          *gorm.DB
	creditRepo  *repository.CreditRepository
	historyRepo *repository.HistoryRepository
	balanceRepo *repository.BalanceRepository
}

func NewCreditService(db *gorm.DB) *CreditService {
	return &CreditService{
		db:          db,
		creditRepo:  repository.NewCreditRepository(db),
		historyRepo: repository.NewHistoryRepository(db),
		balanceRepo: repository.NewBalanceRepository(db),
	}
}

// Grant 发放一笔额度，外部调用入口，自带事务
func (s *CreditService) Grant(ctx context.Context, userID int64, kind string, amount int64, expiresAt *time.Time, paymentID *int64) (*model.Credit, error) {
	var credit *model.Credit
	err := s.db.Transaction(func(tx *gorm.DB) error {
		var err error
		credit, err = s.GrantInTx(ctx, tx, userID, kind, amount, expiresAt, paymentID)
		return err
	})
	if err != nil {
		return nil, err
	}
	return credit, nil
}

// GrantInTx 在调用方事务内发放额度
// 一次发放 = 一行 credit + 一条 CHARGE 流水 + 快照增量，三者同事务
func (s *CreditService) GrantInTx(ctx context.Context, tx *gorm.DB, userID int64, kind string, amount int64, expiresAt *time.Time, paymentID *int64) (*model.Credit, error) {
	if amount <= 0 {
		return nil, ErrInvalidAmount
	}
	if kind != model.CreditKindFree && kind != model.CreditKindPaid {
		return nil, ErrInvalidCreditKind
	}
	if kind == model.CreditKindPaid && expiresAt != nil {
		return nil, ErrInvalidExpiry
	}

	credit := &model.Credit{
		UserID:    userID,
		Kind:      kind,
		Amount:    amount,
		ExpiresAt: expiresAt,
		PaymentID: paymentID,
	}
	if err := s.creditRepo.Create(ctx, tx, credit); err != nil {
		return nil, fmt.Errorf("创建额度失败: %w", err)
	}

	history := &model.CreditHistory{
		UserID:    userID,
		Kind:      kind,
		Delta:     amount,
		Reason:    model.CreditReasonCharge,
		PaymentID: paymentID,
	}
	if err := s.historyRepo.Create(ctx, tx, history); err != nil {
		return nil, fmt.Errorf("记录流水失败: %w", err)
	}

	if _, err := s.balanceRepo.GetOrCreate(ctx, tx, userID); err != nil {
		return nil, fmt.Errorf("初始化余额快照失败: %w", err)
	}
	freeDelta, paidDelta := int64(0), int64(0)
	if kind == model.CreditKindFree {
		freeDelta = amount
	} else {
		paidDelta = amount
	}
	if err := s.balanceRepo.Add(ctx, tx, userID, freeDelta, paidDelta); err != nil {
		return nil, fmt.Errorf("更新余额快照失败: %w", err)
	}

	return credit, nil
}

// ConsumeResult 消耗结果，按额度类型拆分
type ConsumeResult struct {
	UsedFree int64
	UsedPaid int64
}

func (r *ConsumeResult) Total() int64 {
	return r.UsedFree + r.UsedPaid
}

// ConsumeInTx 在调用方事务内消耗指定数额的额度
//
// 消耗顺序：先 FREE（临近过期的优先），FREE 用完再用 PAID（发放早的优先）。
// 先校验可用总额是否足够，不够直接失败，不会产生任何部分扣减；
// 校验通过后逐行做条件扣减，任何一行被并发改动都会让整个事务回滚
func (s *CreditService) ConsumeInTx(ctx context.Context, tx *gorm.DB, userID int64, required int64) (*ConsumeResult, error) {
	if required <= 0 {
		return nil, ErrInvalidAmount
	}

	now := time.Now()
	credits, err := s.creditRepo.GetUsable(ctx, tx, userID, now)
	if err != nil {
		return nil, fmt.Errorf("查询可用额度失败: %w", err)
	}

	var total int64
	for _, c := range credits {
		total += c.Amount
	}
	if total < required {
		return nil, ErrInsufficientCredit
	}

	sortForConsume(credits)

	result := &ConsumeResult{}
	remaining := required
	for _, c := range credits {
		if remaining == 0 {
			break
		}
		use := c.Amount
		if use > remaining {
			use = remaining
		}
		if err := s.creditRepo.Deduct(ctx, tx, c.ID, use); err != nil {
			return nil, fmt.Errorf("扣减额度失败: %w", err)
		}
		if c.Kind == model.CreditKindFree {
			result.UsedFree += use
		} else {
			result.UsedPaid += use
		}
		remaining -= use
	}

	if _, err := s.balanceRepo.GetOrCreate(ctx, tx, userID); err != nil {
		return nil, fmt.Errorf("初始化余额快照失败: %w", err)
	}
	if err := s.balanceRepo.Add(ctx, tx, userID, -result.UsedFree, -result.UsedPaid); err != nil {
		return nil, fmt.Errorf("更新余额快照失败: %w", err)
	}

	return result, nil
}

// sortForConsume 排出扣减顺序
// FREE 在前且临近过期的优先（无过期时间的 FREE 排在 FREE 末尾），
// PAID 在后且发放早的优先
func sortForConsume(credits []*model.Credit) {
	sort.SliceStable(credits, func(i, j int) bool {
		a, b := credits[i], credits[j]
		if a.Kind != b.Kind {
			return a.Kind == model.CreditKindFree
		}
		if a.Kind == model.CreditKindFree {
			if a.ExpiresAt == nil && b.ExpiresAt == nil {
				return a.GrantedAt.Before(b.GrantedAt)
			}
			if a.ExpiresAt == nil {
				return false
			}
			if b.ExpiresAt == nil {
				return true
			}
			return a.ExpiresAt.Before(*b.ExpiresAt)
		}
		return a.GrantedAt.Before(b.GrantedAt)
	})
}

// Expire 清理全部已到期的 FREE 额度，返回清零的行数
// 无新到期额度时再次调用返回 0，天然幂等
func (s *CreditService) Expire(ctx context.Context, now time.Time) (int, error) {
	expired, err := s.creditRepo.GetExpired(ctx, now)
	if err != nil {
		return 0, fmt.Errorf("查询到期额度失败: %w", err)
	}
	if len(expired) == 0 {
		return 0, nil
	}

	swept := 0
	for _, c := range expired {
		err := s.db.Transaction(func(tx *gorm.DB) error {
			if err := s.creditRepo.ZeroOut(ctx, tx, c.ID, c.Amount); err != nil {
				return err
			}

			history := &model.CreditHistory{
				UserID: c.UserID,
				Kind:   c.Kind,
				Delta:  -c.Amount,
				Reason: model.CreditReasonExpire,
			}
			if err := s.historyRepo.Create(ctx, tx, history); err != nil {
				return err
			}

			if _, err := s.balanceRepo.GetOrCreate(ctx, tx, c.UserID); err != nil {
				return err
			}
			return s.balanceRepo.Add(ctx, tx, c.UserID, -c.Amount, 0)
		})
		if err != nil {
			// 单行失败不阻塞整批，下次扫描会重试
			log.Printf("[CreditService] 额度过期清理失败: creditID=%d, err=%v", c.ID, err)
			continue
		}
		swept++
	}

	return swept, nil
}

// GetBalance 查询余额快照
func (s *CreditService) GetBalance(ctx context.Context, userID int64) (*model.UserBalance, error) {
	balance, err := s.balanceRepo.GetByUserID(ctx, userID)
	if err != nil {
		if err == repository.ErrBalanceNotFound {
			return &model.UserBalance{UserID: userID}, nil
		}
		return nil, err
	}
	return balance, nil
}

// RecalculateBalance 以 credit 表为准重算快照
func (s *CreditService) RecalculateBalance(ctx context.Context, userID int64) (*model.UserBalance, error) {
	return s.balanceRepo.Recalculate(ctx, userID, time.Now())
}

// ListHistory 分页查询额度流水，新的在前
func (s *CreditService) ListHistory(ctx context.Context, userID int64, page, pageSize int) ([]*model.CreditHistory, int64, error) {
	return s.historyRepo.ListByUserID(ctx, userID, page, pageSize)
}
