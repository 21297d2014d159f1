package service

import (
	"context"
	"errors"
	"fmt"
	"log"
	"time"

	"creditpay/internal/infrastructure/lock"
	"creditpay/internal/model"
	"creditpay/internal/repository"

	"github.com/google/uuid"
	"gorm.io/gorm"
)

// PurchaseService 内容购买
//
// 额度校验和逐行扣减不是一步完成的，同一用户的并发购买
// 必须串行化，否则两笔请求可能同时通过余额校验。
// 用户维度加锁，不同用户互不影响
type PurchaseService struct {
	db            *gorm.DB
	locks         lock.Factory
	orderRepo     *repository.OrderRepository
	contentRepo   *repository.ContentRepository
	historyRepo   *repository.HistoryRepository
	creditService *CreditService
}

func NewPurchaseService(db *gorm.DB, locks lock.Factory) *PurchaseService {
	return &PurchaseService{
		db:            db,
		locks:         locks,
		orderRepo:     repository.NewOrderRepository(db),
		contentRepo:   repository.NewContentRepository(db),
		historyRepo:   repository.NewHistoryRepository(db),
		creditService: NewCreditService(db),
	}
}

// PurchaseResult 购买结果
type PurchaseResult struct {
	OrderID         int64 `json:"order_id"`
	TotalCreditUsed int64 `json:"total_credit_used"`
	UsedFreeCredit  int64 `json:"used_free_credit"`
	UsedPaidCredit  int64 `json:"used_paid_credit"`
}

// Purchase 购买一个内容
// 同一用户对同一内容最多一单；免费内容不动账本直接成单
func (s *PurchaseService) Purchase(ctx context.Context, userID, contentID int64) (*PurchaseResult, error) {
	content, err := s.contentRepo.GetByID(ctx, contentID)
	if err != nil {
		return nil, err
	}

	// 免费内容：零消耗成单，不加锁，重复下单由 uk_user_content 唯一索引拦截
	if content.Price == 0 {
		order := &model.Order{
			UserID:    userID,
			ContentID: contentID,
			Status:    model.OrderStatusSuccess,
		}
		if err := s.orderRepo.Create(ctx, nil, order); err != nil {
			if errors.Is(err, gorm.ErrDuplicatedKey) {
				return nil, ErrDuplicatePurchase
			}
			return nil, fmt.Errorf("创建订单失败: %w", err)
		}
		return &PurchaseResult{OrderID: order.ID}, nil
	}

	existing, err := s.orderRepo.GetByUserAndContent(ctx, userID, contentID)
	if err != nil {
		return nil, fmt.Errorf("查询订单失败: %w", err)
	}
	if existing != nil {
		return nil, ErrDuplicatePurchase
	}

	purchaseLock := s.locks.PurchaseLock(userID, uuid.NewString())
	if err := purchaseLock.Lock(ctx, 100*time.Millisecond, 30); err != nil {
		return nil, fmt.Errorf("系统繁忙，请稍后重试: %w", err)
	}
	defer purchaseLock.Unlock(ctx)

	// 获取锁后再次检查，拦截排队期间别人成的单
	existing, err = s.orderRepo.GetByUserAndContent(ctx, userID, contentID)
	if err != nil {
		return nil, fmt.Errorf("查询订单失败: %w", err)
	}
	if existing != nil {
		return nil, ErrDuplicatePurchase
	}

	var result *PurchaseResult
	err = s.db.Transaction(func(tx *gorm.DB) error {
		consumed, err := s.creditService.ConsumeInTx(ctx, tx, userID, content.Price)
		if err != nil {
			return err
		}

		order := &model.Order{
			UserID:          userID,
			ContentID:       contentID,
			Status:          model.OrderStatusSuccess,
			UsedFreeCredit:  consumed.UsedFree,
			UsedPaidCredit:  consumed.UsedPaid,
			TotalCreditUsed: consumed.Total(),
		}
		if err := s.orderRepo.Create(ctx, tx, order); err != nil {
			return fmt.Errorf("创建订单失败: %w", err)
		}

		// 每种实际用到的额度类型各记一条 PURCHASE 流水
		if consumed.UsedFree > 0 {
			history := &model.CreditHistory{
				UserID:  userID,
				Kind:    model.CreditKindFree,
				Delta:   -consumed.UsedFree,
				Reason:  model.CreditReasonPurchase,
				OrderID: &order.ID,
			}
			if err := s.historyRepo.Create(ctx, tx, history); err != nil {
				return fmt.Errorf("记录流水失败: %w", err)
			}
		}
		if consumed.UsedPaid > 0 {
			history := &model.CreditHistory{
				UserID:  userID,
				Kind:    model.CreditKindPaid,
				Delta:   -consumed.UsedPaid,
				Reason:  model.CreditReasonPurchase,
				OrderID: &order.ID,
			}
			if err := s.historyRepo.Create(ctx, tx, history); err != nil {
				return fmt.Errorf("记录流水失败: %w", err)
			}
		}

		result = &PurchaseResult{
			OrderID:         order.ID,
			TotalCreditUsed: order.TotalCreditUsed,
			UsedFreeCredit:  order.UsedFreeCredit,
			UsedPaidCredit:  order.UsedPaidCredit,
		}
		return nil
	})
	if err != nil {
		return nil, err
	}

	log.Printf("购买成功: orderID=%d, userID=%d, contentID=%d, totalCreditUsed=%d",
		result.OrderID, userID, contentID, result.TotalCreditUsed)

	return result, nil
}

// GetOrder 查询订单
func (s *PurchaseService) GetOrder(ctx context.Context, orderID int64) (*model.Order, error) {
	return s.orderRepo.GetByID(ctx, orderID)
}

// ListUserOrders 分页查询用户订单
func (s *PurchaseService) ListUserOrders(ctx context.Context, userID int64, page, pageSize int) ([]*model.Order, int64, error) {
	return s.orderRepo.ListByUserID(ctx, userID, page, pageSize)
}
