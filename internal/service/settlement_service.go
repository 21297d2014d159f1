package service

import (
	"context"
	"fmt"
	"log"
	"math"
	"time"

	"creditpay/internal/config"
	"creditpay/internal/model"
	"creditpay/internal/repository"

	"gorm.io/gorm"
)

// SettlementService 日结算批次
//
// 三段式流水线：
//
//	聚合 —— 一次查询把窗口内未结算订单按 (创作者, 内容) 分组求和，全量物化
//	计算 —— 逐行 net = floor(gross x (1 - feeRate))，抽成百分比随行落库
//	写入 —— 固定分片，每片独立事务：批量解析创作者/内容引用，
//	        解析不到的跳过不报错；全部分片成功后才批量标记订单已结算
//
// 幂等：统计日唯一的 settlement_run 是批次幂等键。COMPLETED 的批次重跑直接
// 返回；中断的批次重跑会续接同一个 run，写入阶段跳过已有结算单的聚合行，
// 所以部分失败后的重试不会产生重复结算单
type SettlementService struct {
	db             *gorm.DB
	cfg            *config.Config
	orderRepo      *repository.OrderRepository
	settlementRepo *repository.SettlementRepository
	creatorRepo    *repository.CreatorRepository
	contentRepo    *repository.ContentRepository
}

func NewSettlementService(db *gorm.DB, cfg *config.Config) *SettlementService {
	return &SettlementService{
		db:             db,
		cfg:            cfg,
		orderRepo:      repository.NewOrderRepository(db),
		settlementRepo: repository.NewSettlementRepository(db),
		creatorRepo:    repository.NewCreatorRepository(db),
		contentRepo:    repository.NewContentRepository(db),
	}
}

// RunSummary 一次批次的执行结果
type RunSummary struct {
	RunID          int64
	RunDate        string
	AggregateCount int
	SettledCount   int
	SkippedCount   int
	MarkedOrders   int64
	AlreadyDone    bool
}

// RunDaily 结算 now 前一个完整自然日 [昨日零点, 今日零点) 的订单
func (s *SettlementService) RunDaily(ctx context.Context, now time.Time) (*RunSummary, error) {
	todayStart := time.Date(now.Year(), now.Month(), now.Day(), 0, 0, 0, 0, now.Location())
	yesterdayStart := todayStart.AddDate(0, 0, -1)
	return s.Run(ctx, yesterdayStart, todayStart)
}

// Run 结算指定窗口
func (s *SettlementService) Run(ctx context.Context, from, to time.Time) (*RunSummary, error) {
	runDate := from.Format("2006-01-02")
	feePercent := feeRateToPercent(s.cfg.Business.SettlementFeeRate)

	run, err := s.settlementRepo.GetRunByDate(ctx, runDate)
	if err != nil {
		return nil, fmt.Errorf("查询结算批次失败: %w", err)
	}
	if run != nil && run.Status == model.SettlementRunStatusCompleted {
		log.Printf("[SettlementService] 批次已完成，跳过: runDate=%s", runDate)
		return &RunSummary{
			RunID:          run.ID,
			RunDate:        runDate,
			AggregateCount: run.AggregateCount,
			SettledCount:   run.SettledCount,
			SkippedCount:   run.SkippedCount,
			AlreadyDone:    true,
		}, nil
	}
	if run == nil {
		run = &model.SettlementRun{
			RunDate: runDate,
			Status:  model.SettlementRunStatusRunning,
			FeeRate: feePercent,
		}
		if err := s.settlementRepo.CreateRun(ctx, run); err != nil {
			return nil, fmt.Errorf("创建结算批次失败: %w", err)
		}
	} else {
		log.Printf("[SettlementService] 续接未完成的批次: runID=%d, runDate=%s", run.ID, runDate)
	}

	// 聚合阶段
	aggregates, err := s.orderRepo.AggregateUnsettled(ctx, from, to)
	if err != nil {
		return nil, fmt.Errorf("聚合未结算订单失败: %w", err)
	}

	// 续跑时跳过已生成结算单的聚合行
	settledTargets, err := s.settlementRepo.GetRunTargets(ctx, run.ID)
	if err != nil {
		return nil, fmt.Errorf("查询批次进度失败: %w", err)
	}

	chunkSize := s.cfg.Business.SettlementChunkSize
	if chunkSize <= 0 {
		chunkSize = 100
	}

	settledCount := 0
	skippedCount := 0
	settledAt := time.Now()

	// 写入阶段：分片串行，每片一个事务
	// 某一片失败时，前面已提交的片保持提交，重跑时续接
	for start := 0; start < len(aggregates); start += chunkSize {
		end := start + chunkSize
		if end > len(aggregates) {
			end = len(aggregates)
		}
		chunk := aggregates[start:end]

		chunkSettled, chunkSkipped, err := s.writeChunk(ctx, run, chunk, settledTargets, feePercent, settledAt)
		if err != nil {
			return nil, fmt.Errorf("写入结算分片失败 [%d:%d]: %w", start, end, err)
		}
		settledCount += chunkSettled
		skippedCount += chunkSkipped
	}

	// 全部分片成功后才把窗口内订单批量标记为已结算
	var marked int64
	err = s.db.Transaction(func(tx *gorm.DB) error {
		var err error
		marked, err = s.orderRepo.MarkSettled(ctx, tx, from, to)
		if err != nil {
			return fmt.Errorf("标记订单已结算失败: %w", err)
		}
		return s.settlementRepo.CompleteRun(ctx, tx, run.ID, len(aggregates), settledCount, skippedCount, time.Now())
	})
	if err != nil {
		return nil, err
	}

	log.Printf("[SettlementService] 批次完成: runDate=%s, aggregates=%d, settled=%d, skipped=%d, markedOrders=%d",
		runDate, len(aggregates), settledCount, skippedCount, marked)

	return &RunSummary{
		RunID:          run.ID,
		RunDate:        runDate,
		AggregateCount: len(aggregates),
		SettledCount:   settledCount,
		SkippedCount:   skippedCount,
		MarkedOrders:   marked,
	}, nil
}

func (s *SettlementService) writeChunk(ctx context.Context, run *model.SettlementRun, chunk []*repository.OrderAggregate, settledTargets map[string]bool, feePercent int, settledAt time.Time) (int, int, error) {
	settled, skipped := 0, 0

	err := s.db.Transaction(func(tx *gorm.DB) error {
		// 整片一次解析引用，避免逐行查库
		creatorIDs := make([]int64, 0, len(chunk))
		contentIDs := make([]int64, 0, len(chunk))
		for _, agg := range chunk {
			creatorIDs = append(creatorIDs, agg.CreatorID)
			contentIDs = append(contentIDs, agg.ContentID)
		}
		creators, err := s.creatorRepo.GetByIDs(ctx, tx, creatorIDs)
		if err != nil {
			return fmt.Errorf("批量查询创作者失败: %w", err)
		}
		contents, err := s.contentRepo.GetByIDs(ctx, tx, contentIDs)
		if err != nil {
			return fmt.Errorf("批量查询内容失败: %w", err)
		}

		settlements := make([]*model.Settlement, 0, len(chunk))
		for _, agg := range chunk {
			if settledTargets[repository.TargetKey(agg.CreatorID, agg.ContentID)] {
				continue
			}
			if creators[agg.CreatorID] == nil || contents[agg.ContentID] == nil {
				log.Printf("[SettlementService] 引用缺失，跳过聚合行: creatorID=%d, contentID=%d",
					agg.CreatorID, agg.ContentID)
				skipped++
				continue
			}

			settlements = append(settlements, &model.Settlement{
				RunID:     run.ID,
				CreatorID: agg.CreatorID,
				ContentID: agg.ContentID,
				NetAmount: computeNet(agg.GrossAmount, feePercent),
				FeeRate:   feePercent,
				SettledAt: settledAt,
			})
		}

		if err := s.settlementRepo.CreateBatch(ctx, tx, settlements); err != nil {
			return fmt.Errorf("写入结算单失败: %w", err)
		}
		settled = len(settlements)
		return nil
	})
	if err != nil {
		return 0, 0, err
	}
	return settled, skipped, nil
}

// computeNet 净额 = floor(gross x (100 - feePercent) / 100)
func computeNet(gross int64, feePercent int) int64 {
	return gross * int64(100-feePercent) / 100
}

// feeRateToPercent 抽成比例转整数百分比落库留档
func feeRateToPercent(rate float64) int {
	return int(math.Round(rate * 100))
}

// ListByCreator 分页查询创作者结算单
func (s *SettlementService) ListByCreator(ctx context.Context, creatorID int64, page, pageSize int) ([]*model.Settlement, int64, error) {
	return s.settlementRepo.ListByCreator(ctx, creatorID, page, pageSize)
}
