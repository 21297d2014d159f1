package service

import (
	"context"
	"fmt"
	"log"
	"time"

	"creditpay/internal/model"
	"creditpay/internal/repository"

	"gorm.io/gorm"
	"gorm.io/gorm/clause"
)

// StatisticsService 日订单统计
// 按自然日汇总成功订单的数量和额度消耗，结果按统计日幂等覆盖，
// 重跑同一天会刷新数据而不是追加
type StatisticsService struct {
	db        *gorm.DB
	orderRepo *repository.OrderRepository
}

func NewStatisticsService(db *gorm.DB) *StatisticsService {
	return &StatisticsService{
		db:        db,
		orderRepo: repository.NewOrderRepository(db),
	}
}

// RunDaily 统计昨日订单
func (s *StatisticsService) RunDaily(ctx context.Context, now time.Time) (*model.DailyStatistics, error) {
	todayStart := time.Date(now.Year(), now.Month(), now.Day(), 0, 0, 0, 0, now.Location())
	return s.Run(ctx, todayStart.AddDate(0, 0, -1), todayStart)
}

// Run 统计 [from, to) 窗口内的成功订单并落库
func (s *StatisticsService) Run(ctx context.Context, from, to time.Time) (*model.DailyStatistics, error) {
	stats, err := s.orderRepo.StatsForWindow(ctx, from, to)
	if err != nil {
		return nil, fmt.Errorf("统计订单窗口失败: %w", err)
	}

	record := &model.DailyStatistics{
		StatDate:        from.Format("2006-01-02"),
		OrderCount:      stats.OrderCount,
		GrossCreditUsed: stats.GrossCreditUsed,
		FreeCreditUsed:  stats.FreeCreditUsed,
		PaidCreditUsed:  stats.PaidCreditUsed,
	}

	err = s.db.WithContext(ctx).
		Clauses(clause.OnConflict{
			Columns: []clause.Column{{Name: "stat_date"}},
			DoUpdates: clause.AssignmentColumns([]string{
				"order_count", "gross_credit_used", "free_credit_used", "paid_credit_used",
			}),
		}).
		Create(record).Error
	if err != nil {
		return nil, fmt.Errorf("写入日统计失败: %w", err)
	}

	log.Printf("日统计完成: statDate=%s, orderCount=%d, grossCreditUsed=%d",
		record.StatDate, record.OrderCount, record.GrossCreditUsed)

	return record, nil
}

// GetByDate 查询指定日期的统计，没有则返回空记录
func (s *StatisticsService) GetByDate(ctx context.Context, statDate string) (*model.DailyStatistics, error) {
	var record model.DailyStatistics
	err := s.db.WithContext(ctx).Where("stat_date = ?", statDate).First(&record).Error
	if err != nil {
		if err == gorm.ErrRecordNotFound {
			return &model.DailyStatistics{StatDate: statDate}, nil
		}
		return nil, err
	}
	return &record, nil
}
