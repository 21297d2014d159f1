package job

import (
	"context"
	"log"
	"time"

	"creditpay/internal/infrastructure/lock"
	"creditpay/internal/service"

	"github.com/google/uuid"
)

// StatisticsJob 每日订单统计任务
type StatisticsJob struct {
	statisticsService *service.StatisticsService
	locks             lock.Factory
	clock             func() time.Time
}

func NewStatisticsJob(statisticsService *service.StatisticsService, locks lock.Factory) *StatisticsJob {
	return &StatisticsJob{
		statisticsService: statisticsService,
		locks:             locks,
		clock:             time.Now,
	}
}

func (j *StatisticsJob) Run(ctx context.Context) error {
	runLock := j.locks.JobRunLock("daily_statistics", uuid.NewString())
	acquired, err := runLock.TryLock(ctx)
	if err != nil {
		return err
	}
	if !acquired {
		log.Println("[StatisticsJob] 其他实例正在执行统计，本次跳过")
		return nil
	}
	defer runLock.Unlock(ctx)

	record, err := j.statisticsService.RunDaily(ctx, j.clock())
	if err != nil {
		log.Printf("[StatisticsJob] 日统计执行失败: %v", err)
		return err
	}

	log.Printf("[StatisticsJob] 日统计完成: statDate=%s, orderCount=%d", record.StatDate, record.OrderCount)
	return nil
}
