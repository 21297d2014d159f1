package job

import (
	"context"
	"log"
	"time"

	"creditpay/internal/infrastructure/lock"
	"creditpay/internal/service"

	"github.com/google/uuid"
)

// SettlementJob 每日结算任务
// 执行前抢任务锁，多实例部署时同一天的批次只会在一个实例上跑；
// 抢锁失败直接跳过，等下一次触发
type SettlementJob struct {
	settlementService *service.SettlementService
	locks             lock.Factory
	clock             func() time.Time
}

func NewSettlementJob(settlementService *service.SettlementService, locks lock.Factory) *SettlementJob {
	return &SettlementJob{
		settlementService: settlementService,
		locks:             locks,
		clock:             time.Now,
	}
}

func (j *SettlementJob) Run(ctx context.Context) error {
	runLock := j.locks.JobRunLock("settlement", uuid.NewString())
	acquired, err := runLock.TryLock(ctx)
	if err != nil {
		return err
	}
	if !acquired {
		log.Println("[SettlementJob] 其他实例正在执行结算，本次跳过")
		return nil
	}
	defer runLock.Unlock(ctx)

	summary, err := j.settlementService.RunDaily(ctx, j.clock())
	if err != nil {
		log.Printf("[SettlementJob] 结算批次执行失败: %v", err)
		return err
	}

	if summary.AlreadyDone {
		log.Printf("[SettlementJob] 当日批次已完成，无需重跑: runDate=%s", summary.RunDate)
		return nil
	}

	log.Printf("[SettlementJob] 结算批次完成: runDate=%s, aggregates=%d, settled=%d, skipped=%d, markedOrders=%d",
		summary.RunDate, summary.AggregateCount, summary.SettledCount, summary.SkippedCount, summary.MarkedOrders)
	return nil
}
