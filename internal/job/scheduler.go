package job

import (
	"context"
	"log"

	"creditpay/internal/config"

	"github.com/robfig/cron/v3"
)

// Scheduler 定时任务调度器
// 触发表达式从配置读取，任务本身各自抢锁做幂等，
// 调度器只负责按点触发
type Scheduler struct {
	cron          *cron.Cron
	cfg           *config.CronConfig
	settlementJob *SettlementJob
	expiryJob     *ExpiryJob
	statisticsJob *StatisticsJob
}

func NewScheduler(cfg *config.CronConfig, settlementJob *SettlementJob, expiryJob *ExpiryJob, statisticsJob *StatisticsJob) *Scheduler {
	return &Scheduler{
		cron:          cron.New(),
		cfg:           cfg,
		settlementJob: settlementJob,
		expiryJob:     expiryJob,
		statisticsJob: statisticsJob,
	}
}

func (s *Scheduler) Start(ctx context.Context) error {
	entries := []struct {
		name string
		spec string
		run  func(context.Context) error
	}{
		{"settlement", s.cfg.Settlement, s.settlementJob.Run},
		{"credit_expiry", s.cfg.Expiry, s.expiryJob.Run},
		{"daily_statistics", s.cfg.Statistics, s.statisticsJob.Run},
	}

	for _, e := range entries {
		name, run := e.name, e.run
		if _, err := s.cron.AddFunc(e.spec, func() {
			if err := run(ctx); err != nil {
				log.Printf("[Scheduler] 任务执行出错: name=%s, err=%v", name, err)
			}
		}); err != nil {
			return err
		}
	}

	s.cron.Start()
	log.Println("[Scheduler] 定时任务调度器启动")
	return nil
}

func (s *Scheduler) Stop() {
	s.cron.Stop()
	log.Println("[Scheduler] 定时任务调度器停止")
}
