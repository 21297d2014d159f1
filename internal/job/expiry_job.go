package job

import (
	"context"
	"log"
	"time"

	"creditpay/internal/infrastructure/lock"
	"creditpay/internal/service"

	"github.com/google/uuid"
)

// ExpiryJob 免费额度过期清扫任务
type ExpiryJob struct {
	creditService *service.CreditService
	locks         lock.Factory
	clock         func() time.Time
}

func NewExpiryJob(creditService *service.CreditService, locks lock.Factory) *ExpiryJob {
	return &ExpiryJob{
		creditService: creditService,
		locks:         locks,
		clock:         time.Now,
	}
}

func (j *ExpiryJob) Run(ctx context.Context) error {
	runLock := j.locks.JobRunLock("credit_expiry", uuid.NewString())
	acquired, err := runLock.TryLock(ctx)
	if err != nil {
		return err
	}
	if !acquired {
		log.Println("[ExpiryJob] 其他实例正在执行清扫，本次跳过")
		return nil
	}
	defer runLock.Unlock(ctx)

	swept, err := j.creditService.Expire(ctx, j.clock())
	if err != nil {
		log.Printf("[ExpiryJob] 过期清扫失败: %v", err)
		return err
	}

	if swept > 0 {
		log.Printf("[ExpiryJob] 过期清扫完成: swept=%d", swept)
	}
	return nil
}
