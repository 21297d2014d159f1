package lock

import (
	"fmt"
	"time"

	"github.com/go-redis/redis/v8"
)

// Factory 按业务维度构造互斥锁
//
// 锁粒度的选择：
//   - 购买锁按用户维度：同一用户的并发购买必须串行（额度校验和扣减不是一步完成的），
//     不同用户之间互不影响
//   - 提现锁按创作者维度：可提现余额是跨提现单的共享量，必须串行决策
//   - 任务锁按任务名：防止两个实例同时跑同一个批次
type Factory interface {
	PurchaseLock(userID int64, holder string) Lock
	WithdrawLock(creatorID int64, holder string) Lock
	JobRunLock(jobName, holder string) Lock
}

// RedisFactory 多实例部署时使用的 Redis 锁工厂
type RedisFactory struct {
	client *redis.Client
}

func NewRedisFactory(client *redis.Client) *RedisFactory {
	return &RedisFactory{client: client}
}

func (f *RedisFactory) PurchaseLock(userID int64, holder string) Lock {
	key := fmt.Sprintf("purchase:lock:user:%d", userID)
	return NewDistributedLock(f.client, key, holder, 30*time.Second)
}

func (f *RedisFactory) WithdrawLock(creatorID int64, holder string) Lock {
	key := fmt.Sprintf("withdraw:lock:creator:%d", creatorID)
	return NewDistributedLock(f.client, key, holder, 30*time.Second)
}

func (f *RedisFactory) JobRunLock(jobName, holder string) Lock {
	key := fmt.Sprintf("job:lock:%s", jobName)
	// 批次任务耗时远超请求，过期时间放宽
	return NewDistributedLock(f.client, key, holder, 10*time.Minute)
}
