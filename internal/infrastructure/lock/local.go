package lock

import (
	"context"
	"fmt"
	"sync"
	"time"
)

// LocalFactory 进程内锁工厂，单实例部署和测试时使用
// 语义和 Redis 实现保持一致：非阻塞 TryLock + 持有者校验
type LocalFactory struct {
	mu      sync.Mutex
	holders map[string]string // key -> holder
}

func NewLocalFactory() *LocalFactory {
	return &LocalFactory{holders: make(map[string]string)}
}

func (f *LocalFactory) PurchaseLock(userID int64, holder string) Lock {
	return &localLock{factory: f, key: localKey("purchase:lock:user", userID), value: holder}
}

func (f *LocalFactory) WithdrawLock(creatorID int64, holder string) Lock {
	return &localLock{factory: f, key: localKey("withdraw:lock:creator", creatorID), value: holder}
}

func (f *LocalFactory) JobRunLock(jobName, holder string) Lock {
	return &localLock{factory: f, key: "job:lock:" + jobName, value: holder}
}

func localKey(prefix string, id int64) string {
	return fmt.Sprintf("%s:%d", prefix, id)
}

type localLock struct {
	factory *LocalFactory
	key     string
	value   string
}

func (l *localLock) TryLock(ctx context.Context) (bool, error) {
	l.factory.mu.Lock()
	defer l.factory.mu.Unlock()
	if _, held := l.factory.holders[l.key]; held {
		return false, nil
	}
	l.factory.holders[l.key] = l.value
	return true, nil
}

func (l *localLock) Lock(ctx context.Context, retryInterval time.Duration, maxRetries int) error {
	for i := 0; i < maxRetries; i++ {
		ok, err := l.TryLock(ctx)
		if err != nil {
			return err
		}
		if ok {
			return nil
		}
		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-time.After(retryInterval):
		}
	}
	return ErrLockFailed
}

func (l *localLock) Unlock(ctx context.Context) error {
	l.factory.mu.Lock()
	defer l.factory.mu.Unlock()
	if l.factory.holders[l.key] == l.value {
		delete(l.factory.holders, l.key)
	}
	return nil
}
