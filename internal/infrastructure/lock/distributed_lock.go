package lock

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/go-redis/redis/v8"
)

// ============================================================================
// 分布式锁
// ============================================================================
//
// webhook 处理器和轮询任务可能同时对账同一条支付记录。
// 落库本身靠「当前状态 = X」的条件更新兜底，但加一把按网关订单号的锁
// 可以让后到的一方直接跳过，省掉一次注定空转的快照拉取和引擎评估。
//
// 加锁：SET key value NX EX timeout
//   - NX 保证互斥，EX 防止持有方崩溃后死锁
//   - value 写持有者标识，释放时校验，避免误删别人的锁
// 释放：Lua 脚本保证「校验+删除」原子执行
// ============================================================================

var ErrLockFailed = errors.New("获取分布式锁失败")

// DistributedLock 分布式锁
type DistributedLock struct {
	client     *redis.Client
	key        string
	value      string
	expiration time.Duration
}

// NewDistributedLock 创建分布式锁
func NewDistributedLock(client *redis.Client, key, value string, expiration time.Duration) *DistributedLock {
	return &DistributedLock{
		client:     client,
		key:        key,
		value:      value,
		expiration: expiration,
	}
}

// TryLock 尝试获取锁（非阻塞）
func (l *DistributedLock) TryLock(ctx context.Context) (bool, error) {
	success, err := l.client.SetNX(ctx, l.key, l.value, l.expiration).Result()
	if err != nil {
		return false, err
	}
	return success, nil
}

// Lock 阻塞式获取锁（带重试）
func (l *DistributedLock) Lock(ctx context.Context, retryInterval time.Duration, maxRetries int) error {
	for i := 0; i < maxRetries; i++ {
		success, err := l.TryLock(ctx)
		if err != nil {
			return err
		}
		if success {
			return nil
		}
		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-time.After(retryInterval):
			// 继续重试
		}
	}
	return ErrLockFailed
}

// Unlock 释放锁，value 不是自己的不删
func (l *DistributedLock) Unlock(ctx context.Context) error {
	script := `
		if redis.call("GET", KEYS[1]) == ARGV[1] then
			return redis.call("DEL", KEYS[1])
		else
			return 0
		end
	`
	_, err := l.client.Eval(ctx, script, []string{l.key}, l.value).Result()
	return err
}

// NewReconcileLock 创建对账锁（按网关订单号维度）
//
// 按记录而不是全局加锁：不同记录的对账可以并发，
// 同一条记录上 webhook 和轮询互斥 —— 这正是我们要的粒度。
// owner 传调用方标识（webhook 事件名 / 任务名），便于追踪持有者。
func NewReconcileLock(client *redis.Client, remoteOrderID int64, owner string) *DistributedLock {
	key := fmt.Sprintf("recon:lock:order:%d", remoteOrderID)
	return NewDistributedLock(client, key, owner, 30*time.Second)
}
