package store

import (
	"context"
	"errors"
	"hash/fnv"
	"time"

	"golang.org/x/sync/semaphore"

	"github.com/anthonyadame/DeepResearchAgent-sub002/types"
)

// LockTable 按实体 id 提供互斥的写锁。
// 采用固定大小的分片池：id 经 FNV 哈希落到某个二值信号量上，
// 以少量假性争用换取有界内存，避免按 id 懒建锁带来的无界增长。
type LockTable struct {
	shards  []*semaphore.Weighted
	timeout time.Duration
}

// DefaultLockShards 默认分片数
const DefaultLockShards = 256

// NewLockTable 创建锁表。shards <= 0 时使用默认分片数，
// timeout 为单次获取锁的预算（0 表示无限等待）。
func NewLockTable(shards int, timeout time.Duration) *LockTable {
	if shards <= 0 {
		shards = DefaultLockShards
	}
	pool := make([]*semaphore.Weighted, shards)
	for i := range pool {
		pool[i] = semaphore.NewWeighted(1)
	}
	return &LockTable{shards: pool, timeout: timeout}
}

// Acquire 阻塞直到持有 id 对应的锁，返回释放函数。
// 等待期间 ctx 取消或超出预算时返回错误，且调用方必定不持有锁
// （semaphore.Acquire 在返回非 nil 错误时不会占用配额）。
func (lt *LockTable) Acquire(ctx context.Context, id string) (func(), error) {
	sem := lt.shards[lt.shardFor(id)]

	acquireCtx := ctx
	var cancel context.CancelFunc
	if lt.timeout > 0 {
		acquireCtx, cancel = context.WithTimeout(ctx, lt.timeout)
		defer cancel()
	}

	if err := sem.Acquire(acquireCtx, 1); err != nil {
		if errors.Is(err, context.DeadlineExceeded) && ctx.Err() == nil {
			return nil, types.NewError(types.ErrLockTimeout, "could not acquire entity lock within budget").WithEntityID(id)
		}
		return nil, types.NewError(types.ErrLockTimeout, "lock acquisition cancelled").WithEntityID(id).WithCause(err)
	}

	return func() { sem.Release(1) }, nil
}

func (lt *LockTable) shardFor(id string) int {
	h := fnv.New32a()
	_, _ = h.Write([]byte(id))
	return int(h.Sum32() % uint32(len(lt.shards)))
}
