package store

import (
	"context"

	"github.com/anthonyadame/DeepResearchAgent-sub002/state"
)

// DefaultGateThreshold 低于该置信分的写入被拒绝
const DefaultGateThreshold = 0.7

// ConfidenceGate 在提交前对序列化后的变更载荷打分。
// 评估在持锁的临界区内同步执行，保证失败的门控检查不可能与
// 同一 id 的并发成功写入竞争。
type ConfidenceGate interface {
	// Evaluate 返回 [0,1] 的置信分
	Evaluate(ctx context.Context, payload []byte, entityType state.EntityType) (float64, error)
}

// GateFunc 将函数适配为 ConfidenceGate
type GateFunc func(ctx context.Context, payload []byte, entityType state.EntityType) (float64, error)

// Evaluate 实现 ConfidenceGate
func (f GateFunc) Evaluate(ctx context.Context, payload []byte, entityType state.EntityType) (float64, error) {
	return f(ctx, payload, entityType)
}

// StaticGate 返回固定分数的门控，用于开发环境和测试
type StaticGate struct {
	Score float64
}

// Evaluate 实现 ConfidenceGate
func (g StaticGate) Evaluate(ctx context.Context, payload []byte, entityType state.EntityType) (float64, error) {
	return g.Score, nil
}
