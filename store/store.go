package store

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"sync"
	"time"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/trace"
	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"

	"github.com/anthonyadame/DeepResearchAgent-sub002/internal/cache"
	"github.com/anthonyadame/DeepResearchAgent-sub002/internal/metrics"
	"github.com/anthonyadame/DeepResearchAgent-sub002/persistence"
	"github.com/anthonyadame/DeepResearchAgent-sub002/retry"
	"github.com/anthonyadame/DeepResearchAgent-sub002/state"
	"github.com/anthonyadame/DeepResearchAgent-sub002/types"
)

// =============================================================================
// 🗂️ 状态存储
// =============================================================================

// Config 状态存储配置
type Config struct {
	// 本地缓存 TTL
	CacheTTL time.Duration `yaml:"cache_ttl" json:"cache_ttl"`

	// 置信门控阈值，低于该分的写入被拒绝
	GateThreshold float64 `yaml:"gate_threshold" json:"gate_threshold"`

	// 锁表分片数
	LockShards int `yaml:"lock_shards" json:"lock_shards"`

	// 单次获取实体锁的预算
	LockTimeout time.Duration `yaml:"lock_timeout" json:"lock_timeout"`

	// 单次远程持久化调用的超时
	RemoteTimeout time.Duration `yaml:"remote_timeout" json:"remote_timeout"`

	// 远程调用重试策略
	Retry *retry.Policy `yaml:"-" json:"-"`
}

// DefaultConfig 返回默认配置
func DefaultConfig() Config {
	return Config{
		CacheTTL:      5 * time.Minute,
		GateThreshold: DefaultGateThreshold,
		LockShards:    DefaultLockShards,
		LockTimeout:   10 * time.Second,
		RemoteTimeout: 5 * time.Second,
	}
}

// StateStore 是实体读写的唯一入口，组合了本地缓存、分片锁表、
// 置信门控和远程持久层。写路径持有实体锁、通过门控并成功落库后
// 才更新缓存，任何失败都不会留下部分状态。
type StateStore struct {
	backend   persistence.StateBackend
	cache     *cache.Manager
	locks     *LockTable
	gate      ConfidenceGate
	bus       *EventBus
	collector *metrics.Collector
	retryer   retry.Retryer
	tracer    trace.Tracer
	logger    *zap.Logger
	config    Config

	mu     sync.RWMutex
	closed bool
}

// New 创建状态存储
func New(backend persistence.StateBackend, gate ConfidenceGate, collector *metrics.Collector, logger *zap.Logger, config Config) *StateStore {
	if config.CacheTTL <= 0 {
		config.CacheTTL = 5 * time.Minute
	}
	if config.GateThreshold <= 0 {
		config.GateThreshold = DefaultGateThreshold
	}
	if config.RemoteTimeout <= 0 {
		config.RemoteTimeout = 5 * time.Second
	}

	logger = logger.With(zap.String("component", "state_store"))

	return &StateStore{
		backend:   backend,
		cache:     cache.NewManager(cache.Config{DefaultTTL: config.CacheTTL, JanitorInterval: time.Minute}, logger),
		locks:     NewLockTable(config.LockShards, config.LockTimeout),
		gate:      gate,
		bus:       NewEventBus(logger, collector),
		collector: collector,
		retryer:   retry.NewBackoffRetryer(config.Retry, logger),
		tracer:    otel.Tracer("deepresearch/store"),
		logger:    logger,
		config:    config,
	}
}

// Events 返回状态变更事件总线
func (s *StateStore) Events() *EventBus {
	return s.bus
}

// Cache 返回本地缓存层，供健康检查与统计使用
func (s *StateStore) Cache() *cache.Manager {
	return s.cache
}

// Ping 检查远程持久层健康状态
func (s *StateStore) Ping(ctx context.Context) error {
	return s.backend.Ping(ctx)
}

// Close 关闭状态存储（缓存与事件总线）。持久化后端由创建方负责关闭。
func (s *StateStore) Close() error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.closed {
		return nil
	}
	s.closed = true
	s.bus.Close()
	return s.cache.Close()
}

func (s *StateStore) isClosed() bool {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.closed
}

// =============================================================================
// 🎯 类型化 Get / Set
// =============================================================================

// GetAgentState 读取 AgentState
func (s *StateStore) GetAgentState(ctx context.Context, id string) (*state.AgentState, error) {
	return getState(ctx, s, id, func() *state.AgentState { return &state.AgentState{} }, s.backend.GetAgentState)
}

// SetAgentState 写入 AgentState
func (s *StateStore) SetAgentState(ctx context.Context, a *state.AgentState) error {
	return setState(ctx, s, a, func() *state.AgentState { return &state.AgentState{} },
		s.backend.GetAgentState, s.backend.SetAgentState, "")
}

// GetResearchState 读取 ResearchState
func (s *StateStore) GetResearchState(ctx context.Context, id string) (*state.ResearchState, error) {
	return getState(ctx, s, id, func() *state.ResearchState { return &state.ResearchState{} }, s.backend.GetResearchState)
}

// SetResearchState 写入 ResearchState
func (s *StateStore) SetResearchState(ctx context.Context, r *state.ResearchState) error {
	return setState(ctx, s, r, func() *state.ResearchState { return &state.ResearchState{} },
		s.backend.GetResearchState, s.backend.SetResearchState, "")
}

// GetVerificationState 读取 VerificationState
func (s *StateStore) GetVerificationState(ctx context.Context, id string) (*state.VerificationState, error) {
	return getState(ctx, s, id, func() *state.VerificationState { return &state.VerificationState{} }, s.backend.GetVerificationState)
}

// SetVerificationState 写入 VerificationState
func (s *StateStore) SetVerificationState(ctx context.Context, v *state.VerificationState) error {
	return setState(ctx, s, v, func() *state.VerificationState { return &state.VerificationState{} },
		s.backend.GetVerificationState, s.backend.SetVerificationState, "")
}

// GetSupervisionState 读取 SupervisionState
func (s *StateStore) GetSupervisionState(ctx context.Context, id string) (*state.SupervisionState, error) {
	return getState(ctx, s, id, func() *state.SupervisionState { return &state.SupervisionState{} }, s.backend.GetSupervisionState)
}

// SetSupervisionState 写入 SupervisionState
func (s *StateStore) SetSupervisionState(ctx context.Context, sv *state.SupervisionState) error {
	return setState(ctx, s, sv, func() *state.SupervisionState { return &state.SupervisionState{} },
		s.backend.GetSupervisionState, s.backend.SetSupervisionState, "")
}

// =============================================================================
// 🔁 便捷读改写操作
// =============================================================================
// 这些操作由 Get + Set 组合而成：单写者保证来自实体锁，
// 但两次调用之间允许其他调用方并发 Get。

// UpdateResearchStatus 更新研究状态机
func (s *StateStore) UpdateResearchStatus(ctx context.Context, id string, status state.ResearchStatus) error {
	r, err := s.GetResearchState(ctx, id)
	if err != nil {
		return err
	}
	next := r.Clone()
	next.Status = status
	if state.IsTerminalResearch(status) && next.CompletedAt == nil {
		now := time.Now().UTC()
		next.CompletedAt = &now
	}
	return setState(ctx, s, next, func() *state.ResearchState { return &state.ResearchState{} },
		s.backend.GetResearchState, s.backend.SetResearchState, EventStatusChanged)
}

// UpdateResearchProgress 推进质量分与迭代计数
func (s *StateStore) UpdateResearchProgress(ctx context.Context, id string, qualityScore float64, iterationCount int) error {
	r, err := s.GetResearchState(ctx, id)
	if err != nil {
		return err
	}
	next := r.Clone()
	next.QualityScore = qualityScore
	next.IterationCount = iterationCount
	return setState(ctx, s, next, func() *state.ResearchState { return &state.ResearchState{} },
		s.backend.GetResearchState, s.backend.SetResearchState, EventProgressUpdated)
}

// UpdateSupervisionStatus 更新监督状态机
func (s *StateStore) UpdateSupervisionStatus(ctx context.Context, id string, status state.SupervisionStatus) error {
	sv, err := s.GetSupervisionState(ctx, id)
	if err != nil {
		return err
	}
	next := sv.Clone()
	next.Status = status
	if state.IsTerminalSupervision(status) && next.CompletedAt == nil {
		now := time.Now().UTC()
		next.CompletedAt = &now
	}
	return setState(ctx, s, next, func() *state.SupervisionState { return &state.SupervisionState{} },
		s.backend.GetSupervisionState, s.backend.SetSupervisionState, EventStatusChanged)
}

// GetResearchStates 并发读取多个研究状态；任一失败则整批失败
func (s *StateStore) GetResearchStates(ctx context.Context, ids []string) ([]*state.ResearchState, error) {
	results := make([]*state.ResearchState, len(ids))

	g, gctx := errgroup.WithContext(ctx)
	for i, id := range ids {
		g.Go(func() error {
			r, err := s.GetResearchState(gctx, id)
			if err != nil {
				return err
			}
			results[i] = r
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		return nil, err
	}
	return results, nil
}

// =============================================================================
// 🧹 缓存失效
// =============================================================================

// InvalidateKey 显式失效单个实体的缓存
func (s *StateStore) InvalidateKey(t state.EntityType, id string) error {
	return s.cache.Delete(cacheKey(t, id))
}

// InvalidateCategory 失效某一实体类型的全部缓存
func (s *StateStore) InvalidateCategory(t state.EntityType) (int, error) {
	return s.cache.DeletePrefix(categoryPrefix(t))
}

// =============================================================================
// ⚙️ 泛型内部实现
// =============================================================================

func cacheKey(t state.EntityType, id string) string {
	return categoryPrefix(t) + id
}

func categoryPrefix(t state.EntityType) string {
	return "state:" + string(t) + ":"
}

// mapBackendErr 将持久层错误映射到统一错误分类
func (s *StateStore) mapBackendErr(err error, id string) error {
	switch {
	case errors.Is(err, persistence.ErrNotFound):
		return types.NewError(types.ErrEntityNotFound, "entity not found").WithEntityID(id)
	case errors.Is(err, persistence.ErrInvalidInput):
		return types.NewError(types.ErrValidation, "invalid persistence input").WithEntityID(id)
	default:
		return types.NewError(types.ErrStoreUnavailable, "persistence call failed").
			WithEntityID(id).WithRetryable(true).WithCause(err)
	}
}

func (s *StateStore) remoteCtx(ctx context.Context) (context.Context, context.CancelFunc) {
	return context.WithTimeout(ctx, s.config.RemoteTimeout)
}

// getState 读路径：缓存命中直接返回，未命中时回源远程层并回填缓存
func getState[T state.Entity](
	ctx context.Context,
	s *StateStore,
	id string,
	newEntity func() T,
	remoteGet func(context.Context, string) (T, error),
) (T, error) {
	var zero T
	et := newEntity().EntityType()
	start := time.Now()

	ctx, span := s.tracer.Start(ctx, "store.Get", trace.WithAttributes(
		attribute.String("entity_type", string(et)),
		attribute.String("entity_id", id),
	))
	defer span.End()

	if s.isClosed() {
		return zero, types.NewError(types.ErrStoreClosed, "state store is closed")
	}
	if id == "" {
		return zero, types.NewError(types.ErrValidation, "entity id is empty")
	}

	cached := newEntity()
	if err := s.cache.GetJSON(cacheKey(et, id), cached); err == nil {
		s.collector.RecordCacheHit(string(et))
		s.collector.RecordStateOp(string(et), "get", "ok", time.Since(start))
		return cached, nil
	}
	s.collector.RecordCacheMiss(string(et))

	var got T
	err := s.retryer.Do(ctx, func() error {
		rctx, cancel := s.remoteCtx(ctx)
		defer cancel()
		v, rerr := remoteGet(rctx, id)
		if rerr != nil {
			return s.mapBackendErr(rerr, id)
		}
		got = v
		return nil
	})
	if err != nil {
		s.collector.RecordStateOp(string(et), "get", "error", time.Since(start))
		return zero, err
	}

	if cerr := s.cache.SetJSON(cacheKey(et, id), got, s.config.CacheTTL); cerr != nil {
		s.logger.Warn("cache populate failed", zap.String("entity_id", id), zap.Error(cerr))
	}

	s.collector.RecordStateOp(string(et), "get", "ok", time.Since(start))
	return got, nil
}

// setState 写路径：锁 → 读取前值 → 校验后继 → 推进版本 → 门控 → 落库 → 更新缓存 → 发布事件。
// 门控拒绝或落库失败时缓存与持久层均保持不变。
func setState[T state.Entity](
	ctx context.Context,
	s *StateStore,
	next T,
	newEntity func() T,
	remoteGet func(context.Context, string) (T, error),
	remoteSet func(context.Context, T) error,
	kind EventKind,
) error {
	et := next.EntityType()
	id := next.EntityID()
	start := time.Now()

	ctx, span := s.tracer.Start(ctx, "store.Set", trace.WithAttributes(
		attribute.String("entity_type", string(et)),
		attribute.String("entity_id", id),
	))
	defer span.End()

	if s.isClosed() {
		return types.NewError(types.ErrStoreClosed, "state store is closed")
	}
	if err := next.Validate(); err != nil {
		s.collector.RecordStateOp(string(et), "set", "validation_error", time.Since(start))
		return err
	}

	lockStart := time.Now()
	release, err := s.locks.Acquire(ctx, string(et)+":"+id)
	if err != nil {
		s.collector.RecordStateOp(string(et), "set", "lock_timeout", time.Since(start))
		return err
	}
	defer release()
	s.collector.RecordLockWait(string(et), time.Since(lockStart))

	// 读取前值：优先缓存，其次远程；不存在视为首次写入
	var prev state.Entity
	var prevRaw json.RawMessage
	cached := newEntity()
	if cerr := s.cache.GetJSON(cacheKey(et, id), cached); cerr == nil {
		prev = cached
	} else {
		var got T
		rerr := s.retryer.Do(ctx, func() error {
			rctx, cancel := s.remoteCtx(ctx)
			defer cancel()
			v, gerr := remoteGet(rctx, id)
			if gerr != nil {
				return s.mapBackendErr(gerr, id)
			}
			got = v
			return nil
		})
		switch {
		case rerr == nil:
			prev = got
		case types.IsCode(rerr, types.ErrEntityNotFound):
			// first write
		default:
			s.collector.RecordStateOp(string(et), "set", "error", time.Since(start))
			return rerr
		}
	}

	if err := state.ValidateSuccessor(prev, next); err != nil {
		s.collector.RecordStateOp(string(et), "set", "validation_error", time.Since(start))
		return err
	}

	// 版本由 store 统一推进：前值版本 +1，首次写入为 1
	callerVersion := next.GetVersion()
	newVersion := int64(1)
	if prev != nil {
		newVersion = prev.GetVersion() + 1
		raw, merr := json.Marshal(prev)
		if merr == nil {
			prevRaw = raw
		}
	}
	next.SetVersion(newVersion)
	next.Touch(time.Now().UTC())

	payload, err := json.Marshal(next)
	if err != nil {
		next.SetVersion(callerVersion)
		return types.NewError(types.ErrValidation, "entity not serializable").WithEntityID(id).WithCause(err)
	}

	// 门控在临界区内同步执行
	score, gerr := s.gate.Evaluate(ctx, payload, et)
	if gerr != nil {
		next.SetVersion(callerVersion)
		s.collector.RecordGateEvaluation(string(et), "error", 0)
		s.collector.RecordStateOp(string(et), "set", "gate_error", time.Since(start))
		return types.NewError(types.ErrGateUnavailable, "confidence gate call failed").
			WithEntityID(id).WithRetryable(true).WithCause(gerr)
	}
	if score < s.config.GateThreshold {
		next.SetVersion(callerVersion)
		s.collector.RecordGateEvaluation(string(et), "rejected", score)
		s.collector.RecordStateOp(string(et), "set", "rejected", time.Since(start))
		s.logger.Warn("write rejected by confidence gate",
			zap.String("entity_type", string(et)),
			zap.String("entity_id", id),
			zap.Float64("score", score),
			zap.Float64("threshold", s.config.GateThreshold),
		)
		return types.NewError(types.ErrLowConfidence,
			fmt.Sprintf("confidence %.2f below threshold %.2f", score, s.config.GateThreshold)).WithEntityID(id)
	}
	s.collector.RecordGateEvaluation(string(et), "passed", score)

	// 远程写入成功后才触达缓存
	if err := s.retryer.Do(ctx, func() error {
		rctx, cancel := s.remoteCtx(ctx)
		defer cancel()
		if werr := remoteSet(rctx, next); werr != nil {
			return s.mapBackendErr(werr, id)
		}
		return nil
	}); err != nil {
		next.SetVersion(callerVersion)
		s.collector.RecordStateOp(string(et), "set", "error", time.Since(start))
		return err
	}

	if cerr := s.cache.Set(cacheKey(et, id), string(payload), s.config.CacheTTL); cerr != nil {
		s.logger.Warn("cache update failed after commit", zap.String("entity_id", id), zap.Error(cerr))
	}

	if kind == "" {
		kind = eventKindFor(prev, next)
	}
	s.bus.Publish(StateChangeEvent{
		Kind:       kind,
		EntityType: et,
		EntityID:   id,
		Version:    newVersion,
		OldValue:   prevRaw,
		NewValue:   payload,
		OccurredAt: time.Now().UTC(),
	})

	s.collector.RecordStateOp(string(et), "set", "ok", time.Since(start))
	return nil
}

// eventKindFor 根据新旧快照推断事件类型
func eventKindFor(prev, next state.Entity) EventKind {
	if prev == nil {
		return EventCreated
	}
	if statusOf(prev) != statusOf(next) {
		return EventStatusChanged
	}
	return EventUpdated
}

func statusOf(e state.Entity) string {
	switch v := e.(type) {
	case *state.AgentState:
		return string(v.Status)
	case *state.ResearchState:
		return string(v.Status)
	case *state.SupervisionState:
		return string(v.Status)
	case *state.VerificationState:
		if v.Verified {
			return "verified"
		}
		return "unverified"
	default:
		return ""
	}
}
