// Package metrics provides internal metrics collection.
// This package is internal and should not be imported by external projects.
package metrics

import (
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"go.uber.org/zap"
)

// =============================================================================
// 📊 指标收集器
// =============================================================================

// Collector 指标收集器。持有显式 Registry，随进程启动创建，
// 通过访问器暴露，不使用全局单例。
type Collector struct {
	registry *prometheus.Registry

	// 状态存储指标
	stateOpsTotal   *prometheus.CounterVec
	stateOpDuration *prometheus.HistogramVec

	// 缓存指标
	cacheHits   *prometheus.CounterVec
	cacheMisses *prometheus.CounterVec

	// 置信门控指标
	gateEvaluations *prometheus.CounterVec
	gateScore       *prometheus.HistogramVec

	// 锁表指标
	lockWaitDuration *prometheus.HistogramVec

	// 监督循环指标
	supervisionCycles *prometheus.CounterVec
	qualityScore      *prometheus.HistogramVec

	// 事件与审计指标
	eventDrops    prometheus.Counter
	journalWrites *prometheus.CounterVec

	logger *zap.Logger
}

// NewCollector 创建指标收集器及其专属 Registry
func NewCollector(namespace string, logger *zap.Logger) *Collector {
	c := &Collector{
		registry: prometheus.NewRegistry(),
		logger:   logger.With(zap.String("component", "metrics")),
	}

	// 状态存储指标
	c.stateOpsTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "state_ops_total",
			Help:      "Total number of state store operations",
		},
		[]string{"entity_type", "op", "status"},
	)

	c.stateOpDuration = prometheus.NewHistogramVec(
		prometheus.HistogramOpts{
			Namespace: namespace,
			Name:      "state_op_duration_seconds",
			Help:      "State store operation duration in seconds",
			Buckets:   prometheus.DefBuckets,
		},
		[]string{"entity_type", "op"},
	)

	// 缓存指标
	c.cacheHits = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "cache_hits_total",
			Help:      "Total number of cache hits",
		},
		[]string{"entity_type"},
	)

	c.cacheMisses = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "cache_misses_total",
			Help:      "Total number of cache misses",
		},
		[]string{"entity_type"},
	)

	// 置信门控指标
	c.gateEvaluations = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "gate_evaluations_total",
			Help:      "Total number of confidence gate evaluations",
		},
		[]string{"entity_type", "outcome"}, // outcome: passed, rejected, error
	)

	c.gateScore = prometheus.NewHistogramVec(
		prometheus.HistogramOpts{
			Namespace: namespace,
			Name:      "gate_score",
			Help:      "Confidence gate score distribution",
			Buckets:   []float64{0.1, 0.2, 0.3, 0.4, 0.5, 0.6, 0.7, 0.8, 0.9, 1.0},
		},
		[]string{"entity_type"},
	)

	// 锁表指标
	c.lockWaitDuration = prometheus.NewHistogramVec(
		prometheus.HistogramOpts{
			Namespace: namespace,
			Name:      "lock_wait_duration_seconds",
			Help:      "Per-entity lock acquisition wait time in seconds",
			Buckets:   []float64{0.001, 0.005, 0.01, 0.05, 0.1, 0.5, 1, 5, 10},
		},
		[]string{"entity_type"},
	)

	// 监督循环指标
	c.supervisionCycles = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "supervision_cycles_total",
			Help:      "Total number of supervision cycles by outcome",
		},
		[]string{"outcome"},
	)

	c.qualityScore = prometheus.NewHistogramVec(
		prometheus.HistogramOpts{
			Namespace: namespace,
			Name:      "supervision_quality_score",
			Help:      "Draft quality score distribution (evaluator scale)",
			Buckets:   []float64{1, 2, 3, 4, 5, 6, 7, 8, 9, 10},
		},
		[]string{"research_id"},
	)

	// 事件与审计指标
	c.eventDrops = prometheus.NewCounter(
		prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "event_drops_total",
			Help:      "State change events dropped by slow subscribers",
		},
	)

	c.journalWrites = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "journal_writes_total",
			Help:      "Audit journal writes",
		},
		[]string{"status"},
	)

	c.registry.MustRegister(
		c.stateOpsTotal, c.stateOpDuration,
		c.cacheHits, c.cacheMisses,
		c.gateEvaluations, c.gateScore,
		c.lockWaitDuration,
		c.supervisionCycles, c.qualityScore,
		c.eventDrops, c.journalWrites,
	)

	c.logger.Info("metrics collector initialized", zap.String("namespace", namespace))

	return c
}

// Registry 返回该收集器的 Registry，供 /metrics handler 使用
func (c *Collector) Registry() *prometheus.Registry {
	return c.registry
}

// =============================================================================
// 🎯 状态存储指标记录
// =============================================================================

// RecordStateOp 记录一次状态存储操作
func (c *Collector) RecordStateOp(entityType, op, status string, duration time.Duration) {
	c.stateOpsTotal.WithLabelValues(entityType, op, status).Inc()
	c.stateOpDuration.WithLabelValues(entityType, op).Observe(duration.Seconds())
}

// RecordCacheHit 记录缓存命中
func (c *Collector) RecordCacheHit(entityType string) {
	c.cacheHits.WithLabelValues(entityType).Inc()
}

// RecordCacheMiss 记录缓存未命中
func (c *Collector) RecordCacheMiss(entityType string) {
	c.cacheMisses.WithLabelValues(entityType).Inc()
}

// RecordGateEvaluation 记录一次门控评估
func (c *Collector) RecordGateEvaluation(entityType, outcome string, score float64) {
	c.gateEvaluations.WithLabelValues(entityType, outcome).Inc()
	if outcome != "error" {
		c.gateScore.WithLabelValues(entityType).Observe(score)
	}
}

// RecordLockWait 记录锁等待时长
func (c *Collector) RecordLockWait(entityType string, wait time.Duration) {
	c.lockWaitDuration.WithLabelValues(entityType).Observe(wait.Seconds())
}

// =============================================================================
// 🔁 监督循环指标记录
// =============================================================================

// RecordSupervisionCycle 记录一次监督周期结果
func (c *Collector) RecordSupervisionCycle(outcome string) {
	c.supervisionCycles.WithLabelValues(outcome).Inc()
}

// RecordQualityScore 记录质量评分
func (c *Collector) RecordQualityScore(researchID string, score float64) {
	c.qualityScore.WithLabelValues(researchID).Observe(score)
}

// =============================================================================
// 📝 事件与审计指标记录
// =============================================================================

// RecordEventDrop 记录被丢弃的状态变更事件
func (c *Collector) RecordEventDrop() {
	c.eventDrops.Inc()
}

// RecordJournalWrite 记录审计日志写入
func (c *Collector) RecordJournalWrite(status string) {
	c.journalWrites.WithLabelValues(status).Inc()
}
