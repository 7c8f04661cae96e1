package supervisor

import (
	"context"
	"fmt"
	"strings"
	"sync"
	"time"

	"go.uber.org/zap"
	"golang.org/x/time/rate"

	"github.com/anthonyadame/DeepResearchAgent-sub002/internal/metrics"
	"github.com/anthonyadame/DeepResearchAgent-sub002/retry"
	"github.com/anthonyadame/DeepResearchAgent-sub002/state"
	"github.com/anthonyadame/DeepResearchAgent-sub002/store"
	"github.com/anthonyadame/DeepResearchAgent-sub002/types"
)

// =============================================================================
// 🔁 监督修订循环
// =============================================================================

// Config 监督器配置
type Config struct {
	// 质量目标分（评估器 0-10 刻度）
	QualityTarget float64 `yaml:"quality_target" json:"quality_target"`

	// 分数比较的容差
	Epsilon float64 `yaml:"epsilon" json:"epsilon"`

	// 最大监督周期数
	MaxIterations int `yaml:"max_iterations" json:"max_iterations"`

	// 连续多少个无提升周期判定为停滞
	StagnationWindow int `yaml:"stagnation_window" json:"stagnation_window"`

	// 评估维度
	Dimensions []string `yaml:"dimensions" json:"dimensions"`

	// 协作方调用限流（每秒请求数，0 表示不限流）
	CollaboratorRPS float64 `yaml:"collaborator_rps" json:"collaborator_rps"`

	// 限流突发额度
	CollaboratorBurst int `yaml:"collaborator_burst" json:"collaborator_burst"`

	// 协作方调用重试策略
	Retry *retry.Policy `yaml:"-" json:"-"`
}

// DefaultConfig 返回默认监督器配置
func DefaultConfig() Config {
	return Config{
		QualityTarget:    8.0,
		Epsilon:          0.1,
		MaxIterations:    5,
		StagnationWindow: 3,
		Dimensions: []string{
			"accuracy", "completeness", "clarity", "relevance",
		},
		CollaboratorRPS:   2,
		CollaboratorBurst: 4,
	}
}

// CycleOutcome 单个周期的结果
type CycleOutcome string

const (
	OutcomeApproved            CycleOutcome = "approved"
	OutcomeQualityRegression   CycleOutcome = "quality_regression"
	OutcomeRejectedForRevision CycleOutcome = "rejected_for_revision"
	OutcomeAtBudget            CycleOutcome = "completed_at_budget"
	OutcomeStagnated           CycleOutcome = "completed_stagnated"
	OutcomeFailed              CycleOutcome = "failed"
	OutcomeAlreadyTerminal     CycleOutcome = "already_terminal"
)

// CycleResult 一个监督周期的输出
type CycleResult struct {
	SupervisionID  string            `json:"supervision_id"`
	ResearchID     string            `json:"research_id"`
	Cycle          int               `json:"cycle"`
	Score          float64           `json:"score"`
	Outcome        CycleOutcome      `json:"outcome"`
	Terminal       bool              `json:"terminal"`
	Reason         TerminationReason `json:"reason,omitempty"`
	CriticalIssues []string          `json:"critical_issues,omitempty"`
}

// RunResult 整个监督循环的输出
type RunResult struct {
	SupervisionID string                  `json:"supervision_id"`
	Cycles        int                     `json:"cycles"`
	FinalScore    float64                 `json:"final_score"`
	Reason        TerminationReason       `json:"reason"`
	Status        state.SupervisionStatus `json:"status"`
}

// Supervisor 迭代式质量驱动的修订控制器。
// 读写只经过 StateStore，自身不持有任何实体可变状态；
// 质量轨迹跟踪器按监督 id 维护在进程内。
type Supervisor struct {
	store     *store.StateStore
	evaluator QualityEvaluator
	critic    RedTeamCritic
	extractor FactExtractor
	retryer   retry.Retryer
	limiter   *rate.Limiter
	collector *metrics.Collector
	logger    *zap.Logger
	config    Config

	mu       sync.Mutex
	trackers map[string]*convergenceTracker
}

// New 创建监督器。extractor 可以为 nil（不做事实摄取时）。
func New(st *store.StateStore, evaluator QualityEvaluator, critic RedTeamCritic, extractor FactExtractor,
	collector *metrics.Collector, logger *zap.Logger, config Config) *Supervisor {

	if config.QualityTarget <= 0 {
		config.QualityTarget = 8.0
	}
	if config.Epsilon <= 0 {
		config.Epsilon = 0.1
	}
	if config.MaxIterations <= 0 {
		config.MaxIterations = 5
	}
	if config.StagnationWindow <= 0 {
		config.StagnationWindow = 3
	}
	if len(config.Dimensions) == 0 {
		config.Dimensions = DefaultConfig().Dimensions
	}

	var limiter *rate.Limiter
	if config.CollaboratorRPS > 0 {
		burst := config.CollaboratorBurst
		if burst <= 0 {
			burst = 1
		}
		limiter = rate.NewLimiter(rate.Limit(config.CollaboratorRPS), burst)
	}

	return &Supervisor{
		store:     st,
		evaluator: evaluator,
		critic:    critic,
		extractor: extractor,
		retryer:   retry.NewBackoffRetryer(config.Retry, logger),
		limiter:   limiter,
		collector: collector,
		logger:    logger.With(zap.String("component", "supervisor")),
		config:    config,
	}
}

// Begin 为一次研究创建新的监督记录并进入循环前置状态
func (s *Supervisor) Begin(ctx context.Context, supervisionID, researchID string) (*state.SupervisionState, error) {
	rs, err := s.store.GetResearchState(ctx, researchID)
	if err != nil {
		return nil, err
	}

	sv := state.NewSupervisionState(supervisionID, researchID, time.Now().UTC())
	if err := s.store.SetSupervisionState(ctx, sv); err != nil {
		return nil, err
	}

	if rs.Status == state.ResearchPending {
		if err := s.store.UpdateResearchStatus(ctx, researchID, state.ResearchInProgress); err != nil {
			return nil, err
		}
	}
	return sv, nil
}

// Run 驱动监督循环直到终止，返回终止原因
func (s *Supervisor) Run(ctx context.Context, supervisionID string) (*RunResult, error) {
	for {
		res, err := s.RunCycle(ctx, supervisionID)
		if err != nil {
			return nil, err
		}
		if res.Terminal {
			sv, gerr := s.store.GetSupervisionState(ctx, supervisionID)
			if gerr != nil {
				return nil, gerr
			}
			s.forgetTracker(supervisionID)
			return &RunResult{
				SupervisionID: supervisionID,
				Cycles:        res.Cycle,
				FinalScore:    res.Score,
				Reason:        res.Reason,
				Status:        sv.Status,
			}, nil
		}
	}
}

// RunCycle 执行一个监督周期：评估 → 回归守卫 → 红队评审 → 决策 → 持久化。
// 所有写入都经过状态存储，受置信门控约束。
func (s *Supervisor) RunCycle(ctx context.Context, supervisionID string) (*CycleResult, error) {
	sv, err := s.store.GetSupervisionState(ctx, supervisionID)
	if err != nil {
		return nil, err
	}
	if state.IsTerminalSupervision(sv.Status) {
		return &CycleResult{
			SupervisionID: supervisionID,
			ResearchID:    sv.ResearchID,
			Cycle:         sv.CycleNumber,
			Score:         sv.QualityScore,
			Outcome:       OutcomeAlreadyTerminal,
			Terminal:      true,
		}, nil
	}

	rs, err := s.store.GetResearchState(ctx, sv.ResearchID)
	if err != nil {
		return nil, err
	}

	// 周期开始：推进周期号并进入 InProgress
	cycleStart := sv.Clone()
	cycleStart.CycleNumber = sv.CycleNumber + 1
	cycleStart.Status = state.SupervisionInProgress
	if err := s.store.SetSupervisionState(ctx, cycleStart); err != nil {
		return nil, err
	}
	sv = cycleStart
	cycle := sv.CycleNumber

	s.logger.Info("supervision cycle started",
		zap.String("supervision_id", supervisionID),
		zap.String("research_id", rs.ID),
		zap.Int("cycle", cycle),
	)

	if rs.Status == state.ResearchPending {
		if err := s.store.UpdateResearchStatus(ctx, rs.ID, state.ResearchInProgress); err != nil {
			return nil, err
		}
	}

	// 1. 质量评估
	draft := draftOf(rs)
	var report *QualityReport
	if err := collaboratorCall(ctx, s.limiter, s.retryer, "quality evaluator", func(cctx context.Context) error {
		r, e := s.evaluator.Evaluate(cctx, draft, s.config.Dimensions)
		if e != nil {
			return e
		}
		report = r
		return nil
	}); err != nil {
		return s.escalateFailure(ctx, sv, rs, err)
	}

	score := report.OverallScore
	s.collector.RecordQualityScore(rs.ID, score)
	s.trackerFor(supervisionID).Observe(score)

	// 2. 回归守卫：分数比上一周期低超过 epsilon 时不进入评审。
	// sv.QualityScore 此时仍是上一周期记录的分数。
	if cycle > 1 && score < sv.QualityScore-s.config.Epsilon {
		return s.concludeRegression(ctx, sv, rs, score)
	}

	// 3. 红队评审
	reviewing := sv.Clone()
	reviewing.Status = state.SupervisionRedTeamReview
	reviewing.QualityScore = score
	if cycle > 1 {
		prevScore := sv.QualityScore
		reviewing.PreviousQualityScore = &prevScore
	}
	if err := s.store.SetSupervisionState(ctx, reviewing); err != nil {
		return nil, err
	}
	sv = reviewing

	var critique *Critique
	if err := collaboratorCall(ctx, s.limiter, s.retryer, "red-team critic", func(cctx context.Context) error {
		c, e := s.critic.Critique(cctx, draft, rs.Query)
		if e != nil {
			return e
		}
		critique = c
		return nil
	}); err != nil {
		return s.escalateFailure(ctx, sv, rs, err)
	}

	criticals := critique.CriticalIssues()

	// 4. 决策
	if len(criticals) == 0 && score >= s.config.QualityTarget {
		return s.concludeApproved(ctx, sv, rs, score)
	}
	return s.concludeRejected(ctx, sv, rs, score, critique)
}

// IngestFindings 将协作方产出的原始内容抽取为结构化事实并入研究状态。
// extractor 未配置时为空操作。
func (s *Supervisor) IngestFindings(ctx context.Context, researchID, rawContent string) error {
	if s.extractor == nil {
		return nil
	}

	var facts []state.Fact
	var sources []string
	if err := collaboratorCall(ctx, s.limiter, s.retryer, "fact extractor", func(cctx context.Context) error {
		f, src, e := s.extractor.Extract(cctx, rawContent)
		if e != nil {
			return e
		}
		facts, sources = f, src
		return nil
	}); err != nil {
		return err
	}

	rs, err := s.store.GetResearchState(ctx, researchID)
	if err != nil {
		return err
	}
	next := rs.Clone()
	next.Facts = append(next.Facts, facts...)
	for _, src := range sources {
		if !containsStr(next.Sources, src) {
			next.Sources = append(next.Sources, src)
		}
	}
	return s.store.SetResearchState(ctx, next)
}

// =============================================================================
// ⚖️ 周期结论
// =============================================================================

func (s *Supervisor) concludeApproved(ctx context.Context, sv *state.SupervisionState, rs *state.ResearchState, score float64) (*CycleResult, error) {
	approved := sv.Clone()
	approved.Status = state.SupervisionApproved
	approved.CriticalIssues = nil
	if err := s.store.SetSupervisionState(ctx, approved); err != nil {
		return nil, err
	}

	done := approved.Clone()
	done.Status = state.SupervisionCompleted
	now := time.Now().UTC()
	done.CompletedAt = &now
	done.Recommendation = fmt.Sprintf("approved at cycle %d with score %.1f", done.CycleNumber, score)
	if err := s.store.SetSupervisionState(ctx, done); err != nil {
		return nil, err
	}

	if err := s.store.UpdateResearchProgress(ctx, rs.ID, score, done.CycleNumber); err != nil {
		return nil, err
	}
	if err := s.store.UpdateResearchStatus(ctx, rs.ID, state.ResearchCompleted); err != nil {
		return nil, err
	}

	s.collector.RecordSupervisionCycle(string(OutcomeApproved))
	s.logger.Info("supervision converged",
		zap.String("supervision_id", sv.ID),
		zap.Int("cycle", done.CycleNumber),
		zap.Float64("score", score),
	)

	return &CycleResult{
		SupervisionID: sv.ID,
		ResearchID:    rs.ID,
		Cycle:         done.CycleNumber,
		Score:         score,
		Outcome:       OutcomeApproved,
		Terminal:      true,
		Reason:        ReasonConverged,
	}, nil
}

func (s *Supervisor) concludeRegression(ctx context.Context, sv *state.SupervisionState, rs *state.ResearchState, score float64) (*CycleResult, error) {
	failedCheck := sv.Clone()
	failedCheck.Status = state.SupervisionQualityCheckFailed
	prev := sv.QualityScore
	failedCheck.PreviousQualityScore = &prev
	failedCheck.QualityScore = score
	if err := s.store.SetSupervisionState(ctx, failedCheck); err != nil {
		return nil, err
	}

	s.collector.RecordSupervisionCycle(string(OutcomeQualityRegression))
	s.logger.Warn("quality regression detected, scheduling another cycle",
		zap.String("supervision_id", sv.ID),
		zap.Int("cycle", failedCheck.CycleNumber),
		zap.Float64("score", score),
		zap.Float64("previous", prev),
	)

	return s.maybeForceStop(ctx, failedCheck, rs, score, OutcomeQualityRegression)
}

func (s *Supervisor) concludeRejected(ctx context.Context, sv *state.SupervisionState, rs *state.ResearchState, score float64, critique *Critique) (*CycleResult, error) {
	rejected := sv.Clone()
	rejected.Status = state.SupervisionRejectedForRevision
	rejected.CriticalIssues = critique.CriticalIssues()
	rejected.Improvements = append(rejected.Improvements, critique.MinorIssues()...)
	if critique.Summary != "" {
		rejected.Recommendation = critique.Summary
	}
	if err := s.store.SetSupervisionState(ctx, rejected); err != nil {
		return nil, err
	}

	// 问题反馈给下一轮研究/修订
	if err := s.store.UpdateResearchProgress(ctx, rs.ID, score, rejected.CycleNumber); err != nil {
		return nil, err
	}
	if len(rejected.CriticalIssues) > 0 {
		fresh, err := s.store.GetResearchState(ctx, rs.ID)
		if err != nil {
			return nil, err
		}
		next := fresh.Clone()
		if next.Metadata == nil {
			next.Metadata = map[string]string{}
		}
		next.Metadata["critical_issues"] = strings.Join(rejected.CriticalIssues, "; ")
		if err := s.store.SetResearchState(ctx, next); err != nil {
			return nil, err
		}
	}

	s.collector.RecordSupervisionCycle(string(OutcomeRejectedForRevision))

	return s.maybeForceStop(ctx, rejected, rs, score, OutcomeRejectedForRevision)
}

// maybeForceStop 在非收敛周期结束后应用预算/停滞终止策略
func (s *Supervisor) maybeForceStop(ctx context.Context, sv *state.SupervisionState, rs *state.ResearchState, score float64, outcome CycleOutcome) (*CycleResult, error) {
	reason, stop := s.trackerFor(sv.ID).ShouldStop(sv.CycleNumber)
	if !stop {
		return &CycleResult{
			SupervisionID:  sv.ID,
			ResearchID:     rs.ID,
			Cycle:          sv.CycleNumber,
			Score:          score,
			Outcome:        outcome,
			CriticalIssues: sv.CriticalIssues,
		}, nil
	}

	done := sv.Clone()
	done.Status = state.SupervisionCompleted
	now := time.Now().UTC()
	done.CompletedAt = &now
	done.Recommendation = fmt.Sprintf("terminated without convergence: %s after cycle %d (score %.1f, target %.1f)",
		reason, done.CycleNumber, score, s.config.QualityTarget)
	if err := s.store.SetSupervisionState(ctx, done); err != nil {
		return nil, err
	}
	if err := s.store.UpdateResearchStatus(ctx, rs.ID, state.ResearchCompleted); err != nil {
		return nil, err
	}

	forced := OutcomeAtBudget
	if reason == ReasonStagnated {
		forced = OutcomeStagnated
	}
	s.collector.RecordSupervisionCycle(string(forced))
	s.logger.Warn("supervision terminated without convergence",
		zap.String("supervision_id", sv.ID),
		zap.String("reason", string(reason)),
		zap.Int("cycle", done.CycleNumber),
		zap.Float64("score", score),
	)

	return &CycleResult{
		SupervisionID:  sv.ID,
		ResearchID:     rs.ID,
		Cycle:          done.CycleNumber,
		Score:          score,
		Outcome:        forced,
		Terminal:       true,
		Reason:         reason,
		CriticalIssues: sv.CriticalIssues,
	}, nil
}

// escalateFailure 协作方重试耗尽：监督与研究都标记 Failed，
// 最后一次成功提交的状态保持不变
func (s *Supervisor) escalateFailure(ctx context.Context, sv *state.SupervisionState, rs *state.ResearchState, cause error) (*CycleResult, error) {
	failed := sv.Clone()
	failed.Status = state.SupervisionFailed
	now := time.Now().UTC()
	failed.CompletedAt = &now
	if err := s.store.SetSupervisionState(ctx, failed); err != nil {
		s.logger.Error("failed to persist supervision failure", zap.String("supervision_id", sv.ID), zap.Error(err))
	}
	if err := s.store.UpdateResearchStatus(ctx, rs.ID, state.ResearchFailed); err != nil {
		s.logger.Error("failed to persist research failure", zap.String("research_id", rs.ID), zap.Error(err))
	}

	s.collector.RecordSupervisionCycle(string(OutcomeFailed))
	s.forgetTracker(sv.ID)

	return &CycleResult{
			SupervisionID: sv.ID,
			ResearchID:    rs.ID,
			Cycle:         sv.CycleNumber,
			Score:         sv.QualityScore,
			Outcome:       OutcomeFailed,
			Terminal:      true,
			Reason:        ReasonFailed,
		}, types.NewError(types.ErrConvergenceExhausted, "collaborator retries exhausted").
			WithEntityID(sv.ID).WithCause(cause)
}

// =============================================================================
// 🔧 辅助
// =============================================================================

func (s *Supervisor) trackerFor(supervisionID string) *convergenceTracker {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.trackers == nil {
		s.trackers = make(map[string]*convergenceTracker)
	}
	t, ok := s.trackers[supervisionID]
	if !ok {
		t = newConvergenceTracker(s.config.QualityTarget, s.config.Epsilon, s.config.MaxIterations, s.config.StagnationWindow)
		s.trackers[supervisionID] = t
	}
	return t
}

func (s *Supervisor) forgetTracker(supervisionID string) {
	s.mu.Lock()
	defer s.mu.Unlock()
	delete(s.trackers, supervisionID)
}

// draftOf 取当前草稿内容：优先 metadata 中的草稿，否则由事实拼接
func draftOf(rs *state.ResearchState) string {
	if d, ok := rs.Metadata["draft"]; ok && d != "" {
		return d
	}
	var b strings.Builder
	for _, f := range rs.Facts {
		b.WriteString(f.Content)
		b.WriteString("\n")
	}
	return b.String()
}

func containsStr(list []string, v string) bool {
	for _, s := range list {
		if s == v {
			return true
		}
	}
	return false
}
