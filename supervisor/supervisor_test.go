package supervisor_test

import (
	"errors"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"github.com/anthonyadame/DeepResearchAgent-sub002/internal/metrics"
	"github.com/anthonyadame/DeepResearchAgent-sub002/persistence"
	"github.com/anthonyadame/DeepResearchAgent-sub002/retry"
	"github.com/anthonyadame/DeepResearchAgent-sub002/state"
	"github.com/anthonyadame/DeepResearchAgent-sub002/store"
	"github.com/anthonyadame/DeepResearchAgent-sub002/supervisor"
	"github.com/anthonyadame/DeepResearchAgent-sub002/testutil"
	"github.com/anthonyadame/DeepResearchAgent-sub002/types"
)

func fastPolicy() *retry.Policy {
	return &retry.Policy{
		MaxRetries:   1,
		InitialDelay: time.Millisecond,
		MaxDelay:     5 * time.Millisecond,
		Multiplier:   2.0,
	}
}

func newSupervisorHarness(t *testing.T, eval supervisor.QualityEvaluator, critic supervisor.RedTeamCritic,
	extractor supervisor.FactExtractor, mutate func(*supervisor.Config)) (*supervisor.Supervisor, *store.StateStore) {

	t.Helper()

	backend := persistence.NewMemoryBackend()
	collector := metrics.NewCollector("test", zap.NewNop())
	storeCfg := store.DefaultConfig()
	storeCfg.Retry = fastPolicy()
	st := store.New(backend, store.StaticGate{Score: 1.0}, collector, zap.NewNop(), storeCfg)
	t.Cleanup(func() {
		st.Close()
		backend.Close()
	})

	cfg := supervisor.DefaultConfig()
	cfg.CollaboratorRPS = 0 // 测试中不限流
	cfg.Retry = fastPolicy()
	if mutate != nil {
		mutate(&cfg)
	}

	sup := supervisor.New(st, eval, critic, extractor, collector, zap.NewNop(), cfg)
	return sup, st
}

func beginSupervision(t *testing.T, sup *supervisor.Supervisor, st *store.StateStore, svID, researchID string) {
	t.Helper()
	ctx := testutil.TestContext(t)
	require.NoError(t, st.SetResearchState(ctx, testutil.NewResearchFixture(researchID)))
	_, err := sup.Begin(ctx, svID, researchID)
	require.NoError(t, err)
}

func TestBegin_CreatesPendingSupervisionAndStartsResearch(t *testing.T) {
	sup, st := newSupervisorHarness(t, &testutil.ScriptedEvaluator{Scores: []float64{9.0}}, &testutil.ScriptedCritic{}, nil, nil)
	ctx := testutil.TestContext(t)

	require.NoError(t, st.SetResearchState(ctx, testutil.NewResearchFixture("r1")))

	sv, err := sup.Begin(ctx, "sv1", "r1")
	require.NoError(t, err)
	assert.Equal(t, state.SupervisionPending, sv.Status)
	assert.Equal(t, 0, sv.CycleNumber)

	rs, err := st.GetResearchState(ctx, "r1")
	require.NoError(t, err)
	assert.Equal(t, state.ResearchInProgress, rs.Status)
}

func TestBegin_MissingResearchFails(t *testing.T) {
	sup, _ := newSupervisorHarness(t, &testutil.ScriptedEvaluator{Scores: []float64{9.0}}, &testutil.ScriptedCritic{}, nil, nil)
	ctx := testutil.TestContext(t)

	_, err := sup.Begin(ctx, "sv1", "missing")
	require.Error(t, err)
	assert.True(t, types.IsCode(err, types.ErrEntityNotFound))
}

func TestRun_ConvergesWhenQualityReachesTarget(t *testing.T) {
	eval := &testutil.ScriptedEvaluator{Scores: []float64{4.0, 5.5, 7.2, 8.1}}
	sup, st := newSupervisorHarness(t, eval, &testutil.ScriptedCritic{}, nil, nil)
	beginSupervision(t, sup, st, "sv1", "r1")
	ctx := testutil.TestContext(t)

	res, err := sup.Run(ctx, "sv1")
	require.NoError(t, err)
	assert.Equal(t, 4, res.Cycles)
	assert.InDelta(t, 8.1, res.FinalScore, 1e-9)
	assert.Equal(t, supervisor.ReasonConverged, res.Reason)
	assert.Equal(t, state.SupervisionCompleted, res.Status)

	sv, err := st.GetSupervisionState(ctx, "sv1")
	require.NoError(t, err)
	assert.Equal(t, state.SupervisionCompleted, sv.Status)
	require.NotNil(t, sv.CompletedAt)
	assert.Contains(t, sv.Recommendation, "approved")

	rs, err := st.GetResearchState(ctx, "r1")
	require.NoError(t, err)
	assert.Equal(t, state.ResearchCompleted, rs.Status)
	assert.InDelta(t, 8.1, rs.QualityScore, 1e-9)
	assert.Equal(t, 4, rs.IterationCount)
}

func TestRun_StopsOnStagnation(t *testing.T) {
	eval := &testutil.ScriptedEvaluator{Scores: []float64{6.0}} // 脚本耗尽后重复 6.0
	sup, st := newSupervisorHarness(t, eval, &testutil.ScriptedCritic{}, nil, func(cfg *supervisor.Config) {
		cfg.MaxIterations = 10
		cfg.StagnationWindow = 3
	})
	beginSupervision(t, sup, st, "sv1", "r1")
	ctx := testutil.TestContext(t)

	res, err := sup.Run(ctx, "sv1")
	require.NoError(t, err)
	assert.Equal(t, supervisor.ReasonStagnated, res.Reason)
	assert.Equal(t, 4, res.Cycles, "基线 + 3 个无提升周期")
	assert.Equal(t, state.SupervisionCompleted, res.Status)

	sv, err := st.GetSupervisionState(ctx, "sv1")
	require.NoError(t, err)
	assert.Contains(t, sv.Recommendation, "stagnated")

	rs, err := st.GetResearchState(ctx, "r1")
	require.NoError(t, err)
	assert.Equal(t, state.ResearchCompleted, rs.Status)
}

func TestRun_StopsAtIterationBudget(t *testing.T) {
	eval := &testutil.ScriptedEvaluator{Scores: []float64{4.0, 5.0, 6.0}}
	sup, st := newSupervisorHarness(t, eval, &testutil.ScriptedCritic{}, nil, func(cfg *supervisor.Config) {
		cfg.MaxIterations = 3
	})
	beginSupervision(t, sup, st, "sv1", "r1")
	ctx := testutil.TestContext(t)

	res, err := sup.Run(ctx, "sv1")
	require.NoError(t, err)
	assert.Equal(t, supervisor.ReasonAtBudget, res.Reason)
	assert.Equal(t, 3, res.Cycles)
	assert.Equal(t, state.SupervisionCompleted, res.Status)

	sv, err := st.GetSupervisionState(ctx, "sv1")
	require.NoError(t, err)
	assert.Contains(t, sv.Recommendation, "at_budget")
}

func TestRunCycle_RejectsOnCriticalIssuesDespiteHighScore(t *testing.T) {
	critic := &testutil.ScriptedCritic{
		Critiques: []*supervisor.Critique{
			{
				Issues: []supervisor.Issue{
					testutil.CriticalIssue("claim lacks a primary source"),
					testutil.MinorIssue("tighten the abstract"),
				},
				Summary: "needs sourcing before approval",
			},
			{}, // 第二轮无问题
		},
	}
	eval := &testutil.ScriptedEvaluator{Scores: []float64{9.0, 9.2}}
	sup, st := newSupervisorHarness(t, eval, critic, nil, nil)
	beginSupervision(t, sup, st, "sv1", "r1")
	ctx := testutil.TestContext(t)

	res, err := sup.RunCycle(ctx, "sv1")
	require.NoError(t, err)
	assert.Equal(t, supervisor.OutcomeRejectedForRevision, res.Outcome)
	assert.False(t, res.Terminal)
	assert.Equal(t, []string{"claim lacks a primary source"}, res.CriticalIssues)

	sv, err := st.GetSupervisionState(ctx, "sv1")
	require.NoError(t, err)
	assert.Equal(t, state.SupervisionRejectedForRevision, sv.Status)
	assert.Equal(t, []string{"claim lacks a primary source"}, sv.CriticalIssues)
	assert.Contains(t, sv.Improvements, "tighten the abstract")
	assert.Equal(t, "needs sourcing before approval", sv.Recommendation)

	// critical 问题回流到研究元数据供下一轮修订
	rs, err := st.GetResearchState(ctx, "r1")
	require.NoError(t, err)
	assert.Equal(t, "claim lacks a primary source", rs.Metadata["critical_issues"])
	assert.InDelta(t, 9.0, rs.QualityScore, 1e-9)
	assert.Equal(t, 1, rs.IterationCount)

	// 问题解决后下一周期收敛
	res, err = sup.RunCycle(ctx, "sv1")
	require.NoError(t, err)
	assert.Equal(t, supervisor.OutcomeApproved, res.Outcome)
	assert.True(t, res.Terminal)
	assert.Equal(t, supervisor.ReasonConverged, res.Reason)
}

func TestRunCycle_QualityRegressionTriggersGuard(t *testing.T) {
	eval := &testutil.ScriptedEvaluator{Scores: []float64{7.0, 5.0, 7.5, 8.5}}
	sup, st := newSupervisorHarness(t, eval, &testutil.ScriptedCritic{}, nil, nil)
	beginSupervision(t, sup, st, "sv1", "r1")
	ctx := testutil.TestContext(t)

	res, err := sup.RunCycle(ctx, "sv1")
	require.NoError(t, err)
	assert.Equal(t, supervisor.OutcomeRejectedForRevision, res.Outcome)

	// 第二周期分数从 7.0 跌到 5.0,触发回归守卫而不是进入评审
	res, err = sup.RunCycle(ctx, "sv1")
	require.NoError(t, err)
	assert.Equal(t, supervisor.OutcomeQualityRegression, res.Outcome)
	assert.False(t, res.Terminal)
	assert.Equal(t, 2, res.Cycle)

	sv, err := st.GetSupervisionState(ctx, "sv1")
	require.NoError(t, err)
	assert.Equal(t, state.SupervisionQualityCheckFailed, sv.Status)
	assert.InDelta(t, 5.0, sv.QualityScore, 1e-9)
	require.NotNil(t, sv.PreviousQualityScore)
	assert.InDelta(t, 7.0, *sv.PreviousQualityScore, 1e-9)

	// 回归之后仍可继续修订并最终收敛
	res, err = sup.RunCycle(ctx, "sv1")
	require.NoError(t, err)
	assert.Equal(t, supervisor.OutcomeRejectedForRevision, res.Outcome)

	res, err = sup.RunCycle(ctx, "sv1")
	require.NoError(t, err)
	assert.Equal(t, supervisor.OutcomeApproved, res.Outcome)
	assert.True(t, res.Terminal)
}

func TestRunCycle_CollaboratorExhaustionEscalatesToFailed(t *testing.T) {
	boom := errors.New("evaluator offline")
	eval := &testutil.ScriptedEvaluator{Errs: []error{boom, boom, boom}}
	sup, st := newSupervisorHarness(t, eval, &testutil.ScriptedCritic{}, nil, nil)
	beginSupervision(t, sup, st, "sv1", "r1")
	ctx := testutil.TestContext(t)

	res, err := sup.RunCycle(ctx, "sv1")
	require.Error(t, err)
	assert.True(t, types.IsCode(err, types.ErrConvergenceExhausted))
	assert.False(t, types.IsRetryable(err))
	assert.True(t, errors.Is(err, boom))

	require.NotNil(t, res)
	assert.Equal(t, supervisor.OutcomeFailed, res.Outcome)
	assert.True(t, res.Terminal)
	assert.Equal(t, supervisor.ReasonFailed, res.Reason)

	sv, gerr := st.GetSupervisionState(ctx, "sv1")
	require.NoError(t, gerr)
	assert.Equal(t, state.SupervisionFailed, sv.Status)
	require.NotNil(t, sv.CompletedAt)

	rs, gerr := st.GetResearchState(ctx, "r1")
	require.NoError(t, gerr)
	assert.Equal(t, state.ResearchFailed, rs.Status)
}

func TestRun_PropagatesCollaboratorFailure(t *testing.T) {
	boom := errors.New("critic offline")
	eval := &testutil.ScriptedEvaluator{Scores: []float64{6.5}}
	critic := &testutil.ScriptedCritic{Errs: []error{boom, boom, boom}}
	sup, st := newSupervisorHarness(t, eval, critic, nil, nil)
	beginSupervision(t, sup, st, "sv1", "r1")
	ctx := testutil.TestContext(t)

	_, err := sup.Run(ctx, "sv1")
	require.Error(t, err)
	assert.True(t, types.IsCode(err, types.ErrConvergenceExhausted))
}

func TestRunCycle_TerminalSupervisionIsNoOp(t *testing.T) {
	eval := &testutil.ScriptedEvaluator{Scores: []float64{9.0}}
	sup, st := newSupervisorHarness(t, eval, &testutil.ScriptedCritic{}, nil, nil)
	beginSupervision(t, sup, st, "sv1", "r1")
	ctx := testutil.TestContext(t)

	res, err := sup.Run(ctx, "sv1")
	require.NoError(t, err)
	require.Equal(t, supervisor.ReasonConverged, res.Reason)

	sv, err := st.GetSupervisionState(ctx, "sv1")
	require.NoError(t, err)
	versionBefore := sv.Version

	again, err := sup.RunCycle(ctx, "sv1")
	require.NoError(t, err)
	assert.Equal(t, supervisor.OutcomeAlreadyTerminal, again.Outcome)
	assert.True(t, again.Terminal)

	sv, err = st.GetSupervisionState(ctx, "sv1")
	require.NoError(t, err)
	assert.Equal(t, versionBefore, sv.Version, "终态监督不应再产生写入")
}

func TestIngestFindings_AppendsFactsAndDedupesSources(t *testing.T) {
	extractor := &testutil.StaticExtractor{
		Facts: []state.Fact{{
			Content:    "lattice surgery reduces routing overhead",
			Source:     "https://example.org/lattice-surgery",
			Confidence: 0.77,
			Status:     state.FactUnverified,
		}},
		Sources: []string{
			"https://example.org/surface-codes", // 已存在,应去重
			"https://example.org/lattice-surgery",
		},
	}
	eval := &testutil.ScriptedEvaluator{Scores: []float64{9.0}}
	sup, st := newSupervisorHarness(t, eval, &testutil.ScriptedCritic{}, extractor, nil)
	ctx := testutil.TestContext(t)

	require.NoError(t, st.SetResearchState(ctx, testutil.NewResearchFixture("r1")))
	require.NoError(t, sup.IngestFindings(ctx, "r1", "raw collaborator notes"))

	rs, err := st.GetResearchState(ctx, "r1")
	require.NoError(t, err)
	require.Len(t, rs.Facts, 3)
	assert.Equal(t, "lattice surgery reduces routing overhead", rs.Facts[2].Content)

	require.Len(t, rs.Sources, 3)
	count := 0
	for _, src := range rs.Sources {
		if strings.Contains(src, "surface-codes") {
			count++
		}
	}
	assert.Equal(t, 1, count)
}

func TestIngestFindings_WithoutExtractorIsNoOp(t *testing.T) {
	eval := &testutil.ScriptedEvaluator{Scores: []float64{9.0}}
	sup, st := newSupervisorHarness(t, eval, &testutil.ScriptedCritic{}, nil, nil)
	ctx := testutil.TestContext(t)

	require.NoError(t, st.SetResearchState(ctx, testutil.NewResearchFixture("r1")))
	require.NoError(t, sup.IngestFindings(ctx, "r1", "ignored"))

	rs, err := st.GetResearchState(ctx, "r1")
	require.NoError(t, err)
	assert.Equal(t, int64(1), rs.Version)
}
