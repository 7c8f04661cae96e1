package supervisor

// TerminationReason 标记监督循环为何终止，调用方据此区分
// 真正收敛与被迫停止
type TerminationReason string

const (
	// ReasonConverged 质量达标且无 critical 问题
	ReasonConverged TerminationReason = "converged"

	// ReasonAtBudget 达到最大迭代次数
	ReasonAtBudget TerminationReason = "at_budget"

	// ReasonStagnated 连续 N 个周期质量无实质提升
	ReasonStagnated TerminationReason = "stagnated"

	// ReasonFailed 协作方调用重试耗尽后升级失败
	ReasonFailed TerminationReason = "failed"
)

// convergenceTracker 跟踪单个监督 id 的质量轨迹，
// 判定收敛、预算耗尽与停滞
type convergenceTracker struct {
	target      float64
	epsilon     float64
	maxCycles   int
	staleWindow int

	bestScore   float64
	hasBaseline bool
	staleStreak int
}

func newConvergenceTracker(target, epsilon float64, maxCycles, staleWindow int) *convergenceTracker {
	return &convergenceTracker{
		target:      target,
		epsilon:     epsilon,
		maxCycles:   maxCycles,
		staleWindow: staleWindow,
	}
}

// Observe 记录一个周期的评分，返回该周期是否带来实质提升
func (t *convergenceTracker) Observe(score float64) bool {
	if !t.hasBaseline {
		t.hasBaseline = true
		t.bestScore = score
		t.staleStreak = 0
		return true
	}
	if score > t.bestScore+t.epsilon {
		t.bestScore = score
		t.staleStreak = 0
		return true
	}
	t.staleStreak++
	return false
}

// ShouldStop 在一个周期结束后判定是否必须终止。
// 收敛判定由调用方（结合 critical 问题）先行处理，这里只覆盖
// 预算与停滞两个强制终止条件。
func (t *convergenceTracker) ShouldStop(cycle int) (TerminationReason, bool) {
	if t.maxCycles > 0 && cycle >= t.maxCycles {
		return ReasonAtBudget, true
	}
	if t.staleWindow > 0 && t.staleStreak >= t.staleWindow {
		return ReasonStagnated, true
	}
	return "", false
}
