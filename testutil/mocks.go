// =============================================================================
// 🎭 脚本化协作方与门控
// =============================================================================
// 按预设脚本逐次返回结果的测试替身,调用完脚本后重复最后一项。
// =============================================================================
package testutil

import (
	"context"
	"errors"
	"sync"

	"github.com/anthonyadame/DeepResearchAgent-sub002/state"
	"github.com/anthonyadame/DeepResearchAgent-sub002/supervisor"
)

// ErrScriptExhausted 脚本为空时返回
var ErrScriptExhausted = errors.New("testutil: script exhausted")

// ScriptedEvaluator 按脚本返回质量分
type ScriptedEvaluator struct {
	mu sync.Mutex

	// Scores 每次调用依次返回的总分
	Scores []float64

	// Errs 对应调用返回的错误,长度可短于 Scores
	Errs []error

	// Calls 已发生的调用次数
	Calls int
}

// Evaluate 实现 supervisor.QualityEvaluator
func (e *ScriptedEvaluator) Evaluate(ctx context.Context, content string, dimensions []string) (*supervisor.QualityReport, error) {
	e.mu.Lock()
	defer e.mu.Unlock()

	i := e.Calls
	e.Calls++

	if i < len(e.Errs) && e.Errs[i] != nil {
		return nil, e.Errs[i]
	}
	if len(e.Scores) == 0 {
		return nil, ErrScriptExhausted
	}
	if i >= len(e.Scores) {
		i = len(e.Scores) - 1
	}

	score := e.Scores[i]
	dims := make(map[string]float64, len(dimensions))
	for _, d := range dimensions {
		dims[d] = score
	}
	return &supervisor.QualityReport{
		OverallScore: score,
		Dimensions:   dims,
	}, nil
}

// ScriptedCritic 按脚本返回评审结果
type ScriptedCritic struct {
	mu sync.Mutex

	// Critiques 每次调用依次返回的评审,nil 表示无问题
	Critiques []*supervisor.Critique

	// Errs 对应调用返回的错误
	Errs []error

	// Calls 已发生的调用次数
	Calls int
}

// Critique 实现 supervisor.RedTeamCritic
func (c *ScriptedCritic) Critique(ctx context.Context, draft string, brief string) (*supervisor.Critique, error) {
	c.mu.Lock()
	defer c.mu.Unlock()

	i := c.Calls
	c.Calls++

	if i < len(c.Errs) && c.Errs[i] != nil {
		return nil, c.Errs[i]
	}
	if len(c.Critiques) == 0 {
		return &supervisor.Critique{}, nil
	}
	if i >= len(c.Critiques) {
		i = len(c.Critiques) - 1
	}
	if c.Critiques[i] == nil {
		return &supervisor.Critique{}, nil
	}
	return c.Critiques[i], nil
}

// CriticalIssue 构造一个 critical 级问题
func CriticalIssue(description string) supervisor.Issue {
	return supervisor.Issue{Severity: supervisor.SeverityCritical, Description: description}
}

// MinorIssue 构造一个 minor 级问题
func MinorIssue(description string) supervisor.Issue {
	return supervisor.Issue{Severity: supervisor.SeverityMinor, Description: description}
}

// StaticExtractor 返回固定事实集合
type StaticExtractor struct {
	Facts   []state.Fact
	Sources []string
	Err     error
}

// Extract 实现 supervisor.FactExtractor
func (e *StaticExtractor) Extract(ctx context.Context, content string) ([]state.Fact, []string, error) {
	if e.Err != nil {
		return nil, nil, e.Err
	}
	return e.Facts, e.Sources, nil
}

// ScriptedGate 按脚本返回置信分,脚本耗尽后重复最后一项
type ScriptedGate struct {
	mu sync.Mutex

	// Scores 每次评估依次返回的置信分
	Scores []float64

	// Errs 对应评估返回的错误
	Errs []error

	// Calls 已发生的评估次数
	Calls int
}

// Evaluate 实现 store.ConfidenceGate
func (g *ScriptedGate) Evaluate(ctx context.Context, payload []byte, entityType state.EntityType) (float64, error) {
	g.mu.Lock()
	defer g.mu.Unlock()

	i := g.Calls
	g.Calls++

	if i < len(g.Errs) && g.Errs[i] != nil {
		return 0, g.Errs[i]
	}
	if len(g.Scores) == 0 {
		return 1.0, nil
	}
	if i >= len(g.Scores) {
		i = len(g.Scores) - 1
	}
	return g.Scores[i], nil
}
