package supervisor

import (
	"context"

	"golang.org/x/time/rate"

	"github.com/anthonyadame/DeepResearchAgent-sub002/retry"
	"github.com/anthonyadame/DeepResearchAgent-sub002/state"
	"github.com/anthonyadame/DeepResearchAgent-sub002/types"
)

// =============================================================================
// 🤝 协作方接口
// =============================================================================
// 协作方对状态实体必须无副作用：它们只收到内容副本，从不持有实体句柄。

// QualityReport 质量评估结果
type QualityReport struct {
	// OverallScore 按维度权重汇总的总分（0-10）
	OverallScore float64 `json:"overall_score"`

	// Dimensions 每个维度的得分（0-10）
	Dimensions map[string]float64 `json:"dimensions"`

	// Summary 评估摘要
	Summary string `json:"summary,omitempty"`
}

// QualityEvaluator 质量评估协作方
type QualityEvaluator interface {
	// Evaluate 对草稿内容按给定维度打分
	Evaluate(ctx context.Context, content string, dimensions []string) (*QualityReport, error)
}

// IssueSeverity 评审问题严重级别
type IssueSeverity string

const (
	SeverityCritical IssueSeverity = "critical"
	SeverityMinor    IssueSeverity = "minor"
)

// Issue 红队评审发现的单个问题
type Issue struct {
	Severity    IssueSeverity `json:"severity"`
	Description string        `json:"description"`
}

// Critique 红队评审结果
type Critique struct {
	Issues  []Issue `json:"issues,omitempty"`
	Summary string  `json:"summary,omitempty"`
}

// CriticalIssues 返回全部 critical 级问题描述
func (c *Critique) CriticalIssues() []string {
	var out []string
	for _, is := range c.Issues {
		if is.Severity == SeverityCritical {
			out = append(out, is.Description)
		}
	}
	return out
}

// MinorIssues 返回全部 minor 级问题描述
func (c *Critique) MinorIssues() []string {
	var out []string
	for _, is := range c.Issues {
		if is.Severity == SeverityMinor {
			out = append(out, is.Description)
		}
	}
	return out
}

// RedTeamCritic 红队评审协作方
type RedTeamCritic interface {
	// Critique 对草稿和研究简报做对抗性评审
	Critique(ctx context.Context, draft string, brief string) (*Critique, error)
}

// FactExtractor 事实抽取协作方
type FactExtractor interface {
	// Extract 从原始内容中抽取带置信分和来源的结构化事实
	Extract(ctx context.Context, content string) ([]state.Fact, []string, error)
}

// =============================================================================
// 🛡️ 协作方调用包装
// =============================================================================

// collaboratorCall 统一协作方调用路径：限流 → 执行 → 失败按瞬态错误重试。
// 超时与其他瞬态失败同等对待。
func collaboratorCall(ctx context.Context, limiter *rate.Limiter, retryer retry.Retryer, name string, fn func(ctx context.Context) error) error {
	return retryer.Do(ctx, func() error {
		if limiter != nil {
			if err := limiter.Wait(ctx); err != nil {
				return types.NewError(types.ErrCollaboratorFailed, name+" rate wait cancelled").WithCause(err)
			}
		}
		if err := fn(ctx); err != nil {
			if ctx.Err() != nil {
				return types.NewError(types.ErrCollaboratorFailed, name+" cancelled").WithCause(err)
			}
			return types.NewError(types.ErrCollaboratorFailed, name+" call failed").
				WithRetryable(true).WithCause(err)
		}
		return nil
	})
}
