package state

import (
	"time"

	"github.com/anthonyadame/DeepResearchAgent-sub002/types"
)

// EntityType 实体类型标签，同时作为持久层键前缀和置信门控的类型标识
type EntityType string

const (
	EntityAgent        EntityType = "agent_state"
	EntityResearch     EntityType = "research_state"
	EntityVerification EntityType = "verification_state"
	EntitySupervision  EntityType = "supervision_state"
)

// Entity 是状态存储可寻址的实体统一接口
type Entity interface {
	// EntityID 返回在同类型内唯一的实体 id
	EntityID() string

	// EntityType 返回实体类型标签
	EntityType() EntityType

	// GetVersion 返回当前版本号（首次提交前为 0）
	GetVersion() int64

	// SetVersion 设置版本号，仅由 store 在提交路径调用
	SetVersion(v int64)

	// Touch 更新 LastUpdated，仅由 store 在提交路径调用
	Touch(now time.Time)

	// Validate 校验实体自身的不变量，失败返回 VALIDATION 错误
	Validate() error
}

// ValidateSuccessor 校验 next 能否作为 prev 的后继提交。
// prev 为 nil 表示首次写入。检查内容：
//   - id 与类型不变
//   - 状态转换合法（CanTransition）
//   - IterationCount / CycleNumber 单调非减
func ValidateSuccessor(prev, next Entity) error {
	if next == nil {
		return types.NewError(types.ErrValidation, "entity is nil")
	}
	if err := next.Validate(); err != nil {
		return err
	}
	if prev == nil {
		return nil
	}
	if prev.EntityID() != next.EntityID() || prev.EntityType() != next.EntityType() {
		return types.NewError(types.ErrValidation, "entity identity mismatch").WithEntityID(next.EntityID())
	}

	switch p := prev.(type) {
	case *AgentState:
		n := next.(*AgentState)
		if p.Status != n.Status && !CanTransitionAgent(p.Status, n.Status) {
			return transitionErr(string(p.Status), string(n.Status), n.ID)
		}
	case *ResearchState:
		n := next.(*ResearchState)
		if p.Status != n.Status && !CanTransitionResearch(p.Status, n.Status) {
			return transitionErr(string(p.Status), string(n.Status), n.ID)
		}
		if n.IterationCount < p.IterationCount {
			return types.NewError(types.ErrValidation, "iteration count must not decrease").WithEntityID(n.ID)
		}
	case *SupervisionState:
		n := next.(*SupervisionState)
		if p.Status != n.Status && !CanTransitionSupervision(p.Status, n.Status) {
			return transitionErr(string(p.Status), string(n.Status), n.ID)
		}
		if n.CycleNumber < p.CycleNumber {
			return types.NewError(types.ErrValidation, "cycle number must not decrease").WithEntityID(n.ID)
		}
	}
	return nil
}

func transitionErr(from, to, id string) error {
	return types.NewError(types.ErrInvalidTransition, "invalid status transition: "+from+" -> "+to).WithEntityID(id)
}
