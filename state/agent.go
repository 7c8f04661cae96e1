package state

import (
	"time"

	"github.com/anthonyadame/DeepResearchAgent-sub002/types"
)

// AgentState 管线中单个 Agent 的运行状态
type AgentState struct {
	ID          string             `json:"id"`
	AgentType   string             `json:"agent_type"`
	Status      AgentStatus        `json:"status"`
	Properties  map[string]any     `json:"properties,omitempty"`
	ActiveTasks []string           `json:"active_tasks,omitempty"`
	Metrics     map[string]float64 `json:"metrics,omitempty"`
	Version     int64              `json:"version"`
	LastUpdated time.Time          `json:"last_updated"`
}

// NewAgentState 创建初始状态为 Initializing 的 AgentState
func NewAgentState(id, agentType string) *AgentState {
	return &AgentState{
		ID:         id,
		AgentType:  agentType,
		Status:     AgentInitializing,
		Properties: map[string]any{},
		Metrics:    map[string]float64{},
	}
}

func (a *AgentState) EntityID() string       { return a.ID }
func (a *AgentState) EntityType() EntityType { return EntityAgent }
func (a *AgentState) GetVersion() int64      { return a.Version }
func (a *AgentState) SetVersion(v int64)     { a.Version = v }
func (a *AgentState) Touch(now time.Time)    { a.LastUpdated = now }

// Validate 校验实体不变量
func (a *AgentState) Validate() error {
	if a.ID == "" {
		return types.NewError(types.ErrValidation, "agent id is empty")
	}
	if a.AgentType == "" {
		return types.NewError(types.ErrValidation, "agent type is empty").WithEntityID(a.ID)
	}
	if !validAgentStatus(a.Status) {
		return types.NewError(types.ErrValidation, "unknown agent status: "+string(a.Status)).WithEntityID(a.ID)
	}
	return nil
}

// Clone 返回深拷贝
func (a *AgentState) Clone() *AgentState {
	c := *a
	if a.Properties != nil {
		c.Properties = make(map[string]any, len(a.Properties))
		for k, v := range a.Properties {
			c.Properties[k] = v
		}
	}
	if a.Metrics != nil {
		c.Metrics = make(map[string]float64, len(a.Metrics))
		for k, v := range a.Metrics {
			c.Metrics[k] = v
		}
	}
	c.ActiveTasks = append([]string(nil), a.ActiveTasks...)
	return &c
}
