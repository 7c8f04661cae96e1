package state

import (
	"time"

	"github.com/anthonyadame/DeepResearchAgent-sub002/types"
)

// SupervisionState 一次监督修订尝试的状态。
// 达到终态后在逻辑上退役，不做物理删除，只会被更高的 CycleNumber 取代。
type SupervisionState struct {
	ID                   string            `json:"id"`
	ResearchID           string            `json:"research_id"`
	CycleNumber          int               `json:"cycle_number"`
	Status               SupervisionStatus `json:"status"`
	QualityScore         float64           `json:"quality_score"`
	PreviousQualityScore *float64          `json:"previous_quality_score,omitempty"`
	CriticalIssues       []string          `json:"critical_issues,omitempty"`
	Improvements         []string          `json:"improvements,omitempty"`
	Recommendation       string            `json:"recommendation,omitempty"`
	StartedAt            time.Time         `json:"started_at"`
	CompletedAt          *time.Time        `json:"completed_at,omitempty"`
	Version              int64             `json:"version"`
	LastUpdated          time.Time         `json:"last_updated"`
}

// NewSupervisionState 创建 Pending 状态的监督记录
func NewSupervisionState(id, researchID string, now time.Time) *SupervisionState {
	return &SupervisionState{
		ID:         id,
		ResearchID: researchID,
		Status:     SupervisionPending,
		StartedAt:  now,
	}
}

func (s *SupervisionState) EntityID() string       { return s.ID }
func (s *SupervisionState) EntityType() EntityType { return EntitySupervision }
func (s *SupervisionState) GetVersion() int64      { return s.Version }
func (s *SupervisionState) SetVersion(v int64)     { s.Version = v }
func (s *SupervisionState) Touch(now time.Time)    { s.LastUpdated = now }

// Validate 校验实体不变量
func (s *SupervisionState) Validate() error {
	if s.ID == "" {
		return types.NewError(types.ErrValidation, "supervision id is empty")
	}
	if s.ResearchID == "" {
		return types.NewError(types.ErrValidation, "research id is empty").WithEntityID(s.ID)
	}
	if !validSupervisionStatus(s.Status) {
		return types.NewError(types.ErrValidation, "unknown supervision status: "+string(s.Status)).WithEntityID(s.ID)
	}
	if s.CycleNumber < 0 {
		return types.NewError(types.ErrValidation, "cycle number is negative").WithEntityID(s.ID)
	}
	return nil
}

// Clone 返回深拷贝
func (s *SupervisionState) Clone() *SupervisionState {
	c := *s
	c.CriticalIssues = append([]string(nil), s.CriticalIssues...)
	c.Improvements = append([]string(nil), s.Improvements...)
	if s.PreviousQualityScore != nil {
		v := *s.PreviousQualityScore
		c.PreviousQualityScore = &v
	}
	if s.CompletedAt != nil {
		t := *s.CompletedAt
		c.CompletedAt = &t
	}
	return &c
}
