package state

import (
	"fmt"
	"time"

	"github.com/anthonyadame/DeepResearchAgent-sub002/types"
)

// FactStatus 单条事实的核验状态
type FactStatus string

const (
	FactUnverified FactStatus = "unverified"
	FactVerified   FactStatus = "verified"
	FactRejected   FactStatus = "rejected"
)

// Fact 抽取出的结构化事实
type Fact struct {
	Content    string     `json:"content"`
	Source     string     `json:"source"`
	Confidence float64    `json:"confidence"`
	Status     FactStatus `json:"status"`
}

// ResearchState 单次研究请求的全量状态。
// 由 Supervisor 推进质量分与迭代计数，由事实抽取协作方追加 Facts/Sources。
type ResearchState struct {
	ID             string            `json:"id"`
	Query          string            `json:"query"`
	Status         ResearchStatus    `json:"status"`
	Facts          []Fact            `json:"facts,omitempty"`
	Sources        []string          `json:"sources,omitempty"`
	QualityScore   float64           `json:"quality_score"`
	IterationCount int               `json:"iteration_count"`
	StartedAt      time.Time         `json:"started_at"`
	CompletedAt    *time.Time        `json:"completed_at,omitempty"`
	Metadata       map[string]string `json:"metadata,omitempty"`
	Version        int64             `json:"version"`
	LastUpdated    time.Time         `json:"last_updated"`
}

// NewResearchState 创建 Pending 状态的研究记录
func NewResearchState(id, query string, now time.Time) *ResearchState {
	return &ResearchState{
		ID:        id,
		Query:     query,
		Status:    ResearchPending,
		StartedAt: now,
		Metadata:  map[string]string{},
	}
}

func (r *ResearchState) EntityID() string       { return r.ID }
func (r *ResearchState) EntityType() EntityType { return EntityResearch }
func (r *ResearchState) GetVersion() int64      { return r.Version }
func (r *ResearchState) SetVersion(v int64)     { r.Version = v }
func (r *ResearchState) Touch(now time.Time)    { r.LastUpdated = now }

// Validate 校验实体不变量
func (r *ResearchState) Validate() error {
	if r.ID == "" {
		return types.NewError(types.ErrValidation, "research id is empty")
	}
	if r.Query == "" {
		return types.NewError(types.ErrValidation, "research query is empty").WithEntityID(r.ID)
	}
	if !validResearchStatus(r.Status) {
		return types.NewError(types.ErrValidation, "unknown research status: "+string(r.Status)).WithEntityID(r.ID)
	}
	if r.IterationCount < 0 {
		return types.NewError(types.ErrValidation, "iteration count is negative").WithEntityID(r.ID)
	}
	if r.QualityScore < 0 {
		return types.NewError(types.ErrValidation, "quality score is negative").WithEntityID(r.ID)
	}
	for i, f := range r.Facts {
		if f.Confidence < 0 || f.Confidence > 1 {
			return types.NewError(types.ErrValidation,
				fmt.Sprintf("fact %d confidence out of range", i)).WithEntityID(r.ID)
		}
	}
	return nil
}

// Clone 返回深拷贝
func (r *ResearchState) Clone() *ResearchState {
	c := *r
	c.Facts = append([]Fact(nil), r.Facts...)
	c.Sources = append([]string(nil), r.Sources...)
	if r.Metadata != nil {
		c.Metadata = make(map[string]string, len(r.Metadata))
		for k, v := range r.Metadata {
			c.Metadata[k] = v
		}
	}
	if r.CompletedAt != nil {
		t := *r.CompletedAt
		c.CompletedAt = &t
	}
	return &c
}
