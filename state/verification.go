package state

import (
	"time"

	"github.com/anthonyadame/DeepResearchAgent-sub002/types"
)

// VerificationState 单个来源的核验结果
type VerificationState struct {
	ID          string    `json:"id"`
	SourceID    string    `json:"source_id"`
	Content     string    `json:"content"`
	Confidence  float64   `json:"confidence"`
	Verified    bool      `json:"verified"`
	Issues      []string  `json:"issues,omitempty"`
	VerifiedAt  time.Time `json:"verified_at"`
	Verifier    string    `json:"verifier"`
	Version     int64     `json:"version"`
	LastUpdated time.Time `json:"last_updated"`
}

func (v *VerificationState) EntityID() string       { return v.ID }
func (v *VerificationState) EntityType() EntityType { return EntityVerification }
func (v *VerificationState) GetVersion() int64      { return v.Version }
func (v *VerificationState) SetVersion(ver int64)   { v.Version = ver }
func (v *VerificationState) Touch(now time.Time)    { v.LastUpdated = now }

// Validate 校验实体不变量
func (v *VerificationState) Validate() error {
	if v.ID == "" {
		return types.NewError(types.ErrValidation, "verification id is empty")
	}
	if v.SourceID == "" {
		return types.NewError(types.ErrValidation, "source id is empty").WithEntityID(v.ID)
	}
	if v.Confidence < 0 || v.Confidence > 1 {
		return types.NewError(types.ErrValidation, "confidence out of range [0,1]").WithEntityID(v.ID)
	}
	return nil
}

// Clone 返回深拷贝
func (v *VerificationState) Clone() *VerificationState {
	c := *v
	c.Issues = append([]string(nil), v.Issues...)
	return &c
}
