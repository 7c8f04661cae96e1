// =============================================================================
// 🗂️ 实体夹具
// =============================================================================
package testutil

import (
	"time"

	"github.com/anthonyadame/DeepResearchAgent-sub002/state"
)

// FixtureTime 所有夹具使用的固定时间
var FixtureTime = time.Date(2026, 3, 14, 9, 26, 53, 0, time.UTC)

// NewResearchFixture 返回带两条事实的研究状态
func NewResearchFixture(id string) *state.ResearchState {
	rs := state.NewResearchState(id, "quantum error correction survey", FixtureTime)
	rs.Facts = []state.Fact{
		{
			Content:    "surface codes tolerate ~1% physical error rates",
			Source:     "https://example.org/surface-codes",
			Confidence: 0.92,
			Status:     state.FactVerified,
		},
		{
			Content:    "logical qubit overhead scales with code distance",
			Source:     "https://example.org/code-distance",
			Confidence: 0.81,
			Status:     state.FactUnverified,
		},
	}
	rs.Sources = []string{
		"https://example.org/surface-codes",
		"https://example.org/code-distance",
	}
	return rs
}

// NewAgentFixture 返回一个空闲 agent 状态
func NewAgentFixture(id string) *state.AgentState {
	return state.NewAgentState(id, "researcher")
}

// NewSupervisionFixture 返回一条研究的初始监督状态
func NewSupervisionFixture(id, researchID string) *state.SupervisionState {
	return state.NewSupervisionState(id, researchID, FixtureTime)
}

// NewVerificationFixture 返回针对单个来源的已核验状态
func NewVerificationFixture(id, sourceID string) *state.VerificationState {
	return &state.VerificationState{
		ID:         id,
		SourceID:   sourceID,
		Content:    "surface codes tolerate ~1% physical error rates",
		Confidence: 0.92,
		Verified:   true,
		VerifiedAt: FixtureTime,
		Verifier:   "cross-reference",
	}
}
