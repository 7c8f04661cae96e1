package state

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/anthonyadame/DeepResearchAgent-sub002/types"
)

func TestValidateSuccessor_FirstWrite(t *testing.T) {
	rs := NewResearchState("r1", "test query", time.Now())
	require.NoError(t, ValidateSuccessor(nil, rs))
}

func TestValidateSuccessor_NilNext(t *testing.T) {
	err := ValidateSuccessor(nil, nil)
	require.Error(t, err)
	assert.Equal(t, types.ErrValidation, types.GetErrorCode(err))
}

func TestValidateSuccessor_IdentityMismatch(t *testing.T) {
	a := NewResearchState("r1", "q", time.Now())
	b := NewResearchState("r2", "q", time.Now())

	err := ValidateSuccessor(a, b)
	require.Error(t, err)
	assert.Equal(t, types.ErrValidation, types.GetErrorCode(err))
}

func TestValidateSuccessor_ResearchTransitions(t *testing.T) {
	prev := NewResearchState("r1", "q", time.Now())
	prev.Status = ResearchInProgress

	next := prev.Clone()
	next.Status = ResearchCompleted
	require.NoError(t, ValidateSuccessor(prev, next))

	// Completed 为吸收态
	back := next.Clone()
	back.Status = ResearchInProgress
	err := ValidateSuccessor(next, back)
	require.Error(t, err)
	assert.Equal(t, types.ErrInvalidTransition, types.GetErrorCode(err))
}

func TestValidateSuccessor_IterationCountMonotonic(t *testing.T) {
	prev := NewResearchState("r1", "q", time.Now())
	prev.IterationCount = 3

	next := prev.Clone()
	next.IterationCount = 2

	err := ValidateSuccessor(prev, next)
	require.Error(t, err)
	assert.Equal(t, types.ErrValidation, types.GetErrorCode(err))

	next.IterationCount = 3
	require.NoError(t, ValidateSuccessor(prev, next))
}

func TestValidateSuccessor_CycleNumberMonotonic(t *testing.T) {
	prev := NewSupervisionState("sv1", "r1", time.Now())
	prev.Status = SupervisionInProgress
	prev.CycleNumber = 2

	next := prev.Clone()
	next.CycleNumber = 1

	err := ValidateSuccessor(prev, next)
	require.Error(t, err)
	assert.Equal(t, types.ErrValidation, types.GetErrorCode(err))
}

func TestValidateSuccessor_SupervisionTransitions(t *testing.T) {
	cases := []struct {
		from, to SupervisionStatus
		ok       bool
	}{
		{SupervisionPending, SupervisionInProgress, true},
		{SupervisionPending, SupervisionFailed, true},
		{SupervisionPending, SupervisionApproved, false},
		{SupervisionInProgress, SupervisionRedTeamReview, true},
		{SupervisionInProgress, SupervisionQualityCheckFailed, true},
		{SupervisionInProgress, SupervisionCompleted, true},
		{SupervisionInProgress, SupervisionPending, false},
		{SupervisionQualityCheckFailed, SupervisionInProgress, true},
		{SupervisionRedTeamReview, SupervisionApproved, true},
		{SupervisionRedTeamReview, SupervisionRejectedForRevision, true},
		{SupervisionRedTeamReview, SupervisionCompleted, false},
		{SupervisionRejectedForRevision, SupervisionInProgress, true},
		{SupervisionApproved, SupervisionCompleted, true},
		{SupervisionApproved, SupervisionInProgress, false},
		{SupervisionCompleted, SupervisionInProgress, false},
		{SupervisionFailed, SupervisionInProgress, false},
	}

	for _, tc := range cases {
		assert.Equal(t, tc.ok, CanTransitionSupervision(tc.from, tc.to),
			"%s -> %s", tc.from, tc.to)
	}
}

func TestEntityValidate(t *testing.T) {
	t.Run("research missing query", func(t *testing.T) {
		rs := NewResearchState("r1", "", time.Now())
		err := rs.Validate()
		require.Error(t, err)
		assert.Equal(t, types.ErrValidation, types.GetErrorCode(err))
	})

	t.Run("research fact confidence out of range", func(t *testing.T) {
		rs := NewResearchState("r1", "q", time.Now())
		rs.Facts = []Fact{{Content: "x", Confidence: 1.5}}
		require.Error(t, rs.Validate())
	})

	t.Run("agent missing type", func(t *testing.T) {
		a := NewAgentState("a1", "")
		require.Error(t, a.Validate())
	})

	t.Run("verification confidence out of range", func(t *testing.T) {
		v := &VerificationState{ID: "v1", SourceID: "s1", Confidence: -0.1}
		require.Error(t, v.Validate())
	})

	t.Run("supervision unknown status", func(t *testing.T) {
		sv := NewSupervisionState("sv1", "r1", time.Now())
		sv.Status = "bogus"
		require.Error(t, sv.Validate())
	})
}

func TestCloneIndependence(t *testing.T) {
	rs := NewResearchState("r1", "q", time.Now())
	rs.Facts = []Fact{{Content: "a", Confidence: 0.5, Status: FactUnverified}}
	rs.Sources = []string{"src1"}
	rs.Metadata["k"] = "v"

	c := rs.Clone()
	c.Facts[0].Content = "changed"
	c.Sources[0] = "changed"
	c.Metadata["k"] = "changed"

	assert.Equal(t, "a", rs.Facts[0].Content)
	assert.Equal(t, "src1", rs.Sources[0])
	assert.Equal(t, "v", rs.Metadata["k"])
}

func TestIsTerminal(t *testing.T) {
	assert.True(t, IsTerminalSupervision(SupervisionCompleted))
	assert.True(t, IsTerminalSupervision(SupervisionFailed))
	assert.False(t, IsTerminalSupervision(SupervisionApproved))

	assert.True(t, IsTerminalResearch(ResearchCompleted))
	assert.False(t, IsTerminalResearch(ResearchVerifying))
}
