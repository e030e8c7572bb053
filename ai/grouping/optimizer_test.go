package grouping

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/KrolinaTF/IA4Edu/store"
)

func learner(id, diagnosis string, tolerance store.Tolerance, math int) *store.LearnerProfile {
	return &store.LearnerProfile{
		ID:                   id,
		Name:                 "Estudiante " + id,
		Diagnosis:            diagnosis,
		FrustrationTolerance: tolerance,
		CompetencyLevels:     map[string]int{"matematicas": math},
	}
}

// Eight learners, two with support needs, mirrors the reference classroom.
func classRoster() *store.Roster {
	return &store.Roster{Learners: []*store.LearnerProfile{
		learner("e1", "TDAH_combinado", store.ToleranceLow, 2),
		learner("e2", "ninguno", store.ToleranceMedium, 3),
		learner("e3", "ninguno", store.ToleranceHigh, 4),
		learner("e4", "TEA_nivel_1", store.ToleranceLow, 3),
		learner("e5", "ninguno", store.ToleranceMedium, 2),
		learner("e6", "ninguno", store.ToleranceLow, 5),
		learner("e7", "ninguno", store.ToleranceHigh, 3),
		learner("e8", "ninguno", store.ToleranceMedium, 4),
	}}
}

func TestAssign_PairsCompleteRoster(t *testing.T) {
	roster := classRoster()
	assignment, err := NewOptimizer().Assign(roster, PhaseExecution, store.ModePair, 0, "matematicas")
	require.NoError(t, err)

	assert.Len(t, assignment.Groups, 4)
	for _, g := range assignment.Groups {
		assert.Len(t, g.Members, 2)
	}
	require.NoError(t, assignment.Validate(roster))
	assert.False(t, assignment.Relaxed)
}

func TestAssign_SupportLearnersGetTypicalPartners(t *testing.T) {
	roster := classRoster()
	assignment, err := NewOptimizer().Assign(roster, PhaseExecution, store.ModePair, 0, "matematicas")
	require.NoError(t, err)

	for _, supportID := range []string{"e1", "e4"} {
		groupID := assignment.GroupOf(supportID)
		require.NotEmpty(t, groupID)
		for _, g := range assignment.Groups {
			if g.ID != groupID {
				continue
			}
			typicalPartners := 0
			for _, m := range g.Members {
				if m != supportID && !roster.FindLearner(m).Category().NeedsSupport() {
					typicalPartners++
				}
			}
			assert.Equal(t, 1, typicalPartners, "support learner %s", supportID)
		}
	}
}

func TestAssign_SpectrumPrefersHighTolerancePartner(t *testing.T) {
	roster := &store.Roster{Learners: []*store.LearnerProfile{
		learner("e1", "TEA_nivel_2", store.ToleranceLow, 3),
		learner("e2", "ninguno", store.ToleranceLow, 4),
		learner("e3", "ninguno", store.ToleranceHigh, 2),
	}}
	assignment, err := NewOptimizer().Assign(roster, PhaseExecution, store.ModePair, 0, "")
	require.NoError(t, err)

	assert.Equal(t, assignment.GroupOf("e1"), assignment.GroupOf("e3"))
}

func TestAssign_ZDPPartnerJustAbove(t *testing.T) {
	roster := &store.Roster{Learners: []*store.LearnerProfile{
		learner("e1", "TDAH", store.ToleranceMedium, 2),
		learner("e2", "ninguno", store.ToleranceMedium, 5),
		learner("e3", "ninguno", store.ToleranceMedium, 3),
		learner("e4", "ninguno", store.ToleranceMedium, 1),
	}}
	assignment, err := NewOptimizer().Assign(roster, PhaseExecution, store.ModePair, 0, "matematicas")
	require.NoError(t, err)

	// Level 3 sits exactly one above the supported learner's level 2.
	assert.Equal(t, assignment.GroupOf("e1"), assignment.GroupOf("e3"))
}

func TestAssign_OddRosterFormsOneTrio(t *testing.T) {
	roster := classRoster()
	roster.Learners = append(roster.Learners, learner("e9", "ninguno", store.ToleranceMedium, 3))

	assignment, err := NewOptimizer().Assign(roster, PhaseExecution, store.ModePair, 0, "matematicas")
	require.NoError(t, err)
	require.NoError(t, assignment.Validate(roster))

	trios := 0
	for _, g := range assignment.Groups {
		if len(g.Members) == 3 {
			trios++
		} else {
			assert.Len(t, g.Members, 2)
		}
	}
	assert.Equal(t, 1, trios)
}

func TestAssign_RelaxesWhenSupportOutnumbersTypical(t *testing.T) {
	roster := &store.Roster{Learners: []*store.LearnerProfile{
		learner("e1", "TDAH", store.ToleranceLow, 2),
		learner("e2", "TEA_nivel_1", store.ToleranceLow, 3),
		learner("e3", "2e", store.ToleranceMedium, 5),
		learner("e4", "ninguno", store.ToleranceHigh, 3),
	}}
	assignment, err := NewOptimizer().Assign(roster, PhaseExecution, store.ModePair, 0, "")
	require.NoError(t, err)
	require.NoError(t, assignment.Validate(roster))
	assert.True(t, assignment.Relaxed)
}

func TestAssign_RelaxedOddSurplusJoinsLastGroup(t *testing.T) {
	roster := &store.Roster{Learners: []*store.LearnerProfile{
		learner("e1", "TDAH", store.ToleranceLow, 2),
		learner("e2", "TEA_nivel_1", store.ToleranceLow, 3),
		learner("e3", "ninguno", store.ToleranceHigh, 3),
	}}
	assignment, err := NewOptimizer().Assign(roster, PhaseExecution, store.ModePair, 0, "")
	require.NoError(t, err)
	require.NoError(t, assignment.Validate(roster))
	assert.True(t, assignment.Relaxed)

	// The lone second support learner joins the seeded pair instead of
	// forming a singleton group.
	require.Len(t, assignment.Groups, 1)
	assert.Len(t, assignment.Groups[0].Members, 3)
}

func TestAssign_IndividualMode(t *testing.T) {
	roster := classRoster()
	assignment, err := NewOptimizer().Assign(roster, PhasePreparation, store.ModeIndividual, 0, "")
	require.NoError(t, err)

	assert.Len(t, assignment.Groups, len(roster.Learners))
	for _, g := range assignment.Groups {
		assert.Len(t, g.Members, 1)
	}
	require.NoError(t, assignment.Validate(roster))
}

func TestAssign_GroupMode(t *testing.T) {
	roster := classRoster()
	assignment, err := NewOptimizer().Assign(roster, PhaseExecution, store.ModeGroup, 4, "matematicas")
	require.NoError(t, err)
	require.NoError(t, assignment.Validate(roster))
	assert.Len(t, assignment.Groups, 2)
}

func TestAssign_Deterministic(t *testing.T) {
	roster := classRoster()
	first, err := NewOptimizer().Assign(roster, PhaseExecution, store.ModePair, 0, "matematicas")
	require.NoError(t, err)
	second, err := NewOptimizer().Assign(roster, PhaseExecution, store.ModePair, 0, "matematicas")
	require.NoError(t, err)
	assert.Equal(t, first, second)
}

func TestAssign_InvalidRequests(t *testing.T) {
	opt := NewOptimizer()

	_, err := opt.Assign(&store.Roster{}, PhaseExecution, store.ModePair, 0, "")
	assert.ErrorIs(t, err, ErrInvalidGroupingRequest)

	_, err = opt.Assign(classRoster(), PhaseExecution, store.ModeGroup, 1, "")
	assert.ErrorIs(t, err, ErrInvalidGroupingRequest)

	_, err = opt.Assign(classRoster(), PhaseExecution, store.GroupingMode("tribu"), 2, "")
	assert.ErrorIs(t, err, ErrInvalidGroupingRequest)
}

func TestAssignmentValidate_DetectsMissingLearner(t *testing.T) {
	roster := classRoster()
	assignment, err := NewOptimizer().Assign(roster, PhaseExecution, store.ModePair, 0, "")
	require.NoError(t, err)

	assignment.Groups[0].Members = assignment.Groups[0].Members[:1]
	assert.Error(t, assignment.Validate(roster))
}
