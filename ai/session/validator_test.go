package session

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/KrolinaTF/IA4Edu/ai/draft"
	"github.com/KrolinaTF/IA4Edu/ai/grouping"
	"github.com/KrolinaTF/IA4Edu/ai/metrics"
	"github.com/KrolinaTF/IA4Edu/store"
)

func validatorFixture(t *testing.T) (*validator, *grouping.Assignment, *store.Roster) {
	t.Helper()
	roster := &store.Roster{Learners: []*store.LearnerProfile{
		{ID: "e1", Name: "Lucía", Diagnosis: "TDAH"},
		{ID: "e2", Name: "Mario", Diagnosis: "ninguno"},
		{ID: "e3", Name: "Sara", Diagnosis: "ninguno"},
		{ID: "e4", Name: "Hugo", Diagnosis: "ninguno"},
	}}
	assignment, err := grouping.NewOptimizer().Assign(
		roster, grouping.PhaseExecution, store.ModePair, 0, "")
	require.NoError(t, err)
	return newValidator(metrics.NewExporter(metrics.DefaultConfig())), assignment, roster
}

func consistentDraft(mode store.GroupingMode, assignments ...string) *draft.ActivityDraft {
	tasks := make([]draft.Task, 0, len(assignments))
	for _, a := range assignments {
		tasks = append(tasks, draft.Task{Description: "tarea", Assignment: a})
	}
	return &draft.ActivityDraft{
		Title:     "Actividad",
		Objective: "Objetivo",
		Mode:      mode,
		Phases:    []draft.Phase{{Name: "Desarrollo", Tasks: tasks}},
	}
}

func TestValidator_AcceptsConsistentDraft(t *testing.T) {
	v, assignment, roster := validatorFixture(t)
	d := consistentDraft(store.ModePair, "ejec-g1", "ejec-g2", "todos")

	corrections, err := v.check(d, assignment, roster)
	require.NoError(t, err)
	assert.Empty(t, corrections)
}

func TestValidator_RepairsUnknownGroupReference(t *testing.T) {
	v, assignment, roster := validatorFixture(t)
	d := consistentDraft(store.ModePair, "ejec-g1", "grupo-inventado")

	corrections, err := v.check(d, assignment, roster)
	require.NoError(t, err)
	require.NotEmpty(t, corrections)

	for _, id := range d.AssignmentIDs() {
		assert.Contains(t, assignment.GroupIDs(), id)
	}
}

func TestValidator_CorrectsModeMismatch(t *testing.T) {
	v, assignment, roster := validatorFixture(t)
	d := consistentDraft(store.ModeGroup, "ejec-g1")

	corrections, err := v.check(d, assignment, roster)
	require.NoError(t, err)
	assert.NotEmpty(t, corrections)
	assert.Equal(t, store.ModePair, d.Mode)
}

func TestValidator_AcceptsRelaxedAssignment(t *testing.T) {
	// Two needs-support learners and one typical partner force the
	// optimizer to relax; the resulting trio must survive validation so
	// the refinement loop keeps working for such rosters.
	roster := &store.Roster{Learners: []*store.LearnerProfile{
		{ID: "e1", Name: "Lucía", Diagnosis: "TDAH"},
		{ID: "e2", Name: "Noa", Diagnosis: "TEA_nivel_1"},
		{ID: "e3", Name: "Mario", Diagnosis: "ninguno"},
	}}
	assignment, err := grouping.NewOptimizer().Assign(
		roster, grouping.PhaseExecution, store.ModePair, 0, "")
	require.NoError(t, err)
	require.True(t, assignment.Relaxed)

	v := newValidator(metrics.NewExporter(metrics.DefaultConfig()))
	corrections, err := v.check(consistentDraft(store.ModePair, "ejec-g1"), assignment, roster)
	require.NoError(t, err)
	assert.Empty(t, corrections)
}

func TestValidator_AcceptsSingleLearnerRoster(t *testing.T) {
	roster := &store.Roster{Learners: []*store.LearnerProfile{
		{ID: "e1", Name: "Lucía", Diagnosis: "TDAH"},
	}}
	assignment, err := grouping.NewOptimizer().Assign(
		roster, grouping.PhaseExecution, store.ModePair, 0, "")
	require.NoError(t, err)

	v := newValidator(metrics.NewExporter(metrics.DefaultConfig()))
	_, err = v.check(consistentDraft(store.ModePair, "todos"), assignment, roster)
	assert.NoError(t, err)
}

func TestValidator_RejectsIncompleteDraft(t *testing.T) {
	v, assignment, roster := validatorFixture(t)

	_, err := v.check(&draft.ActivityDraft{Title: "Sin contenido"}, assignment, roster)
	assert.ErrorIs(t, err, ErrDraftRejected)
}

func TestValidator_RejectsBrokenPartition(t *testing.T) {
	v, assignment, roster := validatorFixture(t)
	// Drop a learner from their group: the partition no longer covers the
	// roster and cannot be repaired at validation time.
	assignment.Groups[0].Members = assignment.Groups[0].Members[:1]

	_, err := v.check(consistentDraft(store.ModePair, "ejec-g1"), assignment, roster)
	assert.ErrorIs(t, err, ErrDraftRejected)
}

func TestValidator_RejectsOversizedPair(t *testing.T) {
	v, _, roster := validatorFixture(t)
	roster.Learners = append(roster.Learners,
		&store.LearnerProfile{ID: "e5", Name: "Vega", Diagnosis: "ninguno"},
		&store.LearnerProfile{ID: "e6", Name: "Iris", Diagnosis: "ninguno"},
	)
	// Hand-build a pair assignment with two trios; only one remainder trio
	// is tolerated.
	assignment := &grouping.Assignment{
		Mode:      store.ModePair,
		GroupSize: 2,
		Groups: []grouping.Group{
			{ID: "ejec-g1", Members: []string{"e1", "e2", "e3"}},
			{ID: "ejec-g2", Members: []string{"e4", "e5", "e6"}},
		},
	}

	_, err := v.check(consistentDraft(store.ModePair, "ejec-g1"), assignment, roster)
	assert.ErrorIs(t, err, ErrDraftRejected)
}

func TestValidator_EmptyAssignmentDefaultsToWholeClass(t *testing.T) {
	v, assignment, roster := validatorFixture(t)
	d := consistentDraft(store.ModePair, "")

	_, err := v.check(d, assignment, roster)
	require.NoError(t, err)
	assert.Equal(t, "todos", d.Phases[0].Tasks[0].Assignment)
}
