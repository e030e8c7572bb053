// Package grouping partitions a classroom roster into work groups under
// diversity and support constraints.
package grouping

import (
	"fmt"
	"strconv"

	"github.com/pkg/errors"

	"github.com/KrolinaTF/IA4Edu/ai/observability/logging"
	"github.com/KrolinaTF/IA4Edu/store"
)

// ErrInvalidGroupingRequest reports a caller error: empty roster, bad group
// size or unknown mode. Not retried.
var ErrInvalidGroupingRequest = errors.New("invalid grouping request")

// Phase identifies which part of the activity an assignment covers.
type Phase string

const (
	PhasePreparation Phase = "preparacion"
	PhaseExecution   Phase = "ejecucion"
)

// Group is one work group with its ordered member learner ids.
type Group struct {
	ID      string
	Members []string
}

// Assignment maps every learner in the roster to exactly one group for a
// given phase and mode.
type Assignment struct {
	Phase     Phase
	Mode      store.GroupingMode
	GroupSize int
	Groups    []Group

	// Relaxed records that the needs-support count exceeded the available
	// typical partners, forcing more than one supported learner into a
	// group. The relaxation is explicit, never silent.
	Relaxed bool
}

// GroupOf returns the group id holding the learner, or "".
func (a *Assignment) GroupOf(learnerID string) string {
	for _, g := range a.Groups {
		for _, m := range g.Members {
			if m == learnerID {
				return g.ID
			}
		}
	}
	return ""
}

// GroupIDs returns all group ids in creation order.
func (a *Assignment) GroupIDs() []string {
	ids := make([]string, 0, len(a.Groups))
	for _, g := range a.Groups {
		ids = append(ids, g.ID)
	}
	return ids
}

// Validate checks the partition property: every roster learner appears in
// exactly one group, and no group member is outside the roster.
func (a *Assignment) Validate(roster *store.Roster) error {
	seen := make(map[string]string)
	for _, g := range a.Groups {
		for _, m := range g.Members {
			if prev, dup := seen[m]; dup {
				return errors.Errorf("learner %s assigned to both %s and %s", m, prev, g.ID)
			}
			if roster.FindLearner(m) == nil {
				return errors.Errorf("group %s contains unknown learner %s", g.ID, m)
			}
			seen[m] = g.ID
		}
	}
	for _, l := range roster.Learners {
		if _, ok := seen[l.ID]; !ok {
			return errors.Errorf("learner %s missing from assignment", l.ID)
		}
	}
	return nil
}

// Optimizer builds assignments with a greedy constrained matching.
type Optimizer struct {
	logger *logging.Logger
}

// NewOptimizer creates a new grouping optimizer.
func NewOptimizer() *Optimizer {
	return &Optimizer{
		logger: logging.Default().WithComponent("grouping"),
	}
}

// Assign partitions the roster for one phase. subject selects which
// competency level drives partner choice and may be empty.
//
// Iteration follows roster order throughout, so the result is reproducible
// for identical inputs.
func (o *Optimizer) Assign(roster *store.Roster, phase Phase, mode store.GroupingMode, groupSize int, subject string) (*Assignment, error) {
	if roster == nil || len(roster.Learners) == 0 {
		return nil, errors.Wrap(ErrInvalidGroupingRequest, "empty roster")
	}

	switch mode {
	case store.ModeIndividual:
		return o.assignIndividual(roster, phase), nil
	case store.ModePair:
		groupSize = 2
	case store.ModeGroup:
		if groupSize < 2 {
			return nil, errors.Wrapf(ErrInvalidGroupingRequest, "group size %d for group mode", groupSize)
		}
	default:
		return nil, errors.Wrapf(ErrInvalidGroupingRequest, "unknown mode %q", mode)
	}
	if groupSize < 1 {
		return nil, errors.Wrapf(ErrInvalidGroupingRequest, "group size %d", groupSize)
	}

	assignment := &Assignment{Phase: phase, Mode: mode, GroupSize: groupSize}

	var support, typical []*store.LearnerProfile
	for _, l := range roster.Learners {
		if l.Category().NeedsSupport() {
			support = append(support, l)
		} else {
			typical = append(typical, l)
		}
	}

	// One supported learner seeds each group, joined by typical partners
	// chosen for complementary competency.
	for len(support) > 0 && len(typical) > 0 {
		seed := support[0]
		support = support[1:]

		members := []string{seed.ID}
		for len(members) < groupSize && len(typical) > 0 {
			idx := pickPartner(seed, typical, subject)
			members = append(members, typical[idx].ID)
			typical = append(typical[:idx], typical[idx+1:]...)
		}
		assignment.addGroup(members)
	}

	// More supported learners than typical partners: they share groups.
	if len(support) > 0 {
		assignment.Relaxed = true
		o.logger.Warn("needs-support learners exceed typical partners, relaxing one-per-group constraint",
			"phase", string(phase), "remaining", len(support))
		for len(support) > 0 {
			// A lone trailing learner joins the previous group rather
			// than forming a singleton the mode would not admit.
			if len(support) == 1 && len(assignment.Groups) > 0 {
				last := &assignment.Groups[len(assignment.Groups)-1]
				last.Members = append(last.Members, support[0].ID)
				break
			}
			limit := min(len(support), groupSize)
			members := make([]string, 0, limit)
			for _, l := range support[:limit] {
				members = append(members, l.ID)
			}
			support = support[limit:]
			assignment.addGroup(members)
		}
	}

	// Remaining typical learners fill groups among themselves.
	for len(typical) >= groupSize {
		members := make([]string, 0, groupSize)
		for _, l := range typical[:groupSize] {
			members = append(members, l.ID)
		}
		typical = typical[groupSize:]
		assignment.addGroup(members)
	}

	// Remainder case: leftover learners join the last group instead of
	// forming an undersized one (a pair becomes a trio).
	if len(typical) > 0 {
		if len(assignment.Groups) == 0 {
			members := make([]string, 0, len(typical))
			for _, l := range typical {
				members = append(members, l.ID)
			}
			assignment.addGroup(members)
		} else {
			last := &assignment.Groups[len(assignment.Groups)-1]
			for _, l := range typical {
				last.Members = append(last.Members, l.ID)
			}
		}
	}

	return assignment, nil
}

func (o *Optimizer) assignIndividual(roster *store.Roster, phase Phase) *Assignment {
	assignment := &Assignment{Phase: phase, Mode: store.ModeIndividual, GroupSize: 1}
	for _, l := range roster.Learners {
		assignment.addGroup([]string{l.ID})
	}
	return assignment
}

func (a *Assignment) addGroup(members []string) {
	a.Groups = append(a.Groups, Group{
		ID:      groupID(string(a.Phase), len(a.Groups)+1),
		Members: members,
	})
}

// groupID builds a stable id like "prep-g1". Determinism matters more than
// uniqueness across sessions here: ids are referenced from task assignments
// inside the same draft only.
func groupID(phase string, n int) string {
	prefix := "g"
	if len(phase) >= 4 {
		prefix = phase[:4] + "-g"
	}
	return fmt.Sprintf("%s%s", prefix, strconv.Itoa(n))
}

// pickPartner selects the typical learner whose competency in subject sits
// closest to one level above the supported learner's, the zone-of-proximal-
// development target. Spectrum-category learners prefer partners with high
// frustration tolerance. Ties resolve to the earliest roster position.
func pickPartner(seed *store.LearnerProfile, typical []*store.LearnerProfile, subject string) int {
	if seed.Category() == store.CategorySpectrum {
		for i, candidate := range typical {
			if candidate.FrustrationTolerance == store.ToleranceHigh {
				return i
			}
		}
	}

	if subject == "" {
		return 0
	}

	target := seed.CompetencyIn(subject) + 1
	if target > 5 {
		target = 5
	}

	best := 0
	bestDistance := distance(typical[0].CompetencyIn(subject), target)
	for i := 1; i < len(typical); i++ {
		if d := distance(typical[i].CompetencyIn(subject), target); d < bestDistance {
			best, bestDistance = i, d
		}
	}
	return best
}

func distance(a, b int) int {
	if a > b {
		return a - b
	}
	return b - a
}
