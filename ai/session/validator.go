package session

import (
	"fmt"
	"strings"

	"github.com/pkg/errors"

	"github.com/KrolinaTF/IA4Edu/ai/draft"
	"github.com/KrolinaTF/IA4Edu/ai/grouping"
	"github.com/KrolinaTF/IA4Edu/ai/metrics"
	"github.com/KrolinaTF/IA4Edu/ai/observability/logging"
	"github.com/KrolinaTF/IA4Edu/store"
)

// ErrDraftRejected reports a draft the validator could not repair. The
// caller keeps the previous valid draft and surfaces a warning.
var ErrDraftRejected = errors.New("draft rejected by consistency validator")

// validator enforces internal consistency between a draft and the grouping
// assignment before the draft is shown to the teacher.
type validator struct {
	logger  *logging.Logger
	metrics *metrics.Exporter
}

func newValidator(m *metrics.Exporter) *validator {
	return &validator{
		logger:  logging.Default().WithComponent("validator"),
		metrics: m,
	}
}

// check verifies a draft in place and repairs what it can. It returns the
// list of applied corrections; ErrDraftRejected when the draft cannot be
// made consistent. The assignment itself is trusted input: it came from
// the optimizer, and its partition property is re-asserted here.
func (v *validator) check(d *draft.ActivityDraft, assignment *grouping.Assignment, roster *store.Roster) ([]string, error) {
	if !d.Complete() {
		v.reject("incomplete draft")
		return nil, errors.Wrap(ErrDraftRejected, "draft missing title, objective or phases")
	}
	if err := assignment.Validate(roster); err != nil {
		v.reject("broken assignment partition")
		return nil, errors.Wrap(ErrDraftRejected, err.Error())
	}

	var corrections []string

	if d.Mode != "" && d.Mode != assignment.Mode {
		corrections = append(corrections,
			fmt.Sprintf("modalidad %q corregida a %q", d.Mode, assignment.Mode))
		d.Mode = assignment.Mode
	}

	corrections = append(corrections, v.repairAssignments(d, assignment)...)

	if err := v.checkShape(assignment); err != nil {
		v.reject("mode shape mismatch")
		return nil, errors.Wrap(ErrDraftRejected, err.Error())
	}

	for _, c := range corrections {
		v.logger.Info("draft corrected", "correction", c)
		v.metrics.RecordValidatorCorrection()
	}
	return corrections, nil
}

// repairAssignments rewrites task assignments that reference unknown group
// ids. Unknown references are remapped round-robin over the real groups so
// every group keeps getting work; wholesale invention by the model thus
// degrades to an even spread instead of a rejection.
func (v *validator) repairAssignments(d *draft.ActivityDraft, assignment *grouping.Assignment) []string {
	valid := make(map[string]bool)
	for _, id := range assignment.GroupIDs() {
		valid[id] = true
	}

	var corrections []string
	next := 0
	groups := assignment.Groups
	for pi := range d.Phases {
		for ti := range d.Phases[pi].Tasks {
			task := &d.Phases[pi].Tasks[ti]
			ref := strings.TrimSpace(task.Assignment)
			if ref == "" {
				task.Assignment = "todos"
				continue
			}
			if strings.EqualFold(ref, "todos") || valid[ref] {
				continue
			}
			if len(groups) == 0 {
				task.Assignment = "todos"
				continue
			}
			replacement := groups[next%len(groups)].ID
			next++
			corrections = append(corrections,
				fmt.Sprintf("asignación desconocida %q reescrita a %q", ref, replacement))
			task.Assignment = replacement
		}
	}
	return corrections
}

// checkShape asserts group sizes match the mode: pairs of two with at most
// one trio absorbing an odd roster, groups within one merged remainder of
// the configured size. Individual mode is always one learner per group. A
// roster smaller than the mode size is admitted as a single lone group.
func (v *validator) checkShape(assignment *grouping.Assignment) error {
	switch assignment.Mode {
	case store.ModeIndividual:
		for _, g := range assignment.Groups {
			if len(g.Members) != 1 {
				return errors.Errorf("individual mode group %s has %d members", g.ID, len(g.Members))
			}
		}
	case store.ModePair:
		trios := 0
		for _, g := range assignment.Groups {
			switch len(g.Members) {
			case 2:
			case 3:
				trios++
			case 1:
				// A roster smaller than a pair leaves a single lone
				// group; that is the roster, not a shape violation.
				if len(assignment.Groups) > 1 {
					return errors.Errorf("pair mode group %s has 1 member", g.ID)
				}
			default:
				return errors.Errorf("pair mode group %s has %d members", g.ID, len(g.Members))
			}
		}
		if trios > 1 {
			return errors.Errorf("pair mode has %d trios, at most one remainder trio allowed", trios)
		}
	case store.ModeGroup:
		for _, g := range assignment.Groups {
			if len(g.Members) < 2 && len(assignment.Groups) == 1 {
				continue
			}
			if len(g.Members) < 2 || len(g.Members) > assignment.GroupSize*2 {
				return errors.Errorf("group %s size %d outside bounds for group size %d",
					g.ID, len(g.Members), assignment.GroupSize)
			}
		}
	}
	return nil
}

func (v *validator) reject(reason string) {
	v.logger.Warn("draft rejected", "reason", reason)
	v.metrics.RecordValidatorRejection()
}
