package store

import (
	"encoding/json"
	"os"
	"strings"

	"github.com/pkg/errors"
)

// DiagnosticCategory is the closed classification of a learner's support profile.
type DiagnosticCategory string

const (
	// CategoryTypical is typical development, no formal diagnosis.
	CategoryTypical DiagnosticCategory = "typical"
	// CategoryAttention covers attention-related support needs (TDAH).
	CategoryAttention DiagnosticCategory = "attention"
	// CategorySpectrum covers autism-spectrum support needs (TEA).
	CategorySpectrum DiagnosticCategory = "spectrum"
	// CategoryHighCapability covers high-capability learners (altas capacidades).
	CategoryHighCapability DiagnosticCategory = "high_capability"
	// CategoryDualExceptionality covers twice-exceptional learners (2e).
	CategoryDualExceptionality DiagnosticCategory = "dual_exceptionality"
)

// NeedsSupport reports whether the category carries an active support need
// for grouping purposes. Every non-typical profile is matched with a typical
// partner when one is available.
func (c DiagnosticCategory) NeedsSupport() bool {
	return c != CategoryTypical
}

// ParseDiagnosticCategory maps a formal diagnosis string from the roster file
// to its category. Roster files carry values such as "ninguno", "TEA_nivel_1",
// "TDAH_combinado", "altas_capacidades" or "2e".
func ParseDiagnosticCategory(diagnosis string) DiagnosticCategory {
	d := strings.ToLower(strings.TrimSpace(diagnosis))
	switch {
	case d == "" || d == "ninguno":
		return CategoryTypical
	case strings.Contains(d, "2e") || strings.Contains(d, "doble"):
		return CategoryDualExceptionality
	case strings.Contains(d, "tea"):
		return CategorySpectrum
	case strings.Contains(d, "tdah"):
		return CategoryAttention
	case strings.Contains(d, "altas"):
		return CategoryHighCapability
	default:
		return CategoryTypical
	}
}

// Tolerance is an ordered low/medium/high scale used for behavioral attributes.
type Tolerance string

const (
	ToleranceLow    Tolerance = "baja"
	ToleranceMedium Tolerance = "media"
	ToleranceHigh   Tolerance = "alta"
)

// LearnerProfile describes one learner. Profiles are immutable for the
// duration of a session; the roster collection owns them.
type LearnerProfile struct {
	ID        string `json:"id"`
	Name      string `json:"nombre"`
	Diagnosis string `json:"diagnostico_formal"`

	// CompetencyLevels maps subject name to an ordered 1-5 scale.
	CompetencyLevels map[string]int `json:"niveles_competencia"`

	// Channel is the preferred sensory/learning channel
	// (visual, auditivo, kinestesico).
	Channel string `json:"canal_preferente"`

	Strengths            []string  `json:"fortalezas"`
	SpecialNeeds         []string  `json:"necesidades_especiales"`
	ActivityLevel        Tolerance `json:"nivel_actividad"`
	FrustrationTolerance Tolerance `json:"tolerancia_frustracion"`
}

// Category derives the diagnostic category from the formal diagnosis.
func (p *LearnerProfile) Category() DiagnosticCategory {
	return ParseDiagnosticCategory(p.Diagnosis)
}

// CompetencyIn returns the learner's level in a subject, defaulting to the
// middle of the scale when the roster does not record one.
func (p *LearnerProfile) CompetencyIn(subject string) int {
	if level, ok := p.CompetencyLevels[subject]; ok {
		return level
	}
	return 3
}

// Roster is the classroom roster, loaded once per session.
type Roster struct {
	Learners []*LearnerProfile `json:"estudiantes"`
}

// FindLearner returns the profile with the given id, or nil.
func (r *Roster) FindLearner(id string) *LearnerProfile {
	for _, l := range r.Learners {
		if l.ID == id {
			return l
		}
	}
	return nil
}

// LearnerIDs returns all learner ids in roster order.
func (r *Roster) LearnerIDs() []string {
	ids := make([]string, 0, len(r.Learners))
	for _, l := range r.Learners {
		ids = append(ids, l.ID)
	}
	return ids
}

// CountByCategory returns the number of learners per diagnostic category.
func (r *Roster) CountByCategory() map[DiagnosticCategory]int {
	counts := make(map[DiagnosticCategory]int)
	for _, l := range r.Learners {
		counts[l.Category()]++
	}
	return counts
}

// LoadRoster reads a classroom roster from a JSON file.
func LoadRoster(path string) (*Roster, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, errors.Wrapf(err, "failed to read roster file %s", path)
	}

	var roster Roster
	if err := json.Unmarshal(data, &roster); err != nil {
		return nil, errors.Wrapf(err, "failed to parse roster file %s", path)
	}
	if len(roster.Learners) == 0 {
		return nil, errors.Errorf("roster file %s contains no learners", path)
	}

	seen := make(map[string]bool, len(roster.Learners))
	for _, l := range roster.Learners {
		if l.ID == "" {
			return nil, errors.Errorf("roster file %s contains a learner without id", path)
		}
		if seen[l.ID] {
			return nil, errors.Errorf("duplicate learner id %q in roster", l.ID)
		}
		seen[l.ID] = true
	}

	return &roster, nil
}
