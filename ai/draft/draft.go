// Package draft holds the structured activity plan model, the parser that
// recovers it from model output and the renderer that presents it back to
// the teacher.
package draft

import (
	"fmt"
	"strings"

	"github.com/KrolinaTF/IA4Edu/store"
)

// categoryLabels are the roster-facing Spanish names for each diagnostic
// category. They round-trip through store.ParseDiagnosticCategory.
var categoryLabels = map[store.DiagnosticCategory]string{
	store.CategoryAttention:          "TDAH",
	store.CategorySpectrum:           "TEA",
	store.CategoryHighCapability:     "Altas capacidades",
	store.CategoryDualExceptionality: "2e",
}

// CategoryLabel returns the Spanish display label for a category.
func CategoryLabel(cat store.DiagnosticCategory) string {
	if label, ok := categoryLabels[cat]; ok {
		return label
	}
	return string(cat)
}

// Task is one concrete thing a group or learner does inside a phase.
type Task struct {
	Description string `json:"descripcion"`
	// Assignment names who does the task: a group id from the current
	// grouping assignment, or "todos" for whole-class tasks.
	Assignment string `json:"asignacion"`
}

// Phase is one stage of the activity with its own time box.
type Phase struct {
	Name            string `json:"nombre"`
	DurationMinutes int    `json:"duracion_minutos"`
	Tasks           []Task `json:"tareas"`
}

// ActivityDraft is a complete structured activity plan. Drafts are
// immutable once validated: refinement produces a new draft.
type ActivityDraft struct {
	Title           string             `json:"titulo"`
	Objective       string             `json:"objetivo"`
	DurationMinutes int                `json:"duracion_minutos"`
	Mode            store.GroupingMode `json:"modalidad"`
	Materials       []string           `json:"materiales"`
	Phases          []Phase            `json:"etapas"`
	// Adaptations keys are diagnostic categories present in the roster.
	Adaptations map[store.DiagnosticCategory]string `json:"adaptaciones"`
}

// Complete reports whether the draft has the minimum sections a teacher
// can act on. Incomplete drafts are refinable, unlike malformed output
// which never produced a draft at all.
func (d *ActivityDraft) Complete() bool {
	return d.Title != "" && d.Objective != "" && len(d.Phases) > 0
}

// AssignmentIDs returns every group id referenced from tasks, deduplicated
// in first-appearance order. "todos" is not an id.
func (d *ActivityDraft) AssignmentIDs() []string {
	seen := make(map[string]bool)
	var ids []string
	for _, p := range d.Phases {
		for _, t := range p.Tasks {
			a := strings.TrimSpace(t.Assignment)
			if a == "" || strings.EqualFold(a, "todos") || seen[a] {
				continue
			}
			seen[a] = true
			ids = append(ids, a)
		}
	}
	return ids
}

// Markdown renders the draft for display and for archival alongside the
// JSON form.
func (d *ActivityDraft) Markdown() string {
	var b strings.Builder

	fmt.Fprintf(&b, "# %s\n\n", d.Title)
	fmt.Fprintf(&b, "## Objetivo\n\n%s\n\n", d.Objective)
	if d.DurationMinutes > 0 {
		fmt.Fprintf(&b, "## Duración\n\n%d minutos\n\n", d.DurationMinutes)
	}
	if d.Mode != "" {
		fmt.Fprintf(&b, "## Modalidad\n\n%s\n\n", d.Mode)
	}
	if len(d.Materials) > 0 {
		b.WriteString("## Materiales\n\n")
		for _, m := range d.Materials {
			fmt.Fprintf(&b, "- %s\n", m)
		}
		b.WriteString("\n")
	}

	if len(d.Phases) > 0 {
		b.WriteString("## Etapas\n\n")
		for i, p := range d.Phases {
			if p.DurationMinutes > 0 {
				fmt.Fprintf(&b, "### Etapa %d: %s (%d min)\n\n", i+1, p.Name, p.DurationMinutes)
			} else {
				fmt.Fprintf(&b, "### Etapa %d: %s\n\n", i+1, p.Name)
			}
			for _, t := range p.Tasks {
				if t.Assignment != "" {
					fmt.Fprintf(&b, "- %s | Asignación: %s\n", t.Description, t.Assignment)
				} else {
					fmt.Fprintf(&b, "- %s\n", t.Description)
				}
			}
			b.WriteString("\n")
		}
	}

	if len(d.Adaptations) > 0 {
		b.WriteString("## Adaptaciones\n\n")
		// Fixed category order keeps renders reproducible.
		for _, cat := range []store.DiagnosticCategory{
			store.CategoryAttention,
			store.CategorySpectrum,
			store.CategoryHighCapability,
			store.CategoryDualExceptionality,
		} {
			if text, ok := d.Adaptations[cat]; ok {
				fmt.Fprintf(&b, "- **%s**: %s\n", CategoryLabel(cat), text)
			}
		}
		b.WriteString("\n")
	}

	return b.String()
}
