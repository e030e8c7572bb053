package draft

import (
	"fmt"
	"strings"

	"github.com/KrolinaTF/IA4Edu/store"
)

// adaptationTemplates provide the baseline inclusion guidance per
// diagnostic category. The generation model elaborates on these; the
// fallback draft uses them verbatim.
var adaptationTemplates = map[store.DiagnosticCategory]string{
	store.CategoryAttention:          "Instrucciones divididas en pasos cortos, apoyo visual del turno actual y pausas de movimiento entre etapas.",
	store.CategorySpectrum:           "Anticipación de la secuencia completa al inicio, referente visual estable y rol predecible dentro del grupo.",
	store.CategoryHighCapability:     "Extensión opcional de mayor complejidad al terminar cada tarea, con rol de apoyo a su grupo.",
	store.CategoryDualExceptionality: "Extensión de reto combinada con apoyo en la organización de la tarea y control de la frustración.",
}

// AdaptationsFor returns the template adaptations for the categories
// actually present in the roster. Typical learners need none.
func AdaptationsFor(roster *store.Roster) map[store.DiagnosticCategory]string {
	out := make(map[store.DiagnosticCategory]string)
	for cat := range roster.CountByCategory() {
		if !cat.NeedsSupport() {
			continue
		}
		if tmpl, ok := adaptationTemplates[cat]; ok {
			out[cat] = tmpl
		}
	}
	return out
}

// Fallback builds a minimal but usable draft from the best retrieved
// library record when generation keeps failing. It is clearly labeled so
// the teacher knows no model produced it.
func Fallback(request string, record *store.ActivityRecord, roster *store.Roster) *ActivityDraft {
	d := &ActivityDraft{
		Title:       "Actividad base (sin refinar)",
		Objective:   fmt.Sprintf("Responder a la petición: %s", strings.TrimSpace(request)),
		Mode:        store.ModeIndividual,
		Adaptations: AdaptationsFor(roster),
	}

	if record == nil {
		d.Phases = []Phase{{
			Name:  "Desarrollo",
			Tasks: []Task{{Description: "Trabajo guiado por el profesor sobre la petición original.", Assignment: "todos"}},
		}}
		return d
	}

	d.Title = record.Title + " (plantilla)"
	if record.Objective != "" {
		d.Objective = record.Objective
	}
	d.DurationMinutes = record.DurationMinutes
	d.Mode = record.Mode()
	d.Materials = append(d.Materials, record.Resources...)
	for _, ph := range record.Phases {
		phase := Phase{Name: ph.Name}
		for _, task := range ph.Tasks {
			phase.Tasks = append(phase.Tasks, Task{Description: task.Description, Assignment: "todos"})
		}
		d.Phases = append(d.Phases, phase)
	}
	if len(d.Phases) == 0 {
		d.Phases = []Phase{{
			Name:  "Desarrollo",
			Tasks: []Task{{Description: "Seguir la dinámica descrita en la actividad de referencia.", Assignment: "todos"}},
		}}
	}
	return d
}
