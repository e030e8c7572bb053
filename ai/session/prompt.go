package session

import (
	"fmt"
	"strings"

	"github.com/KrolinaTF/IA4Edu/ai/draft"
	"github.com/KrolinaTF/IA4Edu/ai/grouping"
	"github.com/KrolinaTF/IA4Edu/ai/retrieval"
	"github.com/KrolinaTF/IA4Edu/store"
)

const systemPrompt = `Eres un diseñador de actividades educativas inclusivas para aula de primaria.
Diseñas actividades concretas y aplicables, con grupos ya formados que debes respetar.
Respondes SIEMPRE en español y SOLO con el formato Markdown que se te indica, sin texto fuera de él.`

// outputSchema is the contract the parser depends on. Keep both in sync.
const outputSchema = `Formato de salida (Markdown, exactamente estas secciones):

# <título de la actividad>

## Objetivo

<objetivo pedagógico en una o dos frases>

## Duración

<número> minutos

## Modalidad

<individual | pareja | grupo>

## Materiales

- <material>

## Etapas

### Etapa 1: <nombre> (<número> min)

- <tarea concreta> | Asignación: <id de grupo o "todos">

## Adaptaciones

- **<TDAH|TEA|Altas capacidades|2e>**: <adaptación concreta>`

// buildGenerationPrompt assembles the first-draft prompt: the request, a
// roster summary, the fixed grouping, the retrieved references and the
// output contract.
func buildGenerationPrompt(request string, roster *store.Roster, assignment *grouping.Assignment, refs []retrieval.ScoredRecord) string {
	var b strings.Builder

	fmt.Fprintf(&b, "Petición del profesor: %s\n\n", strings.TrimSpace(request))
	b.WriteString(rosterSummary(roster))
	b.WriteString(assignmentSummary(assignment, roster))

	if len(refs) > 0 {
		b.WriteString("Actividades de referencia (inspírate en su estructura, no las copies):\n\n")
		for _, ref := range refs {
			fmt.Fprintf(&b, "---\n%s\n", ref.Record.EnrichedText())
		}
		b.WriteString("---\n\n")
	}

	b.WriteString("Diseña UNA actividad nueva que responda a la petición, usando los grupos tal y como están formados.\n")
	b.WriteString("Incluye una adaptación por cada categoría diagnóstica presente en el aula.\n\n")
	b.WriteString(outputSchema)
	return b.String()
}

// buildRefinementPrompt asks for a new version of the current draft that
// applies the classified feedback instructions.
func buildRefinementPrompt(current *draft.ActivityDraft, instructions string, assignment *grouping.Assignment, roster *store.Roster) string {
	var b strings.Builder

	b.WriteString("Versión actual de la actividad:\n\n")
	b.WriteString(current.Markdown())
	b.WriteString("\nInstrucciones de refinamiento derivadas del comentario del profesor:\n\n")
	b.WriteString(instructions)
	b.WriteString("\n\n")
	b.WriteString(assignmentSummary(assignment, roster))
	b.WriteString("Reescribe la actividad COMPLETA aplicando las instrucciones. Mantén todo lo que el profesor no ha pedido cambiar.\n\n")
	b.WriteString(outputSchema)
	return b.String()
}

// buildReformatPrompt is the single re-prompt after malformed output.
func buildReformatPrompt(raw string) string {
	var b strings.Builder
	b.WriteString("Tu respuesta anterior no seguía el formato requerido. Respuesta anterior:\n\n")
	b.WriteString(strings.TrimSpace(raw))
	b.WriteString("\n\nReescríbela SOLO con este formato, sin añadir nada más:\n\n")
	b.WriteString(outputSchema)
	return b.String()
}

func rosterSummary(roster *store.Roster) string {
	var b strings.Builder
	fmt.Fprintf(&b, "Aula: %d estudiantes.\n", len(roster.Learners))
	counts := roster.CountByCategory()
	for _, cat := range []store.DiagnosticCategory{
		store.CategoryTypical,
		store.CategoryAttention,
		store.CategorySpectrum,
		store.CategoryHighCapability,
		store.CategoryDualExceptionality,
	} {
		if n := counts[cat]; n > 0 {
			fmt.Fprintf(&b, "- %s: %d\n", draft.CategoryLabel(cat), n)
		}
	}
	b.WriteString("\n")
	return b.String()
}

func assignmentSummary(assignment *grouping.Assignment, roster *store.Roster) string {
	if assignment == nil || assignment.Mode == store.ModeIndividual {
		return "Modalidad: trabajo individual, cada estudiante por su cuenta.\n\n"
	}
	var b strings.Builder
	fmt.Fprintf(&b, "Grupos ya formados (modalidad %s), usa estos ids en las asignaciones:\n", assignment.Mode)
	for _, g := range assignment.Groups {
		names := make([]string, 0, len(g.Members))
		for _, id := range g.Members {
			if l := roster.FindLearner(id); l != nil {
				names = append(names, l.Name)
			} else {
				names = append(names, id)
			}
		}
		fmt.Fprintf(&b, "- %s: %s\n", g.ID, strings.Join(names, ", "))
	}
	b.WriteString("\n")
	return b.String()
}
