// Package feedback classifies free-text teacher feedback into refinement
// intents with a rule table. No model call is involved: classification must
// be instant, deterministic and cheap, because it runs on every refinement
// round.
package feedback

import (
	"regexp"
	"strings"
)

// Intent is one recognized category of teacher feedback. A single message
// can carry several intents at once.
type Intent string

const (
	// IntentClarification asks to explain the activity rather than change it.
	IntentClarification Intent = "clarification"
	// IntentMechanics asks to simplify or rework how the activity is played.
	IntentMechanics Intent = "mechanics"
	// IntentRules asks for explicit, concrete rule definitions.
	IntentRules Intent = "rules"
	// IntentGrouping asks to change group composition or size.
	IntentGrouping Intent = "grouping"
	// IntentMaterials asks to change required resources.
	IntentMaterials Intent = "materials"
	// IntentDuration asks to shorten or lengthen the activity.
	IntentDuration Intent = "duration"
	// IntentOther covers feedback no rule matched; refined verbatim.
	IntentOther Intent = "other"
)

type rule struct {
	intent   Intent
	patterns []*regexp.Regexp
}

func compile(exprs ...string) []*regexp.Regexp {
	rs := make([]*regexp.Regexp, len(exprs))
	for i, e := range exprs {
		rs[i] = regexp.MustCompile(e)
	}
	return rs
}

// rules are evaluated in order; the order fixes the order of the returned
// intent set, so identical feedback always yields an identical result.
var rules = []rule{
	{IntentClarification, compile(
		`no\s+(lo\s+)?entiendo`,
		`no\s+(me\s+)?queda\s+claro`,
		`qu[eé]\s+significa`,
		`puedes\s+explicar`,
		`no\s+s[eé]\s+c[oó]mo`,
		`confus[oa]`,
	)},
	{IntentMechanics, compile(
		`simplifica`,
		`m[aá]s\s+(sencill|simple|f[aá]cil)`,
		`demasiado\s+complicad`,
		`muy\s+complej`,
		`cambia\s+la\s+(din[aá]mica|mec[aá]nica)`,
	)},
	{IntentRules, compile(
		`\breglas?\b`,
		`\bnormas?\b`,
		`c[oó]mo\s+se\s+(juega|gana|puntúa|puntua)`,
		`instrucciones`,
	)},
	{IntentGrouping, compile(
		`\bgrupos?\b`,
		`\bparejas?\b`,
		`\bequipos?\b`,
		`individual(mente)?`,
		`agrupa`,
		`junt[ao]s?\b`,
		`separa`,
	)},
	{IntentMaterials, compile(
		`materiales?`,
		`recursos?`,
		`\bfichas?\b`,
		`cartulina`,
		`impres[oa]`,
		`fotocopias?`,
		`no\s+tengo\b`,
	)},
	{IntentDuration, compile(
		`cu[aá]nto\s+(dura|tiempo)`,
		`m[aá]s\s+(cort[oa]|larg[oa]|breve)`,
		`\bminutos?\b`,
		`duraci[oó]n`,
		`alarga`,
		`acorta`,
		`no\s+da\s+tiempo`,
	)},
}

// instructions maps each intent to the refinement instruction injected into
// the next generation prompt.
var instructions = map[Intent]string{
	IntentClarification: "Reescribe la actividad con explicaciones paso a paso, sin cambiar su contenido ni su estructura.",
	IntentMechanics:     "Simplifica la dinámica de la actividad: menos pasos, transiciones más claras, sin perder el objetivo pedagógico.",
	IntentRules:         "Define reglas explícitas y concretas: cómo se empieza, cómo se participa, cómo se termina y cómo se sabe que se ha hecho bien.",
	IntentGrouping:      "Revisa la composición de los grupos según lo que pide el profesor, manteniendo los criterios de apoyo e inclusión.",
	IntentMaterials:     "Ajusta los materiales necesarios a lo que pide el profesor, proponiendo alternativas comunes de aula.",
	IntentDuration:      "Ajusta la duración de la actividad y de cada etapa a lo que pide el profesor, recortando o ampliando tareas de forma proporcionada.",
	IntentOther:         "Incorpora literalmente la petición del profesor a la actividad.",
}

// Classifier turns teacher feedback into a set of refinement intents.
type Classifier struct{}

// NewClassifier creates a rule-based feedback classifier.
func NewClassifier() *Classifier {
	return &Classifier{}
}

// Classify returns every intent whose rule matches the feedback, in fixed
// rule order. Feedback matching nothing yields exactly [IntentOther].
func (c *Classifier) Classify(text string) []Intent {
	normalized := strings.ToLower(strings.TrimSpace(text))
	if normalized == "" {
		return []Intent{IntentOther}
	}

	var matched []Intent
	for _, r := range rules {
		for _, p := range r.patterns {
			if p.MatchString(normalized) {
				matched = append(matched, r.intent)
				break
			}
		}
	}
	if len(matched) == 0 {
		return []Intent{IntentOther}
	}
	return matched
}

// Instruction returns the refinement instruction template for an intent.
// For IntentOther the caller should append the raw feedback text.
func Instruction(intent Intent) string {
	return instructions[intent]
}

// Instructions renders the instruction block for a classified intent set.
// The raw feedback is always included so nothing the teacher wrote is lost.
func Instructions(intents []Intent, rawFeedback string) string {
	var b strings.Builder
	for _, intent := range intents {
		b.WriteString("- ")
		b.WriteString(Instruction(intent))
		b.WriteString("\n")
	}
	b.WriteString("\nComentario original del profesor: ")
	b.WriteString(strings.TrimSpace(rawFeedback))
	return b.String()
}
