package draft

import (
	"regexp"
	"strconv"
	"strings"

	"github.com/pkg/errors"
	"github.com/yuin/goldmark"
	"github.com/yuin/goldmark/ast"
	"github.com/yuin/goldmark/text"

	"github.com/KrolinaTF/IA4Edu/store"
)

// ErrMalformedResponse reports model output from which no draft could be
// recovered at all. It is distinct from an incomplete draft, which parses
// but lacks sections and can be refined.
var ErrMalformedResponse = errors.New("malformed generation response")

var (
	minutesRe  = regexp.MustCompile(`(\d+)\s*min`)
	durationRe = regexp.MustCompile(`(\d+)`)
	phaseRe    = regexp.MustCompile(`^Etapa\s+\d+:\s*(.+?)(?:\s*\((\d+)\s*min\.?\))?$`)
)

// Parser recovers an ActivityDraft from the markdown the generation model
// emits. The expected shape matches what the prompt builder requests: one
// level-1 title, level-2 sections and level-3 phase headings.
type Parser struct {
	md goldmark.Markdown
}

// NewParser creates a markdown draft parser.
func NewParser() *Parser {
	return &Parser{md: goldmark.New()}
}

// Parse builds a draft from raw model output. It returns
// ErrMalformedResponse when the output contains no title heading, which is
// the cheapest reliable signal that the model ignored the output schema.
func (p *Parser) Parse(raw string) (*ActivityDraft, error) {
	source := []byte(stripFences(raw))
	doc := p.md.Parser().Parse(text.NewReader(source))

	d := &ActivityDraft{Adaptations: make(map[store.DiagnosticCategory]string)}
	section := ""

	err := ast.Walk(doc, func(n ast.Node, entering bool) (ast.WalkStatus, error) {
		if !entering {
			return ast.WalkContinue, nil
		}
		switch node := n.(type) {
		case *ast.Heading:
			heading := nodeText(node, source)
			switch node.Level {
			case 1:
				d.Title = heading
			case 2:
				section = normalizeSection(heading)
			case 3:
				if section == "etapas" {
					d.Phases = append(d.Phases, parsePhaseHeading(heading))
				}
			}
			return ast.WalkSkipChildren, nil
		case *ast.ListItem:
			item := nodeText(node, source)
			p.consumeItem(d, section, item)
			return ast.WalkSkipChildren, nil
		case *ast.Paragraph:
			if parent := node.Parent(); parent != nil && parent.Kind() == ast.KindDocument {
				p.consumeParagraph(d, section, nodeText(node, source))
				return ast.WalkSkipChildren, nil
			}
		}
		return ast.WalkContinue, nil
	})
	if err != nil {
		return nil, errors.Wrap(ErrMalformedResponse, err.Error())
	}

	if d.Title == "" {
		return nil, errors.Wrap(ErrMalformedResponse, "no title heading")
	}
	return d, nil
}

func (p *Parser) consumeParagraph(d *ActivityDraft, section, body string) {
	switch section {
	case "objetivo":
		if d.Objective == "" {
			d.Objective = body
		} else {
			d.Objective += " " + body
		}
	case "duración", "duracion":
		if m := durationRe.FindStringSubmatch(body); m != nil {
			d.DurationMinutes, _ = strconv.Atoi(m[1])
		}
	case "modalidad":
		d.Mode = store.ParseGroupingMode(body)
	}
}

func (p *Parser) consumeItem(d *ActivityDraft, section, item string) {
	switch section {
	case "materiales":
		d.Materials = append(d.Materials, item)
	case "etapas":
		if len(d.Phases) == 0 {
			// Tasks outside any phase heading still belong somewhere.
			d.Phases = append(d.Phases, Phase{Name: "Desarrollo"})
		}
		phase := &d.Phases[len(d.Phases)-1]
		phase.Tasks = append(phase.Tasks, parseTask(item))
	case "adaptaciones":
		if cat, text, ok := parseAdaptation(item); ok {
			d.Adaptations[cat] = text
		}
	}
}

// parsePhaseHeading reads "Etapa 2: Resolución (15 min)" style headings,
// tolerating headings that drop the "Etapa N:" prefix or the time box.
func parsePhaseHeading(heading string) Phase {
	if m := phaseRe.FindStringSubmatch(heading); m != nil {
		ph := Phase{Name: strings.TrimSpace(m[1])}
		if m[2] != "" {
			ph.DurationMinutes, _ = strconv.Atoi(m[2])
		}
		return ph
	}
	ph := Phase{Name: heading}
	if m := minutesRe.FindStringSubmatch(heading); m != nil {
		ph.DurationMinutes, _ = strconv.Atoi(m[1])
		if idx := strings.Index(ph.Name, "("); idx > 0 {
			ph.Name = strings.TrimSpace(ph.Name[:idx])
		}
	}
	return ph
}

// parseTask splits "descripción | Asignación: g1" items.
func parseTask(item string) Task {
	t := Task{Description: item}
	if idx := strings.LastIndex(item, "|"); idx >= 0 {
		tail := strings.TrimSpace(item[idx+1:])
		lower := strings.ToLower(tail)
		for _, prefix := range []string{"asignación:", "asignacion:", "grupo:"} {
			if strings.HasPrefix(lower, prefix) {
				t.Description = strings.TrimSpace(item[:idx])
				t.Assignment = strings.TrimSpace(tail[len(prefix):])
				return t
			}
		}
	}
	return t
}

// parseAdaptation reads "**TDAH**: texto" or "TDAH: texto" items.
func parseAdaptation(item string) (store.DiagnosticCategory, string, bool) {
	clean := strings.ReplaceAll(item, "*", "")
	idx := strings.Index(clean, ":")
	if idx <= 0 {
		return "", "", false
	}
	cat := store.ParseDiagnosticCategory(strings.TrimSpace(clean[:idx]))
	if cat == store.CategoryTypical {
		return "", "", false
	}
	return cat, strings.TrimSpace(clean[idx+1:]), true
}

func normalizeSection(heading string) string {
	return strings.ToLower(strings.TrimSpace(heading))
}

// stripFences removes a surrounding ```markdown fence some models wrap
// their whole answer in.
func stripFences(raw string) string {
	s := strings.TrimSpace(raw)
	if !strings.HasPrefix(s, "```") {
		return s
	}
	s = strings.TrimPrefix(s, "```markdown")
	s = strings.TrimPrefix(s, "```md")
	s = strings.TrimPrefix(s, "```")
	s = strings.TrimSuffix(strings.TrimSpace(s), "```")
	return strings.TrimSpace(s)
}

// nodeText flattens all text content under a node.
func nodeText(n ast.Node, source []byte) string {
	var b strings.Builder
	_ = ast.Walk(n, func(child ast.Node, entering bool) (ast.WalkStatus, error) {
		if !entering {
			return ast.WalkContinue, nil
		}
		if t, ok := child.(*ast.Text); ok {
			b.Write(t.Segment.Value(source))
			if t.SoftLineBreak() || t.HardLineBreak() {
				b.WriteByte(' ')
			}
		}
		return ast.WalkContinue, nil
	})
	return strings.TrimSpace(b.String())
}
