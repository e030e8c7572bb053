package store

import (
	"encoding/json"
	"os"
	"path/filepath"
	"sort"
	"strconv"
	"strings"

	"github.com/pkg/errors"
)

// GroupingMode is the declared structural shape of a phase's work assignment.
type GroupingMode string

const (
	ModeIndividual GroupingMode = "individual"
	ModePair       GroupingMode = "pareja"
	ModeGroup      GroupingMode = "grupo"
)

// ParseGroupingMode normalizes a free-form modality string from a library or
// generation file. Unknown values default to individual work.
func ParseGroupingMode(s string) GroupingMode {
	m := strings.ToLower(strings.TrimSpace(s))
	switch {
	case strings.Contains(m, "pareja"), strings.Contains(m, "pair"):
		return ModePair
	case strings.Contains(m, "grupo"), strings.Contains(m, "group"), strings.Contains(m, "equipo"):
		return ModeGroup
	default:
		return ModeIndividual
	}
}

// LibraryTask is one task inside a library activity phase.
type LibraryTask struct {
	Description      string `json:"descripcion"`
	AssignmentFormat string `json:"formato_asignacion"`
}

// LibraryPhase is one phase of a library activity.
type LibraryPhase struct {
	Name  string        `json:"nombre"`
	Tasks []LibraryTask `json:"tareas"`
}

// ActivityRecord is a read-only library entry. The embedding vector is
// computed lazily through the cache and attached by the retrieval engine.
type ActivityRecord struct {
	ID              string         `json:"-"`
	Title           string         `json:"titulo"`
	Objective       string         `json:"objetivo"`
	Level           string         `json:"nivel_educativo"`
	DurationMinutes int            `json:"duracion_minutos"`
	Subjects        []string       `json:"materias"`
	Modality        string         `json:"modalidad"`
	Resources       []string       `json:"recursos"`
	Phases          []LibraryPhase `json:"etapas"`
	Observations    string         `json:"observaciones"`

	// Position is the library insertion order, used as the deterministic
	// tie-breaker when ranked scores are equal.
	Position int `json:"-"`

	// Context holds the companion .txt pedagogical context, when present.
	Context string `json:"-"`
}

// Mode returns the grouping mode the record declares, falling back to the
// assignment format of its first task.
func (r *ActivityRecord) Mode() GroupingMode {
	if r.Modality != "" {
		return ParseGroupingMode(r.Modality)
	}
	for _, phase := range r.Phases {
		for _, task := range phase.Tasks {
			if task.AssignmentFormat != "" {
				return ParseGroupingMode(task.AssignmentFormat)
			}
		}
	}
	return ModeIndividual
}

// EnrichedText assembles the embedding source text for the record. The shape
// mirrors the library files: labeled lines for the core fields, the first few
// resources and phases, and a truncated slice of the companion context.
func (r *ActivityRecord) EnrichedText() string {
	var parts []string

	parts = append(parts, "TÍTULO: "+r.Title)
	parts = append(parts, "OBJETIVO: "+r.Objective)
	if r.Level != "" {
		parts = append(parts, "NIVEL: "+r.Level)
	}
	if r.DurationMinutes > 0 {
		parts = append(parts, "DURACIÓN: "+strconv.Itoa(r.DurationMinutes)+" minutos")
	}
	if len(r.Subjects) > 0 {
		parts = append(parts, "MATERIAS: "+strings.Join(r.Subjects, ", "))
	}

	if len(r.Resources) > 0 {
		limit := min(len(r.Resources), 5)
		parts = append(parts, "RECURSOS: "+strings.Join(r.Resources[:limit], ", "))
	}

	for _, phase := range r.Phases[:min(len(r.Phases), 3)] {
		parts = append(parts, "ETAPA: "+phase.Name)
		for _, task := range phase.Tasks[:min(len(phase.Tasks), 2)] {
			parts = append(parts, "TAREA: "+task.Description)
		}
	}

	if r.Observations != "" {
		parts = append(parts, "ADAPTACIONES: "+truncate(r.Observations, 200))
	}
	if r.Context != "" {
		parts = append(parts, "CONTEXTO PEDAGÓGICO: "+truncate(r.Context, 500))
	}

	return strings.Join(parts, "\n")
}

// SearchText returns the lowercase haystack used by keyword scoring.
func (r *ActivityRecord) SearchText() string {
	var parts []string
	parts = append(parts, r.Title, r.Objective, strings.Join(r.Subjects, " "))
	for _, phase := range r.Phases {
		parts = append(parts, phase.Name)
	}
	return strings.ToLower(strings.Join(parts, " "))
}

func truncate(s string, n int) string {
	runes := []rune(s)
	if len(runes) <= n {
		return s
	}
	return string(runes[:n])
}

// Library is the read-only collection of activity records.
type Library struct {
	records []*ActivityRecord
}

// NewLibrary builds a library from records in the given order, assigning
// their insertion positions.
func NewLibrary(records ...*ActivityRecord) *Library {
	for i, r := range records {
		r.Position = i
	}
	return &Library{records: records}
}

// Records returns the records in insertion order.
func (l *Library) Records() []*ActivityRecord {
	return l.records
}

// Size returns the number of records.
func (l *Library) Size() int {
	return len(l.records)
}

// Find returns the record with the given id, or nil.
func (l *Library) Find(id string) *ActivityRecord {
	for _, r := range l.records {
		if r.ID == id {
			return r
		}
	}
	return nil
}

// LoadLibrary reads every *.json activity file from dir, attaching a
// companion <name>.txt pedagogical context when one exists next to it.
// Files are loaded in lexical order so the library insertion order, and with
// it ranking tie-breaks, are reproducible across runs.
func LoadLibrary(dir string) (*Library, error) {
	entries, err := os.ReadDir(dir)
	if err != nil {
		return nil, errors.Wrapf(err, "failed to read activity library %s", dir)
	}

	var names []string
	for _, entry := range entries {
		if entry.IsDir() || !strings.HasSuffix(entry.Name(), ".json") {
			continue
		}
		names = append(names, entry.Name())
	}
	sort.Strings(names)

	library := &Library{}
	for _, name := range names {
		path := filepath.Join(dir, name)
		data, err := os.ReadFile(path)
		if err != nil {
			return nil, errors.Wrapf(err, "failed to read activity file %s", path)
		}

		record := &ActivityRecord{}
		if err := json.Unmarshal(data, record); err != nil {
			return nil, errors.Wrapf(err, "failed to parse activity file %s", path)
		}
		record.ID = strings.TrimSuffix(name, ".json")
		record.Position = len(library.records)

		txtPath := filepath.Join(dir, record.ID+".txt")
		if context, err := os.ReadFile(txtPath); err == nil {
			record.Context = string(context)
		}

		library.records = append(library.records, record)
	}

	return library, nil
}
