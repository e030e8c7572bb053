package draft

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/KrolinaTF/IA4Edu/store"
)

const wellFormed = `# La Tienda de las Fracciones

## Objetivo

Comprender fracciones equivalentes manipulando precios en una tienda simulada.

## Duración

45 minutos

## Modalidad

pareja

## Materiales

- Monedas de cartulina
- Tarjetas de precios

## Etapas

### Etapa 1: Montamos la tienda (10 min)

- Preparar los puestos con los precios | Asignación: ejec-g1
- Repartir las monedas | Asignación: todos

### Etapa 2: Compramos con fracciones (25 min)

- Resolver compras con medios y cuartos | Asignación: ejec-g2

## Adaptaciones

- **TDAH**: Lista visual de pasos en cada puesto.
- **TEA**: Rol fijo de cajero con secuencia anticipada.
`

func TestParse_WellFormed(t *testing.T) {
	d, err := NewParser().Parse(wellFormed)
	require.NoError(t, err)

	assert.Equal(t, "La Tienda de las Fracciones", d.Title)
	assert.Contains(t, d.Objective, "fracciones equivalentes")
	assert.Equal(t, 45, d.DurationMinutes)
	assert.Equal(t, store.ModePair, d.Mode)
	assert.Equal(t, []string{"Monedas de cartulina", "Tarjetas de precios"}, d.Materials)

	require.Len(t, d.Phases, 2)
	assert.Equal(t, "Montamos la tienda", d.Phases[0].Name)
	assert.Equal(t, 10, d.Phases[0].DurationMinutes)
	require.Len(t, d.Phases[0].Tasks, 2)
	assert.Equal(t, "Preparar los puestos con los precios", d.Phases[0].Tasks[0].Description)
	assert.Equal(t, "ejec-g1", d.Phases[0].Tasks[0].Assignment)
	assert.Equal(t, "todos", d.Phases[0].Tasks[1].Assignment)

	assert.Equal(t, "Lista visual de pasos en cada puesto.", d.Adaptations[store.CategoryAttention])
	assert.Equal(t, "Rol fijo de cajero con secuencia anticipada.", d.Adaptations[store.CategorySpectrum])
	assert.True(t, d.Complete())
}

func TestParse_MalformedOutput(t *testing.T) {
	for _, raw := range []string{
		"",
		"Claro, aquí tienes una actividad sobre fracciones para tu clase.",
		"{\"titulo\": \"esto no es markdown\"}",
	} {
		_, err := NewParser().Parse(raw)
		assert.ErrorIs(t, err, ErrMalformedResponse, "raw: %q", raw)
	}
}

func TestParse_IncompleteIsNotMalformed(t *testing.T) {
	d, err := NewParser().Parse("# Solo un título\n")
	require.NoError(t, err)
	assert.False(t, d.Complete())
}

func TestParse_StripsCodeFence(t *testing.T) {
	d, err := NewParser().Parse("```markdown\n" + wellFormed + "\n```")
	require.NoError(t, err)
	assert.Equal(t, "La Tienda de las Fracciones", d.Title)
	assert.Len(t, d.Phases, 2)
}

func TestParse_TasksWithoutPhaseHeading(t *testing.T) {
	raw := "# Actividad\n\n## Objetivo\n\nAlgo.\n\n## Etapas\n\n- Única tarea | Asignación: ejec-g1\n"
	d, err := NewParser().Parse(raw)
	require.NoError(t, err)

	require.Len(t, d.Phases, 1)
	assert.Equal(t, "Desarrollo", d.Phases[0].Name)
	require.Len(t, d.Phases[0].Tasks, 1)
	assert.Equal(t, "ejec-g1", d.Phases[0].Tasks[0].Assignment)
}

func TestParse_RoundTripsRenderedDraft(t *testing.T) {
	original := &ActivityDraft{
		Title:           "Piratas de las Tablas",
		Objective:       "Repasar las tablas de multiplicar buscando un tesoro.",
		DurationMinutes: 50,
		Mode:            store.ModeGroup,
		Materials:       []string{"Mapa del tesoro"},
		Phases: []Phase{
			{Name: "Buscamos pistas", DurationMinutes: 30, Tasks: []Task{
				{Description: "Resolver la primera pista", Assignment: "ejec-g1"},
			}},
		},
		Adaptations: map[store.DiagnosticCategory]string{
			store.CategoryHighCapability: "Pistas extra de nivel avanzado.",
		},
	}

	parsed, err := NewParser().Parse(original.Markdown())
	require.NoError(t, err)

	assert.Equal(t, original.Title, parsed.Title)
	assert.Equal(t, original.Objective, parsed.Objective)
	assert.Equal(t, original.DurationMinutes, parsed.DurationMinutes)
	assert.Equal(t, original.Mode, parsed.Mode)
	assert.Equal(t, original.Materials, parsed.Materials)
	require.Len(t, parsed.Phases, 1)
	assert.Equal(t, original.Phases[0].Tasks[0], parsed.Phases[0].Tasks[0])
	assert.Equal(t, original.Adaptations, parsed.Adaptations)
}

func TestAssignmentIDs_DeduplicatesInOrder(t *testing.T) {
	d := &ActivityDraft{Phases: []Phase{
		{Tasks: []Task{
			{Description: "a", Assignment: "ejec-g2"},
			{Description: "b", Assignment: "todos"},
			{Description: "c", Assignment: "ejec-g1"},
			{Description: "d", Assignment: "ejec-g2"},
		}},
	}}
	assert.Equal(t, []string{"ejec-g2", "ejec-g1"}, d.AssignmentIDs())
}

func TestFallback_FromRecord(t *testing.T) {
	record := &store.ActivityRecord{
		Title:           "El Supermercado",
		Objective:       "Sumar con dinero",
		DurationMinutes: 60,
		Modality:        "grupo",
		Resources:       []string{"monedas"},
		Phases: []store.LibraryPhase{
			{Name: "Montaje", Tasks: []store.LibraryTask{{Description: "Montar puestos"}}},
		},
	}
	roster := &store.Roster{Learners: []*store.LearnerProfile{
		{ID: "e1", Diagnosis: "TDAH"},
		{ID: "e2", Diagnosis: "ninguno"},
	}}

	d := Fallback("actividad de compras", record, roster)
	assert.True(t, d.Complete())
	assert.Equal(t, 60, d.DurationMinutes)
	assert.Contains(t, d.Adaptations, store.CategoryAttention)
	assert.NotContains(t, d.Adaptations, store.CategoryTypical)
}

func TestFallback_WithoutRecord(t *testing.T) {
	roster := &store.Roster{Learners: []*store.LearnerProfile{{ID: "e1", Diagnosis: "ninguno"}}}
	d := Fallback("algo de lengua", nil, roster)
	assert.True(t, d.Complete())
	assert.NotEmpty(t, d.Phases[0].Tasks)
}
