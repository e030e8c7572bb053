package session

import (
	"context"
	"os"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/KrolinaTF/IA4Edu/ai/core/embedding"
	"github.com/KrolinaTF/IA4Edu/ai/core/llm"
	"github.com/KrolinaTF/IA4Edu/ai/metrics"
	"github.com/KrolinaTF/IA4Edu/ai/retrieval"
	"github.com/KrolinaTF/IA4Edu/internal/profile"
	"github.com/KrolinaTF/IA4Edu/store"
)

// scriptedLLM replays a fixed sequence of responses; the last step repeats
// once the script runs out.
type scriptedLLM struct {
	mu      sync.Mutex
	script  []scriptStep
	prompts []string
}

type scriptStep struct {
	text string
	err  error
}

func (s *scriptedLLM) Chat(_ context.Context, messages []llm.Message) (string, *llm.CallStats, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.prompts = append(s.prompts, messages[len(messages)-1].Content)

	idx := len(s.prompts) - 1
	if idx >= len(s.script) {
		idx = len(s.script) - 1
	}
	step := s.script[idx]
	if step.err != nil {
		return "", nil, step.err
	}
	return step.text, &llm.CallStats{TotalDurationMs: 5}, nil
}

// offlineEmbedder forces the keyword fallback path in retrieval.
type offlineEmbedder struct{}

func (offlineEmbedder) GetOrCompute(context.Context, string) ([]float32, error) {
	return nil, embedding.ErrEmbeddingUnavailable
}

func validMarkdown(title string) string {
	return `# ` + title + `

## Objetivo

Comprender fracciones equivalentes jugando a la tienda.

## Duración

45 minutos

## Modalidad

pareja

## Etapas

### Etapa 1: Preparación (10 min)

- Montar los puestos | Asignación: ejec-g1

### Etapa 2: Desarrollo (35 min)

- Resolver compras con fracciones | Asignación: ejec-g2

## Adaptaciones

- **TDAH**: Lista visual de pasos.
`
}

func testStore(t *testing.T) *store.Store {
	t.Helper()
	st := store.New(nil, &profile.Profile{Data: t.TempDir()})
	st.SetRoster(&store.Roster{Learners: []*store.LearnerProfile{
		{ID: "e1", Name: "Lucía", Diagnosis: "TDAH_combinado", CompetencyLevels: map[string]int{"matematicas": 2}},
		{ID: "e2", Name: "Mario", Diagnosis: "ninguno", CompetencyLevels: map[string]int{"matematicas": 3}},
		{ID: "e3", Name: "Sara", Diagnosis: "ninguno", CompetencyLevels: map[string]int{"matematicas": 4}},
		{ID: "e4", Name: "Hugo", Diagnosis: "ninguno", CompetencyLevels: map[string]int{"matematicas": 3}},
	}})
	st.SetLibrary(store.NewLibrary(&store.ActivityRecord{
		ID: "fracciones", Title: "Taller de Fracciones",
		Objective: "Comprender fracciones", Subjects: []string{"matematicas"},
		Modality: "pareja", DurationMinutes: 45,
	}))
	return st
}

func newTestManager(t *testing.T, script ...scriptStep) (*Manager, *scriptedLLM, *store.Store) {
	t.Helper()
	st := testStore(t)
	svc := &scriptedLLM{script: script}
	engine := retrieval.NewEngine(retrieval.DefaultConfig(), offlineEmbedder{}, st.Library())
	cfg := DefaultConfig()
	cfg.RetryBackoff = time.Millisecond
	m := NewManager(cfg, svc, engine, st, metrics.NewExporter(metrics.DefaultConfig()))
	return m, svc, st
}

func TestStart_ProducesAwaitingFeedbackDraft(t *testing.T) {
	m, svc, _ := newTestManager(t, scriptStep{text: validMarkdown("La Tienda de las Fracciones")})

	sess, err := m.Start(context.Background(), "quiero trabajar fracciones en parejas")
	require.NoError(t, err)

	assert.Equal(t, StateAwaitingFeedback, sess.State)
	assert.False(t, sess.FromFallback)
	assert.Equal(t, store.ModePair, sess.Mode)
	assert.Equal(t, "La Tienda de las Fracciones", sess.Draft.Title)
	assert.NotEmpty(t, sess.References)
	require.NotNil(t, sess.Assignment)
	require.NoError(t, sess.Assignment.Validate(m.store.Roster()))

	// The prompt must pin the groups the optimizer built.
	require.NotEmpty(t, svc.prompts)
	assert.Contains(t, svc.prompts[0], "ejec-g1")
	assert.Contains(t, svc.prompts[0], "Lucía")
}

func TestStart_ProviderDownUsesTemplateFallback(t *testing.T) {
	m, _, _ := newTestManager(t,
		scriptStep{err: llm.ErrProviderUnavailable},
		scriptStep{err: llm.ErrProviderUnavailable},
	)

	sess, err := m.Start(context.Background(), "fracciones en parejas")
	require.NoError(t, err)

	assert.Equal(t, StateAwaitingFeedback, sess.State)
	assert.True(t, sess.FromFallback)
	require.NotNil(t, sess.Draft)
	assert.True(t, sess.Draft.Complete())
}

func TestStart_MalformedOutputIsRepromptedOnce(t *testing.T) {
	m, svc, _ := newTestManager(t,
		scriptStep{text: "Claro, aquí tienes una idea estupenda para tu clase."},
		scriptStep{text: validMarkdown("Versión Corregida")},
	)

	sess, err := m.Start(context.Background(), "fracciones en parejas")
	require.NoError(t, err)

	assert.False(t, sess.FromFallback)
	assert.Equal(t, "Versión Corregida", sess.Draft.Title)
	assert.Len(t, svc.prompts, 2)
}

func TestRefine_AppliesFeedback(t *testing.T) {
	m, svc, _ := newTestManager(t,
		scriptStep{text: validMarkdown("Primera Versión")},
		scriptStep{text: validMarkdown("Versión Simplificada")},
	)

	sess, err := m.Start(context.Background(), "fracciones en parejas")
	require.NoError(t, err)

	record, err := m.Refine(context.Background(), sess, "simplifica las reglas")
	require.NoError(t, err)

	assert.True(t, record.Applied)
	assert.Empty(t, record.Warning)
	assert.Equal(t, "Versión Simplificada", sess.Draft.Title)
	assert.Equal(t, StateAwaitingFeedback, sess.State)
	assert.Equal(t, 1, sess.Round)
	assert.Len(t, sess.History, 1)

	// The refinement prompt carries the previous draft and the feedback.
	assert.Contains(t, svc.prompts[1], "Primera Versión")
	assert.Contains(t, svc.prompts[1], "simplifica las reglas")
}

func TestRefine_FailureKeepsPreviousDraft(t *testing.T) {
	m, _, _ := newTestManager(t,
		scriptStep{text: validMarkdown("Versión Válida")},
		scriptStep{text: "esto no es una actividad"},
		scriptStep{text: "sigue sin ser una actividad"},
	)

	sess, err := m.Start(context.Background(), "fracciones en parejas")
	require.NoError(t, err)

	record, err := m.Refine(context.Background(), sess, "hazla más corta")
	require.NoError(t, err)

	assert.False(t, record.Applied)
	assert.NotEmpty(t, record.Warning)
	assert.Equal(t, "Versión Válida", sess.Draft.Title)
	assert.Equal(t, StateAwaitingFeedback, sess.State)
}

func TestRefine_RoundLimit(t *testing.T) {
	m, _, _ := newTestManager(t, scriptStep{text: validMarkdown("Actividad")})
	m.cfg.MaxRounds = 1

	sess, err := m.Start(context.Background(), "fracciones en parejas")
	require.NoError(t, err)

	_, err = m.Refine(context.Background(), sess, "más corta")
	require.NoError(t, err)
	_, err = m.Refine(context.Background(), sess, "más larga")
	assert.ErrorIs(t, err, ErrRoundLimit)
}

func TestFinalize_PersistsAndClosesSession(t *testing.T) {
	m, _, _ := newTestManager(t, scriptStep{text: validMarkdown("Actividad Final")})

	sess, err := m.Start(context.Background(), "fracciones en parejas")
	require.NoError(t, err)

	path, err := m.Finalize(sess)
	require.NoError(t, err)
	assert.Equal(t, StateFinalized, sess.State)

	_, err = os.Stat(path)
	assert.NoError(t, err)

	// A finalized session accepts no more operations.
	_, err = m.Refine(context.Background(), sess, "otra vuelta")
	assert.ErrorIs(t, err, ErrInvalidTransition)
	_, err = m.Finalize(sess)
	assert.ErrorIs(t, err, ErrInvalidTransition)
}

func TestRefine_GroupingFeedbackRebuildsAssignment(t *testing.T) {
	m, _, _ := newTestManager(t,
		scriptStep{text: validMarkdown("Por Parejas")},
		scriptStep{text: validMarkdown("En Equipos")},
	)

	sess, err := m.Start(context.Background(), "fracciones en parejas")
	require.NoError(t, err)
	require.Equal(t, store.ModePair, sess.Mode)

	_, err = m.Refine(context.Background(), sess, "mejor en grupos de cuatro")
	require.NoError(t, err)

	assert.Equal(t, store.ModeGroup, sess.Mode)
	require.NoError(t, sess.Assignment.Validate(m.store.Roster()))
}
