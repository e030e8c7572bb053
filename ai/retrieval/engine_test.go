package retrieval

import (
	"context"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/KrolinaTF/IA4Edu/ai/core/embedding"
	"github.com/KrolinaTF/IA4Edu/store"
)

// fakeEmbedder returns a fixed vector per marker word found in the text, so
// similarity between request and record is fully controlled by the test.
type fakeEmbedder struct {
	vectors map[string][]float32
	err     error
}

func (f *fakeEmbedder) GetOrCompute(_ context.Context, text string) ([]float32, error) {
	if f.err != nil {
		return nil, f.err
	}
	lower := strings.ToLower(text)
	for marker, vector := range f.vectors {
		if strings.Contains(lower, marker) {
			return vector, nil
		}
	}
	return []float32{0, 0, 1}, nil
}

func testLibrary() *store.Library {
	return store.NewLibrary(
		&store.ActivityRecord{
			ID: "supermercado", Title: "El Supermercado del Aula",
			Objective: "Practicar sumas con dinero", Subjects: []string{"matematicas"},
			Modality: "grupo", DurationMinutes: 60,
		},
		&store.ActivityRecord{
			ID: "fracciones", Title: "Taller de Fracciones",
			Objective: "Comprender fracciones con material manipulativo", Subjects: []string{"matematicas"},
			Modality: "pareja", DurationMinutes: 45,
		},
		&store.ActivityRecord{
			ID: "mural", Title: "Mural del Océano",
			Objective: "Crear un mural colaborativo", Subjects: []string{"ciencias"},
			Modality: "grupo", DurationMinutes: 90,
		},
	)
}

func newTestEngine(embedder Embedder) *Engine {
	return NewEngine(DefaultConfig(), embedder, testLibrary())
}

func TestFindTopK_RanksByAdjustedScore(t *testing.T) {
	// All records equally similar to the request; boosts decide the order.
	embedder := &fakeEmbedder{vectors: map[string][]float32{
		"fracciones":   {1, 0, 0},
		"parejas":      {1, 0, 0},
		"supermercado": {1, 0, 0},
		"mural":        {1, 0, 0},
	}}
	engine := newTestEngine(embedder)

	refs, err := engine.FindTopK(context.Background(), "quiero trabajar fracciones en parejas", 3)
	require.NoError(t, err)
	require.NotEmpty(t, refs)

	// The fracciones record earns the topic boost plus the pair-mode
	// agreement boost; the others take the mode mismatch penalty.
	assert.Equal(t, "fracciones", refs[0].Record.ID)
	assert.Greater(t, refs[0].Score, refs[1].Score)
}

func TestFindTopK_Deterministic(t *testing.T) {
	embedder := &fakeEmbedder{vectors: map[string][]float32{"mural": {1, 1, 0}}}
	engine := newTestEngine(embedder)

	first, err := engine.FindTopK(context.Background(), "un mural creativo", 3)
	require.NoError(t, err)
	second, err := engine.FindTopK(context.Background(), "un mural creativo", 3)
	require.NoError(t, err)

	assert.Equal(t, first, second)
}

func TestFindTopK_HonorsK(t *testing.T) {
	embedder := &fakeEmbedder{vectors: map[string][]float32{"": {1, 0, 0}}}
	engine := newTestEngine(embedder)

	refs, err := engine.FindTopK(context.Background(), "actividad de aula", 1)
	require.NoError(t, err)
	assert.LessOrEqual(t, len(refs), 1)

	_, err = engine.FindTopK(context.Background(), "actividad de aula", 0)
	assert.Error(t, err)
}

func TestFindTopK_EmbeddingUnavailableDegradesToEmpty(t *testing.T) {
	engine := newTestEngine(&fakeEmbedder{err: embedding.ErrEmbeddingUnavailable})

	refs, err := engine.FindTopK(context.Background(), "fracciones en parejas", 3)
	require.NoError(t, err)
	assert.Empty(t, refs)
}

func TestFindTopK_EmptyLibrary(t *testing.T) {
	engine := NewEngine(DefaultConfig(), &fakeEmbedder{}, store.NewLibrary())

	refs, err := engine.FindTopK(context.Background(), "cualquier cosa", 3)
	require.NoError(t, err)
	assert.Empty(t, refs)
}

func TestFindTopK_MinScoreFiltersWeakMatches(t *testing.T) {
	// Orthogonal vectors give a normalized cosine of 0.5; a strong negative
	// boost cannot exist, so force a low score via opposite vectors.
	embedder := &fakeEmbedder{vectors: map[string][]float32{
		"supermercado": {-1, 0, 0},
		"fracciones":   {-1, 0, 0},
		"mural":        {-1, 0, 0},
		"historia":     {1, 0, 0},
	}}
	engine := newTestEngine(embedder)

	refs, err := engine.FindTopK(context.Background(), "historia romana teatro", 3)
	require.NoError(t, err)
	assert.Empty(t, refs)
}

func TestSearchKeywords_FallbackScoresBelowCap(t *testing.T) {
	engine := newTestEngine(&fakeEmbedder{})

	refs := engine.SearchKeywords("fracciones en parejas", 3)
	require.NotEmpty(t, refs)
	assert.Equal(t, "fracciones", refs[0].Record.ID)
	for _, ref := range refs {
		assert.LessOrEqual(t, ref.Score, DefaultConfig().KeywordScoreCap)
	}
}

func TestSearchKeywords_NoMatches(t *testing.T) {
	engine := newTestEngine(&fakeEmbedder{})
	assert.Empty(t, engine.SearchKeywords("astronomía andaluza", 3))
}

func TestEnrichRequest_ExpandsSynonyms(t *testing.T) {
	engine := newTestEngine(&fakeEmbedder{})

	enriched := engine.EnrichRequest("una actividad de fracciones")
	assert.Contains(t, enriched, "una actividad de fracciones")
	assert.Contains(t, enriched, "competencias matemáticas")

	// No trigger, no expansion.
	assert.Equal(t, "teatro griego", engine.EnrichRequest("teatro griego"))
}

func TestDetectRequestMode(t *testing.T) {
	mode, ok := DetectRequestMode("fracciones en PAREJAS")
	require.True(t, ok)
	assert.Equal(t, store.ModePair, mode)

	mode, ok = DetectRequestMode("un trabajo en equipo")
	require.True(t, ok)
	assert.Equal(t, store.ModeGroup, mode)

	_, ok = DetectRequestMode("algo tranquilo de lectura")
	assert.False(t, ok)
}
