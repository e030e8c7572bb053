// Package retrieval ranks library activities against a teacher request using
// cached embeddings plus a deterministic boost table.
package retrieval

import (
	"context"
	"math"
	"sort"
	"strings"

	"github.com/pkg/errors"

	"github.com/KrolinaTF/IA4Edu/ai/core/embedding"
	"github.com/KrolinaTF/IA4Edu/ai/observability/logging"
	"github.com/KrolinaTF/IA4Edu/store"
)

// Embedder is the slice of the embedding cache the engine needs.
type Embedder interface {
	GetOrCompute(ctx context.Context, text string) ([]float32, error)
}

// ScoredRecord is one ranked reference activity.
type ScoredRecord struct {
	Record *store.ActivityRecord
	Score  float64
}

// Engine is the similarity search engine. Rankings are recomputed fresh on
// every call and are deterministic for identical inputs and library state.
type Engine struct {
	cfg      Config
	embedder Embedder
	library  *store.Library
	logger   *logging.Logger
}

// NewEngine creates a new similarity engine over the given library.
func NewEngine(cfg Config, embedder Embedder, library *store.Library) *Engine {
	return &Engine{
		cfg:      cfg,
		embedder: embedder,
		library:  library,
		logger:   logging.Default().WithComponent("retrieval"),
	}
}

// FindTopK ranks the library against the request and returns the k best
// references, best first. When the embedding provider is unavailable the
// engine degrades to an empty list so the caller can proceed unconditioned;
// an empty library likewise yields an empty list.
func (e *Engine) FindTopK(ctx context.Context, requestText string, k int) ([]ScoredRecord, error) {
	if k < 1 {
		return nil, errors.Errorf("top-k must be at least 1, got %d", k)
	}
	records := e.library.Records()
	if len(records) == 0 {
		return []ScoredRecord{}, nil
	}

	enriched := e.EnrichRequest(requestText)
	requestVector, err := e.embedder.GetOrCompute(ctx, enriched)
	if err != nil {
		if errors.Is(err, embedding.ErrEmbeddingUnavailable) {
			e.logger.Warn("embedding unavailable, returning no references", "error", err)
			return []ScoredRecord{}, nil
		}
		return nil, err
	}

	scored := make([]ScoredRecord, 0, len(records))
	for _, record := range records {
		recordVector, err := e.embedder.GetOrCompute(ctx, record.EnrichedText())
		if err != nil {
			e.logger.Warn("failed to embed library record", "record", record.ID, "error", err)
			continue
		}

		score := normalizedCosine(requestVector, recordVector)
		score = e.applyBoosts(score, requestText, record)
		if score < e.cfg.MinScore {
			continue
		}
		scored = append(scored, ScoredRecord{Record: record, Score: score})
	}

	sortScored(scored)
	if len(scored) > k {
		scored = scored[:k]
	}
	return scored, nil
}

// SearchKeywords is the textual fallback ranking used when no embeddings are
// available, for example on a fresh install with the provider offline. Scores
// are capped below embedding-backed scores.
func (e *Engine) SearchKeywords(requestText string, k int) []ScoredRecord {
	if k < 1 {
		k = 1
	}
	request := strings.ToLower(requestText)

	var scored []ScoredRecord
	for _, record := range e.library.Records() {
		haystack := record.SearchText()
		var score float64
		for _, rule := range e.cfg.Synonyms {
			for _, trigger := range rule.Triggers {
				if strings.Contains(request, trigger) && strings.Contains(haystack, trigger) {
					score += 0.1
				}
			}
		}
		for _, rule := range e.cfg.Boosts {
			if matchesAny(request, rule.Triggers) && matchesAny(haystack, recordTokens(rule)) {
				score += 0.3
			}
		}
		if score > 0 {
			scored = append(scored, ScoredRecord{Record: record, Score: score})
		}
	}

	sortScored(scored)
	if len(scored) > k {
		scored = scored[:k]
	}

	// Normalize so the best fallback match stays below any solid
	// embedding-backed score.
	if len(scored) > 0 && scored[0].Score > 0 {
		max := scored[0].Score
		for i := range scored {
			scored[i].Score = math.Min(e.cfg.KeywordScoreCap, scored[i].Score/max*e.cfg.KeywordScoreCap)
		}
	}
	return scored
}

// EnrichRequest expands the request text with the synonym table so short
// teacher phrasings land nearer the library's vocabulary.
func (e *Engine) EnrichRequest(requestText string) string {
	request := strings.ToLower(requestText)

	var expansions []string
	for _, rule := range e.cfg.Synonyms {
		if matchesAny(request, rule.Triggers) {
			expansions = append(expansions, rule.Expansion)
		}
	}

	if len(expansions) == 0 {
		return requestText
	}
	return requestText + " " + strings.Join(expansions, " ")
}

// applyBoosts adds the signed adjustments from the boost table to the raw
// cosine score. Every rule has a fixed magnitude and an explicit trigger; the
// result is capped at 1.0.
func (e *Engine) applyBoosts(base float64, requestText string, record *store.ActivityRecord) float64 {
	request := strings.ToLower(requestText)
	haystack := record.SearchText()
	total := 0.0

	for _, rule := range e.cfg.Boosts {
		if matchesAny(request, rule.Triggers) && matchesAny(haystack, recordTokens(rule)) {
			total += rule.Delta
		}
	}

	if record.Level != "" && strings.Contains(request, strings.ToLower(record.Level)) {
		total += e.cfg.LevelMatchBoost
	}

	if requestMode, ok := DetectRequestMode(request); ok {
		if requestMode == record.Mode() {
			total += e.cfg.ModeAgreementBoost
		} else {
			total -= e.cfg.ModeMismatchPenalty
		}
	}

	return math.Min(1.0, base+total)
}

func recordTokens(rule BoostRule) []string {
	if len(rule.RecordTokens) > 0 {
		return rule.RecordTokens
	}
	return rule.Triggers
}

func matchesAny(haystack string, tokens []string) bool {
	for _, token := range tokens {
		if strings.Contains(haystack, token) {
			return true
		}
	}
	return false
}

// DetectRequestMode extracts a grouping mode the request explicitly asks
// for. Detection is lexical and case-sensitive on lowercased input.
func DetectRequestMode(request string) (store.GroupingMode, bool) {
	request = strings.ToLower(request)
	switch {
	case strings.Contains(request, "pareja"):
		return store.ModePair, true
	case strings.Contains(request, "grupo"), strings.Contains(request, "equipo"):
		return store.ModeGroup, true
	case strings.Contains(request, "individual"):
		return store.ModeIndividual, true
	}
	return "", false
}

// sortScored orders by adjusted score descending, breaking ties by library
// insertion order so results are stable across runs.
func sortScored(scored []ScoredRecord) {
	sort.SliceStable(scored, func(i, j int) bool {
		if scored[i].Score != scored[j].Score {
			return scored[i].Score > scored[j].Score
		}
		return scored[i].Record.Position < scored[j].Record.Position
	})
}

// normalizedCosine maps cosine similarity from [-1, 1] to [0, 1]. Dimension
// mismatches compare the shared prefix; zero vectors score zero.
func normalizedCosine(a, b []float32) float64 {
	n := min(len(a), len(b))
	if n == 0 {
		return 0
	}

	var dot, normA, normB float64
	for i := 0; i < n; i++ {
		dot += float64(a[i]) * float64(b[i])
		normA += float64(a[i]) * float64(a[i])
		normB += float64(b[i]) * float64(b[i])
	}
	if normA == 0 || normB == 0 {
		return 0
	}

	cos := dot / (math.Sqrt(normA) * math.Sqrt(normB))
	return (cos + 1) / 2
}
