// Package ai wires the design-loop components together from a runtime
// profile: embedding provider behind the persistent cache, the retrieval
// engine over the activity library, the generation service and the session
// manager.
package ai

import (
	"github.com/pkg/errors"

	"github.com/KrolinaTF/IA4Edu/ai/cache"
	"github.com/KrolinaTF/IA4Edu/ai/core/embedding"
	"github.com/KrolinaTF/IA4Edu/ai/core/llm"
	"github.com/KrolinaTF/IA4Edu/ai/metrics"
	"github.com/KrolinaTF/IA4Edu/ai/observability/logging"
	"github.com/KrolinaTF/IA4Edu/ai/retrieval"
	"github.com/KrolinaTF/IA4Edu/ai/session"
	"github.com/KrolinaTF/IA4Edu/internal/profile"
	"github.com/KrolinaTF/IA4Edu/store"
)

// Assistant bundles the assembled services for one process.
type Assistant struct {
	Embeddings *cache.EmbeddingCache
	Retrieval  *retrieval.Engine
	LLM        llm.Service
	Sessions   *session.Manager
	Metrics    *metrics.Exporter
}

// New assembles the assistant from profile settings and an opened store.
// The store must already have its classroom data loaded.
func New(p *profile.Profile, st *store.Store) (*Assistant, error) {
	logger := logging.Default().WithComponent("ai")
	exporter := metrics.NewExporter(metrics.DefaultConfig())

	provider, err := embedding.NewProvider(&embedding.Config{
		Provider:   p.EmbeddingProvider,
		Model:      p.EmbeddingModel,
		APIKey:     p.EmbeddingAPIKey,
		BaseURL:    p.EmbeddingBaseURL,
		Dimensions: p.EmbeddingDimensions,
		Timeout:    p.EmbeddingTimeout,
	})
	if err != nil {
		return nil, errors.Wrap(err, "embedding provider")
	}
	embeddings := cache.NewEmbeddingCache(provider, st, exporter)

	retrievalCfg := retrieval.DefaultConfig()
	if p.RetrievalConfigPath != "" {
		retrievalCfg, err = retrieval.LoadConfig(p.RetrievalConfigPath)
		if err != nil {
			return nil, errors.Wrap(err, "retrieval config")
		}
		logger.Info("retrieval tuning loaded", "path", p.RetrievalConfigPath)
	}
	engine := retrieval.NewEngine(retrievalCfg, embeddings, st.Library())

	svc, err := llm.NewService(&llm.Config{
		Provider: p.LLMProvider,
		Model:    p.LLMModel,
		APIKey:   p.LLMAPIKey,
		BaseURL:  p.LLMBaseURL,
		Timeout:  p.LLMTimeout,
	})
	if err != nil {
		return nil, errors.Wrap(err, "generation service")
	}

	sessions := session.NewManager(session.DefaultConfig(), svc, engine, st, exporter)

	logger.Info("assistant assembled",
		"embedding_model", p.EmbeddingModel,
		"llm_model", p.LLMModel,
		"library_size", st.Library().Size())

	return &Assistant{
		Embeddings: embeddings,
		Retrieval:  engine,
		LLM:        svc,
		Sessions:   sessions,
		Metrics:    exporter,
	}, nil
}
