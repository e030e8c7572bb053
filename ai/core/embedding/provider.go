// Package embedding wraps the external vector embedding provider.
package embedding

import (
	"context"
	"errors"
	"fmt"
	"net"
	"net/http"
	"time"

	"github.com/sashabaranov/go-openai"
	"golang.org/x/time/rate"
)

// ErrEmbeddingUnavailable reports that the provider could not produce a
// vector (timeout, network failure or malformed response). Callers degrade
// rather than fail: the retrieval engine returns an empty reference list.
var ErrEmbeddingUnavailable = errors.New("embedding provider unavailable")

// Provider is the vector embedding provider interface.
type Provider interface {
	// Embed generates a vector for a single text.
	Embed(ctx context.Context, text string) ([]float32, error)

	// EmbedBatch generates vectors for multiple texts.
	EmbedBatch(ctx context.Context, texts []string) ([][]float32, error)

	// Model returns the provider model identifier, part of the cache key.
	Model() string

	// Dimensions returns the vector dimension.
	Dimensions() int
}

// Config represents embedding provider configuration.
type Config struct {
	Provider   string
	Model      string
	APIKey     string
	BaseURL    string
	Dimensions int
	Timeout    int // seconds, default 30

	// RequestsPerSecond caps provider traffic. Zero means no limit.
	RequestsPerSecond float64
}

type provider struct {
	client     *openai.Client
	model      string
	dimensions int
	limiter    *rate.Limiter
	timeout    time.Duration
}

// NewProvider creates a Provider for any OpenAI-compatible embedding service
// (openai, siliconflow, ollama, zai, dashscope, ...).
func NewProvider(cfg *Config) (Provider, error) {
	if cfg.Model == "" {
		return nil, errors.New("embedding model required")
	}

	clientConfig := openai.DefaultConfig(cfg.APIKey)
	if cfg.BaseURL != "" {
		clientConfig.BaseURL = cfg.BaseURL
	}
	clientConfig.HTTPClient = newHTTPClient()

	timeout := time.Duration(cfg.Timeout) * time.Second
	if timeout <= 0 {
		timeout = 30 * time.Second
	}

	var limiter *rate.Limiter
	if cfg.RequestsPerSecond > 0 {
		limiter = rate.NewLimiter(rate.Limit(cfg.RequestsPerSecond), 1)
	}

	return &provider{
		client:     openai.NewClientWithConfig(clientConfig),
		model:      cfg.Model,
		dimensions: cfg.Dimensions,
		limiter:    limiter,
		timeout:    timeout,
	}, nil
}

func newHTTPClient() *http.Client {
	return &http.Client{
		Transport: &http.Transport{
			DialContext: (&net.Dialer{
				Timeout:   10 * time.Second,
				KeepAlive: 30 * time.Second,
			}).DialContext,
			MaxIdleConns:        10,
			IdleConnTimeout:     90 * time.Second,
			TLSHandshakeTimeout: 10 * time.Second,
		},
	}
}

func (p *provider) Embed(ctx context.Context, text string) ([]float32, error) {
	vectors, err := p.EmbedBatch(ctx, []string{text})
	if err != nil {
		return nil, err
	}
	if len(vectors) == 0 {
		return nil, fmt.Errorf("%w: empty embedding result", ErrEmbeddingUnavailable)
	}
	return vectors[0], nil
}

func (p *provider) EmbedBatch(ctx context.Context, texts []string) ([][]float32, error) {
	if len(texts) == 0 {
		return nil, errors.New("no texts provided for embedding")
	}

	if p.limiter != nil {
		if err := p.limiter.Wait(ctx); err != nil {
			return nil, fmt.Errorf("%w: %v", ErrEmbeddingUnavailable, err)
		}
	}

	ctx, cancel := context.WithTimeout(ctx, p.timeout)
	defer cancel()

	req := openai.EmbeddingRequest{
		Input:      texts,
		Model:      openai.EmbeddingModel(p.model),
		Dimensions: p.dimensions,
	}

	resp, err := p.client.CreateEmbeddings(ctx, req)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrEmbeddingUnavailable, err)
	}
	if len(resp.Data) == 0 {
		return nil, fmt.Errorf("%w: empty embedding response", ErrEmbeddingUnavailable)
	}

	vectors := make([][]float32, len(resp.Data))
	for i, data := range resp.Data {
		if p.dimensions > 0 && len(data.Embedding) != p.dimensions {
			return nil, fmt.Errorf("%w: got %d dimensions, want %d",
				ErrEmbeddingUnavailable, len(data.Embedding), p.dimensions)
		}
		vectors[i] = data.Embedding
	}

	return vectors, nil
}

func (p *provider) Model() string {
	return p.model
}

func (p *provider) Dimensions() int {
	return p.dimensions
}
