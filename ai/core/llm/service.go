// Package llm wraps the external text generation provider behind an
// OpenAI-compatible client.
package llm

import (
	"context"
	"errors"
	"fmt"
	"net"
	"net/http"
	"time"

	"github.com/sashabaranov/go-openai"
)

// ErrProviderUnavailable reports a network failure or timeout on the
// generation call. The session retries once with backoff before falling back.
var ErrProviderUnavailable = errors.New("generation provider unavailable")

// Message represents a chat message.
type Message struct {
	Role    string // system, user, assistant
	Content string
}

// CallStats carries token usage and timing for a single generation call.
type CallStats struct {
	PromptTokens     int   `json:"prompt_tokens"`
	CompletionTokens int   `json:"completion_tokens"`
	TotalTokens      int   `json:"total_tokens"`
	TotalDurationMs  int64 `json:"total_duration_ms"`
}

// Service is the generation service interface.
type Service interface {
	// Chat performs a synchronous generation call.
	Chat(ctx context.Context, messages []Message) (string, *CallStats, error)
}

// Config represents generation service configuration.
type Config struct {
	Provider    string // openai, deepseek, siliconflow, ollama, zai
	Model       string
	APIKey      string
	BaseURL     string
	MaxTokens   int     // default: 4096
	Temperature float32 // default: 0.7
	Timeout     int     // seconds, default: 120
}

type service struct {
	client      *openai.Client
	model       string
	maxTokens   int
	temperature float32
	timeout     time.Duration
}

// NewService creates a new generation Service. All supported providers speak
// the OpenAI chat completion protocol; only key and base URL differ.
func NewService(cfg *Config) (Service, error) {
	if cfg.Model == "" {
		return nil, errors.New("llm model required")
	}
	if cfg.APIKey == "" && cfg.Provider != "ollama" {
		return nil, errors.New("llm api key required")
	}

	clientConfig := openai.DefaultConfig(cfg.APIKey)
	if cfg.BaseURL != "" {
		clientConfig.BaseURL = cfg.BaseURL
	}
	clientConfig.HTTPClient = newHTTPClient()

	maxTokens := cfg.MaxTokens
	if maxTokens <= 0 {
		maxTokens = 4096
	}
	temperature := cfg.Temperature
	if temperature <= 0 {
		temperature = 0.7
	}
	timeout := time.Duration(cfg.Timeout) * time.Second
	if timeout <= 0 {
		timeout = 120 * time.Second
	}

	return &service{
		client:      openai.NewClientWithConfig(clientConfig),
		model:       cfg.Model,
		maxTokens:   maxTokens,
		temperature: temperature,
		timeout:     timeout,
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

func (s *service) Chat(ctx context.Context, messages []Message) (string, *CallStats, error) {
	ctx, cancel := context.WithTimeout(ctx, s.timeout)
	defer cancel()

	chatMessages := make([]openai.ChatCompletionMessage, len(messages))
	for i, m := range messages {
		chatMessages[i] = openai.ChatCompletionMessage{
			Role:    m.Role,
			Content: m.Content,
		}
	}

	start := time.Now()
	resp, err := s.client.CreateChatCompletion(ctx, openai.ChatCompletionRequest{
		Model:       s.model,
		Messages:    chatMessages,
		MaxTokens:   s.maxTokens,
		Temperature: s.temperature,
	})
	if err != nil {
		return "", nil, fmt.Errorf("%w: %v", ErrProviderUnavailable, err)
	}
	if len(resp.Choices) == 0 {
		return "", nil, fmt.Errorf("%w: empty completion response", ErrProviderUnavailable)
	}

	stats := &CallStats{
		PromptTokens:     resp.Usage.PromptTokens,
		CompletionTokens: resp.Usage.CompletionTokens,
		TotalTokens:      resp.Usage.TotalTokens,
		TotalDurationMs:  time.Since(start).Milliseconds(),
	}

	return resp.Choices[0].Message.Content, stats, nil
}

// SystemPrompt creates a system message.
func SystemPrompt(content string) Message {
	return Message{Role: openai.ChatMessageRoleSystem, Content: content}
}

// UserMessage creates a user message.
func UserMessage(content string) Message {
	return Message{Role: openai.ChatMessageRoleUser, Content: content}
}
