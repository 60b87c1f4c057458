package llm

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/formsheet/server/internal/config"
	"github.com/formsheet/server/internal/metrics"
	"github.com/formsheet/server/pkg/logger"
	"github.com/sashabaranov/go-openai"
)

const defaultModelTimeout = 60 * time.Second

var (
	ErrNotConfigured   = errors.New("llm: no API key configured")
	ErrAllModelsFailed = errors.New("llm: every model in the fallback list failed")
	errEmptyCompletion = errors.New("llm: empty completion")
)

// Completer produces text for a prompt.
type Completer interface {
	Complete(ctx context.Context, system, prompt string) (*Completion, error)
}

type Completion struct {
	Text  string `json:"text"`
	Model string `json:"model"`
}

type chatAPI interface {
	CreateChatCompletion(ctx context.Context, req openai.ChatCompletionRequest) (openai.ChatCompletionResponse, error)
}

// Client calls an OpenAI-compatible chat endpoint, trying each model in order until one answers.
type Client struct {
	api     chatAPI
	models  []string
	timeout time.Duration
}

func New(cfg config.LLMConfig) *Client {
	timeout := cfg.Timeout
	if timeout <= 0 {
		timeout = defaultModelTimeout
	}
	client := &Client{models: cfg.Models, timeout: timeout}
	if cfg.APIKey == "" {
		return client
	}

	apiConfig := openai.DefaultConfig(cfg.APIKey)
	if cfg.BaseURL != "" {
		apiConfig.BaseURL = strings.TrimRight(cfg.BaseURL, "/")
	}
	client.api = openai.NewClientWithConfig(apiConfig)
	return client
}

func (c *Client) Complete(ctx context.Context, system, prompt string) (*Completion, error) {
	if c.api == nil {
		return nil, ErrNotConfigured
	}
	if len(c.models) == 0 {
		return nil, fmt.Errorf("%w: no models configured", ErrAllModelsFailed)
	}

	var failures []error
	for _, model := range c.models {
		text, err := c.completeWith(ctx, model, system, prompt)
		if err == nil {
			metrics.LLMRequestsTotal.WithLabelValues(model, "ok").Inc()
			return &Completion{Text: text, Model: model}, nil
		}

		metrics.LLMRequestsTotal.WithLabelValues(model, "error").Inc()
		logger.Warn("llm_model_failed", map[string]interface{}{
			"model": model,
			"error": err.Error(),
		})
		failures = append(failures, fmt.Errorf("%s: %w", model, err))

		if ctx.Err() != nil {
			break
		}
	}

	return nil, fmt.Errorf("%w: %w", ErrAllModelsFailed, errors.Join(failures...))
}

func (c *Client) completeWith(ctx context.Context, model, system, prompt string) (string, error) {
	callCtx, cancel := context.WithTimeout(ctx, c.timeout)
	defer cancel()

	messages := make([]openai.ChatCompletionMessage, 0, 2)
	if system != "" {
		messages = append(messages, openai.ChatCompletionMessage{Role: openai.ChatMessageRoleSystem, Content: system})
	}
	messages = append(messages, openai.ChatCompletionMessage{Role: openai.ChatMessageRoleUser, Content: prompt})

	resp, err := c.api.CreateChatCompletion(callCtx, openai.ChatCompletionRequest{
		Model:    model,
		Messages: messages,
	})
	if err != nil {
		return "", err
	}
	if len(resp.Choices) == 0 || strings.TrimSpace(resp.Choices[0].Message.Content) == "" {
		return "", errEmptyCompletion
	}
	return strings.TrimSpace(resp.Choices[0].Message.Content), nil
}
