package adapter

import (
	"context"
	"strings"
	"sync"
	"time"

	openai "github.com/sashabaranov/go-openai"
	"go.uber.org/zap"

	"github.com/f0rky/Chimp-GPT-sub004/internal/knowledge"
	apperrors "github.com/f0rky/Chimp-GPT-sub004/pkg/errors"
)

const maxAttempts = 3

// LLMAdapter talks to an OpenAI-compatible completion endpoint. The model
// field is swappable at runtime, guarded for concurrent access.
type LLMAdapter struct {
	client *openai.Client
	model  string
	mu     sync.RWMutex
	logger *zap.Logger
}

// NewLLMAdapter creates an adapter against baseURL. Gateways such as
// LiteLLM accept any key, so an empty apiKey gets a placeholder.
func NewLLMAdapter(baseURL, apiKey, modelID string, logger *zap.Logger) *LLMAdapter {
	if apiKey == "" {
		apiKey = "dummy-key"
	}

	cfg := openai.DefaultConfig(apiKey)
	if baseURL != "" {
		base := strings.TrimSuffix(baseURL, "/")
		if !strings.HasSuffix(base, "/v1") {
			base += "/v1"
		}
		cfg.BaseURL = base
	}

	return &LLMAdapter{
		client: openai.NewClientWithConfig(cfg),
		model:  modelID,
		logger: logger,
	}
}

// SetModel updates the model used for subsequent completions.
func (a *LLMAdapter) SetModel(model string) {
	if model != "" {
		a.mu.Lock()
		a.model = model
		a.mu.Unlock()
		a.logger.Debug("LLM adapter model updated", zap.String("model", model))
	}
}

// GetModel returns the current model.
func (a *LLMAdapter) GetModel() string {
	a.mu.RLock()
	defer a.mu.RUnlock()
	return a.model
}

// Complete satisfies the knowledge pipeline's completion dependency. It
// retries transient failures with linear backoff and honors context
// cancellation between attempts.
func (a *LLMAdapter) Complete(ctx context.Context, req knowledge.CompletionRequest) (string, error) {
	a.mu.RLock()
	model := a.model
	a.mu.RUnlock()

	chatReq := openai.ChatCompletionRequest{
		Model: model,
		Messages: []openai.ChatCompletionMessage{
			{Role: openai.ChatMessageRoleSystem, Content: req.System},
			{Role: openai.ChatMessageRoleUser, Content: req.Prompt},
		},
		MaxTokens:   req.MaxTokens,
		Temperature: req.Temperature,
	}

	var resp openai.ChatCompletionResponse
	var err error
	for attempt := 0; attempt < maxAttempts; attempt++ {
		if attempt > 0 {
			backoff := time.Duration(attempt) * time.Second
			a.logger.Warn("retrying completion request",
				zap.Int("attempt", attempt+1),
				zap.Duration("backoff", backoff),
			)
			select {
			case <-ctx.Done():
				return "", apperrors.NewAPIError("completion canceled during backoff", ctx.Err())
			case <-time.After(backoff):
			}
		}

		resp, err = a.client.CreateChatCompletion(ctx, chatReq)
		if err == nil {
			break
		}

		errMsg := err.Error()
		a.logger.Error("completion request failed",
			zap.Error(err),
			zap.Int("attempt", attempt+1),
			zap.String("model", model),
		)
		// A JSON parse failure usually means the gateway returned an HTML
		// error page; worth retrying like any other transient fault.
		if strings.Contains(errMsg, "invalid character") || strings.Contains(errMsg, "json") {
			a.logger.Warn("completion endpoint returned non-JSON error response",
				zap.String("error", errMsg),
			)
		}
	}
	if err != nil {
		return "", apperrors.NewRetryableAPIError("completion failed after retries", err)
	}

	if len(resp.Choices) == 0 {
		return "", apperrors.ErrNoResponse
	}

	content := resp.Choices[0].Message.Content
	a.logger.Debug("completion generated",
		zap.String("model", model),
		zap.Int("length", len(content)),
	)
	return content, nil
}
