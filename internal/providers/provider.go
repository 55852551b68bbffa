// Package providers talks to the text LLMs used for question generation.
package providers

import (
	"context"
	"errors"
	"time"

	"golang.org/x/time/rate"

	"github.com/emandor/medai_service/internal/config"
)

var ErrNoProviders = errors.New("no LLM provider configured")

type SourceName string

const (
	SourceOpenAI SourceName = "OPENAI"
	SourceClaude SourceName = "CLAUDE"
	SourceGemini SourceName = "GEMINI"
)

// Completion is the raw model output of one prompt.
type Completion struct {
	Text       string         `json:"text"`
	LatencyMs  int            `json:"latency_ms"`
	TokenUsage map[string]any `json:"token_usage,omitempty"`
}

type Client interface {
	Name() SourceName
	Complete(ctx context.Context, prompt string) (Completion, error)
}

// Build returns one client per configured API key, in fallback order.
func Build(ctx context.Context, cfg *config.Config) ([]Client, error) {
	var list []Client
	if cfg.OpenAIKey != "" {
		list = append(list, NewOpenAI(cfg.OpenAIKey, cfg.OpenAIModel))
	}
	if cfg.AnthropicKey != "" {
		list = append(list, NewAnthropic(cfg.AnthropicKey, cfg.AnthropicModel))
	}
	if cfg.GeminiKey != "" {
		g, err := NewGemini(ctx, cfg.GeminiKey, cfg.GeminiModel)
		if err != nil {
			return nil, err
		}
		list = append(list, g)
	}
	for i, c := range list {
		list[i] = Limit(c, cfg.LLMRPS, cfg.LLMBurst)
	}
	return list, nil
}

type limited struct {
	Client
	lim *rate.Limiter
}

// Limit wraps c so it never exceeds rps requests per second.
func Limit(c Client, rps, burst int) Client {
	if rps <= 0 {
		rps = 2
	}
	if burst <= 0 {
		burst = rps
	}
	return &limited{Client: c, lim: rate.NewLimiter(rate.Limit(rps), burst)}
}

func (l *limited) Complete(ctx context.Context, prompt string) (Completion, error) {
	if err := l.lim.Wait(ctx); err != nil {
		return Completion{}, err
	}
	return l.Client.Complete(ctx, prompt)
}

func since(t0 time.Time) int { return int(time.Since(t0) / time.Millisecond) }
