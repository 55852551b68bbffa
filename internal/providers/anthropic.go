package providers

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"strings"
	"time"

	"github.com/emandor/medai_service/internal/telemetry"
)

const anthropicVersion = "2023-06-01"

type Anthropic struct {
	Key, Model string
	BaseURL    string
	HTTP       *http.Client
}

func NewAnthropic(key, model string) *Anthropic {
	return &Anthropic{Key: key, Model: model, BaseURL: "https://api.anthropic.com", HTTP: &http.Client{}}
}

func (c *Anthropic) Name() SourceName { return SourceClaude }

func (c *Anthropic) Complete(ctx context.Context, prompt string) (Completion, error) {
	t0 := time.Now()
	raw, err := postJSON(ctx, c.HTTP, c.Name(), c.BaseURL+"/v1/messages",
		http.Header{"x-api-key": {c.Key}, "anthropic-version": {anthropicVersion}},
		map[string]any{
			"model":      c.Model,
			"max_tokens": 2048,
			"messages":   []map[string]any{{"role": "user", "content": prompt}},
		})
	if err != nil {
		log := telemetry.L().With().Str("provider", string(c.Name())).Logger()
		log.Error().Err(err).Msg("anthropic_request_failed")
		return Completion{}, err
	}

	var out struct {
		Content []struct {
			Type string `json:"type"`
			Text string `json:"text"`
		} `json:"content"`
		Usage map[string]any `json:"usage"`
	}
	if err := json.Unmarshal(raw, &out); err != nil {
		return Completion{}, err
	}
	var text strings.Builder
	for _, block := range out.Content {
		if block.Type == "" || block.Type == "text" {
			text.WriteString(block.Text)
		}
	}
	if strings.TrimSpace(text.String()) == "" {
		return Completion{}, errors.New("anthropic: empty content")
	}
	return Completion{Text: text.String(), LatencyMs: since(t0), TokenUsage: out.Usage}, nil
}
