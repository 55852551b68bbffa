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

type OpenAI struct {
	Key, Model string
	BaseURL    string
	HTTP       *http.Client
}

func NewOpenAI(key, model string) *OpenAI {
	return &OpenAI{Key: key, Model: model, BaseURL: "https://api.openai.com", HTTP: &http.Client{}}
}

func (c *OpenAI) Name() SourceName { return SourceOpenAI }

// Complete calls the Responses API.
func (c *OpenAI) Complete(ctx context.Context, prompt string) (Completion, error) {
	t0 := time.Now()
	raw, err := postJSON(ctx, c.HTTP, c.Name(), c.BaseURL+"/v1/responses",
		http.Header{"Authorization": {"Bearer " + c.Key}},
		map[string]any{
			"model":             c.Model,
			"input":             prompt,
			"temperature":       0.4,
			"max_output_tokens": 2048,
		})
	if err != nil {
		log := telemetry.L().With().Str("provider", string(c.Name())).Logger()
		log.Error().Err(err).Msg("openai_request_failed")
		return Completion{}, err
	}

	var r openAIResponse
	if err := json.Unmarshal(raw, &r); err != nil {
		return Completion{}, err
	}
	text := r.text()
	if strings.TrimSpace(text) == "" {
		return Completion{}, errors.New("openai: empty text")
	}
	return Completion{Text: text, LatencyMs: since(t0), TokenUsage: r.Usage}, nil
}

// openAIResponse covers the Responses API and, for proxies that still speak
// it, Chat Completions.
type openAIResponse struct {
	OutputText string `json:"output_text"`
	Output     []struct {
		Content []struct {
			Text string `json:"text"`
		} `json:"content"`
	} `json:"output"`
	Choices []struct {
		Message struct {
			Content string `json:"content"`
		} `json:"message"`
	} `json:"choices"`
	Usage map[string]any `json:"usage"`
}

func (r openAIResponse) text() string {
	if strings.TrimSpace(r.OutputText) != "" {
		return r.OutputText
	}
	for _, o := range r.Output {
		for _, c := range o.Content {
			if strings.TrimSpace(c.Text) != "" {
				return c.Text
			}
		}
	}
	if len(r.Choices) > 0 {
		return r.Choices[0].Message.Content
	}
	return ""
}
