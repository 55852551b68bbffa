package providers

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"google.golang.org/genai"

	"github.com/emandor/medai_service/internal/telemetry"
)

type Gemini struct {
	client *genai.Client
	model  string
}

func NewGemini(ctx context.Context, key, model string) (*Gemini, error) {
	if model == "" {
		model = "gemini-2.5-flash"
	}
	client, err := genai.NewClient(ctx, &genai.ClientConfig{
		APIKey:  key,
		Backend: genai.BackendGeminiAPI,
	})
	if err != nil {
		return nil, fmt.Errorf("gemini client: %w", err)
	}
	return &Gemini{client: client, model: model}, nil
}

func (c *Gemini) Name() SourceName { return SourceGemini }

func (c *Gemini) Complete(ctx context.Context, prompt string) (Completion, error) {
	log := telemetry.L().With().Str("provider", string(c.Name())).Logger()
	contents := []*genai.Content{{
		Role:  genai.RoleUser,
		Parts: []*genai.Part{{Text: prompt}},
	}}
	cfg := &genai.GenerateContentConfig{
		Temperature:      genai.Ptr(float32(0.4)),
		MaxOutputTokens:  2048,
		ResponseMIMEType: "application/json",
	}

	t0 := time.Now()
	resp, err := c.client.Models.GenerateContent(ctx, c.model, contents, cfg)
	if err != nil {
		log.Error().Err(err).Msg("gemini_request_failed")
		return Completion{}, err
	}
	if resp.PromptFeedback != nil && resp.PromptFeedback.BlockReason != "" {
		return Completion{}, errors.New("gemini blocked: " + string(resp.PromptFeedback.BlockReason))
	}

	var text strings.Builder
	if len(resp.Candidates) > 0 && resp.Candidates[0].Content != nil {
		for _, p := range resp.Candidates[0].Content.Parts {
			if p != nil && !p.Thought {
				text.WriteString(p.Text)
			}
		}
	}
	if strings.TrimSpace(text.String()) == "" {
		return Completion{}, errors.New("gemini empty candidates")
	}

	out := Completion{Text: text.String(), LatencyMs: since(t0)}
	if u := resp.UsageMetadata; u != nil {
		out.TokenUsage = map[string]any{
			"prompt_tokens":     u.PromptTokenCount,
			"completion_tokens": u.CandidatesTokenCount,
		}
	}
	return out, nil
}
