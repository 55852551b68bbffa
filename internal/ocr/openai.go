// Package ocr reads photographed notes through a vision model.
package ocr

import (
	"bytes"
	"context"
	"encoding/base64"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"

	"golang.org/x/time/rate"

	"github.com/emandor/medai_service/internal/telemetry"
)

var ErrNotConfigured = errors.New("ocr provider not configured")

const (
	visionLabel    = "openai-vision"
	baseBackoff    = 200 * time.Millisecond
	maxBackoff     = 5 * time.Second
	transcribeHint = "Transcribe all text in this photo of study notes. Keep line breaks and headings. " +
		"Return ONLY the transcribed text, no commentary."
)

// Result is one transcription. Raw keeps the provider body for debugging.
type Result struct {
	Text string
	Raw  string
}

// StatusError is a non-2xx answer from the vision endpoint.
type StatusError struct{ Code int }

func (e StatusError) Error() string { return fmt.Sprintf("openai vision http %d", e.Code) }

func (e StatusError) temporary() bool {
	return e.Code == http.StatusTooManyRequests || e.Code >= 500
}

// OpenAIVision calls the chat completions endpoint with an inline image.
type OpenAIVision struct {
	Key, Model string
	BaseURL    string
	Client     *http.Client
	Limiter    *rate.Limiter
	MaxRetries int
}

func NewOpenAIVision(key, model string, rps, burst, maxRetries int) *OpenAIVision {
	if rps <= 0 {
		rps = 1
	}
	return &OpenAIVision{
		Key:        key,
		Model:      model,
		BaseURL:    "https://api.openai.com",
		Client:     &http.Client{Timeout: time.Minute},
		Limiter:    rate.NewLimiter(rate.Limit(rps), max(burst, 1)),
		MaxRetries: max(maxRetries, 0),
	}
}

type visionPart struct {
	Type     string         `json:"type"`
	Text     string         `json:"text,omitempty"`
	ImageURL *visionImageRef `json:"image_url,omitempty"`
}

type visionImageRef struct {
	URL    string `json:"url"`
	Detail string `json:"detail"`
}

type visionMessage struct {
	Role    string       `json:"role"`
	Content []visionPart `json:"content"`
}

type visionRequest struct {
	Model       string          `json:"model"`
	Messages    []visionMessage `json:"messages"`
	Temperature float64         `json:"temperature"`
	MaxTokens   int             `json:"max_tokens"`
}

type visionResponse struct {
	Choices []struct {
		Message struct {
			Content string `json:"content"`
		} `json:"message"`
	} `json:"choices"`
}

// Read transcribes one image. Throttling and server errors are retried with
// capped exponential backoff; everything else fails at once.
func (o *OpenAIVision) Read(ctx context.Context, img []byte, mime string) (res Result, err error) {
	if o.Key == "" {
		return Result{}, ErrNotConfigured
	}
	if err := o.Limiter.Wait(ctx); err != nil {
		return Result{}, err
	}

	body, err := json.Marshal(visionRequest{
		Model: o.Model,
		Messages: []visionMessage{{
			Role: "user",
			Content: []visionPart{
				{Type: "text", Text: transcribeHint},
				{Type: "image_url", ImageURL: &visionImageRef{
					URL:    "data:" + mime + ";base64," + base64.StdEncoding.EncodeToString(img),
					Detail: "high",
				}},
			},
		}},
		MaxTokens: 2048,
	})
	if err != nil {
		return Result{}, err
	}

	start := time.Now()
	defer func() { telemetry.ObserveLLM(visionLabel, time.Since(start), err) }()
	log := telemetry.L().With().Str("provider", visionLabel).Logger()

	for attempt := 0; ; attempt++ {
		res, err = o.post(ctx, body)
		var se StatusError
		if err == nil || attempt >= o.MaxRetries || !errors.As(err, &se) || !se.temporary() {
			break
		}
		wait := backoff(attempt)
		log.Warn().Int("status", se.Code).Int("attempt", attempt+1).Dur("wait", wait).Msg("ocr_retry")
		select {
		case <-ctx.Done():
			return Result{}, ctx.Err()
		case <-time.After(wait):
		}
	}
	if err != nil {
		return Result{}, err
	}
	log.Debug().Dur("took", time.Since(start)).Int("chars", len(res.Text)).Msg("ocr_ok")
	return res, nil
}

func (o *OpenAIVision) post(ctx context.Context, body []byte) (Result, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodPost,
		strings.TrimRight(o.BaseURL, "/")+"/v1/chat/completions", bytes.NewReader(body))
	if err != nil {
		return Result{}, err
	}
	req.Header.Set("Authorization", "Bearer "+o.Key)
	req.Header.Set("Content-Type", "application/json")

	resp, err := o.Client.Do(req)
	if err != nil {
		return Result{}, err
	}
	defer resp.Body.Close()
	raw, err := io.ReadAll(resp.Body)
	if err != nil {
		return Result{}, err
	}
	if resp.StatusCode/100 != 2 {
		return Result{}, StatusError{Code: resp.StatusCode}
	}

	var out visionResponse
	if err := json.Unmarshal(raw, &out); err != nil {
		return Result{Raw: string(raw)}, fmt.Errorf("decode vision answer: %w", err)
	}
	if len(out.Choices) == 0 {
		return Result{Raw: string(raw)}, errors.New("openai vision: empty choices")
	}
	return Result{Text: out.Choices[0].Message.Content, Raw: string(raw)}, nil
}

func backoff(attempt int) time.Duration {
	d := baseBackoff << attempt
	if d <= 0 || d > maxBackoff {
		return maxBackoff
	}
	return d
}
