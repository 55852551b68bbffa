// Package questions generates multiple choice questions with the configured LLMs.
package questions

import (
	"context"
	"crypto/sha256"
	"encoding/hex"
	"errors"
	"fmt"
	"time"

	"github.com/emandor/medai_service/internal/providers"
	"github.com/emandor/medai_service/internal/telemetry"
)

var ErrGenerationFailed = errors.New("question generation failed")

// SourceCache marks results served from the cache.
const SourceCache providers.SourceName = "CACHE"

type Cache interface {
	Get(ctx context.Context, key string, dst any) (bool, error)
	Set(ctx context.Context, key string, v any, ttl time.Duration) error
}

type Request struct {
	Topic string
	Text  string
	Count int
}

type Result struct {
	Questions []providers.Question `json:"questions"`
	Source    providers.SourceName `json:"source"`
}

type Service struct {
	clients  []providers.Client
	cache    Cache
	cacheTTL time.Duration
	timeout  time.Duration
}

// NewService tries clients in order. cache may be nil.
func NewService(clients []providers.Client, cache Cache, cacheTTL, timeout time.Duration) *Service {
	return &Service{clients: clients, cache: cache, cacheTTL: cacheTTL, timeout: timeout}
}

// Generate returns questions from the first provider that produces usable
// output before the overall timeout. Identical prompts hit the cache.
func (s *Service) Generate(ctx context.Context, req Request) (Result, error) {
	if len(s.clients) == 0 {
		return Result{}, providers.ErrNoProviders
	}
	log := telemetry.L().With().Str("module", "questions").Logger()
	prompt := providers.BuildQuestionPrompt(req.Topic, req.Text, req.Count)
	key := cacheKey(prompt)

	if s.cache != nil {
		var cached []providers.Question
		if ok, err := s.cache.Get(ctx, key, &cached); err != nil {
			log.Warn().Err(err).Msg("question_cache_get_failed")
		} else if ok && len(cached) > 0 {
			return Result{Questions: cached, Source: SourceCache}, nil
		}
	}

	if s.timeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, s.timeout)
		defer cancel()
	}

	var errs []error
	for _, cl := range s.clients {
		t0 := time.Now()
		out, err := cl.Complete(ctx, prompt)
		telemetry.ObserveLLM(string(cl.Name()), time.Since(t0), err)
		if err != nil {
			ev := log.Warn().Err(err).Str("provider", string(cl.Name()))
			var he *providers.HTTPError
			if errors.As(err, &he) {
				ev = ev.Int("status", he.Status).Bool("retryable", he.Retryable())
			}
			ev.Msg("provider_complete_failed")
			errs = append(errs, fmt.Errorf("%s: %w", cl.Name(), err))
			if ctx.Err() != nil {
				break
			}
			continue
		}
		qs, err := providers.ParseQuestions(out.Text)
		if err != nil {
			log.Warn().Str("provider", string(cl.Name())).Int("len", len(out.Text)).Msg("provider_output_unusable")
			errs = append(errs, fmt.Errorf("%s: %w", cl.Name(), err))
			continue
		}
		if req.Count > 0 && len(qs) > req.Count {
			qs = qs[:req.Count]
		}
		log.Info().Str("provider", string(cl.Name())).Int("questions", len(qs)).Int("latency_ms", out.LatencyMs).Msg("questions_generated")

		if s.cache != nil && s.cacheTTL > 0 {
			if err := s.cache.Set(ctx, key, qs, s.cacheTTL); err != nil {
				log.Warn().Err(err).Msg("question_cache_set_failed")
			}
		}
		return Result{Questions: qs, Source: cl.Name()}, nil
	}
	return Result{}, fmt.Errorf("%w: %w", ErrGenerationFailed, errors.Join(errs...))
}

func cacheKey(prompt string) string {
	h := sha256.Sum256([]byte(prompt))
	return hex.EncodeToString(h[:])
}
