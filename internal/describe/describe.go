package describe

import (
	"context"
	"errors"
	"log/slog"
	"sync/atomic"
	"time"

	"sightline/internal/config"
	"sightline/internal/model"
)

type Result struct {
	Text       string
	Source     model.DescriptionSource
	LLMSkipped bool
}

type options struct {
	lang    string
	maxLen  int
	timeout time.Duration
}

// Service produces descriptions from the cache, the generator or the canned
// fallback, in that order. It never fails.
type Service struct {
	gen    Generator
	cache  Cache
	logger *slog.Logger
	opts   atomic.Value
}

func NewService(gen Generator, cache Cache, cfg *config.Config, logger *slog.Logger) *Service {
	if gen == nil {
		gen = None{}
	}
	s := &Service{gen: gen, cache: cache, logger: logger}
	s.UpdateConfig(cfg)
	return s
}

func (s *Service) UpdateConfig(cfg *config.Config) {
	s.opts.Store(options{
		lang:    cfg.Description.Language,
		maxLen:  cfg.Description.MaxLength,
		timeout: cfg.LLM.Timeout,
	})
}

func (s *Service) options() options {
	if v := s.opts.Load(); v != nil {
		return v.(options)
	}
	return options{lang: "en", maxLen: 200, timeout: 5 * time.Second}
}

func (s *Service) Language() string {
	return s.options().lang
}

// Describe narrates dets, which must be relevant detections sorted nearest
// first. useLLM false forces the fallback and marks the call as skipped.
func (s *Service) Describe(ctx context.Context, dets []model.Detection, useLLM bool) Result {
	opts := s.options()
	if len(dets) == 0 {
		return Result{Text: Fallback(opts.lang, nil), Source: model.SourceFallback}
	}
	key := CacheKey(opts.lang, dets)
	if s.cache != nil {
		text, ok, err := s.cache.CachedDescription(ctx, key)
		if err != nil && s.logger != nil {
			s.logger.Warn("description cache lookup failed", "error", err)
		}
		if ok && text != "" {
			return Result{Text: text, Source: model.SourceCache}
		}
	}
	if !useLLM {
		return Result{Text: Fallback(opts.lang, dets), Source: model.SourceFallback, LLMSkipped: true}
	}
	if _, disabled := s.gen.(None); disabled {
		return Result{Text: Fallback(opts.lang, dets), Source: model.SourceFallback}
	}

	callCtx := ctx
	if opts.timeout > 0 {
		var cancel context.CancelFunc
		callCtx, cancel = context.WithTimeout(ctx, opts.timeout)
		defer cancel()
	}
	raw, err := s.gen.Generate(callCtx, BuildPrompt(opts.lang, dets))
	text := Clean(raw, opts.maxLen)
	if err == nil && text == "" {
		err = errors.New("empty description")
	}
	if err != nil {
		if s.logger != nil {
			s.logger.Warn("description generation failed, using fallback", "error", err)
		}
		return Result{Text: Fallback(opts.lang, dets), Source: model.SourceFallback}
	}
	if s.cache != nil {
		if err := s.cache.CacheDescription(ctx, key, encodeObjects(dets), text); err != nil && s.logger != nil {
			s.logger.Warn("description cache store failed", "error", err)
		}
	}
	return Result{Text: text, Source: model.SourceLLM}
}
