package describe

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"strings"

	"sightline/internal/config"
	"sightline/internal/retry"
)

// Generator turns a prompt into a short narration.
type Generator interface {
	Generate(ctx context.Context, prompt string) (string, error)
}

type Provider string

const (
	ProviderOllama Provider = "ollama"
	ProviderOpenAI Provider = "openai"
	ProviderNone   Provider = "none"
)

var ErrDisabled = errors.New("description generator disabled")

// None never calls out; every description falls back to the canned sentence.
type None struct{}

func (None) Generate(context.Context, string) (string, error) {
	return "", ErrDisabled
}

func NewGenerator(cfg config.LLMConfig, client *http.Client) (Generator, error) {
	if client == nil {
		client = &http.Client{}
	}
	rc := retry.DefaultConfig().WithRetries(cfg.Retries)
	switch Provider(strings.ToLower(cfg.Provider)) {
	case ProviderOllama, "":
		return &Ollama{
			BaseURL:     strings.TrimRight(cfg.BaseURL, "/"),
			Model:       cfg.Model,
			System:      cfg.SystemPrompt,
			Temperature: cfg.Temperature,
			MaxTokens:   cfg.MaxTokens,
			HTTPClient:  client,
			RetryConfig: rc,
		}, nil
	case ProviderOpenAI:
		return &OpenAI{
			BaseURL:     strings.TrimRight(cfg.BaseURL, "/"),
			APIKey:      cfg.APIKey,
			Model:       cfg.Model,
			System:      cfg.SystemPrompt,
			Temperature: cfg.Temperature,
			MaxTokens:   cfg.MaxTokens,
			HTTPClient:  client,
			RetryConfig: rc,
		}, nil
	case ProviderNone:
		return None{}, nil
	}
	return nil, fmt.Errorf("unknown llm provider %q", cfg.Provider)
}
