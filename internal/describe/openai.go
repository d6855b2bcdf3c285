package describe

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"

	"sightline/internal/retry"
)

// OpenAI talks to any OpenAI compatible chat completions endpoint.
type OpenAI struct {
	BaseURL     string
	APIKey      string
	Model       string
	System      string
	Temperature float64
	MaxTokens   int
	HTTPClient  *http.Client
	RetryConfig retry.Config
}

type chatMessage struct {
	Role    string `json:"role"`
	Content string `json:"content"`
}

type chatRequest struct {
	Model       string        `json:"model"`
	Messages    []chatMessage `json:"messages"`
	Temperature float64       `json:"temperature"`
	MaxTokens   int           `json:"max_tokens,omitempty"`
}

type chatResponse struct {
	Choices []struct {
		Message chatMessage `json:"message"`
	} `json:"choices"`
}

func (o *OpenAI) Generate(ctx context.Context, prompt string) (string, error) {
	msgs := make([]chatMessage, 0, 2)
	if o.System != "" {
		msgs = append(msgs, chatMessage{Role: "system", Content: o.System})
	}
	msgs = append(msgs, chatMessage{Role: "user", Content: prompt})
	body, err := json.Marshal(chatRequest{
		Model:       o.Model,
		Messages:    msgs,
		Temperature: o.Temperature,
		MaxTokens:   o.MaxTokens,
	})
	if err != nil {
		return "", fmt.Errorf("marshal chat request: %w", err)
	}
	url := o.BaseURL + "/chat/completions"
	return retry.Do(ctx, o.RetryConfig, nil, nil, "openai", func(int) (string, error) {
		req, err := http.NewRequestWithContext(ctx, http.MethodPost, url, bytes.NewReader(body))
		if err != nil {
			return "", err
		}
		req.Header.Set("Content-Type", "application/json")
		if o.APIKey != "" {
			req.Header.Set("Authorization", "Bearer "+o.APIKey)
		}
		resp, err := o.HTTPClient.Do(req)
		if err != nil {
			return "", err
		}
		defer resp.Body.Close()
		data, err := io.ReadAll(io.LimitReader(resp.Body, 1<<20))
		if err != nil {
			return "", err
		}
		if resp.StatusCode != http.StatusOK {
			return "", &retry.StatusError{Service: "openai", Code: resp.StatusCode, Body: string(data)}
		}
		var out chatResponse
		if err := json.Unmarshal(data, &out); err != nil {
			return "", fmt.Errorf("decode chat response: %w", err)
		}
		if len(out.Choices) == 0 {
			return "", errors.New("openai: no choices in response")
		}
		return out.Choices[0].Message.Content, nil
	})
}
