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

type Ollama struct {
	BaseURL     string
	Model       string
	System      string
	Temperature float64
	MaxTokens   int
	HTTPClient  *http.Client
	RetryConfig retry.Config
}

type ollamaRequest struct {
	Model   string        `json:"model"`
	Prompt  string        `json:"prompt"`
	System  string        `json:"system,omitempty"`
	Stream  bool          `json:"stream"`
	Options ollamaOptions `json:"options"`
}

type ollamaOptions struct {
	Temperature float64 `json:"temperature"`
	NumPredict  int     `json:"num_predict,omitempty"`
}

type ollamaResponse struct {
	Response string `json:"response"`
	Error    string `json:"error,omitempty"`
}

func (o *Ollama) Generate(ctx context.Context, prompt string) (string, error) {
	body, err := json.Marshal(ollamaRequest{
		Model:   o.Model,
		Prompt:  prompt,
		System:  o.System,
		Stream:  false,
		Options: ollamaOptions{Temperature: o.Temperature, NumPredict: o.MaxTokens},
	})
	if err != nil {
		return "", fmt.Errorf("marshal ollama request: %w", err)
	}
	url := o.BaseURL + "/api/generate"
	return retry.Do(ctx, o.RetryConfig, nil, nil, "ollama", func(int) (string, error) {
		req, err := http.NewRequestWithContext(ctx, http.MethodPost, url, bytes.NewReader(body))
		if err != nil {
			return "", err
		}
		req.Header.Set("Content-Type", "application/json")
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
			return "", &retry.StatusError{Service: "ollama", Code: resp.StatusCode, Body: string(data)}
		}
		var out ollamaResponse
		if err := json.Unmarshal(data, &out); err != nil {
			return "", fmt.Errorf("decode ollama response: %w", err)
		}
		if out.Error != "" {
			return "", errors.New("ollama: " + out.Error)
		}
		return out.Response, nil
	})
}
