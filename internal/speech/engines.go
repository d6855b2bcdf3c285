package speech

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"log/slog"
	"math"
	"net/http"
	"os"
	"os/exec"
	"strconv"
	"strings"

	"sightline/internal/config"
	"sightline/internal/retry"
)

type Kind string

const (
	KindLog     Kind = "log"
	KindCommand Kind = "command"
	KindHTTP    Kind = "http"
)

func NewEngine(cfg config.SpeechConfig, logger *slog.Logger) (Engine, error) {
	switch Kind(strings.ToLower(cfg.Engine)) {
	case KindLog, "":
		return &LogEngine{Logger: logger}, nil
	case KindCommand:
		return &CommandEngine{
			Command: cfg.Command,
			Args:    expandArgs(cfg.Args, cfg.Rate, cfg.Volume),
		}, nil
	case KindHTTP:
		return &HTTPEngine{
			Endpoint:    cfg.HTTPEndpoint,
			APIKey:      cfg.APIKey,
			Player:      cfg.Player,
			PlayerArgs:  cfg.PlayerArgs,
			Rate:        cfg.Rate,
			Volume:      cfg.Volume,
			HTTPClient:  &http.Client{},
			RetryConfig: retry.DefaultConfig(),
		}, nil
	}
	return nil, fmt.Errorf("unknown speech engine %q", cfg.Engine)
}

// LogEngine only records utterances. Useful headless and in tests.
type LogEngine struct {
	Logger *slog.Logger
}

func (l *LogEngine) Say(ctx context.Context, text string) error {
	if l.Logger != nil {
		l.Logger.Info("speak", "text", text)
	}
	return ctx.Err()
}

// CommandEngine runs a local synthesizer with the text as its last argument.
type CommandEngine struct {
	Command string
	Args    []string
}

func (c *CommandEngine) Say(ctx context.Context, text string) error {
	args := append(append([]string{}, c.Args...), text)
	cmd := exec.CommandContext(ctx, c.Command, args...)
	if out, err := cmd.CombinedOutput(); err != nil {
		if ctx.Err() != nil {
			return ctx.Err()
		}
		return fmt.Errorf("%s: %w: %s", c.Command, err, strings.TrimSpace(string(out)))
	}
	return nil
}

func expandArgs(args []string, rate int, volume float64) []string {
	r := strings.NewReplacer(
		"{rate}", strconv.Itoa(rate),
		"{amplitude}", strconv.Itoa(int(math.Round(volume*200))),
		"{volume}", strconv.FormatFloat(volume, 'f', 2, 64),
	)
	out := make([]string, len(args))
	for i, a := range args {
		out[i] = r.Replace(a)
	}
	return out
}

// HTTPEngine posts text to a synthesis endpoint and plays the returned audio
// through a player command.
type HTTPEngine struct {
	Endpoint    string
	APIKey      string
	Player      string
	PlayerArgs  []string
	Rate        int
	Volume      float64
	HTTPClient  *http.Client
	RetryConfig retry.Config
}

type synthRequest struct {
	Text   string  `json:"text"`
	Rate   int     `json:"rate,omitempty"`
	Volume float64 `json:"volume,omitempty"`
}

func (h *HTTPEngine) Say(ctx context.Context, text string) error {
	audio, err := h.Synthesize(ctx, text)
	if err != nil {
		return err
	}
	if h.Player == "" {
		return nil
	}
	f, err := os.CreateTemp("", "sightline-*.audio")
	if err != nil {
		return err
	}
	defer os.Remove(f.Name())
	if _, err := f.Write(audio); err != nil {
		f.Close()
		return err
	}
	if err := f.Close(); err != nil {
		return err
	}
	args := append(append([]string{}, h.PlayerArgs...), f.Name())
	if out, err := exec.CommandContext(ctx, h.Player, args...).CombinedOutput(); err != nil {
		if ctx.Err() != nil {
			return ctx.Err()
		}
		return fmt.Errorf("%s: %w: %s", h.Player, err, strings.TrimSpace(string(out)))
	}
	return nil
}

func (h *HTTPEngine) Synthesize(ctx context.Context, text string) ([]byte, error) {
	body, err := json.Marshal(synthRequest{Text: text, Rate: h.Rate, Volume: h.Volume})
	if err != nil {
		return nil, err
	}
	return retry.Do(ctx, h.RetryConfig, nil, nil, "tts", func(int) ([]byte, error) {
		req, err := http.NewRequestWithContext(ctx, http.MethodPost, h.Endpoint, bytes.NewReader(body))
		if err != nil {
			return nil, err
		}
		req.Header.Set("Content-Type", "application/json")
		if h.APIKey != "" {
			req.Header.Set("Authorization", "Bearer "+h.APIKey)
		}
		resp, err := h.HTTPClient.Do(req)
		if err != nil {
			return nil, err
		}
		defer resp.Body.Close()
		data, err := io.ReadAll(io.LimitReader(resp.Body, 16<<20))
		if err != nil {
			return nil, err
		}
		if resp.StatusCode != http.StatusOK {
			return nil, &retry.StatusError{Service: "tts", Code: resp.StatusCode, Body: string(data)}
		}
		if len(data) == 0 {
			return nil, fmt.Errorf("tts: empty audio")
		}
		return data, nil
	})
}
