package describe

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync"
	"testing"
	"time"

	"sightline/internal/config"
	"sightline/internal/model"
	"sightline/internal/retry"
)

type memCache struct {
	mu    sync.Mutex
	items map[string]string
}

func newMemCache() *memCache {
	return &memCache{items: make(map[string]string)}
}

func (c *memCache) CachedDescription(_ context.Context, key string) (string, bool, error) {
	c.mu.Lock()
	defer c.mu.Unlock()
	text, ok := c.items[key]
	return text, ok, nil
}

func (c *memCache) CacheDescription(_ context.Context, key, _ string, text string) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.items[key] = text
	return nil
}

func testDetections() []model.Detection {
	return []model.Detection{
		{Class: "person", Distance: 1.2, Position: model.PositionCenter},
		{Class: "car", Distance: 4.0, Position: model.PositionLeft},
	}
}

func ollamaServer(t *testing.T, handler func(req ollamaRequest) (int, string)) *httptest.Server {
	t.Helper()
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path != "/api/generate" || r.Method != http.MethodPost {
			t.Errorf("unexpected request %s %s", r.Method, r.URL.Path)
		}
		var req ollamaRequest
		if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
			t.Errorf("decode: %v", err)
		}
		status, text := handler(req)
		w.WriteHeader(status)
		_ = json.NewEncoder(w).Encode(ollamaResponse{Response: text})
	}))
	t.Cleanup(srv.Close)
	return srv
}

func newOllama(url string) *Ollama {
	return &Ollama{
		BaseURL:     url,
		Model:       "llama3:instruct",
		Temperature: 0.3,
		MaxTokens:   100,
		HTTPClient:  &http.Client{},
		RetryConfig: retry.Config{MaxRetries: 0, BaseDelay: time.Millisecond},
	}
}

func TestOllamaRequestShape(t *testing.T) {
	srv := ollamaServer(t, func(req ollamaRequest) (int, string) {
		if req.Stream {
			t.Errorf("stream must be false")
		}
		if req.Model != "llama3:instruct" || req.Options.NumPredict != 100 || req.Options.Temperature != 0.3 {
			t.Errorf("unexpected request: %+v", req)
		}
		if !strings.Contains(req.Prompt, "1. person at 1.2m ahead") {
			t.Errorf("prompt missing object line: %q", req.Prompt)
		}
		return http.StatusOK, "A person is **right** ahead."
	})
	cfg := config.DefaultConfig()
	svc := NewService(newOllama(srv.URL), nil, cfg, nil)
	res := svc.Describe(context.Background(), testDetections(), true)
	if res.Source != model.SourceLLM {
		t.Fatalf("expected llm source, got %s", res.Source)
	}
	if res.Text != "A person is right ahead." {
		t.Fatalf("unexpected text %q", res.Text)
	}
}

func TestFallbackOnServerError(t *testing.T) {
	srv := ollamaServer(t, func(ollamaRequest) (int, string) {
		return http.StatusInternalServerError, ""
	})
	svc := NewService(newOllama(srv.URL), nil, config.DefaultConfig(), nil)
	res := svc.Describe(context.Background(), testDetections(), true)
	if res.Source != model.SourceFallback {
		t.Fatalf("expected fallback, got %s", res.Source)
	}
	if res.Text != "Person very close ahead" {
		t.Fatalf("unexpected fallback %q", res.Text)
	}
}

func TestFallbackOnTimeout(t *testing.T) {
	release := make(chan struct{})
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		select {
		case <-release:
		case <-r.Context().Done():
		}
	}))
	defer srv.Close()
	defer close(release)

	cfg := config.DefaultConfig()
	cfg.LLM.Timeout = 50 * time.Millisecond
	svc := NewService(newOllama(srv.URL), nil, cfg, nil)
	start := time.Now()
	res := svc.Describe(context.Background(), testDetections(), true)
	if time.Since(start) > 2*time.Second {
		t.Fatalf("timeout not applied")
	}
	if res.Source != model.SourceFallback || !strings.Contains(res.Text, "Person") {
		t.Fatalf("expected fallback naming the nearest object, got %+v", res)
	}
}

func TestCacheHitSkipsGenerator(t *testing.T) {
	calls := 0
	srv := ollamaServer(t, func(ollamaRequest) (int, string) {
		calls++
		return http.StatusOK, "Person ahead."
	})
	cache := newMemCache()
	svc := NewService(newOllama(srv.URL), cache, config.DefaultConfig(), nil)
	first := svc.Describe(context.Background(), testDetections(), true)
	// same scene within the distance bucket
	shifted := testDetections()
	shifted[0].Distance = 1.1
	second := svc.Describe(context.Background(), shifted, true)
	if first.Source != model.SourceLLM || second.Source != model.SourceCache {
		t.Fatalf("unexpected sources %s %s", first.Source, second.Source)
	}
	if second.Text != first.Text || calls != 1 {
		t.Fatalf("expected cached text and one call, got %q after %d calls", second.Text, calls)
	}
}

func TestLLMDisabledByPowerProfile(t *testing.T) {
	svc := NewService(newOllama("http://127.0.0.1:1"), nil, config.DefaultConfig(), nil)
	res := svc.Describe(context.Background(), testDetections(), false)
	if !res.LLMSkipped || res.Source != model.SourceFallback {
		t.Fatalf("expected skipped fallback, got %+v", res)
	}
}

func TestNoneProviderAndEmptyScene(t *testing.T) {
	cfg := config.DefaultConfig()
	cfg.LLM.Provider = "none"
	gen, err := NewGenerator(cfg.LLM, nil)
	if err != nil {
		t.Fatalf("generator: %v", err)
	}
	svc := NewService(gen, nil, cfg, nil)
	if res := svc.Describe(context.Background(), nil, true); res.Text != "Path clear" {
		t.Fatalf("unexpected empty scene text %q", res.Text)
	}
	if res := svc.Describe(context.Background(), testDetections(), true); res.Source != model.SourceFallback {
		t.Fatalf("expected fallback for none provider")
	}
}

func TestOpenAIGenerate(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path != "/chat/completions" {
			t.Errorf("unexpected path %s", r.URL.Path)
		}
		if r.Header.Get("Authorization") != "Bearer test-key" {
			t.Errorf("missing bearer token")
		}
		var req chatRequest
		_ = json.NewDecoder(r.Body).Decode(&req)
		if len(req.Messages) != 2 || req.Messages[0].Role != "system" {
			t.Errorf("unexpected messages %+v", req.Messages)
		}
		w.Header().Set("Content-Type", "application/json")
		_, _ = w.Write([]byte(`{"choices":[{"message":{"role":"assistant","content":"Car on your left."}}]}`))
	}))
	defer srv.Close()

	cfg := config.DefaultConfig()
	cfg.LLM.Provider = "openai"
	cfg.LLM.BaseURL = srv.URL
	cfg.LLM.APIKey = "test-key"
	gen, err := NewGenerator(cfg.LLM, srv.Client())
	if err != nil {
		t.Fatalf("generator: %v", err)
	}
	text, err := gen.Generate(context.Background(), "prompt")
	if err != nil || text != "Car on your left." {
		t.Fatalf("unexpected result %q %v", text, err)
	}
}

func TestFallbackPhrases(t *testing.T) {
	dets := []model.Detection{{Class: "chair", Distance: 2.0, Position: model.PositionRight}}
	if got := Fallback("en", dets); got != "Chair close on your right" {
		t.Fatalf("unexpected %q", got)
	}
	dets[0].Distance = 5
	if got := Fallback("en", dets); got != "Chair on your right" {
		t.Fatalf("unexpected %q", got)
	}
	dets[0].Distance = 1.0
	if got := Fallback("es", dets); got != "Silla muy cerca a tu derecha" {
		t.Fatalf("unexpected %q", got)
	}
	if got := Fallback("es", nil); got != "Camino despejado" {
		t.Fatalf("unexpected %q", got)
	}
	if got := CautionMessage("en", "car"); got != "Caution, car very close" {
		t.Fatalf("unexpected %q", got)
	}
}

func TestClean(t *testing.T) {
	if got := Clean("  # Door ahead *now*  ", 200); got != "Door ahead now" {
		t.Fatalf("unexpected %q", got)
	}
	long := strings.Repeat("a", 150) + ". " + strings.Repeat("b", 100)
	got := Clean(long, 200)
	if got != strings.Repeat("a", 150)+"." {
		t.Fatalf("expected cut at last full stop, got %d chars", len(got))
	}
}

func TestBuildPromptLimitsObjects(t *testing.T) {
	dets := make([]model.Detection, 7)
	for i := range dets {
		dets[i] = model.Detection{Class: "person", Distance: float64(i + 1), Position: model.PositionLeft}
	}
	prompt := BuildPrompt("en", dets)
	if !strings.Contains(prompt, "5. person at 5.0m on your left") || strings.Contains(prompt, "6. ") {
		t.Fatalf("unexpected prompt %q", prompt)
	}
}
