package config

import (
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"strings"
	"sync/atomic"
	"time"

	"github.com/caarlos0/env/v11"
	"gopkg.in/yaml.v3"
)

type Config struct {
	LogLevel    string            `json:"log_level" yaml:"log_level" env:"SIGHTLINE_LOG_LEVEL"`
	LogFile     string            `json:"log_file" yaml:"log_file" env:"SIGHTLINE_LOG_FILE"`
	Camera      CameraConfig      `json:"camera" yaml:"camera"`
	S3          S3Config          `json:"s3" yaml:"s3"`
	Detector    DetectorConfig    `json:"detector" yaml:"detector"`
	Filter      FilterConfig      `json:"filter" yaml:"filter"`
	Alerts      AlertsConfig      `json:"alerts" yaml:"alerts"`
	Description DescriptionConfig `json:"description" yaml:"description"`
	LLM         LLMConfig         `json:"llm" yaml:"llm"`
	Speech      SpeechConfig      `json:"speech" yaml:"speech"`
	Power       PowerConfig       `json:"power" yaml:"power"`
	Ingest      IngestConfig      `json:"ingest" yaml:"ingest"`
	Events      EventsConfig      `json:"events" yaml:"events"`
	Archive     ArchiveConfig     `json:"archive" yaml:"archive"`
	API         APIConfig         `json:"api" yaml:"api"`
	Storage     StorageConfig     `json:"storage" yaml:"storage"`
	Metrics     MetricsConfig     `json:"metrics" yaml:"metrics"`
}

type CameraConfig struct {
	ID            string  `json:"id" yaml:"id" env:"SIGHTLINE_CAMERA_ID"`
	Source        string  `json:"source" yaml:"source" env:"SIGHTLINE_CAMERA_SOURCE"`
	Dir           string  `json:"dir" yaml:"dir" env:"SIGHTLINE_CAMERA_DIR"`
	Bucket        string  `json:"bucket" yaml:"bucket" env:"SIGHTLINE_CAMERA_BUCKET"`
	Prefix        string  `json:"prefix" yaml:"prefix" env:"SIGHTLINE_CAMERA_PREFIX"`
	Loop          bool    `json:"loop" yaml:"loop" env:"SIGHTLINE_CAMERA_LOOP"`
	FPSProcessing float64 `json:"fps_processing" yaml:"fps_processing" env:"SIGHTLINE_CAMERA_FPS"`
	Width         int     `json:"width" yaml:"width"`
	Height        int     `json:"height" yaml:"height"`
}

type S3Config struct {
	Endpoint  string `json:"endpoint" yaml:"endpoint" env:"SIGHTLINE_S3_ENDPOINT"`
	AccessKey string `json:"access_key" yaml:"access_key" env:"SIGHTLINE_S3_ACCESS_KEY"`
	SecretKey string `json:"secret_key" yaml:"secret_key" env:"SIGHTLINE_S3_SECRET_KEY"`
	Secure    bool   `json:"secure" yaml:"secure" env:"SIGHTLINE_S3_SECURE"`
}

type DetectorConfig struct {
	Endpoint            string             `json:"endpoint" yaml:"endpoint" env:"SIGHTLINE_DETECTOR_ENDPOINT"`
	Timeout             time.Duration      `json:"timeout" yaml:"timeout"`
	Retries             int                `json:"retries" yaml:"retries"`
	ConfidenceThreshold float64            `json:"confidence_threshold" yaml:"confidence_threshold"`
	Calibrated          bool               `json:"calibrated" yaml:"calibrated"`
	FocalLength         float64            `json:"focal_length" yaml:"focal_length"`
	KnownWidths         map[string]float64 `json:"known_widths" yaml:"known_widths"`
}

type FilterConfig struct {
	DangerDistance   float64  `json:"danger_distance" yaml:"danger_distance"`
	PriorityDistance float64  `json:"priority_distance" yaml:"priority_distance"`
	CenterDistance   float64  `json:"center_distance" yaml:"center_distance"`
	MaxResults       int      `json:"max_results" yaml:"max_results"`
	PriorityClasses  []string `json:"priority_classes" yaml:"priority_classes" env:"SIGHTLINE_PRIORITY_CLASSES" envSeparator:","`
	IgnoreClasses    []string `json:"ignore_classes" yaml:"ignore_classes" env:"SIGHTLINE_IGNORE_CLASSES" envSeparator:","`
}

type AlertsConfig struct {
	CriticalDistance float64       `json:"critical_distance" yaml:"critical_distance"`
	WarningDistance  float64       `json:"warning_distance" yaml:"warning_distance"`
	Cooldown         time.Duration `json:"cooldown" yaml:"cooldown"`
	StoreLimit       int           `json:"store_limit" yaml:"store_limit"`
}

type DescriptionConfig struct {
	MinInterval    time.Duration `json:"min_interval" yaml:"min_interval" env:"SIGHTLINE_DESCRIPTION_INTERVAL"`
	DangerDistance float64       `json:"danger_distance" yaml:"danger_distance"`
	RepeatWindow   time.Duration `json:"repeat_window" yaml:"repeat_window"`
	Language       string        `json:"language" yaml:"language" env:"SIGHTLINE_LANGUAGE"`
	MaxLength      int           `json:"max_length" yaml:"max_length"`
}

type LLMConfig struct {
	Provider     string        `json:"provider" yaml:"provider" env:"SIGHTLINE_LLM_PROVIDER"`
	BaseURL      string        `json:"base_url" yaml:"base_url" env:"SIGHTLINE_LLM_BASE_URL"`
	Model        string        `json:"model" yaml:"model" env:"SIGHTLINE_LLM_MODEL"`
	APIKey       string        `json:"api_key" yaml:"api_key" env:"SIGHTLINE_LLM_API_KEY"`
	Temperature  float64       `json:"temperature" yaml:"temperature"`
	MaxTokens    int           `json:"max_tokens" yaml:"max_tokens"`
	Timeout      time.Duration `json:"timeout" yaml:"timeout"`
	Retries      int           `json:"retries" yaml:"retries"`
	SystemPrompt string        `json:"system_prompt" yaml:"system_prompt"`
}

type SpeechConfig struct {
	Engine       string   `json:"engine" yaml:"engine" env:"SIGHTLINE_SPEECH_ENGINE"`
	Command      string   `json:"command" yaml:"command"`
	Args         []string `json:"args" yaml:"args"`
	HTTPEndpoint string   `json:"http_endpoint" yaml:"http_endpoint" env:"SIGHTLINE_TTS_ENDPOINT"`
	APIKey       string   `json:"api_key" yaml:"api_key" env:"SIGHTLINE_TTS_API_KEY"`
	Player       string   `json:"player" yaml:"player"`
	PlayerArgs   []string `json:"player_args" yaml:"player_args"`
	QueueSize    int      `json:"queue_size" yaml:"queue_size"`
	Rate         int      `json:"rate" yaml:"rate"`
	Volume       float64  `json:"volume" yaml:"volume"`
	ToneCommand  string   `json:"tone_command" yaml:"tone_command"`
	DangerTone   string   `json:"danger_tone" yaml:"danger_tone"`
	WarningTone  string   `json:"warning_tone" yaml:"warning_tone"`
	Vibration    bool     `json:"vibration" yaml:"vibration"`
}

type PowerConfig struct {
	Adaptive     bool `json:"adaptive" yaml:"adaptive" env:"SIGHTLINE_POWER_ADAPTIVE"`
	BatteryLevel int  `json:"battery_level" yaml:"battery_level"`
	Charging     bool `json:"charging" yaml:"charging"`
}

type IngestConfig struct {
	ChannelBuffer int             `json:"channel_buffer" yaml:"channel_buffer"`
	REST          RESTConfig      `json:"rest" yaml:"rest"`
	TCPStream     TCPStreamConfig `json:"tcp_stream" yaml:"tcp_stream"`
	FileTail      FileTailConfig  `json:"file_tail" yaml:"file_tail"`
	Kafka         KafkaConfig     `json:"kafka" yaml:"kafka"`
	Parser        ParserConfig    `json:"parser" yaml:"parser"`
}

type RESTConfig struct {
	Enabled bool   `json:"enabled" yaml:"enabled"`
	Addr    string `json:"addr" yaml:"addr"`
}

type TCPStreamConfig struct {
	Enabled bool   `json:"enabled" yaml:"enabled"`
	Addr    string `json:"addr" yaml:"addr"`
}

type FileTailConfig struct {
	Enabled    bool     `json:"enabled" yaml:"enabled"`
	StartAtEnd bool     `json:"start_at_end" yaml:"start_at_end"`
	Files      []string `json:"files" yaml:"files"`
}

type KafkaConfig struct {
	Enabled bool     `json:"enabled" yaml:"enabled"`
	Brokers []string `json:"brokers" yaml:"brokers" env:"SIGHTLINE_INGEST_KAFKA_BROKERS" envSeparator:","`
	Topic   string   `json:"topic" yaml:"topic"`
	GroupID string   `json:"group_id" yaml:"group_id"`
}

type ParserConfig struct {
	Timezone        string `json:"timezone" yaml:"timezone"`
	DefaultCameraID string `json:"default_camera_id" yaml:"default_camera_id"`
}

type EventsConfig struct {
	Enabled bool     `json:"enabled" yaml:"enabled" env:"SIGHTLINE_EVENTS_ENABLED"`
	Brokers []string `json:"brokers" yaml:"brokers" env:"SIGHTLINE_EVENTS_BROKERS" envSeparator:","`
	Topic   string   `json:"topic" yaml:"topic"`
}

type ArchiveConfig struct {
	Enabled bool   `json:"enabled" yaml:"enabled" env:"SIGHTLINE_SAVE_FRAMES"`
	Bucket  string `json:"bucket" yaml:"bucket"`
}

type APIConfig struct {
	Enabled bool   `json:"enabled" yaml:"enabled"`
	Addr    string `json:"addr" yaml:"addr" env:"SIGHTLINE_API_ADDR"`
}

type StorageConfig struct {
	Enabled        bool          `json:"enabled" yaml:"enabled" env:"SIGHTLINE_STORAGE_ENABLED"`
	Driver         string        `json:"driver" yaml:"driver" env:"SIGHTLINE_STORAGE_DRIVER"`
	DSN            string        `json:"dsn" yaml:"dsn" env:"SIGHTLINE_STORAGE_DSN"`
	CacheRetention time.Duration `json:"cache_retention" yaml:"cache_retention"`
	CacheMinUses   int           `json:"cache_min_uses" yaml:"cache_min_uses"`
}

type MetricsConfig struct {
	StoreLimit int           `json:"store_limit" yaml:"store_limit"`
	Window     time.Duration `json:"window" yaml:"window"`
}

var defaultPriorityClasses = []string{
	"person", "car", "bus", "truck", "bicycle", "motorcycle",
	"chair", "bench", "door", "stairs",
}

const defaultSystemPrompt = "You are a visual description assistant for blind and low-vision pedestrians.\n" +
	"Describe the scene concisely and clearly, for mobility.\n" +
	"Prioritize distance, direction and safety.\n" +
	"At most two short sentences."

func DefaultConfig() *Config {
	return &Config{
		LogLevel: "info",
		Camera: CameraConfig{
			ID:            "camera0",
			Source:        "none",
			FPSProcessing: 5,
			Width:         640,
			Height:        480,
		},
		Detector: DetectorConfig{
			Endpoint:            "http://localhost:8000",
			Timeout:             2 * time.Second,
			Retries:             1,
			ConfidenceThreshold: 0.5,
			FocalLength:         600,
			KnownWidths: map[string]float64{
				"person":     0.5,
				"car":        1.8,
				"door":       0.9,
				"chair":      0.5,
				"bicycle":    0.6,
				"bottle":     0.08,
				"cell phone": 0.07,
				"laptop":     0.35,
			},
		},
		Filter: FilterConfig{
			DangerDistance:   2.0,
			PriorityDistance: 5.0,
			CenterDistance:   4.0,
			MaxResults:       5,
			PriorityClasses:  append([]string(nil), defaultPriorityClasses...),
		},
		Alerts: AlertsConfig{
			CriticalDistance: 1.0,
			WarningDistance:  2.0,
			Cooldown:         3 * time.Second,
			StoreLimit:       1000,
		},
		Description: DescriptionConfig{
			MinInterval:    2 * time.Second,
			DangerDistance: 2.0,
			RepeatWindow:   10 * time.Second,
			Language:       "en",
			MaxLength:      200,
		},
		LLM: LLMConfig{
			Provider:     "ollama",
			BaseURL:      "http://localhost:11434",
			Model:        "llama3:instruct",
			Temperature:  0.3,
			MaxTokens:    100,
			Timeout:      5 * time.Second,
			Retries:      0,
			SystemPrompt: defaultSystemPrompt,
		},
		Speech: SpeechConfig{
			Engine:      "log",
			Command:     "espeak",
			Args:        []string{"-s", "{rate}", "-a", "{amplitude}"},
			Player:      "mpg123",
			PlayerArgs:  []string{"-q"},
			QueueSize:   8,
			Rate:        180,
			Volume:      0.9,
			DangerTone:  "assets/danger.wav",
			WarningTone: "assets/beep.wav",
			Vibration:   true,
		},
		Power: PowerConfig{Adaptive: false, BatteryLevel: 100},
		Ingest: IngestConfig{
			ChannelBuffer: 10,
			REST:          RESTConfig{Enabled: false, Addr: ":8080"},
			TCPStream:     TCPStreamConfig{Enabled: false, Addr: ":9000"},
			FileTail:      FileTailConfig{Enabled: false, StartAtEnd: false},
			Kafka:         KafkaConfig{Enabled: false},
			Parser:        ParserConfig{Timezone: "UTC", DefaultCameraID: "camera0"},
		},
		Events:  EventsConfig{Enabled: false, Topic: "sightline-events"},
		Archive: ArchiveConfig{Enabled: false, Bucket: "sightline-frames"},
		API:     APIConfig{Enabled: true, Addr: ":8081"},
		Storage: StorageConfig{
			Enabled:        false,
			Driver:         "sqlite",
			DSN:            "file:sightline.db?_pragma=busy_timeout(5000)",
			CacheRetention: 30 * 24 * time.Hour,
			CacheMinUses:   5,
		},
		Metrics: MetricsConfig{StoreLimit: 100, Window: 10 * time.Second},
	}
}

// Load reads a YAML or JSON file over the defaults, then applies SIGHTLINE_*
// environment overrides. An empty path yields the defaults plus environment.
func Load(path string) (*Config, error) {
	cfg := DefaultConfig()
	if path != "" {
		f, err := os.Open(path)
		if err != nil {
			return nil, err
		}
		defer f.Close()
		content, err := io.ReadAll(f)
		if err != nil {
			return nil, err
		}
		trimmed := strings.TrimSpace(string(content))
		if len(trimmed) == 0 {
			return nil, errors.New("config file is empty")
		}
		var decodeErr error
		if looksLikeJSON(trimmed) {
			decodeErr = json.Unmarshal([]byte(trimmed), cfg)
		} else {
			decodeErr = yaml.Unmarshal([]byte(trimmed), cfg)
		}
		if decodeErr != nil {
			return nil, decodeErr
		}
	}
	if err := env.Parse(cfg); err != nil {
		return nil, fmt.Errorf("env overrides: %w", err)
	}
	applyDefaults(cfg)
	if err := Validate(cfg); err != nil {
		return nil, err
	}
	return cfg, nil
}

func Save(path string, cfg *Config) error {
	if path == "" || cfg == nil {
		return errors.New("config path or config is empty")
	}
	var data []byte
	var err error
	ext := strings.ToLower(filepath.Ext(path))
	if ext == ".json" {
		data, err = json.MarshalIndent(cfg, "", "  ")
	} else {
		data, err = yaml.Marshal(cfg)
	}
	if err != nil {
		return err
	}
	return os.WriteFile(path, data, 0o644)
}

func looksLikeJSON(s string) bool {
	for _, ch := range s {
		if ch == '{' || ch == '[' {
			return true
		}
		if ch > ' ' {
			return false
		}
	}
	return false
}

func applyDefaults(cfg *Config) {
	if len(cfg.Filter.PriorityClasses) == 0 {
		cfg.Filter.PriorityClasses = append([]string(nil), defaultPriorityClasses...)
	}
	if cfg.Filter.MaxResults <= 0 {
		cfg.Filter.MaxResults = 5
	}
	if cfg.Alerts.StoreLimit <= 0 {
		cfg.Alerts.StoreLimit = 1000
	}
	if cfg.Metrics.StoreLimit <= 0 {
		cfg.Metrics.StoreLimit = 100
	}
	if cfg.Metrics.Window <= 0 {
		cfg.Metrics.Window = 10 * time.Second
	}
	if cfg.Ingest.ChannelBuffer <= 0 {
		cfg.Ingest.ChannelBuffer = 10
	}
	if cfg.Ingest.Parser.Timezone == "" {
		cfg.Ingest.Parser.Timezone = "UTC"
	}
	if cfg.Ingest.Parser.DefaultCameraID == "" {
		cfg.Ingest.Parser.DefaultCameraID = cfg.Camera.ID
	}
	if cfg.Camera.FPSProcessing <= 0 {
		cfg.Camera.FPSProcessing = 5
	}
	if cfg.Camera.Width <= 0 {
		cfg.Camera.Width = 640
	}
	if cfg.Camera.Height <= 0 {
		cfg.Camera.Height = 480
	}
	if cfg.Speech.QueueSize <= 0 {
		cfg.Speech.QueueSize = 8
	}
	if cfg.Description.Language == "" {
		cfg.Description.Language = "en"
	}
	if cfg.Description.MaxLength <= 0 {
		cfg.Description.MaxLength = 200
	}
	if cfg.LLM.SystemPrompt == "" {
		cfg.LLM.SystemPrompt = defaultSystemPrompt
	}
	if cfg.Detector.FocalLength <= 0 {
		cfg.Detector.FocalLength = 600
	}
}

func Validate(cfg *Config) error {
	if cfg.API.Enabled && cfg.API.Addr == "" {
		return errors.New("api.addr required when api.enabled is true")
	}
	if cfg.Ingest.REST.Enabled && cfg.Ingest.REST.Addr == "" {
		return errors.New("ingest.rest.addr required when ingest.rest.enabled is true")
	}
	if cfg.Ingest.TCPStream.Enabled && cfg.Ingest.TCPStream.Addr == "" {
		return errors.New("ingest.tcp_stream.addr required when ingest.tcp_stream.enabled is true")
	}
	if cfg.Ingest.FileTail.Enabled && len(cfg.Ingest.FileTail.Files) == 0 {
		return errors.New("ingest.file_tail.files required when ingest.file_tail.enabled is true")
	}
	if cfg.Ingest.Kafka.Enabled {
		if len(cfg.Ingest.Kafka.Brokers) == 0 || cfg.Ingest.Kafka.Topic == "" || cfg.Ingest.Kafka.GroupID == "" {
			return errors.New("ingest.kafka requires brokers, topic, group_id")
		}
	}
	if cfg.Events.Enabled && (len(cfg.Events.Brokers) == 0 || cfg.Events.Topic == "") {
		return errors.New("events requires brokers and topic")
	}
	switch cfg.Camera.Source {
	case "", "none":
	case "dir":
		if cfg.Camera.Dir == "" {
			return errors.New("camera.dir required when camera.source is dir")
		}
	case "s3":
		if cfg.Camera.Bucket == "" || cfg.S3.Endpoint == "" {
			return errors.New("camera.bucket and s3.endpoint required when camera.source is s3")
		}
	default:
		return fmt.Errorf("unknown camera.source: %q", cfg.Camera.Source)
	}
	if cfg.Camera.Source == "dir" || cfg.Camera.Source == "s3" {
		if cfg.Detector.Endpoint == "" {
			return fmt.Errorf("detector.endpoint required when camera.source is %s", cfg.Camera.Source)
		}
	}
	if cfg.Archive.Enabled && (cfg.Archive.Bucket == "" || cfg.S3.Endpoint == "") {
		return errors.New("archive.bucket and s3.endpoint required when archive.enabled is true")
	}
	if cfg.Filter.DangerDistance <= 0 || cfg.Filter.PriorityDistance <= 0 || cfg.Filter.CenterDistance <= 0 {
		return errors.New("filter distances must be > 0")
	}
	if cfg.Alerts.CriticalDistance <= 0 || cfg.Alerts.WarningDistance <= 0 {
		return errors.New("alerts distances must be > 0")
	}
	if cfg.Alerts.CriticalDistance > cfg.Alerts.WarningDistance {
		return errors.New("alerts.critical_distance must not exceed alerts.warning_distance")
	}
	if cfg.Alerts.Cooldown < 0 || cfg.Description.MinInterval < 0 {
		return errors.New("alerts.cooldown and description.min_interval must be >= 0")
	}
	switch strings.ToLower(cfg.LLM.Provider) {
	case "ollama", "openai", "none", "":
	default:
		return fmt.Errorf("unknown llm.provider: %q", cfg.LLM.Provider)
	}
	switch strings.ToLower(cfg.Speech.Engine) {
	case "log", "command", "http", "":
	default:
		return fmt.Errorf("unknown speech.engine: %q", cfg.Speech.Engine)
	}
	if strings.EqualFold(cfg.Speech.Engine, "http") && cfg.Speech.HTTPEndpoint == "" {
		return errors.New("speech.http_endpoint required when speech.engine is http")
	}
	switch strings.ToLower(cfg.Description.Language) {
	case "en", "es":
	default:
		return fmt.Errorf("unsupported description.language: %q", cfg.Description.Language)
	}
	if cfg.Power.BatteryLevel < 0 || cfg.Power.BatteryLevel > 100 {
		return errors.New("power.battery_level must be within 0..100")
	}
	return nil
}

type Manager struct {
	path    string
	cfg     atomic.Value
	modTime time.Time
}

func NewManager(path string) (*Manager, error) {
	cfg, err := Load(path)
	if err != nil {
		return nil, err
	}
	m := &Manager{path: path}
	m.cfg.Store(cfg)
	if path != "" {
		if info, err := os.Stat(path); err == nil {
			m.modTime = info.ModTime()
		}
	}
	return m, nil
}

func (m *Manager) Get() *Config {
	if v := m.cfg.Load(); v != nil {
		return v.(*Config)
	}
	return DefaultConfig()
}

func (m *Manager) Path() string {
	return m.path
}

func (m *Manager) Reload() (*Config, error) {
	cfg, err := Load(m.path)
	if err != nil {
		return nil, err
	}
	m.cfg.Store(cfg)
	if info, err := os.Stat(m.path); err == nil {
		m.modTime = info.ModTime()
	}
	return cfg, nil
}

// Update stores cfg and persists it when the manager is file backed.
func (m *Manager) Update(cfg *Config) error {
	if cfg == nil {
		return errors.New("nil config")
	}
	if err := Validate(cfg); err != nil {
		return err
	}
	if m.path != "" {
		if err := Save(m.path, cfg); err != nil {
			return err
		}
		if info, err := os.Stat(m.path); err == nil {
			m.modTime = info.ModTime()
		}
	}
	m.cfg.Store(cfg)
	return nil
}

func (m *Manager) NeedsReload() (bool, error) {
	if m.path == "" {
		return false, nil
	}
	info, err := os.Stat(m.path)
	if err != nil {
		return false, err
	}
	return info.ModTime().After(m.modTime), nil
}

func (m *Manager) Watch(interval time.Duration, onReload func(*Config), onError func(error), stop <-chan struct{}) {
	if m.path == "" {
		return
	}
	if interval <= 0 {
		interval = 3 * time.Second
	}
	ticker := time.NewTicker(interval)
	defer ticker.Stop()
	for {
		select {
		case <-ticker.C:
			needs, err := m.NeedsReload()
			if err != nil {
				if onError != nil {
					onError(err)
				}
				continue
			}
			if !needs {
				continue
			}
			cfg, err := m.Reload()
			if err != nil {
				if onError != nil {
					onError(err)
				}
				continue
			}
			if onReload != nil {
				onReload(cfg)
			}
		case <-stop:
			return
		}
	}
}

func ResolvePath(path string) string {
	if path == "" {
		return path
	}
	if filepath.IsAbs(path) {
		return path
	}
	cwd, err := os.Getwd()
	if err != nil {
		return path
	}
	return filepath.Join(cwd, path)
}
