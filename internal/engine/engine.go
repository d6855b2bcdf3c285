package engine

import (
	"context"
	"log/slog"
	"sync"
	"sync/atomic"
	"time"

	"github.com/benbjohnson/clock"
	"github.com/google/uuid"

	"sightline/internal/alerts"
	"sightline/internal/config"
	"sightline/internal/describe"
	"sightline/internal/metrics"
	"sightline/internal/model"
	"sightline/internal/normalize"
	"sightline/internal/power"
	"sightline/internal/storage"
)

type Detector interface {
	Detect(ctx context.Context, frame model.Frame) ([]model.RawDetection, error)
}

type Describer interface {
	Describe(ctx context.Context, dets []model.Detection, useLLM bool) describe.Result
}

type Speaker interface {
	Speak(text string, priority model.SpeechPriority) bool
}

type Feedback interface {
	Tone(ctx context.Context, level model.AlertLevel)
	Vibrate(ctx context.Context, cameraID string, pattern model.VibrationPattern)
}

type Publisher interface {
	Publish(ctx context.Context, ev model.Event) error
}

type Archiver interface {
	Archive(ctx context.Context, frame model.Frame, dets []model.Detection) error
}

type Option func(*Engine)

func WithDetector(d Detector) Option   { return func(e *Engine) { e.detector = d } }
func WithDescriber(d Describer) Option { return func(e *Engine) { e.describer = d } }
func WithSpeaker(s Speaker) Option     { return func(e *Engine) { e.speaker = s } }
func WithFeedback(f Feedback) Option   { return func(e *Engine) { e.feedback = f } }
func WithPublisher(p Publisher) Option { return func(e *Engine) { e.publisher = p } }
func WithArchiver(a Archiver) Option   { return func(e *Engine) { e.archiver = a } }
func WithClock(c clock.Clock) Option   { return func(e *Engine) { e.clock = c } }
func WithPower(p *power.Manager) Option {
	return func(e *Engine) { e.power = p }
}

// Result is what one frame produced.
type Result struct {
	Skipped     bool
	Detections  []model.Detection
	Relevant    []model.Detection
	Alerts      []model.Alert
	Description *model.Description
	Repeated    bool
}

type Engine struct {
	logger    *slog.Logger
	metrics   *metrics.Store
	alerts    *alerts.Store
	store     storage.Store
	detector  Detector
	describer Describer
	speaker   Speaker
	feedback  Feedback
	publisher Publisher
	archiver  Archiver
	power     *power.Manager
	clock     clock.Clock

	cfg       atomic.Value
	rules     atomic.Value
	mu        sync.Mutex
	cameras   map[string]*cameraState
	proximity *ProximityMonitor
	repeats   *RepeatFilter
}

type cameraState struct {
	frames   int64
	lastSeen time.Time
	window   *RateWindow
	throttle DescriptionThrottle
}

func NewEngine(cfg *config.Config, logger *slog.Logger, metricsStore *metrics.Store, alertsStore *alerts.Store, store storage.Store, opts ...Option) *Engine {
	e := &Engine{
		logger:    logger,
		metrics:   metricsStore,
		alerts:    alertsStore,
		store:     store,
		cameras:   make(map[string]*cameraState),
		proximity: NewProximityMonitor(),
		repeats:   NewRepeatFilter(),
	}
	for _, opt := range opts {
		opt(e)
	}
	if e.clock == nil {
		e.clock = clock.New()
	}
	if e.power == nil {
		e.power = power.NewManager(cfg.Power.BatteryLevel, cfg.Power.Charging, cfg.Power.Adaptive)
	}
	if e.describer == nil {
		var cache describe.Cache
		if store != nil {
			cache = store
		}
		e.describer = describe.NewService(describe.None{}, cache, cfg, logger)
	}
	if e.metrics == nil {
		e.metrics = metrics.NewStore(cfg.Metrics.StoreLimit)
	}
	if e.alerts == nil {
		e.alerts = alerts.NewStore(cfg.Alerts.StoreLimit)
	}
	e.cfg.Store(cfg)
	e.rules.Store(buildFilterRules(cfg))
	return e
}

func (e *Engine) UpdateConfig(cfg *config.Config) {
	e.cfg.Store(cfg)
	e.rules.Store(buildFilterRules(cfg))
	e.power.SetAdaptive(cfg.Power.Adaptive)
	if u, ok := e.describer.(interface{ UpdateConfig(*config.Config) }); ok {
		u.UpdateConfig(cfg)
	}
}

func (e *Engine) config() *config.Config {
	if v := e.cfg.Load(); v != nil {
		return v.(*config.Config)
	}
	return config.DefaultConfig()
}

func (e *Engine) filterRules() *FilterRules {
	if v := e.rules.Load(); v != nil {
		return v.(*FilterRules)
	}
	return buildFilterRules(config.DefaultConfig())
}

func (e *Engine) Power() *power.Manager {
	return e.power
}

// Start consumes frames on one goroutine until ctx is done or in closes.
func (e *Engine) Start(ctx context.Context, in <-chan model.Frame) {
	go e.Run(ctx, in)
}

func (e *Engine) Run(ctx context.Context, in <-chan model.Frame) {
	for {
		select {
		case frame, ok := <-in:
			if !ok {
				return
			}
			e.ProcessFrame(ctx, frame)
		case <-ctx.Done():
			return
		}
	}
}

// RecordDrop counts a frame a source could not enqueue.
func (e *Engine) RecordDrop(cameraID string) {
	if cameraID == "" {
		cameraID = e.config().Camera.ID
	}
	e.metrics.Update(cameraID, e.clock.Now().UTC(), func(st *model.SessionStats) {
		st.FramesDropped++
	})
}

func (e *Engine) ProcessFrame(ctx context.Context, frame model.Frame) Result {
	cfg := e.config()
	now := e.clock.Now().UTC()
	if frame.CameraID == "" {
		frame.CameraID = cfg.Camera.ID
	}
	if frame.Timestamp.IsZero() {
		frame.Timestamp = now
	}
	if frame.Width <= 0 || frame.Height <= 0 {
		frame.Width, frame.Height = cfg.Camera.Width, cfg.Camera.Height
	}
	st := e.camera(frame.CameraID, now)
	status := e.power.Status()

	// paced sources already run at the profile's rate; the stride only thins
	// sources that push at their own rate
	if !frame.Paced {
		n := st.frames
		st.frames++
		if !e.power.ShouldProcess(n) {
			e.metrics.Update(frame.CameraID, now, func(s *model.SessionStats) {
				s.FramesSkipped++
				s.SkipRate = s.SkippedRatio()
				s.PowerMode = status.Profile.Mode
				s.BatteryLevel = status.Level
			})
			return Result{Skipped: true}
		}
	}

	raw := frame.Detections
	if !frame.Detected() && e.detector != nil && len(frame.Image) > 0 {
		var err error
		raw, err = e.detector.Detect(ctx, frame)
		if err != nil {
			if e.logger != nil {
				e.logger.Warn("detector failed, treating frame as empty", "camera_id", frame.CameraID, "frame_id", frame.ID, "error", err)
			}
			raw = nil
		}
	}
	dets := normalize.Detections(raw, frame.Width, frame.Height, normalize.OptionsFromConfig(cfg))
	res := Result{Detections: dets, Relevant: FilterRelevant(dets, e.filterRules())}
	st.window.Add(now, len(dets))

	if len(res.Relevant) > 0 {
		res.Alerts = e.proximity.Check(now, frame.CameraID, res.Relevant, cfg.Alerts)
		critical := false
		for i := range res.Alerts {
			e.handleAlert(ctx, cfg, &res.Alerts[i])
			critical = critical || res.Alerts[i].Level == model.AlertCritical
		}
		if critical {
			e.archive(ctx, frame, res.Relevant)
		}

		interval := cfg.Description.MinInterval
		useLLM := true
		if status.Adaptive {
			interval = status.Profile.DescriptionInterval
			useLLM = status.Profile.LLMEnabled
		}
		if emit, urgent := st.throttle.Decide(now, res.Relevant, cfg.Description.DangerDistance, interval); emit {
			res.Description, res.Repeated = e.narrate(ctx, cfg, frame.CameraID, res.Relevant, urgent, useLLM, now)
		}
	}

	fps, dps := st.window.Rates(now)
	e.metrics.Update(frame.CameraID, now, func(s *model.SessionStats) {
		s.FramesProcessed++
		s.DetectionsTotal += int64(len(res.Detections))
		s.RelevantTotal += int64(len(res.Relevant))
		s.AlertsEmitted += int64(len(res.Alerts))
		s.SkipRate = s.SkippedRatio()
		s.FPS = fps
		s.DetectionsPerSec = dps
		s.PowerMode = status.Profile.Mode
		s.BatteryLevel = status.Level
	})
	return res
}

func (e *Engine) handleAlert(ctx context.Context, cfg *config.Config, alert *model.Alert) {
	if e.feedback != nil {
		e.feedback.Tone(ctx, alert.Level)
		e.feedback.Vibrate(ctx, alert.CameraID, alert.Pattern)
	}
	if alert.Level == model.AlertCritical {
		alert.Message = describe.CautionMessage(cfg.Description.Language, alert.Class)
		if e.speaker != nil {
			e.speaker.Speak(alert.Message, model.SpeechCritical)
		}
	}
	e.alerts.Add(*alert)
	if e.logger != nil {
		e.logger.Warn("proximity alert",
			"camera_id", alert.CameraID,
			"class", alert.Class,
			"level", alert.Level,
			"distance", alert.Distance,
			"position", alert.Position,
		)
	}
	if e.store != nil {
		if err := e.store.SaveAlert(ctx, *alert); err != nil && e.logger != nil {
			e.logger.Warn("save alert failed", "error", err)
		}
	}
	e.publish(ctx, model.Event{Type: model.EventAlert, CameraID: alert.CameraID, Timestamp: alert.Timestamp, Pattern: alert.Pattern, Alert: alert})
}

// archive stores a frame that raised at least one critical alert.
func (e *Engine) archive(ctx context.Context, frame model.Frame, relevant []model.Detection) {
	if e.archiver == nil || len(frame.Image) == 0 {
		return
	}
	if err := e.archiver.Archive(ctx, frame, relevant); err != nil && e.logger != nil {
		e.logger.Warn("archive frame failed", "frame_id", frame.ID, "error", err)
	}
}

// narrate describes the relevant detections and speaks the result. Urgent
// sentences replace queued routine ones but never cut off a caution. The
// second return is true when a non-urgent sentence was suppressed as a repeat.
func (e *Engine) narrate(ctx context.Context, cfg *config.Config, cameraID string, relevant []model.Detection, urgent, useLLM bool, now time.Time) (*model.Description, bool) {
	out := e.describer.Describe(ctx, relevant, useLLM)
	if !urgent && e.repeats.Seen(cameraID+"|"+out.Text, now, cfg.Description.RepeatWindow) {
		return nil, true
	}
	desc := &model.Description{
		Timestamp:   now,
		CameraID:    cameraID,
		Text:        out.Text,
		Source:      out.Source,
		ObjectCount: len(relevant),
		Urgent:      urgent,
	}
	if e.speaker != nil {
		priority := model.SpeechNormal
		if urgent {
			priority = model.SpeechUrgent
		}
		e.speaker.Speak(desc.Text, priority)
	}
	e.metrics.Update(cameraID, now, func(s *model.SessionStats) {
		s.DescriptionsGenerated++
		if out.Source == model.SourceFallback {
			s.FallbackDescriptions++
		}
		if out.LLMSkipped {
			s.LLMCallsSkipped++
		}
	})
	if e.logger != nil {
		e.logger.Info("description", "camera_id", cameraID, "text", desc.Text, "source", desc.Source, "urgent", urgent)
	}
	if e.store != nil {
		entry := model.HistoryEntry{
			ID:          uuid.NewString(),
			Timestamp:   now,
			CameraID:    cameraID,
			Description: desc.Text,
			Source:      string(desc.Source),
			ObjectCount: desc.ObjectCount,
			Objects:     relevant,
		}
		if err := e.store.SaveHistory(ctx, entry); err != nil && e.logger != nil {
			e.logger.Warn("save history failed", "error", err)
		}
	}
	e.publish(ctx, model.Event{Type: model.EventDescription, CameraID: cameraID, Timestamp: now, Description: desc})
	return desc, false
}

// Describe runs normalization, the relevance filter and description
// generation without throttling or speech.
func (e *Engine) Describe(ctx context.Context, raw []model.RawDetection, width, height int) (model.Description, []model.Detection) {
	cfg := e.config()
	if width <= 0 || height <= 0 {
		width, height = cfg.Camera.Width, cfg.Camera.Height
	}
	dets := normalize.Detections(raw, width, height, normalize.OptionsFromConfig(cfg))
	relevant := FilterRelevant(dets, e.filterRules())
	status := e.power.Status()
	useLLM := !status.Adaptive || status.Profile.LLMEnabled
	out := e.describer.Describe(ctx, relevant, useLLM)
	return model.Description{
		Timestamp:   e.clock.Now().UTC(),
		CameraID:    cfg.Camera.ID,
		Text:        out.Text,
		Source:      out.Source,
		ObjectCount: len(relevant),
	}, relevant
}

func (e *Engine) publish(ctx context.Context, ev model.Event) {
	if e.publisher == nil {
		return
	}
	if err := e.publisher.Publish(ctx, ev); err != nil && e.logger != nil {
		e.logger.Warn("publish event failed", "type", ev.Type, "error", err)
	}
}

// camera returns the state for id. Beyond the metrics store limit the camera
// seen least recently is forgotten.
func (e *Engine) camera(id string, now time.Time) *cameraState {
	e.mu.Lock()
	defer e.mu.Unlock()
	if st, ok := e.cameras[id]; ok {
		st.lastSeen = now
		return st
	}
	st := &cameraState{lastSeen: now, window: NewRateWindow(e.config().Metrics.Window)}
	e.cameras[id] = st
	if limit := e.config().Metrics.StoreLimit; limit > 0 && len(e.cameras) > limit {
		e.evictOldestCamera(id)
	}
	return st
}

func (e *Engine) evictOldestCamera(keep string) {
	var oldestID string
	var oldest time.Time
	for id, st := range e.cameras {
		if id == keep {
			continue
		}
		if oldestID == "" || st.lastSeen.Before(oldest) {
			oldestID, oldest = id, st.lastSeen
		}
	}
	if oldestID != "" {
		delete(e.cameras, oldestID)
	}
}

// Reset forgets per-camera throttles, alert cooldowns and repeat history.
func (e *Engine) Reset() {
	e.mu.Lock()
	e.cameras = make(map[string]*cameraState)
	e.mu.Unlock()
	e.proximity.Reset()
	e.repeats.Reset()
}
