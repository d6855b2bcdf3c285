package model

import "time"

type Position string

const (
	PositionLeft   Position = "left"
	PositionCenter Position = "center"
	PositionRight  Position = "right"
)

type Priority string

const (
	PriorityHigh   Priority = "high"
	PriorityMedium Priority = "medium"
)

type AlertLevel string

const (
	AlertNone     AlertLevel = ""
	AlertCritical AlertLevel = "critical"
	AlertWarning  AlertLevel = "warning"
)

type VibrationPattern string

const (
	VibrationSingle VibrationPattern = "single"
	VibrationDouble VibrationPattern = "double"
)

// SpeechPriority orders utterances in the speech queue.
type SpeechPriority int

const (
	// SpeechNormal queues behind whatever is pending.
	SpeechNormal SpeechPriority = iota
	// SpeechUrgent discards pending routine sentences and cuts off a routine
	// sentence that is playing. Cautions are never touched.
	SpeechUrgent
	// SpeechCritical discards everything pending and cuts off whatever plays.
	SpeechCritical
)

type DescriptionSource string

const (
	SourceLLM      DescriptionSource = "llm"
	SourceCache    DescriptionSource = "cache"
	SourceFallback DescriptionSource = "fallback"
)

type PowerMode string

const (
	PowerPerformance PowerMode = "performance"
	PowerBalanced    PowerMode = "balanced"
	PowerSaver       PowerMode = "power_saver"
	PowerUltraSaver  PowerMode = "ultra_saver"
)

// RawDetection is what the detector returns for one object: label, score and
// pixel box [x1, y1, x2, y2].
type RawDetection struct {
	Class      string     `json:"class"`
	Confidence float64    `json:"confidence"`
	Box        [4]float64 `json:"box"`
}

// Detection is a RawDetection placed in the user's frame of reference.
type Detection struct {
	Class      string     `json:"class"`
	Confidence float64    `json:"confidence"`
	Box        [4]float64 `json:"box"`
	Distance   float64    `json:"distance"`
	Position   Position   `json:"position"`
	Priority   Priority   `json:"priority,omitempty"`
}

type Frame struct {
	ID         string         `json:"id"`
	CameraID   string         `json:"camera_id"`
	Timestamp  time.Time      `json:"timestamp"`
	Width      int            `json:"width"`
	Height     int            `json:"height"`
	Image      []byte         `json:"-"`
	Detections []RawDetection `json:"detections,omitempty"`
	Source     string         `json:"source,omitempty"`
	// Paced is set by sources that already deliver at the power profile's rate.
	Paced      bool           `json:"-"`
}

// Detected reports whether the upstream already ran the detector on this frame.
func (f Frame) Detected() bool {
	return f.Detections != nil
}

type Alert struct {
	Timestamp time.Time        `json:"timestamp"`
	CameraID  string           `json:"camera_id"`
	Class     string           `json:"class"`
	Level     AlertLevel       `json:"level"`
	Distance  float64          `json:"distance"`
	Position  Position         `json:"position"`
	Pattern   VibrationPattern `json:"pattern"`
	Message   string           `json:"message,omitempty"`
}

type Description struct {
	Timestamp   time.Time         `json:"timestamp"`
	CameraID    string            `json:"camera_id"`
	Text        string            `json:"text"`
	Source      DescriptionSource `json:"source"`
	ObjectCount int               `json:"object_count"`
	Urgent      bool              `json:"urgent"`
}

type HistoryEntry struct {
	ID          string      `json:"id"`
	Timestamp   time.Time   `json:"timestamp"`
	CameraID    string      `json:"camera_id"`
	Description string      `json:"description"`
	Source      string      `json:"source"`
	ObjectCount int         `json:"object_count"`
	Objects     []Detection `json:"objects,omitempty"`
}

type SessionStats struct {
	CameraID              string    `json:"camera_id"`
	FramesProcessed       int64     `json:"frames_processed"`
	FramesSkipped         int64     `json:"frames_skipped"`
	FramesDropped         int64     `json:"frames_dropped"`
	SkipRate              float64   `json:"skip_rate"`
	DetectionsTotal       int64     `json:"detections_total"`
	RelevantTotal         int64     `json:"relevant_total"`
	AlertsEmitted         int64     `json:"alerts_emitted"`
	DescriptionsGenerated int64     `json:"descriptions_generated"`
	FallbackDescriptions  int64     `json:"fallback_descriptions"`
	LLMCallsSkipped       int64     `json:"llm_calls_skipped"`
	FPS                   float64   `json:"fps"`
	DetectionsPerSec      float64   `json:"detections_per_sec"`
	PowerMode             PowerMode `json:"power_mode"`
	BatteryLevel          int       `json:"battery_level"`
	StartedAt             time.Time `json:"started_at"`
}

// SkippedRatio is the share of frames the power profile skipped.
func (s *SessionStats) SkippedRatio() float64 {
	return float64(s.FramesSkipped) / float64(max(s.FramesProcessed+s.FramesSkipped, 1))
}

type EventType string

const (
	EventAlert       EventType = "alert"
	EventDescription EventType = "description"
	EventVibration   EventType = "vibration"
)

// Event is published for companion devices (haptics, dashboards).
type Event struct {
	Type        EventType        `json:"type"`
	CameraID    string           `json:"camera_id"`
	Timestamp   time.Time        `json:"timestamp"`
	Pattern     VibrationPattern `json:"pattern,omitempty"`
	Alert       *Alert           `json:"alert,omitempty"`
	Description *Description     `json:"description,omitempty"`
}
