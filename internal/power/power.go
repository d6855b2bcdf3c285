package power

import (
	"sync"
	"time"

	"sightline/internal/model"
)

// ultraStride is how many frames ultra_saver skips between processed frames.
const ultraStride = 30

// BatteryCapacity is the assumed device battery in mAh.
const BatteryCapacity = 4000

type Profile struct {
	Mode                model.PowerMode `json:"mode"`
	FPS                 int             `json:"fps"`
	DescriptionInterval time.Duration   `json:"description_interval"`
	LLMEnabled          bool            `json:"llm_enabled"`
	// Consumption is the draw in mAh per hour while the profile is active.
	Consumption int `json:"consumption_mah"`
}

var profiles = map[model.PowerMode]Profile{
	model.PowerPerformance: {Mode: model.PowerPerformance, FPS: 10, DescriptionInterval: 1 * time.Second, LLMEnabled: true, Consumption: 800},
	model.PowerBalanced:    {Mode: model.PowerBalanced, FPS: 5, DescriptionInterval: 2 * time.Second, LLMEnabled: true, Consumption: 500},
	model.PowerSaver:       {Mode: model.PowerSaver, FPS: 3, DescriptionInterval: 3 * time.Second, LLMEnabled: false, Consumption: 300},
	model.PowerUltraSaver:  {Mode: model.PowerUltraSaver, FPS: 1, DescriptionInterval: 5 * time.Second, LLMEnabled: false, Consumption: 150},
}

func ModeFor(level int, charging bool) model.PowerMode {
	if charging {
		return model.PowerPerformance
	}
	switch {
	case level <= 10:
		return model.PowerUltraSaver
	case level <= 20:
		return model.PowerSaver
	case level <= 50:
		return model.PowerBalanced
	}
	return model.PowerPerformance
}

func ProfileFor(mode model.PowerMode) Profile {
	if p, ok := profiles[mode]; ok {
		return p
	}
	return profiles[model.PowerPerformance]
}

type Status struct {
	Level          int     `json:"level"`
	Charging       bool    `json:"charging"`
	Adaptive       bool    `json:"adaptive"`
	Profile        Profile `json:"profile"`
	EstimatedHours float64 `json:"estimated_battery_hours"`
}

// EstimateHours is the remaining runtime at level percent under mode.
func EstimateHours(level int, mode model.PowerMode) float64 {
	p := ProfileFor(mode)
	if p.Consumption <= 0 {
		return 0
	}
	remaining := float64(BatteryCapacity) * float64(clampLevel(level)) / 100
	return remaining / float64(p.Consumption)
}

// Manager tracks the reported battery state. Profiles are always computed;
// they only change pipeline behavior when adaptive is set.
type Manager struct {
	mu       sync.RWMutex
	level    int
	charging bool
	adaptive bool
}

func NewManager(level int, charging, adaptive bool) *Manager {
	return &Manager{level: clampLevel(level), charging: charging, adaptive: adaptive}
}

func (m *Manager) SetBattery(level int, charging bool) Profile {
	m.mu.Lock()
	m.level = clampLevel(level)
	m.charging = charging
	m.mu.Unlock()
	return m.Profile()
}

func (m *Manager) SetAdaptive(adaptive bool) {
	m.mu.Lock()
	m.adaptive = adaptive
	m.mu.Unlock()
}

func (m *Manager) Adaptive() bool {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return m.adaptive
}

func (m *Manager) Profile() Profile {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return ProfileFor(ModeFor(m.level, m.charging))
}

func (m *Manager) Status() Status {
	m.mu.RLock()
	defer m.mu.RUnlock()
	mode := ModeFor(m.level, m.charging)
	return Status{
		Level:          m.level,
		Charging:       m.charging,
		Adaptive:       m.adaptive,
		Profile:        ProfileFor(mode),
		EstimatedHours: EstimateHours(m.level, mode),
	}
}

// ShouldProcess reports whether the n-th frame (starting at 0) of a camera
// is processed under the active profile.
func (m *Manager) ShouldProcess(n int64) bool {
	if !m.Adaptive() {
		return true
	}
	if m.Profile().Mode != model.PowerUltraSaver {
		return true
	}
	return n%ultraStride == 0
}

func clampLevel(level int) int {
	if level < 0 {
		return 0
	}
	if level > 100 {
		return 100
	}
	return level
}
