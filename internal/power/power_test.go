package power

import (
	"testing"
	"time"

	"sightline/internal/model"
)

func TestModeFor(t *testing.T) {
	cases := []struct {
		level    int
		charging bool
		want     model.PowerMode
	}{
		{5, false, model.PowerUltraSaver},
		{10, false, model.PowerUltraSaver},
		{15, false, model.PowerSaver},
		{20, false, model.PowerSaver},
		{50, false, model.PowerBalanced},
		{51, false, model.PowerPerformance},
		{5, true, model.PowerPerformance},
	}
	for _, c := range cases {
		if got := ModeFor(c.level, c.charging); got != c.want {
			t.Fatalf("level %d charging %v: expected %s, got %s", c.level, c.charging, c.want, got)
		}
	}
}

func TestProfileTable(t *testing.T) {
	p := ProfileFor(model.PowerSaver)
	if p.FPS != 3 || p.DescriptionInterval != 3*time.Second || p.LLMEnabled {
		t.Fatalf("unexpected power_saver profile: %+v", p)
	}
	p = ProfileFor(model.PowerBalanced)
	if p.FPS != 5 || p.DescriptionInterval != 2*time.Second || !p.LLMEnabled {
		t.Fatalf("unexpected balanced profile: %+v", p)
	}
}

func TestUltraSaverFrameStride(t *testing.T) {
	m := NewManager(5, false, true)
	processed := 0
	for i := int64(0); i < 90; i++ {
		if m.ShouldProcess(i) {
			processed++
		}
	}
	if processed != 3 {
		t.Fatalf("expected 3 of 90 frames, got %d", processed)
	}
	m.SetBattery(80, false)
	if !m.ShouldProcess(7) {
		t.Fatalf("performance mode should process every frame")
	}
}

func TestNonAdaptiveProcessesEverything(t *testing.T) {
	m := NewManager(5, false, false)
	if !m.ShouldProcess(1) {
		t.Fatalf("non-adaptive manager must not skip frames")
	}
	if m.Status().Profile.Mode != model.PowerUltraSaver {
		t.Fatalf("profile should still be reported")
	}
}

func TestEstimateHours(t *testing.T) {
	cases := []struct {
		level int
		mode  model.PowerMode
		want  float64
	}{
		{100, model.PowerPerformance, 5},
		{50, model.PowerBalanced, 4},
		{15, model.PowerSaver, 2},
		{9, model.PowerUltraSaver, 2.4},
		{0, model.PowerUltraSaver, 0},
	}
	for _, tc := range cases {
		got := EstimateHours(tc.level, tc.mode)
		if got < tc.want-1e-9 || got > tc.want+1e-9 {
			t.Fatalf("level %d %s: expected %v hours, got %v", tc.level, tc.mode, tc.want, got)
		}
	}
	st := NewManager(9, false, true).Status()
	if st.EstimatedHours < 2.4-1e-9 || st.EstimatedHours > 2.4+1e-9 {
		t.Fatalf("status should carry the ultra_saver estimate, got %+v", st)
	}
}
