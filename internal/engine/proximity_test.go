package engine

import (
	"fmt"
	"testing"
	"time"

	clk "github.com/benbjohnson/clock"

	"sightline/internal/config"
	"sightline/internal/model"
)

func TestClassifyProximity(t *testing.T) {
	cfg := config.DefaultConfig().Alerts
	cases := map[float64]model.AlertLevel{
		0.8: model.AlertCritical,
		1.5: model.AlertWarning,
		3.0: model.AlertNone,
		1.0: model.AlertWarning,
		2.0: model.AlertNone,
	}
	for d, want := range cases {
		if got := ClassifyProximity(d, cfg); got != want {
			t.Fatalf("distance %v: expected %q, got %q", d, want, got)
		}
	}
}

func TestProximityCooldownPerClass(t *testing.T) {
	cfg := config.DefaultConfig().Alerts
	mock := clk.NewMock()
	p := NewProximityMonitor()
	person := []model.Detection{det("person", 0.8, model.PositionCenter)}

	first := p.Check(mock.Now(), "cam1", person, cfg)
	if len(first) != 1 || first[0].Pattern != model.VibrationDouble {
		t.Fatalf("expected one critical alert, got %+v", first)
	}
	mock.Add(1 * time.Second)
	if got := p.Check(mock.Now(), "cam1", person, cfg); len(got) != 0 {
		t.Fatalf("alert repeated inside cooldown")
	}
	// a different class is not affected
	if got := p.Check(mock.Now(), "cam1", []model.Detection{det("car", 1.5, model.PositionLeft)}, cfg); len(got) != 1 || got[0].Pattern != model.VibrationSingle {
		t.Fatalf("expected warning for car, got %+v", got)
	}
	mock.Add(1900 * time.Millisecond)
	if got := p.Check(mock.Now(), "cam1", person, cfg); len(got) != 0 {
		t.Fatalf("alert repeated at 2.9s")
	}
	mock.Add(100 * time.Millisecond)
	if got := p.Check(mock.Now(), "cam1", person, cfg); len(got) != 1 {
		t.Fatalf("expected alert after cooldown")
	}
}

func TestProximitySameClassOncePerFrame(t *testing.T) {
	cfg := config.DefaultConfig().Alerts
	p := NewProximityMonitor()
	dets := []model.Detection{
		det("person", 0.6, model.PositionCenter),
		det("person", 1.2, model.PositionLeft),
	}
	got := p.Check(time.Unix(100, 0), "cam1", dets, cfg)
	if len(got) != 1 || got[0].Level != model.AlertCritical {
		t.Fatalf("expected only the nearest person to alert, got %+v", got)
	}
}

func TestProximityCooldownPerCamera(t *testing.T) {
	cfg := config.DefaultConfig().Alerts
	p := NewProximityMonitor()
	now := time.Unix(100, 0)
	person := []model.Detection{det("person", 0.8, model.PositionCenter)}

	if got := p.Check(now, "cam1", person, cfg); len(got) != 1 {
		t.Fatalf("expected alert on cam1, got %+v", got)
	}
	got := p.Check(now, "cam2", person, cfg)
	if len(got) != 1 || got[0].CameraID != "cam2" {
		t.Fatalf("expected cam2 to alert on its own, got %+v", got)
	}
	if got := p.Check(now.Add(time.Second), "cam1", person, cfg); len(got) != 0 {
		t.Fatalf("cam1 alert repeated inside cooldown")
	}
}

func TestCooldownPrunesExpiredKeys(t *testing.T) {
	c := NewCooldown()
	start := time.Unix(100, 0)
	for i := 0; i < minSweep; i++ {
		c.Allow(fmt.Sprintf("cam%d|person", i), start, 3*time.Second)
	}
	if c.Len() != minSweep {
		t.Fatalf("expected %d keys, got %d", minSweep, c.Len())
	}
	// one live key inside its cooldown survives the sweep
	later := start.Add(10 * time.Second)
	c.Allow("cam0|person", later, 3*time.Second)
	c.Allow("cam1|car", later.Add(time.Second), 3*time.Second)
	if c.Len() > 2 {
		t.Fatalf("expected expired keys to be pruned, got %d", c.Len())
	}
	if c.Allow("cam0|person", later.Add(time.Second), 3*time.Second) {
		t.Fatalf("live key lost its cooldown during the sweep")
	}
}
