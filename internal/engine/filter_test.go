package engine

import (
	"testing"

	"sightline/internal/config"
	"sightline/internal/model"
)

func det(class string, distance float64, pos model.Position) model.Detection {
	return model.Detection{Class: class, Confidence: 0.9, Distance: distance, Position: pos}
}

func TestDangerAlwaysRetained(t *testing.T) {
	cfg := config.DefaultConfig()
	cfg.Filter.IgnoreClasses = []string{"Potted Plant"}
	rules := buildFilterRules(cfg)
	in := []model.Detection{
		det("potted plant", 1.9, model.PositionLeft),
		det("kite", 1.0, model.PositionRight),
		det("potted plant", 3.0, model.PositionCenter),
	}
	out := FilterRelevant(in, rules)
	if len(out) != 2 {
		t.Fatalf("expected both danger detections, got %+v", out)
	}
	for _, d := range out {
		if d.Priority != model.PriorityHigh {
			t.Fatalf("danger detection should be high priority: %+v", d)
		}
	}
}

func TestFilterRules(t *testing.T) {
	rules := buildFilterRules(config.DefaultConfig())
	in := []model.Detection{
		det("Person", 4.5, model.PositionLeft),
		det("cup", 3.5, model.PositionCenter),
		det("cup", 3.5, model.PositionRight),
		det("car", 5.0, model.PositionRight),
		det("cup", 4.0, model.PositionCenter),
	}
	out := FilterRelevant(in, rules)
	if len(out) != 2 {
		t.Fatalf("expected 2 relevant detections, got %+v", out)
	}
	if out[0].Class != "Person" || out[0].Priority != model.PriorityMedium {
		t.Fatalf("priority class rule not applied: %+v", out[0])
	}
	if out[1].Class != "cup" || out[1].Position != model.PositionCenter {
		t.Fatalf("center rule not applied: %+v", out[1])
	}
}

func TestFilterLimitPreservesOrder(t *testing.T) {
	rules := buildFilterRules(config.DefaultConfig())
	var in []model.Detection
	for i := 0; i < 8; i++ {
		in = append(in, det("person", 0.5+float64(i)*0.2, model.PositionCenter))
	}
	out := FilterRelevant(in, rules)
	if len(out) != 5 {
		t.Fatalf("expected 5 detections, got %d", len(out))
	}
	for i := 1; i < len(out); i++ {
		if out[i].Distance < out[i-1].Distance {
			t.Fatalf("order not preserved: %+v", out)
		}
	}
	if out[0].Distance != 0.5 {
		t.Fatalf("expected nearest first, got %v", out[0].Distance)
	}
}
