package engine

import (
	"testing"
	"time"

	clk "github.com/benbjohnson/clock"

	"sightline/internal/model"
)

func TestThrottleInterval(t *testing.T) {
	mock := clk.NewMock()
	var th DescriptionThrottle
	far := []model.Detection{det("person", 3.0, model.PositionCenter)}

	if emit, urgent := th.Decide(mock.Now(), far, 2.0, 2*time.Second); !emit || urgent {
		t.Fatalf("first description should be emitted")
	}
	mock.Add(1500 * time.Millisecond)
	if emit, _ := th.Decide(mock.Now(), far, 2.0, 2*time.Second); emit {
		t.Fatalf("description inside interval")
	}
	mock.Add(500 * time.Millisecond)
	if emit, _ := th.Decide(mock.Now(), far, 2.0, 2*time.Second); !emit {
		t.Fatalf("expected description once the interval elapsed")
	}
}

func TestThrottleDangerBypass(t *testing.T) {
	mock := clk.NewMock()
	var th DescriptionThrottle
	far := []model.Detection{det("person", 3.0, model.PositionCenter)}
	near := []model.Detection{det("door", 1.9, model.PositionCenter)}

	th.Decide(mock.Now(), far, 2.0, 2*time.Second)
	mock.Add(100 * time.Millisecond)
	if emit, urgent := th.Decide(mock.Now(), near, 2.0, 2*time.Second); !emit || !urgent {
		t.Fatalf("danger must bypass the interval")
	}
	// the bypass resets the timer
	mock.Add(1 * time.Second)
	if emit, _ := th.Decide(mock.Now(), far, 2.0, 2*time.Second); emit {
		t.Fatalf("timer should have been reset by the urgent description")
	}
}
