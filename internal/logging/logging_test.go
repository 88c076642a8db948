package logging

import (
	"testing"

	"github.com/sirupsen/logrus"
)

func TestNew(t *testing.T) {
	logger, err := New("debug", "json")
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if logger.GetLevel() != logrus.DebugLevel {
		t.Fatalf("level = %s", logger.GetLevel())
	}
	if _, ok := logger.Formatter.(*logrus.JSONFormatter); !ok {
		t.Fatalf("formatter = %T", logger.Formatter)
	}

	if _, err := New("loud", "text"); err == nil {
		t.Fatal("expected error for unknown level")
	}
	if _, err := New("info", "xml"); err == nil {
		t.Fatal("expected error for unknown format")
	}
}

func TestComponent(t *testing.T) {
	entry := Component(nil, "registry")
	if entry.Data["component"] != "registry" {
		t.Fatalf("component field = %v", entry.Data["component"])
	}
}

func TestProgressSamplerBuckets(t *testing.T) {
	s := NewProgressSampler(0)
	steps := []struct {
		percent float64
		stage   string
		want    bool
	}{
		{0, "attempt 1", true},
		{3, "attempt 1", false},
		{5, "attempt 1", true},
		{9.9, "attempt 1", false},
		{27, "attempt 1", true},
		{10, "attempt 1", false},
		{10, "attempt 2", true},
		{12, "attempt 2", false},
		{100, "attempt 2", true},
		{-1, "attempt 2", false},
	}
	for i, step := range steps {
		if got := s.ShouldEmit(step.percent, step.stage); got != step.want {
			t.Errorf("step %d (%v%%, %s): got %v, want %v", i, step.percent, step.stage, got, step.want)
		}
	}

	s.Reset()
	if !s.ShouldEmit(0, "") {
		t.Error("first update after Reset should be emitted")
	}
	var nilSampler *ProgressSampler
	if !nilSampler.ShouldEmit(1, "") {
		t.Error("nil sampler forwards everything")
	}
}
