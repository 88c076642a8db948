package monitor

import (
	"context"
	"errors"
	"testing"
)

func fixed(s Sample) SampleFunc {
	return func(context.Context) (Sample, error) { return s, nil }
}

func TestGetStatsBusy(t *testing.T) {
	tests := []struct {
		name   string
		sample Sample
		busy   bool
	}{
		{"idle", Sample{CPUPercent: 10, RAMPercent: 40}, false},
		{"cpu bound", Sample{CPUPercent: 85, RAMPercent: 40}, true},
		{"memory bound", Sample{CPUPercent: 10, RAMPercent: 95}, true},
		{"at threshold", Sample{CPUPercent: 80, RAMPercent: 90}, false},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			stats, err := NewWithSampler(fixed(tt.sample)).GetStats(context.Background())
			if err != nil {
				t.Fatal(err)
			}
			if stats.IsBusy != tt.busy {
				t.Errorf("IsBusy = %v, want %v", stats.IsBusy, tt.busy)
			}
		})
	}
}

func TestHasHeadroom(t *testing.T) {
	m := NewWithSampler(fixed(Sample{CPUPercent: 20, RAMPercent: 50, RAMAvailableMB: 1024}))
	if ok, _ := m.HasHeadroom(context.Background(), 612); !ok {
		t.Error("expected headroom for 612MB")
	}
	if ok, _ := m.HasHeadroom(context.Background(), 2048); ok {
		t.Error("2048MB should not fit in 1024MB available")
	}

	failing := NewWithSampler(func(context.Context) (Sample, error) { return Sample{}, errors.New("no /proc") })
	if _, err := failing.HasHeadroom(context.Background(), 1); err == nil {
		t.Error("sampler errors should propagate")
	}
}
