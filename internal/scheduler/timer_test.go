package scheduler

import (
	"errors"
	"sync/atomic"
	"testing"
	"time"

	"insight-report/internal/config"
)

func TestFixedRateScheduler_RunsAndStops(t *testing.T) {
	var runs atomic.Int32
	s := NewFixedRateScheduler(10*time.Millisecond, true)

	if err := s.Start(func() error {
		runs.Add(1)
		return errors.New("ignored")
	}); err != nil {
		t.Fatalf("Start() error = %v", err)
	}

	deadline := time.Now().Add(2 * time.Second)
	for runs.Load() < 3 && time.Now().Before(deadline) {
		time.Sleep(5 * time.Millisecond)
	}
	if err := s.Stop(); err != nil {
		t.Fatalf("Stop() error = %v", err)
	}
	if got := runs.Load(); got < 3 {
		t.Fatalf("expected at least 3 runs, got %d", got)
	}

	after := runs.Load()
	time.Sleep(30 * time.Millisecond)
	if runs.Load() != after {
		t.Error("task ran after Stop")
	}
	// Stop is idempotent
	if err := s.Stop(); err != nil {
		t.Errorf("second Stop() error = %v", err)
	}
}

func TestFixedRateScheduler_RejectsZeroInterval(t *testing.T) {
	if err := NewFixedRateScheduler(0, false).Start(func() error { return nil }); err == nil {
		t.Error("expected error for zero interval")
	}
}

func TestNewScheduler(t *testing.T) {
	tests := []struct {
		name    string
		cfg     config.TriggerConfig
		wantErr bool
		isCron  bool
	}{
		{"interval", config.TriggerConfig{Interval: "30m"}, false, false},
		{"cron wins over interval", config.TriggerConfig{Interval: "30m", Cron: "0 0 * * * *"}, false, true},
		{"invalid cron", config.TriggerConfig{Cron: "every day"}, true, false},
		{"invalid interval", config.TriggerConfig{Interval: "soon"}, true, false},
		{"nothing configured", config.TriggerConfig{}, true, false},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			s, err := NewScheduler(tt.cfg)
			if (err != nil) != tt.wantErr {
				t.Fatalf("NewScheduler() error = %v, wantErr %v", err, tt.wantErr)
			}
			if err != nil {
				return
			}
			_, isCron := s.(*CronScheduler)
			if isCron != tt.isCron {
				t.Errorf("cron scheduler = %v, want %v", isCron, tt.isCron)
			}
		})
	}
}

func TestCronScheduler_RunOnStart(t *testing.T) {
	s, err := NewCronScheduler("0 0 0 1 1 *", true)
	if err != nil {
		t.Fatalf("NewCronScheduler() error = %v", err)
	}

	ran := make(chan struct{}, 1)
	if err := s.Start(func() error {
		ran <- struct{}{}
		return nil
	}); err != nil {
		t.Fatalf("Start() error = %v", err)
	}
	defer s.Stop()

	select {
	case <-ran:
	case <-time.After(2 * time.Second):
		t.Fatal("task did not run on start")
	}
	if s.Next().IsZero() {
		t.Error("expected a next run time")
	}
}
