package scheduler

import (
	"context"
	"errors"
	"testing"
	"time"
)

func TestParseScheduleTime(t *testing.T) {
	tests := []struct {
		input   string
		want    ScheduleTime
		wantErr bool
	}{
		{input: "06:00", want: ScheduleTime{Hour: 6, Minute: 0}},
		{input: "23:59", want: ScheduleTime{Hour: 23, Minute: 59}},
		{input: "0:5", want: ScheduleTime{Hour: 0, Minute: 5}},
		{input: "24:00", wantErr: true},
		{input: "12:60", wantErr: true},
		{input: "noon", wantErr: true},
	}

	for _, tt := range tests {
		t.Run(tt.input, func(t *testing.T) {
			got, err := ParseScheduleTime(tt.input)
			if tt.wantErr {
				if err == nil {
					t.Errorf("ParseScheduleTime(%q) expected error", tt.input)
				}
				return
			}
			if err != nil {
				t.Fatalf("ParseScheduleTime(%q) error: %v", tt.input, err)
			}
			if got != tt.want {
				t.Errorf("ParseScheduleTime(%q) = %+v, want %+v", tt.input, got, tt.want)
			}
		})
	}
}

func TestSchedulerShouldRunOncePerMinute(t *testing.T) {
	s, err := NewScheduler(SchedulerConfig{
		ScheduleTimes: []string{"06:00"},
		WorkerCount:   1,
		QueueSize:     1,
	})
	if err != nil {
		t.Fatalf("NewScheduler() error: %v", err)
	}

	at := time.Date(2026, 8, 29, 6, 0, 30, 0, time.UTC)
	if !s.shouldRun(at) {
		t.Error("shouldRun() should trigger at the scheduled minute")
	}
	if s.shouldRun(at.Add(10 * time.Second)) {
		t.Error("shouldRun() must not trigger twice in the same minute")
	}
	if s.shouldRun(at.Add(time.Hour)) {
		t.Error("shouldRun() must not trigger outside scheduled times")
	}
	if !s.shouldRun(at.Add(24 * time.Hour)) {
		t.Error("shouldRun() should trigger again the next day")
	}
}

func TestSchedulerRunJobsPassesTriggerTime(t *testing.T) {
	var gotNow time.Time
	trigger := time.Date(2026, 8, 31, 6, 0, 0, 0, time.UTC)

	s, err := NewScheduler(SchedulerConfig{
		ScheduleTimes: []string{"06:00"},
		WorkerCount:   1,
		QueueSize:     4,
		JobProvider: func(ctx context.Context, now time.Time) ([]Job, error) {
			gotNow = now
			return nil, nil
		},
	})
	if err != nil {
		t.Fatalf("NewScheduler() error: %v", err)
	}

	s.runJobs(trigger)
	if !gotNow.Equal(trigger) {
		t.Errorf("job provider received %v, want the trigger time %v", gotNow, trigger)
	}
}

func TestNewSchedulerRejectsBadConfig(t *testing.T) {
	if _, err := NewScheduler(SchedulerConfig{ScheduleTimes: []string{"25:00"}}); err == nil {
		t.Error("NewScheduler() should reject invalid schedule times")
	}
	if _, err := NewScheduler(SchedulerConfig{}); err == nil {
		t.Error("NewScheduler() should require at least one schedule time")
	}
}

type mockDigestSender struct {
	SendDigestsFunc func(ctx context.Context, frequencyKey string, dryRun bool) (int, error)
}

func (m *mockDigestSender) SendDigests(ctx context.Context, frequencyKey string, dryRun bool) (int, error) {
	if m.SendDigestsFunc != nil {
		return m.SendDigestsFunc(ctx, frequencyKey, dryRun)
	}
	return 0, nil
}

func TestDigestJob(t *testing.T) {
	var gotFrequency string
	var gotDryRun bool
	sender := &mockDigestSender{
		SendDigestsFunc: func(ctx context.Context, frequencyKey string, dryRun bool) (int, error) {
			gotFrequency = frequencyKey
			gotDryRun = dryRun
			return 3, nil
		},
	}

	job := NewDigestJob(sender, "daily")
	if job.Name() != "daily" {
		t.Errorf("Name() = %q", job.Name())
	}

	if err := job.Execute(context.Background()); err != nil {
		t.Fatalf("Execute() error: %v", err)
	}
	if gotFrequency != "daily" || gotDryRun {
		t.Errorf("Execute() called SendDigests(%q, dryRun=%v)", gotFrequency, gotDryRun)
	}
}

func TestDigestJobError(t *testing.T) {
	sender := &mockDigestSender{
		SendDigestsFunc: func(ctx context.Context, frequencyKey string, dryRun bool) (int, error) {
			return 0, errors.New("smtp down")
		},
	}

	if err := NewDigestJob(sender, "weekly").Execute(context.Background()); err == nil {
		t.Error("Execute() should propagate send errors")
	}
}
