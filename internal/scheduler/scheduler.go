package scheduler

import (
	"context"
	"fmt"
	"log"
	"sync"
	"time"
)

// ScheduleTime is a wall-clock time of day at which digest jobs run.
type ScheduleTime struct {
	Hour   int
	Minute int
}

// String returns the time in HH:MM format.
func (st ScheduleTime) String() string {
	return fmt.Sprintf("%02d:%02d", st.Hour, st.Minute)
}

// ParseScheduleTime parses a time string in HH:MM format.
func ParseScheduleTime(s string) (ScheduleTime, error) {
	var hour, minute int
	_, err := fmt.Sscanf(s, "%d:%d", &hour, &minute)
	if err != nil {
		return ScheduleTime{}, fmt.Errorf("invalid time format (expected HH:MM): %w", err)
	}

	if hour < 0 || hour > 23 {
		return ScheduleTime{}, fmt.Errorf("invalid hour: %d (must be 0-23)", hour)
	}
	if minute < 0 || minute > 59 {
		return ScheduleTime{}, fmt.Errorf("invalid minute: %d (must be 0-59)", minute)
	}

	return ScheduleTime{Hour: hour, Minute: minute}, nil
}

// JobProvider builds the job batch for one triggered run. It receives
// the trigger time so providers can decide which jobs are due on that
// day (weekly digests only fire on their weekday, for example).
type JobProvider func(ctx context.Context, now time.Time) ([]Job, error)

// Scheduler fires the job provider at configured times of day and feeds
// the resulting jobs to a worker pool.
type Scheduler struct {
	workerPool    *WorkerPool
	scheduleTimes []ScheduleTime
	runOnStartup  bool
	jobProvider   JobProvider

	ctx    context.Context
	cancel context.CancelFunc
	wg     sync.WaitGroup

	// lastRun dedups triggers within the same minute.
	lastRun string
	mu      sync.Mutex
}

// SchedulerConfig holds configuration for the scheduler.
type SchedulerConfig struct {
	ScheduleTimes []string
	WorkerCount   int
	JobDelay      time.Duration
	QueueSize     int
	RunOnStartup  bool
	JobProvider   JobProvider
}

// NewScheduler creates a scheduler from the given configuration. At
// least one schedule time is required.
func NewScheduler(config SchedulerConfig) (*Scheduler, error) {
	scheduleTimes := make([]ScheduleTime, 0, len(config.ScheduleTimes))
	for _, timeStr := range config.ScheduleTimes {
		st, err := ParseScheduleTime(timeStr)
		if err != nil {
			return nil, fmt.Errorf("failed to parse schedule time %q: %w", timeStr, err)
		}
		scheduleTimes = append(scheduleTimes, st)
	}

	if len(scheduleTimes) == 0 {
		return nil, fmt.Errorf("at least one schedule time is required")
	}

	ctx, cancel := context.WithCancel(context.Background())

	log.Printf("Scheduler configured for %v with %d workers (%v delay between jobs)",
		config.ScheduleTimes, config.WorkerCount, config.JobDelay)

	return &Scheduler{
		workerPool:    NewWorkerPool(config.WorkerCount, config.JobDelay, config.QueueSize),
		scheduleTimes: scheduleTimes,
		runOnStartup:  config.RunOnStartup,
		jobProvider:   config.JobProvider,
		ctx:           ctx,
		cancel:        cancel,
	}, nil
}

// Start launches the worker pool and the scheduling loop. When
// RunOnStartup is set, one job batch is triggered immediately.
func (s *Scheduler) Start() {
	s.workerPool.Start()

	if s.runOnStartup {
		log.Println("Scheduler: running startup job batch")
		s.wg.Add(1)
		go func() {
			defer s.wg.Done()
			s.runJobs(time.Now())
		}()
	}

	s.wg.Add(1)
	go s.scheduleLoop()

	log.Println("Scheduler started")
}

func (s *Scheduler) scheduleLoop() {
	defer s.wg.Done()

	ticker := time.NewTicker(1 * time.Minute)
	defer ticker.Stop()

	for {
		select {
		case <-s.ctx.Done():
			log.Println("Scheduler: loop stopping")
			return

		case now := <-ticker.C:
			if s.shouldRun(now) {
				log.Printf("Scheduler: triggered at %s", now.Format("15:04"))
				s.runJobs(now)
			}
		}
	}
}

// shouldRun reports whether now matches a configured schedule time that
// has not already fired this minute.
func (s *Scheduler) shouldRun(now time.Time) bool {
	key := now.Format("2006-01-02-15:04")

	s.mu.Lock()
	defer s.mu.Unlock()

	if s.lastRun == key {
		return false
	}

	for _, st := range s.scheduleTimes {
		if now.Hour() == st.Hour && now.Minute() == st.Minute {
			s.lastRun = key
			return true
		}
	}

	return false
}

// runJobs asks the provider for the batch due at the trigger time and
// hands it to the worker pool.
func (s *Scheduler) runJobs(now time.Time) {
	if s.jobProvider == nil {
		log.Println("Scheduler: no job provider configured")
		return
	}

	ctx, cancel := context.WithTimeout(s.ctx, 5*time.Minute)
	defer cancel()

	jobs, err := s.jobProvider(ctx, now)
	if err != nil {
		log.Printf("Scheduler: failed to build job batch: %v", err)
		return
	}

	if len(jobs) == 0 {
		log.Println("Scheduler: no jobs due")
		return
	}

	log.Printf("Scheduler: submitting %d job(s) to worker pool", len(jobs))
	s.workerPool.SubmitBatch(jobs)
}

// NextRun returns the next time the scheduler will trigger.
func (s *Scheduler) NextRun() time.Time {
	now := time.Now()

	for _, st := range s.scheduleTimes {
		at := time.Date(now.Year(), now.Month(), now.Day(), st.Hour, st.Minute, 0, 0, now.Location())
		if at.After(now) {
			return at
		}
	}

	st := s.scheduleTimes[0]
	tomorrow := now.AddDate(0, 0, 1)
	return time.Date(tomorrow.Year(), tomorrow.Month(), tomorrow.Day(), st.Hour, st.Minute, 0, 0, now.Location())
}

// Shutdown stops the scheduling loop and drains the worker pool,
// waiting up to timeout for each.
func (s *Scheduler) Shutdown(timeout time.Duration) {
	s.cancel()

	done := make(chan struct{})
	go func() {
		s.wg.Wait()
		close(done)
	}()

	select {
	case <-done:
	case <-time.After(timeout):
		log.Println("Scheduler: timed out waiting for scheduling loop")
	}

	s.workerPool.ShutdownWithTimeout(timeout)

	log.Println("Scheduler: shutdown complete")
}
