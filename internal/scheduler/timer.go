package scheduler

import (
	"fmt"
	"sync"
	"time"

	"github.com/robfig/cron/v3"

	"insight-report/internal/config"
	"insight-report/internal/logger"
)

// Task is one scheduled run. Errors are logged, never fatal to the schedule.
type Task func() error

type Scheduler interface {
	Start(task Task) error
	Stop() error
}

type FixedRateScheduler struct {
	interval   time.Duration
	runOnStart bool
	ticker     *time.Ticker
	done       chan struct{}
	stopOnce   sync.Once
	wg         sync.WaitGroup
}

func NewFixedRateScheduler(interval time.Duration, runOnStart bool) *FixedRateScheduler {
	return &FixedRateScheduler{
		interval:   interval,
		runOnStart: runOnStart,
		done:       make(chan struct{}),
	}
}

func (s *FixedRateScheduler) Start(task Task) error {
	if s.interval <= 0 {
		return fmt.Errorf("interval must be positive, got %s", s.interval)
	}
	s.ticker = time.NewTicker(s.interval)

	s.wg.Add(1)
	go func() {
		defer s.wg.Done()
		if s.runOnStart {
			run(task)
		}
		for {
			select {
			case <-s.ticker.C:
				run(task)
			case <-s.done:
				return
			}
		}
	}()

	return nil
}

// Stop halts the ticker and waits for an in-flight run to return.
func (s *FixedRateScheduler) Stop() error {
	s.stopOnce.Do(func() {
		if s.ticker != nil {
			s.ticker.Stop()
		}
		close(s.done)
	})
	s.wg.Wait()
	return nil
}

type CronScheduler struct {
	spec       string
	runOnStart bool
	cron       *cron.Cron
	entry      cron.EntryID
}

// NewCronScheduler accepts six-field specs (with seconds). Overlapping runs
// are skipped rather than queued.
func NewCronScheduler(spec string, runOnStart bool) (*CronScheduler, error) {
	if _, err := cron.NewParser(cron.Second | cron.Minute | cron.Hour | cron.Dom | cron.Month | cron.Dow | cron.Descriptor).Parse(spec); err != nil {
		return nil, fmt.Errorf("invalid cron spec %q: %w", spec, err)
	}

	log := cronLogger{}
	c := cron.New(
		cron.WithSeconds(),
		cron.WithLogger(log),
		cron.WithChain(cron.Recover(log), cron.SkipIfStillRunning(log)),
	)
	return &CronScheduler{
		spec:       spec,
		runOnStart: runOnStart,
		cron:       c,
	}, nil
}

func (s *CronScheduler) Start(task Task) error {
	entryID, err := s.cron.AddFunc(s.spec, func() { run(task) })
	if err != nil {
		return fmt.Errorf("invalid cron spec: %w", err)
	}

	s.entry = entryID
	s.cron.Start()
	if s.runOnStart {
		go s.cron.Entry(entryID).WrappedJob.Run()
	}
	return nil
}

// Next returns the next scheduled run time.
func (s *CronScheduler) Next() time.Time {
	return s.cron.Entry(s.entry).Next
}

// Stop halts the schedule and waits for a running job to finish.
func (s *CronScheduler) Stop() error {
	if s.cron != nil {
		<-s.cron.Stop().Done()
	}
	return nil
}

// NewScheduler picks a cron schedule when one is configured, otherwise a
// fixed interval.
func NewScheduler(cfg config.TriggerConfig) (Scheduler, error) {
	if cfg.Cron != "" {
		return NewCronScheduler(cfg.Cron, cfg.RunOnStart)
	}

	if cfg.Interval != "" {
		duration, err := time.ParseDuration(cfg.Interval)
		if err != nil {
			return nil, fmt.Errorf("invalid interval: %w", err)
		}
		return NewFixedRateScheduler(duration, cfg.RunOnStart), nil
	}

	return nil, fmt.Errorf("either interval or cron must be specified")
}

func run(task Task) {
	if err := task(); err != nil {
		logger.GetLogger().Errorf("Scheduled task execution failed: %v", err)
	}
}

// cronLogger routes cron's internal logging to logrus.
type cronLogger struct{}

func (cronLogger) Info(msg string, keysAndValues ...interface{}) {
	logger.GetLogger().WithFields(fields(keysAndValues)).Debug("cron: " + msg)
}

func (cronLogger) Error(err error, msg string, keysAndValues ...interface{}) {
	logger.GetLogger().WithFields(fields(keysAndValues)).WithError(err).Error("cron: " + msg)
}

func fields(keysAndValues []interface{}) map[string]interface{} {
	out := make(map[string]interface{}, len(keysAndValues)/2)
	for i := 0; i+1 < len(keysAndValues); i += 2 {
		out[fmt.Sprint(keysAndValues[i])] = keysAndValues[i+1]
	}
	return out
}
