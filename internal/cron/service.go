package cron

import (
	"context"
	"fmt"
	"strings"
	"time"

	robfig "github.com/robfig/cron/v3"

	"github.com/angelmondragon/donation-ledger/pkg/logger"
	"github.com/angelmondragon/donation-ledger/pkg/metrics"
)

const defaultSchedule = "0 */6 * * *"

// ServiceParams configure the cron service.
type ServiceParams struct {
	Logger   *logger.Logger
	Registry *Registry
	Lock     Lock
	Metrics  *metrics.CronJobMetrics
	Schedule string
	// RunOnStart triggers one cycle before the first scheduled tick.
	RunOnStart bool
}

// Service executes registered cron jobs on a cron expression.
type Service struct {
	logg       *logger.Logger
	registry   *Registry
	lock       Lock
	metrics    *metrics.CronJobMetrics
	schedule   string
	runOnStart bool
}

// NewService builds a cron service.
func NewService(params ServiceParams) (*Service, error) {
	if params.Logger == nil {
		return nil, fmt.Errorf("logger required")
	}
	if params.Lock == nil {
		return nil, fmt.Errorf("lock required")
	}
	registry := params.Registry
	if registry == nil {
		registry = &Registry{}
	}
	schedule := strings.TrimSpace(params.Schedule)
	if schedule == "" {
		schedule = defaultSchedule
	}
	if _, err := robfig.ParseStandard(schedule); err != nil {
		return nil, fmt.Errorf("parse schedule %q: %w", schedule, err)
	}
	return &Service{
		logg:       params.Logger,
		registry:   registry,
		lock:       params.Lock,
		metrics:    params.Metrics,
		schedule:   schedule,
		runOnStart: params.RunOnStart,
	}, nil
}

// Run schedules the job cycle and blocks until the context is canceled.
func (s *Service) Run(ctx context.Context) error {
	if ctx == nil {
		ctx = context.Background()
	}
	c := robfig.New(
		robfig.WithLocation(time.UTC),
		robfig.WithChain(robfig.Recover(cronLogger{logg: s.logg, ctx: ctx}), robfig.SkipIfStillRunning(cronLogger{logg: s.logg, ctx: ctx})),
	)
	if _, err := c.AddFunc(s.schedule, func() {
		if err := s.runCycle(ctx); err != nil {
			s.logg.Error(ctx, "scheduled run failed", err)
		}
	}); err != nil {
		return fmt.Errorf("schedule cron cycle: %w", err)
	}

	if s.runOnStart {
		if err := s.runCycle(ctx); err != nil {
			s.logg.Error(ctx, "scheduled run failed", err)
		}
	}

	c.Start()
	s.logg.Info(s.logg.WithFields(ctx, map[string]any{
		"schedule": s.schedule,
		"jobs":     s.registry.Names(),
	}), "cron scheduler started")

	<-ctx.Done()
	s.logg.Info(ctx, "cron service context canceled")
	<-c.Stop().Done()
	return ctx.Err()
}

func (s *Service) runCycle(ctx context.Context) error {
	locked, err := s.lock.Acquire(ctx)
	if err != nil {
		return fmt.Errorf("lock acquire: %w", err)
	}
	if !locked {
		s.metrics.CycleSkipped()
		s.logg.Info(ctx, "another cron instance is running; skipping this cycle")
		return nil
	}

	cycleCtx, cancel := context.WithCancel(ctx)
	heartbeat := make(chan struct{})
	go func() {
		defer close(heartbeat)
		s.keepAlive(cycleCtx, cancel)
	}()
	defer func() {
		cancel()
		<-heartbeat
		releaseCtx, done := context.WithTimeout(context.WithoutCancel(ctx), 5*time.Second)
		defer done()
		if relErr := s.lock.Release(releaseCtx); relErr != nil {
			s.logg.Error(ctx, "failed to release cron lock", relErr)
		}
	}()

	s.logg.Info(ctx, "scheduled run starting")
	for _, job := range s.registry.Jobs() {
		if cycleCtx.Err() != nil {
			break
		}
		s.runJob(cycleCtx, job)
	}
	s.logg.Info(ctx, "scheduled run complete")
	return nil
}

// keepAlive renews the lease every third of its TTL. Losing the lease
// cancels the running cycle so two workers never sync at once.
func (s *Service) keepAlive(ctx context.Context, cancel context.CancelFunc) {
	every := s.lock.TTL() / 3
	if every <= 0 {
		return
	}
	ticker := time.NewTicker(every)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			err := s.lock.Extend(ctx)
			if err == nil || ctx.Err() != nil {
				continue
			}
			s.logg.Error(ctx, "cron lock renewal failed; stopping cycle", err)
			cancel()
			return
		}
	}
}

func (s *Service) runJob(ctx context.Context, job Job) {
	jobCtx := s.logg.WithField(ctx, "job", job.Name())
	jobCtx = s.logg.WithField(jobCtx, "event", "cron.job")
	s.logg.Info(jobCtx, "job start")
	start := time.Now()
	err := job.Run(jobCtx)
	end := time.Now()
	duration := end.Sub(start)
	s.metrics.ObserveRun(job.Name(), duration, end, err)
	jobCtx = s.logg.WithField(jobCtx, "duration_ms", duration.Milliseconds())
	if err != nil {
		s.logg.Error(jobCtx, "job failed", err)
		return
	}
	s.logg.Info(jobCtx, "job completed")
}

// cronLogger routes scheduler diagnostics into the service logger.
type cronLogger struct {
	logg *logger.Logger
	ctx  context.Context
}

func (l cronLogger) Info(msg string, keysAndValues ...interface{}) {
	l.logg.Info(l.logg.WithFields(l.ctx, pairs(keysAndValues)), msg)
}

func (l cronLogger) Error(err error, msg string, keysAndValues ...interface{}) {
	l.logg.Error(l.logg.WithFields(l.ctx, pairs(keysAndValues)), msg, err)
}

func pairs(kv []interface{}) map[string]any {
	out := make(map[string]any, len(kv)/2)
	for i := 0; i+1 < len(kv); i += 2 {
		out[fmt.Sprint(kv[i])] = kv[i+1]
	}
	return out
}
