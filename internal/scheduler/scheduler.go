// Package scheduler runs the background sweeps that keep transmission
// lifecycles moving without inbound traffic: deadline expiry, stuck
// submission recovery and outbox dispatch.
package scheduler

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/bwmarrin/snowflake"
	"go.uber.org/fx"
	"go.uber.org/zap"

	"github.com/smallbiznis/scambio/internal/clock"
	"github.com/smallbiznis/scambio/internal/events"
	obsmetrics "github.com/smallbiznis/scambio/internal/observability/metrics"
	transmissiondomain "github.com/smallbiznis/scambio/internal/transmission/domain"
)

var ErrInvalidConfig = errors.New("invalid_scheduler_config")

type Params struct {
	fx.In

	Log             *zap.Logger
	TransmissionSvc transmissiondomain.Service
	Dispatcher      *events.Dispatcher
	GenID           *snowflake.Node
	Clock           clock.Clock
	Config          Config `optional:"true"`
}

type Scheduler struct {
	log             *zap.Logger
	cfg             Config
	genID           *snowflake.Node
	clock           clock.Clock
	transmissionSvc transmissiondomain.Service
	dispatcher      *events.Dispatcher
}

func New(p Params) (*Scheduler, error) {
	if p.Log == nil || p.TransmissionSvc == nil || p.Dispatcher == nil || p.GenID == nil || p.Clock == nil {
		return nil, ErrInvalidConfig
	}
	cfg := p.Config.withDefaults()
	return &Scheduler{
		log:             p.Log.Named("scheduler").With(zap.String("component", "scheduler")),
		cfg:             cfg,
		genID:           p.GenID,
		clock:           p.Clock,
		transmissionSvc: p.TransmissionSvc,
		dispatcher:      p.Dispatcher,
	}, nil
}

func (s *Scheduler) runJob(
	parent context.Context,
	name string,
	batchSize int,
	timeout time.Duration,
	fn func(ctx context.Context) error,
) error {
	start := s.clock.Now()
	ctx, cancel := context.WithTimeout(parent, timeout)
	defer cancel()

	ctx, run, owner := s.ensureJobRun(ctx, name, batchSize)
	if owner {
		s.logJobStart(ctx, run)
	}
	log := s.logger(ctx).With(
		zap.String("job", name),
		zap.String("run_id", run.runID),
	)
	sweepMetrics := obsmetrics.Sweep()
	sweepMetrics.IncJobRun(name)

	err := fn(ctx)
	sweepMetrics.ObserveJobDuration(name, time.Since(start))
	if owner {
		if err != nil && run.errorCount == 0 {
			run.IncError()
		}
		s.logJobFinish(ctx, run)
	}
	if err == nil {
		return nil
	}

	// A deadline hit is a soft stop; the next tick picks the sweep back up.
	isTimeout := errors.Is(err, context.DeadlineExceeded) || errors.Is(err, context.Canceled)
	if isTimeout {
		sweepMetrics.IncJobTimeout(name)
	}
	sweepMetrics.IncJobError(name, err)
	if isTimeout {
		log.Warn("job timed out",
			zap.Duration("timeout", timeout),
			zap.Error(err),
		)
		return nil
	}

	return fmt.Errorf("%s: %w", name, err)
}

func (s *Scheduler) RunOnce(parent context.Context) error {
	var err error

	jobs := []struct {
		Name    string
		Enabled bool
		Run     func(context.Context) error
	}{
		{"expiry_sweep", s.isJobEnabled("expiry_sweep"), func(ctx context.Context) error {
			return s.runJob(ctx, "expiry_sweep", s.cfg.ExpiryBatchSize, 30*time.Second, s.ExpirySweepJob)
		}},
		{"recovery_sweep", s.isJobEnabled("recovery_sweep"), func(ctx context.Context) error {
			return s.runJob(ctx, "recovery_sweep", s.cfg.RecoveryBatchSize, 30*time.Second, s.RecoverySweepJob)
		}},
		{"outbox_dispatch", s.isJobEnabled("outbox_dispatch"), func(ctx context.Context) error {
			return s.runJob(ctx, "outbox_dispatch", s.cfg.OutboxBatchSize, 30*time.Second, s.OutboxDispatchJob)
		}},
	}

	for _, job := range jobs {
		if job.Enabled {
			err = errors.Join(err, job.Run(parent))
		}
	}

	return err
}

func (s *Scheduler) RunForever(ctx context.Context) {
	ticker := time.NewTicker(s.cfg.RunInterval)
	defer ticker.Stop()
	nextRun := s.clock.Now().Add(s.cfg.RunInterval)
	sweepMetrics := obsmetrics.Sweep()

	for {
		runLag := time.Since(nextRun)
		if runLag > 0 {
			sweepMetrics.ObserveRunLoopLag(runLag)
		}
		if err := s.RunOnce(ctx); err != nil {
			s.log.Warn("scheduler run failed", zap.Error(err))
		}
		nextRun = nextRun.Add(s.cfg.RunInterval)

		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
		}
	}
}

func (s *Scheduler) isJobEnabled(jobName string) bool {
	// Empty EnabledJobs means every job runs (monolith mode).
	if len(s.cfg.EnabledJobs) == 0 {
		return true
	}
	for _, enabled := range s.cfg.EnabledJobs {
		if strings.EqualFold(enabled, jobName) {
			return true
		}
	}
	return false
}

// ExpirySweepJob moves delivered transmissions whose outcome window has
// elapsed to EXPIRED. It drains full batches until a short batch
// signals there is no more work.
func (s *Scheduler) ExpirySweepJob(ctx context.Context) error {
	ctx, run, _ := s.ensureJobRun(ctx, "expiry_sweep", s.cfg.ExpiryBatchSize)
	sweepMetrics := obsmetrics.Sweep()
	for {
		moved, err := s.transmissionSvc.ExpireOverdue(ctx, s.cfg.ExpiryBatchSize)
		if moved > 0 {
			run.AddProcessed(moved)
			sweepMetrics.AddBatchProcessed("expiry_sweep", obsmetrics.LockResourceTransmissionsForExpiry, moved)
		}
		if err != nil {
			return err
		}
		if moved < s.cfg.ExpiryBatchSize {
			return nil
		}
	}
}

// RecoverySweepJob returns transmissions stranded in SUBMITTING by an
// interrupted submit to FAILED_DELIVERY so they become retryable.
func (s *Scheduler) RecoverySweepJob(ctx context.Context) error {
	ctx, run, _ := s.ensureJobRun(ctx, "recovery_sweep", s.cfg.RecoveryBatchSize)
	sweepMetrics := obsmetrics.Sweep()
	for {
		recovered, err := s.transmissionSvc.RecoverStuck(ctx, s.cfg.RecoveryThreshold, s.cfg.RecoveryBatchSize)
		if recovered > 0 {
			run.AddProcessed(recovered)
			sweepMetrics.AddBatchProcessed("recovery_sweep", obsmetrics.LockResourceTransmissionsForRecovery, recovered)
		}
		if err != nil {
			return err
		}
		if recovered < s.cfg.RecoveryBatchSize {
			return nil
		}
	}
}

// OutboxDispatchJob drains unpublished outbox events to the sink.
func (s *Scheduler) OutboxDispatchJob(ctx context.Context) error {
	return s.dispatcher.ProcessPending(ctx, s.cfg.OutboxBatchSize)
}
