package scheduler

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/bwmarrin/snowflake"
	"github.com/smallbiznis/pledgesync/internal/clock"
	"github.com/smallbiznis/pledgesync/internal/importer"
	obsmetrics "github.com/smallbiznis/pledgesync/internal/observability/metrics"
	ppdomain "github.com/smallbiznis/pledgesync/internal/paymentprovider/domain"
	"github.com/smallbiznis/pledgesync/internal/ratelimit"
	recurringdomain "github.com/smallbiznis/pledgesync/internal/recurring/domain"
	"github.com/smallbiznis/pledgesync/internal/scheduler/guard"
	"go.uber.org/fx"
	"go.uber.org/zap"
)

const (
	JobAbandonedSweep = "abandoned_sweep"
	JobImport         = "import"
)

var ErrInvalidConfig = errors.New("invalid_scheduler_config")

type Params struct {
	fx.In

	Log       *zap.Logger
	GenID     *snowflake.Node
	Clock     clock.Clock
	Recurring recurringdomain.Service
	Importer  *importer.Importer     `optional:"true"`
	Locker    *ratelimit.Locker      `optional:"true"`
	Metrics   *obsmetrics.JobMetrics `optional:"true"`
	Config    Config                 `optional:"true"`
}

type Scheduler struct {
	log       *zap.Logger
	cfg       Config
	genID     *snowflake.Node
	clock     clock.Clock
	recurring recurringdomain.Service
	importer  *importer.Importer
	locker    *ratelimit.Locker
	metrics   *obsmetrics.JobMetrics
}

// SweepResult lists the recurring contributions a sweep moved to Failed.
type SweepResult struct {
	Cutoff      time.Time      `json:"cutoff"`
	AffectedIDs []snowflake.ID `json:"affected_ids"`
}

func New(p Params) (*Scheduler, error) {
	if p.Log == nil || p.GenID == nil || p.Clock == nil || p.Recurring == nil {
		return nil, ErrInvalidConfig
	}
	metrics := p.Metrics
	if metrics == nil {
		metrics = obsmetrics.Jobs()
	}
	return &Scheduler{
		log:       p.Log.Named("scheduler").With(zap.String("component", "scheduler")),
		cfg:       p.Config.withDefaults(),
		genID:     p.GenID,
		clock:     p.Clock,
		recurring: p.Recurring,
		importer:  p.Importer,
		locker:    p.Locker,
		metrics:   metrics,
	}, nil
}

func (s *Scheduler) runJob(
	parent context.Context,
	name string,
	timeout time.Duration,
	fn func(ctx context.Context) error,
) error {
	start := time.Now()
	ctx := parent
	if timeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(parent, timeout)
		defer cancel()
	}

	ctx, run, owner := s.ensureJobRun(ctx, name)
	if owner {
		s.logJobStart(ctx, run)
	}
	s.metrics.IncJobRun(name)

	err := fn(ctx)
	s.metrics.ObserveJobDuration(name, time.Since(start))
	if owner {
		if err != nil && run.errorCount == 0 {
			run.IncError()
		}
		s.logJobFinish(ctx, run)
	}
	if err == nil {
		return nil
	}

	s.metrics.IncJobError(name, err)
	// A deadline inside the job is a soft timeout; the next tick resumes.
	if errors.Is(err, context.DeadlineExceeded) && parent.Err() == nil {
		s.metrics.IncJobTimeout(name)
		s.logger(ctx).Warn("job timed out",
			zap.Duration("timeout", timeout),
			zap.Error(err),
		)
		return nil
	}
	return fmt.Errorf("%s: %w", name, err)
}

// AbandonedSweep fails every GoCardless recurring contribution that has
// sat in Pending, untouched, for longer than timeoutHours. Records touched
// exactly at the cutoff are kept.
func (s *Scheduler) AbandonedSweep(ctx context.Context, timeoutHours float64) ([]snowflake.ID, error) {
	cutoff, err := guard.SweepCutoff(s.clock.Now(), timeoutHours)
	if err != nil {
		return nil, err
	}
	return s.recurring.SweepAbandoned(ctx, ppdomain.ProviderGoCardless, cutoff)
}

// RunAbandonedSweep is AbandonedSweep under the job lock, with metrics and
// job logging. A zero timeoutHours uses the configured default.
func (s *Scheduler) RunAbandonedSweep(ctx context.Context, timeoutHours float64) (SweepResult, error) {
	if timeoutHours == 0 {
		timeoutHours = s.cfg.SweepTimeoutHours
	}
	result := SweepResult{AffectedIDs: []snowflake.ID{}}
	cutoff, err := guard.SweepCutoff(s.clock.Now(), timeoutHours)
	if err != nil {
		return result, err
	}
	result.Cutoff = cutoff

	err = s.locker.WithJobLock(ctx, JobAbandonedSweep, ppdomain.ProviderGoCardless, func(ctx context.Context) error {
		return s.runJob(ctx, JobAbandonedSweep, s.cfg.SweepJobTimeout, func(ctx context.Context) error {
			ids, err := s.AbandonedSweep(ctx, timeoutHours)
			result.AffectedIDs = append(result.AffectedIDs, ids...)
			run := jobRunFromContext(ctx)
			run.AddProcessed(len(ids))
			s.metrics.AddSwept(len(ids))
			if len(ids) > 0 {
				s.logger(ctx).Info("abandoned recurring contributions failed",
					zap.Int("count", len(ids)),
					zap.Time("cutoff", cutoff),
				)
			}
			if err != nil {
				s.logJobError(ctx, run, "scheduler.sweep.failed", err)
			}
			return err
		})
	})
	return result, err
}

// RunImport runs the bulk importer under the per-processor job lock.
// confirmer may be nil.
func (s *Scheduler) RunImport(ctx context.Context, opts importer.Options, confirmer importer.Confirmer) (*importer.Stats, error) {
	if s.importer == nil {
		return nil, fmt.Errorf("%s: %w", JobImport, ErrInvalidConfig)
	}
	im := s.importer
	if confirmer != nil {
		im = im.WithConfirmer(confirmer)
	}

	var stats *importer.Stats
	err := s.locker.WithJobLock(ctx, JobImport, opts.ProcessorID.String(), func(ctx context.Context) error {
		return s.runJob(ctx, JobImport, 0, func(ctx context.Context) error {
			var err error
			stats, err = im.Run(ctx, opts)
			if stats != nil {
				jobRunFromContext(ctx).AddProcessed(stats.Subscriptions.Found)
			}
			return err
		})
	})
	return stats, err
}

func (s *Scheduler) RunOnce(ctx context.Context) error {
	_, err := s.RunAbandonedSweep(ctx, s.cfg.SweepTimeoutHours)
	if errors.Is(err, obsmetrics.ErrJobLockHeld) {
		s.log.Debug("sweep skipped, lock held elsewhere")
		return nil
	}
	return err
}

func (s *Scheduler) RunForever(ctx context.Context) {
	ticker := time.NewTicker(s.cfg.RunInterval)
	defer ticker.Stop()

	for {
		if err := s.RunOnce(ctx); err != nil {
			s.log.Warn("scheduler run failed", zap.Error(err))
		}

		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
		}
	}
}
