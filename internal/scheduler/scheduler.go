package scheduler

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/puzpuzpuz/xsync/v3"

	"github.com/grabarr/grabarr/internal/logging"
	"github.com/grabarr/grabarr/internal/store"
	"github.com/grabarr/grabarr/internal/store/types"
)

// JobRunner is the slice of the execution engine the scheduler drives.
type JobRunner interface {
	RunJob(ctx context.Context, jobID int64, executionType string) error
}

type trigger struct {
	cron   *Cron
	cancel context.CancelFunc
}

// Scheduler keeps one timing goroutine per scheduled job. Re-adding a job id
// replaces its trigger.
type Scheduler struct {
	ctx    context.Context
	cancel context.CancelFunc

	store  *store.Store
	runner JobRunner

	triggers *xsync.MapOf[int64, *trigger]
	wg       sync.WaitGroup
}

func NewScheduler(ctx context.Context, st *store.Store, runner JobRunner) *Scheduler {
	schedCtx, cancel := context.WithCancel(ctx)
	return &Scheduler{
		ctx:      schedCtx,
		cancel:   cancel,
		store:    st,
		runner:   runner,
		triggers: xsync.NewMapOf[int64, *trigger](),
	}
}

func (s *Scheduler) Close() {
	s.cancel()
	s.wg.Wait()
}

// Resolve turns a job's schedule string into a cron expression: a template
// name wins over treating the string as raw cron; interval templates are
// approximated as fixed-phase cron forms.
func (s *Scheduler) Resolve(schedule string) (string, error) {
	tmpl, err := s.store.Database.GetScheduleTemplateByName(schedule)
	if err != nil {
		// Not a template; the string must be cron itself.
		return schedule, nil
	}

	switch tmpl.ScheduleType {
	case "cron":
		return tmpl.Config.Cron, nil
	case "interval":
		if tmpl.Config.Minutes > 0 {
			return fmt.Sprintf("*/%d * * * *", tmpl.Config.Minutes), nil
		}
		if tmpl.Config.Hours > 0 {
			return fmt.Sprintf("0 */%d * * *", tmpl.Config.Hours), nil
		}
		return "", fmt.Errorf("Resolve: interval template %q has no period", tmpl.Name)
	default:
		return "", fmt.Errorf("Resolve: template %q has unknown type %q", tmpl.Name, tmpl.ScheduleType)
	}
}

// Add registers or replaces the trigger for one job.
func (s *Scheduler) Add(jobID int64, schedule string) error {
	expr, err := s.Resolve(schedule)
	if err != nil {
		return fmt.Errorf("Add: %w", err)
	}
	cron, err := ParseCron(expr)
	if err != nil {
		return fmt.Errorf("Add: job %d schedule %q -> %w", jobID, schedule, err)
	}

	trigCtx, cancel := context.WithCancel(s.ctx)
	t := &trigger{cron: cron, cancel: cancel}
	if prev, loaded := s.triggers.LoadAndStore(jobID, t); loaded {
		prev.cancel()
	}

	s.wg.Add(1)
	go func() {
		defer s.wg.Done()
		s.loop(trigCtx, jobID, cron)
	}()

	logging.L.Info().WithJob(jobID).
		WithField("cron", expr).
		WithMessage("schedule registered").Write()
	return nil
}

// Remove drops the trigger for one job if present.
func (s *Scheduler) Remove(jobID int64) {
	if t, loaded := s.triggers.LoadAndDelete(jobID); loaded {
		t.cancel()
	}
}

// Sync reconciles triggers against the enabled jobs in the store.
func (s *Scheduler) Sync() error {
	jobs, err := s.store.Database.GetEnabledJobs()
	if err != nil {
		return fmt.Errorf("Sync: %w", err)
	}

	desired := make(map[int64]bool, len(jobs))
	for _, job := range jobs {
		if job.Schedule == "" || job.Schedule == types.ScheduleManual {
			continue
		}
		desired[job.ID] = true
		if err := s.Add(job.ID, job.Schedule); err != nil {
			logging.L.Error(err).WithJob(job.ID).WithMessage("failed to register schedule").Write()
		}
	}

	s.triggers.Range(func(jobID int64, _ *trigger) bool {
		if !desired[jobID] {
			s.Remove(jobID)
		}
		return true
	})
	return nil
}

func (s *Scheduler) loop(ctx context.Context, jobID int64, cron *Cron) {
	for {
		next := cron.Next(time.Now())
		if next.IsZero() {
			logging.L.Warn().WithJob(jobID).
				WithMessage("schedule has no future fire time, trigger stopped").Write()
			return
		}

		timer := time.NewTimer(time.Until(next))
		select {
		case <-timer.C:
			if err := s.runner.RunJob(ctx, jobID, "schedule"); err != nil {
				logging.L.Error(err).WithJob(jobID).WithMessage("scheduled run failed").Write()
			}
		case <-ctx.Done():
			timer.Stop()
			return
		}
	}
}
