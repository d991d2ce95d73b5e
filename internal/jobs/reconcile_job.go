// Package jobs holds scheduled background work.
package jobs

import (
	"context"
	"time"

	"github.com/labstack/gommon/log"
	"github.com/robfig/cron/v3"

	"github.com/iliyamo/course-enrollment/internal/service"
)

// Reconciler recounts seat holders and repairs enrolled_count drift.
type Reconciler interface {
	Reconcile(ctx context.Context) (service.ReconcileReport, error)
}

// ReconcileJob runs one reconciliation pass per tick.
type ReconcileJob struct {
	r       Reconciler
	timeout time.Duration
	logger  *log.Logger
}

// NewReconcileJob returns a job bounded to timeout per run.
func NewReconcileJob(r Reconciler, timeout time.Duration, logger *log.Logger) *ReconcileJob {
	if logger == nil {
		logger = log.New("reconcile-job")
	}
	if timeout <= 0 {
		timeout = time.Minute
	}
	return &ReconcileJob{r: r, timeout: timeout, logger: logger}
}

// Run executes one pass.  It satisfies cron.Job.
func (j *ReconcileJob) Run() {
	j.logger.Info("Running job: Reconcile enrolled counts...")
	ctx, cancel := context.WithTimeout(context.Background(), j.timeout)
	defer cancel()

	report, err := j.r.Reconcile(ctx)
	if err != nil {
		j.logger.Errorf("reconcile failed: %v", err)
		return
	}
	j.logger.Infof("reconcile done: checked=%d repaired=%d unrepairable=%d",
		report.Checked, len(report.Repaired), len(report.Unrepairable))
}

// Schedule registers job under spec on a new cron scheduler and starts it.
// An empty spec returns nil and schedules nothing.  The caller stops the
// scheduler on shutdown.
func Schedule(spec string, job cron.Job) (*cron.Cron, error) {
	if spec == "" {
		return nil, nil
	}
	c := cron.New()
	if _, err := c.AddJob(spec, job); err != nil {
		return nil, err
	}
	c.Start()
	return c, nil
}
