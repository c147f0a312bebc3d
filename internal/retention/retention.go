// Package retention purges soft-deleted records on a cron schedule.
package retention

import (
	"context"
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"sync"
	"time"

	"github.com/adhocore/gronx"

	"dealerchat/pkg/config"
	"dealerchat/pkg/logger"
	"dealerchat/pkg/store"
)

const (
	DefaultCron      = "0 2 * * *"
	DefaultPeriod    = 30 * 24 * time.Hour
	DefaultBatchSize = 1000
)

// Purger is the store surface the runner needs.
type Purger interface {
	PurgeDeleted(before int64, limit int, dryRun bool) (store.PurgeResult, error)
}

// Runner executes purge runs. Overlapping runs are skipped.
type Runner struct {
	db     Purger
	cron   string
	period time.Duration
	batch  int
	dryRun bool
	dir    string
	now    func() time.Time

	running sync.Mutex
}

// Report is persisted after each run as last_run.json in the state dir.
type Report struct {
	Started  time.Time         `json:"started"`
	Cutoff   time.Time         `json:"cutoff"`
	DryRun   bool              `json:"dry_run"`
	Purged   store.PurgeResult `json:"purged"`
	Duration string            `json:"duration"`
	Error    string            `json:"error,omitempty"`
}

// New validates cfg and returns a runner writing reports into dir.
func New(db Purger, cfg config.RetentionConfig, dir string) (*Runner, error) {
	cronExpr := cfg.Cron
	if cronExpr == "" {
		cronExpr = DefaultCron
	}
	if !gronx.IsValid(cronExpr) {
		return nil, fmt.Errorf("invalid retention cron expression: %s", cronExpr)
	}
	batch := cfg.BatchSize
	if batch <= 0 {
		batch = DefaultBatchSize
	}
	return &Runner{
		db:     db,
		cron:   cronExpr,
		period: cfg.Period.Or(DefaultPeriod),
		batch:  batch,
		dryRun: cfg.DryRun,
		dir:    dir,
		now:    time.Now,
	}, nil
}

// Start launches the scheduler when retention is enabled and returns a
// function that stops it.
func Start(ctx context.Context, db Purger, cfg config.RetentionConfig, dir string) (context.CancelFunc, error) {
	if !cfg.Enabled {
		logger.Info("retention_disabled")
		return func() {}, nil
	}
	if dir != "" {
		if err := os.MkdirAll(dir, 0o700); err != nil {
			logger.Error("retention_path_create_failed", "path", dir, "error", err)
			return nil, err
		}
	}
	r, err := New(db, cfg, dir)
	if err != nil {
		logger.Error("retention_invalid_cron", "cron", cfg.Cron)
		return nil, err
	}
	ctx2, cancel := context.WithCancel(ctx)
	go r.schedule(ctx2)
	logger.Info("retention_enabled", "cron", r.cron, "period", r.period.String(), "batch", r.batch, "dry_run", r.dryRun)
	return cancel, nil
}

func (r *Runner) schedule(ctx context.Context) {
	for {
		next, err := gronx.NextTickAfter(r.cron, r.now().UTC(), false)
		wait := time.Until(next)
		if err != nil {
			logger.Error("retention_nexttick_failed", "cron", r.cron, "error", err)
			wait = 30 * time.Second
		}
		select {
		case <-ctx.Done():
			logger.Info("retention_scheduler_stopping")
			return
		case <-time.After(wait):
		}
		if err != nil {
			continue
		}
		if _, err := r.RunOnce(ctx); err != nil {
			logger.Error("retention_run_error", "error", err)
		}
	}
}

// RunOnce purges everything soft-deleted before now minus the retention
// period, batch by batch, until a batch comes back short.
func (r *Runner) RunOnce(ctx context.Context) (store.PurgeResult, error) {
	var total store.PurgeResult
	if !r.running.TryLock() {
		logger.Warn("retention_run_skipped", "reason", "previous run still active")
		return total, nil
	}
	defer r.running.Unlock()

	started := r.now().UTC()
	cutoff := started.Add(-r.period)
	logger.AuditEvent("retention_run_start", "system", "cutoff", cutoff.Format(time.RFC3339), "dry_run", r.dryRun)

	var runErr error
	for {
		if err := ctx.Err(); err != nil {
			runErr = err
			break
		}
		res, err := r.db.PurgeDeleted(cutoff.UnixNano(), r.batch, r.dryRun)
		if err != nil {
			runErr = err
			break
		}
		total = add(total, res)
		// A dry run never shrinks the candidate set, so one pass is all.
		if r.dryRun || res.Total()-res.Messages-res.Appointments < r.batch {
			break
		}
	}

	rep := Report{Started: started, Cutoff: cutoff, DryRun: r.dryRun, Purged: total, Duration: r.now().UTC().Sub(started).String()}
	if runErr != nil {
		rep.Error = runErr.Error()
	}
	r.writeReport(rep)
	logger.AuditEvent("retention_run_done", "system", "purged", total.Total(), "dry_run", r.dryRun, "error", rep.Error)
	return total, runErr
}

func (r *Runner) writeReport(rep Report) {
	if r.dir == "" {
		return
	}
	b, err := json.MarshalIndent(rep, "", "  ")
	if err != nil {
		return
	}
	tmp := filepath.Join(r.dir, ".last_run.json.tmp")
	if err := os.WriteFile(tmp, b, 0o600); err != nil {
		logger.Warn("retention_report_failed", "error", err)
		return
	}
	if err := os.Rename(tmp, filepath.Join(r.dir, "last_run.json")); err != nil {
		logger.Warn("retention_report_failed", "error", err)
	}
}

func add(a, b store.PurgeResult) store.PurgeResult {
	return store.PurgeResult{
		Chats:        a.Chats + b.Chats,
		Messages:     a.Messages + b.Messages,
		Leads:        a.Leads + b.Leads,
		Users:        a.Users + b.Users,
		Cars:         a.Cars + b.Cars,
		Promotions:   a.Promotions + b.Promotions,
		Appointments: a.Appointments + b.Appointments,
	}
}
