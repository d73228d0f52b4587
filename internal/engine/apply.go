package engine

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/starford/cfgswap/internal/apperr"
	"github.com/starford/cfgswap/internal/canonical"
	"github.com/starford/cfgswap/internal/checksum"
	"github.com/starford/cfgswap/internal/filelock"
	"github.com/starford/cfgswap/internal/models"
	"github.com/starford/cfgswap/internal/sse"
)

// ApplyOptions tunes a single apply.
type ApplyOptions struct {
	// DryRun resolves the profile and compares hashes without touching any file.
	DryRun bool
}

// Result describes a completed apply or restore.
type Result struct {
	ProfileID    string               `json:"profile_id,omitempty" yaml:"profile_id,omitempty"`
	ProfileName  string               `json:"profile_name,omitempty" yaml:"profile_name,omitempty"`
	Target       string               `json:"target" yaml:"target"`
	State        State                `json:"state" yaml:"state"`
	Trace        []State              `json:"trace" yaml:"trace"`
	Backup       *models.BackupRecord `json:"backup,omitempty" yaml:"backup,omitempty"`
	RestoredFrom string               `json:"restored_from,omitempty" yaml:"restored_from,omitempty"`
	DryRun       bool                 `json:"dry_run,omitempty" yaml:"dry_run,omitempty"`
	Changed      bool                 `json:"changed" yaml:"changed"`
	ActiveID     string               `json:"active_id,omitempty" yaml:"active_id,omitempty"`
	Pruned       int                  `json:"pruned" yaml:"pruned"`
	Warnings     []string             `json:"warnings,omitempty" yaml:"warnings,omitempty"`
}

func (r *Result) enter(s State) {
	r.State = s
	r.Trace = append(r.Trace, s)
}

func (r *Result) warn(format string, args ...any) {
	r.Warnings = append(r.Warnings, fmt.Sprintf(format, args...))
}

type job struct {
	outcome string
	profile *models.Profile
	content []byte
	source  string
}

// Apply installs the content of the profile named by idOrName into the target
// file. On success the profile is the active one. On failure the returned
// error is an *apperr.StepError and the target is unchanged.
func (e *Engine) Apply(ctx context.Context, idOrName string, opts ApplyOptions) (*Result, error) {
	ctx, cancel := e.withTimeout(ctx)
	defer cancel()

	start := time.Now()
	p, err := e.store.Resolve(ctx, idOrName)
	if err != nil {
		e.metrics.ObserveApply(models.OutcomeFailed, time.Since(start))
		return nil, &apperr.StepError{Step: BackingUp.String(), Path: e.target, Err: err, TargetUnchanged: true}
	}

	if opts.DryRun {
		return e.dryRun(p)
	}
	return e.install(ctx, start, job{outcome: models.OutcomeApplied, profile: &p, content: []byte(p.Content)})
}

func (e *Engine) dryRun(p models.Profile) (*Result, error) {
	res := &Result{
		ProfileID:   p.ID,
		ProfileName: p.Name,
		Target:      e.target,
		State:       Idle,
		Trace:       []State{Idle},
		DryRun:      true,
	}
	data, err := e.files.Read(e.target)
	switch {
	case errors.Is(err, apperr.ErrSourceMissing):
		res.Changed = true
	case err != nil:
		return nil, fmt.Errorf("engine: dry run: %w", err)
	default:
		h, _ := checksum.ContentOrRaw(data)
		res.Changed = h != p.ContentHash
	}
	return res, nil
}

// Restore installs the bytes of a backup into the target, backing up the
// current content first.
func (e *Engine) Restore(ctx context.Context, backupPath string) (*Result, error) {
	ctx, cancel := e.withTimeout(ctx)
	defer cancel()

	start := time.Now()
	data, err := e.backups.Read(backupPath)
	if err == nil {
		err = canonical.Valid(data)
	}
	if err != nil {
		e.metrics.ObserveApply(models.OutcomeFailed, time.Since(start))
		return nil, &apperr.StepError{Step: BackingUp.String(), Path: e.target, Err: err, TargetUnchanged: true}
	}
	return e.install(ctx, start, job{outcome: models.OutcomeRestored, content: data, source: backupPath})
}

func (e *Engine) install(ctx context.Context, start time.Time, j job) (*Result, error) {
	res := &Result{
		Target:       e.target,
		State:        Idle,
		Trace:        []State{Idle},
		RestoredFrom: j.source,
	}
	prefer := ""
	if j.profile != nil {
		res.ProfileID, res.ProfileName = j.profile.ID, j.profile.Name
		prefer = j.profile.ID
	}

	res.enter(BackingUp)
	lock, err := filelock.Acquire(ctx, e.target, e.lockOpts)
	if err != nil {
		return nil, e.fail(ctx, start, res, j, apperr.ErrFileLocked, err)
	}
	defer lock.Release()

	newHash, _ := checksum.ContentOrRaw(j.content)
	rec, err := e.backups.Create()
	switch {
	case errors.Is(err, apperr.ErrSourceMissing):
		res.Changed = true
		e.logger.Info("engine: target missing, backup skipped", slog.String("path", e.target))
	case err != nil:
		return nil, e.fail(ctx, start, res, j, apperr.ErrBackup, err)
	default:
		if j.profile != nil {
			id := j.profile.ID
			rec.AppliedProfileID = &id
		}
		res.Backup = &rec
		res.Changed = rec.OriginalHash != newHash
		e.metrics.ObserveBackup(rec.Size)
		if err := e.store.LogBackup(ctx, rec); err != nil {
			res.warn("backup log: %v", err)
		}
	}

	res.enter(Writing)
	if err := ctx.Err(); err != nil {
		return nil, e.fail(ctx, start, res, j, apperr.ErrWrite, err)
	}
	if err := e.files.WriteAtomic(e.target, j.content); err != nil {
		return nil, e.fail(ctx, start, res, j, apperr.ErrWrite, err)
	}

	res.enter(Reconciling)
	active, err := e.detector.Reconcile(ctx, prefer)
	switch {
	case err != nil:
		res.warn("reconcile: %v", err)
	case j.profile != nil && active != j.profile.ID:
		res.warn("consistency: target does not match profile %q after write", j.profile.Name)
	}
	res.ActiveID = active

	res.enter(Done)
	entry := models.AuditEntry{
		ProfileID:  res.ProfileID,
		BackupPath: backupPath(res),
		Outcome:    j.outcome,
		Step:       Done.String(),
	}
	if j.source != "" {
		entry.ProfileID = active
		entry.Message = "restored from " + j.source
	}
	if _, err := e.store.RecordAudit(ctx, entry); err != nil {
		res.warn("audit: %v", err)
	}
	lock.Release()

	pr, err := e.Prune(ctx, e.retention)
	if err != nil {
		res.warn("cleanup: %v", err)
	}
	res.Pruned = len(pr.Removed)
	for _, f := range pr.Failures {
		res.warn("cleanup: %s", f)
	}

	e.metrics.ObserveApply(j.outcome, time.Since(start))
	e.SyncActiveMetric(ctx, active)
	if j.source != "" {
		e.notifier.PublishChange(sse.BackupRestored, active)
	} else {
		e.notifier.PublishChange(sse.ProfileApplied, res.ProfileID)
	}

	for _, w := range res.Warnings {
		e.logger.Warn("engine: "+j.outcome+" warning", slog.String("warning", w))
	}
	e.logger.Info("engine: "+j.outcome,
		slog.String("profile", res.ProfileName),
		slog.String("active", active),
		slog.String("backup", backupPath(res)),
		slog.Bool("changed", res.Changed),
		slog.Duration("took", time.Since(start)))
	return res, nil
}

func backupPath(res *Result) string {
	if res.Backup == nil {
		return ""
	}
	return res.Backup.Path
}

// fail moves the run to Failed and records the failure. It always reports
// the target as unchanged: every failing step precedes the rename.
func (e *Engine) fail(ctx context.Context, start time.Time, res *Result, j job, kind, err error) error {
	step := res.State
	res.enter(Failed)
	se := &apperr.StepError{
		Step:            step.String(),
		Path:            e.target,
		Kind:            kind,
		Err:             err,
		TargetUnchanged: true,
	}

	e.logger.Warn("engine: "+j.outcome+" failed",
		slog.String("step", se.Step),
		slog.String("profile", res.ProfileName),
		slog.String("error", err.Error()))

	entry := models.AuditEntry{
		ProfileID:  res.ProfileID,
		BackupPath: backupPath(res),
		Outcome:    models.OutcomeFailed,
		Step:       se.Step,
		Message:    se.Error(),
	}
	if _, aerr := e.store.RecordAudit(context.WithoutCancel(ctx), entry); aerr != nil {
		e.logger.Warn("engine: audit failed", slog.String("error", aerr.Error()))
	}
	e.metrics.ObserveApply(models.OutcomeFailed, time.Since(start))
	return se
}
