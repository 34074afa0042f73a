// Package dispatcher runs the periodic due-reminder scan. Each run finds
// reminders whose time has come, delivers an alert for each, and atomically
// retires the occurrence (inserting the next one for recurring reminders).
package dispatcher

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/robfig/cron/v3"

	"remindbot/internal/model"
	"remindbot/internal/notifier"
	"remindbot/internal/storage"
	"remindbot/pkg/logx"
	"remindbot/pkg/tgui"
)

// Config controls the scan cadence and cleanup policies.
type Config struct {
	// Interval between due scans. Zero or negative means the default minute.
	Interval time.Duration
	// QuarantineOrphans marks reminders whose owner row is gone as notified
	// instead of retrying them every run.
	QuarantineOrphans bool
	// RetentionMaxAge, when positive, enables a daily purge of delivered
	// one-time reminders older than this.
	RetentionMaxAge time.Duration
}

const defaultInterval = time.Minute

type Dispatcher struct {
	repo   storage.Repository
	notify notifier.Notifier
	cfg    Config
	log    logx.Logger

	cron *cron.Cron
	now  func() time.Time
}

func New(repo storage.Repository, notify notifier.Notifier, cfg Config, log logx.Logger) *Dispatcher {
	if cfg.Interval <= 0 {
		cfg.Interval = defaultInterval
	}
	return &Dispatcher{
		repo:   repo,
		notify: notify,
		cfg:    cfg,
		log:    log,
		now:    time.Now,
	}
}

// Start schedules the scan. A run that outlasts the interval suppresses the
// next tick instead of overlapping it.
func (d *Dispatcher) Start(ctx context.Context) error {
	clog := cronLogger{log: d.log}
	d.cron = cron.New(cron.WithChain(
		cron.SkipIfStillRunning(clog),
		cron.Recover(clog),
	))

	spec := fmt.Sprintf("@every %s", d.cfg.Interval)
	if _, err := d.cron.AddFunc(spec, func() { d.run(ctx) }); err != nil {
		return fmt.Errorf("schedule scan: %w", err)
	}

	if d.cfg.RetentionMaxAge > 0 {
		if _, err := d.cron.AddFunc("@daily", func() { d.purge(ctx) }); err != nil {
			return fmt.Errorf("schedule purge: %w", err)
		}
	}

	d.cron.Start()
	d.log.Info("dispatcher started",
		logx.Duration("interval", d.cfg.Interval),
		logx.Bool("quarantine_orphans", d.cfg.QuarantineOrphans),
		logx.Duration("retention_max_age", d.cfg.RetentionMaxAge))
	return nil
}

// Stop halts the schedule and waits for an in-flight run to finish.
func (d *Dispatcher) Stop() {
	if d.cron == nil {
		return
	}
	<-d.cron.Stop().Done()
	d.log.Info("dispatcher stopped")
}

// run is one scan. Failures on a single reminder are logged and skipped so
// one broken row cannot stall everyone else's alerts; only a failed scan
// query aborts the run.
func (d *Dispatcher) run(ctx context.Context) {
	now := d.now()
	due, err := d.repo.FindDueUnnotified(ctx, now)
	if err != nil {
		d.log.Error("due scan failed", logx.Err(err))
		return
	}
	if len(due) == 0 {
		return
	}
	d.log.Debug("due reminders found", logx.Int("count", len(due)))

	for i := range due {
		if ctx.Err() != nil {
			return
		}
		d.deliver(ctx, &due[i])
	}
}

func (d *Dispatcher) deliver(ctx context.Context, rem *model.Reminder) {
	user, err := d.repo.UserByID(ctx, rem.UserID)
	switch {
	case errors.Is(err, storage.ErrNotFound):
		d.orphan(ctx, rem)
		return
	case err != nil:
		d.log.Error("owner lookup failed",
			logx.Uint("reminder_id", rem.ID), logx.Err(err))
		return
	}

	if err := d.notify.Notify(ctx, user.TelegramID, renderAlert(rem)); err != nil {
		// Leave the row unnotified; the next run retries it.
		d.log.Warn("alert delivery failed, will retry",
			logx.Uint("reminder_id", rem.ID),
			logx.Int64("chat_id", user.TelegramID),
			logx.Err(err))
		return
	}

	nextAt := model.NextOccurrence(rem.RemindAt, rem.Recurrence)
	if err := d.repo.CompleteOccurrence(ctx, rem, nextAt); err != nil {
		// Delivered but not retired: the next run will send a duplicate.
		// Loud log because this is the one at-most-once gap left open.
		d.log.Error("occurrence completion failed after delivery",
			logx.Uint("reminder_id", rem.ID), logx.Err(err))
		return
	}

	fields := []logx.Field{
		logx.Uint("reminder_id", rem.ID),
		logx.Int64("chat_id", user.TelegramID),
	}
	if !nextAt.IsZero() {
		fields = append(fields, logx.Time("next_at", nextAt))
	}
	d.log.Info("reminder delivered", fields...)
}

// orphan handles a due reminder whose owner row no longer exists. The cascade
// on user deletion normally prevents this; it can still appear after manual
// database surgery.
func (d *Dispatcher) orphan(ctx context.Context, rem *model.Reminder) {
	if !d.cfg.QuarantineOrphans {
		d.log.Warn("orphaned reminder skipped",
			logx.Uint("reminder_id", rem.ID), logx.Uint("user_id", rem.UserID))
		return
	}
	if err := d.repo.MarkNotified(ctx, rem.ID); err != nil {
		d.log.Error("orphan quarantine failed",
			logx.Uint("reminder_id", rem.ID), logx.Err(err))
		return
	}
	d.log.Warn("orphaned reminder quarantined",
		logx.Uint("reminder_id", rem.ID), logx.Uint("user_id", rem.UserID))
}

func (d *Dispatcher) purge(ctx context.Context) {
	cutoff := d.now().Add(-d.cfg.RetentionMaxAge)
	removed, err := d.repo.PurgeNotified(ctx, cutoff)
	if err != nil {
		d.log.Error("retention purge failed", logx.Err(err))
		return
	}
	if removed > 0 {
		d.log.Info("retention purge done", logx.Int64("removed", removed))
	}
}

func renderAlert(rem *model.Reminder) string {
	text := fmt.Sprintf("⏰ <b>Reminder!</b>\n\n📝 %s\n📅 %s  🕒 %s",
		tgui.Esc(rem.Title),
		rem.RemindAt.Format(model.DateLayout),
		rem.RemindAt.Format(model.TimeLayout),
	)
	if rem.Recurrence != model.RecurrenceNone {
		next := model.NextOccurrence(rem.RemindAt, rem.Recurrence)
		text += fmt.Sprintf("\n🔄 Repeats %s, next on %s",
			rem.Recurrence.Label(), next.Format(model.DateLayout))
	}
	return text
}

// cronLogger adapts logx to the cron.Logger contract.
type cronLogger struct {
	log logx.Logger
}

func (c cronLogger) Info(msg string, keysAndValues ...any) {
	c.log.Debug(msg, logx.Any("details", keysAndValues))
}

func (c cronLogger) Error(err error, msg string, keysAndValues ...any) {
	c.log.Error(msg, logx.Err(err), logx.Any("details", keysAndValues))
}
