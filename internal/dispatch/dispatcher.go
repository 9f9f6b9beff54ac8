// Package dispatch runs the outbound call loop.
//
// The dispatcher periodically selects due callback tasks and due scheduled
// check-ins, hands each to the outbound caller, and records the provider's
// conversation id for later outcome reconciliation. It never records call
// outcomes itself; outcomes arrive through the webhook or manual attempt
// logging.
package dispatch

import (
	"context"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/AudienHealth/CarePipe/internal/caller"
	"github.com/AudienHealth/CarePipe/internal/models"
	"github.com/AudienHealth/CarePipe/internal/schedule"
	"github.com/AudienHealth/CarePipe/internal/store"
)

// DefaultPollInterval is how often the dispatcher scans for due work.
const DefaultPollInterval = 60 * time.Second

// Opts holds configuration options for the dispatcher.
type Opts struct {
	Interval time.Duration
	Clock    schedule.Clock
}

// Option defines a configuration option for the dispatcher.
type Option func(*Opts)

// WithInterval overrides the poll interval.
func WithInterval(d time.Duration) Option {
	return func(o *Opts) { o.Interval = d }
}

// WithClock overrides the time source, used by tests.
func WithClock(c schedule.Clock) Option {
	return func(o *Opts) { o.Clock = c }
}

// Dispatcher scans the store for due outbound work and triggers calls.
type Dispatcher struct {
	store    store.Store
	caller   caller.Caller
	clock    schedule.Clock
	interval time.Duration

	// mu enforces single-flight: a tick that arrives while a scan is still
	// running is skipped rather than queued.
	mu sync.Mutex
}

// NewDispatcher creates a dispatcher over the given store and caller.
func NewDispatcher(st store.Store, c caller.Caller, opts ...Option) *Dispatcher {
	cfg := Opts{Interval: DefaultPollInterval, Clock: schedule.SystemClock{}}
	for _, opt := range opts {
		opt(&cfg)
	}
	return &Dispatcher{store: st, caller: c, clock: cfg.Clock, interval: cfg.Interval}
}

// Run executes the dispatch loop until the context is cancelled.
func (d *Dispatcher) Run(ctx context.Context) {
	slog.Info("Dispatcher.Run: starting dispatch loop", "interval", d.interval)
	ticker := time.NewTicker(d.interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			slog.Info("Dispatcher.Run: dispatch loop stopped")
			return
		case <-ticker.C:
			if err := d.RunOnce(ctx); err != nil {
				slog.Error("Dispatcher.Run: scan failed", "error", err)
			}
		}
	}
}

// RunOnce performs a single scan for due work. If a previous scan is still in
// flight the call returns immediately without doing anything.
func (d *Dispatcher) RunOnce(ctx context.Context) error {
	if !d.mu.TryLock() {
		slog.Debug("Dispatcher.RunOnce: previous scan still running, skipping")
		return nil
	}
	defer d.mu.Unlock()

	cfg, err := d.store.GetAgentConfig()
	if err != nil {
		return fmt.Errorf("failed to load agent config: %w", err)
	}
	if cfg == nil || !cfg.OutboundConfigured() {
		slog.Warn("Dispatcher.RunOnce: outbound agent not configured, skipping batch")
		return nil
	}

	now := d.clock.Now()

	if err := d.dispatchCallbackTasks(ctx, *cfg, now); err != nil {
		slog.Error("Dispatcher.RunOnce: callback task pass failed", "error", err)
	}
	if err := d.dispatchCheckIns(ctx, *cfg, now); err != nil {
		slog.Error("Dispatcher.RunOnce: check-in pass failed", "error", err)
	}
	return nil
}

func (d *Dispatcher) dispatchCallbackTasks(ctx context.Context, cfg models.AgentConfig, now time.Time) error {
	tasks, err := d.store.ListCallbackTasks()
	if err != nil {
		return fmt.Errorf("failed to list callback tasks: %w", err)
	}

	due := schedule.DueCallbackTasks(tasks, now)
	slog.Debug("Dispatcher.dispatchCallbackTasks: scan complete", "total", len(tasks), "due", len(due))

	for _, task := range due {
		if task.HasAnsweredAttempt() {
			continue
		}
		if err := d.triggerCallbackTask(ctx, cfg, task, now); err != nil {
			slog.Error("Dispatcher.dispatchCallbackTasks: trigger failed", "taskID", task.ID, "error", err)
		}
	}
	return nil
}

func (d *Dispatcher) triggerCallbackTask(ctx context.Context, cfg models.AgentConfig, task models.CallbackTask, now time.Time) error {
	vars := caller.Variables{
		PatientName: task.PatientName,
		ClinicName:  cfg.ClinicName,
		CallReason:  task.CallReason,
		CallGoal:    task.CallGoal,
	}
	conversationID, err := d.caller.Trigger(ctx, task.Phone, cfg.OutboundAgent(), cfg.PhoneNumberID, vars)
	if err != nil {
		return fmt.Errorf("failed to trigger callback call for task %s: %w", task.ID, err)
	}

	task.ConversationID = conversationID
	if err := d.store.SaveCallbackTask(task); err != nil {
		return fmt.Errorf("failed to persist conversation id for task %s: %w", task.ID, err)
	}

	d.recordEvent(models.ActivityEvent{
		ID:          "evt-" + uuid.NewString(),
		Type:        models.ActivityEventCallback,
		Description: fmt.Sprintf("Callback call started: %s", task.CallReason),
		Timestamp:   now,
		PatientName: task.PatientName,
		PatientID:   task.PatientID,
	})
	slog.Info("Dispatcher.triggerCallbackTask: call triggered", "taskID", task.ID, "conversationID", conversationID)
	return nil
}

func (d *Dispatcher) dispatchCheckIns(ctx context.Context, cfg models.AgentConfig, now time.Time) error {
	checkIns, err := d.store.ListCheckIns()
	if err != nil {
		return fmt.Errorf("failed to list check-ins: %w", err)
	}

	due := schedule.DueCheckIns(checkIns, now)
	slog.Debug("Dispatcher.dispatchCheckIns: scan complete", "total", len(checkIns), "due", len(due))

	for _, ci := range due {
		if ci.Channel != models.ChannelCall {
			// SMS steps are delivered by the hosting application.
			continue
		}
		if err := d.triggerCheckIn(ctx, cfg, ci, now); err != nil {
			slog.Error("Dispatcher.dispatchCheckIns: trigger failed", "checkInID", ci.ID, "error", err)
		}
	}
	return nil
}

func (d *Dispatcher) triggerCheckIn(ctx context.Context, cfg models.AgentConfig, ci models.ScheduledCheckIn, now time.Time) error {
	vars := caller.Variables{
		PatientName: ci.PatientName,
		ClinicName:  cfg.ClinicName,
		CallReason:  fmt.Sprintf("%s (day %d check-in)", ci.SequenceName, ci.StepDay),
		CallGoal:    ci.Goal,
	}
	conversationID, err := d.caller.Trigger(ctx, ci.Phone, cfg.OutboundAgent(), cfg.PhoneNumberID, vars)
	if err != nil {
		return fmt.Errorf("failed to trigger check-in call %s: %w", ci.ID, err)
	}

	triggered := now
	ci.Status = models.CheckInStatusInProgress
	ci.TriggeredAt = &triggered
	ci.ConversationID = conversationID
	if err := d.store.UpdateCheckIn(ci); err != nil {
		return fmt.Errorf("failed to persist triggered check-in %s: %w", ci.ID, err)
	}

	d.recordEvent(models.ActivityEvent{
		ID:          "evt-" + uuid.NewString(),
		Type:        models.ActivityEventCheckIn,
		Description: fmt.Sprintf("Check-in call started: %s day %d", ci.SequenceName, ci.StepDay),
		Timestamp:   now,
		PatientName: ci.PatientName,
		PatientID:   ci.PatientID,
	})
	slog.Info("Dispatcher.triggerCheckIn: call triggered", "checkInID", ci.ID, "conversationID", conversationID)
	return nil
}

// recordEvent appends to the activity feed; feed failures never fail the
// dispatch that produced them.
func (d *Dispatcher) recordEvent(e models.ActivityEvent) {
	if err := d.store.AddActivityEvent(e); err != nil {
		slog.Error("Dispatcher.recordEvent: failed to record activity event", "type", e.Type, "error", err)
	}
}
