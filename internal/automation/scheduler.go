// internal/automation/scheduler.go
package automation

import (
	"context"
	"fmt"
	"sync"
	"sync/atomic"
	"time"

	"github.com/robfig/cron/v3"
	"go.opentelemetry.io/otel/attribute"
	"golang.org/x/sync/errgroup"

	apperrors "automation-engine/internal/common/errors"
	"automation-engine/internal/common/lock"
	"automation-engine/internal/common/logger"
	"automation-engine/internal/common/metrics"
	"automation-engine/internal/common/observability"
	"automation-engine/internal/models"
)

const tickLeaseKey = "tick"

// Dependencies are the collaborators of an Engine. Settings, Subjects, Ledger
// and Notifier are required.
type Dependencies struct {
	Settings      SettingsStore
	Subjects      SubjectStore
	Ledger        Ledger
	Notifier      Notifier
	Sink          EventSink
	Locker        Locker
	Clock         Clock
	Registry      *Registry
	Logger        logger.Logger
	Observability *observability.Observability
}

type WorkflowReport struct {
	Candidates int   `json:"candidates"`
	Sent       int   `json:"sent"`
	Failed     int   `json:"failed"`
	Deferred   int   `json:"deferred"`
	Skipped    int   `json:"skipped"`
	Err        error `json:"-"`
}

type TickReport struct {
	At           time.Time                                 `json:"at"`
	LeaseSkipped bool                                      `json:"leaseSkipped,omitempty"`
	Workflows    map[models.WorkflowType]*WorkflowReport `json:"workflows"`
}

// Engine is the scheduler clock plus the operational entry points.
type Engine struct {
	cfg        *Config
	registry   *Registry
	settings   SettingsStore
	subjects   SubjectStore
	ledger     Ledger
	dispatcher *Dispatcher
	locker     Locker
	clock      Clock
	logger     logger.Logger
	errHandler *apperrors.ErrorHandler
	obs        *observability.Observability

	mu        sync.Mutex
	cron      *cron.Cron
	running   bool
	cancelRun context.CancelFunc
}

func NewEngine(cfg *Config, deps Dependencies) (*Engine, error) {
	if deps.Settings == nil || deps.Subjects == nil || deps.Ledger == nil || deps.Notifier == nil {
		return nil, fmt.Errorf("engine requires settings, subjects, ledger and notifier")
	}
	if cfg == nil {
		cfg = &Config{}
	}
	cfg.applyDefaults()

	if deps.Logger == nil {
		deps.Logger = logger.NewNoOpLogger()
	}
	if deps.Clock == nil {
		deps.Clock = SystemClock{}
	}
	if deps.Locker == nil {
		deps.Locker = lock.NewLocalLocker()
	}
	if deps.Registry == nil {
		deps.Registry = NewDefaultRegistry()
	}
	log := deps.Logger.With(map[string]interface{}{"component": "automation-engine"})

	return &Engine{
		cfg:      cfg,
		registry: deps.Registry,
		settings: deps.Settings,
		subjects: deps.Subjects,
		ledger:   deps.Ledger,
		dispatcher: NewDispatcher(cfg, deps.Ledger, deps.Notifier, deps.Sink, deps.Locker,
			deps.Clock, log, deps.Observability),
		locker:     deps.Locker,
		clock:      deps.Clock,
		logger:     log,
		errHandler: apperrors.NewErrorHandler(log),
		obs:        deps.Observability,
	}, nil
}

func (e *Engine) Registry() *Registry { return e.registry }

func (e *Engine) IsRunning() bool {
	e.mu.Lock()
	defer e.mu.Unlock()
	return e.running
}

// Start registers the periodic tick. Calling Start while running is a no-op.
func (e *Engine) Start(ctx context.Context) error {
	e.mu.Lock()
	defer e.mu.Unlock()

	if e.running {
		e.logger.Info("scheduler already running, start ignored", nil)
		return nil
	}

	runCtx, cancel := context.WithCancel(ctx)
	cronLog := logger.CronAdapter{Logger: e.logger}
	c := cron.New(
		cron.WithLogger(cronLog),
		cron.WithChain(cron.Recover(cronLog), cron.SkipIfStillRunning(cronLog)),
	)

	spec := fmt.Sprintf("@every %s", e.cfg.Interval)
	if _, err := c.AddFunc(spec, func() { e.tick(runCtx) }); err != nil {
		cancel()
		return apperrors.NewSchedulerStartFailedError(err)
	}
	c.Start()

	e.cron = c
	e.cancelRun = cancel
	e.running = true
	metrics.SchedulerRunning.Set(1)

	e.logger.Info("scheduler started", map[string]interface{}{
		"interval": e.cfg.Interval.String(),
		"window":   e.cfg.Window.String(),
		"workers":  e.cfg.Workers,
	})
	return nil
}

// Stop halts the periodic tick and waits for an in-flight tick until ctx is
// done. In-flight dispatches still running after that are cancelled.
func (e *Engine) Stop(ctx context.Context) error {
	e.mu.Lock()
	if !e.running {
		e.mu.Unlock()
		return nil
	}
	c, cancel := e.cron, e.cancelRun
	e.cron, e.cancelRun, e.running = nil, nil, false
	e.mu.Unlock()

	metrics.SchedulerRunning.Set(0)

	var err error
	select {
	case <-c.Stop().Done():
	case <-ctx.Done():
		err = ctx.Err()
		e.logger.Warn("stop deadline reached, abandoning in-flight tick", nil)
	}
	cancel()

	e.logger.Info("scheduler stopped", nil)
	return err
}

func (e *Engine) tick(ctx context.Context) {
	ctx, cancel := context.WithTimeout(ctx, e.cfg.TickTimeout)
	defer cancel()

	report, err := e.RunOnce(ctx)
	if err != nil {
		return
	}
	fields := map[string]interface{}{"at": report.At}
	for wt, wr := range report.Workflows {
		fields[string(wt)] = fmt.Sprintf("candidates=%d sent=%d failed=%d deferred=%d skipped=%d",
			wr.Candidates, wr.Sent, wr.Failed, wr.Deferred, wr.Skipped)
	}
	e.logger.Debug("tick complete", fields)
}

// RunOnce executes a single tick. The returned error is non-nil only when the
// tick could not start (settings or lease unavailable); per-workflow errors
// are reported in the TickReport.
func (e *Engine) RunOnce(ctx context.Context) (*TickReport, error) {
	started := time.Now()
	now := e.clock.Now()
	report := &TickReport{At: now, Workflows: make(map[models.WorkflowType]*WorkflowReport)}

	ctx, end := e.obs.StartSpan(ctx, "automation.tick")
	err := e.runTick(ctx, now, report)
	end(err)

	result := "success"
	switch {
	case err != nil:
		result = "error"
	case report.LeaseSkipped:
		result = "skipped"
	}
	metrics.TicksTotal.WithLabelValues(result).Inc()
	metrics.TickDuration.Observe(time.Since(started).Seconds())
	return report, err
}

func (e *Engine) runTick(ctx context.Context, now time.Time, report *TickReport) error {
	if e.cfg.TickLease {
		release, ok, err := e.locker.TryLock(ctx, tickLeaseKey, e.cfg.TickTimeout)
		if err != nil {
			e.errHandler.Handle("*", nil, err)
			return err
		}
		if !ok {
			e.logger.Info("tick lease held by another scheduler, skipping tick", nil)
			report.LeaseSkipped = true
			return nil
		}
		defer release()
	}

	settings, err := e.settings.ListEnabled(ctx)
	if err != nil {
		stdErr := apperrors.NewSettingsLoadFailedError(err)
		e.errHandler.Handle("*", nil, stdErr)
		return stdErr
	}

	for _, setting := range settings {
		if !setting.Enabled {
			continue
		}
		if ctx.Err() != nil {
			break
		}
		report.Workflows[setting.WorkflowType] = e.runWorkflow(ctx, setting, now)
	}
	return nil
}

// runWorkflow is the per-workflow error boundary: nothing in here escapes to the tick.
func (e *Engine) runWorkflow(ctx context.Context, setting models.AutomationSetting, now time.Time) (report *WorkflowReport) {
	report = &WorkflowReport{}
	wt := setting.WorkflowType
	fields := map[string]interface{}{"timingOffset": setting.TimingOffset.String()}

	defer func() {
		if r := recover(); r != nil {
			report.Err = e.errHandler.Handle(string(wt), fields, fmt.Errorf("panic: %v", r))
		}
	}()

	ctx, end := e.obs.StartSpan(ctx, "automation.workflow", attribute.String("workflow_type", string(wt)))
	defer func() { end(report.Err) }()

	def, err := e.registry.Lookup(wt)
	if err != nil {
		report.Err = e.errHandler.Handle(string(wt), fields, err)
		return report
	}

	window := ReferenceWindow(now, e.cfg.Window, setting.TimingOffset)
	candidates, err := e.subjects.FindCandidates(ctx, wt, window.Start, window.End)
	if err != nil {
		report.Err = e.errHandler.Handle(string(wt), fields, apperrors.NewCandidateQueryFailedError(string(wt), err))
		return report
	}
	report.Candidates = len(candidates)
	metrics.CandidatesTotal.WithLabelValues(string(wt)).Add(float64(len(candidates)))

	match := MatchWindow(now, e.cfg.Window)
	var sent, failed, deferred, skipped int64

	var g errgroup.Group
	g.SetLimit(e.cfg.Workers)
	for _, subject := range candidates {
		subject := subject
		if subject.OptedOut || subject.Recipient == "" || !match.Contains(MatchingInstant(subject, setting.TimingOffset)) {
			atomic.AddInt64(&skipped, 1)
			continue
		}
		g.Go(func() error {
			if ctx.Err() != nil {
				atomic.AddInt64(&skipped, 1)
				return nil
			}
			// gate at attempt time; a deferred subject is retried by a later tick in the window
			if setting.BusinessHoursOnly && !e.cfg.BusinessHours.IsOpen(e.clock.Now()) {
				atomic.AddInt64(&deferred, 1)
				metrics.DeferredTotal.WithLabelValues(string(wt)).Inc()
				return nil
			}
			switch outcome := e.safeDispatch(ctx, def, subject); outcome {
			case OutcomeSent:
				atomic.AddInt64(&sent, 1)
			case OutcomeFailed:
				atomic.AddInt64(&failed, 1)
			default:
				atomic.AddInt64(&skipped, 1)
			}
			return nil
		})
	}
	_ = g.Wait()

	report.Sent = int(sent)
	report.Failed = int(failed)
	report.Deferred = int(deferred)
	report.Skipped = int(skipped)
	return report
}

// safeDispatch turns structural errors and panics into a failed outcome for the report.
func (e *Engine) safeDispatch(ctx context.Context, def Definition, subject models.Subject) (outcome Outcome) {
	fields := map[string]interface{}{"subjectId": subject.ID}
	defer func() {
		if r := recover(); r != nil {
			e.errHandler.Handle(string(def.Type), fields, fmt.Errorf("panic: %v", r))
			outcome = OutcomeFailed
		}
	}()

	outcome, _, err := e.dispatcher.Dispatch(ctx, def, subject, models.TriggerScheduled)
	if err != nil {
		e.errHandler.Handle(string(def.Type), fields, err)
		return OutcomeFailed
	}
	return outcome
}
