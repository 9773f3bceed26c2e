// internal/automation/dispatcher.go
package automation

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"go.opentelemetry.io/otel/attribute"

	apperrors "automation-engine/internal/common/errors"
	"automation-engine/internal/common/logger"
	"automation-engine/internal/common/metrics"
	"automation-engine/internal/common/observability"
	"automation-engine/internal/models"
)

// Outcome is what happened to one candidate.
type Outcome string

const (
	OutcomeSent        Outcome = "sent"
	OutcomeFailed      Outcome = "failed"
	OutcomeAlreadySent Outcome = "already_sent"
	OutcomeLocked      Outcome = "locked"
)

// ledgerWriteTimeout bounds the record write and event publish once a notification went out.
const ledgerWriteTimeout = 5 * time.Second

// Dispatcher runs lock -> dedup guard -> notify -> ledger write -> event for a
// single subject.
type Dispatcher struct {
	ledger        Ledger
	notifier      Notifier
	sink          EventSink
	locker        Locker
	clock         Clock
	logger        logger.Logger
	obs           *observability.Observability
	notifyTimeout time.Duration
	lockTTL       time.Duration
	location      *time.Location
	businessName  string
	newID         func() string
}

func NewDispatcher(cfg *Config, ledger Ledger, notifier Notifier, sink EventSink, locker Locker,
	clock Clock, log logger.Logger, obs *observability.Observability) *Dispatcher {
	return &Dispatcher{
		ledger:        ledger,
		notifier:      notifier,
		sink:          sink,
		locker:        locker,
		clock:         clock,
		logger:        log,
		obs:           obs,
		notifyTimeout: cfg.NotifyTimeout,
		lockTTL:       cfg.LockTTL,
		location:      cfg.BusinessHours.Location,
		businessName:  cfg.BusinessName,
		newID:         uuid.NewString,
	}
}

func dispatchLockKey(workflowType models.WorkflowType, subjectID string) string {
	return fmt.Sprintf("dispatch:%s:%s", workflowType, subjectID)
}

// Dispatch returns an error only for structural failures (lock backend, ledger).
// A notifier failure is an OutcomeFailed with the failed record.
func (d *Dispatcher) Dispatch(ctx context.Context, def Definition, subject models.Subject, trigger models.TriggerSource) (Outcome, *models.DispatchRecord, error) {
	ctx, end := d.obs.StartSpan(ctx, "automation.dispatch",
		attribute.String("workflow_type", string(def.Type)),
		attribute.String("subject_id", subject.ID),
		attribute.String("trigger", string(trigger)),
	)

	outcome, record, err := d.dispatch(ctx, def, subject, trigger)
	end(err)
	return outcome, record, err
}

func (d *Dispatcher) dispatch(ctx context.Context, def Definition, subject models.Subject, trigger models.TriggerSource) (Outcome, *models.DispatchRecord, error) {
	log := d.logger.With(map[string]interface{}{
		"workflowType": string(def.Type),
		"subjectId":    subject.ID,
		"trigger":      string(trigger),
	})

	release, ok, err := d.locker.TryLock(ctx, dispatchLockKey(def.Type, subject.ID), d.lockTTL)
	if err != nil {
		return "", nil, err
	}
	if !ok {
		log.Debug("subject locked by another dispatcher, skipping", nil)
		return OutcomeLocked, nil, nil
	}
	defer release()

	sent, err := d.ledger.HasSent(ctx, def.Type, subject.ID)
	if err != nil {
		return "", nil, apperrors.NewLedgerReadFailedError(err)
	}
	if sent {
		return OutcomeAlreadySent, nil, nil
	}

	vars := def.Variables(subject, d.location)
	if d.businessName != "" {
		vars["businessName"] = d.businessName
	}

	sendErr := d.send(ctx, def.Type, subject.Recipient, vars)

	record := &models.DispatchRecord{
		ID:           d.newID(),
		WorkflowType: def.Type,
		SubjectKind:  subject.Kind,
		SubjectID:    subject.ID,
		Recipient:    subject.Recipient,
		Status:       models.StatusSent,
		Trigger:      trigger,
		AttemptedAt:  d.clock.Now().UTC(),
	}
	if sendErr != nil {
		record.Status = models.StatusFailed
		record.Error = sendErr.Error()
	}

	// a sent notification must be recorded even when Stop() is abandoning the tick
	wctx, cancel := context.WithTimeout(context.WithoutCancel(ctx), ledgerWriteTimeout)
	defer cancel()
	if err := d.ledger.Record(wctx, record); err != nil {
		if errors.Is(err, ErrAlreadySent) {
			metrics.DuplicatesDiscarded.WithLabelValues(string(def.Type)).Inc()
			log.Debug("duplicate sent record discarded", nil)
			return OutcomeAlreadySent, nil, nil
		}
		if record.Status == models.StatusSent {
			log.Error("notification sent but ledger write failed", map[string]interface{}{
				"recipient": subject.Recipient,
				"error":     err,
			})
		}
		return "", record, apperrors.NewLedgerWriteFailedError(err)
	}

	metrics.DispatchTotal.WithLabelValues(string(def.Type), string(record.Status)).Inc()
	d.obs.RecordDispatch(ctx, string(def.Type), string(record.Status))

	if record.Status == models.StatusFailed {
		log.Warn("dispatch failed", map[string]interface{}{
			"recordId": record.ID,
			"error":    record.Error,
		})
		return OutcomeFailed, record, nil
	}

	log.Info("dispatch sent", map[string]interface{}{
		"recordId":  record.ID,
		"recipient": subject.Recipient,
	})
	d.publish(ctx, subject, record, log)
	return OutcomeSent, record, nil
}

func (d *Dispatcher) send(ctx context.Context, workflowType models.WorkflowType, recipient string, vars map[string]string) error {
	nctx, cancel := context.WithTimeout(ctx, d.notifyTimeout)
	defer cancel()

	start := time.Now()
	err := d.notifier.Send(nctx, workflowType, recipient, vars)
	d.obs.RecordNotifyDuration(ctx, string(workflowType), time.Since(start))
	if err == nil {
		return nil
	}
	if errors.Is(nctx.Err(), context.DeadlineExceeded) && ctx.Err() == nil {
		return apperrors.NewNotificationTimeoutError(string(workflowType), d.notifyTimeout)
	}
	return apperrors.NewNotificationSendFailedError(string(workflowType), err)
}

func (d *Dispatcher) publish(ctx context.Context, subject models.Subject, record *models.DispatchRecord, log logger.Logger) {
	if d.sink == nil {
		return
	}
	event := models.DispatchEvent{
		EventID:      record.ID,
		WorkflowType: record.WorkflowType,
		SubjectKind:  record.SubjectKind,
		SubjectID:    record.SubjectID,
		CustomerID:   subject.CustomerID,
		Recipient:    record.Recipient,
		Trigger:      record.Trigger,
		SentAt:       record.AttemptedAt,
	}
	pctx, cancel := context.WithTimeout(context.WithoutCancel(ctx), ledgerWriteTimeout)
	defer cancel()
	if err := d.sink.Publish(pctx, event); err != nil {
		log.Warn("failed to publish dispatch event", map[string]interface{}{
			"recordId": record.ID,
			"error":    err,
		})
	}
}
