// internal/automation/service.go
package automation

import (
	"context"
	"errors"
	"fmt"

	apperrors "automation-engine/internal/common/errors"
	"automation-engine/internal/common/validation"
	"automation-engine/internal/models"
)

// SeedDefaults inserts the default setting of every registered workflow.
// Existing rows are never overwritten, so repeated calls are harmless.
func (e *Engine) SeedDefaults(ctx context.Context) error {
	for _, def := range e.registry.Definitions() {
		if err := e.settings.UpsertDefault(ctx, def.Default); err != nil {
			return fmt.Errorf("seed %s: %w", def.Type, err)
		}
	}
	e.logger.Info("default settings seeded", map[string]interface{}{
		"workflows": len(e.registry.Definitions()),
	})
	return nil
}

func (e *Engine) GetSettings(ctx context.Context) ([]models.AutomationSetting, error) {
	settings, err := e.settings.List(ctx)
	if err != nil {
		return nil, apperrors.NewSettingsLoadFailedError(err)
	}
	return settings, nil
}

// UpdateSettings validates and persists a partial update. It takes effect on the next tick.
func (e *Engine) UpdateSettings(ctx context.Context, workflowType models.WorkflowType, patch models.SettingsPatch) (*models.AutomationSetting, error) {
	def, err := e.registry.Lookup(workflowType)
	if err != nil {
		return nil, err
	}

	if patch.IsEmpty() {
		return nil, apperrors.NewInvalidSettingsError(string(workflowType), "patch is empty")
	}
	result, err := validation.ValidateSettingsPatchValue(patch)
	if err != nil {
		return nil, apperrors.NewInvalidSettingsError(string(workflowType), err.Error())
	}
	if !result.Valid {
		return nil, apperrors.NewInvalidSettingsError(string(workflowType), result.Error())
	}

	if patch.TimingOffsetMinutes != nil {
		offset := patch.Apply(models.AutomationSetting{}).TimingOffset
		if !def.AllowsOffset(offset) {
			return nil, apperrors.NewInvalidSettingsError(string(workflowType),
				fmt.Sprintf("offset %s contradicts direction %s", offset, def.Direction))
		}
	}

	updated, err := e.settings.Update(ctx, workflowType, patch)
	if err != nil {
		if errors.Is(err, ErrNotFound) {
			return nil, apperrors.NewInvalidSettingsError(string(workflowType), "no settings row; run seed first")
		}
		return nil, fmt.Errorf("update settings %s: %w", workflowType, err)
	}

	e.logger.Info("settings updated", map[string]interface{}{
		"workflowType":      string(workflowType),
		"enabled":           updated.Enabled,
		"timingOffset":      updated.TimingOffset.String(),
		"businessHoursOnly": updated.BusinessHoursOnly,
	})
	return updated, nil
}

// TriggerAutomation dispatches one subject immediately, bypassing the window,
// the business hours gate and the enabled flag. It still goes through the
// dedup guard and writes a manual ledger record.
func (e *Engine) TriggerAutomation(ctx context.Context, workflowType models.WorkflowType, subjectID string) (*models.DispatchResult, error) {
	def, err := e.registry.Lookup(workflowType)
	if err != nil {
		return nil, err
	}

	subject, err := e.subjects.FindByID(ctx, workflowType, subjectID)
	if err != nil {
		if errors.Is(err, ErrNotFound) {
			return nil, apperrors.NewSubjectNotFoundError(string(workflowType), subjectID)
		}
		return nil, apperrors.NewCandidateQueryFailedError(string(workflowType), err)
	}
	if subject.OptedOut {
		return nil, apperrors.NewRecipientUnavailableError(subjectID, "recipient opted out")
	}
	if subject.Recipient == "" {
		return nil, apperrors.NewRecipientUnavailableError(subjectID, "no recipient address")
	}

	outcome, record, err := e.dispatcher.Dispatch(ctx, def, *subject, models.TriggerManual)
	if err != nil {
		return nil, err
	}

	switch outcome {
	case OutcomeSent:
		return &models.DispatchResult{Success: true, Record: record}, nil
	case OutcomeFailed:
		return &models.DispatchResult{Success: false, Error: record.Error, Record: record}, nil
	case OutcomeLocked:
		return &models.DispatchResult{Success: false, Error: "dispatch in progress"}, nil
	default:
		return &models.DispatchResult{Success: false, Error: ErrAlreadySent.Error()}, nil
	}
}

// GetLogs returns ledger records newest first.
func (e *Engine) GetLogs(ctx context.Context, filter models.LogFilter) ([]models.DispatchRecord, error) {
	if filter.WorkflowType != "" {
		if _, err := e.registry.Lookup(filter.WorkflowType); err != nil {
			return nil, err
		}
	}
	if filter.Limit <= 0 {
		filter.Limit = DefaultLogLimit
	}
	if filter.Limit > MaxLogLimit {
		filter.Limit = MaxLogLimit
	}
	if filter.Offset < 0 {
		filter.Offset = 0
	}

	records, err := e.ledger.List(ctx, filter)
	if err != nil {
		return nil, apperrors.NewLedgerReadFailedError(err)
	}
	return records, nil
}
