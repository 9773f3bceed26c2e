// internal/repository/settings_repository.go
package repository

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	"automation-engine/internal/automation"
	"automation-engine/internal/models"
)

const settingsColumns = `workflow_type, enabled, timing_offset_minutes, business_hours_only, updated_at`

type SettingsRepository struct {
	db *sql.DB
}

func NewSettingsRepository(db *sql.DB) *SettingsRepository {
	return &SettingsRepository{db: db}
}

func (r *SettingsRepository) List(ctx context.Context) ([]models.AutomationSetting, error) {
	return r.query(ctx, `SELECT `+settingsColumns+` FROM automation_settings ORDER BY workflow_type`)
}

func (r *SettingsRepository) ListEnabled(ctx context.Context) ([]models.AutomationSetting, error) {
	return r.query(ctx, `SELECT `+settingsColumns+` FROM automation_settings WHERE enabled ORDER BY workflow_type`)
}

// UpsertDefault never overwrites an existing row.
func (r *SettingsRepository) UpsertDefault(ctx context.Context, s models.AutomationSetting) error {
	_, err := r.db.ExecContext(ctx, `
		INSERT INTO automation_settings (workflow_type, enabled, timing_offset_minutes, business_hours_only, updated_at)
		VALUES ($1, $2, $3, $4, NOW())
		ON CONFLICT (workflow_type) DO NOTHING`,
		string(s.WorkflowType), s.Enabled, int(s.TimingOffset/time.Minute), s.BusinessHoursOnly,
	)
	if err != nil {
		return fmt.Errorf("upsert default setting %s: %w", s.WorkflowType, err)
	}
	return nil
}

// Update applies the non-nil patch fields in one statement.
func (r *SettingsRepository) Update(ctx context.Context, workflowType models.WorkflowType, patch models.SettingsPatch) (*models.AutomationSetting, error) {
	row := r.db.QueryRowContext(ctx, `
		UPDATE automation_settings SET
			enabled = COALESCE($2, enabled),
			timing_offset_minutes = COALESCE($3, timing_offset_minutes),
			business_hours_only = COALESCE($4, business_hours_only),
			updated_at = NOW()
		WHERE workflow_type = $1
		RETURNING `+settingsColumns,
		string(workflowType), patch.Enabled, patch.TimingOffsetMinutes, patch.BusinessHoursOnly,
	)

	s, err := scanSetting(row)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, automation.ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("update setting %s: %w", workflowType, err)
	}
	return s, nil
}

func (r *SettingsRepository) query(ctx context.Context, query string) ([]models.AutomationSetting, error) {
	rows, err := r.db.QueryContext(ctx, query)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var settings []models.AutomationSetting
	for rows.Next() {
		s, err := scanSetting(rows)
		if err != nil {
			return nil, err
		}
		settings = append(settings, *s)
	}
	return settings, rows.Err()
}

type scanner interface {
	Scan(dest ...interface{}) error
}

func scanSetting(sc scanner) (*models.AutomationSetting, error) {
	var (
		s             models.AutomationSetting
		workflowType  string
		offsetMinutes int
	)
	if err := sc.Scan(&workflowType, &s.Enabled, &offsetMinutes, &s.BusinessHoursOnly, &s.UpdatedAt); err != nil {
		return nil, err
	}
	s.WorkflowType = models.WorkflowType(workflowType)
	s.TimingOffset = time.Duration(offsetMinutes) * time.Minute
	return &s, nil
}
