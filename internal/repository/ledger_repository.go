// internal/repository/ledger_repository.go
package repository

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"strings"

	"github.com/lib/pq"

	"automation-engine/internal/automation"
	"automation-engine/internal/models"
)

const uniqueViolation = "23505"

// LedgerRepository stores dispatch records in automation_logs.
type LedgerRepository struct {
	db *sql.DB
}

func NewLedgerRepository(db *sql.DB) *LedgerRepository {
	return &LedgerRepository{db: db}
}

func (r *LedgerRepository) HasSent(ctx context.Context, workflowType models.WorkflowType, subjectID string) (bool, error) {
	var exists bool
	err := r.db.QueryRowContext(ctx, `
		SELECT EXISTS (
			SELECT 1 FROM automation_logs
			WHERE workflow_type = $1 AND subject_id = $2 AND status = 'sent'
		)`, string(workflowType), subjectID).Scan(&exists)
	if err != nil {
		return false, fmt.Errorf("check sent record: %w", err)
	}
	return exists, nil
}

// Record appends a dispatch record. A second sent record for the same pair
// violates automation_logs_sent_once and is reported as automation.ErrAlreadySent.
func (r *LedgerRepository) Record(ctx context.Context, rec *models.DispatchRecord) error {
	_, err := r.db.ExecContext(ctx, `
		INSERT INTO automation_logs
			(id, workflow_type, subject_kind, subject_id, recipient, status, error, trigger_source, attempted_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9)`,
		rec.ID, string(rec.WorkflowType), string(rec.SubjectKind), rec.SubjectID, rec.Recipient,
		string(rec.Status), sql.NullString{String: rec.Error, Valid: rec.Error != ""},
		string(rec.Trigger), rec.AttemptedAt,
	)
	if err != nil {
		var pqErr *pq.Error
		if errors.As(err, &pqErr) && pqErr.Code == uniqueViolation {
			return automation.ErrAlreadySent
		}
		return fmt.Errorf("insert dispatch record: %w", err)
	}
	return nil
}

// List returns records newest first.
func (r *LedgerRepository) List(ctx context.Context, filter models.LogFilter) ([]models.DispatchRecord, error) {
	var (
		conds []string
		args  []interface{}
	)
	add := func(cond string, arg interface{}) {
		args = append(args, arg)
		conds = append(conds, fmt.Sprintf(cond, len(args)))
	}

	if filter.WorkflowType != "" {
		add("workflow_type = $%d", string(filter.WorkflowType))
	}
	if filter.SubjectID != "" {
		add("subject_id = $%d", filter.SubjectID)
	}
	if filter.Status != "" {
		add("status = $%d", string(filter.Status))
	}
	if !filter.Since.IsZero() {
		add("attempted_at >= $%d", filter.Since)
	}
	if !filter.Until.IsZero() {
		add("attempted_at < $%d", filter.Until)
	}

	var sb strings.Builder
	sb.WriteString(`SELECT id, workflow_type, subject_kind, subject_id, recipient, status, COALESCE(error, ''), trigger_source, attempted_at FROM automation_logs`)
	if len(conds) > 0 {
		sb.WriteString(" WHERE ")
		sb.WriteString(strings.Join(conds, " AND "))
	}
	args = append(args, filter.Limit, filter.Offset)
	fmt.Fprintf(&sb, " ORDER BY attempted_at DESC, id DESC LIMIT $%d OFFSET $%d", len(args)-1, len(args))

	rows, err := r.db.QueryContext(ctx, sb.String(), args...)
	if err != nil {
		return nil, fmt.Errorf("list dispatch records: %w", err)
	}
	defer rows.Close()

	var records []models.DispatchRecord
	for rows.Next() {
		var (
			rec                                       models.DispatchRecord
			workflowType, kind, status, triggerSource string
		)
		if err := rows.Scan(&rec.ID, &workflowType, &kind, &rec.SubjectID, &rec.Recipient,
			&status, &rec.Error, &triggerSource, &rec.AttemptedAt); err != nil {
			return nil, err
		}
		rec.WorkflowType = models.WorkflowType(workflowType)
		rec.SubjectKind = models.SubjectKind(kind)
		rec.Status = models.DispatchStatus(status)
		rec.Trigger = models.TriggerSource(triggerSource)
		records = append(records, rec)
	}
	return records, rows.Err()
}
