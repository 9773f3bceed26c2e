// internal/automation/interfaces.go
package automation

import (
	"context"
	"errors"
	"time"

	"automation-engine/internal/models"
)

var (
	// ErrAlreadySent is returned by Ledger.Record when a sent record for the
	// same (workflow type, subject) already exists. It is a benign race outcome.
	ErrAlreadySent = errors.New("already sent")

	// ErrNotFound is returned by stores when a looked-up row does not exist.
	ErrNotFound = errors.New("not found")
)

type SettingsStore interface {
	List(ctx context.Context) ([]models.AutomationSetting, error)
	ListEnabled(ctx context.Context) ([]models.AutomationSetting, error)
	// UpsertDefault inserts s unless a row for s.WorkflowType already exists.
	UpsertDefault(ctx context.Context, s models.AutomationSetting) error
	Update(ctx context.Context, workflowType models.WorkflowType, patch models.SettingsPatch) (*models.AutomationSetting, error)
}

// SubjectStore fetches subjects by their reference timestamp. The window is
// (start, end]; lifecycle, recipient and opt-out filters are applied by the store.
type SubjectStore interface {
	FindCandidates(ctx context.Context, workflowType models.WorkflowType, start, end time.Time) ([]models.Subject, error)
	FindByID(ctx context.Context, workflowType models.WorkflowType, id string) (*models.Subject, error)
}

// Ledger is the append-only dispatch log and the dedup source of truth.
// Record must be safe for concurrent use.
type Ledger interface {
	HasSent(ctx context.Context, workflowType models.WorkflowType, subjectID string) (bool, error)
	Record(ctx context.Context, record *models.DispatchRecord) error
	List(ctx context.Context, filter models.LogFilter) ([]models.DispatchRecord, error)
}

type Notifier interface {
	Send(ctx context.Context, workflowType models.WorkflowType, recipient string, vars map[string]string) error
}

type EventSink interface {
	Publish(ctx context.Context, event models.DispatchEvent) error
}

// Locker hands out best-effort exclusive leases. ok is false when the key is held elsewhere.
type Locker interface {
	TryLock(ctx context.Context, key string, ttl time.Duration) (release func(), ok bool, err error)
}

type Clock interface {
	Now() time.Time
}

type SystemClock struct{}

func (SystemClock) Now() time.Time { return time.Now() }
