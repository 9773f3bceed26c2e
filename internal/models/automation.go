// internal/models/automation.go
package models

import "time"

// WorkflowType names an automation rule. The set is closed and defined at
// compile time; each type carries independent runtime settings.
type WorkflowType string

const (
	WorkflowReminder24h       WorkflowType = "reminder-24h"
	WorkflowAftercare         WorkflowType = "aftercare"
	WorkflowReviewRequest     WorkflowType = "review-request"
	WorkflowReEngagement      WorkflowType = "re-engagement"
	WorkflowAbandonedRecovery WorkflowType = "abandoned-recovery"
)

// SubjectKind discriminates the entity population a workflow watches.
type SubjectKind string

const (
	SubjectAppointment SubjectKind = "appointment"
	SubjectCustomer    SubjectKind = "customer"
	SubjectRequest     SubjectKind = "request"
)

// Direction says whether a workflow fires before or after its reference timestamp.
type Direction string

const (
	DirectionBefore Direction = "before"
	DirectionAfter  Direction = "after"
)

type AutomationSetting struct {
	WorkflowType      WorkflowType  `json:"workflowType"`
	Enabled           bool          `json:"enabled"`
	TimingOffset      time.Duration `json:"timingOffset"` // negative = before the reference timestamp
	BusinessHoursOnly bool          `json:"businessHoursOnly"`
	UpdatedAt         time.Time     `json:"updatedAt,omitempty"`
}

// SettingsPatch is a partial update; nil fields are left unchanged.
type SettingsPatch struct {
	Enabled             *bool `json:"enabled,omitempty"`
	TimingOffsetMinutes *int  `json:"timingOffsetMinutes,omitempty"`
	BusinessHoursOnly   *bool `json:"businessHoursOnly,omitempty"`
}

func (p SettingsPatch) IsEmpty() bool {
	return p.Enabled == nil && p.TimingOffsetMinutes == nil && p.BusinessHoursOnly == nil
}

// Apply returns s with the patch applied.
func (p SettingsPatch) Apply(s AutomationSetting) AutomationSetting {
	if p.Enabled != nil {
		s.Enabled = *p.Enabled
	}
	if p.TimingOffsetMinutes != nil {
		s.TimingOffset = time.Duration(*p.TimingOffsetMinutes) * time.Minute
	}
	if p.BusinessHoursOnly != nil {
		s.BusinessHoursOnly = *p.BusinessHoursOnly
	}
	return s
}

// Subject is the uniform projection of an appointment, customer or request.
type Subject struct {
	Kind        SubjectKind       `json:"kind"`
	ID          string            `json:"id"`
	CustomerID  string            `json:"customerId,omitempty"`
	Recipient   string            `json:"recipient"`
	OptedOut    bool              `json:"optedOut"`
	ReferenceAt time.Time         `json:"referenceAt"`
	Attributes  map[string]string `json:"attributes,omitempty"`
}

func (s Subject) Attr(key string) string {
	if s.Attributes == nil {
		return ""
	}
	return s.Attributes[key]
}

type DispatchStatus string

const (
	StatusSent   DispatchStatus = "sent"
	StatusFailed DispatchStatus = "failed"
)

type TriggerSource string

const (
	TriggerScheduled TriggerSource = "scheduled"
	TriggerManual    TriggerSource = "manual"
)

// DispatchRecord is an append-only ledger row. A sent record is the permanent
// proof that the subject was notified for the workflow.
type DispatchRecord struct {
	ID           string         `json:"id"`
	WorkflowType WorkflowType   `json:"workflowType"`
	SubjectKind  SubjectKind    `json:"subjectKind"`
	SubjectID    string         `json:"subjectId"`
	Recipient    string         `json:"recipient"`
	Status       DispatchStatus `json:"status"`
	Error        string         `json:"error,omitempty"`
	Trigger      TriggerSource  `json:"trigger"`
	AttemptedAt  time.Time      `json:"attemptedAt"`
}

type LogFilter struct {
	WorkflowType WorkflowType
	SubjectID    string
	Status       DispatchStatus
	Since        time.Time
	Until        time.Time
	Limit        int
	Offset       int
}

// DispatchResult is what a manual trigger returns to its caller.
type DispatchResult struct {
	Success bool            `json:"success"`
	Error   string          `json:"error,omitempty"`
	Record  *DispatchRecord `json:"record,omitempty"`
}

// DispatchEvent is emitted for downstream dashboards after a successful send.
type DispatchEvent struct {
	EventID      string        `json:"eventId"`
	WorkflowType WorkflowType  `json:"workflowType"`
	SubjectKind  SubjectKind   `json:"subjectKind"`
	SubjectID    string        `json:"subjectId"`
	CustomerID   string        `json:"customerId,omitempty"`
	Recipient    string        `json:"recipient"`
	Trigger      TriggerSource `json:"trigger"`
	SentAt       time.Time     `json:"sentAt"`
}
