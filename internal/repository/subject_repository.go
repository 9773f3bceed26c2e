// internal/repository/subject_repository.go
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

// subjectQuery projects one entity population onto the uniform subject columns:
// id, customer_id, customer_name, recipient, opted_out, reference_at,
// service_name, staff_name, start_at, summary.
type subjectQuery struct {
	kind      models.SubjectKind
	base      string // SELECT ... FROM ... WHERE <lifecycle filter>
	idColumn  string
	reference string
	recipient string
	optedOut  string
}

func (q subjectQuery) candidatesSQL() string {
	return fmt.Sprintf("%s AND %s > $1 AND %s <= $2 AND NOT %s AND %s <> '' ORDER BY %s",
		q.base, q.reference, q.reference, q.optedOut, q.recipient, q.reference)
}

func (q subjectQuery) byIDSQL() string {
	return fmt.Sprintf("%s AND %s::text = $1", q.base, q.idColumn)
}

const (
	customerRecipient = `COALESCE(NULLIF(c.email, ''), c.phone, '')`
	customerOptedOut  = `c.email_unsubscribed`
)

func appointmentSelect(reference, lifecycle string) string {
	return `SELECT a.id::text, c.id::text, COALESCE(c.name, ''), ` + customerRecipient + `, ` + customerOptedOut + `,
			` + reference + `, COALESCE(s.name, ''), COALESCE(st.name, ''), a.start_time, ''
		FROM appointments a
		JOIN customers c ON c.id = a.customer_id
		LEFT JOIN services s ON s.id = a.service_id
		LEFT JOIN staff st ON st.id = a.staff_id
		WHERE ` + lifecycle
}

// subjectQueries binds each workflow to its entity population, reference
// column and lifecycle filter.
var subjectQueries = map[models.WorkflowType]subjectQuery{
	models.WorkflowReminder24h: {
		kind:      models.SubjectAppointment,
		base:      appointmentSelect("a.start_time", `a.status IN ('scheduled', 'confirmed')`),
		idColumn:  "a.id",
		reference: "a.start_time",
		recipient: customerRecipient,
		optedOut:  customerOptedOut,
	},
	models.WorkflowAftercare: {
		kind:      models.SubjectAppointment,
		base:      appointmentSelect("a.end_time", `a.status = 'completed' AND COALESCE(s.requires_aftercare, FALSE)`),
		idColumn:  "a.id",
		reference: "a.end_time",
		recipient: customerRecipient,
		optedOut:  customerOptedOut,
	},
	models.WorkflowReviewRequest: {
		kind:      models.SubjectAppointment,
		base:      appointmentSelect("a.end_time", `a.status = 'completed'`),
		idColumn:  "a.id",
		reference: "a.end_time",
		recipient: customerRecipient,
		optedOut:  customerOptedOut,
	},
	models.WorkflowReEngagement: {
		kind: models.SubjectCustomer,
		base: `SELECT c.id::text, c.id::text, COALESCE(c.name, ''), ` + customerRecipient + `, ` + customerOptedOut + `,
				c.last_visit_at, '', '', NULL::timestamptz, ''
			FROM customers c
			WHERE c.last_visit_at IS NOT NULL
			AND NOT EXISTS (
				SELECT 1 FROM appointments f
				WHERE f.customer_id = c.id
				AND f.status IN ('scheduled', 'confirmed')
				AND f.start_time > NOW()
			)`,
		idColumn:  "c.id",
		reference: "c.last_visit_at",
		recipient: customerRecipient,
		optedOut:  customerOptedOut,
	},
	models.WorkflowAbandonedRecovery: {
		kind: models.SubjectRequest,
		base: `SELECT r.id::text, c.id::text, COALESCE(NULLIF(r.contact_name, ''), c.name, ''),
				COALESCE(NULLIF(r.contact_email, ''), c.email, ''), COALESCE(c.email_unsubscribed, FALSE),
				r.created_at, COALESCE(s.name, ''), '', NULL::timestamptz, COALESCE(r.notes, '')
			FROM booking_requests r
			LEFT JOIN customers c ON c.id = r.customer_id
			LEFT JOIN services s ON s.id = r.service_id
			WHERE r.status = 'new'`,
		idColumn:  "r.id",
		reference: "r.created_at",
		recipient: `COALESCE(NULLIF(r.contact_email, ''), c.email, '')`,
		optedOut:  `COALESCE(c.email_unsubscribed, FALSE)`,
	},
}

// SubjectRepository reads the host application's entity tables.
type SubjectRepository struct {
	db      *sql.DB
	queries map[models.WorkflowType]subjectQuery
}

func NewSubjectRepository(db *sql.DB) *SubjectRepository {
	return &SubjectRepository{db: db, queries: subjectQueries}
}

func (r *SubjectRepository) lookup(workflowType models.WorkflowType) (subjectQuery, error) {
	q, ok := r.queries[workflowType]
	if !ok {
		return subjectQuery{}, fmt.Errorf("no subject query for workflow %s", workflowType)
	}
	return q, nil
}

// FindCandidates returns subjects whose reference timestamp is in (start, end].
func (r *SubjectRepository) FindCandidates(ctx context.Context, workflowType models.WorkflowType, start, end time.Time) ([]models.Subject, error) {
	q, err := r.lookup(workflowType)
	if err != nil {
		return nil, err
	}

	rows, err := r.db.QueryContext(ctx, q.candidatesSQL(), start, end)
	if err != nil {
		return nil, fmt.Errorf("query %s candidates: %w", workflowType, err)
	}
	defer rows.Close()

	var subjects []models.Subject
	for rows.Next() {
		s, err := scanSubject(rows, q.kind)
		if err != nil {
			return nil, err
		}
		subjects = append(subjects, *s)
	}
	return subjects, rows.Err()
}

// FindByID applies the lifecycle filter but not the window or opt-out filters,
// so callers can tell an opted-out subject from a missing one.
func (r *SubjectRepository) FindByID(ctx context.Context, workflowType models.WorkflowType, id string) (*models.Subject, error) {
	q, err := r.lookup(workflowType)
	if err != nil {
		return nil, err
	}

	s, err := scanSubject(r.db.QueryRowContext(ctx, q.byIDSQL(), id), q.kind)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, automation.ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("find %s subject %s: %w", workflowType, id, err)
	}
	return s, nil
}

func scanSubject(sc scanner, kind models.SubjectKind) (*models.Subject, error) {
	var (
		s                                        models.Subject
		customerID                               sql.NullString
		customerName, serviceName, staffName, summary string
		startAt                                  sql.NullTime
	)
	if err := sc.Scan(&s.ID, &customerID, &customerName, &s.Recipient, &s.OptedOut,
		&s.ReferenceAt, &serviceName, &staffName, &startAt, &summary); err != nil {
		return nil, err
	}

	s.Kind = kind
	s.CustomerID = customerID.String
	s.Attributes = map[string]string{
		automation.AttrCustomerName: customerName,
	}
	if serviceName != "" {
		s.Attributes[automation.AttrServiceName] = serviceName
	}
	if staffName != "" {
		s.Attributes[automation.AttrStaffName] = staffName
	}
	if startAt.Valid {
		s.Attributes[automation.AttrStartAt] = startAt.Time.UTC().Format(time.RFC3339)
	}
	if summary != "" {
		s.Attributes[automation.AttrRequestSummary] = summary
	}
	return &s, nil
}
