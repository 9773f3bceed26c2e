// internal/automation/registry.go
package automation

import (
	"fmt"
	"sort"
	"sync"
	"time"

	apperrors "automation-engine/internal/common/errors"
	"automation-engine/internal/models"
)

// Subject attribute keys filled by the subject store projections.
const (
	AttrCustomerName   = "customerName"
	AttrServiceName    = "serviceName"
	AttrStaffName      = "staffName"
	AttrStartAt        = "startAt"
	AttrRequestSummary = "requestSummary"
)

const (
	dateLayout = "Monday, January 2"
	timeLayout = "3:04 PM"
)

// VariableFunc projects a subject onto the template variables of a workflow.
type VariableFunc func(subject models.Subject, loc *time.Location) map[string]string

// Definition binds a workflow type to its subject kind, offset direction and defaults.
// None of these are runtime settings.
type Definition struct {
	Type      models.WorkflowType
	Kind      models.SubjectKind
	Direction models.Direction
	Default   models.AutomationSetting
	Variables VariableFunc
}

// AllowsOffset reports whether offset agrees with the definition's direction.
func (d Definition) AllowsOffset(offset time.Duration) bool {
	if d.Direction == models.DirectionBefore {
		return offset <= 0
	}
	return offset >= 0
}

type Registry struct {
	mu   sync.RWMutex
	defs map[models.WorkflowType]Definition
}

func NewRegistry() *Registry {
	return &Registry{defs: make(map[models.WorkflowType]Definition)}
}

// NewDefaultRegistry returns a registry holding the built-in workflows.
func NewDefaultRegistry() *Registry {
	r := NewRegistry()
	for _, def := range builtinDefinitions() {
		if err := r.Register(def); err != nil {
			panic(err)
		}
	}
	return r
}

func (r *Registry) Register(def Definition) error {
	if def.Type == "" {
		return fmt.Errorf("workflow definition has no type")
	}
	if def.Direction != models.DirectionBefore && def.Direction != models.DirectionAfter {
		return fmt.Errorf("workflow %s: invalid direction %q", def.Type, def.Direction)
	}
	if !def.AllowsOffset(def.Default.TimingOffset) {
		return fmt.Errorf("workflow %s: default offset %s contradicts direction %s",
			def.Type, def.Default.TimingOffset, def.Direction)
	}
	if def.Variables == nil {
		def.Variables = baseVariables
	}
	def.Default.WorkflowType = def.Type

	r.mu.Lock()
	defer r.mu.Unlock()
	if _, exists := r.defs[def.Type]; exists {
		return fmt.Errorf("workflow %s already registered", def.Type)
	}
	r.defs[def.Type] = def
	return nil
}

func (r *Registry) Lookup(workflowType models.WorkflowType) (Definition, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	def, ok := r.defs[workflowType]
	if !ok {
		return Definition{}, apperrors.NewUnknownWorkflowTypeError(string(workflowType))
	}
	return def, nil
}

// Definitions returns all registered definitions ordered by type.
func (r *Registry) Definitions() []Definition {
	r.mu.RLock()
	defer r.mu.RUnlock()
	out := make([]Definition, 0, len(r.defs))
	for _, def := range r.defs {
		out = append(out, def)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Type < out[j].Type })
	return out
}

func builtinDefinitions() []Definition {
	return []Definition{
		{
			Type:      models.WorkflowReminder24h,
			Kind:      models.SubjectAppointment,
			Direction: models.DirectionBefore,
			Default:   models.AutomationSetting{Enabled: true, TimingOffset: -24 * time.Hour},
			Variables: appointmentVariables,
		},
		{
			Type:      models.WorkflowAftercare,
			Kind:      models.SubjectAppointment,
			Direction: models.DirectionAfter,
			Default:   models.AutomationSetting{Enabled: true, TimingOffset: 2 * time.Hour, BusinessHoursOnly: true},
			Variables: appointmentVariables,
		},
		{
			Type:      models.WorkflowReviewRequest,
			Kind:      models.SubjectAppointment,
			Direction: models.DirectionAfter,
			Default:   models.AutomationSetting{TimingOffset: 24 * time.Hour, BusinessHoursOnly: true},
			Variables: appointmentVariables,
		},
		{
			Type:      models.WorkflowReEngagement,
			Kind:      models.SubjectCustomer,
			Direction: models.DirectionAfter,
			Default:   models.AutomationSetting{TimingOffset: 60 * 24 * time.Hour, BusinessHoursOnly: true},
			Variables: customerVariables,
		},
		{
			Type:      models.WorkflowAbandonedRecovery,
			Kind:      models.SubjectRequest,
			Direction: models.DirectionAfter,
			Default:   models.AutomationSetting{TimingOffset: time.Hour, BusinessHoursOnly: true},
			Variables: requestVariables,
		},
	}
}

func baseVariables(s models.Subject, _ *time.Location) map[string]string {
	name := s.Attr(AttrCustomerName)
	if name == "" {
		name = "there"
	}
	return map[string]string{"customerName": name}
}

// appointmentVariables formats the appointment start, which is not always the
// reference timestamp (aftercare references the end time).
func appointmentVariables(s models.Subject, loc *time.Location) map[string]string {
	vars := baseVariables(s, loc)
	vars["serviceName"] = s.Attr(AttrServiceName)
	vars["staffName"] = s.Attr(AttrStaffName)

	start := s.ReferenceAt
	if raw := s.Attr(AttrStartAt); raw != "" {
		if parsed, err := time.Parse(time.RFC3339, raw); err == nil {
			start = parsed
		}
	}
	if loc == nil {
		loc = time.UTC
	}
	local := start.In(loc)
	vars["date"] = local.Format(dateLayout)
	vars["time"] = local.Format(timeLayout)
	return vars
}

func customerVariables(s models.Subject, loc *time.Location) map[string]string {
	vars := baseVariables(s, loc)
	if loc == nil {
		loc = time.UTC
	}
	vars["lastVisitDate"] = s.ReferenceAt.In(loc).Format(dateLayout)
	return vars
}

func requestVariables(s models.Subject, loc *time.Location) map[string]string {
	vars := baseVariables(s, loc)
	vars["serviceName"] = s.Attr(AttrServiceName)
	vars["requestSummary"] = s.Attr(AttrRequestSummary)
	return vars
}
