// internal/notifier/templates.go
package notifier

import (
	"strings"

	"automation-engine/internal/models"
)

// Template holds the e-mail subject/body and the SMS text for one workflow.
// Placeholders use {{name}}; unknown placeholders render empty.
type Template struct {
	Subject string
	Body    string
	SMS     string
}

func defaultTemplates() map[models.WorkflowType]Template {
	return map[models.WorkflowType]Template{
		models.WorkflowReminder24h: {
			Subject: "Reminder: your {{serviceName}} appointment tomorrow",
			Body:    "Hi {{customerName}}, this is a reminder of your {{serviceName}} appointment with {{staffName}} on {{date}} at {{time}}. See you soon, {{businessName}}.",
			SMS:     "{{businessName}}: reminder of your {{serviceName}} appointment on {{date}} at {{time}}.",
		},
		models.WorkflowAftercare: {
			Subject: "Caring for yourself after your {{serviceName}}",
			Body:    "Hi {{customerName}}, thank you for visiting {{businessName}}. Here are a few tips to get the most out of your {{serviceName}}.",
			SMS:     "{{businessName}}: thanks for visiting! Reply if you have any questions about your {{serviceName}}.",
		},
		models.WorkflowReviewRequest: {
			Subject: "How was your visit?",
			Body:    "Hi {{customerName}}, we hope you enjoyed your {{serviceName}} with {{staffName}}. We would love to hear about your experience at {{businessName}}.",
			SMS:     "{{businessName}}: how was your {{serviceName}}? We would love your feedback.",
		},
		models.WorkflowReEngagement: {
			Subject: "We miss you at {{businessName}}",
			Body:    "Hi {{customerName}}, it has been a while since your last visit on {{lastVisitDate}}. Book your next appointment whenever you are ready.",
			SMS:     "{{businessName}}: it has been a while! Book your next visit any time.",
		},
		models.WorkflowAbandonedRecovery: {
			Subject: "Finish booking your {{serviceName}}",
			Body:    "Hi {{customerName}}, you started a booking request with {{businessName}} but did not finish. {{requestSummary}}",
			SMS:     "{{businessName}}: your booking request is waiting. Reply to finish booking.",
		},
	}
}

// renderTemplate substitutes known placeholders and strips the rest.
func renderTemplate(tmpl string, data map[string]string) string {
	result := tmpl
	for k, v := range data {
		result = strings.ReplaceAll(result, "{{"+k+"}}", v)
	}

	for {
		start := strings.Index(result, "{{")
		if start == -1 {
			break
		}
		end := strings.Index(result[start:], "}}")
		if end == -1 {
			break
		}
		end += start + 2
		result = result[:start] + result[end:]
	}

	return strings.TrimSpace(result)
}
