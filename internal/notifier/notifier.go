// internal/notifier/notifier.go
package notifier

import (
	"context"
	"errors"
	"fmt"
	"regexp"
	"strings"

	"github.com/aws/aws-sdk-go-v2/aws"
	"github.com/aws/aws-sdk-go-v2/service/ses"
	"github.com/aws/aws-sdk-go-v2/service/ses/types"
	"github.com/aws/aws-sdk-go-v2/service/sns"
	snstypes "github.com/aws/aws-sdk-go-v2/service/sns/types"

	awsclients "automation-engine/internal/common/aws"
	"automation-engine/internal/common/config"
	"automation-engine/internal/common/logger"
	"automation-engine/internal/models"
)

var (
	ErrChannelDisabled  = errors.New("notification channel disabled")
	ErrInvalidRecipient = errors.New("recipient is neither an e-mail address nor an E.164 phone number")
)

var e164 = regexp.MustCompile(`^\+[1-9][0-9]{6,14}$`)

// SESService and SNSService are the slices of the AWS clients the notifier uses.
type SESService interface {
	SendEmail(ctx context.Context, params *ses.SendEmailInput, optFns ...func(*ses.Options)) (*ses.SendEmailOutput, error)
}

type SNSService interface {
	Publish(ctx context.Context, params *sns.PublishInput, optFns ...func(*sns.Options)) (*sns.PublishOutput, error)
}

type Config struct {
	EmailEnabled bool
	SMSEnabled   bool
	FromEmail    string
	SenderID     string
}

// Notifier renders the workflow template and delivers it by e-mail (SES)
// or SMS (SNS) depending on the recipient format.
type Notifier struct {
	config    Config
	ses       SESService
	sns       SNSService
	templates map[models.WorkflowType]Template
	logger    logger.Logger
}

func New(cfg Config, sesClient SESService, snsClient SNSService, log logger.Logger) *Notifier {
	if log == nil {
		log = logger.NewNoOpLogger()
	}
	return &Notifier{
		config:    cfg,
		ses:       sesClient,
		sns:       snsClient,
		templates: defaultTemplates(),
		logger:    log.With(map[string]interface{}{"component": "notifier"}),
	}
}

// NewFromConfig builds SES and SNS clients from the default AWS credential chain.
func NewFromConfig(ctx context.Context, cfg config.NotificationConfig, log logger.Logger) (*Notifier, error) {
	awsCfg, err := awsclients.LoadConfig(ctx, cfg.AWS.Region)
	if err != nil {
		return nil, fmt.Errorf("load AWS config: %w", err)
	}

	return New(Config{
		EmailEnabled: cfg.Email.Enabled,
		SMSEnabled:   cfg.SMS.Enabled,
		FromEmail:    cfg.Email.FromEmail,
		SenderID:     cfg.SMS.SenderID,
	}, awsclients.NewSESClient(awsCfg), awsclients.NewSNSClient(awsCfg), log), nil
}

// SetTemplate replaces the template for one workflow.
func (n *Notifier) SetTemplate(workflowType models.WorkflowType, tmpl Template) {
	n.templates[workflowType] = tmpl
}

func (n *Notifier) Send(ctx context.Context, workflowType models.WorkflowType, recipient string, vars map[string]string) error {
	tmpl, ok := n.templates[workflowType]
	if !ok {
		return fmt.Errorf("template not found for workflow: %s", workflowType)
	}

	recipient = strings.TrimSpace(recipient)
	switch {
	case isPhoneNumber(recipient):
		if !n.config.SMSEnabled {
			return fmt.Errorf("sms to %s: %w", recipient, ErrChannelDisabled)
		}
		if err := n.sendSMS(ctx, recipient, renderTemplate(tmpl.SMS, vars)); err != nil {
			return fmt.Errorf("sns publish: %w", err)
		}
	case isValidEmail(recipient):
		if !n.config.EmailEnabled {
			return fmt.Errorf("email to %s: %w", recipient, ErrChannelDisabled)
		}
		if err := n.sendEmail(ctx, recipient, renderTemplate(tmpl.Subject, vars), renderTemplate(tmpl.Body, vars)); err != nil {
			return fmt.Errorf("ses send email: %w", err)
		}
	default:
		return ErrInvalidRecipient
	}

	n.logger.Debug("notification delivered", map[string]interface{}{
		"workflowType": workflowType,
		"recipient":    recipient,
	})
	return nil
}

func (n *Notifier) sendEmail(ctx context.Context, to, subject, body string) error {
	_, err := n.ses.SendEmail(ctx, &ses.SendEmailInput{
		Destination: &types.Destination{
			ToAddresses: []string{to},
		},
		Message: &types.Message{
			Subject: &types.Content{Data: aws.String(subject)},
			Body: &types.Body{
				Text: &types.Content{Data: aws.String(body)},
			},
		},
		Source: aws.String(n.config.FromEmail),
	})
	return err
}

func (n *Notifier) sendSMS(ctx context.Context, to, message string) error {
	input := &sns.PublishInput{
		PhoneNumber: aws.String(to),
		Message:     aws.String(message),
	}
	if n.config.SenderID != "" {
		input.MessageAttributes = map[string]snstypes.MessageAttributeValue{
			"AWS.SNS.SMS.SenderID": {DataType: aws.String("String"), StringValue: aws.String(n.config.SenderID)},
		}
	}
	_, err := n.sns.Publish(ctx, input)
	return err
}

func isPhoneNumber(s string) bool {
	return e164.MatchString(s)
}

func isValidEmail(email string) bool {
	parts := strings.Split(email, "@")
	if len(parts) != 2 {
		return false
	}
	if len(parts[0]) == 0 || len(parts[1]) == 0 {
		return false
	}
	return strings.Contains(parts[1], ".")
}
