// internal/notifier/notifier_test.go
package notifier

import (
	"context"
	"errors"
	"testing"

	"github.com/aws/aws-sdk-go-v2/service/ses"
	"github.com/aws/aws-sdk-go-v2/service/sns"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"automation-engine/internal/common/logger"
	"automation-engine/internal/models"
)

// ==========================
// Mock AWS Services
// ==========================

type MockSESService struct {
	SendEmailFunc func(ctx context.Context, params *ses.SendEmailInput, optFns ...func(*ses.Options)) (*ses.SendEmailOutput, error)
}

func (m *MockSESService) SendEmail(ctx context.Context, params *ses.SendEmailInput, optFns ...func(*ses.Options)) (*ses.SendEmailOutput, error) {
	return m.SendEmailFunc(ctx, params, optFns...)
}

type MockSNSService struct {
	PublishFunc func(ctx context.Context, params *sns.PublishInput, optFns ...func(*sns.Options)) (*sns.PublishOutput, error)
}

func (m *MockSNSService) Publish(ctx context.Context, params *sns.PublishInput, optFns ...func(*sns.Options)) (*sns.PublishOutput, error) {
	return m.PublishFunc(ctx, params, optFns...)
}

// ==========================
// Test Helper Functions
// ==========================

func createTestConfig() Config {
	return Config{
		EmailEnabled: true,
		SMSEnabled:   true,
		FromEmail:    "hello@studio.example",
	}
}

func failingSES(t *testing.T) *MockSESService {
	return &MockSESService{
		SendEmailFunc: func(ctx context.Context, params *ses.SendEmailInput, optFns ...func(*ses.Options)) (*ses.SendEmailOutput, error) {
			t.Fatal("unexpected SES call")
			return nil, nil
		},
	}
}

func failingSNS(t *testing.T) *MockSNSService {
	return &MockSNSService{
		PublishFunc: func(ctx context.Context, params *sns.PublishInput, optFns ...func(*sns.Options)) (*sns.PublishOutput, error) {
			t.Fatal("unexpected SNS call")
			return nil, nil
		},
	}
}

func reminderVars() map[string]string {
	return map[string]string{
		"customerName": "Jane",
		"serviceName":  "Facial",
		"staffName":    "Ana",
		"date":         "Wednesday, March 11",
		"time":         "3:00 PM",
		"businessName": "Glow Studio",
	}
}

// ==========================
// Channel Routing Tests
// ==========================

func TestNotifier_Send_Email(t *testing.T) {
	var captured *ses.SendEmailInput
	mockSES := &MockSESService{
		SendEmailFunc: func(ctx context.Context, params *ses.SendEmailInput, optFns ...func(*ses.Options)) (*ses.SendEmailOutput, error) {
			captured = params
			return &ses.SendEmailOutput{}, nil
		},
	}

	n := New(createTestConfig(), mockSES, failingSNS(t), logger.NewTestLogger(t))
	err := n.Send(context.Background(), models.WorkflowReminder24h, "jane@example.com", reminderVars())
	require.NoError(t, err)

	require.NotNil(t, captured)
	assert.Equal(t, []string{"jane@example.com"}, captured.Destination.ToAddresses)
	assert.Equal(t, "hello@studio.example", *captured.Source)
	assert.Equal(t, "Reminder: your Facial appointment tomorrow", *captured.Message.Subject.Data)
	assert.Contains(t, *captured.Message.Body.Text.Data, "with Ana on Wednesday, March 11 at 3:00 PM")
}

func TestNotifier_Send_SMS(t *testing.T) {
	var captured *sns.PublishInput
	mockSNS := &MockSNSService{
		PublishFunc: func(ctx context.Context, params *sns.PublishInput, optFns ...func(*sns.Options)) (*sns.PublishOutput, error) {
			captured = params
			return &sns.PublishOutput{}, nil
		},
	}

	cfg := createTestConfig()
	cfg.SenderID = "GLOW"
	n := New(cfg, failingSES(t), mockSNS, logger.NewTestLogger(t))

	err := n.Send(context.Background(), models.WorkflowReminder24h, "+15551234567", reminderVars())
	require.NoError(t, err)

	require.NotNil(t, captured)
	assert.Equal(t, "+15551234567", *captured.PhoneNumber)
	assert.Equal(t, "Glow Studio: reminder of your Facial appointment on Wednesday, March 11 at 3:00 PM.", *captured.Message)
	assert.Equal(t, "GLOW", *captured.MessageAttributes["AWS.SNS.SMS.SenderID"].StringValue)
}

func TestNotifier_Send_Rejections(t *testing.T) {
	tests := []struct {
		name      string
		cfg       func(*Config)
		wt        models.WorkflowType
		recipient string
		wantErr   error
	}{
		{
			name:      "email channel disabled",
			cfg:       func(c *Config) { c.EmailEnabled = false },
			wt:        models.WorkflowAftercare,
			recipient: "jane@example.com",
			wantErr:   ErrChannelDisabled,
		},
		{
			name:      "sms channel disabled",
			cfg:       func(c *Config) { c.SMSEnabled = false },
			wt:        models.WorkflowAftercare,
			recipient: "+15551234567",
			wantErr:   ErrChannelDisabled,
		},
		{
			name:      "local phone number is not routable",
			wt:        models.WorkflowAftercare,
			recipient: "555-1234",
			wantErr:   ErrInvalidRecipient,
		},
		{
			name:      "malformed email",
			wt:        models.WorkflowAftercare,
			recipient: "jane@localhost",
			wantErr:   ErrInvalidRecipient,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			cfg := createTestConfig()
			if tt.cfg != nil {
				tt.cfg(&cfg)
			}
			n := New(cfg, failingSES(t), failingSNS(t), logger.NewNoOpLogger())

			err := n.Send(context.Background(), tt.wt, tt.recipient, map[string]string{})
			assert.ErrorIs(t, err, tt.wantErr)
		})
	}
}

func TestNotifier_Send_UnknownTemplate(t *testing.T) {
	n := New(createTestConfig(), failingSES(t), failingSNS(t), nil)

	err := n.Send(context.Background(), "birthday", "jane@example.com", nil)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "template not found")
}

func TestNotifier_Send_ProviderError(t *testing.T) {
	mockSES := &MockSESService{
		SendEmailFunc: func(ctx context.Context, params *ses.SendEmailInput, optFns ...func(*ses.Options)) (*ses.SendEmailOutput, error) {
			return nil, errors.New("MessageRejected: address blacklisted")
		},
	}

	n := New(createTestConfig(), mockSES, failingSNS(t), logger.NewNoOpLogger())
	err := n.Send(context.Background(), models.WorkflowReviewRequest, "jane@example.com", reminderVars())
	require.Error(t, err)
	assert.Contains(t, err.Error(), "MessageRejected")
}

func TestNotifier_SetTemplate(t *testing.T) {
	var subject string
	mockSES := &MockSESService{
		SendEmailFunc: func(ctx context.Context, params *ses.SendEmailInput, optFns ...func(*ses.Options)) (*ses.SendEmailOutput, error) {
			subject = *params.Message.Subject.Data
			return &ses.SendEmailOutput{}, nil
		},
	}

	n := New(createTestConfig(), mockSES, failingSNS(t), logger.NewNoOpLogger())
	n.SetTemplate(models.WorkflowReEngagement, Template{Subject: "Come back, {{customerName}}", Body: "."})

	require.NoError(t, n.Send(context.Background(), models.WorkflowReEngagement, "jane@example.com", map[string]string{"customerName": "Jane"}))
	assert.Equal(t, "Come back, Jane", subject)
}

// ==========================
// Template Rendering Tests
// ==========================

func TestRenderTemplate(t *testing.T) {
	tests := []struct {
		name string
		tmpl string
		data map[string]string
		want string
	}{
		{"substitutes values", "Hi {{customerName}}!", map[string]string{"customerName": "Jane"}, "Hi Jane!"},
		{"strips missing placeholders", "Hi {{customerName}}. {{requestSummary}}", map[string]string{"customerName": "Jane"}, "Hi Jane."},
		{"leaves unterminated braces", "Hi {{customerName", nil, "Hi {{customerName"},
		{"nil data", "{{a}}{{b}}done", nil, "done"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, renderTemplate(tt.tmpl, tt.data))
		})
	}
}

func TestDefaultTemplates_CoverBuiltinWorkflows(t *testing.T) {
	templates := defaultTemplates()
	for _, wt := range []models.WorkflowType{
		models.WorkflowReminder24h,
		models.WorkflowAftercare,
		models.WorkflowReviewRequest,
		models.WorkflowReEngagement,
		models.WorkflowAbandonedRecovery,
	} {
		tmpl, ok := templates[wt]
		require.True(t, ok, wt)
		assert.NotEmpty(t, tmpl.Subject, wt)
		assert.NotEmpty(t, tmpl.Body, wt)
		assert.NotEmpty(t, tmpl.SMS, wt)
	}
}
