package notify

import (
	"context"
	"fmt"
	"strings"

	"github.com/fatali-fataliyev/budget_watch/internal/contextutil"
	"github.com/fatali-fataliyev/budget_watch/logging"
	"github.com/sirupsen/logrus"
)

const (
	TEMPLATE_BUDGET_ALERT            = "budget-alert"
	TEMPLATE_MONTHLY_REPORT          = "monthly-report"
	TEMPLATE_MONTHLY_REPORT_FALLBACK = "monthly-report-fallback"
)

type Attachment struct {
	FileName    string
	ContentType string
	Content     []byte
}

type Email struct {
	To         string
	Subject    string
	Template   string
	Data       map[string]any
	Attachment *Attachment
}

func (e Email) Validate() error {
	if strings.TrimSpace(e.To) == "" {
		return fmt.Errorf("email recipient cannot be empty")
	}
	if strings.TrimSpace(e.Subject) == "" {
		return fmt.Errorf("email subject cannot be empty")
	}
	if e.Attachment != nil && e.Attachment.FileName == "" {
		return fmt.Errorf("email attachment must have a file name")
	}
	return nil
}

// Mailer hands an email to the delivery side. A nil error means it was accepted, not delivered.
type Mailer interface {
	Send(ctx context.Context, email Email) error
}

// LogMailer writes emails to the application log instead of delivering them.
type LogMailer struct {
	logger *logrus.Logger
	from   string
}

func NewLogMailer(logger *logrus.Logger, from string) *LogMailer {
	if logger == nil {
		logger = logging.Logger
	}
	return &LogMailer{logger: logger, from: from}
}

func (m *LogMailer) Send(ctx context.Context, email Email) error {
	if err := email.Validate(); err != nil {
		return err
	}

	fields := logrus.Fields{
		"trace_id": contextutil.TraceIDFromContext(ctx),
		"from":     m.from,
		"to":       email.To,
		"subject":  email.Subject,
		"template": email.Template,
	}
	if email.Attachment != nil {
		fields["attachment"] = email.Attachment.FileName
		fields["attachment_size"] = len(email.Attachment.Content)
	}
	m.logger.WithFields(fields).Info("email queued to log mailer")
	return nil
}
