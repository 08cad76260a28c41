package notify

import (
	"bytes"
	"context"
	"fmt"
	"html/template"
	"net/http"
	"time"

	"gopkg.in/gomail.v2"

	"github.com/R3E-Network/vault_portal/internal/httputil"
	"github.com/R3E-Network/vault_portal/internal/logging"
	"github.com/R3E-Network/vault_portal/internal/metrics"
)

// Message is an outbound email.
type Message struct {
	From    string `json:"from"`
	To      string `json:"to"`
	Subject string `json:"subject"`
	HTML    string `json:"html"`
}

// EmailSender delivers a rendered message.
type EmailSender interface {
	Send(ctx context.Context, msg Message) error
}

// =============================================================================
// HTTP Sender
// =============================================================================

// HTTPEmailSender posts messages to a JSON email API.
type HTTPEmailSender struct {
	client *httputil.JSONClient
	path   string
}

// NewHTTPEmailSender creates a sender for a JSON API authenticated with a bearer key.
func NewHTTPEmailSender(baseURL, path, apiKey string, timeout time.Duration) *HTTPEmailSender {
	if path == "" {
		path = "/emails"
	}
	client := httputil.NewJSONClient(httputil.JSONClientConfig{
		BaseURL: baseURL,
		Timeout: timeout,
		Hook: func(req *http.Request) {
			if apiKey != "" {
				req.Header.Set("Authorization", "Bearer "+apiKey)
			}
		},
	})
	return &HTTPEmailSender{client: client, path: path}
}

// Send posts the message.
func (s *HTTPEmailSender) Send(ctx context.Context, msg Message) error {
	resp, err := s.client.Post(ctx, s.path, msg)
	if err != nil {
		return err
	}
	return httputil.DecodeResponse(resp, nil)
}

// =============================================================================
// SMTP Sender
// =============================================================================

// Dialer sends gomail messages.
type Dialer interface {
	DialAndSend(m ...*gomail.Message) error
}

// SMTPSender delivers messages over SMTP.
type SMTPSender struct {
	dialer Dialer
}

// NewSMTPSender creates an SMTP sender.
func NewSMTPSender(host string, port int, username, password string) *SMTPSender {
	return &SMTPSender{dialer: gomail.NewDialer(host, port, username, password)}
}

// NewSMTPSenderWithDialer creates an SMTP sender using d.
func NewSMTPSenderWithDialer(d Dialer) *SMTPSender {
	return &SMTPSender{dialer: d}
}

// Send delivers the message. gomail has no context support; cancellation is checked
// before dialing.
func (s *SMTPSender) Send(ctx context.Context, msg Message) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	m := gomail.NewMessage()
	m.SetHeader("From", msg.From)
	m.SetHeader("To", msg.To)
	m.SetHeader("Subject", msg.Subject)
	m.SetBody("text/html", msg.HTML)
	return s.dialer.DialAndSend(m)
}

// =============================================================================
// Welcome Email
// =============================================================================

const defaultWelcomeTemplate = `<!doctype html>
<html>
  <body style="font-family: sans-serif; color: #1a1a2e;">
    <h2>Welcome{{if .Name}}, {{.Name}}{{end}}!</h2>
    <p>Thanks for subscribing to vault updates. We'll let you know when new insurance
    vaults open for deposits and when policies backing your vaults change status.</p>
    <p>You can unsubscribe at any time from the link in any of our emails.</p>
  </body>
</html>`

// WelcomeConfig configures a WelcomeSender.
type WelcomeConfig struct {
	From     string
	Subject  string
	Template string
}

// WelcomeSender renders and sends the welcome email.
type WelcomeSender struct {
	sender  EmailSender
	from    string
	subject string
	tmpl    *template.Template
	logger  *logging.Logger
	metrics *metrics.Metrics
}

// NewWelcomeSender creates a welcome sender. An empty template uses the built-in one.
func NewWelcomeSender(sender EmailSender, cfg WelcomeConfig, logger *logging.Logger, m *metrics.Metrics) (*WelcomeSender, error) {
	if cfg.From == "" {
		return nil, fmt.Errorf("welcome email sender address required")
	}
	if cfg.Subject == "" {
		cfg.Subject = "Welcome to the vault portal"
	}
	body := cfg.Template
	if body == "" {
		body = defaultWelcomeTemplate
	}
	tmpl, err := template.New("welcome").Parse(body)
	if err != nil {
		return nil, fmt.Errorf("parse welcome template: %w", err)
	}
	if logger == nil {
		logger = logging.NewNop()
	}
	return &WelcomeSender{
		sender:  sender,
		from:    cfg.From,
		subject: cfg.Subject,
		tmpl:    tmpl,
		logger:  logger,
		metrics: m,
	}, nil
}

// Render returns the HTML body for name.
func (w *WelcomeSender) Render(name string) (string, error) {
	var buf bytes.Buffer
	if err := w.tmpl.Execute(&buf, struct{ Name string }{Name: name}); err != nil {
		return "", err
	}
	return buf.String(), nil
}

// SendWelcome renders and sends the welcome email to email.
func (w *WelcomeSender) SendWelcome(ctx context.Context, email, name string) error {
	to, err := NormalizeEmail(email)
	if err != nil {
		return err
	}
	html, err := w.Render(name)
	if err != nil {
		return fmt.Errorf("render welcome email: %w", err)
	}

	if err := w.sender.Send(ctx, Message{From: w.from, To: to, Subject: w.subject, HTML: html}); err != nil {
		w.metrics.RecordNotificationFailure("welcome_email")
		w.logger.WithContext(ctx).WithError(err).WithField("subscriber", subscriberID(to)).Error("welcome email failed")
		return fmt.Errorf("send welcome email: %w", err)
	}
	return nil
}
