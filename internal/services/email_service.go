package services

import (
	"bytes"
	"context"
	"fmt"
	"html/template"
	"log/slog"
	"net/url"
	"strings"
	"time"

	"github.com/agrirent/agrirent/internal/models"
	pkglogger "github.com/agrirent/agrirent/pkg/logger"
	"github.com/aws/aws-sdk-go-v2/aws"
	"github.com/aws/aws-sdk-go-v2/config"
	"github.com/aws/aws-sdk-go-v2/service/ses"
	"github.com/aws/aws-sdk-go-v2/service/ses/types"
)

// Mailer delivers one HTML email. A nil error means the provider accepted it.
type Mailer interface {
	Send(ctx context.Context, to, subject, htmlBody string) error
}

// SESMailer sends emails using AWS SES
type SESMailer struct {
	sesClient   *ses.Client
	fromAddress string
	logger      *slog.Logger
}

func NewSESMailer(ctx context.Context, region, fromAddress string, logger *slog.Logger) (*SESMailer, error) {
	cfg, err := config.LoadDefaultConfig(ctx, config.WithRegion(region))
	if err != nil {
		return nil, fmt.Errorf("failed to load AWS config: %w", err)
	}

	return &SESMailer{
		sesClient:   ses.NewFromConfig(cfg),
		fromAddress: fromAddress,
		logger:      logger,
	}, nil
}

func (m *SESMailer) Send(ctx context.Context, to, subject, htmlBody string) error {
	input := &ses.SendEmailInput{
		Source: aws.String(m.fromAddress),
		Destination: &types.Destination{
			ToAddresses: []string{to},
		},
		Message: &types.Message{
			Subject: &types.Content{
				Data:    aws.String(subject),
				Charset: aws.String("UTF-8"),
			},
			Body: &types.Body{
				Html: &types.Content{
					Data:    aws.String(htmlBody),
					Charset: aws.String("UTF-8"),
				},
			},
		},
	}

	result, err := m.sesClient.SendEmail(ctx, input)
	if err != nil {
		m.logger.Error("failed to send email via SES",
			slog.String("email", pkglogger.SanitizedEmail(to)),
			slog.String("subject", subject),
			slog.Any("error", err))
		return fmt.Errorf("failed to send email: %w", err)
	}

	m.logger.Info("email sent",
		slog.String("email", pkglogger.SanitizedEmail(to)),
		slog.String("subject", subject),
		slog.String("message_id", aws.ToString(result.MessageId)))

	return nil
}

// LogMailer writes emails to the log instead of sending them. Development only.
type LogMailer struct {
	logger *slog.Logger
}

func NewLogMailer(logger *slog.Logger) *LogMailer {
	return &LogMailer{logger: logger}
}

func (m *LogMailer) Send(ctx context.Context, to, subject, htmlBody string) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	m.logger.Info("email (log mailer)",
		slog.String("email", pkglogger.SanitizedEmail(to)),
		slog.String("subject", subject),
		slog.String("body", htmlBody))
	return nil
}

// EmailLinks builds the frontend URLs embedded in emails
type EmailLinks struct {
	Frontend         string
	UserFrontend     string
	ProviderFrontend string
}

func (l EmailLinks) base(variant models.Variant) string {
	base := l.Frontend
	switch variant {
	case models.VariantUser:
		if l.UserFrontend != "" {
			base = l.UserFrontend
		}
	case models.VariantProvider:
		if l.ProviderFrontend != "" {
			base = l.ProviderFrontend
		}
	}
	return strings.TrimRight(base, "/")
}

// ActivationURL is <frontend>/?activate=<token>
func (l EmailLinks) ActivationURL(variant models.Variant, token string) string {
	return l.base(variant) + "/?activate=" + url.QueryEscape(token)
}

// ResetURL is <frontend>/reset-password/<token>
func (l EmailLinks) ResetURL(variant models.Variant, token string) string {
	return l.base(variant) + "/reset-password/" + url.PathEscape(token)
}

const emailLayout = `<!DOCTYPE html>
<html>
<head>
    <meta charset="UTF-8">
    <style>
        body { font-family: Arial, sans-serif; line-height: 1.6; color: #333; }
        .container { max-width: 600px; margin: 0 auto; padding: 20px; }
        .header { background-color: #2e7d32; color: white; padding: 20px; text-align: center; border-radius: 4px; }
        .content { padding: 20px 0; }
        .button { display: inline-block; background-color: #2e7d32; color: white; padding: 12px 24px; text-decoration: none; border-radius: 4px; margin: 20px 0; }
        .footer { color: #666; font-size: 12px; margin-top: 20px; padding-top: 20px; border-top: 1px solid #eee; }
    </style>
</head>
<body>
    <div class="container">
        <div class="header"><h1>{{.Title}}</h1></div>
        <div class="content">{{template "content" .}}</div>
        <div class="footer">
            <p>This is an automated message. Please do not reply to this email.</p>
        </div>
    </div>
</body>
</html>`

// newEmailTemplate returns the layout root with content bound as its "content" block
func newEmailTemplate(name, content string) *template.Template {
	t := template.Must(template.New(name).Parse(emailLayout))
	template.Must(t.New("content").Parse(content))
	return t
}

var activationTemplate = newEmailTemplate("activation", `
            <p>Hello {{.Name}},</p>
            {{if .BusinessName}}<p>Thank you for registering <strong>{{.BusinessName}}</strong> as an equipment provider.</p>
            {{else}}<p>Thank you for signing up to rent farm equipment with us.</p>
            {{end}}<p>Please activate your account by clicking the link below:</p>
            <p><a href="{{.Link}}" class="button">Activate Account</a></p>
            <p>Or copy and paste this link in your browser:<br><code>{{.Link}}</code></p>
            <p>If you did not create this account, you can ignore this email.</p>`)

var resetTemplate = newEmailTemplate("reset", `
            <p>Hello {{.Name}},</p>
            <p>We received a request to reset your password. Click the link below to choose a new one:</p>
            <p><a href="{{.Link}}" class="button">Reset Password</a></p>
            <p>Or copy and paste this link in your browser:<br><code>{{.Link}}</code></p>
            <p>This link will expire in {{.ExpiresIn}}.</p>
            <p>If you did not request a password reset, you can ignore this email. Your password will not change.</p>`)

type emailData struct {
	Title        string
	Name         string
	BusinessName string
	Link         string
	ExpiresIn    string
}

// ActivationEmail renders the subject and body sent after signup
func ActivationEmail(account *models.Account, link string) (string, string, error) {
	data := emailData{Title: "Activate Your Account", Name: account.Name, Link: link}
	subject := "Activate your account"
	if account.Variant == models.VariantProvider && account.Provider != nil {
		data.BusinessName = account.Provider.BusinessName
		subject = "Activate your provider account"
	}

	var buf bytes.Buffer
	if err := activationTemplate.Execute(&buf, data); err != nil {
		return "", "", fmt.Errorf("render activation email: %w", err)
	}
	return subject, buf.String(), nil
}

// ResetEmail renders the subject and body of a password reset email
func ResetEmail(account *models.Account, link string, ttl time.Duration) (string, string, error) {
	data := emailData{
		Title:     "Reset Your Password",
		Name:      account.Name,
		Link:      link,
		ExpiresIn: humanizeDuration(ttl),
	}

	var buf bytes.Buffer
	if err := resetTemplate.Execute(&buf, data); err != nil {
		return "", "", fmt.Errorf("render reset email: %w", err)
	}
	return "Password reset request", buf.String(), nil
}

// humanizeDuration renders d in its largest whole unit, e.g. "1 hour" or "90 minutes"
func humanizeDuration(d time.Duration) string {
	units := []struct {
		size time.Duration
		name string
	}{
		{24 * time.Hour, "day"},
		{time.Hour, "hour"},
		{time.Minute, "minute"},
		{time.Second, "second"},
	}
	for _, u := range units {
		if d >= u.size && d%u.size == 0 {
			n := int64(d / u.size)
			if n == 1 {
				return "1 " + u.name
			}
			return fmt.Sprintf("%d %ss", n, u.name)
		}
	}
	return d.String()
}
