// Package mailer sends transactional mail for account and moderation events.
// Delivery failures are logged and never abort the calling operation.
package mailer

import (
	"fmt"

	"echoheritage/config"
	"echoheritage/logger"

	gomail "gopkg.in/gomail.v2"
)

// Mailer sends the platform's notification mails.
type Mailer interface {
	SendVerification(to, token string)
	SendPasswordReset(to, token string)
	SendApproval(to, trackTitle string)
	SendRejection(to, trackTitle, reason string)
	SendRoleUpdate(to, newRole string)
}

type smtpMailer struct {
	dialer        *gomail.Dialer
	from          string
	clientBaseURL string
}

// NewSMTPMailer builds a Mailer backed by the configured SMTP server.
func NewSMTPMailer(cfg *config.Config) Mailer {
	return &smtpMailer{
		dialer:        gomail.NewDialer(cfg.SMTPHost, cfg.SMTPPort, cfg.SMTPUser, cfg.SMTPPassword),
		from:          cfg.MailFrom,
		clientBaseURL: cfg.ClientBaseURL,
	}
}

func (m *smtpMailer) send(to, subject, htmlBody string) {
	msg := gomail.NewMessage()
	msg.SetHeader("From", m.from)
	msg.SetHeader("To", to)
	msg.SetHeader("Subject", subject)
	msg.SetBody("text/html", htmlBody)

	if err := m.dialer.DialAndSend(msg); err != nil {
		logger.Error("mail delivery failed",
			logger.String("to", to),
			logger.String("subject", subject),
			logger.ErrorField(err))
		return
	}
	logger.Info("mail sent", logger.String("to", to), logger.String("subject", subject))
}

func (m *smtpMailer) SendVerification(to, token string) {
	link := fmt.Sprintf("%s/activate?token=%s", m.clientBaseURL, token)
	body := fmt.Sprintf(`<p>Welcome to EchoHeritage.</p>
<p>Confirm your email address by opening the link below:</p>
<p><a href="%s">%s</a></p>`, link, link)
	go m.send(to, "Confirm your EchoHeritage account", body)
}

func (m *smtpMailer) SendPasswordReset(to, token string) {
	link := fmt.Sprintf("%s/reset-password?token=%s", m.clientBaseURL, token)
	body := fmt.Sprintf(`<p>A password reset was requested for your account.</p>
<p>Set a new password here:</p>
<p><a href="%s">%s</a></p>
<p>If you did not request this, ignore this mail.</p>`, link, link)
	go m.send(to, "Reset your EchoHeritage password", body)
}

func (m *smtpMailer) SendApproval(to, trackTitle string) {
	body := fmt.Sprintf(`<p>Good news. Your track <b>%s</b> was approved and is now listed in the archive.</p>`, trackTitle)
	go m.send(to, "Your track was approved", body)
}

func (m *smtpMailer) SendRejection(to, trackTitle, reason string) {
	body := fmt.Sprintf(`<p>Your track <b>%s</b> was removed from the archive.</p>
<p>Reason: %s</p>`, trackTitle, reason)
	go m.send(to, "Your track was not approved", body)
}

func (m *smtpMailer) SendRoleUpdate(to, newRole string) {
	body := fmt.Sprintf(`<p>Your EchoHeritage account role was changed to <b>%s</b>.</p>`, newRole)
	go m.send(to, "Your account role changed", body)
}

// NopMailer discards all mail. Used when SMTP is not configured.
type NopMailer struct{}

func (NopMailer) SendVerification(string, string)      {}
func (NopMailer) SendPasswordReset(string, string)     {}
func (NopMailer) SendApproval(string, string)          {}
func (NopMailer) SendRejection(string, string, string) {}
func (NopMailer) SendRoleUpdate(string, string)        {}
