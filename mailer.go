package auth

import (
	"context"
	"crypto/tls"
	"fmt"
	"net/smtp"
	"strings"
)

// Mailer delivers the verification and magic-link emails. Implementations are
// called fire-and-forget: the auth flows log failures and never propagate them.
type Mailer interface {
	SendVerification(ctx context.Context, email, token, firstName string) error
	SendMagicLink(ctx context.Context, email, token, firstName string) error
}

// SMTPMailer sends mail over implicit TLS (port 465).
type SMTPMailer struct {
	Host     string
	Port     int
	Login    string
	Password string
	Sender   string
	// AppURL is the web client base used to build the /verify/<token> links.
	AppURL string
	logger Logger
}

var _ Mailer = (*SMTPMailer)(nil)

func NewSMTPMailer(host string, port int, login, password, sender, appURL string) *SMTPMailer {
	if port == 0 {
		port = 465
	}
	return &SMTPMailer{
		Host:     host,
		Port:     port,
		Login:    login,
		Password: password,
		Sender:   sender,
		AppURL:   strings.TrimRight(appURL, "/"),
		logger:   defLogger{},
	}
}

func (m *SMTPMailer) WithLogger(l Logger) *SMTPMailer {
	if l != nil {
		m.logger = l
	}
	return m
}

func (m *SMTPMailer) SendVerification(ctx context.Context, email, token, firstName string) error {
	link := fmt.Sprintf("%s/verify/%s", m.AppURL, token)
	body := fmt.Sprintf(verificationMessage, firstName, link, link, link)
	return m.send(ctx, email, "Please Verify your email", body)
}

func (m *SMTPMailer) SendMagicLink(ctx context.Context, email, token, firstName string) error {
	link := fmt.Sprintf("%s/verify/%s", m.AppURL, token)
	body := fmt.Sprintf(magicLinkMessage, firstName, link, link, link)
	return m.send(ctx, email, "Your Magic Link is ready", body)
}

func (m *SMTPMailer) send(ctx context.Context, to, subject, htmlBody string) error {
	msg := strings.Join([]string{
		"From: " + m.Sender,
		"To: " + to,
		"Subject: " + subject,
		"MIME-Version: 1.0",
		`Content-Type: text/html; charset="UTF-8"`,
		"",
		htmlBody,
	}, "\r\n")

	addr := fmt.Sprintf("%s:%d", m.Host, m.Port)

	conn, err := tls.Dial("tcp", addr, &tls.Config{ServerName: m.Host})
	if err != nil {
		return fmt.Errorf("smtp dial %s: %w", addr, err)
	}

	client, err := smtp.NewClient(conn, m.Host)
	if err != nil {
		conn.Close()
		return fmt.Errorf("smtp handshake: %w", err)
	}
	defer client.Close()

	if m.Login != "" {
		auth := smtp.PlainAuth("", m.Login, m.Password, m.Host)
		if err := client.Auth(auth); err != nil {
			return fmt.Errorf("smtp auth: %w", err)
		}
	}

	if err := client.Mail(m.Sender); err != nil {
		return fmt.Errorf("smtp mail from: %w", err)
	}
	if err := client.Rcpt(to); err != nil {
		return fmt.Errorf("smtp rcpt to: %w", err)
	}

	w, err := client.Data()
	if err != nil {
		return fmt.Errorf("smtp data: %w", err)
	}
	if _, err := w.Write([]byte(msg)); err != nil {
		w.Close()
		return fmt.Errorf("smtp write: %w", err)
	}
	if err := w.Close(); err != nil {
		return fmt.Errorf("smtp close: %w", err)
	}

	if err := client.Quit(); err != nil {
		m.logger.Debug("smtp quit: %v", err)
	}

	m.logger.Debug("smtp sent to: %s", to)
	return nil
}

// LogMailer writes the emailed links to the logger instead of sending them.
// Useful for local development and tests.
type LogMailer struct {
	Logger Logger
}

var _ Mailer = (*LogMailer)(nil)

func (m LogMailer) SendVerification(ctx context.Context, email, token, firstName string) error {
	m.log("verification", email, token)
	return nil
}

func (m LogMailer) SendMagicLink(ctx context.Context, email, token, firstName string) error {
	m.log("magic-link", email, token)
	return nil
}

func (m LogMailer) log(kind, email, token string) {
	logger := m.Logger
	if logger == nil {
		logger = defLogger{}
	}
	logger.Info("%s email to: %s link: /verify/%s", kind, email, token)
}

const verificationMessage = `<html>
  <body style="font-family: Arial, sans-serif; line-height: 1.6; color: #333;">
    <div style="max-width: 600px; margin: auto; background: #fff; border-radius: 8px; padding: 30px;">
      <h1 style="color:#09a1ec; text-align: center;">Welcome!</h1>
      <p>Dear %s,</p>
      <p>To get started, please verify your email by clicking the button below.</p>
      <div style="text-align: center; margin: 30px 0;">
        <a href="%s" target="_blank"
           style="display: inline-block; background-color: #09a1ec; color: white; text-decoration: none;
                  padding: 12px 25px; border-radius: 5px; font-weight: bold;">Verify Email</a>
      </div>
      <p>If the button above does not work, copy and paste the following link into your browser:</p>
      <p style="word-break: break-all;"><a href="%s" style="color:#09a1ec;">%s</a></p>
      <hr style="border: none; border-top: 1px solid #eee; margin: 30px 0;">
      <p style="font-size: 12px; color: #999; text-align: center;">
        If you did not sign up for this account, please ignore this email.
      </p>
    </div>
  </body>
</html>`

const magicLinkMessage = `<html>
  <body style="font-family: Arial, sans-serif; line-height: 1.6; color: #333;">
    <div style="max-width: 600px; margin: auto; background: #fff; border-radius: 8px; padding: 30px;">
      <h1 style="color:#09a1ec; text-align: center;">Your Magic Link</h1>
      <p>Dear %s,</p>
      <p>Your magic link is ready. Click it to instantly regain full access.
         For the next 15 minutes you can also update your password without any extra steps.</p>
      <div style="text-align: center; margin: 30px 0;">
        <a href="%s" target="_blank"
           style="display: inline-block; background-color: #09a1ec; color: white; text-decoration: none;
                  padding: 12px 25px; border-radius: 5px; font-weight: bold;">Get Connected Now</a>
      </div>
      <p>If the button above does not work, copy and paste the following link into your browser:</p>
      <p style="word-break: break-all;"><a href="%s" style="color:#09a1ec;">%s</a></p>
      <hr style="border: none; border-top: 1px solid #eee; margin: 30px 0;">
      <p style="font-size: 12px; color: #999; text-align: center;">
        If you did not request this link, please ignore this email.
      </p>
    </div>
  </body>
</html>`
