package notify

import (
	"fmt"
	"net/smtp"
	"os"
	"strconv"
	"strings"
)

type Config struct {
	Host     string
	Port     int
	User     string
	Password string
	From     string
	// Subtitle appears under the product name in every message header.
	Subtitle string
}

// ConfigFromEnv reads SMTP settings from environment variables.
func ConfigFromEnv() Config {
	port := 587
	if v := os.Getenv("EMAIL_PORT"); v != "" {
		if parsed, err := strconv.Atoi(v); err == nil {
			port = parsed
		}
	}
	subtitle := os.Getenv("EMAIL_SUBTITLE")
	if subtitle == "" {
		subtitle = "Clinical Data Collection"
	}
	return Config{
		Host:     os.Getenv("EMAIL_HOST"),
		Port:     port,
		User:     os.Getenv("EMAIL_USER"),
		Password: os.Getenv("EMAIL_PASSWORD"),
		From:     os.Getenv("EMAIL_FROM"),
		Subtitle: subtitle,
	}
}

// SendFunc matches smtp.SendMail, injectable for tests.
type SendFunc func(addr string, a smtp.Auth, from string, to []string, msg []byte) error

// Mailer renders templated HTML notifications and hands them to SMTP.
// It is a pure boundary: callers decide what to do with an error, and every
// caller in this codebase logs and swallows it.
type Mailer struct {
	cfg  Config
	send SendFunc
}

func NewMailer(cfg Config) *Mailer {
	return &Mailer{cfg: cfg, send: smtp.SendMail}
}

func (m *Mailer) deliver(to, subject, html string) error {
	if m.cfg.Host == "" {
		return fmt.Errorf("mail transport not configured")
	}
	var b strings.Builder
	fmt.Fprintf(&b, "From: %s\r\n", m.cfg.From)
	fmt.Fprintf(&b, "To: %s\r\n", to)
	fmt.Fprintf(&b, "Subject: %s\r\n", subject)
	b.WriteString("MIME-Version: 1.0\r\n")
	b.WriteString("Content-Type: text/html; charset=\"UTF-8\"\r\n")
	b.WriteString("\r\n")
	b.WriteString(html)

	addr := fmt.Sprintf("%s:%d", m.cfg.Host, m.cfg.Port)
	var auth smtp.Auth
	if m.cfg.User != "" {
		auth = smtp.PlainAuth("", m.cfg.User, m.cfg.Password, m.cfg.Host)
	}
	return m.send(addr, auth, m.cfg.From, []string{to}, []byte(b.String()))
}

// SendOTP delivers a login passcode.
func (m *Mailer) SendOTP(email, name, code string, expiryMinutes int) error {
	html, err := render(otpTmpl, otpData{
		Subtitle: m.cfg.Subtitle, Name: name, Code: code, ExpiryMinutes: expiryMinutes,
	})
	if err != nil {
		return err
	}
	return m.deliver(email, "Your Login OTP - "+m.cfg.Subtitle, html)
}

// SendWelcome delivers the account-created notice to a new coordinator.
func (m *Mailer) SendWelcome(email, name, role, site string) error {
	html, err := render(welcomeTmpl, welcomeData{
		Subtitle: m.cfg.Subtitle, Name: name, Role: role, Site: site,
	})
	if err != nil {
		return err
	}
	return m.deliver(email, "Welcome to SclinEDC", html)
}

// SendSubmissionConfirmation delivers the survey finalization receipt.
func (m *Mailer) SendSubmissionConfirmation(email, name, studyNumber, studyTitle string) error {
	html, err := render(submissionTmpl, submissionData{
		Subtitle: m.cfg.Subtitle, Name: name, StudyTitle: studyTitle, StudyNumber: studyNumber,
	})
	if err != nil {
		return err
	}
	return m.deliver(email, "Survey Submission Confirmation - "+m.cfg.Subtitle, html)
}
