package notify

import (
	"net/smtp"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type captured struct {
	addr string
	from string
	to   []string
	msg  string
}

func testMailer() (*Mailer, *captured) {
	got := &captured{}
	m := NewMailer(Config{
		Host: "smtp.example.com", Port: 587,
		From: "noreply@sclinedc.live", Subtitle: "Clinical Data Collection",
	})
	m.send = func(addr string, _ smtp.Auth, from string, to []string, msg []byte) error {
		got.addr = addr
		got.from = from
		got.to = to
		got.msg = string(msg)
		return nil
	}
	return m, got
}

func TestSendOTP(t *testing.T) {
	m, got := testMailer()
	require.NoError(t, m.SendOTP("jane@site.example", "Jane Doe", "123456", 10))

	assert.Equal(t, "smtp.example.com:587", got.addr)
	assert.Equal(t, []string{"jane@site.example"}, got.to)
	assert.Contains(t, got.msg, "Subject: Your Login OTP - Clinical Data Collection")
	assert.Contains(t, got.msg, "Content-Type: text/html")
	assert.Contains(t, got.msg, "123456")
	assert.Contains(t, got.msg, "Jane Doe")
	assert.Contains(t, got.msg, "10 minutes")
}

func TestSendWelcome(t *testing.T) {
	m, got := testMailer()
	require.NoError(t, m.SendWelcome("jane@site.example", "Jane Doe", "Coordinator", "City Hospital"))

	assert.Contains(t, got.msg, "Subject: Welcome to SclinEDC")
	assert.Contains(t, got.msg, "Coordinator")
	assert.Contains(t, got.msg, "City Hospital")
}

func TestSendSubmissionConfirmation(t *testing.T) {
	m, got := testMailer()
	require.NoError(t, m.SendSubmissionConfirmation("jane@site.example", "Jane Doe", "HTN-001", "Hypertension Study"))

	assert.Contains(t, got.msg, "Subject: Survey Submission Confirmation - Clinical Data Collection")
	assert.Contains(t, got.msg, "HTN-001")
	assert.Contains(t, got.msg, "Hypertension Study")
	assert.Contains(t, got.msg, "No further changes")
}

func TestDeliverUnconfigured(t *testing.T) {
	m := NewMailer(Config{})
	err := m.SendOTP("jane@site.example", "Jane Doe", "123456", 10)
	assert.Error(t, err)
}

func TestTemplateEscapesName(t *testing.T) {
	m, got := testMailer()
	require.NoError(t, m.SendOTP("jane@site.example", `<script>alert(1)</script>`, "123456", 10))
	assert.NotContains(t, got.msg, "<script>")
}
