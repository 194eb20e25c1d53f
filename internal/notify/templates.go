package notify

import (
	"bytes"
	"html/template"
)

// The HTML here mirrors the layout coordinators already receive from the
// platform: branded header, white content card, branded footer, with the OTP
// code rendered in a bordered box.
const baseTemplate = `<!DOCTYPE html>
<html>
<head>
  <meta charset="UTF-8">
  <meta name="viewport" content="width=device-width, initial-scale=1.0">
  <style>
    body { font-family: Arial, sans-serif; line-height: 1.6; color: #333; margin: 0; padding: 0; background-color: #f5f5f5; }
    .email-wrapper { width: 100%; padding: 20px 0; background-color: #f5f5f5; }
    .container { max-width: 600px; margin: 0 auto; background-color: #ffffff; border-radius: 8px; overflow: hidden; }
    .header { background: linear-gradient(135deg, #10b981 0%, #059669 100%); color: white; padding: 30px 20px; text-align: center; }
    .header h2 { margin: 0; font-size: 24px; }
    .header h3 { margin: 10px 0 0 0; font-size: 16px; font-weight: normal; }
    .content { background-color: #ffffff; padding: 30px; }
    .content p { margin: 15px 0; }
    .otp-box { background-color: #f0f8ff; border: 2px solid #059669; border-radius: 8px; padding: 20px; text-align: center; margin: 20px 0; font-size: 32px; font-weight: bold; letter-spacing: 8px; color: #059669; }
    .info-box { background-color: #f0fdfa; border-left: 4px solid #059669; padding: 15px 20px; margin: 20px 0; border-radius: 4px; }
    .footer { background: linear-gradient(135deg, #10b981 0%, #059669 100%); padding: 30px 20px; text-align: center; color: #ffffff; font-size: 13px; }
    .footer a { color: #ffffff; text-decoration: underline; }
  </style>
</head>
<body>
  <div class="email-wrapper">
    <div class="container">
      <div class="header">
        <h2>SclinEDC</h2>
        <h3>{{.Subtitle}}</h3>
      </div>
      <div class="content">
        {{template "content" .}}
      </div>
      <div class="footer">
        <p><strong>&copy; 2025 SclinEDC. All rights reserved.</strong></p>
        <p>This is an automated email. Please do not reply.</p>
        <p>For support, contact us at <a href="mailto:helpdesk@sclinedc.live">helpdesk@sclinedc.live</a></p>
      </div>
    </div>
  </div>
</body>
</html>`

const otpContent = `{{define "content"}}
<p>Dear <strong>{{.Name}}</strong>,</p>
<p>Your One-Time Password (OTP) for verifying your account is:</p>
<div class="otp-box">{{.Code}}</div>
<p>This code is valid for <strong>{{.ExpiryMinutes}} minutes</strong>. Please do not share this OTP with anyone for security reasons.</p>
<p>If you did not request this code, please ignore this email or contact our support team immediately.</p>
<p>Thank you,<br><br><strong>Best Regards,</strong><br>The SclinEDC Team</p>
{{end}}`

const welcomeContent = `{{define "content"}}
<p>Dear <strong>{{.Name}}</strong>,</p>
<p>Your coordinator account has been created. You can now sign in with your email address; a one-time passcode will be sent to you at each login.</p>
<div class="info-box">
  <ul>
    <li>Role: <strong>{{.Role}}</strong></li>
    <li>Site: <strong>{{.Site}}</strong></li>
  </ul>
</div>
<p>Thank you,<br><br><strong>Best Regards,</strong><br>The SclinEDC Team</p>
{{end}}`

const submissionContent = `{{define "content"}}
<p>Dear <strong>{{.Name}}</strong>,</p>
<p>Your survey response has been received and finalized. No further changes can be made to a submitted response.</p>
<div class="info-box">
  <ul>
    <li>Study: <strong>{{.StudyTitle}}</strong></li>
    <li>Study Number: <strong>{{.StudyNumber}}</strong></li>
  </ul>
</div>
<p>Thank you for your participation.</p>
<p><strong>Best Regards,</strong><br>The SclinEDC Team</p>
{{end}}`

var (
	otpTmpl        = template.Must(template.Must(template.New("otp").Parse(baseTemplate)).Parse(otpContent))
	welcomeTmpl    = template.Must(template.Must(template.New("welcome").Parse(baseTemplate)).Parse(welcomeContent))
	submissionTmpl = template.Must(template.Must(template.New("submission").Parse(baseTemplate)).Parse(submissionContent))
)

type otpData struct {
	Subtitle      string
	Name          string
	Code          string
	ExpiryMinutes int
}

type welcomeData struct {
	Subtitle string
	Name     string
	Role     string
	Site     string
}

type submissionData struct {
	Subtitle    string
	Name        string
	StudyTitle  string
	StudyNumber string
}

func render(t *template.Template, data any) (string, error) {
	var buf bytes.Buffer
	if err := t.Execute(&buf, data); err != nil {
		return "", err
	}
	return buf.String(), nil
}
