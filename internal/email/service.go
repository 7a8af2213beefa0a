// Package email sends account emails (verification, password reset, invites)
// over SMTP.
package email

import (
	"bytes"
	"errors"
	"fmt"
	"html/template"
	"mime"
	"net/smtp"
	"strings"
	"time"
)

const AppName = "Recruit CRM"

var ErrNotConfigured = errors.New("email not configured")

type Config struct {
	Host     string
	Port     string
	Username string
	Password string
	From     string
	FromName string
}

type sendFunc func(addr string, a smtp.Auth, from string, to []string, msg []byte) error

type Service struct {
	config Config
	server string
	auth   smtp.Auth
	send   sendFunc
	now    func() time.Time
}

func NewService(config Config) *Service {
	var auth smtp.Auth
	if config.Username != "" {
		auth = smtp.PlainAuth("", config.Username, config.Password, config.Host)
	}
	return &Service{
		config: config,
		server: config.Host + ":" + config.Port,
		auth:   auth,
		send:   smtp.SendMail,
		now:    time.Now,
	}
}

func (s *Service) IsConfigured() bool {
	return s.config.Host != "" && s.config.Port != "" && s.config.From != ""
}

// SendHTML sends a multipart/alternative message with a plain text fallback.
func (s *Service) SendHTML(to, subject, htmlBody, textBody string) error {
	if !s.IsConfigured() {
		return ErrNotConfigured
	}
	to = strings.TrimSpace(to)
	if to == "" || strings.ContainsAny(to, "\r\n") {
		return fmt.Errorf("invalid recipient %q", to)
	}
	msg := s.buildMessage(to, subject, htmlBody, textBody)
	if err := s.send(s.server, s.auth, s.config.From, []string{to}, msg); err != nil {
		return fmt.Errorf("send email: %w", err)
	}
	return nil
}

func (s *Service) buildMessage(to, subject, htmlBody, textBody string) []byte {
	from := s.config.From
	if s.config.FromName != "" {
		from = fmt.Sprintf("%s <%s>", mime.QEncoding.Encode("utf-8", s.config.FromName), s.config.From)
	}
	boundary := fmt.Sprintf("recruitcrm-%d", s.now().UnixNano())

	var msg bytes.Buffer
	fmt.Fprintf(&msg, "To: %s\r\n", to)
	fmt.Fprintf(&msg, "From: %s\r\n", from)
	fmt.Fprintf(&msg, "Subject: %s\r\n", mime.QEncoding.Encode("utf-8", subject))
	fmt.Fprintf(&msg, "Date: %s\r\n", s.now().UTC().Format(time.RFC1123Z))
	fmt.Fprintf(&msg, "MIME-Version: 1.0\r\n")
	fmt.Fprintf(&msg, "Content-Type: multipart/alternative; boundary=%q\r\n\r\n", boundary)

	fmt.Fprintf(&msg, "--%s\r\n", boundary)
	fmt.Fprintf(&msg, "Content-Type: text/plain; charset=UTF-8\r\n\r\n")
	fmt.Fprintf(&msg, "%s\r\n\r\n", textBody)

	fmt.Fprintf(&msg, "--%s\r\n", boundary)
	fmt.Fprintf(&msg, "Content-Type: text/html; charset=UTF-8\r\n\r\n")
	fmt.Fprintf(&msg, "%s\r\n\r\n", htmlBody)
	fmt.Fprintf(&msg, "--%s--\r\n", boundary)
	return msg.Bytes()
}

type linkData struct {
	AppName  string
	UserName string
	Inviter  string
	URL      string
	Expiry   string
}

func (s *Service) SendVerificationEmail(to, userName, verificationURL string) error {
	data := linkData{AppName: AppName, UserName: userName, URL: verificationURL, Expiry: "24 hours"}
	body, err := render(verificationTemplate, data)
	if err != nil {
		return err
	}
	text := fmt.Sprintf("Welcome, %s. Verify your email address: %s", userName, verificationURL)
	return s.SendHTML(to, "Verify your "+AppName+" account", body, text)
}

func (s *Service) SendPasswordResetEmail(to, userName, resetURL string) error {
	data := linkData{AppName: AppName, UserName: userName, URL: resetURL, Expiry: "1 hour"}
	body, err := render(passwordResetTemplate, data)
	if err != nil {
		return err
	}
	text := fmt.Sprintf("Hi %s, reset your password within 1 hour: %s", userName, resetURL)
	return s.SendHTML(to, "Reset your "+AppName+" password", body, text)
}

// SendInviteEmail tells a user an admin created their account and links to
// the password-set page.
func (s *Service) SendInviteEmail(to, userName, inviter, setPasswordURL string) error {
	data := linkData{AppName: AppName, UserName: userName, Inviter: inviter, URL: setPasswordURL, Expiry: "1 hour"}
	body, err := render(inviteTemplate, data)
	if err != nil {
		return err
	}
	text := fmt.Sprintf("Hi %s, %s invited you to %s. Set your password: %s", userName, inviter, AppName, setPasswordURL)
	return s.SendHTML(to, "You have been invited to "+AppName, body, text)
}

func render(tmpl *template.Template, data linkData) (string, error) {
	var buf bytes.Buffer
	if err := tmpl.Execute(&buf, data); err != nil {
		return "", fmt.Errorf("render %s template: %w", tmpl.Name(), err)
	}
	return buf.String(), nil
}

const layoutTemplate = `{{define "layout"}}<!DOCTYPE html>
<html>
<head>
    <meta charset="UTF-8">
    <title>{{.AppName}}</title>
    <style>
        body { font-family: -apple-system, BlinkMacSystemFont, 'Segoe UI', Roboto, sans-serif; line-height: 1.6; color: #1f2937; max-width: 600px; margin: 0 auto; padding: 20px; }
        .header { border-bottom: 2px solid #2563eb; padding-bottom: 10px; margin-bottom: 20px; }
        .button { display: inline-block; padding: 12px 24px; background: #2563eb; color: white; text-decoration: none; border-radius: 4px; margin: 20px 0; }
        .footer { margin-top: 30px; padding-top: 20px; border-top: 1px solid #e5e7eb; font-size: 12px; color: #6b7280; }
        .link { word-break: break-all; color: #2563eb; }
    </style>
</head>
<body>
    <div class="header"><h1>{{.AppName}}</h1></div>
    {{template "content" .}}
    <p>Or copy and paste this link into your browser:</p>
    <p class="link">{{.URL}}</p>
    <p>This link will expire in {{.Expiry}}.</p>
    <div class="footer">{{template "footer" .}}</div>
</body>
</html>{{end}}`

func mustParse(name, content string) *template.Template {
	return template.Must(template.Must(template.New(name).Parse(layoutTemplate)).Parse(content + `{{template "layout" .}}`))
}

var verificationTemplate = mustParse("verification", `
{{define "content"}}<h2>Welcome, {{.UserName}}!</h2>
<p>Please verify your email address to activate your account.</p>
<p><a href="{{.URL}}" class="button">Verify Email Address</a></p>{{end}}
{{define "footer"}}<p>If you didn't create an account with {{.AppName}}, you can ignore this email.</p>{{end}}`)

var passwordResetTemplate = mustParse("password-reset", `
{{define "content"}}<h2>Password Reset Request</h2>
<p>Hi {{.UserName}},</p>
<p>We received a request to reset your password. Click the button below to choose a new one:</p>
<p><a href="{{.URL}}" class="button">Reset Password</a></p>{{end}}
{{define "footer"}}<p>If you didn't request a password reset, your password will remain unchanged.</p>{{end}}`)

var inviteTemplate = mustParse("invite", `
{{define "content"}}<h2>Hi {{.UserName}},</h2>
<p>{{.Inviter}} created a {{.AppName}} account for you. Choose a password to sign in:</p>
<p><a href="{{.URL}}" class="button">Set Password</a></p>{{end}}
{{define "footer"}}<p>If you were not expecting this invitation, you can ignore this email.</p>{{end}}`)
