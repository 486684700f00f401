package mailer

import (
	"context"
	"fmt"
	"log"
	"net/smtp"
	"net/url"
)

// SMTPMailer sends the verification mail as plain text. Template rendering
// lives outside this subsystem; the body here is the minimal link message.
type SMTPMailer struct {
	host        string
	port        string
	from        string
	frontendURL string
}

func NewSMTPMailer(host, port, from, frontendURL string) *SMTPMailer {
	return &SMTPMailer{
		host:        host,
		port:        port,
		from:        from,
		frontendURL: frontendURL,
	}
}

func (m *SMTPMailer) SendVerificationEmail(_ context.Context, email, token string) error {
	link := verificationLink(m.frontendURL, token)

	msg := fmt.Sprintf("From: %s\r\nTo: %s\r\nSubject: Please verify your email\r\n\r\n"+
		"Welcome! Open the link below to verify your email address:\r\n\r\n%s\r\n\r\n"+
		"The link is valid for one hour.\r\n", m.from, email, link)

	addr := m.host + ":" + m.port
	if err := smtp.SendMail(addr, nil, m.from, []string{email}, []byte(msg)); err != nil {
		return fmt.Errorf("sending verification mail: %w", err)
	}

	return nil
}

// LogMailer logs the verification link instead of sending it. Used in
// development and as the fallback when SMTP is not configured.
type LogMailer struct {
	frontendURL string
}

func NewLogMailer(frontendURL string) *LogMailer {
	return &LogMailer{frontendURL: frontendURL}
}

func (m *LogMailer) SendVerificationEmail(_ context.Context, email, token string) error {
	log.Printf("verification mail for %s: %s", email, verificationLink(m.frontendURL, token))
	return nil
}

func verificationLink(frontendURL, token string) string {
	return fmt.Sprintf("%s/auth/verify-email?token=%s", frontendURL, url.QueryEscape(token))
}
