package services

import (
	"crypto/tls"
	"fmt"
	"html"
	"net/smtp"
	"strconv"
	"strings"

	"github.com/sahilchouksey/school-backoffice/config"
	"github.com/sahilchouksey/school-backoffice/model"
)

// EmailService sends invoice emails over SMTP with STARTTLS
type EmailService struct {
	host     string
	port     int
	username string
	password string
	from     string
}

// NewEmailService creates an email service from the loaded environment
func NewEmailService(env *config.EnviornmentVariable) *EmailService {
	port, err := strconv.Atoi(env.SMTP_PORT)
	if err != nil || port <= 0 {
		port = 587
	}
	from := env.SMTP_FROM
	if from == "" {
		from = "billing@school.local"
	}

	return &EmailService{
		host:     env.SMTP_HOST,
		port:     port,
		username: env.SMTP_USERNAME,
		password: env.SMTP_PASSWORD,
		from:     from,
	}
}

// IsConfigured checks if SMTP is properly configured
func (e *EmailService) IsConfigured() bool {
	return e.host != "" && e.username != "" && e.password != ""
}

// SendInvoiceNotice renders and sends the email for an invoice event
func (e *EmailService) SendInvoiceNotice(to, studentName string, notice InvoiceNotice) error {
	if !e.IsConfigured() {
		return fmt.Errorf("SMTP not configured")
	}
	subject, body := buildInvoiceEmail(studentName, notice)
	return e.sendEmail(to, subject, body)
}

func buildInvoiceEmail(studentName string, n InvoiceNotice) (string, string) {
	if studentName == "" {
		studentName = "Student"
	}

	var subject, lead string
	switch n.Event {
	case model.NotificationEventPaymentReceived:
		subject = fmt.Sprintf("Payment received for %s", n.InvoiceNumber)
		lead = "We have received your payment. Thank you."
	case model.NotificationEventInvoiceOverdue:
		subject = fmt.Sprintf("Invoice %s is overdue", n.InvoiceNumber)
		lead = "The invoice below is past its due date. Please settle the outstanding balance."
	default:
		subject = fmt.Sprintf("New invoice %s", n.InvoiceNumber)
		lead = "A new invoice has been issued to you."
	}

	body := fmt.Sprintf(`<!DOCTYPE html>
<html>
<head>
    <meta charset="UTF-8">
    <title>%s</title>
</head>
<body style="font-family: Arial, sans-serif; color: #333;">
    <p>Dear %s,</p>
    <p>%s</p>
    <table cellpadding="6" style="border-collapse: collapse;">
        <tr><td>Invoice</td><td><strong>%s</strong></td></tr>
        <tr><td>Amount</td><td>%s</td></tr>
        <tr><td>Balance</td><td>%s</td></tr>
        <tr><td>Due date</td><td>%s</td></tr>
    </table>
    <p style="color: #999;">This is an automated message from the school finance office.</p>
</body>
</html>`,
		html.EscapeString(subject),
		html.EscapeString(studentName),
		lead,
		html.EscapeString(n.InvoiceNumber),
		n.Amount.StringFixed(2),
		n.Balance.StringFixed(2),
		n.DueDate.Format("02 Jan 2006"),
	)
	return subject, body
}

// sendEmail sends an email using SMTP with TLS
func (e *EmailService) sendEmail(to, subject, htmlBody string) error {
	headers := []struct{ key, value string }{
		{"From", fmt.Sprintf("School Finance <%s>", e.from)},
		{"To", to},
		{"Subject", subject},
		{"MIME-Version", "1.0"},
		{"Content-Type", "text/html; charset=UTF-8"},
	}

	var message strings.Builder
	for _, h := range headers {
		message.WriteString(fmt.Sprintf("%s: %s\r\n", h.key, h.value))
	}
	message.WriteString("\r\n")
	message.WriteString(htmlBody)

	conn, err := smtp.Dial(fmt.Sprintf("%s:%d", e.host, e.port))
	if err != nil {
		return fmt.Errorf("failed to connect to SMTP server: %w", err)
	}
	defer conn.Close()

	if err := conn.StartTLS(&tls.Config{ServerName: e.host}); err != nil {
		return fmt.Errorf("failed to start TLS: %w", err)
	}
	if err := conn.Auth(smtp.PlainAuth("", e.username, e.password, e.host)); err != nil {
		return fmt.Errorf("SMTP authentication failed: %w", err)
	}
	if err := conn.Mail(e.from); err != nil {
		return fmt.Errorf("failed to set sender: %w", err)
	}
	if err := conn.Rcpt(to); err != nil {
		return fmt.Errorf("failed to set recipient: %w", err)
	}

	w, err := conn.Data()
	if err != nil {
		return fmt.Errorf("failed to get data writer: %w", err)
	}
	if _, err := w.Write([]byte(message.String())); err != nil {
		return fmt.Errorf("failed to write email body: %w", err)
	}
	if err := w.Close(); err != nil {
		return fmt.Errorf("failed to close data writer: %w", err)
	}

	return conn.Quit()
}
