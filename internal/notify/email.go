package notify

import (
	"fmt"
	"net/smtp"

	"github.com/stayware/message-etl/pkg/logger"
)

// EmailNotifier sends plain-text failure alerts. It is best-effort: a
// run must never fail because the alert about its failure could not be
// delivered.
type EmailNotifier struct {
	addr string
	from string
	to   string
}

func NewEmailNotifier(addr, email string) *EmailNotifier {
	return &EmailNotifier{
		addr: addr,
		from: "etl-alerts@stayware.io",
		to:   email,
	}
}

func (n *EmailNotifier) NotifyFailure(subject, body string) {
	if n.addr == "" || n.to == "" {
		logger.Warn("notification skipped, smtp is not configured", "subject", subject)
		return
	}

	msg := fmt.Sprintf("From: %s\r\nTo: %s\r\nSubject: %s\r\n\r\n%s\r\n", n.from, n.to, subject, body)
	if err := smtp.SendMail(n.addr, nil, n.from, []string{n.to}, []byte(msg)); err != nil {
		logger.Error("failed to send notification email", "subject", subject, "error", err)
		return
	}
	logger.Info("notification email sent", "subject", subject, "to", n.to)
}
